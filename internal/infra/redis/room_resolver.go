package redis

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-session-client/internal/domain"
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RoomResolver resolves short room codes to quiz ids.
// Stored as: SET room:code:{CODE} {quizID} EX ttl
type RoomResolver struct {
	client *redis.Client
	ttl    time.Duration
	rnd    *rand.Rand
}

func NewRoomResolver(client *redis.Client, ttl time.Duration) *RoomResolver {
	return &RoomResolver{
		client: client,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *RoomResolver) Resolve(ctx context.Context, roomCode string) (string, error) {
	quizID, err := r.client.Get(ctx, r.key(roomCode)).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrRoomNotFound
	}
	if err != nil {
		return "", fmt.Errorf("resolve room code: %w", err)
	}
	return quizID, nil
}

// CreateCode generates a fresh 4-character room code for a quiz,
// retrying on the rare collision.
func (r *RoomResolver) CreateCode(ctx context.Context, quizID string) (string, error) {
	for attempt := 0; attempt < 10; attempt++ {
		code := r.randomCode(4)
		ok, err := r.client.SetNX(ctx, r.key(code), quizID, r.ttl).Result()
		if err != nil {
			return "", fmt.Errorf("create room code: %w", err)
		}
		if ok {
			return code, nil
		}
	}
	return "", fmt.Errorf("create room code: exhausted attempts")
}

// DeleteCode frees a room code once its session has ended.
func (r *RoomResolver) DeleteCode(ctx context.Context, roomCode string) error {
	return r.client.Del(ctx, r.key(roomCode)).Err()
}

func (r *RoomResolver) randomCode(length int) string {
	buf := make([]byte, length)
	for i := range buf {
		buf[i] = codeAlphabet[r.rnd.Intn(len(codeAlphabet))]
	}
	return string(buf)
}

func (r *RoomResolver) key(roomCode string) string {
	return "room:code:" + roomCode
}
