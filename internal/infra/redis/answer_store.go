// Package redis backs the client collaborators with Redis: the
// pending-answer record, room-code resolution and the quiz definition
// cache.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-session-client/internal/domain"
)

// AnswerStore persists the pending-answer record in Redis so a restarted
// client restores "already answered" without resubmitting.
// Stored as: SET quiz:answer:{roomCode} {json} EX ttl
type AnswerStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewAnswerStore(client *redis.Client, ttl time.Duration) *AnswerStore {
	return &AnswerStore{client: client, ttl: ttl}
}

func (s *AnswerStore) Load(ctx context.Context, roomCode string) (domain.PendingAnswer, bool, error) {
	raw, err := s.client.Get(ctx, s.key(roomCode)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.PendingAnswer{}, false, nil
	}
	if err != nil {
		return domain.PendingAnswer{}, false, fmt.Errorf("load pending answer: %w", err)
	}
	var rec domain.PendingAnswer
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return domain.PendingAnswer{}, false, fmt.Errorf("unmarshal pending answer: %w", err)
	}
	return rec, true, nil
}

func (s *AnswerStore) Save(ctx context.Context, roomCode string, rec domain.PendingAnswer) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal pending answer: %w", err)
	}
	return s.client.Set(ctx, s.key(roomCode), data, s.ttl).Err()
}

func (s *AnswerStore) Clear(ctx context.Context, roomCode string) error {
	return s.client.Del(ctx, s.key(roomCode)).Err()
}

func (s *AnswerStore) key(roomCode string) string {
	return "quiz:answer:" + roomCode
}
