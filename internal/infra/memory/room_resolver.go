package memory

import (
	"context"
	"sync"

	"quiz-session-client/internal/domain"
)

// RoomResolver maps room codes to quiz ids from an in-memory table.
type RoomResolver struct {
	mu    sync.RWMutex
	rooms map[string]string
}

func NewRoomResolver(rooms map[string]string) *RoomResolver {
	if rooms == nil {
		rooms = make(map[string]string)
	}
	return &RoomResolver{rooms: rooms}
}

func (r *RoomResolver) Resolve(_ context.Context, roomCode string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if quizID, ok := r.rooms[roomCode]; ok {
		return quizID, nil
	}
	return "", domain.ErrRoomNotFound
}

// Register binds a room code to a quiz id.
func (r *RoomResolver) Register(roomCode, quizID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms[roomCode] = quizID
}
