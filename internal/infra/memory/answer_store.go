package memory

import (
	"context"
	"sync"

	"quiz-session-client/internal/domain"
)

// AnswerStore is an in-memory implementation of session.AnswerStore,
// useful for hosts (which never submit answers) and for tests.
type AnswerStore struct {
	mu      sync.RWMutex
	records map[string]domain.PendingAnswer
}

func NewAnswerStore() *AnswerStore {
	return &AnswerStore{records: make(map[string]domain.PendingAnswer)}
}

func (s *AnswerStore) Load(_ context.Context, roomCode string) (domain.PendingAnswer, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[roomCode]
	return rec, ok, nil
}

func (s *AnswerStore) Save(_ context.Context, roomCode string, rec domain.PendingAnswer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[roomCode] = rec
	return nil
}

func (s *AnswerStore) Clear(_ context.Context, roomCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, roomCode)
	return nil
}
