package session

import (
	"context"

	"quiz-session-client/internal/domain"
)

// AnswerStore is the durable key-value capability backing pending-answer
// records, scoped per room. Implementations must tolerate concurrent
// sessions for different rooms; failures are non-fatal to the protocol.
type AnswerStore interface {
	Load(ctx context.Context, roomCode string) (domain.PendingAnswer, bool, error)
	Save(ctx context.Context, roomCode string, rec domain.PendingAnswer) error
	Clear(ctx context.Context, roomCode string) error
}

// AnswerTracker enforces at most one recorded answer per question and
// persists the pending choice so a reload restores "already answered"
// without resubmitting. Not safe for concurrent use: the owning Machine
// serializes access.
type AnswerTracker struct {
	store    AnswerStore
	roomCode string

	questionIndex int
	selected      int
}

const noSelection = -1

func NewAnswerTracker(store AnswerStore, roomCode string) *AnswerTracker {
	return &AnswerTracker{
		store:         store,
		roomCode:      roomCode,
		questionIndex: -1,
		selected:      noSelection,
	}
}

// Selected returns the recorded option for the current question, if any.
func (t *AnswerTracker) Selected() (int, bool) {
	return t.selected, t.selected != noSelection
}

// Record accepts exactly one selection per question index. Persisting the
// record is best effort: a store failure degrades to "no restored
// selection" after a reload rather than blocking the submission.
func (t *AnswerTracker) Record(ctx context.Context, questionIndex, optionIndex int) error {
	if t.selected != noSelection && t.questionIndex == questionIndex {
		return domain.ErrAlreadyAnswered
	}
	t.questionIndex = questionIndex
	t.selected = optionIndex
	_ = t.store.Save(ctx, t.roomCode, domain.PendingAnswer{
		QuestionIndex: questionIndex,
		SelectedIndex: optionIndex,
	})
	return nil
}

// StartQuestion resets the tracker for a newly activated question and
// drops any persisted record from an earlier one. A replayed start for
// the question already being tracked keeps the selection; only a
// different index clears state.
func (t *AnswerTracker) StartQuestion(ctx context.Context, questionIndex int) {
	if questionIndex == t.questionIndex {
		return
	}
	t.questionIndex = questionIndex
	t.selected = noSelection
	_ = t.store.Clear(ctx, t.roomCode)
}

// Restore rebuilds the tracker from the persisted record during a
// snapshot. A record matching the server-reported index becomes the
// already-submitted selection (it was sent before the reload, so it is
// not resent); a stale record is silently discarded.
func (t *AnswerTracker) Restore(ctx context.Context, serverIndex int) {
	t.questionIndex = serverIndex
	t.selected = noSelection

	rec, ok, err := t.store.Load(ctx, t.roomCode)
	if err != nil || !ok {
		return
	}
	if rec.QuestionIndex == serverIndex {
		t.selected = rec.SelectedIndex
		return
	}
	_ = t.store.Clear(ctx, t.roomCode)
}

// Reset clears all tracker state and the persisted record, used when the
// session ends.
func (t *AnswerTracker) Reset(ctx context.Context) {
	t.questionIndex = -1
	t.selected = noSelection
	_ = t.store.Clear(ctx, t.roomCode)
}
