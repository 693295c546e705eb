package session

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"quiz-session-client/internal/domain"
	"quiz-session-client/internal/protocol"
)

type stubStore struct {
	rec    *domain.PendingAnswer
	failed bool
	saves  int
	clears int
}

func (s *stubStore) Load(_ context.Context, _ string) (domain.PendingAnswer, bool, error) {
	if s.failed {
		return domain.PendingAnswer{}, false, errors.New("store unavailable")
	}
	if s.rec == nil {
		return domain.PendingAnswer{}, false, nil
	}
	return *s.rec, true, nil
}

func (s *stubStore) Save(_ context.Context, _ string, rec domain.PendingAnswer) error {
	s.saves++
	if s.failed {
		return errors.New("store unavailable")
	}
	s.rec = &rec
	return nil
}

func (s *stubStore) Clear(_ context.Context, _ string) error {
	s.clears++
	s.rec = nil
	return nil
}

type sendRecorder struct {
	msgs []any
}

func (r *sendRecorder) send(msg any) error {
	r.msgs = append(r.msgs, msg)
	return nil
}

func newTestMachine(t *testing.T, fc clockwork.Clock, store AnswerStore) (*Machine, *sendRecorder) {
	t.Helper()
	if store == nil {
		store = &stubStore{}
	}
	rec := &sendRecorder{}
	m := NewMachine(Config{
		RoomCode:     "ROOM",
		Clock:        fc,
		TickInterval: time.Second,
		Store:        store,
		Send:         rec.send,
	})
	return m, rec
}

func activeSnapshot(index int, startedAt, durationMs int64, board []domain.ScoreboardEntry) *protocol.StateSync {
	return &protocol.StateSync{
		Type:          protocol.TypeStateSync,
		RoomCode:      "ROOM",
		Phase:         string(domain.PhaseQuestionActive),
		QuestionIndex: index,
		StartedAt:     &startedAt,
		DurationMs:    &durationMs,
		Question:      &domain.Question{ID: "q", Text: "2+2?", Answers: []string{"3", "4"}, Position: index},
		Scoreboard:    board,
	}
}

func TestSnapshotApplicationIsIdempotent(t *testing.T) {
	ctx := context.Background()
	fc := clockwork.NewFakeClockAt(time.UnixMilli(1000))
	m, _ := newTestMachine(t, fc, nil)

	snap := &protocol.StateSync{
		Type:          protocol.TypeStateSync,
		RoomCode:      "ROOM",
		Phase:         string(domain.PhaseLobby),
		QuestionIndex: -1,
		Scoreboard: []domain.ScoreboardEntry{
			{PlayerID: "p1", Name: "Alice", Score: 3},
			{PlayerID: "p2", Name: "Bob", Score: 5},
		},
		PlayerID: "p1",
	}

	m.Apply(ctx, snap)
	first := m.Snapshot()
	m.Apply(ctx, snap)
	second := m.Snapshot()

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("snapshot application not idempotent:\nfirst:  %+v\nsecond: %+v", first, second)
	}
	if second.Phase != domain.PhaseLobby || second.PlayerID != "p1" {
		t.Fatalf("unexpected state after snapshot: %+v", second)
	}
	if second.Scoreboard[0].PlayerID != "p2" {
		t.Fatalf("expected ranking by score desc, got %+v", second.Scoreboard)
	}
}

func TestSnapshotReplacesScoreboardWholesale(t *testing.T) {
	ctx := context.Background()
	fc := clockwork.NewFakeClockAt(time.UnixMilli(1000))
	m, _ := newTestMachine(t, fc, nil)

	m.Apply(ctx, &protocol.StateSync{
		Phase:         string(domain.PhaseLobby),
		QuestionIndex: -1,
		Scoreboard: []domain.ScoreboardEntry{
			{PlayerID: "p1", Name: "Alice"},
			{PlayerID: "p2", Name: "Bob"},
		},
	})
	m.Apply(ctx, &protocol.StateSync{
		Phase:         string(domain.PhaseLobby),
		QuestionIndex: -1,
		Scoreboard:    []domain.ScoreboardEntry{},
	})

	if got := len(m.Snapshot().Scoreboard); got != 0 {
		t.Fatalf("expected empty scoreboard after authoritative snapshot, got %d entries", got)
	}
}

func TestCountdownFollowsSnapshotClock(t *testing.T) {
	ctx := context.Background()
	fc := clockwork.NewFakeClockAt(time.UnixMilli(1000))
	m, _ := newTestMachine(t, fc, nil)

	m.Apply(ctx, activeSnapshot(2, 1000, 30000, nil))
	if got := m.Snapshot().Remaining; got != 30 {
		t.Fatalf("expected 30s remaining at question start, got %d", got)
	}

	updates, cancel := m.Subscribe()
	defer cancel()

	fc.BlockUntil(1)
	fc.Advance(31 * time.Second)

	deadline := time.After(2 * time.Second)
	for {
		var st State
		select {
		case st = <-updates:
		case <-deadline:
			t.Fatalf("never observed time-up")
		}
		if !st.TimeUp {
			continue
		}
		// Local expiry only disables submission; the phase still belongs
		// to the coordinator.
		if st.Phase != domain.PhaseQuestionActive {
			t.Fatalf("local time-up must not change phase, got %s", st.Phase)
		}
		if st.Remaining != 0 {
			t.Fatalf("expected 0 remaining, got %d", st.Remaining)
		}
		return
	}
}

func TestStaleTimeUpIgnoredAfterNewQuestion(t *testing.T) {
	ctx := context.Background()
	fc := clockwork.NewFakeClockAt(time.UnixMilli(1000))
	m, _ := newTestMachine(t, fc, nil)

	m.Apply(ctx, &protocol.QuestionStarted{
		QuestionIndex: 0,
		StartedAt:     1000,
		DurationMs:    30000,
		Question:      &domain.Question{ID: "q0", Answers: []string{"a", "b"}, Position: 0},
	})
	m.Apply(ctx, &protocol.QuestionStarted{
		QuestionIndex: 1,
		StartedAt:     1000,
		DurationMs:    30000,
		Question:      &domain.Question{ID: "q1", Answers: []string{"a", "b"}, Position: 1},
	})

	// A zero event from the first question's countdown that fires after
	// the transition must not close the new question's window.
	m.onTimeUp()

	st := m.Snapshot()
	if st.TimeUp {
		t.Fatalf("stale time-up closed the new question's window: %+v", st)
	}
	if err := m.SubmitAnswer(ctx, 0); err != nil {
		t.Fatalf("submission rejected after stale time-up: %v", err)
	}
}

func TestQuestionStartedDiscardsStaleAnswer(t *testing.T) {
	ctx := context.Background()
	fc := clockwork.NewFakeClockAt(time.UnixMilli(1000))
	store := &stubStore{rec: &domain.PendingAnswer{QuestionIndex: 2, SelectedIndex: 1}}
	m, _ := newTestMachine(t, fc, store)

	m.Apply(ctx, &protocol.QuestionStarted{
		Type:          protocol.TypeQuestionStarted,
		QuestionIndex: 3,
		StartedAt:     1000,
		DurationMs:    30000,
		Question:      &domain.Question{ID: "q3", Answers: []string{"a", "b"}, Position: 3},
	})

	st := m.Snapshot()
	if st.Answered || st.SelectedIndex != -1 {
		t.Fatalf("stale record must not surface as a selection for the new question: %+v", st)
	}
	if store.rec != nil {
		t.Fatalf("expected persisted record to be cleared")
	}
}

func TestReplayedQuestionStartedKeepsAnswer(t *testing.T) {
	ctx := context.Background()
	fc := clockwork.NewFakeClockAt(time.UnixMilli(1000))
	store := &stubStore{}
	m, rec := newTestMachine(t, fc, store)

	started := &protocol.QuestionStarted{
		Type:          protocol.TypeQuestionStarted,
		QuestionIndex: 0,
		StartedAt:     1000,
		DurationMs:    30000,
		Question:      &domain.Question{ID: "q0", Answers: []string{"a", "b"}, Position: 0},
	}
	m.Apply(ctx, started)
	if err := m.SubmitAnswer(ctx, 1); err != nil {
		t.Fatalf("submission failed: %v", err)
	}

	// A coordinator retry of the same question_started must not reopen
	// the question.
	m.Apply(ctx, started)
	st := m.Snapshot()
	if !st.Answered || st.SelectedIndex != 1 {
		t.Fatalf("expected selection to survive the replay, got %+v", st)
	}
	if err := m.SubmitAnswer(ctx, 0); !errors.Is(err, domain.ErrAlreadyAnswered) {
		t.Fatalf("expected ErrAlreadyAnswered after replay, got %v", err)
	}
	if len(rec.msgs) != 1 {
		t.Fatalf("expected exactly one player:answer despite the replay, got %d", len(rec.msgs))
	}
	if store.rec == nil || store.rec.SelectedIndex != 1 {
		t.Fatalf("expected persisted record kept, got %+v", store.rec)
	}
}

func TestSnapshotRestoresMatchingAnswer(t *testing.T) {
	ctx := context.Background()
	fc := clockwork.NewFakeClockAt(time.UnixMilli(1000))
	store := &stubStore{rec: &domain.PendingAnswer{QuestionIndex: 2, SelectedIndex: 1}}
	m, rec := newTestMachine(t, fc, store)

	m.Apply(ctx, activeSnapshot(2, 1000, 30000, nil))

	st := m.Snapshot()
	if !st.Answered || st.SelectedIndex != 1 {
		t.Fatalf("expected restored selection 1, got %+v", st)
	}
	// The restored answer was sent before the reload; it must not be
	// resent, and a second choice must be rejected.
	if len(rec.msgs) != 0 {
		t.Fatalf("restore must not resend, sent %v", rec.msgs)
	}
	if err := m.SubmitAnswer(ctx, 0); !errors.Is(err, domain.ErrAlreadyAnswered) {
		t.Fatalf("expected ErrAlreadyAnswered, got %v", err)
	}
}

func TestSubmitAnswerAcceptedOncePerQuestion(t *testing.T) {
	ctx := context.Background()
	fc := clockwork.NewFakeClockAt(time.UnixMilli(1000))
	store := &stubStore{}
	m, rec := newTestMachine(t, fc, store)

	m.Apply(ctx, activeSnapshot(0, 1000, 30000, nil))

	if err := m.SubmitAnswer(ctx, 1); err != nil {
		t.Fatalf("first submission failed: %v", err)
	}
	// No acknowledgment has arrived, yet the second attempt must fail.
	if err := m.SubmitAnswer(ctx, 0); !errors.Is(err, domain.ErrAlreadyAnswered) {
		t.Fatalf("expected ErrAlreadyAnswered, got %v", err)
	}

	if len(rec.msgs) != 1 {
		t.Fatalf("expected exactly one player:answer, got %d", len(rec.msgs))
	}
	answer, ok := rec.msgs[0].(protocol.PlayerAnswer)
	if !ok || answer.QuestionIndex != 0 || answer.OptionIndex != 1 {
		t.Fatalf("unexpected outbound message %+v", rec.msgs[0])
	}
	if store.rec == nil || store.rec.SelectedIndex != 1 {
		t.Fatalf("expected persisted record, got %+v", store.rec)
	}
}

func TestSubmitAnswerRejectedOutsideWindow(t *testing.T) {
	ctx := context.Background()
	fc := clockwork.NewFakeClockAt(time.UnixMilli(1000))
	m, rec := newTestMachine(t, fc, nil)

	if err := m.SubmitAnswer(ctx, 0); !errors.Is(err, domain.ErrSubmissionClosed) {
		t.Fatalf("expected ErrSubmissionClosed before any question, got %v", err)
	}

	// Window already closed when the snapshot arrives.
	fc2 := clockwork.NewFakeClockAt(time.UnixMilli(45000))
	m2, _ := newTestMachine(t, fc2, nil)
	m2.Apply(ctx, activeSnapshot(0, 1000, 30000, nil))
	if err := m2.SubmitAnswer(ctx, 0); !errors.Is(err, domain.ErrSubmissionClosed) {
		t.Fatalf("expected ErrSubmissionClosed after time-up, got %v", err)
	}
	if len(rec.msgs) != 0 {
		t.Fatalf("rejected submissions must not send, got %v", rec.msgs)
	}
}

func TestStoreFailureDegradesToNoRestoredSelection(t *testing.T) {
	ctx := context.Background()
	fc := clockwork.NewFakeClockAt(time.UnixMilli(1000))
	store := &stubStore{failed: true}
	m, rec := newTestMachine(t, fc, store)

	m.Apply(ctx, activeSnapshot(2, 1000, 30000, nil))
	st := m.Snapshot()
	if st.Answered {
		t.Fatalf("store failure must degrade to no restored selection")
	}

	// Submission still proceeds even though persisting fails.
	if err := m.SubmitAnswer(ctx, 1); err != nil {
		t.Fatalf("submission blocked by store failure: %v", err)
	}
	if len(rec.msgs) != 1 {
		t.Fatalf("expected the answer to be sent, got %d messages", len(rec.msgs))
	}
}

func TestDuplicateJoinsKeepSingleEntry(t *testing.T) {
	ctx := context.Background()
	fc := clockwork.NewFakeClockAt(time.UnixMilli(1000))
	m, _ := newTestMachine(t, fc, nil)

	for i := 0; i < 3; i++ {
		m.Apply(ctx, &protocol.PlayerJoined{Type: protocol.TypePlayerJoined, PlayerID: "p1", PlayerName: "Alice"})
	}

	st := m.Snapshot()
	if len(st.Scoreboard) != 1 {
		t.Fatalf("expected one entry after duplicate joins, got %d", len(st.Scoreboard))
	}
	if st.Phase != domain.PhaseLobby {
		t.Fatalf("expected first join to move CONNECTING to LOBBY, got %s", st.Phase)
	}
}

func TestPlayerLeftUnknownIsNoop(t *testing.T) {
	ctx := context.Background()
	fc := clockwork.NewFakeClockAt(time.UnixMilli(1000))
	m, _ := newTestMachine(t, fc, nil)

	m.Apply(ctx, &protocol.PlayerJoined{PlayerID: "p1", PlayerName: "Alice"})
	m.Apply(ctx, &protocol.PlayerLeft{PlayerID: "ghost", PlayerName: "Ghost"})

	st := m.Snapshot()
	if len(st.Scoreboard) != 1 || st.Scoreboard[0].PlayerID != "p1" {
		t.Fatalf("unknown player_left must not change the scoreboard: %+v", st.Scoreboard)
	}
}

func TestRevealCapturesCorrectIndexAndScoreboard(t *testing.T) {
	ctx := context.Background()
	fc := clockwork.NewFakeClockAt(time.UnixMilli(1000))
	m, _ := newTestMachine(t, fc, nil)

	m.Apply(ctx, activeSnapshot(0, 1000, 30000, nil))
	m.Apply(ctx, &protocol.AnswerRevealed{
		Type:          protocol.TypeAnswerRevealed,
		QuestionIndex: 0,
		CorrectIndex:  1,
		Scoreboard:    []domain.ScoreboardEntry{{PlayerID: "p1", Name: "Alice", Score: 100}},
	})

	st := m.Snapshot()
	if st.Phase != domain.PhaseReveal || st.CorrectIndex != 1 {
		t.Fatalf("expected REVEAL with correct index 1, got %+v", st)
	}
	if !st.StartedAt.IsZero() || st.Remaining != 0 {
		t.Fatalf("countdown fields must be cleared outside QUESTION_ACTIVE: %+v", st)
	}
	if len(st.Scoreboard) != 1 || st.Scoreboard[0].Score != 100 {
		t.Fatalf("expected scoreboard snapshot from reveal, got %+v", st.Scoreboard)
	}
}

func TestSessionEndedIsTerminal(t *testing.T) {
	ctx := context.Background()
	fc := clockwork.NewFakeClockAt(time.UnixMilli(1000))
	store := &stubStore{rec: &domain.PendingAnswer{QuestionIndex: 1, SelectedIndex: 0}}
	m, _ := newTestMachine(t, fc, store)

	m.Apply(ctx, &protocol.SessionEnded{
		Type:       protocol.TypeSessionEnded,
		SessionID:  "sess-1",
		Scoreboard: []domain.ScoreboardEntry{{PlayerID: "p1", Name: "Alice", Score: 100}},
	})

	st := m.Snapshot()
	if st.Phase != domain.PhaseEnded || st.SessionID != "sess-1" {
		t.Fatalf("expected terminal ENDED state, got %+v", st)
	}
	if store.rec != nil {
		t.Fatalf("expected pending answer cleared at session end")
	}

	// Terminal means terminal: later protocol messages are ignored.
	m.Apply(ctx, &protocol.QuestionStarted{QuestionIndex: 5, StartedAt: 1000, DurationMs: 10000})
	if got := m.Snapshot().Phase; got != domain.PhaseEnded {
		t.Fatalf("expected ENDED to stick, got %s", got)
	}
	if err := m.SubmitAnswer(ctx, 0); !errors.Is(err, domain.ErrSessionEnded) {
		t.Fatalf("expected ErrSessionEnded, got %v", err)
	}
}

func TestChannelClosedTransitionsToDisconnected(t *testing.T) {
	ctx := context.Background()
	fc := clockwork.NewFakeClockAt(time.UnixMilli(1000))
	m, _ := newTestMachine(t, fc, nil)

	m.Apply(ctx, activeSnapshot(0, 1000, 30000, nil))
	m.ChannelClosed()

	st := m.Snapshot()
	if st.Phase != domain.PhaseDisconnected {
		t.Fatalf("expected DISCONNECTED, got %s", st.Phase)
	}
	if st.Remaining != 0 || !st.StartedAt.IsZero() {
		t.Fatalf("expected countdown cleared on disconnect: %+v", st)
	}

	// A terminal session stays ENDED even when the channel drops.
	m2, _ := newTestMachine(t, fc, nil)
	m2.Apply(ctx, &protocol.SessionEnded{})
	m2.ChannelClosed()
	if got := m2.Snapshot().Phase; got != domain.PhaseEnded {
		t.Fatalf("expected ENDED after close, got %s", got)
	}
}

func TestSubscribeSeedNeverTrailsConcurrentBroadcasts(t *testing.T) {
	ctx := context.Background()
	fc := clockwork.NewFakeClockAt(time.UnixMilli(1000))
	m, _ := newTestMachine(t, fc, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			m.Apply(ctx, &protocol.PlayerJoined{
				PlayerID:   fmt.Sprintf("p%d", i),
				PlayerName: fmt.Sprintf("P%d", i),
			})
		}
	}()

	// The first delivery must always be the seed; any broadcast racing
	// the subscription lands after it, so the roster never shrinks.
	for i := 0; i < 50; i++ {
		updates, cancel := m.Subscribe()
		first := <-updates
		select {
		case second := <-updates:
			if len(first.Scoreboard) > len(second.Scoreboard) {
				t.Fatalf("state moved backwards: seed had %d entries, next update %d",
					len(first.Scoreboard), len(second.Scoreboard))
			}
		default:
		}
		cancel()
	}
	<-done
}

func TestErrorMessageEntersErrorPhase(t *testing.T) {
	ctx := context.Background()
	fc := clockwork.NewFakeClockAt(time.UnixMilli(1000))
	m, _ := newTestMachine(t, fc, nil)

	m.Apply(ctx, &protocol.ErrorMessage{Type: protocol.TypeError, Message: "room code not found or expired"})

	st := m.Snapshot()
	if st.Phase != domain.PhaseError || st.ErrorMessage == "" {
		t.Fatalf("expected ERROR phase carrying the peer message, got %+v", st)
	}
}
