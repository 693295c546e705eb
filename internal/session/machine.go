// Package session implements the client-side state machine for a live
// quiz session: phase tracking, the clock-synchronized countdown, the
// scoreboard reconciler and the answer submission tracker, all rebuilt
// atomically from state_sync snapshots.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"quiz-session-client/internal/domain"
	"quiz-session-client/internal/protocol"
)

// State is one observable view of the session, handed to subscribers as a
// value. StartedAt/DurationMs are set only while a question is active.
type State struct {
	RoomCode      string
	Phase         domain.Phase
	QuestionIndex int
	Question      *domain.Question
	StartedAt     time.Time
	DurationMs    int64
	Remaining     int
	TimeUp        bool
	CorrectIndex  int
	SelectedIndex int
	Answered      bool
	Scoreboard    []domain.ScoreboardEntry
	PlayerID      string
	SessionID     string
	ErrorMessage  string
}

// Config wires a Machine to its collaborators.
type Config struct {
	RoomCode     string
	Clock        clockwork.Clock
	TickInterval time.Duration
	Store        AnswerStore
	// Send delivers an outbound protocol message, fire and forget.
	Send func(msg any) error
}

// Machine is the authoritative per-party view of session phase and the
// current question. It transitions only in response to inbound protocol
// messages applied sequentially through Apply; the countdown goroutine is
// the single autonomous activity and only narrows remaining time.
type Machine struct {
	mu        sync.Mutex
	clock     clockwork.Clock
	countdown *Countdown
	tracker   *AnswerTracker
	board     Scoreboard
	send      func(msg any) error

	roomCode      string
	phase         domain.Phase
	questionIndex int
	question      *domain.Question
	startedAt     time.Time
	durationMs    int64
	timeUp        bool
	correctIndex  int
	playerID      string
	sessionID     string
	errorMessage  string

	subscribers map[chan State]struct{}
}

func NewMachine(cfg Config) *Machine {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	send := cfg.Send
	if send == nil {
		send = func(any) error { return domain.ErrChannelClosed }
	}
	m := &Machine{
		clock:         clock,
		countdown:     NewCountdown(clock, cfg.TickInterval),
		tracker:       NewAnswerTracker(cfg.Store, cfg.RoomCode),
		send:          send,
		roomCode:      cfg.RoomCode,
		phase:         domain.PhaseConnecting,
		questionIndex: -1,
		correctIndex:  -1,
		subscribers:   make(map[chan State]struct{}),
	}
	return m
}

// Apply folds one inbound protocol message into the machine. Messages are
// fully applied before the next one is processed; after the terminal
// session_ended, further protocol messages are ignored.
func (m *Machine) Apply(ctx context.Context, msg any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase.Terminal() {
		return
	}

	switch msg := msg.(type) {
	case *protocol.StateSync:
		m.applySnapshotLocked(ctx, msg)
	case *protocol.QuestionStarted:
		m.applyQuestionStartedLocked(ctx, msg)
	case *protocol.AnswerRevealed:
		m.applyAnswerRevealedLocked(msg)
	case *protocol.PlayerJoined:
		m.applyPlayerJoinedLocked(msg)
	case *protocol.PlayerLeft:
		m.board.Leave(msg.PlayerID, msg.PlayerName)
	case *protocol.SessionEnded:
		m.applySessionEndedLocked(ctx, msg)
	case *protocol.ErrorMessage:
		m.applyErrorLocked(msg)
	default:
		return
	}
	m.broadcastLocked()
}

// applySnapshotLocked rebuilds phase, question, countdown, scoreboard and
// answer tracker from a snapshot in one step. Snapshots are ground truth
// after a gap and the only transition allowed to jump non-adjacent
// phases; applying the same snapshot twice is idempotent.
func (m *Machine) applySnapshotLocked(ctx context.Context, msg *protocol.StateSync) {
	m.phase = domain.ParsePhase(msg.Phase)
	m.questionIndex = msg.QuestionIndex
	m.question = msg.Question
	m.correctIndex = -1
	m.errorMessage = ""
	m.board.Replace(msg.Scoreboard)
	if msg.PlayerID != "" {
		m.playerID = msg.PlayerID
	}

	m.tracker.Restore(ctx, msg.QuestionIndex)

	if m.phase == domain.PhaseQuestionActive && msg.StartedAt != nil && msg.DurationMs != nil {
		m.startCountdownLocked(time.UnixMilli(*msg.StartedAt), *msg.DurationMs)
	} else {
		m.clearCountdownLocked()
	}
	if m.phase.Terminal() {
		m.tracker.Reset(ctx)
	}
}

func (m *Machine) applyQuestionStartedLocked(ctx context.Context, msg *protocol.QuestionStarted) {
	m.tracker.StartQuestion(ctx, msg.QuestionIndex)
	m.phase = domain.PhaseQuestionActive
	m.question = msg.Question
	m.questionIndex = msg.QuestionIndex
	m.correctIndex = -1
	m.startCountdownLocked(time.UnixMilli(msg.StartedAt), msg.DurationMs)
}

func (m *Machine) applyAnswerRevealedLocked(msg *protocol.AnswerRevealed) {
	m.phase = domain.PhaseReveal
	m.correctIndex = msg.CorrectIndex
	if msg.Scoreboard != nil {
		m.board.Replace(msg.Scoreboard)
	}
	m.clearCountdownLocked()
}

func (m *Machine) applyPlayerJoinedLocked(msg *protocol.PlayerJoined) {
	m.board.Join(msg.PlayerID, msg.PlayerName)
	if m.phase == domain.PhaseConnecting {
		m.phase = domain.PhaseLobby
	}
}

func (m *Machine) applySessionEndedLocked(ctx context.Context, msg *protocol.SessionEnded) {
	m.phase = domain.PhaseEnded
	m.question = nil
	m.correctIndex = -1
	m.sessionID = msg.SessionID
	if msg.Scoreboard != nil {
		m.board.Replace(msg.Scoreboard)
	}
	m.clearCountdownLocked()
	m.tracker.Reset(ctx)
}

func (m *Machine) applyErrorLocked(msg *protocol.ErrorMessage) {
	m.errorMessage = msg.Message
	m.phase = domain.PhaseError
	m.clearCountdownLocked()
}

// startCountdownLocked replaces any running countdown with one for the
// given window. An already-expired window marks time-up directly since
// the countdown fires no synchronous callbacks.
func (m *Machine) startCountdownLocked(startedAt time.Time, durationMs int64) {
	m.startedAt = startedAt
	m.durationMs = durationMs
	remaining := m.countdown.Start(startedAt, time.Duration(durationMs)*time.Millisecond, m.onTick, m.onTimeUp)
	m.timeUp = remaining == 0
}

func (m *Machine) clearCountdownLocked() {
	m.countdown.Stop()
	m.startedAt = time.Time{}
	m.durationMs = 0
	m.timeUp = false
}

func (m *Machine) onTick(int) {
	m.mu.Lock()
	m.broadcastLocked()
	m.mu.Unlock()
}

// onTimeUp only disables further submission; the phase stays
// QUESTION_ACTIVE until the coordinator's answer_revealed arrives. A zero
// event that lost the race against a phase transition or a newer
// countdown is discarded.
func (m *Machine) onTimeUp() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != domain.PhaseQuestionActive || m.countdown.Remaining() > 0 {
		return
	}
	m.timeUp = true
	m.broadcastLocked()
}

// ChannelClosed records an unexpected transport closure. A fresh channel
// instance starts a new CONNECTING lifecycle and recovers via snapshot.
func (m *Machine) ChannelClosed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.phase.Terminal() && m.phase != domain.PhaseError {
		m.phase = domain.PhaseDisconnected
	}
	m.clearCountdownLocked()
	m.broadcastLocked()
}

// SubmitAnswer records and sends the participant's choice for the active
// question. Accepted only while the question is active, before time-up,
// and at most once per question index; the send is fire and forget and is
// never retried.
func (m *Machine) SubmitAnswer(ctx context.Context, optionIndex int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase.Terminal() {
		return domain.ErrSessionEnded
	}
	if m.phase != domain.PhaseQuestionActive {
		return domain.ErrSubmissionClosed
	}
	if m.timeUp || m.countdown.Remaining() <= 0 {
		return domain.ErrSubmissionClosed
	}
	if err := m.tracker.Record(ctx, m.questionIndex, optionIndex); err != nil {
		return err
	}
	m.broadcastLocked()
	return m.send(protocol.NewPlayerAnswer(m.questionIndex, optionIndex))
}

// Snapshot returns the current observable state.
func (m *Machine) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Subscribe returns a channel receiving state updates, seeded with the
// current state. The caller must invoke the cancel function to avoid
// leaks.
func (m *Machine) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 8)

	// Seed under the lock so no broadcast can slip in ahead of the
	// initial state; the fresh buffered channel cannot block here.
	m.mu.Lock()
	m.subscribers[ch] = struct{}{}
	ch <- m.snapshotLocked()
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		if _, ok := m.subscribers[ch]; ok {
			delete(m.subscribers, ch)
			close(ch)
		}
		m.mu.Unlock()
	}
	return ch, cancel
}

func (m *Machine) broadcastLocked() {
	st := m.snapshotLocked()
	for ch := range m.subscribers {
		select {
		case ch <- st:
		default:
			// Drop the stale update so a slow subscriber cannot block
			// message application.
			select {
			case <-ch:
			default:
			}
			ch <- st
		}
	}
}

func (m *Machine) snapshotLocked() State {
	selected, answered := m.tracker.Selected()
	remaining := 0
	if m.phase == domain.PhaseQuestionActive {
		remaining = m.countdown.Remaining()
	}
	return State{
		RoomCode:      m.roomCode,
		Phase:         m.phase,
		QuestionIndex: m.questionIndex,
		Question:      m.question,
		StartedAt:     m.startedAt,
		DurationMs:    m.durationMs,
		Remaining:     remaining,
		TimeUp:        m.timeUp,
		CorrectIndex:  m.correctIndex,
		SelectedIndex: selected,
		Answered:      answered,
		Scoreboard:    m.board.Ranked(),
		PlayerID:      m.playerID,
		SessionID:     m.sessionID,
		ErrorMessage:  m.errorMessage,
	}
}
