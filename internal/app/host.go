package app

import (
	"context"
	"time"

	"quiz-session-client/internal/channel"
	"quiz-session-client/internal/protocol"
)

// HostOptions configure the presenter side of a session.
type HostOptions struct {
	Options
	QuizID  string
	Quizzes QuizRepository
	// DeferQuestions sends an empty question list in host:create_session,
	// asking the coordinator to load the question set by quiz id instead
	// of pushing it from the client.
	DeferQuestions bool
}

// Host drives question pacing for a session.
type Host struct {
	*Client
	quizID         string
	quizzes        QuizRepository
	deferQuestions bool
}

// ConnectHost opens the host connection. The session itself is brought
// into existence by CreateSession, a one-time initialization step.
func ConnectHost(ctx context.Context, opts HostOptions) (*Host, error) {
	client, err := connect(ctx, channel.RoleHost, opts.Options)
	if err != nil {
		return nil, err
	}
	return &Host{
		Client:         client,
		quizID:         opts.QuizID,
		quizzes:        opts.Quizzes,
		deferQuestions: opts.DeferQuestions,
	}, nil
}

// CreateSession initializes the session, either pushing the full question
// list fetched from the quiz repository or deferring loading to the
// coordinator.
func (h *Host) CreateSession(ctx context.Context) error {
	if h.deferQuestions {
		return h.ch.Send(protocol.NewCreateSession(h.Snapshot().RoomCode, h.quizID, nil))
	}
	quiz, err := h.quizzes.GetQuiz(ctx, h.quizID)
	if err != nil {
		return err
	}
	return h.ch.Send(protocol.NewCreateSession(h.Snapshot().RoomCode, h.quizID, quiz.Questions))
}

// StartQuestion activates an explicit question index with the given
// answer window.
func (h *Host) StartQuestion(index int, window time.Duration) error {
	return h.ch.Send(protocol.NewStartQuestion(index, window.Milliseconds()))
}

// NextQuestion advances to the next question with the given answer
// window.
func (h *Host) NextQuestion(window time.Duration) error {
	return h.ch.Send(protocol.NewNextQuestion(window.Milliseconds()))
}

// RevealAnswer closes the current question; the coordinator answers with
// answer_revealed, which is what actually moves the phase.
func (h *Host) RevealAnswer() error {
	return h.ch.Send(protocol.NewRevealAnswer(nil))
}

// EndSession terminates the session for all parties.
func (h *Host) EndSession() error {
	return h.ch.Send(protocol.NewEndSession())
}
