// Package protocol defines the JSON wire messages exchanged with the
// session coordinator. All messages are flat objects discriminated by a
// "type" field; the encoding is the only bit-exact contract of this module.
package protocol

import (
	"encoding/json"
	"fmt"

	"quiz-session-client/internal/domain"
)

// Inbound message types.
const (
	TypeStateSync       = "state_sync"
	TypeQuestionStarted = "question_started"
	TypeAnswerRevealed  = "answer_revealed"
	TypePlayerJoined    = "player_joined"
	TypePlayerLeft      = "player_left"
	TypeSessionEnded    = "session_ended"
	TypeQuizEnded       = "quiz_ended" // legacy alias for session_ended
	TypeAnswerAck       = "answer_ack"
	TypeError           = "error"
)

// Outbound message types.
const (
	TypeCreateSession = "host:create_session"
	TypeStartQuestion = "host:start_question"
	TypeNextQuestion  = "host:next_question"
	TypeRevealAnswer  = "host:reveal_answer"
	TypeEndSession    = "host:end_session"
	TypePlayerJoin    = "player:join"
	TypePlayerAnswer  = "player:answer"
)

// StateSync is the full-state snapshot; applying one rebuilds all
// client-side state without replaying history. StartedAt/DurationMs are
// unix-millisecond values, present only while a question is active.
type StateSync struct {
	Type          string                   `json:"type"`
	RoomCode      string                   `json:"roomCode"`
	Phase         string                   `json:"phase"`
	QuestionIndex int                      `json:"questionIndex"`
	StartedAt     *int64                   `json:"startedAt,omitempty"`
	DurationMs    *int64                   `json:"durationMs,omitempty"`
	Question      *domain.Question         `json:"question,omitempty"`
	Scoreboard    []domain.ScoreboardEntry `json:"scoreboard"`
	PlayerID      string                   `json:"playerId,omitempty"`
}

// QuestionStarted announces a new active question.
type QuestionStarted struct {
	Type          string           `json:"type"`
	QuestionIndex int              `json:"questionIndex"`
	StartedAt     int64            `json:"startedAt"`
	DurationMs    int64            `json:"durationMs"`
	Question      *domain.Question `json:"question"`
}

// AnswerRevealed closes the answer window and carries the correct option
// plus the post-question scoreboard.
type AnswerRevealed struct {
	Type          string                   `json:"type"`
	QuestionIndex int                      `json:"questionIndex"`
	CorrectIndex  int                      `json:"correctIndex"`
	Scoreboard    []domain.ScoreboardEntry `json:"scoreboard,omitempty"`
}

// PlayerJoined notifies that a participant entered the session.
type PlayerJoined struct {
	Type       string `json:"type"`
	PlayerID   string `json:"playerId,omitempty"`
	PlayerName string `json:"playerName"`
	RoomCode   string `json:"roomCode,omitempty"`
}

// PlayerLeft notifies that a participant left the session.
type PlayerLeft struct {
	Type       string `json:"type"`
	PlayerID   string `json:"playerId,omitempty"`
	PlayerName string `json:"playerName,omitempty"`
}

// SessionEnded is the terminal message for a session instance.
type SessionEnded struct {
	Type       string                   `json:"type"`
	SessionID  string                   `json:"sessionId,omitempty"`
	Scoreboard []domain.ScoreboardEntry `json:"scoreboard,omitempty"`
}

// AnswerAck confirms receipt of a player:answer. Purely informational:
// the tracker treats the local record as final either way.
type AnswerAck struct {
	Type string `json:"type"`
	OK   bool   `json:"ok"`
}

// ErrorMessage is a protocol-level error from the coordinator.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// CreateSession brings a session into existence. An empty Questions list
// asks the coordinator to load the question set by QuizID instead.
type CreateSession struct {
	Type      string            `json:"type"`
	RoomCode  string            `json:"roomCode"`
	QuizID    string            `json:"quizId"`
	Questions []domain.Question `json:"questions"`
}

// StartQuestion activates an explicit question index.
type StartQuestion struct {
	Type          string `json:"type"`
	QuestionIndex int    `json:"questionIndex"`
	DurationMs    int64  `json:"durationMs"`
}

// NextQuestion advances to the next question with the given window.
type NextQuestion struct {
	Type       string `json:"type"`
	DurationMs int64  `json:"durationMs"`
}

// RevealAnswer closes the current question. QuestionIndex is optional;
// the coordinator falls back to its own current index.
type RevealAnswer struct {
	Type          string `json:"type"`
	QuestionIndex *int   `json:"questionIndex,omitempty"`
}

// EndSession terminates the session.
type EndSession struct {
	Type string `json:"type"`
}

// PlayerJoin is the legacy explicit join message.
type PlayerJoin struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// PlayerAnswer submits a participant's choice for a question.
type PlayerAnswer struct {
	Type          string `json:"type"`
	QuestionIndex int    `json:"questionIndex"`
	OptionIndex   int    `json:"optionIndex"`
}

func NewCreateSession(roomCode, quizID string, questions []domain.Question) CreateSession {
	if questions == nil {
		questions = []domain.Question{}
	}
	return CreateSession{Type: TypeCreateSession, RoomCode: roomCode, QuizID: quizID, Questions: questions}
}

func NewStartQuestion(index int, durationMs int64) StartQuestion {
	return StartQuestion{Type: TypeStartQuestion, QuestionIndex: index, DurationMs: durationMs}
}

func NewNextQuestion(durationMs int64) NextQuestion {
	return NextQuestion{Type: TypeNextQuestion, DurationMs: durationMs}
}

func NewRevealAnswer(index *int) RevealAnswer {
	return RevealAnswer{Type: TypeRevealAnswer, QuestionIndex: index}
}

func NewEndSession() EndSession {
	return EndSession{Type: TypeEndSession}
}

func NewPlayerJoin(name string) PlayerJoin {
	return PlayerJoin{Type: TypePlayerJoin, Name: name}
}

func NewPlayerAnswer(questionIndex, optionIndex int) PlayerAnswer {
	return PlayerAnswer{Type: TypePlayerAnswer, QuestionIndex: questionIndex, OptionIndex: optionIndex}
}

// ErrUnknownType wraps the discriminator of a message this client does not
// understand. Unknown messages are skipped, not fatal.
type ErrUnknownType struct {
	TypeName string
}

func (e *ErrUnknownType) Error() string {
	return fmt.Sprintf("unknown message type %q", e.TypeName)
}

// Decode parses a raw inbound frame into its concrete message struct.
func Decode(raw []byte) (any, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	var msg any
	switch env.Type {
	case TypeStateSync:
		msg = &StateSync{}
	case TypeQuestionStarted:
		msg = &QuestionStarted{}
	case TypeAnswerRevealed:
		msg = &AnswerRevealed{}
	case TypePlayerJoined:
		msg = &PlayerJoined{}
	case TypePlayerLeft:
		msg = &PlayerLeft{}
	case TypeSessionEnded, TypeQuizEnded:
		msg = &SessionEnded{}
	case TypeAnswerAck:
		msg = &AnswerAck{}
	case TypeError:
		msg = &ErrorMessage{}
	default:
		return nil, &ErrUnknownType{TypeName: env.Type}
	}
	if err := json.Unmarshal(raw, msg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	return msg, nil
}
