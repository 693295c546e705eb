package domain

// Phase is the coarse stage of a live quiz session as seen by one party.
// LOBBY, QUESTION_ACTIVE, REVEAL and ENDED come from the session
// coordinator; CONNECTING, DISCONNECTED and ERROR are local to the client.
type Phase string

const (
	PhaseConnecting     Phase = "CONNECTING"
	PhaseLobby          Phase = "LOBBY"
	PhaseQuestionActive Phase = "QUESTION_ACTIVE"
	PhaseReveal         Phase = "REVEAL"
	PhaseEnded          Phase = "ENDED"
	PhaseDisconnected   Phase = "DISCONNECTED"
	PhaseError          Phase = "ERROR"
)

// Terminal reports whether no further protocol transitions are accepted.
func (p Phase) Terminal() bool {
	return p == PhaseEnded
}

// ParsePhase maps a server phase string onto a known Phase, defaulting to
// LOBBY for anything unrecognized (the coordinator only ever sends the
// four server-side phases).
func ParsePhase(raw string) Phase {
	switch Phase(raw) {
	case PhaseLobby, PhaseQuestionActive, PhaseReveal, PhaseEnded:
		return Phase(raw)
	default:
		return PhaseLobby
	}
}

// Question is the client-visible view of one quiz question. Answers are
// ordered; their index is the option index used on the wire.
// CorrectAnswer is only populated on the host side or after reveal.
type Question struct {
	ID            string   `json:"id"`
	Text          string   `json:"question_text"`
	Answers       []string `json:"answers"`
	CorrectAnswer *int     `json:"correct_answer,omitempty"`
	Position      int      `json:"position"`
}

// ScoreboardEntry is one participant on the scoreboard. PlayerID is unique
// within a session; Name is not. Entries without a PlayerID are keyed by
// Name until an id becomes known.
type ScoreboardEntry struct {
	PlayerID string `json:"playerId,omitempty"`
	Name     string `json:"name"`
	Score    int    `json:"score"`
}

// PendingAnswer is the locally persisted record of a participant's choice
// for the current question, kept so a reload does not resubmit.
type PendingAnswer struct {
	QuestionIndex int `json:"questionIndex"`
	SelectedIndex int `json:"selectedIndex"`
}

// Quiz is a quiz definition as fetched from the content collaborator.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}
