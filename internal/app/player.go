package app

import (
	"context"

	"quiz-session-client/internal/channel"
	"quiz-session-client/internal/protocol"
)

// Player is a participant answering questions.
type Player struct {
	*Client
}

// ConnectPlayer joins a session as a participant. The coordinator answers
// with a state_sync snapshot that seeds all local state, including the
// assigned player identity.
func ConnectPlayer(ctx context.Context, opts Options) (*Player, error) {
	client, err := connect(ctx, channel.RolePlayer, opts)
	if err != nil {
		return nil, err
	}
	return &Player{Client: client}, nil
}

// Answer submits the choice for the active question: at most one per
// question, only while the window is open, persisted locally before the
// fire-and-forget send.
func (p *Player) Answer(ctx context.Context, optionIndex int) error {
	return p.machine.SubmitAnswer(ctx, optionIndex)
}

// Join sends the legacy explicit join message. Joining normally happens
// through the connection query parameters; this exists for coordinators
// that still expect it.
func (p *Player) Join(name string) error {
	return p.ch.Send(protocol.NewPlayerJoin(name))
}
