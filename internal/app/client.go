// Package app wires the session channel, the client-side state machine
// and the collaborator contracts into host and player clients.
package app

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"quiz-session-client/internal/channel"
	"quiz-session-client/internal/domain"
	"quiz-session-client/internal/protocol"
	"quiz-session-client/internal/session"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// RoomResolver resolves a short room code to a quiz/session identifier.
type RoomResolver interface {
	Resolve(ctx context.Context, roomCode string) (string, error)
}

// Options configure one connected party.
type Options struct {
	Endpoint string
	RoomCode string
	// Name and PlayerID identify a player; PlayerID reclaims an earlier
	// identity on reconnect.
	Name     string
	PlayerID string
	// Store persists the pending-answer record across reloads. Required
	// for players; hosts may pass a memory store.
	Store session.AnswerStore
	// Rooms, when set, validates the room code before dialing so a
	// mistyped or expired code fails fast with domain.ErrRoomNotFound.
	Rooms RoomResolver
	// Clock defaults to the real clock; tests inject a fake.
	Clock        clockwork.Clock
	TickInterval time.Duration
	Logger       zerolog.Logger
}

// Client is one connected party: a single sequential consumer applying
// inbound messages to the state machine in arrival order.
type Client struct {
	ch      *channel.Channel
	machine *session.Machine
	log     zerolog.Logger

	done  chan struct{}
	errMu sync.Mutex
	err   error
}

func connect(ctx context.Context, role channel.Role, opts Options) (*Client, error) {
	if opts.Rooms != nil {
		if _, err := opts.Rooms.Resolve(ctx, opts.RoomCode); err != nil {
			return nil, err
		}
	}

	ch, err := channel.Dial(ctx, channel.DialOptions{
		Endpoint: opts.Endpoint,
		Role:     role,
		RoomCode: opts.RoomCode,
		Name:     opts.Name,
		PlayerID: opts.PlayerID,
		Logger:   opts.Logger,
	})
	if err != nil {
		return nil, err
	}

	c := &Client{
		ch: ch,
		machine: session.NewMachine(session.Config{
			RoomCode:     opts.RoomCode,
			Clock:        opts.Clock,
			TickInterval: opts.TickInterval,
			Store:        opts.Store,
			Send:         ch.Send,
		}),
		log:  opts.Logger.With().Str("room", opts.RoomCode).Logger(),
		done: make(chan struct{}),
	}
	go c.run()
	return c, nil
}

// run is the single message-handling loop: each inbound message is fully
// applied before the next is read, so session state is never mutated by
// two messages at once.
func (c *Client) run() {
	ctx := context.Background()
	for msg := range c.ch.Messages() {
		switch msg := msg.(type) {
		case *protocol.AnswerAck:
			// Informational only; the tracker already treats the local
			// record as final.
			c.log.Debug().Bool("ok", msg.OK).Msg("answer acknowledged")
		case *protocol.ErrorMessage:
			c.log.Warn().Str("message", msg.Message).Msg("protocol error")
			if sessionGone(msg.Message) {
				c.setErr(domain.ErrRoomNotFound)
			}
			c.machine.Apply(ctx, msg)
		default:
			c.machine.Apply(ctx, msg)
		}
	}
	if err := c.ch.Err(); err != nil {
		c.setErr(err)
	}
	c.machine.ChannelClosed()
	close(c.done)
}

// sessionGone reports whether a peer error means the room or session no
// longer exists, a terminal condition the caller handles by navigating
// away.
func sessionGone(message string) bool {
	msg := strings.ToLower(message)
	for _, marker := range []string{"not found", "does not exist", "expired", "already ended"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func (c *Client) setErr(err error) {
	c.errMu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.errMu.Unlock()
}

// Subscribe returns a stream of state updates seeded with the current
// state; host and player views consume the same contract.
func (c *Client) Subscribe() (<-chan session.State, func()) {
	return c.machine.Subscribe()
}

// Snapshot returns the current observable session state.
func (c *Client) Snapshot() session.State {
	return c.machine.Snapshot()
}

// Done is closed once the connection has terminated and the final state
// transition has been applied.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err reports the terminal failure, if any. domain.ErrRoomNotFound means
// the session is gone and a reconnect is pointless.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Close tears down the channel. Reconnection is caller-driven: a new
// client starts a fresh CONNECTING lifecycle and recovers from the next
// snapshot.
func (c *Client) Close() error {
	return c.ch.Close()
}
