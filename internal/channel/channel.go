// Package channel wraps a websocket connection to the session
// coordinator: typed inbound messages out, fire-and-forget sends in.
package channel

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"quiz-session-client/internal/domain"
	"quiz-session-client/internal/protocol"
)

// Role identifies which side of the session a connection represents.
type Role string

const (
	RoleHost   Role = "host"
	RolePlayer Role = "player"
)

// DialOptions describe one connection to the coordinator.
type DialOptions struct {
	// Endpoint is the websocket URL of the coordinator, e.g.
	// ws://localhost:8000/ws.
	Endpoint string
	Role     Role
	RoomCode string
	// Name and PlayerID identify a player; both are ignored for hosts.
	// PlayerID lets a reconnecting player reclaim its identity.
	Name     string
	PlayerID string
	Logger   zerolog.Logger
}

// Channel is a persistent, ordered, bidirectional message connection.
// Inbound frames are decoded into protocol structs and delivered on
// Messages in arrival order; unknown message types are logged and
// skipped. Sends go through a single writer pump so Send never blocks on
// the peer.
type Channel struct {
	conn *websocket.Conn
	log  zerolog.Logger

	outbound chan any
	inbound  chan any
	done     chan struct{}

	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

// Dial connects to the coordinator. This is the only point where the
// channel may suspend the caller.
func Dial(ctx context.Context, opts DialOptions) (*Channel, error) {
	u, err := buildURL(opts)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("dial session channel: %w", err)
	}

	c := &Channel{
		conn:     conn,
		log:      opts.Logger.With().Str("room", opts.RoomCode).Str("role", string(opts.Role)).Logger(),
		outbound: make(chan any, 16),
		inbound:  make(chan any, 16),
		done:     make(chan struct{}),
	}
	go c.readPump()
	go c.writePump()
	return c, nil
}

func buildURL(opts DialOptions) (string, error) {
	u, err := url.Parse(opts.Endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("role", string(opts.Role))
	q.Set("roomCode", opts.RoomCode)
	if opts.Name != "" {
		q.Set("name", opts.Name)
	}
	if opts.PlayerID != "" {
		q.Set("playerId", opts.PlayerID)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Send enqueues an outbound message, fire and forget. Protocol-level
// acknowledgment, where it exists, arrives as a distinct inbound message.
func (c *Channel) Send(msg any) error {
	select {
	case <-c.done:
		return domain.ErrChannelClosed
	default:
	}
	select {
	case c.outbound <- msg:
		return nil
	case <-c.done:
		return domain.ErrChannelClosed
	}
}

// Messages returns the stream of decoded inbound messages. The channel is
// closed when the connection terminates.
func (c *Channel) Messages() <-chan any {
	return c.inbound
}

// Done is closed when the connection has terminated for any reason.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Err reports why the channel terminated; nil for a clean local Close.
func (c *Channel) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Close tears the connection down. Safe to call multiple times.
func (c *Channel) Close() error {
	c.shutdown(nil)
	return nil
}

func (c *Channel) shutdown(cause error) {
	c.closeOnce.Do(func() {
		c.errMu.Lock()
		c.err = cause
		c.errMu.Unlock()
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *Channel) readPump() {
	defer close(c.inbound)
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if !isExpectedClose(err) {
				c.log.Warn().Err(err).Msg("session channel read failed")
			}
			c.shutdown(err)
			return
		}

		msg, err := protocol.Decode(raw)
		if err != nil {
			var unknown *protocol.ErrUnknownType
			if errors.As(err, &unknown) {
				c.log.Debug().Str("type", unknown.TypeName).Msg("skipping unknown message type")
			} else {
				c.log.Warn().Err(err).Msg("dropping undecodable frame")
			}
			continue
		}

		select {
		case c.inbound <- msg:
		case <-c.done:
			return
		}
	}
}

func (c *Channel) writePump() {
	for {
		select {
		case msg := <-c.outbound:
			if err := c.conn.WriteJSON(msg); err != nil {
				c.log.Warn().Err(err).Msg("session channel write failed")
				c.shutdown(err)
				return
			}
		case <-c.done:
			return
		}
	}
}

func isExpectedClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
