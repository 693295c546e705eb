package session

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Countdown tracks the remaining answer window for one active question.
// Remaining time is always recomputed from the wall clock against the
// absolute deadline supplied by the coordinator, never decremented by a
// fixed step, so a consumer that missed ticks still reads the correct
// value. At most one countdown runs at a time; Start replaces any
// previous one.
type Countdown struct {
	clock    clockwork.Clock
	interval time.Duration

	mu       sync.Mutex
	deadline time.Time
	active   bool
	stop     chan struct{}
}

// NewCountdown builds a countdown ticking at the given cadence. The
// cadence is a presentation choice; correctness of Remaining and of the
// terminal zero event does not depend on it.
func NewCountdown(clock clockwork.Clock, interval time.Duration) *Countdown {
	if interval <= 0 {
		interval = time.Second
	}
	return &Countdown{clock: clock, interval: interval}
}

// Start arms the countdown for the window [startedAt, startedAt+duration)
// and returns the remaining whole seconds at start. Any previous countdown
// is stopped first. Callbacks fire only from the countdown goroutine,
// never synchronously from Start; onZero fires at most once per
// activation. A window that has already closed returns 0 and spawns no
// goroutine, leaving the terminal event to the caller.
func (c *Countdown) Start(startedAt time.Time, duration time.Duration, onTick func(remaining int), onZero func()) int {
	c.Stop()

	c.mu.Lock()
	c.deadline = startedAt.Add(duration)
	remaining := remainingSeconds(c.deadline, c.clock.Now())
	if remaining <= 0 {
		c.mu.Unlock()
		return 0
	}
	c.active = true
	stop := make(chan struct{})
	c.stop = stop
	c.mu.Unlock()

	go c.run(stop, onTick, onZero)
	return remaining
}

func (c *Countdown) run(stop chan struct{}, onTick func(int), onZero func()) {
	ticker := c.clock.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			c.mu.Lock()
			if c.stop != stop {
				// Stopped or replaced while this tick was in flight; the
				// activation no longer owns any callbacks.
				c.mu.Unlock()
				return
			}
			remaining := remainingSeconds(c.deadline, c.clock.Now())
			if remaining <= 0 {
				c.active = false
				c.stop = nil
				c.mu.Unlock()
				if onZero != nil {
					onZero()
				}
				return
			}
			c.mu.Unlock()
			if onTick != nil {
				onTick(remaining)
			}
		}
	}
}

// Stop cancels the countdown synchronously. Remaining reads 0 afterwards
// and no callback from the stopped activation fires anymore.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	c.active = false
}

// Remaining reports the whole seconds left in the current window,
// recomputed from the clock on every call.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return 0
	}
	return remainingSeconds(c.deadline, c.clock.Now())
}

func remainingSeconds(deadline, now time.Time) int {
	d := deadline.Sub(now)
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
