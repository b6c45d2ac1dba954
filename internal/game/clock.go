package game

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultClockInterval is how often the local time is refreshed.
const DefaultClockInterval = time.Second

// Clock periodically refreshes the local time of one country. At most one
// refresh loop runs at a time: Restart tears the previous loop down and waits
// for it to exit before starting the next.
type Clock struct {
	remote   Remote
	interval time.Duration
	log      zerolog.Logger

	run    sync.Mutex // serializes Restart/Stop
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.RWMutex // guards the fields below
	country string
	display string
}

// NewClock builds a stopped clock. interval <= 0 falls back to DefaultClockInterval.
func NewClock(remote Remote, interval time.Duration, logger zerolog.Logger) *Clock {
	if interval <= 0 {
		interval = DefaultClockInterval
	}
	return &Clock{remote: remote, interval: interval, log: logger}
}

// Restart stops any running loop and starts a new one for country.
func (c *Clock) Restart(country string) {
	c.run.Lock()
	defer c.run.Unlock()
	c.stopLocked()

	c.mu.Lock()
	c.country = country
	c.display = ""
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.cancel, c.done = cancel, done
	go c.loop(ctx, country, done)
}

// Stop halts the running loop, if any. Safe to call repeatedly.
func (c *Clock) Stop() {
	c.run.Lock()
	defer c.run.Unlock()
	c.stopLocked()
}

func (c *Clock) stopLocked() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
	c.cancel, c.done = nil, nil
}

// Running reports whether a refresh loop is active.
func (c *Clock) Running() bool {
	c.run.Lock()
	defer c.run.Unlock()
	return c.cancel != nil
}

// Display returns the last rendered time ("15:04:05" style) or Unavailable.
func (c *Clock) Display() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.display
}

// Country returns the country the clock currently follows.
func (c *Clock) Country() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.country
}

func (c *Clock) loop(ctx context.Context, country string, done chan struct{}) {
	defer close(done)
	t := time.NewTicker(c.interval)
	defer t.Stop()

	c.refresh(ctx, country)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.refresh(ctx, country)
		}
	}
}

func (c *Clock) refresh(ctx context.Context, country string) {
	callCtx, cancel := context.WithTimeout(ctx, c.interval)
	defer cancel()

	text := Unavailable
	lt, err := c.remote.LocalTime(callCtx, country)
	if err != nil {
		c.log.Debug().Err(err).Str("country", country).Msg("local time unavailable")
	} else {
		text = fmt.Sprintf("%s:%02d", lt.Time, lt.Seconds)
	}

	// A cancelled loop must not overwrite what its successor shows.
	if ctx.Err() != nil {
		return
	}
	c.mu.Lock()
	c.display = text
	c.mu.Unlock()
}
