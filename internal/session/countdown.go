package session

import (
	"context"
	"sync"
	"time"

	"github.com/stemsi/testlink-backend/internal/model"
)

// CountdownHooks receive countdown progress. Both are optional and are
// called from the countdown goroutine.
type CountdownHooks struct {
	// OnTick receives the remaining seconds on every tick.
	OnTick func(remaining int)
	// OnExpire receives the outcome of the single Timeout call. A non-nil
	// error means the write failed; the countdown does not retry.
	OnExpire func(res model.AttemptResult, submitted bool, err error)
}

// Countdown ticks once per interval and times the session out when no time
// is left.
type Countdown struct {
	sess     *Session
	persist  func(model.AttemptResult) error
	hooks    CountdownHooks
	interval time.Duration

	stop     chan struct{}
	stopOnce sync.Once
	finished chan struct{}
}

// NewCountdown prepares a one-second countdown for s. persist is the write
// used if the countdown triggers the submission.
func NewCountdown(s *Session, persist func(model.AttemptResult) error, hooks CountdownHooks) *Countdown {
	return &Countdown{
		sess:     s,
		persist:  persist,
		hooks:    hooks,
		interval: time.Second,
		stop:     make(chan struct{}),
		finished: make(chan struct{}),
	}
}

// Run blocks until the session completes, Stop is called, ctx is cancelled
// or the timeout fires.
func (c *Countdown) Run(ctx context.Context) {
	defer close(c.finished)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-c.sess.Done():
			return
		case <-ticker.C:
			if c.tick() {
				return
			}
		}
	}
}

// Start runs the countdown on its own goroutine.
func (c *Countdown) Start(ctx context.Context) *Countdown {
	go c.Run(ctx)
	return c
}

// tick reports whether the countdown is over.
func (c *Countdown) tick() bool {
	if c.sess.State() != InProgress {
		return true
	}

	remaining := c.sess.Remaining()
	if c.hooks.OnTick != nil {
		c.hooks.OnTick(max(0, remaining))
	}
	if remaining > 0 {
		return false
	}

	res, submitted, err := c.sess.Timeout(c.persist)
	if c.hooks.OnExpire != nil {
		c.hooks.OnExpire(res, submitted, err)
	}
	return true
}

// Stop ends the countdown without submitting. Safe to call more than once.
func (c *Countdown) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Finished is closed when Run returns.
func (c *Countdown) Finished() <-chan struct{} { return c.finished }
