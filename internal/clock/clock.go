// Package clock tracks elapsed wall time against a configured test duration.
package clock

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock answers whether a run should keep starting iterations.
// The zero duration is valid and means no iteration runs.
type Clock struct {
	duration time.Duration
	source   clockwork.Clock

	once    sync.Once
	mu      sync.RWMutex
	started time.Time
	done    chan struct{}
}

// New returns a Clock for duration. A nil source uses the real wall clock.
func New(duration time.Duration, source clockwork.Clock) *Clock {
	if source == nil {
		source = clockwork.NewRealClock()
	}
	if duration < 0 {
		duration = 0
	}
	return &Clock{
		duration: duration,
		source:   source,
		done:     make(chan struct{}),
	}
}

// ShouldContinue reports whether elapsed is still inside the test duration.
func (c *Clock) ShouldContinue(elapsed time.Duration) bool {
	return elapsed < c.duration
}

// Start pins the start instant and arms Done. Calling it again has no effect.
func (c *Clock) Start() {
	c.once.Do(func() {
		c.mu.Lock()
		c.started = c.source.Now()
		c.mu.Unlock()

		if c.duration == 0 {
			close(c.done)
			return
		}
		timer := c.source.NewTimer(c.duration)
		go func() {
			<-timer.Chan()
			close(c.done)
		}()
	})
}

// Elapsed returns the time since Start, or zero before Start.
func (c *Clock) Elapsed() time.Duration {
	c.mu.RLock()
	started := c.started
	c.mu.RUnlock()
	if started.IsZero() {
		return 0
	}
	return c.source.Since(started)
}

// Continue is ShouldContinue(Elapsed()).
func (c *Clock) Continue() bool {
	return c.ShouldContinue(c.Elapsed())
}

// Remaining returns how much of the duration is left, never negative.
func (c *Clock) Remaining() time.Duration {
	left := c.duration - c.Elapsed()
	if left < 0 {
		return 0
	}
	return left
}

// Duration returns the configured test duration.
func (c *Clock) Duration() time.Duration {
	return c.duration
}

// Done is closed once the duration has elapsed after Start.
func (c *Clock) Done() <-chan struct{} {
	return c.done
}

// Source exposes the time source so workers pace on the same clock.
func (c *Clock) Source() clockwork.Clock {
	return c.source
}
