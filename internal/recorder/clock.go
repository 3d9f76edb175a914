package recorder

import (
	"sync"
	"time"
)

// Clock measures elapsed recording time in whole seconds, excluding paused
// spans. Segment timestamps are derived from it, so it advances only while
// recording.
type Clock struct {
	mu          sync.Mutex
	now         func() time.Time
	startedAt   time.Time
	accumulated time.Duration
	running     bool
}

// NewClock creates a stopped clock using wall time.
func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// NewClockWithNow creates a clock with an injectable time source for tests.
func NewClockWithNow(now func() time.Time) *Clock {
	return &Clock{now: now}
}

// Start resets accumulated time and begins measuring.
func (c *Clock) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accumulated = 0
	c.startedAt = c.now()
	c.running = true
}

// Pause stops accumulation, keeping elapsed time.
func (c *Clock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.accumulated += c.now().Sub(c.startedAt)
	c.running = false
}

// Resume continues accumulation after a pause.
func (c *Clock) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.startedAt = c.now()
	c.running = true
}

// Stop freezes the clock; ElapsedSeconds keeps returning the final value.
func (c *Clock) Stop() {
	c.Pause()
}

// ElapsedSeconds returns whole elapsed recording seconds.
func (c *Clock) ElapsedSeconds() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := c.accumulated
	if c.running {
		elapsed += c.now().Sub(c.startedAt)
	}
	return int64(elapsed / time.Second)
}
