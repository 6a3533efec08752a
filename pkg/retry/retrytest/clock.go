// Package retrytest provides a deterministic clock for tests of scheduled operations.
package retrytest

import (
	"sync"
	"time"

	"github.com/speedrun-hq/settlement-tracker/pkg/retry"
)

// FakeClock is a retry.Clock whose timers fire immediately after advancing the clock by
// their duration. After Blocking, timers never fire, which lets tests cancel mid-sleep.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
	block  bool

	// Started receives the duration of every timer created, if non-nil
	Started chan time.Duration
}

var _ retry.Clock = (*FakeClock)(nil)

// NewFakeClock creates a fake clock starting at a fixed instant
func NewFakeClock() *FakeClock {
	return &FakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// Blocking makes subsequent timers never fire
func (c *FakeClock) Blocking() *FakeClock {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.block = true
	return c
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward without a timer, e.g. to simulate a slow probe
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *FakeClock) NewTimer(d time.Duration) retry.Timer {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	block := c.block
	if !block {
		c.now = c.now.Add(d)
	}
	now := c.now
	c.mu.Unlock()

	if c.Started != nil {
		c.Started <- d
	}

	ch := make(chan time.Time, 1)
	if !block {
		ch <- now
	}
	return &fakeTimer{ch: ch}
}

// Sleeps returns the durations of all timers created so far
func (c *FakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.sleeps))
	copy(out, c.sleeps)
	return out
}

type fakeTimer struct {
	ch chan time.Time
}

func (t *fakeTimer) C() <-chan time.Time { return t.ch }
func (t *fakeTimer) Stop() bool          { return true }
