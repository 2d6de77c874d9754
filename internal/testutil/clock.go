// Package testutil provides the deterministic clock and fake remote
// backend shared by engine, media, and reconciliation tests.
package testutil

import (
	"sync"
	"time"
)

// ManualClock is a thread-safe clock that only moves when told to.
// Tests inject its Now method wherever the production code takes a
// now-func, so localCreatedAt values and snapshot timestamps are
// reproducible.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock creates a clock frozen at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the current frozen instant.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Tick advances the clock by one second and returns the new instant.
// Handy for giving successive operations distinct creation timestamps.
func (c *ManualClock) Tick() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}
