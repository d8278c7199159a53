// Package clock provides the time source used by components that evaluate
// time-dependent state. Production code uses System; tests use Fixed.
package clock

import (
	"sync"
	"time"
)

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// Func adapts a plain function to the Clock interface.
type Func func() time.Time

// Now implements Clock.
func (f Func) Now() time.Time {
	return f()
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// System returns a Clock backed by the wall clock, in UTC.
func System() Clock {
	return systemClock{}
}

// FixedClock is a manually controlled Clock for tests.
type FixedClock struct {
	mu  sync.RWMutex
	now time.Time
}

// Fixed returns a FixedClock frozen at t.
func Fixed(t time.Time) *FixedClock {
	return &FixedClock{now: t}
}

// Now implements Clock.
func (c *FixedClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Set moves the clock to t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
