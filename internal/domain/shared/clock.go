package shared

import (
	"sync"
	"time"
)

// Clock supplies the current time. Reconcilers and state transitions take it as a
// dependency instead of calling time.Now directly.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC
type SystemClock struct{}

// Now implements Clock
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// FixedClock returns a settable instant. Used by tests and replay tooling.
type FixedClock struct {
	mu sync.Mutex
	at time.Time
}

// NewFixedClock creates a FixedClock at the given instant
func NewFixedClock(at time.Time) *FixedClock {
	return &FixedClock{at: at}
}

// Now implements Clock
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at
}

// Advance moves the clock forward by d
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.at = c.at.Add(d)
}
