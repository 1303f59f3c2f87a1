package pack

import (
	"sync"
	"time"
)

// Clock provides time operations. This interface enables deterministic testing.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the actual system time.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// StepClock implements Clock by advancing a fixed amount on every call, so
// each measured duration equals Step.
type StepClock struct {
	mu   sync.Mutex
	Next time.Time
	Step time.Duration
}

// Now returns the current fake time and advances it.
func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.Next
	c.Next = c.Next.Add(c.Step)
	return t
}
