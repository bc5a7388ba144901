package junction

import (
	"sync"
	"time"
)

// Clock supplies timestamps to the controller. Implementations must return values whose
// differences follow a monotonic clock.
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now, which carries a monotonic reading used by Sub
type SystemClock struct{}

// Now returns the current time
func (SystemClock) Now() time.Time {
	return time.Now()
}

// ManualClock is a clock that only moves when told to
type ManualClock struct {
	mutex sync.Mutex
	now   time.Time
}

// NewManualClock creates a manual clock starting at start
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the clock's current time
func (c *ManualClock) Now() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.now
}

// Advance moves the clock forward and returns the new time
func (c *ManualClock) Advance(d time.Duration) time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.now = c.now.Add(d)
	return c.now
}
