package clock

import (
	"sync"
	"time"
)

// FakeClock is a settable Clock for tests; safe for use from the scheduler goroutine.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t.UTC()}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t.UTC()
	c.mu.Unlock()
}

func (c *FakeClock) AdvanceDays(days int) {
	c.mu.Lock()
	c.now = c.now.AddDate(0, 0, days)
	c.mu.Unlock()
}
