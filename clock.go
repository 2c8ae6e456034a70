package voxterra

import "time"

// Clock abstracts wall time so garbage-collect horizons and background
// transitions are deterministic under test.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ManualClock is a test clock advanced by hand.
type ManualClock struct {
	current time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{current: start}
}

func (c *ManualClock) Now() time.Time { return c.current }

func (c *ManualClock) Advance(d time.Duration) {
	c.current = c.current.Add(d)
}
