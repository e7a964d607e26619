package engine

import "sync/atomic"

// Clock hands out strictly increasing int64 stamps.
//
// A dataset draws a cache generation from it for every evaluation it
// starts, and the journal recorder draws an event sequence number. Order
// between stamps is all that matters; they carry no wall time. Safe for
// concurrent use.
type Clock struct {
	last atomic.Int64
}

// NewClock returns a clock whose first stamp is 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt returns a clock whose first stamp is start+1, for tests that
// want recognizable values.
func NewClockAt(start int64) *Clock {
	c := new(Clock)
	c.last.Store(start)
	return c
}

// Next advances the clock and returns the new stamp.
func (c *Clock) Next() int64 { return c.last.Add(1) }

// Current returns the most recent stamp, or the start value if none was
// drawn yet.
func (c *Clock) Current() int64 { return c.last.Load() }
