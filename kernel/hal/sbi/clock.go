package sbi

import "sync/atomic"

// Clock is the machine timer (mtime). It is shared by every hart and only
// moves forward.
type Clock struct {
	ticks atomic.Uint64
}

// Now returns the current time in timer ticks.
func (c *Clock) Now() uint64 { return c.ticks.Load() }

// Advance moves the clock forward by n ticks and returns the new time.
func (c *Clock) Advance(n uint64) uint64 { return c.ticks.Add(n) }
