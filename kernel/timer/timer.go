// Package timer converts machine timer ticks to wall time and arms the
// scheduler tick.
package timer

// MsecPerSec is the number of milliseconds in a second.
const MsecPerSec = 1000

// Clock reports the machine time in ticks.
type Clock interface {
	Now() uint64
}

// Setter programs the timer interrupt of a hart.
type Setter interface {
	SetTimer(hart int, stime uint64)
}

// Timer is the kernel view of the machine timer.
type Timer struct {
	clock       Clock
	setter      Setter
	freq        uint64
	ticksPerSec uint64
}

// New returns a timer for a clock running at freq Hz that raises
// ticksPerSec scheduler ticks per second.
func New(clock Clock, setter Setter, freq, ticksPerSec uint64) *Timer {
	return &Timer{clock: clock, setter: setter, freq: freq, ticksPerSec: ticksPerSec}
}

// Time returns the current time in ticks.
func (t *Timer) Time() uint64 { return t.clock.Now() }

// TimeMs returns the current time in milliseconds.
func (t *Timer) TimeMs() uint64 {
	return t.clock.Now() / (t.freq / MsecPerSec)
}

// Slice returns the length of one scheduler tick in timer ticks.
func (t *Timer) Slice() uint64 { return t.freq / t.ticksPerSec }

// SetNextTrigger arms the next timer interrupt of the hart one scheduler
// tick from now.
func (t *Timer) SetNextTrigger(hart int) {
	t.setter.SetTimer(hart, t.Time()+t.Slice())
}
