package sbi

import (
	"context"
	"io"
	"math"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/Poseidon-fan/Artemos/kernel"
)

// Status is the final state of a halted machine.
type Status uint8

// The possible machine states.
const (
	StatusRunning Status = iota
	StatusShutdown
	StatusFailure
	StatusReboot
	StatusPanic
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusShutdown:
		return "shutdown"
	case StatusFailure:
		return "shutdown (failure)"
	case StatusReboot:
		return "reboot"
	case StatusPanic:
		return "kernel panic"
	case StatusCancelled:
		return "cancelled"
	}
	return "unknown"
}

// EntryFunc is the code a hart runs once it is started.
type EntryFunc func(hart int, opaque uint64)

const consoleBufferSize = 4096

// Firmware is a hosted implementation of Platform. It owns the machine timer,
// the console and the hart state. Every hart runs on its own goroutine;
// calls that halt the machine stop the calling goroutine and make all the
// others stop at their next halt check.
type Firmware struct {
	Clock Clock

	outMu sync.Mutex
	out   io.Writer
	input chan byte

	mtimecmp []atomic.Uint64

	mu      sync.Mutex
	entries map[uint64]EntryFunc
	started []bool
	harts   sync.WaitGroup

	haltOnce sync.Once
	halted   chan struct{}
	status   Status
}

var _ Platform = (*Firmware)(nil)

// NewFirmware returns the firmware of a machine with the given number of
// harts. Console input is read from in (which may be nil) and output goes to
// out.
func NewFirmware(harts int, in io.Reader, out io.Writer) *Firmware {
	fw := &Firmware{
		out:      out,
		input:    make(chan byte, consoleBufferSize),
		mtimecmp: make([]atomic.Uint64, harts),
		entries:  make(map[uint64]EntryFunc),
		started:  make([]bool, harts),
		halted:   make(chan struct{}),
	}
	for i := range fw.mtimecmp {
		fw.mtimecmp[i].Store(math.MaxUint64)
	}
	if in != nil {
		go fw.pumpInput(in)
	}
	return fw
}

func (fw *Firmware) pumpInput(in io.Reader) {
	var buf [1]byte
	for {
		if _, err := in.Read(buf[:]); err != nil {
			return
		}
		select {
		case fw.input <- buf[0]:
		case <-fw.halted:
			return
		}
	}
}

// Harts returns the number of harts of the machine.
func (fw *Firmware) Harts() int { return len(fw.started) }

// ConsolePutchar implements Platform. Output is dropped once the machine
// has halted.
func (fw *Firmware) ConsolePutchar(c byte) {
	select {
	case <-fw.halted:
		return
	default:
	}

	fw.outMu.Lock()
	_, _ = fw.out.Write([]byte{c})
	fw.outMu.Unlock()
}

// ConsoleGetchar implements Platform.
func (fw *Firmware) ConsoleGetchar() byte {
	select {
	case c := <-fw.input:
		return c
	default:
		return 0
	}
}

// Shutdown implements Platform.
func (fw *Firmware) Shutdown(failure bool) {
	if failure {
		fw.Halt(StatusFailure)
	} else {
		fw.Halt(StatusShutdown)
	}
	runtime.Goexit()
}

// Reboot implements Platform. The hosted machine does not restart; it halts
// with StatusReboot and leaves the restart to the caller of Wait.
func (fw *Firmware) Reboot() {
	fw.Halt(StatusReboot)
	runtime.Goexit()
}

// SetTimer implements Platform.
func (fw *Firmware) SetTimer(hart int, stime uint64) {
	fw.mtimecmp[hart].Store(stime)
}

// TimerPending returns true if the timer interrupt of the hart is due.
func (fw *Firmware) TimerPending(hart int) bool {
	return fw.Clock.Now() >= fw.mtimecmp[hart].Load()
}

// RegisterEntry makes fn executable at the physical address entry.
func (fw *Firmware) RegisterEntry(entry uint64, fn EntryFunc) {
	fw.mu.Lock()
	fw.entries[entry] = fn
	fw.mu.Unlock()
}

// StartHart implements Platform.
func (fw *Firmware) StartHart(hart int, entry, opaque uint64) *kernel.Error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if hart < 0 || hart >= len(fw.started) {
		return ErrInvalidParam
	}
	fn, ok := fw.entries[entry]
	if !ok {
		return ErrInvalidAddress
	}
	if fw.started[hart] {
		return ErrAlreadyAvailable
	}
	fw.started[hart] = true

	fw.harts.Add(1)
	go func() {
		defer fw.harts.Done()
		fn(hart, opaque)
	}()
	return nil
}

// Halt stops the machine with the given status. Only the first call has an
// effect; it returns false for the others.
func (fw *Firmware) Halt(s Status) bool {
	halted := false
	fw.haltOnce.Do(func() {
		fw.status = s
		close(fw.halted)
		halted = true
	})
	return halted
}

// Halted returns a channel that is closed once the machine halts.
func (fw *Firmware) Halted() <-chan struct{} { return fw.halted }

// Status returns the machine status.
func (fw *Firmware) Status() Status {
	select {
	case <-fw.halted:
		return fw.status
	default:
		return StatusRunning
	}
}

// Wait blocks until the machine halts or ctx is done, in which case the
// machine is halted with StatusCancelled. It returns once every started hart
// has stopped.
func (fw *Firmware) Wait(ctx context.Context) Status {
	select {
	case <-fw.halted:
	case <-ctx.Done():
		fw.Halt(StatusCancelled)
	}
	fw.harts.Wait()
	return fw.Status()
}
