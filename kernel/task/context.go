package task

import (
	"runtime"

	"github.com/Poseidon-fan/Artemos/kernel"
	"github.com/Poseidon-fan/Artemos/kernel/kfmt"
	"github.com/Poseidon-fan/Artemos/kernel/mm"
)

var (
	// exitFn ends the calling kernel context. It must not return.
	exitFn = runtime.Goexit

	// panicFn receives panics that escape a kernel context.
	panicFn = kfmt.Panic

	errNoContext = &kernel.Error{Module: "task", Message: "switch to a context that was never initialized"}
)

// TaskContext holds what a suspended kernel context needs to resume: the
// return address, its kernel stack pointer and the callee-saved registers
// s0..s11.
type TaskContext struct {
	RA uint64
	SP uint64
	S  [12]uint64

	co *coroutine
}

// coroutine is the goroutine that backs a kernel context.
type coroutine struct {
	wake    chan struct{}
	entry   func()
	started bool
}

func newCoroutine(entry func(), started bool) *coroutine {
	return &coroutine{wake: make(chan struct{}, 1), entry: entry, started: started}
}

// GotoTrapReturn returns the context of a thread that has never run. The
// first switch into it starts entry, which takes the place of the trap
// return routine, on the kernel stack whose top is kstackTop.
func GotoTrapReturn(kstackTop mm.VirtAddr, entry func()) TaskContext {
	return TaskContext{SP: uint64(kstackTop), co: newCoroutine(entry, false)}
}

// IdleContext returns the context of a hart's scheduler loop. The loop is
// already running on the calling goroutine.
func IdleContext() TaskContext {
	return TaskContext{co: newCoroutine(nil, true)}
}

// Switcher transfers control between kernel contexts.
type Switcher interface {
	// Switch saves the running context into from and resumes to. It
	// returns once some hart switches back to from. A nil from discards
	// the running context; Switch then never returns.
	Switch(from, to *TaskContext)
}

// GoroutineSwitcher backs every kernel context with a goroutine and hands a
// single run token between them, so exactly one context per hart runs at
// any time.
type GoroutineSwitcher struct {
	halted <-chan struct{}
	exit   func()
}

// NewGoroutineSwitcher returns a switcher whose parked contexts exit once
// halted is closed.
func NewGoroutineSwitcher(halted <-chan struct{}) *GoroutineSwitcher {
	return &GoroutineSwitcher{halted: halted, exit: exitFn}
}

// Switch implements Switcher.
func (s *GoroutineSwitcher) Switch(from, to *TaskContext) {
	if to == nil || to.co == nil || (from != nil && from.co == nil) {
		panic(errNoContext)
	}

	if to.co.started {
		to.co.wake <- struct{}{}
	} else {
		to.co.started = true
		go s.run(to.co)
	}

	if from == nil {
		s.exit()
		return
	}

	select {
	case <-from.co.wake:
	case <-s.halted:
		s.exit()
	}
}

func (s *GoroutineSwitcher) run(co *coroutine) {
	defer func() {
		if err := recover(); err != nil {
			panicFn(err)
		}
	}()
	co.entry()
}
