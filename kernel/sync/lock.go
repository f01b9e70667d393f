// Package sync provides the kernel's exclusive-access primitives: a lock that
// harts hand over while they execute kernel code and a borrow cell that
// detects re-entrant access to shared kernel state.
package sync

import "runtime"

var (
	// abortFn is called by a waiter whose lock was abandoned because the
	// machine halted. It must not return.
	abortFn = runtime.Goexit
)

// Lock is a mutual exclusion lock that is not bound to the goroutine that
// acquired it: a hart acquires it before running kernel code and a different
// kernel context of the same hart may release it later.
type Lock struct {
	state chan struct{}
	abort <-chan struct{}
}

// NewLock returns an unlocked Lock. Waiters blocked in Acquire give up and
// call abortFn once the abort channel is closed.
func NewLock(abort <-chan struct{}) *Lock {
	return &Lock{
		state: make(chan struct{}, 1),
		abort: abort,
	}
}

// Acquire blocks until the lock can be acquired by the calling context.
// Any attempt to re-acquire a lock already held by the same context will
// cause a deadlock.
func (l *Lock) Acquire() {
	select {
	case l.state <- struct{}{}:
	case <-l.abort:
		abortFn()
	}
}

// TryToAcquire attempts to acquire the lock and returns true if the lock could
// be acquired or false otherwise.
func (l *Lock) TryToAcquire() bool {
	select {
	case l.state <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release relinquishes a held lock allowing other contexts to acquire it.
// Calling Release while the lock is free has no effect.
func (l *Lock) Release() {
	select {
	case <-l.state:
	default:
	}
}
