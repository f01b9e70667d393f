package sync

import (
	"sync/atomic"

	"github.com/Poseidon-fan/Artemos/kernel"
)

var errAlreadyBorrowed = &kernel.Error{Module: "sync", Message: "already borrowed"}

// Cell grants exclusive access to a value. Unlike a mutex it never waits: a
// second Borrow while the value is out is a kernel bug and panics. Callers
// must return the value before any operation that may switch to another
// kernel context.
type Cell[T any] struct {
	borrowed atomic.Bool
	value    T
}

// NewCell returns a cell holding v.
func NewCell[T any](v T) *Cell[T] {
	return &Cell[T]{value: v}
}

// Borrow hands out exclusive access to the value until Release is called.
func (c *Cell[T]) Borrow() *T {
	if !c.borrowed.CompareAndSwap(false, true) {
		panic(errAlreadyBorrowed)
	}
	return &c.value
}

// Release returns the value borrowed by Borrow.
func (c *Cell[T]) Release() {
	c.borrowed.Store(false)
}

// With runs fn with exclusive access to the value.
func (c *Cell[T]) With(fn func(*T)) {
	v := c.Borrow()
	defer c.Release()
	fn(v)
}

// Borrowed returns true while the value is out.
func (c *Cell[T]) Borrowed() bool {
	return c.borrowed.Load()
}
