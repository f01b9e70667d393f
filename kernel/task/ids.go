package task

import (
	"fmt"
	"slices"

	"github.com/Poseidon-fan/Artemos/kernel"
)

// ErrIDsExhausted is returned when an allocator created with a limit has
// handed out every id.
var ErrIDsExhausted = &kernel.Error{Module: "task", Message: "id space exhausted"}

// RecycleAllocator hands out small non-negative ids. Released ids are reused,
// most recent first, before the watermark grows.
type RecycleAllocator struct {
	current  int
	recycled []int
	limit    int
}

// NewRecycleAllocator returns an allocator that hands out at most limit ids
// at a time. A zero limit means no limit.
func NewRecycleAllocator(limit int) *RecycleAllocator {
	return &RecycleAllocator{limit: limit}
}

// Alloc returns an unused id.
func (a *RecycleAllocator) Alloc() (int, *kernel.Error) {
	if n := len(a.recycled); n > 0 {
		id := a.recycled[n-1]
		a.recycled = a.recycled[:n-1]
		return id, nil
	}

	if a.limit > 0 && a.current >= a.limit {
		return 0, ErrIDsExhausted
	}

	a.current++
	return a.current - 1, nil
}

// Dealloc returns id to the allocator. Releasing an id that is not in use
// is a kernel bug and panics.
func (a *RecycleAllocator) Dealloc(id int) {
	if id < 0 || id >= a.current {
		panic(&kernel.Error{Module: "task", Message: fmt.Sprintf("id %d has never been allocated", id)})
	}
	if slices.Contains(a.recycled, id) {
		panic(&kernel.Error{Module: "task", Message: fmt.Sprintf("id %d has been deallocated", id)})
	}
	a.recycled = append(a.recycled, id)
}

// InUse returns the number of ids currently handed out.
func (a *RecycleAllocator) InUse() int {
	return a.current - len(a.recycled)
}
