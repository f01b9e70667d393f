// Package pmm implements the physical frame allocator.
package pmm

import (
	"github.com/Poseidon-fan/Artemos/kernel"
	"github.com/Poseidon-fan/Artemos/kernel/kfmt"
	"github.com/Poseidon-fan/Artemos/kernel/mm"
	"github.com/Poseidon-fan/Artemos/kernel/sync"
)

var (
	// ErrOutOfMemory is returned when the frame pool is exhausted.
	ErrOutOfMemory = &kernel.Error{Module: "pmm", Message: "out of physical frames"}

	errFrameNotAllocated = &kernel.Error{Module: "pmm", Message: "frame has not been allocated"}
	errDoubleFree        = &kernel.Error{Module: "pmm", Message: "frame freed twice"}
	errBadPool           = &kernel.Error{Module: "pmm", Message: "frame pool lies outside of RAM"}
)

// FrameAllocator hands out the physical frames between the end of the kernel
// image and the end of RAM. It keeps a watermark and a stack of freed frames;
// freed frames are always reused before the watermark grows.
type FrameAllocator struct {
	mem   *mm.PhysicalMemory
	state *sync.Cell[stackAllocator]
}

type stackAllocator struct {
	current, end mm.PhysPageNum
	recycled     []mm.PhysPageNum
	free         map[mm.PhysPageNum]struct{}
}

// Stats is a snapshot of the allocator state.
type Stats struct {
	Current, End mm.PhysPageNum
	Recycled     int
}

// Available returns the number of frames that can still be allocated.
func (s Stats) Available() int {
	return int(s.End-s.Current) + s.Recycled
}

// New returns an allocator with an empty pool. Call Init before use.
func New(mem *mm.PhysicalMemory) *FrameAllocator {
	return &FrameAllocator{
		mem: mem,
		state: sync.NewCell(stackAllocator{
			free: make(map[mm.PhysPageNum]struct{}),
		}),
	}
}

// Init sets the pool to the frames in [start, end).
func (a *FrameAllocator) Init(start, end mm.PhysPageNum) {
	if end > start && !a.mem.Contains(start.Addr(), uint64(end-start)*mm.PageSize) {
		panic(errBadPool)
	}

	st := a.state.Borrow()
	st.current, st.end = start, end
	st.recycled = st.recycled[:0]
	clear(st.free)
	a.state.Release()

	kfmt.Debugf("[pmm] frame pool: [%s, %s), %d frames", start.Addr(), end.Addr(), end-start)
}

// Alloc returns a zeroed frame or ErrOutOfMemory.
func (a *FrameAllocator) Alloc() (*Frame, *kernel.Error) {
	st := a.state.Borrow()
	var ppn mm.PhysPageNum
	switch {
	case len(st.recycled) != 0:
		ppn = st.recycled[len(st.recycled)-1]
		st.recycled = st.recycled[:len(st.recycled)-1]
		delete(st.free, ppn)
	case st.current < st.end:
		ppn = st.current
		st.current++
	default:
		a.state.Release()
		return nil, ErrOutOfMemory
	}
	a.state.Release()

	a.mem.ZeroPage(ppn)
	return &Frame{PPN: ppn, alloc: a}, nil
}

// MustAlloc is like Alloc but panics when the pool is exhausted. It is meant
// for kernel-critical allocations.
func (a *FrameAllocator) MustAlloc() *Frame {
	f, err := a.Alloc()
	if err != nil {
		panic(err)
	}
	return f
}

// dealloc returns ppn to the pool. Freeing a frame that was never handed
// out, or freeing it twice, is a kernel bug.
func (a *FrameAllocator) dealloc(ppn mm.PhysPageNum) {
	st := a.state.Borrow()
	defer a.state.Release()

	if ppn >= st.current {
		panic(errFrameNotAllocated)
	}
	if _, freed := st.free[ppn]; freed {
		panic(errDoubleFree)
	}
	st.recycled = append(st.recycled, ppn)
	st.free[ppn] = struct{}{}
}

// Stats returns a snapshot of the allocator state.
func (a *FrameAllocator) Stats() Stats {
	st := a.state.Borrow()
	defer a.state.Release()
	return Stats{Current: st.current, End: st.end, Recycled: len(st.recycled)}
}

// Frame is an exclusively owned physical frame. The owner returns it with
// Release.
type Frame struct {
	PPN mm.PhysPageNum

	alloc    *FrameAllocator
	released bool
}

// Release returns the frame to its allocator.
func (f *Frame) Release() {
	if f.released {
		panic(errDoubleFree)
	}
	f.released = true
	f.alloc.dealloc(f.PPN)
}

// Released returns true once the frame has been given back.
func (f *Frame) Released() bool { return f.released }
