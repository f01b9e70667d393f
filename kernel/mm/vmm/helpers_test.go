package vmm

import (
	"testing"

	"github.com/Poseidon-fan/Artemos/kernel/mm"
	"github.com/Poseidon-fan/Artemos/kernel/mm/pmm"
)

var testLayout = mm.NewKernelLayout(0x8020_0000, 0x2_0000, 0x8000, 0x8000, 0x2_0000, 0x8100_0000)

func newTestMemory(t *testing.T) (*mm.PhysicalMemory, *pmm.FrameAllocator) {
	t.Helper()
	mem := mm.NewPhysicalMemory(0x8000_0000, testLayout.MemoryEnd)
	frames := pmm.New(mem)
	frames.Init(testLayout.KernelEnd.Ceil(), testLayout.MemoryEnd.Floor())
	return mem, frames
}

func newTestKernel(t *testing.T) (*mm.PhysicalMemory, *pmm.FrameAllocator, *AddressSpace) {
	t.Helper()
	mem, frames := newTestMemory(t)
	ks, err := NewKernel(mem, frames, testLayout)
	if err != nil {
		t.Fatal(err)
	}
	return mem, frames, ks
}

func expectPanic(t *testing.T, exp interface{}, fn func()) {
	t.Helper()
	defer func() {
		if got := recover(); got != exp {
			t.Fatalf("expected panic with %v; got %v", exp, got)
		}
	}()
	fn()
}

func available(frames *pmm.FrameAllocator) int { return frames.Stats().Available() }
