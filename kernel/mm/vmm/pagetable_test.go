package vmm

import (
	"math/rand"
	"testing"

	"github.com/Poseidon-fan/Artemos/kernel/mm"
	"github.com/Poseidon-fan/Artemos/kernel/mm/pmm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapTranslate(t *testing.T) {
	mem, frames := newTestMemory(t)
	pt, err := NewPageTable(mem, frames)
	require.Nil(t, err)

	rng := rand.New(rand.NewSource(7))
	mapped := make(map[mm.VirtPageNum]PageTableEntry)

	for i := 0; i < 200; i++ {
		vpn := mm.VirtPageNum(rng.Intn(1 << 18))
		if _, ok := mapped[vpn]; ok {
			continue
		}

		ppn := mm.PhysPageNum(rng.Intn(1 << 20))
		flags := FlagRead | PageTableEntryFlag(rng.Intn(1<<8))&(FlagWrite|FlagExec|FlagUser|FlagGlobal)
		require.Nil(t, pt.Map(vpn, ppn, flags))

		mapped[vpn] = NewPageTableEntry(ppn, flags|FlagValid)
	}

	for vpn, exp := range mapped {
		got, ok := pt.Translate(vpn)
		require.True(t, ok, "expected %s to be mapped", vpn)
		assert.Equal(t, exp, got)
		assert.Equal(t, exp.PPN(), got.PPN())
		assert.Equal(t, exp.Flags(), got.Flags())
	}

	for vpn := range mapped {
		pt.Unmap(vpn)
		_, ok := pt.Translate(vpn)
		assert.False(t, ok, "expected %s to be unmapped", vpn)
	}
}

func TestTranslateVA(t *testing.T) {
	mem, frames := newTestMemory(t)
	pt, err := NewPageTable(mem, frames)
	require.Nil(t, err)

	va := mm.VirtAddr(0x1_2345)
	require.Nil(t, pt.Map(va.Floor(), 0x80400, FlagRead))

	pa, ok := pt.TranslateVA(va)
	require.True(t, ok)
	assert.Equal(t, mm.PhysAddr(0x8040_0345), pa)

	_, ok = pt.TranslateVA(va + mm.PageSize)
	assert.False(t, ok)
}

func TestMapPanics(t *testing.T) {
	mem, frames := newTestMemory(t)

	t.Run("remap", func(t *testing.T) {
		pt, _ := NewPageTable(mem, frames)
		require.Nil(t, pt.Map(10, 20, FlagRead))
		expectPanic(t, errRemap, func() { _ = pt.Map(10, 21, FlagRead) })
	})

	t.Run("unmap unmapped", func(t *testing.T) {
		pt, _ := NewPageTable(mem, frames)
		expectPanic(t, errUnmapUnmapped, func() { pt.Unmap(10) })

		require.Nil(t, pt.Map(10, 20, FlagRead))
		pt.Unmap(10)
		expectPanic(t, errUnmapUnmapped, func() { pt.Unmap(10) })
	})

	t.Run("no permission", func(t *testing.T) {
		pt, _ := NewPageTable(mem, frames)
		expectPanic(t, errInvalidFlags, func() { _ = pt.Map(10, 20, FlagUser) })
	})

	t.Run("view", func(t *testing.T) {
		pt, _ := NewPageTable(mem, frames)
		view := PageTableFromToken(mem, pt.Token())
		expectPanic(t, errReadOnlyView, func() { _ = view.Map(10, 20, FlagRead) })
	})

	t.Run("bad satp", func(t *testing.T) {
		expectPanic(t, errBadSATP, func() { PageTableFromToken(mem, 0x80400) })
	})

	t.Run("released", func(t *testing.T) {
		pt, _ := NewPageTable(mem, frames)
		pt.Release()
		expectPanic(t, errTableReleased, func() { pt.Translate(10) })
	})
}

func TestPageTableFromToken(t *testing.T) {
	mem, frames := newTestMemory(t)
	pt, _ := NewPageTable(mem, frames)
	require.Nil(t, pt.Map(0x42, 0x80500, FlagRead|FlagWrite|FlagUser))

	assert.Equal(t, uint64(8)<<60|uint64(pt.Root()), pt.Token())

	got, ok := PageTableFromToken(mem, pt.Token()).Translate(0x42)
	require.True(t, ok)
	assert.Equal(t, mm.PhysPageNum(0x80500), got.PPN())
}

func TestPageTableReleaseReturnsFrames(t *testing.T) {
	mem, frames := newTestMemory(t)
	before := available(frames)

	pt, err := NewPageTable(mem, frames)
	require.Nil(t, err)

	// Three pages far apart need their own intermediate tables.
	for _, vpn := range []mm.VirtPageNum{0, 1 << 9, 1 << 18} {
		require.Nil(t, pt.Map(vpn, 0x80400, FlagRead))
	}
	assert.Equal(t, 1+2+3, pt.OwnedFrames())
	assert.Equal(t, before-pt.OwnedFrames(), available(frames))

	pt.Release()
	assert.Equal(t, before, available(frames))
}

func TestMapOutOfMemory(t *testing.T) {
	mem := mm.NewPhysicalMemory(0x8000_0000, 0x8001_0000)
	frames := pmm.New(mem)
	frames.Init(0x80000, 0x80002)

	pt, err := NewPageTable(mem, frames)
	require.Nil(t, err)

	// The root uses the first frame, the level 1 table the second one.
	assert.Equal(t, pmm.ErrOutOfMemory, pt.Map(0, 0x80000, FlagRead))
}

func TestUserTableSharesKernelHalf(t *testing.T) {
	_, _, ks := newTestKernel(t)

	user, err := NewUser(ks)
	require.Nil(t, err)

	kernelVPN := mm.KernelVirt(testLayout.Text.Start).Floor()
	exp, ok := ks.Translate(kernelVPN)
	require.True(t, ok)

	got, ok := user.Translate(kernelVPN)
	require.True(t, ok)
	assert.Equal(t, exp, got)

	trampoline, ok := user.Translate(mm.Trampoline.Floor())
	require.True(t, ok)
	assert.Equal(t, testLayout.Trampoline.Floor(), trampoline.PPN())

	expectPanic(t, errKernelHalfMap, func() {
		_ = user.PageTable().Map(mm.KernelVirt(0x8090_0000).Floor(), 0x80900, FlagRead)
	})
}
