// Package trap defines the trap context shared by user code and the kernel
// and dispatches the traps that user code takes.
package trap

import (
	"encoding/binary"
	"io"

	"github.com/Poseidon-fan/Artemos/kernel/kfmt"
	"github.com/Poseidon-fan/Artemos/kernel/mm"
)

// Register numbers used by the syscall ABI.
const (
	RegRA = 1
	RegSP = 2
	RegA0 = 10
	RegA1 = 11
	RegA2 = 12
	RegA7 = 17
)

// sstatus bits touched by the kernel.
const (
	SStatusSIE  = uint64(1) << 1
	SStatusSPIE = uint64(1) << 5
	SStatusSPP  = uint64(1) << 8
)

// ContextWords is the number of 64-bit words in a saved Context.
const ContextWords = 32 + 5

// ContextSize is the size of a saved Context in bytes.
const ContextSize = ContextWords * 8

// Context is the user register state saved on the trap context page of each
// thread, followed by the three values the trap entry code needs to get into
// the kernel: the kernel satp, the thread's kernel stack pointer and the
// trap handler address. The words are stored little-endian in this order.
type Context struct {
	X           [32]uint64
	SStatus     uint64
	SEPC        uint64
	KernelSATP  uint64
	KernelSP    uint64
	TrapHandler uint64
}

// AppInitContext returns the context a thread starts user execution with:
// user privilege on sret, pc at entry and the stack pointer at sp.
func AppInitContext(entry, sp, kernelSATP, kernelSP, trapHandler uint64) Context {
	cx := Context{
		SStatus:     SStatusSPIE,
		SEPC:        entry,
		KernelSATP:  kernelSATP,
		KernelSP:    kernelSP,
		TrapHandler: trapHandler,
	}
	cx.X[RegSP] = sp
	return cx
}

// Encode serializes the context into b, which must be ContextSize bytes
// long.
func (cx *Context) Encode(b []byte) {
	for i, v := range cx.words() {
		binary.LittleEndian.PutUint64(b[i*8:], *v)
	}
}

// Decode is the inverse of Encode.
func (cx *Context) Decode(b []byte) {
	for i, v := range cx.words() {
		*v = binary.LittleEndian.Uint64(b[i*8:])
	}
}

func (cx *Context) words() [ContextWords]*uint64 {
	var w [ContextWords]*uint64
	for i := range cx.X {
		w[i] = &cx.X[i]
	}
	w[32], w[33], w[34], w[35], w[36] = &cx.SStatus, &cx.SEPC, &cx.KernelSATP, &cx.KernelSP, &cx.TrapHandler
	return w
}

// Load reads the context stored at the start of the physical page ppn.
func (cx *Context) Load(mem *mm.PhysicalMemory, ppn mm.PhysPageNum) {
	var buf [ContextSize]byte
	mem.Read(ppn.Addr(), buf[:])
	cx.Decode(buf[:])
}

// Store writes the context to the start of the physical page ppn.
func (cx *Context) Store(mem *mm.PhysicalMemory, ppn mm.PhysPageNum) {
	var buf [ContextSize]byte
	cx.Encode(buf[:])
	mem.Write(ppn.Addr(), buf[:])
}

var regNames = [32]string{
	"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
	"s0", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
	"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
	"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
}

// Print outputs a dump of the register values to the active console.
func (cx *Context) Print() { cx.Fprint(kfmt.Console) }

// Fprint writes the register dump to w.
func (cx *Context) Fprint(w io.Writer) {
	for i := 0; i < len(cx.X); i += 2 {
		kfmt.Fprintf(w, "%-4s = %016x %-4s = %016x\n", regNames[i], cx.X[i], regNames[i+1], cx.X[i+1])
	}
	kfmt.Fprintf(w, "sepc = %016x sstatus = %016x\n", cx.SEPC, cx.SStatus)
}
