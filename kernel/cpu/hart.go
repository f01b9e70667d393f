// Package cpu emulates the RISC-V harts the kernel runs on. A hart executes
// user code (RV64IM) under Sv39 translation and performs the trampoline
// work of the trap entry and exit paths; kernel code runs natively on the
// goroutine that drives the hart.
package cpu

import (
	"fmt"
	"runtime"

	"github.com/Poseidon-fan/Artemos/kernel"
	"github.com/Poseidon-fan/Artemos/kernel/mm"
	"github.com/Poseidon-fan/Artemos/kernel/trap"
)

// sie bits.
const (
	SIESTIE = uint64(1) << 5
)

// haltCheckInterval is the number of user instructions between two checks
// of the machine halt signal. It must be a power of two.
const haltCheckInterval = 1024

var (
	// exitFn stops the goroutine driving a hart once the machine has
	// halted.
	exitFn = runtime.Goexit
)

// Clock is the shared machine timer.
type Clock interface {
	Now() uint64
	Advance(n uint64) uint64
}

// TimerSource reports whether the timer interrupt of a hart is due.
type TimerSource interface {
	TimerPending(hart int) bool
}

// Lock is the kernel lock a hart gives up while it runs user code.
type Lock interface {
	Acquire()
	Release()
}

// Config holds the machine resources a hart is attached to.
type Config struct {
	ID     int
	Memory *mm.PhysicalMemory
	Clock  Clock
	Timer  TimerSource

	// Halted is closed when the machine stops.
	Halted <-chan struct{}

	// Lock is released on the way to user mode and acquired again when
	// a trap brings the hart back. It may be nil.
	Lock Lock
}

// Hart is one emulated RISC-V core.
type Hart struct {
	id     int
	mem    *mm.PhysicalMemory
	clock  Clock
	timer  TimerSource
	halted <-chan struct{}
	lock   Lock

	satp  uint64
	stvec uint64
	sie   uint64
	tlb   map[uint64]tlbEntry

	x       [32]uint64
	pc      uint64
	sstatus uint64
	instret uint64
}

// New returns a hart in supervisor mode with translation off.
func New(cfg Config) *Hart {
	return &Hart{
		id:     cfg.ID,
		mem:    cfg.Memory,
		clock:  cfg.Clock,
		timer:  cfg.Timer,
		halted: cfg.Halted,
		lock:   cfg.Lock,
		tlb:    make(map[uint64]tlbEntry),
	}
}

// ID returns the hart id.
func (h *Hart) ID() int { return h.id }

// WriteSATP installs a new translation root and flushes the TLB.
func (h *Hart) WriteSATP(satp uint64) {
	h.satp = satp
	h.SfenceVMA()
}

// SATP returns the active translation root.
func (h *Hart) SATP() uint64 { return h.satp }

// SfenceVMA flushes every cached translation.
func (h *Hart) SfenceVMA() { clear(h.tlb) }

// SetTrapVector sets stvec.
func (h *Hart) SetTrapVector(addr mm.VirtAddr) { h.stvec = uint64(addr) }

// TrapVector returns stvec.
func (h *Hart) TrapVector() mm.VirtAddr { return mm.VirtAddr(h.stvec) }

// EnableTimerInterrupt sets sie.STIE.
func (h *Hart) EnableTimerInterrupt() { h.sie |= SIESTIE }

// Instret returns the number of user instructions retired.
func (h *Hart) Instret() uint64 { return h.instret }

// kernelTrap reports a trap taken while the hart performs supervisor work.
// Those are never recoverable.
func (h *Hart) kernelTrap(cause trap.Cause, stval uint64, what string) {
	panic(&kernel.Error{
		Module: "cpu",
		Message: fmt.Sprintf("a trap %s from kernel on hart %d (%s): stval = %#x, vpn = %#x",
			cause, h.id, what, stval, mm.VirtAddr(stval).Floor()),
	})
}

// supervisorAccess translates va under the active satp for a supervisor
// access and returns the physical address.
func (h *Hart) supervisorAccess(va uint64, acc access, what string) mm.PhysAddr {
	pa, cause, ok := h.translate(va, acc, false)
	if !ok {
		h.kernelTrap(cause, va, what)
	}
	return pa
}

// ReturnToUser performs the trap return path: it checks that the trampoline
// is executable on both sides of the satp switch, switches to userSATP,
// restores the user registers from the trap context at trapCx and runs user
// code until it traps. The trap entry path then saves the registers back,
// switches to the kernel satp stored in the trap context and checks that
// the trap handler and kernel stack are reachable. ReturnToUser returns the
// trap that brought the hart back.
func (h *Hart) ReturnToUser(trapCx mm.VirtAddr, userSATP uint64) trap.Frame {
	h.supervisorAccess(uint64(mm.Trampoline), accessFetch, "__restore")
	h.WriteSATP(userSATP)
	h.supervisorAccess(uint64(mm.Trampoline), accessFetch, "__restore")

	var cx trap.Context
	h.readContext(h.supervisorAccess(uint64(trapCx), accessLoad, "trap context"), &cx)
	if cx.SStatus&trap.SStatusSPP != 0 {
		h.kernelTrap(trap.CauseIllegalInstruction, cx.SEPC, "sret to supervisor mode")
	}
	h.x, h.pc, h.sstatus = cx.X, cx.SEPC, cx.SStatus
	h.x[0] = 0

	if h.lock != nil {
		h.lock.Release()
	}

	f := h.runUser()

	h.enterTrap(trapCx, f)
	return f
}

// enterTrap performs the trap entry path for a trap taken in user mode.
func (h *Hart) enterTrap(trapCx mm.VirtAddr, f trap.Frame) {
	if h.stvec != uint64(mm.Trampoline) {
		h.kernelTrap(f.Cause, f.Stval, fmt.Sprintf("stvec = %#x", h.stvec))
	}
	h.supervisorAccess(uint64(mm.Trampoline), accessFetch, "__alltraps")

	pa := h.supervisorAccess(uint64(trapCx), accessStore, "trap context")

	var cx trap.Context
	h.readContext(pa, &cx)
	cx.X, cx.SEPC, cx.SStatus = h.x, h.pc, h.sstatus&^trap.SStatusSPP
	h.writeContext(pa, &cx)

	h.WriteSATP(cx.KernelSATP)
	h.supervisorAccess(cx.TrapHandler, accessFetch, "trap handler")
	h.supervisorAccess(cx.KernelSP-8, accessStore, "kernel stack")

	if h.lock != nil {
		h.lock.Acquire()
	}
}

func (h *Hart) readContext(pa mm.PhysAddr, cx *trap.Context) {
	var buf [trap.ContextSize]byte
	h.mem.Read(pa, buf[:])
	cx.Decode(buf[:])
}

func (h *Hart) writeContext(pa mm.PhysAddr, cx *trap.Context) {
	var buf [trap.ContextSize]byte
	cx.Encode(buf[:])
	h.mem.Write(pa, buf[:])
}

// runUser executes user instructions until one of them traps or the timer
// interrupt fires.
func (h *Hart) runUser() trap.Frame {
	for n := uint64(0); ; n++ {
		if n&(haltCheckInterval-1) == 0 {
			select {
			case <-h.halted:
				exitFn()
			default:
			}
		}

		if h.sie&SIESTIE != 0 && h.timer != nil && h.timer.TimerPending(h.id) {
			return trap.Frame{Cause: trap.CauseSupervisorTimer}
		}

		if f, trapped := h.step(); trapped {
			return f
		}
		h.instret++
		if h.clock != nil {
			h.clock.Advance(1)
		}
	}
}
