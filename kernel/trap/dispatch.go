package trap

import (
	"fmt"

	"github.com/Poseidon-fan/Artemos/kernel"
	"github.com/Poseidon-fan/Artemos/kernel/kfmt"
	"github.com/Poseidon-fan/Artemos/kernel/mm"
	"github.com/Poseidon-fan/Artemos/kernel/trace"
)

// Exit codes given to processes killed by a fault.
const (
	ExitMemoryFault        = -2
	ExitIllegalInstruction = -3
)

// HookPosTrap marks every trap handed to Dispatch. The hook item is the
// trapped task and the detail its Frame.
var HookPosTrap = &trace.HookPos{Name: "trap"}

var (
	// panicFn is called for traps the kernel cannot handle. Tests
	// replace it to observe the panic without halting.
	panicFn = kfmt.Panic
)

// Task is the part of a thread the dispatcher needs.
type Task interface {
	// TrapContextPPN returns the physical page holding the thread's
	// trap context. It may change across an exec.
	TrapContextPPN() mm.PhysPageNum

	PID() int
}

// Scheduler switches away from the trapped task.
type Scheduler[T Task] interface {
	SuspendCurrentAndRunNext(t T)
	ExitCurrentAndRunNext(t T, code int)
}

// SyscallHandler executes a system call on behalf of t.
type SyscallHandler[T Task] interface {
	Syscall(t T, id uint64, args [3]uint64) int64
}

// Timer re-arms the timer interrupt of a hart.
type Timer interface {
	SetNextTrigger(hart int)
}

// Dispatcher routes traps taken by user code to the syscall layer, the
// scheduler or the process killer.
type Dispatcher[T Task] struct {
	trace.HookableBase

	mem      *mm.PhysicalMemory
	sched    Scheduler[T]
	syscalls SyscallHandler[T]
	timer    Timer
}

// NewDispatcher returns a dispatcher wired to its collaborators.
func NewDispatcher[T Task](mem *mm.PhysicalMemory, sched Scheduler[T], syscalls SyscallHandler[T], timer Timer) *Dispatcher[T] {
	return &Dispatcher[T]{mem: mem, sched: sched, syscalls: syscalls, timer: timer}
}

// Dispatch handles a trap taken by t on the given hart. It returns when t
// should go back to user mode; traps that end t never return.
func (d *Dispatcher[T]) Dispatch(hart int, t T, f Frame) {
	d.InvokeHook(trace.HookCtx{Domain: d, Pos: HookPosTrap, Item: t, Detail: f})

	switch {
	case f.Cause == CauseUserEnvCall:
		d.syscall(t)

	case f.Cause.MemoryFault():
		d.kill(t, f, ExitMemoryFault)

	case f.Cause == CauseIllegalInstruction, f.Cause == CauseBreakpoint:
		d.kill(t, f, ExitIllegalInstruction)

	case f.Cause == CauseSupervisorTimer:
		d.timer.SetNextTrigger(hart)
		d.sched.SuspendCurrentAndRunNext(t)

	default:
		panicFn(&kernel.Error{
			Module:  "trap",
			Message: fmt.Sprintf("unsupported trap %s, stval = %#x", f.Cause, f.Stval),
		})
	}
}

func (d *Dispatcher[T]) syscall(t T) {
	var cx Context

	ppn := t.TrapContextPPN()
	cx.Load(d.mem, ppn)
	cx.SEPC += 4
	cx.Store(d.mem, ppn)

	ret := d.syscalls.Syscall(t, cx.X[RegA7], [3]uint64{cx.X[RegA0], cx.X[RegA1], cx.X[RegA2]})

	// The syscall may have replaced the address space (exec) or switched
	// away and back; reload before writing the result.
	ppn = t.TrapContextPPN()
	cx.Load(d.mem, ppn)
	cx.X[RegA0] = uint64(ret)
	cx.Store(d.mem, ppn)
}

func (d *Dispatcher[T]) kill(t T, f Frame, code int) {
	var cx Context
	cx.Load(d.mem, t.TrapContextPPN())

	kfmt.Errorf("[kernel] %s in application (pid %d), bad addr = %#x, bad instruction = %#x, kernel killed it.",
		f.Cause, t.PID(), f.Stval, cx.SEPC)
	if kfmt.Enabled(kfmt.LevelDebug) {
		cx.Fprint(&kfmt.PrefixWriter{Sink: kfmt.Console, Prefix: []byte("    ")})
	}

	d.sched.ExitCurrentAndRunNext(t, code)
}
