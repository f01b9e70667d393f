// Package task implements processes and threads, the FIFO ready queue and the
// per-hart scheduler loop, together with the fork, exec, exit and waitpid
// life cycle.
package task

import (
	"github.com/Poseidon-fan/Artemos/kernel"
	"github.com/Poseidon-fan/Artemos/kernel/hal/sbi"
	"github.com/Poseidon-fan/Artemos/kernel/kfmt"
	"github.com/Poseidon-fan/Artemos/kernel/mm"
	"github.com/Poseidon-fan/Artemos/kernel/mm/vmm"
	"github.com/Poseidon-fan/Artemos/kernel/sync"
	"github.com/Poseidon-fan/Artemos/kernel/trace"
	"github.com/Poseidon-fan/Artemos/kernel/trap"
)

// Hook positions. The hook item is always a *ThreadControlBlock.
var (
	// HookPosSwitchIn is triggered when a hart switches into a thread.
	// The detail is the hart id.
	HookPosSwitchIn = &trace.HookPos{Name: "switch-in"}

	// HookPosProcessCreated is triggered for initproc and every forked
	// process.
	HookPosProcessCreated = &trace.HookPos{Name: "process-created"}

	// HookPosProcessExited is triggered when a process exits. The detail
	// is the exit code.
	HookPosProcessExited = &trace.HookPos{Name: "process-exited"}

	// HookPosProcessReaped is triggered when a parent collects a zombie.
	// The detail is the exit code.
	HookPosProcessReaped = &trace.HookPos{Name: "process-reaped"}
)

var errInitExited = &kernel.Error{Module: "task", Message: "initproc exited but the machine is still running"}

// Hart is the part of an emulated hart the scheduler drives.
type Hart interface {
	SetTrapVector(addr mm.VirtAddr)
	ReturnToUser(trapCx mm.VirtAddr, userSATP uint64) trap.Frame
}

// TrapHandler handles the traps threads take in user mode.
type TrapHandler interface {
	Dispatch(hart int, t *ThreadControlBlock, f trap.Frame)
}

// Lock is the big kernel lock. Idle harts drop it while they wait for work.
type Lock interface {
	Acquire()
	Release()
}

// Config holds the collaborators of a Scheduler.
type Config struct {
	Memory      *mm.PhysicalMemory
	KernelSpace *sync.Cell[*vmm.AddressSpace]

	// TrapHandler is the kernel address stored in every trap context.
	TrapHandler mm.VirtAddr

	Harts    []Hart
	Switcher Switcher
	Platform sbi.Platform
	Lock     Lock
	Halted   <-chan struct{}

	// MaxProcesses bounds the number of live pids. Zero means no bound.
	MaxProcesses int
}

// Scheduler owns every process and thread of the machine.
type Scheduler struct {
	trace.HookableBase

	mem         *mm.PhysicalMemory
	kernelSpace *sync.Cell[*vmm.AddressSpace]
	trapHandler mm.VirtAddr
	harts       []Hart
	processors  []*Processor
	manager     *TaskManager
	switcher    Switcher
	platform    sbi.Platform
	lock        Lock
	halted      <-chan struct{}
	traps       TrapHandler

	pids      *sync.Cell[RecycleAllocator]
	kstackIDs *sync.Cell[RecycleAllocator]
	table     *sync.Cell[map[int]*ProcessControlBlock]
	initproc  *ProcessControlBlock
}

// New returns a scheduler with one processor per hart and no processes.
func New(cfg Config) *Scheduler {
	s := &Scheduler{
		mem:         cfg.Memory,
		kernelSpace: cfg.KernelSpace,
		trapHandler: cfg.TrapHandler,
		harts:       cfg.Harts,
		manager:     NewTaskManager(),
		switcher:    cfg.Switcher,
		platform:    cfg.Platform,
		lock:        cfg.Lock,
		halted:      cfg.Halted,
		pids:        sync.NewCell(*NewRecycleAllocator(cfg.MaxProcesses)),
		kstackIDs:   sync.NewCell(*NewRecycleAllocator(0)),
		table:       sync.NewCell(make(map[int]*ProcessControlBlock)),
	}
	for id := range cfg.Harts {
		s.processors = append(s.processors, NewProcessor(id))
	}
	return s
}

// SetTrapHandler installs the handler of user traps.
func (s *Scheduler) SetTrapHandler(h TrapHandler) { s.traps = h }

// Manager returns the ready queue.
func (s *Scheduler) Manager() *TaskManager { return s.manager }

// Processor returns the processor of a hart.
func (s *Scheduler) Processor(hart int) *Processor { return s.processors[hart] }

// InitProc returns the first process created, or nil.
func (s *Scheduler) InitProc() *ProcessControlBlock { return s.initproc }

// Lookup returns the live or zombie process with the given pid.
func (s *Scheduler) Lookup(pid int) (*ProcessControlBlock, bool) {
	table := s.table.Borrow()
	defer s.table.Release()
	p, ok := (*table)[pid]
	return p, ok
}

// NumProcesses returns the number of processes not yet reaped.
func (s *Scheduler) NumProcesses() int {
	table := s.table.Borrow()
	defer s.table.Release()
	return len(*table)
}

func (s *Scheduler) allocID(c *sync.Cell[RecycleAllocator]) (int, *kernel.Error) {
	a := c.Borrow()
	defer c.Release()
	return a.Alloc()
}

func (s *Scheduler) deallocID(c *sync.Cell[RecycleAllocator], id int) {
	a := c.Borrow()
	defer c.Release()
	a.Dealloc(id)
}

// RunTasks is the idle loop of a hart. It repeatedly fetches the next ready
// thread and switches into it; when the queue is empty it drops the kernel
// lock until a thread becomes ready. RunTasks only returns by way of exitFn
// once the machine halts.
func (s *Scheduler) RunTasks(hart int) {
	p := s.processors[hart]
	for {
		t, ok := s.manager.Fetch()
		if !ok {
			s.waitForWork()
			continue
		}

		inner := t.inner.Borrow()
		inner.status = TaskRunning
		inner.hart = hart
		next := &inner.cx
		t.inner.Release()

		p.current = t
		s.InvokeHook(trace.HookCtx{Domain: s, Pos: HookPosSwitchIn, Item: t, Detail: hart})
		s.switcher.Switch(&p.idle, next)
	}
}

func (s *Scheduler) waitForWork() {
	if s.lock != nil {
		s.lock.Release()
	}
	select {
	case <-s.manager.Ready():
	case <-s.halted:
		exitFn()
	}
	if s.lock != nil {
		s.lock.Acquire()
	}
}

// schedule switches from the given context back to the idle loop of p.
func (s *Scheduler) schedule(p *Processor, switched *TaskContext) {
	s.switcher.Switch(switched, &p.idle)
}

// SuspendCurrentAndRunNext puts t back at the tail of the ready queue and
// switches to the idle loop of its hart. It returns when t is scheduled
// again, possibly on another hart.
func (s *Scheduler) SuspendCurrentAndRunNext(t *ThreadControlBlock) {
	inner := t.inner.Borrow()
	inner.status = TaskReady
	p := s.processors[inner.hart]
	cx := &inner.cx
	t.inner.Release()

	p.takeCurrent()
	s.manager.Add(t)
	s.schedule(p, cx)
}

// ExitCurrentAndRunNext terminates the process of t with the given exit
// code and switches to the idle loop for good. Children are handed to
// initproc in order and the user pages are released at once; the rest is
// released when the parent reaps the process. When initproc exits the
// machine is shut down, reporting a failure for non-zero codes.
func (s *Scheduler) ExitCurrentAndRunNext(t *ThreadControlBlock, code int) {
	inner := t.inner.Borrow()
	inner.status = TaskZombie
	inner.exitCode = code
	p := s.processors[inner.hart]
	t.inner.Release()

	p.takeCurrent()
	proc := t.process
	if proc == s.initproc {
		kfmt.Infof("[kernel] initproc exited with code %d, shutting down", code)
		s.platform.Shutdown(code != 0)
		panic(errInitExited)
	}

	s.InvokeHook(trace.HookCtx{Domain: s, Pos: HookPosProcessExited, Item: t, Detail: code})

	pi := proc.inner.Borrow()
	pi.zombie = true
	pi.exitCode = code
	children := pi.children
	pi.children = nil
	pi.space.RecycleDataPages()
	proc.inner.Release()

	if len(children) > 0 {
		initInner := s.initproc.inner.Borrow()
		for _, c := range children {
			c.inner.With(func(ci *processInner) { ci.parent = s.initproc.pid })
			initInner.children = append(initInner.children, c)
		}
		s.initproc.inner.Release()
	}

	s.switcher.Switch(nil, &p.idle)
}

// threadMain is the kernel side of a thread: return to user mode, handle
// the trap that brings the hart back, repeat. Every iteration reads the
// hart again as the thread may have migrated while suspended.
func (s *Scheduler) threadMain(t *ThreadControlBlock) func() {
	return func() {
		for {
			hart := t.Hart()
			h := s.harts[hart]
			h.SetTrapVector(mm.Trampoline)
			f := h.ReturnToUser(t.TrapContextAddr(), t.process.Token())
			s.traps.Dispatch(hart, t, f)
		}
	}
}
