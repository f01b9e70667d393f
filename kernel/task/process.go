package task

import (
	"slices"

	"github.com/Poseidon-fan/Artemos/kernel"
	"github.com/Poseidon-fan/Artemos/kernel/kfmt"
	"github.com/Poseidon-fan/Artemos/kernel/mm"
	"github.com/Poseidon-fan/Artemos/kernel/mm/vmm"
	"github.com/Poseidon-fan/Artemos/kernel/sync"
	"github.com/Poseidon-fan/Artemos/kernel/trace"
	"github.com/Poseidon-fan/Artemos/kernel/trap"
)

// WaitPID results other than a pid.
const (
	WaitNoChild = -1
	WaitRunning = -2
)

var errTrapContextUnmapped = &kernel.Error{Module: "task", Message: "trap context page is not mapped"}

// allocUserRes maps the user stack and the trap context page of thread tid
// and returns the frame holding the trap context.
func allocUserRes(space *vmm.AddressSpace, ustackBase mm.VirtAddr, tid int) (mm.PhysPageNum, *kernel.Error) {
	bottom, top := mm.UserStackPosition(ustackBase, tid)
	if err := space.InsertFramedArea(bottom, top, vmm.PermRead|vmm.PermWrite|vmm.PermUser); err != nil {
		return 0, err
	}

	trapCx := mm.TrapContextAddr(tid)
	if err := space.InsertFramedArea(trapCx, trapCx+mm.PageSize, vmm.PermRead|vmm.PermWrite); err != nil {
		return 0, err
	}
	return trapContextPPN(space, tid)
}

func trapContextPPN(space *vmm.AddressSpace, tid int) (mm.PhysPageNum, *kernel.Error) {
	pte, ok := space.Translate(mm.TrapContextAddr(tid).Floor())
	if !ok {
		return 0, errTrapContextUnmapped
	}
	return pte.PPN(), nil
}

// newThread creates a thread of proc whose user resources already exist in
// the process address space.
func (s *Scheduler) newThread(proc *ProcessControlBlock, tid int, ustackBase mm.VirtAddr, trapCxPPN mm.PhysPageNum) (*ThreadControlBlock, *kernel.Error) {
	ks, err := s.newKernelStack()
	if err != nil {
		return nil, err
	}

	t := &ThreadControlBlock{tid: tid, process: proc, kstack: ks}
	t.inner = sync.NewCell(threadInner{
		status:     TaskReady,
		trapCxPPN:  trapCxPPN,
		cx:         GotoTrapReturn(ks.Top(), s.threadMain(t)),
		ustackBase: ustackBase,
	})

	proc.inner.With(func(pi *processInner) { pi.threads = append(pi.threads, t) })
	return t, nil
}

func (s *Scheduler) kernelToken() uint64 {
	ksp := s.kernelSpace.Borrow()
	defer s.kernelSpace.Release()
	return (*ksp).Token()
}

func (s *Scheduler) register(proc *ProcessControlBlock, main *ThreadControlBlock) {
	s.table.With(func(table *map[int]*ProcessControlBlock) { (*table)[proc.pid] = proc })
	s.InvokeHook(trace.HookCtx{Domain: s, Pos: HookPosProcessCreated, Item: main})
	s.manager.Add(main)
}

// NewProcess loads an ELF image into a fresh process with a single thread
// and queues it. The first process created becomes initproc, the adopter of
// orphans.
func (s *Scheduler) NewProcess(elfData []byte) (*ProcessControlBlock, *kernel.Error) {
	ksp := s.kernelSpace.Borrow()
	space, entry, ustackBase, err := vmm.FromELF(*ksp, elfData)
	s.kernelSpace.Release()
	if err != nil {
		return nil, err
	}

	trapCxPPN, err := allocUserRes(space, ustackBase, 0)
	if err != nil {
		space.Release()
		return nil, err
	}

	pid, err := s.allocID(s.pids)
	if err != nil {
		space.Release()
		return nil, err
	}

	parent := -1
	if s.initproc != nil {
		parent = s.initproc.pid
	}
	proc := newProcessControlBlock(pid, parent, space)
	t, err := s.newThread(proc, 0, ustackBase, trapCxPPN)
	if err != nil {
		space.Release()
		s.deallocID(s.pids, pid)
		return nil, err
	}
	proc.inner.With(func(pi *processInner) { _, _ = pi.tids.Alloc() })

	_, ustackTop := mm.UserStackPosition(ustackBase, 0)
	cx := trap.AppInitContext(uint64(entry), uint64(ustackTop), s.kernelToken(), uint64(t.kstack.Top()), uint64(s.trapHandler))
	cx.Store(s.mem, trapCxPPN)

	if s.initproc == nil {
		s.initproc = proc
	} else {
		s.initproc.inner.With(func(ii *processInner) { ii.children = append(ii.children, proc) })
	}

	s.register(proc, t)
	return proc, nil
}

// Fork duplicates the process of t. The child gets a full copy of the
// address space and a single thread that resumes at the same user pc with
// a0 = 0. The child is queued and returned.
func (s *Scheduler) Fork(t *ThreadControlBlock) (*ProcessControlBlock, *kernel.Error) {
	parent := t.process

	ksp := s.kernelSpace.Borrow()
	pi := parent.inner.Borrow()
	space, err := vmm.FromExistedUserSpace(*ksp, pi.space)
	parent.inner.Release()
	s.kernelSpace.Release()
	if err != nil {
		return nil, err
	}

	trapCxPPN, err := trapContextPPN(space, t.tid)
	if err != nil {
		space.Release()
		return nil, err
	}

	pid, err := s.allocID(s.pids)
	if err != nil {
		space.Release()
		return nil, err
	}

	child := newProcessControlBlock(pid, parent.pid, space)
	ct, err := s.newThread(child, t.tid, t.UserStackBase(), trapCxPPN)
	if err != nil {
		space.Release()
		s.deallocID(s.pids, pid)
		return nil, err
	}
	child.inner.With(func(ci *processInner) { _, _ = ci.tids.Alloc() })

	var cx trap.Context
	cx.Load(s.mem, trapCxPPN)
	cx.KernelSP = uint64(ct.kstack.Top())
	cx.X[trap.RegA0] = 0
	cx.Store(s.mem, trapCxPPN)

	parent.inner.With(func(pi *processInner) { pi.children = append(pi.children, child) })
	s.register(child, ct)
	return child, nil
}

// Exec replaces the address space of t's process with the ELF image. argv
// and envp are copied onto the new user stack as NUL-terminated strings
// referenced by two NULL-terminated pointer arrays; the thread starts at the
// image entry with a0 = argc, a1 = argv and a2 = envp. Exec returns argc.
// On error the process is left untouched.
func (s *Scheduler) Exec(t *ThreadControlBlock, elfData []byte, argv, envp []string) (int, *kernel.Error) {
	ksp := s.kernelSpace.Borrow()
	space, entry, ustackBase, err := vmm.FromELF(*ksp, elfData)
	kernelToken := (*ksp).Token()
	s.kernelSpace.Release()
	if err != nil {
		return 0, err
	}

	trapCxPPN, err := allocUserRes(space, ustackBase, t.tid)
	if err != nil {
		space.Release()
		return 0, err
	}

	_, ustackTop := mm.UserStackPosition(ustackBase, t.tid)
	sp, argvBase, envpBase, err := pushArgs(vmm.NewUserMemory(s.mem, space.Token()), uint64(ustackTop), argv, envp)
	if err != nil {
		space.Release()
		return 0, err
	}

	cx := trap.AppInitContext(uint64(entry), sp, kernelToken, uint64(t.kstack.Top()), uint64(s.trapHandler))
	cx.X[trap.RegA0] = uint64(len(argv))
	cx.X[trap.RegA1] = argvBase
	cx.X[trap.RegA2] = envpBase
	cx.Store(s.mem, trapCxPPN)

	pi := t.process.inner.Borrow()
	old := pi.space
	pi.space = space
	t.process.inner.Release()
	old.Release()

	ti := t.inner.Borrow()
	ti.ustackBase = ustackBase
	ti.trapCxPPN = trapCxPPN
	t.inner.Release()

	return len(argv), nil
}

// pushArgs lays argv and envp out below sp and returns the final 8-byte
// aligned stack pointer and the addresses of both pointer arrays.
func pushArgs(um vmm.UserMemory, sp uint64, argv, envp []string) (uint64, uint64, uint64, *kernel.Error) {
	sp -= uint64(len(argv)+1+len(envp)+1) * 8
	argvBase := sp
	envpBase := argvBase + uint64(len(argv)+1)*8

	push := func(base uint64, strs []string) *kernel.Error {
		for i, str := range strs {
			sp -= uint64(len(str) + 1)
			if err := um.Write(sp, append([]byte(str), 0)); err != nil {
				return err
			}
			if err := um.WriteUint64(base+uint64(i)*8, sp); err != nil {
				return err
			}
		}
		return um.WriteUint64(base+uint64(len(strs))*8, 0)
	}

	if err := push(argvBase, argv); err != nil {
		return 0, 0, 0, err
	}
	if err := push(envpBase, envp); err != nil {
		return 0, 0, 0, err
	}

	sp -= sp % 8
	return sp, argvBase, envpBase, nil
}

// WaitPID collects an exited child of t's process. pid selects the child,
// -1 means any. It returns the child's pid and exit code, WaitNoChild if no
// child matches or WaitRunning if the matching children are all still
// running. WaitPID never blocks.
func (s *Scheduler) WaitPID(t *ThreadControlBlock, pid int) (int, int) {
	proc := t.process

	pi := proc.inner.Borrow()
	found, idx := false, -1
	for i, c := range pi.children {
		if pid != -1 && c.pid != pid {
			continue
		}
		found = true
		if c.Zombie() {
			idx = i
			break
		}
	}

	if idx < 0 {
		proc.inner.Release()
		if !found {
			return WaitNoChild, 0
		}
		return WaitRunning, 0
	}

	child := pi.children[idx]
	pi.children = slices.Delete(pi.children, idx, idx+1)
	proc.inner.Release()

	return child.pid, s.reap(child)
}

// reap releases what an exited process still holds: its kernel stacks, its
// page table and its pid.
func (s *Scheduler) reap(child *ProcessControlBlock) int {
	ci := child.inner.Borrow()
	threads, space, code := ci.threads, ci.space, ci.exitCode
	ci.threads, ci.space = nil, nil
	child.inner.Release()

	for _, t := range threads {
		s.releaseKernelStack(t.kstack)
	}
	space.Release()

	s.table.With(func(table *map[int]*ProcessControlBlock) { delete(*table, child.pid) })
	s.deallocID(s.pids, child.pid)

	if len(threads) > 0 {
		s.InvokeHook(trace.HookCtx{Domain: s, Pos: HookPosProcessReaped, Item: threads[0], Detail: code})
	}
	kfmt.Debugf("[task] reaped pid %d, exit code %d", child.pid, code)
	return code
}
