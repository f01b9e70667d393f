package task

import (
	"github.com/Poseidon-fan/Artemos/kernel/mm/vmm"
	"github.com/Poseidon-fan/Artemos/kernel/sync"
)

// ProcessControlBlock describes a process: an address space shared by its
// threads, its place in the process tree and its exit status.
type ProcessControlBlock struct {
	pid int

	inner *sync.Cell[processInner]
}

type processInner struct {
	zombie   bool
	space    *vmm.AddressSpace
	parent   int
	children []*ProcessControlBlock
	exitCode int
	threads  []*ThreadControlBlock
	tids     *RecycleAllocator
}

func newProcessControlBlock(pid, parent int, space *vmm.AddressSpace) *ProcessControlBlock {
	return &ProcessControlBlock{
		pid: pid,
		inner: sync.NewCell(processInner{
			space:  space,
			parent: parent,
			tids:   NewRecycleAllocator(0),
		}),
	}
}

// PID returns the process id.
func (p *ProcessControlBlock) PID() int { return p.pid }

// Token returns the satp value of the process address space.
func (p *ProcessControlBlock) Token() uint64 {
	inner := p.inner.Borrow()
	defer p.inner.Release()
	return inner.space.Token()
}

// Space returns the process address space.
func (p *ProcessControlBlock) Space() *vmm.AddressSpace {
	inner := p.inner.Borrow()
	defer p.inner.Release()
	return inner.space
}

// Parent returns the pid of the parent process or -1 for initproc.
func (p *ProcessControlBlock) Parent() int {
	inner := p.inner.Borrow()
	defer p.inner.Release()
	return inner.parent
}

// Children returns the pids of the children in the order they were
// adopted.
func (p *ProcessControlBlock) Children() []int {
	inner := p.inner.Borrow()
	defer p.inner.Release()

	pids := make([]int, len(inner.children))
	for i, c := range inner.children {
		pids[i] = c.pid
	}
	return pids
}

// Zombie returns true once the process has exited and waits to be reaped.
func (p *ProcessControlBlock) Zombie() bool {
	inner := p.inner.Borrow()
	defer p.inner.Release()
	return inner.zombie
}

// ExitCode returns the code the process exited with.
func (p *ProcessControlBlock) ExitCode() int {
	inner := p.inner.Borrow()
	defer p.inner.Release()
	return inner.exitCode
}

// MainThread returns thread 0, or nil once the process has been reaped.
func (p *ProcessControlBlock) MainThread() *ThreadControlBlock {
	inner := p.inner.Borrow()
	defer p.inner.Release()
	if len(inner.threads) == 0 {
		return nil
	}
	return inner.threads[0]
}
