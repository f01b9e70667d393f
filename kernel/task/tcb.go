package task

import (
	"github.com/Poseidon-fan/Artemos/kernel/mm"
	"github.com/Poseidon-fan/Artemos/kernel/sync"
)

// TaskStatus is the scheduling state of a thread.
type TaskStatus uint8

// A thread moves UnInit -> Ready -> Running and from Running back to Ready
// or on to Zombie.
const (
	TaskUnInit TaskStatus = iota
	TaskReady
	TaskRunning
	TaskZombie
)

var taskStatusNames = [...]string{"UnInit", "Ready", "Running", "Zombie"}

func (s TaskStatus) String() string {
	if int(s) < len(taskStatusNames) {
		return taskStatusNames[s]
	}
	return "Unknown"
}

// ThreadControlBlock describes one thread of a process.
type ThreadControlBlock struct {
	tid     int
	process *ProcessControlBlock
	kstack  *KernelStack

	inner *sync.Cell[threadInner]
}

type threadInner struct {
	status     TaskStatus
	trapCxPPN  mm.PhysPageNum
	cx         TaskContext
	ustackBase mm.VirtAddr
	hart       int
	exitCode   int
}

// TID returns the thread id within its process.
func (t *ThreadControlBlock) TID() int { return t.tid }

// PID returns the id of the owning process.
func (t *ThreadControlBlock) PID() int { return t.process.pid }

// Process returns the owning process.
func (t *ThreadControlBlock) Process() *ProcessControlBlock { return t.process }

// KernelStack returns the thread's kernel stack.
func (t *ThreadControlBlock) KernelStack() *KernelStack { return t.kstack }

// TrapContextAddr returns where the thread's trap context lives in the user
// address space.
func (t *ThreadControlBlock) TrapContextAddr() mm.VirtAddr { return mm.TrapContextAddr(t.tid) }

// TrapContextPPN returns the physical page holding the trap context.
func (t *ThreadControlBlock) TrapContextPPN() mm.PhysPageNum {
	inner := t.inner.Borrow()
	defer t.inner.Release()
	return inner.trapCxPPN
}

// Status returns the scheduling state.
func (t *ThreadControlBlock) Status() TaskStatus {
	inner := t.inner.Borrow()
	defer t.inner.Release()
	return inner.status
}

// Hart returns the hart the thread last ran on.
func (t *ThreadControlBlock) Hart() int {
	inner := t.inner.Borrow()
	defer t.inner.Release()
	return inner.hart
}

// UserStackBase returns the base address user stacks are placed above.
func (t *ThreadControlBlock) UserStackBase() mm.VirtAddr {
	inner := t.inner.Borrow()
	defer t.inner.Release()
	return inner.ustackBase
}

// context returns the thread's saved kernel context. The pointer stays
// valid for the thread's lifetime.
func (t *ThreadControlBlock) context() *TaskContext {
	inner := t.inner.Borrow()
	defer t.inner.Release()
	return &inner.cx
}
