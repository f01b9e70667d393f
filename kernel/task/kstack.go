package task

import (
	"github.com/Poseidon-fan/Artemos/kernel"
	"github.com/Poseidon-fan/Artemos/kernel/kfmt"
	"github.com/Poseidon-fan/Artemos/kernel/mm"
	"github.com/Poseidon-fan/Artemos/kernel/mm/vmm"
)

// KernelStack is a thread's stack in the kernel space. Stacks are separated
// by an unmapped guard page.
type KernelStack struct {
	id          int
	bottom, top mm.VirtAddr
}

// ID returns the kernel stack id.
func (ks *KernelStack) ID() int { return ks.id }

// Top returns the initial stack pointer.
func (ks *KernelStack) Top() mm.VirtAddr { return ks.top }

func (s *Scheduler) newKernelStack() (*KernelStack, *kernel.Error) {
	id, err := s.allocID(s.kstackIDs)
	if err != nil {
		return nil, err
	}

	bottom, top := mm.KernelStackPosition(id)
	ksp := s.kernelSpace.Borrow()
	err = (*ksp).InsertFramedArea(bottom, top, vmm.PermRead|vmm.PermWrite)
	s.kernelSpace.Release()
	if err != nil {
		s.deallocID(s.kstackIDs, id)
		return nil, err
	}

	return &KernelStack{id: id, bottom: bottom, top: top}, nil
}

func (s *Scheduler) releaseKernelStack(ks *KernelStack) {
	ksp := s.kernelSpace.Borrow()
	if !(*ksp).RemoveAreaWithStartVPN(ks.bottom.Floor()) {
		kfmt.Warnf("[task] kernel stack %d at %s was not mapped", ks.id, ks.bottom)
	}
	s.kernelSpace.Release()
	s.deallocID(s.kstackIDs, ks.id)
}
