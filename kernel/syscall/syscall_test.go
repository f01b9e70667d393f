package syscall

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/Poseidon-fan/Artemos/kernel/hal/sbi"
	"github.com/Poseidon-fan/Artemos/kernel/loader"
	"github.com/Poseidon-fan/Artemos/kernel/mm"
	"github.com/Poseidon-fan/Artemos/kernel/mm/pmm"
	"github.com/Poseidon-fan/Artemos/kernel/mm/vmm"
	"github.com/Poseidon-fan/Artemos/kernel/sync"
	"github.com/Poseidon-fan/Artemos/kernel/task"
	"github.com/Poseidon-fan/Artemos/kernel/timer"
	"github.com/Poseidon-fan/Artemos/kernel/trace"
	"github.com/Poseidon-fan/Artemos/user/rvasm"
)

// returningSwitcher comes back from every switch at once, as if the
// switched-out thread was picked again right away.
type returningSwitcher struct {
	switches int
}

func (s *returningSwitcher) Switch(from, to *task.TaskContext) { s.switches++ }

func program(code int64) []byte {
	a := rvasm.New()
	a.Label("_start")
	a.Li(rvasm.A0, code)
	a.Li(rvasm.A7, SysExit)
	a.Ecall()

	img, err := a.Link(0x1_0000, "_start")
	Expect(err).NotTo(HaveOccurred())
	return img.ELF()
}

var _ = Describe("Table", func() {
	var (
		mockCtrl *gomock.Controller
		platform *MockPlatform
		clock    *sbi.Clock
		sched    *task.Scheduler
		switcher *returningSwitcher
		apps     *loader.Registry
		events   *trace.MemoryWriter
		mem      *mm.PhysicalMemory
		table    *Table

		initProc *task.ProcessControlBlock
		proc     *task.ProcessControlBlock
		th       *task.ThreadControlBlock
		um       vmm.UserMemory
		scratch  uint64
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		platform = NewMockPlatform(mockCtrl)
		clock = &sbi.Clock{}
		switcher = &returningSwitcher{}
		events = &trace.MemoryWriter{}

		layout := mm.NewKernelLayout(0x8020_0000, 0x2_0000, 0x8000, 0x8000, 0x2_0000, 0x8100_0000)
		mem = mm.NewPhysicalMemory(0x8000_0000, layout.MemoryEnd)
		frames := pmm.New(mem)
		frames.Init(layout.KernelEnd.Ceil(), layout.MemoryEnd.Floor())
		kspace, err := vmm.NewKernel(mem, frames, layout)
		Expect(err).To(BeNil())

		sched = task.New(task.Config{
			Memory:      mem,
			KernelSpace: sync.NewCell(kspace),
			TrapHandler: layout.TrapHandlerAddr(),
			Harts:       make([]task.Hart, 1),
			Switcher:    switcher,
			Platform:    platform,
			Halted:      make(chan struct{}),
		})

		apps = loader.NewRegistry()
		Expect(apps.Register("exit42", program(42))).To(BeNil())

		table = NewTable(mem, sched, apps, timer.New(clock, platform, 10_000_000, 100), platform)
		table.AcceptHook(trace.NewRecorder(clock.Now, events))

		initProc, err = sched.NewProcess(program(0))
		Expect(err).To(BeNil())
		proc, err = sched.Fork(initProc.MainThread())
		Expect(err).To(BeNil())
		th = proc.MainThread()
		um = vmm.NewUserMemory(mem, proc.Token())
		scratch = uint64(th.UserStackBase()) + mm.PageSize + 0x100
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	call := func(id uint64, args ...uint64) int64 {
		var a [3]uint64
		copy(a[:], args)
		return table.Syscall(th, id, a)
	}

	putString := func(va uint64, s string) {
		Expect(um.Write(va, append([]byte(s), 0))).To(BeNil())
	}

	putPointers := func(va uint64, ptrs ...uint64) {
		for i, p := range append(ptrs, 0) {
			Expect(um.WriteUint64(va+uint64(i)*8, p)).To(BeNil())
		}
	}

	Context("console", func() {
		It("should write the user buffer to the console", func() {
			putString(scratch, "hello")

			var out []byte
			platform.EXPECT().ConsolePutchar(gomock.Any()).
				Do(func(c byte) { out = append(out, c) }).
				Times(5)

			Expect(call(SysWrite, FdStdout, scratch, 5)).To(Equal(int64(5)))
			Expect(string(out)).To(Equal("hello"))
		})

		It("should reject bad descriptors and buffers", func() {
			Expect(call(SysWrite, FdStdin, scratch, 1)).To(Equal(int64(-1)))
			Expect(call(SysWrite, FdStdout, 0x10, 1)).To(Equal(int64(-1)))
			Expect(call(SysRead, FdStdout, scratch, 1)).To(Equal(int64(-1)))
			Expect(call(SysRead, FdStdin, 0x10, 1)).To(Equal(int64(-1)))
		})

		It("should fail writes longer than the mapped buffer without output", func() {
			Expect(call(SysWrite, FdStdout, scratch, 1<<40)).To(Equal(int64(-1)))
			Expect(call(SysWrite, FdStdout, scratch, 1<<63)).To(Equal(int64(-1)))
		})

		It("should yield until input arrives", func() {
			gomock.InOrder(
				platform.EXPECT().ConsoleGetchar().Return(byte(0)),
				platform.EXPECT().ConsoleGetchar().Return(byte(0)),
				platform.EXPECT().ConsoleGetchar().Return(byte('l')),
				platform.EXPECT().ConsoleGetchar().Return(byte('s')),
				platform.EXPECT().ConsoleGetchar().Return(byte(0)),
			)

			Expect(call(SysRead, FdStdin, scratch, 16)).To(Equal(int64(2)))
			Expect(switcher.switches).To(Equal(2))

			got, err := um.Read(scratch, 2)
			Expect(err).To(BeNil())
			Expect(string(got)).To(Equal("ls"))
		})

		It("should not read more than asked for", func() {
			platform.EXPECT().ConsoleGetchar().Return(byte('a'))
			Expect(call(SysRead, FdStdin, scratch, 1)).To(Equal(int64(1)))
			Expect(call(SysRead, FdStdin, scratch, 0)).To(Equal(int64(0)))
		})
	})

	Context("process management", func() {
		It("should report the pid and the time", func() {
			clock.Advance(25_000)
			Expect(call(SysGetPID)).To(Equal(int64(proc.PID())))
			Expect(call(SysGetTime)).To(Equal(int64(2)))
		})

		It("should yield", func() {
			before := sched.Manager().Len()
			Expect(call(SysYield)).To(Equal(int64(0)))
			Expect(sched.Manager().Len()).To(Equal(before + 1))
			Expect(th.Status()).To(Equal(task.TaskReady))
		})

		It("should exit with the truncated code", func() {
			call(SysExit, uint64(0xffff_ffff_ffff_fffd))
			Expect(proc.Zombie()).To(BeTrue())
			Expect(proc.ExitCode()).To(Equal(-3))
		})

		It("should kill callers of unknown syscalls", func() {
			Expect(call(999)).To(Equal(int64(-1)))
			Expect(proc.Zombie()).To(BeTrue())
			Expect(proc.ExitCode()).To(Equal(ExitUnknownSyscall))
		})

		It("should fork and reap", func() {
			childPID := call(SysFork)
			Expect(childPID).To(BeNumerically(">", proc.PID()))
			Expect(proc.Children()).To(Equal([]int{int(childPID)}))

			Expect(call(SysWaitPID, ^uint64(0), scratch)).To(Equal(int64(task.WaitRunning)))
			Expect(call(SysWaitPID, 1234, scratch)).To(Equal(int64(task.WaitNoChild)))

			child, ok := sched.Lookup(int(childPID))
			Expect(ok).To(BeTrue())
			sched.ExitCurrentAndRunNext(child.MainThread(), -7)

			Expect(call(SysWaitPID, 0x10, scratch)).To(Equal(int64(-1)), "a pid that is not a child")
			Expect(call(SysWaitPID, ^uint64(0), 0x10)).To(Equal(int64(-1)), "a bad exit code pointer")
			Expect(proc.Children()).To(HaveLen(1))

			Expect(call(SysWaitPID, uint64(childPID), scratch)).To(Equal(childPID))
			got, err := um.Read(scratch, 4)
			Expect(err).To(BeNil())
			Expect(got).To(Equal([]byte{0xf9, 0xff, 0xff, 0xff}))
			Expect(proc.Children()).To(BeEmpty())
		})

		It("should reap without storing the exit code", func() {
			childPID := call(SysFork)
			child, _ := sched.Lookup(int(childPID))
			sched.ExitCurrentAndRunNext(child.MainThread(), 1)

			Expect(call(SysWaitPID, ^uint64(0), 0)).To(Equal(childPID))
		})
	})

	Context("exec", func() {
		var (
			path = func() uint64 { return scratch }
			argv = func() uint64 { return scratch + 0x40 }
			envp = func() uint64 { return scratch + 0x80 }
		)

		BeforeEach(func() {
			putString(scratch+0x100, "exit42")
			putString(scratch+0x110, "-v")
			putString(scratch+0x120, "HOME=/")
		})

		It("should replace the image and pass the arguments", func() {
			putString(path(), "exit42")
			putPointers(argv(), scratch+0x100, scratch+0x110)
			putPointers(envp(), scratch+0x120)
			oldToken := proc.Token()

			Expect(call(SysExec, path(), argv(), envp())).To(Equal(int64(2)))
			Expect(proc.Token()).NotTo(Equal(oldToken))
			Expect(proc.PID()).To(Equal(th.PID()))
		})

		It("should accept missing argv and envp", func() {
			putString(path(), "exit42")
			Expect(call(SysExec, path(), 0, 0)).To(Equal(int64(0)))
		})

		It("should fail for unknown programs and bad pointers", func() {
			oldToken := proc.Token()

			putString(path(), "missing")
			Expect(call(SysExec, path(), 0, 0)).To(Equal(int64(-1)))
			Expect(call(SysExec, 0x10, 0, 0)).To(Equal(int64(-1)))

			putString(path(), "exit42")
			putPointers(argv(), 0x10)
			Expect(call(SysExec, path(), argv(), 0)).To(Equal(int64(-1)))

			Expect(proc.Token()).To(Equal(oldToken))
		})
	})

	Context("reboot", func() {
		It("should power off on halt and power-off", func() {
			platform.EXPECT().Shutdown(false).Times(2)
			Expect(call(SysReboot, RebootMagic1, RebootMagic2, RebootCmdHalt)).To(Equal(int64(0)))
			Expect(call(SysReboot, RebootMagic1, RebootMagic2, RebootCmdPowerOff)).To(Equal(int64(0)))
		})

		It("should restart", func() {
			platform.EXPECT().Reboot()
			Expect(call(SysReboot, RebootMagic1, RebootMagic2, RebootCmdRestart)).To(Equal(int64(0)))
		})

		It("should reject bad magics and commands", func() {
			Expect(call(SysReboot, 0, RebootMagic2, RebootCmdHalt)).To(Equal(int64(-1)))
			Expect(call(SysReboot, RebootMagic1, 1, RebootCmdHalt)).To(Equal(int64(-1)))
			Expect(call(SysReboot, RebootMagic1, RebootMagic2, 0x1234)).To(Equal(int64(-1)))
		})
	})

	It("should trace every call", func() {
		call(SysGetPID)
		call(SysReboot, 1, 2, 3)

		calls := events.Filter(HookPosSyscall.Name)
		Expect(calls).To(HaveLen(2))
		Expect(calls[0].PID).To(Equal(proc.PID()))
		Expect(calls[0].Detail).To(Equal("getpid(0x0, 0x0, 0x0)"))
		Expect(calls[1].Detail).To(Equal("reboot(0x1, 0x2, 0x3)"))
	})

	It("should name unknown numbers", func() {
		Expect(Name(SysWaitPID)).To(Equal("waitpid"))
		Expect(Name(7)).To(Equal("syscall_7"))
	})
})
