// Package syscall implements the system call table user programs reach with
// ecall. Numbers and calling convention follow Linux on RISC-V: a7 holds the
// number, a0..a2 the arguments and a0 the result.
package syscall

import (
	"fmt"

	"github.com/Poseidon-fan/Artemos/kernel"
	"github.com/Poseidon-fan/Artemos/kernel/hal/sbi"
	"github.com/Poseidon-fan/Artemos/kernel/kfmt"
	"github.com/Poseidon-fan/Artemos/kernel/mm"
	"github.com/Poseidon-fan/Artemos/kernel/mm/vmm"
	"github.com/Poseidon-fan/Artemos/kernel/task"
	"github.com/Poseidon-fan/Artemos/kernel/trace"
)

// System call numbers.
const (
	SysRead    = 63
	SysWrite   = 64
	SysExit    = 93
	SysYield   = 124
	SysReboot  = 142
	SysGetTime = 169
	SysGetPID  = 172
	SysFork    = 220
	SysExec    = 221
	SysWaitPID = 260
)

// File descriptors of the console.
const (
	FdStdin  = 0
	FdStdout = 1
	FdStderr = 2
)

// Arguments of reboot.
const (
	RebootMagic1 = 0xfee1dead
	RebootMagic2 = 672274793

	RebootCmdRestart  = 0x01234567
	RebootCmdHalt     = 0xCDEF0123
	RebootCmdPowerOff = 0x4321FEDC
)

// Limits applied to the strings exec copies out of user memory.
const (
	MaxPathLen = 256
	MaxArgs    = 32
	MaxArgLen  = 256
)

// ExitUnknownSyscall is the exit code of a process that issued an unknown
// system call.
const ExitUnknownSyscall = -1

// HookPosSyscall is triggered for every system call. The hook item is the
// calling thread and the detail a Call.
var HookPosSyscall = &trace.HookPos{Name: "syscall"}

// Call describes one system call for tracing.
type Call struct {
	ID   uint64
	Args [3]uint64
}

func (c Call) String() string {
	return fmt.Sprintf("%s(%#x, %#x, %#x)", Name(c.ID), c.Args[0], c.Args[1], c.Args[2])
}

var names = map[uint64]string{
	SysRead:    "read",
	SysWrite:   "write",
	SysExit:    "exit",
	SysYield:   "yield",
	SysReboot:  "reboot",
	SysGetTime: "get_time",
	SysGetPID:  "getpid",
	SysFork:    "fork",
	SysExec:    "exec",
	SysWaitPID: "waitpid",
}

// Name returns the name of a system call number.
func Name(id uint64) string {
	if n, ok := names[id]; ok {
		return n
	}
	return fmt.Sprintf("syscall_%d", id)
}

// Processes is the process management the table calls into.
type Processes interface {
	SuspendCurrentAndRunNext(t *task.ThreadControlBlock)
	ExitCurrentAndRunNext(t *task.ThreadControlBlock, code int)
	Fork(t *task.ThreadControlBlock) (*task.ProcessControlBlock, *kernel.Error)
	Exec(t *task.ThreadControlBlock, elfData []byte, argv, envp []string) (int, *kernel.Error)
	WaitPID(t *task.ThreadControlBlock, pid int) (int, int)
}

// Apps resolves the path given to exec.
type Apps interface {
	Lookup(name string) ([]byte, bool)
}

// Clock reports the wall time.
type Clock interface {
	TimeMs() uint64
}

// Table executes system calls.
type Table struct {
	trace.HookableBase

	mem      *mm.PhysicalMemory
	procs    Processes
	apps     Apps
	clock    Clock
	platform sbi.Platform
}

// NewTable returns a system call table.
func NewTable(mem *mm.PhysicalMemory, procs Processes, apps Apps, clock Clock, platform sbi.Platform) *Table {
	return &Table{
		mem:      mem,
		procs:    procs,
		apps:     apps,
		clock:    clock,
		platform: platform,
	}
}

// Syscall runs system call id for t and returns the value for a0.
func (s *Table) Syscall(t *task.ThreadControlBlock, id uint64, args [3]uint64) int64 {
	if s.NumHooks() > 0 {
		s.InvokeHook(trace.HookCtx{Domain: s, Pos: HookPosSyscall, Item: t, Detail: Call{ID: id, Args: args}})
	}

	switch id {
	case SysRead:
		return s.read(t, args[0], args[1], args[2])
	case SysWrite:
		return s.write(t, args[0], args[1], args[2])
	case SysExit:
		return s.exit(t, int(int32(args[0])))
	case SysYield:
		s.procs.SuspendCurrentAndRunNext(t)
		return 0
	case SysReboot:
		return s.reboot(uint32(args[0]), uint32(args[1]), uint32(args[2]))
	case SysGetTime:
		return int64(s.clock.TimeMs())
	case SysGetPID:
		return int64(t.PID())
	case SysFork:
		return s.fork(t)
	case SysExec:
		return s.exec(t, args[0], args[1], args[2])
	case SysWaitPID:
		return s.waitpid(t, int(int64(args[0])), args[1])
	}

	kfmt.Errorf("[kernel] Unsupported syscall_id: %d, pid %d killed", id, t.PID())
	s.procs.ExitCurrentAndRunNext(t, ExitUnknownSyscall)
	return -1
}

func (s *Table) userMemory(t *task.ThreadControlBlock) vmm.UserMemory {
	return vmm.NewUserMemory(s.mem, t.Process().Token())
}

// read copies console input into buf. It waits, yielding the hart, until at
// least one byte is available and returns the number of bytes copied.
func (s *Table) read(t *task.ThreadControlBlock, fd, buf, n uint64) int64 {
	if fd != FdStdin || int64(n) < 0 {
		return -1
	}
	if n == 0 {
		return 0
	}

	um := s.userMemory(t)
	if err := um.CheckWritable(buf, int(n)); err != nil {
		return -1
	}

	c := s.platform.ConsoleGetchar()
	for c == 0 {
		s.procs.SuspendCurrentAndRunNext(t)
		c = s.platform.ConsoleGetchar()
	}

	data := []byte{c}
	for uint64(len(data)) < n {
		if c = s.platform.ConsoleGetchar(); c == 0 {
			break
		}
		data = append(data, c)
	}

	// The address space cannot change while the caller waits: exec only
	// ever runs on the calling thread.
	if err := um.Write(buf, data); err != nil {
		return -1
	}
	return int64(len(data))
}

func (s *Table) write(t *task.ThreadControlBlock, fd, buf, n uint64) int64 {
	if fd != FdStdout && fd != FdStderr || int64(n) < 0 {
		return -1
	}

	data, err := s.userMemory(t).Read(buf, int(n))
	if err != nil {
		return -1
	}
	for _, c := range data {
		s.platform.ConsolePutchar(c)
	}
	return int64(len(data))
}

func (s *Table) exit(t *task.ThreadControlBlock, code int) int64 {
	kfmt.Infof("[kernel] Application exited with code %d", code)
	s.procs.ExitCurrentAndRunNext(t, code)
	return 0
}

func (s *Table) reboot(magic1, magic2, cmd uint32) int64 {
	if magic1 != RebootMagic1 || magic2 != RebootMagic2 {
		return -1
	}

	switch cmd {
	case RebootCmdHalt, RebootCmdPowerOff:
		s.platform.Shutdown(false)
	case RebootCmdRestart:
		s.platform.Reboot()
	default:
		return -1
	}
	return 0
}

func (s *Table) fork(t *task.ThreadControlBlock) int64 {
	child, err := s.procs.Fork(t)
	if err != nil {
		kfmt.Warnf("[kernel] fork in pid %d failed: %s", t.PID(), err)
		return -1
	}
	return int64(child.PID())
}

func (s *Table) exec(t *task.ThreadControlBlock, path, argv, envp uint64) int64 {
	um := s.userMemory(t)

	name, err := um.ReadString(path, MaxPathLen)
	if err != nil {
		return -1
	}
	args, err := um.ReadStringArray(argv, MaxArgs, MaxArgLen)
	if err != nil {
		return -1
	}
	env, err := um.ReadStringArray(envp, MaxArgs, MaxArgLen)
	if err != nil {
		return -1
	}

	image, ok := s.apps.Lookup(name)
	if !ok {
		return -1
	}

	argc, err := s.procs.Exec(t, image, args, env)
	if err != nil {
		kfmt.Warnf("[kernel] exec %q in pid %d failed: %s", name, t.PID(), err)
		return -1
	}
	return int64(argc)
}

// waitpid returns the pid of a reaped child and stores its exit code at
// exitCode unless that is NULL. A bad exitCode pointer fails the call before
// any child is reaped.
func (s *Table) waitpid(t *task.ThreadControlBlock, pid int, exitCode uint64) int64 {
	um := s.userMemory(t)
	if exitCode != 0 {
		if err := um.CheckWritable(exitCode, 4); err != nil {
			return -1
		}
	}

	found, code := s.procs.WaitPID(t, pid)
	if found >= 0 && exitCode != 0 {
		if err := um.WriteInt32(exitCode, int32(code)); err != nil {
			return -1
		}
	}
	return int64(found)
}
