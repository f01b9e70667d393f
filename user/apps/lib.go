package apps

import "github.com/Poseidon-fan/Artemos/user/rvasm"

// System call numbers of the user ABI.
const (
	sysRead    = 63
	sysWrite   = 64
	sysExit    = 93
	sysYield   = 124
	sysReboot  = 142
	sysGetTime = 169
	sysGetPID  = 172
	sysFork    = 220
	sysExec    = 221
	sysWaitPID = 260
)

// Arguments of reboot.
const (
	rebootMagic1  = 0xfee1dead
	rebootMagic2  = 672274793
	rebootCmdHalt = 0xCDEF0123
)

const (
	stdin  = 0
	stdout = 1

	// waitAgain is what waitpid returns while the child still runs.
	waitAgain = -2
)

var syscalls = []struct {
	name string
	id   int64
}{
	{"read", sysRead},
	{"write", sysWrite},
	{"exit", sysExit},
	{"yield", sysYield},
	{"reboot", sysReboot},
	{"get_time", sysGetTime},
	{"getpid", sysGetPID},
	{"fork", sysFork},
	{"exec", sysExec},
	{"waitpid", sysWaitPID},
}

// userlib emits the code every program links with: the entry point, one
// stub per system call and the console helpers. Helpers only clobber the
// a and t registers; s registers survive every call.
func userlib(a *rvasm.Assembler) {
	// _start(argc, argv) calls main with the arguments the kernel put in
	// a0 and a1 and exits with its return value.
	a.Label("_start")
	a.Call("main")
	a.Li(a7, sysExit)
	a.Ecall()

	for _, sc := range syscalls {
		a.Label("sys_" + sc.name)
		a.Li(a7, sc.id)
		a.Ecall()
		a.Ret()
	}

	// strlen(s) returns the length of the NUL-terminated string s.
	a.Label("strlen")
	a.Mv(t0, a0)
	a.Label("strlen.loop")
	a.Lbu(t1, 0, t0)
	a.Beqz(t1, "strlen.done")
	a.Addi(t0, t0, 1)
	a.J("strlen.loop")
	a.Label("strlen.done")
	a.Sub(a0, t0, a0)
	a.Ret()

	// puts(s) writes s to stdout.
	a.Label("puts")
	enter(a, 16)
	a.Sd(a0, 8, sp)
	a.Call("strlen")
	a.Mv(a2, a0)
	a.Ld(a1, 8, sp)
	a.Li(a0, stdout)
	a.Call("sys_write")
	leave(a, 16)

	// putc(c) writes one byte to stdout.
	a.Label("putc")
	enter(a, 16)
	a.Sb(a0, 8, sp)
	a.Li(a0, stdout)
	a.Addi(a1, sp, 8)
	a.Li(a2, 1)
	a.Call("sys_write")
	leave(a, 16)

	// putd(n) writes n in decimal to stdout. The digits are built
	// backwards in a 32-byte buffer at the bottom of the frame.
	a.Label("putd")
	enter(a, 48)
	a.Mv(t0, a0)
	a.Addi(t1, sp, 32)
	a.Li(t2, 0)
	a.Bgez(t0, "putd.digits")
	a.Li(t2, 1)
	a.Sub(t0, zero, t0)
	a.Label("putd.digits")
	a.Li(t3, 10)
	a.Remu(t4, t0, t3)
	a.Divu(t0, t0, t3)
	a.Addi(t4, t4, '0')
	a.Addi(t1, t1, -1)
	a.Sb(t4, 0, t1)
	a.Bnez(t0, "putd.digits")
	a.Beqz(t2, "putd.write")
	a.Li(t4, '-')
	a.Addi(t1, t1, -1)
	a.Sb(t4, 0, t1)
	a.Label("putd.write")
	a.Li(a0, stdout)
	a.Mv(a1, t1)
	a.Addi(a2, sp, 32)
	a.Sub(a2, a2, t1)
	a.Call("sys_write")
	leave(a, 48)

	// getc() blocks until one byte of console input is available and
	// returns it.
	a.Label("getc")
	enter(a, 16)
	a.Li(a0, stdin)
	a.Addi(a1, sp, 8)
	a.Li(a2, 1)
	a.Call("sys_read")
	a.Lbu(a0, 8, sp)
	leave(a, 16)

	// wait(pid, status) is waitpid retried with a yield until the child
	// has exited. It returns the pid or -1 if there is no such child.
	a.Label("wait")
	enter(a, 32)
	a.Sd(a0, 8, sp)
	a.Sd(a1, 16, sp)
	a.Label("wait.again")
	a.Ld(a0, 8, sp)
	a.Ld(a1, 16, sp)
	a.Call("sys_waitpid")
	a.Li(t0, waitAgain)
	a.Bne(a0, t0, "wait.done")
	a.Call("sys_yield")
	a.J("wait.again")
	a.Label("wait.done")
	leave(a, 32)
}

// enter opens a stack frame of size bytes and saves ra at its bottom.
func enter(a *rvasm.Assembler, size int64) {
	a.Addi(sp, sp, -size)
	a.Sd(ra, 0, sp)
}

// leave closes a frame opened by enter and returns.
func leave(a *rvasm.Assembler, size int64) {
	a.Ld(ra, 0, sp)
	a.Addi(sp, sp, size)
	a.Ret()
}

// asciz places a string constant in the data section. String labels live
// in their own namespace so they never clash with code labels.
func asciz(a *rvasm.Assembler, name, s string) { a.Asciz("str."+name, s) }

// printStr writes a string placed with asciz.
func printStr(a *rvasm.Assembler, name string) {
	a.La(a0, "str."+name)
	a.Call("puts")
}

// printReg writes the decimal value of r.
func printReg(a *rvasm.Assembler, r rvasm.Reg) {
	a.Mv(a0, r)
	a.Call("putd")
}

// exit terminates the program with the value of r.
func exit(a *rvasm.Assembler, r rvasm.Reg) {
	a.Mv(a0, r)
	a.Call("sys_exit")
}
