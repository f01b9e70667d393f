package apps

import "github.com/Poseidon-fan/Artemos/user/rvasm"

// initproc starts the shell and then reaps every process handed to it,
// forever.
func initproc(a *rvasm.Assembler) {
	asciz(a, "shell", "user_shell")
	a.Space("argv", 16)
	asciz(a, "released", "[initproc] Released a zombie process, pid=")
	asciz(a, "code", ", exit_code=")
	asciz(a, "nl", "\n")
	asciz(a, "noshell", "[initproc] failed to exec user_shell\n")

	a.Label("main")
	enter(a, 16)
	a.Call("sys_fork")
	a.Bnez(a0, "reap")

	a.La(t0, "str.shell")
	a.La(t1, "argv")
	a.Sd(t0, 0, t1)
	a.Sd(zero, 8, t1)
	a.La(a0, "str.shell")
	a.La(a1, "argv")
	a.Li(a2, 0)
	a.Call("sys_exec")
	printStr(a, "noshell")
	a.Li(a0, -1)
	a.Call("sys_exit")

	a.Label("reap")
	a.Li(a0, -1)
	a.Addi(a1, sp, 8)
	a.Call("sys_waitpid")
	a.Bltz(a0, "idle")
	a.Mv(s0, a0)
	printStr(a, "released")
	printReg(a, s0)
	printStr(a, "code")
	a.Lw(s1, 8, sp)
	printReg(a, s1)
	printStr(a, "nl")
	a.J("reap")

	a.Label("idle")
	a.Call("sys_yield")
	a.J("reap")
}

const (
	shellLineMax = 127
	shellMaxArgs = 15
)

// userShell reads a line at a time, splits it at spaces and runs the first
// word as a program with the words as its arguments.
func userShell(a *rvasm.Assembler) {
	a.Space("line", shellLineMax+1)
	a.Space("argv", 8*(shellMaxArgs+1))
	asciz(a, "banner", "Artemos user shell\n")
	asciz(a, "prompt", ">> ")
	asciz(a, "erase", "\b \b")
	asciz(a, "execfail", "Error when executing!\n")
	asciz(a, "forkfail", "Shell: fork failed\n")
	asciz(a, "exited1", "Shell: Process ")
	asciz(a, "exited2", " exited with code ")
	asciz(a, "nl", "\n")

	a.Label("main")
	enter(a, 16)
	printStr(a, "banner")

	a.Label("prompt")
	printStr(a, "prompt")
	a.Li(s1, 0)

	// s0 holds the input byte, s1 the line length.
	a.Label("read")
	a.Call("getc")
	a.Mv(s0, a0)
	a.Li(t0, '\n')
	a.Beq(s0, t0, "enter")
	a.Li(t0, '\r')
	a.Beq(s0, t0, "enter")
	a.Li(t0, '\b')
	a.Beq(s0, t0, "backspace")
	a.Li(t0, 0x7f)
	a.Beq(s0, t0, "backspace")
	a.Li(t0, shellLineMax)
	a.Bge(s1, t0, "read")
	a.La(t0, "line")
	a.Add(t0, t0, s1)
	a.Sb(s0, 0, t0)
	a.Addi(s1, s1, 1)
	a.Mv(a0, s0)
	a.Call("putc")
	a.J("read")

	a.Label("backspace")
	a.Beqz(s1, "read")
	a.Addi(s1, s1, -1)
	printStr(a, "erase")
	a.J("read")

	// Split the line in place: s2 walks the line, s3 counts the words.
	a.Label("enter")
	a.Li(a0, '\n')
	a.Call("putc")
	a.La(t0, "line")
	a.Add(t0, t0, s1)
	a.Sb(zero, 0, t0)
	a.La(s2, "line")
	a.Li(s3, 0)

	a.Label("skip")
	a.Lbu(t0, 0, s2)
	a.Beqz(t0, "split")
	a.Li(t1, ' ')
	a.Bne(t0, t1, "word")
	a.Addi(s2, s2, 1)
	a.J("skip")

	a.Label("word")
	a.Li(t1, shellMaxArgs)
	a.Bge(s3, t1, "split")
	a.La(t3, "argv")
	a.Slli(t2, s3, 3)
	a.Add(t3, t3, t2)
	a.Sd(s2, 0, t3)
	a.Addi(s3, s3, 1)

	a.Label("word.next")
	a.Lbu(t0, 0, s2)
	a.Beqz(t0, "split")
	a.Li(t1, ' ')
	a.Beq(t0, t1, "word.end")
	a.Addi(s2, s2, 1)
	a.J("word.next")

	a.Label("word.end")
	a.Sb(zero, 0, s2)
	a.Addi(s2, s2, 1)
	a.J("skip")

	a.Label("split")
	a.La(t3, "argv")
	a.Slli(t2, s3, 3)
	a.Add(t3, t3, t2)
	a.Sd(zero, 0, t3)
	a.Beqz(s3, "prompt")

	a.Call("sys_fork")
	a.Mv(s4, a0)
	a.Bnez(s4, "parent")
	a.La(t0, "argv")
	a.Ld(a0, 0, t0)
	a.La(a1, "argv")
	a.Li(a2, 0)
	a.Call("sys_exec")
	printStr(a, "execfail")
	a.Li(a0, -4)
	a.Call("sys_exit")

	a.Label("parent")
	a.Bltz(s4, "forkfail")
	a.Mv(a0, s4)
	a.Addi(a1, sp, 8)
	a.Call("wait")
	printStr(a, "exited1")
	printReg(a, s4)
	printStr(a, "exited2")
	a.Lw(s0, 8, sp)
	printReg(a, s0)
	printStr(a, "nl")
	a.J("prompt")

	a.Label("forkfail")
	printStr(a, "forkfail")
	a.J("prompt")
}

func hello(a *rvasm.Assembler) {
	asciz(a, "msg", "Hello, world!\n")

	a.Label("main")
	enter(a, 16)
	printStr(a, "msg")
	a.Li(a0, 0)
	leave(a, 16)
}

// echo prints its arguments separated by spaces.
func echo(a *rvasm.Assembler) {
	a.Label("main")
	enter(a, 16)
	a.Mv(s0, a0)
	a.Mv(s1, a1)
	a.Li(s2, 1)

	a.Label("loop")
	a.Bge(s2, s0, "done")
	a.Li(t0, 1)
	a.Beq(s2, t0, "arg")
	a.Li(a0, ' ')
	a.Call("putc")
	a.Label("arg")
	a.Slli(t0, s2, 3)
	a.Add(t0, s1, t0)
	a.Ld(a0, 0, t0)
	a.Call("puts")
	a.Addi(s2, s2, 1)
	a.J("loop")

	a.Label("done")
	a.Li(a0, '\n')
	a.Call("putc")
	a.Li(a0, 0)
	leave(a, 16)
}

const exitMagic = -0x10384

// exitTest checks that a parent collects the exit code of its child.
func exitTest(a *rvasm.Assembler) {
	asciz(a, "parent", "I am the parent. Forking the child...\n")
	asciz(a, "child", "I am the child.\n")
	asciz(a, "forked", "I am parent, fork a child pid ")
	asciz(a, "nl", "\n")
	asciz(a, "pass", "exit pass.\n")
	asciz(a, "fail", "exit failed.\n")

	a.Label("main")
	enter(a, 16)
	printStr(a, "parent")
	a.Call("sys_fork")
	a.Mv(s0, a0)
	a.Bnez(s0, "wait_child")

	printStr(a, "child")
	a.Li(s1, 7)
	a.Label("spin")
	a.Call("sys_yield")
	a.Addi(s1, s1, -1)
	a.Bnez(s1, "spin")
	a.Li(a0, exitMagic)
	a.Call("sys_exit")

	a.Label("wait_child")
	printStr(a, "forked")
	printReg(a, s0)
	printStr(a, "nl")
	a.Mv(a0, s0)
	a.Addi(a1, sp, 8)
	a.Call("wait")
	a.Bne(a0, s0, "fail")
	a.Lw(t0, 8, sp)
	a.Li(t1, exitMagic)
	a.Bne(t0, t1, "fail")
	a.Li(a0, -1)
	a.Li(a1, 0)
	a.Call("sys_waitpid")
	a.Bgez(a0, "fail")
	printStr(a, "pass")
	a.Li(a0, 0)
	leave(a, 16)

	a.Label("fail")
	printStr(a, "fail")
	a.Li(a0, 1)
	leave(a, 16)
}

const yieldRounds = 5

func yieldTest(a *rvasm.Assembler) {
	asciz(a, "hello", "Hello, I am process ")
	asciz(a, "iter", ". iteration ")
	asciz(a, "end", ".\n")
	asciz(a, "pass", "yield pass.\n")

	a.Label("main")
	enter(a, 16)
	a.Call("sys_getpid")
	a.Mv(s0, a0)
	a.Li(s1, 0)

	a.Label("loop")
	printStr(a, "hello")
	printReg(a, s0)
	printStr(a, "iter")
	printReg(a, s1)
	printStr(a, "end")
	a.Call("sys_yield")
	a.Addi(s1, s1, 1)
	a.Li(t0, yieldRounds)
	a.Blt(s1, t0, "loop")

	printStr(a, "pass")
	a.Li(a0, 0)
	leave(a, 16)
}

const forkChildren = 4

// forkTest forks a few children that exit with their index and reaps them
// all.
func forkTest(a *rvasm.Assembler) {
	asciz(a, "child", "I am child ")
	asciz(a, "nl", "\n")
	asciz(a, "pass", "forktest pass.\n")
	asciz(a, "fail", "forktest failed.\n")

	a.Label("main")
	enter(a, 16)
	a.Li(s0, 0)

	a.Label("spawn")
	a.Call("sys_fork")
	a.Beqz(a0, "child")
	a.Bltz(a0, "fail")
	a.Addi(s0, s0, 1)
	a.Li(t0, forkChildren)
	a.Blt(s0, t0, "spawn")

	a.Li(s1, 0)
	a.Label("reap")
	a.Li(a0, -1)
	a.Addi(a1, sp, 8)
	a.Call("wait")
	a.Bltz(a0, "fail")
	a.Addi(s1, s1, 1)
	a.Li(t0, forkChildren)
	a.Blt(s1, t0, "reap")

	a.Li(a0, -1)
	a.Li(a1, 0)
	a.Call("sys_waitpid")
	a.Bgez(a0, "fail")
	printStr(a, "pass")
	a.Li(a0, 0)
	leave(a, 16)

	a.Label("child")
	printStr(a, "child")
	printReg(a, s0)
	printStr(a, "nl")
	exit(a, s0)

	a.Label("fail")
	printStr(a, "fail")
	a.Li(a0, 1)
	leave(a, 16)
}

const sleepMs = 10

// sleep yields until sleepMs milliseconds have passed.
func sleep(a *rvasm.Assembler) {
	asciz(a, "pass", "sleep pass.\n")

	a.Label("main")
	enter(a, 16)
	a.Call("sys_get_time")
	a.Addi(s0, a0, sleepMs)

	a.Label("loop")
	a.Call("sys_get_time")
	a.Bge(a0, s0, "done")
	a.Call("sys_yield")
	a.J("loop")

	a.Label("done")
	printStr(a, "pass")
	a.Li(a0, 0)
	leave(a, 16)
}

func faultStore(a *rvasm.Assembler) {
	asciz(a, "msg", "Into Test store_fault, we will insert an invalid store operation...\n")
	asciz(a, "kill", "Kernel should kill this application!\n")

	a.Label("main")
	enter(a, 16)
	printStr(a, "msg")
	printStr(a, "kill")
	a.Sd(zero, 0, zero)
	a.Li(a0, 0)
	leave(a, 16)
}

// sret is not available in user mode.
const sret = 0x10200073

func faultIllegal(a *rvasm.Assembler) {
	asciz(a, "msg", "Try to execute privileged instruction in U Mode\n")
	asciz(a, "kill", "Kernel should kill this application!\n")

	a.Label("main")
	enter(a, 16)
	printStr(a, "msg")
	printStr(a, "kill")
	a.Word(sret)
	a.Li(a0, 0)
	leave(a, 16)
}

func shutdown(a *rvasm.Assembler) {
	asciz(a, "fail", "shutdown failed!\n")

	a.Label("main")
	enter(a, 16)
	a.Li(a0, rebootMagic1)
	a.Li(a1, rebootMagic2)
	a.Li(a2, rebootCmdHalt)
	a.Call("sys_reboot")
	printStr(a, "fail")
	a.Li(a0, -1)
	leave(a, 16)
}
