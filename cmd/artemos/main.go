// Command artemos boots the Artemos kernel on an emulated RISC-V machine and
// attaches the machine console to the terminal.
package main

func main() {
	Execute()
}
