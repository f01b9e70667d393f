// Package apps assembles the user programs the kernel ships with. Every
// program is linked at TextBase together with a small user library: an
// entry point that passes argc and argv to main, one stub per system call
// and a few console helpers.
package apps

import (
	"fmt"

	"github.com/Poseidon-fan/Artemos/user/rvasm"
)

// TextBase is the address every program's text is linked at.
const TextBase = 0x1_0000

type program struct {
	name  string
	build func(a *rvasm.Assembler)
}

var programs = []program{
	{"initproc", initproc},
	{"user_shell", userShell},
	{"hello", hello},
	{"echo", echo},
	{"exit", exitTest},
	{"yield", yieldTest},
	{"forktest", forkTest},
	{"sleep", sleep},
	{"fault_store", faultStore},
	{"fault_illegal", faultIllegal},
	{"shutdown", shutdown},
}

// Names returns the names of the built-in programs.
func Names() []string {
	names := make([]string, len(programs))
	for i, p := range programs {
		names[i] = p.name
	}
	return names
}

// Assemble links the named program.
func Assemble(name string) (*rvasm.Image, error) {
	for _, p := range programs {
		if p.name != name {
			continue
		}

		a := rvasm.New()
		userlib(a)
		p.build(a)

		img, err := a.Link(TextBase, "_start")
		if err != nil {
			return nil, fmt.Errorf("apps: %s: %w", name, err)
		}
		return img, nil
	}
	return nil, fmt.Errorf("apps: unknown program %q", name)
}

// Build returns the ELF executable of the named program.
func Build(name string) ([]byte, error) {
	img, err := Assemble(name)
	if err != nil {
		return nil, err
	}
	return img.ELF(), nil
}

// All returns the ELF executables of every built-in program by name.
func All() (map[string][]byte, error) {
	out := make(map[string][]byte, len(programs))
	for _, p := range programs {
		image, err := Build(p.name)
		if err != nil {
			return nil, err
		}
		out[p.name] = image
	}
	return out, nil
}
