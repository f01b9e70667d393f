// Package loader keeps the application images the kernel can execute.
package loader

import (
	"bytes"
	"debug/elf"
	"sort"

	"github.com/Poseidon-fan/Artemos/kernel"
	"github.com/Poseidon-fan/Artemos/kernel/kfmt"
	"github.com/Poseidon-fan/Artemos/kernel/mm/vmm"
)

var (
	// ErrBadImage is returned when registering something that is not a
	// RISC-V ELF64 executable.
	ErrBadImage = &kernel.Error{Module: "loader", Message: "not a riscv64 ELF executable"}

	// ErrDuplicateApp is returned when an application name is already
	// taken.
	ErrDuplicateApp = &kernel.Error{Module: "loader", Message: "application already registered"}
)

// Registry maps application names to their ELF images. Applications are
// registered during boot; after that the registry is only read and may be
// shared between harts.
type Registry struct {
	apps  map[string][]byte
	names []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{apps: make(map[string][]byte)}
}

// Register adds an application image under name.
func (r *Registry) Register(name string, image []byte) *kernel.Error {
	if _, exists := r.apps[name]; exists {
		return ErrDuplicateApp
	}

	if !vmm.HasELFMagic(image) {
		return ErrBadImage
	}
	f, err := elf.NewFile(bytes.NewReader(image))
	if err != nil || f.Class != elf.ELFCLASS64 || f.Machine != elf.EM_RISCV || f.Type != elf.ET_EXEC {
		return ErrBadImage
	}

	r.apps[name] = image
	r.names = append(r.names, name)
	sort.Strings(r.names)
	return nil
}

// Lookup returns the image registered under name.
func (r *Registry) Lookup(name string) ([]byte, bool) {
	image, ok := r.apps[name]
	return image, ok
}

// Names returns the registered application names in lexical order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Len returns the number of registered applications.
func (r *Registry) Len() int { return len(r.names) }

// List prints the registered applications to the kernel console.
func (r *Registry) List() {
	kfmt.Printf("/**** APPS ****\n")
	for _, name := range r.names {
		kfmt.Printf("%s\n", name)
	}
	kfmt.Printf("**************/\n")
}
