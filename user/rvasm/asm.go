// Package rvasm is a small RV64IM assembler used to build the user programs
// the kernel ships with.
package rvasm

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/Poseidon-fan/Artemos/user/elfgen"
)

const pageSize = 0x1000

// fixup computes an instruction word once the address of every symbol is
// known. pc is the address of the instruction.
type fixup func(pc uint64, sym func(name string) (uint64, error)) (uint32, error)

type inst struct {
	word uint32
	fix  fixup
}

// Assembler accumulates the text and data of one program. Instructions are
// appended in program order; labels may be referenced before they are
// defined. Errors are sticky and reported by Link.
type Assembler struct {
	text       []inst
	textLabels map[string]int

	data       []byte
	dataLabels map[string]int

	err error
}

// New returns an empty assembler.
func New() *Assembler {
	return &Assembler{
		textLabels: make(map[string]int),
		dataLabels: make(map[string]int),
	}
}

func (a *Assembler) fail(format string, args ...interface{}) {
	if a.err == nil {
		a.err = fmt.Errorf(format, args...)
	}
}

func (a *Assembler) emit(word uint32) { a.text = append(a.text, inst{word: word}) }

func (a *Assembler) emitFix(fn fixup) { a.text = append(a.text, inst{fix: fn}) }

// Label defines name at the current text position.
func (a *Assembler) Label(name string) {
	if a.defined(name) {
		a.fail("label %q defined twice", name)
		return
	}
	a.textLabels[name] = len(a.text) * 4
}

func (a *Assembler) defined(name string) bool {
	_, inText := a.textLabels[name]
	_, inData := a.dataLabels[name]
	return inText || inData
}

// Bytes places b in the data section under name, aligned to 8 bytes.
func (a *Assembler) Bytes(name string, b []byte) {
	if a.defined(name) {
		a.fail("label %q defined twice", name)
		return
	}
	for len(a.data)%8 != 0 {
		a.data = append(a.data, 0)
	}
	a.dataLabels[name] = len(a.data)
	a.data = append(a.data, b...)
}

// Asciz places a NUL-terminated string in the data section.
func (a *Assembler) Asciz(name, s string) { a.Bytes(name, append([]byte(s), 0)) }

// Space reserves n zero bytes in the data section.
func (a *Assembler) Space(name string, n int) { a.Bytes(name, make([]byte, n)) }

// Word emits a raw instruction word.
func (a *Assembler) Word(w uint32) { a.emit(w) }

// Image is a linked program.
type Image struct {
	Entry    uint64
	TextBase uint64
	DataBase uint64
	Text     []byte
	Data     []byte
	Symbols  map[string]uint64
}

// Link resolves every label with the text placed at textBase and the data
// on the first page after the text. entry names the first instruction.
func (a *Assembler) Link(textBase uint64, entry string) (*Image, error) {
	if a.err != nil {
		return nil, a.err
	}

	img := &Image{
		TextBase: textBase,
		DataBase: (textBase + uint64(len(a.text))*4 + pageSize - 1) &^ (pageSize - 1),
		Text:     make([]byte, len(a.text)*4),
		Data:     append([]byte(nil), a.data...),
		Symbols:  make(map[string]uint64, len(a.textLabels)+len(a.dataLabels)),
	}
	for name, off := range a.textLabels {
		img.Symbols[name] = textBase + uint64(off)
	}
	for name, off := range a.dataLabels {
		img.Symbols[name] = img.DataBase + uint64(off)
	}

	sym := func(name string) (uint64, error) {
		addr, ok := img.Symbols[name]
		if !ok {
			return 0, fmt.Errorf("undefined symbol %q", name)
		}
		return addr, nil
	}

	for i, in := range a.text {
		word := in.word
		if in.fix != nil {
			var err error
			if word, err = in.fix(textBase+uint64(i)*4, sym); err != nil {
				return nil, err
			}
		}
		binary.LittleEndian.PutUint32(img.Text[i*4:], word)
	}

	var err error
	if img.Entry, err = sym(entry); err != nil {
		return nil, err
	}
	return img, nil
}

// ELF returns the image as an executable: the text segment is R+X and the
// data segment, if any, R+W.
func (img *Image) ELF() []byte {
	segs := []elfgen.Segment{{Vaddr: img.TextBase, Flags: elf.PF_R | elf.PF_X, Data: img.Text}}
	if len(img.Data) != 0 {
		segs = append(segs, elfgen.Segment{Vaddr: img.DataBase, Flags: elf.PF_R | elf.PF_W, Data: img.Data})
	}
	return elfgen.Build(img.Entry, segs...)
}

// SymbolNames returns the defined symbols in address order.
func (img *Image) SymbolNames() []string {
	names := make([]string, 0, len(img.Symbols))
	for name := range img.Symbols {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if img.Symbols[names[i]] != img.Symbols[names[j]] {
			return img.Symbols[names[i]] < img.Symbols[names[j]]
		}
		return names[i] < names[j]
	})
	return names
}
