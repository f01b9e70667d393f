package loader

import (
	"bytes"
	"debug/elf"
	"testing"

	"github.com/Poseidon-fan/Artemos/kernel/kfmt"
	"github.com/Poseidon-fan/Artemos/user/elfgen"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage() []byte {
	return elfgen.Build(0x1_0000, elfgen.Segment{
		Vaddr: 0x1_0000,
		Flags: elf.PF_R | elf.PF_X,
		Data:  []byte{0x73, 0x00, 0x00, 0x00},
	})
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	require.Nil(t, r.Register("user_shell", testImage()))
	require.Nil(t, r.Register("hello", testImage()))
	assert.Equal(t, ErrDuplicateApp, r.Register("hello", testImage()))

	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []string{"hello", "user_shell"}, r.Names())

	image, ok := r.Lookup("hello")
	assert.True(t, ok)
	assert.Equal(t, testImage(), image)

	_, ok = r.Lookup("missing")
	assert.False(t, ok)
}

func TestRegisterRejectsBadImages(t *testing.T) {
	wrongMachine := testImage()
	wrongMachine[18] = byte(elf.EM_X86_64)

	truncated := testImage()[:20]

	specs := []struct {
		name  string
		image []byte
	}{
		{"empty", nil},
		{"no magic", []byte("#!/bin/sh\necho hi\n")},
		{"truncated", truncated},
		{"wrong machine", wrongMachine},
	}

	r := NewRegistry()
	for _, spec := range specs {
		t.Run(spec.name, func(t *testing.T) {
			assert.Equal(t, ErrBadImage, r.Register(spec.name, spec.image))
		})
	}
	assert.Zero(t, r.Len())
}

func TestList(t *testing.T) {
	var buf bytes.Buffer
	kfmt.SetOutputSink(&buf)
	defer kfmt.SetOutputSink(nil)

	r := NewRegistry()
	require.Nil(t, r.Register("hello", testImage()))
	require.Nil(t, r.Register("exit", testImage()))
	r.List()

	exp := "/**** APPS ****\nexit\nhello\n**************/\n"
	if got := buf.String(); got != exp {
		t.Fatalf("expected output:\n%q\ngot:\n%q", exp, got)
	}
}
