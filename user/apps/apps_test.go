package apps

import (
	"bytes"
	"debug/elf"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Poseidon-fan/Artemos/kernel/loader"
	"github.com/Poseidon-fan/Artemos/kernel/syscall"
)

func TestAllProgramsLoad(t *testing.T) {
	images, err := All()
	require.NoError(t, err)
	require.Len(t, images, len(Names()))

	r := loader.NewRegistry()
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			require.Nil(t, r.Register(name, images[name]))

			img, err := Assemble(name)
			require.NoError(t, err)
			assert.Equal(t, img.Symbols["_start"], img.Entry)
			assert.Contains(t, img.Symbols, "main")
			assert.Equal(t, uint64(TextBase), img.TextBase)
		})
	}
}

func TestUnknownProgram(t *testing.T) {
	if _, err := Build("nope"); err == nil {
		t.Fatal("expected an error for an unknown program")
	}
}

func TestImagesAreExecutable(t *testing.T) {
	image, err := Build("hello")
	require.NoError(t, err)

	f, err := elf.NewFile(bytes.NewReader(image))
	require.NoError(t, err)
	require.Len(t, f.Progs, 2)
	assert.Equal(t, elf.PF_R|elf.PF_X, f.Progs[0].Flags)
	assert.Equal(t, elf.PF_R|elf.PF_W, f.Progs[1].Flags)
}

func TestABIMatchesKernel(t *testing.T) {
	specs := []struct {
		user, kernel int64
	}{
		{sysRead, syscall.SysRead},
		{sysWrite, syscall.SysWrite},
		{sysExit, syscall.SysExit},
		{sysYield, syscall.SysYield},
		{sysReboot, syscall.SysReboot},
		{sysGetTime, syscall.SysGetTime},
		{sysGetPID, syscall.SysGetPID},
		{sysFork, syscall.SysFork},
		{sysExec, syscall.SysExec},
		{sysWaitPID, syscall.SysWaitPID},
		{rebootMagic1, syscall.RebootMagic1},
		{rebootMagic2, syscall.RebootMagic2},
		{rebootCmdHalt, syscall.RebootCmdHalt},
		{waitAgain, -2},
	}

	for specIndex, spec := range specs {
		if spec.user != spec.kernel {
			t.Errorf("[spec %d] expected %d; got %d", specIndex, spec.kernel, spec.user)
		}
	}

	for _, sc := range syscalls {
		if got := syscall.Name(uint64(sc.id)); got != sc.name {
			t.Errorf("expected syscall %d to be called %q; got %q", sc.id, sc.name, got)
		}
	}
}
