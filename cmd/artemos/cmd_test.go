package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Poseidon-fan/Artemos/kernel/hal/sbi"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestAppsCommand(t *testing.T) {
	out := execute(t, "apps")
	for _, name := range []string{"initproc", "user_shell", "forktest", "shutdown"} {
		assert.Contains(t, out, name)
	}
}

func TestDumpCommand(t *testing.T) {
	out := execute(t, "dump", "hello")
	assert.Contains(t, out, "entry 0x10000\n")
	assert.Contains(t, out, " _start\n")
	assert.Contains(t, out, " main\n")
	assert.Contains(t, out, " str.msg\n")
}

func TestExitCode(t *testing.T) {
	specs := []struct {
		status sbi.Status
		exp    int
	}{
		{sbi.StatusShutdown, 0},
		{sbi.StatusCancelled, 0},
		{sbi.StatusFailure, 1},
		{sbi.StatusPanic, 2},
	}

	for specIndex, spec := range specs {
		if got := exitCode(spec.status); got != spec.exp {
			t.Errorf("[spec %d] expected exit code %d for %s; got %d", specIndex, spec.exp, spec.status, got)
		}
	}
}
