package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapLookup(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, uint64(0x8020_0000+0x2_0000+0x8000+0x8000+0x2_0000), cfg.KernelEnd())
}

func TestFromEnv(t *testing.T) {
	cfg, err := FromEnv(mapLookup(map[string]string{
		"ARTEMOS_MEMORY_END": "0x81000000",
		"ARTEMOS_CLOCK_FREQ": "100000",
		"ARTEMOS_HARTS":      "2",
		"ARTEMOS_LOG_COLORS": "false",
		"LOG":                "debug",
	}))
	require.NoError(t, err)

	assert.Equal(t, uint64(0x8100_0000), cfg.MemoryEnd)
	assert.Equal(t, uint64(100_000), cfg.ClockFreq)
	assert.Equal(t, 2, cfg.Harts)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.False(t, cfg.LogColors)
	assert.Equal(t, Default().KernelBase, cfg.KernelBase)
}

func TestFromEnvErrors(t *testing.T) {
	specs := map[string]map[string]string{
		"bad number":     {"ARTEMOS_MEMORY_END": "lots"},
		"bad harts":      {"ARTEMOS_HARTS": "two"},
		"bad bool":       {"ARTEMOS_LOG_COLORS": "maybe"},
		"zero harts":     {"ARTEMOS_HARTS": "0"},
		"tiny memory":    {"ARTEMOS_MEMORY_END": "0x80200000"},
		"odd base":       {"ARTEMOS_KERNEL_BASE": "0x80200010"},
		"base below RAM": {"ARTEMOS_KERNEL_BASE": "0x70000000"},
		"short text":     {"ARTEMOS_TEXT_SIZE": "8192"},
		"zero ticks":     {"ARTEMOS_TICKS_PER_SEC": "0"},
		"odd frequency":  {"ARTEMOS_CLOCK_FREQ": "12345"},
	}

	for name, env := range specs {
		t.Run(name, func(t *testing.T) {
			_, err := FromEnv(mapLookup(env))
			assert.Error(t, err)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("ARTEMOS_TICKS_PER_SEC=50\n"), 0o600))

	cfg, err := Load(path, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, uint64(50), cfg.TicksPerSec)
}
