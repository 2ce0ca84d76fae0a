package rtcore

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/rtcore/backend"
	"github.com/gogpu/rtcore/backend/soft"
	"github.com/gogpu/rtcore/gpu"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, gpu.DefaultLimits(), cfg.GPULimits())

	lvl, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, lvl)
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
debug = true
log_level = "debug"
swap_chain_images = 3

[limits]
shader_record_alignment = 64
shader_table_alignment = 128

[soft]
memory_budget_mb = 16
`))
	require.NoError(t, err)
	assert.True(t, cfg.Debug)
	assert.Equal(t, 3, cfg.SwapChainImages)
	assert.Equal(t, uint64(16), cfg.Soft.MemoryBudgetMB)

	lvl, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)

	l := cfg.GPULimits()
	assert.Equal(t, uint64(64), l.ShaderRecordAlignment)
	assert.Equal(t, uint64(128), l.ShaderTableAlignment)
	assert.Equal(t, uint64(gpu.DefaultAccelerationStructureAlignment), l.AccelerationStructureAlignment)
}

func TestParseConfigKeepsDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(`debug = false`))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestParseConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		invalid bool
	}{
		{"syntax", `debug = `, false},
		{"unknown key", `colour = "blue"`, false},
		{"level", `log_level = "loud"`, true},
		{"images", `swap_chain_images = 0`, true},
		{"backend", `backend = ""`, true},
		{"alignment", "[limits]\nshader_record_alignment = 48", true},
		{"identifier", "[limits]\nshader_identifier_size = 8192", true},
		{"table below record", "[limits]\nshader_record_alignment = 128", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.data))
			require.Error(t, err)
			assert.Equal(t, tt.invalid, errors.Is(err, ErrInvalidConfig))
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rtcore.toml")
	require.NoError(t, os.WriteFile(path, []byte("swap_chain_images = 4\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.SwapChainImages)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestNewSoftDevice(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Limits.ShaderIdentifierSize = 16
	cfg.Soft.MemoryBudgetMB = 1

	dev := cfg.NewSoftDevice()
	assert.Equal(t, 16, dev.Limits().ShaderIdentifierSize)

	desc := gpu.BufferDesc(2<<20, 0)
	_, err := dev.CreateResource(gpu.MemoryDeviceLocal, &desc, gpu.StateCommon, nil, "big")
	assert.True(t, errors.Is(err, gpu.ErrOutOfMemory))
}

func TestOpenDevice(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Soft.MemoryBudgetMB = 1

	dev, err := cfg.OpenDevice()
	require.NoError(t, err)
	defer dev.Close()
	sd, ok := dev.(*soft.Device)
	require.True(t, ok)

	desc := gpu.BufferDesc(2<<20, 0)
	_, err = sd.CreateResource(gpu.MemoryDeviceLocal, &desc, gpu.StateCommon, nil, "big")
	assert.True(t, errors.Is(err, gpu.ErrOutOfMemory))
}

func TestOpenDeviceAuto(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = BackendAuto
	cfg.Limits.ShaderIdentifierSize = 16

	dev, err := cfg.OpenDevice()
	require.NoError(t, err)
	defer dev.Close()
	assert.Equal(t, 16, dev.Limits().ShaderIdentifierSize)
}

func TestOpenDeviceUnknown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = "metal"

	_, err := cfg.OpenDevice()
	assert.True(t, errors.Is(err, backend.ErrBackendNotAvailable))
}
