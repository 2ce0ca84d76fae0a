package rtcore

import (
	"bytes"
	"log/slog"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"

	"github.com/gogpu/rtcore/backend"
	"github.com/gogpu/rtcore/backend/soft"
	"github.com/gogpu/rtcore/gpu"
)

// ErrInvalidConfig is returned for configurations that fail Validate.
var ErrInvalidConfig = errors.New("rtcore: invalid config")

// Config is the TOML configuration of a Context.
//
//	backend = "soft"
//	debug = true
//	log_level = "debug"
//	swap_chain_images = 3
//
//	[limits]
//	shader_record_alignment = 32
//
//	[soft]
//	memory_budget_mb = 256
type Config struct {
	// Backend names the device backend OpenDevice opens. "auto" picks the
	// best registered one, see backend.OpenDefault.
	Backend string `toml:"backend"`

	// Debug enables failure traces, see SetDebug.
	Debug bool `toml:"debug"`

	// LogLevel is one of debug, info, warn or error.
	LogLevel string `toml:"log_level"`

	// SwapChainImages is the number of presentable images.
	SwapChainImages int `toml:"swap_chain_images"`

	Limits LimitsConfig `toml:"limits"`
	Soft   SoftConfig   `toml:"soft"`
}

// LimitsConfig overrides platform limits. Zero keeps the default.
type LimitsConfig struct {
	AccelerationStructureAlignment uint64 `toml:"acceleration_structure_alignment"`
	ShaderRecordAlignment          uint64 `toml:"shader_record_alignment"`
	ShaderTableAlignment           uint64 `toml:"shader_table_alignment"`
	ShaderIdentifierSize           int    `toml:"shader_identifier_size"`
	MaxShaderRecordStride          uint64 `toml:"max_shader_record_stride"`
}

// SoftConfig configures the software device.
type SoftConfig struct {
	// MemoryBudgetMB bounds device memory. Zero means unlimited.
	MemoryBudgetMB uint64 `toml:"memory_budget_mb"`
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		Backend:         backend.Soft,
		LogLevel:        "info",
		SwapChainImages: 2,
	}
}

// ParseConfig decodes TOML over DefaultConfig and validates the result.
// Unknown keys are rejected.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "rtcore: parse config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads and parses the TOML file at path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "rtcore: read config %s", path)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return Config{}, errors.Wrapf(err, "%s", path)
	}
	return cfg, nil
}

// Validate checks alignments and sizes.
func (c *Config) Validate() error {
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	if c.Backend == "" {
		return errors.Wrap(ErrInvalidConfig, "backend is empty")
	}
	if c.SwapChainImages < 1 {
		return errors.Wrapf(ErrInvalidConfig, "swap_chain_images %d", c.SwapChainImages)
	}

	l := c.GPULimits()
	for _, a := range []struct {
		name string
		v    uint64
	}{
		{"acceleration_structure_alignment", l.AccelerationStructureAlignment},
		{"shader_record_alignment", l.ShaderRecordAlignment},
		{"shader_table_alignment", l.ShaderTableAlignment},
	} {
		if !gpu.IsPowerOfTwo(a.v) {
			return errors.Wrapf(ErrInvalidConfig, "%s %d is not a power of two", a.name, a.v)
		}
	}
	if l.ShaderIdentifierSize < 0 || uint64(l.ShaderIdentifierSize) > l.MaxShaderRecordStride {
		return errors.Wrapf(ErrInvalidConfig, "shader_identifier_size %d exceeds max_shader_record_stride %d",
			l.ShaderIdentifierSize, l.MaxShaderRecordStride)
	}
	if l.ShaderTableAlignment < l.ShaderRecordAlignment {
		return errors.Wrapf(ErrInvalidConfig, "shader_table_alignment %d below shader_record_alignment %d",
			l.ShaderTableAlignment, l.ShaderRecordAlignment)
	}
	return nil
}

// SlogLevel returns LogLevel as a slog level. Empty means info.
func (c *Config) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, errors.Wrapf(ErrInvalidConfig, "log_level %q", c.LogLevel)
	}
	return lvl, nil
}

// GPULimits returns the default limits with the configured overrides.
func (c *Config) GPULimits() gpu.Limits {
	l := gpu.DefaultLimits()
	o := c.Limits
	if o.AccelerationStructureAlignment != 0 {
		l.AccelerationStructureAlignment = o.AccelerationStructureAlignment
	}
	if o.ShaderRecordAlignment != 0 {
		l.ShaderRecordAlignment = o.ShaderRecordAlignment
	}
	if o.ShaderTableAlignment != 0 {
		l.ShaderTableAlignment = o.ShaderTableAlignment
	}
	if o.ShaderIdentifierSize != 0 {
		l.ShaderIdentifierSize = o.ShaderIdentifierSize
	}
	if o.MaxShaderRecordStride != 0 {
		l.MaxShaderRecordStride = o.MaxShaderRecordStride
	}
	return l
}

// NewSoftDevice returns a software device with the configured limits and
// memory budget.
func (c *Config) NewSoftDevice() *soft.Device {
	return soft.New(
		soft.WithLimits(c.GPULimits()),
		soft.WithMemoryBudget(c.Soft.MemoryBudgetMB<<20),
	)
}

// BackendAuto selects the best registered backend.
const BackendAuto = "auto"

// OpenDevice opens the configured backend. The soft backend honours the
// limits and memory budget of c; other backends report their own limits.
// Backends other than soft must be linked in with a blank import of their
// package.
func (c *Config) OpenDevice() (backend.Device, error) {
	switch c.Backend {
	case backend.Soft:
		return c.NewSoftDevice(), nil
	case BackendAuto:
		dev, name, err := backend.OpenDefault()
		if err != nil {
			return nil, err
		}
		if name == backend.Soft {
			dev.Close()
			return c.NewSoftDevice(), nil
		}
		return dev, nil
	default:
		return backend.Open(c.Backend)
	}
}
