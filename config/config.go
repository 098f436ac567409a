// Package config loads screen settings from YAML or TOML files and PIPE_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/gogpu/pipe/internal/logging"
)

// ErrInvalid is returned by Validate and the loaders for bad settings.
var ErrInvalid = errors.New("config: invalid")

// maxFileSize bounds config files read by Load.
const maxFileSize = 1 << 20

// DriverAuto selects the highest-priority driver that can be created.
const DriverAuto = "auto"

// Config holds screen settings.
type Config struct {
	// Driver names the pipe driver, or DriverAuto.
	Driver string `yaml:"driver" toml:"driver"`

	// MemoryBudgetMB is the heap allocator budget used when no allocator
	// is supplied.
	MemoryBudgetMB int `yaml:"memory_budget_mb" toml:"memory_budget_mb"`

	// BatchBytes and MaxRelocs size command batches.
	BatchBytes int `yaml:"batch_bytes" toml:"batch_bytes"`
	MaxRelocs  int `yaml:"max_relocs" toml:"max_relocs"`

	// MaxVerts and MaxElts bound vertices and elements per draw batch.
	MaxVerts int `yaml:"max_verts" toml:"max_verts"`
	MaxElts  int `yaml:"max_elts" toml:"max_elts"`

	// StrictTransfers rejects write transfers that overlap other mapped
	// transfers of the same texture.
	StrictTransfers bool `yaml:"strict_transfers" toml:"strict_transfers"`

	// Threads is the software rasterizer worker count; 0 means GOMAXPROCS.
	Threads int `yaml:"threads" toml:"threads"`

	// LogLevel is debug, info, warn or error.
	LogLevel string `yaml:"log_level" toml:"log_level"`
}

// Default returns settings that always validate.
func Default() Config {
	return Config{
		Driver:          DriverAuto,
		MemoryBudgetMB:  256,
		BatchBytes:      16 << 10,
		MaxRelocs:       256,
		MaxVerts:        1024,
		MaxElts:         1536,
		StrictTransfers: true,
		LogLevel:        "warn",
	}
}

// Validate checks every field.
func (c Config) Validate() error {
	var errs []error
	if c.Driver == "" {
		errs = append(errs, fmt.Errorf("%w: empty driver", ErrInvalid))
	}
	if c.MemoryBudgetMB <= 0 {
		errs = append(errs, fmt.Errorf("%w: memory_budget_mb %d", ErrInvalid, c.MemoryBudgetMB))
	}
	if c.BatchBytes <= 0 || c.BatchBytes%4 != 0 {
		errs = append(errs, fmt.Errorf("%w: batch_bytes %d is not a positive multiple of 4", ErrInvalid, c.BatchBytes))
	}
	if c.MaxRelocs <= 0 {
		errs = append(errs, fmt.Errorf("%w: max_relocs %d", ErrInvalid, c.MaxRelocs))
	}
	if c.MaxVerts < 4 {
		errs = append(errs, fmt.Errorf("%w: max_verts %d below 4", ErrInvalid, c.MaxVerts))
	}
	if c.MaxElts < 6 {
		errs = append(errs, fmt.Errorf("%w: max_elts %d below 6", ErrInvalid, c.MaxElts))
	}
	if c.Threads < 0 {
		errs = append(errs, fmt.Errorf("%w: threads %d", ErrInvalid, c.Threads))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Level returns the slog level named by LogLevel, or slog.LevelWarn.
func (c Config) Level() slog.Level {
	l, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelWarn
	}
	return l
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("%w: log_level %q", ErrInvalid, s)
	}
	return l, nil
}

// Parse decodes data over the defaults. The format is "yaml" or "toml".
func Parse(data []byte, format string) (Config, error) {
	c := Default()
	var err error
	switch strings.ToLower(format) {
	case "yaml", "yml":
		err = yaml.Unmarshal(data, &c)
	case "toml":
		err = toml.Unmarshal(data, &c)
	default:
		return Config{}, fmt.Errorf("%w: unknown format %q", ErrInvalid, format)
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", format, err)
	}
	return c, nil
}

// Load reads a .yaml, .yml or .toml file, applies environment overrides
// and validates the result.
func Load(path string) (Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if info.Size() > maxFileSize {
		return Config{}, fmt.Errorf("%w: %s is %d bytes", ErrInvalid, path, info.Size())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	c, err := Parse(data, strings.TrimPrefix(filepath.Ext(path), "."))
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	if err := c.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	logging.Logger().Debug("config: loaded", "path", path, "driver", c.Driver)
	return c, nil
}

// FromEnv returns the defaults with environment overrides applied.
func FromEnv() (Config, error) {
	c := Default()
	if err := c.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return c, c.Validate()
}

// ApplyEnv overrides fields from PIPE_DRIVER, PIPE_MEMORY_BUDGET_MB,
// PIPE_BATCH_BYTES, PIPE_MAX_RELOCS, PIPE_MAX_VERTS, PIPE_MAX_ELTS,
// PIPE_STRICT_TRANSFERS, PIPE_THREADS and PIPE_LOG_LEVEL.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("PIPE_DRIVER"); ok {
		c.Driver = v
	}
	if v, ok := lookup("PIPE_LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	ints := []struct {
		name string
		dst  *int
	}{
		{"PIPE_MEMORY_BUDGET_MB", &c.MemoryBudgetMB},
		{"PIPE_BATCH_BYTES", &c.BatchBytes},
		{"PIPE_MAX_RELOCS", &c.MaxRelocs},
		{"PIPE_MAX_VERTS", &c.MaxVerts},
		{"PIPE_MAX_ELTS", &c.MaxElts},
		{"PIPE_THREADS", &c.Threads},
	}
	for _, e := range ints {
		v, ok := lookup(e.name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalid, e.name, v)
		}
		*e.dst = n
	}
	if v, ok := lookup("PIPE_STRICT_TRANSFERS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: PIPE_STRICT_TRANSFERS=%q", ErrInvalid, v)
		}
		c.StrictTransfers = b
	}
	return nil
}
