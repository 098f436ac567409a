package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, DriverAuto, c.Driver)
	assert.Equal(t, slog.LevelWarn, c.Level())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty driver", func(c *Config) { c.Driver = "" }},
		{"zero budget", func(c *Config) { c.MemoryBudgetMB = 0 }},
		{"unaligned batch", func(c *Config) { c.BatchBytes = 6 }},
		{"no relocs", func(c *Config) { c.MaxRelocs = 0 }},
		{"tiny verts", func(c *Config) { c.MaxVerts = 3 }},
		{"tiny elts", func(c *Config) { c.MaxElts = 5 }},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }},
		{"negative threads", func(c *Config) { c.Threads = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(&c)
			assert.ErrorIs(t, c.Validate(), ErrInvalid)
		})
	}
}

func TestParse(t *testing.T) {
	yamlDoc := []byte("driver: softpipe\nmax_verts: 64\nstrict_transfers: false\nlog_level: debug\n")
	c, err := Parse(yamlDoc, "yaml")
	require.NoError(t, err)
	assert.Equal(t, "softpipe", c.Driver)
	assert.Equal(t, 64, c.MaxVerts)
	assert.False(t, c.StrictTransfers)
	assert.Equal(t, slog.LevelDebug, c.Level())
	assert.Equal(t, Default().BatchBytes, c.BatchBytes, "unset fields keep defaults")

	tomlDoc := []byte("driver = \"halpipe\"\nbatch_bytes = 4096\nmax_relocs = 32\n")
	c, err = Parse(tomlDoc, "toml")
	require.NoError(t, err)
	assert.Equal(t, "halpipe", c.Driver)
	assert.Equal(t, 4096, c.BatchBytes)
	assert.Equal(t, 32, c.MaxRelocs)

	_, err = Parse(yamlDoc, "ini")
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = Parse([]byte("driver = ["), "toml")
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	write := func(t *testing.T, name, body string) string {
		t.Helper()
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
		return path
	}

	t.Run("env overrides file", func(t *testing.T) {
		path := write(t, "pipe.toml", "driver = \"softpipe\"\nmax_elts = 96\n")
		t.Setenv("PIPE_MAX_VERTS", "48")
		c, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "softpipe", c.Driver)
		assert.Equal(t, 96, c.MaxElts)
		assert.Equal(t, 48, c.MaxVerts)
	})

	t.Run("invalid file", func(t *testing.T) {
		_, err := Load(write(t, "bad.yml", "max_verts: 2\n"))
		assert.ErrorIs(t, err, ErrInvalid)
	})

	t.Run("env repairs nothing it does not name", func(t *testing.T) {
		t.Setenv("PIPE_MAX_VERTS", "48")
		_, err := Load(write(t, "bad_elts.yml", "max_elts: 2\n"))
		assert.ErrorIs(t, err, ErrInvalid)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "missing.yaml"))
		assert.True(t, errors.Is(err, os.ErrNotExist))
	})
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"PIPE_DRIVER":           "halpipe",
		"PIPE_MEMORY_BUDGET_MB": "64",
		"PIPE_STRICT_TRANSFERS": "false",
		"PIPE_LOG_LEVEL":        "error",
		"PIPE_THREADS":          "3",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	c := Default()
	require.NoError(t, c.ApplyEnv(lookup))
	assert.Equal(t, "halpipe", c.Driver)
	assert.Equal(t, 64, c.MemoryBudgetMB)
	assert.False(t, c.StrictTransfers)
	assert.Equal(t, slog.LevelError, c.Level())
	assert.Equal(t, 3, c.Threads)

	env["PIPE_MAX_RELOCS"] = "many"
	assert.ErrorIs(t, c.ApplyEnv(lookup), ErrInvalid)

	delete(env, "PIPE_MAX_RELOCS")
	env["PIPE_STRICT_TRANSFERS"] = "maybe"
	assert.ErrorIs(t, c.ApplyEnv(lookup), ErrInvalid)
}

func TestFromEnv(t *testing.T) {
	t.Setenv("PIPE_DRIVER", "softpipe")
	c, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "softpipe", c.Driver)
}
