package pipe

import (
	"log/slog"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/pipe/config"
)

// Option configures CreateScreen.
//
// Example:
//
//	// Software rendering with a custom batch size
//	cfg := config.Default()
//	cfg.MaxVerts = 256
//	s, err := pipe.CreateScreen(nil, pipe.WithDriver("softpipe"), pipe.WithConfig(cfg))
type Option func(*Options)

// Options are the resolved CreateScreen settings handed to driver
// factories.
type Options struct {
	// Driver overrides Config.Driver when set.
	Driver string

	Config config.Config

	// HAL is the device hardware drivers submit to. Nil for software
	// drivers.
	HAL *HALDevice

	Logger *slog.Logger
}

// HALDevice is an open wgpu HAL device. Adapter may be nil; drivers then
// skip adapter format queries.
type HALDevice struct {
	Adapter hal.Adapter
	Device  hal.Device
	Queue   hal.Queue

	// Limits are the limits the device was opened with. The zero value
	// means gputypes.DefaultLimits.
	Limits gputypes.Limits
}

func defaultOptions() Options {
	return Options{Config: config.Default()}
}

// WithDriver selects a driver by name, bypassing priority order.
func WithDriver(name string) Option {
	return func(o *Options) {
		o.Driver = name
	}
}

// WithConfig replaces the default configuration.
func WithConfig(c config.Config) Option {
	return func(o *Options) {
		o.Config = c
	}
}

// WithHAL hands an open HAL device to hardware drivers.
func WithHAL(d HALDevice) Option {
	return func(o *Options) {
		o.HAL = &d
	}
}

// WithLogger installs l as the package logger; see SetLogger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}
