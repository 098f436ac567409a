package pipe

import (
	"log/slog"

	"github.com/gogpu/pipe/internal/logging"
)

// SetLogger configures the logger for pipe and all its sub-packages.
// By default, pipe produces no log output. Call SetLogger to enable logging.
//
// SetLogger is safe for concurrent use. Pass nil to restore the silent
// default.
//
// Log levels used by pipe:
//   - [slog.LevelDebug]: per-batch and allocation detail
//   - [slog.LevelInfo]: screen creation
//   - [slog.LevelWarn]: tolerated failures (shader compile, release errors)
//
// Example:
//
//	pipe.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	logging.Set(l)
}

// Logger returns the current logger.
func Logger() *slog.Logger {
	return logging.Logger()
}
