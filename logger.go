package rtcore

import (
	"log/slog"

	"github.com/gogpu/rtcore/internal/trace"
)

// SetLogger configures the logger for rtcore and all its sub-packages.
// By default, rtcore produces no log output. Call SetLogger to enable logging.
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
// Pass nil to disable logging (restore default silent behavior).
//
// Log levels used by rtcore:
//   - [slog.LevelDebug]: resource creation, batch flushes, acceleration structure builds
//   - [slog.LevelInfo]: context creation and pass initialization
//   - [slog.LevelWarn]: non-fatal issues (double release, use of an uninitialized wrapper)
//   - [slog.LevelError]: failure traces when debug is enabled, see SetDebug
//
// Example:
//
//	rtcore.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	trace.SetLogger(l)
}

// Logger returns the current logger used by rtcore.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return trace.Logger()
}

// SetDebug toggles failure traces. When on, every error raised by rtcore
// packages is logged at error level with its stack trace before it is
// returned. Builds with the rtdebug tag start with traces enabled.
func SetDebug(on bool) {
	trace.SetDebug(on)
}

// Debug reports whether failure traces are enabled.
func Debug() bool {
	return trace.Debug()
}
