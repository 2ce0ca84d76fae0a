package trace

import (
	"fmt"
	"log/slog"
	"sync/atomic"
)

var debugEnabled atomic.Bool

func init() {
	debugEnabled.Store(debugBuild)
}

// SetDebug toggles failure traces at runtime. Builds with the rtdebug tag
// start with traces enabled.
func SetDebug(on bool) {
	debugEnabled.Store(on)
}

// Debug reports whether failure traces are enabled.
func Debug() bool {
	return debugEnabled.Load()
}

// Fail logs err with its stack trace when debug traces are enabled and
// returns err unchanged, so call sites can write
//
//	return trace.Fail(err)
func Fail(err error) error {
	if err == nil || !debugEnabled.Load() {
		return err
	}
	Logger().Error("rtcore: failure", slog.String("trace", fmt.Sprintf("%+v", err)))
	return err
}
