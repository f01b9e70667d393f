package kfmt

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Level is the severity of a log record.
type Level uint32

// The supported log levels, from the least to the most verbose.
const (
	LevelError Level = iota + 1
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

var (
	maxLevel  atomic.Uint32
	useColors atomic.Bool

	levelNames  = [...]string{"", "ERROR", "WARN", "INFO", "DEBUG", "TRACE"}
	levelColors = [...]int{0, 31, 93, 34, 32, 90}
)

func init() {
	maxLevel.Store(uint32(LevelInfo))
	useColors.Store(true)
}

// String returns the upper-case level name.
func (l Level) String() string {
	if l < LevelError || l > LevelTrace {
		return fmt.Sprintf("LEVEL(%d)", uint32(l))
	}
	return levelNames[l]
}

// ParseLevel maps a LOG setting to a level. Unknown or empty values select
// LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error":
		return LevelError
	case "warn":
		return LevelWarn
	case "debug":
		return LevelDebug
	case "trace":
		return LevelTrace
	default:
		return LevelInfo
	}
}

// SetLevel sets the most verbose level that still gets printed.
func SetLevel(l Level) { maxLevel.Store(uint32(l)) }

// SetColors toggles the ANSI color escapes around log records.
func SetColors(enabled bool) { useColors.Store(enabled) }

// Enabled returns true if records at level l are printed.
func Enabled(l Level) bool { return uint32(l) <= maxLevel.Load() }

// Logf prints a single log record at the given level.
func Logf(l Level, format string, args ...interface{}) {
	if !Enabled(l) {
		return
	}

	msg := fmt.Sprintf(format, args...)
	if useColors.Load() {
		Printf("\x1b[%dm[%s] - %s\x1b[0m\n", levelColors[l], l, msg)
		return
	}
	Printf("[%s] - %s\n", l, msg)
}

// Errorf logs at LevelError.
func Errorf(format string, args ...interface{}) { Logf(LevelError, format, args...) }

// Warnf logs at LevelWarn.
func Warnf(format string, args ...interface{}) { Logf(LevelWarn, format, args...) }

// Infof logs at LevelInfo.
func Infof(format string, args ...interface{}) { Logf(LevelInfo, format, args...) }

// Debugf logs at LevelDebug.
func Debugf(format string, args ...interface{}) { Logf(LevelDebug, format, args...) }

// Tracef logs at LevelTrace.
func Tracef(format string, args ...interface{}) { Logf(LevelTrace, format, args...) }
