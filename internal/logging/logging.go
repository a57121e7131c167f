// Package logging is a small levelled wrapper around the standard logger.
//
// The level comes from DEBUG=1 or LOG_LEVEL (debug, info, warn, error) the
// first time it is needed; the jpegtran CLI overrides it with SetLevel.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// LogLevel is the severity of a message. Messages below the current level
// are dropped.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{"debug", "info", "warn", "error"}

// prefixes are written in front of each message, indexed by level.
var prefixes = [...]string{"[DEBUG] ", "[INFO] ", "[WARN] ", "[ERROR] "}

func (l LogLevel) String() string {
	if l < LevelDebug || l > LevelError {
		return fmt.Sprintf("unknown(%d)", int(l))
	}
	return levelNames[l]
}

var (
	level     atomic.Int32
	levelOnce sync.Once
)

// ParseLevel maps a level name to a LogLevel. Unknown names give LevelInfo
// and false.
func ParseLevel(s string) (LogLevel, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		s = "warn"
	}
	for i, name := range levelNames {
		if s == name {
			return LogLevel(i), true
		}
	}
	return LevelInfo, false
}

// levelFromEnv resolves the level from DEBUG and LOG_LEVEL.
func levelFromEnv() LogLevel {
	switch strings.ToLower(os.Getenv("DEBUG")) {
	case "1", "true", "yes", "on":
		return LevelDebug
	}
	l, _ := ParseLevel(os.Getenv("LOG_LEVEL"))
	return l
}

// GetLevel returns the current level.
func GetLevel() LogLevel {
	levelOnce.Do(func() { level.Store(int32(levelFromEnv())) })
	return LogLevel(level.Load())
}

// SetLevel overrides the level taken from the environment.
func SetLevel(l LogLevel) {
	levelOnce.Do(func() {})
	level.Store(int32(l))
}

// SetOutput redirects all log output.
func SetOutput(w io.Writer) {
	log.SetOutput(w)
}

func IsDebugEnabled() bool {
	return GetLevel() <= LevelDebug
}

func logAt(l LogLevel, format string, args []any) {
	if GetLevel() <= l {
		log.Printf(prefixes[l]+format, args...)
	}
}

func Debug(format string, args ...any) { logAt(LevelDebug, format, args) }
func Info(format string, args ...any)  { logAt(LevelInfo, format, args) }
func Warn(format string, args ...any)  { logAt(LevelWarn, format, args) }
func Error(format string, args ...any) { logAt(LevelError, format, args) }

// Fatal logs regardless of level and exits with status 1.
func Fatal(format string, args ...any) {
	log.Fatalf("[FATAL] "+format, args...)
}

// Printf logs without a prefix regardless of level. The access log uses it.
func Printf(format string, args ...any) {
	log.Printf(format, args...)
}
