package obex

import (
	"fmt"

	"avaneesh/obex-go/pkg/internal/logger"
)

// Logger is the logging interface accepted by clients and servers.
type Logger = logger.Logger

// LogLevel represents logging level
type LogLevel = logger.Level

const (
	// LevelDebug shows all log messages (most verbose)
	LevelDebug = logger.LevelDebug
	// LevelInfo shows info, warn, and error messages (default)
	LevelInfo = logger.LevelInfo
	// LevelWarn shows warn and error messages
	LevelWarn = logger.LevelWarn
	// LevelError shows only error messages
	LevelError = logger.LevelError
)

// SetLogLevel replaces the package default logger with a console logger at level.
func SetLogLevel(level LogLevel) {
	logger.SetDefault(logger.NewDefaultLogger(level))
}

// ParseLogLevel maps "debug", "info", "warn" or "error" to a level.
func ParseLogLevel(raw string) (LogLevel, error) {
	level, ok := logger.ParseLevel(raw)
	if !ok {
		return LevelInfo, fmt.Errorf("obex: unknown log level %q", raw)
	}
	return level, nil
}

// EnableFrameDebug enables or disables detailed frame debugging
// When enabled, shows hex dumps of all OBEX packets sent and received
func EnableFrameDebug(enable bool) {
	logger.SetFrameDebug(enable)
}

// NoOpLogger returns a logger that discards everything.
func NoOpLogger() Logger {
	return logger.NewNoOpLogger()
}
