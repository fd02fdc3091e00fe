package logger

import (
	"encoding/hex"
	"io"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const (
	EnvLogLevel   = "OBEX_LOG_LEVEL"
	EnvLogNoColor = "OBEX_LOG_NOCOLOR"
)

// Level represents logging level
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns string representation of Level
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// ParseLevel maps a textual level ("debug", "info", "warn", "error") to a Level.
func ParseLevel(raw string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug", "trace":
		return LevelDebug, true
	case "info":
		return LevelInfo, true
	case "warn", "warning":
		return LevelWarn, true
	case "error":
		return LevelError, true
	default:
		return LevelInfo, false
	}
}

// Logger is the interface for logging
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
	SetLevel(level Level)
}

// DefaultLogger writes through a zerolog console writer.
type DefaultLogger struct {
	zl zerolog.Logger
}

// NewDefaultLogger creates a console logger on stdout.
func NewDefaultLogger(level Level) *DefaultLogger {
	noColor, _ := strconv.ParseBool(os.Getenv(EnvLogNoColor))
	return NewWriterLogger(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
		NoColor:    noColor,
	}, level)
}

// NewWriterLogger creates a logger that writes to w.
func NewWriterLogger(w io.Writer, level Level) *DefaultLogger {
	zl := zerolog.New(w).With().Timestamp().Str("app", "obex").Logger().Level(level.zerolog())
	return &DefaultLogger{zl: zl}
}

// With returns a child logger carrying an extra component field.
func (l *DefaultLogger) With(component string) *DefaultLogger {
	return &DefaultLogger{zl: l.zl.With().Str("component", component).Logger()}
}

// Debug logs debug message
func (l *DefaultLogger) Debug(format string, args ...interface{}) {
	l.zl.Debug().Msgf(format, args...)
}

// Info logs info message
func (l *DefaultLogger) Info(format string, args ...interface{}) {
	l.zl.Info().Msgf(format, args...)
}

// Warn logs warning message
func (l *DefaultLogger) Warn(format string, args ...interface{}) {
	l.zl.Warn().Msgf(format, args...)
}

// Error logs error message
func (l *DefaultLogger) Error(format string, args ...interface{}) {
	l.zl.Error().Msgf(format, args...)
}

// SetLevel sets the logging level
func (l *DefaultLogger) SetLevel(level Level) {
	l.zl = l.zl.Level(level.zerolog())
}

// NoOpLogger is a logger that doesn't log anything
type NoOpLogger struct{}

// NewNoOpLogger creates a logger that doesn't log
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

func (l *NoOpLogger) Debug(format string, args ...interface{}) {}
func (l *NoOpLogger) Info(format string, args ...interface{})  {}
func (l *NoOpLogger) Warn(format string, args ...interface{})  {}
func (l *NoOpLogger) Error(format string, args ...interface{}) {}
func (l *NoOpLogger) SetLevel(level Level)                     {}

var (
	defaultLogger atomic.Value
	frameDebug    atomic.Bool
)

func init() {
	level := LevelInfo
	if lvl, ok := ParseLevel(os.Getenv(EnvLogLevel)); ok {
		level = lvl
	}
	defaultLogger.Store(loggerBox{NewDefaultLogger(level)})
}

type loggerBox struct{ Logger }

// SetDefault sets the default logger
func SetDefault(logger Logger) {
	if logger == nil {
		logger = NewNoOpLogger()
	}
	defaultLogger.Store(loggerBox{logger})
}

// GetDefault returns the default logger
func GetDefault() Logger {
	return defaultLogger.Load().(loggerBox).Logger
}

// OrDefault returns log, or the package default when log is nil.
func OrDefault(log Logger) Logger {
	if log == nil {
		return GetDefault()
	}
	return log
}

// ForComponent tags log with a component name when it is a DefaultLogger.
// A nil log falls back to the package default; other loggers are returned as is.
func ForComponent(log Logger, component string) Logger {
	log = OrDefault(log)
	if dl, ok := log.(*DefaultLogger); ok {
		return dl.With(component)
	}
	return log
}

// SetFrameDebug enables hex dumps of every packet written or read.
func SetFrameDebug(enable bool) {
	frameDebug.Store(enable)
}

// FrameDebugEnabled reports whether packet hex dumps are on.
func FrameDebugEnabled() bool {
	return frameDebug.Load()
}

// Frame logs a packet hex dump at debug level when frame debug is enabled.
func Frame(log Logger, direction string, data []byte) {
	if !frameDebug.Load() || log == nil {
		return
	}
	log.Debug("%s %d bytes\n%s", direction, len(data), hex.Dump(data))
}
