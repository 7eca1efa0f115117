package log

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
)

// Level orders message severities. Messages below the configured level are
// dropped.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelNone
)

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
	case LevelNone:
		return "NONE"
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

// ParseLevel maps the GRAPHCHAT_LOG_LEVEL vocabulary onto a Level. Unknown
// values fall back to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "none", "disable", "disabled":
		return LevelNone
	}
	return LevelInfo
}

// Logger is the printf-style leveled logger every component of the service
// takes. Components receive one by injection or fall back to the package
// default.
type Logger interface {
	Debug(format string, v ...any)
	Info(format string, v ...any)
	Warn(format string, v ...any)
	Error(format string, v ...any)
}

// DefaultLogger writes level-prefixed lines through the standard library.
// It backs the package default so tests and tools log without any setup;
// the server process swaps in GologLogger at startup.
type DefaultLogger struct {
	logger *stdlog.Logger
	level  Level
}

var _ Logger = (*DefaultLogger)(nil)

// NewDefaultLogger logs to stderr at the given level.
func NewDefaultLogger(level Level) *DefaultLogger {
	return NewWriterLogger(os.Stderr, level)
}

// NewWriterLogger directs output to an arbitrary writer, mainly for tests.
func NewWriterLogger(out io.Writer, level Level) *DefaultLogger {
	return &DefaultLogger{
		logger: stdlog.New(out, "graphchat ", stdlog.LstdFlags),
		level:  level,
	}
}

func (l *DefaultLogger) Debug(format string, v ...any) { l.log(LevelDebug, format, v...) }
func (l *DefaultLogger) Info(format string, v ...any)  { l.log(LevelInfo, format, v...) }
func (l *DefaultLogger) Warn(format string, v ...any)  { l.log(LevelWarn, format, v...) }
func (l *DefaultLogger) Error(format string, v ...any) { l.log(LevelError, format, v...) }

func (l *DefaultLogger) log(at Level, format string, v ...any) {
	if at < l.level {
		return
	}
	l.logger.Printf(at.String()+" "+format, v...)
}

var defaultLogger Logger = NewDefaultLogger(LevelInfo)

// SetDefaultLogger replaces the fallback logger components use when none
// was injected. Call it once at startup, before any component runs.
func SetDefaultLogger(l Logger) {
	defaultLogger = l
}

// GetDefaultLogger returns the current package default.
func GetDefaultLogger() Logger {
	return defaultLogger
}
