package log

import (
	"github.com/kataras/golog"
)

// GologLogger adapts a kataras/golog logger to the Logger interface. Level
// filtering is delegated to golog, so the level configured on the wrapped
// logger (typically from GRAPHCHAT_LOG_LEVEL) stays authoritative.
type GologLogger struct {
	logger *golog.Logger
}

var _ Logger = (*GologLogger)(nil)

// NewGologLogger wraps an already configured golog logger. A nil logger
// falls back to golog's shared default instance.
func NewGologLogger(logger *golog.Logger) *GologLogger {
	if logger == nil {
		logger = golog.Default
	}
	return &GologLogger{logger: logger}
}

func (l *GologLogger) Debug(format string, v ...any) { l.logger.Debugf(format, v...) }
func (l *GologLogger) Info(format string, v ...any)  { l.logger.Infof(format, v...) }
func (l *GologLogger) Warn(format string, v ...any)  { l.logger.Warnf(format, v...) }
func (l *GologLogger) Error(format string, v ...any) { l.logger.Errorf(format, v...) }

// SetLevel adjusts the wrapped logger using the service's level vocabulary.
func (l *GologLogger) SetLevel(level Level) {
	l.logger.SetLevel(gologLevel(level))
}

func gologLevel(level Level) string {
	switch level {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	case LevelNone:
		return "disable"
	}
	return "info"
}
