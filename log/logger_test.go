package log

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultLoggerFiltersBelowLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, LevelWarn)

	logger.Debug("dropped")
	logger.Info("dropped")
	assert.Empty(t, buf.String())

	logger.Warn("load session history %s: %v", "s1", "timeout")
	assert.Contains(t, buf.String(), "WARN load session history s1: timeout")
	assert.Contains(t, buf.String(), "graphchat ")
}

func TestDefaultLoggerNoneDisablesOutput(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, LevelNone)

	logger.Error("config reload failed: %v", "bad json")
	assert.Empty(t, buf.String())
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"disable", LevelNone},
		{" none ", LevelNone},
		{"bogus", LevelInfo},
		{"", LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), "input %q", tt.in)
	}
}

func TestSetDefaultLogger(t *testing.T) {
	orig := GetDefaultLogger()
	defer SetDefaultLogger(orig)

	var buf bytes.Buffer
	SetDefaultLogger(NewWriterLogger(&buf, LevelInfo))

	GetDefaultLogger().Info("configuration reloaded")
	assert.Contains(t, buf.String(), "configuration reloaded")
}
