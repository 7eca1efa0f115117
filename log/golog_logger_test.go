package log

import (
	"bytes"
	"testing"

	"github.com/kataras/golog"
	"github.com/stretchr/testify/assert"
)

func newCapturedGolog(level string) (*GologLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	gl := golog.New()
	gl.SetOutput(&buf)
	gl.SetTimeFormat("")
	gl.SetLevel(level)
	return NewGologLogger(gl), &buf
}

func TestGologLoggerFormatsArguments(t *testing.T) {
	logger, buf := newCapturedGolog("debug")

	logger.Info("selected workflow %s (task_type=%q)", "general", "")

	assert.Contains(t, buf.String(), `selected workflow general (task_type="")`)
}

func TestGologLoggerHonorsWrappedLevel(t *testing.T) {
	logger, buf := newCapturedGolog("error")

	logger.Debug("graph %s: executing node %s", "general", "generate_answer")
	logger.Info("listening on %s", ":8899")
	assert.Empty(t, buf.String())

	logger.Error("open session store: %v", "unable to open database file")
	assert.Contains(t, buf.String(), "open session store: unable to open database file")
}

func TestGologLoggerSetLevel(t *testing.T) {
	logger, buf := newCapturedGolog("debug")

	logger.SetLevel(LevelNone)
	logger.Error("http server: %v", "address already in use")
	assert.Empty(t, buf.String())

	logger.SetLevel(LevelDebug)
	logger.Debug("graph %s: router %s -> %s", "uav_weather", "weather_tool", "flight_analyzer")
	assert.Contains(t, buf.String(), "weather_tool -> flight_analyzer")
}

func TestGologLoggerNilFallsBackToSharedDefault(t *testing.T) {
	logger := NewGologLogger(nil)

	assert.NotNil(t, logger)
	assert.Same(t, golog.Default, logger.logger)
}
