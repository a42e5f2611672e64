package logging

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevelDefaultsToInfo(t *testing.T) {
	assert.Equal(t, LevelInfo, ParseLevel(""))
	assert.Equal(t, LevelInfo, ParseLevel("bogus"))
	assert.Equal(t, LevelError, ParseLevel("ERROR"))
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelTrace, ParseLevel("trace"))
	assert.Equal(t, LevelWarn, ParseLevel("warn"))
}

func TestLevelFromEnvDefault(t *testing.T) {
	require.NoError(t, os.Unsetenv("RJSERVER_LOG"))
	assert.Equal(t, LevelInfo, LevelFromEnv())
}

func TestLoggerSuppressesBelowThreshold(t *testing.T) {
	var buf bytes.Buffer
	l := New("rjs-test", LevelWarn, &buf)

	l.Info("should not appear")
	l.Debug("should not appear")
	assert.Empty(t, buf.String())

	l.Warn("should appear")
	assert.Contains(t, buf.String(), "should appear")
	assert.Contains(t, buf.String(), "WARN")
}

func TestPrintIsUnconditional(t *testing.T) {
	var buf bytes.Buffer
	l := New("rjs-test", LevelError, &buf)

	l.Print("hello", "world")
	assert.Contains(t, buf.String(), "hello world")
}

func TestPrintfFormats(t *testing.T) {
	var buf bytes.Buffer
	l := New("rjs-test", LevelError, &buf)

	l.Printf("count=%d", 3)
	assert.Contains(t, buf.String(), "count=3")
}

func TestDebugvIncludesStructuredDump(t *testing.T) {
	var buf bytes.Buffer
	l := New("rjs-test", LevelDebug, &buf)

	l.Debugv("req", map[string]int{"a": 1})
	out := buf.String()
	assert.Contains(t, out, "req:")
	assert.Contains(t, out, "a")
}

func TestEmitEscapesQuotesInMessage(t *testing.T) {
	var buf bytes.Buffer
	l := New("rjs-test", LevelInfo, &buf)

	l.Info(`says "hi"`)
	assert.Contains(t, buf.String(), `says \"hi\"`)
}
