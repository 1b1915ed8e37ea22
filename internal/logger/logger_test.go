package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestJSONConsole(t *testing.T) {
	var buf bytes.Buffer
	log, err := InitForAPI("debug", WithConsole(&buf))
	require.NoError(t, err)

	log.Debug("task queued", zap.String("key", "abc"))
	require.NoError(t, log.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "task queued", entry["msg"])
	assert.Equal(t, "abc", entry["key"])
	assert.Equal(t, "debug", entry["level"])
}

func TestLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log, err := InitForCLI("warn", WithConsole(&buf))
	require.NoError(t, err)

	log.Info("hidden")
	log.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestUnknownLevel(t *testing.T) {
	cfg := &Config{}
	WithLevel("loud")(cfg)
	assert.Equal(t, zapcore.InfoLevel, cfg.Level)
}

func TestFileOutput(t *testing.T) {
	name := filepath.Join(t.TempDir(), "nested", "handoff.log")
	log, err := New(WithConsoleOutput(false), WithFileOutput(true), WithFilename(name))
	require.NoError(t, err)

	log.Info("written to file")
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(name)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}

func TestNoOutput(t *testing.T) {
	_, err := New(WithConsoleOutput(false))
	assert.Error(t, err)
}
