package logging_test

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

	"github.com/torosent/crankvu/internal/config"
	"github.com/torosent/crankvu/internal/logging"
)

func TestNewJSONLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, closeLog, err := logging.New(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)
	defer closeLog()

	logger.Info("hidden")
	logger.Warn("request failed", zap.Int("vu", 3), zap.String("kind", "Timeout"))
	require.NoError(t, logger.Sync())

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "request failed", entry["msg"])
	assert.EqualValues(t, 3, entry["vu"])
	assert.Equal(t, "Timeout", entry["kind"])
}

func TestNewConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, closeLog, err := logging.New(config.LogConfig{Level: "debug", Format: "console"}, &buf)
	require.NoError(t, err)
	defer closeLog()

	logger.Debug("scaled virtual users", zap.Int("to", 4))
	assert.Contains(t, buf.String(), "debug")
	assert.Contains(t, buf.String(), "scaled virtual users")
	assert.Contains(t, buf.String(), `"to": 4`)
}

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	var console bytes.Buffer
	logger, closeLog, err := logging.New(config.LogConfig{Level: "info", Format: "json", File: path}, &console)
	require.NoError(t, err)

	logger.Info("run started", zap.String("run_id", "01ABC"))
	require.NoError(t, closeLog())
	require.NoError(t, closeLog(), "closing twice is harmless")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"run_id":"01ABC"`)
	assert.Empty(t, console.String())
}

func TestNewRejectsBadSettings(t *testing.T) {
	_, _, err := logging.New(config.LogConfig{Level: "loud"}, nil)
	assert.Error(t, err)

	_, _, err = logging.New(config.LogConfig{Level: "info", Format: "xml"}, nil)
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"":        zapcore.WarnLevel,
		"DEBUG":   zapcore.DebugLevel,
		"info":    zapcore.InfoLevel,
		" warn ":  zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
	}
	for in, want := range tests {
		got, err := logging.ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}
