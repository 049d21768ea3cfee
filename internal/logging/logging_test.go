package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/wardsync/internal/config"
)

func TestNew_TextToWriter(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := New(config.LogConfig{Level: "info", Format: "text"}, &buf, false)
	require.NoError(t, err)
	defer closer.Close()

	logger.Debug("hidden")
	logger.Info("sync completed", "succeeded", 2)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "msg=\"sync completed\"")
	assert.Contains(t, out, "succeeded=2")
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := New(config.LogConfig{Level: "warn", Format: "json"}, &buf, false)
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("authority unreachable", "error", "refused")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "authority unreachable", rec["msg"])
	assert.Equal(t, "refused", rec["error"])
}

func TestNew_VerboseForcesDebug(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := New(config.LogConfig{Level: "error"}, &buf, true)
	require.NoError(t, err)

	logger.Debug("scheduled sync finished")
	assert.Contains(t, buf.String(), "scheduled sync finished")
}

func TestNew_RotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "wardsync.log")
	var stderr bytes.Buffer

	logger, closer, err := New(config.LogConfig{
		Level:      "info",
		Format:     "text",
		File:       path,
		MaxSizeMB:  1,
		MaxBackups: 2,
	}, &stderr, false)
	require.NoError(t, err)

	logger.Info("sync started", "pending", 3)
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "pending=3")
	assert.Empty(t, stderr.String())
}

func TestNew_RejectsUnknownSettings(t *testing.T) {
	_, _, err := New(config.LogConfig{Level: "loud"}, &bytes.Buffer{}, false)
	assert.Error(t, err)

	_, _, err = New(config.LogConfig{Format: "xml"}, &bytes.Buffer{}, false)
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":      slog.LevelInfo,
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"Warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}
