package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("info"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info", "json")

	logger.Debug("hidden")
	WithSession(logger, "abc", "consumer", "127.0.0.1:5000").Info("identified")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "identified", line["msg"])
	assert.Equal(t, "abc", line["session"])
	assert.Equal(t, "consumer", line["role"])
	assert.Equal(t, "127.0.0.1:5000", line["remote"])
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "debug", "text").Debug("visible", "k", 1)
	assert.Contains(t, buf.String(), "msg=visible")
	assert.Contains(t, buf.String(), "k=1")
}

func TestInitWriter_SetsDefault(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	logger := InitWriter(&buf, "info", "text")
	assert.Same(t, logger, Logger)

	slog.Info("through default")
	assert.Contains(t, buf.String(), "through default")
}
