package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFromString(t *testing.T) {
	t.Parallel()
	cases := map[string]slog.Level{
		"error":   slog.LevelError,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		" info ":  slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"":        slog.LevelDebug,
	}
	for in, want := range cases {
		assert.Equal(t, want, levelFromString(in), in)
	}
}

func TestNewWithWriter_JSON(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "info", "json")

	logger.Debug("hidden")
	logger.Info("ledger saved", "tracked", 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ledger saved", entry["msg"])
	assert.Equal(t, float64(3), entry["tracked"])
}

func TestNewWithWriter_Text(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	NewWithWriter(&buf, "warn", "text").Warn("snapshot unavailable")

	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), `msg="snapshot unavailable"`)
}
