package utils

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		{"DEBUG", slog.LevelDebug, false},
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"WARN", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{" ERROR ", slog.LevelError, false},
		{"TRACE", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLogLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLogLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	t.Run("text filters below level", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := NewLogger(&buf, slog.LevelWarn, "text")
		require.NoError(t, err)

		logger.Info("hidden")
		logger.Warn("shown", "resource", "file:///tmp/x")

		out := buf.String()
		assert.NotContains(t, out, "hidden")
		assert.Contains(t, out, "msg=shown")
		assert.Contains(t, out, "resource=file:///tmp/x")
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := NewLogger(&buf, slog.LevelInfo, "json")
		require.NoError(t, err)

		logger.Info("saved", "bytes", 42)

		var rec map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
		assert.Equal(t, "saved", rec["msg"])
		assert.Equal(t, float64(42), rec["bytes"])
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := NewLogger(&bytes.Buffer{}, slog.LevelInfo, "xml")
		assert.Error(t, err)
	})
}

func TestSetupLogging(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	logFile := filepath.Join(t.TempDir(), "settings.log")
	logger, closer, err := SetupLogging(LogOptions{Level: "debug", Format: "text", File: logFile})
	require.NoError(t, err)

	logger.Debug("to file")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "to file"))

	_, _, err = SetupLogging(LogOptions{Level: "loud"})
	assert.Error(t, err)
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1024 * 1024, "1.0 MB"},
		{5 * 1024 * 1024 * 1024, "5.0 GB"},
	}

	for _, tt := range tests {
		if got := FormatBytes(tt.bytes); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.bytes, got, tt.want)
		}
	}
}
