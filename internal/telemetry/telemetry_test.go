package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"invalid", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			require.Equal(t, tt.expected, parseLevel(tt.input))
		})
	}
}

func TestNewCreatesRotatingLogFileUnderWorkspaceRoot(t *testing.T) {
	root := t.TempDir()
	logger, err := New(Config{Root: root, Level: "debug"})
	require.NoError(t, err)

	logger.InfoContext(context.Background(), "package configured", "name", "libshared")

	logPath := filepath.Join(root, "bpkg", "tmp", "log", "bpkg.log")
	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	require.Contains(t, string(data), "package configured")

	var rec map[string]any
	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &rec))
	require.Equal(t, "libshared", rec["name"])
}

func TestNewRespectsConfiguredLevel(t *testing.T) {
	root := t.TempDir()
	logger, err := New(Config{Root: root, Level: "warn"})
	require.NoError(t, err)

	ctx := context.Background()
	logger.InfoContext(ctx, "should be dropped")
	logger.WarnContext(ctx, "should be kept")

	data, err := os.ReadFile(filepath.Join(root, "bpkg", "tmp", "log", "bpkg.log"))
	require.NoError(t, err)
	require.NotContains(t, string(data), "should be dropped")
	require.Contains(t, string(data), "should be kept")
}

func TestDefaultConfigFillsInRotationSizes(t *testing.T) {
	cfg := defaultConfig(Config{})
	require.Equal(t, 10, cfg.MaxSizeMB)
	require.Equal(t, 3, cfg.MaxBackups)
	require.Equal(t, 28, cfg.MaxAgeDays)
}
