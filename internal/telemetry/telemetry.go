// Package telemetry wires the workspace's structured logging, generalizing
// ipiton-alert-history-service's slog+lumberjack setup for a CLI tool
// instead of a long-running service: one rotating file under the
// workspace's own tmp directory rather than a configurable HTTP sink.
package telemetry

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls where and how verbosely a workspace logs.
type Config struct {
	Level      string
	Root       string // workspace root; logs land under <Root>/bpkg/tmp/log
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Console    bool // also mirror output to stderr
}

// defaultConfig fills in the rotation sizes ipiton used when the caller
// left them at zero.
func defaultConfig(cfg Config) Config {
	if cfg.MaxSizeMB == 0 {
		cfg.MaxSizeMB = 10
	}
	if cfg.MaxBackups == 0 {
		cfg.MaxBackups = 3
	}
	if cfg.MaxAgeDays == 0 {
		cfg.MaxAgeDays = 28
	}
	return cfg
}

// New builds a structured logger writing to <root>/bpkg/tmp/log/bpkg.log,
// rotated by lumberjack, optionally mirrored to stderr for interactive use.
func New(cfg Config) (*slog.Logger, error) {
	cfg = defaultConfig(cfg)

	logDir := filepath.Join(cfg.Root, "bpkg", "tmp", "log")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "telemetry: creating log directory %s", logDir)
	}

	file := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "bpkg.log"),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}

	var writer io.Writer = file
	if cfg.Console {
		writer = io.MultiWriter(file, os.Stderr)
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	return slog.New(slog.NewJSONHandler(writer, opts)), nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
