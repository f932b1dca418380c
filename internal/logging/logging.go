// Package logging wires the process-wide slog handler. The run coordinator
// mirrors every event to a timestamped file so a batch leaves a standalone
// execution log next to its artifacts.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup installs a text handler writing to stdout at the given level.
func Setup(level string) {
	h := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(level)})
	slog.SetDefault(slog.New(h))
}

// SetupWithFile installs a handler writing to stdout and to an append-only
// log file logs/run_<timestamp>.log. The returned closer releases the file;
// the file path is returned so the coordinator can announce it.
func SetupWithFile(dir, level string) (path string, closer io.Closer, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, fmt.Errorf("create log dir: %w", err)
	}

	path = filepath.Join(dir, fmt.Sprintf("run_%s.log", time.Now().Format("20060102_150405")))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", nil, fmt.Errorf("open log file: %w", err)
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, f), &slog.HandlerOptions{Level: parseLevel(level)})
	slog.SetDefault(slog.New(h))
	return path, f, nil
}
