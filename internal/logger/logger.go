// Package logger installs the process-wide slog logger.
package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Setup builds a text handler writing to console and, when logPath is set,
// appending to that file too. Source locations are added at debug level.
// The returned closer releases the log file.
func Setup(level string, logPath string, console io.Writer) (*slog.Logger, io.Closer, error) {
	lvl := ParseLevel(level)
	if console == nil {
		console = os.Stderr
	}

	var (
		writer io.Writer = console
		closer io.Closer = nopCloser{}
	)
	if logPath != "" {
		if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
			return nil, nil, err
		}
		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, err
		}
		writer = io.MultiWriter(console, file)
		closer = file
	}

	l := slog.New(slog.NewTextHandler(writer, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}))
	slog.SetDefault(l)
	return l, closer, nil
}
