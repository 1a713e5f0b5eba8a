// Package logging builds the process logger: JSON to stdout when verbose and
// always to the application log file when one is configured.
package logging

import (
	"fmt"
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

// New returns the logger and a close func for the log file.
func New(level, appLogFile string, verbose bool) (*slog.Logger, func() error, error) {
	var writers []io.Writer
	if verbose {
		writers = append(writers, os.Stdout)
	}
	closeFn := func() error { return nil }
	if appLogFile != "" {
		if dir := filepath.Dir(appLogFile); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, fmt.Errorf("create log dir: %w", err)
			}
		}
		f, err := os.OpenFile(appLogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open app log: %w", err)
		}
		writers = append(writers, f)
		closeFn = f.Close
	}
	var w io.Writer = io.Discard
	switch len(writers) {
	case 0:
	case 1:
		w = writers[0]
	default:
		w = io.MultiWriter(writers...)
	}
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
	return logger, closeFn, nil
}
