// Package logging wires slog JSON logging with optional size-based file
// rotation, driven by the logging section of the config.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/m-check1B/callguard/internal/config"
)

// ParseLevel maps a config level string to a slog.Level. Empty means info.
func ParseLevel(level string) slog.Level {
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

// NewLogger builds a JSON slog.Logger from the logging config. The returned
// closer is non-nil when the output is a rotating file and must be closed on
// shutdown; for stdout/stderr it is nil.
func NewLogger(cfg config.LoggingConfig) (*slog.Logger, io.Closer, error) {
	var (
		w      io.Writer
		closer io.Closer
	)
	switch cfg.Output {
	case "stdout", "":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	default:
		rw, err := NewRotatingWriter(cfg.Output, cfg.MaxSizeMB, cfg.MaxBackups)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		w = rw
		closer = rw
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(cfg.Level)})
	return slog.New(handler), closer, nil
}
