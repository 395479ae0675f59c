// Package logger builds the slog loggers handed to every threads component.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	charmlog "github.com/charmbracelet/log"
)

type config struct {
	level   slog.Level
	pretty  bool
	json    bool
	source  bool
	prefix  string
	writers []io.Writer
}

// New builds a logger. Without options it writes slog text records at Info
// to stdout.
func New(opts ...Option) *slog.Logger {
	c := &config{level: slog.LevelInfo}
	for _, opt := range opts {
		opt(c)
	}
	return slog.New(c.handler(c.output()))
}

func (c *config) output() io.Writer {
	switch len(c.writers) {
	case 0:
		return os.Stdout
	case 1:
		return c.writers[0]
	default:
		return io.MultiWriter(c.writers...)
	}
}

func (c *config) handler(w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: c.level, AddSource: c.source}

	if c.json {
		return slog.NewJSONHandler(w, opts)
	}
	if !c.pretty {
		return slog.NewTextHandler(w, opts)
	}

	h := charmlog.NewWithOptions(w, charmlog.Options{
		Level:           charmlog.Level(c.level),
		Prefix:          c.prefix,
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		ReportCaller:    c.source,
	})
	return h
}

// File opens path for appending and returns a JSON logger writing to it.
// The caller closes the returned file.
func File(path string, opts ...Option) (*slog.Logger, io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	opts = append(opts, WithWriter(f), WithJSON(true))
	return New(opts...), f, nil
}

// Nop returns a logger that discards everything.
func Nop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
