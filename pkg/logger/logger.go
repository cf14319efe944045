// Package logger provides opinionated logging for the strata system.
//
// Everything logs through log/slog. New builds a *slog.Logger backed by
// either the charmbracelet/log handler (pretty, for CLI use) or slog's
// JSON handler (for services). Multi fans a record out to several
// handlers at once, e.g. pretty to stdout plus JSON to a file.
package logger

import (
	"io"
	"log/slog"
	"os"

	charmlog "github.com/charmbracelet/log"
)

type config struct {
	level   slog.Level
	pretty  bool
	json    bool
	source  bool
	writers []io.Writer
}

// New creates a *slog.Logger configured by the given options.
// Defaults: Info level, pretty handler, stdout.
func New(opts ...Option) *slog.Logger {
	c := &config{
		level:   slog.LevelInfo,
		pretty:  true,
		writers: []io.Writer{os.Stdout},
	}

	for _, opt := range opts {
		opt(c)
	}

	var w io.Writer = os.Stdout
	switch len(c.writers) {
	case 0:
	case 1:
		w = c.writers[0]
	default:
		w = io.MultiWriter(c.writers...)
	}

	if c.json && !c.pretty {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:     c.level,
			AddSource: c.source,
		}))
	}

	charmLevel := charmlog.InfoLevel
	if c.level == slog.LevelDebug {
		charmLevel = charmlog.DebugLevel
	}

	handler := charmlog.NewWithOptions(w, charmlog.Options{
		Level:           charmLevel,
		ReportCaller:    c.source,
		ReportTimestamp: true,
	})

	return slog.New(handler)
}

// Nop returns a logger that discards everything. Used in tests.
func Nop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
