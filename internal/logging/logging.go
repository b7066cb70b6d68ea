// Package logging builds the process logger.
package logging

import (
	"io"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"
)

// Options selects the handler and its level.
type Options struct {
	Level  slog.Level
	Format string // "text" or "json"
	// Version is attached to every JSON record.
	Version string
}

// New returns a colourised tint logger for "text" and a JSON logger
// otherwise, both writing to w.
func New(w io.Writer, opts Options) *slog.Logger {
	if opts.Format == "json" {
		h := slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: opts.Level,
		})
		return slog.New(h).With(
			"app", "bt-sensor-relay",
			"version", opts.Version,
		)
	}

	h := tint.NewHandler(w, &tint.Options{
		Level:      opts.Level,
		TimeFormat: time.StampMilli,
	})
	return slog.New(h)
}
