// Package surveillog sets up the structured logger every surveilr command
// shares, grounded on the slog setup the example ingestion daemon in this
// pack uses: a JSON handler to stderr in normal operation, human-readable
// text with --verbose (unless JSON is forced).
package surveillog

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Options controls how New configures the logger.
type Options struct {
	Writer  io.Writer // defaults to os.Stderr
	Verbose bool      // text handler at Debug level instead of JSON at Info
	JSON    bool      // force JSON regardless of Verbose
}

// New builds a *slog.Logger and installs it as the package default, mirroring
// how the example daemon wires slog once at startup and lets every later
// component pick it up via slog.Default().
func New(opts Options) *slog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}

	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if opts.JSON || !opts.Verbose {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// WithSession returns a logger annotated with the active session and
// device, so every ingestion log line can be correlated back to its run
// (spec §4.9, "elaboration" carries the same correlation into the RSSD).
func WithSession(logger *slog.Logger, deviceID, sessionID string) *slog.Logger {
	return logger.With(slog.String("device_id", deviceID), slog.String("session_id", sessionID))
}

// Notify records a one-line progress event for long-running operations
// (walk, ingest, merge). ctx is accepted for future trace-id propagation,
// matching the context-aware logging calls used elsewhere in this module.
func Notify(ctx context.Context, logger *slog.Logger, level slog.Level, msg string, args ...any) {
	logger.Log(ctx, level, msg, args...)
}
