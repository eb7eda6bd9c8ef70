// Package logging sets up the process-wide slog logger. The terminal belongs
// to the UI and the players, so records go to a file.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// Options select the log destination and verbosity.
type Options struct {
	// Path is the log file; "-" logs to stderr, "" discards.
	Path    string
	Verbose bool
}

// New returns a text logger and a function closing its destination.
func New(o Options) (*slog.Logger, func() error, error) {
	level := slog.LevelInfo
	if o.Verbose {
		level = slog.LevelDebug
	}
	var (
		w      io.Writer
		closer = func() error { return nil }
	)
	switch o.Path {
	case "":
		w = io.Discard
	case "-":
		w = os.Stderr
	default:
		if err := os.MkdirAll(filepath.Dir(o.Path), 0o755); err != nil {
			return nil, nil, err
		}
		f, err := os.OpenFile(o.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, err
		}
		w, closer = f, f.Close
	}
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(h), closer, nil
}

// Setup installs New's logger as slog's default.
func Setup(o Options) (func() error, error) {
	l, closeFn, err := New(o)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(l)
	return closeFn, nil
}
