// Package logging provides structured logging for procrun and turns the
// captured output of a supervised child into log records.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Formats accepted by New.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Options describes the logger of one procrun invocation.
type Options struct {
	Format string // json (default) or text
	Level  string // debug, info, warn or error

	// Verbose forces debug level and adds source locations.
	Verbose bool

	// RunID and Program are attached to every record when set, so the
	// output of several procrun invocations sharing a log stream can be
	// told apart.
	RunID   string
	Program string
}

// New creates the logger for one procrun invocation. Records go to w,
// which the CLI sets to stderr because stdout carries the child's output.
// A nil w discards everything. An unknown level falls back to info.
func New(w io.Writer, opts Options) *slog.Logger {
	if w == nil {
		w = io.Discard
	}

	level, err := ParseLevel(opts.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	if opts.Verbose {
		level = slog.LevelDebug
	}

	hopts := &slog.HandlerOptions{
		Level:     level,
		AddSource: opts.Verbose,
	}

	var handler slog.Handler
	if strings.EqualFold(opts.Format, FormatText) {
		handler = slog.NewTextHandler(w, hopts)
	} else {
		handler = slog.NewJSONHandler(w, hopts)
	}

	var attrs []slog.Attr
	if opts.RunID != "" {
		attrs = append(attrs, slog.String("run_id", opts.RunID))
	}
	if opts.Program != "" {
		attrs = append(attrs, slog.String("program", opts.Program))
	}
	if len(attrs) > 0 {
		handler = handler.WithAttrs(attrs)
	}

	return slog.New(handler)
}

// ParseLevel converts a level name, case-insensitively, to a slog.Level.
// The empty string is info.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

// SetDefault sets the default logger for the slog package.
func SetDefault(logger *slog.Logger) {
	slog.SetDefault(logger)
}
