// Package logging builds the process slog.Logger: JSON on stdout, teed into the OTel
// LoggerProvider through the otelslog bridge when OTLP export is enabled.
package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/log"
)

// Options configures New.
type Options struct {
	// Level is debug, info, warn or error. Anything else means info.
	Level string
	// ServiceName is the OTel instrumentation scope of bridged records.
	ServiceName string
	// LoggerProvider, when non-nil, also receives every record.
	LoggerProvider log.LoggerProvider
	// Output defaults to os.Stdout.
	Output io.Writer
}

// New returns a logger per opts.
func New(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	var h slog.Handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: ParseLevel(opts.Level)})
	if opts.LoggerProvider != nil {
		name := opts.ServiceName
		if name == "" {
			name = "auth-session"
		}
		h = tee{h, otelslog.NewHandler(name, otelslog.WithLoggerProvider(opts.LoggerProvider))}
	}
	return slog.New(h)
}

// ParseLevel maps a level name to slog.Level, defaulting to info.
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

// tee sends each record to every handler that is enabled for its level.
type tee []slog.Handler

func (t tee) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (t tee) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range t {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (t tee) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(tee, len(t))
	for i, h := range t {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (t tee) WithGroup(name string) slog.Handler {
	out := make(tee, len(t))
	for i, h := range t {
		out[i] = h.WithGroup(name)
	}
	return out
}
