package kstep

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Logger is a slog.Logger that knows the field names used across kstep, so
// runs logged by the engine and requests logged by the server line up.
type Logger struct {
	*slog.Logger
}

// NewLogger wraps handler. A nil handler logs text at info level to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewJSONLogger logs JSON lines at or above level to stderr.
func NewJSONLogger(level slog.Level) *Logger {
	l, _ := NewFormatLogger("json", os.Stderr, level)
	return l
}

// NewTextLogger logs logfmt-style text at or above level to stderr.
func NewTextLogger(level slog.Level) *Logger {
	l, _ := NewFormatLogger("text", os.Stderr, level)
	return l
}

// NewFormatLogger builds a logger writing to w in the named format
// ("json" or "text").
func NewFormatLogger(format string, w io.Writer, level slog.Level) (*Logger, error) {
	opts := &slog.HandlerOptions{Level: level}
	switch format {
	case "json":
		return NewLogger(slog.NewJSONHandler(w, opts)), nil
	case "text":
		return NewLogger(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

// NoopLogger discards everything.
func NoopLogger() *Logger {
	return NewLogger(slog.DiscardHandler)
}

// WithRequestID tags every record with request_id.
func (l *Logger) WithRequestID(id string) *Logger {
	return &Logger{Logger: l.With("request_id", id)}
}

// WithRun tags every record with the shape of a clustering request.
func (l *Logger) WithRun(method InitMethod, k, dim, points int) *Logger {
	return &Logger{Logger: l.With(
		slog.Group("run",
			"init_method", string(method),
			"k", k,
			"dimension", dim,
			"points", points,
		),
	)}
}

// LogRun records the outcome of Engine.Run. Runs cut short by their context
// are logged at warn level; they are the caller's decision, not a fault.
func (l *Logger) LogRun(ctx context.Context, iterations int, converged bool, err error) {
	if err != nil {
		l.WarnContext(ctx, "clustering run abandoned", "iterations", iterations, "error", err)
		return
	}
	l.InfoContext(ctx, "clustering run completed", "iterations", iterations, "converged", converged)
}

// LogStep records one completed iteration at debug level.
func (l *Logger) LogStep(ctx context.Context, iteration, changed int) {
	l.DebugContext(ctx, "iteration recorded", "iteration", iteration, "changed", changed)
}

// LogRejected records a request that failed validation.
func (l *Logger) LogRejected(ctx context.Context, err error) {
	l.WarnContext(ctx, "clustering request rejected", "error", err)
}
