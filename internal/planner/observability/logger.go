// Package observability provides structured logging helpers for the planner.
//
// It wraps log/slog with trace and batch ID propagation and payload
// redaction so that every log line emitted while resolving a proposal
// carries its trace context.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/La100/vibeplanner-sub001/common/redact"
	"github.com/La100/vibeplanner-sub001/common/trace"
)

// ParseLevel maps "debug", "warn" and "error" to their slog levels. Anything
// else is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// NewLogger builds a logger writing to w in the given format ("json" or
// text).
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// Setup configures the global slog logger according to the provided level and
// format strings (e.g. level="info", format="json").
func Setup(level, format string) {
	slog.SetDefault(NewLogger(os.Stdout, level, format))
}

// WithTrace returns a child of the default logger that includes the
// trace_id (and batch_id, when set) from ctx.
func WithTrace(ctx context.Context) *slog.Logger {
	return From(ctx, slog.Default())
}

// From returns a child of base carrying the trace and batch ids of ctx.
func From(ctx context.Context, base *slog.Logger) *slog.Logger {
	if id := trace.FromContext(ctx); id != "" {
		base = base.With("trace_id", id)
	}
	if id := trace.BatchFromContext(ctx); id != "" {
		base = base.With("batch_id", id)
	}
	return base
}

// RedactPayload returns a copy of an entity payload that is safe to log.
func RedactPayload(m map[string]any) map[string]any {
	return redact.Map(m)
}
