// Package trace provides trace ID generation and context propagation so a
// confirmation batch can be followed from the HTTP handler through dispatch,
// acknowledgment delivery and the audit log.
package trace

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// traceKey is the unexported context key used to store the trace ID.
type traceKey struct{}

// batchKey carries the id of the confirm-all / reject-all batch, if any.
type batchKey struct{}

// GenerateID returns a new trace ID of the form "t_<32 hex chars>".
func GenerateID() string {
	return "t_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// GenerateBatchID returns a new batch ID of the form "b_<32 hex chars>".
func GenerateBatchID() string {
	return "b_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// WithTraceID returns a child context carrying the given trace ID.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

// FromContext extracts the trace ID from ctx, returning "" if absent.
func FromContext(ctx context.Context) string {
	if v, ok := ctx.Value(traceKey{}).(string); ok {
		return v
	}
	return ""
}

// Ensure returns ctx unchanged when it already carries a trace ID, otherwise
// a child context with a freshly generated one.
func Ensure(ctx context.Context) context.Context {
	if FromContext(ctx) != "" {
		return ctx
	}
	return WithTraceID(ctx, GenerateID())
}

// WithBatchID returns a child context carrying the given batch ID.
func WithBatchID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, batchKey{}, id)
}

// BatchFromContext extracts the batch ID from ctx, returning "" if absent.
func BatchFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(batchKey{}).(string); ok {
		return v
	}
	return ""
}
