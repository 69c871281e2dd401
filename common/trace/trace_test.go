package trace_test

import (
	"context"
	"strings"
	"testing"

	"github.com/La100/vibeplanner-sub001/common/trace"
)

func TestGenerateID_Format(t *testing.T) {
	id := trace.GenerateID()
	if !strings.HasPrefix(id, "t_") {
		t.Fatalf("expected t_ prefix, got %q", id)
	}
	if len(id) != 34 {
		t.Fatalf("expected 34 chars, got %d (%q)", len(id), id)
	}
	if id == trace.GenerateID() {
		t.Fatal("expected distinct ids")
	}
}

func TestEnsure_KeepsExisting(t *testing.T) {
	ctx := trace.WithTraceID(context.Background(), "t_fixed")
	if got := trace.FromContext(trace.Ensure(ctx)); got != "t_fixed" {
		t.Fatalf("expected t_fixed, got %q", got)
	}
}

func TestEnsure_GeneratesWhenMissing(t *testing.T) {
	ctx := trace.Ensure(context.Background())
	if trace.FromContext(ctx) == "" {
		t.Fatal("expected a generated trace id")
	}
}

func TestBatchID_RoundTrip(t *testing.T) {
	if got := trace.BatchFromContext(context.Background()); got != "" {
		t.Fatalf("expected empty batch id, got %q", got)
	}
	id := trace.GenerateBatchID()
	ctx := trace.WithBatchID(context.Background(), id)
	if got := trace.BatchFromContext(ctx); got != id {
		t.Fatalf("expected %q, got %q", id, got)
	}
}
