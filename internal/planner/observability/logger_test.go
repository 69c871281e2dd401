package observability_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/La100/vibeplanner-sub001/common/trace"
	"github.com/La100/vibeplanner-sub001/internal/planner/observability"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := observability.ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFrom_AddsTraceAndBatch(t *testing.T) {
	var buf bytes.Buffer
	base := observability.NewLogger(&buf, "info", "json")

	ctx := trace.WithTraceID(context.Background(), "t_123")
	ctx = trace.WithBatchID(ctx, "b_456")
	observability.From(ctx, base).Info("hello")

	out := buf.String()
	if !strings.Contains(out, `"trace_id":"t_123"`) || !strings.Contains(out, `"batch_id":"b_456"`) {
		t.Fatalf("missing ids in %s", out)
	}
}

func TestNewLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := observability.NewLogger(&buf, "warn", "text")
	l.Info("quiet")
	l.Warn("loud")
	if strings.Contains(buf.String(), "quiet") || !strings.Contains(buf.String(), "loud") {
		t.Fatalf("unexpected output: %s", buf.String())
	}
}

func TestRedactPayload(t *testing.T) {
	in := map[string]any{"name": "Bob", "email": "bob@example.com"}
	out := observability.RedactPayload(in)
	if out["email"] != "[REDACTED]" || out["name"] != "Bob" {
		t.Fatalf("unexpected redaction: %v", out)
	}
	if in["email"] != "bob@example.com" {
		t.Fatal("input was modified")
	}
}
