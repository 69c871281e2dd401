package audit_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/La100/vibeplanner-sub001/common/trace"
	"github.com/La100/vibeplanner-sub001/internal/planner/audit"
)

// fakeSender records notices for assertion.
type fakeSender struct {
	notices []string
	err     error
}

func (f *fakeSender) SendNotice(_, msg string) error {
	f.notices = append(f.notices, msg)
	return f.err
}

type auditRow struct {
	traceID, actor, action, target, result, errMsg string
	payload                                        map[string]any
}

type fakeLog struct {
	rows []auditRow
}

func (f *fakeLog) WriteAudit(_ context.Context, traceID, actor, action, target, result string, payload map[string]any, errorMsg string) error {
	f.rows = append(f.rows, auditRow{traceID, actor, action, target, result, errorMsg, payload})
	return nil
}

func TestMatrixNotifier_SendsNotice(t *testing.T) {
	sender := &fakeSender{}
	n := audit.NewMatrixNotifier(sender, "!room:example.com")

	n.Notify(context.Background(), audit.Event{
		Kind:     audit.KindActionConfirmed,
		Actor:    "@alice:example.com",
		ThreadID: "th1",
		Target:   "c1:0",
		Message:  "Created task: Paint wall",
		TraceID:  "t_abc123",
	})

	if len(sender.notices) != 1 {
		t.Fatalf("expected 1 notice, got %d", len(sender.notices))
	}
	msg := sender.notices[0]
	for _, want := range []string{"c1:0", "Paint wall", "th1", "t_abc123", "@alice:example.com"} {
		if !strings.Contains(msg, want) {
			t.Errorf("notice missing %q: %q", want, msg)
		}
	}
}

func TestMatrixNotifier_TraceFromContext(t *testing.T) {
	sender := &fakeSender{}
	n := audit.NewMatrixNotifier(sender, "!room:example.com")

	ctx := trace.WithTraceID(context.Background(), "t_fromctx")
	n.Notify(ctx, audit.Event{Kind: audit.KindActionFailed, Message: "dispatch failed", Err: "boom"})

	if len(sender.notices) != 1 {
		t.Fatalf("expected 1 notice, got %d", len(sender.notices))
	}
	if !strings.Contains(sender.notices[0], "t_fromctx") || !strings.Contains(sender.notices[0], "boom") {
		t.Errorf("unexpected notice: %q", sender.notices[0])
	}
}

func TestMatrixNotifier_NoopWhenEmptyRoom(t *testing.T) {
	sender := &fakeSender{}
	n := audit.NewMatrixNotifier(sender, "")

	n.Notify(context.Background(), audit.Event{Kind: audit.KindActionRejected, Message: "rejected"})

	if len(sender.notices) != 0 {
		t.Fatalf("expected no notices for empty room, got %d", len(sender.notices))
	}
}

func TestMatrixNotifier_SendFailureIsSwallowed(t *testing.T) {
	sender := &fakeSender{err: errors.New("homeserver down")}
	n := audit.NewMatrixNotifier(sender, "!room:example.com")

	// Must not panic or block.
	n.Notify(context.Background(), audit.Event{Kind: audit.KindError, Message: "boom"})
	if len(sender.notices) != 1 {
		t.Fatalf("expected send attempt, got %d", len(sender.notices))
	}
}

func TestLogNotifier(t *testing.T) {
	log := &fakeLog{}
	n := audit.NewLogNotifier(log)

	n.Notify(context.Background(), audit.Event{
		Kind:     audit.KindActionFailed,
		ThreadID: "th1",
		Target:   "c1:0",
		Message:  "dispatch failed",
		Err:      "missing id",
		Payload:  map[string]any{"type": "task"},
	})

	if len(log.rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(log.rows))
	}
	row := log.rows[0]
	if row.action != "action.failed" || row.target != "c1:0" || row.result != "error" || row.errMsg != "missing id" {
		t.Errorf("unexpected row: %+v", row)
	}
	if row.payload["thread_id"] != "th1" || row.payload["type"] != "task" {
		t.Errorf("unexpected payload: %v", row.payload)
	}
}

func TestMulti(t *testing.T) {
	sender := &fakeSender{}
	log := &fakeLog{}
	m := audit.Multi{audit.NewMatrixNotifier(sender, "!room:example.com"), audit.NewLogNotifier(log)}

	ctx := trace.WithTraceID(context.Background(), "t_multi")
	m.Notify(ctx, audit.Event{Kind: audit.KindBatchConfirmed, Message: "confirmed 3"})

	if len(sender.notices) != 1 || len(log.rows) != 1 {
		t.Fatalf("expected fan-out to both, got %d notices and %d rows", len(sender.notices), len(log.rows))
	}
	if log.rows[0].traceID != "t_multi" || log.rows[0].result != "success" {
		t.Errorf("unexpected row: %+v", log.rows[0])
	}
}

func TestNoop(t *testing.T) {
	// Must not panic.
	audit.Noop{}.Notify(context.Background(), audit.Event{Kind: audit.KindError, Message: "boom"})
}
