// Package audit reports resolution events of the confirmation engine.
//
// Every confirm, reject and auto-reject produces an Event. Events can be
// posted as notices to a Matrix room, written to the SQLite audit log, or
// both (Multi).
//
// Supported event types (Event.Kind):
//   - KindActionConfirmed, KindActionRejected, KindActionFailed
//   - KindBatchConfirmed, KindBatchRejected, KindAutoRejected
//   - KindAckFailed
//   - KindError
//
// All events include the originating trace ID so a notice can be matched
// to its audit log row.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/La100/vibeplanner-sub001/common/trace"
)

// Kind is a machine-readable event category.
type Kind string

const (
	KindActionConfirmed Kind = "action.confirmed"
	KindActionRejected  Kind = "action.rejected"
	KindActionFailed    Kind = "action.failed"
	KindBatchConfirmed  Kind = "batch.confirmed"
	KindBatchRejected   Kind = "batch.rejected"
	KindAutoRejected    Kind = "thread.auto_rejected"
	KindAckFailed       Kind = "ack.failed"
	KindError           Kind = "error"
)

// Event carries the data that notifiers format and record.
type Event struct {
	// Kind identifies the type of event.
	Kind Kind
	// Actor identifies who resolved the action, when known.
	Actor string
	// ThreadID is the conversation thread the action belongs to.
	ThreadID string
	// Target is the primary resource affected (client id, response id, …).
	Target string
	// Message is a human-friendly description of what happened.
	Message string
	// Err is set for failures.
	Err string
	// Payload holds structured details. It must already be redacted.
	Payload map[string]any
	// TraceID ties the notification back to the audit record.
	// When empty the value is taken from the context.
	TraceID string
	// Timestamp defaults to time.Now() when zero.
	Timestamp time.Time
}

// Notifier reports audit events.
type Notifier interface {
	// Notify records an event. Implementations must not block the caller
	// for long; failures are logged, not propagated.
	Notify(ctx context.Context, evt Event)
}

// Sender is the subset of the Matrix client needed by MatrixNotifier.
type Sender interface {
	SendNotice(roomID, message string) error
}

// MatrixNotifier posts formatted notices to a Matrix room.
type MatrixNotifier struct {
	sender Sender
	roomID string
}

// NewMatrixNotifier creates a MatrixNotifier that posts to roomID via sender.
func NewMatrixNotifier(sender Sender, roomID string) *MatrixNotifier {
	return &MatrixNotifier{sender: sender, roomID: roomID}
}

// Notify formats evt as a notice and posts it to the room.
func (n *MatrixNotifier) Notify(ctx context.Context, evt Event) {
	if n.roomID == "" {
		return
	}
	evt = fill(ctx, evt)

	icon := kindIcon(evt.Kind)
	msg := fmt.Sprintf("%s [%s] %s", icon, evt.Kind, evt.Message)
	if evt.Target != "" {
		msg = fmt.Sprintf("%s %s → %s", icon, evt.Target, evt.Message)
	}
	if evt.Err != "" {
		msg = fmt.Sprintf("%s\n  error: %s", msg, evt.Err)
	}
	if evt.ThreadID != "" {
		msg = fmt.Sprintf("%s\n  thread: %s", msg, evt.ThreadID)
	}
	if evt.TraceID != "" {
		msg = fmt.Sprintf("%s\n  trace: %s", msg, evt.TraceID)
	}
	if evt.Actor != "" {
		msg = fmt.Sprintf("%s\n  actor: %s", msg, evt.Actor)
	}

	if err := n.sender.SendNotice(n.roomID, msg); err != nil {
		slog.Warn("audit notifier: failed to send room notice",
			"room", n.roomID, "kind", evt.Kind, "err", err)
	} else {
		slog.Debug("audit notifier: sent notice", "room", n.roomID, "kind", evt.Kind)
	}
}

// LogWriter is the audit-log surface of the store.
type LogWriter interface {
	WriteAudit(ctx context.Context, traceID, actor, action, target, result string, payload map[string]any, errorMsg string) error
}

// LogNotifier writes events to the persistent audit log.
type LogNotifier struct {
	w LogWriter
}

// NewLogNotifier creates a LogNotifier backed by w.
func NewLogNotifier(w LogWriter) *LogNotifier {
	return &LogNotifier{w: w}
}

// Notify appends evt to the audit log.
func (n *LogNotifier) Notify(ctx context.Context, evt Event) {
	evt = fill(ctx, evt)
	result := "success"
	if evt.Err != "" {
		result = "error"
	}
	payload := map[string]any{"message": evt.Message}
	if evt.ThreadID != "" {
		payload["thread_id"] = evt.ThreadID
	}
	for k, v := range evt.Payload {
		payload[k] = v
	}
	if err := n.w.WriteAudit(ctx, evt.TraceID, evt.Actor, string(evt.Kind), evt.Target, result, payload, evt.Err); err != nil {
		slog.Warn("audit notifier: failed to write audit log", "kind", evt.Kind, "err", err)
	}
}

// Multi fans an event out to several notifiers in order.
type Multi []Notifier

// Notify forwards evt to every notifier.
func (m Multi) Notify(ctx context.Context, evt Event) {
	evt = fill(ctx, evt)
	for _, n := range m {
		n.Notify(ctx, evt)
	}
}

// Noop is a no-op Notifier used when auditing is disabled.
type Noop struct{}

// Notify does nothing.
func (Noop) Notify(_ context.Context, _ Event) {}

func fill(ctx context.Context, evt Event) Event {
	if evt.TraceID == "" {
		evt.TraceID = trace.FromContext(ctx)
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	return evt
}

// kindIcon returns a Unicode icon for the event kind.
func kindIcon(k Kind) string {
	switch k {
	case KindActionConfirmed, KindBatchConfirmed:
		return "✅"
	case KindActionRejected, KindBatchRejected:
		return "❌"
	case KindAutoRejected:
		return "🚪"
	case KindActionFailed:
		return "⚠️"
	case KindAckFailed:
		return "📭"
	case KindError:
		return "🚨"
	default:
		return "ℹ️"
	}
}
