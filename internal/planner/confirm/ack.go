package confirm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"

	"github.com/La100/vibeplanner-sub001/common/retry"
	"github.com/La100/vibeplanner-sub001/internal/planner/actions"
	"github.com/La100/vibeplanner-sub001/internal/planner/audit"
	"github.com/La100/vibeplanner-sub001/internal/planner/dispatch"
	"github.com/La100/vibeplanner-sub001/internal/planner/observability"
)

// AckStatusRejected marks a rejected entry of an acknowledgment.
const AckStatusRejected = "rejected"

// AckResult is one entry of an acknowledgment: how one action derived from
// CallID was resolved. Confirmed entries carry Result, rejected entries
// carry Status.
type AckResult struct {
	CallID   string `json:"callId"`
	ClientID string `json:"clientId,omitempty"`
	Result   string `json:"result,omitempty"`
	Status   string `json:"status,omitempty"`
}

// AckSink tells the agent thread how its proposals were resolved.
type AckSink interface {
	MarkFunctionCallsAsConfirmed(ctx context.Context, threadID, responseID string, results []AckResult) error
}

// pendingAck is an acknowledgment entry waiting to be flushed.
type pendingAck struct {
	responseID string
	result     AckResult
}

// confirmedAck builds the entry for a confirmed action. The result is the
// action (with its new status) together with the dispatch outcome.
func confirmedAck(a actions.Action, res dispatch.Result) (pendingAck, bool) {
	if a.FunctionCall == nil {
		return pendingAck{}, false
	}
	body, err := json.Marshal(struct {
		Action  actions.Action  `json:"action"`
		Outcome dispatch.Result `json:"outcome"`
	}{a, res})
	if err != nil {
		body = []byte(fmt.Sprintf(`{"outcome":{"success":%t}}`, res.Success))
	}
	return pendingAck{
		responseID: a.ResponseID,
		result:     AckResult{CallID: a.CallID(), ClientID: a.ClientID, Result: string(body)},
	}, true
}

func rejectedAck(a actions.Action) (pendingAck, bool) {
	if a.FunctionCall == nil {
		return pendingAck{}, false
	}
	return pendingAck{
		responseID: a.ResponseID,
		result:     AckResult{CallID: a.CallID(), ClientID: a.ClientID, Status: AckStatusRejected},
	}, true
}

// acker delivers grouped acknowledgments with retries. Delivery failures
// are logged and audited; they never change an action's status.
type acker struct {
	sink     AckSink
	threadID string
	retry    retry.Config
	timeout  time.Duration
	notifier audit.Notifier
	logger   *slog.Logger
}

// flush sends one acknowledgment per distinct responseId, in order of first
// appearance.
func (k *acker) flush(ctx context.Context, acks []pendingAck) {
	if len(acks) == 0 || k.sink == nil {
		return
	}
	// The decision is final once made; deliver it even if the caller has
	// gone away.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), k.timeout)
	defer cancel()

	groups := lo.GroupBy(acks, func(p pendingAck) string { return p.responseID })
	order := lo.Uniq(lo.Map(acks, func(p pendingAck, _ int) string { return p.responseID }))
	for _, responseID := range order {
		results := lo.Map(groups[responseID], func(p pendingAck, _ int) AckResult { return p.result })
		k.send(ctx, responseID, results)
	}
}

func (k *acker) send(ctx context.Context, responseID string, results []AckResult) {
	logger := observability.From(ctx, k.logger)
	cfg := k.retry
	cfg.Label = "ack " + responseID
	err := retry.Do(ctx, cfg, func(ctx context.Context, _ int) error {
		return k.sink.MarkFunctionCallsAsConfirmed(ctx, k.threadID, responseID, results)
	})
	if err != nil {
		logger.Warn("acknowledgment not delivered",
			"thread_id", k.threadID, "response_id", responseID, "entries", len(results), "err", err)
		k.notifier.Notify(ctx, audit.Event{
			Kind:     audit.KindAckFailed,
			ThreadID: k.threadID,
			Target:   responseID,
			Message:  fmt.Sprintf("acknowledgment with %d entries not delivered", len(results)),
			Err:      err.Error(),
		})
		return
	}
	logger.Debug("acknowledged", "thread_id", k.threadID, "response_id", responseID, "entries", len(results))
}

// AckConfig controls acknowledgment delivery.
type AckConfig struct {
	// Retry governs redelivery of a failed acknowledgment.
	Retry retry.Config
	// Timeout bounds the delivery of one flush, retries included.
	Timeout time.Duration
}

func (c AckConfig) withDefaults() AckConfig {
	if c.Retry.MaxAttempts == 0 {
		c.Retry = retry.DefaultConfig
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}
