// Package confirm holds the per-thread confirmation state of proposed
// actions and keeps it in step with the persisted tool-call feed.
//
// A Session owns the ordered action list of one conversation thread. Users
// confirm or reject actions one by one or all at once; confirmations are
// dispatched through a SerialExecutor and every resolution is acknowledged
// back to the agent, grouped by responseId. A Reconciler feeds snapshots of
// the thread's tool calls into the session through the pure Merge reducer.
package confirm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/La100/vibeplanner-sub001/common/trace"
	"github.com/La100/vibeplanner-sub001/internal/planner/actions"
	"github.com/La100/vibeplanner-sub001/internal/planner/audit"
	"github.com/La100/vibeplanner-sub001/internal/planner/dispatch"
	"github.com/La100/vibeplanner-sub001/internal/planner/observability"
)

var (
	// ErrNotFound is returned for a ClientID that is not in the session.
	ErrNotFound = errors.New("confirm: action not found")
	// ErrNotPending is returned when the action is already resolved.
	ErrNotPending = errors.New("confirm: action already resolved")
	// ErrInFlight is returned while a confirmation of the action runs.
	ErrInFlight = errors.New("confirm: action is being confirmed")
)

// Dispatcher executes one confirmed action.
type Dispatcher interface {
	Dispatch(ctx context.Context, scope dispatch.Scope, a actions.Action) (dispatch.Result, error)
}

// BatchOutcome reports a confirm-all or reject-all pass. Failed actions
// stay pending; Errors is keyed by ClientID.
type BatchOutcome struct {
	BatchID   string            `json:"batchId"`
	Confirmed []string          `json:"confirmed,omitempty"`
	Rejected  []string          `json:"rejected,omitempty"`
	Failed    []string          `json:"failed,omitempty"`
	Errors    map[string]string `json:"errors,omitempty"`
}

// Session is the confirmation state of one thread. It is safe for
// concurrent use.
type Session struct {
	threadID   string
	dispatcher Dispatcher
	exec       *SerialExecutor
	normalizer *actions.Normalizer
	acks       *acker
	notifier   audit.Notifier
	logger     *slog.Logger

	mu       sync.Mutex
	scope    dispatch.Scope
	items    []actions.Action
	inFlight map[string]bool
}

// SessionConfig wires a Session to its collaborators.
type SessionConfig struct {
	Dispatcher Dispatcher
	Executor   *SerialExecutor
	Sink       AckSink
	Normalizer *actions.Normalizer
	Notifier   audit.Notifier
	Logger     *slog.Logger
	Ack        AckConfig
}

// NewSession returns an empty session for scope.
func NewSession(scope dispatch.Scope, cfg SessionConfig) *Session {
	cfg.Ack = cfg.Ack.withDefaults()
	if cfg.Normalizer == nil {
		cfg.Normalizer = actions.NewNormalizer(nil)
	}
	if cfg.Notifier == nil {
		cfg.Notifier = audit.Noop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	logger := cfg.Logger.With("thread_id", scope.ThreadID)
	return &Session{
		threadID:   scope.ThreadID,
		scope:      scope,
		dispatcher: cfg.Dispatcher,
		exec:       cfg.Executor,
		normalizer: cfg.Normalizer.WithLogger(logger),
		acks: &acker{
			sink:     cfg.Sink,
			threadID: scope.ThreadID,
			retry:    cfg.Ack.Retry,
			timeout:  cfg.Ack.Timeout,
			notifier: cfg.Notifier,
			logger:   logger,
		},
		notifier: cfg.Notifier,
		logger:   logger,
		inFlight: make(map[string]bool),
	}
}

// Scope returns the project and thread of the session.
func (s *Session) Scope() dispatch.Scope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scope
}

// bindProject binds a session opened without a project to projectID. It
// reports false when the session already belongs to another project. An
// empty projectID matches any session.
func (s *Session) bindProject(projectID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case projectID == "" || projectID == s.scope.ProjectID:
		return true
	case s.scope.ProjectID == "":
		s.scope.ProjectID = projectID
		s.logger.Debug("session bound to project", "project_id", projectID)
		return true
	}
	return false
}

// Actions returns a copy of the current action list in display order.
func (s *Session) Actions() []actions.Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]actions.Action, len(s.items))
	for i, a := range s.items {
		out[i] = a.Clone()
	}
	return out
}

// Get returns a copy of one action.
func (s *Session) Get(clientID string) (actions.Action, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.find(clientID)
	if i < 0 {
		return actions.Action{}, false
	}
	return s.items[i].Clone(), true
}

// Pending returns the ClientIDs of actions still awaiting a decision.
func (s *Session) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingLocked()
}

// Settled reports whether no action awaits a decision.
func (s *Session) Settled() bool {
	return len(s.Pending()) == 0
}

// Add appends an action synthesized locally. It gets a fresh ClientID when
// it has none.
func (s *Session) Add(a actions.Action) actions.Action {
	if a.ClientID == "" {
		a.ClientID = actions.NewClientID()
	}
	if a.Status == "" {
		a.Status = actions.StatusPending
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.find(a.ClientID); i >= 0 {
		return s.items[i].Clone()
	}
	s.items = append(s.items, a.Clone())
	return a
}

// Apply merges a normalized feed snapshot into the session.
func (s *Session) Apply(fresh []actions.Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = Merge(s.items, fresh)
}

// ApplyFeed normalizes, expands and merges a raw feed snapshot.
func (s *Session) ApplyFeed(calls []actions.RawToolCall) {
	s.Apply(s.normalizer.FromFeed(calls))
}

// Confirm dispatches one action. On success the action becomes confirmed
// and is acknowledged; on failure it stays pending and the error is
// returned. A Result with Success=false and a nil error is a partial batch
// outcome: its side effects happened, so the action is confirmed.
func (s *Session) Confirm(ctx context.Context, clientID string) (dispatch.Result, error) {
	ctx = trace.Ensure(ctx)
	a, err := s.begin(clientID)
	if err != nil {
		return dispatch.Result{}, err
	}

	scope := s.Scope()
	var res dispatch.Result
	err = s.exec.Do(ctx, func(ctx context.Context) error {
		var derr error
		res, derr = s.dispatcher.Dispatch(ctx, scope, a)
		return derr
	})
	if err != nil {
		s.finish(a)
		s.notifyFailed(ctx, a, err)
		return res, fmt.Errorf("confirm %s: %w", clientID, err)
	}

	a, ok := s.settle(ctx, a)
	if !ok {
		s.notifier.Notify(ctx, s.event(audit.KindActionConfirmed, a, res.Message+" (resolved elsewhere as "+string(a.Status)+")"))
		return res, nil
	}
	if p, ok := confirmedAck(a, res); ok {
		s.acks.flush(ctx, []pendingAck{p})
	}
	s.notifier.Notify(ctx, s.event(audit.KindActionConfirmed, a, res.Message))
	return res, nil
}

// Reject marks one action rejected and acknowledges it. The local
// transition happens before, and regardless of, acknowledgment delivery.
func (s *Session) Reject(ctx context.Context, clientID string) error {
	ctx = trace.Ensure(ctx)
	s.mu.Lock()
	i := s.find(clientID)
	switch {
	case i < 0:
		s.mu.Unlock()
		return ErrNotFound
	case s.inFlight[clientID]:
		s.mu.Unlock()
		return ErrInFlight
	case !s.items[i].Pending():
		s.mu.Unlock()
		return ErrNotPending
	}
	s.items[i].Status = actions.StatusRejected
	a := s.items[i].Clone()
	s.mu.Unlock()

	if p, ok := rejectedAck(a); ok {
		s.acks.flush(ctx, []pendingAck{p})
	}
	s.notifier.Notify(ctx, s.event(audit.KindActionRejected, a, "rejected"))
	return nil
}

// ConfirmAll confirms every action pending at the time of the call,
// strictly one after another on the executor, so a dependency created by
// one item (a shopping section) is visible to the next. A failing item
// stays pending and does not stop the batch. Acknowledgments are flushed
// once per responseId after the loop.
func (s *Session) ConfirmAll(ctx context.Context) BatchOutcome {
	ctx = trace.Ensure(ctx)
	out := BatchOutcome{BatchID: trace.GenerateBatchID(), Errors: map[string]string{}}
	ctx = trace.WithBatchID(ctx, out.BatchID)
	logger := observability.From(ctx, s.logger)

	var batch []actions.Action
	for _, id := range s.Pending() {
		if a, err := s.begin(id); err == nil {
			batch = append(batch, a)
		}
	}
	if len(batch) == 0 {
		return out
	}

	scope := s.Scope()
	var acks []pendingAck
	processed := 0
	run := func(ctx context.Context) error {
		for i, a := range batch {
			processed = i
			if !s.unresolved(a.ClientID) {
				// resolved through the feed while it waited its turn
				s.finish(a)
				continue
			}
			res, err := s.dispatcher.Dispatch(ctx, scope, a)
			if err != nil {
				s.finish(a)
				out.Failed = append(out.Failed, a.ClientID)
				out.Errors[a.ClientID] = err.Error()
				s.notifyFailed(ctx, a, err)
				continue
			}
			done, ok := s.settle(ctx, a)
			out.Confirmed = append(out.Confirmed, a.ClientID)
			if !ok {
				continue
			}
			if p, ok := confirmedAck(done, res); ok {
				acks = append(acks, p)
			}
			s.notifier.Notify(ctx, s.event(audit.KindActionConfirmed, done, res.Message))
		}
		processed = len(batch)
		return nil
	}
	if err := s.exec.Do(ctx, run); err != nil {
		// Release whatever the batch did not reach.
		for _, a := range batch[processed:] {
			s.finish(a)
			out.Failed = append(out.Failed, a.ClientID)
			out.Errors[a.ClientID] = err.Error()
		}
	}

	s.acks.flush(ctx, acks)
	logger.Info("confirm all finished",
		"confirmed", len(out.Confirmed), "failed", len(out.Failed))
	s.notifier.Notify(ctx, audit.Event{
		Kind:     audit.KindBatchConfirmed,
		ThreadID: s.threadID,
		Target:   out.BatchID,
		Message:  fmt.Sprintf("confirmed %d of %d actions", len(out.Confirmed), len(batch)),
	})
	return out
}

// RejectAll rejects every pending action that is not being confirmed and
// flushes one acknowledgment per responseId.
func (s *Session) RejectAll(ctx context.Context) BatchOutcome {
	return s.rejectAll(ctx, audit.KindBatchRejected)
}

// AutoReject is RejectAll for a thread that is being left.
func (s *Session) AutoReject(ctx context.Context) BatchOutcome {
	return s.rejectAll(ctx, audit.KindAutoRejected)
}

func (s *Session) rejectAll(ctx context.Context, kind audit.Kind) BatchOutcome {
	ctx = trace.Ensure(ctx)
	out := BatchOutcome{BatchID: trace.GenerateBatchID()}
	ctx = trace.WithBatchID(ctx, out.BatchID)

	var acks []pendingAck
	s.mu.Lock()
	for i := range s.items {
		a := &s.items[i]
		if !a.Pending() || s.inFlight[a.ClientID] {
			continue
		}
		a.Status = actions.StatusRejected
		out.Rejected = append(out.Rejected, a.ClientID)
		if p, ok := rejectedAck(*a); ok {
			acks = append(acks, p)
		}
	}
	s.mu.Unlock()

	if len(out.Rejected) == 0 {
		return out
	}
	s.acks.flush(ctx, acks)
	observability.From(ctx, s.logger).Info("reject all finished", "rejected", len(out.Rejected), "kind", kind)
	s.notifier.Notify(ctx, audit.Event{
		Kind:     kind,
		ThreadID: s.threadID,
		Target:   out.BatchID,
		Message:  fmt.Sprintf("rejected %d actions", len(out.Rejected)),
	})
	return out
}

// begin marks a pending action in flight and returns a copy of it.
func (s *Session) begin(clientID string) (actions.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.find(clientID)
	switch {
	case i < 0:
		return actions.Action{}, ErrNotFound
	case s.inFlight[clientID]:
		return actions.Action{}, ErrInFlight
	case !s.items[i].Pending():
		return actions.Action{}, ErrNotPending
	}
	s.inFlight[clientID] = true
	return s.items[i].Clone(), nil
}

// finish clears the in-flight mark of an action whose dispatch failed.
func (s *Session) finish(a actions.Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, a.ClientID)
}

// unresolved reports whether the action is still pending or was merged
// away.
func (s *Session) unresolved(clientID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.find(clientID)
	return i < 0 || s.items[i].Pending()
}

// settle clears the in-flight mark of a dispatched action and confirms it.
// When a feed snapshot resolved the action while it was being dispatched,
// that earlier resolution is kept, the conflict is logged and ok is false:
// the action must not be acknowledged a second time.
func (s *Session) settle(ctx context.Context, a actions.Action) (actions.Action, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, a.ClientID)
	i := s.find(a.ClientID)
	if i < 0 {
		a.Status = actions.StatusConfirmed
		return a, true
	}
	if cur := s.items[i].Status; cur.Terminal() && cur != actions.StatusConfirmed {
		observability.From(ctx, s.logger).Warn("action resolved elsewhere while it was confirmed; keeping the earlier resolution",
			"client_id", a.ClientID, "status", cur)
		return s.items[i].Clone(), false
	}
	s.items[i].Status = actions.StatusConfirmed
	return s.items[i].Clone(), true
}

func (s *Session) find(clientID string) int {
	return slices.IndexFunc(s.items, func(a actions.Action) bool { return a.ClientID == clientID })
}

func (s *Session) pendingLocked() []string {
	var ids []string
	for _, a := range s.items {
		if a.Pending() {
			ids = append(ids, a.ClientID)
		}
	}
	return ids
}

func (s *Session) event(kind audit.Kind, a actions.Action, msg string) audit.Event {
	summary := actions.Summarize(a)
	return audit.Event{
		Kind:     kind,
		ThreadID: s.threadID,
		Target:   a.ClientID,
		Message:  summary.Title + ": " + msg,
		Payload: map[string]any{
			"type":        string(a.Type),
			"operation":   string(a.Operation),
			"call_id":     a.CallID(),
			"response_id": a.ResponseID,
			"project_id":  s.Scope().ProjectID,
		},
	}
}

func (s *Session) notifyFailed(ctx context.Context, a actions.Action, err error) {
	observability.From(ctx, s.logger).Warn("confirm failed; action stays pending",
		"client_id", a.ClientID, "type", a.Type, "operation", a.Operation, "err", err)
	evt := s.event(audit.KindActionFailed, a, "dispatch failed")
	evt.Err = err.Error()
	s.notifier.Notify(ctx, evt)
}
