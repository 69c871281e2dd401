package confirm_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/La100/vibeplanner-sub001/common/retry"
	"github.com/La100/vibeplanner-sub001/internal/planner/actions"
	"github.com/La100/vibeplanner-sub001/internal/planner/confirm"
	"github.com/La100/vibeplanner-sub001/internal/planner/dispatch"
)

type ackCall struct {
	threadID   string
	responseID string
	results    []confirm.AckResult
}

// fakeSink records acknowledgments. The first failures calls fail.
type fakeSink struct {
	mu       sync.Mutex
	calls    []ackCall
	failures int
	attempts int
}

func (f *fakeSink) MarkFunctionCallsAsConfirmed(_ context.Context, threadID, responseID string, results []confirm.AckResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.failures > 0 {
		f.failures--
		return errors.New("sink unavailable")
	}
	f.calls = append(f.calls, ackCall{threadID, responseID, append([]confirm.AckResult(nil), results...)})
	return nil
}

func (f *fakeSink) snapshot() []ackCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ackCall(nil), f.calls...)
}

// fakeDispatcher succeeds unless the action's title is listed in fail.
type fakeDispatcher struct {
	mu         sync.Mutex
	dispatched []string
	fail       map[string]error
	partial    map[string]bool
}

func (f *fakeDispatcher) Dispatch(_ context.Context, _ dispatch.Scope, a actions.Action) (dispatch.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	title, _ := a.Data["title"].(string)
	if err := f.fail[title]; err != nil {
		return dispatch.Result{Message: err.Error()}, err
	}
	f.dispatched = append(f.dispatched, a.ClientID)
	if f.partial[title] {
		return dispatch.Result{Success: false, Message: "Updated 2/3 tasks", EntityType: a.Type}, nil
	}
	return dispatch.Result{Success: true, Message: "ok", EntityType: a.Type, EntityID: "id-" + a.ClientID}, nil
}

// memBackend is an in-memory dispatch backend with shopping sections.
type memBackend struct {
	mu       sync.Mutex
	created  []map[string]any
	sections []dispatch.Section
}

func (m *memBackend) Create(_ context.Context, kind actions.EntityType, _ string, fields map[string]any) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, fields)
	return fmt.Sprintf("%s-%d", kind, len(m.created)), nil
}

func (m *memBackend) Update(context.Context, actions.EntityType, string, map[string]any) error {
	return nil
}

func (m *memBackend) Delete(context.Context, actions.EntityType, string) error { return nil }

func (m *memBackend) BulkEditTasks(_ context.Context, _ string, sel actions.Selection, _ map[string]any) (int, error) {
	return len(sel.IDs), nil
}

func (m *memBackend) ToggleHabitCompletion(context.Context, dispatch.HabitCompletion) (bool, error) {
	return true, nil
}

func (m *memBackend) ListSections(context.Context, string) ([]dispatch.Section, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]dispatch.Section(nil), m.sections...), nil
}

func (m *memBackend) CreateSection(_ context.Context, _ string, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := fmt.Sprintf("sec-%d", len(m.sections)+1)
	m.sections = append(m.sections, dispatch.Section{ID: id, Name: name})
	return id, nil
}

// fakeSource serves a mutable feed.
type fakeSource struct {
	mu    sync.Mutex
	calls map[string][]actions.RawToolCall
	err   error
}

func newFakeSource() *fakeSource {
	return &fakeSource{calls: make(map[string][]actions.RawToolCall)}
}

func (f *fakeSource) ListPendingItems(_ context.Context, threadID string) ([]actions.RawToolCall, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]actions.RawToolCall(nil), f.calls[threadID]...), nil
}

func (f *fakeSource) set(threadID string, calls ...actions.RawToolCall) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[threadID] = calls
}

var fastAck = confirm.AckConfig{
	Retry:   retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
	Timeout: time.Second,
}

var testScope = dispatch.Scope{ProjectID: "p1", ThreadID: "th1"}

func newSession(d confirm.Dispatcher, sink confirm.AckSink) (*confirm.Session, func()) {
	exec := confirm.NewSerialExecutor()
	s := confirm.NewSession(testScope, confirm.SessionConfig{
		Dispatcher: d,
		Executor:   exec,
		Sink:       sink,
		Ack:        fastAck,
	})
	return s, exec.Close
}

func paintAndTiles() actions.RawToolCall {
	return actions.RawToolCall{
		CallID:       "c1",
		FunctionName: "create_multiple_tasks",
		ResponseID:   "r1",
		Arguments:    `{"tasks":[{"title":"Paint wall"},{"title":"Order tiles"}]}`,
	}
}

// gatedSource blocks ListPendingItems until release is closed and counts
// the calls that reached it.
type gatedSource struct {
	*fakeSource
	entered chan struct{}
	release chan struct{}
}

func newGatedSource() *gatedSource {
	return &gatedSource{
		fakeSource: newFakeSource(),
		entered:    make(chan struct{}, 8),
		release:    make(chan struct{}),
	}
}

func (g *gatedSource) ListPendingItems(ctx context.Context, threadID string) ([]actions.RawToolCall, error) {
	g.entered <- struct{}{}
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.fakeSource.ListPendingItems(ctx, threadID)
}

// hookDispatcher calls during, then succeeds.
type hookDispatcher struct {
	during func()
}

func (h *hookDispatcher) Dispatch(_ context.Context, _ dispatch.Scope, a actions.Action) (dispatch.Result, error) {
	if h.during != nil {
		h.during()
	}
	return dispatch.Result{Success: true, Message: "ok", EntityType: a.Type, EntityID: "id-" + a.ClientID}, nil
}
