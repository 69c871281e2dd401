package confirm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/La100/vibeplanner-sub001/internal/planner/actions"
	"github.com/La100/vibeplanner-sub001/internal/planner/audit"
	"github.com/La100/vibeplanner-sub001/internal/planner/dispatch"
)

// ErrScopeMismatch is returned when a thread is opened for a project other
// than the one its session is bound to.
var ErrScopeMismatch = errors.New("confirm: thread is open for another project")

// EngineConfig wires the engine to its collaborators. Source and Feed are
// optional: without a Source sessions start empty, without a Feed they are
// only refreshed on demand.
type EngineConfig struct {
	Dispatcher Dispatcher
	Sink       AckSink
	Source     Source
	Feed       Feed
	Normalizer *actions.Normalizer
	Notifier   audit.Notifier
	Logger     *slog.Logger
	Ack        AckConfig
}

// Engine holds one Session per open thread. All sessions share one
// SerialExecutor.
type Engine struct {
	cfg  EngineConfig
	exec *SerialExecutor

	baseCtx context.Context
	stop    context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*openSession
	wg       sync.WaitGroup
}

type openSession struct {
	session *Session
	cancel  context.CancelFunc

	// ready is closed once the first load finished; err is its outcome.
	ready chan struct{}
	err   error
}

// NewEngine returns an engine with no open sessions. Call Close to stop
// the reconcilers and the executor.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = audit.Noop{}
	}
	if cfg.Normalizer == nil {
		cfg.Normalizer = actions.NewNormalizer(nil)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:      cfg,
		exec:     NewSerialExecutor(),
		baseCtx:  ctx,
		stop:     cancel,
		sessions: make(map[string]*openSession),
	}
}

// Open returns the session of scope.ThreadID, creating it on first use.
// A new session is loaded from the Source and then followed through the
// Feed until it is closed. Concurrent callers for the same thread wait for
// that first load. A session opened without a project is bound to the
// first project a later Open names; naming a different project than the
// bound one fails with ErrScopeMismatch.
func (e *Engine) Open(ctx context.Context, scope dispatch.Scope) (*Session, error) {
	e.mu.Lock()
	if entry, ok := e.sessions[scope.ThreadID]; ok {
		e.mu.Unlock()
		select {
		case <-entry.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if entry.err != nil {
			return nil, entry.err
		}
		if !entry.session.bindProject(scope.ProjectID) {
			return nil, fmt.Errorf("open thread %s for project %q: %w", scope.ThreadID, scope.ProjectID, ErrScopeMismatch)
		}
		return entry.session, nil
	}
	s := NewSession(scope, SessionConfig{
		Dispatcher: e.cfg.Dispatcher,
		Executor:   e.exec,
		Sink:       e.cfg.Sink,
		Normalizer: e.cfg.Normalizer,
		Notifier:   e.cfg.Notifier,
		Logger:     e.cfg.Logger,
		Ack:        e.cfg.Ack,
	})
	runCtx, cancel := context.WithCancel(e.baseCtx)
	entry := &openSession{session: s, cancel: cancel, ready: make(chan struct{})}
	e.sessions[scope.ThreadID] = entry
	e.mu.Unlock()

	if err := e.load(ctx, s); err != nil {
		e.dropEntry(scope.ThreadID, entry)
		entry.err = err
		close(entry.ready)
		return nil, err
	}
	if e.cfg.Feed != nil {
		r := NewReconciler(s, e.cfg.Feed)
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			r.Run(runCtx)
		}()
	}
	close(entry.ready)
	e.cfg.Logger.Debug("session opened", "thread_id", scope.ThreadID, "project_id", scope.ProjectID)
	return s, nil
}

// Session returns the open session of threadID. A session whose first
// load has not finished yet is not returned.
func (e *Engine) Session(threadID string) (*Session, bool) {
	e.mu.Lock()
	entry, ok := e.sessions[threadID]
	e.mu.Unlock()
	if !ok {
		return nil, false
	}
	select {
	case <-entry.ready:
	default:
		return nil, false
	}
	if entry.err != nil {
		return nil, false
	}
	return entry.session, true
}

// Len returns the number of open sessions.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}

// Refresh reloads an open session from the Source.
func (e *Engine) Refresh(ctx context.Context, threadID string) error {
	s, ok := e.Session(threadID)
	if !ok {
		return ErrNotFound
	}
	return e.load(ctx, s)
}

// Leave auto-rejects every pending action of threadID and drops its
// session. Leaving a thread that is not open is a no-op.
func (e *Engine) Leave(ctx context.Context, threadID string) BatchOutcome {
	s, ok := e.Session(threadID)
	if !ok {
		return BatchOutcome{}
	}
	out := s.AutoReject(ctx)
	e.drop(threadID)
	return out
}

// SwitchThread leaves the thread `from` and opens `to`.
func (e *Engine) SwitchThread(ctx context.Context, from string, to dispatch.Scope) (*Session, BatchOutcome, error) {
	var out BatchOutcome
	if from != to.ThreadID {
		out = e.Leave(ctx, from)
	}
	s, err := e.Open(ctx, to)
	return s, out, err
}

// NewChat leaves threadID without opening another thread.
func (e *Engine) NewChat(ctx context.Context, threadID string) BatchOutcome {
	return e.Leave(ctx, threadID)
}

// Close stops every reconciler and the executor. Pending actions are left
// pending upstream.
func (e *Engine) Close() {
	e.stop()
	e.wg.Wait()
	e.exec.Close()
	e.mu.Lock()
	e.sessions = make(map[string]*openSession)
	e.mu.Unlock()
}

func (e *Engine) load(ctx context.Context, s *Session) error {
	threadID := s.Scope().ThreadID
	if e.cfg.Source == nil || threadID == "" {
		return nil
	}
	calls, err := e.cfg.Source.ListPendingItems(ctx, threadID)
	if err != nil {
		return fmt.Errorf("load thread %s: %w", threadID, err)
	}
	s.ApplyFeed(calls)
	return nil
}

func (e *Engine) drop(threadID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if entry, ok := e.sessions[threadID]; ok {
		entry.cancel()
		delete(e.sessions, threadID)
	}
}

// dropEntry removes entry only if it is still the registered session of
// threadID.
func (e *Engine) dropEntry(threadID string, entry *openSession) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry.cancel()
	if e.sessions[threadID] == entry {
		delete(e.sessions, threadID)
	}
}
