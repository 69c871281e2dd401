package confirm

import (
	"context"
	"log/slog"
	"time"

	"github.com/mitchellh/hashstructure/v2"

	"github.com/La100/vibeplanner-sub001/internal/planner/actions"
)

// Source lists the raw tool calls recorded for a thread.
type Source interface {
	ListPendingItems(ctx context.Context, threadID string) ([]actions.RawToolCall, error)
}

// Feed is a live subscription to a thread's tool calls. Subscribe returns
// nil for an empty thread id: there is nothing to subscribe to. The channel
// is closed when ctx is done.
type Feed interface {
	Subscribe(ctx context.Context, threadID string) <-chan []actions.RawToolCall
}

// PollingFeed turns a Source into a Feed by polling it. A snapshot is
// emitted on subscription and then only when it changed. A slow consumer
// only ever sees the latest snapshot.
type PollingFeed struct {
	source   Source
	interval time.Duration
	logger   *slog.Logger
}

// NewPollingFeed polls source every interval (2s when zero).
func NewPollingFeed(source Source, interval time.Duration, logger *slog.Logger) *PollingFeed {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PollingFeed{source: source, interval: interval, logger: logger}
}

// Subscribe starts polling threadID until ctx is done.
func (f *PollingFeed) Subscribe(ctx context.Context, threadID string) <-chan []actions.RawToolCall {
	if threadID == "" {
		return nil
	}
	ch := make(chan []actions.RawToolCall, 1)
	go f.poll(ctx, threadID, ch)
	return ch
}

func (f *PollingFeed) poll(ctx context.Context, threadID string, ch chan []actions.RawToolCall) {
	defer close(ch)
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	logger := f.logger.With("thread_id", threadID)
	logger.Debug("feed: polling", "interval", f.interval)

	var last uint64
	first := true
	for {
		calls, err := f.source.ListPendingItems(ctx, threadID)
		var sum uint64
		if err == nil {
			sum, err = snapshotHash(calls)
		}
		switch {
		case err != nil:
			if ctx.Err() == nil {
				logger.Warn("feed: list pending items failed", "err", err)
			}
		case first || sum != last:
			first = false
			last = sum
			// Replace an unread snapshot rather than block on it.
			select {
			case <-ch:
			default:
			}
			ch <- calls
		}

		select {
		case <-ctx.Done():
			logger.Debug("feed: stopping")
			return
		case <-ticker.C:
		}
	}
}

// Reconciler applies every snapshot of a thread's feed to its session.
type Reconciler struct {
	session *Session
	feed    Feed
	logger  *slog.Logger
}

// NewReconciler connects session to feed.
func NewReconciler(session *Session, feed Feed) *Reconciler {
	return &Reconciler{session: session, feed: feed, logger: session.logger}
}

// Run consumes the feed until ctx is done or the feed closes. A session
// without a thread id gets no subscription and is treated as having an
// empty, non-actionable feed.
func (r *Reconciler) Run(ctx context.Context) {
	ch := r.feed.Subscribe(ctx, r.session.Scope().ThreadID)
	if ch == nil {
		r.session.ApplyFeed(nil)
		return
	}

	r.logger.Debug("reconciler: starting")
	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("reconciler: stopping")
			return
		case calls, ok := <-ch:
			if !ok {
				return
			}
			r.session.ApplyFeed(calls)
		}
	}
}

// snapshotHash fingerprints a feed snapshot. A nil and an empty snapshot
// hash alike.
func snapshotHash(calls []actions.RawToolCall) (uint64, error) {
	if len(calls) == 0 {
		return 0, nil
	}
	return hashstructure.Hash(calls, hashstructure.FormatV2, nil)
}
