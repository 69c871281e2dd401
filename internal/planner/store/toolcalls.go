package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/La100/vibeplanner-sub001/internal/planner/actions"
	"github.com/La100/vibeplanner-sub001/internal/planner/confirm"
)

// ThreadSummary counts the tool calls of one thread.
type ThreadSummary struct {
	ThreadID string
	Calls    int
	Pending  int
}

// IngestToolCalls records raw tool calls for threadID. A call recorded
// again keeps its resolution unless the new copy carries one. Calls without
// an id get a generated one so they can be acknowledged. It returns the
// stored calls.
func (s *Store) IngestToolCalls(ctx context.Context, threadID string, calls []actions.RawToolCall) ([]actions.RawToolCall, error) {
	if threadID == "" {
		return nil, fmt.Errorf("ingest tool calls: thread id is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now()
	out := make([]actions.RawToolCall, 0, len(calls))
	for _, call := range calls {
		if call.CallID == "" {
			call.CallID = "call_" + uuid.NewString()
		}
		expected := len(actions.Expand(s.normalizer.Normalize(call)))
		if expected < 1 {
			expected = 1
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO tool_calls (thread_id, call_id, response_id, function_name, arguments, status, expected, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (thread_id, call_id) DO UPDATE SET
				response_id = excluded.response_id,
				function_name = excluded.function_name,
				arguments = excluded.arguments,
				expected = excluded.expected,
				status = CASE WHEN excluded.status != '' THEN excluded.status ELSE tool_calls.status END,
				updated_at = excluded.updated_at
		`, threadID, call.CallID, call.ResponseID, call.FunctionName, call.Arguments,
			string(call.Status), expected, now, now)
		if err != nil {
			return nil, fmt.Errorf("failed to record tool call %s: %w", call.CallID, err)
		}
		out = append(out, call)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit tool calls: %w", err)
	}
	return out, nil
}

// ListPendingItems returns every recorded tool call of threadID in
// recording order, with per-action resolutions from the acknowledgments.
func (s *Store) ListPendingItems(ctx context.Context, threadID string) ([]actions.RawToolCall, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT call_id, response_id, function_name, arguments, status
		FROM tool_calls
		WHERE thread_id = ?
		ORDER BY id ASC
	`, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tool calls: %w", err)
	}
	defer rows.Close()

	var calls []actions.RawToolCall
	for rows.Next() {
		var c actions.RawToolCall
		var status string
		if err := rows.Scan(&c.CallID, &c.ResponseID, &c.FunctionName, &c.Arguments, &status); err != nil {
			return nil, fmt.Errorf("failed to scan tool call: %w", err)
		}
		c.Status = actions.FeedStatus(status)
		calls = append(calls, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tool calls: %w", err)
	}
	rows.Close()

	resolved, err := s.resolutions(ctx, threadID)
	if err != nil {
		return nil, err
	}
	for i := range calls {
		calls[i].Resolved = resolved[calls[i].CallID]
	}
	return calls, nil
}

func (s *Store) resolutions(ctx context.Context, threadID string) (map[string]map[string]actions.Status, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT call_id, client_id, status FROM acknowledgments WHERE thread_id = ?
	`, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to list acknowledgments: %w", err)
	}
	defer rows.Close()

	out := make(map[string]map[string]actions.Status)
	for rows.Next() {
		var callID, clientID, status string
		if err := rows.Scan(&callID, &clientID, &status); err != nil {
			return nil, fmt.Errorf("failed to scan acknowledgment: %w", err)
		}
		if out[callID] == nil {
			out[callID] = make(map[string]actions.Status)
		}
		out[callID][clientID] = ackStatus(status)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating acknowledgments: %w", err)
	}
	return out, nil
}

func ackStatus(status string) actions.Status {
	if status == confirm.AckStatusRejected {
		return actions.StatusRejected
	}
	return actions.StatusConfirmed
}

// MarkFunctionCallsAsConfirmed records one acknowledgment group. The first
// resolution recorded for an action wins. A call becomes resolved once
// every action it expanded into is acknowledged: rejected when all of them
// were rejected, confirmed otherwise. An entry without a ClientID resolves
// the whole call.
func (s *Store) MarkFunctionCallsAsConfirmed(ctx context.Context, threadID, responseID string, results []confirm.AckResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now()
	touched := make(map[string]bool)
	for _, r := range results {
		var exists int
		err := tx.QueryRowContext(ctx, `
			SELECT 1 FROM tool_calls WHERE thread_id = ? AND call_id = ?
		`, threadID, r.CallID).Scan(&exists)
		if err == sql.ErrNoRows {
			return fmt.Errorf("tool call %s in thread %s: %w", r.CallID, threadID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to look up tool call: %w", err)
		}

		if r.ClientID == "" {
			_, err := tx.ExecContext(ctx, `
				UPDATE tool_calls SET status = ?, updated_at = ?
				WHERE thread_id = ? AND call_id = ? AND status = ''
			`, string(feedStatus(ackStatus(r.Status))), now, threadID, r.CallID)
			if err != nil {
				return fmt.Errorf("failed to resolve tool call %s: %w", r.CallID, err)
			}
			continue
		}

		var result sql.NullString
		if r.Result != "" {
			result = sql.NullString{String: r.Result, Valid: true}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO acknowledgments (thread_id, client_id, call_id, response_id, result, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (thread_id, client_id) DO NOTHING
		`, threadID, r.ClientID, r.CallID, responseID, result, r.Status, now)
		if err != nil {
			return fmt.Errorf("failed to record acknowledgment for %s: %w", r.ClientID, err)
		}
		touched[r.CallID] = true
	}

	for callID := range touched {
		if err := settleCall(ctx, tx, threadID, callID, now); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit acknowledgments: %w", err)
	}
	return nil
}

func settleCall(ctx context.Context, tx *sql.Tx, threadID, callID string, now time.Time) error {
	var expected, acked, rejected int
	err := tx.QueryRowContext(ctx, `
		SELECT t.expected,
		       COUNT(a.client_id),
		       COALESCE(SUM(CASE WHEN a.status = ? THEN 1 ELSE 0 END), 0)
		FROM tool_calls t
		LEFT JOIN acknowledgments a ON a.thread_id = t.thread_id AND a.call_id = t.call_id
		WHERE t.thread_id = ? AND t.call_id = ?
		GROUP BY t.id
	`, confirm.AckStatusRejected, threadID, callID).Scan(&expected, &acked, &rejected)
	if err != nil {
		return fmt.Errorf("failed to count acknowledgments for %s: %w", callID, err)
	}
	if acked < expected {
		return nil
	}

	status := actions.FeedConfirmed
	if rejected == acked {
		status = actions.FeedRejected
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE tool_calls SET status = ?, updated_at = ?
		WHERE thread_id = ? AND call_id = ? AND status = ''
	`, string(status), now, threadID, callID)
	if err != nil {
		return fmt.Errorf("failed to settle tool call %s: %w", callID, err)
	}
	return nil
}

func feedStatus(s actions.Status) actions.FeedStatus {
	if s == actions.StatusRejected {
		return actions.FeedRejected
	}
	return actions.FeedConfirmed
}

// ListThreads summarizes every thread with recorded tool calls.
func (s *Store) ListThreads(ctx context.Context) ([]ThreadSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT thread_id, COUNT(*), SUM(CASE WHEN status = '' THEN 1 ELSE 0 END)
		FROM tool_calls
		GROUP BY thread_id
		ORDER BY MAX(updated_at) DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	defer rows.Close()

	var out []ThreadSummary
	for rows.Next() {
		var t ThreadSummary
		if err := rows.Scan(&t.ThreadID, &t.Calls, &t.Pending); err != nil {
			return nil, fmt.Errorf("failed to scan thread: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating threads: %w", err)
	}
	return out, nil
}
