package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/La100/vibeplanner-sub001/internal/planner/store"
)

type threadView struct {
	ThreadID string `json:"threadId"`
	Calls    int    `json:"calls"`
	Pending  int    `json:"pending"`
}

type auditView struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"ts"`
	TraceID   string    `json:"traceId"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Target    string    `json:"target,omitempty"`
	Payload   string    `json:"payload,omitempty"`
	Result    string    `json:"result"`
	Error     string    `json:"error,omitempty"`
}

func newThreadsCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "threads",
		Short: "List threads with recorded tool calls",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			planner, err := a.open()
			if err != nil {
				return writeErr(cmd, err)
			}
			defer planner.Stop()

			threads, err := planner.Store().ListThreads(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			out := make([]threadView, 0, len(threads))
			for _, t := range threads {
				out = append(out, threadView{ThreadID: t.ThreadID, Calls: t.Calls, Pending: t.Pending})
			}
			return writeOut(cmd, a, map[string]any{"data": out})
		},
	}
}

func newAuditCmd(a *App) *cobra.Command {
	var (
		limit   int
		traceID string
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the audit log, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			planner, err := a.open()
			if err != nil {
				return writeErr(cmd, err)
			}
			defer planner.Stop()

			var entries []*store.AuditEntry
			if traceID != "" {
				entries, err = planner.Store().GetAuditByTrace(cmd.Context(), traceID)
			} else {
				entries, err = planner.Store().GetAuditLog(cmd.Context(), limit)
			}
			if err != nil {
				return writeErr(cmd, err)
			}
			out := make([]auditView, 0, len(entries))
			for _, e := range entries {
				out = append(out, auditView{
					ID:        e.ID,
					Timestamp: e.Timestamp,
					TraceID:   e.TraceID,
					Actor:     e.Actor,
					Action:    e.Action,
					Target:    e.Target.String,
					Payload:   e.PayloadJSON.String,
					Result:    e.Result,
					Error:     e.ErrorMessage.String,
				})
			}
			return writeOut(cmd, a, map[string]any{"data": out})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of entries")
	cmd.Flags().StringVar(&traceID, "trace", "", "Only show entries of this trace id")
	return cmd
}
