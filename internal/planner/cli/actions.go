package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/La100/vibeplanner-sub001/internal/planner/actions"
	"github.com/La100/vibeplanner-sub001/internal/planner/app"
	"github.com/La100/vibeplanner-sub001/internal/planner/confirm"
	"github.com/La100/vibeplanner-sub001/internal/planner/dispatch"
)

type threadFlags struct {
	threadID  string
	projectID string
}

func (f *threadFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.threadID, "thread", "", "Thread id")
	cmd.Flags().StringVar(&f.projectID, "project", "", "Project id")
	_ = cmd.MarkFlagRequired("thread")
}

// bindProject binds the thread flags of a command that resolves actions;
// those write into a project, so --project is required.
func (f *threadFlags) bindProject(cmd *cobra.Command) {
	f.bind(cmd)
	_ = cmd.MarkFlagRequired("project")
}

type listedAction struct {
	actions.Action
	Summary actions.Summary `json:"summary"`
}

func newActionsCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "actions",
		Short: "List, confirm and reject the proposals of a thread",
	}
	cmd.AddCommand(newActionsListCmd(a))
	cmd.AddCommand(newActionsConfirmCmd(a))
	cmd.AddCommand(newActionsRejectCmd(a))
	cmd.AddCommand(newActionsBatchCmd(a, "confirm-all", "Confirm every pending action", (*confirm.Session).ConfirmAll))
	cmd.AddCommand(newActionsBatchCmd(a, "reject-all", "Reject every pending action", (*confirm.Session).RejectAll))
	return cmd
}

// withSession opens the application and the session of f, runs fn and
// shuts everything down again.
func withSession(cmd *cobra.Command, a *App, f threadFlags, fn func(*confirm.Session) error) error {
	planner, err := a.open()
	if err != nil {
		return writeErr(cmd, err)
	}
	defer planner.Stop()

	s, err := openSession(cmd, planner, f)
	if err != nil {
		return writeErr(cmd, err)
	}
	if err := fn(s); err != nil {
		return writeErr(cmd, err)
	}
	return nil
}

func openSession(cmd *cobra.Command, planner *app.App, f threadFlags) (*confirm.Session, error) {
	return planner.Engine().Open(cmd.Context(), dispatch.Scope{ProjectID: f.projectID, ThreadID: f.threadID})
}

func newActionsListCmd(a *App) *cobra.Command {
	var f threadFlags
	var pendingOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the actions of a thread",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, a, f, func(s *confirm.Session) error {
				out := []listedAction{}
				for _, act := range s.Actions() {
					if pendingOnly && !act.Pending() {
						continue
					}
					out = append(out, listedAction{Action: act, Summary: actions.Summarize(act)})
				}
				return writeOut(cmd, a, map[string]any{"data": out})
			})
		},
	}
	f.bind(cmd)
	cmd.Flags().BoolVar(&pendingOnly, "pending", false, "Only list actions awaiting a decision")
	return cmd
}

func newActionsConfirmCmd(a *App) *cobra.Command {
	var f threadFlags
	cmd := &cobra.Command{
		Use:   "confirm <client-id>",
		Short: "Confirm one action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, a, f, func(s *confirm.Session) error {
				res, err := s.Confirm(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeOut(cmd, a, map[string]any{"data": res})
			})
		},
	}
	f.bindProject(cmd)
	return cmd
}

func newActionsRejectCmd(a *App) *cobra.Command {
	var f threadFlags
	cmd := &cobra.Command{
		Use:   "reject <client-id>",
		Short: "Reject one action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, a, f, func(s *confirm.Session) error {
				if err := s.Reject(cmd.Context(), args[0]); err != nil {
					return err
				}
				act, _ := s.Get(args[0])
				return writeOut(cmd, a, map[string]any{"data": act})
			})
		},
	}
	f.bindProject(cmd)
	return cmd
}

func newActionsBatchCmd(a *App, use, short string, run func(*confirm.Session, context.Context) confirm.BatchOutcome) *cobra.Command {
	var f threadFlags
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, a, f, func(s *confirm.Session) error {
				return writeOut(cmd, a, map[string]any{"data": run(s, cmd.Context())})
			})
		},
	}
	f.bindProject(cmd)
	return cmd
}
