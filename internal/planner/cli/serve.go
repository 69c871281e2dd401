package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/La100/vibeplanner-sub001/internal/planner/observability"
)

func newServeCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			observability.Setup(a.config.Log.Level, a.config.Log.Format)
			planner, err := a.open()
			if err != nil {
				return writeErr(cmd, err)
			}
			defer planner.Stop()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return planner.Run(ctx)
		},
	}
}
