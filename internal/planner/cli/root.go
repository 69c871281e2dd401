// Package cli implements the vibeplanner command line.
package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/La100/vibeplanner-sub001/common/version"
	"github.com/La100/vibeplanner-sub001/internal/planner/app"
	"github.com/La100/vibeplanner-sub001/internal/planner/config"
	"github.com/La100/vibeplanner-sub001/internal/planner/observability"
)

// App carries the global flags and the loaded configuration.
type App struct {
	ConfigPath string
	DBPath     string
	PrettyJSON bool

	config config.Config
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	a := &App{}

	cmd := &cobra.Command{
		Use:           "vibeplanner",
		Short:         "Review and apply the planning assistant's proposed changes",
		Version:       version.Info(),
		SilenceUsage:  true,
		SilenceErrors: true,
		Example: strings.TrimSpace(`
  # Serve the HTTP API
  vibeplanner serve --config /etc/vibeplanner.yaml

  # Review a thread from the terminal
  vibeplanner actions list --thread th1 --project p1
  vibeplanner actions confirm c1:0 --thread th1 --project p1
`),
	}

	cmd.SetVersionTemplate("{{.Version}}\n")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(a.ConfigPath)
		if err != nil {
			return err
		}
		if a.DBPath != "" {
			cfg.Database.Path = a.DBPath
		}
		a.config = cfg
		// stdout carries command output
		slog.SetDefault(observability.NewLogger(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format))
		return nil
	}

	cmd.PersistentFlags().StringVar(&a.ConfigPath, "config", envOr("VIBEPLANNER_CONFIG", "vibeplanner.yaml"), "Path to the YAML configuration file")
	cmd.PersistentFlags().StringVar(&a.DBPath, "db", "", "SQLite database path (overrides the configuration)")
	cmd.PersistentFlags().BoolVar(&a.PrettyJSON, "pretty", false, "Pretty-print JSON output")

	cmd.AddCommand(newServeCmd(a))
	cmd.AddCommand(newActionsCmd(a))
	cmd.AddCommand(newIngestCmd(a))
	cmd.AddCommand(newThreadsCmd(a))
	cmd.AddCommand(newAuditCmd(a))

	return cmd
}

// open builds the application without starting it.
func (a *App) open() (*app.App, error) {
	return app.New(a.config, nil)
}

func writeOut(cmd *cobra.Command, a *App, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	if a.PrettyJSON {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

func writeErr(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), err.Error())
	return err
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
