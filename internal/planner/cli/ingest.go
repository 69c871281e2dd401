package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/La100/vibeplanner-sub001/internal/planner/actions"
)

func newIngestCmd(a *App) *cobra.Command {
	var threadID string
	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Record the assistant's tool calls for a thread",
		Long:  "Reads a JSON array of tool calls, or an object with a toolCalls array, from <file> (\"-\" for stdin).",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			calls, err := readToolCalls(cmd, args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			planner, err := a.open()
			if err != nil {
				return writeErr(cmd, err)
			}
			defer planner.Stop()

			stored, err := planner.Store().IngestToolCalls(cmd.Context(), threadID, calls)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, a, map[string]any{"data": map[string]any{"stored": len(stored), "toolCalls": stored}})
		},
	}
	cmd.Flags().StringVar(&threadID, "thread", "", "Thread id")
	_ = cmd.MarkFlagRequired("thread")
	return cmd
}

func readToolCalls(cmd *cobra.Command, path string) ([]actions.RawToolCall, error) {
	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read tool calls: %w", err)
	}

	var calls []actions.RawToolCall
	if err := json.Unmarshal(data, &calls); err == nil {
		return calls, nil
	}
	var wrapped struct {
		ToolCalls []actions.RawToolCall `json:"toolCalls"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to parse tool calls: %w", err)
	}
	return wrapped.ToolCalls, nil
}
