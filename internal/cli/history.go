package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abimat/abimat/internal/history"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	DBPath string
	Key    string
	Limit  int
}

// NewHistoryCommand creates the history command: inspect recorded runs, or
// the conclusion trail of one run key across runs.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded run history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showHistory(cmd, rootOpts, opts)
		},
	}

	cmd.Flags().StringVar(&opts.DBPath, "db", "", "history database path (required)")
	cmd.Flags().StringVar(&opts.Key, "key", "", "show the conclusion trail for this run key instead of run summaries")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum rows to show")
	cmd.MarkFlagRequired("db")

	return cmd
}

func showHistory(cmd *cobra.Command, rootOpts *RootOptions, opts *HistoryOptions) error {
	store, err := history.Open(opts.DBPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open history database", err)
	}
	defer store.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if opts.Key != "" {
		results, err := store.KeyHistory(ctx, opts.Key, opts.Limit)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to query key history", err)
		}
		if rootOpts.Format == "json" {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		}
		for _, result := range results {
			fmt.Fprintf(out, "%s %s\n", result.RunID, result.Conclusion)
		}
		return nil
	}

	runs, err := store.RecentRuns(ctx, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to query runs", err)
	}
	if rootOpts.Format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}
	for _, run := range runs {
		fmt.Fprintf(out, "%s %s target=%s %d tests: %d passed, %d busted, %d failed, %d skipped\n",
			run.CreatedAt, run.ID, run.Target,
			run.NumTests, run.NumPassed, run.NumBusted, run.NumFailed, run.NumSkipped)
	}
	return nil
}
