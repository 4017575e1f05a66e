package cli

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/abimat/abimat/internal/harness"
)

// TestsOptions holds flags for the tests command.
type TestsOptions struct {
	TestsDir string
}

// NewTestsCommand creates the tests command: list discovered manifests and
// the conventions each declares, without running anything.
func NewTestsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestsOptions{}

	cmd := &cobra.Command{
		Use:   "tests",
		Short: "List discovered test manifests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listTests(cmd, rootOpts, opts)
		},
	}

	cmd.Flags().StringVar(&opts.TestsDir, "tests", "tests", "directory of test manifests")

	return cmd
}

func listTests(cmd *cobra.Command, rootOpts *RootOptions, opts *TestsOptions) error {
	tests, err := harness.FindTests(opts.TestsDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load test manifests", err)
	}

	names := make([]string, 0, len(tests))
	for name := range tests {
		names = append(names, name)
	}
	sort.Strings(names)

	if rootOpts.Format == "json" {
		ordered := make([]*harness.Test, 0, len(names))
		for _, name := range names {
			ordered = append(ordered, tests[name])
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(ordered)
	}

	for _, name := range names {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %v\n", name, tests[name].Conventions)
	}
	return nil
}
