package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/abimat/abimat/internal/harness"
	"github.com/abimat/abimat/internal/history"
	"github.com/abimat/abimat/internal/minimize"
	"github.com/abimat/abimat/internal/report"
	"github.com/abimat/abimat/internal/rules"
	"github.com/abimat/abimat/internal/spanlog"
	"github.com/abimat/abimat/internal/toolchain"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	TestsDir    string
	Tests       []string
	Conventions []string
	Pairs       []string
	Toolchains  []string
	Reprs       []string
	Generators  []string
	Writers     []string

	RulesFile string
	Target    string

	Driver     string
	DriverArgs []string

	DBPath         string
	MaxConcurrency int

	Minimize       bool
	MinimizeWriter string
}

// NewRunCommand creates the run command: enumerate the matrix, dispatch
// every unit through the driver, classify, and report.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the ABI test matrix",
		Long: `Enumerates the cross product of tests, conventions, toolchain pairs,
representations, generators, and writers, runs every surviving combination
through the external toolchain driver, and classifies each outcome against
the expectation rules. Exits 1 when any run fails without a covering rule.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMatrix(cmd, rootOpts, opts)
		},
	}

	cmd.Flags().StringVar(&opts.TestsDir, "tests", "tests", "directory of test manifests")
	cmd.Flags().StringSliceVar(&opts.Tests, "test", nil, "run only these tests (default all)")
	cmd.Flags().StringSliceVar(&opts.Conventions, "conventions", []string{"c"}, "calling conventions to run")
	cmd.Flags().StringSliceVar(&opts.Pairs, "pairs", nil, "caller:callee toolchain pairs (required)")
	cmd.Flags().StringSliceVar(&opts.Toolchains, "toolchains", nil, "keep only pairs containing one of these toolchains")
	cmd.Flags().StringSliceVar(&opts.Reprs, "reprs", []string{"c"}, "source representations to generate")
	cmd.Flags().StringSliceVar(&opts.Generators, "generators", []string{"graffiti"}, "value generators")
	cmd.Flags().StringSliceVar(&opts.Writers, "writers", []string{"harness"}, "value writer implementations")
	cmd.Flags().StringVar(&opts.RulesFile, "rules", "", "expectation rule file (yaml)")
	cmd.Flags().StringVar(&opts.Target, "target", "all", "rule target to select from the rule file")
	cmd.Flags().StringVar(&opts.Driver, "exec", "", "toolchain driver binary (required)")
	cmd.Flags().StringSliceVar(&opts.DriverArgs, "exec-arg", nil, "extra argument passed to the driver on every invocation")
	cmd.Flags().StringVar(&opts.DBPath, "db", "", "record this run into the history database at path")
	cmd.Flags().IntVar(&opts.MaxConcurrency, "max-concurrency", 0, "bound concurrent run units (0 = unbounded)")
	cmd.Flags().BoolVar(&opts.Minimize, "minimize", true, "generate minimal reproducers for failures")
	cmd.Flags().StringVar(&opts.MinimizeWriter, "minimize-writer", "print", "value writer used for minimal reproducers")
	cmd.MarkFlagRequired("pairs")
	cmd.MarkFlagRequired("exec")

	return cmd
}

func runMatrix(cmd *cobra.Command, rootOpts *RootOptions, opts *RunOptions) error {
	cfg, err := buildConfig(opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid matrix flags", err)
	}

	tests, err := harness.FindTests(opts.TestsDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load test manifests", err)
	}
	if len(tests) == 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("no test manifests found under %s", opts.TestsDir))
	}

	var ruleSource harness.RuleSource = rules.NewRepository(nil)
	if opts.RulesFile != "" {
		repo, err := rules.Load(opts.RulesFile, opts.Target)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load rule file", err)
		}
		ruleSource = repo
	}

	colorize := rootOpts.Format == "text" && isatty.IsTerminal(os.Stdout.Fd())
	log := spanlog.New(
		spanlog.WithLiveOutput(cmd.ErrOrStderr()),
		spanlog.WithColor(colorize),
	)
	exec := &toolchain.CommandExecutor{Path: opts.Driver, Args: opts.DriverArgs}

	h := harness.New(*cfg, tests, ruleSource, exec, log)
	units := h.Enumerate()
	if len(units) == 0 {
		return NewExitError(ExitCommandError, "matrix is empty: no test declares a requested convention under the requested filters")
	}

	ctx := cmd.Context()
	outcomes := h.Dispatch(ctx, units)
	full := report.Compute(outcomes)

	if opts.Minimize && full.Failed() {
		minimize.Failures(ctx, h, full)
	}

	if rootOpts.Format == "json" {
		if err := full.WriteJSON(cmd.OutOrStdout()); err != nil {
			return WrapExitError(ExitCommandError, "failed to write report", err)
		}
	} else {
		if err := full.WriteHuman(cmd.OutOrStdout(), log, opts.Target, colorize); err != nil {
			return WrapExitError(ExitCommandError, "failed to write report", err)
		}
	}

	if opts.DBPath != "" {
		store, err := history.Open(opts.DBPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open history database", err)
		}
		defer store.Close()
		if _, err := store.RecordRun(ctx, opts.Target, full); err != nil {
			return WrapExitError(ExitCommandError, "failed to record run history", err)
		}
	}

	if full.Failed() {
		return NewExitError(ExitFailure, full.Summary.String())
	}
	return nil
}

// buildConfig validates every matrix flag eagerly so a typo fails the
// command before any driver process spawns.
func buildConfig(opts *RunOptions) (*harness.Config, error) {
	cfg := &harness.Config{
		RunTests:       opts.Tests,
		RunToolchains:  opts.Toolchains,
		RunSelections:  []harness.FunctionSelector{harness.AllFunctions()},
		MaxConcurrency: opts.MaxConcurrency,
	}

	for _, s := range opts.Conventions {
		convention, err := harness.ParseConvention(s)
		if err != nil {
			return nil, err
		}
		cfg.RunConventions = append(cfg.RunConventions, convention)
	}
	for _, s := range opts.Pairs {
		caller, callee, ok := strings.Cut(s, ":")
		if !ok || caller == "" || callee == "" {
			return nil, fmt.Errorf("bad pair %q: want caller:callee", s)
		}
		cfg.RunPairs = append(cfg.RunPairs, harness.ToolchainPair{Caller: caller, Callee: callee})
	}
	for _, s := range opts.Reprs {
		repr, err := harness.ParseRepr(s)
		if err != nil {
			return nil, err
		}
		cfg.RunReprs = append(cfg.RunReprs, repr)
	}
	for _, s := range opts.Generators {
		generator, err := harness.ParseGenerator(s)
		if err != nil {
			return nil, err
		}
		cfg.RunGenerators = append(cfg.RunGenerators, generator)
	}
	for _, s := range opts.Writers {
		writer, err := harness.ParseWriter(s)
		if err != nil {
			return nil, err
		}
		cfg.RunWriters = append(cfg.RunWriters, writer)
	}
	minWriter, err := harness.ParseWriter(opts.MinimizeWriter)
	if err != nil {
		return nil, err
	}
	cfg.MinimizingWriter = minWriter

	return cfg, nil
}
