// Package harness enumerates the cross-toolchain test matrix and dispatches
// one concurrent run unit per surviving combination.
//
// The driver owns enumeration, keying, rule resolution, and dispatch. The
// actual toolchain work (generating, compiling, linking, executing probe
// programs and comparing values) happens behind the Executor interface, and
// expectation rules come from a RuleSource; both are external collaborators.
package harness

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/abimat/abimat/internal/spanlog"
)

// ToolchainPair names a caller/callee toolchain combination to run.
type ToolchainPair struct {
	Caller string
	Callee string
}

// Config selects which slices of the matrix to run. Every dimension is an
// allow-list; an empty list means "no filtering" for RunTests and
// RunToolchains and "nothing" for the dimensions that must be explicit.
type Config struct {
	RunTests       []string
	RunConventions []CallingConvention
	RunPairs       []ToolchainPair
	RunToolchains  []string
	RunReprs       []LangRepr
	RunGenerators  []ValueGeneratorKind
	RunWriters     []WriteImpl
	RunSelections  []FunctionSelector

	// MinimizingWriter is the deterministic writer the isolation wave
	// substitutes for maximally readable minimal output.
	MinimizingWriter WriteImpl

	// MaxConcurrency bounds how many run units execute at once. Zero or
	// negative means unbounded; large matrices should set a bound since
	// each unit may spawn external processes.
	MaxConcurrency int
}

// Unit is one resolved run: a key plus the rules that travel with it.
type Unit struct {
	Key   TestKey
	Rules TestRules
}

// UnitOutcome pairs a unit with its toolchain results and the log span the
// run recorded into. Processing order of outcomes is irrelevant: every
// outcome carries its own key.
type UnitOutcome struct {
	Key     TestKey
	Rules   TestRules
	Results RunResults
	Span    spanlog.SpanID
}

// Harness drives the combinatorial matrix.
type Harness struct {
	cfg     Config
	tests   map[string]*Test
	names   []string
	rules   RuleSource
	exec    Executor
	log     *spanlog.Logger
	nextEph atomic.Uint64
}

// New builds a Harness over the loaded tests.
func New(cfg Config, tests map[string]*Test, rules RuleSource, exec Executor, log *spanlog.Logger) *Harness {
	return &Harness{
		cfg:   cfg,
		tests: tests,
		names: sortedTestNames(tests),
		rules: rules,
		exec:  exec,
		log:   log,
	}
}

// MinimizingWriter exposes the configured minimization writer.
func (h *Harness) MinimizingWriter() WriteImpl {
	return h.cfg.MinimizingWriter
}

// Enumerate walks the full cross product and returns one unit per
// surviving combination, rules already resolved. A combination is skipped
// before keying when the test does not declare the convention, when the
// test filter excludes it, or when toolchain filters exclude both members
// of the pair.
func (h *Harness) Enumerate() []Unit {
	var units []Unit
	for _, name := range h.names {
		test := h.tests[name]
		if len(h.cfg.RunTests) > 0 && !containsString(h.cfg.RunTests, name) {
			continue
		}
		for _, convention := range h.cfg.RunConventions {
			if !test.HasConvention(convention) {
				continue
			}
			for _, pair := range h.cfg.RunPairs {
				if len(h.cfg.RunToolchains) > 0 &&
					!containsString(h.cfg.RunToolchains, pair.Caller) &&
					!containsString(h.cfg.RunToolchains, pair.Callee) {
					continue
				}
				for _, repr := range h.cfg.RunReprs {
					for _, generator := range h.cfg.RunGenerators {
						for _, writer := range h.cfg.RunWriters {
							for _, functions := range h.cfg.RunSelections {
								key := TestKey{
									Test:   name,
									Caller: pair.Caller,
									Callee: pair.Callee,
									Options: TestOptions{
										Convention:   convention,
										Repr:         repr,
										ValWriter:    writer,
										ValGenerator: generator,
										Functions:    functions,
									},
								}
								units = append(units, Unit{
									Key:   key,
									Rules: h.rules.RulesFor(key),
								})
							}
						}
					}
				}
			}
		}
	}
	return units
}

// Dispatch starts one concurrent unit of work per resolved unit and joins
// on all of them before returning. Units never fail the group; every
// failure is folded into its own outcome.
func (h *Harness) Dispatch(ctx context.Context, units []Unit) []UnitOutcome {
	g, ctx := errgroup.WithContext(ctx)
	if h.cfg.MaxConcurrency > 0 {
		g.SetLimit(h.cfg.MaxConcurrency)
	}

	outcomes := make([]UnitOutcome, len(units))
	for i, unit := range units {
		i, unit := i, unit
		g.Go(func() error {
			outcomes[i] = h.RunUnit(ctx, unit)
			return nil
		})
	}
	// Units only return nil; the join itself cannot fail.
	_ = g.Wait()
	return outcomes
}

// RunUnit executes one unit inside its own test span. The span carries the
// composite key as its id field, so the live excerpt printed at close and
// the report layer's per-test query both identify the run.
func (h *Harness) RunUnit(ctx context.Context, unit Unit) UnitOutcome {
	eph := spanlog.EphemeralID(h.nextEph.Add(1))
	span := h.log.BeginSpan(eph, 0, spanlog.TestSpanName, map[string]string{
		"id": unit.Key.String(),
	})
	defer h.log.EndSpan(eph)

	if unit.Rules.Run == RunSkip {
		h.log.RecordEvent(eph, spanlog.SeverityDebug, "harness", map[string]string{
			"message": "skipped by rules",
		})
		return UnitOutcome{
			Key:     unit.Key,
			Rules:   unit.Rules,
			Results: RunResults{Phase: RunSkip},
			Span:    span,
		}
	}

	slog.Debug("dispatching unit", "key", unit.Key.String(), "run", string(unit.Rules.Run))
	results := h.exec.Execute(ctx, unit.Key, unit.Rules)

	if results.Err != nil {
		h.log.RecordEvent(eph, spanlog.SeverityError, "harness", map[string]string{
			"message": fmt.Sprintf("%s phase failed: %v", results.Phase, results.Err),
		})
	} else if results.Check != nil && !results.Check.AllPassed() {
		for _, sub := range results.Check.Subtests {
			if sub.Failure == nil {
				continue
			}
			h.log.RecordEvent(eph, spanlog.SeverityError, "harness", map[string]string{
				"message": fmt.Sprintf("%s: %s at func %d arg %d val %d",
					sub.Name, sub.Failure.Kind, sub.Failure.FuncIdx, sub.Failure.ArgIdx, sub.Failure.ValIdx),
			})
		}
	} else {
		h.log.RecordEvent(eph, spanlog.SeverityTrace, "harness", map[string]string{
			"message": fmt.Sprintf("reached %s", results.Phase),
		})
	}

	return UnitOutcome{
		Key:     unit.Key,
		Rules:   unit.Rules,
		Results: results,
		Span:    span,
	}
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
