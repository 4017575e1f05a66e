// Package minimize isolates a minimal reproducer for every structured
// mismatch found by the matrix run.
//
// This is isolation to a known coordinate, not a shrinking search: the
// comparison phase already reports the exact function/argument/value of
// each mismatch, so the isolator re-dispatches one generate-only unit per
// failing subtest with the selection narrowed to that coordinate and the
// value writer swapped for a deterministic minimizing writer.
package minimize

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/abimat/abimat/internal/harness"
	"github.com/abimat/abimat/internal/report"
)

type target struct {
	testIdx    int
	subtestIdx int
	unit       harness.Unit
}

// Failures runs the isolation wave over a computed report, attaching each
// generated artifact to the subtest failure it reproduces. Reports without
// a structured check outcome are left alone; only Failed runs participate.
// Callers should invoke this once, after classification, and only when the
// report actually failed.
func Failures(ctx context.Context, h *harness.Harness, full *report.FullReport) {
	var targets []target
	for testIdx, test := range full.Tests {
		if test.Conclusion != report.ConclusionFailed || test.Results.Check == nil {
			continue
		}
		for subtestIdx, subtest := range test.Results.Check.Subtests {
			if subtest.Failure == nil {
				continue
			}
			key := test.Key
			key.Options.Functions = harness.OneValue(
				subtest.Failure.FuncIdx,
				subtest.Failure.ArgIdx,
				subtest.Failure.ValIdx,
			)
			key.Options.ValWriter = h.MinimizingWriter()

			rules := test.Rules
			rules.Run = harness.RunGenerate

			targets = append(targets, target{
				testIdx:    testIdx,
				subtestIdx: subtestIdx,
				unit:       harness.Unit{Key: key, Rules: rules},
			})
		}
	}
	if len(targets) == 0 {
		return
	}

	slog.Info("minimizing failures", "count", len(targets))

	outcomes := make([]harness.UnitOutcome, len(targets))
	g, ctx := errgroup.WithContext(ctx)
	for i, tgt := range targets {
		i, tgt := i, tgt
		g.Go(func() error {
			outcomes[i] = h.RunUnit(ctx, tgt.unit)
			return nil
		})
	}
	_ = g.Wait()

	for i, tgt := range targets {
		results := outcomes[i].Results
		if results.Err != nil || results.Source == "" {
			// Generation failed; the original failure record stands on
			// its own.
			continue
		}
		full.Tests[tgt.testIdx].Results.Check.Subtests[tgt.subtestIdx].Minimized = results.Source
	}
}
