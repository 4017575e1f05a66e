package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abimat/abimat/internal/harness"
	"github.com/abimat/abimat/internal/spanlog"
)

func key(test, caller, callee string, conv harness.CallingConvention) harness.TestKey {
	return harness.TestKey{
		Test:   test,
		Caller: caller,
		Callee: callee,
		Options: harness.TestOptions{
			Convention:   conv,
			Repr:         harness.ReprC,
			ValWriter:    harness.WriterHarness,
			ValGenerator: harness.GeneratorGraffiti,
			Functions:    harness.AllFunctions(),
		},
	}
}

func failingResults() harness.RunResults {
	return harness.RunResults{
		Phase: harness.RunCheck,
		Check: &harness.CheckOutcome{Subtests: []harness.SubtestCheck{
			{Name: "func0", Failure: &harness.CheckFailure{Kind: harness.ValMismatch, FuncIdx: 0, ArgIdx: 1, ValIdx: 2}},
		}},
	}
}

func TestClassify(t *testing.T) {
	pass := harness.DefaultRules()
	busted := harness.TestRules{Run: harness.RunCheck, Check: harness.ExpectBusted}

	clean := harness.RunResults{Phase: harness.RunCheck}
	failed := failingResults()
	crashed := harness.RunResults{Phase: harness.RunBuild, Err: errors.New("cc exploded")}

	assert.Equal(t, ConclusionPassed, Classify(pass, &clean))
	assert.Equal(t, ConclusionFailed, Classify(pass, &failed))
	assert.Equal(t, ConclusionFailed, Classify(pass, &crashed))

	// A covering busted rule downgrades any failure.
	assert.Equal(t, ConclusionBusted, Classify(busted, &failed))
	assert.Equal(t, ConclusionBusted, Classify(busted, &crashed))

	// Busted rules permit failure; they do not require it.
	assert.Equal(t, ConclusionPassed, Classify(busted, &clean))

	skip := harness.TestRules{Run: harness.RunSkip, Check: harness.ExpectPass}
	skipped := harness.RunResults{Phase: harness.RunSkip}
	assert.Equal(t, ConclusionSkipped, Classify(skip, &skipped))
}

func TestCompute_SummaryAndOverallStatus(t *testing.T) {
	outcomes := []harness.UnitOutcome{
		{Key: key("a", "gcc", "clang", harness.ConventionC), Rules: harness.DefaultRules(),
			Results: harness.RunResults{Phase: harness.RunCheck}},
		{Key: key("b", "gcc", "clang", harness.ConventionC),
			Rules:   harness.TestRules{Run: harness.RunCheck, Check: harness.ExpectBusted},
			Results: failingResults()},
		{Key: key("c", "gcc", "clang", harness.ConventionC),
			Rules:   harness.TestRules{Run: harness.RunSkip, Check: harness.ExpectPass},
			Results: harness.RunResults{Phase: harness.RunSkip}},
	}

	full := Compute(outcomes)
	assert.Equal(t, Summary{NumTests: 3, NumPassed: 1, NumBusted: 1, NumSkipped: 1}, full.Summary)
	assert.False(t, full.Failed(), "busted and skipped never contribute to failure")
	assert.Empty(t, full.PossibleRules)
}

func TestCompute_FailedProducesExactlyOnePattern(t *testing.T) {
	outcomes := []harness.UnitOutcome{
		{Key: key("structs", "gcc", "clang", harness.ConventionC),
			Rules: harness.DefaultRules(), Results: failingResults()},
	}

	full := Compute(outcomes)
	assert.True(t, full.Failed())
	require.Len(t, full.PossibleRules, 1)
	require.Len(t, full.PatternOrder, 1)

	entry := full.PossibleRules[full.PatternOrder[0]]
	assert.Equal(t, "structs", entry.Pattern.Test)
	assert.Empty(t, entry.Pattern.Writer)
	assert.Equal(t, harness.ExpectBusted, entry.Rules.Check)
	assert.Equal(t, harness.RunCheck, entry.Rules.Run)

	assert.Equal(t, entry.Rules, full.Tests[0].CouldBe)
}

func TestCompute_SamePatternCollapses(t *testing.T) {
	a := key("structs", "gcc", "clang", harness.ConventionC)
	b := a
	b.Options.ValWriter = harness.WriterPrint

	full := Compute([]harness.UnitOutcome{
		{Key: a, Rules: harness.DefaultRules(), Results: failingResults()},
		{Key: b, Rules: harness.DefaultRules(), Results: failingResults()},
	})

	assert.Equal(t, 2, full.Summary.NumFailed)
	// Writer is a wildcarded dimension, so both failures share a pattern.
	assert.Len(t, full.PossibleRules, 1)
}

func TestWriteHuman_RendersStatusExcerptAndCandidates(t *testing.T) {
	log := spanlog.New(spanlog.WithLiveOutput(&bytes.Buffer{}), spanlog.WithColor(false))
	k := key("structs", "gcc", "clang", harness.ConventionC)

	sid := log.BeginSpan(1, 0, spanlog.TestSpanName, map[string]string{"id": k.String()})
	log.RecordEvent(1, spanlog.SeverityError, "harness", map[string]string{"message": "value mismatch"})
	log.EndSpan(1)

	full := Compute([]harness.UnitOutcome{
		{Key: k, Rules: harness.DefaultRules(), Results: failingResults(), Span: sid},
	})
	full.Tests[0].Results.Check.Subtests[0].Minimized = "fn func0(a: u32);"

	var out bytes.Buffer
	require.NoError(t, full.WriteHuman(&out, log, "x86_64-linux", false))
	text := out.String()

	assert.Contains(t, text, "FAILED "+k.String())
	assert.Contains(t, text, "value mismatch")
	assert.Contains(t, text, "minimized func0:")
	assert.Contains(t, text, "fn func0(a: u32);")
	assert.Contains(t, text, "1 tests: 0 passed, 0 busted, 1 failed, 0 skipped")
	assert.Contains(t, text, "uncovered failures")
	assert.Contains(t, text, "x86_64-linux")
	assert.Contains(t, text, "check: busted")
}

func TestWriteHuman_CleanRunHasNoCandidateBlock(t *testing.T) {
	log := spanlog.New(spanlog.WithLiveOutput(&bytes.Buffer{}), spanlog.WithColor(false))
	full := Compute([]harness.UnitOutcome{
		{Key: key("a", "gcc", "clang", harness.ConventionC),
			Rules: harness.DefaultRules(), Results: harness.RunResults{Phase: harness.RunCheck}},
	})

	var out bytes.Buffer
	require.NoError(t, full.WriteHuman(&out, log, "x86_64-linux", false))
	assert.True(t, strings.HasPrefix(out.String(), "PASSED "))
	assert.NotContains(t, out.String(), "uncovered failures")
}

func TestWriteJSON_CarriesErrorText(t *testing.T) {
	full := Compute([]harness.UnitOutcome{
		{Key: key("a", "gcc", "clang", harness.ConventionC),
			Rules:   harness.DefaultRules(),
			Results: harness.RunResults{Phase: harness.RunLink, Err: errors.New("undefined symbol")}},
	})

	var out bytes.Buffer
	require.NoError(t, full.WriteJSON(&out))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Contains(t, out.String(), "undefined symbol")
	assert.Contains(t, out.String(), `"conclusion": "failed"`)
}
