package minimize

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abimat/abimat/internal/harness"
	"github.com/abimat/abimat/internal/report"
	"github.com/abimat/abimat/internal/spanlog"
	"github.com/abimat/abimat/internal/testutil"
)

func newHarness(exec harness.Executor) *harness.Harness {
	cfg := harness.Config{
		RunConventions:   []harness.CallingConvention{harness.ConventionC},
		RunPairs:         []harness.ToolchainPair{{Caller: "gcc", Callee: "clang"}},
		RunReprs:         []harness.LangRepr{harness.ReprC},
		RunGenerators:    []harness.ValueGeneratorKind{harness.GeneratorGraffiti},
		RunWriters:       []harness.WriteImpl{harness.WriterHarness},
		RunSelections:    []harness.FunctionSelector{harness.AllFunctions()},
		MinimizingWriter: harness.WriterPrint,
	}
	tests := map[string]*harness.Test{
		"structs": {Name: "structs", Conventions: []harness.CallingConvention{harness.ConventionC}},
	}
	log := spanlog.New(spanlog.WithLiveOutput(&bytes.Buffer{}), spanlog.WithColor(false))
	return harness.New(cfg, tests, harness.StaticRules(harness.DefaultRules()), exec, log)
}

func TestFailures_DispatchesExactlyOneNarrowedUnit(t *testing.T) {
	exec := testutil.NewScriptedExecutor()
	h := newHarness(exec)

	// Full matrix run: one unit, one ValMismatch at func 2, arg 0, val 1.
	baseKey := h.Enumerate()[0].Key
	exec.Script(baseKey, harness.RunResults{
		Phase: harness.RunCheck,
		Check: &harness.CheckOutcome{Subtests: []harness.SubtestCheck{
			{Name: "func0"},
			{Name: "func2", Failure: &harness.CheckFailure{Kind: harness.ValMismatch, FuncIdx: 2, ArgIdx: 0, ValIdx: 1}},
		}},
	})

	narrowed := baseKey
	narrowed.Options.Functions = harness.OneValue(2, 0, 1)
	narrowed.Options.ValWriter = harness.WriterPrint
	exec.Script(narrowed, harness.RunResults{
		Phase:  harness.RunGenerate,
		Source: "fn func2(a: u32) { /* minimal */ }",
	})

	full := report.Compute(h.Dispatch(context.Background(), h.Enumerate()))
	require.True(t, full.Failed())

	Failures(context.Background(), h, full)

	calls := exec.Calls()
	require.Len(t, calls, 2, "one matrix unit plus exactly one narrowed unit")
	assert.Equal(t, narrowed, calls[1])

	subtests := full.Tests[0].Results.Check.Subtests
	assert.Empty(t, subtests[0].Minimized, "passing subtest untouched")
	assert.Equal(t, "fn func2(a: u32) { /* minimal */ }", subtests[1].Minimized)
}

func TestFailures_NarrowedRulesForceGenerate(t *testing.T) {
	exec := testutil.NewScriptedExecutor()
	h := newHarness(exec)

	baseKey := h.Enumerate()[0].Key
	exec.Script(baseKey, harness.RunResults{
		Phase: harness.RunCheck,
		Check: &harness.CheckOutcome{Subtests: []harness.SubtestCheck{
			{Name: "func0", Failure: &harness.CheckFailure{Kind: harness.TagMismatch, FuncIdx: 0, ArgIdx: 0, ValIdx: 0}},
		}},
	})

	full := report.Compute(h.Dispatch(context.Background(), h.Enumerate()))
	Failures(context.Background(), h, full)

	// The default scripted outcome for the narrowed key has no source, so
	// nothing attaches, and the failure record stands.
	assert.Empty(t, full.Tests[0].Results.Check.Subtests[0].Minimized)
	require.Len(t, exec.Calls(), 2)
	assert.Equal(t, harness.OneValue(0, 0, 0), exec.Calls()[1].Options.Functions)
	assert.Equal(t, harness.RunGenerate, exec.CallRules()[1].Run)
}

func TestFailures_SkipsBustedAndPassed(t *testing.T) {
	exec := testutil.NewScriptedExecutor()
	h := newHarness(exec)

	outcomes := []harness.UnitOutcome{
		{
			Key:   h.Enumerate()[0].Key,
			Rules: harness.TestRules{Run: harness.RunCheck, Check: harness.ExpectBusted},
			Results: harness.RunResults{
				Phase: harness.RunCheck,
				Check: &harness.CheckOutcome{Subtests: []harness.SubtestCheck{
					{Name: "func0", Failure: &harness.CheckFailure{Kind: harness.ValMismatch}},
				}},
			},
		},
	}
	full := report.Compute(outcomes)
	require.False(t, full.Failed())

	Failures(context.Background(), h, full)
	assert.Empty(t, exec.Calls(), "busted runs are not minimized")
}
