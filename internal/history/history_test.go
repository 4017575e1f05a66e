package history

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abimat/abimat/internal/harness"
	"github.com/abimat/abimat/internal/report"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleReport(conclusionFailed bool) *report.FullReport {
	results := harness.RunResults{Phase: harness.RunCheck}
	if conclusionFailed {
		results.Check = &harness.CheckOutcome{Subtests: []harness.SubtestCheck{
			{Name: "func0", Failure: &harness.CheckFailure{Kind: harness.ValMismatch}},
		}}
	}
	return report.Compute([]harness.UnitOutcome{{
		Key: harness.TestKey{
			Test: "structs", Caller: "gcc", Callee: "clang",
			Options: harness.TestOptions{
				Convention:   harness.ConventionC,
				Repr:         harness.ReprC,
				ValWriter:    harness.WriterHarness,
				ValGenerator: harness.GeneratorGraffiti,
			},
		},
		Rules:   harness.DefaultRules(),
		Results: results,
	}})
}

func TestRecordRun_PersistsSummaryAndKeys(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	runID, err := store.RecordRun(ctx, "x86_64-linux", sampleReport(false))
	require.NoError(t, err)
	assert.NotEmpty(t, runID)

	runs, err := store.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, runID, runs[0].ID)
	assert.Equal(t, "x86_64-linux", runs[0].Target)
	assert.Equal(t, 1, runs[0].NumTests)
	assert.Equal(t, 1, runs[0].NumPassed)
	assert.Zero(t, runs[0].NumFailed)
	assert.NotEmpty(t, runs[0].CreatedAt)
}

func TestKeyHistory_NewestFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.RecordRun(ctx, "x86_64-linux", sampleReport(false))
	require.NoError(t, err)
	second, err := store.RecordRun(ctx, "x86_64-linux", sampleReport(true))
	require.NoError(t, err)

	full := sampleReport(false)
	key := full.Tests[0].Key.String()

	history, err := store.KeyHistory(ctx, key, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second, history[0].RunID)
	assert.Equal(t, string(report.ConclusionFailed), history[0].Conclusion)
	assert.Equal(t, string(report.ConclusionPassed), history[1].Conclusion)
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	first, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(path)
	require.NoError(t, err)
	assert.NoError(t, second.Close())
}
