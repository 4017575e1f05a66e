package harness

import (
	"context"
	"encoding/json"
)

// FailureKind tags a structured check failure.
type FailureKind string

const (
	// ValMismatch means the caller and callee disagreed on a value's bytes.
	ValMismatch FailureKind = "val_mismatch"

	// TagMismatch means they disagreed on a tagged union's discriminant.
	TagMismatch FailureKind = "tag_mismatch"
)

// CheckFailure carries the exact coordinates of one mismatch, as reported
// by the external comparison phase. The coordinates are known facts, not
// inferences, which is what lets minimization isolate without searching.
type CheckFailure struct {
	Kind    FailureKind `json:"kind"`
	FuncIdx int         `json:"func_idx"`
	ArgIdx  int         `json:"arg_idx"`
	ValIdx  int         `json:"val_idx"`
}

// SubtestCheck is the comparison outcome for one subtest of a run. Failure
// is nil when the subtest passed. Minimized is filled in after the
// isolation wave with the generated minimal reproducer, when one could be
// produced.
type SubtestCheck struct {
	Name      string        `json:"name"`
	Failure   *CheckFailure `json:"failure,omitempty"`
	Minimized string        `json:"minimized,omitempty"`
}

// CheckOutcome is the structured result of the comparison phase.
type CheckOutcome struct {
	Subtests []SubtestCheck `json:"subtests"`
}

// AllPassed reports whether no subtest failed.
func (c *CheckOutcome) AllPassed() bool {
	for _, sub := range c.Subtests {
		if sub.Failure != nil {
			return false
		}
	}
	return true
}

// RunResults is what the toolchain executor hands back for one unit.
// JSON serialization carries the phase error as text.
type RunResults struct {
	// Phase is the deepest phase the run reached.
	Phase RunMode `json:"phase"`

	// Err is the failure at Phase; nil when every requested phase
	// succeeded.
	Err error `json:"-"`

	// Check is present when the check phase ran.
	Check *CheckOutcome `json:"check,omitempty"`

	// Source is the generated probe source for generate-only runs.
	Source string `json:"source,omitempty"`
}

// MarshalJSON flattens the phase error into a message string.
func (r RunResults) MarshalJSON() ([]byte, error) {
	view := struct {
		Phase  RunMode       `json:"phase"`
		Error  string        `json:"error,omitempty"`
		Check  *CheckOutcome `json:"check,omitempty"`
		Source string        `json:"source,omitempty"`
	}{Phase: r.Phase, Check: r.Check, Source: r.Source}
	if r.Err != nil {
		view.Error = r.Err.Error()
	}
	return json.Marshal(view)
}

// Failed reports whether the run produced any failure, from a phase error
// or from the structured check outcome.
func (r *RunResults) Failed() bool {
	if r.Err != nil {
		return true
	}
	return r.Check != nil && !r.Check.AllPassed()
}

// Executor performs the toolchain work for one run key: generation,
// compilation, linking, execution, and value comparison, capped at the
// rules' run mode. Implementations must be safe for concurrent calls and
// must fold their own failures into the returned RunResults rather than
// panicking; a unit failure never aborts sibling units.
type Executor interface {
	Execute(ctx context.Context, key TestKey, rules TestRules) RunResults
}
