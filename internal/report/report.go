// Package report classifies per-run outcomes into a summary plus a set of
// candidate expectation rules for the failures nothing covered.
package report

import (
	"fmt"

	"github.com/abimat/abimat/internal/harness"
	"github.com/abimat/abimat/internal/rules"
	"github.com/abimat/abimat/internal/spanlog"
)

// Conclusion is the classified outcome of one run.
type Conclusion string

const (
	// ConclusionPassed means the run did everything its rules asked.
	ConclusionPassed Conclusion = "passed"

	// ConclusionBusted means the run failed but a pre-declared rule says
	// this configuration is allowed to fail. Busted never affects overall
	// status.
	ConclusionBusted Conclusion = "busted"

	// ConclusionFailed means the run failed with no covering rule.
	ConclusionFailed Conclusion = "failed"

	// ConclusionSkipped means the run was excluded before toolchain work.
	ConclusionSkipped Conclusion = "skipped"
)

// Classify folds a unit's rules and results into a conclusion. A failing
// outcome under an ExpectBusted rule is Busted, not Failed; a passing
// outcome is Passed regardless of expectation, since busted rules permit
// failure rather than require it.
func Classify(ruleset harness.TestRules, results *harness.RunResults) Conclusion {
	if ruleset.Run == harness.RunSkip {
		return ConclusionSkipped
	}
	if !results.Failed() {
		return ConclusionPassed
	}
	if ruleset.Check == harness.ExpectBusted {
		return ConclusionBusted
	}
	return ConclusionFailed
}

// TestReport is one classified run.
type TestReport struct {
	Key        harness.TestKey    `json:"key"`
	Rules      harness.TestRules  `json:"rules"`
	Results    harness.RunResults `json:"results"`
	Conclusion Conclusion         `json:"conclusion"`

	// Span keys this run's excerpt in the span log.
	Span spanlog.SpanID `json:"-"`

	// CouldBe is the rule fragment that would cover this run if it
	// Failed: the phase it died in, marked busted.
	CouldBe harness.TestRules `json:"could_be,omitempty"`
}

// Summary counts conclusions across the whole matrix.
type Summary struct {
	NumTests   int `json:"num_tests"`
	NumPassed  int `json:"num_passed"`
	NumBusted  int `json:"num_busted"`
	NumFailed  int `json:"num_failed"`
	NumSkipped int `json:"num_skipped"`
}

// FullReport is the aggregated result of one harness invocation.
type FullReport struct {
	Summary Summary      `json:"summary"`
	Tests   []TestReport `json:"tests"`

	// PossibleRules maps each generalized failure pattern to the candidate
	// rule entry that would cover it, in first-failure order. Operators
	// paste these into the rule file to acknowledge known breakage.
	PossibleRules map[string]rules.Entry `json:"possible_rules,omitempty"`

	// PatternOrder preserves insertion order for PossibleRules.
	PatternOrder []string `json:"-"`
}

// Failed reports overall failure: true iff any run concluded Failed.
// Busted and Skipped never contribute.
func (r *FullReport) Failed() bool {
	return r.Summary.NumFailed > 0
}

// Compute classifies every outcome and aggregates the summary and the
// candidate-rule set. Each Failed run contributes exactly one generalized
// pattern; repeated failures under the same pattern collapse into one
// candidate.
func Compute(outcomes []harness.UnitOutcome) *FullReport {
	full := &FullReport{
		Tests:         make([]TestReport, 0, len(outcomes)),
		PossibleRules: make(map[string]rules.Entry),
	}

	for _, outcome := range outcomes {
		report := TestReport{
			Key:     outcome.Key,
			Rules:   outcome.Rules,
			Results: outcome.Results,
			Span:    outcome.Span,
		}
		report.Conclusion = Classify(outcome.Rules, &report.Results)

		full.Summary.NumTests++
		switch report.Conclusion {
		case ConclusionPassed:
			full.Summary.NumPassed++
		case ConclusionBusted:
			full.Summary.NumBusted++
		case ConclusionSkipped:
			full.Summary.NumSkipped++
		case ConclusionFailed:
			full.Summary.NumFailed++
			report.CouldBe = harness.TestRules{
				Run:   report.Results.Phase,
				Check: harness.ExpectBusted,
			}
			pattern := rules.PatternFor(outcome.Key)
			if _, seen := full.PossibleRules[pattern.String()]; !seen {
				full.PossibleRules[pattern.String()] = rules.Entry{
					Pattern: pattern,
					Rules:   report.CouldBe,
				}
				full.PatternOrder = append(full.PatternOrder, pattern.String())
			}
		}
		full.Tests = append(full.Tests, report)
	}
	return full
}

// CandidateEntries returns the candidate rules in insertion order, ready
// for rules.Marshal.
func (r *FullReport) CandidateEntries() []rules.Entry {
	entries := make([]rules.Entry, 0, len(r.PatternOrder))
	for _, pattern := range r.PatternOrder {
		entries = append(entries, r.PossibleRules[pattern])
	}
	return entries
}

func (s Summary) String() string {
	return fmt.Sprintf("%d tests: %d passed, %d busted, %d failed, %d skipped",
		s.NumTests, s.NumPassed, s.NumBusted, s.NumFailed, s.NumSkipped)
}
