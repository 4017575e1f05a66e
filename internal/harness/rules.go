package harness

import "fmt"

// RunMode is the deepest phase a run is allowed to reach. Modes are ordered
// by phase: skip < generate < build < link < run < check.
type RunMode string

const (
	RunSkip     RunMode = "skip"
	RunGenerate RunMode = "generate"
	RunBuild    RunMode = "build"
	RunLink     RunMode = "link"
	RunRun      RunMode = "run"
	RunCheck    RunMode = "check"
)

var runModeOrder = map[RunMode]int{
	RunSkip:     0,
	RunGenerate: 1,
	RunBuild:    2,
	RunLink:     3,
	RunRun:      4,
	RunCheck:    5,
}

// ParseRunMode validates a run mode name.
func ParseRunMode(s string) (RunMode, error) {
	if _, ok := runModeOrder[RunMode(s)]; !ok {
		return "", fmt.Errorf("unknown run mode %q", s)
	}
	return RunMode(s), nil
}

// Reaches reports whether a run in this mode executes the given phase.
func (m RunMode) Reaches(phase RunMode) bool {
	return runModeOrder[m] >= runModeOrder[phase]
}

// CheckExpectation says how a run's outcome should be judged.
type CheckExpectation string

const (
	// ExpectPass is the default: a failing outcome counts as Failed.
	ExpectPass CheckExpectation = "pass"

	// ExpectBusted pre-declares the configuration as an acceptable
	// failure: a failing outcome counts as Busted and does not affect
	// overall status.
	ExpectBusted CheckExpectation = "busted"
)

// ParseCheckExpectation validates a check expectation name.
func ParseCheckExpectation(s string) (CheckExpectation, error) {
	switch c := CheckExpectation(s); c {
	case ExpectPass, ExpectBusted:
		return c, nil
	default:
		return "", fmt.Errorf("unknown check expectation %q", s)
	}
}

// TestRules is the expectation resolved for one run key before dispatch.
// Rules travel with the unit and determine how its outcome is classified,
// not whether it runs (except for RunSkip, which excludes the unit from
// toolchain work entirely).
type TestRules struct {
	Run   RunMode          `yaml:"run" json:"run"`
	Check CheckExpectation `yaml:"check" json:"check"`
}

// DefaultRules runs the full pipeline and expects it to pass.
func DefaultRules() TestRules {
	return TestRules{Run: RunCheck, Check: ExpectPass}
}

// RuleSource resolves expectation rules for a run key. Implemented by the
// rules package's file-backed repository; the driver only consults this
// narrow interface.
type RuleSource interface {
	RulesFor(key TestKey) TestRules
}

// StaticRules is a RuleSource returning the same rules for every key.
type StaticRules TestRules

// RulesFor implements RuleSource.
func (r StaticRules) RulesFor(TestKey) TestRules { return TestRules(r) }
