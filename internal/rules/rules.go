// Package rules stores and resolves expectation rules: pre-declared
// knowledge that certain run configurations are allowed to fail ("busted")
// or should not run at all.
//
// Rules live in yaml files keyed by platform target. Each entry is a key
// pattern plus the rules applying to every key it covers; an empty pattern
// field is a wildcard. Lookup picks the most specific matching entry, with
// later entries winning ties, so narrow overrides can follow broad ones.
package rules

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/abimat/abimat/internal/harness"
)

// Pattern matches a set of run keys. Empty fields are wildcards.
type Pattern struct {
	Test       string `yaml:"test,omitempty" json:"test,omitempty"`
	Caller     string `yaml:"caller,omitempty" json:"caller,omitempty"`
	Callee     string `yaml:"callee,omitempty" json:"callee,omitempty"`
	Convention string `yaml:"convention,omitempty" json:"convention,omitempty"`
	Repr       string `yaml:"repr,omitempty" json:"repr,omitempty"`
	Generator  string `yaml:"generator,omitempty" json:"generator,omitempty"`
	Writer     string `yaml:"writer,omitempty" json:"writer,omitempty"`
}

// PatternFor generalizes a run key into the pattern the classifier reports
// for uncovered failures. The writer and generator dimensions are
// wildcarded: they shape how values are reported, not the ABI outcome, so
// one candidate rule covers every writer/generator variant of the same
// mismatch.
func PatternFor(key harness.TestKey) Pattern {
	return Pattern{
		Test:       key.Test,
		Caller:     key.Caller,
		Callee:     key.Callee,
		Convention: string(key.Options.Convention),
		Repr:       string(key.Options.Repr),
	}
}

// Matches reports whether the pattern covers the key.
func (p Pattern) Matches(key harness.TestKey) bool {
	match := func(pat, val string) bool { return pat == "" || pat == val }
	return match(p.Test, key.Test) &&
		match(p.Caller, key.Caller) &&
		match(p.Callee, key.Callee) &&
		match(p.Convention, string(key.Options.Convention)) &&
		match(p.Repr, string(key.Options.Repr)) &&
		match(p.Generator, string(key.Options.ValGenerator)) &&
		match(p.Writer, string(key.Options.ValWriter))
}

// Specificity counts constrained dimensions; higher wins on lookup.
func (p Pattern) Specificity() int {
	n := 0
	for _, f := range []string{p.Test, p.Caller, p.Callee, p.Convention, p.Repr, p.Generator, p.Writer} {
		if f != "" {
			n++
		}
	}
	return n
}

// String renders the pattern as a stable "::"-joined identity with "*" for
// wildcarded dimensions.
func (p Pattern) String() string {
	segs := []string{p.Test, p.Convention, p.Caller, p.Callee, p.Repr, p.Generator, p.Writer}
	for i, s := range segs {
		if s == "" {
			segs[i] = "*"
		}
	}
	return strings.Join(segs, "::")
}

// Entry pairs a pattern with the rules for every key it covers.
type Entry struct {
	Pattern Pattern          `yaml:",inline"`
	Rules   harness.TestRules `yaml:"rules"`
}

// File is the on-disk rule format: patterns grouped by platform target.
// The "*" target applies everywhere.
type File struct {
	Target map[string][]Entry `yaml:"target"`
}

// Repository resolves rules for run keys from loaded entries.
type Repository struct {
	entries  []Entry
	defaults harness.TestRules
}

// NewRepository builds a repository from in-memory entries.
func NewRepository(entries []Entry) *Repository {
	return &Repository{entries: entries, defaults: harness.DefaultRules()}
}

// Load reads a rule file and keeps the entries applying to target (plus the
// "*" target). A malformed rule file is a hard error: it means broken
// tooling, not an expected test outcome.
func Load(path, target string) (*Repository, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule file: %w", err)
	}

	var file File
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse rule file %s: %w", path, err)
	}

	var entries []Entry
	for _, tgt := range []string{"*", target} {
		for _, entry := range file.Target[tgt] {
			if entry.Rules.Run == "" {
				return nil, fmt.Errorf("rule file %s: entry %s: missing run mode", path, entry.Pattern)
			}
			if _, err := harness.ParseRunMode(string(entry.Rules.Run)); err != nil {
				return nil, fmt.Errorf("rule file %s: entry %s: %w", path, entry.Pattern, err)
			}
			if entry.Rules.Check == "" {
				entry.Rules.Check = harness.ExpectPass
			}
			if _, err := harness.ParseCheckExpectation(string(entry.Rules.Check)); err != nil {
				return nil, fmt.Errorf("rule file %s: entry %s: %w", path, entry.Pattern, err)
			}
			entries = append(entries, entry)
		}
	}
	return NewRepository(entries), nil
}

// RulesFor implements harness.RuleSource: the most specific matching entry
// wins, later entries break ties, and keys no entry covers get the
// defaults (full run, expected to pass).
func (r *Repository) RulesFor(key harness.TestKey) harness.TestRules {
	best := r.defaults
	bestSpec := -1
	for _, entry := range r.entries {
		if !entry.Pattern.Matches(key) {
			continue
		}
		if spec := entry.Pattern.Specificity(); spec >= bestSpec {
			best = entry.Rules
			bestSpec = spec
		}
	}
	return best
}

// Marshal renders entries back into the on-disk format under the given
// target, so candidate rules surfaced by the classifier can be pasted into
// a rule file verbatim.
func Marshal(target string, entries []Entry) ([]byte, error) {
	file := File{Target: map[string][]Entry{target: entries}}
	return yaml.Marshal(&file)
}
