// Package testutil provides deterministic doubles for the harness's
// external collaborators.
package testutil

import (
	"context"
	"sync"

	"github.com/abimat/abimat/internal/harness"
)

// ScriptedExecutor is a harness.Executor that returns pre-programmed
// results per key string, falling back to Default. It records every call,
// so tests can assert exactly which units were dispatched.
//
// Thread-safety: all methods are safe for concurrent use; Dispatch runs
// units in parallel.
type ScriptedExecutor struct {
	mu       sync.Mutex
	Default  harness.RunResults
	Outcomes map[string]harness.RunResults
	calls    []harness.TestKey
	rules    []harness.TestRules
}

// NewScriptedExecutor creates an executor whose default outcome is a clean
// pass through the check phase.
func NewScriptedExecutor() *ScriptedExecutor {
	return &ScriptedExecutor{
		Default:  harness.RunResults{Phase: harness.RunCheck},
		Outcomes: make(map[string]harness.RunResults),
	}
}

// Script sets the outcome for one exact key.
func (e *ScriptedExecutor) Script(key harness.TestKey, results harness.RunResults) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Outcomes[key.String()] = results
}

// Execute implements harness.Executor.
func (e *ScriptedExecutor) Execute(_ context.Context, key harness.TestKey, rules harness.TestRules) harness.RunResults {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, key)
	e.rules = append(e.rules, rules)
	if results, ok := e.Outcomes[key.String()]; ok {
		return results
	}
	return e.Default
}

// Calls returns a copy of every key executed so far, in call order.
func (e *ScriptedExecutor) Calls() []harness.TestKey {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]harness.TestKey, len(e.calls))
	copy(out, e.calls)
	return out
}

// CallRules returns the rules each call traveled with, in call order.
func (e *ScriptedExecutor) CallRules() []harness.TestRules {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]harness.TestRules, len(e.rules))
	copy(out, e.rules)
	return out
}
