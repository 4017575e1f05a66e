// Package toolchain adapts an external toolchain driver process to the
// harness.Executor interface.
//
// The harness core never compiles or runs probe programs itself. A driver
// binary receives one run request as JSON on stdin and answers with a JSON
// result on stdout; everything the driver does in between (generation,
// compilation, linking, execution, value comparison) is opaque here.
// Driver failures fold into the unit's results and never abort siblings.
package toolchain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/abimat/abimat/internal/harness"
)

// Request is the wire format handed to the driver, flat so drivers in any
// language stay trivial.
type Request struct {
	Key        string `json:"key"`
	Test       string `json:"test"`
	Caller     string `json:"caller"`
	Callee     string `json:"callee"`
	Convention string `json:"convention"`
	Repr       string `json:"repr"`
	Generator  string `json:"generator"`
	Writer     string `json:"writer"`
	Functions  string `json:"functions"`
	Run        string `json:"run"`
	Check      string `json:"check"`
}

// Response is the wire format the driver answers with.
type Response struct {
	Phase  string                `json:"phase"`
	Error  string                `json:"error,omitempty"`
	Check  *harness.CheckOutcome `json:"check,omitempty"`
	Source string                `json:"source,omitempty"`
}

// CommandExecutor shells out to a driver binary per run unit.
type CommandExecutor struct {
	// Path is the driver binary.
	Path string

	// Args are fixed leading arguments passed on every invocation.
	Args []string
}

// Execute implements harness.Executor.
func (e *CommandExecutor) Execute(ctx context.Context, key harness.TestKey, rules harness.TestRules) harness.RunResults {
	req := Request{
		Key:        key.String(),
		Test:       key.Test,
		Caller:     key.Caller,
		Callee:     key.Callee,
		Convention: string(key.Options.Convention),
		Repr:       string(key.Options.Repr),
		Generator:  string(key.Options.ValGenerator),
		Writer:     string(key.Options.ValWriter),
		Functions:  key.Options.Functions.String(),
		Run:        string(rules.Run),
		Check:      string(rules.Check),
	}
	payload, err := json.Marshal(&req)
	if err != nil {
		return failure(fmt.Errorf("failed to encode driver request: %w", err))
	}

	cmd := exec.CommandContext(ctx, e.Path, e.Args...)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return failure(fmt.Errorf("toolchain driver failed: %w (stderr: %s)", err, stderr.String()))
	}

	var resp Response
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return failure(fmt.Errorf("failed to decode driver response: %w", err))
	}
	phase, err := harness.ParseRunMode(resp.Phase)
	if err != nil {
		return failure(fmt.Errorf("driver reported bad phase: %w", err))
	}

	results := harness.RunResults{
		Phase:  phase,
		Check:  resp.Check,
		Source: resp.Source,
	}
	if resp.Error != "" {
		results.Err = fmt.Errorf("toolchain: %s", resp.Error)
	}
	return results
}

func failure(err error) harness.RunResults {
	return harness.RunResults{Phase: harness.RunGenerate, Err: err}
}
