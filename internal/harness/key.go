package harness

import (
	"fmt"
	"strings"
)

// CallingConvention selects the ABI convention a test is invoked under.
type CallingConvention string

const (
	ConventionC      CallingConvention = "c"
	ConventionRust   CallingConvention = "rust"
	ConventionSystem CallingConvention = "system"
	ConventionWin64  CallingConvention = "win64"
	ConventionSysv64 CallingConvention = "sysv64"
)

// ParseConvention validates a convention name from flags or manifests.
func ParseConvention(s string) (CallingConvention, error) {
	switch c := CallingConvention(s); c {
	case ConventionC, ConventionRust, ConventionSystem, ConventionWin64, ConventionSysv64:
		return c, nil
	default:
		return "", fmt.Errorf("unknown calling convention %q", s)
	}
}

// LangRepr selects the source representation the probe programs are
// generated in.
type LangRepr string

const (
	ReprC    LangRepr = "c"
	ReprRust LangRepr = "rust"
)

// ParseRepr validates a representation name.
func ParseRepr(s string) (LangRepr, error) {
	switch r := LangRepr(s); r {
	case ReprC, ReprRust:
		return r, nil
	default:
		return "", fmt.Errorf("unknown repr %q", s)
	}
}

// ValueGeneratorKind selects how argument values are synthesized. The
// "graffiti" generator paints recognizable byte patterns; "random<seed>"
// draws from a seeded PRNG so runs stay reproducible.
type ValueGeneratorKind string

const GeneratorGraffiti ValueGeneratorKind = "graffiti"

// ParseGenerator validates a generator name.
func ParseGenerator(s string) (ValueGeneratorKind, error) {
	if s == string(GeneratorGraffiti) {
		return GeneratorGraffiti, nil
	}
	if rest, ok := strings.CutPrefix(s, "random"); ok && rest != "" {
		for _, r := range rest {
			if r < '0' || r > '9' {
				return "", fmt.Errorf("unknown value generator %q", s)
			}
		}
		return ValueGeneratorKind(s), nil
	}
	return "", fmt.Errorf("unknown value generator %q", s)
}

// WriteImpl selects the value-writer implementation the generated probes
// report values through.
type WriteImpl string

const (
	WriterHarness WriteImpl = "harness"
	WriterPrint   WriteImpl = "print"
	WriterAssert  WriteImpl = "assert"
	WriterNoop    WriteImpl = "noop"
)

// ParseWriter validates a writer name.
func ParseWriter(s string) (WriteImpl, error) {
	switch w := WriteImpl(s); w {
	case WriterHarness, WriterPrint, WriterAssert, WriterNoop:
		return w, nil
	default:
		return "", fmt.Errorf("unknown value writer %q", s)
	}
}

// SelectorKind discriminates All/One selectors.
type SelectorKind int

const (
	SelectAll SelectorKind = iota
	SelectOne
)

// ValSelector narrows which values of an argument a run exercises.
type ValSelector struct {
	Kind SelectorKind `json:"kind"`
	Idx  int          `json:"idx"`
}

// ArgSelector narrows which arguments of a function a run exercises.
type ArgSelector struct {
	Kind SelectorKind `json:"kind"`
	Idx  int          `json:"idx"`
	Vals ValSelector  `json:"vals"`
}

// FunctionSelector narrows which functions of a test a run exercises. The
// zero value selects everything.
type FunctionSelector struct {
	Kind SelectorKind `json:"kind"`
	Idx  int          `json:"idx"`
	Args ArgSelector  `json:"args"`
}

// AllFunctions selects every function, argument, and value.
func AllFunctions() FunctionSelector {
	return FunctionSelector{}
}

// OneValue selects exactly one scalar coordinate: the named function's
// argument's value. Used by minimization to isolate a known mismatch.
func OneValue(funcIdx, argIdx, valIdx int) FunctionSelector {
	return FunctionSelector{
		Kind: SelectOne,
		Idx:  funcIdx,
		Args: ArgSelector{
			Kind: SelectOne,
			Idx:  argIdx,
			Vals: ValSelector{Kind: SelectOne, Idx: valIdx},
		},
	}
}

func (s FunctionSelector) String() string {
	if s.Kind == SelectAll {
		return "all"
	}
	out := fmt.Sprintf("func_%d", s.Idx)
	if s.Args.Kind == SelectOne {
		out += fmt.Sprintf("_arg_%d", s.Args.Idx)
		if s.Args.Vals.Kind == SelectOne {
			out += fmt.Sprintf("_val_%d", s.Args.Vals.Idx)
		}
	}
	return out
}

// TestOptions are the option coordinates of a run key.
type TestOptions struct {
	Convention   CallingConvention  `json:"convention"`
	Repr         LangRepr           `json:"repr"`
	ValWriter    WriteImpl          `json:"val_writer"`
	ValGenerator ValueGeneratorKind `json:"val_generator"`
	Functions    FunctionSelector   `json:"functions"`
}

// TestKey identifies exactly one concrete run: the test, the toolchain
// pair, and every option coordinate. TestKey is comparable and usable as a
// map key; String gives it a total order and a stable human-readable
// identity for rule lookup and aggregation.
type TestKey struct {
	Test    string      `json:"test"`
	Caller  string      `json:"caller"`
	Callee  string      `json:"callee"`
	Options TestOptions `json:"options"`
}

// String renders the canonical composite identity of the run.
func (k TestKey) String() string {
	return fmt.Sprintf("%s::conv_%s::%s_calls_%s::repr_%s::%s::writer_%s::%s",
		k.Test,
		k.Options.Convention,
		k.Caller,
		k.Callee,
		k.Options.Repr,
		k.Options.ValGenerator,
		k.Options.ValWriter,
		k.Options.Functions,
	)
}
