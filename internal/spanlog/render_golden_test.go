package spanlog

import (
	"io"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
)

// TestRender_Golden pins the full rendered shape of a nested execution:
// header styling off, id field adjacent to the span name, two-space
// indentation per level, children inlined at their creation points.
func TestRender_Golden(t *testing.T) {
	log := New(WithLiveOutput(io.Discard), WithColor(false))

	log.BeginSpan(1, 0, TestSpanName, map[string]string{"id": "structs::conv_c::gcc_calls_clang"})
	log.RecordEvent(1, SeverityInfo, "harness", map[string]string{"message": "generating source"})
	log.BeginSpan(2, 1, "compile", map[string]string{"toolchain": "gcc"})
	log.RecordEvent(2, SeverityDebug, "harness", map[string]string{"message": "cc -o caller.o"})
	log.EndSpan(2)
	log.RecordEvent(1, SeverityWarn, "harness", map[string]string{"message": "callee reported 3 values"})
	log.BeginSpan(3, 1, "check", nil)
	log.RecordEvent(3, SeverityError, "harness", map[string]string{"message": "value mismatch in func 2"})
	log.EndSpan(3)
	log.EndSpan(1)

	text, err := log.Render(All())
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "span_tree", []byte(text))
}
