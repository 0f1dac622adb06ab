package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildParse(t *testing.T) {
	p := Build(" A cat sat. A dog ran. ", "Where did the cat sit?")
	require.True(t, strings.HasPrefix(p, Instruction))
	require.Contains(t, p, "Context: A cat sat. A dog ran.")
	require.Contains(t, p, "Question: Where did the cat sit?")

	ctx, q, ok := Parse(p)
	require.True(t, ok)
	require.Equal(t, "A cat sat. A dog ran.", ctx)
	require.Equal(t, "Where did the cat sit?", q)

	_, _, ok = Parse("just some text")
	require.False(t, ok)
}

func TestStripEcho(t *testing.T) {
	sent := Build("ctx", "q?")
	tests := []struct {
		name   string
		output string
		want   string
	}{
		{name: "clean answer", output: "  The mat.  ", want: "The mat."},
		{name: "echoed prompt", output: sent + " The mat.", want: "The mat."},
		{name: "inst marker", output: "[INST] stuff [/INST] On the mat.", want: "On the mat."},
		{name: "answer marker only", output: "blah\nAnswer: Yes.", want: "Yes."},
		{name: "echo without answer", output: sent, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, StripEcho(tt.output, sent))
		})
	}
}

func TestEchoed(t *testing.T) {
	require.True(t, Echoed("Context: foo"))
	require.True(t, Echoed("x "+Instruction))
	require.False(t, Echoed("The cat sat on the mat."))
}
