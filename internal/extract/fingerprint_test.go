package extract

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain", input: "hello world", want: "hello world"},
		{name: "collapses runs", input: "hello   world", want: "hello world"},
		{name: "newlines and tabs", input: "hello\n\tworld\r\n", want: "hello world"},
		{name: "leading trailing", input: "  hello world  ", want: "hello world"},
		{name: "empty", input: "", want: ""},
		{name: "only whitespace", input: " \n\t ", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, NormalizeText(tt.input))
		})
	}
}

func TestFingerprintStableAcrossLayout(t *testing.T) {
	a := Fingerprint("Section 1.\nThe  operator   shall comply.")
	b := Fingerprint("Section 1. The operator shall comply.")
	require.Equal(t, a, b)
	require.Len(t, a, 64)

	c := Fingerprint("Section 2. The operator shall comply.")
	require.NotEqual(t, a, c)
}

func TestFingerprintDeterministic(t *testing.T) {
	text := "Annex IV, paragraph 3: record retention of five years."
	require.Equal(t, Fingerprint(text), Fingerprint(text))
}
