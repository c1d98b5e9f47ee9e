package extract

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitKeepsSmallTextWhole(t *testing.T) {
	chunks := Split("a short paragraph", 400)
	require.Len(t, chunks, 1)
	require.Equal(t, 0, chunks[0].Ordinal)
	require.Equal(t, "a short paragraph", chunks[0].Text)
	require.Equal(t, 0, chunks[0].Offset)
}

func TestSplitEmptyText(t *testing.T) {
	require.Empty(t, Split("", 400))
	require.Empty(t, Split("\n\n  \n\n", 400))
}

func TestSplitPrefersParagraphBoundaries(t *testing.T) {
	para := strings.Repeat("word ", 50)
	text := strings.TrimSpace(para) + "\n\n" + strings.TrimSpace(para) + "\n\n" + strings.TrimSpace(para)

	// 50 tokens per paragraph, cap of 100: two paragraphs fit per chunk.
	chunks := Split(text, 100)
	require.Len(t, chunks, 2)
	require.Contains(t, chunks[0].Text, "\n\n")
	require.NotContains(t, chunks[1].Text, "\n\n")
	for i, chunk := range chunks {
		require.Equal(t, i, chunk.Ordinal)
		require.LessOrEqual(t, chunk.Tokens, 100)
	}
}

func TestSplitHardSplitsOversizedParagraph(t *testing.T) {
	words := make([]string, 250)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	chunks := Split(strings.Join(words, " "), 100)
	require.Len(t, chunks, 3)
	for i, chunk := range chunks {
		require.Equal(t, i, chunk.Ordinal)
		require.LessOrEqual(t, chunk.Tokens, 100)
	}
	// No words lost across the cut points.
	rejoined := strings.Fields(strings.Join([]string{chunks[0].Text, chunks[1].Text, chunks[2].Text}, " "))
	require.Equal(t, words, rejoined)
}

func TestSplitTracksOffsets(t *testing.T) {
	text := "first paragraph\n\nsecond paragraph"
	chunks := Split(text, 2)
	require.Len(t, chunks, 2)
	require.Equal(t, 0, chunks[0].Offset)
	require.Equal(t, len("first paragraph")+2, chunks[1].Offset)
	require.Equal(t, "second paragraph", text[chunks[1].Offset:])
}

func TestSplitDeterministic(t *testing.T) {
	text := strings.Repeat("alpha beta gamma delta.\n\n", 40)
	first := Split(text, 50)
	second := Split(text, 50)
	require.Equal(t, first, second)
}

func TestEstimateTokens(t *testing.T) {
	require.Equal(t, 0, EstimateTokens(""))
	require.Equal(t, 2, EstimateTokens("hello world"))
	// CJK runes count individually on top of the field count.
	require.Equal(t, 3, EstimateTokens("条例"))
}
