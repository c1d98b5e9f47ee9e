package extract

import "strings"

// Chunk is a bounded span of document text processed as one embedding unit.
// Offset is the byte offset of the span within the normalised source text,
// kept for snippet reconstruction.
type Chunk struct {
	Ordinal int
	Text    string
	Offset  int
	Tokens  int
}

// Split chunks text into ordered spans of at most maxTokens estimated
// tokens. It prefers paragraph boundaries and falls back to hard splits on
// word boundaries for oversized paragraphs. Output is deterministic for
// identical inputs, which reprocessing relies on.
func Split(text string, maxTokens int) []Chunk {
	if maxTokens <= 0 {
		maxTokens = 400
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var chunks []Chunk
	var current []string
	currentTokens := 0
	currentOffset := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		content := strings.Join(current, "\n\n")
		chunks = append(chunks, Chunk{
			Ordinal: len(chunks),
			Text:    content,
			Offset:  currentOffset,
			Tokens:  EstimateTokens(content),
		})
		current = nil
		currentTokens = 0
	}

	offset := 0
	for _, para := range strings.Split(text, "\n\n") {
		paraOffset := offset
		offset += len(para) + 2
		trimmed := strings.TrimSpace(para)
		if trimmed == "" {
			continue
		}
		tokens := EstimateTokens(trimmed)

		if tokens > maxTokens {
			flush()
			for _, piece := range hardSplit(trimmed, maxTokens) {
				chunks = append(chunks, Chunk{
					Ordinal: len(chunks),
					Text:    piece,
					Offset:  paraOffset,
					Tokens:  EstimateTokens(piece),
				})
			}
			continue
		}

		if currentTokens+tokens > maxTokens {
			flush()
		}
		if len(current) == 0 {
			currentOffset = paraOffset
		}
		current = append(current, trimmed)
		currentTokens += tokens
	}
	flush()
	return chunks
}

// hardSplit cuts an oversized paragraph on word boundaries into pieces of
// at most maxTokens estimated tokens.
func hardSplit(text string, maxTokens int) []string {
	words := strings.Fields(text)
	var pieces []string
	var current []string
	tokens := 0
	for _, w := range words {
		t := EstimateTokens(w)
		if tokens+t > maxTokens && len(current) > 0 {
			pieces = append(pieces, strings.Join(current, " "))
			current = nil
			tokens = 0
		}
		current = append(current, w)
		tokens += t
	}
	if len(current) > 0 {
		pieces = append(pieces, strings.Join(current, " "))
	}
	return pieces
}

// EstimateTokens counts words for latin scripts plus one token per CJK
// rune. Deliberately pessimistic so chunks stay under service limits.
func EstimateTokens(text string) int {
	count := 0
	for _, r := range text {
		if r > 127 {
			count++
		}
	}
	count += len(strings.Fields(text))
	if count == 0 && len(text) > 0 {
		return 1
	}
	return count
}
