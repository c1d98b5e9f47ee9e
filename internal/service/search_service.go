package service

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	appErr "github.com/regwatch/regcore/internal/pkg/errors"
	"github.com/regwatch/regcore/internal/repo"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 50
	// Retrieval pulls extra rows so per-document dedup still fills the
	// requested page.
	searchOversample = 4
	snippetMaxRunes  = 240
)

type SearchRequest struct {
	Query         string `json:"query"`
	Limit         int    `json:"limit"`
	SourcePattern string `json:"source_pattern"`
	IngestedFrom  int64  `json:"ingested_from"`
	IngestedTo    int64  `json:"ingested_to"`
}

type SearchResult struct {
	DocumentID string  `json:"document_id"`
	SourceURL  string  `json:"source_url"`
	Score      float64 `json:"score"`
	Snippet    string  `json:"snippet"`
	Ordinal    int     `json:"ordinal"`
	SpanOffset int     `json:"span_offset"`
	IngestedAt int64   `json:"ingested_at"`
}

// SearchService answers semantic queries over the embedded corpus. Only
// canonical documents in embedding_complete with vectors from the current
// model are ever visible; duplicates and half-processed documents cannot
// leak into results.
type SearchService struct {
	vectors  vectorStore
	embedder embedder
}

func NewSearchService(vectors vectorStore, emb embedder) *SearchService {
	return &SearchService{vectors: vectors, embedder: emb}
}

func (s *SearchService) Search(ctx context.Context, req *SearchRequest) ([]SearchResult, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", appErr.ErrInvalid)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	if req.IngestedFrom > 0 && req.IngestedTo > 0 && req.IngestedFrom > req.IngestedTo {
		return nil, fmt.Errorf("%w: ingested_from is after ingested_to", appErr.ErrInvalid)
	}

	vec, _, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	filter := repo.SearchFilter{
		SourcePattern: req.SourcePattern,
		IngestedFrom:  req.IngestedFrom,
		IngestedTo:    req.IngestedTo,
	}
	hits, err := s.vectors.Search(ctx, vec, s.embedder.ModelName(), limit*searchOversample, filter)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	// Hits arrive best-first, so the first chunk seen per document is its
	// best one.
	seen := make(map[string]struct{}, limit)
	results := make([]SearchResult, 0, limit)
	for _, hit := range hits {
		if _, ok := seen[hit.DocumentID]; ok {
			continue
		}
		seen[hit.DocumentID] = struct{}{}
		results = append(results, SearchResult{
			DocumentID: hit.DocumentID,
			SourceURL:  hit.SourceURL,
			Score:      hit.Score,
			Snippet:    makeSnippet(hit.SpanText),
			Ordinal:    hit.Ordinal,
			SpanOffset: hit.SpanOffset,
			IngestedAt: hit.Ctime,
		})
		if len(results) >= limit {
			break
		}
	}
	logutil.GetLogger(ctx).Debug("search served",
		zap.Int("raw_hits", len(hits)), zap.Int("results", len(results)))
	return results, nil
}

// makeSnippet bounds the chunk text for transport, cutting on a word
// boundary where one exists near the limit.
func makeSnippet(text string) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= snippetMaxRunes {
		return string(runes)
	}
	cut := snippetMaxRunes
	for i := snippetMaxRunes; i > snippetMaxRunes/2; i-- {
		if unicode.IsSpace(runes[i]) {
			cut = i
			break
		}
	}
	return strings.TrimRight(string(runes[:cut]), " \t\n") + "..."
}
