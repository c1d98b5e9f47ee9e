package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
)

// IEmbedder is the embedding surface the rest of the system consumes.
type IEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, *CallStats, error)
	ModelName() string
}

// WrapLRUCache memoises embedding calls, keyed by model and input text.
// Meant for query-side traffic where the same search is issued repeatedly;
// ingestion chunks are effectively unique and gain nothing from caching.
func WrapLRUCache(e IEmbedder, size int, ttl time.Duration) IEmbedder {
	if e == nil || size <= 0 || ttl <= 0 {
		return e
	}
	return &lruEmbedder{
		next:  e,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

type lruEmbedder struct {
	next  IEmbedder
	cache *expirable.LRU[string, []float32]
}

func (l *lruEmbedder) Embed(ctx context.Context, text string) ([]float32, *CallStats, error) {
	key := cacheKey(l.next.ModelName(), text)
	if cached, ok := l.cache.Get(key); ok {
		logutil.GetLogger(ctx).Debug("embedding cache hit (lru)")
		return cloneEmbedding(cached), &CallStats{}, nil
	}
	vec, stats, err := l.next.Embed(ctx, text)
	if err != nil {
		return nil, stats, err
	}
	l.cache.Add(key, cloneEmbedding(vec))
	return vec, stats, nil
}

func (l *lruEmbedder) ModelName() string {
	return l.next.ModelName()
}

func cacheKey(model string, text string) string {
	h := sha256.New()
	_, _ = h.Write([]byte(model))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

func cloneEmbedding(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}
