package model

// ChunkEmbedding is one embedded span of a document. Rows are insert-only;
// a stale or failed vector is replaced by deleting the whole document's
// chunk set and inserting fresh rows, never by updating in place.
type ChunkEmbedding struct {
	ID         int64     `json:"id"`
	DocumentID string    `json:"document_id"`
	Ordinal    int       `json:"ordinal"`
	SpanText   string    `json:"span_text"`
	SpanOffset int       `json:"span_offset"`
	Embedding  []float32 `json:"embedding"`
	ModelName  string    `json:"model_name"`
	LatencyMs  int64     `json:"latency_ms"`
	TokenCount int       `json:"token_count"`
	Ctime      int64     `json:"ctime"`
}
