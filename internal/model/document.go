package model

// Document processing status values. Transitions are owned exclusively by
// the ingestion service; see service.IngestService.
const (
	StatusIngested          = "ingested"
	StatusPendingEmbedding  = "pending_embedding"
	StatusEmbeddingComplete = "embedding_complete"
	StatusEmbeddingFailed   = "embedding_failed"
)

// Extraction method identifiers recorded on the document.
const (
	ExtractMethodPDFCPU  = "pdfcpu"
	ExtractMethodRawScan = "rawscan"
)

type Document struct {
	ID            string  `json:"id"`
	SourceURL     string  `json:"source_url"`
	ContentHash   string  `json:"content_hash"`
	ByteSize      int64   `json:"byte_size"`
	PageCount     int     `json:"page_count"`
	Content       string  `json:"content"`
	Confidence    float64 `json:"confidence"`
	ExtractMethod string  `json:"extract_method"`
	Status        string  `json:"status"`
	Usable        bool    `json:"usable"`
	IsDuplicate   bool    `json:"is_duplicate"`
	CanonicalID   string  `json:"canonical_id,omitempty"`
	SupersededBy  string  `json:"superseded_by,omitempty"`
	RetryCount    int     `json:"retry_count"`
	NextAttemptAt int64   `json:"next_attempt_at"`
	Ctime         int64   `json:"ctime"`
	Mtime         int64   `json:"mtime"`
}
