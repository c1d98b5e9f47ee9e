package model

// Audit event types, one per lifecycle transition.
const (
	EventIngested            = "ingested"
	EventExtractionStarted   = "extraction_started"
	EventExtractionCompleted = "extraction_completed"
	EventExtractionFailed    = "extraction_failed"
	EventDedupCheck          = "dedup_check"
	EventEmbeddingQueued     = "embedding_queued"
	EventEmbeddingStarted    = "embedding_started"
	EventEmbeddingCompleted  = "embedding_completed"
	EventEmbeddingFailed     = "embedding_failed"
	EventEmbeddingRetried    = "embedding_retried"
	EventRefreshSummary      = "refresh_summary"
)

// AuditEvent is an append-only record. Seq is assigned per document at
// insert time and is strictly increasing, so a document's history can be
// replayed by a sequential scan even under concurrent writers.
type AuditEvent struct {
	ID               int64  `json:"id"`
	DocumentID       string `json:"document_id"`
	Seq              int    `json:"seq"`
	EventType        string `json:"event_type"`
	Status           string `json:"status"`
	ProcessorVersion string `json:"processor_version"`
	ErrorMessage     string `json:"error_message,omitempty"`
	RetryAttempt     int    `json:"retry_attempt"`
	RetryNextTime    int64  `json:"retry_next_time,omitempty"`
	Ctime            int64  `json:"ctime"`
}
