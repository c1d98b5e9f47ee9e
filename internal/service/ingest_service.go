package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/regwatch/regcore/internal/extract"
	"github.com/regwatch/regcore/internal/model"
	appErr "github.com/regwatch/regcore/internal/pkg/errors"
)

// IngestOptions carries the orchestration policy knobs.
type IngestOptions struct {
	MaxChunkTokens   int
	ChunkConcurrency int
	RetryDelays      []time.Duration
	MaxAttempts      int
	ProcessorVersion string
}

func (o *IngestOptions) defaults() {
	if o.MaxChunkTokens <= 0 {
		o.MaxChunkTokens = 400
	}
	if o.ChunkConcurrency <= 0 {
		o.ChunkConcurrency = 4
	}
	if len(o.RetryDelays) == 0 {
		o.RetryDelays = []time.Duration{30 * time.Minute, 4 * time.Hour, 24 * time.Hour}
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.ProcessorVersion == "" {
		o.ProcessorVersion = "regcore/1"
	}
}

// IngestResult is what callers get back immediately; embedding continues
// within the same orchestration pass but the document is addressable as
// soon as it is created.
type IngestResult struct {
	DocumentID  string `json:"document_id"`
	Status      string `json:"status"`
	Duplicate   bool   `json:"duplicate,omitempty"`
	CanonicalID string `json:"canonical_id,omitempty"`
}

// IngestService owns every document status transition and is the sole
// writer of audit events. All component failures are converted here into
// an audit event plus a status update; nothing escapes to crash a worker.
type IngestService struct {
	docs      documentStore
	audits    auditStore
	vectors   vectorStore
	embedder  embedder
	files     byteStore
	extractor *extract.Extractor
	opts      IngestOptions
	locks     *keyedLocks
	now       func() time.Time
}

func NewIngestService(docs documentStore, audits auditStore, vectors vectorStore, emb embedder, files byteStore, extractor *extract.Extractor, opts IngestOptions) *IngestService {
	opts.defaults()
	return &IngestService{
		docs:      docs,
		audits:    audits,
		vectors:   vectors,
		embedder:  emb,
		files:     files,
		extractor: extractor,
		opts:      opts,
		locks:     newKeyedLocks(),
		now:       time.Now,
	}
}

// Ingest drives raw bytes through the full pipeline: extract, fingerprint,
// dedup, chunk, embed. Malformed input fails fast; every other failure
// leaves a document row and an audit trail behind.
func (s *IngestService) Ingest(ctx context.Context, data []byte, sourceURL string) (*IngestResult, error) {
	if sourceURL == "" {
		return nil, fmt.Errorf("%w: source_url is required", appErr.ErrInvalid)
	}
	logger := logutil.GetLogger(ctx).With(zap.String("source_url", sourceURL))

	res, err := s.extractor.Extract(data)
	if err != nil {
		if errors.Is(err, appErr.ErrInvalidFormat) {
			return nil, err
		}
		// Both extraction strategies failed: record the document as
		// unusable and stop. This is not retryable.
		return s.recordUnusable(ctx, data, sourceURL, err)
	}

	hash := extract.Fingerprint(res.Text)

	// Serialise dedup + create on the content hash so two concurrent
	// ingestions of identical bytes cannot both become canonical.
	s.locks.Lock(hash)
	defer s.locks.Unlock(hash)

	if canonical, err := s.docs.GetByFingerprint(ctx, hash); err == nil {
		return s.recordDuplicate(ctx, data, sourceURL, res, hash, canonical)
	} else if !appErr.IsNotFound(err) {
		return nil, err
	}

	if err := s.files.Save(ctx, originalKey(hash), bytes.NewReader(data), int64(len(data))); err != nil {
		return nil, fmt.Errorf("save original: %w", err)
	}

	now := s.now().UnixMilli()
	doc := &model.Document{
		ID:            newID(),
		SourceURL:     sourceURL,
		ContentHash:   hash,
		ByteSize:      int64(len(data)),
		PageCount:     res.PageCount,
		Content:       res.Text,
		Confidence:    res.Confidence,
		ExtractMethod: res.Method,
		Status:        model.StatusIngested,
		Usable:        true,
		Ctime:         now,
		Mtime:         now,
	}
	if err := s.docs.CreateWithAudit(ctx, doc, s.event(doc.ID, model.EventIngested, model.StatusIngested)); err != nil {
		if appErr.IsConflict(err) {
			// Lost a race on the unique hash index to another process.
			if canonical, gerr := s.docs.GetByFingerprint(ctx, hash); gerr == nil {
				return s.recordDuplicate(ctx, data, sourceURL, res, hash, canonical)
			}
		}
		return nil, err
	}
	s.audit(ctx, s.eventf(doc.ID, model.EventExtractionCompleted, model.StatusIngested,
		"method=%s confidence=%.2f pages=%d", res.Method, res.Confidence, res.PageCount))
	s.audit(ctx, s.event(doc.ID, model.EventDedupCheck, model.StatusIngested))

	logger.Info("document ingested",
		zap.String("doc_id", doc.ID),
		zap.String("method", res.Method),
		zap.Int("pages", res.PageCount),
		zap.Float64("confidence", res.Confidence),
	)

	s.locks.Lock(doc.ID)
	defer s.locks.Unlock(doc.ID)

	status := s.queueAndEmbed(ctx, doc, 1)
	return &IngestResult{DocumentID: doc.ID, Status: status}, nil
}

// RetrySweep picks up documents whose scheduled retry is due and reruns
// embedding at whole-document granularity. A retry superseded by a newer
// ingestion of the same content is dropped rather than allowed to
// overwrite completed state.
func (s *IngestService) RetrySweep(ctx context.Context, limit int) error {
	due, err := s.docs.ListRetryDue(ctx, s.now().UnixMilli(), limit)
	if err != nil {
		return err
	}
	for i := range due {
		doc := due[i]
		s.retryOne(ctx, &doc)
	}
	return nil
}

func (s *IngestService) retryOne(ctx context.Context, doc *model.Document) {
	logger := logutil.GetLogger(ctx).With(zap.String("doc_id", doc.ID))

	s.locks.Lock(doc.ID)
	defer s.locks.Unlock(doc.ID)

	// Cancellation check: if the hash now maps to a different canonical
	// document, this retry has been superseded.
	canonical, err := s.docs.GetByFingerprint(ctx, doc.ContentHash)
	if err != nil || canonical.ID != doc.ID {
		logger.Info("retry superseded, skipping")
		return
	}
	fresh, err := s.docs.GetByID(ctx, doc.ID)
	if err != nil || fresh.Status != model.StatusEmbeddingFailed {
		return
	}

	attempt := fresh.RetryCount + 1
	s.audit(ctx, &model.AuditEvent{
		DocumentID:       doc.ID,
		EventType:        model.EventEmbeddingRetried,
		Status:           model.StatusEmbeddingFailed,
		ProcessorVersion: s.opts.ProcessorVersion,
		RetryAttempt:     attempt,
		Ctime:            s.now().UnixMilli(),
	})
	s.queueAndEmbedFrom(ctx, fresh, model.StatusEmbeddingFailed, attempt)
}

// queueAndEmbed moves a freshly ingested document into pending_embedding
// and runs one embedding attempt.
func (s *IngestService) queueAndEmbed(ctx context.Context, doc *model.Document, attempt int) string {
	return s.queueAndEmbedFrom(ctx, doc, model.StatusIngested, attempt)
}

func (s *IngestService) queueAndEmbedFrom(ctx context.Context, doc *model.Document, from string, attempt int) string {
	if err := s.docs.UpdateStatus(ctx, doc.ID, from, model.StatusPendingEmbedding, s.now().UnixMilli()); err != nil {
		// Guarded transition lost: another worker owns this document now.
		logutil.GetLogger(ctx).Warn("status transition refused",
			zap.String("doc_id", doc.ID), zap.String("from", from), zap.Error(err))
		return from
	}
	s.audit(ctx, &model.AuditEvent{
		DocumentID:       doc.ID,
		EventType:        model.EventEmbeddingQueued,
		Status:           model.StatusPendingEmbedding,
		ProcessorVersion: s.opts.ProcessorVersion,
		RetryAttempt:     attempt,
		Ctime:            s.now().UnixMilli(),
	})
	return s.processEmbedding(ctx, doc, attempt)
}

// processEmbedding runs one whole-document embedding attempt. All chunks
// must succeed for the document to complete; partial results from a prior
// attempt are discarded first so no reader ever sees a mixed vector set.
func (s *IngestService) processEmbedding(ctx context.Context, doc *model.Document, attempt int) string {
	logger := logutil.GetLogger(ctx).With(zap.String("doc_id", doc.ID), zap.Int("attempt", attempt))
	now := s.now().UnixMilli()

	s.audit(ctx, &model.AuditEvent{
		DocumentID:       doc.ID,
		EventType:        model.EventEmbeddingStarted,
		Status:           model.StatusPendingEmbedding,
		ProcessorVersion: s.opts.ProcessorVersion,
		RetryAttempt:     attempt,
		Ctime:            now,
	})

	if _, err := s.vectors.DeleteByDocID(ctx, doc.ID); err != nil {
		return s.failEmbedding(ctx, doc, attempt, fmt.Errorf("%w: discard stale chunks: %v", appErr.ErrTransientEmbedding, err))
	}

	chunks := extract.Split(doc.Content, s.opts.MaxChunkTokens)
	if len(chunks) == 0 {
		return s.failEmbedding(ctx, doc, attempt, fmt.Errorf("%w: document has no embeddable text", appErr.ErrPermanentEmbedding))
	}

	embs := make([]*model.ChunkEmbedding, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.ChunkConcurrency)
	for i := range chunks {
		chunk := chunks[i]
		idx := i
		g.Go(func() error {
			vec, stats, err := s.embedder.Embed(gctx, chunk.Text)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", chunk.Ordinal, err)
			}
			emb := &model.ChunkEmbedding{
				DocumentID: doc.ID,
				Ordinal:    chunk.Ordinal,
				SpanText:   chunk.Text,
				SpanOffset: chunk.Offset,
				Embedding:  vec,
				ModelName:  s.embedder.ModelName(),
				Ctime:      s.now().UnixMilli(),
			}
			if stats != nil {
				emb.LatencyMs = stats.LatencyMs
				emb.TokenCount = stats.Tokens
			}
			embs[idx] = emb
			return nil
		})
	}
	// Fan-in barrier: the status transition below must wait for every
	// chunk result.
	if err := g.Wait(); err != nil {
		return s.failEmbedding(ctx, doc, attempt, err)
	}

	if err := s.vectors.InsertBatch(ctx, embs); err != nil {
		return s.failEmbedding(ctx, doc, attempt, fmt.Errorf("%w: store vectors: %v", appErr.ErrTransientEmbedding, err))
	}
	if err := s.docs.CompleteEmbedding(ctx, doc.ID, model.StatusPendingEmbedding, s.now().UnixMilli()); err != nil {
		logger.Warn("complete transition refused", zap.Error(err))
		return model.StatusPendingEmbedding
	}
	s.audit(ctx, &model.AuditEvent{
		DocumentID:       doc.ID,
		EventType:        model.EventEmbeddingCompleted,
		Status:           model.StatusEmbeddingComplete,
		ProcessorVersion: s.opts.ProcessorVersion,
		RetryAttempt:     attempt,
		Ctime:            s.now().UnixMilli(),
	})
	logger.Info("embedding complete", zap.Int("chunks", len(chunks)))
	return model.StatusEmbeddingComplete
}

// failEmbedding converts an attempt failure into the scheduled-retry or
// terminal-failed state. Permanent failures never consume the retry
// budget: there is nothing a retry could fix.
func (s *IngestService) failEmbedding(ctx context.Context, doc *model.Document, attempt int, cause error) string {
	logger := logutil.GetLogger(ctx).With(zap.String("doc_id", doc.ID), zap.Int("attempt", attempt))
	now := s.now()

	var nextAttemptAt int64
	retryCount := attempt
	switch {
	case errors.Is(cause, appErr.ErrPermanentEmbedding):
		retryCount = attempt - 1
		nextAttemptAt = 0
	case attempt < s.opts.MaxAttempts:
		delay := s.opts.RetryDelays[len(s.opts.RetryDelays)-1]
		if attempt-1 < len(s.opts.RetryDelays) {
			delay = s.opts.RetryDelays[attempt-1]
		}
		nextAttemptAt = now.Add(delay).UnixMilli()
	default:
		nextAttemptAt = 0
		cause = fmt.Errorf("%w: %v", appErr.ErrRetryExhausted, cause)
	}

	if err := s.docs.ScheduleRetry(ctx, doc.ID, model.StatusPendingEmbedding, retryCount, nextAttemptAt, now.UnixMilli()); err != nil {
		logger.Warn("failure transition refused", zap.Error(err))
		return model.StatusPendingEmbedding
	}
	s.audit(ctx, &model.AuditEvent{
		DocumentID:       doc.ID,
		EventType:        model.EventEmbeddingFailed,
		Status:           model.StatusEmbeddingFailed,
		ProcessorVersion: s.opts.ProcessorVersion,
		ErrorMessage:     cause.Error(),
		RetryAttempt:     attempt,
		RetryNextTime:    nextAttemptAt,
		Ctime:            now.UnixMilli(),
	})
	if nextAttemptAt > 0 {
		logger.Warn("embedding failed, retry scheduled",
			zap.Int64("next_attempt_at", nextAttemptAt), zap.Error(cause))
	} else {
		// Reported, non-fatal: the document stays queryable by metadata
		// and is surfaced for manual attention.
		logger.Error("embedding failed permanently", zap.Error(cause))
	}
	return model.StatusEmbeddingFailed
}

func (s *IngestService) recordUnusable(ctx context.Context, data []byte, sourceURL string, cause error) (*IngestResult, error) {
	now := s.now().UnixMilli()
	doc := &model.Document{
		ID:        newID(),
		SourceURL: sourceURL,
		ByteSize:  int64(len(data)),
		Status:    model.StatusIngested,
		Usable:    false,
		Ctime:     now,
		Mtime:     now,
	}
	if err := s.docs.CreateWithAudit(ctx, doc, s.event(doc.ID, model.EventIngested, model.StatusIngested)); err != nil {
		return nil, err
	}
	s.audit(ctx, &model.AuditEvent{
		DocumentID:       doc.ID,
		EventType:        model.EventExtractionFailed,
		Status:           model.StatusIngested,
		ProcessorVersion: s.opts.ProcessorVersion,
		ErrorMessage:     cause.Error(),
		Ctime:            s.now().UnixMilli(),
	})
	logutil.GetLogger(ctx).Warn("extraction failed, document recorded as unusable",
		zap.String("doc_id", doc.ID), zap.String("source_url", sourceURL), zap.Error(cause))
	return &IngestResult{DocumentID: doc.ID, Status: model.StatusIngested}, nil
}

// recordDuplicate creates the duplicate document row linked to its
// canonical, skipping embedding entirely. The duplicate stays in
// "ingested" forever: retrievable, never searchable through its own
// vectors.
func (s *IngestService) recordDuplicate(ctx context.Context, data []byte, sourceURL string, res *extract.Result, hash string, canonical *model.Document) (*IngestResult, error) {
	now := s.now().UnixMilli()
	doc := &model.Document{
		ID:            newID(),
		SourceURL:     sourceURL,
		ContentHash:   hash,
		ByteSize:      int64(len(data)),
		PageCount:     res.PageCount,
		Confidence:    res.Confidence,
		ExtractMethod: res.Method,
		Status:        model.StatusIngested,
		Usable:        true,
		IsDuplicate:   true,
		CanonicalID:   canonical.ID,
		Ctime:         now,
		Mtime:         now,
	}
	if err := s.docs.CreateWithAudit(ctx, doc, s.event(doc.ID, model.EventIngested, model.StatusIngested)); err != nil {
		return nil, err
	}
	s.audit(ctx, s.eventf(doc.ID, model.EventDedupCheck, model.StatusIngested,
		"duplicate of %s", canonical.ID))
	logutil.GetLogger(ctx).Info("duplicate content detected",
		zap.String("doc_id", doc.ID), zap.String("canonical_id", canonical.ID))
	return &IngestResult{
		DocumentID:  doc.ID,
		Status:      model.StatusIngested,
		Duplicate:   true,
		CanonicalID: canonical.ID,
	}, nil
}

func (s *IngestService) event(docID, eventType, status string) *model.AuditEvent {
	return &model.AuditEvent{
		DocumentID:       docID,
		EventType:        eventType,
		Status:           status,
		ProcessorVersion: s.opts.ProcessorVersion,
		Ctime:            s.now().UnixMilli(),
	}
}

func (s *IngestService) eventf(docID, eventType, status, format string, args ...interface{}) *model.AuditEvent {
	ev := s.event(docID, eventType, status)
	ev.ErrorMessage = fmt.Sprintf(format, args...)
	return ev
}

// audit appends an event, logging instead of failing the pass if the
// write itself errors: the audit trail must never take a worker down.
func (s *IngestService) audit(ctx context.Context, ev *model.AuditEvent) {
	if err := s.audits.Append(ctx, ev); err != nil {
		logutil.GetLogger(ctx).Error("audit append failed",
			zap.String("doc_id", ev.DocumentID),
			zap.String("event", ev.EventType),
			zap.Error(err),
		)
	}
}

func originalKey(hash string) string {
	return hash + ".pdf"
}
