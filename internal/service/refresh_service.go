package service

import (
	"context"
	"fmt"
	"io"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/regwatch/regcore/internal/extract"
	"github.com/regwatch/regcore/internal/model"
	appErr "github.com/regwatch/regcore/internal/pkg/errors"
)

// refreshSummaryDocID is the synthetic document id the per-run summary
// event is filed under, so runs sequence like any other audit trail.
const refreshSummaryDocID = "corpus-refresh"

// RefreshSummary reports what one corpus pass did. Reruns over an
// unchanged corpus produce all-unchanged summaries, nothing else.
type RefreshSummary struct {
	Checked    int `json:"checked"`
	Unchanged  int `json:"unchanged"`
	Requeued   int `json:"requeued"`
	Superseded int `json:"superseded"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
}

func (s RefreshSummary) String() string {
	return fmt.Sprintf("checked=%d unchanged=%d requeued=%d superseded=%d failed=%d skipped=%d",
		s.Checked, s.Unchanged, s.Requeued, s.Superseded, s.Failed, s.Skipped)
}

// RefreshService re-validates stored documents against their original
// bytes. Each pass re-extracts, re-fingerprints and repairs: documents
// whose text drifted are superseded by a fresh ingestion, documents
// missing their vectors are re-embedded, and everything else is left
// untouched.
type RefreshService struct {
	docs      documentStore
	audits    auditStore
	vectors   vectorStore
	files     byteStore
	extractor *extract.Extractor
	ingest    *IngestService
	batchSize int
}

func NewRefreshService(docs documentStore, audits auditStore, vectors vectorStore, files byteStore, extractor *extract.Extractor, ingest *IngestService, batchSize int) *RefreshService {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &RefreshService{
		docs:      docs,
		audits:    audits,
		vectors:   vectors,
		files:     files,
		extractor: extractor,
		ingest:    ingest,
		batchSize: batchSize,
	}
}

// Refresh runs one corpus pass. full selects every usable canonical
// document; otherwise only those not yet embedding_complete are visited.
func (s *RefreshService) Refresh(ctx context.Context, full bool) (*RefreshSummary, error) {
	docs, err := s.docs.ListForRefresh(ctx, full, s.batchSize)
	if err != nil {
		return nil, err
	}
	summary := &RefreshSummary{}
	for i := range docs {
		summary.Checked++
		s.refreshOne(ctx, &docs[i], summary)
	}
	s.ingest.audit(ctx, &model.AuditEvent{
		DocumentID:       refreshSummaryDocID,
		EventType:        model.EventRefreshSummary,
		ProcessorVersion: s.ingest.opts.ProcessorVersion,
		ErrorMessage:     summary.String(),
		Ctime:            s.ingest.now().UnixMilli(),
	})
	logutil.GetLogger(ctx).Info("corpus refresh finished", zap.String("summary", summary.String()))
	return summary, nil
}

func (s *RefreshService) refreshOne(ctx context.Context, doc *model.Document, summary *RefreshSummary) {
	logger := logutil.GetLogger(ctx).With(zap.String("doc_id", doc.ID))

	data, err := s.readOriginal(ctx, doc.ContentHash)
	if err != nil {
		// Without the original bytes there is nothing to re-validate.
		logger.Warn("original bytes unavailable, skipping", zap.Error(err))
		summary.Skipped++
		return
	}

	s.ingest.locks.Lock(doc.ID)
	defer s.ingest.locks.Unlock(doc.ID)

	fresh, err := s.docs.GetByID(ctx, doc.ID)
	if err != nil {
		summary.Skipped++
		return
	}
	if fresh.IsDuplicate || fresh.SupersededBy != "" {
		summary.Skipped++
		return
	}

	s.ingest.audit(ctx, s.ingest.event(doc.ID, model.EventExtractionStarted, fresh.Status))
	res, err := s.extractor.Extract(data)
	if err != nil {
		s.ingest.audit(ctx, &model.AuditEvent{
			DocumentID:       doc.ID,
			EventType:        model.EventExtractionFailed,
			Status:           fresh.Status,
			ProcessorVersion: s.ingest.opts.ProcessorVersion,
			ErrorMessage:     err.Error(),
			Ctime:            s.ingest.now().UnixMilli(),
		})
		logger.Warn("re-extraction failed", zap.Error(err))
		summary.Failed++
		return
	}

	hash := extract.Fingerprint(res.Text)
	if hash != fresh.ContentHash {
		s.supersede(ctx, fresh, data, summary)
		return
	}

	if fresh.Status == model.StatusEmbeddingComplete {
		count, err := s.vectors.CountByDocID(ctx, doc.ID)
		if err == nil && count > 0 {
			summary.Unchanged++
			return
		}
		// Completed on paper but no vectors on disk. Rebuild.
		logger.Warn("embedding_complete document has no vectors, requeueing")
		s.ingest.queueAndEmbedFrom(ctx, fresh, model.StatusEmbeddingComplete, 1)
		summary.Requeued++
		return
	}

	// Stuck short of completion (terminal failure included): the refresh
	// pass grants a fresh attempt with a reset budget.
	s.ingest.audit(ctx, s.ingest.event(doc.ID, model.EventEmbeddingRetried, fresh.Status))
	s.ingest.queueAndEmbedFrom(ctx, fresh, fresh.Status, 1)
	summary.Requeued++
}

// supersede ingests the drifted bytes as a new document and points the
// old one at its replacement. The old document keeps its vectors until
// the new one completes; search prefers whichever is embedding_complete.
func (s *RefreshService) supersede(ctx context.Context, old *model.Document, data []byte, summary *RefreshSummary) {
	logger := logutil.GetLogger(ctx).With(zap.String("doc_id", old.ID))
	res, err := s.ingest.Ingest(ctx, data, old.SourceURL)
	if err != nil {
		logger.Warn("supersession ingest failed", zap.Error(err))
		summary.Failed++
		return
	}
	newID := res.DocumentID
	if res.Duplicate {
		newID = res.CanonicalID
	}
	if newID == old.ID {
		summary.Unchanged++
		return
	}
	if err := s.docs.SetSupersededBy(ctx, old.ID, newID, s.ingest.now().UnixMilli()); err != nil {
		logger.Warn("mark superseded failed", zap.Error(err))
		summary.Failed++
		return
	}
	if _, err := s.vectors.DeleteByDocID(ctx, old.ID); err != nil {
		logger.Warn("drop superseded vectors failed", zap.Error(err))
	}
	logger.Info("document superseded", zap.String("new_id", newID))
	summary.Superseded++
}

func (s *RefreshService) readOriginal(ctx context.Context, hash string) ([]byte, error) {
	if hash == "" {
		return nil, appErr.ErrNotFound
	}
	rc, err := s.files.Open(ctx, originalKey(hash))
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
