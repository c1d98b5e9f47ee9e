package service

import (
	"context"
	"fmt"
	"io"

	"github.com/regwatch/regcore/internal/model"
	appErr "github.com/regwatch/regcore/internal/pkg/errors"
)

// DocumentInfo is the external view of a document: metadata only, never
// the extracted text body.
type DocumentInfo struct {
	ID            string  `json:"id"`
	SourceURL     string  `json:"source_url"`
	ContentHash   string  `json:"content_hash"`
	ByteSize      int64   `json:"byte_size"`
	PageCount     int     `json:"page_count"`
	Confidence    float64 `json:"confidence"`
	ExtractMethod string  `json:"extract_method"`
	Status        string  `json:"status"`
	Usable        bool    `json:"usable"`
	IsDuplicate   bool    `json:"is_duplicate"`
	CanonicalID   string  `json:"canonical_id,omitempty"`
	SupersededBy  string  `json:"superseded_by,omitempty"`
	RetryCount    int     `json:"retry_count"`
	NextAttemptAt int64   `json:"next_attempt_at,omitempty"`
	ChunkCount    int     `json:"chunk_count"`
	Ctime         int64   `json:"ctime"`
	Mtime         int64   `json:"mtime"`
}

type DocumentService struct {
	docs    documentStore
	audits  auditStore
	vectors vectorStore
	files   byteStore
}

func NewDocumentService(docs documentStore, audits auditStore, vectors vectorStore, files byteStore) *DocumentService {
	return &DocumentService{docs: docs, audits: audits, vectors: vectors, files: files}
}

func (s *DocumentService) Get(ctx context.Context, id string) (*DocumentInfo, error) {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	count, err := s.vectors.CountByDocID(ctx, id)
	if err != nil {
		return nil, err
	}
	return toDocumentInfo(doc, count), nil
}

// AuditTrail returns a document's history in seq order.
func (s *DocumentService) AuditTrail(ctx context.Context, id string, limit, offset int) ([]model.AuditEvent, error) {
	if _, err := s.docs.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.audits.ListByDocID(ctx, id, limit, offset)
}

// DownloadOriginal streams the stored source bytes. Duplicates resolve
// through their canonical document, which owns the single stored copy.
func (s *DocumentService) DownloadOriginal(ctx context.Context, id string) (io.ReadCloser, *DocumentInfo, error) {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if doc.ContentHash == "" {
		return nil, nil, fmt.Errorf("%w: no stored original for document %s", appErr.ErrNotFound, id)
	}
	rc, err := s.files.Open(ctx, originalKey(doc.ContentHash))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: open original: %v", appErr.ErrNotFound, err)
	}
	return rc, toDocumentInfo(doc, 0), nil
}

func toDocumentInfo(doc *model.Document, chunkCount int) *DocumentInfo {
	return &DocumentInfo{
		ID:            doc.ID,
		SourceURL:     doc.SourceURL,
		ContentHash:   doc.ContentHash,
		ByteSize:      doc.ByteSize,
		PageCount:     doc.PageCount,
		Confidence:    doc.Confidence,
		ExtractMethod: doc.ExtractMethod,
		Status:        doc.Status,
		Usable:        doc.Usable,
		IsDuplicate:   doc.IsDuplicate,
		CanonicalID:   doc.CanonicalID,
		SupersededBy:  doc.SupersededBy,
		RetryCount:    doc.RetryCount,
		NextAttemptAt: doc.NextAttemptAt,
		ChunkCount:    chunkCount,
		Ctime:         doc.Ctime,
		Mtime:         doc.Mtime,
	}
}
