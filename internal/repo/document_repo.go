package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/regwatch/regcore/internal/model"
	"github.com/regwatch/regcore/internal/pkg/dbutil"
	appErr "github.com/regwatch/regcore/internal/pkg/errors"
)

var documentColumns = []string{
	"id", "source_url", "content_hash", "byte_size", "page_count",
	"content", "confidence", "extract_method", "status", "usable",
	"is_duplicate", "canonical_id", "superseded_by",
	"retry_count", "next_attempt_at", "ctime", "mtime",
}

type DocumentRepo struct {
	db *sql.DB
}

func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

func (r *DocumentRepo) DB() *sql.DB {
	return r.db
}

// CreateTx inserts a document inside an existing transaction so the
// caller can pair it with the initial audit event.
func (r *DocumentRepo) CreateTx(ctx context.Context, tx *sql.Tx, doc *model.Document) error {
	return r.create(ctx, tx, doc)
}

func (r *DocumentRepo) Create(ctx context.Context, doc *model.Document) error {
	return r.create(ctx, r.db, doc)
}

// CreateWithAudit inserts the document and its initial audit event in one
// transaction, so a document row can never exist without the opening
// entry of its history.
func (r *DocumentRepo) CreateWithAudit(ctx context.Context, doc *model.Document, ev *model.AuditEvent) error {
	return WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := r.create(ctx, tx, doc); err != nil {
			return err
		}
		return appendAudit(ctx, tx, ev)
	})
}

func (r *DocumentRepo) create(ctx context.Context, ex execer, doc *model.Document) error {
	data := map[string]interface{}{
		"id":              doc.ID,
		"source_url":      doc.SourceURL,
		"content_hash":    doc.ContentHash,
		"byte_size":       doc.ByteSize,
		"page_count":      doc.PageCount,
		"content":         doc.Content,
		"confidence":      doc.Confidence,
		"extract_method":  doc.ExtractMethod,
		"status":          doc.Status,
		"usable":          doc.Usable,
		"is_duplicate":    doc.IsDuplicate,
		"canonical_id":    doc.CanonicalID,
		"superseded_by":   doc.SupersededBy,
		"retry_count":     doc.RetryCount,
		"next_attempt_at": doc.NextAttemptAt,
		"ctime":           doc.Ctime,
		"mtime":           doc.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("documents", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := ex.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

func (r *DocumentRepo) GetByID(ctx context.Context, id string) (*model.Document, error) {
	where := map[string]interface{}{"id": id}
	sqlStr, args, err := builder.BuildSelect("documents", where, documentColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	doc, err := scanDocument(r.db.QueryRowContext(ctx, sqlStr, args...))
	if err == sql.ErrNoRows {
		return nil, appErr.ErrNotFound
	}
	return doc, err
}

// GetByFingerprint returns the canonical (non-duplicate) document holding
// the given content hash.
func (r *DocumentRepo) GetByFingerprint(ctx context.Context, hash string) (*model.Document, error) {
	where := map[string]interface{}{
		"content_hash": hash,
		"is_duplicate": false,
	}
	sqlStr, args, err := builder.BuildSelect("documents", where, documentColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	doc, err := scanDocument(r.db.QueryRowContext(ctx, sqlStr, args...))
	if err == sql.ErrNoRows {
		return nil, appErr.ErrNotFound
	}
	return doc, err
}

// UpdateStatus transitions id from one status to another. The guard on the
// current status makes concurrent writers lose cleanly: zero affected rows
// surfaces as ErrConflict and the caller drops its work.
func (r *DocumentRepo) UpdateStatus(ctx context.Context, id, from, to string, mtime int64) error {
	return r.updateGuarded(ctx, id, from, map[string]interface{}{
		"status": to,
		"mtime":  mtime,
	})
}

// ScheduleRetry records a failed embedding attempt. nextAttemptAt of zero
// means no further attempt is scheduled (permanent failure or exhausted
// budget).
func (r *DocumentRepo) ScheduleRetry(ctx context.Context, id, from string, retryCount int, nextAttemptAt, mtime int64) error {
	return r.updateGuarded(ctx, id, from, map[string]interface{}{
		"status":          model.StatusEmbeddingFailed,
		"retry_count":     retryCount,
		"next_attempt_at": nextAttemptAt,
		"mtime":           mtime,
	})
}

// CompleteEmbedding transitions to embedding_complete and clears the retry
// schedule.
func (r *DocumentRepo) CompleteEmbedding(ctx context.Context, id, from string, mtime int64) error {
	return r.updateGuarded(ctx, id, from, map[string]interface{}{
		"status":          model.StatusEmbeddingComplete,
		"next_attempt_at": 0,
		"mtime":           mtime,
	})
}

func (r *DocumentRepo) SetSupersededBy(ctx context.Context, id, newID string, mtime int64) error {
	where := map[string]interface{}{"id": id}
	update := map[string]interface{}{
		"superseded_by": newID,
		"mtime":         mtime,
	}
	sqlStr, args, err := builder.BuildUpdate("documents", where, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func (r *DocumentRepo) updateGuarded(ctx context.Context, id, fromStatus string, update map[string]interface{}) error {
	where := map[string]interface{}{
		"id":     id,
		"status": fromStatus,
	}
	sqlStr, args, err := builder.BuildUpdate("documents", where, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrConflict
	}
	return nil
}

// ListRetryDue returns failed documents whose scheduled attempt time has
// passed. Terminal failures carry next_attempt_at = 0 and never match.
func (r *DocumentRepo) ListRetryDue(ctx context.Context, now int64, limit int) ([]model.Document, error) {
	const query = `
		SELECT id, source_url, content_hash, byte_size, page_count,
		       content, confidence, extract_method, status, usable,
		       is_duplicate, canonical_id, superseded_by,
		       retry_count, next_attempt_at, ctime, mtime
		FROM documents
		WHERE status = $1 AND next_attempt_at > 0 AND next_attempt_at <= $2
		ORDER BY next_attempt_at ASC
		LIMIT $3
	`
	return r.queryDocuments(ctx, query, model.StatusEmbeddingFailed, now, limit)
}

// ListForRefresh returns candidates for corpus re-validation: every
// usable canonical document when full is set, otherwise only those not yet
// embedding_complete.
func (r *DocumentRepo) ListForRefresh(ctx context.Context, full bool, limit int) ([]model.Document, error) {
	if full {
		const query = `
			SELECT id, source_url, content_hash, byte_size, page_count,
			       content, confidence, extract_method, status, usable,
			       is_duplicate, canonical_id, superseded_by,
			       retry_count, next_attempt_at, ctime, mtime
			FROM documents
			WHERE NOT is_duplicate AND usable AND superseded_by = ''
			ORDER BY ctime ASC
			LIMIT $1
		`
		return r.queryDocuments(ctx, query, limit)
	}
	const query = `
		SELECT id, source_url, content_hash, byte_size, page_count,
		       content, confidence, extract_method, status, usable,
		       is_duplicate, canonical_id, superseded_by,
		       retry_count, next_attempt_at, ctime, mtime
		FROM documents
		WHERE NOT is_duplicate AND usable AND superseded_by = '' AND status <> $1
		ORDER BY ctime ASC
		LIMIT $2
	`
	return r.queryDocuments(ctx, query, model.StatusEmbeddingComplete, limit)
}

func (r *DocumentRepo) queryDocuments(ctx context.Context, query string, args ...interface{}) ([]model.Document, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	docs := make([]model.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*model.Document, error) {
	var doc model.Document
	err := row.Scan(
		&doc.ID, &doc.SourceURL, &doc.ContentHash, &doc.ByteSize, &doc.PageCount,
		&doc.Content, &doc.Confidence, &doc.ExtractMethod, &doc.Status, &doc.Usable,
		&doc.IsDuplicate, &doc.CanonicalID, &doc.SupersededBy,
		&doc.RetryCount, &doc.NextAttemptAt, &doc.Ctime, &doc.Mtime,
	)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}
