package repo

import (
	"context"
	"database/sql"

	"github.com/regwatch/regcore/internal/model"
)

// AuditRepo is append-only. No update or delete method exists; the audit
// trail is the immutable record of every lifecycle transition.
type AuditRepo struct {
	db *sql.DB
}

func NewAuditRepo(db *sql.DB) *AuditRepo {
	return &AuditRepo{db: db}
}

const auditInsert = `
	INSERT INTO audit_events
		(document_id, seq, event_type, status, processor_version,
		 error_message, retry_attempt, retry_next_time, ctime)
	VALUES
		($1,
		 (SELECT COALESCE(MAX(seq), 0) + 1 FROM audit_events WHERE document_id = $1),
		 $2, $3, $4, $5, $6, $7, $8)
`

// Append writes one event. The per-document seq is assigned inside the
// insert, so events stay observably ordered even under concurrent writers
// without any global lock.
func (r *AuditRepo) Append(ctx context.Context, ev *model.AuditEvent) error {
	return r.append(ctx, r.db, ev)
}

// AppendTx writes one event inside an existing transaction, used to pair
// document creation with its first event.
func (r *AuditRepo) AppendTx(ctx context.Context, tx *sql.Tx, ev *model.AuditEvent) error {
	return r.append(ctx, tx, ev)
}

func (r *AuditRepo) append(ctx context.Context, ex execer, ev *model.AuditEvent) error {
	return appendAudit(ctx, ex, ev)
}

func appendAudit(ctx context.Context, ex execer, ev *model.AuditEvent) error {
	_, err := ex.ExecContext(ctx, auditInsert,
		ev.DocumentID,
		ev.EventType,
		ev.Status,
		ev.ProcessorVersion,
		ev.ErrorMessage,
		ev.RetryAttempt,
		ev.RetryNextTime,
		ev.Ctime,
	)
	return err
}

// ListByDocID returns a document's history ordered by sequence, so the
// full lifecycle is reconstructable by a single scan.
func (r *AuditRepo) ListByDocID(ctx context.Context, docID string, limit, offset int) ([]model.AuditEvent, error) {
	const query = `
		SELECT id, document_id, seq, event_type, status, processor_version,
		       error_message, retry_attempt, retry_next_time, ctime
		FROM audit_events
		WHERE document_id = $1
		ORDER BY seq ASC
		LIMIT $2 OFFSET $3
	`
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, query, docID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	events := make([]model.AuditEvent, 0)
	for rows.Next() {
		var ev model.AuditEvent
		if err := rows.Scan(
			&ev.ID, &ev.DocumentID, &ev.Seq, &ev.EventType, &ev.Status,
			&ev.ProcessorVersion, &ev.ErrorMessage, &ev.RetryAttempt,
			&ev.RetryNextTime, &ev.Ctime,
		); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
