package service

import (
	"context"
	"io"

	"github.com/regwatch/regcore/internal/ai"
	"github.com/regwatch/regcore/internal/model"
	"github.com/regwatch/regcore/internal/repo"
)

// The services depend on small capability contracts rather than concrete
// repos, so the state machine can be exercised without a database.

type documentStore interface {
	CreateWithAudit(ctx context.Context, doc *model.Document, ev *model.AuditEvent) error
	GetByID(ctx context.Context, id string) (*model.Document, error)
	GetByFingerprint(ctx context.Context, hash string) (*model.Document, error)
	UpdateStatus(ctx context.Context, id, from, to string, mtime int64) error
	ScheduleRetry(ctx context.Context, id, from string, retryCount int, nextAttemptAt, mtime int64) error
	CompleteEmbedding(ctx context.Context, id, from string, mtime int64) error
	SetSupersededBy(ctx context.Context, id, newID string, mtime int64) error
	ListRetryDue(ctx context.Context, now int64, limit int) ([]model.Document, error)
	ListForRefresh(ctx context.Context, full bool, limit int) ([]model.Document, error)
}

type auditStore interface {
	Append(ctx context.Context, ev *model.AuditEvent) error
	ListByDocID(ctx context.Context, docID string, limit, offset int) ([]model.AuditEvent, error)
}

type vectorStore interface {
	InsertBatch(ctx context.Context, embs []*model.ChunkEmbedding) error
	DeleteByDocID(ctx context.Context, docID string) (int64, error)
	CountByDocID(ctx context.Context, docID string) (int, error)
	Search(ctx context.Context, vec []float32, modelName string, limit int, filter repo.SearchFilter) ([]repo.SearchHit, error)
}

type embedder interface {
	Embed(ctx context.Context, text string) ([]float32, *ai.CallStats, error)
	ModelName() string
}

type byteStore interface {
	Save(ctx context.Context, key string, r io.Reader, size int64) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}
