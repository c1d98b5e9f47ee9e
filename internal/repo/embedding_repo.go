package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/regwatch/regcore/internal/model"
)

// EmbeddingRepo stores chunk vectors in a pgvector column. Rows are
// insert-only; DeleteByDocID exists solely for whole-document
// reprocessing before a retry or refresh.
type EmbeddingRepo struct {
	db *sql.DB
}

func NewEmbeddingRepo(db *sql.DB) *EmbeddingRepo {
	return &EmbeddingRepo{db: db}
}

func (r *EmbeddingRepo) Insert(ctx context.Context, emb *model.ChunkEmbedding) error {
	const query = `
		INSERT INTO chunk_embeddings
			(document_id, ordinal, span_text, span_offset, embedding,
			 model_name, latency_ms, token_count, ctime)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		emb.DocumentID,
		emb.Ordinal,
		emb.SpanText,
		emb.SpanOffset,
		pgvector.NewVector(emb.Embedding),
		emb.ModelName,
		emb.LatencyMs,
		emb.TokenCount,
		emb.Ctime,
	)
	return err
}

// InsertBatch writes a document's full chunk set in one transaction so a
// reader never observes a partial vector set.
func (r *EmbeddingRepo) InsertBatch(ctx context.Context, embs []*model.ChunkEmbedding) error {
	if len(embs) == 0 {
		return nil
	}
	return WithTx(ctx, r.db, func(tx *sql.Tx) error {
		const query = `
			INSERT INTO chunk_embeddings
				(document_id, ordinal, span_text, span_offset, embedding,
				 model_name, latency_ms, token_count, ctime)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`
		for _, emb := range embs {
			if _, err := tx.ExecContext(ctx, query,
				emb.DocumentID,
				emb.Ordinal,
				emb.SpanText,
				emb.SpanOffset,
				pgvector.NewVector(emb.Embedding),
				emb.ModelName,
				emb.LatencyMs,
				emb.TokenCount,
				emb.Ctime,
			); err != nil {
				return fmt.Errorf("insert chunk %d: %w", emb.Ordinal, err)
			}
		}
		return nil
	})
}

func (r *EmbeddingRepo) DeleteByDocID(ctx context.Context, docID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM chunk_embeddings WHERE document_id = $1`, docID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *EmbeddingRepo) CountByDocID(ctx context.Context, docID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM chunk_embeddings WHERE document_id = $1`, docID,
	).Scan(&count)
	return count, err
}

// SearchFilter narrows nearest-neighbour candidates by document metadata.
type SearchFilter struct {
	SourcePattern string
	IngestedFrom  int64
	IngestedTo    int64
}

// SearchHit is one chunk-level nearest-neighbour candidate.
type SearchHit struct {
	DocumentID  string
	SourceURL   string
	ContentHash string
	Ctime       int64
	Ordinal     int
	SpanText    string
	SpanOffset  int
	ModelName   string
	Score       float64
}

// Search runs a cosine nearest-neighbour query over chunk embeddings,
// restricted to canonical documents in embedding_complete and to the
// active model. Ties on score break toward the most recent ingestion.
func (r *EmbeddingRepo) Search(ctx context.Context, vec []float32, modelName string, limit int, filter SearchFilter) ([]SearchHit, error) {
	args := []interface{}{pgvector.NewVector(vec), model.StatusEmbeddingComplete, modelName}
	query := `
		SELECT d.id, d.source_url, d.content_hash, d.ctime,
		       c.ordinal, c.span_text, c.span_offset, c.model_name,
		       1 - (c.embedding <=> $1) AS score
		FROM chunk_embeddings c
		JOIN documents d ON d.id = c.document_id
		WHERE d.status = $2 AND NOT d.is_duplicate AND c.model_name = $3`
	if filter.SourcePattern != "" {
		args = append(args, filter.SourcePattern)
		query += fmt.Sprintf(" AND d.source_url LIKE $%d", len(args))
	}
	if filter.IngestedFrom > 0 {
		args = append(args, filter.IngestedFrom)
		query += fmt.Sprintf(" AND d.ctime >= $%d", len(args))
	}
	if filter.IngestedTo > 0 {
		args = append(args, filter.IngestedTo)
		query += fmt.Sprintf(" AND d.ctime <= $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY c.embedding <=> $1 ASC, d.ctime DESC LIMIT $%d", len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	hits := make([]SearchHit, 0)
	for rows.Next() {
		var h SearchHit
		if err := rows.Scan(
			&h.DocumentID, &h.SourceURL, &h.ContentHash, &h.Ctime,
			&h.Ordinal, &h.SpanText, &h.SpanOffset, &h.ModelName, &h.Score,
		); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
