package job

import (
	"context"

	"github.com/regwatch/regcore/internal/service"
)

const retrySweepBatch = 100

// EmbeddingRetryJob drains due embedding retries. Scheduled every minute;
// the sweep is cheap when nothing is due.
type EmbeddingRetryJob struct {
	ingest *service.IngestService
}

func NewEmbeddingRetryJob(ingest *service.IngestService) *EmbeddingRetryJob {
	return &EmbeddingRetryJob{ingest: ingest}
}

func (j *EmbeddingRetryJob) Name() string {
	return "embedding_retry"
}

func (j *EmbeddingRetryJob) Run(ctx context.Context) error {
	return j.ingest.RetrySweep(ctx, retrySweepBatch)
}
