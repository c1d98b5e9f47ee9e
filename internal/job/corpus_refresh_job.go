package job

import (
	"context"

	"github.com/regwatch/regcore/internal/service"
)

// CorpusRefreshJob re-validates the stored corpus on its cron schedule.
// Full mode: every usable canonical document is re-checked, not only the
// stuck ones.
type CorpusRefreshJob struct {
	refresh *service.RefreshService
	full    bool
}

func NewCorpusRefreshJob(refresh *service.RefreshService, full bool) *CorpusRefreshJob {
	return &CorpusRefreshJob{refresh: refresh, full: full}
}

func (j *CorpusRefreshJob) Name() string {
	return "corpus_refresh"
}

func (j *CorpusRefreshJob) Run(ctx context.Context) error {
	_, err := j.refresh.Refresh(ctx, j.full)
	return err
}
