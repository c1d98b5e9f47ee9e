package schedule

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// Job is a named unit of scheduled work. Run must tolerate being invoked
// on any schedule and must return rather than crash on failure.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// CronScheduler runs jobs on standard five-field cron specs. Each job is
// guarded so a run that overlaps its own next tick is skipped, not
// stacked.
type CronScheduler struct {
	cron *cron.Cron
	ctx  context.Context
}

func NewCronScheduler() *CronScheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return &CronScheduler{
		cron: cron.New(cron.WithParser(parser)),
	}
}

func (c *CronScheduler) AddJob(job Job, spec string) error {
	if _, err := c.cron.AddFunc(spec, c.wrap(job)); err != nil {
		return err
	}
	logutil.GetLogger(context.Background()).Info("job scheduled",
		zap.String("job", job.Name()), zap.String("spec", spec))
	return nil
}

func (c *CronScheduler) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	c.ctx = ctx
	c.cron.Start()
}

// Stop halts scheduling and waits for in-flight runs to finish.
func (c *CronScheduler) Stop() {
	ctx := c.cron.Stop()
	<-ctx.Done()
}

func (c *CronScheduler) wrap(job Job) func() {
	var running atomic.Bool
	return func() {
		ctx := c.ctx
		if ctx == nil {
			ctx = context.Background()
		}
		logger := logutil.GetLogger(ctx).With(zap.String("job", job.Name()))
		if !running.CompareAndSwap(false, true) {
			logger.Info("job skipped: previous run still active")
			return
		}
		defer running.Store(false)

		start := time.Now()
		err := job.Run(ctx)
		if err != nil {
			logger.Error("job finished", zap.Error(err), zap.Duration("duration", time.Since(start)))
			return
		}
		logger.Info("job finished", zap.Duration("duration", time.Since(start)))
	}
}
