package jobs

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Sweeper drops cache entries whose stale retention has ended.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// CacheSweepJob evicts long-expired dispatch cache entries on a schedule.
type CacheSweepJob struct {
	sweeper  Sweeper
	schedule string
	cron     *cron.Cron
	logger   *slog.Logger
}

func NewCacheSweepJob(sweeper Sweeper, schedule string, logger *slog.Logger) *CacheSweepJob {
	return &CacheSweepJob{
		sweeper:  sweeper,
		schedule: schedule,
		cron:     cron.New(cron.WithSeconds()),
		logger:   logger.With("component", "cache_sweep_job"),
	}
}

func (j *CacheSweepJob) Start() error {
	if _, err := j.cron.AddFunc(j.schedule, func() { j.RunOnce(context.Background()) }); err != nil {
		return err
	}
	j.cron.Start()
	j.logger.InfoContext(context.Background(), "Cache sweep job started", "schedule", j.schedule)
	return nil
}

// RunOnce performs a single sweep.
func (j *CacheSweepJob) RunOnce(ctx context.Context) {
	n, err := j.sweeper.Sweep(ctx)
	if err != nil {
		j.logger.ErrorContext(ctx, "Cache sweep failed", "error", err)
		return
	}
	if n > 0 {
		j.logger.DebugContext(ctx, "Cache swept", "evicted", n)
	}
}

func (j *CacheSweepJob) Stop() {
	<-j.cron.Stop().Done()
	j.logger.InfoContext(context.Background(), "Cache sweep job stopped")
}
