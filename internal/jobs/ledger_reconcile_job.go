package jobs

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Reconciler retries earnings ledger appends that failed earlier.
type Reconciler interface {
	Reconcile(ctx context.Context) (int, error)
	Pending() int
}

// LedgerReconcileJob drains the ledger retry queue on a schedule.
type LedgerReconcileJob struct {
	reconciler Reconciler
	schedule   string
	cron       *cron.Cron
	logger     *slog.Logger
}

func NewLedgerReconcileJob(reconciler Reconciler, schedule string, logger *slog.Logger) *LedgerReconcileJob {
	return &LedgerReconcileJob{
		reconciler: reconciler,
		schedule:   schedule,
		// A slow backend must not stack up overlapping reconcile runs.
		cron:   cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger: logger.With("component", "ledger_reconcile_job"),
	}
}

func (j *LedgerReconcileJob) Start() error {
	if _, err := j.cron.AddFunc(j.schedule, func() { j.RunOnce(context.Background()) }); err != nil {
		return err
	}
	j.cron.Start()
	j.logger.InfoContext(context.Background(), "Ledger reconcile job started", "schedule", j.schedule)
	return nil
}

// RunOnce retries the queued entries once. An empty queue is a no-op.
func (j *LedgerReconcileJob) RunOnce(ctx context.Context) {
	if j.reconciler.Pending() == 0 {
		return
	}
	n, err := j.reconciler.Reconcile(ctx)
	if err != nil {
		j.logger.ErrorContext(ctx, "Ledger reconcile incomplete", "written", n, "remaining", j.reconciler.Pending(), "error", err)
	}
}

func (j *LedgerReconcileJob) Stop() {
	<-j.cron.Stop().Done()
	j.logger.InfoContext(context.Background(), "Ledger reconcile job stopped")
}
