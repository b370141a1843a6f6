// Package jobs runs the engine's periodic maintenance on robfig/cron schedules
// (six fields, seconds first).
//
//	jm := jobs.NewJobManager(engine, ledger, cfg.Cache.SweepSchedule, cfg.Ledger.ReconcileSchedule, logger)
//	if err := jm.StartAll(); err != nil { ... }
//	defer jm.StopAll()
package jobs

import (
	"fmt"
	"log/slog"
)

// JobManager starts and stops every background job together.
type JobManager struct {
	cacheSweepJob      *CacheSweepJob
	ledgerReconcileJob *LedgerReconcileJob
}

func NewJobManager(sweeper Sweeper, reconciler Reconciler, sweepSchedule, reconcileSchedule string, logger *slog.Logger) *JobManager {
	return &JobManager{
		cacheSweepJob:      NewCacheSweepJob(sweeper, sweepSchedule, logger),
		ledgerReconcileJob: NewLedgerReconcileJob(reconciler, reconcileSchedule, logger),
	}
}

// StartAll starts every job. If one fails the already started ones are stopped.
func (jm *JobManager) StartAll() error {
	if err := jm.cacheSweepJob.Start(); err != nil {
		return fmt.Errorf("failed to start cache sweep job: %w", err)
	}
	if err := jm.ledgerReconcileJob.Start(); err != nil {
		jm.cacheSweepJob.Stop()
		return fmt.Errorf("failed to start ledger reconcile job: %w", err)
	}
	return nil
}

func (jm *JobManager) StopAll() {
	jm.ledgerReconcileJob.Stop()
	jm.cacheSweepJob.Stop()
}
