// README: Fire-and-forget earnings ledger with a retry queue drained by a cron job.
package earnings

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"tripengine/internal/modules/order"
	"tripengine/internal/modules/trip"
	"tripengine/internal/types"
)

type Appender interface {
	AppendEarningsLedger(ctx context.Context, e order.LedgerEntry) error
}

type Options struct {
	Timeout   time.Duration
	QueueSize int
	Now       func() time.Time
	Logger    *slog.Logger
}

// Ledger never blocks the caller. Failed appends wait in a bounded queue for
// Reconcile; when the queue is full the oldest entry is dropped and logged.
type Ledger struct {
	backend   Appender
	timeout   time.Duration
	queueSize int
	now       func() time.Time
	logger    *slog.Logger

	wg      sync.WaitGroup
	mu      sync.Mutex
	pending []order.LedgerEntry
}

var _ trip.Ledger = (*Ledger)(nil)

func NewLedger(backend Appender, opts Options) *Ledger {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Ledger{
		backend:   backend,
		timeout:   opts.Timeout,
		queueSize: opts.QueueSize,
		now:       opts.Now,
		logger:    opts.Logger.With("component", "earnings_ledger"),
	}
}

func (l *Ledger) Record(workerID types.ID, ref trip.Ref, amount types.Money) {
	e := order.LedgerEntry{
		ID:        types.NewID(),
		WorkerID:  workerID,
		Ref:       ref,
		Amount:    amount,
		CreatedAt: l.now(),
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
		defer cancel()
		if err := l.backend.AppendEarningsLedger(ctx, e); err != nil {
			l.logger.Error("ledger append failed, queued for retry",
				"trip", ref.String(), "worker_id", workerID, "err", err)
			l.enqueue(e)
		}
	}()
}

// Reconcile retries queued entries and returns how many were written.
func (l *Ledger) Reconcile(ctx context.Context) (int, error) {
	l.mu.Lock()
	batch := l.pending
	l.pending = nil
	l.mu.Unlock()

	written := 0
	var errs []error
	for i, e := range batch {
		if err := ctx.Err(); err != nil {
			l.requeue(batch[i:])
			return written, err
		}
		if err := l.backend.AppendEarningsLedger(ctx, e); err != nil {
			errs = append(errs, err)
			l.enqueue(e)
			continue
		}
		written++
	}
	if written > 0 {
		l.logger.Info("ledger reconciled", "written", written, "remaining", l.Pending())
	}
	return written, errors.Join(errs...)
}

func (l *Ledger) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Wait blocks until every in-flight append has finished.
func (l *Ledger) Wait() {
	l.wg.Wait()
}

func (l *Ledger) enqueue(e order.LedgerEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.pending) >= l.queueSize {
		dropped := l.pending[0]
		l.pending = l.pending[1:]
		l.logger.Error("ledger queue full, dropping entry", "trip", dropped.Ref.String(), "worker_id", dropped.WorkerID)
	}
	l.pending = append(l.pending, e)
}

func (l *Ledger) requeue(entries []order.LedgerEntry) {
	for _, e := range entries {
		l.enqueue(e)
	}
}
