package jobs_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripengine/internal/jobs"
)

type fakeSweeper struct {
	calls atomic.Int32
	err   error
}

func (f *fakeSweeper) Sweep(context.Context) (int, error) {
	f.calls.Add(1)
	return 3, f.err
}

type fakeReconciler struct {
	pending int
	calls   atomic.Int32
	err     error
}

func (f *fakeReconciler) Reconcile(context.Context) (int, error) {
	f.calls.Add(1)
	return f.pending, f.err
}

func (f *fakeReconciler) Pending() int { return f.pending }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestCacheSweepJobRunOnce(t *testing.T) {
	s := &fakeSweeper{}
	job := jobs.NewCacheSweepJob(s, "0 * * * * *", discard())
	job.RunOnce(context.Background())
	assert.Equal(t, int32(1), s.calls.Load())

	s.err = errors.New("redis down")
	job.RunOnce(context.Background())
	assert.Equal(t, int32(2), s.calls.Load())
}

func TestLedgerReconcileJobSkipsEmptyQueue(t *testing.T) {
	r := &fakeReconciler{}
	job := jobs.NewLedgerReconcileJob(r, "*/30 * * * * *", discard())

	job.RunOnce(context.Background())
	assert.Equal(t, int32(0), r.calls.Load())

	r.pending = 2
	job.RunOnce(context.Background())
	assert.Equal(t, int32(1), r.calls.Load())
}

func TestJobManagerStartStop(t *testing.T) {
	jm := jobs.NewJobManager(&fakeSweeper{}, &fakeReconciler{}, "0 * * * * *", "*/30 * * * * *", discard())
	require.NoError(t, jm.StartAll())
	jm.StopAll()
}

func TestJobManagerRejectsBadSchedule(t *testing.T) {
	jm := jobs.NewJobManager(&fakeSweeper{}, &fakeReconciler{}, "0 * * * * *", "every half minute", discard())
	err := jm.StartAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ledger reconcile")
}
