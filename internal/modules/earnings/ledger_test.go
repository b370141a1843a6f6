package earnings

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripengine/internal/modules/order"
	"tripengine/internal/modules/trip"
	"tripengine/internal/types"
)

type flakyAppender struct {
	mu      sync.Mutex
	fail    bool
	written []order.LedgerEntry
}

func (a *flakyAppender) AppendEarningsLedger(_ context.Context, e order.LedgerEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fail {
		return errors.New("ledger unavailable")
	}
	a.written = append(a.written, e)
	return nil
}

func (a *flakyAppender) setFail(v bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fail = v
}

func (a *flakyAppender) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.written)
}

func TestRecordWritesAsync(t *testing.T) {
	backend := &flakyAppender{}
	l := NewLedger(backend, Options{})

	l.Record("w1", trip.Ref{Kind: trip.KindTaxi, ID: "t1"}, types.FromMajor(12.5))
	l.Wait()

	require.Equal(t, 1, backend.count())
	assert.Equal(t, types.FromMajor(12.5), backend.written[0].Amount)
	assert.NotEmpty(t, backend.written[0].ID)
	assert.Zero(t, l.Pending())
}

func TestFailedAppendIsReconciled(t *testing.T) {
	backend := &flakyAppender{fail: true}
	l := NewLedger(backend, Options{})

	l.Record("w1", trip.Ref{Kind: trip.KindFood, ID: "f1"}, types.FromMajor(8))
	l.Record("w1", trip.Ref{Kind: trip.KindFood, ID: "f2"}, types.FromMajor(9))
	l.Wait()
	assert.Equal(t, 2, l.Pending())

	_, err := l.Reconcile(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 2, l.Pending())

	backend.setFail(false)
	n, err := l.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Zero(t, l.Pending())
	assert.Equal(t, 2, backend.count())
}

func TestQueueIsBounded(t *testing.T) {
	backend := &flakyAppender{fail: true}
	l := NewLedger(backend, Options{QueueSize: 2})
	for _, id := range []types.ID{"a", "b", "c"} {
		l.Record("w1", trip.Ref{Kind: trip.KindTaxi, ID: id}, types.FromMajor(1))
		l.Wait()
	}
	assert.Equal(t, 2, l.Pending())
}
