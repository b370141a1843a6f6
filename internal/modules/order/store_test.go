package order

import (
	"context"
	"testing"

	"tripengine/internal/modules/trip"
	"tripengine/internal/testutil/pgtest"
	"tripengine/internal/types"
)

func TestPostgresStore(t *testing.T) {
	runBackendSuite(t, func(t *testing.T) testBackend {
		return NewStore(pgtest.Pool(t))
	})
}

func TestPostgresLedgerIdempotent(t *testing.T) {
	db := pgtest.Pool(t)
	store := NewStore(db)
	ctx := context.Background()
	e := LedgerEntry{WorkerID: "d1", Ref: trip.Ref{Kind: trip.KindFood, ID: "f1"}, Amount: types.FromMajor(80.25)}

	for i := 0; i < 2; i++ {
		if err := store.AppendEarningsLedger(ctx, e); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	var count int
	var cents int64
	if err := db.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(amount_cents), 0) FROM earnings_ledger`).Scan(&count, &cents); err != nil {
		t.Fatalf("count ledger: %v", err)
	}
	if count != 1 || cents != 8025 {
		t.Fatalf("expected one entry of 8025 cents, got %d entries / %d cents", count, cents)
	}
}
