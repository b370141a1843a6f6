// README: Postgres fixture for store tests: an external DSN or a throwaway container.
package pgtest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"tripengine/internal/infra"
)

const (
	dsnEnv        = "TRIPENGINE_TEST_DSN"
	containersEnv = "TRIPENGINE_TESTCONTAINERS"
)

// Pool returns a migrated, empty database. The test is skipped unless
// TRIPENGINE_TEST_DSN is set or TRIPENGINE_TESTCONTAINERS=1.
func Pool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	dsn := os.Getenv(dsnEnv)
	if dsn == "" {
		if os.Getenv(containersEnv) != "1" {
			t.Skipf("%s not set and %s != 1; skipping DB-backed tests", dsnEnv, containersEnv)
		}
		dsn = startContainer(ctx, t)
	}

	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(db.Close)

	root, err := infra.RepoRoot()
	if err != nil {
		t.Fatalf("find repo root: %v", err)
	}
	if err := infra.Migrate(ctx, db, filepath.Join(root, "migrations")); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	if _, err := db.Exec(ctx, "TRUNCATE TABLE order_state_events, earnings_ledger, orders"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
	return db
}

func startContainer(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("tripengine"),
		postgres.WithUsername("tripengine"),
		postgres.WithPassword("tripengine"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("container dsn: %v", err)
	}
	return dsn
}
