// README: Benchmark cases for order intake, worker dispatch, accept races, consistency and throughput.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"tripengine/internal/infra"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client
	// run prefixes every order id so repeated runs do not collide.
	run string
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name  string
	Focus string
	Run   func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
		run:   uuid.NewString()[:8],
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))

	for _, tc := range tests {
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		results = append(results, res)
		fmt.Printf("%-7s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}

	return results
}

func (r *Runner) orderID(name string) string {
	return r.run + "-" + name
}

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{
			Name:  "Env: Postgres connect",
			Focus: "DB reachable",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: "SKIP", Note: "db not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.db.Ping(ctx); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name:  "Env: Redis connect",
			Focus: "Redis reachable",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: "SKIP", Note: "redis not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.redis.Ping(ctx).Err(); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name:  "Migration: apply (optional)",
			Focus: "apply migrations before the run",
			Run: func(ctx context.Context, r *Runner) Result {
				if !r.cfg.ApplyMigration {
					return Result{Status: "SKIP", Note: "apply-migration=false"}
				}
				if r.db == nil {
					return Result{Status: "FAIL", Note: "db not configured"}
				}
				if err := infra.Migrate(ctx, r.db, r.cfg.MigrationsDir); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name:  "Migration: tables exist",
			Focus: "every table named in migrations exists",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: "SKIP", Note: "db not configured"}
				}
				tables, err := extractTables(r.cfg.MigrationsDir)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				for _, t := range tables {
					var exists bool
					err := r.db.QueryRow(ctx,
						"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)",
						t,
					).Scan(&exists)
					if err != nil {
						return Result{Status: "FAIL", Note: err.Error()}
					}
					if !exists {
						return Result{Status: "FAIL", Note: "missing table: " + t}
					}
				}
				return Result{Status: "PASS", Note: fmt.Sprintf("tables=%d", len(tables))}
			},
		},
		{
			Name:  "API: health",
			Focus: "server reachable",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.expect(ctx, http.MethodGet, "/health", "", nil, http.StatusOK)
			},
		},

		// Order intake
		{
			Name:  "Order: create taxi order",
			Focus: "intake returns the normalized pending trip",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.expect(ctx, http.MethodPost, "/api/orders", "", r.taxiOrder("flow"), http.StatusCreated)
			},
		},
		{
			Name:  "Order: duplicate id -> 409",
			Focus: "ids are unique per kind",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.expect(ctx, http.MethodPost, "/api/orders", "", r.taxiOrder("flow"), http.StatusConflict)
			},
		},
		{
			Name:  "Order: unknown kind -> 400",
			Focus: "discriminant validated",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.expect(ctx, http.MethodPost, "/api/orders", "", map[string]any{"type": "helicopter"}, http.StatusBadRequest)
			},
		},

		// Worker session
		{
			Name:  "Worker: missing session -> 401",
			Focus: "worker routes need X-Worker-ID",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.expect(ctx, http.MethodGet, "/api/worker/orders/available", "", nil, http.StatusUnauthorized)
			},
		},
		{
			Name:  "Worker: go online",
			Focus: "presence",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.expect(ctx, http.MethodPut, "/api/worker/availability", "d1", map[string]any{"online": true}, http.StatusOK)
			},
		},
		{
			Name:  "Worker: available orders include seeded order",
			Focus: "routing by capability",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.availableContains(ctx, "d1", r.orderID("flow"))
			},
		},

		// Lifecycle
		{
			Name:  "Trip: accept -> active -> riding -> completed",
			Focus: "full taxi lifecycle",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.lifecycle(ctx, "d1", r.orderID("flow"))
			},
		},
		{
			Name:  "Trip: completed cannot transition",
			Focus: "terminal states are closed",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.expect(ctx, http.MethodPost, "/api/worker/trips/taxi/"+r.orderID("flow")+"/status", "d1",
					map[string]any{"status": "cancelled", "cancel_reason": "other"}, http.StatusConflict)
			},
		},
		{
			Name:  "Trip: cancel without valid reason -> 400",
			Focus: "cancel reason validated",
			Run: func(ctx context.Context, r *Runner) Result {
				id := r.orderID("cancel")
				if res := r.expect(ctx, http.MethodPost, "/api/orders", "", r.taxiOrder("cancel"), http.StatusCreated); res.Status != "PASS" {
					return res
				}
				if res := r.expect(ctx, http.MethodPost, "/api/worker/orders/taxi/"+id+"/accept", "d1", nil, http.StatusOK); res.Status != "PASS" {
					return res
				}
				if res := r.expect(ctx, http.MethodPost, "/api/worker/trips/taxi/"+id+"/status", "d1",
					map[string]any{"status": "cancelled", "cancel_reason": "bored"}, http.StatusBadRequest); res.Status != "PASS" {
					return res
				}
				return r.expect(ctx, http.MethodPost, "/api/worker/trips/taxi/"+id+"/status", "d1",
					map[string]any{"status": "cancelled", "cancel_reason": "customer_cancelled"}, http.StatusOK)
			},
		},
		{
			Name:  "Trip: stranger cannot update -> 403",
			Focus: "ownership",
			Run: func(ctx context.Context, r *Runner) Result {
				id := r.orderID("owned")
				if res := r.expect(ctx, http.MethodPost, "/api/orders", "", r.taxiOrder("owned"), http.StatusCreated); res.Status != "PASS" {
					return res
				}
				if res := r.expect(ctx, http.MethodPost, "/api/worker/orders/taxi/"+id+"/accept", "d1", nil, http.StatusOK); res.Status != "PASS" {
					return res
				}
				return r.expect(ctx, http.MethodPost, "/api/worker/trips/taxi/"+id+"/status", "d2",
					map[string]any{"status": "active"}, http.StatusForbidden)
			},
		},

		// Consistency
		{
			Name:  "Consistency: events match status_version",
			Focus: "one audit row per applied transition",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.eventsConsistent(ctx, r.orderID("flow"), 4)
			},
		},
		{
			Name:  "Consistency: earnings ledger row written",
			Focus: "completed trip credited once",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.ledgerWritten(ctx, r.orderID("flow"))
			},
		},

		// Concurrency
		{
			Name:  "Concurrency: multi accept same order",
			Focus: "exactly one worker wins",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.concurrentAccept(ctx)
			},
		},

		// Performance
		{
			Name:  "Perf: available orders throughput",
			Focus: "cached listing under load",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.perfLoad(ctx, http.MethodGet, "/api/worker/orders/available", "d1")
			},
		},
	}
}

func (r *Runner) taxiOrder(name string) map[string]any {
	return map[string]any{
		"type":            "taxi",
		"order_id":        r.orderID(name),
		"fare":            150,
		"pickup_location": map[string]any{"address": "Central Station"},
		"dropoff":         "Airport",
	}
}

func (r *Runner) do(ctx context.Context, method, path, workerID string, body any) (int, []byte, time.Duration, error) {
	var reader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if workerID != "" {
		req.Header.Set("X-Worker-ID", workerID)
		req.Header.Set("X-Service-Capability", "taxi")
	}
	start := time.Now()
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, nil, 0, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	return resp.StatusCode, data, time.Since(start), err
}

func (r *Runner) expect(ctx context.Context, method, path, workerID string, body any, want int) Result {
	status, _, latency, err := r.do(ctx, method, path, workerID, body)
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	note := fmt.Sprintf("status=%d", status)
	if status != want {
		return Result{Status: "FAIL", Latency: latency, Note: fmt.Sprintf("%s want=%d", note, want)}
	}
	return Result{Status: "PASS", Latency: latency, Note: note}
}

func (r *Runner) availableContains(ctx context.Context, workerID, id string) Result {
	status, data, latency, err := r.do(ctx, http.MethodGet, "/api/worker/orders/available", workerID, nil)
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	if status != http.StatusOK {
		return Result{Status: "FAIL", Latency: latency, Note: fmt.Sprintf("status=%d", status)}
	}
	var listing struct {
		Trips []struct {
			ID string `json:"id"`
		} `json:"trips"`
		Stale bool `json:"stale"`
	}
	if err := json.Unmarshal(data, &listing); err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	for _, t := range listing.Trips {
		if t.ID == id {
			return Result{Status: "PASS", Latency: latency, Note: fmt.Sprintf("trips=%d", len(listing.Trips))}
		}
	}
	return Result{Status: "FAIL", Latency: latency, Note: fmt.Sprintf("order %s not listed (stale=%v)", id, listing.Stale)}
}

func (r *Runner) lifecycle(ctx context.Context, workerID, id string) Result {
	start := time.Now()
	if res := r.expect(ctx, http.MethodPost, "/api/worker/orders/taxi/"+id+"/accept", workerID, nil, http.StatusOK); res.Status != "PASS" {
		res.Note = "accept: " + res.Note
		return res
	}
	steps := []map[string]any{
		{"status": "active"},
		{"status": "riding"},
		{"status": "completed", "rating": 5},
	}
	for _, body := range steps {
		res := r.expect(ctx, http.MethodPost, "/api/worker/trips/taxi/"+id+"/status", workerID, body, http.StatusOK)
		if res.Status != "PASS" {
			res.Note = fmt.Sprintf("%v: %s", body["status"], res.Note)
			return res
		}
	}
	return Result{Status: "PASS", Latency: time.Since(start)}
}

func (r *Runner) eventsConsistent(ctx context.Context, id string, want int) Result {
	if r.db == nil {
		return Result{Status: "SKIP", Note: "db not configured"}
	}
	var version, events int
	if err := r.db.QueryRow(ctx,
		"SELECT status_version FROM orders WHERE kind='taxi' AND id=$1", id,
	).Scan(&version); err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	if err := r.db.QueryRow(ctx,
		"SELECT COUNT(*) FROM order_state_events WHERE order_kind='taxi' AND order_id=$1", id,
	).Scan(&events); err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	if version != want || events != want {
		return Result{Status: "FAIL", Note: fmt.Sprintf("version=%d events=%d want=%d", version, events, want)}
	}
	return Result{Status: "PASS", Note: fmt.Sprintf("version=%d", version)}
}

// ledgerWritten polls because the ledger append runs after the response.
func (r *Runner) ledgerWritten(ctx context.Context, id string) Result {
	if r.db == nil {
		return Result{Status: "SKIP", Note: "db not configured"}
	}
	deadline := time.Now().Add(3 * time.Second)
	for {
		var rows int
		if err := r.db.QueryRow(ctx,
			"SELECT COUNT(*) FROM earnings_ledger WHERE order_kind='taxi' AND order_id=$1", id,
		).Scan(&rows); err != nil {
			return Result{Status: "FAIL", Note: err.Error()}
		}
		if rows == 1 {
			return Result{Status: "PASS"}
		}
		if rows > 1 {
			return Result{Status: "FAIL", Note: fmt.Sprintf("rows=%d", rows)}
		}
		if time.Now().After(deadline) {
			return Result{Status: "FAIL", Note: "no ledger row"}
		}
		select {
		case <-ctx.Done():
			return Result{Status: "FAIL", Note: ctx.Err().Error()}
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func (r *Runner) concurrentAccept(ctx context.Context) Result {
	id := r.orderID("race")
	if res := r.expect(ctx, http.MethodPost, "/api/orders", "", r.taxiOrder("race"), http.StatusCreated); res.Status != "PASS" {
		res.Note = "seed: " + res.Note
		return res
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	won, lost, other := 0, 0, 0
	start := time.Now()
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(workerID string) {
			defer wg.Done()
			status, _, _, err := r.do(ctx, http.MethodPost, "/api/worker/orders/taxi/"+id+"/accept", workerID, nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				other++
			case status == http.StatusOK:
				won++
			case status == http.StatusConflict:
				lost++
			default:
				other++
			}
		}(fmt.Sprintf("racer-%d", i))
	}
	wg.Wait()

	note := fmt.Sprintf("won=%d lost=%d other=%d", won, lost, other)
	if won != 1 || other != 0 {
		return Result{Status: "FAIL", Latency: time.Since(start), Note: note}
	}
	return Result{Status: "PASS", Latency: time.Since(start), Note: note}
}

func (r *Runner) perfLoad(ctx context.Context, method, path, workerID string) Result {
	end := time.Now().Add(r.cfg.Duration)
	var count, errCount int64
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				status, _, _, err := r.do(ctx, method, path, workerID, nil)
				mu.Lock()
				if err != nil || status >= 500 {
					errCount++
				} else {
					count++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if count == 0 {
		return Result{Status: "FAIL", Note: "no requests completed"}
	}
	rps := float64(count) / r.cfg.Duration.Seconds()
	return Result{Status: "PASS", Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount)}
}

var createTableRe = regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)

func extractTables(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return nil, err
	}
	var tables []string
	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			return nil, err
		}
		for _, m := range createTableRe.FindAllStringSubmatch(string(b), -1) {
			tables = append(tables, m[1])
		}
	}
	return tables, nil
}
