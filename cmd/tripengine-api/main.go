// README: Entry point; loads config, wires the dispatch engine, starts HTTP server and background jobs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/redis/go-redis/v9"

	"tripengine/internal/cache"
	"tripengine/internal/config"
	httptransport "tripengine/internal/http"
	"tripengine/internal/infra"
	"tripengine/internal/jobs"
	"tripengine/internal/messaging"
	"tripengine/internal/modules/dispatch"
	"tripengine/internal/modules/earnings"
	"tripengine/internal/modules/matching"
	"tripengine/internal/modules/order"
	"tripengine/internal/modules/trip"
	"tripengine/internal/observability"
)

// orderBackend is what both order stores provide.
type orderBackend interface {
	order.Backend
	Create(ctx context.Context, o order.RawOrder, otp string) error
	Get(ctx context.Context, ref trip.Ref) (order.RawOrder, int, error)
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to YAML config")
	migrationsDir := flag.String("migrations", "migrations", "directory with SQL migrations")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(os.Stdout, cfg.Log)
	slog.SetDefault(logger)

	if err := run(cfg, *migrationsDir, logger); err != nil {
		logger.Error("tripengine stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, migrationsDir string, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("tracing init: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown", "err", err)
		}
	}()

	var backend orderBackend
	switch cfg.Backend {
	case "postgres":
		dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			return err
		}
		defer dbPool.Close()
		if err := infra.Migrate(ctx, dbPool, filepath.Clean(migrationsDir)); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		backend = order.NewStore(dbPool)
	default:
		logger.Warn("using in-memory order store")
		backend = order.NewMemoryStore()
	}

	var redisClient *redis.Client
	if cfg.Cache.Backend == "redis" {
		redisClient, err = infra.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer redisClient.Close()
	}

	var (
		cacheStore cache.Store
		presence   matching.PresenceStore
	)
	if redisClient != nil {
		cacheStore = cache.NewRedisStore(redisClient, cfg.Cache.KeyPrefix)
		presence = matching.NewStore(redisClient)
	} else {
		cacheStore = cache.NewMemoryStore()
		presence = matching.NewMemoryPresence()
	}

	publisher, err := messaging.New(cfg.Messaging, logger)
	if err != nil {
		return fmt.Errorf("messaging init: %w", err)
	}
	defer publisher.Close()

	policy, err := policyFrom(cfg.Dispatch)
	if err != nil {
		return err
	}
	defaultPickup, err := pickupFrom(cfg.Dispatch)
	if err != nil {
		return err
	}
	normalizer := order.NewNormalizer(defaultPickup)

	ledger := earnings.NewLedger(backend, earnings.Options{
		Timeout:   cfg.Dispatch.CallTimeout,
		QueueSize: cfg.Ledger.QueueSize,
		Logger:    logger,
	})
	defer ledger.Wait()

	engine := dispatch.New(dispatch.Deps{
		Backend:    backend,
		Normalizer: normalizer,
		Presence:   presence,
		Publisher:  publisher,
		CacheStore: cacheStore,
		Ledger:     ledger,
	}, dispatch.Options{
		TTL:            cfg.Cache.TTL,
		StaleRetention: cfg.Cache.StaleRetention,
		CallTimeout:    cfg.Dispatch.CallTimeout,
		Policy:         policy,
		Rating:         trip.UniformRating{Min: cfg.Dispatch.RatingMin, Max: cfg.Dispatch.RatingMax},
		Logger:         logger,
	})

	jm := jobs.NewJobManager(engine, ledger, cfg.Cache.SweepSchedule, cfg.Ledger.ReconcileSchedule, logger)
	if err := jm.StartAll(); err != nil {
		return err
	}
	defer jm.StopAll()

	server := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: httptransport.NewRouter(httptransport.RouterDeps{
			Dispatcher: engine,
			Orders:     backend,
			Normalizer: normalizer,
			Logger:     logger,
		}),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTP.Addr, "backend", cfg.Backend, "cache", cfg.Cache.Backend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func policyFrom(cfg config.DispatchConfig) (trip.Policy, error) {
	p := trip.Policy{DirectComplete: map[trip.Kind]bool{}, OTPKinds: map[trip.Kind]bool{}}
	for _, s := range cfg.DirectCompleteKinds {
		k, err := trip.ParseKind(s)
		if err != nil {
			return trip.Policy{}, fmt.Errorf("direct_complete_kinds: %w", err)
		}
		p.DirectComplete[k] = true
	}
	for _, s := range cfg.OTPKinds {
		k, err := trip.ParseKind(s)
		if err != nil {
			return trip.Policy{}, fmt.Errorf("otp_kinds: %w", err)
		}
		p.OTPKinds[k] = true
	}
	return p, nil
}

func pickupFrom(cfg config.DispatchConfig) (map[trip.Kind]string, error) {
	out := make(map[trip.Kind]string, len(cfg.DefaultPickup))
	for s, addr := range cfg.DefaultPickup {
		k, err := trip.ParseKind(s)
		if err != nil {
			return nil, fmt.Errorf("default_pickup: %w", err)
		}
		out[k] = addr
	}
	return out, nil
}
