package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"jobmate/aggregator-service/internal/aggregator"
	"jobmate/aggregator-service/internal/config"
	"jobmate/aggregator-service/internal/coordination"
	"jobmate/aggregator-service/internal/db"
	"jobmate/aggregator-service/internal/events"
	"jobmate/aggregator-service/internal/logger"
	"jobmate/aggregator-service/internal/metrics"
	"jobmate/aggregator-service/internal/scheduler"
	"jobmate/aggregator-service/internal/scraper"
	"jobmate/aggregator-service/internal/store"
)

// app holds the wired dependencies shared by serve and sync.
type app struct {
	cfg *config.Config
	log logger.Logger

	pool  *pgxpool.Pool
	redis redis.UniversalClient

	postings  *store.PostingStore
	sources   *store.SourceRegistry
	events    *events.Publisher
	metrics   *metrics.Metrics
	scheduler *scheduler.Scheduler
}

func newApp(ctx context.Context, cfg *config.Config, log logger.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}

	// ── PostgreSQL ───────────────────────────────────────────────────────────
	if cfg.MigrateOnStart {
		if err := db.RunMigrations(cfg.DatabaseURL); err != nil {
			return nil, err
		}
		log.Info("migrations applied")
	}
	pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	a.pool = pool
	log.Info("connected to PostgreSQL")

	// ── Redis (optional) ─────────────────────────────────────────────────────
	if cfg.RedisURL != "" {
		rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.redis = rdb
		log.Info("connected to Redis")
	} else {
		log.Warn("REDIS_URL not set: sync lock is process-local and events are disabled")
	}

	a.postings = store.NewPostingStore(pool)
	a.sources = store.NewSourceRegistry(pool)
	a.events = events.NewPublisher(a.redis)
	a.metrics = metrics.New()

	if err := a.seed(ctx, false); err != nil {
		a.close()
		return nil, err
	}

	// ── Sync pipeline ────────────────────────────────────────────────────────
	adapters := scraper.Defaults(scraper.ClientOptions{
		Timeout:           cfg.HTTPTimeout,
		RequestsPerSecond: cfg.UpstreamRPS,
	})
	names := make([]string, 0, 3)
	for _, n := range adapters.Names() {
		names = append(names, string(n))
	}
	log.Info("adapters registered", logger.Strings("sources", names))

	orch := aggregator.New(a.postings, a.sources, adapters, aggregator.Options{
		Concurrency: cfg.Concurrency,
		StaleAfter:  cfg.StaleAfter(),
		Publisher:   a.events,
		Observer:    a.metrics,
		Logger:      log,
	})

	schedOpts := scheduler.Options{
		Spec:         cfg.SyncSchedule,
		RunOnStartup: cfg.SyncOnStartup,
		Observer:     a.metrics,
		Logger:       log,
	}
	if a.redis != nil {
		schedOpts.Lock = coordination.NewLock(a.redis, coordination.DefaultLockKey, cfg.LockTTL)
	}
	a.scheduler, err = scheduler.New(orch, schedOpts)
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// seed applies the seed file to the registry. A missing file is only an error
// when required is set.
func (a *app) seed(ctx context.Context, required bool) error {
	path := a.cfg.SourcesFile
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && !required {
		a.log.Info("no sources file, skipping seed", logger.String("path", path))
		return nil
	}
	seeds, err := config.LoadSourceSeeds(path)
	if err != nil {
		return err
	}
	n, err := a.sources.Seed(ctx, seeds)
	if err != nil {
		return fmt.Errorf("seed sources: %w", err)
	}
	a.log.Info("sources seeded", logger.String("path", path), logger.Int("inserted", n), logger.Int("declared", len(seeds)))
	return nil
}

func (a *app) close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	_ = a.log.Sync()
}
