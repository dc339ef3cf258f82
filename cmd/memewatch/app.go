package main

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"memeWatch/internal/chain"
	"memeWatch/internal/config"
	"memeWatch/internal/lock"
	"memeWatch/internal/marketdata"
	"memeWatch/internal/storage"
	"memeWatch/internal/storage/memory"
	"memeWatch/internal/storage/postgres"
	"memeWatch/internal/telemetry"
	"memeWatch/internal/tracker"
)

const refreshStateName = "refresh"

// app wires the tracker components from configuration.
type app struct {
	cfg       config.Config
	logger    *zap.Logger
	metrics   *prometheus.Registry
	registry  *tracker.Registry
	refresher *tracker.Refresher
	source    marketdata.Source
	validator tracker.Validator

	closers []func()
}

type appOptions struct {
	allowMemory bool
	withLock    bool
}

func loadConfig(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger, opts appOptions) (*app, error) {
	a := &app{cfg: cfg, logger: logger, metrics: prometheus.NewRegistry()}
	a.metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.closers = append(a.closers, telemetry.InitTracer(cfg.OtelEndpoint, logger))

	var (
		store   storage.TokenStore
		backend storage.StateBackend
	)
	switch {
	case cfg.PGDSN != "":
		pg, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, pg.Close)
		if err := pg.Migrate(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		store, backend = pg, pg
	case opts.allowMemory:
		logger.Warn("pg dsn not set, using in-memory store; tracked tokens are lost on exit")
		mem := memory.NewStore()
		store, backend = mem, mem
	default:
		a.Close()
		return nil, fmt.Errorf("pg dsn is required")
	}

	var chainSource marketdata.ChainSource
	if cfg.RPCURL != "" {
		client, err := chain.NewClient(chain.ClientConfig{
			RPCURL:       cfg.RPCURL,
			MaxRetries:   cfg.MaxRetries,
			RetryBackoff: cfg.RetryBackoff,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("create rpc client: %w", err)
		}
		chainSource = client
	}

	source, err := marketdata.New(marketdata.Config{
		Name:         cfg.Source,
		BaseURL:      cfg.DexScreenerURL,
		RateLimit:    cfg.RateLimit,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		Timeout:      cfg.FetchTimeout,
		Seed:         cfg.Seed,
	}, chainSource, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	var sink storage.SnapshotSink
	if cfg.SnapshotLog != "" {
		sink = storage.NewJsonlSink(cfg.SnapshotLog)
	}

	a.source = source
	a.validator = chain.AddressValidator{}

	deps := tracker.Deps{
		Store:     store,
		Source:    a.source,
		Validator: a.validator,
		Sink:      sink,
		Metrics:   tracker.NewMetrics(a.metrics),
		Logger:    logger,
	}
	a.registry = tracker.NewRegistry(deps)

	var locker lock.Locker
	if opts.withLock && cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		if err := rdb.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		locker, err = lock.NewRedisLocker(rdb, cfg.LockKey, cfg.LockTTL)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	var state tracker.StateStore
	if cfg.StateFile != "" {
		state = &tracker.FileStateStore{Path: cfg.StateFile}
	} else {
		state = &tracker.DBStateStore{Backend: backend, Name: refreshStateName}
	}

	a.refresher = tracker.NewRefresher(tracker.RefresherConfig{
		Concurrency:  cfg.Concurrency,
		FetchTimeout: cfg.FetchTimeout,
	}, deps, locker, state)

	logger.Info("tracker ready",
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.String("source", cfg.Source),
		zap.Bool("chain", chainSource != nil),
		zap.Bool("redis_lock", locker != nil),
		zap.String("snapshot_log", cfg.SnapshotLog),
	)
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
