package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/ledgerlens/ledgerlens/internal/app"
	"github.com/ledgerlens/ledgerlens/internal/audit"
	"github.com/ledgerlens/ledgerlens/internal/balance"
	"github.com/ledgerlens/ledgerlens/internal/observability"
	"github.com/ledgerlens/ledgerlens/internal/platform/cache"
	"github.com/ledgerlens/ledgerlens/internal/platform/db"
	"github.com/ledgerlens/ledgerlens/internal/platform/netsuite"
	"github.com/ledgerlens/ledgerlens/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	if cfg.RedisAddr == "" {
		slog.Default().Error("worker requires REDIS_ADDR")
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	metrics := observability.NewMetrics()

	client := netsuite.NewClient(netsuite.Config{
		AccountID:      cfg.LedgerAccountID,
		ConsumerKey:    cfg.LedgerConsumerKey,
		ConsumerSecret: cfg.LedgerConsumerSecret,
		TokenID:        cfg.LedgerTokenID,
		TokenSecret:    cfg.LedgerTokenSecret,
		Concurrency:    cfg.LedgerConcurrency,
		PacingInterval: cfg.LedgerPacing,
		QueryTimeout:   cfg.LedgerQueryTimeout,
		ScanTimeout:    cfg.LedgerScanTimeout,
		PageSize:       cfg.LedgerPageSize,
		MaxPages:       cfg.LedgerMaxPages,
		BaseURL:        cfg.LedgerBaseURL,
	}, logger)
	client.SetObserver(metrics)

	// Warming through the shared Redis cache is the point of the worker:
	// balances it computes are the ones the API serves.
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	balanceCache := balance.NewRedisCache(redisClient, cfg.CachePrefix, cfg.CacheTTL)
	balanceCache.SetObserver(metrics.ObserveCache)

	resolver := balance.NewResolver(client, logger)
	orch := balance.NewOrchestrator(cfg.Workers, logger)
	service := balance.NewService(client, balanceCache, resolver, orch, balance.Options{
		DefaultBook:   cfg.DefaultBook,
		DerivedStrict: cfg.DerivedStrict,
		Workers:       cfg.Workers,
	}, logger)

	warmupJob := jobs.NewBalanceWarmupJob(service, logger, nil)

	warmupTask, err := jobs.NewBalanceWarmupTask(jobs.BalanceWarmupPayload{})
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	handlers := []jobs.TaskHandler{
		{Type: jobs.TaskBalanceWarmup, Handler: warmupJob.Handle},
		{Type: jobs.TaskLookupRefresh, Handler: warmupJob.HandleLookupRefresh},
	}
	cron := []jobs.CronRegistration{
		{Spec: "15 1 * * *", Task: jobs.NewLookupRefreshTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		{Spec: "45 1 * * *", Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
	}

	if cfg.PGDSN != "" {
		pool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			logger.Error("connect postgres", slog.Any("error", err))
			os.Exit(1)
		}
		defer pool.Close()

		pruneJob := jobs.NewAuditPruneJob(audit.NewService(audit.NewPGRepository(pool)), logger, nil)
		pruneTask, err := jobs.NewAuditPruneTask(30)
		if err != nil {
			logger.Error("build prune task", slog.Any("error", err))
			os.Exit(1)
		}
		handlers = append(handlers, jobs.TaskHandler{Type: jobs.TaskAuditPrune, Handler: pruneJob.Handle})
		cron = append(cron, jobs.CronRegistration{Spec: "0 3 * * *", Task: pruneTask, Options: []asynq.Option{asynq.MaxRetry(3)}})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers:  handlers,
		Cron:      cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
