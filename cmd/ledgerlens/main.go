package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerlens/ledgerlens/internal/app"
	"github.com/ledgerlens/ledgerlens/internal/audit"
	audithttp "github.com/ledgerlens/ledgerlens/internal/audit/http"
	"github.com/ledgerlens/ledgerlens/internal/balance"
	balancehttp "github.com/ledgerlens/ledgerlens/internal/balance/http"
	"github.com/ledgerlens/ledgerlens/internal/observability"
	"github.com/ledgerlens/ledgerlens/internal/platform/cache"
	"github.com/ledgerlens/ledgerlens/internal/platform/db"
	"github.com/ledgerlens/ledgerlens/internal/platform/netsuite"
	"github.com/ledgerlens/ledgerlens/jobs"
)

// queryObservers fans each executed query out to every registered observer.
type queryObservers []netsuite.QueryObserver

func (o queryObservers) ObserveQuery(ctx context.Context, queryHash string, duration time.Duration, rows int, err error) {
	for _, obs := range o {
		obs.ObserveQuery(ctx, queryHash, duration, rows, err)
	}
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
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

	observers := queryObservers{metrics}

	var pool *pgxpool.Pool
	var recorder *audit.Recorder
	var auditHandler *audithttp.Handler
	if cfg.PGDSN != "" {
		pool, err = db.New(ctx, cfg.PGDSN)
		if err != nil {
			logger.Error("connect postgres", slog.Any("error", err))
			os.Exit(1)
		}
		defer pool.Close()

		auditService := audit.NewService(audit.NewPGRepository(pool))
		recorder = audit.NewRecorder(auditService, logger)
		defer recorder.Close()
		observers = append(observers, recorder)
		auditHandler = audithttp.NewHandler(logger, auditService)
	}
	client.SetObserver(observers)

	balanceCache := balance.NewCache(nil, cfg.CacheTTL)
	if cfg.RedisAddr != "" {
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
		balanceCache = balance.NewRedisCache(redisClient, cfg.CachePrefix, cfg.CacheTTL)
	}
	balanceCache.SetObserver(metrics.ObserveCache)

	resolver := balance.NewResolver(client, logger)
	orch := balance.NewOrchestrator(cfg.Workers, logger)
	service := balance.NewService(client, balanceCache, resolver, orch, balance.Options{
		DefaultBook:   cfg.DefaultBook,
		DerivedStrict: cfg.DerivedStrict,
		Workers:       cfg.Workers,
	}, logger)

	balanceHandler := balancehttp.NewHandler(logger, service, balanceCache)

	var jobHandler *jobs.Handler
	if cfg.RedisAddr != "" {
		inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobHandler = jobs.NewHandler(inspector, logger)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		BalanceHandler: balanceHandler,
		AuditHandler:   auditHandler,
		JobHandler:     jobHandler,
		Pool:           pool,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
