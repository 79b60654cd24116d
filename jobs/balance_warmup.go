package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/ledgerlens/ledgerlens/internal/balance"
	jobmetrics "github.com/ledgerlens/ledgerlens/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// BalanceWarmupJob pre-populates the balance and lookup caches so that the
// first interactive request of the day does not pay for cold ledger queries.
type BalanceWarmupJob struct {
	Service *balance.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewBalanceWarmupJob wires dependencies for the warmup handler.
func NewBalanceWarmupJob(svc *balance.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *BalanceWarmupJob {
	return &BalanceWarmupJob{
		Service: svc,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes balance warmup tasks.
func (j *BalanceWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("balance warmup: handler not configured")
	}
	var payload BalanceWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskBalanceWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	if len(payload.Scopes) == 0 {
		payload.Scopes = []WarmupScope{{}}
	}

	logger := j.logger(TaskBalanceWarmup)
	logger.Info("starting balance warmup", slog.Int("scopes", len(payload.Scopes)))

	start := j.now()
	if err := j.Service.Warmup(ctx); err != nil {
		// Partial lookup warmup is fine for pre-computation; scopes that
		// need a missing lookup fail individually below.
		logger.Warn("lookup warmup incomplete", slog.Any("error", err))
	}

	warmed := 0
	for _, scope := range payload.Scopes {
		if err := j.warmScope(ctx, scope); err != nil {
			resultErr = err
			logger.Error("warm scope",
				slog.String("to_period", scope.ToPeriod),
				slog.String("subsidiary", scope.Subsidiary),
				slog.Any("error", err))
			return resultErr
		}
		warmed++
	}
	j.metrics().AddWarmedScopes(TaskBalanceWarmup, warmed)

	logger.Info("completed balance warmup",
		slog.Int("scopes", warmed),
		slog.Duration("duration", time.Since(start)))
	return resultErr
}

// HandleLookupRefresh processes lookup refresh tasks.
func (j *BalanceWarmupJob) HandleLookupRefresh(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("lookup refresh: handler not configured")
	}
	tracker := j.metrics().Track(TaskLookupRefresh)
	err := j.Service.Warmup(ctx)
	if err != nil {
		j.logger(TaskLookupRefresh).Error("lookup refresh", slog.Any("error", err))
	}
	return tracker.End(err)
}

func (j *BalanceWarmupJob) warmScope(ctx context.Context, scope WarmupScope) error {
	// Long consolidated scans stay within the same budget as an
	// interactive request.
	scopeCtx, cancel := context.WithTimeout(ctx, 4*time.Minute)
	defer cancel()

	accounts := scope.Accounts
	if len(accounts) == 0 {
		accounts = []string{"BALANCE", "INCOME", "EXPENSE"}
	}
	toPeriod := scope.ToPeriod
	if toPeriod == "" {
		// Cron payloads are built once at registration, so the current
		// month is resolved at run time instead.
		toPeriod = j.now().Format("Jan 2006")
	}
	_, err := j.Service.Balances(scopeCtx, balance.BalanceRequest{
		Accounts:   accounts,
		FromPeriod: scope.FromPeriod,
		ToPeriod:   toPeriod,
		Filters: balance.Filters{
			Subsidiary: scope.Subsidiary,
			Book:       scope.Book,
		},
	})
	return err
}

func (j *BalanceWarmupJob) logger(task string) *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", task))
	}
	return slog.Default().With(slog.String("job", task))
}

func (j *BalanceWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *BalanceWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
