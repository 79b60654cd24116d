package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/ledgerlens/ledgerlens/internal/audit"
	jobmetrics "github.com/ledgerlens/ledgerlens/internal/jobs"
)

const (
	// TaskAuditPrune trims the persistent query log to its retention window.
	TaskAuditPrune = "audit:prune"
)

// AuditPrunePayload carries the retention window for a prune run.
type AuditPrunePayload struct {
	RetentionDays int `json:"retention_days"`
}

// NewAuditPruneTask constructs an Asynq task for query log pruning.
func NewAuditPruneTask(retentionDays int) (*asynq.Task, error) {
	body, err := json.Marshal(AuditPrunePayload{RetentionDays: retentionDays})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditPrune, body, asynq.Queue(QueueDefault)), nil
}

// AuditPruneJob trims old query log records.
type AuditPruneJob struct {
	Audit   *audit.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewAuditPruneJob wires dependencies for the prune handler.
func NewAuditPruneJob(svc *audit.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditPruneJob {
	return &AuditPruneJob{Audit: svc, Logger: logger, Metrics: metrics}
}

// Handle processes audit prune tasks.
func (j *AuditPruneJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Audit == nil {
		return errors.New("audit prune: handler not configured")
	}
	var payload AuditPrunePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	retention := time.Duration(payload.RetentionDays) * 24 * time.Hour

	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskAuditPrune)

	deleted, err := j.Audit.Prune(ctx, retention)
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if err != nil {
		logger.Error("audit prune", slog.Any("error", err))
	} else {
		logger.Info("audit prune complete", slog.Int64("deleted", deleted))
	}
	return tracker.End(err)
}
