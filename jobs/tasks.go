package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskBalanceWarmup pre-computes balances for configured report scopes.
	TaskBalanceWarmup = "balance:warmup"
	// TaskLookupRefresh re-primes the account, segment and hierarchy lookups.
	TaskLookupRefresh = "lookup:refresh"
)

// WarmupScope names one balance computation to pre-warm. Period names use the
// upstream ledger's display form, e.g. "Jan 2025" or "FY 2025".
type WarmupScope struct {
	Accounts   []string `json:"accounts"`
	FromPeriod string   `json:"from_period,omitempty"`
	ToPeriod   string   `json:"to_period"`
	Subsidiary string   `json:"subsidiary,omitempty"`
	Book       int64    `json:"book,omitempty"`
}

// BalanceWarmupPayload carries the scopes a warmup run should cover.
type BalanceWarmupPayload struct {
	Scopes       []WarmupScope `json:"scopes"`
	ScheduledFor time.Time     `json:"scheduled_for"`
}

// NewBalanceWarmupTask constructs an Asynq task for balance warmup.
func NewBalanceWarmupTask(payload BalanceWarmupPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBalanceWarmup, body, asynq.Queue(QueueDefault)), nil
}

// NewLookupRefreshTask constructs an Asynq task for lookup refresh.
func NewLookupRefreshTask() *asynq.Task {
	return asynq.NewTask(TaskLookupRefresh, nil, asynq.Queue(QueueDefault))
}
