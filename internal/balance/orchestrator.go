package balance

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ledgerlens/ledgerlens/internal/platform/netsuite"
)

// TaskFunc computes one named aggregate total.
type TaskFunc func(ctx context.Context) (float64, error)

// Orchestrator fans independent sub-queries out over a bounded worker pool.
// The pool is sized below the ledger client's admission ceiling so other
// in-flight work keeps headroom. Each task retries rate-limit signals with
// linear backoff; any other failure is isolated to its own result so a
// single failed component never aborts its siblings.
type Orchestrator struct {
	workers int
	retries int
	backoff time.Duration
	logger  *slog.Logger
}

// NewOrchestrator builds a pool of the given size. Retry policy: 3 retries
// on rate limit with backoff 1×, 2×, 3× the base step (default 2s); the
// next rate-limit response surfaces as the task's error.
func NewOrchestrator(workers int, logger *slog.Logger) *Orchestrator {
	if workers <= 0 {
		workers = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{workers: workers, retries: 3, backoff: 2 * time.Second, logger: logger}
}

// WithBackoff overrides the backoff step, for deterministic tests.
func (o *Orchestrator) WithBackoff(step time.Duration) *Orchestrator {
	if step > 0 {
		o.backoff = step
	}
	return o
}

// RunParallel executes the named tasks and returns every value alongside the
// per-task errors. A failed task is reported with value 0; the caller
// decides whether a zeroed component is acceptable.
func (o *Orchestrator) RunParallel(ctx context.Context, tasks map[string]TaskFunc) (map[string]float64, map[string]error) {
	values := make(map[string]float64, len(tasks))
	failures := make(map[string]error)
	if len(tasks) == 0 {
		return values, failures
	}

	type namedTask struct {
		name string
		fn   TaskFunc
	}
	feed := make(chan namedTask)
	var mu sync.Mutex
	var wg sync.WaitGroup

	workers := o.workers
	if workers > len(tasks) {
		workers = len(tasks)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range feed {
				v, err := o.runOne(ctx, task.name, task.fn)
				mu.Lock()
				if err != nil {
					values[task.name] = 0
					failures[task.name] = err
				} else {
					values[task.name] = v
				}
				mu.Unlock()
			}
		}()
	}
	for name, fn := range tasks {
		feed <- namedTask{name: name, fn: fn}
	}
	close(feed)
	wg.Wait()
	return values, failures
}

func (o *Orchestrator) runOne(ctx context.Context, name string, fn TaskFunc) (float64, error) {
	for attempt := 0; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, netsuite.ErrRateLimited) || attempt >= o.retries {
			return 0, err
		}
		delay := o.backoff * time.Duration(attempt+1)
		o.logger.Info("rate limited, backing off",
			slog.String("task", name),
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay))
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return 0, ctx.Err()
		case <-timer.C:
		}
	}
}
