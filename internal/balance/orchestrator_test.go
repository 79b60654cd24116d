package balance

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ledgerlens/ledgerlens/internal/platform/netsuite"
)

func TestRunParallelCollectsValues(t *testing.T) {
	o := NewOrchestrator(3, quietLogger())
	values, failures := o.RunParallel(context.Background(), map[string]TaskFunc{
		"assets":      func(context.Context) (float64, error) { return 1000, nil },
		"liabilities": func(context.Context) (float64, error) { return 400, nil },
		"equity":      func(context.Context) (float64, error) { return 600, nil },
	})
	require.Empty(t, failures)
	require.Equal(t, map[string]float64{"assets": 1000, "liabilities": 400, "equity": 600}, values)
}

func TestRunParallelIsolatesFailures(t *testing.T) {
	o := NewOrchestrator(2, quietLogger())
	boom := errors.New("query failed")
	values, failures := o.RunParallel(context.Background(), map[string]TaskFunc{
		"good": func(context.Context) (float64, error) { return 50, nil },
		"bad":  func(context.Context) (float64, error) { return 0, boom },
	})
	require.Equal(t, 50.0, values["good"])
	require.Equal(t, 0.0, values["bad"])
	require.Len(t, failures, 1)
	require.ErrorIs(t, failures["bad"], boom)
}

func TestRunParallelBoundsConcurrency(t *testing.T) {
	o := NewOrchestrator(2, quietLogger())
	var active, peak int64
	var mu sync.Mutex
	task := func(context.Context) (float64, error) {
		cur := atomic.AddInt64(&active, 1)
		mu.Lock()
		if cur > peak {
			peak = cur
		}
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt64(&active, -1)
		return 1, nil
	}
	tasks := map[string]TaskFunc{}
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		tasks[name] = task
	}
	values, failures := o.RunParallel(context.Background(), tasks)
	require.Empty(t, failures)
	require.Len(t, values, 6)
	require.LessOrEqual(t, peak, int64(2))
}

func TestRunOneRetriesRateLimits(t *testing.T) {
	o := NewOrchestrator(1, quietLogger()).WithBackoff(time.Millisecond)
	var attempts int32
	values, failures := o.RunParallel(context.Background(), map[string]TaskFunc{
		"slow": func(context.Context) (float64, error) {
			if atomic.AddInt32(&attempts, 1) <= 3 {
				return 0, netsuite.ErrRateLimited
			}
			return 77, nil
		},
	})
	require.Empty(t, failures)
	require.Equal(t, 77.0, values["slow"])
	require.Equal(t, int32(4), atomic.LoadInt32(&attempts))
}

func TestRunOneGivesUpAfterThreeRetries(t *testing.T) {
	o := NewOrchestrator(1, quietLogger()).WithBackoff(time.Millisecond)
	var attempts int32
	values, failures := o.RunParallel(context.Background(), map[string]TaskFunc{
		"hot": func(context.Context) (float64, error) {
			atomic.AddInt32(&attempts, 1)
			return 0, netsuite.ErrRateLimited
		},
	})
	require.Equal(t, 0.0, values["hot"])
	require.ErrorIs(t, failures["hot"], netsuite.ErrRateLimited)
	// Initial attempt plus three retries, no more.
	require.Equal(t, int32(4), atomic.LoadInt32(&attempts))
}

func TestRunOneDoesNotRetryOtherErrors(t *testing.T) {
	o := NewOrchestrator(1, quietLogger()).WithBackoff(time.Millisecond)
	var attempts int32
	_, failures := o.RunParallel(context.Background(), map[string]TaskFunc{
		"bad": func(context.Context) (float64, error) {
			atomic.AddInt32(&attempts, 1)
			return 0, netsuite.ErrQueryFailed
		},
	})
	require.ErrorIs(t, failures["bad"], netsuite.ErrQueryFailed)
	require.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestRunOneStopsOnCancel(t *testing.T) {
	o := NewOrchestrator(1, quietLogger()).WithBackoff(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, failures := o.RunParallel(ctx, map[string]TaskFunc{
			"stuck": func(context.Context) (float64, error) { return 0, netsuite.ErrRateLimited },
		})
		require.ErrorIs(t, failures["stuck"], context.Canceled)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("cancel did not interrupt backoff")
	}
}
