package netsuite

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// gate is the admission control in front of every outbound call: a counting
// semaphore sized one below the upstream concurrency ceiling, plus a minimum
// inter-request interval enforced under a single mutex. Waiters holding the
// mutex serialise the pacing; the permit is released on every exit path.
type gate struct {
	permits  *semaphore.Weighted
	interval time.Duration

	mu   sync.Mutex
	last time.Time
}

func newGate(ceiling int, interval time.Duration) *gate {
	n := int64(ceiling - 1)
	if n < 1 {
		n = 1
	}
	return &gate{permits: semaphore.NewWeighted(n), interval: interval}
}

func (g *gate) acquire(ctx context.Context) error {
	if err := g.permits.Acquire(ctx, 1); err != nil {
		return err
	}
	if g.interval <= 0 {
		return nil
	}
	g.mu.Lock()
	if wait := g.interval - time.Since(g.last); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			g.mu.Unlock()
			g.permits.Release(1)
			return ctx.Err()
		case <-timer.C:
		}
	}
	g.last = time.Now()
	g.mu.Unlock()
	return nil
}

func (g *gate) release() {
	g.permits.Release(1)
}
