package balance

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"
)

const subsidiaryQuery = `SELECT id, name, parent, iselimination, isinactive, currency FROM subsidiary WHERE isinactive = 'F' ORDER BY id`

// Resolver computes the consolidation scope for a target subsidiary: the
// target plus every active descendant, or the full entity set when the
// target is the hierarchy root.
type Resolver struct {
	ledger Ledger
	logger *slog.Logger

	loading singleflight.Group

	mu   sync.RWMutex
	subs []Subsidiary
	memo map[int64][]int64
}

// NewResolver constructs a resolver over the ledger client.
func NewResolver(ledger Ledger, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{ledger: ledger, logger: logger, memo: make(map[int64][]int64)}
}

// Subsidiaries returns the active subsidiary list, fetching it on first use.
// Concurrent callers share a single fetch.
func (r *Resolver) Subsidiaries(ctx context.Context) ([]Subsidiary, error) {
	r.mu.RLock()
	cached := r.subs
	r.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	v, err, _ := r.loading.Do("subsidiaries", func() (any, error) {
		rows, err := r.ledger.RunAll(ctx, subsidiaryQuery)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrHierarchyUnresolved, err)
		}
		subs := make([]Subsidiary, 0, len(rows))
		for _, row := range rows {
			subs = append(subs, Subsidiary{
				ID:          row.Int64("id"),
				Name:        row.Str("name"),
				ParentID:    row.Int64("parent"),
				Elimination: row.Str("iselimination") == "T",
				Active:      row.Str("isinactive") != "T",
				Currency:    row.Str("currency"),
			})
		}
		r.mu.Lock()
		r.subs = subs
		r.mu.Unlock()
		return subs, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Subsidiary), nil
}

// Resolve returns the ordered set of subsidiary ids that a consolidated view
// of the target must include. The root target includes every active entity,
// elimination entities too, because intercompany eliminations post there.
// A failed fetch degrades to the target alone; failures are not memoized so
// a later call can recover.
func (r *Resolver) Resolve(ctx context.Context, subsidiaryID int64) []int64 {
	r.mu.RLock()
	memoized, ok := r.memo[subsidiaryID]
	r.mu.RUnlock()
	if ok {
		return memoized
	}

	subs, err := r.Subsidiaries(ctx)
	if err != nil {
		r.logger.Warn("hierarchy fetch failed, degrading to single entity",
			slog.Int64("subsidiary", subsidiaryID),
			slog.Any("error", err))
		return []int64{subsidiaryID}
	}

	byID := make(map[int64]Subsidiary, len(subs))
	children := make(map[int64][]int64)
	for _, s := range subs {
		byID[s.ID] = s
		if s.ParentID != 0 {
			children[s.ParentID] = append(children[s.ParentID], s.ID)
		}
	}

	var scope []int64
	if target, known := byID[subsidiaryID]; known && target.ParentID == 0 {
		for _, s := range subs {
			scope = append(scope, s.ID)
		}
	} else {
		seen := map[int64]bool{subsidiaryID: true}
		queue := []int64{subsidiaryID}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			scope = append(scope, cur)
			for _, child := range children[cur] {
				if !seen[child] {
					seen[child] = true
					queue = append(queue, child)
				}
			}
		}
	}
	sort.Slice(scope, func(i, j int) bool { return scope[i] < scope[j] })

	r.mu.Lock()
	r.memo[subsidiaryID] = scope
	r.mu.Unlock()
	return scope
}

// Root returns the root subsidiary when the hierarchy is loaded.
func (r *Resolver) Root(ctx context.Context) (Subsidiary, bool) {
	subs, err := r.Subsidiaries(ctx)
	if err != nil {
		return Subsidiary{}, false
	}
	for _, s := range subs {
		if s.ParentID == 0 {
			return s, true
		}
	}
	return Subsidiary{}, false
}
