package balance

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lookup kinds for the name→id tier.
const (
	LookupSubsidiary     = "subsidiary"
	LookupDepartment     = "department"
	LookupLocation       = "location"
	LookupClass          = "class"
	LookupBudgetCategory = "budgetcategory"
)

type periodKey struct {
	Name string
	Book int64
}

type titleEntry struct {
	title string
	found bool
}

// Cache is the process-wide cache service. Five tiers with independent
// policies: name→id lookups, balances (TTL), balance-sheet activity (TTL),
// period/fiscal-year boundaries, and account titles (write-through with
// negative caching). Only this type mutates cache state.
type Cache struct {
	values   valueStore
	ttl      time.Duration
	observer func(tier string, hit bool)

	mu      sync.RWMutex
	lookups map[string]map[string]int64
	periods map[periodKey]Period
	titles  map[string]titleEntry
}

// NewCache builds a cache over the given value store. A nil store falls back
// to the in-process default.
func NewCache(store valueStore, ttl time.Duration) *Cache {
	if store == nil {
		store = newMemoryStore()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{
		values:  store,
		ttl:     ttl,
		lookups: make(map[string]map[string]int64),
		periods: make(map[periodKey]Period),
		titles:  make(map[string]titleEntry),
	}
}

// NewRedisCache builds a cache whose TTL tiers live in Redis so multiple
// processes share computed balances.
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return NewCache(newRedisStore(client, prefix, ttl), ttl)
}

// SetObserver installs a hit/miss observer for the TTL tiers. Not safe to
// call once the cache is in use.
func (c *Cache) SetObserver(fn func(tier string, hit bool)) {
	c.observer = fn
}

func (c *Cache) observe(tier string, hit bool) {
	if c.observer != nil {
		c.observer(tier, hit)
	}
}

// --- tier 1: lookups -------------------------------------------------------

// SetLookups bulk-populates one lookup kind. Keys are stored folded; callers
// pass every display variant (trimmed punctuation, hierarchy path) that
// should resolve to the same id.
func (c *Cache) SetLookups(kind string, entries map[string]int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.lookups[kind]
	if m == nil {
		m = make(map[string]int64, len(entries))
		c.lookups[kind] = m
	}
	for name, id := range entries {
		m[foldName(name)] = id
	}
}

// Lookup resolves a name to an id. A miss returns false and means the caller
// must ignore the filter, not fail.
func (c *Cache) Lookup(kind, name string) (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.lookups[kind][foldName(name)]
	return id, ok
}

// LookupCount reports the number of entries warmed for a kind.
func (c *Cache) LookupCount(kind string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.lookups[kind])
}

// LookupEntries returns a copy of every warmed entry for a kind, keyed by
// the folded name.
func (c *Cache) LookupEntries(kind string) map[string]int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]int64, len(c.lookups[kind]))
	for name, id := range c.lookups[kind] {
		out[name] = id
	}
	return out
}

func foldName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// --- tiers 2 and 3: balances and activity ----------------------------------

// Balances returns cached balances for every account×period pair under the
// fingerprint. The second result is true only when all requested keys are
// present; a single miss means the whole batch must be recomputed, partial
// hits are never assembled into a response.
func (c *Cache) Balances(ctx context.Context, accounts []string, periodIDs []int64, fp string) (map[string]map[int64]float64, bool, error) {
	return c.tierGet(ctx, tierBalance, accounts, periodIDs, fp)
}

// StoreBalances writes a batch of computed balances atomically.
func (c *Cache) StoreBalances(ctx context.Context, values map[string]map[int64]float64, fp string) error {
	return c.tierSet(ctx, tierBalance, values, fp)
}

// Activity returns cached per-period activity amounts.
func (c *Cache) Activity(ctx context.Context, accounts []string, periodIDs []int64, fp string) (map[string]map[int64]float64, bool, error) {
	return c.tierGet(ctx, tierActivity, accounts, periodIDs, fp)
}

// StoreActivity writes a batch of period activity atomically.
func (c *Cache) StoreActivity(ctx context.Context, values map[string]map[int64]float64, fp string) error {
	return c.tierSet(ctx, tierActivity, values, fp)
}

func (c *Cache) tierGet(ctx context.Context, tier string, accounts []string, periodIDs []int64, fp string) (map[string]map[int64]float64, bool, error) {
	keys := make([]entryKey, 0, len(accounts)*len(periodIDs))
	for _, acct := range accounts {
		for _, pid := range periodIDs {
			keys = append(keys, entryKey{Tier: tier, Account: acct, PeriodID: pid, Fingerprint: fp})
		}
	}
	found, all, err := c.values.GetAll(ctx, keys)
	if err != nil {
		return nil, false, err
	}
	if len(keys) > 0 {
		c.observe(tier, all)
	}
	out := make(map[string]map[int64]float64, len(accounts))
	for k, v := range found {
		m := out[k.Account]
		if m == nil {
			m = make(map[int64]float64)
			out[k.Account] = m
		}
		m[k.PeriodID] = v
	}
	return out, all, nil
}

func (c *Cache) tierSet(ctx context.Context, tier string, values map[string]map[int64]float64, fp string) error {
	batch := make(map[entryKey]float64)
	for acct, periods := range values {
		for pid, v := range periods {
			batch[entryKey{Tier: tier, Account: acct, PeriodID: pid, Fingerprint: fp}] = v
		}
	}
	return c.values.SetAll(ctx, batch, c.ttl)
}

// --- tier 4: periods -------------------------------------------------------

// Period returns a resolved period for the name/book pair.
func (c *Cache) Period(name string, book int64) (Period, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.periods[periodKey{Name: foldName(name), Book: book}]
	return p, ok
}

// SetPeriod caches a resolved period for the process lifetime.
func (c *Cache) SetPeriod(name string, book int64, p Period) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.periods[periodKey{Name: foldName(name), Book: book}] = p
}

// --- tier 5: account titles ------------------------------------------------

// Title returns a cached account title. ok distinguishes "never looked up"
// from a cached negative: found=false with ok=true means the account is
// known to not exist and no refetch should occur.
func (c *Cache) Title(number string) (title string, found, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.titles[number]
	return e.title, e.found, ok
}

// SetTitle write-through caches a title; found=false records a negative
// result.
func (c *Cache) SetTitle(number, title string, found bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.titles[number] = titleEntry{title: title, found: found}
}

// --- lifecycle -------------------------------------------------------------

// Clear drops every tier. Used by the cache-clear endpoint and tests.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.lookups = make(map[string]map[string]int64)
	c.periods = make(map[periodKey]Period)
	c.titles = make(map[string]titleEntry)
	c.mu.Unlock()
	return c.values.Clear(ctx)
}
