package balance

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache tiers sharing the TTL'd value store.
const (
	tierBalance  = "balance"
	tierActivity = "activity"
)

// entryKey is the composite key for cached numeric values. Equality derives
// from the fields, so a filter value containing a separator character cannot
// collide with another key.
type entryKey struct {
	Tier        string
	Account     string
	PeriodID    int64
	Fingerprint string
}

func (k entryKey) redisKey(prefix string) string {
	return strings.Join([]string{prefix, k.Tier, k.Account, strconv.FormatInt(k.PeriodID, 10), k.Fingerprint}, ":")
}

// valueStore backs the balance and activity cache tiers. SetAll writes a
// batch atomically: a reader never observes some keys of a batch without the
// rest appearing in the same write.
type valueStore interface {
	// GetAll returns the present, unexpired values. The bool reports whether
	// every requested key was present.
	GetAll(ctx context.Context, keys []entryKey) (map[entryKey]float64, bool, error)
	SetAll(ctx context.Context, values map[entryKey]float64, ttl time.Duration) error
	Clear(ctx context.Context) error
}

type memoryEntry struct {
	value     float64
	expiresAt time.Time
}

// memoryStore is the default in-process store. Expiry is checked at read
// time; steady-state writes only append or overwrite.
type memoryStore struct {
	mu      sync.RWMutex
	entries map[entryKey]memoryEntry
	now     func() time.Time
}

func newMemoryStore() *memoryStore {
	return &memoryStore{entries: make(map[entryKey]memoryEntry), now: time.Now}
}

func (s *memoryStore) GetAll(_ context.Context, keys []entryKey) (map[entryKey]float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[entryKey]float64, len(keys))
	all := true
	now := s.now()
	for _, k := range keys {
		e, ok := s.entries[k]
		if !ok || now.After(e.expiresAt) {
			all = false
			continue
		}
		out[k] = e.value
	}
	return out, all, nil
}

func (s *memoryStore) SetAll(_ context.Context, values map[entryKey]float64, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	expires := s.now().Add(ttl)
	for k, v := range values {
		s.entries[k] = memoryEntry{value: v, expiresAt: expires}
	}
	return nil
}

func (s *memoryStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[entryKey]memoryEntry)
	return nil
}

// redisStore backs the TTL tiers with Redis for multi-process deployments.
// Batch writes go through MULTI/EXEC so the all-keys-present read rule holds
// across processes.
type redisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func newRedisStore(client *redis.Client, prefix string, ttl time.Duration) *redisStore {
	if prefix == "" {
		prefix = "ledgerlens"
	}
	return &redisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *redisStore) GetAll(ctx context.Context, keys []entryKey) (map[entryKey]float64, bool, error) {
	if len(keys) == 0 {
		return map[entryKey]float64{}, true, nil
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.redisKey(s.prefix)
	}
	raw, err := s.client.MGet(ctx, names...).Result()
	if err != nil {
		return nil, false, fmt.Errorf("balance: cache read: %w", err)
	}
	out := make(map[entryKey]float64, len(keys))
	all := true
	for i, v := range raw {
		str, ok := v.(string)
		if !ok {
			all = false
			continue
		}
		f, err := strconv.ParseFloat(str, 64)
		if err != nil {
			all = false
			continue
		}
		out[keys[i]] = f
	}
	return out, all, nil
}

func (s *redisStore) SetAll(ctx context.Context, values map[entryKey]float64, ttl time.Duration) error {
	if len(values) == 0 {
		return nil
	}
	if ttl <= 0 {
		ttl = s.ttl
	}
	pipe := s.client.TxPipeline()
	for k, v := range values {
		pipe.Set(ctx, k.redisKey(s.prefix), strconv.FormatFloat(v, 'f', -1, 64), ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("balance: cache write: %w", err)
	}
	return nil
}

func (s *redisStore) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+":*", 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("balance: cache clear: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("balance: cache clear: %w", err)
	}
	return nil
}

// Fingerprint digests the resolved filter scope. Two requests share cache
// entries only when every scope field matches.
func fingerprint(sc scope) string {
	var b strings.Builder
	fmt.Fprintf(&b, "sub=%d;cons=%t;dep=%d;loc=%d;cls=%d;book=%d;subs=", sc.SubsidiaryID, sc.Consolidated, sc.DepartmentID, sc.LocationID, sc.ClassID, sc.Book)
	for _, id := range sc.Subsidiaries {
		fmt.Fprintf(&b, "%d,", id)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:12])
}
