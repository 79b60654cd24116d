package balance

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreAllOrNothing(t *testing.T) {
	s := newMemoryStore()
	ctx := context.Background()

	k1 := entryKey{Tier: tierBalance, Account: "4010", PeriodID: 411, Fingerprint: "fp"}
	k2 := entryKey{Tier: tierBalance, Account: "4020", PeriodID: 411, Fingerprint: "fp"}

	require.NoError(t, s.SetAll(ctx, map[entryKey]float64{k1: 100}, time.Minute))

	got, all, err := s.GetAll(ctx, []entryKey{k1, k2})
	require.NoError(t, err)
	require.False(t, all)
	require.Equal(t, map[entryKey]float64{k1: 100}, got)

	require.NoError(t, s.SetAll(ctx, map[entryKey]float64{k2: 200}, time.Minute))
	got, all, err = s.GetAll(ctx, []entryKey{k1, k2})
	require.NoError(t, err)
	require.True(t, all)
	require.Len(t, got, 2)
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := newMemoryStore()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	k := entryKey{Tier: tierBalance, Account: "1100", PeriodID: 411, Fingerprint: "fp"}
	require.NoError(t, s.SetAll(ctx, map[entryKey]float64{k: 42}, 5*time.Minute))

	now = now.Add(4 * time.Minute)
	_, all, err := s.GetAll(ctx, []entryKey{k})
	require.NoError(t, err)
	require.True(t, all)

	now = now.Add(2 * time.Minute)
	got, all, err := s.GetAll(ctx, []entryKey{k})
	require.NoError(t, err)
	require.False(t, all)
	require.Empty(t, got)
}

func TestMemoryStoreClear(t *testing.T) {
	s := newMemoryStore()
	ctx := context.Background()
	k := entryKey{Tier: tierActivity, Account: "4010", PeriodID: 411, Fingerprint: "fp"}
	require.NoError(t, s.SetAll(ctx, map[entryKey]float64{k: 1}, time.Minute))
	require.NoError(t, s.Clear(ctx))
	_, all, err := s.GetAll(ctx, []entryKey{k})
	require.NoError(t, err)
	require.False(t, all)
}

func TestRedisStoreRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	s := newRedisStore(client, "ledgerlens-test", time.Minute)
	ctx := context.Background()

	k1 := entryKey{Tier: tierBalance, Account: "4010", PeriodID: 411, Fingerprint: "fp"}
	k2 := entryKey{Tier: tierBalance, Account: "4020", PeriodID: 412, Fingerprint: "fp"}
	require.NoError(t, s.SetAll(ctx, map[entryKey]float64{k1: -12400000, k2: 3.25}, time.Minute))

	got, all, err := s.GetAll(ctx, []entryKey{k1, k2})
	require.NoError(t, err)
	require.True(t, all)
	require.Equal(t, -12400000.0, got[k1])
	require.Equal(t, 3.25, got[k2])

	// One absent key fails the batch even though the other is present.
	k3 := entryKey{Tier: tierBalance, Account: "4030", PeriodID: 411, Fingerprint: "fp"}
	got, all, err = s.GetAll(ctx, []entryKey{k1, k3})
	require.NoError(t, err)
	require.False(t, all)
	require.Len(t, got, 1)
}

func TestRedisStoreTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	s := newRedisStore(client, "ledgerlens-test", time.Minute)
	ctx := context.Background()

	k := entryKey{Tier: tierBalance, Account: "1100", PeriodID: 411, Fingerprint: "fp"}
	require.NoError(t, s.SetAll(ctx, map[entryKey]float64{k: 1}, 30*time.Second))

	mr.FastForward(time.Minute)
	_, all, err := s.GetAll(ctx, []entryKey{k})
	require.NoError(t, err)
	require.False(t, all)
}

func TestRedisStoreClear(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	s := newRedisStore(client, "ledgerlens-test", time.Minute)
	ctx := context.Background()

	k := entryKey{Tier: tierActivity, Account: "4010", PeriodID: 411, Fingerprint: "fp"}
	require.NoError(t, s.SetAll(ctx, map[entryKey]float64{k: 7}, time.Minute))
	require.NoError(t, client.Set(ctx, "other:app:key", "keep", 0).Err())

	require.NoError(t, s.Clear(ctx))

	_, all, err := s.GetAll(ctx, []entryKey{k})
	require.NoError(t, err)
	require.False(t, all)
	// Keys outside the prefix survive a clear.
	kept, err := mr.Get("other:app:key")
	require.NoError(t, err)
	require.Equal(t, "keep", kept)
}

func TestFingerprintScopeSensitivity(t *testing.T) {
	base := scope{SubsidiaryID: 3, Book: 1}
	require.Equal(t, fingerprint(base), fingerprint(scope{SubsidiaryID: 3, Book: 1}))

	variants := []scope{
		{SubsidiaryID: 4, Book: 1},
		{SubsidiaryID: 3, Book: 2},
		{SubsidiaryID: 3, Book: 1, Consolidated: true},
		{SubsidiaryID: 3, Book: 1, DepartmentID: 7},
		{SubsidiaryID: 3, Book: 1, LocationID: 7},
		{SubsidiaryID: 3, Book: 1, ClassID: 7},
		{SubsidiaryID: 3, Book: 1, Subsidiaries: []int64{3, 4}},
	}
	seen := map[string]bool{fingerprint(base): true}
	for _, sc := range variants {
		fp := fingerprint(sc)
		require.False(t, seen[fp], "collision for %+v", sc)
		seen[fp] = true
	}
}
