package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shaymcgreal/datatransformer/app/models"
)

func entry(key, profile, print string) *models.ReportCache {
	return models.NewReportCache(key, print, models.Report{Profile: profile, Header: []string{"Id"}})
}

func TestCacheService_GetSet(t *testing.T) {
	ctx := context.Background()
	cs := NewCacheService(time.Hour)

	_, ok, err := cs.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cs.Set(ctx, entry("k1", "contact", "aaaa")))
	got, ok, err := cs.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "contact", got.Report.Profile)
	assert.Equal(t, 2, got.AccessCount)

	stats, err := cs.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalHits)
	assert.Equal(t, int64(1), stats.TotalMiss)
	assert.InDelta(t, 0.5, stats.HitRate, 1e-9)

	require.NoError(t, cs.Delete(ctx, "k1"))
	ok, _ = cs.Exists(ctx, "k1")
	assert.False(t, ok)
}

func TestCacheService_Expiry(t *testing.T) {
	ctx := context.Background()
	cs := NewCacheService(time.Minute)
	e := entry("old", "contact", "aaaa")
	e.CreatedAt = time.Now().Add(-2 * time.Minute)
	require.NoError(t, cs.Set(ctx, e))
	require.NoError(t, cs.Set(ctx, entry("new", "contact", "aaaa")))

	ok, _ := cs.Exists(ctx, "old")
	assert.False(t, ok)
	ttl, _ := cs.GetTTL(ctx, "new")
	assert.Greater(t, ttl, 50*time.Second)

	assert.Equal(t, 1, cs.CleanupExpired())
	assert.Equal(t, 1, cs.Size())
}

func TestCacheService_InvalidateByConfig(t *testing.T) {
	ctx := context.Background()
	cs := NewCacheService(0)
	require.NoError(t, cs.Set(ctx, entry("a", "contact", "old")))
	require.NoError(t, cs.Set(ctx, entry("b", "contact", "new")))
	require.NoError(t, cs.Set(ctx, entry("c", "account", "old")))

	n, err := cs.InvalidateByConfig(ctx, "contact", "new")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	for key, want := range map[string]bool{"a": false, "b": true, "c": true} {
		ok, _ := cs.Exists(ctx, key)
		assert.Equal(t, want, ok, key)
	}
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "contact:abcd:ff00", CacheKey("contact", "abcd", "ff00"))
}

func TestHybridCacheService(t *testing.T) {
	ctx := context.Background()
	fast, durable := NewCacheService(0), NewCacheService(0)
	h := NewHybridCacheService(fast, durable, zap.NewNop())

	require.NoError(t, h.Set(ctx, entry("k", "contact", "p1")))
	assert.Equal(t, 1, fast.Size())
	assert.Equal(t, 1, durable.Size())

	require.NoError(t, fast.Clear(ctx))
	got, ok, err := h.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "k", got.Key)
	assert.Eventually(t, func() bool { return fast.Size() == 1 }, time.Second, 10*time.Millisecond)

	n, err := h.InvalidateByConfig(ctx, "contact", "p2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	ok, _ = h.Exists(ctx, "k")
	assert.False(t, ok)

	runs, err := h.RecentRuns(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, runs)
	require.NoError(t, h.Close())
}
