package services

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shaymcgreal/datatransformer/app/models"
)

// HybridCacheService reads through a fast tier (Redis) to a durable tier
// (MongoDB) and writes to both.
type HybridCacheService struct {
	fast    ICacheService
	durable ICacheService
	logger  *zap.Logger
}

func NewHybridCacheService(fast, durable ICacheService, logger *zap.Logger) *HybridCacheService {
	return &HybridCacheService{fast: fast, durable: durable, logger: logger}
}

// Get falls back to the durable tier when the fast tier misses or fails,
// and copies durable hits back up in the background.
func (hcs *HybridCacheService) Get(ctx context.Context, key string) (*models.ReportCache, bool, error) {
	entry, found, err := hcs.fast.Get(ctx, key)
	if err != nil {
		hcs.logger.Warn("Fast cache failed, falling back", zap.Error(err))
	} else if found {
		return entry, true, nil
	}

	entry, found, err = hcs.durable.Get(ctx, key)
	if err != nil || !found {
		return nil, false, err
	}

	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := hcs.fast.Set(bgCtx, entry); err != nil {
			hcs.logger.Warn("Cannot promote cached report", zap.Error(err), zap.String("key", key))
		}
	}()
	return entry, true, nil
}

// both runs fn against each tier concurrently and returns the first error.
func (hcs *HybridCacheService) both(ctx context.Context, fn func(ctx context.Context, c ICacheService) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range []ICacheService{hcs.fast, hcs.durable} {
		c := c
		g.Go(func() error { return fn(gctx, c) })
	}
	return g.Wait()
}

func (hcs *HybridCacheService) Set(ctx context.Context, entry *models.ReportCache) error {
	return hcs.both(ctx, func(ctx context.Context, c ICacheService) error { return c.Set(ctx, entry) })
}

func (hcs *HybridCacheService) Delete(ctx context.Context, key string) error {
	return hcs.both(ctx, func(ctx context.Context, c ICacheService) error { return c.Delete(ctx, key) })
}

func (hcs *HybridCacheService) Clear(ctx context.Context) error {
	if err := hcs.both(ctx, func(ctx context.Context, c ICacheService) error { return c.Clear(ctx) }); err != nil {
		return err
	}
	hcs.logger.Info("Cleared hybrid cache")
	return nil
}

// InvalidateByConfig reports the durable tier's count.
func (hcs *HybridCacheService) InvalidateByConfig(ctx context.Context, profile, current string) (int64, error) {
	var removed int64
	err := hcs.both(ctx, func(ctx context.Context, c ICacheService) error {
		n, err := c.InvalidateByConfig(ctx, profile, current)
		if c == hcs.durable {
			removed = n
		}
		return err
	})
	return removed, err
}

func (hcs *HybridCacheService) GetStats(ctx context.Context) (*CacheStats, error) {
	fastStats, fastErr := hcs.fast.GetStats(ctx)
	durableStats, durableErr := hcs.durable.GetStats(ctx)
	switch {
	case fastErr != nil && durableErr != nil:
		return nil, durableErr
	case fastErr != nil:
		return durableStats, nil
	case durableErr != nil:
		return fastStats, nil
	}

	// a fast miss is only a real miss if the durable tier also missed
	hits := fastStats.TotalHits + durableStats.TotalHits
	misses := durableStats.TotalMiss
	return &CacheStats{
		HitRate:    hitRate(hits, misses),
		TotalHits:  hits,
		TotalMiss:  misses,
		TotalItems: durableStats.TotalItems,
	}, nil
}

func (hcs *HybridCacheService) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := hcs.fast.Exists(ctx, key)
	if err != nil {
		hcs.logger.Warn("Fast cache exists check failed", zap.Error(err))
	} else if ok {
		return true, nil
	}
	return hcs.durable.Exists(ctx, key)
}

func (hcs *HybridCacheService) GetTTL(ctx context.Context, key string) (time.Duration, error) {
	return hcs.fast.GetTTL(ctx, key)
}

func (hcs *HybridCacheService) Close() error {
	return hcs.both(context.Background(), func(_ context.Context, c ICacheService) error { return c.Close() })
}

// GetL1Stats reports the durable tier's in-process stats, or nil.
func (hcs *HybridCacheService) GetL1Stats() map[string]interface{} {
	if tr, ok := hcs.durable.(TierStatsReporter); ok {
		return tr.GetL1Stats()
	}
	return nil
}

// RecordRun forwards to the durable tier when it keeps history.
func (hcs *HybridCacheService) RecordRun(ctx context.Context, run *models.RunRecord) error {
	if rr, ok := hcs.durable.(RunRecorder); ok {
		return rr.RecordRun(ctx, run)
	}
	return nil
}

func (hcs *HybridCacheService) RecentRuns(ctx context.Context, limit int) ([]models.RunRecord, error) {
	if rr, ok := hcs.durable.(RunRecorder); ok {
		return rr.RecentRuns(ctx, limit)
	}
	return nil, nil
}
