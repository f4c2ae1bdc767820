package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shaymcgreal/datatransformer/app/models"
)

// CacheService is the in-memory report cache used when no Redis or MongoDB
// is configured.
type CacheService struct {
	entries map[string]*models.ReportCache
	mu      sync.RWMutex
	ttl     time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

func NewCacheService(ttl time.Duration) *CacheService {
	return &CacheService{
		entries: make(map[string]*models.ReportCache),
		ttl:     ttl,
	}
}

func (cs *CacheService) Get(ctx context.Context, key string) (*models.ReportCache, bool, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	entry, ok := cs.entries[key]
	if !ok {
		cs.misses.Add(1)
		return nil, false, nil
	}
	if entry.IsExpired(cs.ttl) {
		delete(cs.entries, key)
		cs.misses.Add(1)
		return nil, false, nil
	}
	entry.UpdateAccess()
	cs.hits.Add(1)
	return entry, true, nil
}

func (cs *CacheService) Set(ctx context.Context, entry *models.ReportCache) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.entries[entry.Key] = entry
	return nil
}

func (cs *CacheService) Delete(ctx context.Context, key string) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	delete(cs.entries, key)
	return nil
}

func (cs *CacheService) Clear(ctx context.Context) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.entries = make(map[string]*models.ReportCache)
	return nil
}

func (cs *CacheService) InvalidateByConfig(ctx context.Context, profile, current string) (int64, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	var removed int64
	for key, entry := range cs.entries {
		if entry.Profile == profile && entry.ConfigPrint != current {
			delete(cs.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Size counts stored entries, expired ones included.
func (cs *CacheService) Size() int {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return len(cs.entries)
}

func (cs *CacheService) GetStats(ctx context.Context) (*CacheStats, error) {
	hits, misses := cs.hits.Load(), cs.misses.Load()
	return &CacheStats{
		HitRate:    hitRate(hits, misses),
		TotalHits:  hits,
		TotalMiss:  misses,
		TotalItems: int64(cs.Size()),
	}, nil
}

// CleanupExpired removes expired entries.
func (cs *CacheService) CleanupExpired() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	removed := 0
	for key, entry := range cs.entries {
		if entry.IsExpired(cs.ttl) {
			delete(cs.entries, key)
			removed++
		}
	}
	return removed
}

func (cs *CacheService) Exists(ctx context.Context, key string) (bool, error) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	entry, ok := cs.entries[key]
	return ok && !entry.IsExpired(cs.ttl), nil
}

func (cs *CacheService) GetTTL(ctx context.Context, key string) (time.Duration, error) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	entry, ok := cs.entries[key]
	if !ok || cs.ttl <= 0 {
		return 0, nil
	}
	return max(cs.ttl-time.Since(entry.CreatedAt), 0), nil
}

// StartCleanupWorker runs CleanupExpired every interval until ctx ends.
func (cs *CacheService) StartCleanupWorker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cs.CleanupExpired()
			}
		}
	}()
}

func (cs *CacheService) Close() error {
	return nil
}
