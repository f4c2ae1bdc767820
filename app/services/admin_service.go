package services

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"
)

// AdminService exposes operational views over a CheckService.
type AdminService struct {
	checks *CheckService
	logger *zap.Logger
}

// SystemStats is the admin stats payload.
type SystemStats struct {
	Uptime      string                 `json:"uptime"`
	Goroutines  int                    `json:"goroutines"`
	MemoryUsage map[string]interface{} `json:"memory_usage"`
	Cache       *CacheStats            `json:"cache,omitempty"`
	CacheTiers  map[string]interface{} `json:"cache_tiers,omitempty"`
	Service     map[string]interface{} `json:"service"`
}

func NewAdminService(checks *CheckService, logger *zap.Logger) *AdminService {
	return &AdminService{checks: checks, logger: logger}
}

// GetSystemStats gathers runtime, cache and service counters. A failing
// cache only omits its section.
func (as *AdminService) GetSystemStats(ctx context.Context) *SystemStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	stats := &SystemStats{
		Uptime:     time.Since(as.checks.GetStartTime()).Round(time.Second).String(),
		Goroutines: runtime.NumGoroutine(),
		MemoryUsage: map[string]interface{}{
			"alloc_mb":       bToMb(m.Alloc),
			"total_alloc_mb": bToMb(m.TotalAlloc),
			"sys_mb":         bToMb(m.Sys),
			"num_gc":         m.NumGC,
		},
		Service:    as.checks.GetStats(),
		CacheTiers: as.checks.TierStats(),
	}
	cache, err := as.checks.CacheStats(ctx)
	if err != nil {
		as.logger.Warn("Cannot read cache stats", zap.Error(err))
	} else {
		stats.Cache = cache
	}
	return stats
}

// InvalidateCache drops stale reports for one profile, or for every
// profile when profile is empty.
func (as *AdminService) InvalidateCache(ctx context.Context, profile string) (map[string]int64, error) {
	profiles := []string{profile}
	if profile == "" {
		profiles = as.checks.Profiles()
	}
	removed := make(map[string]int64, len(profiles))
	for _, name := range profiles {
		n, err := as.checks.InvalidateCache(ctx, name)
		if err != nil {
			return removed, fmt.Errorf("invalidate %s: %w", name, err)
		}
		removed[name] = n
	}
	as.logger.Info("Cache invalidated", zap.Any("removed", removed))
	return removed, nil
}

func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}
