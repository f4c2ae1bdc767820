package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shaymcgreal/datatransformer/app/models"
)

// CacheStats summarises cache effectiveness.
type CacheStats struct {
	HitRate    float64 `json:"hit_rate"`
	TotalHits  int64   `json:"total_hits"`
	TotalMiss  int64   `json:"total_miss"`
	TotalItems int64   `json:"total_items"`
}

// ICacheService stores finished reports. Entries carry the profile and
// configuration fingerprint they were produced under.
type ICacheService interface {
	Get(ctx context.Context, key string) (*models.ReportCache, bool, error)
	Set(ctx context.Context, entry *models.ReportCache) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error

	// InvalidateByConfig drops entries of profile whose fingerprint is not
	// current and returns how many were removed.
	InvalidateByConfig(ctx context.Context, profile, current string) (int64, error)

	GetStats(ctx context.Context) (*CacheStats, error)
	Exists(ctx context.Context, key string) (bool, error)
	GetTTL(ctx context.Context, key string) (time.Duration, error)
	Close() error
}

// TierStatsReporter is implemented by caches with an in-process tier.
type TierStatsReporter interface {
	GetL1Stats() map[string]interface{}
}

// CacheKey identifies a report: the same input checked under the same
// profile configuration yields the same key.
func CacheKey(profile, configPrint, inputHash string) string {
	return fmt.Sprintf("%s:%s:%s", profile, configPrint, inputHash)
}

func hitRate(hits, misses int64) float64 {
	if total := hits + misses; total > 0 {
		return float64(hits) / float64(total)
	}
	return 0
}
