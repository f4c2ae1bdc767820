package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shaymcgreal/datatransformer/app/models"
)

const redisPrefix = "dq_report:"

// RedisCacheService keeps reports in Redis as JSON with a fixed TTL.
type RedisCacheService struct {
	client *redis.Client
	logger *zap.Logger
	prefix string
	ttl    time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

func NewRedisCacheService(redisURL string, logger *zap.Logger) (*RedisCacheService, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cannot connect to redis: %w", err)
	}

	return &RedisCacheService{
		client: client,
		logger: logger,
		prefix: redisPrefix,
		ttl:    24 * time.Hour,
	}, nil
}

func (rcs *RedisCacheService) Get(ctx context.Context, key string) (*models.ReportCache, bool, error) {
	val, err := rcs.client.Get(ctx, rcs.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		rcs.misses.Add(1)
		return nil, false, nil
	}
	if err != nil {
		rcs.logger.Error("Redis get failed", zap.Error(err), zap.String("key", key))
		return nil, false, err
	}

	var entry models.ReportCache
	if err := json.Unmarshal(val, &entry); err != nil {
		return nil, false, fmt.Errorf("decode cached report: %w", err)
	}
	rcs.hits.Add(1)
	rcs.logger.Debug("Redis cache hit", zap.String("key", key))
	return &entry, true, nil
}

func (rcs *RedisCacheService) Set(ctx context.Context, entry *models.ReportCache) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := rcs.client.Set(ctx, rcs.prefix+entry.Key, data, rcs.ttl).Err(); err != nil {
		rcs.logger.Error("Redis set failed", zap.Error(err), zap.String("key", entry.Key))
		return err
	}
	rcs.logger.Debug("Stored report in Redis", zap.String("key", entry.Key), zap.Int("bytes", len(data)))
	return nil
}

func (rcs *RedisCacheService) Delete(ctx context.Context, key string) error {
	return rcs.client.Del(ctx, rcs.prefix+key).Err()
}

// scan walks keys matching pattern with SCAN rather than KEYS so a large
// keyspace does not block the server.
func (rcs *RedisCacheService) scan(ctx context.Context, pattern string, fn func(key string)) error {
	iter := rcs.client.Scan(ctx, 0, pattern, 200).Iterator()
	for iter.Next(ctx) {
		fn(iter.Val())
	}
	return iter.Err()
}

func (rcs *RedisCacheService) deleteKeys(ctx context.Context, keys []string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	return rcs.client.Del(ctx, keys...).Result()
}

func (rcs *RedisCacheService) Clear(ctx context.Context) error {
	var keys []string
	if err := rcs.scan(ctx, rcs.prefix+"*", func(k string) { keys = append(keys, k) }); err != nil {
		return fmt.Errorf("scan keys: %w", err)
	}
	n, err := rcs.deleteKeys(ctx, keys)
	if err != nil {
		return fmt.Errorf("delete keys: %w", err)
	}
	rcs.logger.Info("Cleared Redis cache", zap.Int64("keys_deleted", n))
	return nil
}

func (rcs *RedisCacheService) InvalidateByConfig(ctx context.Context, profile, current string) (int64, error) {
	var stale []string
	err := rcs.scan(ctx, rcs.prefix+profile+":*", func(k string) {
		parts := strings.SplitN(strings.TrimPrefix(k, rcs.prefix), ":", 3)
		if len(parts) == 3 && parts[0] == profile && parts[1] != current {
			stale = append(stale, k)
		}
	})
	if err != nil {
		return 0, fmt.Errorf("scan keys: %w", err)
	}
	n, err := rcs.deleteKeys(ctx, stale)
	if err != nil {
		return 0, fmt.Errorf("delete keys: %w", err)
	}
	rcs.logger.Info("Invalidated Redis cache",
		zap.String("profile", profile),
		zap.String("config_fingerprint", current),
		zap.Int64("deleted_count", n))
	return n, nil
}

func (rcs *RedisCacheService) GetStats(ctx context.Context) (*CacheStats, error) {
	var items int64
	if err := rcs.scan(ctx, rcs.prefix+"*", func(string) { items++ }); err != nil {
		rcs.logger.Warn("Cannot count Redis keys", zap.Error(err))
	}
	hits, misses := rcs.hits.Load(), rcs.misses.Load()
	return &CacheStats{
		HitRate:    hitRate(hits, misses),
		TotalHits:  hits,
		TotalMiss:  misses,
		TotalItems: items,
	}, nil
}

func (rcs *RedisCacheService) Exists(ctx context.Context, key string) (bool, error) {
	n, err := rcs.client.Exists(ctx, rcs.prefix+key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (rcs *RedisCacheService) GetTTL(ctx context.Context, key string) (time.Duration, error) {
	return rcs.client.TTL(ctx, rcs.prefix+key).Result()
}

func (rcs *RedisCacheService) Close() error {
	return rcs.client.Close()
}

// SetTTL changes the expiry applied to later Sets.
func (rcs *RedisCacheService) SetTTL(ttl time.Duration) {
	rcs.ttl = ttl
}
