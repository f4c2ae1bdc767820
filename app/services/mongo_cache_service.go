package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/shaymcgreal/datatransformer/app/models"
)

const (
	reportCacheCollection = "report_cache"
	runsCollection        = "runs"
)

// MongoCacheService persists reports in MongoDB behind an in-process LRU.
// It also keeps the run history.
type MongoCacheService struct {
	collection *mongo.Collection
	runs       *mongo.Collection
	l1Cache    *lru.Cache[string, *models.ReportCache]
	ttl        time.Duration
	logger     *zap.Logger

	l1Hits    atomic.Int64
	mongoHits atomic.Int64
	misses    atomic.Int64
}

// NewMongoCacheService creates the collections' indexes. A positive ttl
// adds a TTL index on created_at.
func NewMongoCacheService(db *mongo.Database, l1Size int, ttl time.Duration, logger *zap.Logger) (*MongoCacheService, error) {
	l1Cache, err := lru.New[string, *models.ReportCache](l1Size)
	if err != nil {
		return nil, fmt.Errorf("create lru cache: %w", err)
	}

	collection := db.Collection(reportCacheCollection)
	runs := db.Collection(runsCollection)

	createdAt := options.Index()
	if ttl > 0 {
		createdAt.SetExpireAfterSeconds(int32(ttl.Seconds()))
	}
	indexModels := []mongo.IndexModel{
		{Keys: bson.D{{Key: "key", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "profile", Value: 1}, {Key: "config_fingerprint", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: 1}}, Options: createdAt},
		{Keys: bson.D{{Key: "access_count", Value: -1}}},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := collection.Indexes().CreateMany(ctx, indexModels); err != nil {
		logger.Warn("Cannot create report_cache indexes", zap.Error(err))
	}
	if _, err := runs.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "created_at", Value: -1}}}); err != nil {
		logger.Warn("Cannot create runs index", zap.Error(err))
	}

	return &MongoCacheService{
		collection: collection,
		runs:       runs,
		l1Cache:    l1Cache,
		ttl:        ttl,
		logger:     logger,
	}, nil
}

// Get checks the LRU, then MongoDB.
func (mcs *MongoCacheService) Get(ctx context.Context, key string) (*models.ReportCache, bool, error) {
	if entry, ok := mcs.l1Cache.Get(key); ok && !entry.IsExpired(mcs.ttl) {
		mcs.l1Hits.Add(1)
		return entry, true, nil
	}

	var entry models.ReportCache
	err := mcs.collection.FindOne(ctx, bson.M{"key": key}).Decode(&entry)
	if errors.Is(err, mongo.ErrNoDocuments) {
		mcs.misses.Add(1)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query report cache: %w", err)
	}
	// the TTL monitor runs about once a minute
	if entry.IsExpired(mcs.ttl) {
		mcs.misses.Add(1)
		return nil, false, nil
	}
	mcs.mongoHits.Add(1)

	go mcs.updateAccessStats(entry.ID)
	mcs.l1Cache.Add(key, &entry)
	mcs.logger.Debug("MongoDB cache hit", zap.String("key", key))
	return &entry, true, nil
}

func (mcs *MongoCacheService) Set(ctx context.Context, entry *models.ReportCache) error {
	mcs.l1Cache.Add(entry.Key, entry)

	opts := options.Replace().SetUpsert(true)
	if _, err := mcs.collection.ReplaceOne(ctx, bson.M{"key": entry.Key}, entry, opts); err != nil {
		mcs.logger.Error("Cannot store report", zap.Error(err), zap.String("key", entry.Key))
		return fmt.Errorf("store report: %w", err)
	}
	mcs.logger.Debug("Stored report in MongoDB", zap.String("key", entry.Key), zap.Int("rows", len(entry.Report.Rows)))
	return nil
}

func (mcs *MongoCacheService) Delete(ctx context.Context, key string) error {
	mcs.l1Cache.Remove(key)
	if _, err := mcs.collection.DeleteOne(ctx, bson.M{"key": key}); err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	return nil
}

func (mcs *MongoCacheService) Clear(ctx context.Context) error {
	mcs.l1Cache.Purge()
	if _, err := mcs.collection.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("clear report cache: %w", err)
	}
	mcs.l1Hits.Store(0)
	mcs.mongoHits.Store(0)
	mcs.misses.Store(0)
	return nil
}

func (mcs *MongoCacheService) InvalidateByConfig(ctx context.Context, profile, current string) (int64, error) {
	mcs.l1Cache.Purge()

	filter := bson.M{"profile": profile, "config_fingerprint": bson.M{"$ne": current}}
	result, err := mcs.collection.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("invalidate report cache: %w", err)
	}
	mcs.logger.Info("Invalidated report cache",
		zap.String("profile", profile),
		zap.String("config_fingerprint", current),
		zap.Int64("deleted_count", result.DeletedCount))
	return result.DeletedCount, nil
}

func (mcs *MongoCacheService) GetStats(ctx context.Context) (*CacheStats, error) {
	count, err := mcs.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("count report cache: %w", err)
	}
	hits := mcs.l1Hits.Load() + mcs.mongoHits.Load()
	misses := mcs.misses.Load()
	return &CacheStats{
		HitRate:    hitRate(hits, misses),
		TotalHits:  hits,
		TotalMiss:  misses,
		TotalItems: count,
	}, nil
}

// GetL1Stats breaks hits down by tier.
func (mcs *MongoCacheService) GetL1Stats() map[string]interface{} {
	return map[string]interface{}{
		"l1_size":    mcs.l1Cache.Len(),
		"l1_hits":    mcs.l1Hits.Load(),
		"mongo_hits": mcs.mongoHits.Load(),
		"misses":     mcs.misses.Load(),
	}
}

func (mcs *MongoCacheService) Exists(ctx context.Context, key string) (bool, error) {
	if mcs.l1Cache.Contains(key) {
		return true, nil
	}
	count, err := mcs.collection.CountDocuments(ctx, bson.M{"key": key})
	if err != nil {
		return false, fmt.Errorf("check report cache: %w", err)
	}
	return count > 0, nil
}

func (mcs *MongoCacheService) GetTTL(ctx context.Context, key string) (time.Duration, error) {
	if mcs.ttl <= 0 {
		return 0, nil
	}
	entry, ok, err := mcs.Get(ctx, key)
	if err != nil || !ok {
		return 0, err
	}
	return max(mcs.ttl-time.Since(entry.CreatedAt), 0), nil
}

// Close is a no-op; the caller owns the MongoDB client.
func (mcs *MongoCacheService) Close() error {
	return nil
}

func (mcs *MongoCacheService) updateAccessStats(id primitive.ObjectID) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	update := bson.M{
		"$set": bson.M{"last_accessed": time.Now()},
		"$inc": bson.M{"access_count": 1},
	}
	if _, err := mcs.collection.UpdateOne(ctx, bson.M{"_id": id}, update); err != nil {
		mcs.logger.Warn("Cannot update access stats", zap.Error(err))
	}
}

// WarmUp loads the most accessed reports into the LRU.
func (mcs *MongoCacheService) WarmUp(ctx context.Context, limit int) error {
	opts := options.Find().
		SetSort(bson.D{{Key: "access_count", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := mcs.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return fmt.Errorf("warm up cache: %w", err)
	}
	defer cursor.Close(ctx)

	count := 0
	for cursor.Next(ctx) {
		var entry models.ReportCache
		if err := cursor.Decode(&entry); err != nil {
			mcs.logger.Warn("Cannot decode cached report", zap.Error(err))
			continue
		}
		mcs.l1Cache.Add(entry.Key, &entry)
		count++
	}
	mcs.logger.Info("Cache warm up complete", zap.Int("loaded_items", count), zap.Int("l1_size", mcs.l1Cache.Len()))
	return cursor.Err()
}

// RecordRun appends a history entry.
func (mcs *MongoCacheService) RecordRun(ctx context.Context, run *models.RunRecord) error {
	if _, err := mcs.runs.InsertOne(ctx, run); err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// RecentRuns returns the newest history entries first.
func (mcs *MongoCacheService) RecentRuns(ctx context.Context, limit int) ([]models.RunRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(int64(limit))
	cursor, err := mcs.runs.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	var runs []models.RunRecord
	if err := cursor.All(ctx, &runs); err != nil {
		return nil, fmt.Errorf("decode runs: %w", err)
	}
	return runs, nil
}
