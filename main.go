package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/shaymcgreal/datatransformer/app/config"
	"github.com/shaymcgreal/datatransformer/app/controllers"
	"github.com/shaymcgreal/datatransformer/app/services"
	"github.com/shaymcgreal/datatransformer/internal/pipeline"
	"github.com/shaymcgreal/datatransformer/internal/search"
	"github.com/shaymcgreal/datatransformer/routes"
)

func main() {
	loadConfig()

	logger := initLogger()
	defer logger.Sync()

	logger.Info("Starting data quality service")

	profiles := loadProfiles(logger)

	var mongoDB *mongo.Database
	driver := viper.GetString("cache.driver")
	if driver == "mongo" || driver == "hybrid" {
		mongoDB = initMongoDB(logger)
		defer func() {
			if err := mongoDB.Client().Disconnect(context.Background()); err != nil {
				logger.Error("Error disconnecting MongoDB", zap.Error(err))
			}
		}()
	}
	cacheService := initCache(driver, mongoDB, logger)
	defer cacheService.Close()

	checkService, err := services.NewCheckService(profiles, cacheService, logger,
		pipeline.WithStreetExpansion(viper.GetBool("linkage.expand_streets")))
	if err != nil {
		logger.Fatal("Invalid linkage configuration", zap.Error(err))
	}

	checkService.SetJobReportLimit(viper.GetInt("jobs.max_reports"))
	checkService.StartJobCleanupWorker(context.Background(), time.Minute, viper.GetDuration("jobs.retention"))

	var searcher controllers.RowSearcher
	if viper.GetBool("meilisearch.enabled") {
		publisher, err := search.NewPublisher(search.PublisherConfig{
			Host:      viper.GetString("meilisearch.url"),
			APIKey:    viper.GetString("meilisearch.master_key"),
			IndexName: viper.GetString("meilisearch.index"),
		}, logger)
		if err != nil {
			logger.Fatal("Failed to initialize Meilisearch", zap.Error(err))
		}
		if err := publisher.EnsureIndex(); err != nil {
			logger.Warn("Failed to configure Meilisearch index", zap.Error(err))
		}
		checkService.SetPublisher(publisher)
		searcher = publisher
	}

	adminService := services.NewAdminService(checkService, logger)
	datasetController := controllers.NewDatasetController(checkService, searcher, viper.GetInt64("upload.max_bytes"), logger)
	adminController := controllers.NewAdminController(adminService, checkService, logger)

	if viper.GetString("app.env") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Logger())
	routes.SetupAllRoutes(router, datasetController, adminController)

	srv := &http.Server{
		Addr:    ":" + viper.GetString("app.port"),
		Handler: router,
	}
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", srv.Addr), zap.Strings("profiles", checkService.Profiles()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Forced shutdown", zap.Error(err))
	}
	logger.Info("Server exited")
}

// loadConfig reads app.yaml when present; every key can be overridden by
// its upper-cased environment variable, e.g. CACHE_DRIVER.
func loadConfig() {
	viper.SetConfigName("app")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	viper.SetDefault("app.port", "8080")
	viper.SetDefault("app.env", "development")
	viper.SetDefault("linkage.profiles", []string{config.DefaultProfile, "account"})
	viper.SetDefault("linkage.expand_streets", false)
	viper.SetDefault("cache.driver", "memory")
	viper.SetDefault("cache.ttl", "24h")
	viper.SetDefault("cache.l1_size", 1000)
	viper.SetDefault("redis.url", "redis://localhost:6379")
	viper.SetDefault("mongo.url", "mongodb://localhost:27017")
	viper.SetDefault("mongo.database", "data_quality")
	viper.SetDefault("meilisearch.enabled", false)
	viper.SetDefault("meilisearch.url", "http://localhost:7700")
	viper.SetDefault("meilisearch.master_key", "")
	viper.SetDefault("meilisearch.index", "dq_rows")
	viper.SetDefault("upload.max_bytes", 64<<20)
	viper.SetDefault("jobs.max_reports", services.DefaultJobReports)
	viper.SetDefault("jobs.retention", "1h")

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Warning: Cannot read config file: %v", err)
	}
}

func initLogger() *zap.Logger {
	var cfg zap.Config
	if viper.GetString("app.env") == "production" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	logger, err := cfg.Build()
	if err != nil {
		log.Fatal("Cannot initialize logger:", err)
	}
	return logger
}

// loadProfiles resolves linkage.profiles; each entry is an embedded
// profile name or a YAML file path. The first is the default.
func loadProfiles(logger *zap.Logger) []*config.LinkageCfg {
	var profiles []*config.LinkageCfg
	for _, ref := range viper.GetStringSlice("linkage.profiles") {
		cfg, err := config.Resolve(ref)
		if err != nil {
			logger.Fatal("Cannot load linkage profile", zap.String("profile", ref), zap.Error(err))
		}
		logger.Info("Loaded linkage profile",
			zap.String("profile", cfg.Profile),
			zap.String("fingerprint", cfg.Fingerprint()),
			zap.Float64("threshold", cfg.Threshold))
		profiles = append(profiles, cfg)
	}
	return profiles
}

func initCache(driver string, db *mongo.Database, logger *zap.Logger) services.ICacheService {
	ttl := viper.GetDuration("cache.ttl")
	l1Size := viper.GetInt("cache.l1_size")

	switch driver {
	case "memory":
		cache := services.NewCacheService(ttl)
		cache.StartCleanupWorker(context.Background(), 10*time.Minute)
		return cache
	case "redis":
		return mustRedis(ttl, logger)
	case "mongo":
		return mustMongo(db, l1Size, ttl, logger)
	case "hybrid":
		redisCache := mustRedis(ttl, logger)
		mongoCache := mustMongo(db, l1Size, ttl, logger)
		return services.NewHybridCacheService(redisCache, mongoCache, logger)
	}
	logger.Fatal("Unknown cache driver", zap.String("driver", driver))
	return nil
}

func mustRedis(ttl time.Duration, logger *zap.Logger) *services.RedisCacheService {
	cache, err := services.NewRedisCacheService(viper.GetString("redis.url"), logger)
	if err != nil {
		logger.Fatal("Failed to initialize Redis cache", zap.Error(err))
	}
	if ttl > 0 {
		cache.SetTTL(ttl)
	}
	return cache
}

func mustMongo(db *mongo.Database, l1Size int, ttl time.Duration, logger *zap.Logger) *services.MongoCacheService {
	cache, err := services.NewMongoCacheService(db, l1Size, ttl, logger)
	if err != nil {
		logger.Fatal("Failed to initialize MongoDB cache", zap.Error(err))
	}
	if err := cache.WarmUp(context.Background(), l1Size/2); err != nil {
		logger.Warn("Failed to warm up cache", zap.Error(err))
	}
	return cache
}

func initMongoDB(logger *zap.Logger) *mongo.Database {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(viper.GetString("mongo.url")))
	if err != nil {
		logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}
	if err := client.Ping(ctx, nil); err != nil {
		logger.Fatal("Failed to ping MongoDB", zap.Error(err))
	}

	dbName := viper.GetString("mongo.database")
	logger.Info("Connected to MongoDB", zap.String("database", dbName))
	return client.Database(dbName)
}
