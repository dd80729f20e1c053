// Package bootstrap opens the configured storage backends for the binaries.
package bootstrap

import (
	"context"
	"fmt"

	"socialdm/backend/internal/config"
	"socialdm/backend/internal/storage"
	"socialdm/backend/internal/storage/memstore"
	"socialdm/backend/internal/storage/mongostore"
	"socialdm/backend/pkg/logger"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Closer releases a backend connection.
type Closer func(context.Context) error

func noop(context.Context) error { return nil }

// OpenStorage returns the Persistence Gateway selected by STORAGE_DRIVER.
func OpenStorage(ctx context.Context, cfg *config.Config) (storage.Storage, Closer, error) {
	switch cfg.StorageDriver {
	case config.DriverMemory, "":
		logger.Warn().Msg("using in-memory storage, data is lost on restart")
		return memstore.New(), noop, nil

	case config.DriverPostgres:
		gcfg := &gorm.Config{}
		if !cfg.IsDevelopment() {
			gcfg.Logger = gormlogger.Default.LogMode(gormlogger.Warn)
		}
		db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), gcfg)
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to connect PostgreSQL")
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to get sql.DB")
		}
		logger.Info().Msg("connected to PostgreSQL")
		return storage.NewStorageService(db), func(context.Context) error { return sqlDB.Close() }, nil

	case config.DriverMongo:
		cli, err := mongostore.Connect(ctx, mongostore.Config{URI: cfg.MongoURI, Database: cfg.MongoDatabase})
		if err != nil {
			return nil, nil, err
		}
		logger.Info().Str("database", cfg.MongoDatabase).Msg("connected to MongoDB")
		return mongostore.New(cli.Database(cfg.MongoDatabase)), cli.Disconnect, nil

	default:
		return nil, nil, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}
}

// OpenDeduper returns the Redis send-idempotency cache when REDIS_ADDR is set,
// and an in-process cache otherwise.
func OpenDeduper(ctx context.Context, cfg *config.Config) (storage.Deduper, Closer, error) {
	if cfg.RedisAddr == "" {
		return storage.NewMemoryDeduper(cfg.IdempotencyTTL), noop, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		_ = rdb.Close()
		return nil, nil, errors.Wrap(err, "failed to connect Redis")
	}
	logger.Info().Str("addr", cfg.RedisAddr).Msg("connected to Redis")
	return storage.NewRedisDeduper(rdb, cfg.IdempotencyTTL), func(context.Context) error { return rdb.Close() }, nil
}
