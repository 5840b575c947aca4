package app

import (
	"fmt"

	"analytics-sdk/internal/common/logging"
	"analytics-sdk/internal/redis"
	"analytics-sdk/internal/storage"
	"analytics-sdk/internal/storage/sqlite"
)

func (app *App) initializeStorage() error {
	if app.opts.backend != nil {
		app.Backend = app.opts.backend
		app.adoptRedisBackend()
		return nil
	}

	var cfg storage.StorageConfig
	switch app.Config.StorageType {
	case "redis":
		app.Logger.Info("Storage: Redis", logging.Field{Key: "address", Value: app.Config.RedisAddress})
		cfg = &redis.Config{
			Address:  app.Config.RedisAddress,
			Password: app.Config.RedisPassword,
			DB:       app.Config.RedisDB,
		}
	case "memory":
		app.Logger.Info("Storage: in-memory, nothing survives a restart")
		cfg = &storage.MemoryConfig{}
	default:
		app.Logger.Info("Storage: SQLite", logging.Field{Key: "path", Value: app.Config.DatabasePath})
		cfg = &sqlite.Config{DatabasePath: app.Config.DatabasePath}
	}

	backend, err := storage.Create(cfg.GetType(), cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	app.Backend = backend
	app.adoptRedisBackend()
	return nil
}

// adoptRedisBackend reuses a Redis backend as the stream client.
func (app *App) adoptRedisBackend() {
	if client, ok := app.Backend.(*redis.Client); ok {
		app.RedisClient = client
	}
}
