package app

import (
	"analytics-sdk/internal/common/logging"
	"analytics-sdk/internal/redis"
)

// initializeRedis connects the stream client when the redisstream dispatcher
// is configured and storage is not already on Redis.
func (app *App) initializeRedis() error {
	if app.RedisClient != nil || !app.Config.HasDispatcher("redisstream") {
		return nil
	}

	client, err := redis.NewClient(&redis.Config{
		Address:  app.Config.RedisAddress,
		Password: app.Config.RedisPassword,
		DB:       app.Config.RedisDB,
	})
	if err != nil {
		return err
	}

	app.RedisClient = client
	app.ownsRedis = true
	app.Logger.Info("Redis: Connected", logging.Field{Key: "address", Value: app.Config.RedisAddress})
	return nil
}
