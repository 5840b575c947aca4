// Package redis is the Redis storage backend and the stream writer used by
// the redis stream dispatcher.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"analytics-sdk/internal/storage"
)

type Client struct {
	rdb    *redis.Client
	config *Config
	clock  func() time.Time
}

type Config struct {
	Address   string `json:"address"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	PoolSize  int    `json:"pool_size"`
	KeyPrefix string `json:"key_prefix"`
}

func (c *Config) GetType() string {
	return "redis"
}

func NewClient(config *Config) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("redis config is required")
	}

	if config.Address == "" {
		config.Address = "localhost:6379"
	}
	if config.PoolSize == 0 {
		config.PoolSize = 10
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "analytics:"
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
		PoolSize: config.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{
		rdb:    rdb,
		config: config,
		clock:  time.Now,
	}, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.rdb.Ping(ctx).Err()
}

// Store returns a key-value store whose keys live under the namespace prefix.
func (c *Client) Store(namespace string) (storage.KeyValueStore, error) {
	if namespace == "" {
		return nil, fmt.Errorf("namespace is required")
	}
	return &kvStore{client: c, prefix: c.config.KeyPrefix + namespace + ":"}, nil
}

// Queue returns the dispatch queue, a Redis list of encoded records.
func (c *Client) Queue() (storage.QueueStore, error) {
	return &queueStore{client: c, key: c.config.KeyPrefix + "dispatches"}, nil
}

// XAdd appends values to stream, trimming it to roughly maxLen entries when
// maxLen is positive.
func (c *Client) XAdd(ctx context.Context, stream string, maxLen int64, values map[string]interface{}) (string, error) {
	args := &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}
	if maxLen > 0 {
		args.MaxLen = maxLen
		args.Approx = true
	}
	id, err := c.rdb.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("failed to add to stream %s: %w", stream, err)
	}
	return id, nil
}

type Factory struct{}

func (f *Factory) Create(config storage.StorageConfig) (storage.Backend, error) {
	redisConfig, ok := config.(*Config)
	if !ok {
		return nil, fmt.Errorf("invalid config type for Redis storage")
	}
	return NewClient(redisConfig)
}

func (f *Factory) GetType() string {
	return "redis"
}

func init() {
	storage.Register("redis", &Factory{})
}
