package redis

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"analytics-sdk/internal/storage"
)

// kvStore maps storage expiries onto Redis TTLs. Session records carry no
// TTL; they end when the Redis data does.
type kvStore struct {
	client *Client
	prefix string
}

func (s *kvStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.rdb.Get(ctx, s.prefix+key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return data, true, nil
}

func (s *kvStore) Set(ctx context.Context, key string, value []byte) error {
	return s.SetWithExpiry(ctx, key, value, storage.Forever)
}

func (s *kvStore) SetWithExpiry(ctx context.Context, key string, value []byte, expiry storage.Expiry) error {
	var ttl time.Duration
	if expiry >= 0 {
		ttl = expiry.TTL(s.client.clock())
		if ttl <= 0 {
			return s.Delete(ctx, key)
		}
	}
	if err := s.client.rdb.Set(ctx, s.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

func (s *kvStore) Delete(ctx context.Context, key string) error {
	return s.client.rdb.Del(ctx, s.prefix+key).Err()
}

func (s *kvStore) scan(ctx context.Context) ([]string, error) {
	var keys []string
	iter := s.client.rdb.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan keys: %w", err)
	}
	return keys, nil
}

func (s *kvStore) Keys(ctx context.Context) ([]string, error) {
	full, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(full))
	for _, k := range full {
		keys = append(keys, strings.TrimPrefix(k, s.prefix))
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *kvStore) Clear(ctx context.Context) error {
	keys, err := s.scan(ctx)
	if err != nil || len(keys) == 0 {
		return err
	}
	return s.client.rdb.Del(ctx, keys...).Err()
}
