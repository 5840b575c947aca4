package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"analytics-sdk/internal/storage"
)

// maxTxAttempts bounds retries of an optimistic insert that lost a race.
const maxTxAttempts = 5

// queueStore keeps records in insertion order in one list. Bulk rewrites
// run under WATCH so concurrent inserts are never lost.
type queueStore struct {
	client *Client
	key    string
}

type encodedRecord struct {
	Key       string         `json:"key"`
	Payload   []byte         `json:"payload"`
	Expiry    storage.Expiry `json:"expiry"`
	Timestamp int64          `json:"timestamp"`
}

func encode(r storage.QueuedRecord) (string, error) {
	data, err := json.Marshal(encodedRecord{Key: r.Key, Payload: r.Payload, Expiry: r.Expiry, Timestamp: r.Timestamp})
	return string(data), err
}

func decode(s string) (storage.QueuedRecord, error) {
	var e encodedRecord
	if err := json.Unmarshal([]byte(s), &e); err != nil {
		return storage.QueuedRecord{}, err
	}
	return storage.QueuedRecord{Key: e.Key, Payload: e.Payload, Expiry: e.Expiry, Timestamp: e.Timestamp}, nil
}

func (q *queueStore) Insert(ctx context.Context, record storage.QueuedRecord) error {
	data, err := encode(record)
	if err != nil {
		return fmt.Errorf("failed to encode dispatch: %w", err)
	}

	// A re-inserted key replaces the old record and moves to the back.
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err = q.client.rdb.Watch(ctx, func(tx *redis.Tx) error {
			items, err := tx.LRange(ctx, q.key, 0, -1).Result()
			if err != nil {
				return err
			}
			kept := make([]interface{}, 0, len(items))
			for _, item := range items {
				if r, err := decode(item); err == nil && r.Key == record.Key {
					continue
				}
				kept = append(kept, item)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if len(kept) < len(items) {
					pipe.Del(ctx, q.key)
					if len(kept) > 0 {
						pipe.RPush(ctx, q.key, kept...)
					}
				}
				pipe.RPush(ctx, q.key, data)
				return nil
			})
			return err
		}, q.key)
		if err != redis.TxFailedErr {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("failed to insert dispatch: %w", err)
	}
	return nil
}

func (q *queueStore) Pop(ctx context.Context, limit int, now time.Time) ([]storage.QueuedRecord, error) {
	if limit < 0 {
		return q.popAll(ctx, now)
	}

	var out []storage.QueuedRecord
	for len(out) < limit {
		want := int64(limit - len(out))
		var rangeCmd *redis.StringSliceCmd
		_, err := q.client.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			rangeCmd = pipe.LRange(ctx, q.key, 0, want-1)
			pipe.LTrim(ctx, q.key, want, -1)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to pop dispatches: %w", err)
		}
		items := rangeCmd.Val()
		out = append(out, live(items, now)...)
		if int64(len(items)) < want {
			break
		}
	}
	return out, nil
}

func (q *queueStore) popAll(ctx context.Context, now time.Time) ([]storage.QueuedRecord, error) {
	var rangeCmd *redis.StringSliceCmd
	_, err := q.client.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		rangeCmd = pipe.LRange(ctx, q.key, 0, -1)
		pipe.Del(ctx, q.key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to pop dispatches: %w", err)
	}
	return live(rangeCmd.Val(), now), nil
}

// live decodes items, skipping expired and undecodable entries.
func live(items []string, now time.Time) []storage.QueuedRecord {
	out := make([]storage.QueuedRecord, 0, len(items))
	for _, item := range items {
		r, err := decode(item)
		if err != nil || r.Expiry.IsExpired(now) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func (q *queueStore) all(ctx context.Context, now time.Time) ([]storage.QueuedRecord, error) {
	items, err := q.client.rdb.LRange(ctx, q.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read dispatches: %w", err)
	}
	return live(items, now), nil
}

func (q *queueStore) Count(ctx context.Context, now time.Time) (int, error) {
	records, err := q.all(ctx, now)
	return len(records), err
}

func (q *queueStore) Keys(ctx context.Context, now time.Time) ([]string, error) {
	records, err := q.all(ctx, now)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(records))
	for _, r := range records {
		keys = append(keys, r.Key)
	}
	return keys, nil
}

// rewrite replaces the list with the entries keep accepts, atomically with
// respect to other writers.
func (q *queueStore) rewrite(ctx context.Context, keep func(i, total int, raw string) bool) (int, error) {
	removed := 0
	err := q.client.rdb.Watch(ctx, func(tx *redis.Tx) error {
		items, err := tx.LRange(ctx, q.key, 0, -1).Result()
		if err != nil {
			return err
		}
		kept := make([]interface{}, 0, len(items))
		for i, item := range items {
			if keep(i, len(items), item) {
				kept = append(kept, item)
			}
		}
		removed = len(items) - len(kept)
		if removed == 0 {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, q.key)
			if len(kept) > 0 {
				pipe.RPush(ctx, q.key, kept...)
			}
			return nil
		})
		return err
	}, q.key)
	if err != nil {
		return 0, fmt.Errorf("failed to rewrite dispatch queue: %w", err)
	}
	return removed, nil
}

func (q *queueStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	return q.rewrite(ctx, func(_, _ int, raw string) bool {
		r, err := decode(raw)
		return err == nil && !r.Expiry.IsExpired(now)
	})
}

func (q *queueStore) PurgeSession(ctx context.Context) (int, error) {
	return q.rewrite(ctx, func(_, _ int, raw string) bool {
		r, err := decode(raw)
		return err == nil && !r.Expiry.IsSession()
	})
}

func (q *queueStore) Trim(ctx context.Context, max int) (int, error) {
	if max < 0 {
		return 0, nil
	}
	return q.rewrite(ctx, func(i, total int, _ string) bool {
		return i >= total-max
	})
}

func (q *queueStore) Clear(ctx context.Context) error {
	return q.client.rdb.Del(ctx, q.key).Err()
}
