package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analytics-sdk/internal/storage"
)

func setupTestRedis(t *testing.T) (*Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	config := &Config{
		Address:  mr.Addr(),
		Password: "",
		DB:       0,
		PoolSize: 10,
	}

	client, err := NewClient(config)
	require.NoError(t, err)

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func TestNewClient(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	t.Run("applies defaults", func(t *testing.T) {
		config := &Config{Address: mr.Addr()}

		client, err := NewClient(config)
		require.NoError(t, err)
		defer client.Close()

		assert.Equal(t, 10, config.PoolSize)
		assert.Equal(t, "analytics:", config.KeyPrefix)
		assert.Equal(t, "redis", config.GetType())
	})

	t.Run("nil config", func(t *testing.T) {
		client, err := NewClient(nil)
		assert.Error(t, err)
		assert.Nil(t, client)
		assert.Contains(t, err.Error(), "redis config is required")
	})

	t.Run("connection failure", func(t *testing.T) {
		client, err := NewClient(&Config{Address: "invalid:99999"})
		assert.Error(t, err)
		assert.Nil(t, client)
		assert.Contains(t, err.Error(), "failed to connect to Redis")
	})
}

func TestClient_Health(t *testing.T) {
	client, mr := setupTestRedis(t)

	assert.NoError(t, client.Health())

	mr.Close()
	assert.Error(t, client.Health())
}

func TestKeyValueStore(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	store, err := client.Store("visitors")
	require.NoError(t, err)

	t.Run("missing key", func(t *testing.T) {
		_, ok, err := store.Get(ctx, "nope")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("set and get", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "current", []byte("abc")))

		value, ok, err := store.Get(ctx, "current")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []byte("abc"), value)
		assert.True(t, mr.Exists("analytics:visitors:current"))
	})

	t.Run("absolute expiry becomes ttl", func(t *testing.T) {
		expiry := storage.ExpiresAfter(time.Now(), time.Hour)
		require.NoError(t, store.SetWithExpiry(ctx, "temp", []byte("x"), expiry))

		ttl := mr.TTL("analytics:visitors:temp")
		assert.True(t, ttl > 59*time.Minute && ttl <= time.Hour, "ttl was %s", ttl)

		mr.FastForward(2 * time.Hour)
		_, ok, err := store.Get(ctx, "temp")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("past expiry deletes", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "old", []byte("x")))
		require.NoError(t, store.SetWithExpiry(ctx, "old", []byte("y"), storage.ExpiresAt(time.Now().Add(-time.Minute))))

		_, ok, err := store.Get(ctx, "old")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("keys are namespaced", func(t *testing.T) {
		other, err := client.Store("consent")
		require.NoError(t, err)
		require.NoError(t, other.Set(ctx, "status", []byte("consented")))

		keys, err := store.Keys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"current"}, keys)

		require.NoError(t, store.Clear(ctx))
		keys, err = store.Keys(ctx)
		require.NoError(t, err)
		assert.Empty(t, keys)

		_, ok, err := other.Get(ctx, "status")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("empty namespace rejected", func(t *testing.T) {
		_, err := client.Store("")
		assert.Error(t, err)
	})
}

func record(key string, expiry storage.Expiry) storage.QueuedRecord {
	return storage.QueuedRecord{Key: key, Payload: []byte(`{"k":"` + key + `"}`), Expiry: expiry}
}

func keysOf(records []storage.QueuedRecord) []string {
	keys := make([]string, 0, len(records))
	for _, r := range records {
		keys = append(keys, r.Key)
	}
	return keys
}

func TestQueueStore(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()
	now := time.Now()

	queue, err := client.Queue()
	require.NoError(t, err)

	past := storage.ExpiresAt(now.Add(-time.Hour))
	future := storage.ExpiresAt(now.Add(time.Hour))

	require.NoError(t, queue.Insert(ctx, record("a", storage.Forever)))
	require.NoError(t, queue.Insert(ctx, record("b", past)))
	require.NoError(t, queue.Insert(ctx, record("c", future)))
	require.NoError(t, queue.Insert(ctx, record("d", storage.Session)))
	require.NoError(t, queue.Insert(ctx, record("e", storage.Forever)))

	count, err := queue.Count(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	keys, err := queue.Keys(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "d", "e"}, keys)

	t.Run("pop skips expired and keeps order", func(t *testing.T) {
		popped, err := queue.Pop(ctx, 2, now)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "c"}, keysOf(popped))
		assert.Equal(t, []byte(`{"k":"a"}`), popped[0].Payload)
	})

	t.Run("purge session", func(t *testing.T) {
		n, err := queue.PurgeSession(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("trim and pop all", func(t *testing.T) {
		require.NoError(t, queue.Insert(ctx, record("f", storage.Forever)))
		require.NoError(t, queue.Insert(ctx, record("g", storage.Forever)))

		n, err := queue.Trim(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		popped, err := queue.Pop(ctx, -1, now)
		require.NoError(t, err)
		assert.Equal(t, []string{"f", "g"}, keysOf(popped))

		count, err := queue.Count(ctx, now)
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("purge expired", func(t *testing.T) {
		require.NoError(t, queue.Insert(ctx, record("h", past)))
		require.NoError(t, queue.Insert(ctx, record("i", storage.Forever)))

		n, err := queue.PurgeExpired(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		require.NoError(t, queue.Clear(ctx))
		count, err := queue.Count(ctx, now)
		require.NoError(t, err)
		assert.Zero(t, count)
	})
}

func TestQueueStore_ReinsertReplaces(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()
	now := time.Now()

	queue, err := client.Queue()
	require.NoError(t, err)

	require.NoError(t, queue.Insert(ctx, record("a", storage.Forever)))
	require.NoError(t, queue.Insert(ctx, record("b", storage.Forever)))
	second := record("a", storage.Forever)
	second.Payload = []byte(`{"k":"a2"}`)
	require.NoError(t, queue.Insert(ctx, second))

	count, err := queue.Count(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	popped, err := queue.Pop(ctx, -1, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, keysOf(popped))
	assert.Equal(t, []byte(`{"k":"a2"}`), popped[1].Payload)
}

func TestClient_XAdd(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	id, err := client.XAdd(ctx, "events", 0, map[string]interface{}{"payload": `{"tealium_event":"click"}`})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	entries, err := mr.Stream("events")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, []string{"payload", `{"tealium_event":"click"}`}, entries[0].Values)
}
