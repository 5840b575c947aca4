package sqlite

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analytics-sdk/internal/dispatch"
	"analytics-sdk/internal/settings"
	"analytics-sdk/internal/storage"
)

func setupTestDB(t *testing.T) (*Adapter, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "analytics.db")
	adapter, err := NewAdapter(&Config{DatabasePath: path})
	require.NoError(t, err)
	t.Cleanup(func() { adapter.Close() })
	return adapter, path
}

func TestConfig(t *testing.T) {
	assert.Error(t, (&Config{}).Validate())
	assert.Error(t, (&Config{DatabasePath: "x.db", BusyTimeout: -time.Second}).Validate())
	assert.Equal(t, "file:x.db?_busy_timeout=5000", (&Config{DatabasePath: "x.db"}).GetConnectionString())
	assert.Equal(t, "sqlite", DefaultConfig().GetType())
}

func TestKeyValueStore(t *testing.T) {
	adapter, _ := setupTestDB(t)
	ctx := context.Background()

	store, err := adapter.Store("settings")
	require.NoError(t, err)
	other, err := adapter.Store("visitors")
	require.NoError(t, err)

	_, ok, err := store.Get(ctx, "library_settings")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "library_settings", []byte(`{"wifi_only":true}`)))
	require.NoError(t, store.Set(ctx, "library_settings", []byte(`{"wifi_only":false}`)))
	require.NoError(t, other.Set(ctx, "library_settings", []byte("other")))

	value, ok, err := store.Get(ctx, "library_settings")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"wifi_only":false}`, string(value))

	require.NoError(t, store.SetWithExpiry(ctx, "stale", []byte("x"), storage.ExpiresAt(time.Now().Add(-time.Minute))))
	_, ok, err = store.Get(ctx, "stale")
	require.NoError(t, err)
	assert.False(t, ok)

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"library_settings"}, keys)

	require.NoError(t, store.Delete(ctx, "library_settings"))
	require.NoError(t, store.Set(ctx, "a", []byte("1")))
	require.NoError(t, store.Clear(ctx))
	keys, err = store.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)

	// Other namespaces are untouched.
	_, ok, err = other.Get(ctx, "library_settings")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = adapter.Store(" ")
	assert.Error(t, err)
}

func TestSessionRecordsDoNotSurviveRestart(t *testing.T) {
	adapter, path := setupTestDB(t)
	ctx := context.Background()

	store, err := adapter.Store("visitors")
	require.NoError(t, err)
	queue, err := adapter.Queue()
	require.NoError(t, err)

	require.NoError(t, store.SetWithExpiry(ctx, "session_only", []byte("x"), storage.Session))
	require.NoError(t, store.Set(ctx, "durable", []byte("y")))
	require.NoError(t, queue.Insert(ctx, storage.QueuedRecord{Key: "s", Payload: []byte("{}"), Expiry: storage.Session}))
	require.NoError(t, queue.Insert(ctx, storage.QueuedRecord{Key: "f", Payload: []byte("{}"), Expiry: storage.Forever}))
	require.NoError(t, adapter.Close())

	reopened, err := NewAdapter(&Config{DatabasePath: path})
	require.NoError(t, err)
	defer reopened.Close()

	store, err = reopened.Store("visitors")
	require.NoError(t, err)
	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"durable"}, keys)

	queue, err = reopened.Queue()
	require.NoError(t, err)
	qkeys, err := queue.Keys(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{"f"}, qkeys)
}

func TestQueueStore(t *testing.T) {
	adapter, _ := setupTestDB(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	queue, err := adapter.Queue()
	require.NoError(t, err)

	insert := func(key string, expiry storage.Expiry) {
		require.NoError(t, queue.Insert(ctx, storage.QueuedRecord{Key: key, Payload: []byte(`{}`), Expiry: expiry, Timestamp: 42}))
	}
	insert("a", storage.Forever)
	insert("b", storage.ExpiresAt(now.Add(-time.Second)))
	insert("c", storage.ExpiresAt(now.Add(time.Hour)))
	insert("d", storage.Forever)
	insert("e", storage.Forever)

	count, err := queue.Count(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	popped, err := queue.Pop(ctx, 2, now)
	require.NoError(t, err)
	require.Len(t, popped, 2)
	assert.Equal(t, "a", popped[0].Key)
	assert.Equal(t, "c", popped[1].Key)
	assert.Equal(t, int64(42), popped[0].Timestamp)

	n, err := queue.PurgeExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	insert("f", storage.Forever)
	n, err = queue.Trim(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	keys, err := queue.Keys(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"e", "f"}, keys)

	n, err = queue.Trim(ctx, 5)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, queue.Clear(ctx))
	count, err = queue.Count(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestDispatchStorage_ConcurrentDequeuePartitions(t *testing.T) {
	adapter, _ := setupTestDB(t)
	ctx := context.Background()

	queue, err := adapter.Queue()
	require.NoError(t, err)
	s := settings.Defaults()
	s.Batching.MaxQueueSize = -1
	store := storage.NewDispatchStorage(queue, s, nil)

	var want []string
	for i := 0; i < 100; i++ {
		d := dispatch.NewEvent("e", map[string]interface{}{"i": i})
		want = append(want, d.ID())
		require.NoError(t, store.Enqueue(ctx, d))
	}

	const workers = 6
	results := make([][]string, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			out, err := store.Dequeue(ctx, -1)
			assert.NoError(t, err)
			for _, d := range out {
				results[w] = append(results[w], d.ID())
			}
		}(w)
	}
	wg.Wait()

	seen := make(map[string]bool)
	var got []string
	for _, r := range results {
		for _, id := range r {
			assert.False(t, seen[id], "dispatch %s returned twice", id)
			seen[id] = true
			got = append(got, id)
		}
	}
	sort.Strings(got)
	sort.Strings(want)
	assert.Equal(t, want, got)
}

func TestFactoryRegistered(t *testing.T) {
	assert.True(t, storage.DefaultRegistry.IsRegistered("sqlite"))

	backend, err := storage.Create("sqlite", &Config{DatabasePath: filepath.Join(t.TempDir(), "f.db")})
	require.NoError(t, err)
	assert.NoError(t, backend.Health())
	assert.NoError(t, backend.Close())

	_, err = (&Factory{}).Create(&storage.MemoryConfig{})
	assert.Error(t, err)
}
