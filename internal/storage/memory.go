package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryConfig configures the in-process backend.
type MemoryConfig struct {
	CleanupInterval time.Duration
}

func (c *MemoryConfig) GetType() string {
	return "memory"
}

// MemoryBackend keeps everything in process memory. Session and Forever
// records live until the process exits.
type MemoryBackend struct {
	cleanup time.Duration

	mu     sync.Mutex
	stores map[string]*MemoryStore
	queue  *MemoryQueue
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend(config *MemoryConfig) *MemoryBackend {
	cleanup := time.Minute
	if config != nil && config.CleanupInterval > 0 {
		cleanup = config.CleanupInterval
	}
	return &MemoryBackend{
		cleanup: cleanup,
		stores:  make(map[string]*MemoryStore),
		queue:   NewMemoryQueue(),
	}
}

func (b *MemoryBackend) Store(namespace string) (KeyValueStore, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.stores[namespace]; ok {
		return s, nil
	}
	s := NewMemoryStore(b.cleanup)
	b.stores[namespace] = s
	return s, nil
}

func (b *MemoryBackend) Queue() (QueueStore, error) {
	return b.queue, nil
}

func (b *MemoryBackend) Health() error { return nil }

func (b *MemoryBackend) Close() error { return nil }

// MemoryStore wraps patrickmn/go-cache as a KeyValueStore.
type MemoryStore struct {
	cache *gocache.Cache
	clock func() time.Time
}

// NewMemoryStore creates a store whose expired items are evicted every
// cleanupInterval.
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	return &MemoryStore{
		cache: gocache.New(gocache.NoExpiration, cleanupInterval),
		clock: time.Now,
	}
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, found := m.cache.Get(key)
	if !found {
		return nil, false, nil
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), b...), true, nil
}

func (m *MemoryStore) Set(ctx context.Context, key string, value []byte) error {
	return m.SetWithExpiry(ctx, key, value, Forever)
}

func (m *MemoryStore) SetWithExpiry(ctx context.Context, key string, value []byte, expiry Expiry) error {
	now := m.clock()
	if expiry.IsExpired(now) {
		m.cache.Delete(key)
		return nil
	}
	ttl := gocache.NoExpiration
	if expiry >= 0 {
		ttl = expiry.TTL(now)
		if ttl <= 0 {
			m.cache.Delete(key)
			return nil
		}
	}
	m.cache.Set(key, append([]byte(nil), value...), ttl)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.cache.Delete(key)
	return nil
}

func (m *MemoryStore) Keys(ctx context.Context) ([]string, error) {
	items := m.cache.Items()
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryStore) Clear(ctx context.Context) error {
	m.cache.Flush()
	return nil
}

// MemoryQueue is a mutex-guarded FIFO QueueStore.
type MemoryQueue struct {
	mu      sync.Mutex
	records []QueuedRecord
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Insert(ctx context.Context, record QueuedRecord) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	// A re-inserted key replaces the old record and moves to the back.
	q.removeLocked(func(r QueuedRecord) bool { return r.Key == record.Key })
	q.records = append(q.records, record)
	return nil
}

func (q *MemoryQueue) Pop(ctx context.Context, limit int, now time.Time) ([]QueuedRecord, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []QueuedRecord
	kept := q.records[:0:0]
	for _, r := range q.records {
		switch {
		case r.Expiry.IsExpired(now):
			// dropped
		case limit < 0 || len(out) < limit:
			out = append(out, r)
		default:
			kept = append(kept, r)
		}
	}
	q.records = kept
	return out, nil
}

func (q *MemoryQueue) Count(ctx context.Context, now time.Time) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, r := range q.records {
		if !r.Expiry.IsExpired(now) {
			n++
		}
	}
	return n, nil
}

func (q *MemoryQueue) Keys(ctx context.Context, now time.Time) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	keys := make([]string, 0, len(q.records))
	for _, r := range q.records {
		if !r.Expiry.IsExpired(now) {
			keys = append(keys, r.Key)
		}
	}
	return keys, nil
}

func (q *MemoryQueue) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.removeLocked(func(r QueuedRecord) bool { return r.Expiry.IsExpired(now) }), nil
}

func (q *MemoryQueue) PurgeSession(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.removeLocked(func(r QueuedRecord) bool { return r.Expiry.IsSession() }), nil
}

func (q *MemoryQueue) Trim(ctx context.Context, max int) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if max < 0 || len(q.records) <= max {
		return 0, nil
	}
	removed := len(q.records) - max
	q.records = append(q.records[:0:0], q.records[removed:]...)
	return removed, nil
}

func (q *MemoryQueue) Clear(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.records = nil
	return nil
}

func (q *MemoryQueue) removeLocked(match func(QueuedRecord) bool) int {
	kept := q.records[:0:0]
	for _, r := range q.records {
		if !match(r) {
			kept = append(kept, r)
		}
	}
	removed := len(q.records) - len(kept)
	q.records = kept
	return removed
}

type memoryFactory struct{}

func (memoryFactory) Create(config StorageConfig) (Backend, error) {
	c, _ := config.(*MemoryConfig)
	return NewMemoryBackend(c), nil
}

func (memoryFactory) GetType() string {
	return "memory"
}

func init() {
	Register("memory", memoryFactory{})
}
