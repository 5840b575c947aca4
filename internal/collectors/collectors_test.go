package collectors

import (
	"context"
	"runtime"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analytics-sdk/internal/dispatch"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type mapStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (s *mapStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *mapStore) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

type sessions struct {
	mu  sync.Mutex
	ids []string
}

func (s *sessions) OnNewSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, id)
}

func TestTealiumCollector(t *testing.T) {
	c := NewTealium(Account{Account: "acct", Profile: "main", Environment: "prod", DataSource: "abc123"})
	data, err := c.Collect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "acct", data[dispatch.KeyAccount])
	assert.Equal(t, "main", data[dispatch.KeyProfile])
	assert.Equal(t, "prod", data[dispatch.KeyEnvironment])
	assert.Equal(t, "abc123", data[dispatch.KeyDataSource])
	assert.Equal(t, LibraryVersion, data[KeyLibraryVersion])
	assert.Len(t, data[KeyRandom], 16)
}

func TestTimeCollector(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 30, 45, 0, time.UTC)
	c := NewTime(func() time.Time { return now })

	data, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01T12:30:45Z", data[KeyTimestamp])
	assert.Equal(t, "2024-03-01T12:30:45", data[KeyTimestampLocal])
	assert.Equal(t, "0", data[KeyTimestampOffset])
	assert.Equal(t, now.Unix(), data[KeyTimestampUnix])
	assert.Equal(t, now.UnixMilli(), data[dispatch.KeyTimestampUnix])
}

func TestDeviceCollector(t *testing.T) {
	data, err := NewDevice().Collect(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, data[dispatch.KeyDevice])
	assert.Equal(t, runtime.GOARCH, data[dispatch.KeyDeviceArchitecture])
	assert.Equal(t, runtime.GOOS, data[KeyOSName])
}

func TestSessionManager_RollsOverAfterInactivity(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
	pub := &sessions{}

	m := NewSessionManager(ctx, nil, pub, clock.Now)
	first := m.CurrentSessionID()
	assert.Equal(t, []string{first}, pub.ids)

	c := NewSessionCollector(m)
	clock.Advance(20 * time.Minute)
	data, err := c.Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, data[KeySessionID])

	// Activity keeps the session alive past its start time plus the length.
	clock.Advance(20 * time.Minute)
	assert.Equal(t, first, m.Track(ctx))
	assert.Equal(t, 2, m.Current().EventCount)

	clock.Advance(31 * time.Minute)
	second := m.Track(ctx)
	assert.NotEqual(t, first, second)
	assert.Equal(t, strconv.FormatInt(clock.Now().UnixMilli(), 10), second)
	assert.Equal(t, []string{first, second}, pub.ids)
	assert.Equal(t, 1, m.Current().EventCount)
}

func TestSessionManager_ResumesStoredSession(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
	store := &mapStore{data: make(map[string][]byte)}

	m := NewSessionManager(ctx, store, nil, clock.Now)
	m.Track(ctx)
	m.OnActivityPaused()

	clock.Advance(10 * time.Minute)
	pub := &sessions{}
	resumed := NewSessionManager(ctx, store, pub, clock.Now)
	assert.Equal(t, m.CurrentSessionID(), resumed.CurrentSessionID())
	assert.Empty(t, pub.ids)

	clock.Advance(time.Hour)
	expired := NewSessionManager(ctx, store, pub, clock.Now)
	assert.NotEqual(t, m.CurrentSessionID(), expired.CurrentSessionID())
	assert.Len(t, pub.ids, 1)
}
