package consent

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analytics-sdk/internal/dispatch"
)

type memoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string][]byte)}
}

func (s *memoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *memoryStore) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *memoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

type update struct {
	prefs  Preferences
	policy string
}

type recordingPublisher struct {
	mu      sync.Mutex
	updates []update
}

func (p *recordingPublisher) OnUserConsentPreferencesUpdated(prefs Preferences, policy Policy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, update{prefs: prefs, policy: policy.Name()})
}

func (p *recordingPublisher) all() []update {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]update(nil), p.updates...)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestParse(t *testing.T) {
	assert.Equal(t, StatusConsented, ParseStatus("Consented"))
	assert.Equal(t, StatusNotConsented, ParseStatus("notConsented"))
	assert.Equal(t, StatusUnknown, ParseStatus("maybe"))

	assert.Equal(t, []Category{CategoryAnalytics, CategoryEmail},
		ParseCategories([]string{"email", "ANALYTICS", "bogus", "email"}))

	_, err := NewPolicy("lgpd")
	assert.Error(t, err)
}

func TestGDPRPolicy(t *testing.T) {
	p := GDPR{}
	unknown := Preferences{Status: StatusUnknown}
	declined := Preferences{Status: StatusNotConsented}
	partial := Preferences{Status: StatusConsented, Categories: []Category{CategoryAnalytics}}
	full := Preferences{Status: StatusConsented, Categories: AllCategories}

	assert.True(t, p.ShouldQueue(unknown))
	assert.False(t, p.ShouldDrop(unknown))
	assert.True(t, p.ShouldDrop(declined))
	assert.False(t, p.ShouldQueue(partial))
	assert.False(t, p.ShouldDrop(partial))

	assert.Equal(t, map[string]interface{}{
		KeyPolicy:     "gdpr",
		KeyStatus:     "consented",
		KeyCategories: []string{"analytics"},
	}, p.StatusInfo(partial))

	assert.Equal(t, EventGrantFullConsent, p.LoggingEventName(full))
	assert.Equal(t, EventGrantPartialConsent, p.LoggingEventName(partial))
	assert.Equal(t, EventDeclineConsent, p.LoggingEventName(declined))
	assert.Equal(t, 365*24*time.Hour, p.DefaultExpiry())
}

func TestCCPAPolicy(t *testing.T) {
	p := CCPA{}
	assert.False(t, p.ShouldQueue(Preferences{Status: StatusUnknown}))
	assert.False(t, p.ShouldDrop(Preferences{Status: StatusNotConsented}))
	assert.Equal(t, map[string]interface{}{KeyPolicy: "ccpa", KeyDoNotSell: true},
		p.StatusInfo(Preferences{Status: StatusConsented}))
	assert.Equal(t, 395*24*time.Hour, p.DefaultExpiry())
	assert.False(t, p.LoggingEnabled())
}

func TestManager_Disabled(t *testing.T) {
	m, err := NewManager(context.Background(), Options{})
	require.NoError(t, err)

	d := dispatch.NewEvent("e", nil)
	assert.False(t, m.Enabled())
	assert.False(t, m.ShouldQueue(d))
	assert.False(t, m.ShouldDrop(d))
	data, err := m.Collect(context.Background())
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestManager_DecisionsNotifyAndPersist(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	pub := &recordingPublisher{}
	clk := &clock{now: time.Unix(1_700_000_000, 0)}

	m, err := NewManager(ctx, Options{Policy: "gdpr", Store: store, Publisher: pub, Clock: clk.Now})
	require.NoError(t, err)

	d := dispatch.NewEvent("e", nil)
	assert.True(t, m.ShouldQueue(d))

	m.SetCategories(ctx, []Category{CategoryAnalytics})
	assert.False(t, m.ShouldQueue(d))
	assert.False(t, m.ShouldDrop(d))

	m.SetStatus(ctx, StatusNotConsented)
	assert.True(t, m.ShouldDrop(d))

	m.SetStatus(ctx, StatusConsented)
	assert.Len(t, m.Preferences().Categories, len(AllCategories))

	updates := pub.all()
	require.Len(t, updates, 3)
	assert.Equal(t, StatusConsented, updates[0].prefs.Status)
	assert.Equal(t, []Category{CategoryAnalytics}, updates[0].prefs.Categories)
	assert.Equal(t, StatusNotConsented, updates[1].prefs.Status)
	assert.Equal(t, "gdpr", updates[2].policy)

	raw, ok, _ := store.Get(ctx, StoreKey)
	require.True(t, ok)
	var stored persisted
	require.NoError(t, json.Unmarshal(raw, &stored))
	assert.Equal(t, StatusConsented, stored.Status)
	assert.Equal(t, clk.Now().UnixMilli(), stored.LastUpdated)

	// A new manager restores the decision.
	restored, err := NewManager(ctx, Options{Policy: "gdpr", Store: store, Clock: clk.Now})
	require.NoError(t, err)
	assert.Equal(t, StatusConsented, restored.Preferences().Status)

	m.Reset(ctx)
	assert.Equal(t, StatusUnknown, m.Preferences().Status)
	_, ok, _ = store.Get(ctx, StoreKey)
	assert.False(t, ok)
	assert.Len(t, pub.all(), 4)
}

func TestManager_ExpiryResetsToUnknown(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	expired := 0

	m, err := NewManager(ctx, Options{
		Policy:    "gdpr",
		Expiry:    time.Hour,
		Clock:     clk.Now,
		OnExpired: func() { expired++ },
	})
	require.NoError(t, err)

	m.SetStatus(ctx, StatusNotConsented)
	d := dispatch.NewEvent("e", nil)
	assert.False(t, m.ShouldQueue(d))

	clk.Advance(2 * time.Hour)
	assert.True(t, m.ShouldQueue(d))
	assert.False(t, m.ShouldDrop(d))
	assert.Equal(t, 1, expired)

	// Expiry fires once per decision.
	assert.True(t, m.ShouldQueue(d))
	assert.Equal(t, 1, expired)
}

func TestManager_CollectCCPA(t *testing.T) {
	m, err := NewManager(context.Background(), Options{Policy: "ccpa"})
	require.NoError(t, err)

	data, err := m.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, false, data[KeyDoNotSell])
	assert.Equal(t, 395*24*time.Hour, m.Expiry())
}

func TestManager_ConsentLogging(t *testing.T) {
	received := make(chan map[string]interface{}, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload map[string]interface{}
		_ = json.Unmarshal(body, &payload)
		received <- payload
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	m, err := NewManager(context.Background(), Options{
		Policy:         "gdpr",
		LoggingEnabled: true,
		LoggingURL:     server.URL,
		Account:        "acct",
		Profile:        "main",
		VisitorID:      func() string { return "visitor-1" },
	})
	require.NoError(t, err)

	m.SetStatus(context.Background(), StatusConsented)

	select {
	case payload := <-received:
		assert.Equal(t, EventGrantFullConsent, payload[dispatch.KeyEvent])
		assert.Equal(t, "acct", payload[dispatch.KeyAccount])
		assert.Equal(t, "visitor-1", payload[dispatch.KeyVisitorID])
		assert.Equal(t, "consented", payload[KeyStatus])
	case <-time.After(5 * time.Second):
		t.Fatal("consent update was not logged")
	}
}
