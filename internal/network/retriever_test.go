package network

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analytics-sdk/internal/common/utils"
)

func fastRetry(maxRetries int) utils.RetryConfig {
	return utils.RetryConfig{
		MaxRetries:     maxRetries,
		AttemptTimeout: 200 * time.Millisecond,
		Delay:          utils.LinearDelay(time.Millisecond),
	}
}

func TestResourceRetriever_FetchesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(`{"battery_saver":true}`))
	}))
	defer server.Close()

	retriever := NewResourceRetriever(server.URL, WithRetry(fastRetry(1)))

	entity, status := retriever.Fetch(context.Background())
	require.Equal(t, FetchOK, status)
	assert.Equal(t, `{"battery_saver":true}`, string(entity.Body))
	assert.Equal(t, `"v1"`, entity.ETag)
	assert.False(t, retriever.LastFetch().IsZero())
}

func TestResourceRetriever_RespectsRefreshInterval(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	clock := newFakeClock()
	retriever := NewResourceRetriever(server.URL,
		WithClock(clock.Now),
		WithRefreshInterval(15*time.Minute),
		WithRetry(fastRetry(0)),
	)

	_, status := retriever.Fetch(context.Background())
	require.Equal(t, FetchOK, status)

	_, status = retriever.Fetch(context.Background())
	assert.Equal(t, FetchSkipped, status)
	assert.False(t, retriever.ShouldRefresh())

	clock.Advance(15 * time.Minute)
	assert.True(t, retriever.ShouldRefresh())
	_, status = retriever.Fetch(context.Background())
	assert.Equal(t, FetchOK, status)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestResourceRetriever_ZeroIntervalAlwaysFetches(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	retriever := NewResourceRetriever(server.URL, WithRefreshInterval(0), WithoutConditionalFetch(), WithRetry(fastRetry(0)))

	for i := 0; i < 3; i++ {
		_, status := retriever.Fetch(context.Background())
		assert.Equal(t, FetchOK, status)
	}
}

func TestResourceRetriever_ConditionalFetchNotModified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	retriever := NewResourceRetriever(server.URL, WithRefreshInterval(0), WithRetry(fastRetry(0)))

	_, status := retriever.Fetch(context.Background())
	require.Equal(t, FetchOK, status)

	_, status = retriever.Fetch(context.Background())
	assert.Equal(t, FetchNotModified, status)
}

func TestResourceRetriever_RetriesTransientStatus(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	retriever := NewResourceRetriever(server.URL, WithRetry(fastRetry(5)))

	_, status := retriever.Fetch(context.Background())
	assert.Equal(t, FetchOK, status)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestResourceRetriever_DoesNotRetryNotFound(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	retriever := NewResourceRetriever(server.URL, WithRetry(fastRetry(5)))

	_, status := retriever.Fetch(context.Background())
	assert.Equal(t, FetchFailed, status)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestResourceRetriever_TimeoutThenFinalAttempt(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) <= 2 {
			time.Sleep(100 * time.Millisecond)
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	retry := utils.RetryConfig{MaxRetries: 1, AttemptTimeout: 20 * time.Millisecond, FinalUnbounded: true}
	retriever := NewResourceRetriever(server.URL, WithRetry(retry))

	_, status := retriever.Fetch(context.Background())
	assert.Equal(t, FetchOK, status)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestResourceRetriever_SingleFlight(t *testing.T) {
	release := make(chan struct{})
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		<-release
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	retriever := NewResourceRetriever(server.URL, WithRefreshInterval(0), WithRetry(utils.RetryConfig{}))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		retriever.Fetch(context.Background())
	}()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&hits) == 1 }, time.Second, time.Millisecond)

	_, status := retriever.Fetch(context.Background())
	assert.Equal(t, FetchSkipped, status)

	close(release)
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestResourceRetriever_ClampsRetries(t *testing.T) {
	retriever := NewResourceRetriever("http://example.invalid", WithRetry(utils.RetryConfig{MaxRetries: 50}))
	assert.Equal(t, MaxRetries, retriever.Retry.MaxRetries)
}
