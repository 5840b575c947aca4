package network

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analytics-sdk/internal/common/errors"
)

func TestDefaultClientConfig(t *testing.T) {
	config := DefaultClientConfig()

	assert.Equal(t, 30*time.Second, config.Timeout)
	assert.Equal(t, 100, config.MaxIdleConns)
	assert.Equal(t, 10, config.MaxIdleConnsPerHost)
	assert.Nil(t, config.Transport)
}

func TestNewHTTPClient_AppliesOptions(t *testing.T) {
	client := NewHTTPClient(WithTimeout(5*time.Second), WithoutKeepAlives())

	assert.Equal(t, 5*time.Second, client.Timeout)
	transport, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.True(t, transport.DisableKeepAlives)
}

func TestIsRetryableStatus(t *testing.T) {
	for _, status := range []int{408, 429, 500, 502, 503, 599} {
		assert.True(t, IsRetryableStatus(status), "status %d", status)
	}
	for _, status := range []int{200, 204, 400, 401, 404} {
		assert.False(t, IsRetryableStatus(status), "status %d", status)
	}
}

func TestPostJSON(t *testing.T) {
	var received map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	status, err := PostJSON(context.Background(), NewHTTPClient(), server.URL, map[string]interface{}{"a": "b"})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "b", received["a"])
}

func TestPostJSON_ClassifiesFailures(t *testing.T) {
	status := http.StatusServiceUnavailable
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer server.Close()

	_, err := PostJSON(context.Background(), NewHTTPClient(), server.URL, map[string]interface{}{})
	assert.True(t, errors.IsType(err, errors.ErrTypeTransient))

	status = http.StatusBadRequest
	_, err = PostJSON(context.Background(), NewHTTPClient(), server.URL, map[string]interface{}{})
	assert.True(t, errors.IsType(err, errors.ErrTypeValidation))
}

func TestStaticConnectivity(t *testing.T) {
	c := NewStaticConnectivity(true, false)
	assert.True(t, c.IsConnected())
	assert.False(t, c.IsConnectedWifi())

	c.Set(false, true)
	assert.False(t, c.IsConnected())
	assert.False(t, c.IsConnectedWifi())
}

func TestDialConnectivity(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := server.Listener.Addr().String()

	c := NewDialConnectivity(addr, time.Second, time.Hour)
	assert.True(t, c.IsConnected())
	assert.True(t, c.IsConnectedWifi())

	c.Metered = true
	assert.False(t, c.IsConnectedWifi())

	server.Close()
	assert.True(t, c.IsConnected(), "cached result is reused within ttl")
}
