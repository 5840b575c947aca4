package network

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"analytics-sdk/internal/common/errors"
	"analytics-sdk/internal/common/logging"
	"analytics-sdk/internal/common/utils"
)

// MaxRetries caps the number of retries a ResourceRetriever will make.
const MaxRetries = 5

// ResourceEntity is a fetched remote document.
type ResourceEntity struct {
	Body       []byte
	ETag       string
	StatusCode int
	FetchedAt  time.Time
}

// FetchStatus describes the outcome of a Fetch call.
type FetchStatus int

const (
	// FetchSkipped means no request was made: the refresh interval has not
	// elapsed or another fetch is running
	FetchSkipped FetchStatus = iota
	// FetchNotModified means the server confirmed the cached copy is current
	FetchNotModified
	// FetchFailed means every attempt failed or the body was empty
	FetchFailed
	// FetchOK means a new document was retrieved
	FetchOK
)

func (s FetchStatus) String() string {
	switch s {
	case FetchSkipped:
		return "skipped"
	case FetchNotModified:
		return "not_modified"
	case FetchFailed:
		return "failed"
	case FetchOK:
		return "ok"
	default:
		return "unknown"
	}
}

// ResourceRetriever fetches a remote document at most once per refresh
// interval, optionally as a conditional GET, retrying transient failures.
type ResourceRetriever struct {
	url    string
	client *http.Client
	clock  utils.Clock
	logger logging.Logger

	// UseConditionalFetch sends If-None-Match / If-Modified-Since so an
	// unchanged document costs a 304. Default true.
	UseConditionalFetch bool
	// Retry controls attempts. MaxRetries is clamped to MaxRetries.
	Retry utils.RetryConfig

	fetching atomic.Bool

	mu              sync.Mutex
	refreshInterval time.Duration
	lastFetch       time.Time
	etag            string
}

// RetrieverOption configures a ResourceRetriever
type RetrieverOption func(*ResourceRetriever)

// WithHTTPClient sets the client used for requests
func WithHTTPClient(client *http.Client) RetrieverOption {
	return func(r *ResourceRetriever) {
		r.client = client
	}
}

// WithClock sets the time source
func WithClock(clock utils.Clock) RetrieverOption {
	return func(r *ResourceRetriever) {
		r.clock = clock
	}
}

// WithRefreshInterval sets the minimum time between fetches
func WithRefreshInterval(d time.Duration) RetrieverOption {
	return func(r *ResourceRetriever) {
		r.refreshInterval = d
	}
}

// WithRetry sets the retry configuration
func WithRetry(config utils.RetryConfig) RetrieverOption {
	return func(r *ResourceRetriever) {
		r.Retry = config
	}
}

// WithoutConditionalFetch disables conditional requests for servers that do not support them
func WithoutConditionalFetch() RetrieverOption {
	return func(r *ResourceRetriever) {
		r.UseConditionalFetch = false
	}
}

// NewResourceRetriever creates a retriever for url.
func NewResourceRetriever(url string, opts ...RetrieverOption) *ResourceRetriever {
	r := &ResourceRetriever{
		url:                 url,
		client:              NewHTTPClient(),
		clock:               utils.SystemClock,
		UseConditionalFetch: true,
		refreshInterval:     time.Hour,
		Retry:               utils.DefaultRetryConfig(),
	}
	r.Retry.FinalUnbounded = true
	for _, opt := range opts {
		opt(r)
	}
	if r.Retry.Retryable == nil {
		r.Retry.Retryable = errors.IsRetryable
	}
	if r.Retry.MaxRetries > MaxRetries {
		r.Retry.MaxRetries = MaxRetries
	}
	if r.Retry.MaxRetries < 0 {
		r.Retry.MaxRetries = 0
	}
	r.logger = logging.GetGlobalLogger().WithFields(
		logging.Field{Key: "component", Value: "resource_retriever"},
		logging.Field{Key: "url", Value: url},
	)
	return r
}

// URL returns the resource location.
func (r *ResourceRetriever) URL() string {
	return r.url
}

// LastFetch returns when the last fetch finished, or the zero time.
func (r *ResourceRetriever) LastFetch() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastFetch
}

// SetETag seeds the validator used for conditional requests, typically from
// a cached copy of the document.
func (r *ResourceRetriever) SetETag(etag string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.etag = etag
}

// SetRefreshInterval changes the minimum time between fetches. Zero always fetches.
func (r *ResourceRetriever) SetRefreshInterval(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshInterval = d
}

// RefreshInterval returns the minimum time between fetches.
func (r *ResourceRetriever) RefreshInterval() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refreshInterval
}

// ShouldRefresh reports whether a Fetch call would go to the network.
func (r *ResourceRetriever) ShouldRefresh() bool {
	if r.fetching.Load() {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dueLocked()
}

func (r *ResourceRetriever) dueLocked() bool {
	if r.lastFetch.IsZero() || r.refreshInterval <= 0 {
		return true
	}
	return !r.clock().Before(r.lastFetch.Add(r.refreshInterval))
}

// Fetch retrieves the resource. The entity is only set with FetchOK.
// Failures are logged, never returned.
func (r *ResourceRetriever) Fetch(ctx context.Context) (*ResourceEntity, FetchStatus) {
	if !r.fetching.CompareAndSwap(false, true) {
		r.logger.Debug("Fetch already in progress")
		return nil, FetchSkipped
	}
	defer r.fetching.Store(false)

	r.mu.Lock()
	due := r.dueLocked()
	lastFetch, etag := r.lastFetch, r.etag
	r.mu.Unlock()

	if !due {
		r.logger.Debug("Refresh interval has not elapsed, not fetching")
		return nil, FetchSkipped
	}

	defer func() {
		r.mu.Lock()
		r.lastFetch = r.clock()
		r.mu.Unlock()
	}()

	var entity *ResourceEntity
	err := utils.RetryWithTimeout(ctx, r.Retry, func(attemptCtx context.Context) error {
		result, err := r.get(attemptCtx, lastFetch, etag)
		if err != nil {
			return err
		}
		entity = result
		return nil
	})
	if err != nil {
		r.logger.Warn("Failed to fetch resource", logging.Err(err))
		return nil, FetchFailed
	}

	if entity.StatusCode == http.StatusNotModified {
		r.logger.Debug("Resource not modified")
		return nil, FetchNotModified
	}
	if len(entity.Body) == 0 {
		r.logger.Warn("Resource body was empty")
		return nil, FetchFailed
	}

	if entity.ETag != "" {
		r.SetETag(entity.ETag)
	}
	return entity, FetchOK
}

func (r *ResourceRetriever) get(ctx context.Context, lastFetch time.Time, etag string) (*ResourceEntity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("invalid resource url %q: %v", r.url, err))
	}

	if r.UseConditionalFetch {
		if etag != "" {
			req.Header.Set("If-None-Match", etag)
		}
		if !lastFetch.IsZero() {
			req.Header.Set("If-Modified-Since", lastFetch.UTC().Format(http.TimeFormat))
		}
	}

	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.TimeoutError("resource fetch")
		}
		return nil, errors.TransientError("resource request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.TransientError("failed to read resource body", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotModified:
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case IsRetryableStatus(resp.StatusCode):
		return nil, errors.TransientError(fmt.Sprintf("resource returned %d", resp.StatusCode), nil)
	default:
		return nil, errors.NotFoundError(fmt.Sprintf("resource (status %d)", resp.StatusCode))
	}

	return &ResourceEntity{
		Body:       body,
		ETag:       resp.Header.Get("ETag"),
		StatusCode: resp.StatusCode,
		FetchedAt:  r.clock(),
	}, nil
}
