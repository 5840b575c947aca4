package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"analytics-sdk/internal/common/logging"
)

// Limiter keeps one token bucket per key. Buckets of idle keys expire.
type Limiter struct {
	config  Config
	buckets *cache.Cache
}

// NewLocalLimiter creates a keyed limiter from config.
func NewLocalLimiter(config Config) (*Limiter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Limiter{
		config:  config,
		buckets: cache.New(config.IdleTimeout, config.IdleTimeout),
	}, nil
}

// Config returns the effective configuration.
func (l *Limiter) Config() Config {
	return l.config
}

// TryAcquireForKey takes a token from key's bucket without blocking.
func (l *Limiter) TryAcquireForKey(key string) bool {
	if !l.config.Enabled() {
		return true
	}
	return l.bucket(key).Allow()
}

func (l *Limiter) bucket(key string) *rate.Limiter {
	if v, ok := l.buckets.Get(key); ok {
		b := v.(*rate.Limiter)
		// Refresh the idle timeout.
		l.buckets.SetDefault(key, b)
		return b
	}
	b := rate.NewLimiter(rate.Limit(l.config.RequestsPerSecond), l.config.BurstSize)
	if err := l.buckets.Add(key, b, cache.DefaultExpiration); err != nil {
		// Lost a race with another request for the same key.
		if v, ok := l.buckets.Get(key); ok {
			return v.(*rate.Limiter)
		}
	}
	return b
}

// ActiveKeys returns the number of tracked clients.
func (l *Limiter) ActiveKeys() int {
	return l.buckets.ItemCount()
}

// HTTPMiddleware rejects requests over the limit with 429.
func HTTPMiddleware(limiter *Limiter, keyFunc func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			if !limiter.TryAcquireForKey(key) {
				logging.Warn("Rate limit exceeded", logging.Field{Key: "key", Value: key}, logging.Field{Key: "path", Value: r.URL.Path})
				w.Header().Set("X-RateLimit-Limit", strconv.FormatFloat(limiter.config.RequestsPerSecond, 'f', -1, 64))
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Retry-After", "1")
				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IPKey extracts the client IP address from the request.
func IPKey(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
