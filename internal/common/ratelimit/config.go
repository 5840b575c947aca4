// Package ratelimit limits inbound requests per client with token buckets
// from golang.org/x/time/rate.
package ratelimit

import (
	"time"

	"analytics-sdk/internal/common/errors"
)

// Config represents rate limiter configuration
type Config struct {
	// RequestsPerSecond is the sustained rate per key. Zero disables limiting.
	RequestsPerSecond float64
	// BurstSize defaults to the rate rounded up, at least one.
	BurstSize int
	// IdleTimeout drops the bucket of a key that has not been seen for this
	// long.
	IdleTimeout time.Duration
}

// Enabled reports whether requests are limited at all.
func (c Config) Enabled() bool {
	return c.RequestsPerSecond > 0
}

// Validate validates the rate limiter configuration and fills in defaults.
func (c *Config) Validate() error {
	if c.RequestsPerSecond < 0 {
		return errors.ConfigError("requests per second must not be negative")
	}
	if c.BurstSize < 0 {
		return errors.ConfigError("burst size must not be negative")
	}
	if c.BurstSize == 0 {
		c.BurstSize = int(c.RequestsPerSecond)
		if float64(c.BurstSize) < c.RequestsPerSecond {
			c.BurstSize++
		}
		if c.BurstSize < 1 {
			c.BurstSize = 1
		}
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 10 * time.Minute
	}
	return nil
}
