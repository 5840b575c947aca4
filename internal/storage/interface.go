// Package storage provides the persistence used by the pipeline: namespaced
// key-value stores for settings, consent and visitor identity, and the
// durable dispatch queue.
package storage

import (
	"context"
	"time"
)

// Expiry marks when a stored record stops being readable.
//
// Non-negative values are absolute instants in epoch seconds.
type Expiry int64

const (
	// Forever never expires.
	Forever Expiry = -1
	// Session lasts until the next session starts or the process restarts.
	Session Expiry = -2
)

// ExpiresAt returns an absolute expiry at t.
func ExpiresAt(t time.Time) Expiry {
	return Expiry(t.Unix())
}

// ExpiresAfter returns an absolute expiry d after now.
func ExpiresAfter(now time.Time, d time.Duration) Expiry {
	return ExpiresAt(now.Add(d))
}

// IsExpired reports whether the record is no longer readable at now.
func (e Expiry) IsExpired(now time.Time) bool {
	return e >= 0 && now.Unix() > int64(e)
}

// IsSession reports whether e is the session sentinel.
func (e Expiry) IsSession() bool {
	return e == Session
}

// TTL returns the remaining lifetime at now. Sentinels and past instants
// return 0, meaning no TTL applies or the record is already gone.
func (e Expiry) TTL(now time.Time) time.Duration {
	if e < 0 {
		return 0
	}
	remaining := time.Unix(int64(e), 0).Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// KeyValueStore is a namespaced store of opaque values.
type KeyValueStore interface {
	// Get returns the value for key. ok is false when the key is absent or expired.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set stores value without expiry.
	Set(ctx context.Context, key string, value []byte) error
	SetWithExpiry(ctx context.Context, key string, value []byte, expiry Expiry) error
	Delete(ctx context.Context, key string) error
	// Keys lists the unexpired keys.
	Keys(ctx context.Context) ([]string, error)
	Clear(ctx context.Context) error
}

// QueuedRecord is one persisted dispatch.
type QueuedRecord struct {
	Key       string
	Payload   []byte
	Expiry    Expiry
	Timestamp int64
}

// QueueStore is the backing store of the durable queue. Records are ordered
// by insertion; every read excludes records expired at now.
type QueueStore interface {
	Insert(ctx context.Context, record QueuedRecord) error
	// Pop atomically removes and returns up to limit of the oldest unexpired
	// records. A negative limit returns all of them.
	Pop(ctx context.Context, limit int, now time.Time) ([]QueuedRecord, error)
	Count(ctx context.Context, now time.Time) (int, error)
	Keys(ctx context.Context, now time.Time) ([]string, error)
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
	PurgeSession(ctx context.Context) (int, error)
	// Trim removes the oldest records until at most max remain.
	Trim(ctx context.Context, max int) (int, error)
	Clear(ctx context.Context) error
}

// Backend opens stores on one physical storage system.
type Backend interface {
	Store(namespace string) (KeyValueStore, error)
	Queue() (QueueStore, error)
	Health() error
	Close() error
}

// StorageConfig is backend-specific configuration.
type StorageConfig interface {
	GetType() string
}
