package storage

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"analytics-sdk/internal/common/errors"
	"analytics-sdk/internal/common/logging"
	"analytics-sdk/internal/common/utils"
	"analytics-sdk/internal/dispatch"
	"analytics-sdk/internal/settings"
)

// DispatchStorage is the durable dispatch queue. Capacity and default expiry
// follow the active library settings.
type DispatchStorage struct {
	queue  QueueStore
	clock  utils.Clock
	logger logging.Logger

	mu           sync.Mutex
	maxQueueSize int
	expiration   time.Duration
}

// NewDispatchStorage wraps queue with the batching limits of s.
func NewDispatchStorage(queue QueueStore, s *settings.LibrarySettings, clock utils.Clock) *DispatchStorage {
	if clock == nil {
		clock = utils.SystemClock
	}
	if s == nil {
		s = settings.Defaults()
	}
	return &DispatchStorage{
		queue:        queue,
		clock:        clock,
		logger:       logging.GetGlobalLogger().WithFields(logging.Field{Key: "component", Value: "dispatch_storage"}),
		maxQueueSize: s.Batching.MaxQueueSize,
		expiration:   s.Batching.Expiration,
	}
}

func (s *DispatchStorage) limits() (int, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxQueueSize, s.expiration
}

// Enqueue persists d with the default expiry.
func (s *DispatchStorage) Enqueue(ctx context.Context, d *dispatch.Dispatch) error {
	_, expiration := s.limits()
	expiry := Forever
	if expiration > 0 {
		expiry = ExpiresAfter(s.clock(), expiration)
	}
	return s.EnqueueWithExpiry(ctx, d, expiry)
}

// EnqueueWithExpiry persists d until expiry. When the queue is full the
// oldest records are evicted. A max queue size of zero keeps nothing.
func (s *DispatchStorage) EnqueueWithExpiry(ctx context.Context, d *dispatch.Dispatch, expiry Expiry) error {
	max, _ := s.limits()
	if max == 0 {
		s.logger.Debug("Queue disabled, not persisting dispatch", logging.Field{Key: "dispatch_id", Value: d.ID()})
		return nil
	}

	payload, err := json.Marshal(d.Payload())
	if err != nil {
		return errors.MalformedError("failed to encode dispatch", err)
	}
	record := QueuedRecord{
		Key:       d.ID(),
		Payload:   payload,
		Expiry:    expiry,
		Timestamp: d.SortKey(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.queue.Insert(ctx, record); err != nil {
		return errors.StorageError("enqueue", err)
	}
	if s.maxQueueSize > 0 {
		evicted, err := s.queue.Trim(ctx, s.maxQueueSize)
		if err != nil {
			return errors.StorageError("trim", err)
		}
		if evicted > 0 {
			s.logger.Debug("Queue full, evicted oldest dispatches", logging.Int("evicted", evicted))
		}
	}
	return nil
}

// Dequeue removes and returns up to limit of the oldest dispatches, or all
// of them when limit is negative. Records that cannot be decoded are dropped.
func (s *DispatchStorage) Dequeue(ctx context.Context, limit int) ([]*dispatch.Dispatch, error) {
	if limit == 0 {
		return nil, nil
	}
	records, err := s.queue.Pop(ctx, limit, s.clock())
	if err != nil {
		return nil, errors.StorageError("dequeue", err)
	}
	out := make([]*dispatch.Dispatch, 0, len(records))
	for _, r := range records {
		var payload map[string]interface{}
		if err := json.Unmarshal(r.Payload, &payload); err != nil {
			s.logger.Warn("Dropping undecodable queued dispatch", logging.Err(err), logging.Field{Key: "key", Value: r.Key})
			continue
		}
		var ts *int64
		if r.Timestamp != 0 {
			t := r.Timestamp
			ts = &t
		}
		out = append(out, dispatch.FromPayload(r.Key, ts, payload))
	}
	return out, nil
}

// Count returns the number of unexpired queued dispatches.
func (s *DispatchStorage) Count(ctx context.Context) (int, error) {
	n, err := s.queue.Count(ctx, s.clock())
	if err != nil {
		return 0, errors.StorageError("count", err)
	}
	return n, nil
}

// Keys returns the IDs of the queued dispatches, oldest first.
func (s *DispatchStorage) Keys(ctx context.Context) ([]string, error) {
	keys, err := s.queue.Keys(ctx, s.clock())
	if err != nil {
		return nil, errors.StorageError("keys", err)
	}
	return keys, nil
}

func (s *DispatchStorage) PurgeExpired(ctx context.Context) (int, error) {
	n, err := s.queue.PurgeExpired(ctx, s.clock())
	if err != nil {
		return 0, errors.StorageError("purge_expired", err)
	}
	if n > 0 {
		s.logger.Debug("Purged expired dispatches", logging.Int("count", n))
	}
	return n, nil
}

func (s *DispatchStorage) PurgeSession(ctx context.Context) (int, error) {
	n, err := s.queue.PurgeSession(ctx)
	if err != nil {
		return 0, errors.StorageError("purge_session", err)
	}
	return n, nil
}

func (s *DispatchStorage) Clear(ctx context.Context) error {
	if err := s.queue.Clear(ctx); err != nil {
		return errors.StorageError("clear", err)
	}
	return nil
}

// Resize changes the capacity, evicting the oldest records beyond it.
// A negative size is unbounded.
func (s *DispatchStorage) Resize(ctx context.Context, maxQueueSize int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxQueueSize = maxQueueSize
	if maxQueueSize < 0 {
		return nil
	}
	if _, err := s.queue.Trim(ctx, maxQueueSize); err != nil {
		return errors.StorageError("resize", err)
	}
	return nil
}

// OnLibrarySettingsUpdated applies new batching limits.
func (s *DispatchStorage) OnLibrarySettingsUpdated(ls *settings.LibrarySettings) {
	if ls == nil {
		return
	}
	s.mu.Lock()
	s.expiration = ls.Batching.Expiration
	s.mu.Unlock()
	if err := s.Resize(context.Background(), ls.Batching.MaxQueueSize); err != nil {
		s.logger.Error("Failed to resize queue", err)
	}
}

// OnNewSession drops dispatches that were only kept for the previous session.
func (s *DispatchStorage) OnNewSession(sessionID string) {
	n, err := s.PurgeSession(context.Background())
	if err != nil {
		s.logger.Error("Failed to purge session dispatches", err)
		return
	}
	if n > 0 {
		s.logger.Debug("Purged session dispatches", logging.Int("count", n), logging.String("session_id", sessionID))
	}
}
