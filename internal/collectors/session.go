package collectors

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"analytics-sdk/internal/common/logging"
	"analytics-sdk/internal/common/utils"
)

const (
	// SessionLength is the inactivity after which a new session starts.
	SessionLength = 30 * time.Minute

	sessionKey = "current_session"
)

// SessionStore persists the current session across restarts.
type SessionStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// SessionPublisher is told when a new session begins.
type SessionPublisher interface {
	OnNewSession(sessionID string)
}

// Session is identified by its start time in epoch millis.
type Session struct {
	ID            int64 `json:"id"`
	LastEventTime int64 `json:"last_event_time"`
	EventCount    int   `json:"event_count"`
}

func (s Session) expired(now int64) bool {
	last := s.ID
	if s.LastEventTime > last {
		last = s.LastEventTime
	}
	return last+SessionLength.Milliseconds() < now
}

// SessionManager tracks the current session and rolls over after inactivity.
type SessionManager struct {
	store     SessionStore
	publisher SessionPublisher
	clock     utils.Clock
	logger    logging.Logger

	mu      sync.Mutex
	current Session
}

// NewSessionManager resumes a stored unexpired session or starts a new one.
func NewSessionManager(ctx context.Context, store SessionStore, publisher SessionPublisher, clock utils.Clock) *SessionManager {
	if clock == nil {
		clock = utils.SystemClock
	}
	m := &SessionManager{
		store:     store,
		publisher: publisher,
		clock:     clock,
		logger:    logging.GetGlobalLogger().WithFields(logging.Field{Key: "component", Value: "session"}),
	}

	if stored, ok := m.load(ctx); ok && !stored.expired(clock().UnixMilli()) {
		m.logger.Debug("Resuming existing session", logging.Int64("session_id", stored.ID))
		m.current = stored
		return m
	}
	m.mu.Lock()
	id := m.newSessionLocked(ctx)
	m.mu.Unlock()
	m.notify(id)
	return m
}

func (m *SessionManager) load(ctx context.Context) (Session, bool) {
	if m.store == nil {
		return Session{}, false
	}
	data, ok, err := m.store.Get(ctx, sessionKey)
	if err != nil || !ok {
		return Session{}, false
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil || s.ID == 0 {
		return Session{}, false
	}
	return s, true
}

func (m *SessionManager) saveLocked(ctx context.Context) {
	if m.store == nil {
		return
	}
	data, _ := json.Marshal(m.current)
	if err := m.store.Set(ctx, sessionKey, data); err != nil {
		m.logger.Warn("Failed to persist session", logging.Err(err))
	}
}

func (m *SessionManager) newSessionLocked(ctx context.Context) string {
	m.current = Session{ID: m.clock().UnixMilli()}
	m.saveLocked(ctx)
	id := strconv.FormatInt(m.current.ID, 10)
	m.logger.Debug("Created new session", logging.String("session_id", id))
	return id
}

func (m *SessionManager) notify(id string) {
	if m.publisher != nil {
		m.publisher.OnNewSession(id)
	}
}

// Track records an event, starting a new session first if the current one
// has expired. It returns the session ID the event belongs to.
func (m *SessionManager) Track(ctx context.Context) string {
	m.mu.Lock()
	now := m.clock().UnixMilli()
	newID := ""
	if m.current.expired(now) {
		newID = m.newSessionLocked(ctx)
	}
	m.current.EventCount++
	m.current.LastEventTime = now
	id := strconv.FormatInt(m.current.ID, 10)
	m.mu.Unlock()

	if newID != "" {
		m.notify(newID)
	}
	return id
}

// CurrentSessionID returns the current session's ID.
func (m *SessionManager) CurrentSessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return strconv.FormatInt(m.current.ID, 10)
}

// Current returns a copy of the current session.
func (m *SessionManager) Current() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *SessionManager) OnActivityResumed() {}

// OnActivityPaused persists the session.
func (m *SessionManager) OnActivityPaused() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveLocked(context.Background())
}

func (m *SessionManager) OnActivityStopped(bool) {}

// SessionCollector adds the session ID and advances the session.
type SessionCollector struct {
	manager *SessionManager
}

func NewSessionCollector(m *SessionManager) *SessionCollector {
	return &SessionCollector{manager: m}
}

func (c *SessionCollector) Name() string  { return "session" }
func (c *SessionCollector) Enabled() bool { return true }

func (c *SessionCollector) Collect(ctx context.Context) (map[string]interface{}, error) {
	return map[string]interface{}{KeySessionID: c.manager.Track(ctx)}, nil
}
