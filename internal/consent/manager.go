package consent

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"analytics-sdk/internal/common/errors"
	"analytics-sdk/internal/common/logging"
	"analytics-sdk/internal/common/utils"
	"analytics-sdk/internal/dispatch"
	"analytics-sdk/internal/network"
)

// StoreKey is where the preferences are persisted.
const StoreKey = "consent_preferences"

// DefaultLoggingURL receives consent audit events.
const DefaultLoggingURL = "https://collect.tealiumiq.com/event"

// Store persists the preferences.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Publisher is notified after every preference change.
type Publisher interface {
	OnUserConsentPreferencesUpdated(prefs Preferences, policy Policy)
}

// Options configures a Manager.
type Options struct {
	// Policy names the consent regime. Empty disables the manager.
	Policy string
	// Expiry overrides the policy's default consent lifetime.
	Expiry    time.Duration
	Store     Store
	Publisher Publisher
	Clock     utils.Clock
	// OnExpired runs after an expired decision has been reset.
	OnExpired func()

	// LoggingEnabled posts an audit event on every change when the policy
	// supports it.
	LoggingEnabled bool
	LoggingURL     string
	HTTPClient     *http.Client
	Account        string
	Profile        string
	VisitorID      func() string
}

type persisted struct {
	Status      Status     `json:"status"`
	Categories  []Category `json:"categories,omitempty"`
	LastUpdated int64      `json:"last_updated"`
}

// Manager owns the consent decision. It is a validator and a collector.
type Manager struct {
	opts   Options
	policy Policy
	expiry time.Duration
	clock  utils.Clock
	logger logging.Logger

	mu    sync.RWMutex
	prefs Preferences
	// lastSet is the epoch millis of the last explicit decision, 0 if none.
	lastSet int64
}

// NewManager restores persisted preferences and resets them if they have
// expired.
func NewManager(ctx context.Context, opts Options) (*Manager, error) {
	m := &Manager{
		opts:   opts,
		clock:  opts.Clock,
		logger: logging.GetGlobalLogger().WithFields(logging.Field{Key: "component", Value: "consent"}),
		prefs:  Preferences{Status: StatusUnknown},
	}
	if m.clock == nil {
		m.clock = utils.SystemClock
	}
	if opts.Policy != "" {
		policy, err := NewPolicy(opts.Policy)
		if err != nil {
			return nil, err
		}
		m.policy = policy
		m.expiry = policy.DefaultExpiry()
	}
	if opts.Expiry > 0 {
		m.expiry = opts.Expiry
	}
	if m.opts.LoggingURL == "" {
		m.opts.LoggingURL = DefaultLoggingURL
	}
	if m.opts.HTTPClient == nil {
		m.opts.HTTPClient = network.NewHTTPClient()
	}

	if err := m.restore(ctx); err != nil {
		m.logger.Warn("Could not restore consent preferences", logging.Err(err))
	}
	m.ExpireConsent(ctx)
	return m, nil
}

func (m *Manager) restore(ctx context.Context) error {
	if m.opts.Store == nil {
		return nil
	}
	data, ok, err := m.opts.Store.Get(ctx, StoreKey)
	if err != nil || !ok {
		return err
	}
	var p persisted
	if err := json.Unmarshal(data, &p); err != nil {
		return errors.MalformedError("invalid stored consent preferences", err)
	}
	m.prefs = Preferences{Status: ParseStatus(string(p.Status)), Categories: p.Categories}
	m.lastSet = p.LastUpdated
	return nil
}

// Name identifies the manager in the validator chain and collector list.
func (m *Manager) Name() string { return "consent_manager" }

// Enabled reports whether a policy is in force.
func (m *Manager) Enabled() bool { return m.policy != nil }

// Policy returns the policy in force, or nil.
func (m *Manager) Policy() Policy { return m.policy }

// Preferences returns a copy of the current decision.
func (m *Manager) Preferences() Preferences {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Preferences{Status: m.prefs.Status, Categories: append([]Category(nil), m.prefs.Categories...)}
}

// Expiry returns how long a decision stays valid.
func (m *Manager) Expiry() time.Duration { return m.expiry }

// SetStatus records a decision. Consenting grants every category;
// declining or resetting clears them.
func (m *Manager) SetStatus(ctx context.Context, status Status) {
	switch status {
	case StatusConsented:
		m.set(ctx, status, AllCategories)
	default:
		m.set(ctx, status, nil)
	}
}

// SetCategories consents to exactly the given categories. An empty set is
// a decline.
func (m *Manager) SetCategories(ctx context.Context, categories []Category) {
	if len(categories) == 0 {
		m.set(ctx, StatusNotConsented, nil)
		return
	}
	m.set(ctx, StatusConsented, categories)
}

// Reset forgets the decision.
func (m *Manager) Reset(ctx context.Context) {
	m.mu.Lock()
	m.prefs = Preferences{Status: StatusUnknown}
	m.lastSet = 0
	m.mu.Unlock()
	if m.opts.Store != nil {
		if err := m.opts.Store.Delete(ctx, StoreKey); err != nil {
			m.logger.Error("Failed to clear consent preferences", err)
		}
	}
	m.notify(ctx, m.Preferences())
}

func (m *Manager) set(ctx context.Context, status Status, categories []Category) {
	m.mu.Lock()
	m.prefs = Preferences{Status: status, Categories: append([]Category(nil), categories...)}
	if status == StatusUnknown {
		m.lastSet = 0
	} else {
		m.lastSet = m.clock().UnixMilli()
	}
	stored := persisted{Status: status, Categories: m.prefs.Categories, LastUpdated: m.lastSet}
	prefs := Preferences{Status: status, Categories: append([]Category(nil), categories...)}
	m.mu.Unlock()

	if m.opts.Store != nil {
		data, _ := json.Marshal(stored)
		if err := m.opts.Store.Set(ctx, StoreKey, data); err != nil {
			m.logger.Error("Failed to persist consent preferences", err)
		}
	}
	m.notify(ctx, prefs)
}

func (m *Manager) notify(ctx context.Context, prefs Preferences) {
	if m.policy == nil {
		return
	}
	m.logger.Debug("Consent preferences updated", logging.Field{Key: "status", Value: string(prefs.Status)})
	if m.opts.Publisher != nil {
		m.opts.Publisher.OnUserConsentPreferencesUpdated(prefs, m.policy)
	}
	if m.opts.LoggingEnabled && m.policy.LoggingEnabled() {
		go m.logUpdate(prefs)
	}
}

func (m *Manager) logUpdate(prefs Preferences) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	payload := m.policy.StatusInfo(prefs)
	payload[dispatch.KeyEvent] = m.policy.LoggingEventName(prefs)
	payload[dispatch.KeyAccount] = m.opts.Account
	payload[dispatch.KeyProfile] = m.opts.Profile
	if m.opts.VisitorID != nil {
		payload[dispatch.KeyVisitorID] = m.opts.VisitorID()
	}
	if _, err := network.PostJSON(ctx, m.opts.HTTPClient, m.opts.LoggingURL, payload); err != nil {
		m.logger.Warn("Failed to log consent update", logging.Err(err))
	}
}

// IsExpired reports whether a decision made at lastSetMillis has expired.
func (m *Manager) IsExpired(lastSetMillis int64) bool {
	if lastSetMillis == 0 || m.expiry <= 0 {
		return false
	}
	return lastSetMillis < m.clock().Add(-m.expiry).UnixMilli()
}

// ExpireConsent resets an expired decision to unknown.
func (m *Manager) ExpireConsent(ctx context.Context) {
	m.mu.RLock()
	lastSet := m.lastSet
	m.mu.RUnlock()
	if !m.IsExpired(lastSet) {
		return
	}
	m.logger.Info("Consent decision expired")
	m.set(ctx, StatusUnknown, nil)
	if m.opts.OnExpired != nil {
		m.opts.OnExpired()
	}
}

// ShouldQueue delays dispatches while the policy wants a decision first.
func (m *Manager) ShouldQueue(d *dispatch.Dispatch) bool {
	if m.policy == nil {
		return false
	}
	m.ExpireConsent(context.Background())
	return m.policy.ShouldQueue(m.Preferences())
}

// ShouldDrop discards dispatches the user has not consented to.
func (m *Manager) ShouldDrop(d *dispatch.Dispatch) bool {
	if m.policy == nil {
		return false
	}
	return m.policy.ShouldDrop(m.Preferences())
}

// Collect adds the consent state to the payload.
func (m *Manager) Collect(ctx context.Context) (map[string]interface{}, error) {
	if m.policy == nil {
		return nil, nil
	}
	return m.policy.StatusInfo(m.Preferences()), nil
}
