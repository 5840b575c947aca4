package settings

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"analytics-sdk/internal/common/logging"
	"analytics-sdk/internal/common/utils"
	"analytics-sdk/internal/network"
)

// CacheKey is the key under which the last good remote document is stored.
const CacheKey = "library_settings"

// AssetFileName is the conventional name of the bundled settings document.
const AssetFileName = "tealium-settings.json"

// State records which source the current settings came from.
type State int32

const (
	StateUninitialized State = iota
	StateDefault
	StateAssetLoaded
	StateCacheLoaded
	StateRemoteLoaded
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateDefault:
		return "default"
	case StateAssetLoaded:
		return "asset_loaded"
	case StateCacheLoaded:
		return "cache_loaded"
	case StateRemoteLoaded:
		return "remote_loaded"
	default:
		return "unknown"
	}
}

// Publisher receives every accepted settings change.
type Publisher interface {
	OnLibrarySettingsUpdated(s *LibrarySettings)
}

// Cache persists the last good remote document across restarts.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// DefaultURL returns the published settings page for an account.
func DefaultURL(account, profile, environment string) string {
	return fmt.Sprintf("https://tags.tiqcdn.com/utag/%s/%s/%s/mobile.html", account, profile, environment)
}

// DefaultJSONURL returns the JSON settings document for an account.
func DefaultJSONURL(account, profile string) string {
	return fmt.Sprintf("https://tags.tiqcdn.com/dle/%s/%s/%s", account, profile, AssetFileName)
}

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// UseRemote enables the remote document. When false the bundled asset is
	// read once and nothing is fetched.
	UseRemote bool
	// URL of the remote document. Pages ending in .html are read as
	// published HTML.
	URL string
	// AssetPath is the bundled document; empty skips it.
	AssetPath string
	// Override replaces the built-in defaults.
	Override *LibrarySettings
	// OverrideJSON is merged over the defaults (or Override).
	OverrideJSON []byte

	Cache     Cache
	Retriever *network.ResourceRetriever
	Cooldown  *network.CooldownHelper
	Publisher Publisher
	Clock     utils.Clock
}

// Manager owns the current LibrarySettings.
//
// Reads are lock-free. Remote fetches are single-flight: overlapping callers
// share one request. Failed fetches are spaced out by the cooldown helper and
// never replace or republish the current settings.
type Manager struct {
	opts      ManagerOptions
	current   atomic.Pointer[LibrarySettings]
	state     atomic.Int32
	group     singleflight.Group
	retriever *network.ResourceRetriever
	cooldown  *network.CooldownHelper
	clock     utils.Clock
	logger    logging.Logger

	mu          sync.Mutex
	lastAttempt time.Time
}

// NewManager builds the initial settings synchronously: defaults, then the
// override, then the bundled asset (local mode) or the cached remote copy
// (remote mode). Call Start to begin remote synchronization.
func NewManager(opts ManagerOptions) *Manager {
	m := &Manager{
		opts:      opts,
		retriever: opts.Retriever,
		cooldown:  opts.Cooldown,
		clock:     opts.Clock,
		logger:    logging.GetGlobalLogger().WithFields(logging.Field{Key: "component", Value: "settings"}),
	}
	if m.clock == nil {
		m.clock = utils.SystemClock
	}
	if m.cooldown == nil {
		m.cooldown = network.NewCooldownHelper(time.Hour, 5*time.Minute, m.clock)
	}
	if m.retriever == nil && opts.UseRemote && opts.URL != "" {
		m.retriever = network.NewResourceRetriever(opts.URL, network.WithClock(m.clock))
	}

	m.load()
	return m
}

func (m *Manager) load() {
	current := Defaults()
	if m.opts.Override != nil {
		current = m.opts.Override.Clone()
	}
	if len(m.opts.OverrideJSON) > 0 {
		if merged, err := Merge(current, m.opts.OverrideJSON); err != nil {
			m.logger.Warn("Ignoring invalid settings override", logging.Err(err))
		} else {
			current = merged
		}
	}
	state := StateDefault

	if !m.opts.UseRemote {
		if m.opts.AssetPath != "" {
			if merged, err := m.loadAsset(current); err != nil {
				m.logger.Warn("Could not load bundled settings", logging.Err(err),
					logging.Field{Key: "path", Value: m.opts.AssetPath})
			} else {
				current = merged
				state = StateAssetLoaded
			}
		}
	} else if m.opts.Cache != nil {
		if merged, ok := m.loadCache(current); ok {
			current = merged
			state = StateCacheLoaded
		}
	}

	if m.retriever != nil {
		m.retriever.SetRefreshInterval(current.RefreshInterval)
		if current.ETag != "" {
			m.retriever.SetETag(current.ETag)
		}
	}

	m.current.Store(current)
	m.state.Store(int32(state))
	m.logger.Debug("Library settings initialized", logging.Field{Key: "state", Value: state.String()})
}

func (m *Manager) loadAsset(base *LibrarySettings) (*LibrarySettings, error) {
	data, err := os.ReadFile(m.opts.AssetPath)
	if err != nil {
		return nil, err
	}
	return Merge(base, data)
}

func (m *Manager) loadCache(base *LibrarySettings) (*LibrarySettings, bool) {
	data, found, err := m.opts.Cache.Get(context.Background(), CacheKey)
	if err != nil {
		m.logger.Warn("Could not read cached settings", logging.Err(err))
		return nil, false
	}
	if !found {
		return nil, false
	}
	merged, err := Merge(base, data)
	if err != nil {
		m.logger.Warn("Discarding malformed cached settings", logging.Err(err))
		return nil, false
	}
	return merged, true
}

// Settings returns the current snapshot. Never nil.
func (m *Manager) Settings() *LibrarySettings {
	return m.current.Load()
}

// State returns the source of the current snapshot.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Start launches the first remote fetch in the background.
func (m *Manager) Start(ctx context.Context) {
	m.FetchAsync(ctx)
}

// FetchAsync requests a remote refresh without waiting for it.
func (m *Manager) FetchAsync(ctx context.Context) {
	if !m.opts.UseRemote || m.retriever == nil {
		return
	}
	go func() {
		_, _ = m.Fetch(ctx)
	}()
}

// Fetch refreshes from the remote document. It reports whether new settings
// were accepted. Concurrent callers share a single request.
func (m *Manager) Fetch(ctx context.Context) (bool, error) {
	if !m.opts.UseRemote || m.retriever == nil {
		return false, nil
	}
	v, err, _ := m.group.Do("remote", func() (interface{}, error) {
		return m.fetchRemote(ctx)
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (m *Manager) fetchRemote(ctx context.Context) (bool, error) {
	m.mu.Lock()
	lastAttempt := m.lastAttempt
	m.mu.Unlock()

	if !lastAttempt.IsZero() && m.cooldown.IsInCooldown(lastAttempt) {
		m.logger.Debug("Settings fetch in cooldown",
			logging.Field{Key: "interval", Value: m.cooldown.Interval().String()})
		return false, nil
	}

	base := m.Settings()
	m.retriever.SetRefreshInterval(base.RefreshInterval)
	if !m.retriever.ShouldRefresh() {
		return false, nil
	}

	m.mu.Lock()
	m.lastAttempt = m.clock()
	m.mu.Unlock()

	entity, status := m.retriever.Fetch(ctx)
	switch status {
	case network.FetchSkipped:
		return false, nil
	case network.FetchNotModified:
		m.cooldown.UpdateStatus(network.CooldownSuccess)
		return false, nil
	case network.FetchFailed:
		m.cooldown.UpdateStatus(network.CooldownFailure)
		return false, nil
	}

	updated, err := m.decode(base, entity.Body)
	if err != nil {
		m.cooldown.UpdateStatus(network.CooldownFailure)
		m.logger.Warn("Remote settings rejected", logging.Err(err))
		return false, nil
	}
	if entity.ETag != "" {
		updated.ETag = entity.ETag
	}

	m.cooldown.UpdateStatus(network.CooldownSuccess)
	m.apply(ctx, updated)
	return true, nil
}

func (m *Manager) decode(base *LibrarySettings, body []byte) (*LibrarySettings, error) {
	if strings.HasSuffix(strings.ToLower(m.retriever.URL()), ".html") || IsHTML(body) {
		return MergeMobilePublishSettings(base, body)
	}
	return Merge(base, body)
}

func (m *Manager) apply(ctx context.Context, updated *LibrarySettings) {
	if m.opts.Cache != nil {
		if data, err := updated.MarshalJSON(); err == nil {
			if err := m.opts.Cache.Set(ctx, CacheKey, data); err != nil {
				m.logger.Warn("Could not cache settings", logging.Err(err))
			}
		}
	}

	m.current.Store(updated)
	m.state.Store(int32(StateRemoteLoaded))
	m.retriever.SetRefreshInterval(updated.RefreshInterval)

	m.logger.Info("Library settings updated",
		logging.Field{Key: "batch_size", Value: updated.Batching.BatchSize},
		logging.Field{Key: "max_queue_size", Value: updated.Batching.MaxQueueSize},
		logging.Field{Key: "log_level", Value: string(updated.LogLevel)},
	)

	if m.opts.Publisher != nil {
		m.opts.Publisher.OnLibrarySettingsUpdated(updated)
	}
}
