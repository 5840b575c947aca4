// Package dispatchers delivers ready dispatches to their destinations.
//
// Dispatchers are bus listeners: the router publishes OnDispatchSend and
// OnBatchDispatchSend and every enabled dispatcher delivers them. A disabled
// dispatcher still receives both calls but sends nothing. Each
// dispatcher reports its outcome through a ResultListener; failures are
// never re-queued.
package dispatchers

import (
	"context"
	"net/http"
	"regexp"
	"sync/atomic"
	"time"

	"analytics-sdk/internal/common/errors"
	"analytics-sdk/internal/common/logging"
	"analytics-sdk/internal/common/registry"
	"analytics-sdk/internal/dispatch"
	"analytics-sdk/internal/redis"
	"analytics-sdk/internal/settings"
)

// Dispatcher delivers dispatches somewhere.
type Dispatcher interface {
	Name() string
	Enabled() bool
	OnDispatchSend(ctx context.Context, d *dispatch.Dispatch)
	OnBatchDispatchSend(ctx context.Context, ds []*dispatch.Dispatch)
	OnLibrarySettingsUpdated(s *settings.LibrarySettings)
}

// ResultListener receives delivery outcomes.
type ResultListener interface {
	OnSuccessfulTrack(dispatcher string)
	OnUnsuccessfulTrack(dispatcher string, message string)
}

// Config carries the destination settings for the built-in dispatchers.
type Config struct {
	CollectURL      string
	CollectBatchURL string
	CollectDomain   string
	CollectProfile  string
	// CollectRateLimit caps outbound collect requests per second. Zero
	// disables limiting.
	CollectRateLimit float64

	RedisStream       string
	RedisStreamMaxLen int64

	KafkaBrokers []string
	KafkaTopic   string

	MQTTBrokerURL string
	MQTTTopic     string
	MQTTClientID  string
	MQTTQoS       byte
}

// Context is handed to factories when a dispatcher is created.
type Context struct {
	Config Config
	// UseRemoteSettings makes dispatchers follow their enable flags in the
	// library settings.
	UseRemoteSettings bool
	Results           ResultListener
	HTTPClient        *http.Client
	Redis             *redis.Client
	Logger            logging.Logger
}

// Factory creates a dispatcher.
type Factory interface {
	Create(ctx Context) (Dispatcher, error)
	GetType() string
}

// NamePattern constrains dispatcher names.
var NamePattern = regexp.MustCompile(`^[a-z][a-z0-9_-]{1,31}$`)

// NewRegistry returns an empty registry enforcing NamePattern.
func NewRegistry() *registry.Registry[Factory] {
	return registry.New[Factory](registry.WithNamePattern(NamePattern))
}

// DefaultRegistry holds the built-in dispatchers.
var DefaultRegistry = NewRegistry()

// Register adds factory to the default registry under name.
func Register(name string, factory Factory) error {
	return DefaultRegistry.Register(name, factory)
}

// Create builds the dispatchers named in names from r, in order. Unknown
// names and factory failures are returned as errors.
func Create(r *registry.Registry[Factory], names []string, ctx Context) ([]Dispatcher, error) {
	out := make([]Dispatcher, 0, len(names))
	for _, name := range names {
		factory, err := r.Get(name)
		if err != nil {
			return nil, errors.ConfigError("unknown dispatcher: " + name)
		}
		d, err := factory.Create(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// Base carries the state every dispatcher shares.
type Base struct {
	name    string
	enabled atomic.Bool
	results ResultListener
	logger  logging.Logger

	// follow, when set, derives the enabled flag from library settings.
	follow func(*settings.LibrarySettings) bool
}

func newBase(name string, ctx Context) *Base {
	logger := ctx.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	b := &Base{
		name:    name,
		results: ctx.Results,
		logger:  logger.WithFields(logging.Field{Key: "dispatcher", Value: name}),
	}
	b.enabled.Store(true)
	return b
}

func (b *Base) Name() string { return b.name }

func (b *Base) Enabled() bool { return b.enabled.Load() }

func (b *Base) SetEnabled(enabled bool) { b.enabled.Store(enabled) }

// OnLibrarySettingsUpdated applies the dispatcher's enable flag from s when
// the dispatcher follows remote settings.
func (b *Base) OnLibrarySettingsUpdated(s *settings.LibrarySettings) {
	if b.follow == nil || s == nil {
		return
	}
	enabled := b.follow(s)
	if enabled != b.enabled.Swap(enabled) {
		b.logger.Info("Dispatcher toggled by settings", logging.Field{Key: "enabled", Value: enabled})
	}
}

// skip reports whether a delivery must be dropped because the dispatcher
// is disabled.
func (b *Base) skip(count int) bool {
	if b.enabled.Load() {
		return false
	}
	b.logger.Debug("Dispatcher disabled, skipping delivery", logging.Int("count", count))
	return true
}

// report logs err and forwards the outcome to the result listener.
func (b *Base) report(err error, fields ...logging.Field) {
	if err != nil {
		b.logger.Warn("Delivery failed", append(fields, logging.Err(err))...)
		if b.results != nil {
			b.results.OnUnsuccessfulTrack(b.name, err.Error())
		}
		return
	}
	b.logger.Debug("Delivered", fields...)
	if b.results != nil {
		b.results.OnSuccessfulTrack(b.name)
	}
}

// deliveryTimeout bounds a single delivery attempt.
const deliveryTimeout = 30 * time.Second

func withDeliveryTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, deliveryTimeout)
}
