// Package app wires one analytics pipeline together and exposes the agent
// operations the HTTP handlers drive.
package app

import (
	"context"
	"net/http"
	"time"

	"analytics-sdk/internal/collectors"
	"analytics-sdk/internal/common/logging"
	"analytics-sdk/internal/common/registry"
	"analytics-sdk/internal/common/utils"
	"analytics-sdk/internal/config"
	"analytics-sdk/internal/consent"
	"analytics-sdk/internal/dispatchers"
	"analytics-sdk/internal/messaging"
	"analytics-sdk/internal/network"
	"analytics-sdk/internal/redis"
	"analytics-sdk/internal/router"
	"analytics-sdk/internal/scheduler"
	"analytics-sdk/internal/settings"
	"analytics-sdk/internal/storage"
	"analytics-sdk/internal/validators"
	"analytics-sdk/internal/visitor"
)

// App holds all the pipeline dependencies. Each App is an independent
// instance; nothing is shared through package state.
type App struct {
	Config      *config.Config
	Backend     storage.Backend
	RedisClient *redis.Client
	Logger      logging.Logger

	opts options

	bus          *messaging.EventRouter
	settings     *settings.Manager
	queue        *storage.DispatchStorage
	visitor      *visitor.Provider
	consent      *consent.Manager
	sessions     *collectors.SessionManager
	connectivity network.Connectivity
	battery      *validators.StaticBattery
	batching     *validators.Batching
	dispatchers  []dispatchers.Dispatcher
	router       *router.Router
	scheduler    *scheduler.Scheduler

	// ownsRedis is set when the stream client is separate from the backend.
	ownsRedis bool
}

// Option customizes New.
type Option func(*options)

type options struct {
	clock            utils.Clock
	httpClient       *http.Client
	backend          storage.Backend
	registry         *registry.Registry[dispatchers.Factory]
	extraDispatchers []dispatchers.Dispatcher
	batteryLevel     int
}

// WithClock replaces the wall clock.
func WithClock(clock utils.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// WithHTTPClient sets the client used by the collect dispatcher and consent
// logging.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.httpClient = client }
}

// WithBackend uses an already opened storage backend instead of creating
// one from the configuration. The App takes ownership of it.
func WithBackend(b storage.Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithDispatcherRegistry resolves configured dispatcher names from r.
func WithDispatcherRegistry(r *registry.Registry[dispatchers.Factory]) Option {
	return func(o *options) { o.registry = r }
}

// WithDispatchers adds dispatchers beyond the configured ones.
func WithDispatchers(ds ...dispatchers.Dispatcher) Option {
	return func(o *options) { o.extraDispatchers = append(o.extraDispatchers, ds...) }
}

// WithBatteryLevel sets the initial battery level. The default is a full
// battery.
func WithBatteryLevel(level int) Option {
	return func(o *options) { o.batteryLevel = level }
}

// New builds the pipeline. Components are created in dependency order:
// storage, bus, settings, queue, visitor, consent, collectors, validators,
// dispatchers, router and scheduler. Nothing runs until Start.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	o := options{
		clock:        utils.SystemClock,
		registry:     dispatchers.DefaultRegistry,
		batteryLevel: 100,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = network.NewHTTPClient()
	}

	app := &App{
		Config: cfg,
		Logger: logging.GetGlobalLogger().WithFields(logging.Field{Key: "component", Value: "app"}),
		opts:   o,
		bus:    messaging.NewEventRouter(),
	}

	ctx := context.Background()
	if err := app.initializeStorage(); err != nil {
		return nil, err
	}
	if err := app.initializeRedis(); err != nil {
		app.Cleanup()
		return nil, err
	}
	if err := app.initializePipeline(ctx); err != nil {
		app.Cleanup()
		return nil, err
	}
	if err := app.initializeScheduler(); err != nil {
		app.Cleanup()
		return nil, err
	}
	return app, nil
}

// Start begins the remote settings sync and the periodic jobs.
func (app *App) Start(ctx context.Context) {
	app.settings.Start(ctx)
	app.scheduler.Start()
	app.Logger.Info("Analytics pipeline started",
		logging.Field{Key: "account", Value: app.Config.Account},
		logging.Field{Key: "profile", Value: app.Config.Profile},
		logging.Field{Key: "dispatchers", Value: app.DispatcherNames()},
	)
}

// Shutdown stops the jobs, drains the pipeline and releases every resource.
func (app *App) Shutdown(ctx context.Context) error {
	var firstErr error
	if app.scheduler != nil {
		if err := app.scheduler.Stop(ctx); err != nil {
			firstErr = err
		}
	}
	if app.router != nil {
		if err := app.router.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	app.Cleanup()
	return firstErr
}

// Cleanup releases all resources
func (app *App) Cleanup() {
	for _, d := range app.dispatchers {
		if c, ok := d.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				app.Logger.Warn("Failed to close dispatcher", logging.Field{Key: "dispatcher", Value: d.Name()}, logging.Err(err))
			}
		}
	}
	app.dispatchers = nil
	if app.RedisClient != nil && app.ownsRedis {
		app.RedisClient.Close()
	}
	app.RedisClient = nil
	if app.Backend != nil {
		if err := app.Backend.Close(); err != nil {
			app.Logger.Warn("Failed to close storage", logging.Err(err))
		}
		app.Backend = nil
	}
}

// DispatcherNames lists the active dispatchers in delivery order.
func (app *App) DispatcherNames() []string {
	names := make([]string, 0, len(app.dispatchers))
	for _, d := range app.dispatchers {
		names = append(names, d.Name())
	}
	return names
}

// healthTimeout bounds the storage probe in the health check.
const healthTimeout = 2 * time.Second
