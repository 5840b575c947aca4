package app

import (
	"context"
	"fmt"
	"time"

	"analytics-sdk/internal/collectors"
	"analytics-sdk/internal/common/logging"
	"analytics-sdk/internal/consent"
	"analytics-sdk/internal/dispatchers"
	"analytics-sdk/internal/messaging"
	"analytics-sdk/internal/network"
	"analytics-sdk/internal/router"
	"analytics-sdk/internal/settings"
	"analytics-sdk/internal/storage"
	"analytics-sdk/internal/validators"
	"analytics-sdk/internal/visitor"
)

// Storage namespaces.
const (
	namespaceSettings = "settings"
	namespaceVisitor  = "visitor"
	namespaceConsent  = "consent"
	namespaceSession  = "session"
)

const (
	connectivityProbeTimeout = 2 * time.Second
	connectivityProbeTTL     = 30 * time.Second
)

func (app *App) initializePipeline(ctx context.Context) error {
	cfg := app.Config

	settingsStore, err := app.Backend.Store(namespaceSettings)
	if err != nil {
		return fmt.Errorf("failed to open settings store: %w", err)
	}
	settingsURL := cfg.SettingsURL
	if settingsURL == "" {
		settingsURL = settings.DefaultURL(cfg.Account, cfg.Profile, cfg.Environment)
	}
	app.settings = settings.NewManager(settings.ManagerOptions{
		UseRemote: cfg.UseRemoteSettings,
		URL:       settingsURL,
		AssetPath: cfg.SettingsAssetPath,
		Cache:     settingsStore,
		Publisher: app.bus,
		Clock:     app.opts.clock,
	})

	queueStore, err := app.Backend.Queue()
	if err != nil {
		return fmt.Errorf("failed to open dispatch queue: %w", err)
	}
	app.queue = storage.NewDispatchStorage(queueStore, app.settings.Settings(), app.opts.clock)
	app.bus.SubscribeLibrarySettings(app.queue)
	app.bus.SubscribeNewSession(app.queue)

	if err := app.initializeVisitor(ctx); err != nil {
		return err
	}
	if err := app.initializeConsent(ctx); err != nil {
		return err
	}

	sessionStore, err := app.Backend.Store(namespaceSession)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	app.sessions = collectors.NewSessionManager(ctx, sessionStore, app.bus, app.opts.clock)
	app.bus.SubscribeActivity(app.sessions)

	chain := app.buildValidators()

	if err := app.initializeDispatchers(); err != nil {
		return err
	}

	app.router = router.New(router.Options{
		Collectors: app.buildCollectors(),
		Observers:  []router.DataObserver{app.visitor},
		Validators: chain,
		Queue:      app.queue,
		Settings:   app.settings,
		Publisher:  app.bus,
		Clock:      app.opts.clock,
	})
	app.bus.SubscribeRevalidate(app.router)
	app.bus.SubscribeConsentPreferences(app.router)
	app.bus.SubscribeLibrarySettings(messaging.NewLogLevelUpdater())
	app.bus.SubscribeDispatcherResults(&deliveryLogger{logger: app.Logger})
	return nil
}

func (app *App) initializeVisitor(ctx context.Context) error {
	store, err := app.Backend.Store(namespaceVisitor)
	if err != nil {
		return fmt.Errorf("failed to open visitor store: %w", err)
	}
	app.visitor, err = visitor.NewProvider(ctx, visitor.Options{
		Storage:           visitor.NewStorage(store),
		IdentityKey:       app.Config.VisitorIdentityKey,
		ExistingVisitorID: app.Config.ExistingVisitorID,
		Publisher:         app.bus,
	})
	if err != nil {
		return fmt.Errorf("failed to load visitor id: %w", err)
	}
	return nil
}

// initializeConsent creates the consent manager when a policy is configured.
func (app *App) initializeConsent(ctx context.Context) error {
	cfg := app.Config
	if cfg.ConsentPolicy == "" {
		return nil
	}
	store, err := app.Backend.Store(namespaceConsent)
	if err != nil {
		return fmt.Errorf("failed to open consent store: %w", err)
	}
	app.consent, err = consent.NewManager(ctx, consent.Options{
		Policy:    cfg.ConsentPolicy,
		Expiry:    cfg.ConsentExpiry,
		Store:     store,
		Publisher: app.bus,
		Clock:     app.opts.clock,
		OnExpired: func() {
			app.Logger.Info("Consent expired, waiting for a new decision")
		},
		LoggingEnabled: cfg.ConsentLoggingURL != "",
		LoggingURL:     cfg.ConsentLoggingURL,
		HTTPClient:     app.opts.httpClient,
		Account:        cfg.Account,
		Profile:        cfg.Profile,
		VisitorID:      app.visitor.CurrentVisitorID,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize consent: %w", err)
	}
	return nil
}

func (app *App) buildCollectors() []collectors.Collector {
	cfg := app.Config
	list := []collectors.Collector{
		collectors.NewTealium(collectors.Account{
			Account:     cfg.Account,
			Profile:     cfg.Profile,
			Environment: cfg.Environment,
			DataSource:  cfg.DataSource,
		}),
		collectors.NewTime(app.opts.clock),
		collectors.NewDevice(),
		collectors.NewSessionCollector(app.sessions),
		app.visitor,
	}
	if app.consent != nil {
		list = append(list, app.consent)
	}
	return list
}

func (app *App) buildValidators() *validators.Chain {
	if app.Config.ConnectivityProbe != "" {
		app.connectivity = network.NewDialConnectivity(app.Config.ConnectivityProbe, connectivityProbeTimeout, connectivityProbeTTL)
	} else {
		app.connectivity = network.NewStaticConnectivity(true, true)
	}
	app.battery = validators.NewStaticBattery(app.opts.batteryLevel)
	app.batching = validators.NewBatching(app.queue, app.settings, app.bus)
	app.bus.SubscribeActivity(app.batching)

	chain := validators.NewChain(
		validators.NewConnectivity(app.connectivity, app.settings),
		validators.NewBattery(app.battery, app.settings, app.Config.LowBatteryThreshold),
		app.batching,
	)
	if app.consent != nil {
		chain.Add(app.consent)
	}
	return chain
}

func (app *App) initializeDispatchers() error {
	cfg := app.Config
	created, err := dispatchers.Create(app.opts.registry, cfg.Dispatchers, dispatchers.Context{
		Config: dispatchers.Config{
			CollectURL:        cfg.CollectURL,
			CollectBatchURL:   cfg.CollectBatchURL,
			CollectDomain:     cfg.CollectDomain,
			CollectProfile:    cfg.CollectProfile,
			CollectRateLimit:  cfg.CollectRateLimit,
			RedisStream:       cfg.RedisStream,
			RedisStreamMaxLen: cfg.RedisStreamMaxLen,
			KafkaBrokers:      cfg.KafkaBrokers,
			KafkaTopic:        cfg.KafkaTopic,
			MQTTBrokerURL:     cfg.MQTTBrokerURL,
			MQTTTopic:         cfg.MQTTTopic,
			MQTTClientID:      cfg.MQTTClientID,
			MQTTQoS:           byte(cfg.MQTTQoS),
		},
		UseRemoteSettings: cfg.UseRemoteSettings,
		Results:           app.bus,
		HTTPClient:        app.opts.httpClient,
		Redis:             app.RedisClient,
	})
	if err != nil {
		return err
	}

	app.dispatchers = append(created, app.opts.extraDispatchers...)
	for _, d := range app.dispatchers {
		app.bus.SubscribeDispatcher(d)
		app.bus.SubscribeLibrarySettings(d)
	}
	if len(app.dispatchers) == 0 {
		app.Logger.Warn("No dispatchers configured, events will be processed but not delivered")
	}
	return nil
}

// deliveryLogger records dispatcher outcomes.
type deliveryLogger struct {
	logger logging.Logger
}

func (l *deliveryLogger) OnSuccessfulTrack(dispatcher string) {
	l.logger.Debug("Delivery succeeded", logging.Field{Key: "dispatcher", Value: dispatcher})
}

func (l *deliveryLogger) OnUnsuccessfulTrack(dispatcher string, message string) {
	l.logger.Warn("Delivery failed", logging.Field{Key: "dispatcher", Value: dispatcher}, logging.Field{Key: "reason", Value: message})
}
