package app

import (
	"context"

	"analytics-sdk/internal/common/errors"
	"analytics-sdk/internal/common/logging"
	"analytics-sdk/internal/consent"
	"analytics-sdk/internal/dispatch"
	"analytics-sdk/internal/network"
	"analytics-sdk/internal/settings"
)

// Track hands d to the pipeline and returns immediately.
func (app *App) Track(d *dispatch.Dispatch) {
	app.router.Track(d)
}

// TrackEvent tracks a named event.
func (app *App) TrackEvent(name string, data map[string]interface{}) *dispatch.Dispatch {
	d := dispatch.NewEvent(name, data)
	app.Track(d)
	return d
}

// TrackView tracks a screen view.
func (app *App) TrackView(name string, data map[string]interface{}) *dispatch.Dispatch {
	d := dispatch.NewView(name, data)
	app.Track(d)
	return d
}

// Flush waits until everything tracked so far has been processed.
func (app *App) Flush(ctx context.Context) error {
	return app.router.Flush(ctx)
}

// SetIdentity records a known user identity as if it had been tracked under
// the configured identity key.
func (app *App) SetIdentity(value string) error {
	key := app.visitor.IdentityKey()
	if key == "" {
		return errors.ConfigError("no visitor identity key configured")
	}
	app.visitor.OnDataUpdated(key, value)
	return nil
}

func (app *App) VisitorID() string {
	return app.visitor.CurrentVisitorID()
}

func (app *App) ResetVisitorID() string {
	return app.visitor.ResetVisitorID()
}

// ClearStoredVisitorIDs forgets every identity link and starts a new visitor.
func (app *App) ClearStoredVisitorIDs() string {
	return app.visitor.ClearStoredVisitorIDs()
}

// SetConsent records a consent decision. Consenting with a category list
// grants exactly those categories.
func (app *App) SetConsent(status consent.Status, categories []consent.Category) error {
	if app.consent == nil {
		return errors.ConfigError("consent management is not enabled")
	}
	ctx := context.Background()
	switch {
	case status == consent.StatusUnknown:
		app.consent.Reset(ctx)
	case status == consent.StatusConsented && len(categories) > 0:
		app.consent.SetCategories(ctx, categories)
	default:
		app.consent.SetStatus(ctx, status)
	}
	return nil
}

// ConsentPreferences returns the current decision, false when consent
// management is off.
func (app *App) ConsentPreferences() (consent.Preferences, bool) {
	if app.consent == nil {
		return consent.Preferences{}, false
	}
	return app.consent.Preferences(), true
}

func (app *App) ActivityResumed() {
	app.bus.OnActivityResumed()
}

func (app *App) ActivityPaused() {
	app.bus.OnActivityPaused()
}

func (app *App) ActivityStopped(isChangingConfiguration bool) {
	app.bus.OnActivityStopped(isChangingConfiguration)
}

// SetBatteryLevel reports the host battery percentage. Values outside 0-100
// mean unknown.
func (app *App) SetBatteryLevel(level int) {
	app.battery.Set(level)
	app.bus.OnRevalidate("")
}

// SetConnectivity reports the host network state. It is ignored when a
// connectivity probe is configured.
func (app *App) SetConnectivity(connected, wifi bool) {
	static, ok := app.connectivity.(*network.StaticConnectivity)
	if !ok {
		app.Logger.Warn("Connectivity is probed, ignoring reported state")
		return
	}
	static.Set(connected, wifi)
	if connected {
		app.bus.OnRevalidate("")
	}
}

func (app *App) Settings() *settings.LibrarySettings {
	return app.settings.Settings()
}

// QueueSize returns the number of queued dispatches. It fails when storage
// is unhealthy.
func (app *App) QueueSize(ctx context.Context) (int, error) {
	if err := app.Backend.Health(); err != nil {
		return 0, errors.StorageError("health", err)
	}
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	n, err := app.queue.Count(ctx)
	if err != nil {
		app.Logger.Warn("Failed to count queued dispatches", logging.Err(err))
		return 0, err
	}
	return n, nil
}
