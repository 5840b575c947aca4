package app

import (
	"context"
	"time"

	"analytics-sdk/internal/scheduler"
)

const (
	settingsRefreshInterval = time.Minute
	consentExpiryInterval   = time.Hour
)

func (app *App) initializeScheduler() error {
	app.scheduler = scheduler.New()

	if err := app.scheduler.Every("purge_expired", app.Config.PurgeInterval, scheduler.PurgeJob(app.queue)); err != nil {
		return err
	}
	if app.Config.UseRemoteSettings {
		// The settings manager applies the document's refresh interval and
		// its own cooldown, so polling each minute only fetches when due.
		if err := app.scheduler.Every("settings_refresh", settingsRefreshInterval, scheduler.RefreshJob(app.settings)); err != nil {
			return err
		}
	}
	if app.consent != nil {
		err := app.scheduler.Every("consent_expiry", consentExpiryInterval, func(ctx context.Context) {
			app.consent.ExpireConsent(ctx)
		})
		if err != nil {
			return err
		}
	}
	return nil
}
