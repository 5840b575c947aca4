// Package messaging is the in-process event bus connecting pipeline components.
//
// Each notification has its own listener interface and its own ordered
// subscription list. Components register explicitly for every notification
// they want, e.g. SubscribeActivity or SubscribeLibrarySettings.
package messaging

import (
	"context"

	"analytics-sdk/internal/consent"
	"analytics-sdk/internal/dispatch"
	"analytics-sdk/internal/settings"
)

// Listener is anything registered on the bus. Unsubscribe matches by identity.
type Listener interface{}

// Dispatcher receives both single and batch deliveries.
type Dispatcher interface {
	DispatchSendListener
	BatchDispatchSendListener
}

// DispatchReadyListener is notified when a dispatch has passed the drop check.
type DispatchReadyListener interface {
	OnDispatchReady(d *dispatch.Dispatch)
}

// DispatchSendListener delivers a single dispatch.
type DispatchSendListener interface {
	OnDispatchSend(ctx context.Context, d *dispatch.Dispatch)
}

// BatchDispatchSendListener delivers several dispatches together.
type BatchDispatchSendListener interface {
	OnBatchDispatchSend(ctx context.Context, ds []*dispatch.Dispatch)
}

// DispatchQueuedListener is notified when a dispatch is persisted for later.
type DispatchQueuedListener interface {
	OnDispatchQueued(d *dispatch.Dispatch)
}

// DispatchDroppedListener is notified when a dispatch is discarded.
type DispatchDroppedListener interface {
	OnDispatchDropped(d *dispatch.Dispatch)
}

// LibrarySettingsUpdatedListener is notified of every accepted settings change.
type LibrarySettingsUpdatedListener interface {
	OnLibrarySettingsUpdated(s *settings.LibrarySettings)
}

// ValidationChangedListener is notified when a validator's state changed such
// that queued events may now be sendable. exclude names the validator that
// triggered the revalidation.
type ValidationChangedListener interface {
	OnRevalidate(exclude string)
}

// ActivityListener receives host lifecycle signals.
type ActivityListener interface {
	OnActivityResumed()
	OnActivityPaused()
	OnActivityStopped(isChangingConfiguration bool)
}

// NewSessionListener is notified when a new session starts.
type NewSessionListener interface {
	OnNewSession(sessionID string)
}

// ConsentPreferencesListener is notified when the user's consent changes.
type ConsentPreferencesListener interface {
	OnUserConsentPreferencesUpdated(prefs consent.Preferences, policy consent.Policy)
}

// VisitorIDUpdatedListener is notified when the current visitor ID changes.
type VisitorIDUpdatedListener interface {
	OnVisitorIDUpdated(visitorID string)
}

// DispatcherResultListener receives delivery outcomes from dispatchers.
type DispatcherResultListener interface {
	OnSuccessfulTrack(dispatcher string)
	OnUnsuccessfulTrack(dispatcher string, message string)
}
