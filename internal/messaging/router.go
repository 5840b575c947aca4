package messaging

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"analytics-sdk/internal/common/logging"
	"analytics-sdk/internal/consent"
	"analytics-sdk/internal/dispatch"
	"analytics-sdk/internal/settings"
)

// subscribers holds one ordered list per notification. A snapshot is
// immutable; writers copy it, never modify it.
type subscribers struct {
	ready     []DispatchReadyListener
	send      []DispatchSendListener
	batchSend []BatchDispatchSendListener
	queued    []DispatchQueuedListener
	dropped   []DispatchDroppedListener
	settings  []LibrarySettingsUpdatedListener
	validate  []ValidationChangedListener
	activity  []ActivityListener
	session   []NewSessionListener
	consent   []ConsentPreferencesListener
	visitor   []VisitorIDUpdatedListener
	results   []DispatcherResultListener
}

// EventRouter fans notifications out to subscribed listeners.
//
// Each publish iterates a snapshot of the subscriber lists, so listeners
// added or removed during delivery only see later publishes. Listeners are
// called in subscription order on the publishing goroutine; a panicking
// listener is logged and skipped.
type EventRouter struct {
	mu     sync.Mutex
	subs   atomic.Pointer[subscribers]
	logger logging.Logger
}

// NewEventRouter creates an empty bus.
func NewEventRouter() *EventRouter {
	r := &EventRouter{
		logger: logging.GetGlobalLogger().WithFields(logging.Field{Key: "component", Value: "event_router"}),
	}
	r.subs.Store(&subscribers{})
	return r
}

// update applies fn to a copy of the current lists and publishes the copy.
func (r *EventRouter) update(fn func(next *subscribers)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := *r.subs.Load()
	fn(&next)
	r.subs.Store(&next)
}

// SubscribeDispatchReady registers l for OnDispatchReady. Registering the
// same listener twice for one notification has no effect; the same holds
// for every Subscribe method.
func (r *EventRouter) SubscribeDispatchReady(l DispatchReadyListener) {
	r.update(func(next *subscribers) { next.ready = appendListener(next.ready, l) })
}

func (r *EventRouter) SubscribeDispatchSend(l DispatchSendListener) {
	r.update(func(next *subscribers) { next.send = appendListener(next.send, l) })
}

func (r *EventRouter) SubscribeBatchDispatchSend(l BatchDispatchSendListener) {
	r.update(func(next *subscribers) { next.batchSend = appendListener(next.batchSend, l) })
}

func (r *EventRouter) SubscribeDispatchQueued(l DispatchQueuedListener) {
	r.update(func(next *subscribers) { next.queued = appendListener(next.queued, l) })
}

func (r *EventRouter) SubscribeDispatchDropped(l DispatchDroppedListener) {
	r.update(func(next *subscribers) { next.dropped = appendListener(next.dropped, l) })
}

func (r *EventRouter) SubscribeLibrarySettings(l LibrarySettingsUpdatedListener) {
	r.update(func(next *subscribers) { next.settings = appendListener(next.settings, l) })
}

func (r *EventRouter) SubscribeRevalidate(l ValidationChangedListener) {
	r.update(func(next *subscribers) { next.validate = appendListener(next.validate, l) })
}

func (r *EventRouter) SubscribeActivity(l ActivityListener) {
	r.update(func(next *subscribers) { next.activity = appendListener(next.activity, l) })
}

func (r *EventRouter) SubscribeNewSession(l NewSessionListener) {
	r.update(func(next *subscribers) { next.session = appendListener(next.session, l) })
}

func (r *EventRouter) SubscribeConsentPreferences(l ConsentPreferencesListener) {
	r.update(func(next *subscribers) { next.consent = appendListener(next.consent, l) })
}

func (r *EventRouter) SubscribeVisitorID(l VisitorIDUpdatedListener) {
	r.update(func(next *subscribers) { next.visitor = appendListener(next.visitor, l) })
}

func (r *EventRouter) SubscribeDispatcherResults(l DispatcherResultListener) {
	r.update(func(next *subscribers) { next.results = appendListener(next.results, l) })
}

// SubscribeDispatcher registers a delivery target for single and batch sends.
func (r *EventRouter) SubscribeDispatcher(l Dispatcher) {
	r.update(func(next *subscribers) {
		next.send = appendListener[DispatchSendListener](next.send, l)
		next.batchSend = appendListener[BatchDispatchSendListener](next.batchSend, l)
	})
}

// Unsubscribe removes l from every notification list it was registered in.
func (r *EventRouter) Unsubscribe(l Listener) {
	r.update(func(next *subscribers) {
		next.ready = without(next.ready, l)
		next.send = without(next.send, l)
		next.batchSend = without(next.batchSend, l)
		next.queued = without(next.queued, l)
		next.dropped = without(next.dropped, l)
		next.settings = without(next.settings, l)
		next.validate = without(next.validate, l)
		next.activity = without(next.activity, l)
		next.session = without(next.session, l)
		next.consent = without(next.consent, l)
		next.visitor = without(next.visitor, l)
		next.results = without(next.results, l)
	})
}

func appendListener[T comparable](list []T, l T) []T {
	for _, existing := range list {
		if existing == l {
			return list
		}
	}
	out := make([]T, len(list), len(list)+1)
	copy(out, list)
	return append(out, l)
}

// without compares by identity, so it never needs to know l's type.
func without[T any](list []T, l Listener) []T {
	out := make([]T, 0, len(list))
	for _, existing := range list {
		if Listener(existing) != l {
			out = append(out, existing)
		}
	}
	return out
}

func (r *EventRouter) snapshot() *subscribers {
	return r.subs.Load()
}

func (r *EventRouter) safely(notification string, listener interface{}, call func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Listener panicked", fmt.Errorf("%v", rec),
				logging.Field{Key: "notification", Value: notification},
				logging.Field{Key: "listener", Value: fmt.Sprintf("%T", listener)},
			)
		}
	}()
	call()
}

// OnDispatchReady publishes a dispatch that passed the drop check.
func (r *EventRouter) OnDispatchReady(d *dispatch.Dispatch) {
	for _, l := range r.snapshot().ready {
		r.safely("dispatch_ready", l, func() { l.OnDispatchReady(d) })
	}
}

// OnDispatchSend publishes a single dispatch for delivery.
func (r *EventRouter) OnDispatchSend(ctx context.Context, d *dispatch.Dispatch) {
	for _, l := range r.snapshot().send {
		r.safely("dispatch_send", l, func() { l.OnDispatchSend(ctx, d) })
	}
}

// OnBatchDispatchSend publishes a batch for delivery.
func (r *EventRouter) OnBatchDispatchSend(ctx context.Context, ds []*dispatch.Dispatch) {
	for _, l := range r.snapshot().batchSend {
		r.safely("batch_dispatch_send", l, func() { l.OnBatchDispatchSend(ctx, ds) })
	}
}

// OnDispatchQueued publishes a dispatch that was persisted.
func (r *EventRouter) OnDispatchQueued(d *dispatch.Dispatch) {
	for _, l := range r.snapshot().queued {
		r.safely("dispatch_queued", l, func() { l.OnDispatchQueued(d) })
	}
}

// OnDispatchDropped publishes a dispatch that was discarded.
func (r *EventRouter) OnDispatchDropped(d *dispatch.Dispatch) {
	for _, l := range r.snapshot().dropped {
		r.safely("dispatch_dropped", l, func() { l.OnDispatchDropped(d) })
	}
}

// OnLibrarySettingsUpdated publishes new settings.
func (r *EventRouter) OnLibrarySettingsUpdated(s *settings.LibrarySettings) {
	for _, l := range r.snapshot().settings {
		r.safely("library_settings_updated", l, func() { l.OnLibrarySettingsUpdated(s) })
	}
}

// OnRevalidate asks listeners to re-evaluate queued work.
func (r *EventRouter) OnRevalidate(exclude string) {
	for _, l := range r.snapshot().validate {
		r.safely("revalidate", l, func() { l.OnRevalidate(exclude) })
	}
}

// OnActivityResumed publishes a host resume.
func (r *EventRouter) OnActivityResumed() {
	for _, l := range r.snapshot().activity {
		r.safely("activity_resumed", l, func() { l.OnActivityResumed() })
	}
}

// OnActivityPaused publishes a host pause.
func (r *EventRouter) OnActivityPaused() {
	for _, l := range r.snapshot().activity {
		r.safely("activity_paused", l, func() { l.OnActivityPaused() })
	}
}

// OnActivityStopped publishes a host stop.
func (r *EventRouter) OnActivityStopped(isChangingConfiguration bool) {
	for _, l := range r.snapshot().activity {
		r.safely("activity_stopped", l, func() { l.OnActivityStopped(isChangingConfiguration) })
	}
}

// OnNewSession publishes the start of a session.
func (r *EventRouter) OnNewSession(sessionID string) {
	for _, l := range r.snapshot().session {
		r.safely("new_session", l, func() { l.OnNewSession(sessionID) })
	}
}

// OnUserConsentPreferencesUpdated publishes a consent change.
func (r *EventRouter) OnUserConsentPreferencesUpdated(prefs consent.Preferences, policy consent.Policy) {
	for _, l := range r.snapshot().consent {
		r.safely("consent_updated", l, func() { l.OnUserConsentPreferencesUpdated(prefs, policy) })
	}
}

// OnVisitorIDUpdated publishes a visitor ID change.
func (r *EventRouter) OnVisitorIDUpdated(visitorID string) {
	for _, l := range r.snapshot().visitor {
		r.safely("visitor_id_updated", l, func() { l.OnVisitorIDUpdated(visitorID) })
	}
}

// OnSuccessfulTrack publishes a delivery success.
func (r *EventRouter) OnSuccessfulTrack(dispatcher string) {
	for _, l := range r.snapshot().results {
		r.safely("successful_track", l, func() { l.OnSuccessfulTrack(dispatcher) })
	}
}

// OnUnsuccessfulTrack publishes a delivery failure.
func (r *EventRouter) OnUnsuccessfulTrack(dispatcher string, message string) {
	for _, l := range r.snapshot().results {
		r.safely("unsuccessful_track", l, func() { l.OnUnsuccessfulTrack(dispatcher, message) })
	}
}
