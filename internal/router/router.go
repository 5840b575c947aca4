// Package router sequences tracked dispatches through collection,
// validation, queueing and delivery.
package router

import (
	"context"
	"sort"

	"analytics-sdk/internal/collectors"
	"analytics-sdk/internal/common/logging"
	"analytics-sdk/internal/common/utils"
	"analytics-sdk/internal/consent"
	"analytics-sdk/internal/dispatch"
	"analytics-sdk/internal/settings"
	"analytics-sdk/internal/validators"
)

// Publisher receives the pipeline notifications.
type Publisher interface {
	OnDispatchReady(d *dispatch.Dispatch)
	OnDispatchQueued(d *dispatch.Dispatch)
	OnDispatchDropped(d *dispatch.Dispatch)
	OnDispatchSend(ctx context.Context, d *dispatch.Dispatch)
	OnBatchDispatchSend(ctx context.Context, ds []*dispatch.Dispatch)
}

// SettingsProvider supplies the current settings and refreshes them.
type SettingsProvider interface {
	Settings() *settings.LibrarySettings
	FetchAsync(ctx context.Context)
}

// Queue is the durable dispatch queue.
type Queue interface {
	Enqueue(ctx context.Context, d *dispatch.Dispatch) error
	Dequeue(ctx context.Context, limit int) ([]*dispatch.Dispatch, error)
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

// Transformer edits a dispatch after collection.
type Transformer interface {
	Name() string
	Enabled() bool
	Transform(ctx context.Context, d *dispatch.Dispatch) error
}

// DataObserver sees every key of each tracked payload before collection.
type DataObserver interface {
	OnDataUpdated(key string, value interface{})
}

// Options wires a Router.
type Options struct {
	Collectors   []collectors.Collector
	Transformers []Transformer
	Observers    []DataObserver
	Validators   *validators.Chain
	Queue        Queue
	Settings     SettingsProvider
	Publisher    Publisher
	Clock        utils.Clock
}

// Router owns the pipeline. All pipeline work runs on one executor, so the
// order of Track calls from a single goroutine is the order of processing.
type Router struct {
	opts   Options
	exec   *executor
	clock  utils.Clock
	logger logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func New(opts Options) *Router {
	if opts.Validators == nil {
		opts.Validators = validators.NewChain()
	}
	if opts.Clock == nil {
		opts.Clock = utils.SystemClock
	}
	logger := logging.GetGlobalLogger().WithFields(logging.Field{Key: "component", Value: "router"})
	ctx, cancel := context.WithCancel(context.Background())
	return &Router{
		opts:   opts,
		exec:   newExecutor(logger),
		clock:  opts.Clock,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Track submits d for processing and returns immediately. Nothing happens
// while the library is disabled by settings.
func (r *Router) Track(d *dispatch.Dispatch) {
	if d == nil {
		return
	}
	if r.opts.Settings.Settings().DisableLibrary {
		r.logger.Debug("Library disabled, ignoring dispatch")
		return
	}
	if !r.exec.submit(func() { r.track(d) }) {
		r.logger.Warn("Router closed, ignoring dispatch", logging.Field{Key: "dispatch_id", Value: d.ID()})
	}
}

func (r *Router) track(d *dispatch.Dispatch) {
	ctx := r.ctx
	s := r.opts.Settings.Settings()
	logger := r.logger.WithFields(logging.Field{Key: "dispatch_id", Value: d.ID()})

	for key, value := range d.Payload() {
		for _, o := range r.opts.Observers {
			o.OnDataUpdated(key, value)
		}
	}

	d.AddAll(r.collect(ctx))
	r.transform(ctx, d)
	d.SetTimestamp(r.clock().UnixMilli())

	if r.opts.Validators.ShouldDrop(d) {
		logger.Debug("Dropping dispatch")
		r.opts.Publisher.OnDispatchDropped(d)
		return
	}

	r.opts.Publisher.OnDispatchReady(d)

	if r.opts.Validators.ShouldQueue(d, "") {
		if err := r.opts.Queue.Enqueue(ctx, d); err != nil {
			logger.Error("Failed to queue dispatch", err)
			return
		}
		logger.Debug("Queued dispatch")
		r.opts.Publisher.OnDispatchQueued(d)
		return
	}

	queued := r.dequeueAll(ctx)
	r.send(ctx, append(queued, d), s)
}

func (r *Router) collect(ctx context.Context) map[string]interface{} {
	data := make(map[string]interface{})
	for _, c := range r.opts.Collectors {
		if !c.Enabled() {
			continue
		}
		collected, err := c.Collect(ctx)
		if err != nil {
			r.logger.Warn("Collector failed", logging.Err(err), logging.Field{Key: "collector", Value: c.Name()})
			continue
		}
		for k, v := range collected {
			data[k] = v
		}
	}
	return data
}

func (r *Router) transform(ctx context.Context, d *dispatch.Dispatch) {
	for _, t := range r.opts.Transformers {
		if !t.Enabled() {
			continue
		}
		if err := t.Transform(ctx, d); err != nil {
			r.logger.Warn("Transformer failed", logging.Err(err), logging.Field{Key: "transformer", Value: t.Name()})
		}
	}
}

func (r *Router) dequeueAll(ctx context.Context) []*dispatch.Dispatch {
	queued, err := r.opts.Queue.Dequeue(ctx, -1)
	if err != nil {
		r.logger.Error("Failed to dequeue dispatches", err)
		return nil
	}
	return queued
}

// send delivers ds oldest first: alone, in batches of the configured size,
// or one by one when batching is off.
func (r *Router) send(ctx context.Context, ds []*dispatch.Dispatch, s *settings.LibrarySettings) {
	if len(ds) == 0 {
		return
	}
	sort.SliceStable(ds, func(i, j int) bool { return ds[i].SortKey() < ds[j].SortKey() })

	switch batchSize := s.EffectiveBatchSize(); {
	case len(ds) == 1:
		r.opts.Publisher.OnDispatchSend(ctx, ds[0])
	case batchSize > 1:
		for _, batch := range dispatch.Chunk(ds, batchSize) {
			r.opts.Publisher.OnBatchDispatchSend(ctx, batch)
		}
	default:
		for _, d := range ds {
			r.opts.Publisher.OnDispatchSend(ctx, d)
		}
	}

	r.opts.Settings.FetchAsync(ctx)
}

// SendDispatches delivers ds on the pipeline executor.
func (r *Router) SendDispatches(ds []*dispatch.Dispatch) {
	r.exec.submit(func() {
		r.send(r.ctx, ds, r.opts.Settings.Settings())
	})
}

// OnRevalidate releases the queue unless a validator other than exclude
// still wants it held.
func (r *Router) OnRevalidate(exclude string) {
	r.exec.submit(func() { r.revalidate(exclude) })
}

func (r *Router) revalidate(exclude string) {
	if r.opts.Validators.ShouldQueue(nil, exclude) {
		return
	}
	r.logger.Debug("Revalidation releasing queue", logging.Field{Key: "exclude", Value: exclude})
	r.send(r.ctx, r.dequeueAll(r.ctx), r.opts.Settings.Settings())
}

// OnUserConsentPreferencesUpdated clears the queue when the new decision
// drops events, and releases it when the policy no longer holds them.
func (r *Router) OnUserConsentPreferencesUpdated(prefs consent.Preferences, policy consent.Policy) {
	r.exec.submit(func() {
		if policy.ShouldDrop(prefs) {
			if err := r.opts.Queue.Clear(r.ctx); err != nil {
				r.logger.Error("Failed to clear queue", err)
			}
		}
		count, err := r.opts.Queue.Count(r.ctx)
		if err != nil {
			r.logger.Error("Failed to count queue", err)
			return
		}
		if count > 0 && !policy.ShouldQueue(prefs) {
			r.revalidate("")
		}
	})
}

// Flush waits until all work submitted so far has finished.
func (r *Router) Flush(ctx context.Context) error {
	return r.exec.wait(ctx)
}

// Pending returns the number of jobs waiting to run.
func (r *Router) Pending() int {
	return r.exec.pending()
}

// Close finishes queued work, then stops the executor.
func (r *Router) Close(ctx context.Context) error {
	err := r.exec.close(ctx)
	r.cancel()
	return err
}
