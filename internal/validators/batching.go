package validators

import (
	"context"
	"sync"

	"analytics-sdk/internal/common/logging"
	"analytics-sdk/internal/dispatch"
)

const BatchingName = "batching"

// QueueCounter reports how many dispatches are queued.
type QueueCounter interface {
	Count(ctx context.Context) (int, error)
}

// Revalidator is asked to release the queue.
type Revalidator interface {
	OnRevalidate(exclude string)
}

// Batching holds dispatches until a full batch is available. When the host
// stops its last activity, it asks for the queue to be released regardless.
type Batching struct {
	queue       QueueCounter
	settings    SettingsSource
	revalidator Revalidator
	logger      logging.Logger

	mu            sync.Mutex
	activityCount int
}

func NewBatching(queue QueueCounter, s SettingsSource, r Revalidator) *Batching {
	return &Batching{
		queue:       queue,
		settings:    s,
		revalidator: r,
		logger:      logging.GetGlobalLogger().WithFields(logging.Field{Key: "component", Value: "batching_validator"}),
	}
}

func (v *Batching) Name() string  { return BatchingName }
func (v *Batching) Enabled() bool { return true }

// ShouldQueue holds d while the queue, d included, stays below both the batch
// size and the max queue size. A negative max queue size is unbounded.
func (v *Batching) ShouldQueue(d *dispatch.Dispatch) bool {
	batching := v.settings.Settings().Batching
	if batching.MaxQueueSize == 0 {
		return false
	}
	count, err := v.queue.Count(context.Background())
	if err != nil {
		v.logger.Warn("Could not count queued dispatches", logging.Err(err))
		return false
	}
	next := count + 1
	if batching.MaxQueueSize > 0 && next >= batching.MaxQueueSize {
		return false
	}
	return next < batching.BatchSize
}

func (v *Batching) ShouldDrop(d *dispatch.Dispatch) bool { return false }

func (v *Batching) OnActivityResumed() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.activityCount++
}

func (v *Batching) OnActivityPaused() {}

// OnActivityStopped releases the queue once the last activity stops, unless
// the stop is only a configuration change.
func (v *Batching) OnActivityStopped(isChangingConfiguration bool) {
	v.mu.Lock()
	if v.activityCount > 0 {
		v.activityCount--
	}
	release := v.activityCount == 0 && !isChangingConfiguration
	v.mu.Unlock()

	if release && v.revalidator != nil {
		v.revalidator.OnRevalidate(BatchingName)
	}
}

// ActivityCount returns the number of running activities.
func (v *Batching) ActivityCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.activityCount
}
