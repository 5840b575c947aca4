// Package scheduler runs the periodic maintenance jobs of the pipeline on a
// cron scheduler.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"analytics-sdk/internal/common/errors"
	"analytics-sdk/internal/common/logging"
)

// Purger removes expired queued dispatches.
type Purger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

// Refresher refreshes the library settings.
type Refresher interface {
	Fetch(ctx context.Context) (bool, error)
}

// Scheduler owns a cron instance. Jobs never overlap with themselves.
type Scheduler struct {
	cron   *cron.Cron
	logger logging.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	entries map[string]cron.EntryID
	started bool
}

func New() *Scheduler {
	logger := logging.GetGlobalLogger().WithFields(logging.Field{Key: "component", Value: "scheduler"})
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLogger{logger}),
			cron.SkipIfStillRunning(cronLogger{logger}),
		)),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]cron.EntryID),
	}
}

// Every registers job to run once per interval under name.
func (s *Scheduler) Every(name string, interval time.Duration, job func(ctx context.Context)) error {
	if interval <= 0 {
		return errors.ConfigError(fmt.Sprintf("job %s: interval must be positive", name))
	}
	return s.Schedule(name, "@every "+interval.String(), job)
}

// Schedule registers job under name with a cron spec. Registering a name
// again replaces the previous job.
func (s *Scheduler) Schedule(name, spec string, job func(ctx context.Context)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		job(s.ctx)
		s.logger.Debug("Scheduled job finished",
			logging.Field{Key: "job", Value: name},
			logging.Duration("took", time.Since(start)),
		)
	})
	if err != nil {
		return errors.ConfigError(fmt.Sprintf("job %s: invalid schedule %q: %v", name, spec, err))
	}
	if old, ok := s.entries[name]; ok {
		s.cron.Remove(old)
	}
	s.entries[name] = id
	return nil
}

// Jobs returns the registered job names.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	return names
}

// Next returns the next run time of the named job.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Next, true
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.cron.Start()
}

// Stop stops scheduling and waits for running jobs, up to ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PurgeJob removes expired dispatches from the queue.
func PurgeJob(p Purger) func(ctx context.Context) {
	logger := logging.GetGlobalLogger().WithFields(logging.Field{Key: "job", Value: "purge_expired"})
	return func(ctx context.Context) {
		n, err := p.PurgeExpired(ctx)
		if err != nil {
			logger.Error("Failed to purge expired dispatches", err)
			return
		}
		if n > 0 {
			logger.Info("Purged expired dispatches", logging.Int("count", n))
		}
	}
}

// RefreshJob refreshes library settings. The settings manager applies its
// own refresh interval and cooldown, so running often is cheap.
func RefreshJob(r Refresher) func(ctx context.Context) {
	logger := logging.GetGlobalLogger().WithFields(logging.Field{Key: "job", Value: "settings_refresh"})
	return func(ctx context.Context) {
		if _, err := r.Fetch(ctx); err != nil {
			logger.Warn("Settings refresh failed", logging.Err(err))
		}
	}
}

// cronLogger adapts Logger to cron.Logger.
type cronLogger struct {
	logger logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, pairs(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, err, pairs(keysAndValues)...)
}

func pairs(keysAndValues []interface{}) []logging.Field {
	fields := make([]logging.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields = append(fields, logging.Field{Key: fmt.Sprint(keysAndValues[i]), Value: keysAndValues[i+1]})
	}
	return fields
}
