package router

import (
	"context"
	"fmt"
	"sync"

	"analytics-sdk/internal/common/logging"
)

// executor runs submitted jobs one at a time, in submission order, on a
// single goroutine. Submission never blocks.
type executor struct {
	logger logging.Logger

	mu      sync.Mutex
	jobs    []func()
	closed  bool
	wake    chan struct{}
	stopped chan struct{}
}

func newExecutor(logger logging.Logger) *executor {
	e := &executor{
		logger:  logger,
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
	go e.run()
	return e
}

// submit queues job. It returns false once the executor is closed.
func (e *executor) submit(job func()) bool {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false
	}
	e.jobs = append(e.jobs, job)
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
	return true
}

func (e *executor) run() {
	defer close(e.stopped)
	for {
		e.mu.Lock()
		if len(e.jobs) == 0 {
			if e.closed {
				e.mu.Unlock()
				return
			}
			e.mu.Unlock()
			<-e.wake
			continue
		}
		job := e.jobs[0]
		e.jobs[0] = nil
		e.jobs = e.jobs[1:]
		e.mu.Unlock()

		e.safely(job)
	}
}

func (e *executor) safely(job func()) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error("Pipeline job panicked", fmt.Errorf("%v", rec))
		}
	}()
	job()
}

// wait blocks until every job submitted before the call has run.
func (e *executor) wait(ctx context.Context) error {
	done := make(chan struct{})
	if !e.submit(func() { close(done) }) {
		select {
		case <-e.stopped:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close stops accepting jobs and waits for the queued ones to finish.
func (e *executor) close(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	select {
	case e.wake <- struct{}{}:
	default:
	}

	select {
	case <-e.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pending returns the number of jobs not yet started.
func (e *executor) pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.jobs)
}
