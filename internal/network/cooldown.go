package network

import (
	"sync"
	"time"

	"analytics-sdk/internal/common/utils"
)

// CooldownStatus is the outcome of the last guarded attempt.
type CooldownStatus int

const (
	// CooldownNone means no attempt has been recorded yet
	CooldownNone CooldownStatus = iota
	// CooldownSuccess means the last attempt succeeded
	CooldownSuccess
	// CooldownFailure means the last attempt failed
	CooldownFailure
)

// CooldownHelper spaces out attempts after consecutive failures.
//
// After n consecutive failures the caller should wait min(max, base*n) since
// its last attempt before trying again. Any success clears the count.
type CooldownHelper struct {
	mu           sync.Mutex
	maxInterval  time.Duration
	baseInterval time.Duration
	status       CooldownStatus
	failureCount int
	clock        utils.Clock
}

// NewCooldownHelper creates a helper. A nil clock uses the wall clock.
func NewCooldownHelper(maxInterval, baseInterval time.Duration, clock utils.Clock) *CooldownHelper {
	if clock == nil {
		clock = utils.SystemClock
	}
	return &CooldownHelper{
		maxInterval:  maxInterval,
		baseInterval: baseInterval,
		clock:        clock,
	}
}

// IsInCooldown reports whether an attempt made at lastAttempt is still inside
// the current cooldown window. The window end is inclusive.
func (c *CooldownHelper) IsInCooldown(lastAttempt time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != CooldownFailure {
		return false
	}
	return !c.clock().After(lastAttempt.Add(c.intervalLocked()))
}

// UpdateStatus records the outcome of an attempt.
func (c *CooldownHelper) UpdateStatus(status CooldownStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.status = status
	switch status {
	case CooldownSuccess:
		c.failureCount = 0
	case CooldownFailure:
		c.failureCount++
	}
}

// Interval returns the current cooldown window.
func (c *CooldownHelper) Interval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.intervalLocked()
}

// FailureCount returns the number of consecutive failures.
func (c *CooldownHelper) FailureCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failureCount
}

func (c *CooldownHelper) intervalLocked() time.Duration {
	window := c.baseInterval * time.Duration(c.failureCount)
	if window > c.maxInterval {
		return c.maxInterval
	}
	return window
}
