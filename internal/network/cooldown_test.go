package network

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestCooldownHelper_NotInCooldownInitially(t *testing.T) {
	clock := newFakeClock()
	helper := NewCooldownHelper(5*time.Second, 500*time.Millisecond, clock.Now)

	assert.False(t, helper.IsInCooldown(clock.Now()))
	assert.Equal(t, time.Duration(0), helper.Interval())
}

func TestCooldownHelper_GrowsWithFailures(t *testing.T) {
	clock := newFakeClock()
	helper := NewCooldownHelper(5*time.Second, 500*time.Millisecond, clock.Now)

	for i := 0; i < 3; i++ {
		helper.UpdateStatus(CooldownFailure)
	}

	assert.Equal(t, 1500*time.Millisecond, helper.Interval())
	assert.Equal(t, 3, helper.FailureCount())
}

func TestCooldownHelper_CappedAtMax(t *testing.T) {
	helper := NewCooldownHelper(5*time.Second, 500*time.Millisecond, nil)

	for i := 0; i < 100; i++ {
		helper.UpdateStatus(CooldownFailure)
	}

	assert.Equal(t, 5*time.Second, helper.Interval())
}

func TestCooldownHelper_SuccessResets(t *testing.T) {
	clock := newFakeClock()
	helper := NewCooldownHelper(5*time.Second, 500*time.Millisecond, clock.Now)

	helper.UpdateStatus(CooldownFailure)
	helper.UpdateStatus(CooldownFailure)
	helper.UpdateStatus(CooldownSuccess)

	assert.False(t, helper.IsInCooldown(clock.Now()))

	helper.UpdateStatus(CooldownFailure)
	assert.Equal(t, 500*time.Millisecond, helper.Interval())
}

func TestCooldownHelper_WindowBoundary(t *testing.T) {
	clock := newFakeClock()
	helper := NewCooldownHelper(5*time.Second, 500*time.Millisecond, clock.Now)

	lastAttempt := clock.Now()
	helper.UpdateStatus(CooldownFailure)
	helper.UpdateStatus(CooldownFailure)

	clock.Advance(999 * time.Millisecond)
	assert.True(t, helper.IsInCooldown(lastAttempt))

	clock.Advance(time.Millisecond)
	assert.True(t, helper.IsInCooldown(lastAttempt), "window end is inclusive")

	clock.Advance(time.Millisecond)
	assert.False(t, helper.IsInCooldown(lastAttempt))
}
