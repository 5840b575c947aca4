package circuitbreaker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analytics-sdk/internal/common/errors"
	"analytics-sdk/internal/common/logging"
)

func TestBreaker(t *testing.T) {
	logger := logging.GetGlobalLogger()

	t.Run("basic operation", func(t *testing.T) {
		cb := New("test-basic", Config{MaxFailures: 2, Timeout: 100 * time.Millisecond, MaxConcurrentRequests: 1}, logger)

		assert.Equal(t, StateClosed, cb.State())
		assert.NoError(t, cb.Execute(context.Background(), func() error { return nil }))
		assert.Equal(t, StateClosed, cb.State())
	})

	t.Run("circuit opens after failures", func(t *testing.T) {
		cb := New("test-failures", Config{MaxFailures: 3, Timeout: 100 * time.Millisecond, MaxConcurrentRequests: 1}, logger)

		for i := 0; i < 3; i++ {
			err := cb.Execute(context.Background(), func() error {
				return errors.TransientError(fmt.Sprintf("failure %d", i), nil)
			})
			assert.Error(t, err)
		}
		assert.True(t, cb.IsOpen())

		err := cb.Execute(context.Background(), func() error {
			t.Fatal("This should not be called")
			return nil
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "open")
		assert.True(t, errors.IsType(err, errors.ErrTypeTransient))
	})

	t.Run("circuit recovers after timeout", func(t *testing.T) {
		cb := New("test-half-open", Config{MaxFailures: 2, Timeout: 50 * time.Millisecond, MaxConcurrentRequests: 1}, logger)

		for i := 0; i < 2; i++ {
			_ = cb.Execute(context.Background(), func() error { return fmt.Errorf("failure") })
		}
		require.Equal(t, StateOpen, cb.State())

		time.Sleep(80 * time.Millisecond)
		assert.Equal(t, StateHalfOpen, cb.State())

		assert.NoError(t, cb.Execute(context.Background(), func() error { return nil }))
		assert.Equal(t, StateClosed, cb.State())
	})

	t.Run("rejected payloads do not trip", func(t *testing.T) {
		cb := New("test-client-errors", Config{MaxFailures: 2, Timeout: time.Second, MaxConcurrentRequests: 1}, logger)

		for i := 0; i < 5; i++ {
			err := cb.Execute(context.Background(), func() error {
				return errors.ValidationError("POST returned 400")
			})
			assert.Error(t, err)
		}
		assert.Equal(t, StateClosed, cb.State())
		assert.Equal(t, 5, cb.Stats().Successes)
	})

	t.Run("invalid config falls back to defaults", func(t *testing.T) {
		cb := New("test-invalid", Config{}, logger)
		assert.Equal(t, "closed", cb.Stats().State)
	})

	t.Run("cancelled context is not executed", func(t *testing.T) {
		cb := New("test-ctx", DefaultConfig(), logger)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := cb.Execute(ctx, func() error {
			t.Fatal("This should not be called")
			return nil
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
