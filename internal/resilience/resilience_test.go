package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) *RetryManager {
	return NewRetryManager(RetryConfig{
		Enabled:           true,
		MaxAttempts:       attempts,
		InitialDelay:      time.Millisecond,
		MaxDelay:          5 * time.Millisecond,
		BackoffMultiplier: 2,
	}, StrategyExponential)
}

func TestRetryManager(t *testing.T) {
	ctx := context.Background()

	t.Run("retries transient errors until success", func(t *testing.T) {
		rm := fastRetry(3)
		var retried []int
		rm.OnRetry(func(attempt int, _ time.Duration, _ error) {
			retried = append(retried, attempt)
		})

		calls := 0
		result, err := rm.ExecuteWithResult(ctx, func() (any, error) {
			calls++
			if calls < 3 {
				return nil, MarkRetryable(errors.New("503"))
			}
			return "ok", nil
		}, ExternalRetryableErrors)

		require.NoError(t, err)
		assert.Equal(t, "ok", result)
		assert.Equal(t, 3, calls)
		assert.Equal(t, []int{1, 2}, retried)
	})

	t.Run("stops on permanent errors", func(t *testing.T) {
		rm := fastRetry(5)
		calls := 0
		permanent := errors.New("404 not found")
		err := rm.Execute(ctx, func() error {
			calls++
			return permanent
		}, ExternalRetryableErrors)

		assert.ErrorIs(t, err, permanent)
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		rm := fastRetry(2)
		calls := 0
		err := rm.Execute(ctx, func() error {
			calls++
			return errors.New("connection refused")
		}, DefaultRetryableErrors)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "after 2 attempts")
		assert.Equal(t, 2, calls)
	})

	t.Run("disabled runs once", func(t *testing.T) {
		rm := NewRetryManager(RetryConfig{Enabled: false, MaxAttempts: 5}, StrategyFixed)
		calls := 0
		_ = rm.Execute(ctx, func() error {
			calls++
			return MarkRetryable(errors.New("x"))
		}, ExternalRetryableErrors)
		assert.Equal(t, 1, calls)
	})

	t.Run("cancelled context", func(t *testing.T) {
		rm := fastRetry(3)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := rm.Execute(cctx, func() error { return nil }, DefaultRetryableErrors)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestRetryableClassification(t *testing.T) {
	assert.False(t, ExternalRetryableErrors(nil))
	assert.False(t, ExternalRetryableErrors(context.Canceled))
	assert.False(t, ExternalRetryableErrors(gobreaker.ErrOpenState))
	assert.True(t, ExternalRetryableErrors(MarkRetryable(errors.New("x"))))
	assert.True(t, DatabaseRetryableErrors(errors.New("SQLITE_BUSY: database is locked")))
	assert.False(t, DatabaseRetryableErrors(errors.New("syntax error")))
}

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cbm := NewCircuitBreakerManager(CircuitBreakerConfig{
		Enabled:          true,
		MaxRequests:      1,
		Timeout:          time.Minute,
		FailureThreshold: 2,
	}, zerolog.Nop())

	var transitions []string
	cbm.OnStateChange(func(_ string, _, to gobreaker.State) {
		transitions = append(transitions, to.String())
	})

	ext := NewExternalServiceCircuitBreaker(cbm)
	ctx := context.Background()
	boom := errors.New("boom")

	for i := 0; i < 2; i++ {
		_, err := ext.Execute(ctx, "pubmed", func(context.Context) (any, error) { return nil, boom })
		assert.ErrorIs(t, err, boom)
	}

	_, err := ext.Execute(ctx, "pubmed", func(context.Context) (any, error) { return "never", nil })
	assert.True(t, IsCircuitBreakerError(err))
	assert.Equal(t, gobreaker.StateOpen, cbm.GetState("external-pubmed"))
	assert.Equal(t, []string{"open"}, transitions)

	health := NewCircuitBreakerHealthCheck(cbm)
	assert.Equal(t, []string{"external-pubmed"}, health.OpenBreakers())
	status := health.Check(ctx)
	assert.Equal(t, true, status["enabled"])
}

func TestCircuitBreakerDisabled(t *testing.T) {
	cbm := NewCircuitBreakerManager(CircuitBreakerConfig{Enabled: false}, zerolog.Nop())
	assert.Nil(t, cbm.GetBreaker("x"))

	out, err := cbm.ExecuteWithContext(context.Background(), "x", func(context.Context) (any, error) {
		return 1, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, out)
}
