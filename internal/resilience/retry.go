package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"strings"
	"time"
)

type RetryConfig struct {
	Enabled           bool          `yaml:"enabled" mapstructure:"enabled"`
	MaxAttempts       int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialDelay      time.Duration `yaml:"initial_delay" mapstructure:"initial_delay"`
	MaxDelay          time.Duration `yaml:"max_delay" mapstructure:"max_delay"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier" mapstructure:"backoff_multiplier"`
	JitterEnabled     bool          `yaml:"jitter_enabled" mapstructure:"jitter_enabled"`
	JitterFactor      float64       `yaml:"jitter_factor" mapstructure:"jitter_factor"`
}

type RetryStrategy string

const (
	StrategyExponential RetryStrategy = "exponential"
	StrategyLinear      RetryStrategy = "linear"
	StrategyFixed       RetryStrategy = "fixed"
)

// RetryHook observes failed attempts that will be retried.
type RetryHook func(attempt int, delay time.Duration, err error)

type RetryManager struct {
	config   RetryConfig
	strategy RetryStrategy
	onRetry  RetryHook
}

func NewRetryManager(config RetryConfig, strategy RetryStrategy) *RetryManager {
	return &RetryManager{
		config:   config,
		strategy: strategy,
	}
}

// OnRetry registers hook.
func (rm *RetryManager) OnRetry(hook RetryHook) {
	rm.onRetry = hook
}

type IsRetryableError func(error) bool

type retryableError struct {
	err error
}

func (r *retryableError) Error() string { return r.err.Error() }
func (r *retryableError) Unwrap() error { return r.err }

// MarkRetryable flags err as transient, e.g. an HTTP 503 from a remote API.
func MarkRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

func IsMarkedRetryable(err error) bool {
	var r *retryableError
	return errors.As(err, &r)
}

func DefaultRetryableErrors(err error) bool {
	if err == nil {
		return false
	}
	if IsMarkedRetryable(err) {
		return true
	}

	errorStr := strings.ToLower(err.Error())
	for _, s := range []string{
		"connection refused",
		"connection reset",
		"timeout",
		"temporary failure",
		"service unavailable",
		"connection lost",
		"deadlock",
	} {
		if strings.Contains(errorStr, s) {
			return true
		}
	}
	return false
}

// ExternalRetryableErrors classifies failures of outbound HTTP calls.
func ExternalRetryableErrors(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || IsCircuitBreakerError(err) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return DefaultRetryableErrors(err)
}

func DatabaseRetryableErrors(err error) bool {
	if err == nil {
		return false
	}

	errorStr := err.Error()
	for _, s := range []string{
		"server closed the connection",
		"deadlock detected",
		"serialization failure",
		"database is locked",
		"SQLITE_BUSY",
	} {
		if strings.Contains(errorStr, s) {
			return true
		}
	}

	return DefaultRetryableErrors(err)
}

func (rm *RetryManager) Execute(ctx context.Context, fn func() error, isRetryable IsRetryableError) error {
	_, err := rm.ExecuteWithResult(ctx, func() (any, error) {
		return nil, fn()
	}, isRetryable)
	return err
}

func (rm *RetryManager) ExecuteWithResult(ctx context.Context, fn func() (any, error), isRetryable IsRetryableError) (any, error) {
	if !rm.config.Enabled || rm.config.MaxAttempts <= 1 {
		return fn()
	}

	var lastErr error

	for attempt := 1; attempt <= rm.config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}

		lastErr = err

		if !isRetryable(err) {
			return nil, err
		}

		if attempt == rm.config.MaxAttempts {
			break
		}

		delay := rm.calculateDelay(attempt)
		if rm.onRetry != nil {
			rm.onRetry(attempt, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return nil, fmt.Errorf("operation failed after %d attempts: %w", rm.config.MaxAttempts, lastErr)
}

func (rm *RetryManager) calculateDelay(attempt int) time.Duration {
	var delay time.Duration

	switch rm.strategy {
	case StrategyLinear:
		delay = time.Duration(int64(rm.config.InitialDelay) * int64(attempt))
	case StrategyFixed:
		delay = rm.config.InitialDelay
	default:
		multiplier := math.Pow(rm.config.BackoffMultiplier, float64(attempt-1))
		delay = time.Duration(float64(rm.config.InitialDelay) * multiplier)
	}

	if rm.config.JitterEnabled {
		delay = rm.applyJitter(delay)
	}

	if rm.config.MaxDelay > 0 && delay > rm.config.MaxDelay {
		delay = rm.config.MaxDelay
	}

	return delay
}

func (rm *RetryManager) applyJitter(delay time.Duration) time.Duration {
	if rm.config.JitterFactor <= 0 || rm.config.JitterFactor >= 1 {
		return delay
	}

	jitter := rm.config.JitterFactor * float64(delay)
	randomJitter := (rand.Float64()*2 - 1) * jitter

	finalDelay := time.Duration(float64(delay) + randomJitter)
	if finalDelay < 0 {
		finalDelay = time.Duration(float64(delay) * 0.1)
	}

	return finalDelay
}

func (rm *RetryManager) IsEnabled() bool {
	return rm.config.Enabled
}

type DatabaseRetryWrapper struct {
	manager *RetryManager
}

func NewDatabaseRetryWrapper(manager *RetryManager) *DatabaseRetryWrapper {
	return &DatabaseRetryWrapper{
		manager: manager,
	}
}

func (drw *DatabaseRetryWrapper) Execute(ctx context.Context, fn func() error) error {
	return drw.manager.Execute(ctx, fn, DatabaseRetryableErrors)
}

type ExternalServiceRetryWrapper struct {
	manager *RetryManager
}

func NewExternalServiceRetryWrapper(manager *RetryManager) *ExternalServiceRetryWrapper {
	return &ExternalServiceRetryWrapper{
		manager: manager,
	}
}

func (esrw *ExternalServiceRetryWrapper) Execute(ctx context.Context, fn func() error) error {
	return esrw.manager.Execute(ctx, fn, ExternalRetryableErrors)
}

func (esrw *ExternalServiceRetryWrapper) ExecuteWithResult(ctx context.Context, fn func() (any, error)) (any, error) {
	return esrw.manager.ExecuteWithResult(ctx, fn, ExternalRetryableErrors)
}

// BackoffStrategies are named presets selectable from configuration.
var BackoffStrategies = map[string]RetryConfig{
	"fast": {
		Enabled:           true,
		MaxAttempts:       3,
		InitialDelay:      100 * time.Millisecond,
		MaxDelay:          1 * time.Second,
		BackoffMultiplier: 2.0,
		JitterEnabled:     true,
		JitterFactor:      0.1,
	},
	"standard": {
		Enabled:           true,
		MaxAttempts:       5,
		InitialDelay:      500 * time.Millisecond,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2.0,
		JitterEnabled:     true,
		JitterFactor:      0.2,
	},
	"none": {
		Enabled:     false,
		MaxAttempts: 1,
	},
}
