package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/openworm/wormgraph/pkg/utils"
)

type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled" mapstructure:"enabled"`
	MaxRequests      uint32        `yaml:"max_requests" mapstructure:"max_requests"`
	Interval         time.Duration `yaml:"interval" mapstructure:"interval"`
	Timeout          time.Duration `yaml:"timeout" mapstructure:"timeout"`
	FailureThreshold uint32        `yaml:"failure_threshold" mapstructure:"failure_threshold"`
}

// StateChangeFunc is notified whenever a breaker moves between states.
type StateChangeFunc func(name string, from, to gobreaker.State)

// CircuitBreakerManager keeps one breaker per remote service.
type CircuitBreakerManager struct {
	config   CircuitBreakerConfig
	logger   zerolog.Logger
	onChange StateChangeFunc
	breakers map[string]*gobreaker.CircuitBreaker
	mutex    sync.RWMutex
}

func NewCircuitBreakerManager(config CircuitBreakerConfig, logger zerolog.Logger) *CircuitBreakerManager {
	return &CircuitBreakerManager{
		config:   config,
		logger:   logger.With().Str("component", "circuit_breaker").Logger(),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// OnStateChange registers fn. It must be called before the first Execute.
func (cbm *CircuitBreakerManager) OnStateChange(fn StateChangeFunc) {
	cbm.onChange = fn
}

func (cbm *CircuitBreakerManager) GetBreaker(serviceName string) *gobreaker.CircuitBreaker {
	if !cbm.config.Enabled {
		return nil
	}

	cbm.mutex.RLock()
	breaker, exists := cbm.breakers[serviceName]
	cbm.mutex.RUnlock()

	if exists {
		return breaker
	}

	cbm.mutex.Lock()
	defer cbm.mutex.Unlock()

	if breaker, exists := cbm.breakers[serviceName]; exists {
		return breaker
	}

	threshold := cbm.config.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	settings := gobreaker.Settings{
		Name:        serviceName,
		MaxRequests: cbm.config.MaxRequests,
		Interval:    cbm.config.Interval,
		Timeout:     cbm.config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			cbm.logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
			if cbm.onChange != nil {
				cbm.onChange(name, from, to)
			}
		},
		IsSuccessful: func(err error) bool {
			// A cancelled caller or a missing record says nothing about the
			// health of the remote service.
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, utils.ErrNotFound)
		},
	}

	breaker = gobreaker.NewCircuitBreaker(settings)
	cbm.breakers[serviceName] = breaker

	return breaker
}

func (cbm *CircuitBreakerManager) ExecuteWithContext(ctx context.Context, serviceName string, fn func(context.Context) (any, error)) (any, error) {
	if !cbm.config.Enabled {
		return fn(ctx)
	}

	breaker := cbm.GetBreaker(serviceName)
	if breaker == nil {
		return fn(ctx)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	return breaker.Execute(func() (any, error) {
		return fn(ctx)
	})
}

func (cbm *CircuitBreakerManager) GetState(serviceName string) gobreaker.State {
	cbm.mutex.RLock()
	defer cbm.mutex.RUnlock()

	if breaker, exists := cbm.breakers[serviceName]; exists {
		return breaker.State()
	}

	return gobreaker.StateClosed
}

func (cbm *CircuitBreakerManager) IsEnabled() bool {
	return cbm.config.Enabled
}

// ExternalServiceCircuitBreaker names breakers after the metadata source they
// guard.
type ExternalServiceCircuitBreaker struct {
	manager *CircuitBreakerManager
}

func NewExternalServiceCircuitBreaker(manager *CircuitBreakerManager) *ExternalServiceCircuitBreaker {
	return &ExternalServiceCircuitBreaker{
		manager: manager,
	}
}

func (escb *ExternalServiceCircuitBreaker) Execute(ctx context.Context, serviceName string, fn func(context.Context) (any, error)) (any, error) {
	return escb.manager.ExecuteWithContext(ctx, "external-"+serviceName, fn)
}

func IsCircuitBreakerError(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

type CircuitBreakerHealthCheck struct {
	manager *CircuitBreakerManager
}

func NewCircuitBreakerHealthCheck(manager *CircuitBreakerManager) *CircuitBreakerHealthCheck {
	return &CircuitBreakerHealthCheck{
		manager: manager,
	}
}

// Check reports every breaker. It never fails; open breakers only degrade the
// service since enrichment is optional.
func (cbhc *CircuitBreakerHealthCheck) Check(ctx context.Context) map[string]any {
	cbhc.manager.mutex.RLock()
	defer cbhc.manager.mutex.RUnlock()

	status := make(map[string]any)

	for name, breaker := range cbhc.manager.breakers {
		state := breaker.State()
		counts := breaker.Counts()

		status[name] = map[string]any{
			"state":                 state.String(),
			"requests":              counts.Requests,
			"total_successes":       counts.TotalSuccesses,
			"total_failures":        counts.TotalFailures,
			"consecutive_successes": counts.ConsecutiveSuccesses,
			"consecutive_failures":  counts.ConsecutiveFailures,
		}
	}

	return map[string]any{
		"circuit_breakers": status,
		"enabled":          cbhc.manager.config.Enabled,
	}
}

// OpenBreakers lists breakers currently in the open state.
func (cbhc *CircuitBreakerHealthCheck) OpenBreakers() []string {
	cbhc.manager.mutex.RLock()
	defer cbhc.manager.mutex.RUnlock()

	var open []string
	for name, breaker := range cbhc.manager.breakers {
		if breaker.State() == gobreaker.StateOpen {
			open = append(open, name)
		}
	}
	return open
}
