package integration

import (
	"context"
	"time"

	"github.com/openworm/wormgraph/internal/observability"
	"github.com/openworm/wormgraph/internal/resilience"
	"github.com/openworm/wormgraph/internal/security"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// ObservabilityManager integrates all observability components
type ObservabilityManager struct {
	tracing *observability.TracingManager
	logging *observability.Logger
	metrics *observability.MetricsManager
}

// NewObservabilityManager creates a new observability manager
func NewObservabilityManager(
	tracingConfig observability.TracingConfig,
	loggingConfig observability.LoggingConfig,
	metricsConfig observability.MetricsConfig,
) (*ObservabilityManager, error) {
	tracing, err := observability.NewTracingManager(tracingConfig)
	if err != nil {
		return nil, err
	}

	logging, err := observability.NewLogger(loggingConfig)
	if err != nil {
		return nil, err
	}

	metrics := observability.NewMetricsManager(metricsConfig)

	observability.SetGlobalLogger(logging)

	return &ObservabilityManager{
		tracing: tracing,
		logging: logging,
		metrics: metrics,
	}, nil
}

// NewNopObservabilityManager discards logs and leaves tracing and metrics
// disabled. Used by tests and one-shot CLI commands.
func NewNopObservabilityManager() *ObservabilityManager {
	tracing, _ := observability.NewTracingManager(observability.TracingConfig{})
	return &ObservabilityManager{
		tracing: tracing,
		logging: observability.NewNopLogger(),
		metrics: observability.NewMetricsManager(observability.MetricsConfig{}),
	}
}

func (om *ObservabilityManager) GetTracing() *observability.TracingManager {
	return om.tracing
}

func (om *ObservabilityManager) GetLogging() *observability.Logger {
	return om.logging
}

func (om *ObservabilityManager) GetMetrics() *observability.MetricsManager {
	return om.metrics
}

// Shutdown flushes pending spans.
func (om *ObservabilityManager) Shutdown(ctx context.Context) error {
	return om.tracing.Shutdown(ctx)
}

// ResilienceManager owns the breaker and retry policy shared by the metadata
// fetchers.
type ResilienceManager struct {
	circuitBreaker *resilience.CircuitBreakerManager
	retryManager   *resilience.RetryManager
}

// NewResilienceManager builds the managers and reports breaker transitions and
// retries through logger and metrics. metrics may be nil.
func NewResilienceManager(
	cbConfig resilience.CircuitBreakerConfig,
	retryConfig resilience.RetryConfig,
	logger zerolog.Logger,
	metrics *observability.MetricsManager,
) *ResilienceManager {
	circuitBreaker := resilience.NewCircuitBreakerManager(cbConfig, logger)
	retryManager := resilience.NewRetryManager(retryConfig, resilience.StrategyExponential)

	if metrics != nil {
		circuitBreaker.OnStateChange(func(name string, _, to gobreaker.State) {
			metrics.RecordCircuitBreakerTransition(name, to.String())
		})
	}
	retryLogger := logger.With().Str("component", "retry").Logger()
	retryManager.OnRetry(func(attempt int, delay time.Duration, err error) {
		retryLogger.Debug().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("retrying")
	})

	return &ResilienceManager{
		circuitBreaker: circuitBreaker,
		retryManager:   retryManager,
	}
}

func (rm *ResilienceManager) GetCircuitBreaker() *resilience.CircuitBreakerManager {
	return rm.circuitBreaker
}

// DatabaseRetry wraps the retry manager for statement store calls.
func (rm *ResilienceManager) DatabaseRetry() *resilience.DatabaseRetryWrapper {
	return resilience.NewDatabaseRetryWrapper(rm.retryManager)
}

// ExternalBreaker wraps the breaker manager for remote services.
func (rm *ResilienceManager) ExternalBreaker() *resilience.ExternalServiceCircuitBreaker {
	return resilience.NewExternalServiceCircuitBreaker(rm.circuitBreaker)
}

// ExternalRetry wraps the retry manager for remote services.
func (rm *ResilienceManager) ExternalRetry() *resilience.ExternalServiceRetryWrapper {
	return resilience.NewExternalServiceRetryWrapper(rm.retryManager)
}

// SecurityManager integrates all security components
type SecurityManager struct {
	rateLimiter *security.RateLimiter
	sanitizer   *security.InputSanitizer
}

func NewSecurityManager(
	rateLimitConfig security.RateLimitConfig,
	sanitizerConfig security.SanitizerConfig,
) *SecurityManager {
	return &SecurityManager{
		rateLimiter: security.NewRateLimiter(rateLimitConfig),
		sanitizer:   security.NewInputSanitizer(sanitizerConfig),
	}
}

func (sm *SecurityManager) GetRateLimiter() *security.RateLimiter {
	return sm.rateLimiter
}

func (sm *SecurityManager) GetSanitizer() *security.InputSanitizer {
	return sm.sanitizer
}

// Stop stops the rate limiter cleanup loop.
func (sm *SecurityManager) Stop() {
	sm.rateLimiter.Stop()
}

// AdvancedFeaturesManager integrates all advanced features
type AdvancedFeaturesManager struct {
	observability *ObservabilityManager
	resilience    *ResilienceManager
	security      *SecurityManager
	startTime     time.Time
}

// AdvancedFeaturesConfig holds configuration for all advanced features
type AdvancedFeaturesConfig struct {
	Tracing        observability.TracingConfig     `yaml:"tracing" mapstructure:"tracing"`
	Logging        observability.LoggingConfig     `yaml:"logging" mapstructure:"logging"`
	Metrics        observability.MetricsConfig     `yaml:"metrics" mapstructure:"metrics"`
	CircuitBreaker resilience.CircuitBreakerConfig `yaml:"circuit_breaker" mapstructure:"circuit_breaker"`
	Retry          resilience.RetryConfig          `yaml:"retry" mapstructure:"retry"`
	RateLimit      security.RateLimitConfig        `yaml:"rate_limit" mapstructure:"rate_limit"`
	Sanitizer      security.SanitizerConfig        `yaml:"sanitizer" mapstructure:"sanitizer"`
	Version        string                          `yaml:"-" mapstructure:"-"`
	Commit         string                          `yaml:"-" mapstructure:"-"`
}

func NewAdvancedFeaturesManager(config AdvancedFeaturesConfig) (*AdvancedFeaturesManager, error) {
	obs, err := NewObservabilityManager(config.Tracing, config.Logging, config.Metrics)
	if err != nil {
		return nil, err
	}

	res := NewResilienceManager(config.CircuitBreaker, config.Retry, obs.GetLogging().GetZerologLogger(), obs.GetMetrics())
	sec := NewSecurityManager(config.RateLimit, config.Sanitizer)

	afm := &AdvancedFeaturesManager{
		observability: obs,
		resilience:    res,
		security:      sec,
		startTime:     time.Now(),
	}

	if config.Metrics.Enabled {
		obs.GetMetrics().StartUptimeTracker(context.Background(), afm.startTime)
		obs.GetMetrics().SetBuildInfo(config.Version, config.Commit, afm.startTime.Format(time.RFC3339))
	}

	return afm, nil
}

func (afm *AdvancedFeaturesManager) GetObservability() *ObservabilityManager {
	return afm.observability
}

func (afm *AdvancedFeaturesManager) GetResilience() *ResilienceManager {
	return afm.resilience
}

func (afm *AdvancedFeaturesManager) GetSecurity() *SecurityManager {
	return afm.security
}

// Shutdown gracefully shuts down all advanced features
func (afm *AdvancedFeaturesManager) Shutdown(ctx context.Context) error {
	afm.security.Stop()
	return afm.observability.Shutdown(ctx)
}
