package enrichment

import (
	"context"
	"time"

	"github.com/openworm/wormgraph/internal/cache"
	"github.com/openworm/wormgraph/internal/observability"
	"github.com/openworm/wormgraph/internal/resilience"
	"github.com/openworm/wormgraph/internal/security"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// FetchResult is the outcome of one fetch: either a record or the error that
// prevented retrieving it.
type FetchResult struct {
	Source     string
	ExternalID string
	Record     Record
	Err        error
	Cached     bool
	Duration   time.Duration
}

func (r FetchResult) OK() bool {
	return r.Err == nil
}

// Fetcher wraps a Source with rate limiting, caching, a circuit breaker and
// retries. Every collaborator is optional.
type Fetcher struct {
	source  Source
	limiter *security.OutboundLimiter
	cache   *cache.Manager
	breaker *resilience.ExternalServiceCircuitBreaker
	retry   *resilience.ExternalServiceRetryWrapper
	metrics *observability.MetricsManager
	tracer  *observability.TracingManager
	logger  zerolog.Logger
}

type FetcherOption func(*Fetcher)

func WithLimiter(l *security.OutboundLimiter) FetcherOption {
	return func(f *Fetcher) { f.limiter = l }
}

func WithCache(c *cache.Manager) FetcherOption {
	return func(f *Fetcher) { f.cache = c }
}

func WithCircuitBreaker(b *resilience.ExternalServiceCircuitBreaker) FetcherOption {
	return func(f *Fetcher) { f.breaker = b }
}

func WithRetry(r *resilience.ExternalServiceRetryWrapper) FetcherOption {
	return func(f *Fetcher) { f.retry = r }
}

func WithMetrics(m *observability.MetricsManager) FetcherOption {
	return func(f *Fetcher) { f.metrics = m }
}

func WithTracing(t *observability.TracingManager) FetcherOption {
	return func(f *Fetcher) { f.tracer = t }
}

func WithFetchLogger(l zerolog.Logger) FetcherOption {
	return func(f *Fetcher) { f.logger = l }
}

func NewFetcher(source Source, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		source: source,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Fetcher) Name() string {
	return f.source.Name()
}

// Fetch never returns a Go error; failures are carried in the result.
func (f *Fetcher) Fetch(ctx context.Context, externalID string) FetchResult {
	name := f.source.Name()
	start := time.Now()
	result := FetchResult{Source: name, ExternalID: externalID}

	if f.tracer != nil {
		var span trace.Span
		ctx, span = f.tracer.StartFetchOperation(ctx, name, externalID)
		defer func() {
			if result.Err != nil {
				f.tracer.SetSpanError(span, result.Err)
			}
			span.End()
		}()
	}

	if f.cache != nil {
		if record, ok := f.cache.GetRecord(ctx, name, externalID); ok {
			result.Record = Record(record)
			result.Cached = true
			f.record(result, "cached")
			return result
		}
	}

	record, err := f.fetchRemote(ctx, externalID)
	result.Duration = time.Since(start)
	if err != nil {
		result.Err = err
		f.logger.Debug().
			Str("source", name).
			Str("external_id", externalID).
			Err(err).
			Msg("metadata fetch failed")
		f.record(result, "error")
		return result
	}

	result.Record = record
	if f.cache != nil {
		if err := f.cache.SetRecord(ctx, name, externalID, record); err != nil {
			f.logger.Warn().Err(err).Str("source", name).Msg("failed to cache metadata record")
		}
	}
	f.record(result, "ok")
	return result
}

func (f *Fetcher) fetchRemote(ctx context.Context, externalID string) (Record, error) {
	call := func() (any, error) {
		if err := f.limiter.Wait(ctx, f.source.Name()); err != nil {
			return nil, err
		}
		if f.breaker == nil {
			return f.source.Fetch(ctx, externalID)
		}
		return f.breaker.Execute(ctx, f.source.Name(), func(ctx context.Context) (any, error) {
			return f.source.Fetch(ctx, externalID)
		})
	}

	var (
		out any
		err error
	)
	if f.retry != nil {
		out, err = f.retry.ExecuteWithResult(ctx, call)
	} else {
		out, err = call()
	}
	if err != nil {
		return nil, err
	}

	record, _ := out.(Record)
	return record, nil
}

func (f *Fetcher) record(result FetchResult, outcome string) {
	if f.metrics == nil {
		return
	}
	f.metrics.RecordFetch(result.Source, outcome, result.Duration)
	if result.Cached {
		f.metrics.RecordCacheHit("records")
	} else if f.cache != nil {
		f.metrics.RecordCacheMiss("records")
	}
}
