package observability

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" mapstructure:"enabled"`
	Path      string `yaml:"path" mapstructure:"path"`
	Namespace string `yaml:"namespace" mapstructure:"namespace"`
	Subsystem string `yaml:"subsystem" mapstructure:"subsystem"`
}

type MetricsManager struct {
	config   MetricsConfig
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	identifiersDerived *prometheus.CounterVec
	identifierMissing  *prometheus.CounterVec

	entityOperations        *prometheus.CounterVec
	entityOperationDuration *prometheus.HistogramVec
	statementsWritten       *prometheus.CounterVec

	enrichments      *prometheus.CounterVec
	fetches          *prometheus.CounterVec
	fetchDuration    *prometheus.HistogramVec
	circuitBreakerOp *prometheus.CounterVec

	searchOperations *prometheus.CounterVec
	searchDuration   *prometheus.HistogramVec

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	dbConnections       prometheus.Gauge
	dbOperations        *prometheus.CounterVec
	dbOperationDuration *prometheus.HistogramVec

	lockOperations   *prometheus.CounterVec
	lockWaitDuration *prometheus.HistogramVec

	uptimeSeconds prometheus.Gauge
	buildInfo     *prometheus.GaugeVec
}

func NewMetricsManager(config MetricsConfig) *MetricsManager {
	if !config.Enabled {
		return &MetricsManager{config: config}
	}

	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	namespace := config.Namespace
	if namespace == "" {
		namespace = "wormgraph"
	}
	subsystem := config.Subsystem
	if subsystem == "" {
		subsystem = "graph"
	}

	mm := &MetricsManager{
		config:   config,
		registry: registry,
	}

	mm.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code"},
	)

	mm.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	mm.httpResponseSize = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(256, 2, 10),
		},
		[]string{"method", "path"},
	)

	mm.identifiersDerived = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "identity",
			Name:      "identifiers_total",
			Help:      "Identifiers resolved, by entity type and how they were obtained",
		},
		[]string{"entity_type", "path"},
	)

	mm.identifierMissing = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "identity",
			Name:      "missing_total",
			Help:      "Entities that could not produce an identifier",
		},
		[]string{"entity_type"},
	)

	mm.entityOperations = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "entity_operations_total",
			Help:      "Total number of entity operations",
		},
		[]string{"operation", "entity_type", "status"},
	)

	mm.entityOperationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "entity_operation_duration_seconds",
			Help:      "Entity operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation", "entity_type"},
	)

	mm.statementsWritten = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "statements_written_total",
			Help:      "Statements written to the store",
		},
		[]string{"entity_type"},
	)

	mm.enrichments = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrichment",
			Name:      "runs_total",
			Help:      "Enrichment runs by source and outcome",
		},
		[]string{"source", "status"},
	)

	mm.fetches = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrichment",
			Name:      "fetches_total",
			Help:      "Remote metadata fetches by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	mm.fetchDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "enrichment",
			Name:      "fetch_duration_seconds",
			Help:      "Remote metadata fetch duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"source"},
	)

	mm.circuitBreakerOp = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrichment",
			Name:      "circuit_breaker_transitions_total",
			Help:      "Circuit breaker state transitions",
		},
		[]string{"breaker", "to"},
	)

	mm.searchOperations = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "search_operations_total",
			Help:      "Total number of search operations",
		},
		[]string{"status"},
	)

	mm.searchDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "search_duration_seconds",
			Help:      "Search operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	mm.cacheHits = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	mm.cacheMisses = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	mm.dbConnections = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "connections_active",
			Help:      "Number of active database connections",
		},
	)

	mm.dbOperations = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "operations_total",
			Help:      "Total number of database operations",
		},
		[]string{"operation", "store", "status"},
	)

	mm.dbOperationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "operation_duration_seconds",
			Help:      "Database operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation", "store"},
	)

	mm.lockOperations = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lock",
			Name:      "operations_total",
			Help:      "Total number of lock operations",
		},
		[]string{"operation", "status"},
	)

	mm.lockWaitDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "lock",
			Name:      "wait_duration_seconds",
			Help:      "Time spent waiting for locks",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"lock_type"},
	)

	mm.uptimeSeconds = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "uptime_seconds",
			Help:      "System uptime in seconds",
		},
	)

	mm.buildInfo = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "build_info",
			Help:      "Build information",
		},
		[]string{"version", "commit", "build_time"},
	)

	return mm
}

func (mm *MetricsManager) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration, responseSize int64) {
	if !mm.config.Enabled {
		return
	}

	mm.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	mm.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	mm.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// RecordIdentifier counts a resolved identifier. path is "explicit", "hashed"
// or "direct".
func (mm *MetricsManager) RecordIdentifier(entityType, path string) {
	if !mm.config.Enabled {
		return
	}
	mm.identifiersDerived.WithLabelValues(entityType, path).Inc()
}

func (mm *MetricsManager) RecordIdentifierMissing(entityType string) {
	if !mm.config.Enabled {
		return
	}
	mm.identifierMissing.WithLabelValues(entityType).Inc()
}

func (mm *MetricsManager) RecordEntityOperation(operation, entityType, status string, duration time.Duration) {
	if !mm.config.Enabled {
		return
	}

	mm.entityOperations.WithLabelValues(operation, entityType, status).Inc()
	mm.entityOperationDuration.WithLabelValues(operation, entityType).Observe(duration.Seconds())
}

func (mm *MetricsManager) RecordStatementsWritten(entityType string, n int) {
	if !mm.config.Enabled {
		return
	}
	mm.statementsWritten.WithLabelValues(entityType).Add(float64(n))
}

func (mm *MetricsManager) RecordEnrichment(source, status string) {
	if !mm.config.Enabled {
		return
	}
	mm.enrichments.WithLabelValues(source, status).Inc()
}

// RecordFetch counts a remote fetch. outcome is "ok", "error" or "cached".
func (mm *MetricsManager) RecordFetch(source, outcome string, duration time.Duration) {
	if !mm.config.Enabled {
		return
	}
	mm.fetches.WithLabelValues(source, outcome).Inc()
	if outcome != "cached" {
		mm.fetchDuration.WithLabelValues(source).Observe(duration.Seconds())
	}
}

func (mm *MetricsManager) RecordCircuitBreakerTransition(name, to string) {
	if !mm.config.Enabled {
		return
	}
	mm.circuitBreakerOp.WithLabelValues(name, to).Inc()
}

func (mm *MetricsManager) RecordSearchOperation(status string, duration time.Duration) {
	if !mm.config.Enabled {
		return
	}

	mm.searchOperations.WithLabelValues(status).Inc()
	mm.searchDuration.WithLabelValues(status).Observe(duration.Seconds())
}

func (mm *MetricsManager) RecordCacheHit(cacheType string) {
	if !mm.config.Enabled {
		return
	}
	mm.cacheHits.WithLabelValues(cacheType).Inc()
}

func (mm *MetricsManager) RecordCacheMiss(cacheType string) {
	if !mm.config.Enabled {
		return
	}
	mm.cacheMisses.WithLabelValues(cacheType).Inc()
}

func (mm *MetricsManager) SetDatabaseConnections(active int) {
	if !mm.config.Enabled {
		return
	}
	mm.dbConnections.Set(float64(active))
}

func (mm *MetricsManager) RecordDatabaseOperation(operation, store, status string, duration time.Duration) {
	if !mm.config.Enabled {
		return
	}

	mm.dbOperations.WithLabelValues(operation, store, status).Inc()
	mm.dbOperationDuration.WithLabelValues(operation, store).Observe(duration.Seconds())
}

func (mm *MetricsManager) RecordLockOperation(operation, status string, waitDuration time.Duration, lockType string) {
	if !mm.config.Enabled {
		return
	}

	mm.lockOperations.WithLabelValues(operation, status).Inc()
	mm.lockWaitDuration.WithLabelValues(lockType).Observe(waitDuration.Seconds())
}

func (mm *MetricsManager) SetUptime(startTime time.Time) {
	if !mm.config.Enabled {
		return
	}
	mm.uptimeSeconds.Set(time.Since(startTime).Seconds())
}

func (mm *MetricsManager) SetBuildInfo(version, commit, buildTime string) {
	if !mm.config.Enabled {
		return
	}
	mm.buildInfo.WithLabelValues(version, commit, buildTime).Set(1)
}

// Registry exposes the underlying registry, nil when metrics are disabled.
func (mm *MetricsManager) Registry() *prometheus.Registry {
	return mm.registry
}

func (mm *MetricsManager) Handler() http.Handler {
	if !mm.config.Enabled {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(mm.registry, promhttp.HandlerOpts{})
}

func (mm *MetricsManager) MetricsMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !mm.config.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			wrapped := &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			mm.RecordHTTPRequest(r.Method, r.URL.Path, wrapped.statusCode, time.Since(start), wrapped.size)
		})
	}
}

type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int64
}

func (mrw *metricsResponseWriter) WriteHeader(statusCode int) {
	mrw.statusCode = statusCode
	mrw.ResponseWriter.WriteHeader(statusCode)
}

func (mrw *metricsResponseWriter) Write(data []byte) (int, error) {
	size, err := mrw.ResponseWriter.Write(data)
	mrw.size += int64(size)
	return size, err
}

func (mm *MetricsManager) IsEnabled() bool {
	return mm.config.Enabled
}

func (mm *MetricsManager) StartUptimeTracker(ctx context.Context, startTime time.Time) {
	if !mm.config.Enabled {
		return
	}

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				mm.SetUptime(startTime)
			}
		}
	}()
}
