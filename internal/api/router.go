package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/openworm/wormgraph/internal/api/handlers"
	"github.com/openworm/wormgraph/internal/api/middleware"
	"github.com/openworm/wormgraph/internal/core"
	"github.com/openworm/wormgraph/internal/health"
	"github.com/openworm/wormgraph/internal/integration"
)

// Config holds the HTTP settings the router needs.
type Config struct {
	RequestTimeout time.Duration
	AllowedOrigins []string
	Version        string
}

// Router sets up and configures the HTTP router
type Router struct {
	engine            *core.Engine
	documentHandler   *handlers.DocumentHandler
	cellHandler       *handlers.CellHandler
	identifierHandler *handlers.IdentifierHandler
	healthChecker     *health.HealthChecker
	observability     *integration.ObservabilityManager
	security          *integration.SecurityManager
	config            Config
}

// NewRouter creates a router. healthChecker and securityManager may be nil;
// a nil obsManager discards telemetry.
func NewRouter(
	engine *core.Engine,
	healthChecker *health.HealthChecker,
	obsManager *integration.ObservabilityManager,
	securityManager *integration.SecurityManager,
	config Config,
) *Router {
	if obsManager == nil {
		obsManager = integration.NewNopObservabilityManager()
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 60 * time.Second
	}
	if len(config.AllowedOrigins) == 0 {
		config.AllowedOrigins = []string{"https://*", "http://*"}
	}

	r := &Router{
		engine:            engine,
		cellHandler:       handlers.NewCellHandler(engine),
		identifierHandler: handlers.NewIdentifierHandler(engine),
		healthChecker:     healthChecker,
		observability:     obsManager,
		security:          securityManager,
		config:            config,
	}
	if securityManager != nil {
		r.documentHandler = handlers.NewDocumentHandler(engine, securityManager.GetSanitizer())
	} else {
		r.documentHandler = handlers.NewDocumentHandler(engine, nil)
	}
	return r
}

// SetupRoutes configures all routes and middleware
func (r *Router) SetupRoutes() http.Handler {
	router := chi.NewRouter()
	logger := r.observability.GetLogging().GetZerologLogger()

	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(middleware.Logger(logger))
	router.Use(middleware.ErrorHandler(logger))
	router.Use(r.observability.GetTracing().TraceMiddleware())
	router.Use(r.observability.GetMetrics().MetricsMiddleware())

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   r.config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link", "X-Trace-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Use(chiMiddleware.Timeout(r.config.RequestTimeout))

	router.Get("/health", r.healthCheck)
	router.Get("/ready", r.readinessCheck)
	router.Get("/metrics", r.metrics)
	router.Get("/stats", r.stats)

	router.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	router.Route("/api/v1", func(apiRouter chi.Router) {
		if r.security != nil {
			apiRouter.Use(middleware.RateLimit(r.security.GetRateLimiter()))
		}

		apiRouter.Post("/identifiers/documents", r.identifierHandler.PreviewDocumentIdentifier)

		apiRouter.Route("/documents", func(docRouter chi.Router) {
			docRouter.Post("/", r.documentHandler.CreateDocument)
			docRouter.Get("/", r.documentHandler.ListDocuments)
			docRouter.Post("/batch", r.documentHandler.CreateDocuments)
			docRouter.Get("/search", r.documentHandler.SearchDocuments)
			docRouter.Get("/find", r.documentHandler.FindDocuments)

			docRouter.Route("/{iri}", func(idRouter chi.Router) {
				idRouter.Get("/", r.documentHandler.GetDocument)
				idRouter.Delete("/", r.documentHandler.DeleteDocument)
				idRouter.Post("/enrich", r.documentHandler.EnrichDocument)
			})
		})

		apiRouter.Route("/cells/{kind}", func(cellRouter chi.Router) {
			cellRouter.Post("/", r.cellHandler.CreateCell)
			cellRouter.Get("/{name}", r.cellHandler.GetCell)
		})
	})

	return router
}

// healthCheck returns the health status of the system
// @Summary Health check
// @Description Returns the health status of the service and its dependencies
// @Tags health
// @Produce json
// @Success 200 {object} health.SystemHealth
// @Failure 503 {object} health.SystemHealth
// @Router /health [get]
func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	if r.healthChecker == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    health.StatusHealthy,
			"timestamp": time.Now().UTC(),
			"version":   r.config.Version,
		})
		return
	}

	systemHealth := r.healthChecker.Check(req.Context())
	statusCode := http.StatusOK
	if systemHealth.Status == health.StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, systemHealth)
}

// readinessCheck returns the readiness status of the system
// @Summary Readiness check
// @Description Indicates if the service is ready to accept requests
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {string} string "Service not ready"
// @Router /ready [get]
func (r *Router) readinessCheck(w http.ResponseWriter, req *http.Request) {
	if r.healthChecker != nil {
		// the periodic checks keep a recent result; probe directly before the first one
		current, ok := r.healthChecker.Last()
		if !ok {
			current = r.healthChecker.Check(req.Context())
		}
		if current.Status == health.StatusUnhealthy {
			http.Error(w, "Service not ready", http.StatusServiceUnavailable)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ready",
		"timestamp": time.Now().UTC(),
	})
}

// metrics serves the prometheus registry, or the stats document when
// prometheus metrics are disabled.
// @Summary Get metrics
// @Tags health
// @Produce plain
// @Success 200 {string} string "Prometheus exposition"
// @Router /metrics [get]
func (r *Router) metrics(w http.ResponseWriter, req *http.Request) {
	if m := r.observability.GetMetrics(); m.IsEnabled() {
		m.Handler().ServeHTTP(w, req)
		return
	}
	r.stats(w, req)
}

// stats returns transaction and rate limit counters
// @Summary Get service statistics
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /stats [get]
func (r *Router) stats(w http.ResponseWriter, req *http.Request) {
	tx := r.engine.TransactionStats()
	response := map[string]any{
		"transactions": map[string]any{
			"total_committed":        tx.TotalCommitted,
			"total_rolled_back":      tx.TotalRolledBack,
			"total_index_errors":     tx.TotalIndexErrors,
			"total_timeouts":         tx.CommitTimeouts,
			"average_commit_time_ms": tx.AverageCommitTime.Milliseconds(),
		},
		"timestamp": time.Now().UTC(),
	}
	if r.security != nil {
		response["rate_limit"] = r.security.GetRateLimiter().GetStats()
	}
	writeJSON(w, http.StatusOK, response)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
