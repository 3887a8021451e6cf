package health

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/openworm/wormgraph/internal/resilience"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// rank orders statuses from best to worst.
func (s Status) rank() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	}
	return 2
}

// ComponentHealth is the outcome of one check.
type ComponentHealth struct {
	Name      string            `json:"name"`
	Status    Status            `json:"status"`
	Message   string            `json:"message,omitempty"`
	LastCheck time.Time         `json:"last_check"`
	Duration  time.Duration     `json:"duration_ms"`
	Details   map[string]string `json:"details,omitempty"`
}

// SystemHealth is the worst component status plus every component result.
// Summary counts components per status.
type SystemHealth struct {
	Status     Status                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Components map[string]ComponentHealth `json:"components"`
	Summary    map[Status]int             `json:"summary"`
}

type HealthCheckFunc func(ctx context.Context) ComponentHealth

type namedCheck struct {
	name string
	fn   HealthCheckFunc
}

// HealthChecker runs the registered checks concurrently, each bounded by the
// checker timeout, and keeps the most recent result.
type HealthChecker struct {
	mu      sync.RWMutex
	checks  []namedCheck
	last    *SystemHealth
	timeout time.Duration
}

func NewHealthChecker(timeout time.Duration) *HealthChecker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthChecker{timeout: timeout}
}

// RegisterComponent adds a check. Registering a name again replaces it.
func (hc *HealthChecker) RegisterComponent(name string, fn HealthCheckFunc) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	for i := range hc.checks {
		if hc.checks[i].name == name {
			hc.checks[i].fn = fn
			return
		}
	}
	hc.checks = append(hc.checks, namedCheck{name: name, fn: fn})
}

// RegisterStore adds a ping check; a failing ping makes the service unhealthy.
func (hc *HealthChecker) RegisterStore(name string, store Pinger) {
	hc.RegisterComponent(name, pingCheck(name, store, StatusUnhealthy))
}

func (hc *HealthChecker) Check(ctx context.Context) SystemHealth {
	hc.mu.RLock()
	checks := make([]namedCheck, len(hc.checks))
	copy(checks, hc.checks)
	hc.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, hc.timeout)
	defer cancel()

	results := make([]ComponentHealth, len(checks))
	var wg sync.WaitGroup
	for i, c := range checks {
		i, c := i, c
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = hc.run(ctx, c)
		}()
	}
	wg.Wait()

	system := SystemHealth{
		Status:     StatusHealthy,
		Timestamp:  time.Now(),
		Components: make(map[string]ComponentHealth, len(results)),
		Summary:    make(map[Status]int),
	}
	for _, r := range results {
		system.Components[r.Name] = r
		system.Summary[r.Status]++
		if r.Status.rank() > system.Status.rank() {
			system.Status = r.Status
		}
	}

	hc.mu.Lock()
	hc.last = &system
	hc.mu.Unlock()
	return system
}

// run returns fn's result, or an unhealthy timeout result once ctx expires.
// A check that ignores ctx keeps running in the background.
func (hc *HealthChecker) run(ctx context.Context, c namedCheck) ComponentHealth {
	done := make(chan ComponentHealth, 1)
	go func() { done <- c.fn(ctx) }()

	select {
	case r := <-done:
		r.Name = c.name
		return r
	case <-ctx.Done():
		return ComponentHealth{
			Name:      c.name,
			Status:    StatusUnhealthy,
			Message:   "health check timeout",
			LastCheck: time.Now(),
			Duration:  hc.timeout,
		}
	}
}

// Last returns the result of the most recent Check, if any ran.
func (hc *HealthChecker) Last() (SystemHealth, bool) {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	if hc.last == nil {
		return SystemHealth{}, false
	}
	return *hc.last, true
}

// StartPeriodicChecks runs Check every interval until ctx is done.
func (hc *HealthChecker) StartPeriodicChecks(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				hc.Check(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Pinger is implemented by the statement store and the document index.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CreateDatabaseHealthCheck checks the statement store. A failing store makes
// the service unhealthy.
func CreateDatabaseHealthCheck(db Pinger) HealthCheckFunc {
	return pingCheck("database", db, StatusUnhealthy)
}

// CreateSearchHealthCheck checks the document index. Documents can still be
// read and written without it, so a failure only degrades the service.
func CreateSearchHealthCheck(index Pinger) HealthCheckFunc {
	return pingCheck("search", index, StatusDegraded)
}

func pingCheck(name string, p Pinger, failed Status) HealthCheckFunc {
	return func(ctx context.Context) ComponentHealth {
		start := time.Now()
		health := ComponentHealth{
			Name:      name,
			LastCheck: start,
			Details:   make(map[string]string),
		}

		if err := p.Ping(ctx); err != nil {
			health.Status = failed
			health.Message = fmt.Sprintf("%s ping failed: %v", name, err)
		} else {
			health.Status = StatusHealthy
			health.Message = name + " connection healthy"
		}

		health.Duration = time.Since(start)
		health.Details["response_time"] = health.Duration.String()
		return health
	}
}

// CreateEnrichmentHealthCheck reports the circuit breakers guarding the
// metadata services. An open breaker degrades the service.
func CreateEnrichmentHealthCheck(breakers *resilience.CircuitBreakerHealthCheck) HealthCheckFunc {
	return func(ctx context.Context) ComponentHealth {
		start := time.Now()
		health := ComponentHealth{
			Name:      "enrichment",
			LastCheck: start,
			Status:    StatusHealthy,
			Message:   "all circuit breakers closed",
			Details:   make(map[string]string),
		}

		if open := breakers.OpenBreakers(); len(open) > 0 {
			health.Status = StatusDegraded
			health.Message = "circuit breakers open: " + strings.Join(open, ", ")
			for _, name := range open {
				health.Details[name] = "open"
			}
		}

		health.Duration = time.Since(start)
		return health
	}
}

// CreateMemoryHealthCheck degrades the service once the heap grows past
// limitBytes. A zero limit only reports usage.
func CreateMemoryHealthCheck(limitBytes uint64) HealthCheckFunc {
	return func(ctx context.Context) ComponentHealth {
		start := time.Now()
		var m runtime.MemStats
		runtime.ReadMemStats(&m)

		health := ComponentHealth{
			Name:      "memory",
			LastCheck: start,
			Status:    StatusHealthy,
			Message:   "memory usage within limits",
			Details: map[string]string{
				"heap_alloc": strconv.FormatUint(m.HeapAlloc, 10),
				"goroutines": strconv.Itoa(runtime.NumGoroutine()),
			},
		}
		if limitBytes > 0 && m.HeapAlloc > limitBytes {
			health.Status = StatusDegraded
			health.Message = fmt.Sprintf("heap %d bytes exceeds %d", m.HeapAlloc, limitBytes)
		}

		health.Duration = time.Since(start)
		return health
	}
}
