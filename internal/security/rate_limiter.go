package security

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerSecond float64       `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int           `yaml:"burst_size" mapstructure:"burst_size"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval" mapstructure:"cleanup_interval"`

	IPLimitEnabled      bool    `yaml:"ip_limit_enabled" mapstructure:"ip_limit_enabled"`
	IPRequestsPerSecond float64 `yaml:"ip_requests_per_second" mapstructure:"ip_requests_per_second"`
	IPBurstSize         int     `yaml:"ip_burst_size" mapstructure:"ip_burst_size"`
}

// RateLimiter throttles inbound API traffic globally and per client IP.
type RateLimiter struct {
	config        RateLimitConfig
	globalLimiter *rate.Limiter
	ipLimiters    map[string]*rateLimiterEntry
	mutex         sync.Mutex
	stopCleanup   chan struct{}
	stopOnce      sync.Once
}

type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	rl := &RateLimiter{
		config:      config,
		ipLimiters:  make(map[string]*rateLimiterEntry),
		stopCleanup: make(chan struct{}),
	}

	if config.Enabled {
		rl.globalLimiter = rate.NewLimiter(
			rate.Limit(config.RequestsPerSecond),
			config.BurstSize,
		)

		if config.CleanupInterval > 0 {
			go rl.cleanupRoutine()
		}
	}

	return rl
}

func (rl *RateLimiter) Allow() bool {
	if !rl.config.Enabled || rl.globalLimiter == nil {
		return true
	}
	return rl.globalLimiter.Allow()
}

func (rl *RateLimiter) AllowIP(ip string) bool {
	if !rl.config.Enabled || !rl.config.IPLimitEnabled {
		return true
	}

	return rl.getIPLimiter(ip).Allow()
}

func (rl *RateLimiter) getIPLimiter(ip string) *rate.Limiter {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	if entry, exists := rl.ipLimiters[ip]; exists {
		entry.lastSeen = time.Now()
		return entry.limiter
	}

	limiter := rate.NewLimiter(
		rate.Limit(rl.config.IPRequestsPerSecond),
		rl.config.IPBurstSize,
	)

	rl.ipLimiters[ip] = &rateLimiterEntry{
		limiter:  limiter,
		lastSeen: time.Now(),
	}

	return limiter
}

func (rl *RateLimiter) cleanupRoutine() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCleanup:
			return
		}
	}
}

func (rl *RateLimiter) cleanup() {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	cutoff := time.Now().Add(-rl.config.CleanupInterval * 2)

	for ip, entry := range rl.ipLimiters {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.ipLimiters, ip)
		}
	}
}

func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopCleanup)
	})
}

func (rl *RateLimiter) IsEnabled() bool {
	return rl.config.Enabled
}

func (rl *RateLimiter) GetStats() map[string]any {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	return map[string]any{
		"enabled":           rl.config.Enabled,
		"ip_limiters_count": len(rl.ipLimiters),
		"global_limit": map[string]any{
			"requests_per_second": rl.config.RequestsPerSecond,
			"burst_size":          rl.config.BurstSize,
		},
	}
}

// Check applies the global and per-IP limits to r. It returns a reason when the
// request must be rejected.
func (rl *RateLimiter) Check(r *http.Request) (string, bool) {
	if !rl.config.Enabled {
		return "", true
	}
	if !rl.Allow() {
		return "Global rate limit exceeded", false
	}
	if rl.config.IPLimitEnabled && !rl.AllowIP(ClientIP(r)) {
		return "IP rate limit exceeded", false
	}
	return "", true
}

// AddHeaders reports the configured limits on w.
func (rl *RateLimiter) AddHeaders(w http.ResponseWriter) {
	if rl.globalLimiter != nil {
		w.Header().Set("X-RateLimit-Limit", strconv.FormatFloat(float64(rl.globalLimiter.Limit()), 'f', 0, 64))
		w.Header().Set("X-RateLimit-Burst", strconv.Itoa(rl.globalLimiter.Burst()))
	}
}

// ClientIP prefers proxy headers over the socket address.
func ClientIP(r *http.Request) string {
	if xForwardedFor := r.Header.Get("X-Forwarded-For"); xForwardedFor != "" {
		ips := strings.Split(xForwardedFor, ",")
		return strings.TrimSpace(ips[0])
	}

	if xRealIP := r.Header.Get("X-Real-IP"); xRealIP != "" {
		return xRealIP
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// OutboundLimiter spaces out requests to remote metadata services, one token
// bucket per service.
type OutboundLimiter struct {
	mutex    sync.Mutex
	limiters map[string]*rate.Limiter
	perHost  map[string]float64
	fallback float64
	burst    int
}

// NewOutboundLimiter builds a limiter. perSecond maps a service name to its
// request rate; services not listed use fallback. A rate <= 0 disables limiting.
func NewOutboundLimiter(perSecond map[string]float64, fallback float64, burst int) *OutboundLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &OutboundLimiter{
		limiters: make(map[string]*rate.Limiter),
		perHost:  perSecond,
		fallback: fallback,
		burst:    burst,
	}
}

// Wait blocks until a request to service may proceed or ctx ends.
func (ol *OutboundLimiter) Wait(ctx context.Context, service string) error {
	if ol == nil {
		return nil
	}
	limiter := ol.limiter(service)
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}

func (ol *OutboundLimiter) limiter(service string) *rate.Limiter {
	ol.mutex.Lock()
	defer ol.mutex.Unlock()

	if l, ok := ol.limiters[service]; ok {
		return l
	}

	rps, ok := ol.perHost[service]
	if !ok {
		rps = ol.fallback
	}
	if rps <= 0 {
		ol.limiters[service] = nil
		return nil
	}

	l := rate.NewLimiter(rate.Limit(rps), ol.burst)
	ol.limiters[service] = l
	return l
}
