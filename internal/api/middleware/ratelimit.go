package middleware

import (
	"net/http"

	"github.com/openworm/wormgraph/internal/security"
	"github.com/openworm/wormgraph/pkg/utils"
)

// RateLimit rejects requests over the global or per-client limits of limiter
// with 429 RATE_LIMITED.
func RateLimit(limiter *security.RateLimiter) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil || !limiter.IsEnabled() {
				next.ServeHTTP(w, r)
				return
			}

			limiter.AddHeaders(w)
			if reason, ok := limiter.Check(r); !ok {
				err := utils.NewAppError(utils.CodeRateLimited, reason, nil).
					WithDetail("client_ip", security.ClientIP(r))
				SendError(w, r, err, http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
