package middleware

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"fiscalsync/pkg/api"

	"golang.org/x/time/rate"
)

// RateLimitMiddleware throttles API requests per tenant. It runs after
// AuthMiddleware and reads the tenant's limits from the context.
func RateLimitMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		limiters := sync.Map{} // tenantID -> *cachedLimiter

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenant, ok := TenantFromContext(r.Context())
			if !ok {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(api.ErrorResponse{
					Error: "Unauthorized",
					Code:  "401",
				})
				return
			}

			// RateLimit=0 means unlimited
			if tenant.RateLimit > 0 {
				limiter := getOrCreateLimiter(&limiters, tenant.ID.String(), tenant.RateLimit, tenant.RateLimitBurst, 5*time.Minute)
				if !limiter.Allow() {
					w.Header().Set("Retry-After", "1")
					http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

type cachedLimiter struct {
	limiter   *rate.Limiter
	expiresAt time.Time
}

func getOrCreateLimiter(limiters *sync.Map, key string, limit, burst int, ttl time.Duration) *rate.Limiter {
	if v, ok := limiters.Load(key); ok {
		cached := v.(*cachedLimiter)
		if time.Now().Before(cached.expiresAt) {
			return cached.limiter
		}
		// expired, need to create new
	}

	limiter := rate.NewLimiter(rate.Limit(limit), burst)
	limiters.Store(key, &cachedLimiter{
		limiter:   limiter,
		expiresAt: time.Now().Add(ttl),
	})
	return limiter
}
