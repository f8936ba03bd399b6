package middleware

import (
	"net/http"

	"golang.org/x/time/rate"
)

// RateLimit caps the request rate across the whole API. The controller
// fronts a single press line; a runaway client retry loop must not be
// able to starve the renderer callback path. rps=0 disables the limit.
func RateLimit(rps float64, burst int) func(http.Handler) http.Handler {
	var limiter *rate.Limiter
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter != nil && !limiter.Allow() {
				w.Header().Set("Retry-After", "1")
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
