package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"fruitorders/internal/models"
)

const clientIdleTTL = 10 * time.Minute

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter applies a token bucket per remote IP. Buckets idle for longer
// than clientIdleTTL are dropped on the next request.
func IPRateLimiter(rps float64, burst int) func(next http.Handler) http.Handler {
	clients := make(map[string]*client)
	var (
		mu        sync.Mutex
		lastSweep = time.Now()
	)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}

			now := time.Now()
			mu.Lock()
			if now.Sub(lastSweep) > clientIdleTTL {
				for key, c := range clients {
					if now.Sub(c.lastSeen) > clientIdleTTL {
						delete(clients, key)
					}
				}
				lastSweep = now
			}
			c, found := clients[ip]
			if !found {
				c = &client{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
				clients[ip] = c
			}
			c.lastSeen = now
			mu.Unlock()

			if !c.limiter.Allow() {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(models.ErrorResponse{Error: models.APIError{
					Code:    "RateLimited",
					Message: http.StatusText(http.StatusTooManyRequests),
				}})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
