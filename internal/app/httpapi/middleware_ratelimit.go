package httpapi

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// clientLimiter tracks one token bucket per caller. Buckets idle past the TTL
// are dropped on the next sweep.
type clientLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientBucket
	rps     rate.Limit
	burst   int
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const clientBucketTTL = 10 * time.Minute

func newClientLimiter(rps float64, burst int) *clientLimiter {
	return &clientLimiter{
		clients: make(map[string]*clientBucket),
		rps:     rate.Limit(rps),
		burst:   burst,
	}
}

func (cl *clientLimiter) allow(key string) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	b, ok := cl.clients[key]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(cl.rps, cl.burst)}
		cl.clients[key] = b
	}
	b.lastSeen = time.Now()

	if len(cl.clients) > 1024 {
		cl.sweepLocked()
	}
	return b.limiter.Allow()
}

func (cl *clientLimiter) sweepLocked() {
	cutoff := time.Now().Add(-clientBucketTTL)
	for key, b := range cl.clients {
		if b.lastSeen.Before(cutoff) {
			delete(cl.clients, key)
		}
	}
}

// RateLimit wraps next with a per-client token bucket keyed by user id, or
// remote address for anonymous calls.
func RateLimit(rps float64, burst int, next http.Handler) http.Handler {
	if rps <= 0 {
		return next
	}
	if burst <= 0 {
		burst = 1
	}
	cl := newClientLimiter(rps, burst)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := userID(r)
		if key == "" {
			if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
				key = host
			} else {
				key = r.RemoteAddr
			}
		}
		if !cl.allow(key) {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
