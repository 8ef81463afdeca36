package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/onedevai/ai-chatbot/internal/metrics"
	"github.com/onedevai/ai-chatbot/pkg/utils"
)

const limiterIdleTTL = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter hands out one token bucket per client address.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*limiterEntry
	limit   rate.Limit
	burst   int
	now     func() time.Time
	metrics *metrics.Metrics
}

// NewRateLimiter allows rps requests per second with the given burst per client.
func NewRateLimiter(rps float64, burst int, m *metrics.Metrics) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		clients: make(map[string]*limiterEntry),
		limit:   rate.Limit(rps),
		burst:   burst,
		now:     time.Now,
		metrics: m,
	}
}

// Allow reports whether key may proceed now.
func (l *RateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.clients[key]
	if !ok {
		l.evictLocked(now)
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

func (l *RateLimiter) evictLocked(now time.Time) {
	for key, e := range l.clients {
		if now.Sub(e.lastSeen) > limiterIdleTTL {
			delete(l.clients, key)
		}
	}
}

// Handler rejects requests over the limit with 429.
func (l *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(clientKey(r)) {
			l.metrics.RateLimited()
			w.Header().Set("Retry-After", "1")
			utils.RespondError(w, http.StatusTooManyRequests, "Too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientKey relies on chi's RealIP having rewritten RemoteAddr.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
