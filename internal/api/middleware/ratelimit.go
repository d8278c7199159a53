package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/phrazzld/studypal-api/internal/api/shared"
	"golang.org/x/time/rate"
)

// maxIdleLimiters triggers a sweep of idle per-key limiters.
const maxIdleLimiters = 10000

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies a token bucket per account id, falling back to the
// client IP for anonymous requests.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	limit    rate.Limit
	burst    int
	idleTTL  time.Duration
	now      func() time.Time
}

// NewRateLimiter allows requestsPerMinute sustained requests with the given
// burst. A non-positive rate disables limiting.
func NewRateLimiter(requestsPerMinute, burst int) *RateLimiter {
	limit := rate.Inf
	if requestsPerMinute > 0 {
		limit = rate.Limit(float64(requestsPerMinute) / 60.0)
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		limit:    limit,
		burst:    burst,
		idleTTL:  10 * time.Minute,
		now:      time.Now,
	}
}

// Allow reports whether key may make a request now.
func (l *RateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	entry, ok := l.limiters[key]
	if !ok {
		if len(l.limiters) >= maxIdleLimiters {
			l.sweep(now)
		}
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func (l *RateLimiter) sweep(now time.Time) {
	for k, e := range l.limiters {
		if now.Sub(e.lastSeen) > l.idleTTL {
			delete(l.limiters, k)
		}
	}
}

// Limit is the middleware handler.
func (l *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := shared.AccountID(r.Context())
		if key == "" {
			key = clientIP(r)
		}
		if !l.Allow(key) {
			w.Header().Set("Retry-After", strconv.Itoa(l.retryAfterSeconds()))
			shared.RespondWithErrorAndLog(w, r, http.StatusTooManyRequests, "Too many requests", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *RateLimiter) retryAfterSeconds() int {
	if l.limit == rate.Inf || l.limit <= 0 {
		return 1
	}
	secs := int(1 / float64(l.limit))
	if secs < 1 {
		return 1
	}
	return secs
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
