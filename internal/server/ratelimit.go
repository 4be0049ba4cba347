package server

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const maxTrackedClients = 10000

// Limiter keeps one token bucket per client key. Each bucket starts full,
// holds at most capacity tokens and refills continuously.
type Limiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu      sync.Mutex
	clients map[string]*rate.Limiter
}

func NewLimiter(capacity, refillPerSecond float64) *Limiter {
	return &Limiter{
		limit:   rate.Limit(refillPerSecond),
		burst:   max(int(capacity), 1),
		now:     time.Now,
		clients: make(map[string]*rate.Limiter),
	}
}

// Allow takes one token from key's bucket if one is available.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	lim, ok := l.clients[key]
	if !ok {
		if len(l.clients) >= maxTrackedClients {
			l.pruneLocked(now)
		}
		lim = rate.NewLimiter(l.limit, l.burst)
		l.clients[key] = lim
	}
	return lim.AllowN(now, 1)
}

// pruneLocked forgets clients whose buckets have refilled; they would start
// full anyway.
func (l *Limiter) pruneLocked(now time.Time) {
	for key, lim := range l.clients {
		if lim.TokensAt(now) >= float64(l.burst) {
			delete(l.clients, key)
		}
	}
}

// Middleware rejects requests from clients that ran out of tokens with 429.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(clientIP(r)) {
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: errorDetail{
				Kind:    "RATE_LIMITED",
				Message: "Rate limit exceeded",
			}})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil || host == "" {
		if r.RemoteAddr == "" {
			return "anon"
		}
		return r.RemoteAddr
	}
	return host
}
