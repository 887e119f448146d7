package ratelimit

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// Limiter is a simple fixed-window bucket keyed by client IP
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket // per-IP buckets
	max     int                // tokens per window
	per     time.Duration      // window size
	now     func() time.Time
}

type bucket struct {
	ts     time.Time // window start
	tokens int       // remaining tokens
}

// New creates a new IP-based limiter allowing max requests per window.
// max <= 0 disables limiting.
func New(max int, per time.Duration) *Limiter {
	return &Limiter{buckets: map[string]*bucket{}, max: max, per: per, now: time.Now}
}

// PerMinute is New(max, time.Minute)
func PerMinute(max int) *Limiter { return New(max, time.Minute) }

// Allow takes one token for key, reporting false when the window is spent
func (r *Limiter) Allow(key string) bool {
	if r.max <= 0 {
		return true
	}
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.buckets[key]
	if b == nil || now.Sub(b.ts) > r.per {
		b = &bucket{ts: now, tokens: r.max}
		r.buckets[key] = b
		if len(r.buckets) > 4096 {
			r.sweep(now)
		}
	}
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

// sweep drops buckets whose window has passed. Caller holds mu.
func (r *Limiter) sweep(now time.Time) {
	for k, b := range r.buckets {
		if now.Sub(b.ts) > r.per {
			delete(r.buckets, k)
		}
	}
}

// Middleware enforces the rate limit before calling the next handler
func (r *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ip, _, err := net.SplitHostPort(req.RemoteAddr)
		if err != nil {
			ip = req.RemoteAddr
		}
		if !r.Allow(ip) {
			http.Error(w, "rate limit", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, req)
	})
}
