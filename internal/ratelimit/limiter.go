// Package ratelimit implements per-client token bucket throttling for HTTP APIs.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/fraud-detection/internal/metrics"
)

// Config holds rate limiter configuration.
type Config struct {
	RPS   float64
	Burst int
	// IdleTTL evicts buckets unused for this long. Zero keeps them forever.
	IdleTTL time.Duration
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter manages per-client rate limits.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*bucket
	rate     rate.Limit
	burst    int
	idleTTL  time.Duration
	now      func() time.Time
}

// New creates a new Limiter. A non-positive RPS disables throttling.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*bucket),
		rate:     r,
		burst:    burst,
		idleTTL:  cfg.IdleTTL,
		now:      time.Now,
	}
}

// Allow reports whether the client identified by key may proceed now.
func (l *Limiter) Allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	b, ok := l.limiters[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[key] = b
	}
	b.lastSeen = now
	l.evictLocked(now)
	l.mu.Unlock()
	return b.limiter.AllowN(now, 1)
}

func (l *Limiter) evictLocked(now time.Time) {
	if l.idleTTL <= 0 {
		return
	}
	for key, b := range l.limiters {
		if now.Sub(b.lastSeen) > l.idleTTL {
			delete(l.limiters, key)
		}
	}
}

// Len returns the number of tracked clients.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// Middleware rejects throttled requests with 429 and a JSON error body.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.Allow(ClientKey(r)) {
			next.ServeHTTP(w, r)
			return
		}
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		metrics.ObserveRateLimited(route)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
	})
}

type clientIDKey struct{}

// WithClient marks the request as coming from an authenticated caller. Only
// the auth middleware sets it, after the key has been accepted.
func WithClient(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, clientIDKey{}, id)
}

// KeyID derives a stable, non-reversible caller id from an API key. The key
// itself never leaves the auth middleware.
func KeyID(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return "key:" + hex.EncodeToString(sum[:6])
}

// ClientKey identifies the caller by the id recorded with WithClient, else by
// remote host. Unverified X-API-Key headers are ignored.
func ClientKey(r *http.Request) string {
	if id, ok := r.Context().Value(clientIDKey{}).(string); ok && id != "" {
		return id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
