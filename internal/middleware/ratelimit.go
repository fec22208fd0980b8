// Package middleware holds HTTP middleware that does not belong to any
// single handler, currently per-IP rate limiting for the public API.
package middleware

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Limiter applies a fixed-window request quota per client IP.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   int
	window  time.Duration
	exempt  map[string]struct{}
	logger  *slog.Logger
}

type bucket struct {
	remaining int
	resetAt   time.Time
}

// NewLimiter allows up to limit requests per window for each IP.
// Addresses in exempt bypass the quota entirely.
func NewLimiter(limit int, window time.Duration, exempt []string, logger *slog.Logger) *Limiter {
	ex := make(map[string]struct{}, len(exempt))
	for _, ip := range exempt {
		if ip = strings.TrimSpace(ip); ip != "" {
			ex[ip] = struct{}{}
		}
	}

	l := &Limiter{
		buckets: make(map[string]*bucket),
		limit:   limit,
		window:  window,
		exempt:  ex,
		logger:  logger.With("component", "rate_limiter"),
	}

	go l.sweep()

	return l
}

// sweep drops buckets whose window has long expired so the map does
// not grow with every IP ever seen.
func (l *Limiter) sweep() {
	ticker := time.NewTicker(l.window * 2)
	defer ticker.Stop()
	for range ticker.C {
		now := time.Now()
		l.mu.Lock()
		for ip, b := range l.buckets {
			if now.After(b.resetAt.Add(l.window)) {
				delete(l.buckets, ip)
			}
		}
		l.mu.Unlock()
	}
}

func (l *Limiter) allow(ip string) bool {
	if _, ok := l.exempt[ip]; ok {
		return true
	}

	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[ip]
	if !ok || now.After(b.resetAt) {
		l.buckets[ip] = &bucket{
			remaining: l.limit - 1,
			resetAt:   now.Add(l.window),
		}
		return true
	}

	if b.remaining > 0 {
		b.remaining--
		return true
	}

	return false
}

// Middleware rejects over-quota requests with 429 and a Retry-After
// hint; responses keep the same JSON error envelope as the handlers.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !l.allow(ip) {
			l.logger.Warn("rate limit exceeded", "ip", ip, "path", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{"error": "too many requests"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientIP prefers proxy-set headers over RemoteAddr so limits apply
// to the originating client when the server sits behind a proxy.
func clientIP(r *http.Request) string {
	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if host, _, err := net.SplitHostPort(first); err == nil {
			return host
		}
		return first
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
