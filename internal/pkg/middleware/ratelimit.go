package middleware

import (
	"math"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/ricesearch/fairrank/internal/pkg/errors"
)

// clientIdle is how long a client may stay silent before its limiter is dropped.
const clientIdle = 5 * time.Minute

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter provides per-client token bucket rate limiting.
type RateLimiter struct {
	mu        sync.Mutex
	clients   map[string]*client
	rate      rate.Limit
	burst     int
	onLimited func()
	now       func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// RateLimiterConfig configures the rate limiter.
type RateLimiterConfig struct {
	// RequestsPerSecond is the rate limit per client.
	RequestsPerSecond float64
	// Burst is the maximum burst size. Zero means one second worth of requests.
	Burst int
	// CleanupInterval is how often idle clients are forgotten.
	CleanupInterval time.Duration
	// OnLimited is called for every rejected request.
	OnLimited func()
}

// DefaultRateLimiterConfig returns sensible defaults.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerSecond: 100,
		Burst:             200,
		CleanupInterval:   time.Minute,
	}
}

// NewRateLimiter creates a rate limiter and starts its cleanup loop.
// Call Close to stop the loop.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = max(1, int(math.Ceil(cfg.RequestsPerSecond)))
	}
	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = time.Minute
	}

	rl := &RateLimiter{
		clients:   make(map[string]*client),
		rate:      rate.Limit(cfg.RequestsPerSecond),
		burst:     burst,
		onLimited: cfg.OnLimited,
		now:       time.Now,
		stop:      make(chan struct{}),
	}

	go rl.cleanupLoop(interval)

	return rl
}

// Allow reports whether a request from the given client may proceed.
func (rl *RateLimiter) Allow(clientIP string) bool {
	rl.mu.Lock()
	c, ok := rl.clients[clientIP]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.clients[clientIP] = c
	}
	c.lastSeen = rl.now()
	rl.mu.Unlock()

	return c.limiter.Allow()
}

// Clients returns the number of tracked clients.
func (rl *RateLimiter) Clients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// Close stops the cleanup loop. It is safe to call more than once.
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.cleanup()
		}
	}
}

// cleanup forgets clients idle for longer than clientIdle.
func (rl *RateLimiter) cleanup() {
	threshold := rl.now().Add(-clientIdle)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for ip, c := range rl.clients {
		if c.lastSeen.Before(threshold) {
			delete(rl.clients, ip)
		}
	}
}

// Middleware returns an HTTP middleware that rejects requests over the limit
// with 429 and a Retry-After header.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(getClientIP(r)) {
			if rl.onLimited != nil {
				rl.onLimited()
			}
			w.Header().Set("Retry-After", "1")
			apperrors.WriteErrorWithStatus(w, http.StatusTooManyRequests,
				apperrors.RateLimitedError(1))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// getClientIP extracts the client IP from the request, preferring proxy headers.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
