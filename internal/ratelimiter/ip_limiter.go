// Package ratelimiter throttles HTTP requests per client IP with token
// buckets that expire after a period of inactivity.
package ratelimiter

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/johndosdos/dmchat/internal/metrics"
)

type CleanupOpts struct {
	TTL      time.Duration
	Interval time.Duration
}

type visitor struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

type IPRateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	now      func() time.Time
	Cancel   context.CancelFunc
	CleanupOpts
}

// NewIPRateLimiter allows requests per window per IP, with bursts up to
// requests. The cleanup goroutine runs until ctx is done or Cancel is called.
func NewIPRateLimiter(ctx context.Context, requests int, window time.Duration, cleanupOpts CleanupOpts) *IPRateLimiter {
	if requests <= 0 {
		requests = 1
	}
	if cleanupOpts.Interval <= 0 {
		cleanupOpts.Interval = time.Minute
	}
	if cleanupOpts.TTL <= 0 {
		cleanupOpts.TTL = 3 * time.Minute
	}

	ctx, cancel := context.WithCancel(ctx)
	rl := &IPRateLimiter{
		visitors:    make(map[string]*visitor),
		limit:       rate.Every(window / time.Duration(requests)),
		burst:       requests,
		now:         time.Now,
		Cancel:      cancel,
		CleanupOpts: cleanupOpts,
	}
	go rl.cleanup(ctx)
	return rl
}

func (rl *IPRateLimiter) cleanup(ctx context.Context) {
	ticker := time.NewTicker(rl.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.evictIdle()
		}
	}
}

// evictIdle forgets IPs not seen for TTL.
func (rl *IPRateLimiter) evictIdle() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.TTL)
	for ip, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, ip)
		}
	}
}

// clientIP is the host part of RemoteAddr. Proxy headers are resolved
// earlier by chi's RealIP middleware.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Allow reports whether ip may make a request now. When it may not, wait is
// how long until the next token.
func (rl *IPRateLimiter) Allow(ip string) (ok bool, wait time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, found := rl.visitors[ip]
	if !found {
		v = &visitor{bucket: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = now

	res := v.bucket.ReserveN(now, 1)
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Len returns the number of tracked IPs.
func (rl *IPRateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.visitors)
}

func (rl *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)

		ok, wait := rl.Allow(ip)
		if !ok {
			slog.WarnContext(r.Context(), "rate limit exceeded",
				"ip", ip,
				"path", r.URL.Path,
				"method", r.Method)
			metrics.RateLimited.WithLabelValues("http").Inc()

			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"message": "Too many requests. Try again later.",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}
