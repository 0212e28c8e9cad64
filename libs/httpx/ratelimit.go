package httpx

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Decision is a limiter verdict for one request.
type Decision struct {
	Allowed   bool
	Remaining int
	// ResetIn is the time left in the caller's current window.
	ResetIn time.Duration
}

// Limiter counts one more request for key against the current window.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// WithRateLimit answers 429 with Retry-After once a client exhausts its window. A limiter failure lets the
// request through when failOpen is set and answers 503 otherwise.
func WithRateLimit(l Limiter, logger *slog.Logger, failOpen bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d, err := l.Allow(r.Context(), clientKey(r))
			if err != nil {
				if logger != nil {
					logger.Warn("rate limiter error", "err", err, "request_id", RequestIDFromContext(r.Context()))
				}
				if failOpen {
					next.ServeHTTP(w, r)
					return
				}
				writeJSONError(w, http.StatusServiceUnavailable, "rate limiter unavailable")
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			if !d.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(d.ResetIn.Seconds()))))
				writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// MemoryLimiter keeps fixed windows in process memory. Use it for single-instance deployments.
type MemoryLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*window
	swept   time.Time
}

type window struct {
	count int
	ends  time.Time
}

func NewMemoryLimiter(limit int, every time.Duration) *MemoryLimiter {
	limit, every = limitDefaults(limit, every)
	return &MemoryLimiter{limit: limit, window: every, now: time.Now, windows: map[string]*window{}}
}

func (m *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweep(now)
	win := m.windows[key]
	if win == nil || !now.Before(win.ends) {
		win = &window{ends: now.Add(m.window)}
		m.windows[key] = win
	}
	win.count++
	return decide(win.count, m.limit, win.ends.Sub(now)), nil
}

// sweep drops expired windows at most once per window length.
func (m *MemoryLimiter) sweep(now time.Time) {
	if now.Sub(m.swept) < m.window {
		return
	}
	for k, win := range m.windows {
		if !now.Before(win.ends) {
			delete(m.windows, k)
		}
	}
	m.swept = now
}

func decide(count, limit int, resetIn time.Duration) Decision {
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: count <= limit, Remaining: remaining, ResetIn: resetIn}
}

func limitDefaults(limit int, every time.Duration) (int, time.Duration) {
	if limit <= 0 {
		limit = 60
	}
	if every <= 0 {
		every = time.Minute
	}
	return limit, every
}

// clientKey prefers the first X-Forwarded-For hop, then the peer address.
func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
