package httpx

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Limiter counts hits per key inside a fixed window.
type Limiter interface {
	Hit(ctx context.Context, key string, limit int) (Decision, error)
}

type Decision struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
}

func decide(count int64, limit int, resetIn time.Duration) Decision {
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: count <= int64(limit), Remaining: remaining, ResetIn: resetIn}
}

// RatePolicy sets the per-client quota. Strict overrides the quota for requests whose
// path starts with one of its keys; those requests count against a separate bucket.
type RatePolicy struct {
	Limit    int
	Strict   map[string]int
	FailOpen bool
}

func (p RatePolicy) scope(path string) (string, int) {
	best := ""
	for prefix := range p.Strict {
		if strings.HasPrefix(path, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return "", p.Limit
	}
	return best, p.Strict[best]
}

// WithRateLimit rejects clients over quota with 429 and reports the remaining quota in
// X-RateLimit-* headers. Limiter errors fail open or closed as the policy says.
func WithRateLimit(l Limiter, p RatePolicy, logger *slog.Logger) Middleware {
	if p.Limit <= 0 {
		p.Limit = 60
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scope, limit := p.scope(r.URL.Path)
			key := clientKey(r)
			if scope != "" {
				key = scope + "|" + key
			}
			d, err := l.Hit(r.Context(), key, limit)
			if err != nil {
				if logger != nil {
					logger.Warn("rate limiter error", "err", err)
				}
				if p.FailOpen {
					next.ServeHTTP(w, r)
					return
				}
				WriteError(w, http.StatusServiceUnavailable, "rate limiter unavailable")
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			if !d.Allowed {
				secs := int(d.ResetIn.Round(time.Second) / time.Second)
				if secs < 1 {
					secs = 1
				}
				h.Set("Retry-After", strconv.Itoa(secs))
				WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// MemoryLimiter keeps windows in process; quotas are per replica.
type MemoryLimiter struct {
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	count   int64
	resetAt time.Time
}

const maxMemoryBuckets = 10000

func NewMemoryLimiter(window time.Duration) *MemoryLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &MemoryLimiter{window: window, now: time.Now, buckets: map[string]*bucket{}}
}

func (m *MemoryLimiter) Hit(_ context.Context, key string, limit int) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if len(m.buckets) > maxMemoryBuckets {
		for k, b := range m.buckets {
			if !now.Before(b.resetAt) {
				delete(m.buckets, k)
			}
		}
	}
	b := m.buckets[key]
	if b == nil || !now.Before(b.resetAt) {
		b = &bucket{resetAt: now.Add(m.window)}
		m.buckets[key] = b
	}
	b.count++
	return decide(b.count, limit, b.resetAt.Sub(now)), nil
}

// clientKey is the first X-Forwarded-For hop, else the peer address.
func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
