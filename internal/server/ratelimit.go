package server

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/tjfontaine/intake-engine/internal/codec"
	"github.com/tjfontaine/intake-engine/internal/domain"
)

// rateLimitContextKey is the context key for rate limit info
type rateLimitContextKey struct{}

// RateLimitInfo describes the caller's request budget for the current window.
type RateLimitInfo struct {
	RequestsLimit     int
	RequestsRemaining int
	RequestsReset     string
}

// SetRateLimits stores rate limit info in context for the middleware to write as headers.
func SetRateLimits(ctx context.Context, rl *RateLimitInfo) context.Context {
	return context.WithValue(ctx, rateLimitContextKey{}, rl)
}

// GetRateLimits retrieves rate limit info from context.
// Returns nil if no rate limits are set.
func GetRateLimits(ctx context.Context) *RateLimitInfo {
	if rl, ok := ctx.Value(rateLimitContextKey{}).(*RateLimitInfo); ok {
		return rl
	}
	return nil
}

type window struct {
	mu    sync.Mutex
	start time.Time
	count int
}

// RateLimiter counts requests per client address in fixed windows. Windows live in an
// expirable LRU so idle clients are forgotten.
type RateLimiter struct {
	limit   int
	period  time.Duration
	windows *expirable.LRU[string, *window]
	now     func() time.Time
}

// NewRateLimiter allows limit requests per period for each client. size caps tracked clients.
func NewRateLimiter(limit int, period time.Duration, size int) *RateLimiter {
	if period <= 0 {
		period = time.Minute
	}
	if size <= 0 {
		size = 10000
	}
	return &RateLimiter{
		limit:   limit,
		period:  period,
		windows: expirable.NewLRU[string, *window](size, nil, 2*period),
		now:     time.Now,
	}
}

// Allow records one request for key and reports whether it fits the budget.
func (l *RateLimiter) Allow(key string) (bool, *RateLimitInfo) {
	now := l.now()
	w, ok := l.windows.Get(key)
	if !ok {
		w = &window{start: now}
		l.windows.Add(key, w)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if now.Sub(w.start) >= l.period {
		w.start = now
		w.count = 0
	}
	w.count++
	remaining := l.limit - w.count
	if remaining < 0 {
		remaining = 0
	}
	reset := w.start.Add(l.period).Sub(now).Round(time.Second)
	return w.count <= l.limit, &RateLimitInfo{
		RequestsLimit:     l.limit,
		RequestsRemaining: remaining,
		RequestsReset:     reset.String(),
	}
}

// clientKey identifies the caller by remote address without port.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimitMiddleware rejects callers over budget with 429 and annotates every response with
// x-ratelimit-* headers. A nil limiter or a non-positive limit disables it.
func RateLimitMiddleware(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil || limiter.limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, info := limiter.Allow(clientKey(r))
			writeRateLimitHeaders(w.Header(), info)
			if !ok {
				AddLogField(r.Context(), "rate_limited", clientKey(r))
				codec.WriteError(w, domain.ErrRateLimit("Too many requests. Please try again shortly."))
				return
			}
			next.ServeHTTP(w, r.WithContext(SetRateLimits(r.Context(), info)))
		})
	}
}

func writeRateLimitHeaders(h http.Header, rl *RateLimitInfo) {
	if rl == nil {
		return
	}
	// Standard format: x-ratelimit-{limit|remaining|reset}-requests
	if rl.RequestsLimit > 0 {
		h.Set("x-ratelimit-limit-requests", strconv.Itoa(rl.RequestsLimit))
		// 0 is a valid remaining value once a limit is known
		h.Set("x-ratelimit-remaining-requests", strconv.Itoa(rl.RequestsRemaining))
	}
	if rl.RequestsReset != "" {
		h.Set("x-ratelimit-reset-requests", rl.RequestsReset)
	}
}
