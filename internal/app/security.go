package app

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"bizflow/internal/app/apiresp"
	"bizflow/internal/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const csrfCookieName = "bizflow_csrf"
const csrfHeaderName = "X-CSRF-Token"

// sweepEvery is how many Allow calls pass between sweeps of closed windows.
const sweepEvery = 1024

// Limiter decides whether one more request for key fits the current window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type rateBucket struct {
	Count      int
	WindowEnds time.Time
}

// IPRateLimiter is a fixed-window limiter kept in process memory. Buckets
// whose window has closed are dropped every sweepEvery calls.
type IPRateLimiter struct {
	mu         sync.Mutex
	max        int
	window     time.Duration
	store      map[string]rateBucket
	now        func() time.Time
	calls      int
	sweepEvery int
}

func NewIPRateLimiter(max int, window time.Duration) *IPRateLimiter {
	if max <= 0 {
		max = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &IPRateLimiter{
		max:        max,
		window:     window,
		store:      make(map[string]rateBucket),
		now:        time.Now,
		sweepEvery: sweepEvery,
	}
}

func (l *IPRateLimiter) Allow(_ context.Context, key string) (bool, error) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls++
	if l.sweepEvery > 0 && l.calls%l.sweepEvery == 0 {
		l.sweepLocked(now)
	}

	b := l.store[key]
	if now.After(b.WindowEnds) {
		b = rateBucket{Count: 0, WindowEnds: now.Add(l.window)}
	}
	if b.Count >= l.max {
		l.store[key] = b
		return false, nil
	}
	b.Count++
	l.store[key] = b
	return true, nil
}

// Sweep drops buckets whose window has closed.
func (l *IPRateLimiter) Sweep() int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sweepLocked(now)
}

func (l *IPRateLimiter) sweepLocked(now time.Time) int {
	removed := 0
	for k, b := range l.store {
		if now.After(b.WindowEnds) {
			delete(l.store, k)
			removed++
		}
	}
	return removed
}

// RedisRateLimiter shares fixed-window counters between instances.
type RedisRateLimiter struct {
	client *redis.Client
	max    int
	window time.Duration
	prefix string
}

func NewRedisRateLimiter(client *redis.Client, max int, window time.Duration) *RedisRateLimiter {
	if max <= 0 {
		max = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RedisRateLimiter{client: client, max: max, window: window, prefix: "ratelimit"}
}

func (l *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	slot := time.Now().UnixNano() / int64(l.window)
	k := l.prefix + ":" + key + ":" + strconv.FormatInt(slot, 10)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, fmt.Errorf("rate limit counter: %w", err)
	}
	return incr.Val() <= int64(l.max), nil
}

// NewLimiter picks the limiter for the configured budget. A zero budget
// disables limiting and returns nil.
func NewLimiter(perMinute int, client *redis.Client) Limiter {
	if perMinute <= 0 {
		return nil
	}
	if client != nil {
		return NewRedisRateLimiter(client, perMinute, time.Minute)
	}
	return NewIPRateLimiter(perMinute, time.Minute)
}

// RateLimitMiddleware answers 429 once a client exceeds its window. Counter
// failures let the request through.
func RateLimitMiddleware(l Limiter, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := strings.TrimSpace(r.RemoteAddr)
			key := ip + "|" + r.Method + "|" + r.URL.Path
			ok, err := l.Allow(r.Context(), key)
			if err != nil {
				log.Warn("rate limiter unavailable", zap.String("key", key), zap.Error(err))
			}
			if !ok {
				w.Header().Set("Retry-After", "60")
				apiresp.WriteError(w, r, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func CSRFMiddleware(enforced bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enforced {
				next.ServeHTTP(w, r)
				return
			}
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}
			// Bearer-token clients are not exposed to cross-site form posts.
			if strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
				next.ServeHTTP(w, r)
				return
			}

			c, err := r.Cookie(csrfCookieName)
			if err != nil || strings.TrimSpace(c.Value) == "" {
				apiresp.WriteError(w, r, http.StatusForbidden, "csrf token missing")
				return
			}
			h := strings.TrimSpace(r.Header.Get(csrfHeaderName))
			if h == "" || h != c.Value {
				apiresp.WriteError(w, r, http.StatusForbidden, "csrf token invalid")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
