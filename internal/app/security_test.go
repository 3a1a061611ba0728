package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bizflow/internal/logger"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestIPRateLimiterAllow(t *testing.T) {
	l := NewIPRateLimiter(2, 0)
	ctx := context.Background()
	a, _ := l.Allow(ctx, "k")
	b, _ := l.Allow(ctx, "k")
	if !a || !b {
		t.Fatalf("first two requests should pass")
	}
	if c, _ := l.Allow(ctx, "k"); c {
		t.Fatalf("third request should be blocked")
	}
	if d, _ := l.Allow(ctx, "other"); !d {
		t.Fatalf("a different key has its own window")
	}
}

func TestIPRateLimiterWindowResets(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	l := NewIPRateLimiter(1, time.Minute)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	ok, _ := l.Allow(ctx, "k")
	require.True(t, ok)
	ok, _ = l.Allow(ctx, "k")
	require.False(t, ok)

	now = now.Add(61 * time.Second)
	assert.Equal(t, 1, l.Sweep())
	ok, _ = l.Allow(ctx, "k")
	assert.True(t, ok)
}

func TestRateLimitMiddlewareDropsClosedWindows(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	l, ok := NewLimiter(10, nil).(*IPRateLimiter)
	require.True(t, ok)
	l.now = func() time.Time { return now }
	l.sweepEvery = 4
	h := RateLimitMiddleware(l, logger.Nop())(okHandler())

	for _, path := range []string{"/api/admin/leads/1", "/api/admin/leads/2", "/api/admin/leads/3"} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
	require.Len(t, l.store, 3)

	now = now.Add(2 * time.Minute)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/admin/leads/4", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, l.store, 1)
}

func TestNewLimiter(t *testing.T) {
	assert.Nil(t, NewLimiter(0, nil))
	assert.IsType(t, &IPRateLimiter{}, NewLimiter(10, nil))
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()
	assert.IsType(t, &RedisRateLimiter{}, NewLimiter(10, client))
}

func TestRateLimitMiddlewareReturns429(t *testing.T) {
	h := RateLimitMiddleware(NewIPRateLimiter(1, time.Minute), logger.Nop())(okHandler())

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/api/leads", nil))
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/api/leads", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Contains(t, second.Body.String(), `"status":"429"`)
	assert.Equal(t, "60", second.Header().Get("Retry-After"))
}

func TestRateLimitMiddlewareDisabled(t *testing.T) {
	h := RateLimitMiddleware(nil, logger.Nop())(okHandler())
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/blog/posts", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (bool, error) {
	return true, errors.New("connection refused")
}

func TestRateLimitMiddlewareFailsOpen(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	h := RateLimitMiddleware(failingLimiter{}, &logger.Logger{Logger: zap.New(core)})(okHandler())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/config", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "rate limiter unavailable", logs.All()[0].Message)
}

func TestCSRFMiddlewareEnforced(t *testing.T) {
	next := CSRFMiddleware(true)(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/leads", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "abc"})
	req.Header.Set(csrfHeaderName, "abc")
	w := httptest.NewRecorder()
	next.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestCSRFMiddlewareRejectsMissingToken(t *testing.T) {
	next := CSRFMiddleware(true)(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/leads", nil)
	w := httptest.NewRecorder()
	next.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestCSRFMiddlewareSkipsBearerClients(t *testing.T) {
	next := CSRFMiddleware(true)(okHandler())

	req := httptest.NewRequest(http.MethodDelete, "/api/admin/leads/1", nil)
	req.Header.Set("Authorization", "Bearer token")
	w := httptest.NewRecorder()
	next.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
