package app

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bizflow/internal/health"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(cfg Config) http.Handler {
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "router-test-secret"
	}
	return NewRouter(Deps{Config: cfg, Health: health.NewChecker(nil)})
}

func TestRouterSmoke(t *testing.T) {
	router := newTestRouter(Config{SiteURL: "https://bizflow.example", DatabaseAnonKey: "anon-key"})

	tests := []struct {
		name       string
		method     string
		target     string
		body       string
		header     map[string]string
		wantStatus int
		wantBody   string
	}{
		{name: "healthz", method: http.MethodGet, target: "/healthz", wantStatus: http.StatusOK, wantBody: `"status":"ok"`},
		{name: "metrics", method: http.MethodGet, target: "/metrics", wantStatus: http.StatusOK, wantBody: "bizflow_uptime_seconds"},
		{name: "site config", method: http.MethodGet, target: "/api/config", wantStatus: http.StatusOK, wantBody: `"anonKey":"anon-key"`},
		{name: "login invalid body", method: http.MethodPost, target: "/api/auth/login", body: `{}`, wantStatus: http.StatusBadRequest},
		{name: "me unauthenticated", method: http.MethodGet, target: "/api/auth/me", wantStatus: http.StatusForbidden},
		{
			name: "score is public", method: http.MethodPost, target: "/api/assessments/score",
			body:       `{"automation_experience":"advanced","company_size":"large"}`,
			wantStatus: http.StatusOK, wantBody: `"score":`,
		},
		{name: "chatbot fallback", method: http.MethodPost, target: "/api/chatbot", body: `{"message":"hello"}`, wantStatus: http.StatusOK, wantBody: `"source":"fallback"`},
		{name: "create form unauthenticated", method: http.MethodPost, target: "/api/assessments/forms", body: `{"title":"x"}`, wantStatus: http.StatusForbidden},
		{name: "patch form unauthenticated", method: http.MethodPatch, target: "/api/assessments/forms/7d6f4d9e-4a53-4c1f-9d6a-0f3b2d1c8e11", body: `{"title":"x"}`, wantStatus: http.StatusForbidden},
		{name: "delete form unauthenticated", method: http.MethodDelete, target: "/api/assessments/forms/7d6f4d9e-4a53-4c1f-9d6a-0f3b2d1c8e11", wantStatus: http.StatusForbidden},
		{name: "bulk status unauthenticated", method: http.MethodPost, target: "/api/assessments/forms/bulk-status", body: `{"ids":[],"status":"archived"}`, wantStatus: http.StatusForbidden},
		{name: "submissions list unauthenticated", method: http.MethodGet, target: "/api/assessments/submissions", wantStatus: http.StatusForbidden},
		{name: "admin leads unauthenticated", method: http.MethodGet, target: "/api/admin/leads", wantStatus: http.StatusForbidden},
		{name: "admin dashboard unauthenticated", method: http.MethodGet, target: "/api/admin/dashboard", wantStatus: http.StatusForbidden},
		{name: "publish post unauthenticated", method: http.MethodPost, target: "/api/admin/blog/posts/1/status", body: `{"status":"published"}`, wantStatus: http.StatusForbidden},
		{
			name: "forged token", method: http.MethodGet, target: "/api/admin/leads",
			header:     map[string]string{"Authorization": "Bearer not-a-jwt"},
			wantStatus: http.StatusForbidden,
		},
		{name: "unknown route", method: http.MethodGet, target: "/api/nope", wantStatus: http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var body io.Reader
			if tc.body != "" {
				body = strings.NewReader(tc.body)
			}
			req := httptest.NewRequest(tc.method, tc.target, body)
			for k, v := range tc.header {
				req.Header.Set(k, v)
			}
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			require.Equal(t, tc.wantStatus, rr.Code, rr.Body.String())
			if tc.wantBody != "" {
				assert.Contains(t, rr.Body.String(), tc.wantBody)
			}
		})
	}
}

func TestRouterRateLimitsAPI(t *testing.T) {
	router := newTestRouter(Config{RateLimitPerMin: 2})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/config", nil))
		codes = append(codes, rr.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRouterHealthWithoutDatabase(t *testing.T) {
	router := NewRouter(Deps{})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), `"db":"down"`)
}
