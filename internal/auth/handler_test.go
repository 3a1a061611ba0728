package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockAuthService struct {
	loginFn        func(ctx context.Context, email, password string) (*Session, error)
	authenticateFn func(ctx context.Context, token string) (*User, error)
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	if m.loginFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.loginFn(ctx, email, password)
}

func (m *mockAuthService) Authenticate(ctx context.Context, token string) (*User, error) {
	if m.authenticateFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.authenticateFn(ctx, token)
}

func tokenService() *mockAuthService {
	return &mockAuthService{
		authenticateFn: func(_ context.Context, token string) (*User, error) {
			switch token {
			case "admin-token":
				return &User{ID: "a1", Role: RoleAdmin}, nil
			case "user-token":
				return &User{ID: "u1", Role: RoleUser}, nil
			default:
				return nil, ErrUnauthorized
			}
		},
	}
}

type errorDoc struct {
	Errors []struct {
		Status string `json:"status"`
		Source *struct {
			Pointer string `json:"pointer"`
		} `json:"source"`
	} `json:"errors"`
}

func decodeErrors(t *testing.T, body string) errorDoc {
	t.Helper()
	var doc errorDoc
	require.NoError(t, json.Unmarshal([]byte(body), &doc))
	require.NotEmpty(t, doc.Errors)
	return doc
}

func TestRequireAuthAndRoles(t *testing.T) {
	h := NewHandler(tokenService())
	called := 0
	protected := h.RequireAuth(h.RequireRoles(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called++
		u, ok := CurrentUser(r.Context())
		require.True(t, ok)
		assert.Equal(t, "a1", u.ID)
		w.WriteHeader(http.StatusNoContent)
	})))

	tests := []struct {
		name   string
		header string
		cookie string
		want   int
	}{
		{name: "no credentials", want: http.StatusForbidden},
		{name: "bad token", header: "Bearer nope", want: http.StatusForbidden},
		{name: "basic scheme", header: "Basic YWRtaW4=", want: http.StatusForbidden},
		{name: "non admin", header: "Bearer user-token", want: http.StatusForbidden},
		{name: "admin bearer", header: "Bearer admin-token", want: http.StatusNoContent},
		{name: "admin cookie", cookie: "admin-token", want: http.StatusNoContent},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/admin/leads", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			if tc.cookie != "" {
				req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: tc.cookie})
			}
			w := httptest.NewRecorder()
			protected.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code)
			if tc.want == http.StatusForbidden {
				assert.Equal(t, "403", decodeErrors(t, w.Body.String()).Errors[0].Status)
			}
		})
	}
	assert.Equal(t, 2, called)
}

func TestRequireAuthBackendFailure(t *testing.T) {
	h := NewHandler(&mockAuthService{authenticateFn: func(context.Context, string) (*User, error) {
		return nil, errors.New("db down")
	}})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer x")
	h.RequireAuth(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	})).ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestOptionalAuth(t *testing.T) {
	h := NewHandler(tokenService())
	var seen *User
	next := h.OptionalAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = CurrentUser(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/chatbot", nil)
	next.ServeHTTP(httptest.NewRecorder(), req)
	assert.Nil(t, seen)

	req = httptest.NewRequest(http.MethodPost, "/api/chatbot", nil)
	req.Header.Set("Authorization", "Bearer nope")
	next.ServeHTTP(httptest.NewRecorder(), req)
	assert.Nil(t, seen)

	req = httptest.NewRequest(http.MethodPost, "/api/chatbot", nil)
	req.Header.Set("Authorization", "Bearer user-token")
	next.ServeHTTP(httptest.NewRecorder(), req)
	require.NotNil(t, seen)
	assert.Equal(t, "u1", seen.ID)
}

func TestLoginHandler(t *testing.T) {
	expires := time.Now().Add(time.Hour)
	h := NewHandler(&mockAuthService{loginFn: func(_ context.Context, email, password string) (*Session, error) {
		if email == "admin@example.com" && password == "secret-pass" {
			return &Session{AccessToken: "tok", TokenType: "Bearer", ExpiresAt: expires, User: &User{ID: "a1", Role: RoleAdmin}}, nil
		}
		return nil, ErrInvalidCredentials
	}})

	t.Run("missing password", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.Login(w, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"admin@example.com"}`)))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "/password", decodeErrors(t, w.Body.String()).Errors[0].Source.Pointer)
	})

	t.Run("wrong password", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.Login(w, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"admin@example.com","password":"x"}`)))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("success sets cookie", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.Login(w, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"admin@example.com","password":"secret-pass"}`)))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"accessToken":"tok"`)
		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, sessionCookieName, cookies[0].Name)
		assert.True(t, cookies[0].HttpOnly)
	})
}

func TestMeRequiresUser(t *testing.T) {
	h := NewHandler(tokenService())
	w := httptest.NewRecorder()
	h.Me(w, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req = req.WithContext(ContextWithUser(req.Context(), &User{ID: "u1", Email: "u@example.com", Role: RoleUser}))
	h.Me(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"email":"u@example.com"`)
}

func TestUserSlotRecordsInnerUser(t *testing.T) {
	ctx := WithUserSlot(context.Background())
	_, ok := RecordedUser(ctx)
	assert.False(t, ok)

	_ = ContextWithUser(ctx, &User{ID: "inner"})
	u, ok := RecordedUser(ctx)
	require.True(t, ok)
	assert.Equal(t, "inner", u.ID)

	_, ok = RecordedUser(context.Background())
	assert.False(t, ok)
}
