package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"bizflow/internal/app/apiresp"
)

type contextKey string

const (
	userContextKey contextKey = "auth_user"
	userSlotKey    contextKey = "auth_user_slot"
)

const sessionCookieName = "bizflow_session"

type authService interface {
	Login(ctx context.Context, email, password string) (*Session, error)
	Authenticate(ctx context.Context, token string) (*User, error)
}

type Handler struct {
	svc authService
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func NewHandler(svc authService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := apiresp.DecodeJSON(r, &req); err != nil {
		apiresp.WriteValidation(w, r, err)
		return
	}
	var fields []*apiresp.FieldError
	if strings.TrimSpace(req.Email) == "" {
		fields = append(fields, apiresp.Field("/email", "is required"))
	}
	if req.Password == "" {
		fields = append(fields, apiresp.Field("/password", "is required"))
	}
	if err := apiresp.Invalid(fields); err != nil {
		apiresp.WriteValidation(w, r, err)
		return
	}

	sess, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			apiresp.WriteError(w, r, http.StatusUnauthorized, "invalid credentials")
		default:
			apiresp.WriteError(w, r, http.StatusInternalServerError, err.Error())
		}
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sess.AccessToken,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	apiresp.WriteData(w, r, http.StatusOK, sess)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
	apiresp.WriteData(w, r, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusForbidden, "authentication required")
		return
	}
	apiresp.WriteData(w, r, http.StatusOK, user)
}

// RequireAuth rejects requests without a valid token. Unauthenticated
// callers get 403 like any other caller without permission.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := h.svc.Authenticate(r.Context(), readToken(r))
		if err != nil {
			if errors.Is(err, ErrUnauthorized) {
				apiresp.WriteError(w, r, http.StatusForbidden, "authentication required")
				return
			}
			apiresp.WriteError(w, r, http.StatusInternalServerError, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
	})
}

// OptionalAuth attaches the user when a valid token is present and never
// rejects.
func (h *Handler) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := readToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		if user, err := h.svc.Authenticate(r.Context(), token); err == nil {
			r = r.WithContext(ContextWithUser(r.Context(), user))
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) RequireRoles(roles ...string) func(http.Handler) http.Handler {
	return RequireRoles(roles...)
}

func RequireRoles(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := CurrentUser(r.Context())
			if !ok {
				apiresp.WriteError(w, r, http.StatusForbidden, "authentication required")
				return
			}
			if _, exists := allowed[user.Role]; !exists {
				apiresp.WriteError(w, r, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func CurrentUser(ctx context.Context) (*User, bool) {
	v := ctx.Value(userContextKey)
	if v == nil {
		return nil, false
	}
	u, ok := v.(*User)
	return u, ok && u != nil
}

// ContextWithUser injects an authenticated user into context.
// Useful for tests and internal handlers.
func ContextWithUser(ctx context.Context, user *User) context.Context {
	if slot, ok := ctx.Value(userSlotKey).(*userSlot); ok {
		slot.set(user)
	}
	return context.WithValue(ctx, userContextKey, user)
}

type userSlot struct {
	mu   sync.Mutex
	user *User
}

func (s *userSlot) set(u *User) {
	s.mu.Lock()
	s.user = u
	s.mu.Unlock()
}

// WithUserSlot lets an outer middleware learn which user an inner
// middleware authenticated, after the request has been served.
func WithUserSlot(ctx context.Context) context.Context {
	return context.WithValue(ctx, userSlotKey, &userSlot{})
}

func RecordedUser(ctx context.Context) (*User, bool) {
	slot, ok := ctx.Value(userSlotKey).(*userSlot)
	if !ok {
		return nil, false
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	return slot.user, slot.user != nil
}

func readToken(r *http.Request) string {
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:])
		}
		return ""
	}
	c, err := r.Cookie(sessionCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
