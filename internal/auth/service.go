package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"bizflow/internal/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidInput       = errors.New("invalid input")
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

type User struct {
	ID       string `json:"id" db:"id"`
	Email    string `json:"email" db:"email"`
	FullName string `json:"fullName" db:"full_name"`
	Role     string `json:"role" db:"role"`
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// Session is what a successful login hands back to the client.
type Session struct {
	AccessToken string    `json:"accessToken"`
	TokenType   string    `json:"tokenType"`
	ExpiresAt   time.Time `json:"expiresAt"`
	User        *User     `json:"user"`
}

type Service struct {
	db         *sqlx.DB
	logger     *logger.Logger
	secret     []byte
	tokenTTL   time.Duration
	bcryptCost int
	now        func() time.Time
}

type ServiceConfig struct {
	Secret     string
	TokenTTL   time.Duration
	BcryptCost int
}

func NewService(db *sqlx.DB, cfg ServiceConfig, log *logger.Logger) *Service {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.BcryptCost <= 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		db:         db,
		logger:     log,
		secret:     []byte(cfg.Secret),
		tokenTTL:   cfg.TokenTTL,
		bcryptCost: cfg.BcryptCost,
		now:        time.Now,
	}
}

type profileRow struct {
	User
	PasswordHash string `db:"password_hash"`
}

func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	var row profileRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, email, full_name, role, password_hash
		FROM profiles
		WHERE email = $1
		LIMIT 1
	`, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		s.logger.Error("query profile", zap.String("email", email), zap.Error(err))
		return nil, fmt.Errorf("query profile: %w", err)
	}
	if row.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(row.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	user := row.User
	token, expiresAt, err := s.IssueToken(&user)
	if err != nil {
		return nil, err
	}
	return &Session{AccessToken: token, TokenType: "Bearer", ExpiresAt: expiresAt, User: &user}, nil
}

// IssueToken signs an HS256 token whose subject is the profile id.
func (s *Service) IssueToken(u *User) (string, time.Time, error) {
	if len(s.secret) == 0 {
		return "", time.Time{}, errors.New("token secret is not configured")
	}
	now := s.now()
	expiresAt := now.Add(s.tokenTTL)
	claims := jwt.MapClaims{
		"sub":  u.ID,
		"role": u.Role,
		"iat":  now.Unix(),
		"exp":  expiresAt.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ParseToken verifies signature and expiry and returns the subject.
func (s *Service) ParseToken(tokenString string) (string, error) {
	if strings.TrimSpace(tokenString) == "" || len(s.secret) == 0 {
		return "", ErrUnauthorized
	}
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return "", ErrUnauthorized
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrUnauthorized
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", ErrUnauthorized
	}
	return sub, nil
}

// Authenticate resolves a token to its profile. The role always comes from
// the profiles table, never from the token.
func (s *Service) Authenticate(ctx context.Context, token string) (*User, error) {
	id, err := s.ParseToken(token)
	if err != nil {
		return nil, err
	}
	u, err := s.UserByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	return u, nil
}

func (s *Service) UserByID(ctx context.Context, id string) (*User, error) {
	var u User
	err := s.db.GetContext(ctx, &u, `
		SELECT id, email, full_name, role
		FROM profiles
		WHERE id = $1
		LIMIT 1
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		s.logger.Error("query profile by id", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("query profile: %w", err)
	}
	return &u, nil
}

// EnsureAdmin creates the admin profile or resets its password and role.
func (s *Service) EnsureAdmin(ctx context.Context, email, password, fullName string) (*User, error) {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: admin email is invalid", ErrInvalidInput)
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("%w: admin password must be at least 8 characters", ErrInvalidInput)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	var u User
	err = s.db.GetContext(ctx, &u, `
		INSERT INTO profiles (email, full_name, role, password_hash)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO UPDATE SET
			role = EXCLUDED.role,
			password_hash = EXCLUDED.password_hash,
			full_name = COALESCE(NULLIF(EXCLUDED.full_name, ''), profiles.full_name),
			updated_at = NOW()
		RETURNING id, email, full_name, role
	`, email, strings.TrimSpace(fullName), RoleAdmin, string(hash))
	if err != nil {
		s.logger.Error("upsert admin profile", zap.String("email", email), zap.Error(err))
		return nil, fmt.Errorf("upsert admin profile: %w", err)
	}
	return &u, nil
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
