package chatbot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"bizflow/internal/app/apiresp"
	"bizflow/internal/logger"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const (
	MaxMessageLength = 2000
	DefaultHistory   = 50
	maxHistory       = 200

	SourceWebhook  = "webhook"
	SourceFallback = "fallback"
)

const fallbackReply = "Thanks for your message! Our assistant is unavailable right now. " +
	"Leave your email through the contact form and our team will get back to you within one business day."

type ServiceConfig struct {
	DB         *sqlx.DB
	WebhookURL string
	HTTPClient *http.Client
	Logger     *logger.Logger
}

type Service struct {
	db         *sqlx.DB
	webhookURL string
	client     *http.Client
	logger     *logger.Logger
}

type Result struct {
	SessionID string `json:"sessionId"`
	Reply     string `json:"reply"`
	Source    string `json:"source"`
}

type Exchange struct {
	ID        int64     `json:"id" db:"id"`
	SessionID string    `json:"sessionId" db:"session_id"`
	Message   string    `json:"message" db:"message"`
	Reply     string    `json:"reply" db:"reply"`
	Source    string    `json:"source" db:"source"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

func NewService(cfg ServiceConfig) *Service {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 18 * time.Second}
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		db:         cfg.DB,
		webhookURL: strings.TrimSpace(cfg.WebhookURL),
		client:     client,
		logger:     log,
	}
}

// Reply forwards message to the webhook. Webhook failures degrade to a
// canned reply; only invalid input is returned as an error.
func (s *Service) Reply(ctx context.Context, sessionID, message string) (Result, error) {
	msg := strings.TrimSpace(message)
	if msg == "" {
		return Result{}, apiresp.Field("/message", "is required")
	}
	if utf8.RuneCountInString(msg) > MaxMessageLength {
		return Result{}, apiresp.Field("/message", fmt.Sprintf("must be at most %d characters", MaxMessageLength))
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	res := Result{SessionID: sessionID, Reply: fallbackReply, Source: SourceFallback}
	if s.webhookURL != "" {
		reply, err := s.callWebhook(ctx, msg)
		if err != nil {
			s.logger.Warn("chatbot webhook failed, using fallback", zap.String("session_id", sessionID), zap.Error(err))
		} else {
			res.Reply = reply
			res.Source = SourceWebhook
		}
	}

	s.store(ctx, res, msg)
	return res, nil
}

func (s *Service) History(ctx context.Context, sessionID string, limit int) ([]Exchange, error) {
	if limit <= 0 {
		limit = DefaultHistory
	}
	if limit > maxHistory {
		limit = maxHistory
	}
	items := []Exchange{}
	if s.db == nil {
		return items, nil
	}
	err := s.db.SelectContext(ctx, &items, `
		SELECT id, session_id, message, reply, source, created_at
		FROM chatbot_history
		WHERE ($1 = '' OR session_id = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, strings.TrimSpace(sessionID), limit)
	if err != nil {
		s.logger.Error("error list chatbot history", zap.String("session_id", sessionID), zap.Error(err))
		return nil, fmt.Errorf("list chatbot history: %w", err)
	}
	return items, nil
}

func (s *Service) callWebhook(ctx context.Context, message string) (string, error) {
	body, err := json.Marshal(map[string]string{"message": message})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("webhook status %d", resp.StatusCode)
	}

	var out webhookResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", err
	}
	reply := strings.TrimSpace(out.CleanedOutput)
	if reply == "" {
		return "", errors.New("empty webhook reply")
	}
	return reply, nil
}

// store persists the exchange; a failed insert never fails the reply.
func (s *Service) store(ctx context.Context, res Result, message string) {
	if s.db == nil {
		return
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chatbot_history (session_id, message, reply, source, created_at)
		VALUES ($1, $2, $3, $4, now())
	`, res.SessionID, message, res.Reply, res.Source)
	if err != nil {
		s.logger.Error("error store chatbot exchange", zap.String("session_id", res.SessionID), zap.Error(err))
	}
}

type webhookResponse struct {
	CleanedOutput string `json:"cleaned_output"`
}
