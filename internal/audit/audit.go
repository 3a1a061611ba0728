// Package audit records admin mutations in audit_logs.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bizflow/internal/logger"
	"bizflow/internal/paginate"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Recorder is what services depend on. Recording never fails the caller.
type Recorder interface {
	Record(ctx context.Context, actorID, action, entityType, entityID string, payload map[string]any)
}

type Entry struct {
	ID         int64           `json:"id" db:"id"`
	ActorID    *string         `json:"actorId,omitempty" db:"actor_id"`
	Action     string          `json:"action" db:"action"`
	EntityType string          `json:"entityType" db:"entity_type"`
	EntityID   string          `json:"entityId" db:"entity_id"`
	Payload    json.RawMessage `json:"payload" db:"payload"`
	CreatedAt  time.Time       `json:"createdAt" db:"created_at"`
}

type Log struct {
	db     *sqlx.DB
	logger *logger.Logger
}

func New(db *sqlx.DB, log *logger.Logger) *Log {
	return &Log{db: db, logger: log}
}

func (l *Log) Record(ctx context.Context, actorID, action, entityType, entityID string, payload map[string]any) {
	if payload == nil {
		payload = map[string]any{}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		l.logger.Warn("audit payload not encodable", zap.String("action", action), zap.Error(err))
		return
	}
	_, err = l.db.ExecContext(ctx, `
		INSERT INTO audit_logs (actor_id, action, entity_type, entity_id, payload, created_at)
		VALUES (NULLIF($1, '')::uuid, $2, $3, $4, $5::jsonb, now())
	`, actorID, action, entityType, entityID, string(b))
	if err != nil {
		l.logger.Warn("audit entry not written",
			zap.String("action", action),
			zap.String("entity_type", entityType),
			zap.String("entity_id", entityID),
			zap.Error(err))
	}
}

type Filter struct {
	EntityType string
	EntityID   string
	paginate.Params
}

func (l *Log) List(ctx context.Context, f Filter) (*paginate.Page[Entry], error) {
	query := `
		SELECT id, actor_id::text AS actor_id, action, entity_type, entity_id, payload, created_at
		FROM audit_logs
		WHERE ($1 = '' OR entity_type = $1)
		  AND ($2 = '' OR entity_id = $2)
		ORDER BY created_at DESC, id DESC`
	page, err := paginate.Query[Entry](ctx, l.db, query, []any{f.EntityType, f.EntityID}, f.Params)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	return page, nil
}

// Nop discards entries.
type Nop struct{}

func (Nop) Record(context.Context, string, string, string, string, map[string]any) {}
