package lead

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"bizflow/internal/app/apiresp"
	"bizflow/internal/assessment"
	"bizflow/internal/audit"
	"bizflow/internal/batch"
	"bizflow/internal/db"
	"bizflow/internal/events"
	"bizflow/internal/fault"
	"bizflow/internal/lifecycle"
	"bizflow/internal/logger"
	"bizflow/internal/paginate"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

var ErrLeadNotFound = errors.New("lead not found")

const (
	entityLead        = "lead"
	defaultSource     = "contact_form"
	defaultNewsSource = "footer"
	maxNameLen        = 200
	maxMessageLen     = 5000
)

type Lead struct {
	ID                 int64          `json:"id" db:"id"`
	Name               string         `json:"name" db:"name"`
	Email              string         `json:"email" db:"email"`
	Company            string         `json:"company" db:"company"`
	Phone              string         `json:"phone" db:"phone"`
	Message            string         `json:"message" db:"message"`
	Source             string         `json:"source" db:"source"`
	ServicesInterested pq.StringArray `json:"servicesInterested" db:"services_interested"`
	Status             string         `json:"status" db:"status"`
	Score              int            `json:"score" db:"score"`
	CreatedAt          time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt          time.Time      `json:"updatedAt" db:"updated_at"`
}

type CreateInput struct {
	Name               string   `json:"name"`
	Email              string   `json:"email"`
	Company            string   `json:"company"`
	Phone              string   `json:"phone"`
	Message            string   `json:"message"`
	Source             string   `json:"source"`
	ServicesInterested []string `json:"servicesInterested"`
	Score              int      `json:"-"`
}

type Filter struct {
	Status string
	Search string
	paginate.Params
}

type Subscription struct {
	ID        int64     `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	Source    string    `json:"source" db:"source"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

type SubscribeResult struct {
	Subscription
	AlreadySubscribed bool `json:"alreadySubscribed"`
}

type Deps struct {
	Events events.Publisher
	Audit  audit.Recorder
	Logger *logger.Logger
}

type Service struct {
	db     *sqlx.DB
	events events.Publisher
	audit  audit.Recorder
	logger *logger.Logger
}

func NewService(db *sqlx.DB, deps Deps) *Service {
	s := &Service{db: db, events: deps.Events, audit: deps.Audit, logger: deps.Logger}
	if s.logger == nil {
		s.logger = logger.Nop()
	}
	if s.events == nil {
		s.events = events.Nop{}
	}
	if s.audit == nil {
		s.audit = audit.Nop{}
	}
	return s
}

const leadColumns = `id, name, email, company, phone, message, source, services_interested, status, score, created_at, updated_at`

func (s *Service) Create(ctx context.Context, in CreateInput) (*Lead, error) {
	in = normalize(in)
	if err := validate(in); err != nil {
		return nil, err
	}

	var out Lead
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO leads (name, email, company, phone, message, source, services_interested, status, score, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		RETURNING `+leadColumns,
		in.Name, in.Email, in.Company, in.Phone, in.Message, in.Source,
		pq.StringArray(in.ServicesInterested), lifecycle.LeadStatus.Initial(), in.Score,
	).StructScan(&out)
	if err != nil {
		s.logger.Error("error create lead", zap.String("source", in.Source), zap.Error(err))
		return nil, fmt.Errorf("create lead: %w", db.Classify(err))
	}

	events.Emit(ctx, s.events, s.logger, events.LeadCreated, map[string]any{
		"id": out.ID, "email": out.Email, "source": out.Source, "score": out.Score,
	})
	return &out, nil
}

// CaptureLead stores a respondent who left contact details on an
// assessment.
func (s *Service) CaptureLead(ctx context.Context, in assessment.LeadCapture) error {
	_, err := s.Create(ctx, CreateInput{
		Name:    in.Name,
		Email:   in.Email,
		Company: in.Company,
		Message: in.Message,
		Source:  in.Source,
		Score:   in.Score,
	})
	return err
}

// Subscribe is idempotent on email. An address already on the list is
// returned with AlreadySubscribed set.
func (s *Service) Subscribe(ctx context.Context, email, source string) (*SubscribeResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, apiresp.Field("/email", "is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apiresp.Field("/email", "must be a valid email address")
	}
	source = strings.TrimSpace(source)
	if source == "" {
		source = defaultNewsSource
	}

	var sub Subscription
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO newsletter_subscriptions (email, source, created_at)
		VALUES ($1, $2, now())
		RETURNING id, email, source, created_at
	`, email, source).StructScan(&sub)
	if err == nil {
		events.Emit(ctx, s.events, s.logger, events.NewsletterSubscribed, map[string]any{"email": email, "source": source})
		return &SubscribeResult{Subscription: sub}, nil
	}
	if !errors.Is(db.Classify(err), fault.ErrUniqueViolation) {
		s.logger.Error("error subscribe newsletter", zap.Error(err))
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	if err := s.db.GetContext(ctx, &sub, `
		SELECT id, email, source, created_at FROM newsletter_subscriptions WHERE email = $1
	`, email); err != nil {
		return nil, fmt.Errorf("load subscription: %w", err)
	}
	return &SubscribeResult{Subscription: sub, AlreadySubscribed: true}, nil
}

func (s *Service) ListSubscriptions(ctx context.Context, p paginate.Params) (*paginate.Page[Subscription], error) {
	page, err := paginate.Query[Subscription](ctx, s.db, `
		SELECT id, email, source, created_at FROM newsletter_subscriptions
		ORDER BY created_at DESC, id DESC`, nil, p)
	if err != nil {
		s.logger.Error("error list subscriptions", zap.Error(err))
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return page, nil
}

func (s *Service) List(ctx context.Context, f Filter) (*paginate.Page[Lead], error) {
	query := `SELECT ` + leadColumns + ` FROM leads
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = '' OR name ILIKE '%' || $2 || '%' OR email ILIKE '%' || $2 || '%' OR company ILIKE '%' || $2 || '%')
		ORDER BY created_at DESC, id DESC`
	page, err := paginate.Query[Lead](ctx, s.db, query,
		[]any{strings.TrimSpace(f.Status), strings.TrimSpace(f.Search)}, f.Params)
	if err != nil {
		s.logger.Error("error list leads", zap.Error(err))
		return nil, fmt.Errorf("list leads: %w", err)
	}
	return page, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Lead, error) {
	return s.load(ctx, s.db, id, false)
}

func (s *Service) UpdateStatus(ctx context.Context, actorID string, id int64, status string) (*Lead, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := s.load(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.LeadStatus.Transition(current.Status, status); err != nil {
		return nil, err
	}

	var out Lead
	err = tx.QueryRowxContext(ctx, `
		UPDATE leads SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+leadColumns, id, status).StructScan(&out)
	if err != nil {
		s.logger.Error("error update lead status", zap.Int64("lead_id", id), zap.Error(err))
		return nil, fmt.Errorf("update lead status: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit lead status: %w", err)
	}

	if current.Status != status {
		s.audit.Record(ctx, actorID, "status", entityLead, fmt.Sprintf("%d", id), map[string]any{"from": current.Status, "to": status})
	}
	return &out, nil
}

func (s *Service) BulkUpdateStatus(ctx context.Context, actorID string, ids []int64, status string) []batch.Result[int64] {
	return batch.Run(ctx, ids, batch.DefaultLimit, func(ctx context.Context, id int64) error {
		_, err := s.UpdateStatus(ctx, actorID, id, status)
		return err
	})
}

func (s *Service) Delete(ctx context.Context, actorID string, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM leads WHERE id = $1`, id)
	if err != nil {
		s.logger.Error("error delete lead", zap.Int64("lead_id", id), zap.Error(err))
		return fmt.Errorf("delete lead: %w", db.Classify(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrLeadNotFound
	}
	s.audit.Record(ctx, actorID, "delete", entityLead, fmt.Sprintf("%d", id), nil)
	return nil
}

func (s *Service) load(ctx context.Context, q sqlx.QueryerContext, id int64, forUpdate bool) (*Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var out Lead
	if err := sqlx.GetContext(ctx, q, &out, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		s.logger.Error("error load lead", zap.Int64("lead_id", id), zap.Error(err))
		return nil, fmt.Errorf("load lead: %w", err)
	}
	return &out, nil
}

func normalize(in CreateInput) CreateInput {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Company = strings.TrimSpace(in.Company)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Message = strings.TrimSpace(in.Message)
	in.Source = strings.TrimSpace(in.Source)
	if in.Source == "" {
		in.Source = defaultSource
	}
	services := make([]string, 0, len(in.ServicesInterested))
	for _, svc := range in.ServicesInterested {
		if svc = strings.TrimSpace(svc); svc != "" {
			services = append(services, svc)
		}
	}
	in.ServicesInterested = services
	return in
}

func validate(in CreateInput) error {
	var errs []*apiresp.FieldError
	switch {
	case in.Name == "":
		errs = append(errs, apiresp.Field("/name", "is required"))
	case utf8.RuneCountInString(in.Name) > maxNameLen:
		errs = append(errs, apiresp.Field("/name", fmt.Sprintf("must be at most %d characters", maxNameLen)))
	}
	if in.Email == "" {
		errs = append(errs, apiresp.Field("/email", "is required"))
	} else if _, err := mail.ParseAddress(in.Email); err != nil {
		errs = append(errs, apiresp.Field("/email", "must be a valid email address"))
	}
	if utf8.RuneCountInString(in.Message) > maxMessageLen {
		errs = append(errs, apiresp.Field("/message", fmt.Sprintf("must be at most %d characters", maxMessageLen)))
	}
	return apiresp.Invalid(errs)
}
