package casestudy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"bizflow/internal/app/apiresp"
	"bizflow/internal/audit"
	"bizflow/internal/batch"
	"bizflow/internal/db"
	"bizflow/internal/events"
	"bizflow/internal/lifecycle"
	"bizflow/internal/logger"
	"bizflow/internal/paginate"
	"bizflow/internal/slug"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

const (
	entityType      = "case_study"
	maxTechnologies = 20
)

const columns = `id, slug, title, client, industry, summary, challenge, solution, results,
	technologies, featured, status, published_at, created_at, updated_at`

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
	now    func() time.Time
}

func NewService(db *sqlx.DB, deps Deps) *Service {
	s := &Service{
		db:     db,
		events: deps.Events,
		audit:  deps.Audit,
		logger: deps.Logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
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

// ListPublished orders featured studies first.
func (s *Service) ListPublished(ctx context.Context, f Filter) (*paginate.Page[CaseStudy], error) {
	query := `SELECT ` + columns + ` FROM case_studies
		WHERE status = 'published'
			AND ($1::boolean IS NULL OR featured = $1)
			AND ($2 = '' OR lower(industry) = lower($2))
		ORDER BY featured DESC, published_at DESC NULLS LAST, id DESC`
	page, err := paginate.Query[CaseStudy](ctx, s.db, query, []any{f.Featured, strings.TrimSpace(f.Industry)}, f.Params)
	if err != nil {
		s.logger.Error("error list case studies", zap.Error(err))
		return nil, fmt.Errorf("list case studies: %w", err)
	}
	return page, nil
}

func (s *Service) ListAll(ctx context.Context, f Filter) (*paginate.Page[CaseStudy], error) {
	query := `SELECT ` + columns + ` FROM case_studies
		WHERE ($1 = '' OR status = $1)
			AND ($2 = '' OR title ILIKE '%' || $2 || '%' OR client ILIKE '%' || $2 || '%')
		ORDER BY updated_at DESC, id DESC`
	page, err := paginate.Query[CaseStudy](ctx, s.db, query, []any{f.Status, strings.TrimSpace(f.Search)}, f.Params)
	if err != nil {
		s.logger.Error("error list case studies", zap.Error(err))
		return nil, fmt.Errorf("list case studies: %w", err)
	}
	return page, nil
}

func (s *Service) ListIndustries(ctx context.Context) ([]string, error) {
	items := []string{}
	err := s.db.SelectContext(ctx, &items, `
		SELECT DISTINCT industry FROM case_studies
		WHERE status = 'published' AND industry <> ''
		ORDER BY industry`)
	if err != nil {
		s.logger.Error("error list industries", zap.Error(err))
		return nil, fmt.Errorf("list industries: %w", err)
	}
	return items, nil
}

func (s *Service) GetBySlug(ctx context.Context, caseSlug string, includeDrafts bool) (*CaseStudy, error) {
	query := `SELECT ` + columns + ` FROM case_studies WHERE slug = $1`
	if !includeDrafts {
		query += ` AND status = 'published'`
	}
	return s.getOne(ctx, s.db, query, caseSlug)
}

func (s *Service) Get(ctx context.Context, id int64) (*CaseStudy, error) {
	return s.getOne(ctx, s.db, `SELECT `+columns+` FROM case_studies WHERE id = $1`, id)
}

func (s *Service) getOne(ctx context.Context, q sqlx.QueryerContext, query string, key any) (*CaseStudy, error) {
	var c CaseStudy
	if err := sqlx.GetContext(ctx, q, &c, query, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCaseStudyNotFound
		}
		s.logger.Error("error load case study", zap.Any("key", key), zap.Error(err))
		return nil, fmt.Errorf("load case study: %w", err)
	}
	return &c, nil
}

func (s *Service) Create(ctx context.Context, actorID string, in Input) (*CaseStudy, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Slug = strings.TrimSpace(in.Slug)
	if in.Slug == "" {
		in.Slug = slug.Make(in.Title)
	}
	if in.Status == "" {
		in.Status = lifecycle.CaseStudyStatus.Initial()
	}
	in.Technologies = cleanTechnologies(in.Technologies)

	errs := validate(in.Title, in.Slug, in.Results, in.Technologies)
	if !lifecycle.CaseStudyStatus.Valid(in.Status) {
		errs = append(errs, apiresp.Field("/status", fmt.Sprintf("unknown status %q", in.Status)))
	}
	if err := apiresp.Invalid(errs); err != nil {
		return nil, err
	}

	var publishedAt *time.Time
	if in.Status == StatusPublished {
		now := s.now()
		publishedAt = &now
	}

	var c CaseStudy
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO case_studies (slug, title, client, industry, summary, challenge, solution, results,
			technologies, featured, status, published_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())
		RETURNING `+columns,
		in.Slug, in.Title, in.Client, strings.TrimSpace(in.Industry), in.Summary, in.Challenge, in.Solution,
		in.Results, pq.StringArray(in.Technologies), in.Featured, in.Status, publishedAt,
	).StructScan(&c)
	if err != nil {
		s.logger.Error("error create case study", zap.String("slug", in.Slug), zap.Error(err))
		return nil, fmt.Errorf("create case study: %w", db.Classify(err))
	}

	s.audit.Record(ctx, actorID, "create", entityType, fmt.Sprint(c.ID), map[string]any{"slug": c.Slug, "status": c.Status})
	if c.Status == StatusPublished {
		s.emitPublished(ctx, &c)
	}
	return &c, nil
}

func (s *Service) Update(ctx context.Context, actorID string, id int64, p Patch) (*CaseStudy, error) {
	c, err := s.mutate(ctx, id, func(c *CaseStudy) error {
		if p.Title != nil {
			c.Title = strings.TrimSpace(*p.Title)
		}
		if p.Slug != nil {
			c.Slug = strings.TrimSpace(*p.Slug)
		}
		if p.Client != nil {
			c.Client = *p.Client
		}
		if p.Industry != nil {
			c.Industry = strings.TrimSpace(*p.Industry)
		}
		if p.Summary != nil {
			c.Summary = *p.Summary
		}
		if p.Challenge != nil {
			c.Challenge = *p.Challenge
		}
		if p.Solution != nil {
			c.Solution = *p.Solution
		}
		if p.Results != nil {
			c.Results = *p.Results
		}
		if p.Technologies != nil {
			c.Technologies = cleanTechnologies(*p.Technologies)
		}
		if p.Featured != nil {
			c.Featured = *p.Featured
		}
		return apiresp.Invalid(validate(c.Title, c.Slug, c.Results, c.Technologies))
	})
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, actorID, "update", entityType, fmt.Sprint(id), nil)
	return c, nil
}

func (s *Service) ChangeStatus(ctx context.Context, actorID string, id int64, status string) (*CaseStudy, error) {
	var from string
	c, err := s.mutate(ctx, id, func(c *CaseStudy) error {
		from = c.Status
		if err := lifecycle.CaseStudyStatus.Transition(c.Status, status); err != nil {
			return err
		}
		c.Status = status
		switch {
		case status == StatusDraft:
			c.PublishedAt = nil
		case c.PublishedAt == nil:
			now := s.now()
			c.PublishedAt = &now
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if from != status {
		s.audit.Record(ctx, actorID, "status", entityType, fmt.Sprint(id), map[string]any{"from": from, "to": status})
		if status == StatusPublished {
			s.emitPublished(ctx, c)
		}
	}
	return c, nil
}

// BulkPublish publishes every id independently and reports each outcome.
func (s *Service) BulkPublish(ctx context.Context, actorID string, ids []int64) []batch.Result[int64] {
	return batch.Run(ctx, ids, batch.DefaultLimit, func(ctx context.Context, id int64) error {
		_, err := s.ChangeStatus(ctx, actorID, id, StatusPublished)
		return err
	})
}

func (s *Service) Delete(ctx context.Context, actorID string, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM case_studies WHERE id = $1`, id)
	if err != nil {
		s.logger.Error("error delete case study", zap.Int64("case_study_id", id), zap.Error(err))
		return fmt.Errorf("delete case study: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrCaseStudyNotFound
	}
	s.audit.Record(ctx, actorID, "delete", entityType, fmt.Sprint(id), nil)
	return nil
}

// mutate locks the row, applies fn and writes every column back.
func (s *Service) mutate(ctx context.Context, id int64, fn func(c *CaseStudy) error) (*CaseStudy, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	c, err := s.getOne(ctx, tx, `SELECT `+columns+` FROM case_studies WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return nil, err
	}
	if err := fn(c); err != nil {
		return nil, err
	}

	var out CaseStudy
	err = tx.QueryRowxContext(ctx, `
		UPDATE case_studies
		SET slug = $2, title = $3, client = $4, industry = $5, summary = $6, challenge = $7, solution = $8,
			results = $9, technologies = $10, featured = $11, status = $12, published_at = $13, updated_at = now()
		WHERE id = $1
		RETURNING `+columns,
		id, c.Slug, c.Title, c.Client, c.Industry, c.Summary, c.Challenge, c.Solution,
		c.Results, c.Technologies, c.Featured, c.Status, c.PublishedAt,
	).StructScan(&out)
	if err != nil {
		s.logger.Error("error update case study", zap.Int64("case_study_id", id), zap.Error(err))
		return nil, fmt.Errorf("update case study: %w", db.Classify(err))
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit case study: %w", err)
	}
	return &out, nil
}

func (s *Service) emitPublished(ctx context.Context, c *CaseStudy) {
	events.Emit(ctx, s.events, s.logger, events.CaseStudyPublished, map[string]any{
		"id":       c.ID,
		"slug":     c.Slug,
		"title":    c.Title,
		"industry": c.Industry,
	})
}

func validate(title, caseSlug string, results Results, technologies []string) []*apiresp.FieldError {
	var errs []*apiresp.FieldError
	if title == "" {
		errs = append(errs, apiresp.Field("/title", "is required"))
	}
	if !slug.Valid(caseSlug) {
		errs = append(errs, apiresp.Field("/slug", "must be lowercase letters, digits and dashes"))
	}
	for i, m := range results {
		if strings.TrimSpace(m.Label) == "" {
			errs = append(errs, apiresp.Field(fmt.Sprintf("/results/%d/label", i), "is required"))
		}
	}
	if len(technologies) > maxTechnologies {
		errs = append(errs, apiresp.Field("/technologies", fmt.Sprintf("at most %d entries", maxTechnologies)))
	}
	return errs
}

func cleanTechnologies(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}
