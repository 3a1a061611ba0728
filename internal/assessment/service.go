package assessment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"bizflow/internal/app/apiresp"
	"bizflow/internal/audit"
	"bizflow/internal/batch"
	"bizflow/internal/cache"
	"bizflow/internal/db"
	"bizflow/internal/events"
	"bizflow/internal/formbuilder"
	"bizflow/internal/lifecycle"
	"bizflow/internal/logger"
	"bizflow/internal/paginate"
	"bizflow/internal/scoring"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const entityForm = "assessment_form"

// LeadRecorder receives contact details left by assessment respondents.
type LeadRecorder interface {
	CaptureLead(ctx context.Context, in LeadCapture) error
}

type Deps struct {
	Cache  *cache.Cache
	Events events.Publisher
	Audit  audit.Recorder
	Leads  LeadRecorder
	Logger *logger.Logger
}

type Service struct {
	db     *sqlx.DB
	cache  *cache.Cache
	events events.Publisher
	audit  audit.Recorder
	leads  LeadRecorder
	logger *logger.Logger
	now    func() time.Time
}

func NewService(db *sqlx.DB, deps Deps) *Service {
	s := &Service{
		db:     db,
		cache:  deps.Cache,
		events: deps.Events,
		audit:  deps.Audit,
		leads:  deps.Leads,
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

const formSummarySelect = `
	SELECT f.id, f.title, f.description, f.status, f.published, f.version,
		(SELECT COUNT(*) FROM jsonb_array_elements(f.document->'sections') sec,
			jsonb_array_elements(sec->'questions') q) AS question_count,
		(SELECT COUNT(*) FROM assessment_submissions s WHERE s.form_id = f.id) AS submissions,
		f.created_at, f.updated_at
	FROM assessment_forms f`

func (s *Service) ListForms(ctx context.Context, f FormFilter) (*paginate.Page[FormSummary], error) {
	query := formSummarySelect + `
		WHERE ($1 = '' OR f.status = $1)
		  AND (NOT $2 OR f.published)
		  AND ($3 = '' OR f.title ILIKE '%' || $3 || '%')
		ORDER BY f.updated_at DESC, f.id`
	page, err := paginate.Query[FormSummary](ctx, s.db, query,
		[]any{strings.TrimSpace(f.Status), f.PublishedOnly, strings.TrimSpace(f.Search)}, f.Params)
	if err != nil {
		s.logger.Error("error list assessment forms", zap.Error(err))
		return nil, fmt.Errorf("list forms: %w", err)
	}
	return page, nil
}

// GetForm reads published forms through the cache.
func (s *Service) GetForm(ctx context.Context, id string) (*Form, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrFormNotFound
	}
	var cached Form
	if hit, _ := s.cache.Get(ctx, id, &cached); hit {
		return &cached, nil
	}
	form, err := s.loadForm(ctx, s.db, id, false)
	if err != nil {
		return nil, err
	}
	if form.Published {
		_ = s.cache.Set(ctx, id, form)
	}
	return form, nil
}

func (s *Service) CreateForm(ctx context.Context, actorID string, in FormInput) (*Form, error) {
	fb := formbuilder.NewBuilder(nil, formbuilder.WithClock(s.now)).NewForm(strings.TrimSpace(in.Title))
	fb.Description = in.Description
	if in.Sections != nil {
		fb.Sections = in.Sections
	}
	if err := formbuilder.ValidateForm(fb); err != nil {
		return nil, err
	}

	form := &Form{Form: *fb, Status: lifecycle.FormStatus.Initial()}
	if actorID != "" {
		form.CreatedBy = &actorID
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO assessment_forms (id, title, description, document, status, published, version, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4::jsonb, $5, FALSE, $6, NULLIF($7, '')::uuid, $8, $8)
	`, form.ID, form.Title, form.Description, formbuilder.Document{Sections: form.Sections},
		form.Status, form.Version, actorID, form.CreatedAt)
	if err != nil {
		s.logger.Error("error create assessment form", zap.String("form_id", form.ID), zap.Error(err))
		return nil, fmt.Errorf("create form: %w", db.Classify(err))
	}

	s.audit.Record(ctx, actorID, "create", entityForm, form.ID, map[string]any{"title": form.Title})
	return form, nil
}

// ReplaceForm swaps the whole document. Editing a published form bumps its
// version so stored submissions keep pointing at what respondents saw.
func (s *Service) ReplaceForm(ctx context.Context, actorID, id string, in FormInput) (*Form, error) {
	form, err := s.updateForm(ctx, id, in.UpdatedAt, func(f *Form) error {
		f.Title = strings.TrimSpace(in.Title)
		f.Description = in.Description
		f.Sections = in.Sections
		if f.Sections == nil {
			f.Sections = []formbuilder.Section{}
		}
		if err := formbuilder.ValidateForm(&f.Form); err != nil {
			return err
		}
		if f.Published {
			f.Version++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, actorID, "replace", entityForm, id, map[string]any{"version": form.Version})
	return form, nil
}

func (s *Service) PatchForm(ctx context.Context, actorID, id string, p FormPatch) (*Form, error) {
	var from string
	form, err := s.updateForm(ctx, id, p.UpdatedAt, func(f *Form) error {
		from = f.Status
		if p.Title != nil {
			title := strings.TrimSpace(*p.Title)
			if title == "" {
				return apiresp.Field("/title", "is required")
			}
			f.Title = title
		}
		if p.Description != nil {
			f.Description = *p.Description
		}
		if p.Status == nil || *p.Status == f.Status {
			return nil
		}
		if err := lifecycle.FormStatus.Transition(f.Status, *p.Status); err != nil {
			return err
		}
		f.Status = *p.Status
		f.Published = f.Status == StatusActive
		if f.Published {
			if err := formbuilder.ValidateForm(&f.Form); err != nil {
				return err
			}
			f.Version++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if from != form.Status {
		s.audit.Record(ctx, actorID, "status", entityForm, id, map[string]any{"from": from, "to": form.Status})
		if form.Status == StatusActive {
			events.Emit(ctx, s.events, s.logger, events.FormPublished, map[string]any{
				"id": form.ID, "title": form.Title, "version": form.Version,
			})
		}
	} else {
		s.audit.Record(ctx, actorID, "update", entityForm, id, nil)
	}
	return form, nil
}

func (s *Service) PublishForm(ctx context.Context, actorID, id string) (*Form, error) {
	active := StatusActive
	return s.PatchForm(ctx, actorID, id, FormPatch{Status: &active})
}

// EditForm replays editor commands against the stored document and saves
// the result in one transaction.
func (s *Service) EditForm(ctx context.Context, actorID, id string, in EditInput) (*EditResult, error) {
	var results []formbuilder.CommandResult
	form, err := s.updateForm(ctx, id, in.UpdatedAt, func(f *Form) error {
		b := formbuilder.NewBuilder(f.Form.Clone(), formbuilder.WithClock(s.now))
		results = make([]formbuilder.CommandResult, 0, len(in.Commands))
		for i, cmd := range in.Commands {
			res, err := b.Apply(cmd)
			if err != nil {
				return apiresp.Field(fmt.Sprintf("/commands/%d/op", i), err.Error())
			}
			results = append(results, res)
		}
		edited := b.Form()
		f.Sections = edited.Sections
		if err := formbuilder.ValidateForm(&f.Form); err != nil {
			return err
		}
		if f.Published {
			f.Version++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, actorID, "edit", entityForm, id, map[string]any{"commands": len(in.Commands)})
	return &EditResult{Form: form, Results: results}, nil
}

func (s *Service) DeleteForm(ctx context.Context, actorID, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrFormNotFound
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM assessment_forms WHERE id = $1`, id)
	if err != nil {
		s.logger.Error("error delete assessment form", zap.String("form_id", id), zap.Error(err))
		return fmt.Errorf("delete form: %w", db.Classify(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrFormNotFound
	}
	_ = s.cache.Delete(ctx, id)
	s.audit.Record(ctx, actorID, "delete", entityForm, id, nil)
	return nil
}

func (s *Service) BulkUpdateStatus(ctx context.Context, actorID string, ids []string, status string) []batch.Result[string] {
	return batch.Run(ctx, ids, batch.DefaultLimit, func(ctx context.Context, id string) error {
		_, err := s.PatchForm(ctx, actorID, id, FormPatch{Status: &status})
		return err
	})
}

func (s *Service) Template(context.Context) (*formbuilder.Form, error) {
	return formbuilder.DefaultAssessmentTemplate()
}

type PreviewInput struct {
	SectionID  string                `json:"sectionId"`
	QuestionID string                `json:"questionId"`
	Sections   []formbuilder.Section `json:"sections,omitempty"`
}

type DanglingReference struct {
	Pointer    string `json:"pointer"`
	QuestionID string `json:"questionId"`
	TargetID   string `json:"targetId"`
	Reason     string `json:"reason"`
}

type PreviewResult struct {
	PreviousQuestions []formbuilder.Question `json:"previousQuestions"`
	Dangling          []DanglingReference    `json:"dangling"`
}

// PreviewLogic lists the questions a condition on the selected question may
// reference. Unsaved sections from the editor take precedence over the
// stored document.
func (s *Service) PreviewLogic(ctx context.Context, id string, in PreviewInput) (*PreviewResult, error) {
	form, err := s.GetForm(ctx, id)
	if err != nil {
		return nil, err
	}
	doc := form.Form.Clone()
	if in.Sections != nil {
		doc.Sections = in.Sections
	}

	prev := formbuilder.PreviousQuestions(doc, in.SectionID, in.QuestionID)
	if prev == nil {
		prev = []formbuilder.Question{}
	}
	out := &PreviewResult{PreviousQuestions: prev, Dangling: []DanglingReference{}}
	for _, ref := range formbuilder.DanglingReferences(doc) {
		out.Dangling = append(out.Dangling, DanglingReference{
			Pointer:    ref.Pointer(),
			QuestionID: ref.QuestionID,
			TargetID:   ref.TargetID,
			Reason:     ref.Reason,
		})
	}
	return out, nil
}

func (s *Service) SubmitAssessment(ctx context.Context, in SubmissionInput) (*Submission, error) {
	form, err := s.GetForm(ctx, in.FormID)
	if err != nil {
		return nil, err
	}
	if !form.Published {
		return nil, ErrFormNotPublished
	}
	if in.Answers == nil {
		in.Answers = map[string]any{}
	}

	visible, err := formbuilder.ValidateAnswers(&form.Form, in.Answers)
	if err != nil {
		return nil, err
	}
	email := strings.TrimSpace(in.ContactEmail)
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, apiresp.Field("/contactEmail", "must be a valid email address")
		}
	}

	kept := Answers{}
	for _, q := range visible {
		if v, ok := in.Answers[q.ID]; ok {
			kept[q.ID] = v
		}
	}

	sub := &Submission{
		FormID:       form.ID,
		FormVersion:  form.Version,
		Answers:      kept,
		Score:        formbuilder.ScoreAnswers(visible, in.Answers),
		ContactName:  strings.TrimSpace(in.ContactName),
		ContactEmail: email,
		Company:      strings.TrimSpace(in.Company),
	}
	if scoring.HasReadinessFields(kept) {
		res := scoring.Breakdown(scoring.AnswersFromMap(kept))
		sub.Breakdown = &res
		sub.ReadinessScore = &res.Score
	}

	err = s.db.QueryRowxContext(ctx, `
		INSERT INTO assessment_submissions (form_id, form_version, answers, score, readiness_score, contact_name, contact_email, company, created_at)
		VALUES ($1, $2, $3::jsonb, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`, sub.FormID, sub.FormVersion, sub.Answers, sub.Score, sub.ReadinessScore,
		sub.ContactName, sub.ContactEmail, sub.Company, s.now()).Scan(&sub.ID, &sub.CreatedAt)
	if err != nil {
		s.logger.Error("error insert submission", zap.String("form_id", form.ID), zap.Error(err))
		return nil, fmt.Errorf("insert submission: %w", db.Classify(err))
	}

	events.Emit(ctx, s.events, s.logger, events.SubmissionCreated, map[string]any{
		"id": sub.ID, "formId": sub.FormID, "score": sub.Score, "readinessScore": sub.ReadinessScore,
	})

	if sub.ContactEmail != "" {
		leadScore := sub.Score
		if sub.ReadinessScore != nil {
			leadScore = *sub.ReadinessScore
		}
		s.captureLead(ctx, LeadCapture{
			Name:    sub.ContactName,
			Email:   sub.ContactEmail,
			Company: sub.Company,
			Source:  "assessment",
			Score:   leadScore,
			Message: "Completed assessment: " + form.Title,
		})
	}
	return sub, nil
}

func (s *Service) ListSubmissions(ctx context.Context, f SubmissionFilter) (*paginate.Page[Submission], error) {
	if f.FormID != "" {
		if _, err := uuid.Parse(f.FormID); err != nil {
			return nil, ErrFormNotFound
		}
	}
	query := `
		SELECT id, form_id, form_version, answers, score, readiness_score,
			contact_name, contact_email, company, created_at
		FROM assessment_submissions
		WHERE ($1 = '' OR form_id::text = $1)
		ORDER BY created_at DESC, id`
	page, err := paginate.Query[Submission](ctx, s.db, query, []any{f.FormID}, f.Params)
	if err != nil {
		s.logger.Error("error list submissions", zap.String("form_id", f.FormID), zap.Error(err))
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return page, nil
}

func (s *Service) CreateBusinessAssessment(ctx context.Context, in BusinessAssessmentInput) (*BusinessAssessment, error) {
	var errs []*apiresp.FieldError
	email := strings.TrimSpace(in.ContactEmail)
	if email == "" {
		errs = append(errs, apiresp.Field("/contactEmail", "is required"))
	} else if _, err := mail.ParseAddress(email); err != nil {
		errs = append(errs, apiresp.Field("/contactEmail", "must be a valid email address"))
	}
	if strings.TrimSpace(in.Answers.AutomationExperience) == "" {
		errs = append(errs, apiresp.Field("/answers/automation_experience", "is required"))
	}
	if strings.TrimSpace(in.Answers.CompanySize) == "" {
		errs = append(errs, apiresp.Field("/answers/company_size", "is required"))
	}
	if err := apiresp.Invalid(errs); err != nil {
		return nil, err
	}

	res := scoring.Breakdown(in.Answers)
	out := &BusinessAssessment{
		CompanyName:    strings.TrimSpace(in.CompanyName),
		ContactEmail:   email,
		Answers:        in.Answers,
		ReadinessScore: res.Score,
		Tier:           scoring.Tier(res.Score),
		Breakdown:      res,
	}
	raw, err := json.Marshal(in.Answers)
	if err != nil {
		return nil, fmt.Errorf("encode answers: %w", err)
	}
	err = s.db.QueryRowxContext(ctx, `
		INSERT INTO business_assessments (company_name, contact_email, answers, readiness_score, created_at)
		VALUES ($1, $2, $3::jsonb, $4, $5)
		RETURNING id, created_at
	`, out.CompanyName, out.ContactEmail, string(raw), out.ReadinessScore, s.now()).Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		s.logger.Error("error insert business assessment", zap.String("email", email), zap.Error(err))
		return nil, fmt.Errorf("insert business assessment: %w", db.Classify(err))
	}

	events.Emit(ctx, s.events, s.logger, events.BusinessAssessmentNew, map[string]any{
		"id": out.ID, "readinessScore": out.ReadinessScore, "tier": out.Tier,
	})
	name := strings.TrimSpace(in.ContactName)
	s.captureLead(ctx, LeadCapture{
		Name:    name,
		Email:   email,
		Company: out.CompanyName,
		Source:  "business_assessment",
		Score:   out.ReadinessScore,
		Message: fmt.Sprintf("Automation readiness %d (%s)", out.ReadinessScore, out.Tier),
	})
	return out, nil
}

func (s *Service) captureLead(ctx context.Context, in LeadCapture) {
	if s.leads == nil {
		return
	}
	if in.Name == "" {
		in.Name = in.Email
	}
	if err := s.leads.CaptureLead(ctx, in); err != nil {
		s.logger.Warn("lead not captured", zap.String("source", in.Source), zap.Error(err))
	}
}

// updateForm locks the row, checks the caller's updatedAt, applies fn and
// writes the whole row back. The cache entry is refreshed after commit.
func (s *Service) updateForm(ctx context.Context, id string, expected *time.Time, fn func(f *Form) error) (*Form, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrFormNotFound
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	form, err := s.loadForm(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}
	if expected != nil && !sameInstant(*expected, form.UpdatedAt) {
		return nil, ErrStaleForm
	}
	if err := fn(form); err != nil {
		return nil, err
	}
	form.UpdatedAt = s.now()

	_, err = tx.ExecContext(ctx, `
		UPDATE assessment_forms
		SET title = $2, description = $3, document = $4::jsonb, status = $5,
			published = $6, version = $7, updated_at = $8
		WHERE id = $1
	`, form.ID, form.Title, form.Description, formbuilder.Document{Sections: form.Sections},
		form.Status, form.Published, form.Version, form.UpdatedAt)
	if err != nil {
		s.logger.Error("error update assessment form", zap.String("form_id", id), zap.Error(err))
		return nil, fmt.Errorf("update form: %w", db.Classify(err))
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit form update: %w", err)
	}

	_ = s.cache.Delete(ctx, id)
	if form.Published {
		_ = s.cache.Set(ctx, id, form)
	}
	return form, nil
}

func (s *Service) loadForm(ctx context.Context, q sqlx.QueryerContext, id string, forUpdate bool) (*Form, error) {
	query := `
		SELECT id, title, description, document, status, published, version,
			created_by::text AS created_by, created_at, updated_at
		FROM assessment_forms
		WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var row formRow
	if err := sqlx.GetContext(ctx, q, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFormNotFound
		}
		s.logger.Error("error load assessment form", zap.String("form_id", id), zap.Error(err))
		return nil, fmt.Errorf("load form: %w", err)
	}
	return row.toForm(), nil
}

// sameInstant compares at millisecond precision, the resolution browsers
// keep when they echo a timestamp back.
func sameInstant(a, b time.Time) bool {
	return a.Truncate(time.Millisecond).Equal(b.Truncate(time.Millisecond))
}
