package assessment

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bizflow/internal/formbuilder"
	"bizflow/internal/paginate"
	"bizflow/internal/scoring"
)

var (
	ErrFormNotFound       = errors.New("assessment form not found")
	ErrFormNotPublished   = errors.New("assessment form is not published")
	ErrStaleForm          = errors.New("assessment form was changed by someone else")
	ErrSubmissionNotFound = errors.New("submission not found")
)

const (
	StatusDraft    = "draft"
	StatusActive   = "active"
	StatusArchived = "archived"
)

// Form is the stored form document plus its lifecycle status.
type Form struct {
	formbuilder.Form
	Status    string  `json:"status"`
	CreatedBy *string `json:"createdBy,omitempty"`
}

type formRow struct {
	ID          string               `db:"id"`
	Title       string               `db:"title"`
	Description string               `db:"description"`
	Document    formbuilder.Document `db:"document"`
	Status      string               `db:"status"`
	Published   bool                 `db:"published"`
	Version     int                  `db:"version"`
	CreatedBy   *string              `db:"created_by"`
	CreatedAt   time.Time            `db:"created_at"`
	UpdatedAt   time.Time            `db:"updated_at"`
}

func (r formRow) toForm() *Form {
	sections := r.Document.Sections
	if sections == nil {
		sections = []formbuilder.Section{}
	}
	return &Form{
		Form: formbuilder.Form{
			ID:          r.ID,
			Title:       r.Title,
			Description: r.Description,
			Sections:    sections,
			Published:   r.Published,
			CreatedAt:   r.CreatedAt,
			UpdatedAt:   r.UpdatedAt,
			Version:     r.Version,
		},
		Status:    r.Status,
		CreatedBy: r.CreatedBy,
	}
}

// FormSummary is the list view; the section tree is left out.
type FormSummary struct {
	ID            string    `json:"id" db:"id"`
	Title         string    `json:"title" db:"title"`
	Description   string    `json:"description" db:"description"`
	Status        string    `json:"status" db:"status"`
	Published     bool      `json:"published" db:"published"`
	Version       int       `json:"version" db:"version"`
	QuestionCount int       `json:"questionCount" db:"question_count"`
	Submissions   int       `json:"submissions" db:"submissions"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time `json:"updatedAt" db:"updated_at"`
}

type FormFilter struct {
	Status        string
	PublishedOnly bool
	Search        string
	paginate.Params
}

type FormInput struct {
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Sections    []formbuilder.Section `json:"sections"`
	UpdatedAt   *time.Time            `json:"updatedAt,omitempty"`
}

// FormPatch changes form metadata. A nil field is left alone.
type FormPatch struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Status      *string    `json:"status,omitempty"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
}

type EditInput struct {
	Commands  []formbuilder.Command `json:"commands"`
	UpdatedAt *time.Time            `json:"updatedAt,omitempty"`
}

type EditResult struct {
	Form    *Form                       `json:"form"`
	Results []formbuilder.CommandResult `json:"results"`
}

type Submission struct {
	ID             string          `json:"id" db:"id"`
	FormID         string          `json:"formId" db:"form_id"`
	FormVersion    int             `json:"formVersion" db:"form_version"`
	Answers        Answers         `json:"answers" db:"answers"`
	Score          int             `json:"score" db:"score"`
	ReadinessScore *int            `json:"readinessScore,omitempty" db:"readiness_score"`
	ContactName    string          `json:"contactName" db:"contact_name"`
	ContactEmail   string          `json:"contactEmail" db:"contact_email"`
	Company        string          `json:"company" db:"company"`
	CreatedAt      time.Time       `json:"createdAt" db:"created_at"`
	Breakdown      *scoring.Result `json:"readinessBreakdown,omitempty" db:"-"`
}

// Answers is a submitted answer map stored as jsonb.
type Answers map[string]any

func (a Answers) Value() (driver.Value, error) {
	if a == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(a)
}

func (a *Answers) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*a = Answers{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported answers type %T", src)
	}
	m := Answers{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return err
	}
	*a = m
	return nil
}

type SubmissionInput struct {
	FormID       string         `json:"formId"`
	Answers      map[string]any `json:"answers"`
	ContactName  string         `json:"contactName"`
	ContactEmail string         `json:"contactEmail"`
	Company      string         `json:"company"`
}

type SubmissionFilter struct {
	FormID string
	paginate.Params
}

// BusinessAssessment is the flat readiness questionnaire kept outside the
// form builder.
type BusinessAssessment struct {
	ID             string          `json:"id" db:"id"`
	CompanyName    string          `json:"companyName" db:"company_name"`
	ContactEmail   string          `json:"contactEmail" db:"contact_email"`
	Answers        scoring.Answers `json:"answers" db:"-"`
	ReadinessScore int             `json:"readinessScore" db:"readiness_score"`
	Tier           string          `json:"tier" db:"-"`
	Breakdown      scoring.Result  `json:"breakdown" db:"-"`
	CreatedAt      time.Time       `json:"createdAt" db:"created_at"`
}

type BusinessAssessmentInput struct {
	CompanyName  string          `json:"companyName"`
	ContactName  string          `json:"contactName"`
	ContactEmail string          `json:"contactEmail"`
	Answers      scoring.Answers `json:"answers"`
}

// LeadCapture is handed to the lead pipeline when a respondent leaves an
// email address.
type LeadCapture struct {
	Name    string
	Email   string
	Company string
	Source  string
	Score   int
	Message string
}
