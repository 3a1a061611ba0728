package casestudy

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bizflow/internal/paginate"

	"github.com/lib/pq"
)

var ErrCaseStudyNotFound = errors.New("case study not found")

const (
	StatusDraft     = "draft"
	StatusPublished = "published"
)

// Metric is one headline outcome, e.g. {"label":"Processing time","value":"-70%"}.
type Metric struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

type Results []Metric

func (r Results) Value() (driver.Value, error) {
	if r == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(r)
}

func (r *Results) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*r = Results{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported results type %T", src)
	}
	out := Results{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*r = out
	return nil
}

type CaseStudy struct {
	ID           int64          `json:"id" db:"id"`
	Slug         string         `json:"slug" db:"slug"`
	Title        string         `json:"title" db:"title"`
	Client       string         `json:"client" db:"client"`
	Industry     string         `json:"industry" db:"industry"`
	Summary      string         `json:"summary" db:"summary"`
	Challenge    string         `json:"challenge" db:"challenge"`
	Solution     string         `json:"solution" db:"solution"`
	Results      Results        `json:"results" db:"results"`
	Technologies pq.StringArray `json:"technologies" db:"technologies"`
	Featured     bool           `json:"featured" db:"featured"`
	Status       string         `json:"status" db:"status"`
	PublishedAt  *time.Time     `json:"publishedAt,omitempty" db:"published_at"`
	CreatedAt    time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time      `json:"updatedAt" db:"updated_at"`
}

type Filter struct {
	Featured *bool
	Industry string
	Status   string
	Search   string
	paginate.Params
}

type Input struct {
	Title        string   `json:"title"`
	Slug         string   `json:"slug"`
	Client       string   `json:"client"`
	Industry     string   `json:"industry"`
	Summary      string   `json:"summary"`
	Challenge    string   `json:"challenge"`
	Solution     string   `json:"solution"`
	Results      Results  `json:"results"`
	Technologies []string `json:"technologies"`
	Featured     bool     `json:"featured"`
	Status       string   `json:"status"`
}

type Patch struct {
	Title        *string   `json:"title,omitempty"`
	Slug         *string   `json:"slug,omitempty"`
	Client       *string   `json:"client,omitempty"`
	Industry     *string   `json:"industry,omitempty"`
	Summary      *string   `json:"summary,omitempty"`
	Challenge    *string   `json:"challenge,omitempty"`
	Solution     *string   `json:"solution,omitempty"`
	Results      *Results  `json:"results,omitempty"`
	Technologies *[]string `json:"technologies,omitempty"`
	Featured     *bool     `json:"featured,omitempty"`
}
