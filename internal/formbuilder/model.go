package formbuilder

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type QuestionType string

const (
	TypeText        QuestionType = "text"
	TypeTextarea    QuestionType = "textarea"
	TypeSelect      QuestionType = "select"
	TypeMultiselect QuestionType = "multiselect"
	TypeCheckbox    QuestionType = "checkbox"
	TypeRadio       QuestionType = "radio"
	TypeScale       QuestionType = "scale"
	TypeDate        QuestionType = "date"
)

func (t QuestionType) Valid() bool {
	switch t {
	case TypeText, TypeTextarea, TypeSelect, TypeMultiselect, TypeCheckbox, TypeRadio, TypeScale, TypeDate:
		return true
	}
	return false
}

// IsChoice reports whether answers are picked from Options.
func (t QuestionType) IsChoice() bool {
	switch t {
	case TypeSelect, TypeMultiselect, TypeCheckbox, TypeRadio:
		return true
	}
	return false
}

// IsMulti reports whether more than one option may be picked.
func (t QuestionType) IsMulti() bool {
	return t == TypeMultiselect || t == TypeCheckbox
}

type LogicType string

const (
	LogicShow LogicType = "show"
	LogicHide LogicType = "hide"
)

type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
)

type Relation string

const (
	RelationAnd Relation = "AND"
	RelationOr  Relation = "OR"
)

type ValidationType string

const (
	ValidationRequired  ValidationType = "required"
	ValidationMinLength ValidationType = "min_length"
	ValidationMaxLength ValidationType = "max_length"
	ValidationMinValue  ValidationType = "min_value"
	ValidationMaxValue  ValidationType = "max_value"
	ValidationPattern   ValidationType = "pattern"
	ValidationEmail     ValidationType = "email"
)

type ScoreType string

const (
	ScoreByValue   ScoreType = "value"
	ScoreByOptions ScoreType = "options"
)

type Option struct {
	Label string `json:"label" yaml:"label"`
	Value string `json:"value" yaml:"value"`
}

type Condition struct {
	QuestionID string   `json:"questionId" yaml:"questionId"`
	Operator   Operator `json:"operator" yaml:"operator"`
	Value      any      `json:"value" yaml:"value"`
}

type ConditionalLogic struct {
	LogicType         LogicType   `json:"logicType" yaml:"logicType"`
	Conditions        []Condition `json:"conditions" yaml:"conditions"`
	ConditionRelation Relation    `json:"conditionRelation" yaml:"conditionRelation"`
}

type Validation struct {
	Type    ValidationType `json:"type" yaml:"type"`
	Value   any            `json:"value,omitempty" yaml:"value,omitempty"`
	Message string         `json:"message" yaml:"message"`
}

type QuestionScoring struct {
	ScoreType    ScoreType          `json:"scoreType" yaml:"scoreType"`
	DefaultScore float64            `json:"defaultScore" yaml:"defaultScore"`
	OptionScores map[string]float64 `json:"optionScores,omitempty" yaml:"optionScores,omitempty"`
}

type Question struct {
	ID               string            `json:"id" yaml:"id"`
	SectionID        string            `json:"sectionId" yaml:"sectionId"`
	Type             QuestionType      `json:"type" yaml:"type"`
	Label            string            `json:"label" yaml:"label"`
	Placeholder      string            `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
	HelpText         string            `json:"helpText,omitempty" yaml:"helpText,omitempty"`
	Required         bool              `json:"required" yaml:"required"`
	Order            int               `json:"order" yaml:"order"`
	Options          []Option          `json:"options,omitempty" yaml:"options,omitempty"`
	ConditionalLogic *ConditionalLogic `json:"conditionalLogic,omitempty" yaml:"conditionalLogic,omitempty"`
	Validations      []Validation      `json:"validations,omitempty" yaml:"validations,omitempty"`
	Scoring          *QuestionScoring  `json:"scoring,omitempty" yaml:"scoring,omitempty"`
}

type Section struct {
	ID          string     `json:"id" yaml:"id"`
	Title       string     `json:"title" yaml:"title"`
	Description string     `json:"description" yaml:"description"`
	Questions   []Question `json:"questions" yaml:"questions"`
	Order       int        `json:"order" yaml:"order"`
}

type Form struct {
	ID          string    `json:"id" yaml:"id"`
	Title       string    `json:"title" yaml:"title"`
	Description string    `json:"description" yaml:"description"`
	Sections    []Section `json:"sections" yaml:"sections"`
	Published   bool      `json:"published" yaml:"published"`
	CreatedAt   time.Time `json:"createdAt" yaml:"-"`
	UpdatedAt   time.Time `json:"updatedAt" yaml:"-"`
	Version     int       `json:"version" yaml:"version"`
}

// Question looks a question up by id across every section.
func (f *Form) Question(id string) (Question, bool) {
	for _, s := range f.Sections {
		for _, q := range s.Questions {
			if q.ID == id {
				return q, true
			}
		}
	}
	return Question{}, false
}

// Questions flattens the tree in traversal order.
func (f *Form) Questions() []Question {
	var out []Question
	for _, s := range f.Sections {
		out = append(out, s.Questions...)
	}
	return out
}

func (f *Form) QuestionCount() int {
	n := 0
	for _, s := range f.Sections {
		n += len(s.Questions)
	}
	return n
}

// Clone returns a deep copy safe to mutate independently.
func (f *Form) Clone() *Form {
	out := *f
	out.Sections = make([]Section, len(f.Sections))
	for i, s := range f.Sections {
		s.Questions = cloneQuestions(s.Questions)
		out.Sections[i] = s
	}
	return &out
}

func cloneQuestions(in []Question) []Question {
	if in == nil {
		return nil
	}
	out := make([]Question, len(in))
	for i, q := range in {
		out[i] = cloneQuestion(q)
	}
	return out
}

func cloneQuestion(q Question) Question {
	if q.Options != nil {
		q.Options = append([]Option(nil), q.Options...)
	}
	if q.Validations != nil {
		q.Validations = append([]Validation(nil), q.Validations...)
	}
	if q.ConditionalLogic != nil {
		cl := *q.ConditionalLogic
		cl.Conditions = append([]Condition(nil), cl.Conditions...)
		q.ConditionalLogic = &cl
	}
	if q.Scoring != nil {
		sc := *q.Scoring
		if sc.OptionScores != nil {
			sc.OptionScores = make(map[string]float64, len(q.Scoring.OptionScores))
			for k, v := range q.Scoring.OptionScores {
				sc.OptionScores[k] = v
			}
		}
		q.Scoring = &sc
	}
	return q
}

// Document is the persisted JSON shape of a form's section tree.
type Document struct {
	Sections []Section `json:"sections"`
}

func (d Document) Value() (driver.Value, error) {
	if d.Sections == nil {
		d.Sections = []Section{}
	}
	return json.Marshal(d)
}

func (d *Document) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		d.Sections = []Section{}
		return nil
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	default:
		return fmt.Errorf("unsupported document type %T", src)
	}
}
