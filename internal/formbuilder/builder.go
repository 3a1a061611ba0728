package formbuilder

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultSectionTitle  = "New Section"
	DefaultQuestionLabel = "New Question"
	copySuffix           = " (Copy)"
	placeholderOptions   = 3
)

// Builder edits one form tree in place and tracks which section or
// question is being edited. Lookups that miss return false and leave the
// tree untouched; successful edits bump UpdatedAt.
type Builder struct {
	form               *Form
	selectedSectionID  string
	selectedQuestionID string

	now   func() time.Time
	newID func() string
}

type BuilderOption func(*Builder)

func WithClock(now func() time.Time) BuilderOption {
	return func(b *Builder) { b.now = now }
}

func WithIDs(newID func() string) BuilderOption {
	return func(b *Builder) { b.newID = newID }
}

func NewBuilder(form *Form, opts ...BuilderOption) *Builder {
	b := &Builder{
		form:  form,
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.form == nil {
		b.form = b.NewForm("")
	}
	return b
}

// NewForm returns an empty draft with a fresh id.
func (b *Builder) NewForm(title string) *Form {
	now := b.now()
	return &Form{
		ID:        b.newID(),
		Title:     title,
		Sections:  []Section{},
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
}

func NewForm(title string) *Form {
	return NewBuilder(nil).NewForm(title)
}

func (b *Builder) Form() *Form { return b.form }

func (b *Builder) Selection() (sectionID, questionID string) {
	return b.selectedSectionID, b.selectedQuestionID
}

// Select focuses a section, or a question inside it when questionID is set.
func (b *Builder) Select(sectionID, questionID string) bool {
	si := b.sectionIndex(sectionID)
	if si < 0 {
		return false
	}
	if questionID != "" && questionIndex(b.form.Sections[si].Questions, questionID) < 0 {
		return false
	}
	b.selectedSectionID = sectionID
	b.selectedQuestionID = questionID
	return true
}

func (b *Builder) ClearSelection() {
	b.selectedSectionID = ""
	b.selectedQuestionID = ""
}

func (b *Builder) AddSection() string {
	id := b.newID()
	b.form.Sections = append(b.form.Sections, Section{
		ID:        id,
		Title:     DefaultSectionTitle,
		Questions: []Question{},
		Order:     len(b.form.Sections),
	})
	b.selectedSectionID = id
	b.selectedQuestionID = ""
	b.touch()
	return id
}

type SectionPatch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
}

func (b *Builder) UpdateSection(id string, p SectionPatch) bool {
	si := b.sectionIndex(id)
	if si < 0 {
		return false
	}
	s := &b.form.Sections[si]
	if p.Title != nil {
		s.Title = *p.Title
	}
	if p.Description != nil {
		s.Description = *p.Description
	}
	b.touch()
	return true
}

// DeleteSection removes the section together with its questions.
func (b *Builder) DeleteSection(id string) bool {
	si := b.sectionIndex(id)
	if si < 0 {
		return false
	}
	b.form.Sections = append(b.form.Sections[:si], b.form.Sections[si+1:]...)
	renumberSections(b.form.Sections)
	if b.selectedSectionID == id {
		b.ClearSelection()
	}
	b.touch()
	return true
}

func (b *Builder) AddQuestion(sectionID string, qType QuestionType) (string, bool) {
	si := b.sectionIndex(sectionID)
	if si < 0 || !qType.Valid() {
		return "", false
	}
	s := &b.form.Sections[si]
	q := Question{
		ID:        b.newID(),
		SectionID: sectionID,
		Type:      qType,
		Label:     DefaultQuestionLabel,
		Order:     len(s.Questions),
	}
	if qType.IsChoice() {
		q.Options = make([]Option, placeholderOptions)
		for i := range q.Options {
			q.Options[i] = Option{Label: fmt.Sprintf("Option %d", i+1), Value: fmt.Sprintf("option_%d", i+1)}
		}
	}
	s.Questions = append(s.Questions, q)
	b.selectedSectionID = sectionID
	b.selectedQuestionID = q.ID
	b.touch()
	return q.ID, true
}

// QuestionPatch is merged field by field; nil fields are left alone.
type QuestionPatch struct {
	Type             *QuestionType     `json:"type,omitempty"`
	Label            *string           `json:"label,omitempty"`
	Placeholder      *string           `json:"placeholder,omitempty"`
	HelpText         *string           `json:"helpText,omitempty"`
	Required         *bool             `json:"required,omitempty"`
	Options          *[]Option         `json:"options,omitempty"`
	ConditionalLogic *ConditionalLogic `json:"conditionalLogic,omitempty"`
	Validations      *[]Validation     `json:"validations,omitempty"`
	Scoring          *QuestionScoring  `json:"scoring,omitempty"`
	ClearLogic       bool              `json:"clearLogic,omitempty"`
	ClearScoring     bool              `json:"clearScoring,omitempty"`
}

func (b *Builder) UpdateQuestion(sectionID, id string, p QuestionPatch) bool {
	q := b.question(sectionID, id)
	if q == nil {
		return false
	}
	if p.Type != nil && p.Type.Valid() {
		q.Type = *p.Type
	}
	if p.Label != nil {
		q.Label = *p.Label
	}
	if p.Placeholder != nil {
		q.Placeholder = *p.Placeholder
	}
	if p.HelpText != nil {
		q.HelpText = *p.HelpText
	}
	if p.Required != nil {
		q.Required = *p.Required
	}
	if p.Options != nil {
		q.Options = append([]Option(nil), (*p.Options)...)
	}
	if p.Validations != nil {
		q.Validations = append([]Validation(nil), (*p.Validations)...)
	}
	switch {
	case p.ClearLogic:
		q.ConditionalLogic = nil
	case p.ConditionalLogic != nil:
		cl := *p.ConditionalLogic
		cl.Conditions = append([]Condition(nil), cl.Conditions...)
		q.ConditionalLogic = &cl
	}
	switch {
	case p.ClearScoring:
		q.Scoring = nil
	case p.Scoring != nil:
		sc := cloneQuestion(Question{Scoring: p.Scoring}).Scoring
		q.Scoring = sc
	}
	b.touch()
	return true
}

func (b *Builder) DeleteQuestion(sectionID, id string) bool {
	si := b.sectionIndex(sectionID)
	if si < 0 {
		return false
	}
	s := &b.form.Sections[si]
	qi := questionIndex(s.Questions, id)
	if qi < 0 {
		return false
	}
	s.Questions = append(s.Questions[:qi], s.Questions[qi+1:]...)
	renumberQuestions(s.Questions)
	if b.selectedQuestionID == id {
		b.selectedQuestionID = ""
	}
	b.touch()
	return true
}

// DuplicateQuestion appends a deep copy with a new id at the end of the
// same section.
func (b *Builder) DuplicateQuestion(sectionID, id string) (string, bool) {
	si := b.sectionIndex(sectionID)
	if si < 0 {
		return "", false
	}
	s := &b.form.Sections[si]
	qi := questionIndex(s.Questions, id)
	if qi < 0 {
		return "", false
	}
	dup := cloneQuestion(s.Questions[qi])
	dup.ID = b.newID()
	dup.Label = dup.Label + copySuffix
	s.Questions = append(s.Questions, dup)
	renumberQuestions(s.Questions)
	b.selectedSectionID = sectionID
	b.selectedQuestionID = dup.ID
	b.touch()
	return dup.ID, true
}

// MoveSection moves the dragged section to the drop target's position.
func (b *Builder) MoveSection(activeID, overID string) bool {
	from := b.sectionIndex(activeID)
	to := b.sectionIndex(overID)
	if from < 0 || to < 0 {
		return false
	}
	if from != to {
		b.form.Sections = arrayMove(b.form.Sections, from, to)
	}
	renumberSections(b.form.Sections)
	b.touch()
	return true
}

// MoveQuestion reorders within one section. A target outside sectionID
// is ignored.
func (b *Builder) MoveQuestion(sectionID, activeID, overID string) bool {
	si := b.sectionIndex(sectionID)
	if si < 0 {
		return false
	}
	s := &b.form.Sections[si]
	from := questionIndex(s.Questions, activeID)
	to := questionIndex(s.Questions, overID)
	if from < 0 || to < 0 {
		return false
	}
	if from != to {
		s.Questions = arrayMove(s.Questions, from, to)
	}
	renumberQuestions(s.Questions)
	b.touch()
	return true
}

// DragEnd resolves a drop of activeID onto overID. Section onto section
// and question onto a question of the same section are applied; any other
// pairing, including a question dropped into another section, is ignored.
func (b *Builder) DragEnd(activeID, overID string) bool {
	if activeID == "" || overID == "" {
		return false
	}
	if b.sectionIndex(activeID) >= 0 {
		return b.MoveSection(activeID, overID)
	}
	activeSection := b.sectionOfQuestion(activeID)
	if activeSection == "" || b.sectionOfQuestion(overID) != activeSection {
		return false
	}
	return b.MoveQuestion(activeSection, activeID, overID)
}

func (b *Builder) touch() {
	b.form.UpdatedAt = b.now()
}

func (b *Builder) sectionIndex(id string) int {
	for i, s := range b.form.Sections {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func (b *Builder) sectionOfQuestion(questionID string) string {
	for _, s := range b.form.Sections {
		if questionIndex(s.Questions, questionID) >= 0 {
			return s.ID
		}
	}
	return ""
}

func (b *Builder) question(sectionID, id string) *Question {
	si := b.sectionIndex(sectionID)
	if si < 0 {
		return nil
	}
	qs := b.form.Sections[si].Questions
	qi := questionIndex(qs, id)
	if qi < 0 {
		return nil
	}
	return &qs[qi]
}

func questionIndex(qs []Question, id string) int {
	for i, q := range qs {
		if q.ID == id {
			return i
		}
	}
	return -1
}

func renumberSections(ss []Section) {
	for i := range ss {
		ss[i].Order = i
	}
}

func renumberQuestions(qs []Question) {
	for i := range qs {
		qs[i].Order = i
	}
}

// arrayMove removes the element at from and reinserts it at to.
func arrayMove[T any](items []T, from, to int) []T {
	out := make([]T, 0, len(items))
	out = append(out, items[:from]...)
	out = append(out, items[from+1:]...)
	moved := items[from]
	out = append(out[:to], append([]T{moved}, out[to:]...)...)
	return out
}
