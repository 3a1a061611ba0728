package formbuilder

import (
	"bytes"
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed templates/assessment.yaml
var assessmentTemplate []byte

// DefaultAssessmentTemplate returns a new draft of the readiness
// questionnaire. Question ids match the fields the readiness score reads.
func DefaultAssessmentTemplate() (*Form, error) {
	return ParseTemplate(assessmentTemplate)
}

func ParseTemplate(raw []byte) (*Form, error) {
	var tpl Form
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&tpl); err != nil {
		return nil, fmt.Errorf("decode form template: %w", err)
	}

	f := NewForm(tpl.Title)
	f.Description = tpl.Description
	f.Sections = tpl.Sections
	if f.Sections == nil {
		f.Sections = []Section{}
	}
	if err := ValidateForm(f); err != nil {
		return nil, fmt.Errorf("form template: %w", err)
	}
	return f, nil
}
