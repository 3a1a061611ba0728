package formbuilder

import (
	"fmt"
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"bizflow/internal/app/apiresp"
)

// ValidateForm checks a whole form document before it is persisted.
// Pointers are relative to the form object.
func ValidateForm(f *Form) error {
	if f == nil {
		return apiresp.Invalid([]*apiresp.FieldError{apiresp.Field("", "form document is required")})
	}
	var errs []*apiresp.FieldError
	add := func(pointer, format string, args ...any) {
		errs = append(errs, apiresp.Field(pointer, fmt.Sprintf(format, args...)))
	}

	if strings.TrimSpace(f.Title) == "" {
		add("/title", "is required")
	}

	sectionIDs := map[string]struct{}{}
	questionIDs := map[string]struct{}{}
	for si, s := range f.Sections {
		sp := fmt.Sprintf("/sections/%d", si)
		switch _, dup := sectionIDs[s.ID]; {
		case strings.TrimSpace(s.ID) == "":
			add(sp+"/id", "is required")
		case dup:
			add(sp+"/id", "duplicates another section id")
		}
		sectionIDs[s.ID] = struct{}{}
		if strings.TrimSpace(s.Title) == "" {
			add(sp+"/title", "is required")
		}
		if s.Order != si {
			add(sp+"/order", "must equal its position %d", si)
		}

		for qi, q := range s.Questions {
			qp := fmt.Sprintf("%s/questions/%d", sp, qi)
			switch _, dup := questionIDs[q.ID]; {
			case strings.TrimSpace(q.ID) == "":
				add(qp+"/id", "is required")
			case dup:
				add(qp+"/id", "duplicates another question id")
			}
			questionIDs[q.ID] = struct{}{}

			if q.SectionID != s.ID {
				add(qp+"/sectionId", "must match the owning section")
			}
			if !q.Type.Valid() {
				add(qp+"/type", "unknown question type %q", q.Type)
			}
			if strings.TrimSpace(q.Label) == "" {
				add(qp+"/label", "is required")
			}
			if q.Order != qi {
				add(qp+"/order", "must equal its position %d", qi)
			}
			if q.Type.IsChoice() {
				if len(q.Options) == 0 {
					add(qp+"/options", "choice questions need at least one option")
				}
				seen := map[string]struct{}{}
				for oi, o := range q.Options {
					if strings.TrimSpace(o.Value) == "" {
						add(fmt.Sprintf("%s/options/%d/value", qp, oi), "is required")
						continue
					}
					if _, dup := seen[o.Value]; dup {
						add(fmt.Sprintf("%s/options/%d/value", qp, oi), "duplicates another option value")
					}
					seen[o.Value] = struct{}{}
				}
			}
			if cl := q.ConditionalLogic; cl != nil {
				if cl.LogicType != LogicShow && cl.LogicType != LogicHide {
					add(qp+"/conditionalLogic/logicType", "must be show or hide")
				}
				if cl.ConditionRelation != "" && cl.ConditionRelation != RelationAnd && cl.ConditionRelation != RelationOr {
					add(qp+"/conditionalLogic/conditionRelation", "must be AND or OR")
				}
				for ci, c := range cl.Conditions {
					if !c.Operator.Valid() {
						add(fmt.Sprintf("%s/conditionalLogic/conditions/%d/operator", qp, ci), "unknown operator %q", c.Operator)
					}
				}
			}
			for vi, v := range q.Validations {
				vp := fmt.Sprintf("%s/validations/%d", qp, vi)
				if err := checkValidationRule(v); err != "" {
					add(vp, "%s", err)
				}
			}
			if sc := q.Scoring; sc != nil && sc.ScoreType != ScoreByValue && sc.ScoreType != ScoreByOptions {
				add(qp+"/scoring/scoreType", "must be value or options")
			}
		}
	}

	for _, ref := range DanglingReferences(f) {
		add(ref.Pointer(), "%s", ref.Reason)
	}

	return apiresp.Invalid(errs)
}

func checkValidationRule(v Validation) string {
	switch v.Type {
	case ValidationRequired, ValidationEmail:
		return ""
	case ValidationMinLength, ValidationMaxLength, ValidationMinValue, ValidationMaxValue:
		if _, ok := toFloat(scalarString(v.Value)); !ok {
			return "value must be numeric"
		}
		return ""
	case ValidationPattern:
		if _, err := regexp.Compile(scalarString(v.Value)); err != nil {
			return "value must be a valid regular expression"
		}
		return ""
	default:
		return fmt.Sprintf("unknown validation type %q", v.Type)
	}
}

// ValidateAnswers checks a submission against the visible questions of
// the form. Pointers are "/answers/<questionId>".
func ValidateAnswers(f *Form, answers map[string]any) ([]Question, error) {
	visible, err := VisibleQuestions(f, answers)
	if err != nil {
		return nil, err
	}

	var errs []*apiresp.FieldError
	for _, q := range visible {
		pointer := "/answers/" + q.ID
		values := answerStrings(answers[q.ID])
		answered := len(values) > 0 && !(len(values) == 1 && values[0] == "")

		if !answered {
			if q.Required || hasRule(q, ValidationRequired) {
				errs = append(errs, apiresp.Field(pointer, ruleMessage(q, ValidationRequired, "is required")))
			}
			continue
		}

		if q.Type.IsChoice() {
			if !q.Type.IsMulti() && len(values) > 1 {
				errs = append(errs, apiresp.Field(pointer, "accepts a single option"))
				continue
			}
			if bad := unknownOption(q, values); bad != "" {
				errs = append(errs, apiresp.Field(pointer, fmt.Sprintf("%q is not an option", bad)))
				continue
			}
		}

		joined := strings.Join(values, ",")
		for _, v := range q.Validations {
			if msg := applyRule(v, joined); msg != "" {
				errs = append(errs, apiresp.Field(pointer, msg))
				break
			}
		}
	}
	return visible, apiresp.Invalid(errs)
}

func applyRule(v Validation, answer string) string {
	fail := func(def string) string {
		if v.Message != "" {
			return v.Message
		}
		return def
	}
	limit, _ := toFloat(scalarString(v.Value))
	switch v.Type {
	case ValidationMinLength:
		if float64(utf8.RuneCountInString(answer)) < limit {
			return fail(fmt.Sprintf("must be at least %s characters", scalarString(v.Value)))
		}
	case ValidationMaxLength:
		if float64(utf8.RuneCountInString(answer)) > limit {
			return fail(fmt.Sprintf("must be at most %s characters", scalarString(v.Value)))
		}
	case ValidationMinValue:
		n, err := strconv.ParseFloat(answer, 64)
		if err != nil || n < limit {
			return fail(fmt.Sprintf("must be at least %s", scalarString(v.Value)))
		}
	case ValidationMaxValue:
		n, err := strconv.ParseFloat(answer, 64)
		if err != nil || n > limit {
			return fail(fmt.Sprintf("must be at most %s", scalarString(v.Value)))
		}
	case ValidationPattern:
		re, err := regexp.Compile(scalarString(v.Value))
		if err != nil || !re.MatchString(answer) {
			return fail("has an invalid format")
		}
	case ValidationEmail:
		if _, err := mail.ParseAddress(answer); err != nil {
			return fail("must be a valid email address")
		}
	}
	return ""
}

func hasRule(q Question, t ValidationType) bool {
	for _, v := range q.Validations {
		if v.Type == t {
			return true
		}
	}
	return false
}

func ruleMessage(q Question, t ValidationType, def string) string {
	for _, v := range q.Validations {
		if v.Type == t && v.Message != "" {
			return v.Message
		}
	}
	return def
}

func unknownOption(q Question, values []string) string {
	allowed := make(map[string]struct{}, len(q.Options))
	for _, o := range q.Options {
		allowed[o.Value] = struct{}{}
	}
	for _, v := range values {
		if _, ok := allowed[v]; !ok {
			return v
		}
	}
	return ""
}
