package formbuilder

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// PreviousQuestions lists every question that comes strictly before the
// target in traversal order (sections in order, then questions in order).
// These are the only legal antecedents for the target's conditional logic.
// An unknown target yields nil so no forward reference is ever offered.
func PreviousQuestions(f *Form, sectionID, questionID string) []Question {
	if f == nil {
		return nil
	}
	out := []Question{}
	for _, s := range f.Sections {
		for _, q := range s.Questions {
			if s.ID == sectionID && q.ID == questionID {
				return out
			}
			out = append(out, q)
		}
	}
	return nil
}

// Reference is a condition that points at a question which is missing or
// not earlier than the question that owns the condition.
type Reference struct {
	SectionIndex   int
	QuestionIndex  int
	ConditionIndex int
	QuestionID     string
	TargetID       string
	Reason         string
}

func (r Reference) Pointer() string {
	return fmt.Sprintf("/sections/%d/questions/%d/conditionalLogic/conditions/%d/questionId", r.SectionIndex, r.QuestionIndex, r.ConditionIndex)
}

func DanglingReferences(f *Form) []Reference {
	if f == nil {
		return nil
	}
	position := make(map[string]int, f.QuestionCount())
	n := 0
	for _, s := range f.Sections {
		for _, q := range s.Questions {
			if _, dup := position[q.ID]; !dup {
				position[q.ID] = n
			}
			n++
		}
	}

	var out []Reference
	n = 0
	for si, s := range f.Sections {
		for qi, q := range s.Questions {
			if q.ConditionalLogic != nil {
				for ci, c := range q.ConditionalLogic.Conditions {
					ref := Reference{SectionIndex: si, QuestionIndex: qi, ConditionIndex: ci, QuestionID: q.ID, TargetID: c.QuestionID}
					pos, ok := position[c.QuestionID]
					switch {
					case !ok:
						ref.Reason = "references a question that does not exist"
					case c.QuestionID == q.ID:
						ref.Reason = "cannot reference its own question"
					case pos > n:
						ref.Reason = "must reference an earlier question"
					default:
						continue
					}
					out = append(out, ref)
				}
			}
			n++
		}
	}
	return out
}

type conditionEnv struct {
	Answer    string   `expr:"answer"`
	Answers   []string `expr:"answers"`
	Value     string   `expr:"value"`
	AnswerNum float64  `expr:"answerNum"`
	ValueNum  float64  `expr:"valueNum"`
	Numeric   bool     `expr:"numeric"`
}

var operatorSources = map[Operator]string{
	OpEquals:      `answer == value`,
	OpNotEquals:   `answer != value`,
	OpContains:    `value != "" && (value in answers || answer contains value)`,
	OpNotContains: `!(value != "" && (value in answers || answer contains value))`,
	OpGreaterThan: `numeric && answerNum > valueNum`,
	OpLessThan:    `numeric && answerNum < valueNum`,
}

var operatorPrograms = compileOperators()

func compileOperators() map[Operator]*vm.Program {
	out := make(map[Operator]*vm.Program, len(operatorSources))
	for op, src := range operatorSources {
		program, err := expr.Compile(src, expr.Env(conditionEnv{}), expr.AsBool())
		if err != nil {
			panic(fmt.Sprintf("compile %s condition: %v", op, err))
		}
		out[op] = program
	}
	return out
}

func (op Operator) Valid() bool {
	_, ok := operatorSources[op]
	return ok
}

// Matches evaluates one condition against the answer given to its
// referenced question. A missing answer is the empty string.
func (c Condition) Matches(answer any) (bool, error) {
	program, ok := operatorPrograms[c.Operator]
	if !ok {
		return false, fmt.Errorf("unknown operator %q", c.Operator)
	}

	answers := answerStrings(answer)
	env := conditionEnv{
		Answer:  strings.Join(answers, ","),
		Answers: answers,
		Value:   scalarString(c.Value),
	}
	an, aok := toFloat(env.Answer)
	vn, vok := toFloat(env.Value)
	env.AnswerNum, env.ValueNum, env.Numeric = an, vn, aok && vok

	out, err := expr.Run(program, env)
	if err != nil {
		return false, err
	}
	result, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("condition did not return a boolean")
	}
	return result, nil
}

// IsVisible applies the question's conditional logic. Questions without
// logic, or with an empty condition list, are always visible.
func IsVisible(q Question, answers map[string]any) (bool, error) {
	cl := q.ConditionalLogic
	if cl == nil || len(cl.Conditions) == 0 {
		return true, nil
	}

	matched := cl.ConditionRelation != RelationOr
	for _, c := range cl.Conditions {
		ok, err := c.Matches(answers[c.QuestionID])
		if err != nil {
			return false, fmt.Errorf("question %s: %w", q.ID, err)
		}
		if cl.ConditionRelation == RelationOr {
			if ok {
				matched = true
				break
			}
			continue
		}
		if !ok {
			matched = false
			break
		}
	}

	if cl.LogicType == LogicHide {
		return !matched, nil
	}
	return matched, nil
}

// VisibleQuestions walks the form in traversal order. Answers to hidden
// questions are ignored by the questions that follow them.
func VisibleQuestions(f *Form, answers map[string]any) ([]Question, error) {
	effective := make(map[string]any, len(answers))
	var out []Question
	for _, s := range f.Sections {
		for _, q := range s.Questions {
			visible, err := IsVisible(q, effective)
			if err != nil {
				return nil, err
			}
			if !visible {
				continue
			}
			if v, ok := answers[q.ID]; ok {
				effective[q.ID] = v
			}
			out = append(out, q)
		}
	}
	return out, nil
}

func answerStrings(v any) []string {
	switch t := v.(type) {
	case nil:
		return []string{}
	case []string:
		return append([]string{}, t...)
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, scalarString(item))
		}
		return out
	default:
		s := scalarString(t)
		if s == "" {
			return []string{}
		}
		return []string{s}
	}
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func toFloat(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}
