// Package scoring computes the 0-100 automation readiness score from the
// flat business questionnaire.
package scoring

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	maxToolBonus    = 5
	pointsPerItem   = 2
	maxItemsPoints  = 10
	normalizeDivide = 20.0

	weightKnowledge  = 0.4
	weightNeeds      = 0.25
	weightComplexity = 0.2
	weightReadiness  = 0.15
)

var experienceBands = map[string]int{"none": 0, "basic": 3, "moderate": 6, "advanced": 10}
var companySizeBands = map[string]int{"solo": 2, "small": 5, "medium": 8, "large": 10}
var documentVolumeBands = map[string]int{"low": 3, "medium": 6, "high": 10}
var timelineBands = map[string]int{"immediate": 10, "1-3mo": 7, "3-6mo": 4, "6mo+": 2}
var budgetBands = map[string]int{"<5k": 3, "5-15k": 6, "15-50k": 8, "50k+": 10}

type Answers struct {
	AutomationExperience string   `json:"automation_experience"`
	CurrentTools         []string `json:"current_tools"`
	PainPoints           []string `json:"pain_points"`
	AutomationNeeds      []string `json:"automation_needs"`
	CompanySize          string   `json:"company_size"`
	DocumentVolume       string   `json:"document_volume"`
	Timeline             string   `json:"timeline"`
	BudgetRange          string   `json:"budget_range"`
}

type Result struct {
	Knowledge  int     `json:"knowledge"`
	Needs      int     `json:"needs"`
	Complexity int     `json:"complexity"`
	Readiness  int     `json:"readiness"`
	Weighted   float64 `json:"weighted"`
	Score      int     `json:"score"`
}

func Score(a Answers) int {
	return Breakdown(a).Score
}

func Breakdown(a Answers) Result {
	res := Result{
		Knowledge:  band(experienceBands, a.AutomationExperience) + min(len(a.CurrentTools), maxToolBonus),
		Needs:      min(pointsPerItem*len(a.PainPoints), maxItemsPoints) + min(pointsPerItem*len(a.AutomationNeeds), maxItemsPoints),
		Complexity: band(companySizeBands, a.CompanySize) + band(documentVolumeBands, a.DocumentVolume),
		Readiness:  band(timelineBands, a.Timeline) + band(budgetBands, a.BudgetRange),
	}
	res.Weighted = weightKnowledge*float64(res.Knowledge) +
		weightNeeds*float64(res.Needs) +
		weightComplexity*float64(res.Complexity) +
		weightReadiness*float64(res.Readiness)

	final := int(math.Round(res.Weighted / normalizeDivide * 100))
	res.Score = max(0, min(100, final))
	return res
}

// Tier buckets a score for lead qualification.
func Tier(score int) string {
	switch {
	case score >= 70:
		return "high"
	case score >= 40:
		return "medium"
	default:
		return "low"
	}
}

// AnswersFromMap reads the questionnaire fields out of a submitted answer
// map. Absent or mistyped fields stay zero and score nothing.
func AnswersFromMap(m map[string]any) Answers {
	return Answers{
		AutomationExperience: str(m["automation_experience"]),
		CurrentTools:         list(m["current_tools"]),
		PainPoints:           list(m["pain_points"]),
		AutomationNeeds:      list(m["automation_needs"]),
		CompanySize:          str(m["company_size"]),
		DocumentVolume:       str(m["document_volume"]),
		Timeline:             str(m["timeline"]),
		BudgetRange:          str(m["budget_range"]),
	}
}

// HasReadinessFields reports whether any questionnaire field is present.
func HasReadinessFields(m map[string]any) bool {
	for _, k := range []string{"automation_experience", "company_size", "document_volume", "timeline", "budget_range"} {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}

func band(bands map[string]int, v string) int {
	return bands[strings.ToLower(strings.TrimSpace(v))]
}

func str(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return ""
	}
}

func list(v any) []string {
	switch t := v.(type) {
	case []string:
		return nonEmpty(t)
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			switch x := item.(type) {
			case string:
				out = append(out, x)
			case float64:
				out = append(out, strconv.FormatFloat(x, 'f', -1, 64))
			}
		}
		return nonEmpty(out)
	case string:
		if strings.TrimSpace(t) == "" {
			return nil
		}
		return nonEmpty(strings.Split(t, ","))
	default:
		return nil
	}
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
