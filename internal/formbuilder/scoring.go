package formbuilder

import "math"

// Score returns the points one answer earns under the question's scoring
// rule. Unanswered questions and questions without scoring earn nothing.
func (q Question) Score(answer any) float64 {
	sc := q.Scoring
	if sc == nil {
		return 0
	}
	values := answerStrings(answer)
	if len(values) == 0 {
		return 0
	}

	switch sc.ScoreType {
	case ScoreByOptions:
		total := 0.0
		for _, v := range values {
			if pts, ok := sc.OptionScores[v]; ok {
				total += pts
				continue
			}
			total += sc.DefaultScore
		}
		return total
	case ScoreByValue:
		if len(values) == 1 {
			if n, ok := toFloat(values[0]); ok {
				return n
			}
		}
		return sc.DefaultScore
	default:
		return 0
	}
}

// ScoreAnswers totals the points earned by the visible questions.
func ScoreAnswers(visible []Question, answers map[string]any) int {
	total := 0.0
	for _, q := range visible {
		total += q.Score(answers[q.ID])
	}
	return int(math.Round(total))
}
