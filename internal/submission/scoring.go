// Package submission turns a finished session into its immutable report:
// grading, analytics, the security-event hash chain and the report signature.
package submission

import (
	"math"
	"strconv"
	"strings"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// Grade is the outcome of scoring an answer sheet.
type Grade struct {
	Obtained   float64
	Total      float64
	Correct    int
	Percentage float64
}

// Correct reports whether answer earns the question's marks.
// Unparseable answers are simply wrong.
func Correct(q model.Question, answer string) bool {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return false
	}

	switch q.Type {
	case model.QuestionTypeTrueFalse:
		got, err := parseBool(answer)
		if err != nil {
			return false
		}
		want, err := parseBool(q.CorrectAnswer)
		return err == nil && got == want
	case model.QuestionTypeNumeric:
		got, err := strconv.ParseFloat(answer, 64)
		if err != nil {
			return false
		}
		want, err := strconv.ParseFloat(strings.TrimSpace(q.CorrectAnswer), 64)
		if err != nil {
			return false
		}
		return math.Abs(got-want) <= q.Tolerance
	default:
		return answer == strings.TrimSpace(q.CorrectAnswer)
	}
}

func parseBool(s string) (bool, error) {
	return strconv.ParseBool(strings.ToLower(strings.TrimSpace(s)))
}

// Score grades answers against every question of the quiz.
func Score(questions []model.Question, answers map[string]string) Grade {
	var g Grade
	for _, q := range questions {
		g.Total += q.Marks
		if ans, ok := answers[q.ID]; ok && Correct(q, ans) {
			g.Obtained += q.Marks
			g.Correct++
		}
	}
	if g.Total > 0 {
		g.Percentage = g.Obtained * 100 / g.Total
	}
	return g
}
