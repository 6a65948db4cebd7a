package catalog

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

// marksEpsilon absorbs float rounding when summing question marks.
const marksEpsilon = 1e-9

// Normalize fills the derived totals when the catalog left them empty.
func Normalize(q *model.Quiz) {
	if q.TotalQuestions == 0 {
		q.TotalQuestions = len(q.Questions)
	}
	if q.MaxMarks == 0 {
		for _, qq := range q.Questions {
			q.MaxMarks += qq.Marks
		}
	}
}

// Validate checks the struct tags and the cross-field rules of a quiz.
func Validate(q *model.Quiz) error {
	if err := validator.Struct(q); err != nil {
		return err
	}

	seen := make(map[string]bool, len(q.Questions))
	var total float64
	for i, qq := range q.Questions {
		if seen[qq.ID] {
			return fmt.Errorf("question %d: duplicate id %q", i, qq.ID)
		}
		seen[qq.ID] = true
		total += qq.Marks

		if err := validateAnswer(qq); err != nil {
			return fmt.Errorf("question %q: %w", qq.ID, err)
		}
	}

	if q.TotalQuestions != len(q.Questions) {
		return fmt.Errorf("total_questions is %d but %d questions supplied", q.TotalQuestions, len(q.Questions))
	}
	if math.Abs(q.MaxMarks-total) > marksEpsilon {
		return fmt.Errorf("max_marks is %g but questions sum to %g", q.MaxMarks, total)
	}
	if q.PassingMarks > q.MaxMarks {
		return fmt.Errorf("passing_marks %g exceeds max_marks %g", q.PassingMarks, q.MaxMarks)
	}
	return nil
}

func validateAnswer(q model.Question) error {
	answer := strings.TrimSpace(q.CorrectAnswer)
	switch q.Type {
	case model.QuestionTypeSingleChoice:
		if len(q.Options) < 2 {
			return fmt.Errorf("single choice needs at least 2 options")
		}
		for _, opt := range q.Options {
			if strings.TrimSpace(opt) == answer {
				return nil
			}
		}
		return fmt.Errorf("correct answer %q is not an option", answer)
	case model.QuestionTypeTrueFalse:
		if _, err := strconv.ParseBool(strings.ToLower(answer)); err != nil {
			return fmt.Errorf("correct answer %q is not a boolean", answer)
		}
	case model.QuestionTypeNumeric:
		if _, err := strconv.ParseFloat(answer, 64); err != nil {
			return fmt.Errorf("correct answer %q is not a number", answer)
		}
	}
	return nil
}
