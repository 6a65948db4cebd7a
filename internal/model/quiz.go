package model

// Quiz is the input contract handed over by the quiz catalog.
type Quiz struct {
	QuizID          string     `json:"quiz_id" yaml:"quiz_id" validate:"required"`
	Title           string     `json:"title" yaml:"title" validate:"required"`
	Questions       []Question `json:"questions" yaml:"questions" validate:"required,min=1,dive"`
	DurationMinutes int        `json:"duration" yaml:"duration" validate:"required,min=1,max=480"`
	PassingMarks    float64    `json:"passing_marks" yaml:"passing_marks" validate:"gte=0"`
	TotalQuestions  int        `json:"total_questions" yaml:"total_questions"`
	MaxMarks        float64    `json:"max_marks" yaml:"max_marks"`
	Instructions    []string   `json:"instructions" yaml:"instructions"`
}

// DurationSeconds returns the exam time budget in seconds.
func (q *Quiz) DurationSeconds() int {
	return q.DurationMinutes * 60
}

// QuestionIndex returns the position of the question with the given ID, or -1.
func (q *Quiz) QuestionIndex(id string) int {
	for i := range q.Questions {
		if q.Questions[i].ID == id {
			return i
		}
	}
	return -1
}

// PaperForTaker strips correct answers from the question list.
func (q *Quiz) PaperForTaker() []QuestionForTaker {
	out := make([]QuestionForTaker, len(q.Questions))
	for i, qq := range q.Questions {
		out[i] = QuestionForTaker{
			ID:      qq.ID,
			Type:    qq.Type,
			Text:    qq.Text,
			Options: qq.Options,
			Marks:   qq.Marks,
		}
	}
	return out
}
