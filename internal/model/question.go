package model

// QuestionType enumerates the supported question kinds.
type QuestionType string

const (
	QuestionTypeSingleChoice QuestionType = "single_choice"
	QuestionTypeNumeric      QuestionType = "numeric"
	QuestionTypeTrueFalse    QuestionType = "true_false"
)

// Question is a single quiz item as supplied by the catalog. Immutable.
type Question struct {
	ID            string       `json:"id" yaml:"id" validate:"required"`
	Type          QuestionType `json:"type" yaml:"type" validate:"required,oneof=single_choice numeric true_false"`
	Text          string       `json:"text" yaml:"text"`
	Options       []string     `json:"options,omitempty" yaml:"options,omitempty"`
	CorrectAnswer string       `json:"correct_answer" yaml:"correct_answer" validate:"required"`
	Marks         float64      `json:"marks" yaml:"marks" validate:"gt=0"`
	// Tolerance is the accepted absolute error for numeric questions.
	Tolerance float64 `json:"tolerance,omitempty" yaml:"tolerance,omitempty" validate:"gte=0"`
}

// QuestionForTaker is a question without its correct answer.
type QuestionForTaker struct {
	ID      string       `json:"id"`
	Type    QuestionType `json:"type"`
	Text    string       `json:"text"`
	Options []string     `json:"options,omitempty"`
	Marks   float64      `json:"marks"`
}
