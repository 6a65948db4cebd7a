// Package catalog resolves quiz identifiers into quiz definitions. Postgres
// is the source of truth; Redis holds a hot copy of each quiz payload.
package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// Repository handles quiz data access.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetQuiz loads a quiz with its questions and instructions.
// Returns pgx.ErrNoRows when the quiz does not exist.
func (r *Repository) GetQuiz(ctx context.Context, quizID string) (*model.Quiz, error) {
	q := &model.Quiz{}
	err := r.pool.QueryRow(ctx,
		`SELECT quiz_id, title, duration_minutes, passing_marks, total_questions, max_marks
		 FROM quizzes WHERE quiz_id = $1`, quizID,
	).Scan(&q.QuizID, &q.Title, &q.DurationMinutes, &q.PassingMarks, &q.TotalQuestions, &q.MaxMarks)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT question_id, type, text, options, correct_answer, marks, tolerance
		 FROM quiz_questions WHERE quiz_id = $1 ORDER BY position`, quizID)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var qq model.Question
		if err := rows.Scan(&qq.ID, &qq.Type, &qq.Text, &qq.Options,
			&qq.CorrectAnswer, &qq.Marks, &qq.Tolerance); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		q.Questions = append(q.Questions, qq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	instr, err := r.pool.Query(ctx,
		`SELECT body FROM quiz_instructions WHERE quiz_id = $1 ORDER BY position`, quizID)
	if err != nil {
		return nil, fmt.Errorf("query instructions: %w", err)
	}
	q.Instructions, err = pgx.CollectRows(instr, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect instructions: %w", err)
	}

	return q, nil
}

// ListQuizIDs returns every quiz ID, used for cache prewarming.
func (r *Repository) ListQuizIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT quiz_id FROM quizzes ORDER BY quiz_id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// Upsert replaces a quiz and all of its children in one transaction.
func (r *Repository) Upsert(ctx context.Context, q *model.Quiz) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO quizzes (quiz_id, title, duration_minutes, passing_marks, total_questions, max_marks)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (quiz_id) DO UPDATE SET
		     title = EXCLUDED.title,
		     duration_minutes = EXCLUDED.duration_minutes,
		     passing_marks = EXCLUDED.passing_marks,
		     total_questions = EXCLUDED.total_questions,
		     max_marks = EXCLUDED.max_marks,
		     updated_at = NOW()`,
		q.QuizID, q.Title, q.DurationMinutes, q.PassingMarks, q.TotalQuestions, q.MaxMarks)
	if err != nil {
		return fmt.Errorf("upsert quiz: %w", err)
	}

	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM quiz_questions WHERE quiz_id = $1`, q.QuizID)
	batch.Queue(`DELETE FROM quiz_instructions WHERE quiz_id = $1`, q.QuizID)
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("clear children: %w", err)
	}

	questionRows := make([][]any, len(q.Questions))
	for i, qq := range q.Questions {
		options := qq.Options
		if options == nil {
			options = []string{}
		}
		questionRows[i] = []any{q.QuizID, qq.ID, i, string(qq.Type), qq.Text, options, qq.CorrectAnswer, qq.Marks, qq.Tolerance}
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"quiz_questions"},
		[]string{"quiz_id", "question_id", "position", "type", "text", "options", "correct_answer", "marks", "tolerance"},
		pgx.CopyFromRows(questionRows),
	); err != nil {
		return fmt.Errorf("copy questions: %w", err)
	}

	instructionRows := make([][]any, len(q.Instructions))
	for i, body := range q.Instructions {
		instructionRows[i] = []any{q.QuizID, i, body}
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"quiz_instructions"},
		[]string{"quiz_id", "position", "body"},
		pgx.CopyFromRows(instructionRows),
	); err != nil {
		return fmt.Errorf("copy instructions: %w", err)
	}

	return tx.Commit(ctx)
}
