package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/testlink-backend/internal/model"
)

// QuestionRepository handles question data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

const questionColumns = `id, test_id, question_text, option_a, option_b, option_c, option_d,
	correct_answer, marks, time_limit, "order", created_at`

func scanQuestion(row pgx.Row, q *model.Question) error {
	return row.Scan(&q.ID, &q.TestID, &q.QuestionText, &q.OptionA, &q.OptionB, &q.OptionC, &q.OptionD,
		&q.CorrectAnswer, &q.Marks, &q.TimeLimit, &q.Order, &q.CreatedAt)
}

// ListByTest retrieves all questions of a test ordered by order, ties broken
// by insertion.
func (r *QuestionRepository) ListByTest(ctx context.Context, testID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+questionColumns+`
		 FROM questions WHERE test_id = $1
		 ORDER BY "order", seq`, testID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := scanQuestion(rows, &q); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// CreateBatch inserts all inputs for a test in one transaction. Each row's
// order is its 1-based position in inputs. Nothing is inserted if any row
// fails.
func (r *QuestionRepository) CreateBatch(ctx context.Context, testID uuid.UUID, inputs []model.QuestionInput) ([]model.Question, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for i, in := range inputs {
		batch.Queue(
			`INSERT INTO questions (test_id, question_text, option_a, option_b, option_c, option_d,
			                        correct_answer, marks, time_limit, "order")
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 RETURNING `+questionColumns,
			testID, in.QuestionText, in.OptionA, in.OptionB, in.OptionC, in.OptionD,
			in.CorrectAnswer, in.Marks, in.TimeLimit, i+1,
		)
	}

	br := tx.SendBatch(ctx, batch)
	created := make([]model.Question, len(inputs))
	for i := range inputs {
		if err := scanQuestion(br.QueryRow(), &created[i]); err != nil {
			br.Close()
			return nil, fmt.Errorf("insert question %d: %w", i+1, err)
		}
	}
	if err := br.Close(); err != nil {
		return nil, fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return created, nil
}
