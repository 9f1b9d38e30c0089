package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/testlink-backend/internal/model"
)

// TestRepository handles test data access.
type TestRepository struct {
	pool *pgxpool.Pool
}

// NewTestRepository creates a new TestRepository.
func NewTestRepository(pool *pgxpool.Pool) *TestRepository {
	return &TestRepository{pool: pool}
}

const testColumns = `t.id, t.title, t.description, t.duration_minutes, t.shuffle_questions,
	t.pass_percentage, (SELECT COUNT(*) FROM questions q WHERE q.test_id = t.id),
	t.created_at, t.updated_at`

func scanTest(row pgx.Row, t *model.Test) error {
	return row.Scan(&t.ID, &t.Title, &t.Description, &t.DurationMinutes, &t.ShuffleQuestions,
		&t.PassPercentage, &t.QuestionCount, &t.CreatedAt, &t.UpdatedAt)
}

// Create inserts a new test and fills its generated fields.
func (r *TestRepository) Create(ctx context.Context, t *model.Test) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO tests (title, description, duration_minutes, shuffle_questions, pass_percentage)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at, updated_at`,
		t.Title, t.Description, t.DurationMinutes, t.ShuffleQuestions, t.PassPercentage,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
}

// GetByID retrieves a test by its UUID.
func (r *TestRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Test, error) {
	t := &model.Test{}
	err := scanTest(r.pool.QueryRow(ctx,
		`SELECT `+testColumns+` FROM tests t WHERE t.id = $1`, id), t)
	if err != nil {
		return nil, notFound(err)
	}
	return t, nil
}

// List returns one page of tests, newest first, with the total count.
func (r *TestRepository) List(ctx context.Context, limit, offset int) ([]model.Test, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tests`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+testColumns+` FROM tests t
		 ORDER BY t.created_at DESC
		 LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	tests := make([]model.Test, 0, limit)
	for rows.Next() {
		var t model.Test
		if err := scanTest(rows, &t); err != nil {
			return nil, 0, err
		}
		tests = append(tests, t)
	}
	return tests, total, rows.Err()
}

// Update writes the editable fields of t.
func (r *TestRepository) Update(ctx context.Context, t *model.Test) error {
	err := r.pool.QueryRow(ctx,
		`UPDATE tests
		 SET title = $2, description = $3, duration_minutes = $4,
		     shuffle_questions = $5, pass_percentage = $6, updated_at = NOW()
		 WHERE id = $1
		 RETURNING updated_at`,
		t.ID, t.Title, t.Description, t.DurationMinutes, t.ShuffleQuestions, t.PassPercentage,
	).Scan(&t.UpdatedAt)
	return notFound(err)
}

// Delete removes a test; questions and attempts cascade.
func (r *TestRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tests WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Duplicate copies a test and its questions in one transaction. The copy's
// title is the original's plus titleSuffix.
func (r *TestRepository) Duplicate(ctx context.Context, id uuid.UUID, titleSuffix string) (*model.Test, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var newID uuid.UUID
	err = tx.QueryRow(ctx,
		`INSERT INTO tests (title, description, duration_minutes, shuffle_questions, pass_percentage)
		 SELECT title || $2, description, duration_minutes, shuffle_questions, pass_percentage
		 FROM tests WHERE id = $1
		 RETURNING id`, id, titleSuffix,
	).Scan(&newID)
	if err != nil {
		return nil, notFound(err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO questions (test_id, question_text, option_a, option_b, option_c, option_d,
		                        correct_answer, marks, time_limit, "order")
		 SELECT $2, question_text, option_a, option_b, option_c, option_d,
		        correct_answer, marks, time_limit, "order"
		 FROM questions WHERE test_id = $1
		 ORDER BY "order", seq`, id, newID,
	); err != nil {
		return nil, fmt.Errorf("copy questions: %w", err)
	}

	t := &model.Test{}
	if err := scanTest(tx.QueryRow(ctx,
		`SELECT `+testColumns+` FROM tests t WHERE t.id = $1`, newID), t); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return t, nil
}
