package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/testlink-backend/internal/model"
)

// AttemptRepository handles test attempt data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

const attemptColumns = `id, test_id, student_name, answers, score, total_marks, time_taken,
	is_completed, question_order, started_at, submitted_at`

func scanAttempt(row pgx.Row, a *model.Attempt) error {
	var answers, order []byte
	if err := row.Scan(&a.ID, &a.TestID, &a.StudentName, &answers, &a.Score, &a.TotalMarks, &a.TimeTaken,
		&a.IsCompleted, &order, &a.StartedAt, &a.SubmittedAt); err != nil {
		return err
	}
	if err := json.Unmarshal(answers, &a.Answers); err != nil {
		return fmt.Errorf("decode answers: %w", err)
	}
	if err := json.Unmarshal(order, &a.QuestionOrder); err != nil {
		return fmt.Errorf("decode question order: %w", err)
	}
	return nil
}

// Create inserts a new attempt with zeroed answers and score. a.ID must be
// set by the caller; started_at is filled from the database.
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) error {
	order, err := json.Marshal(a.QuestionOrder)
	if err != nil {
		return fmt.Errorf("encode question order: %w", err)
	}
	a.Answers = map[string]string{}

	return r.pool.QueryRow(ctx,
		`INSERT INTO test_attempts (id, test_id, student_name, answers, question_order)
		 VALUES ($1, $2, $3, '{}'::jsonb, $4)
		 RETURNING started_at`,
		a.ID, a.TestID, a.StudentName, order,
	).Scan(&a.StartedAt)
}

// GetByID retrieves an attempt by its UUID.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM test_attempts WHERE id = $1`, id), a)
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

// Complete writes the final result and stamps submitted_at. It only touches
// attempts that are still open, so a second completion gets
// ErrAlreadyCompleted.
func (r *AttemptRepository) Complete(ctx context.Context, id uuid.UUID, res model.AttemptResult) (*model.Attempt, error) {
	answers, err := json.Marshal(res.Answers)
	if err != nil {
		return nil, fmt.Errorf("encode answers: %w", err)
	}

	a := &model.Attempt{}
	err = scanAttempt(r.pool.QueryRow(ctx,
		`UPDATE test_attempts
		 SET answers = $2, score = $3, total_marks = $4, time_taken = $5,
		     is_completed = TRUE, submitted_at = NOW()
		 WHERE id = $1 AND is_completed = FALSE
		 RETURNING `+attemptColumns,
		id, answers, res.Score, res.TotalMarks, res.TimeTaken), a)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAlreadyCompleted
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListByTest returns one page of a test's attempts, newest first.
func (r *AttemptRepository) ListByTest(ctx context.Context, testID uuid.UUID, limit, offset int) ([]model.Attempt, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM test_attempts WHERE test_id = $1`, testID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+` FROM test_attempts
		 WHERE test_id = $1
		 ORDER BY started_at DESC
		 LIMIT $2 OFFSET $3`, testID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	attempts, err := collectAttempts(rows)
	return attempts, total, err
}

// ListCompletedByTest returns every completed attempt of a test in
// submission order.
func (r *AttemptRepository) ListCompletedByTest(ctx context.Context, testID uuid.UUID) ([]model.Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+` FROM test_attempts
		 WHERE test_id = $1 AND is_completed = TRUE
		 ORDER BY submitted_at`, testID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAttempts(rows)
}

// ListOverdue returns open attempts whose test duration plus grace has
// passed, oldest first. A non-nil after resumes the scan past that attempt.
func (r *AttemptRepository) ListOverdue(ctx context.Context, grace time.Duration, after *model.OverdueCursor, limit int) ([]model.Attempt, error) {
	var afterStart, afterID any
	if after != nil {
		afterStart, afterID = after.StartedAt, after.ID
	}

	rows, err := r.pool.Query(ctx,
		`SELECT a.id, a.test_id, a.student_name, a.answers, a.score, a.total_marks, a.time_taken,
		        a.is_completed, a.question_order, a.started_at, a.submitted_at
		 FROM test_attempts a
		 JOIN tests t ON t.id = a.test_id
		 WHERE a.is_completed = FALSE
		   AND a.started_at + make_interval(mins => t.duration_minutes, secs => $1) < NOW()
		   AND ($2::timestamptz IS NULL OR (a.started_at, a.id) > ($2::timestamptz, $3::uuid))
		 ORDER BY a.started_at, a.id
		 LIMIT $4`, grace.Seconds(), afterStart, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAttempts(rows)
}

// AttemptAggregates are the raw sums behind a test's statistics.
type AttemptAggregates struct {
	Total          int
	Completed      int
	Passed         int
	AvgScore       float64
	AvgPercentage  float64
	AvgTimeSeconds float64
}

// Aggregates summarises a test's attempts. An attempt passes when its
// percentage reaches passPercentage.
func (r *AttemptRepository) Aggregates(ctx context.Context, testID uuid.UUID, passPercentage int) (AttemptAggregates, error) {
	var agg AttemptAggregates
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE is_completed),
		        COUNT(*) FILTER (WHERE is_completed AND total_marks > 0
		                           AND score * 100 >= $2 * total_marks),
		        COALESCE(AVG(score) FILTER (WHERE is_completed), 0)::float8,
		        COALESCE(AVG(score * 100.0 / NULLIF(total_marks, 0)) FILTER (WHERE is_completed), 0)::float8,
		        COALESCE(AVG(time_taken) FILTER (WHERE is_completed), 0)::float8
		 FROM test_attempts WHERE test_id = $1`, testID, passPercentage,
	).Scan(&agg.Total, &agg.Completed, &agg.Passed, &agg.AvgScore, &agg.AvgPercentage, &agg.AvgTimeSeconds)
	return agg, err
}

func collectAttempts(rows pgx.Rows) ([]model.Attempt, error) {
	var attempts []model.Attempt
	for rows.Next() {
		var a model.Attempt
		if err := scanAttempt(rows, &a); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}
