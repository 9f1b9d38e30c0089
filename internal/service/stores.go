package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/testlink-backend/internal/model"
	"github.com/stemsi/testlink-backend/internal/repository"
)

// TestStore is the persistence used for tests.
type TestStore interface {
	Create(ctx context.Context, t *model.Test) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Test, error)
	List(ctx context.Context, limit, offset int) ([]model.Test, int, error)
	Update(ctx context.Context, t *model.Test) error
	Delete(ctx context.Context, id uuid.UUID) error
	Duplicate(ctx context.Context, id uuid.UUID, titleSuffix string) (*model.Test, error)
}

// QuestionStore is the persistence used for questions.
type QuestionStore interface {
	ListByTest(ctx context.Context, testID uuid.UUID) ([]model.Question, error)
	CreateBatch(ctx context.Context, testID uuid.UUID, inputs []model.QuestionInput) ([]model.Question, error)
}

// AttemptStore is the persistence used for attempts.
type AttemptStore interface {
	Create(ctx context.Context, a *model.Attempt) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error)
	Complete(ctx context.Context, id uuid.UUID, res model.AttemptResult) (*model.Attempt, error)
	ListByTest(ctx context.Context, testID uuid.UUID, limit, offset int) ([]model.Attempt, int, error)
	ListCompletedByTest(ctx context.Context, testID uuid.UUID) ([]model.Attempt, error)
	ListOverdue(ctx context.Context, grace time.Duration, after *model.OverdueCursor, limit int) ([]model.Attempt, error)
	Aggregates(ctx context.Context, testID uuid.UUID, passPercentage int) (repository.AttemptAggregates, error)
}

// PaperStore caches student papers.
type PaperStore interface {
	Get(ctx context.Context, testID uuid.UUID) (*model.TestPaper, bool, error)
	Set(ctx context.Context, p *model.TestPaper) error
	Invalidate(ctx context.Context, testID uuid.UUID) error
}

// SessionStore mirrors live attempt state.
type SessionStore interface {
	SaveStart(ctx context.Context, attemptID string, startedAt time.Time) error
	Start(ctx context.Context, attemptID string) (time.Time, bool, error)
	SaveAnswer(ctx context.Context, attemptID, questionID, letter string) error
	Answers(ctx context.Context, attemptID string) (map[string]string, error)
	SetFlag(ctx context.Context, attemptID, questionID string, flagged bool) error
	Flags(ctx context.Context, attemptID string) ([]string, error)
	SaveCursor(ctx context.Context, attemptID string, cursor int) error
	Cursor(ctx context.Context, attemptID string) (int, error)
	Clear(ctx context.Context, attemptID string) error
}

var (
	_ TestStore     = (*repository.TestRepository)(nil)
	_ QuestionStore = (*repository.QuestionRepository)(nil)
	_ AttemptStore  = (*repository.AttemptRepository)(nil)
	_ PaperStore    = (*repository.PaperCache)(nil)
	_ SessionStore  = (*repository.SessionCache)(nil)
)

// pageBounds clamps paging input and returns limit and offset.
func pageBounds(page, perPage int) (int, int, int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}
	return page, perPage, perPage, (page - 1) * perPage
}
