package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/testlink-backend/internal/model"
	"github.com/stemsi/testlink-backend/internal/response"
)

// DuplicateSuffix is appended to the title of a duplicated test.
const DuplicateSuffix = " (Copy)"

// TestService handles test business logic and the student paper cache.
type TestService struct {
	tests     TestStore
	questions QuestionStore
	attempts  AttemptStore
	papers    PaperStore
	log       zerolog.Logger
}

// NewTestService creates a new TestService.
func NewTestService(tests TestStore, questions QuestionStore, attempts AttemptStore, papers PaperStore, log zerolog.Logger) *TestService {
	return &TestService{
		tests:     tests,
		questions: questions,
		attempts:  attempts,
		papers:    papers,
		log:       log.With().Str("component", "test_service").Logger(),
	}
}

// Create inserts a new test.
func (s *TestService) Create(ctx context.Context, req model.CreateTestRequest) (*model.Test, error) {
	t := &model.Test{
		Title:            req.Title,
		Description:      req.Description,
		DurationMinutes:  req.DurationMinutes,
		ShuffleQuestions: req.ShuffleQuestions,
		PassPercentage:   model.DefaultPassPercentage,
	}
	if req.PassPercentage != nil {
		t.PassPercentage = *req.PassPercentage
	}

	if err := s.tests.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("create test: %w", err)
	}
	s.log.Info().Str("test_id", t.ID.String()).Str("title", t.Title).Msg("Test created")
	return t, nil
}

// Get retrieves a test by its UUID.
func (s *TestService) Get(ctx context.Context, id uuid.UUID) (*model.Test, error) {
	t, err := s.tests.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get test: %w", err)
	}
	return t, nil
}

// List retrieves tests with pagination.
func (s *TestService) List(ctx context.Context, page, perPage int) ([]model.Test, *response.Pagination, error) {
	page, perPage, limit, offset := pageBounds(page, perPage)

	tests, total, err := s.tests.List(ctx, limit, offset)
	if err != nil {
		return nil, nil, fmt.Errorf("list tests: %w", err)
	}
	if tests == nil {
		tests = []model.Test{}
	}
	return tests, response.NewPagination(page, perPage, total), nil
}

// Update applies the request to a test and drops its cached paper.
func (s *TestService) Update(ctx context.Context, id uuid.UUID, req model.UpdateTestRequest) (*model.Test, error) {
	t, err := s.tests.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get test: %w", err)
	}

	req.Apply(t)
	if err := s.tests.Update(ctx, t); err != nil {
		return nil, fmt.Errorf("update test: %w", err)
	}
	s.InvalidatePaper(ctx, id)
	return t, nil
}

// Delete removes a test with its questions and attempts.
func (s *TestService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.tests.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete test: %w", err)
	}
	s.InvalidatePaper(ctx, id)
	s.log.Info().Str("test_id", id.String()).Msg("Test deleted")
	return nil
}

// Duplicate copies a test and its questions under a suffixed title.
func (s *TestService) Duplicate(ctx context.Context, id uuid.UUID) (*model.Test, error) {
	t, err := s.tests.Duplicate(ctx, id, DuplicateSuffix)
	if err != nil {
		return nil, fmt.Errorf("duplicate test: %w", err)
	}
	s.log.Info().Str("source_id", id.String()).Str("test_id", t.ID.String()).Msg("Test duplicated")
	return t, nil
}

// WithQuestions returns a test and its ordered questions, answers included.
func (s *TestService) WithQuestions(ctx context.Context, id uuid.UUID) (*model.TestWithQuestions, error) {
	t, err := s.tests.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get test: %w", err)
	}
	qs, err := s.questions.ListByTest(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if qs == nil {
		qs = []model.Question{}
	}
	return &model.TestWithQuestions{Test: *t, Questions: qs}, nil
}

// Paper returns the student-facing paper, served from Redis when cached.
// Cache failures fall back to the database.
func (s *TestService) Paper(ctx context.Context, id uuid.UUID) (*model.TestPaper, error) {
	if p, ok, err := s.papers.Get(ctx, id); err != nil {
		s.log.Warn().Err(err).Str("test_id", id.String()).Msg("Paper cache read failed")
	} else if ok {
		return p, nil
	}

	full, err := s.WithQuestions(ctx, id)
	if err != nil {
		return nil, err
	}
	p := BuildPaper(full.Test, full.Questions)

	if err := s.papers.Set(ctx, p); err != nil {
		s.log.Warn().Err(err).Str("test_id", id.String()).Msg("Paper cache write failed")
	}
	return p, nil
}

// BuildPaper strips answers from questions.
func BuildPaper(t model.Test, qs []model.Question) *model.TestPaper {
	p := &model.TestPaper{
		TestID:           t.ID,
		Title:            t.Title,
		Description:      t.Description,
		DurationMinutes:  t.DurationMinutes,
		ShuffleQuestions: t.ShuffleQuestions,
		Questions:        make([]model.QuestionForStudent, len(qs)),
	}
	for i, q := range qs {
		p.Questions[i] = q.ForStudent()
		p.TotalMarks += q.Marks
	}
	return p
}

// InvalidatePaper drops a test's cached paper. Failures are logged only.
func (s *TestService) InvalidatePaper(ctx context.Context, id uuid.UUID) {
	if err := s.papers.Invalidate(ctx, id); err != nil {
		s.log.Warn().Err(err).Str("test_id", id.String()).Msg("Paper cache invalidation failed")
	}
}

// Stats summarises a test's attempts. Rates and averages are percentages
// or means over completed attempts.
func (s *TestService) Stats(ctx context.Context, id uuid.UUID) (*model.TestStats, error) {
	t, err := s.tests.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get test: %w", err)
	}

	agg, err := s.attempts.Aggregates(ctx, id, t.PassPercentage)
	if err != nil {
		return nil, fmt.Errorf("aggregate attempts: %w", err)
	}

	stats := &model.TestStats{
		TestID:             id,
		TotalAttempts:      agg.Total,
		CompletedAttempts:  agg.Completed,
		AverageScore:       agg.AvgScore,
		AveragePercentage:  agg.AvgPercentage,
		AverageTimeSeconds: agg.AvgTimeSeconds,
	}
	if agg.Total > 0 {
		stats.CompletionRate = float64(agg.Completed) / float64(agg.Total) * 100
	}
	if agg.Completed > 0 {
		stats.PassRate = float64(agg.Passed) / float64(agg.Completed) * 100
	}
	return stats, nil
}
