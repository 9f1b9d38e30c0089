package model

import (
	"time"

	"github.com/google/uuid"
)

// DefaultPassPercentage is applied when a test is created without one.
const DefaultPassPercentage = 60

// Test represents a named, timed collection of questions.
type Test struct {
	ID               uuid.UUID `json:"id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	DurationMinutes  int       `json:"duration_minutes"`
	ShuffleQuestions bool      `json:"shuffle_questions"`
	PassPercentage   int       `json:"pass_percentage"`
	QuestionCount    int       `json:"question_count"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// CreateTestRequest is the payload for creating a new test.
type CreateTestRequest struct {
	Title            string `json:"title" binding:"required,min=1,max=255"`
	Description      string `json:"description" binding:"omitempty,max=2000"`
	DurationMinutes  int    `json:"duration_minutes" binding:"required,min=1,max=480"`
	ShuffleQuestions bool   `json:"shuffle_questions"`
	PassPercentage   *int   `json:"pass_percentage" binding:"omitempty,min=0,max=100"`
}

// UpdateTestRequest is the payload for updating a test's settings.
// Nil fields are left unchanged.
type UpdateTestRequest struct {
	Title            *string `json:"title" binding:"omitempty,min=1,max=255"`
	Description      *string `json:"description" binding:"omitempty,max=2000"`
	DurationMinutes  *int    `json:"duration_minutes" binding:"omitempty,min=1,max=480"`
	ShuffleQuestions *bool   `json:"shuffle_questions"`
	PassPercentage   *int    `json:"pass_percentage" binding:"omitempty,min=0,max=100"`
}

// Apply copies the non-nil fields of the request onto t.
func (r UpdateTestRequest) Apply(t *Test) {
	if r.Title != nil {
		t.Title = *r.Title
	}
	if r.Description != nil {
		t.Description = *r.Description
	}
	if r.DurationMinutes != nil {
		t.DurationMinutes = *r.DurationMinutes
	}
	if r.ShuffleQuestions != nil {
		t.ShuffleQuestions = *r.ShuffleQuestions
	}
	if r.PassPercentage != nil {
		t.PassPercentage = *r.PassPercentage
	}
}

// TestWithQuestions is the author view of a test and its ordered questions.
type TestWithQuestions struct {
	Test
	Questions []Question `json:"questions"`
}

// TestPaper is the Redis-cached payload sent to students (no correct answers).
type TestPaper struct {
	TestID           uuid.UUID            `json:"test_id"`
	Title            string               `json:"title"`
	Description      string               `json:"description"`
	DurationMinutes  int                  `json:"duration_minutes"`
	ShuffleQuestions bool                 `json:"shuffle_questions"`
	TotalMarks       int                  `json:"total_marks"`
	Questions        []QuestionForStudent `json:"questions"`
}

// TestStats aggregates attempt outcomes for one test.
type TestStats struct {
	TestID             uuid.UUID `json:"test_id"`
	TotalAttempts      int       `json:"total_attempts"`
	CompletedAttempts  int       `json:"completed_attempts"`
	CompletionRate     float64   `json:"completion_rate"`
	AverageScore       float64   `json:"average_score"`
	AveragePercentage  float64   `json:"average_percentage"`
	AverageTimeSeconds float64   `json:"average_time_seconds"`
	PassRate           float64   `json:"pass_rate"`
}
