package handler

import (
	"context"

	"github.com/google/uuid"
	"github.com/stemsi/testlink-backend/internal/ingest"
	"github.com/stemsi/testlink-backend/internal/model"
	"github.com/stemsi/testlink-backend/internal/response"
	"github.com/stemsi/testlink-backend/internal/service"
	"github.com/stemsi/testlink-backend/internal/session"
)

// TestManager is the test authoring surface.
type TestManager interface {
	Create(ctx context.Context, req model.CreateTestRequest) (*model.Test, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Test, error)
	List(ctx context.Context, page, perPage int) ([]model.Test, *response.Pagination, error)
	Update(ctx context.Context, id uuid.UUID, req model.UpdateTestRequest) (*model.Test, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Duplicate(ctx context.Context, id uuid.UUID) (*model.Test, error)
	WithQuestions(ctx context.Context, id uuid.UUID) (*model.TestWithQuestions, error)
	Paper(ctx context.Context, id uuid.UUID) (*model.TestPaper, error)
	Stats(ctx context.Context, id uuid.UUID) (*model.TestStats, error)
}

// QuestionManager covers question listing and import.
type QuestionManager interface {
	MaxUploadBytes() int64
	ListByTest(ctx context.Context, testID uuid.UUID) ([]model.Question, error)
	BulkCreate(ctx context.Context, testID uuid.UUID, inputs []model.QuestionInput) (*model.ImportResult, error)
	Import(ctx context.Context, testID uuid.UUID, filename string, data []byte) (*model.ImportResult, error)
	Template(format ingest.Format) ([]byte, string, string, error)
}

// AttemptRunner drives attempts.
type AttemptRunner interface {
	Start(ctx context.Context, testID uuid.UUID, studentName string) (*service.StartResult, error)
	State(ctx context.Context, attemptID uuid.UUID) (session.View, error)
	Answer(ctx context.Context, attemptID, questionID uuid.UUID, letter string) (session.View, error)
	Navigate(ctx context.Context, attemptID uuid.UUID, req model.NavigateRequest) (session.View, error)
	ToggleFlag(ctx context.Context, attemptID, questionID uuid.UUID) (session.View, error)
	Submit(ctx context.Context, attemptID uuid.UUID) (*model.Attempt, error)
	Review(ctx context.Context, attemptID uuid.UUID) (session.View, error)
	Get(ctx context.Context, attemptID uuid.UUID) (*model.Attempt, error)
	ListByTest(ctx context.Context, testID uuid.UUID, page, perPage int) ([]model.Attempt, *response.Pagination, error)
	Subscribe(ctx context.Context, attemptID uuid.UUID) (<-chan session.Event, func(), error)
}

// ResultExporter builds result workbooks.
type ResultExporter interface {
	ResultsWorkbook(ctx context.Context, testID uuid.UUID) ([]byte, string, error)
}

var (
	_ TestManager     = (*service.TestService)(nil)
	_ QuestionManager = (*service.QuestionService)(nil)
	_ AttemptRunner   = (*service.AttemptService)(nil)
	_ ResultExporter  = (*service.ExportService)(nil)
)
