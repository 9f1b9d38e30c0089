package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/testlink-backend/internal/ingest"
	"github.com/stemsi/testlink-backend/internal/model"
	"github.com/stemsi/testlink-backend/internal/validator"
)

// QuestionService handles question import and bulk creation.
type QuestionService struct {
	tests          TestStore
	questions      QuestionStore
	testService    *TestService
	maxUploadBytes int64
	log            zerolog.Logger
}

// NewQuestionService creates a new QuestionService.
func NewQuestionService(tests TestStore, questions QuestionStore, testService *TestService, maxUploadBytes int64, log zerolog.Logger) *QuestionService {
	return &QuestionService{
		tests:          tests,
		questions:      questions,
		testService:    testService,
		maxUploadBytes: maxUploadBytes,
		log:            log.With().Str("component", "question_service").Logger(),
	}
}

// MaxUploadBytes is the largest accepted upload.
func (s *QuestionService) MaxUploadBytes() int64 { return s.maxUploadBytes }

// ListByTest retrieves the ordered questions of a test.
func (s *QuestionService) ListByTest(ctx context.Context, testID uuid.UUID) ([]model.Question, error) {
	if _, err := s.tests.GetByID(ctx, testID); err != nil {
		return nil, fmt.Errorf("get test: %w", err)
	}
	qs, err := s.questions.ListByTest(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if qs == nil {
		qs = []model.Question{}
	}
	return qs, nil
}

// BulkCreate validates every input and inserts them all, or none. The first
// invalid input aborts the batch with a *ValidationError whose field names
// carry the 1-based position.
func (s *QuestionService) BulkCreate(ctx context.Context, testID uuid.UUID, inputs []model.QuestionInput) (*model.ImportResult, error) {
	if _, err := s.tests.GetByID(ctx, testID); err != nil {
		return nil, fmt.Errorf("get test: %w", err)
	}

	for i := range inputs {
		normalizeInput(&inputs[i])
		if fields := validator.StructAt(i, inputs[i]); fields != nil {
			return nil, &ValidationError{Fields: fields}
		}
	}

	created, err := s.questions.CreateBatch(ctx, testID, inputs)
	if err != nil {
		return nil, fmt.Errorf("create questions: %w", err)
	}
	s.testService.InvalidatePaper(ctx, testID)

	s.log.Info().Str("test_id", testID.String()).Int("count", len(created)).Msg("Questions created")
	return &model.ImportResult{Count: len(created), Questions: created}, nil
}

// Import parses an uploaded file and inserts its questions. Rows the parser
// cannot use are skipped; a file with none left yields ErrNoValidQuestions.
func (s *QuestionService) Import(ctx context.Context, testID uuid.UUID, filename string, data []byte) (*model.ImportResult, error) {
	if int64(len(data)) > s.maxUploadBytes {
		return nil, ErrFileTooLarge
	}

	records, err := ingest.Parse(data, filename)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", ingest.DetectFormat(filename), err)
	}

	inputs := make([]model.QuestionInput, len(records))
	for i, r := range records {
		inputs[i] = model.QuestionInput{
			QuestionText:  r.QuestionText,
			OptionA:       r.OptionA,
			OptionB:       r.OptionB,
			OptionC:       r.OptionC,
			OptionD:       r.OptionD,
			CorrectAnswer: r.CorrectAnswer,
			Marks:         r.Marks,
			TimeLimit:     r.TimeLimit,
		}
	}

	s.log.Debug().
		Str("test_id", testID.String()).
		Str("filename", filename).
		Int("records", len(records)).
		Msg("Upload parsed")

	return s.BulkCreate(ctx, testID, inputs)
}

// Template returns a sample upload file for the given format.
func (s *QuestionService) Template(format ingest.Format) (data []byte, contentType, filename string, err error) {
	switch format {
	case ingest.FormatText:
		return ingest.TextTemplate(), "text/plain; charset=utf-8", "questions-template.txt", nil
	case ingest.FormatWorkbook:
		wb, werr := ingest.WorkbookTemplate()
		if werr != nil {
			return nil, "", "", fmt.Errorf("build workbook template: %w", werr)
		}
		return wb, XLSXContentType, "questions-template.xlsx", nil
	default:
		return ingest.CSVTemplate(), "text/csv; charset=utf-8", "questions-template.csv", nil
	}
}

func normalizeInput(in *model.QuestionInput) {
	in.QuestionText = strings.TrimSpace(in.QuestionText)
	in.OptionA = strings.TrimSpace(in.OptionA)
	in.OptionB = strings.TrimSpace(in.OptionB)
	in.OptionC = strings.TrimSpace(in.OptionC)
	in.OptionD = strings.TrimSpace(in.OptionD)
	in.CorrectAnswer = strings.ToUpper(strings.TrimSpace(in.CorrectAnswer))
	if in.Marks == 0 {
		in.Marks = ingest.DefaultMarks
	}
}
