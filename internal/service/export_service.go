package service

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/testlink-backend/internal/model"
	"github.com/xuri/excelize/v2"
)

// XLSXContentType is the MIME type of generated workbooks.
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const (
	resultsSheet   = "Results"
	questionsSheet = "Questions"
)

var resultsHeader = []string{
	"Student", "Score", "Total Marks", "Percentage", "Passed", "Time Taken (s)", "Started At", "Submitted At",
}

var questionsHeader = []string{
	"Order", "Question", "Correct Answer", "Marks", "Answered", "Correct", "Correct Rate (%)",
}

// ExportService builds result workbooks for authors.
type ExportService struct {
	tests     TestStore
	questions QuestionStore
	attempts  AttemptStore
	log       zerolog.Logger
}

// NewExportService creates a new ExportService.
func NewExportService(tests TestStore, questions QuestionStore, attempts AttemptStore, log zerolog.Logger) *ExportService {
	return &ExportService{
		tests:     tests,
		questions: questions,
		attempts:  attempts,
		log:       log.With().Str("component", "export_service").Logger(),
	}
}

// ResultsWorkbook returns an .xlsx file with one row per completed attempt
// and a per-question breakdown, plus a suggested filename.
func (s *ExportService) ResultsWorkbook(ctx context.Context, testID uuid.UUID) ([]byte, string, error) {
	t, err := s.tests.GetByID(ctx, testID)
	if err != nil {
		return nil, "", fmt.Errorf("get test: %w", err)
	}
	qs, err := s.questions.ListByTest(ctx, testID)
	if err != nil {
		return nil, "", fmt.Errorf("list questions: %w", err)
	}
	attempts, err := s.attempts.ListCompletedByTest(ctx, testID)
	if err != nil {
		return nil, "", fmt.Errorf("list attempts: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), resultsSheet); err != nil {
		return nil, "", fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeRow(f, resultsSheet, 1, toCells(resultsHeader)); err != nil {
		return nil, "", err
	}
	for i, a := range attempts {
		if err := writeRow(f, resultsSheet, i+2, resultRow(*t, a)); err != nil {
			return nil, "", err
		}
	}

	if _, err := f.NewSheet(questionsSheet); err != nil {
		return nil, "", fmt.Errorf("add sheet: %w", err)
	}
	if err := writeRow(f, questionsSheet, 1, toCells(questionsHeader)); err != nil {
		return nil, "", err
	}
	for i, row := range questionRows(qs, attempts) {
		if err := writeRow(f, questionsSheet, i+2, row); err != nil {
			return nil, "", err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, "", fmt.Errorf("write workbook: %w", err)
	}

	s.log.Info().Str("test_id", testID.String()).Int("attempts", len(attempts)).Msg("Results exported")
	return buf.Bytes(), exportFilename(t.Title), nil
}

func resultRow(t model.Test, a model.Attempt) []interface{} {
	name := "Anonymous"
	if a.StudentName != nil && *a.StudentName != "" {
		name = *a.StudentName
	}
	pct := a.Percentage()
	passed := "No"
	if pct >= float64(t.PassPercentage) {
		passed = "Yes"
	}
	submitted := ""
	if a.SubmittedAt != nil {
		submitted = a.SubmittedAt.UTC().Format(time.RFC3339)
	}
	return []interface{}{
		name, a.Score, a.TotalMarks, roundPct(pct), passed, a.TimeTaken,
		a.StartedAt.UTC().Format(time.RFC3339), submitted,
	}
}

func questionRows(qs []model.Question, attempts []model.Attempt) [][]interface{} {
	rows := make([][]interface{}, len(qs))
	for i, q := range qs {
		id := q.ID.String()
		answered, correct := 0, 0
		for _, a := range attempts {
			if ans, ok := a.Answers[id]; ok {
				answered++
				if ans == q.CorrectAnswer {
					correct++
				}
			}
		}
		rate := 0.0
		if len(attempts) > 0 {
			rate = float64(correct) / float64(len(attempts)) * 100
		}
		rows[i] = []interface{}{q.Order, q.QuestionText, q.CorrectAnswer, q.Marks, answered, correct, roundPct(rate)}
	}
	return rows
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("cell name: %w", err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func toCells(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func roundPct(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}

func exportFilename(title string) string {
	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '-'
		}
	}, title)
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "test"
	}
	return slug + "-results.xlsx"
}
