package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stemsi/testlink-backend/internal/ingest"
	"github.com/stemsi/testlink-backend/internal/model"
)

const sampleCSV = `Question,Option A,Option B,Option C,Option D,Correct Answer,Marks,Time Limit
What is 2+2?,3,4,5,6,B,1,30
"Capital of France, Europe",Paris,Rome,Berlin,Madrid,a,,
Broken row,only,three
`

func TestImportCSV(t *testing.T) {
	f := newFixture()
	test, _ := f.store.seed(30, false)

	res, err := f.qs.Import(context.Background(), test.ID, "questions.csv", []byte(sampleCSV))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Count != 2 {
		t.Fatalf("Count = %d, want 2", res.Count)
	}

	second := res.Questions[1]
	if second.QuestionText != "Capital of France, Europe" {
		t.Errorf("QuestionText = %q", second.QuestionText)
	}
	if second.CorrectAnswer != "A" {
		t.Errorf("CorrectAnswer = %q, want A", second.CorrectAnswer)
	}
	if second.Marks != 1 || second.TimeLimit != nil {
		t.Errorf("defaults = %d/%v, want 1/nil", second.Marks, second.TimeLimit)
	}
	if second.Order != 2 {
		t.Errorf("Order = %d, want 2", second.Order)
	}
	if f.papers.invalidations != 1 {
		t.Errorf("invalidations = %d, want 1", f.papers.invalidations)
	}
}

func TestImportErrors(t *testing.T) {
	f := newFixture()
	test, _ := f.store.seed(30, false)
	ctx := context.Background()

	tests := []struct {
		name     string
		testID   uuid.UUID
		filename string
		data     []byte
		want     error
	}{
		{"header only", test.ID, "q.csv", []byte("Question,Option A\n"), ErrNoValidQuestions},
		{"empty text", test.ID, "q.txt", []byte("\n\n"), ErrNoValidQuestions},
		{"bad workbook", test.ID, "q.xlsx", []byte("not a zip"), ErrUnreadableFile},
		{"too large", test.ID, "q.csv", []byte(strings.Repeat("x", 2<<20)), ErrFileTooLarge},
		{"missing test", uuid.New(), "q.csv", []byte(sampleCSV), ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.qs.Import(ctx, tt.testID, tt.filename, tt.data)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if n := len(f.store.questions[test.ID]); n != 0 {
		t.Errorf("%d questions stored after failures", n)
	}
}

func TestBulkCreateRejectsWholeBatch(t *testing.T) {
	f := newFixture()
	test, _ := f.store.seed(30, false)

	valid := model.QuestionInput{QuestionText: "Q", OptionA: "a", OptionB: "b", OptionC: "c", OptionD: "d", CorrectAnswer: "c"}
	invalid := valid
	invalid.CorrectAnswer = "E"

	_, err := f.qs.BulkCreate(context.Background(), test.ID, []model.QuestionInput{valid, invalid})

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want *ValidationError", err)
	}
	if _, ok := verr.Fields["2.correct_answer"]; !ok {
		t.Errorf("fields = %v, want key 2.correct_answer", verr.Fields)
	}
	if n := len(f.store.questions[test.ID]); n != 0 {
		t.Errorf("%d questions stored, want 0", n)
	}
}

func TestImportRejectsLetterOutsideAToD(t *testing.T) {
	f := newFixture()
	test, _ := f.store.seed(30, false)

	csv := "Question,Option A,Option B,Option C,Option D,Correct Answer,Marks,Time Limit\n" +
		"First,a,b,c,d,A,1,\n" +
		"Second,a,b,c,d,E,1,\n"
	_, err := f.qs.Import(context.Background(), test.ID, "questions.csv", []byte(csv))

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want *ValidationError", err)
	}
	if _, ok := verr.Fields["2.correct_answer"]; !ok {
		t.Errorf("fields = %v, want key 2.correct_answer", verr.Fields)
	}
	if n := len(f.store.questions[test.ID]); n != 0 {
		t.Errorf("%d questions stored, want 0", n)
	}
}

func TestBulkCreateNormalizes(t *testing.T) {
	f := newFixture()
	test, _ := f.store.seed(30, false)

	in := model.QuestionInput{QuestionText: "  Q  ", OptionA: "a", OptionB: "b", OptionC: "c", OptionD: "d", CorrectAnswer: " d "}
	res, err := f.qs.BulkCreate(context.Background(), test.ID, []model.QuestionInput{in})
	if err != nil {
		t.Fatalf("BulkCreate: %v", err)
	}
	q := res.Questions[0]
	if q.QuestionText != "Q" || q.CorrectAnswer != "D" || q.Marks != 1 {
		t.Errorf("question = %q/%q/%d", q.QuestionText, q.CorrectAnswer, q.Marks)
	}
}

func TestTemplateFormats(t *testing.T) {
	f := newFixture()

	tests := []struct {
		format   ingest.Format
		filename string
	}{
		{ingest.FormatCSV, "questions-template.csv"},
		{ingest.FormatText, "questions-template.txt"},
		{ingest.FormatWorkbook, "questions-template.xlsx"},
	}
	for _, tt := range tests {
		data, contentType, filename, err := f.qs.Template(tt.format)
		if err != nil {
			t.Fatalf("Template(%v): %v", tt.format, err)
		}
		if filename != tt.filename || contentType == "" {
			t.Errorf("Template(%v) = %q %q", tt.format, filename, contentType)
		}
		records, err := ingest.Parse(data, filename)
		if err != nil || len(records) == 0 {
			t.Errorf("template %s does not parse: %v", filename, err)
		}
	}
}
