package handler

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/testlink-backend/internal/ingest"
	"github.com/stemsi/testlink-backend/internal/model"
	"github.com/stemsi/testlink-backend/internal/response"
	"github.com/stemsi/testlink-backend/internal/validator"
)

// multipartOverhead allows for form boundaries and headers around the file.
const multipartOverhead = 1 << 20

// QuestionHandler handles question endpoints.
type QuestionHandler struct {
	questions QuestionManager
}

// NewQuestionHandler creates a new QuestionHandler.
func NewQuestionHandler(questions QuestionManager) *QuestionHandler {
	return &QuestionHandler{questions: questions}
}

// ListQuestions godoc
// GET /api/v1/tests/:id/questions
// Lists questions of a test in order, including correct answers.
func (h *QuestionHandler) ListQuestions(c *gin.Context) {
	testID, ok := paramID(c, "id")
	if !ok {
		return
	}

	questions, err := h.questions.ListByTest(c.Request.Context(), testID)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"questions": questions})
}

// BulkCreate godoc
// POST /api/v1/tests/:id/questions
// Adds questions from a JSON array. All are inserted or none.
func (h *QuestionHandler) BulkCreate(c *gin.Context) {
	testID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req model.BulkCreateQuestionsRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.questions.BulkCreate(c.Request.Context(), testID, req.Questions)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Created(c, result)
}

// Upload godoc
// POST /api/v1/tests/:id/questions/upload
// Imports questions from a .csv, .txt or .xlsx file in the multipart field
// "file". Rows that cannot be used are skipped.
func (h *QuestionHandler) Upload(c *gin.Context) {
	testID, ok := paramID(c, "id")
	if !ok {
		return
	}

	limit := h.questions.MaxUploadBytes()
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartOverhead)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Fail(c, http.StatusBadRequest, response.ErrFileTooLarge)
			return
		}
		response.Fail(c, http.StatusBadRequest, response.ErrFileRequired)
		return
	}
	defer file.Close()

	if header.Size > limit {
		response.Fail(c, http.StatusBadRequest, response.ErrFileTooLarge)
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		_ = c.Error(err)
		response.Fail(c, http.StatusBadRequest, response.ErrFileRequired)
		return
	}

	result, err := h.questions.Import(c.Request.Context(), testID, header.Filename, data)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Created(c, result)
}

// Template godoc
// GET /api/v1/questions/template?format=csv|txt|xlsx
// Downloads a sample upload file. CSV is the default.
func (h *QuestionHandler) Template(c *gin.Context) {
	format := templateFormat(c.DefaultQuery("format", "csv"))

	data, contentType, filename, err := h.questions.Template(format)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Attachment(c, filename, contentType, data)
}

func templateFormat(s string) ingest.Format {
	switch strings.ToLower(s) {
	case "txt", "text":
		return ingest.FormatText
	case "xlsx":
		return ingest.FormatWorkbook
	default:
		return ingest.FormatCSV
	}
}
