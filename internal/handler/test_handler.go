package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/testlink-backend/internal/model"
	"github.com/stemsi/testlink-backend/internal/response"
	"github.com/stemsi/testlink-backend/internal/service"
	"github.com/stemsi/testlink-backend/internal/validator"
)

// TestHandler handles test authoring endpoints.
type TestHandler struct {
	tests    TestManager
	attempts AttemptRunner
	exports  ResultExporter
}

// NewTestHandler creates a new TestHandler.
func NewTestHandler(tests TestManager, attempts AttemptRunner, exports ResultExporter) *TestHandler {
	return &TestHandler{
		tests:    tests,
		attempts: attempts,
		exports:  exports,
	}
}

// ListTests godoc
// GET /api/v1/tests
// Lists tests with pagination, newest first.
func (h *TestHandler) ListTests(c *gin.Context) {
	page, perPage := pageQuery(c)

	tests, pagination, err := h.tests.List(c.Request.Context(), page, perPage)
	if err != nil {
		failWith(c, err)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"tests": tests}, pagination)
}

// CreateTest godoc
// POST /api/v1/tests
// Creates a test. pass_percentage defaults to 60.
func (h *TestHandler) CreateTest(c *gin.Context) {
	var req model.CreateTestRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	test, err := h.tests.Create(c.Request.Context(), req)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Created(c, gin.H{"test": test})
}

// GetTest godoc
// GET /api/v1/tests/:id
// Returns a single test.
func (h *TestHandler) GetTest(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	test, err := h.tests.Get(c.Request.Context(), id)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"test": test})
}

// UpdateTest godoc
// PUT /api/v1/tests/:id
// Updates test settings. Omitted fields keep their value.
func (h *TestHandler) UpdateTest(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req model.UpdateTestRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	test, err := h.tests.Update(c.Request.Context(), id, req)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"test": test})
}

// DeleteTest godoc
// DELETE /api/v1/tests/:id
// Deletes a test with its questions and attempts.
func (h *TestHandler) DeleteTest(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := h.tests.Delete(c.Request.Context(), id); err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "test deleted"})
}

// DuplicateTest godoc
// POST /api/v1/tests/:id/duplicate
// Copies a test and its questions.
func (h *TestHandler) DuplicateTest(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	test, err := h.tests.Duplicate(c.Request.Context(), id)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Created(c, gin.H{"test": test})
}

// GetStats godoc
// GET /api/v1/tests/:id/stats
// Returns attempt statistics for a test.
func (h *TestHandler) GetStats(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	stats, err := h.tests.Stats(c.Request.Context(), id)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"stats": stats})
}

// GetWithQuestions godoc
// GET /api/v1/tests/:id/with-questions
// Returns a test and its questions including correct answers.
func (h *TestHandler) GetWithQuestions(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	test, err := h.tests.WithQuestions(c.Request.Context(), id)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"test": test})
}

// ListAttempts godoc
// GET /api/v1/tests/:id/attempts
// Lists attempts for a test with pagination.
func (h *TestHandler) ListAttempts(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	page, perPage := pageQuery(c)

	attempts, pagination, err := h.attempts.ListByTest(c.Request.Context(), id, page, perPage)
	if err != nil {
		failWith(c, err)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"attempts": attempts}, pagination)
}

// ExportResults godoc
// GET /api/v1/tests/:id/results/export
// Downloads completed attempts as an .xlsx workbook.
func (h *TestHandler) ExportResults(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	data, filename, err := h.exports.ResultsWorkbook(c.Request.Context(), id)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Attachment(c, filename, service.XLSXContentType, data)
}

func pageQuery(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "10"))
	return page, perPage
}
