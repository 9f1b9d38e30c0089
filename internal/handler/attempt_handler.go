package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/testlink-backend/internal/model"
	"github.com/stemsi/testlink-backend/internal/response"
	"github.com/stemsi/testlink-backend/internal/validator"
)

// AttemptHandler handles share-link and attempt endpoints.
type AttemptHandler struct {
	tests    TestManager
	attempts AttemptRunner
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(tests TestManager, attempts AttemptRunner) *AttemptHandler {
	return &AttemptHandler{
		tests:    tests,
		attempts: attempts,
	}
}

// GetPaper godoc
// GET /api/v1/public/tests/:id
// Returns the student paper behind a share link, without correct answers.
func (h *AttemptHandler) GetPaper(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	paper, err := h.tests.Paper(c.Request.Context(), id)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"test": paper})
}

// StartAttempt godoc
// POST /api/v1/public/tests/:id/attempts
// Starts an attempt and returns its token and initial state. The body is
// optional.
func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	testID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req model.StartAttemptRequest
	if c.Request.ContentLength != 0 {
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
	}

	result, err := h.attempts.Start(c.Request.Context(), testID, req.StudentName)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Created(c, result)
}

// GetState godoc
// GET /api/v1/attempts/:id/state
// Returns the current view of an attempt.
func (h *AttemptHandler) GetState(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	view, err := h.attempts.State(c.Request.Context(), id)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"state": view})
}

// Answer godoc
// PUT /api/v1/attempts/:id/answers/:question_id
// Records the selected option for a question.
func (h *AttemptHandler) Answer(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	questionID, ok := paramID(c, "question_id")
	if !ok {
		return
	}

	var req model.AnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	view, err := h.attempts.Answer(c.Request.Context(), id, questionID, req.Answer)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"state": view})
}

// Navigate godoc
// POST /api/v1/attempts/:id/navigate
// Moves to the next, previous or a given question.
func (h *AttemptHandler) Navigate(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req model.NavigateRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	view, err := h.attempts.Navigate(c.Request.Context(), id, req)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"state": view})
}

// ToggleFlag godoc
// POST /api/v1/attempts/:id/flags/:question_id
// Marks or unmarks a question for review.
func (h *AttemptHandler) ToggleFlag(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	questionID, ok := paramID(c, "question_id")
	if !ok {
		return
	}

	view, err := h.attempts.ToggleFlag(c.Request.Context(), id, questionID)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"state": view})
}

// Submit godoc
// POST /api/v1/attempts/:id/submit
// Grades and completes the attempt.
func (h *AttemptHandler) Submit(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	attempt, err := h.attempts.Submit(c.Request.Context(), id)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"attempt":    attempt,
		"percentage": attempt.Percentage(),
	})
}

// Review godoc
// GET /api/v1/attempts/:id/review
// Returns the read-only view of a completed attempt with correct answers.
func (h *AttemptHandler) Review(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	view, err := h.attempts.Review(c.Request.Context(), id)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"review": view})
}

// GetAttempt godoc
// GET /api/v1/attempts/:id
// Returns the stored attempt for the test author.
func (h *AttemptHandler) GetAttempt(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	attempt, err := h.attempts.Get(c.Request.Context(), id)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}
