package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/testlink-backend/internal/response"
	"github.com/stemsi/testlink-backend/internal/service"
)

// classify maps a service error to a status, code and optional fields.
func classify(err error) (int, response.ErrCode, map[string]string) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, response.ErrValidation, verr.Fields
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, response.ErrNotFound, nil
	case errors.Is(err, service.ErrNoValidQuestions):
		return http.StatusBadRequest, response.ErrNoValidQuestions, nil
	case errors.Is(err, service.ErrUnreadableFile):
		return http.StatusBadRequest, response.ErrUnsupportedFile, nil
	case errors.Is(err, service.ErrFileTooLarge):
		return http.StatusBadRequest, response.ErrFileTooLarge, nil
	case errors.Is(err, service.ErrNoQuestions):
		return http.StatusConflict, response.ErrNoQuestions, nil
	case errors.Is(err, service.ErrAttemptCompleted):
		return http.StatusConflict, response.ErrAttemptCompleted, nil
	case errors.Is(err, service.ErrAttemptInProgress):
		return http.StatusConflict, response.ErrAttemptInProgress, nil
	case errors.Is(err, service.ErrInvalidAnswer):
		return http.StatusBadRequest, response.ErrValidation, map[string]string{"answer": err.Error()}
	case errors.Is(err, service.ErrUnknownQuestion):
		return http.StatusBadRequest, response.ErrValidation, map[string]string{"question_id": err.Error()}
	}
	return http.StatusInternalServerError, response.ErrInternal, nil
}

// failWith writes the envelope for a service error. Unclassified errors are
// logged through the request-scoped logger.
func failWith(c *gin.Context, err error) {
	status, code, fields := classify(err)
	if code == response.ErrInternal {
		zerolog.Ctx(c.Request.Context()).Error().
			Err(err).
			Str("path", c.FullPath()).
			Msg("Request failed")
	}
	if fields != nil {
		response.FailWithFields(c, status, code, fields)
		return
	}
	response.Fail(c, status, code)
}

// paramID parses a UUID path parameter, failing the request when invalid.
func paramID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}
