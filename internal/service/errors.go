package service

import (
	"errors"

	"github.com/stemsi/testlink-backend/internal/ingest"
	"github.com/stemsi/testlink-backend/internal/repository"
)

// Domain Errors
var (
	ErrNotFound          = repository.ErrNotFound
	ErrNoQuestions       = errors.New("test has no questions")
	ErrNoValidQuestions  = ingest.ErrNoValidQuestions
	ErrUnreadableFile    = ingest.ErrUnreadableFile
	ErrFileTooLarge      = errors.New("file exceeds upload limit")
	ErrAttemptCompleted  = errors.New("attempt already completed")
	ErrAttemptInProgress = errors.New("attempt still in progress")
	ErrInvalidAnswer     = errors.New("answer must be one of A, B, C, D")
	ErrUnknownQuestion   = errors.New("question is not part of this attempt")
)

// ValidationError carries field messages for a rejected batch.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return "validation failed"
}
