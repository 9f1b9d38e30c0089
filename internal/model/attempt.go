package model

import (
	"time"

	"github.com/google/uuid"
)

// Attempt is one student's timed run through a test.
type Attempt struct {
	ID            uuid.UUID         `json:"id"`
	TestID        uuid.UUID         `json:"test_id"`
	StudentName   *string           `json:"student_name"`
	Answers       map[string]string `json:"answers"`
	Score         int               `json:"score"`
	TotalMarks    int               `json:"total_marks"`
	TimeTaken     int               `json:"time_taken"`
	IsCompleted   bool              `json:"is_completed"`
	QuestionOrder []uuid.UUID       `json:"question_order"`
	StartedAt     time.Time         `json:"started_at"`
	SubmittedAt   *time.Time        `json:"submitted_at"`
}

// Percentage returns score as a share of total marks, 0..100.
func (a Attempt) Percentage() float64 {
	if a.TotalMarks == 0 {
		return 0
	}
	return float64(a.Score) / float64(a.TotalMarks) * 100
}

// OverdueCursor marks the last attempt a sweep looked at. Overdue attempts
// are scanned in (started_at, id) order.
type OverdueCursor struct {
	StartedAt time.Time
	ID        uuid.UUID
}

// AttemptResult holds the final values written when an attempt completes.
type AttemptResult struct {
	Answers    map[string]string `json:"answers"`
	Score      int               `json:"score"`
	TotalMarks int               `json:"total_marks"`
	TimeTaken  int               `json:"time_taken"`
}

// StartAttemptRequest is the payload for starting an attempt from a share link.
type StartAttemptRequest struct {
	StudentName string `json:"student_name" binding:"omitempty,max=100"`
}

// AnswerRequest records one selected option.
type AnswerRequest struct {
	Answer string `json:"answer" binding:"required,oneof=A B C D a b c d"`
}

// NavigateAction enumerates cursor movements.
type NavigateAction string

const (
	NavigateNext NavigateAction = "next"
	NavigatePrev NavigateAction = "prev"
	NavigateGoTo NavigateAction = "goto"
)

// NavigateRequest moves the attempt's cursor.
type NavigateRequest struct {
	Action NavigateAction `json:"action" binding:"required,oneof=next prev goto"`
	Index  int            `json:"index" binding:"min=0"`
}
