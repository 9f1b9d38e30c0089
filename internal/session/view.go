package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/testlink-backend/internal/model"
)

// QuestionView is one question as rendered for the student. Correctness
// fields are filled only after completion.
type QuestionView struct {
	model.QuestionForStudent
	Position      int     `json:"position"`
	Selected      *string `json:"selected"`
	Flagged       bool    `json:"flagged"`
	CorrectAnswer string  `json:"correct_answer,omitempty"`
	IsCorrect     *bool   `json:"is_correct,omitempty"`
}

// View is a read-only snapshot of a session.
type View struct {
	AttemptID        uuid.UUID            `json:"attempt_id"`
	TestID           uuid.UUID            `json:"test_id"`
	Title            string               `json:"title"`
	State            State                `json:"state"`
	ReadOnly         bool                 `json:"read_only"`
	DurationMinutes  int                  `json:"duration_minutes"`
	RemainingSeconds int                  `json:"remaining_seconds"`
	StartedAt        time.Time            `json:"started_at"`
	Cursor           int                  `json:"cursor"`
	Total            int                  `json:"total"`
	Answered         int                  `json:"answered"`
	Questions        []QuestionView       `json:"questions"`
	Result           *model.AttemptResult `json:"result,omitempty"`
}

// View renders the session. Once completed the view is read-only and every
// question carries its correct answer and whether the selection matched.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	completed := s.state == Completed
	v := View{
		AttemptID:        s.attemptID,
		TestID:           s.test.ID,
		Title:            s.test.Title,
		State:            s.state,
		ReadOnly:         completed,
		DurationMinutes:  s.test.DurationMinutes,
		RemainingSeconds: max(0, s.remainingLocked()),
		StartedAt:        s.startedAt,
		Cursor:           s.cursor,
		Total:            len(s.questions),
		Answered:         len(s.answers),
		Questions:        make([]QuestionView, len(s.questions)),
		Result:           s.result,
	}
	if completed {
		v.RemainingSeconds = 0
	}

	for i, q := range s.questions {
		qv := QuestionView{
			QuestionForStudent: q.ForStudent(),
			Position:           i + 1,
			Flagged:            s.flagged[q.ID],
		}
		if letter, ok := s.answers[q.ID]; ok {
			qv.Selected = &letter
		}
		if completed {
			correct := qv.Selected != nil && *qv.Selected == q.CorrectAnswer
			qv.CorrectAnswer = q.CorrectAnswer
			qv.IsCorrect = &correct
		}
		v.Questions[i] = qv
	}
	return v
}
