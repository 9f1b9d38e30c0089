package model

import (
	"time"

	"github.com/google/uuid"
)

// Question represents a single multiple-choice question.
type Question struct {
	ID            uuid.UUID `json:"id"`
	TestID        uuid.UUID `json:"test_id"`
	QuestionText  string    `json:"question_text"`
	OptionA       string    `json:"option_a"`
	OptionB       string    `json:"option_b"`
	OptionC       string    `json:"option_c"`
	OptionD       string    `json:"option_d"`
	CorrectAnswer string    `json:"correct_answer"`
	Marks         int       `json:"marks"`
	TimeLimit     *int      `json:"time_limit"`
	Order         int       `json:"order"`
	CreatedAt     time.Time `json:"created_at"`
}

// Option returns the text of the option with the given letter.
func (q Question) Option(letter string) (string, bool) {
	switch letter {
	case "A":
		return q.OptionA, true
	case "B":
		return q.OptionB, true
	case "C":
		return q.OptionC, true
	case "D":
		return q.OptionD, true
	}
	return "", false
}

// ForStudent strips the correct answer.
func (q Question) ForStudent() QuestionForStudent {
	return QuestionForStudent{
		ID:           q.ID,
		QuestionText: q.QuestionText,
		OptionA:      q.OptionA,
		OptionB:      q.OptionB,
		OptionC:      q.OptionC,
		OptionD:      q.OptionD,
		Marks:        q.Marks,
		TimeLimit:    q.TimeLimit,
		Order:        q.Order,
	}
}

// QuestionForStudent is a question without the correct answer, sent to students.
type QuestionForStudent struct {
	ID           uuid.UUID `json:"id"`
	QuestionText string    `json:"question_text"`
	OptionA      string    `json:"option_a"`
	OptionB      string    `json:"option_b"`
	OptionC      string    `json:"option_c"`
	OptionD      string    `json:"option_d"`
	Marks        int       `json:"marks"`
	TimeLimit    *int      `json:"time_limit"`
	Order        int       `json:"order"`
}

// QuestionInput is one question to be inserted, from JSON or a parsed file.
// Order is assigned from the position in the batch.
type QuestionInput struct {
	QuestionText  string `json:"question_text" binding:"required,max=2000"`
	OptionA       string `json:"option_a" binding:"required,max=1000"`
	OptionB       string `json:"option_b" binding:"required,max=1000"`
	OptionC       string `json:"option_c" binding:"required,max=1000"`
	OptionD       string `json:"option_d" binding:"required,max=1000"`
	CorrectAnswer string `json:"correct_answer" binding:"required,oneof=A B C D"`
	Marks         int    `json:"marks" binding:"min=1"`
	TimeLimit     *int   `json:"time_limit" binding:"omitempty,min=1"`
}

// BulkCreateQuestionsRequest is the payload for adding questions in bulk.
// Struct-level validation is deferred to the service so that defaults can be
// applied and errors carry the record position.
type BulkCreateQuestionsRequest struct {
	Questions []QuestionInput `json:"questions" binding:"required,min=1"`
}

// ImportResult is returned after a file upload or bulk create.
type ImportResult struct {
	Count     int        `json:"count"`
	Questions []Question `json:"questions"`
}
