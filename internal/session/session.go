// Package session drives one student's timed attempt at a test.
//
// A Session moves NotStarted → InProgress → Completed. The question order is
// fixed when the session starts and is used for both display and grading.
// Start and Submit each hand exactly one persistence callback to the caller,
// run while the session lock is held; if the callback fails the session keeps
// its previous state.
package session

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/testlink-backend/internal/model"
)

var (
	ErrNotStarted      = errors.New("session not started")
	ErrAlreadyStarted  = errors.New("session already started")
	ErrCompleted       = errors.New("session completed")
	ErrUnknownQuestion = errors.New("question not in session")
	ErrInvalidAnswer   = errors.New("answer must be one of A, B, C, D")
	ErrNoQuestions     = errors.New("test has no questions")
	ErrOrderMismatch   = errors.New("no stored question remains")
)

// State is the lifecycle position of a session.
type State int

const (
	NotStarted State = iota
	InProgress
	Completed
)

func (s State) String() string {
	switch s {
	case InProgress:
		return "in_progress"
	case Completed:
		return "completed"
	default:
		return "not_started"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Session is the explicit context of one attempt.
type Session struct {
	mu sync.Mutex

	test      model.Test
	questions []model.Question
	index     map[uuid.UUID]int

	attemptID uuid.UUID
	state     State
	startedAt time.Time
	cursor    int
	answers   map[uuid.UUID]string
	flagged   map[uuid.UUID]bool
	result    *model.AttemptResult
	done      chan struct{}

	now func() time.Time
	rng *rand.Rand
}

// Option configures a Session.
type Option func(*Session)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithRand sets the source used for shuffling.
func WithRand(r *rand.Rand) Option {
	return func(s *Session) { s.rng = r }
}

// New builds a NotStarted session over the test's questions in their stored
// order. The slice is copied.
func New(test model.Test, questions []model.Question, opts ...Option) *Session {
	s := &Session{
		test:      test,
		questions: slices.Clone(questions),
		answers:   make(map[uuid.UUID]string),
		flagged:   make(map[uuid.UUID]bool),
		done:      make(chan struct{}),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	s.reindex()
	return s
}

// Snapshot is the persisted part of an in-progress session.
type Snapshot struct {
	AttemptID uuid.UUID
	Order     []uuid.UUID
	StartedAt time.Time
	Answers   map[uuid.UUID]string
	Flagged   []uuid.UUID
	Cursor    int
	// Result is set for an attempt that already completed; the restored
	// session is then Completed.
	Result *model.AttemptResult
}

// Restore rebuilds a session from a snapshot, e.g. after a restart. It is
// InProgress unless snap.Result is set. snap.Order decides the questions
// and their order: stored ids that no longer exist are dropped and
// questions added to the test afterwards are ignored.
func Restore(test model.Test, questions []model.Question, snap Snapshot, opts ...Option) (*Session, error) {
	byID := make(map[uuid.UUID]model.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	ordered := make([]model.Question, 0, len(snap.Order))
	for _, id := range snap.Order {
		if q, ok := byID[id]; ok {
			ordered = append(ordered, q)
		}
	}
	if len(ordered) == 0 && snap.Result == nil {
		return nil, fmt.Errorf("restore %s: %w", snap.AttemptID, ErrOrderMismatch)
	}

	s := New(test, ordered, opts...)
	s.attemptID = snap.AttemptID
	s.state = InProgress
	s.startedAt = snap.StartedAt
	s.cursor = clamp(snap.Cursor, len(s.questions))
	for id, letter := range snap.Answers {
		if _, ok := s.index[id]; ok && validLetter(letter) {
			s.answers[id] = letter
		}
	}
	for _, id := range snap.Flagged {
		if _, ok := s.index[id]; ok {
			s.flagged[id] = true
		}
	}
	if snap.Result != nil {
		res := *snap.Result
		s.result = &res
		s.state = Completed
		close(s.done)
	}
	return s, nil
}

// Start fixes the question order, records the timer zero point and calls
// persist with the order. On persist failure the session stays NotStarted
// and keeps its original order.
func (s *Session) Start(attemptID uuid.UUID, persist func(order []uuid.UUID) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != NotStarted {
		return ErrAlreadyStarted
	}
	if len(s.questions) == 0 {
		return ErrNoQuestions
	}

	original := s.questions
	if s.test.ShuffleQuestions {
		s.questions = slices.Clone(original)
		Shuffle(s.rng, s.questions)
	}

	startedAt := s.now()
	if err := persist(s.orderLocked()); err != nil {
		s.questions = original
		return fmt.Errorf("persist start: %w", err)
	}

	s.reindex()
	s.attemptID = attemptID
	s.startedAt = startedAt
	s.state = InProgress
	return nil
}

// Select records one letter for a question, replacing any earlier choice.
func (s *Session) Select(questionID uuid.UUID, letter string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mutableLocked(); err != nil {
		return err
	}
	if _, ok := s.index[questionID]; !ok {
		return ErrUnknownQuestion
	}
	if !validLetter(letter) {
		return ErrInvalidAnswer
	}
	s.answers[questionID] = letter
	return nil
}

// ToggleFlag marks or unmarks a question for review and reports the new
// flag value.
func (s *Session) ToggleFlag(questionID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mutableLocked(); err != nil {
		return false, err
	}
	if _, ok := s.index[questionID]; !ok {
		return false, ErrUnknownQuestion
	}
	if s.flagged[questionID] {
		delete(s.flagged, questionID)
		return false, nil
	}
	s.flagged[questionID] = true
	return true, nil
}

// Next moves the cursor forward, stopping at the last question.
func (s *Session) Next() (int, error) { return s.move(func(c int) int { return c + 1 }) }

// Prev moves the cursor back, stopping at the first question.
func (s *Session) Prev() (int, error) { return s.move(func(c int) int { return c - 1 }) }

// GoTo moves the cursor to i, clamped to the question range.
func (s *Session) GoTo(i int) (int, error) { return s.move(func(int) int { return i }) }

// move is allowed in every started state, including review after completion.
func (s *Session) move(f func(int) int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == NotStarted {
		return 0, ErrNotStarted
	}
	s.cursor = clamp(f(s.cursor), len(s.questions))
	return s.cursor, nil
}

// Submit grades the session over its fixed order and calls persist with the
// result. The session becomes Completed only if persist succeeds.
func (s *Session) Submit(persist func(model.AttemptResult) error) (model.AttemptResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.submitLocked(persist, false)
}

// Timeout submits the session if its time is up and it is still in
// progress. It reports whether a submission happened. Calls after
// completion, or before the deadline, do nothing.
func (s *Session) Timeout(persist func(model.AttemptResult) error) (model.AttemptResult, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != InProgress || s.remainingLocked() > 0 {
		return model.AttemptResult{}, false, nil
	}
	res, err := s.submitLocked(persist, true)
	if err != nil {
		return model.AttemptResult{}, false, err
	}
	return res, true, nil
}

// submitLocked grades and persists the session. A timed-out session
// records at most the test duration as time taken.
func (s *Session) submitLocked(persist func(model.AttemptResult) error, timedOut bool) (model.AttemptResult, error) {
	switch s.state {
	case NotStarted:
		return model.AttemptResult{}, ErrNotStarted
	case Completed:
		return *s.result, ErrCompleted
	}

	score, total := Grade(s.questions, s.answers)
	elapsed := int(s.now().Sub(s.startedAt) / time.Second)
	if timedOut {
		elapsed = min(elapsed, s.test.DurationMinutes*60)
	}
	res := model.AttemptResult{
		Answers:    s.answersLocked(),
		Score:      score,
		TotalMarks: total,
		TimeTaken:  max(0, elapsed),
	}

	if err := persist(res); err != nil {
		return model.AttemptResult{}, fmt.Errorf("persist submit: %w", err)
	}

	s.result = &res
	s.state = Completed
	close(s.done)
	return res, nil
}

// Grade awards each question's marks when its answer matches exactly and
// sums all marks into total, answered or not.
func Grade(questions []model.Question, answers map[uuid.UUID]string) (score, total int) {
	for _, q := range questions {
		total += q.Marks
		if ans, ok := answers[q.ID]; ok && ans == q.CorrectAnswer {
			score += q.Marks
		}
	}
	return score, total
}

// Remaining returns whole seconds left before the deadline. It may be
// negative once the deadline has passed.
func (s *Session) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remainingLocked()
}

func (s *Session) remainingLocked() int {
	if s.state == NotStarted {
		return s.test.DurationMinutes * 60
	}
	elapsed := int(s.now().Sub(s.startedAt) / time.Second)
	return s.test.DurationMinutes*60 - elapsed
}

// Deadline is the moment the countdown reaches zero.
func (s *Session) Deadline() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt.Add(time.Duration(s.test.DurationMinutes) * time.Minute)
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed when the session completes.
func (s *Session) Done() <-chan struct{} { return s.done }

// AttemptID returns the id given to Start or Restore.
func (s *Session) AttemptID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attemptID
}

// StartedAt returns the timer zero point.
func (s *Session) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// Test returns the test the session runs.
func (s *Session) Test() model.Test { return s.test }

// Order returns the fixed question order.
func (s *Session) Order() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orderLocked()
}

// Answers returns a copy of the recorded answers keyed by question id.
func (s *Session) Answers() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answersLocked()
}

// Result returns the final result once completed.
func (s *Session) Result() (model.AttemptResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return model.AttemptResult{}, false
	}
	return *s.result, true
}

func (s *Session) mutableLocked() error {
	switch s.state {
	case NotStarted:
		return ErrNotStarted
	case Completed:
		return ErrCompleted
	}
	return nil
}

func (s *Session) orderLocked() []uuid.UUID {
	order := make([]uuid.UUID, len(s.questions))
	for i, q := range s.questions {
		order[i] = q.ID
	}
	return order
}

func (s *Session) answersLocked() map[string]string {
	out := make(map[string]string, len(s.answers))
	for id, letter := range s.answers {
		out[id.String()] = letter
	}
	return out
}

func (s *Session) reindex() {
	s.index = make(map[uuid.UUID]int, len(s.questions))
	for i, q := range s.questions {
		s.index[q.ID] = i
	}
}

func validLetter(l string) bool {
	switch l {
	case "A", "B", "C", "D":
		return true
	}
	return false
}

func clamp(i, n int) int {
	if n == 0 || i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
