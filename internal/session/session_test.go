package session

import (
	"errors"
	"math/rand/v2"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/testlink-backend/internal/model"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func makeQuestions(marks ...int) []model.Question {
	letters := []string{"A", "B", "C", "D"}
	qs := make([]model.Question, len(marks))
	for i, m := range marks {
		qs[i] = model.Question{
			ID:            uuid.New(),
			QuestionText:  "Q" + string(rune('1'+i)),
			OptionA:       "a",
			OptionB:       "b",
			OptionC:       "c",
			OptionD:       "d",
			CorrectAnswer: letters[i%4],
			Marks:         m,
			Order:         i + 1,
		}
	}
	return qs
}

func noopStart([]uuid.UUID) error          { return nil }
func noopSubmit(model.AttemptResult) error { return nil }

func startedSession(t *testing.T, test model.Test, qs []model.Question, clock *fakeClock) *Session {
	t.Helper()
	s := New(test, qs, WithClock(clock.Now), WithRand(rand.New(rand.NewPCG(1, 2))))
	if err := s.Start(uuid.New(), noopStart); err != nil {
		t.Fatalf("start: %v", err)
	}
	return s
}

func TestGrade(t *testing.T) {
	qs := makeQuestions(1, 2, 3)

	tests := []struct {
		name      string
		answers   map[uuid.UUID]string
		wantScore int
	}{
		{"first and third correct", map[uuid.UUID]string{qs[0].ID: "A", qs[1].ID: "D", qs[2].ID: "C"}, 4},
		{"none answered", map[uuid.UUID]string{}, 0},
		{"all correct", map[uuid.UUID]string{qs[0].ID: "A", qs[1].ID: "B", qs[2].ID: "C"}, 6},
		{"lowercase does not match", map[uuid.UUID]string{qs[0].ID: "a"}, 0},
		{"unknown id ignored", map[uuid.UUID]string{uuid.New(): "A"}, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			score, total := Grade(qs, tc.answers)
			if total != 6 {
				t.Fatalf("expected total 6, got %d", total)
			}
			if score != tc.wantScore {
				t.Fatalf("expected score %d, got %d", tc.wantScore, score)
			}
			if score > total {
				t.Fatalf("score %d exceeds total %d", score, total)
			}
		})
	}
}

func TestSubmitScoresFixedOrder(t *testing.T) {
	clock := newFakeClock()
	qs := makeQuestions(1, 2, 3)
	s := startedSession(t, model.Test{DurationMinutes: 10}, qs, clock)

	if err := s.Select(qs[0].ID, "A"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := s.Select(qs[2].ID, "B"); err != nil {
		t.Fatalf("select: %v", err)
	}
	// last write wins
	if err := s.Select(qs[2].ID, "C"); err != nil {
		t.Fatalf("select: %v", err)
	}
	clock.Advance(95*time.Second + 700*time.Millisecond)

	var writes []model.AttemptResult
	res, err := s.Submit(func(r model.AttemptResult) error {
		writes = append(writes, r)
		return nil
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if res.Score != 4 || res.TotalMarks != 6 {
		t.Fatalf("expected 4/6, got %d/%d", res.Score, res.TotalMarks)
	}
	if res.TimeTaken != 95 {
		t.Fatalf("expected time taken 95, got %d", res.TimeTaken)
	}
	if res.Answers[qs[2].ID.String()] != "C" {
		t.Fatalf("expected last selection to win, got %q", res.Answers[qs[2].ID.String()])
	}
	if len(writes) != 1 {
		t.Fatalf("expected one write, got %d", len(writes))
	}
	if s.State() != Completed {
		t.Fatalf("expected completed, got %v", s.State())
	}
	select {
	case <-s.Done():
	default:
		t.Fatal("done channel not closed")
	}
}

func TestTimeTakenClampedToZero(t *testing.T) {
	clock := newFakeClock()
	s := startedSession(t, model.Test{DurationMinutes: 1}, makeQuestions(1), clock)
	clock.Advance(-time.Minute)

	res, err := s.Submit(noopSubmit)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.TimeTaken != 0 {
		t.Fatalf("expected 0, got %d", res.TimeTaken)
	}
}

func TestCompletedIsAbsorbing(t *testing.T) {
	clock := newFakeClock()
	qs := makeQuestions(1, 1)
	s := startedSession(t, model.Test{DurationMinutes: 5}, qs, clock)
	if _, err := s.Submit(noopSubmit); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := s.Select(qs[0].ID, "A"); !errors.Is(err, ErrCompleted) {
		t.Fatalf("expected ErrCompleted from Select, got %v", err)
	}
	if _, err := s.ToggleFlag(qs[0].ID); !errors.Is(err, ErrCompleted) {
		t.Fatalf("expected ErrCompleted from ToggleFlag, got %v", err)
	}

	writes := 0
	if _, err := s.Submit(func(model.AttemptResult) error { writes++; return nil }); !errors.Is(err, ErrCompleted) {
		t.Fatalf("expected ErrCompleted from second Submit, got %v", err)
	}
	if writes != 0 {
		t.Fatalf("expected no write after completion, got %d", writes)
	}

	if _, err := s.Next(); err != nil {
		t.Fatalf("navigation should still work in review: %v", err)
	}
}

func TestTimeoutIdempotent(t *testing.T) {
	clock := newFakeClock()
	s := startedSession(t, model.Test{DurationMinutes: 2}, makeQuestions(1, 2), clock)

	writes := 0
	persist := func(model.AttemptResult) error { writes++; return nil }

	if _, fired, err := s.Timeout(persist); fired || err != nil {
		t.Fatalf("timeout before deadline: fired=%v err=%v", fired, err)
	}

	clock.Advance(2 * time.Minute)
	if _, fired, err := s.Timeout(persist); !fired || err != nil {
		t.Fatalf("timeout at deadline: fired=%v err=%v", fired, err)
	}
	if _, fired, err := s.Timeout(persist); fired || err != nil {
		t.Fatalf("second timeout: fired=%v err=%v", fired, err)
	}
	if writes != 1 {
		t.Fatalf("expected exactly one write, got %d", writes)
	}
}

func TestLateTimeoutCapsTimeTaken(t *testing.T) {
	clock := newFakeClock()
	s := startedSession(t, model.Test{DurationMinutes: 2}, makeQuestions(1), clock)

	clock.Advance(72 * time.Hour)
	res, fired, err := s.Timeout(noopSubmit)
	if !fired || err != nil {
		t.Fatalf("timeout: fired=%v err=%v", fired, err)
	}
	if res.TimeTaken != 120 {
		t.Fatalf("time taken = %d, want 120", res.TimeTaken)
	}
}

func TestTimeoutAfterManualSubmit(t *testing.T) {
	clock := newFakeClock()
	s := startedSession(t, model.Test{DurationMinutes: 1}, makeQuestions(1), clock)

	writes := 0
	persist := func(model.AttemptResult) error { writes++; return nil }
	if _, err := s.Submit(persist); err != nil {
		t.Fatalf("submit: %v", err)
	}

	clock.Advance(5 * time.Minute)
	if _, fired, _ := s.Timeout(persist); fired {
		t.Fatal("timeout fired after manual submit")
	}
	if writes != 1 {
		t.Fatalf("expected one write, got %d", writes)
	}
}

func TestFailedWritesKeepPriorState(t *testing.T) {
	clock := newFakeClock()
	qs := makeQuestions(1, 1, 1)
	boom := errors.New("db down")

	s := New(model.Test{DurationMinutes: 1, ShuffleQuestions: true}, qs, WithClock(clock.Now))
	before := s.Order()
	if err := s.Start(uuid.New(), func([]uuid.UUID) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected start error, got %v", err)
	}
	if s.State() != NotStarted {
		t.Fatalf("expected NotStarted after failed start, got %v", s.State())
	}
	if !slices.Equal(before, s.Order()) {
		t.Fatal("order changed after failed start")
	}
	if err := s.Select(qs[0].ID, "A"); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}

	if err := s.Start(uuid.New(), noopStart); err != nil {
		t.Fatalf("retry start: %v", err)
	}
	if _, err := s.Submit(func(model.AttemptResult) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected submit error, got %v", err)
	}
	if s.State() != InProgress {
		t.Fatalf("expected InProgress after failed submit, got %v", s.State())
	}
	if err := s.Select(qs[0].ID, "B"); err != nil {
		t.Fatalf("select after failed submit: %v", err)
	}
	if _, err := s.Submit(noopSubmit); err != nil {
		t.Fatalf("submit retry: %v", err)
	}
}

func TestStartTwice(t *testing.T) {
	s := startedSession(t, model.Test{DurationMinutes: 1}, makeQuestions(1), newFakeClock())
	if err := s.Start(uuid.New(), noopStart); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestStartWithoutQuestions(t *testing.T) {
	s := New(model.Test{DurationMinutes: 1}, nil)
	if err := s.Start(uuid.New(), noopStart); !errors.Is(err, ErrNoQuestions) {
		t.Fatalf("expected ErrNoQuestions, got %v", err)
	}
}

func TestShuffleFixedForSession(t *testing.T) {
	clock := newFakeClock()
	qs := makeQuestions(1, 2, 3, 4, 5, 6, 7, 8)
	s := startedSession(t, model.Test{DurationMinutes: 30, ShuffleQuestions: true}, qs, clock)

	var persisted []uuid.UUID
	s2 := New(model.Test{DurationMinutes: 30, ShuffleQuestions: true}, qs, WithRand(rand.New(rand.NewPCG(1, 2))))
	_ = s2.Start(uuid.New(), func(order []uuid.UUID) error {
		persisted = order
		return nil
	})

	order := s.Order()
	if !slices.Equal(order, persisted) {
		t.Fatal("same seed should produce the same persisted order")
	}

	original := make([]uuid.UUID, len(qs))
	for i, q := range qs {
		original[i] = q.ID
	}
	if slices.Equal(order, original) {
		t.Fatal("expected shuffled order to differ from stored order for this seed")
	}
	sorted := slices.Clone(order)
	slices.SortFunc(sorted, func(a, b uuid.UUID) int { return slices.Compare(a[:], b[:]) })
	want := slices.Clone(original)
	slices.SortFunc(want, func(a, b uuid.UUID) int { return slices.Compare(a[:], b[:]) })
	if !slices.Equal(sorted, want) {
		t.Fatal("shuffle must be a permutation")
	}

	for _, move := range []func() (int, error){s.Next, s.Next, s.Prev, func() (int, error) { return s.GoTo(5) }} {
		if _, err := move(); err != nil {
			t.Fatalf("navigate: %v", err)
		}
		if !slices.Equal(order, s.Order()) {
			t.Fatal("order changed during navigation")
		}
	}

	res, err := s.Submit(noopSubmit)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.TotalMarks != 36 {
		t.Fatalf("expected total marks 36, got %d", res.TotalMarks)
	}
}

func TestNoShuffleKeepsStoredOrder(t *testing.T) {
	qs := makeQuestions(1, 1, 1, 1)
	s := startedSession(t, model.Test{DurationMinutes: 1}, qs, newFakeClock())
	for i, id := range s.Order() {
		if id != qs[i].ID {
			t.Fatalf("position %d changed without shuffle", i)
		}
	}
}

func TestShuffleUniform(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	counts := make(map[[3]int]int)
	const rounds = 60000
	for range rounds {
		s := []int{0, 1, 2}
		Shuffle(r, s)
		counts[[3]int(s)]++
	}
	if len(counts) != 6 {
		t.Fatalf("expected 6 permutations, got %d", len(counts))
	}
	for perm, n := range counts {
		if n < rounds/6*9/10 || n > rounds/6*11/10 {
			t.Fatalf("permutation %v seen %d times, far from %d", perm, n, rounds/6)
		}
	}
}

func TestNavigationClamped(t *testing.T) {
	s := startedSession(t, model.Test{DurationMinutes: 1}, makeQuestions(1, 1, 1), newFakeClock())

	tests := []struct {
		name string
		move func() (int, error)
		want int
	}{
		{"prev at start", s.Prev, 0},
		{"next", s.Next, 1},
		{"next", s.Next, 2},
		{"next at end", s.Next, 2},
		{"goto beyond", func() (int, error) { return s.GoTo(99) }, 2},
		{"goto negative", func() (int, error) { return s.GoTo(-3) }, 0},
		{"goto middle", func() (int, error) { return s.GoTo(1) }, 1},
	}

	for _, tc := range tests {
		got, err := tc.move()
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: expected cursor %d, got %d", tc.name, tc.want, got)
		}
	}
}

func TestNavigationBeforeStart(t *testing.T) {
	s := New(model.Test{DurationMinutes: 1}, makeQuestions(1))
	if _, err := s.Next(); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
}

func TestSelectValidation(t *testing.T) {
	qs := makeQuestions(1)
	s := startedSession(t, model.Test{DurationMinutes: 1}, qs, newFakeClock())

	if err := s.Select(uuid.New(), "A"); !errors.Is(err, ErrUnknownQuestion) {
		t.Fatalf("expected ErrUnknownQuestion, got %v", err)
	}
	if err := s.Select(qs[0].ID, "E"); !errors.Is(err, ErrInvalidAnswer) {
		t.Fatalf("expected ErrInvalidAnswer, got %v", err)
	}
}

func TestToggleFlag(t *testing.T) {
	qs := makeQuestions(1, 1)
	s := startedSession(t, model.Test{DurationMinutes: 1}, qs, newFakeClock())

	on, err := s.ToggleFlag(qs[1].ID)
	if err != nil || !on {
		t.Fatalf("expected flag on, got %v %v", on, err)
	}
	if !s.View().Questions[1].Flagged {
		t.Fatal("view does not show flag")
	}
	on, err = s.ToggleFlag(qs[1].ID)
	if err != nil || on {
		t.Fatalf("expected flag off, got %v %v", on, err)
	}
}

func TestViewAfterCompletion(t *testing.T) {
	clock := newFakeClock()
	qs := makeQuestions(2, 3)
	s := startedSession(t, model.Test{DurationMinutes: 10, Title: "Quiz"}, qs, clock)

	in := s.View()
	if in.ReadOnly || in.Questions[0].CorrectAnswer != "" || in.Questions[0].IsCorrect != nil {
		t.Fatal("in-progress view leaks correctness")
	}
	if in.RemainingSeconds != 600 {
		t.Fatalf("expected 600 seconds remaining, got %d", in.RemainingSeconds)
	}

	_ = s.Select(qs[0].ID, "A")
	_ = s.Select(qs[1].ID, "A")
	if _, err := s.Submit(noopSubmit); err != nil {
		t.Fatalf("submit: %v", err)
	}

	v := s.View()
	if !v.ReadOnly || v.State != Completed || v.Result == nil {
		t.Fatalf("unexpected completed view: %+v", v)
	}
	if v.Result.Score != 2 || v.Result.TotalMarks != 5 {
		t.Fatalf("expected 2/5, got %d/%d", v.Result.Score, v.Result.TotalMarks)
	}
	if q := v.Questions[0]; q.IsCorrect == nil || !*q.IsCorrect || q.CorrectAnswer != "A" {
		t.Fatalf("expected first question correct: %+v", q)
	}
	if q := v.Questions[1]; q.IsCorrect == nil || *q.IsCorrect || *q.Selected != "A" || q.CorrectAnswer != "B" {
		t.Fatalf("expected second question wrong: %+v", q)
	}
}

func TestRestore(t *testing.T) {
	clock := newFakeClock()
	qs := makeQuestions(1, 2, 3)
	start := clock.Now().Add(-30 * time.Second)
	snap := Snapshot{
		AttemptID: uuid.New(),
		Order:     []uuid.UUID{qs[2].ID, qs[0].ID, qs[1].ID},
		StartedAt: start,
		Answers:   map[uuid.UUID]string{qs[2].ID: "C", uuid.New(): "A"},
		Flagged:   []uuid.UUID{qs[0].ID},
		Cursor:    7,
	}

	s, err := Restore(model.Test{DurationMinutes: 1}, qs, snap, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if s.State() != InProgress || s.AttemptID() != snap.AttemptID {
		t.Fatal("restored session not in progress")
	}
	if !slices.Equal(s.Order(), snap.Order) {
		t.Fatal("restored order differs from snapshot")
	}
	if s.Remaining() != 30 {
		t.Fatalf("expected 30 seconds remaining, got %d", s.Remaining())
	}
	v := s.View()
	if v.Cursor != 2 || v.Answered != 1 || !v.Questions[1].Flagged {
		t.Fatalf("unexpected restored view: %+v", v)
	}

	res, err := s.Submit(noopSubmit)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Score != 3 || res.TotalMarks != 6 || res.TimeTaken != 30 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestRestoreQuestionSetChanged(t *testing.T) {
	qs := makeQuestions(1, 2, 3)
	added := makeQuestions(5)[0]
	current := append(slices.Clone(qs), added)

	tests := []struct {
		name      string
		order     []uuid.UUID
		questions []model.Question
		wantOrder []uuid.UUID
		wantTotal int
	}{
		{"question added later is ignored", []uuid.UUID{qs[2].ID, qs[0].ID, qs[1].ID}, current, []uuid.UUID{qs[2].ID, qs[0].ID, qs[1].ID}, 6},
		{"missing question is dropped", []uuid.UUID{qs[0].ID, uuid.New(), qs[1].ID}, qs, []uuid.UUID{qs[0].ID, qs[1].ID}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := Snapshot{AttemptID: uuid.New(), Order: tt.order, StartedAt: time.Now()}
			s, err := Restore(model.Test{DurationMinutes: 10}, tt.questions, snap)
			if err != nil {
				t.Fatalf("restore: %v", err)
			}
			if !slices.Equal(s.Order(), tt.wantOrder) {
				t.Fatalf("order = %v, want %v", s.Order(), tt.wantOrder)
			}
			res, err := s.Submit(noopSubmit)
			if err != nil {
				t.Fatalf("submit: %v", err)
			}
			if res.TotalMarks != tt.wantTotal {
				t.Fatalf("total = %d, want %d", res.TotalMarks, tt.wantTotal)
			}
		})
	}
}

func TestRestoreNoQuestionsLeft(t *testing.T) {
	qs := makeQuestions(1)
	snap := Snapshot{AttemptID: uuid.New(), Order: []uuid.UUID{uuid.New()}}

	if _, err := Restore(model.Test{DurationMinutes: 1}, qs, snap); !errors.Is(err, ErrOrderMismatch) {
		t.Fatalf("expected ErrOrderMismatch, got %v", err)
	}

	snap.Result = &model.AttemptResult{Score: 1, TotalMarks: 1}
	s, err := Restore(model.Test{DurationMinutes: 1}, qs, snap)
	if err != nil {
		t.Fatalf("restore completed: %v", err)
	}
	if v := s.View(); !v.ReadOnly || v.Result == nil || v.Result.TotalMarks != 1 {
		t.Fatalf("unexpected view: %+v", v)
	}
}

func TestRestoreCompleted(t *testing.T) {
	qs := makeQuestions(1, 1)
	snap := Snapshot{
		AttemptID: uuid.New(),
		Order:     []uuid.UUID{qs[0].ID, qs[1].ID},
		Answers:   map[uuid.UUID]string{qs[0].ID: "A"},
		Result:    &model.AttemptResult{Score: 1, TotalMarks: 2, TimeTaken: 40},
	}

	s, err := Restore(model.Test{DurationMinutes: 1}, qs, snap)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if s.State() != Completed {
		t.Fatalf("expected completed, got %v", s.State())
	}
	if err := s.Select(qs[1].ID, "B"); !errors.Is(err, ErrCompleted) {
		t.Fatalf("expected ErrCompleted, got %v", err)
	}
	v := s.View()
	if !v.ReadOnly || v.Result.Score != 1 || !*v.Questions[0].IsCorrect {
		t.Fatalf("unexpected review view: %+v", v)
	}
}
