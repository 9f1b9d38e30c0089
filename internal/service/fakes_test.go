package service

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/testlink-backend/internal/model"
	"github.com/stemsi/testlink-backend/internal/repository"
)

var discard = zerolog.Nop()

type memStore struct {
	mu        sync.Mutex
	tests     map[uuid.UUID]*model.Test
	questions map[uuid.UUID][]model.Question
	attempts  map[uuid.UUID]*model.Attempt

	createErr   error
	completeErr error
	creates     int
	completes   int
}

func newMemStore() *memStore {
	return &memStore{
		tests:     make(map[uuid.UUID]*model.Test),
		questions: make(map[uuid.UUID][]model.Question),
		attempts:  make(map[uuid.UUID]*model.Attempt),
	}
}

// seed stores a test with questions carrying the given marks; answers cycle
// A, B, C, D.
func (m *memStore) seed(duration int, shuffle bool, marks ...int) (*model.Test, []model.Question) {
	t := &model.Test{ID: uuid.New(), Title: "Seeded", DurationMinutes: duration, ShuffleQuestions: shuffle, PassPercentage: 60}
	letters := []string{"A", "B", "C", "D"}
	qs := make([]model.Question, len(marks))
	for i, mk := range marks {
		qs[i] = model.Question{
			ID: uuid.New(), TestID: t.ID, QuestionText: "question",
			OptionA: "a", OptionB: "b", OptionC: "c", OptionD: "d",
			CorrectAnswer: letters[i%4], Marks: mk, Order: i + 1,
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tests[t.ID] = t
	m.questions[t.ID] = qs
	return t, qs
}

// ─── TestStore ─────────────────────────────────────────────────────

type memTests struct{ *memStore }

func (m memTests) Create(_ context.Context, t *model.Test) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = uuid.New()
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	cp := *t
	m.tests[t.ID] = &cp
	return nil
}

func (m memTests) GetByID(_ context.Context, id uuid.UUID) (*model.Test, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *t
	cp.QuestionCount = len(m.questions[id])
	return &cp, nil
}

func (m memTests) List(_ context.Context, limit, offset int) ([]model.Test, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []model.Test
	for _, t := range m.tests {
		all = append(all, *t)
	}
	slices.SortFunc(all, func(a, b model.Test) int { return b.CreatedAt.Compare(a.CreatedAt) })
	end := min(offset+limit, len(all))
	if offset > len(all) {
		return nil, len(all), nil
	}
	return all[offset:end], len(all), nil
}

func (m memTests) Update(_ context.Context, t *model.Test) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tests[t.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *t
	m.tests[t.ID] = &cp
	return nil
}

func (m memTests) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tests[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.tests, id)
	delete(m.questions, id)
	return nil
}

func (m memTests) Duplicate(_ context.Context, id uuid.UUID, suffix string) (*model.Test, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, ok := m.tests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *src
	cp.ID = uuid.New()
	cp.Title += suffix
	m.tests[cp.ID] = &cp
	for _, q := range m.questions[id] {
		q.ID = uuid.New()
		q.TestID = cp.ID
		m.questions[cp.ID] = append(m.questions[cp.ID], q)
	}
	out := cp
	out.QuestionCount = len(m.questions[cp.ID])
	return &out, nil
}

// ─── QuestionStore ─────────────────────────────────────────────────

type memQuestions struct{ *memStore }

func (m memQuestions) ListByTest(_ context.Context, testID uuid.UUID) ([]model.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.questions[testID]), nil
}

func (m memQuestions) CreateBatch(_ context.Context, testID uuid.UUID, inputs []model.QuestionInput) ([]model.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Question, len(inputs))
	for i, in := range inputs {
		out[i] = model.Question{
			ID: uuid.New(), TestID: testID, QuestionText: in.QuestionText,
			OptionA: in.OptionA, OptionB: in.OptionB, OptionC: in.OptionC, OptionD: in.OptionD,
			CorrectAnswer: in.CorrectAnswer, Marks: in.Marks, TimeLimit: in.TimeLimit, Order: i + 1,
		}
	}
	m.questions[testID] = append(m.questions[testID], out...)
	return out, nil
}

// ─── AttemptStore ──────────────────────────────────────────────────

type memAttempts struct{ *memStore }

func (m memAttempts) Create(_ context.Context, a *model.Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if m.createErr != nil {
		return m.createErr
	}
	a.StartedAt = time.Now()
	a.Answers = map[string]string{}
	cp := *a
	m.attempts[a.ID] = &cp
	return nil
}

func (m memAttempts) GetByID(_ context.Context, id uuid.UUID) (*model.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m memAttempts) Complete(_ context.Context, id uuid.UUID, res model.AttemptResult) (*model.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completes++
	if m.completeErr != nil {
		return nil, m.completeErr
	}
	a, ok := m.attempts[id]
	if !ok || a.IsCompleted {
		return nil, repository.ErrAlreadyCompleted
	}
	now := time.Now()
	a.Answers = res.Answers
	a.Score = res.Score
	a.TotalMarks = res.TotalMarks
	a.TimeTaken = res.TimeTaken
	a.IsCompleted = true
	a.SubmittedAt = &now
	cp := *a
	return &cp, nil
}

func (m memAttempts) ListByTest(_ context.Context, testID uuid.UUID, limit, offset int) ([]model.Attempt, int, error) {
	all, _ := m.filter(func(a *model.Attempt) bool { return a.TestID == testID })
	if offset > len(all) {
		return nil, len(all), nil
	}
	return all[offset:min(offset+limit, len(all))], len(all), nil
}

func (m memAttempts) ListCompletedByTest(_ context.Context, testID uuid.UUID) ([]model.Attempt, error) {
	return m.filter(func(a *model.Attempt) bool { return a.TestID == testID && a.IsCompleted })
}

func (m memAttempts) ListOverdue(_ context.Context, grace time.Duration, after *model.OverdueCursor, limit int) ([]model.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []model.Attempt
	for _, a := range m.attempts {
		t := m.tests[a.TestID]
		deadline := a.StartedAt.Add(time.Duration(t.DurationMinutes)*time.Minute + grace)
		if !a.IsCompleted && deadline.Before(time.Now()) {
			due = append(due, *a)
		}
	}
	slices.SortFunc(due, func(x, y model.Attempt) int {
		return compareScan(x.StartedAt, x.ID, y.StartedAt, y.ID)
	})

	var out []model.Attempt
	for _, a := range due {
		if after != nil && compareScan(a.StartedAt, a.ID, after.StartedAt, after.ID) <= 0 {
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, a)
	}
	return out, nil
}

func compareScan(at time.Time, aid uuid.UUID, bt time.Time, bid uuid.UUID) int {
	if c := at.Compare(bt); c != 0 {
		return c
	}
	return bytes.Compare(aid[:], bid[:])
}

func (m memAttempts) Aggregates(_ context.Context, testID uuid.UUID, pass int) (repository.AttemptAggregates, error) {
	all, _ := m.filter(func(a *model.Attempt) bool { return a.TestID == testID })
	var agg repository.AttemptAggregates
	var score, pct, secs float64
	for _, a := range all {
		agg.Total++
		if !a.IsCompleted {
			continue
		}
		agg.Completed++
		score += float64(a.Score)
		pct += a.Percentage()
		secs += float64(a.TimeTaken)
		if a.TotalMarks > 0 && a.Score*100 >= pass*a.TotalMarks {
			agg.Passed++
		}
	}
	if agg.Completed > 0 {
		n := float64(agg.Completed)
		agg.AvgScore, agg.AvgPercentage, agg.AvgTimeSeconds = score/n, pct/n, secs/n
	}
	return agg, nil
}

func (m memAttempts) filter(keep func(*model.Attempt) bool) ([]model.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Attempt
	for _, a := range m.attempts {
		if keep(a) {
			out = append(out, *a)
		}
	}
	slices.SortFunc(out, func(a, b model.Attempt) int { return a.StartedAt.Compare(b.StartedAt) })
	return out, nil
}

// ─── PaperStore ────────────────────────────────────────────────────

type memPapers struct {
	mu            sync.Mutex
	papers        map[uuid.UUID]model.TestPaper
	gets, sets    int
	invalidations int
	getErr        error
}

func newMemPapers() *memPapers { return &memPapers{papers: make(map[uuid.UUID]model.TestPaper)} }

func (p *memPapers) Get(_ context.Context, id uuid.UUID) (*model.TestPaper, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gets++
	if p.getErr != nil {
		return nil, false, p.getErr
	}
	paper, ok := p.papers[id]
	if !ok {
		return nil, false, nil
	}
	return &paper, true, nil
}

func (p *memPapers) Set(_ context.Context, paper *model.TestPaper) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sets++
	p.papers[paper.TestID] = *paper
	return nil
}

func (p *memPapers) Invalidate(_ context.Context, id uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.invalidations++
	delete(p.papers, id)
	return nil
}

// ─── SessionStore ──────────────────────────────────────────────────

type memCache struct {
	mu      sync.Mutex
	starts  map[string]time.Time
	answers map[string]map[string]string
	flags   map[string]map[string]bool
	cursors map[string]int
	down    bool
}

func newMemCache() *memCache {
	return &memCache{
		starts:  make(map[string]time.Time),
		answers: make(map[string]map[string]string),
		flags:   make(map[string]map[string]bool),
		cursors: make(map[string]int),
	}
}

var errCacheDown = errors.New("cache unavailable")

func (c *memCache) SaveStart(_ context.Context, id string, t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down {
		return errCacheDown
	}
	c.starts[id] = t
	return nil
}

func (c *memCache) Start(_ context.Context, id string) (time.Time, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down {
		return time.Time{}, false, errCacheDown
	}
	t, ok := c.starts[id]
	return t, ok, nil
}

func (c *memCache) SaveAnswer(_ context.Context, id, qid, letter string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down {
		return errCacheDown
	}
	if c.answers[id] == nil {
		c.answers[id] = make(map[string]string)
	}
	c.answers[id][qid] = letter
	return nil
}

func (c *memCache) Answers(_ context.Context, id string) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down {
		return nil, errCacheDown
	}
	out := make(map[string]string)
	for k, v := range c.answers[id] {
		out[k] = v
	}
	return out, nil
}

func (c *memCache) SetFlag(_ context.Context, id, qid string, on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.flags[id] == nil {
		c.flags[id] = make(map[string]bool)
	}
	if on {
		c.flags[id][qid] = true
	} else {
		delete(c.flags[id], qid)
	}
	return nil
}

func (c *memCache) Flags(_ context.Context, id string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for k := range c.flags[id] {
		out = append(out, k)
	}
	return out, nil
}

func (c *memCache) SaveCursor(_ context.Context, id string, cursor int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cursors[id] = cursor
	return nil
}

func (c *memCache) Cursor(_ context.Context, id string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursors[id], nil
}

func (c *memCache) Clear(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.starts, id)
	delete(c.answers, id)
	delete(c.flags, id)
	delete(c.cursors, id)
	return nil
}

func (c *memCache) hasAttempt(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.starts[id]
	return ok
}

// ─── Wiring ────────────────────────────────────────────────────────

type fixture struct {
	store    *memStore
	papers   *memPapers
	cache    *memCache
	tests    *TestService
	qs       *QuestionService
	attempts *AttemptService
	tokens   *TokenService
	exports  *ExportService
}

func newFixture() *fixture {
	store := newMemStore()
	papers := newMemPapers()
	cache := newMemCache()
	tokens := NewTokenService("test-secret", time.Hour)

	ts := NewTestService(memTests{store}, memQuestions{store}, memAttempts{store}, papers, discard)
	f := &fixture{
		store:   store,
		papers:  papers,
		cache:   cache,
		tests:   ts,
		qs:      NewQuestionService(memTests{store}, memQuestions{store}, ts, 1<<20, discard),
		tokens:  tokens,
		exports: NewExportService(memTests{store}, memQuestions{store}, memAttempts{store}, discard),
	}
	f.attempts = f.newAttemptService()
	return f
}

// newAttemptService builds a second service over the same stores, as a
// restarted process would.
func (f *fixture) newAttemptService() *AttemptService {
	return NewAttemptService(memTests{f.store}, memQuestions{f.store}, memAttempts{f.store}, f.cache, f.tokens, time.Minute, discard)
}
