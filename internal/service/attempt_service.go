package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/testlink-backend/internal/model"
	"github.com/stemsi/testlink-backend/internal/repository"
	"github.com/stemsi/testlink-backend/internal/response"
	"github.com/stemsi/testlink-backend/internal/session"
)

const persistTimeout = 10 * time.Second

// StartResult is returned when a student starts an attempt.
type StartResult struct {
	Attempt        *model.Attempt `json:"attempt"`
	Token          string         `json:"token"`
	TokenExpiresAt time.Time      `json:"token_expires_at"`
	State          session.View   `json:"state"`
}

// live is an in-progress session owned by this process.
type live struct {
	sess      *session.Session
	countdown *session.Countdown
	events    *session.Broadcaster
}

// AttemptService owns the registry of live sessions and drives each one
// through start, answers, navigation and submission.
type AttemptService struct {
	tests     TestStore
	questions QuestionStore
	attempts  AttemptStore
	cache     SessionStore
	tokens    *TokenService
	grace     time.Duration
	log       zerolog.Logger
	opts      []session.Option

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	active map[uuid.UUID]*live
}

// NewAttemptService creates a new AttemptService. grace is how long past
// its deadline an open attempt may sit before ExpireOverdue closes it.
func NewAttemptService(
	tests TestStore,
	questions QuestionStore,
	attempts AttemptStore,
	cache SessionStore,
	tokens *TokenService,
	grace time.Duration,
	log zerolog.Logger,
	opts ...session.Option,
) *AttemptService {
	ctx, cancel := context.WithCancel(context.Background())
	return &AttemptService{
		tests:     tests,
		questions: questions,
		attempts:  attempts,
		cache:     cache,
		tokens:    tokens,
		grace:     grace,
		log:       log.With().Str("component", "attempt_service").Logger(),
		opts:      opts,
		ctx:       ctx,
		cancel:    cancel,
		active:    make(map[uuid.UUID]*live),
	}
}

// Start creates an attempt for a test and begins its countdown. This is the
// single create write of the attempt.
func (s *AttemptService) Start(ctx context.Context, testID uuid.UUID, studentName string) (*StartResult, error) {
	t, err := s.tests.GetByID(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("get test: %w", err)
	}
	qs, err := s.questions.ListByTest(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if len(qs) == 0 {
		return nil, ErrNoQuestions
	}

	attempt := &model.Attempt{
		ID:     uuid.New(),
		TestID: testID,
	}
	if name := strings.TrimSpace(studentName); name != "" {
		attempt.StudentName = &name
	}

	sess := session.New(*t, qs, s.opts...)
	err = sess.Start(attempt.ID, func(order []uuid.UUID) error {
		attempt.QuestionOrder = order
		return s.attempts.Create(ctx, attempt)
	})
	if err != nil {
		return nil, fmt.Errorf("start attempt: %w", err)
	}

	if err := s.cache.SaveStart(ctx, attempt.ID.String(), sess.StartedAt()); err != nil {
		// The DB started_at covers a cache miss on resume.
		s.log.Warn().Err(err).Str("attempt_id", attempt.ID.String()).Msg("Failed to cache start time")
	}

	s.track(sess)

	token, expiresAt, err := s.tokens.Issue(attempt.ID, testID, sess.Deadline())
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	s.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Str("test_id", testID.String()).
		Bool("shuffled", t.ShuffleQuestions).
		Msg("Attempt started")

	return &StartResult{
		Attempt:        attempt,
		Token:          token,
		TokenExpiresAt: expiresAt,
		State:          sess.View(),
	}, nil
}

// State returns the current view of an attempt.
func (s *AttemptService) State(ctx context.Context, attemptID uuid.UUID) (session.View, error) {
	l, err := s.load(ctx, attemptID)
	if err != nil {
		return session.View{}, err
	}
	return l.sess.View(), nil
}

// Answer records the selected letter for a question.
func (s *AttemptService) Answer(ctx context.Context, attemptID, questionID uuid.UUID, letter string) (session.View, error) {
	l, err := s.load(ctx, attemptID)
	if err != nil {
		return session.View{}, err
	}

	letter = strings.ToUpper(strings.TrimSpace(letter))
	if err := l.sess.Select(questionID, letter); err != nil {
		return session.View{}, mapSessionErr(err)
	}

	if err := s.cache.SaveAnswer(ctx, attemptID.String(), questionID.String(), letter); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("Failed to mirror answer")
	}
	l.publish(session.EventAnswer, map[string]string{"question_id": questionID.String(), "answer": letter})
	return l.sess.View(), nil
}

// Navigate moves the attempt's cursor.
func (s *AttemptService) Navigate(ctx context.Context, attemptID uuid.UUID, req model.NavigateRequest) (session.View, error) {
	l, err := s.load(ctx, attemptID)
	if err != nil {
		return session.View{}, err
	}

	var cursor int
	switch req.Action {
	case model.NavigateNext:
		cursor, err = l.sess.Next()
	case model.NavigatePrev:
		cursor, err = l.sess.Prev()
	default:
		cursor, err = l.sess.GoTo(req.Index)
	}
	if err != nil {
		return session.View{}, mapSessionErr(err)
	}

	if l.sess.State() == session.InProgress {
		if err := s.cache.SaveCursor(ctx, attemptID.String(), cursor); err != nil {
			s.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("Failed to mirror cursor")
		}
	}
	l.publish(session.EventNavigate, map[string]int{"cursor": cursor})
	return l.sess.View(), nil
}

// ToggleFlag marks or unmarks a question for review.
func (s *AttemptService) ToggleFlag(ctx context.Context, attemptID, questionID uuid.UUID) (session.View, error) {
	l, err := s.load(ctx, attemptID)
	if err != nil {
		return session.View{}, err
	}

	flagged, err := l.sess.ToggleFlag(questionID)
	if err != nil {
		return session.View{}, mapSessionErr(err)
	}

	if err := s.cache.SetFlag(ctx, attemptID.String(), questionID.String(), flagged); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("Failed to mirror flag")
	}
	l.publish(session.EventFlag, map[string]any{"question_id": questionID.String(), "flagged": flagged})
	return l.sess.View(), nil
}

// Submit grades and completes an attempt. This is the single update write
// of the attempt; a second submit returns ErrAttemptCompleted.
func (s *AttemptService) Submit(ctx context.Context, attemptID uuid.UUID) (*model.Attempt, error) {
	l, err := s.load(ctx, attemptID)
	if err != nil {
		return nil, err
	}

	var saved *model.Attempt
	res, err := l.sess.Submit(func(res model.AttemptResult) error {
		a, err := s.attempts.Complete(ctx, attemptID, res)
		if err != nil {
			return err
		}
		saved = a
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyCompleted) {
			// Completed elsewhere; drop the stale copy.
			s.drop(attemptID)
			return nil, ErrAttemptCompleted
		}
		return nil, mapSessionErr(err)
	}

	s.finish(l, res)
	s.log.Info().
		Str("attempt_id", attemptID.String()).
		Int("score", res.Score).
		Int("total_marks", res.TotalMarks).
		Int("time_taken", res.TimeTaken).
		Msg("Attempt submitted")
	return saved, nil
}

// Review returns the read-only view of a completed attempt with
// correctness feedback.
func (s *AttemptService) Review(ctx context.Context, attemptID uuid.UUID) (session.View, error) {
	l, err := s.load(ctx, attemptID)
	if err != nil {
		return session.View{}, err
	}
	if l.sess.State() != session.Completed {
		return session.View{}, ErrAttemptInProgress
	}
	return l.sess.View(), nil
}

// Get returns the stored attempt.
func (s *AttemptService) Get(ctx context.Context, attemptID uuid.UUID) (*model.Attempt, error) {
	a, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	return a, nil
}

// ListByTest retrieves a test's attempts with pagination.
func (s *AttemptService) ListByTest(ctx context.Context, testID uuid.UUID, page, perPage int) ([]model.Attempt, *response.Pagination, error) {
	if _, err := s.tests.GetByID(ctx, testID); err != nil {
		return nil, nil, fmt.Errorf("get test: %w", err)
	}

	page, perPage, limit, offset := pageBounds(page, perPage)
	attempts, total, err := s.attempts.ListByTest(ctx, testID, limit, offset)
	if err != nil {
		return nil, nil, fmt.Errorf("list attempts: %w", err)
	}
	if attempts == nil {
		attempts = []model.Attempt{}
	}
	return attempts, response.NewPagination(page, perPage, total), nil
}

// Subscribe returns the event stream of an in-progress attempt and a func
// that ends the subscription.
func (s *AttemptService) Subscribe(ctx context.Context, attemptID uuid.UUID) (<-chan session.Event, func(), error) {
	l, err := s.load(ctx, attemptID)
	if err != nil {
		return nil, nil, err
	}
	if l.events == nil {
		return nil, nil, ErrAttemptCompleted
	}
	ch, unsubscribe := l.events.Subscribe(16)
	return ch, unsubscribe, nil
}

// ExpireBatch reports one ExpireOverdue call. Next is the cursor to pass
// to the following call; Scanned below the limit means the scan is done.
type ExpireBatch struct {
	Closed  int
	Scanned int
	Next    *model.OverdueCursor
}

// ExpireOverdue closes open attempts whose deadline plus grace has passed,
// for example because the process that ran them stopped. The scan starts
// after the given cursor, so attempts that cannot be closed do not hide
// later ones.
func (s *AttemptService) ExpireOverdue(ctx context.Context, after *model.OverdueCursor, limit int) (ExpireBatch, error) {
	overdue, err := s.attempts.ListOverdue(ctx, s.grace, after, limit)
	if err != nil {
		return ExpireBatch{}, fmt.Errorf("list overdue attempts: %w", err)
	}

	batch := ExpireBatch{Scanned: len(overdue), Next: after}
	for _, a := range overdue {
		batch.Next = &model.OverdueCursor{StartedAt: a.StartedAt, ID: a.ID}
		if s.expire(ctx, a.ID) {
			batch.Closed++
		}
	}
	return batch, nil
}

// expire times out one overdue attempt and reports whether it closed.
func (s *AttemptService) expire(ctx context.Context, attemptID uuid.UUID) bool {
	l, ok := s.lookup(attemptID)
	if !ok {
		sess, err := s.restore(ctx, attemptID)
		if err != nil {
			s.log.Error().Err(err).Str("attempt_id", attemptID.String()).Msg("Failed to resume overdue attempt")
			return false
		}
		l = &live{sess: sess}
	}

	res, submitted, err := l.sess.Timeout(s.persistFor(attemptID))
	if err != nil {
		s.log.Error().Err(err).Str("attempt_id", attemptID.String()).Msg("Failed to expire attempt")
		return false
	}
	if !submitted {
		return false
	}
	s.log.Info().Str("attempt_id", attemptID.String()).Int("score", res.Score).Msg("Overdue attempt closed")
	s.finish(l, res)
	return true
}

// Active returns the number of live sessions.
func (s *AttemptService) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Shutdown stops every countdown and closes event streams. Sessions are
// left open in the database for ExpireOverdue or a later resume.
func (s *AttemptService) Shutdown() {
	s.cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, l := range s.active {
		l.countdown.Stop()
		l.events.Close()
		delete(s.active, id)
	}
}

// load returns the live session for an attempt, resuming it from storage
// when this process does not hold it.
func (s *AttemptService) load(ctx context.Context, attemptID uuid.UUID) (*live, error) {
	if l, ok := s.lookup(attemptID); ok {
		return l, nil
	}

	sess, err := s.restore(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if sess.State() == session.Completed {
		return &live{sess: sess}, nil
	}

	s.log.Info().Str("attempt_id", attemptID.String()).Msg("Attempt resumed")
	return s.track(sess), nil
}

func (s *AttemptService) lookup(attemptID uuid.UUID) (*live, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.active[attemptID]
	return l, ok
}

// restore rebuilds a session from the database and the Redis mirror
// without registering it.
func (s *AttemptService) restore(ctx context.Context, attemptID uuid.UUID) (*session.Session, error) {
	a, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	t, err := s.tests.GetByID(ctx, a.TestID)
	if err != nil {
		return nil, fmt.Errorf("get test: %w", err)
	}
	qs, err := s.questions.ListByTest(ctx, a.TestID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	snap := session.Snapshot{
		AttemptID: a.ID,
		Order:     a.QuestionOrder,
		StartedAt: a.StartedAt,
		Answers:   parseAnswers(a.Answers),
	}
	if a.IsCompleted {
		snap.Result = &model.AttemptResult{
			Answers:    a.Answers,
			Score:      a.Score,
			TotalMarks: a.TotalMarks,
			TimeTaken:  a.TimeTaken,
		}
	} else {
		s.hydrate(ctx, &snap)
	}

	sess, err := session.Restore(*t, qs, snap, s.opts...)
	if err != nil {
		return nil, fmt.Errorf("restore attempt: %w", err)
	}
	return sess, nil
}

// hydrate fills the snapshot from the Redis mirror. On a start-time miss the
// DB started_at stays and is written back to the cache.
func (s *AttemptService) hydrate(ctx context.Context, snap *session.Snapshot) {
	id := snap.AttemptID.String()

	startedAt, ok, err := s.cache.Start(ctx, id)
	switch {
	case err != nil:
		s.log.Warn().Err(err).Str("attempt_id", id).Msg("Start time cache read failed")
	case ok:
		snap.StartedAt = startedAt
	default:
		_ = s.cache.SaveStart(ctx, id, snap.StartedAt)
	}

	if answers, err := s.cache.Answers(ctx, id); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", id).Msg("Answer cache read failed")
	} else {
		for qid, letter := range parseAnswers(answers) {
			snap.Answers[qid] = letter
		}
	}

	if flags, err := s.cache.Flags(ctx, id); err == nil {
		for _, f := range flags {
			if qid, err := uuid.Parse(f); err == nil {
				snap.Flagged = append(snap.Flagged, qid)
			}
		}
	}

	if cursor, err := s.cache.Cursor(ctx, id); err == nil {
		snap.Cursor = cursor
	}
}

// track registers an in-progress session and starts its countdown. If
// another request registered the same attempt first, that one wins.
func (s *AttemptService) track(sess *session.Session) *live {
	id := sess.AttemptID()

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.active[id]; ok {
		return existing
	}

	l := &live{sess: sess, events: session.NewBroadcaster()}
	l.countdown = session.NewCountdown(sess, s.persistFor(id), session.CountdownHooks{
		OnTick: func(remaining int) {
			l.publish(session.EventTick, map[string]int{"remaining_seconds": remaining})
		},
		OnExpire: func(res model.AttemptResult, submitted bool, err error) {
			if err != nil {
				s.log.Error().Err(err).Str("attempt_id", id.String()).Msg("Timeout submit failed")
				l.publish(session.EventError, map[string]string{"message": "automatic submission failed"})
				return
			}
			if submitted {
				s.log.Info().Str("attempt_id", id.String()).Int("score", res.Score).Msg("Attempt timed out")
				s.finish(l, res)
			}
		},
	})
	s.active[id] = l
	l.countdown.Start(s.ctx)
	return l
}

// persistFor is the completion write used by timeouts.
func (s *AttemptService) persistFor(attemptID uuid.UUID) func(model.AttemptResult) error {
	return func(res model.AttemptResult) error {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		_, err := s.attempts.Complete(ctx, attemptID, res)
		return err
	}
}

// finish tears down a completed session.
func (s *AttemptService) finish(l *live, res model.AttemptResult) {
	id := l.sess.AttemptID()
	if l.countdown != nil {
		l.countdown.Stop()
	}
	if l.events != nil {
		l.publish(session.EventCompleted, res)
		l.events.Close()
	}
	s.drop(id)

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.cache.Clear(ctx, id.String()); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", id.String()).Msg("Failed to clear session cache")
	}
}

func (s *AttemptService) drop(attemptID uuid.UUID) {
	s.mu.Lock()
	l, ok := s.active[attemptID]
	delete(s.active, attemptID)
	s.mu.Unlock()

	if ok {
		l.countdown.Stop()
		l.events.Close()
	}
}

func (l *live) publish(t session.EventType, data any) {
	if l.events != nil {
		l.events.Publish(session.Event{Type: t, Data: data})
	}
}

func parseAnswers(raw map[string]string) map[uuid.UUID]string {
	out := make(map[uuid.UUID]string, len(raw))
	for k, v := range raw {
		if id, err := uuid.Parse(k); err == nil {
			out[id] = v
		}
	}
	return out
}

func mapSessionErr(err error) error {
	switch {
	case errors.Is(err, session.ErrCompleted):
		return ErrAttemptCompleted
	case errors.Is(err, session.ErrInvalidAnswer):
		return ErrInvalidAnswer
	case errors.Is(err, session.ErrUnknownQuestion):
		return ErrUnknownQuestion
	case errors.Is(err, session.ErrNoQuestions):
		return ErrNoQuestions
	}
	return err
}
