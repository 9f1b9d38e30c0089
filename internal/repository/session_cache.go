package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/testlink-backend/internal/config"
)

// SessionCache mirrors in-progress attempt state in Redis so that a
// restarted process can resume it.
type SessionCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewSessionCache creates a SessionCache whose keys expire after ttl.
func NewSessionCache(rdb *redis.Client, ttl time.Duration) *SessionCache {
	return &SessionCache{rdb: rdb, ttl: ttl}
}

// SaveStart stores the timer zero point as unix seconds.
func (c *SessionCache) SaveStart(ctx context.Context, attemptID string, startedAt time.Time) error {
	return c.rdb.Set(ctx, config.CacheKey.AttemptStartKey(attemptID), startedAt.Unix(), c.ttl).Err()
}

// Start returns the cached timer zero point. ok is false on a cache miss.
func (c *SessionCache) Start(ctx context.Context, attemptID string) (t time.Time, ok bool, err error) {
	val, err := c.rdb.Get(ctx, config.CacheKey.AttemptStartKey(attemptID)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("get start time: %w", err)
	}
	unix, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid start time format in cache: %w", err)
	}
	return time.Unix(unix, 0), true, nil
}

// SaveAnswer records one answer.
func (c *SessionCache) SaveAnswer(ctx context.Context, attemptID, questionID, letter string) error {
	key := config.CacheKey.AttemptAnswersKey(attemptID)
	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, key, questionID, letter)
	pipe.Expire(ctx, key, c.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// Answers returns all cached answers keyed by question id.
func (c *SessionCache) Answers(ctx context.Context, attemptID string) (map[string]string, error) {
	return c.rdb.HGetAll(ctx, config.CacheKey.AttemptAnswersKey(attemptID)).Result()
}

// SetFlag adds or removes a question from the flagged set.
func (c *SessionCache) SetFlag(ctx context.Context, attemptID, questionID string, flagged bool) error {
	key := config.CacheKey.AttemptFlagsKey(attemptID)
	pipe := c.rdb.TxPipeline()
	if flagged {
		pipe.SAdd(ctx, key, questionID)
	} else {
		pipe.SRem(ctx, key, questionID)
	}
	pipe.Expire(ctx, key, c.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// Flags returns the flagged question ids.
func (c *SessionCache) Flags(ctx context.Context, attemptID string) ([]string, error) {
	return c.rdb.SMembers(ctx, config.CacheKey.AttemptFlagsKey(attemptID)).Result()
}

// SaveCursor stores the current question index.
func (c *SessionCache) SaveCursor(ctx context.Context, attemptID string, cursor int) error {
	return c.rdb.Set(ctx, config.CacheKey.AttemptCursorKey(attemptID), cursor, c.ttl).Err()
}

// Cursor returns the cached question index, 0 on a miss.
func (c *SessionCache) Cursor(ctx context.Context, attemptID string) (int, error) {
	n, err := c.rdb.Get(ctx, config.CacheKey.AttemptCursorKey(attemptID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// Clear drops every key of an attempt.
func (c *SessionCache) Clear(ctx context.Context, attemptID string) error {
	return c.rdb.Del(ctx,
		config.CacheKey.AttemptStartKey(attemptID),
		config.CacheKey.AttemptAnswersKey(attemptID),
		config.CacheKey.AttemptFlagsKey(attemptID),
		config.CacheKey.AttemptCursorKey(attemptID),
	).Err()
}
