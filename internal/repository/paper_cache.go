package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/testlink-backend/internal/config"
	"github.com/stemsi/testlink-backend/internal/model"
)

// PaperCache stores the student-facing paper of each test in Redis.
type PaperCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPaperCache creates a PaperCache. A zero ttl keeps entries until they
// are invalidated.
func NewPaperCache(rdb *redis.Client, ttl time.Duration) *PaperCache {
	return &PaperCache{rdb: rdb, ttl: ttl}
}

// Get returns the cached paper. ok is false on a cache miss.
func (c *PaperCache) Get(ctx context.Context, testID uuid.UUID) (*model.TestPaper, bool, error) {
	raw, err := c.rdb.Get(ctx, config.CacheKey.TestPaperKey(testID.String())).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get paper: %w", err)
	}

	var p model.TestPaper
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, false, fmt.Errorf("decode paper: %w", err)
	}
	return &p, true, nil
}

// Set stores a paper.
func (c *PaperCache) Set(ctx context.Context, p *model.TestPaper) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode paper: %w", err)
	}
	return c.rdb.Set(ctx, config.CacheKey.TestPaperKey(p.TestID.String()), raw, c.ttl).Err()
}

// Invalidate removes a test's paper.
func (c *PaperCache) Invalidate(ctx context.Context, testID uuid.UUID) error {
	return c.rdb.Del(ctx, config.CacheKey.TestPaperKey(testID.String())).Err()
}
