package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/testlink-backend/internal/response"
)

// Counter increments a windowed hit counter and returns the new count.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RedisCounter keeps counters in Redis so every instance shares the limit.
type RedisCounter struct {
	rdb *redis.Client
}

func NewRedisCounter(rdb *redis.Client) *RedisCounter {
	return &RedisCounter{rdb: rdb}
}

// Incr increments key and starts its expiry on the first hit of a window.
func (r *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := r.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// RateLimiter is a fixed-window per-IP limiter.
type RateLimiter struct {
	counter Counter
	scope   string
	rate    int           // Requests per window
	window  time.Duration // Window length
	log     zerolog.Logger
}

// NewRateLimiter creates a RateLimiter (e.g., 10 requests per minute).
// scope separates the counters of different routes.
func NewRateLimiter(counter Counter, scope string, rate int, window time.Duration, log zerolog.Logger) *RateLimiter {
	return &RateLimiter{
		counter: counter,
		scope:   scope,
		rate:    rate,
		window:  window,
		log:     log.With().Str("component", "ratelimit").Str("scope", scope).Logger(),
	}
}

// Middleware returns a Gin middleware that rate-limits requests by IP.
// Counter failures let the request through.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.rate <= 0 {
			c.Next()
			return
		}

		now := time.Now()
		bucket := now.Truncate(rl.window).Unix()
		key := fmt.Sprintf("ratelimit:%s:%s:%d", rl.scope, c.ClientIP(), bucket)

		hits, err := rl.counter.Incr(c.Request.Context(), key, rl.window)
		if err != nil {
			rl.log.Warn().Err(err).Msg("Rate limit counter unavailable")
			c.Next()
			return
		}

		remaining := max(0, int64(rl.rate)-hits)
		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.rate))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if hits > int64(rl.rate) {
			retry := now.Truncate(rl.window).Add(rl.window).Sub(now)
			c.Header("Retry-After", strconv.Itoa(int(retry.Seconds())+1))
			response.AbortFail(c, http.StatusTooManyRequests, response.ErrRateLimitExceeded)
			return
		}
		c.Next()
	}
}
