package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/stemsi/testlink-backend/internal/config"
	"github.com/stemsi/testlink-backend/internal/model"
	"github.com/stemsi/testlink-backend/internal/service"
)

const (
	// ExpiryBatchSize bounds how many attempts one ExpireOverdue call scans.
	ExpiryBatchSize = 100
	// ExpiryMaxBatches bounds the batches per sweep.
	ExpiryMaxBatches = 10
)

// Expirer closes attempts that outlived their deadline.
type Expirer interface {
	ExpireOverdue(ctx context.Context, after *model.OverdueCursor, limit int) (service.ExpireBatch, error)
}

// Locker is a cluster-wide mutex so one instance sweeps at a time.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// RedisLocker implements Locker with SET NX and a token-checked delete.
type RedisLocker struct {
	rdb *redis.Client
}

func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{rdb: rdb}
}

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.rdb, []string{key}, token).Err()
	}, true, nil
}

// ExpiryWorker periodically closes attempts whose countdown never fired,
// e.g. because the process that held them stopped.
type ExpiryWorker struct {
	expirer  Expirer
	locker   Locker
	schedule string
	log      zerolog.Logger

	// cursor carries an unfinished scan into the next sweep.
	mu     sync.Mutex
	cursor *model.OverdueCursor
}

func NewExpiryWorker(expirer Expirer, locker Locker, schedule string, log zerolog.Logger) *ExpiryWorker {
	return &ExpiryWorker{
		expirer:  expirer,
		locker:   locker,
		schedule: schedule,
		log:      log.With().Str("component", "expiry_worker").Logger(),
	}
}

// ----------------------------------------------------------------
// Scheduling
// ----------------------------------------------------------------

// Start schedules the sweep and blocks until ctx is cancelled, then waits
// for a running sweep to finish.
func (w *ExpiryWorker) Start(ctx context.Context) error {
	logger := cron.PrintfLogger(&w.log)
	c := cron.New(cron.WithChain(
		cron.Recover(logger),
		cron.SkipIfStillRunning(logger),
	))

	if _, err := c.AddFunc(w.schedule, func() { w.Sweep(ctx) }); err != nil {
		return fmt.Errorf("schedule %q: %w", w.schedule, err)
	}

	c.Start()
	w.log.Info().Str("schedule", w.schedule).Msg("ExpiryWorker started")

	<-ctx.Done()
	w.log.Info().Msg("Shutdown requested. Waiting for running sweep...")
	<-c.Stop().Done()
	return nil
}

// ----------------------------------------------------------------
// Sweep
// ----------------------------------------------------------------

// Sweep closes overdue attempts in batches while holding the sweep lock.
// It returns how many were closed.
func (w *ExpiryWorker) Sweep(ctx context.Context) int {
	release, ok, err := w.locker.Acquire(ctx, config.WorkerKey.ExpirySweepLock, config.WorkerKey.ExpirySweepLockTTL)
	if err != nil {
		w.log.Error().Err(err).Msg("Sweep lock error")
		return 0
	}
	if !ok {
		w.log.Debug().Msg("Sweep running elsewhere, skipping")
		return 0
	}
	defer release()

	w.mu.Lock()
	defer w.mu.Unlock()

	total := 0
	for range ExpiryMaxBatches {
		if ctx.Err() != nil {
			break
		}

		batch, err := w.expirer.ExpireOverdue(ctx, w.cursor, ExpiryBatchSize)
		if err != nil {
			w.log.Error().Err(err).Msg("Expire overdue attempts failed")
			break
		}
		total += batch.Closed
		if batch.Scanned < ExpiryBatchSize {
			w.cursor = nil
			break
		}
		w.cursor = batch.Next
	}

	if total > 0 {
		w.log.Info().Int("closed", total).Msg("Overdue attempts closed")
	}
	return total
}
