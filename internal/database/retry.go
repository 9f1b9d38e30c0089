package database

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// connectAttempts and connectBackoff bound how long startup waits for a
// backing store that is still coming up.
const (
	connectAttempts = 5
	connectBackoff  = time.Second
)

// retry calls fn until it succeeds, ctx is done, or the attempts run out.
// The delay doubles after every failure.
func retry(ctx context.Context, log zerolog.Logger, target string, fn func(context.Context) error) error {
	delay := connectBackoff
	var err error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = fn(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		if attempt == connectAttempts {
			break
		}

		log.Warn().
			Err(err).
			Str("target", target).
			Int("attempt", attempt).
			Dur("retry_in", delay).
			Msg("Connection failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
