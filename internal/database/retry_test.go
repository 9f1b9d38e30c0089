package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRetry(t *testing.T) {
	errDown := errors.New("connection refused")

	t.Run("succeeds first time", func(t *testing.T) {
		calls := 0
		err := retry(context.Background(), zerolog.Nop(), "db", func(context.Context) error {
			calls++
			return nil
		})
		if err != nil || calls != 1 {
			t.Fatalf("err = %v, calls = %d", err, calls)
		}
	})

	t.Run("stops when context is cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- retry(ctx, zerolog.Nop(), "db", func(context.Context) error {
				return errDown
			})
		}()
		cancel()

		select {
		case err := <-done:
			if !errors.Is(err, context.Canceled) {
				t.Fatalf("err = %v, want context.Canceled", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("retry did not return after cancel")
		}
	})
}
