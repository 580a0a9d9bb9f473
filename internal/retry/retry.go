package retry

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/sheetify/internal/metrics"
)

// Caller wraps remote calls with a bounded attempt ceiling and linear backoff
// (attempt * Delay between attempts). On exhaustion the last error is returned
// to the caller; nothing is swallowed here.
type Caller struct {
	Attempts int
	Delay    time.Duration
}

func New(attempts int, delay time.Duration) Caller {
	return Caller{Attempts: attempts, Delay: delay}
}

// Do runs fn until it succeeds or the attempt ceiling is reached. op names the
// call for logging and metrics.
func (c Caller) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := c.Attempts
	if attempts <= 0 {
		attempts = 3
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		log.Warn().Err(lastErr).Str("op", op).Int("attempt", attempt).Msg("remote call failed")
		if attempt == attempts {
			break
		}
		metrics.IncRetry(op)
		select {
		case <-time.After(time.Duration(attempt) * c.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

// Call is Do for functions that return a value.
func Call[T any](ctx context.Context, c Caller, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := c.Do(ctx, op, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}
