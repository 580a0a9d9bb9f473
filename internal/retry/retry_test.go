package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDoSucceedsOnThirdAttempt(t *testing.T) {
	calls := 0
	c := New(3, time.Millisecond)

	got, err := Call(context.Background(), c, "test", func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	require.Equal(t, "ok", got)
	require.Equal(t, 3, calls)
}

func TestDoReturnsLastErrorOnExhaustion(t *testing.T) {
	calls := 0
	wantErr := errors.New("still broken")
	c := New(3, time.Millisecond)

	err := c.Do(context.Background(), "test", func(ctx context.Context) error {
		calls++
		return wantErr
	})

	require.ErrorIs(t, err, wantErr)
	require.Equal(t, 3, calls)
}

func TestDoFirstAttemptSucceedsWithoutDelay(t *testing.T) {
	c := New(3, time.Hour)
	start := time.Now()
	err := c.Do(context.Background(), "test", func(ctx context.Context) error { return nil })
	require.NoError(t, err)
	require.Less(t, time.Since(start), time.Second)
}

func TestDoStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	c := New(3, time.Minute)

	err := c.Do(ctx, "test", func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("transient")
	})

	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}

func TestDoDefaultsToThreeAttempts(t *testing.T) {
	calls := 0
	c := Caller{Delay: time.Millisecond}

	_ = c.Do(context.Background(), "test", func(ctx context.Context) error {
		calls++
		return errors.New("transient")
	})

	require.Equal(t, 3, calls)
}
