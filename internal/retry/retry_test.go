package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() *Config {
	return &Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

func TestWithExponentialBackoff_SucceedsAfterRetry(t *testing.T) {
	calls := 0
	result := WithExponentialBackoff(context.Background(), fastConfig(), func(ctx context.Context, attempt int) error {
		calls++
		if attempt < 3 {
			return errors.New("transient")
		}
		return nil
	})

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, 3, calls)
	assert.NoError(t, result.LastError)
}

func TestWithExponentialBackoff_StopsOnPermanentError(t *testing.T) {
	permanent := errors.New("bad request")
	cfg := fastConfig()
	cfg.Retryable = func(err error) bool { return !errors.Is(err, permanent) }

	calls := 0
	result := WithExponentialBackoff(context.Background(), cfg, func(ctx context.Context, attempt int) error {
		calls++
		return permanent
	})

	assert.False(t, result.Success)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, result.LastError, permanent)
}

func TestWithExponentialBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &Config{MaxAttempts: 5, InitialDelay: time.Hour, Multiplier: 2}

	done := make(chan *Result, 1)
	go func() {
		done <- WithExponentialBackoff(ctx, cfg, func(ctx context.Context, attempt int) error {
			return errors.New("unavailable")
		})
	}()
	cancel()

	select {
	case result := <-done:
		assert.False(t, result.Success)
		assert.ErrorIs(t, result.LastError, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("backoff did not observe cancellation")
	}
}

func TestDo(t *testing.T) {
	err := Do(context.Background(), fastConfig(), func(ctx context.Context, attempt int) error {
		return errors.New("down")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 3 attempts")

	single := &Config{MaxAttempts: 1}
	err = Do(context.Background(), single, func(ctx context.Context, attempt int) error {
		return errors.New("down")
	})
	assert.EqualError(t, err, "down")
}

func TestCalculateDelay(t *testing.T) {
	cfg := &Config{InitialDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, Multiplier: 2}

	assert.Equal(t, 100*time.Millisecond, calculateDelay(cfg, 1))
	assert.Equal(t, 200*time.Millisecond, calculateDelay(cfg, 2))
	assert.Equal(t, 300*time.Millisecond, calculateDelay(cfg, 3))
}
