package errors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     4 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastRetryConfig(3), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastRetryConfig(2), func() error {
		attempts++
		return errors.New("always down")
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts, "initial attempt plus two retries")
	assert.Contains(t, err.Error(), "failed after 2 retries")
}

func TestRetrySurfacesPermanentErrorsImmediately(t *testing.T) {
	attempts := 0
	rejection := ValidationError(ErrCodeInvalidInput, "bad request")
	err := Retry(context.Background(), fastRetryConfig(3), func() error {
		attempts++
		return rejection
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts, "non-retryable errors must not be retried")
	assert.ErrorIs(t, err, rejection)
}

func TestRetryRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	cfg := RetryConfig{MaxRetries: 5, InitialDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 2}
	done := make(chan error, 1)
	go func() {
		done <- Retry(ctx, cfg, func() error {
			attempts++
			return errors.New("transient")
		})
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("retry did not observe cancellation")
	}
}

func TestRetryWithResultReturnsValue(t *testing.T) {
	calls := 0
	got, err := RetryWithResult(context.Background(), fastRetryConfig(2), func() (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("transient")
		}
		return "answer", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "answer", got)
}

func TestRemoteRetryConfigPolicy(t *testing.T) {
	cfg := RemoteRetryConfig()
	assert.Equal(t, 2, cfg.MaxRetries, "three attempts total")
	assert.Equal(t, 4*time.Second, cfg.InitialDelay)
	assert.Equal(t, 10*time.Second, cfg.MaxDelay)
}
