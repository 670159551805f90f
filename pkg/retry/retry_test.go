package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastOptions() Options {
	return Options{
		MaxAttempts:       3,
		InitialDelay:      time.Millisecond,
		MaxDelay:          5 * time.Millisecond,
		BackoffMultiplier: 2,
	}
}

func TestIsRetryable(t *testing.T) {
	retryable := []error{
		errors.New("context deadline exceeded: timeout"),
		errors.New("read tcp: connection reset by peer"),
		errors.New("dial tcp: connection refused"),
		errors.New("lookup api.example.com: no such host"),
		errors.New("rate limit exceeded"),
		errors.New("429 Too Many Requests"),
		errors.New("googleapi: Error 503: service unavailable"),
		errors.New("RESOURCE_EXHAUSTED: quota exceeded"),
		errors.New("unexpected EOF"),
	}
	for _, err := range retryable {
		assert.True(t, IsRetryable(err, nil), "expected retryable: %v", err)
	}

	permanent := []error{
		errors.New("invalid API key"),
		errors.New("record not found"),
		errors.New("400 bad request"),
	}
	for _, err := range permanent {
		assert.False(t, IsRetryable(err, nil), "expected permanent: %v", err)
	}

	assert.False(t, IsRetryable(nil, nil))
}

func TestDelayBounds(t *testing.T) {
	opts := Options{
		InitialDelay:      time.Second,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2,
	}

	for attempt := 1; attempt <= 6; attempt++ {
		d := Delay(attempt, opts)
		base := time.Duration(float64(opts.InitialDelay) * pow(2, attempt-1))
		if base > opts.MaxDelay {
			base = opts.MaxDelay
		}
		// Jitter adds at most 10% on top of the capped base.
		assert.GreaterOrEqual(t, d, base, "attempt %d", attempt)
		assert.LessOrEqual(t, d, base+base/10, "attempt %d", attempt)
	}
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastOptions(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("connection reset by peer")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	attempts := 0
	permanent := errors.New("invalid credentials")
	err := Do(context.Background(), fastOptions(), func(ctx context.Context) error {
		attempts++
		return permanent
	})

	assert.Equal(t, permanent, err)
	assert.Equal(t, 1, attempts)
}

func TestDoReturnsLastErrorAfterBudget(t *testing.T) {
	attempts := 0
	transient := errors.New("request timeout")
	err := Do(context.Background(), fastOptions(), func(ctx context.Context) error {
		attempts++
		return transient
	})

	assert.Equal(t, transient, err)
	assert.Equal(t, 3, attempts)
}

func TestDoRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	opts := fastOptions()
	opts.InitialDelay = time.Second
	opts.MaxDelay = time.Second

	attempts := 0
	errCh := make(chan error, 1)
	go func() {
		errCh <- Do(ctx, opts, func(ctx context.Context) error {
			attempts++
			return errors.New("timeout")
		})
	}()

	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Do did not return after context cancellation")
	}
}

func TestDoInvokesOnRetry(t *testing.T) {
	var retried []int
	opts := fastOptions()
	opts.OnRetry = func(err error, attempt int) {
		retried = append(retried, attempt)
	}

	attempts := 0
	err := Do(context.Background(), opts, func(ctx context.Context) error {
		attempts++
		if attempts < 2 {
			return errors.New("service unavailable")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []int{1}, retried)
}

func TestDoWithResult(t *testing.T) {
	attempts := 0
	result, err := DoWithResult(context.Background(), fastOptions(), func(ctx context.Context) (string, error) {
		attempts++
		if attempts == 1 {
			return "", errors.New("timeout")
		}
		return "done", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "done", result)
	assert.Equal(t, 2, attempts)
}
