package retry

import (
	"context"
	"math"
	"math/rand"
	"regexp"
	"time"
)

// Options controls the retry behaviour of Do.
type Options struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	// RetryablePatterns overrides the default transient-error signatures.
	// Patterns are matched against the error text.
	RetryablePatterns []*regexp.Regexp
	// OnRetry is invoked before each re-attempt with the failed error and
	// the attempt number that just failed.
	OnRetry func(err error, attempt int)
}

// DefaultOptions mirror the usual budget for LLM and store calls.
func DefaultOptions() Options {
	return Options{
		MaxAttempts:       3,
		InitialDelay:      time.Second,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2,
	}
}

// Transient-failure signatures: timeouts, connection drops, rate limits and
// server errors. Matched case-insensitively against the error text.
var defaultRetryablePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)timeout`),
	regexp.MustCompile(`(?i)timed out`),
	regexp.MustCompile(`(?i)connection reset`),
	regexp.MustCompile(`(?i)connection refused`),
	regexp.MustCompile(`(?i)no such host`),
	regexp.MustCompile(`(?i)rate limit`),
	regexp.MustCompile(`(?i)too many requests`),
	regexp.MustCompile(`(?i)resource exhausted`),
	regexp.MustCompile(`429`),
	regexp.MustCompile(`50[0-9]`),
	regexp.MustCompile(`(?i)network`),
	regexp.MustCompile(`(?i)unavailable`),
	regexp.MustCompile(`(?i)EOF`),
}

// IsRetryable reports whether err matches the transient-failure signatures.
func IsRetryable(err error, patterns []*regexp.Regexp) bool {
	if err == nil {
		return false
	}
	if len(patterns) == 0 {
		patterns = defaultRetryablePatterns
	}
	msg := err.Error()
	for _, p := range patterns {
		if p.MatchString(msg) {
			return true
		}
	}
	return false
}

// Delay computes the backoff before the given failed attempt is retried:
// min(initial * multiplier^(attempt-1), max) plus up to 10% random jitter.
func Delay(attempt int, opts Options) time.Duration {
	exponential := float64(opts.InitialDelay) * math.Pow(opts.BackoffMultiplier, float64(attempt-1))
	capped := math.Min(exponential, float64(opts.MaxDelay))
	jitter := rand.Float64() * capped * 0.1
	return time.Duration(capped + jitter)
}

// Do executes op, retrying transient failures with exponential backoff.
// Non-retryable errors are returned immediately; after MaxAttempts failures
// the last error is returned. The backoff sleep respects ctx cancellation.
func Do(ctx context.Context, opts Options, op func(ctx context.Context) error) error {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = time.Second
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 10 * time.Second
	}
	if opts.BackoffMultiplier <= 0 {
		opts.BackoffMultiplier = 2
	}

	var lastErr error
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		if !IsRetryable(lastErr, opts.RetryablePatterns) {
			return lastErr
		}
		if attempt == opts.MaxAttempts {
			return lastErr
		}

		if opts.OnRetry != nil {
			opts.OnRetry(lastErr, attempt)
		}

		select {
		case <-time.After(Delay(attempt, opts)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

// DoWithResult is Do for operations that produce a value.
func DoWithResult[T any](ctx context.Context, opts Options, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := Do(ctx, opts, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	})
	return result, err
}
