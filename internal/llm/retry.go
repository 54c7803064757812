package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"realestate-rag/internal/contextutil"
)

const (
	defaultBaseDelay = 200 * time.Millisecond
	defaultMaxDelay  = 5 * time.Second
)

// RetryPolicy controls how failed calls to a model endpoint are retried.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy returns a policy with exponential backoff starting at 200ms, capped at 5s.
func DefaultRetryPolicy(maxAttempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		BaseDelay:   defaultBaseDelay,
		MaxDelay:    defaultMaxDelay,
	}
}

// StatusError is returned when an endpoint answers with a non-200 status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bad status %d: %s", e.Code, e.Body)
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= http.StatusInternalServerError
}

// permanentError marks a failure that must not be retried.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func isRetryable(err error) bool {
	var pe *permanentError
	if errors.As(err, &pe) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return true
}

// Do runs fn until it succeeds, fails permanently, or the attempts run out.
// It returns the number of attempts made alongside the last error.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) (int, error) {
	logger := contextutil.LoggerFromContext(ctx)

	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	backoff := p.BaseDelay
	if backoff <= 0 {
		backoff = defaultBaseDelay
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelay
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return attempt, nil
		}
		if ctx.Err() != nil {
			return attempt, fmt.Errorf("%s cancelled: %w", op, ctx.Err())
		}
		if !isRetryable(lastErr) || attempt == maxAttempts {
			return attempt, lastErr
		}

		logger.WarnContext(ctx, "retrying after failure",
			"op", op,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"backoff", backoff,
			"error", lastErr,
		)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return attempt, fmt.Errorf("%s cancelled: %w", op, ctx.Err())
		}
		backoff *= 2
		if backoff > maxDelay {
			backoff = maxDelay
		}
	}
	return maxAttempts, lastErr
}
