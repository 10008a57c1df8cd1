package httputil

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy is a fixed-delay retry: MaxAttempts total tries with Delay
// between consecutive tries and no sleep after the last one.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration

	// OnRetry is called after each failed attempt that will be retried.
	OnRetry func(attempt int, err error)
}

// Retry calls fn until it succeeds or the policy is exhausted. It returns the
// number of attempts made and the last error. Context cancellation stops
// retrying immediately.
func Retry(ctx context.Context, p RetryPolicy, fn func(ctx context.Context, attempt int) error) (int, error) {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return attempt, nil
		}
		if ctx.Err() != nil {
			return attempt, lastErr
		}
		if attempt == p.MaxAttempts {
			return attempt, lastErr
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, lastErr)
		}

		if p.Delay <= 0 {
			continue
		}
		timer := time.NewTimer(p.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, lastErr
		case <-timer.C:
		}
	}

	return p.MaxAttempts, lastErr
}

// RetryLogger returns an OnRetry callback that logs each failed attempt.
func RetryLogger(operation string, fields ...zap.Field) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("attempt failed, retrying",
			append([]zap.Field{
				zap.String("operation", operation),
				zap.Int("attempt", attempt),
				zap.Error(err),
			}, fields...)...,
		)
	}
}
