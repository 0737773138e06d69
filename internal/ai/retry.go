package ai

import (
	"context"
	"errors"
	"time"

	"atende_backend/platform/logger"
)

// RetryOptions bound the retry executor. Delays double per attempt from
// BaseDelay and never exceed MaxDelay.
type RetryOptions struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryOptions matches the upstream providers' published guidance.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    16 * time.Second,
	}
}

// WithRetry runs call up to opts.MaxAttempts times. Only rate-limit and
// server-side failures are retried; a server-provided wait hint overrides
// the computed backoff. The last error is returned when attempts run out.
func WithRetry(ctx context.Context, log *logger.Logger, opts RetryOptions, call func(ctx context.Context) error) error {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}

	var lastErr error
	delay := opts.BaseDelay

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		lastErr = call(ctx)
		if lastErr == nil {
			return nil
		}

		var statusErr *StatusError
		if !errors.As(lastErr, &statusErr) || !statusErr.Retryable() {
			return lastErr
		}
		if attempt == opts.MaxAttempts {
			return lastErr
		}

		wait := delay
		if wait > opts.MaxDelay {
			wait = opts.MaxDelay
		}
		// MaxDelay bounds only the computed backoff; a server-provided wait
		// hint is honored as given.
		if statusErr.RetryAfter > 0 {
			wait = statusErr.RetryAfter
		}
		log.RetryWait(statusErr.Status, attempt, opts.MaxAttempts, wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > opts.MaxDelay {
			delay = opts.MaxDelay
		}
	}
	return lastErr
}
