package ai

import (
	"fmt"
	"time"
)

// StatusError carries the upstream HTTP status of a failed model call so the
// retry executor can classify it. RetryAfter is the server's wait hint when
// one was sent, zero otherwise.
type StatusError struct {
	Status     int
	RetryAfter time.Duration
	Err        error
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("upstream status %d", e.Status)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the status warrants another attempt: rate
// limiting or a server-side failure, except 501 which no retry can fix.
func (e *StatusError) Retryable() bool {
	if e.Status == 429 {
		return true
	}
	return e.Status >= 500 && e.Status != 501
}
