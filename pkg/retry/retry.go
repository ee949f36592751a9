package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Transient marks an error as worth retrying.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// Permanent marks an error as hopeless; the executor surfaces it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// FromStatus classifies a failed HTTP exchange: timeouts, rate limiting and
// server errors are transient, any other client error is permanent.
func FromStatus(statusCode int, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case statusCode == http.StatusRequestTimeout,
		statusCode == http.StatusTooManyRequests,
		statusCode >= http.StatusInternalServerError:
		return Transient(err)
	default:
		return Permanent(err)
	}
}

// IsTransient reports whether err was classified retryable. Unclassified
// network timeouts and cancellation-free deadline misses count as transient;
// everything else fails fast.
func IsTransient(err error) bool {
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	var pe *permanentError
	if errors.As(err, &pe) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Executor reruns flaky external calls a bounded number of times with
// exponentially growing delays. Only transient failures are retried.
type Executor struct {
	attempts  int
	baseDelay time.Duration
	maxDelay  time.Duration
}

func NewExecutor(attempts int, baseDelay, maxDelay time.Duration) *Executor {
	if attempts < 1 {
		attempts = 1
	}
	return &Executor{
		attempts:  attempts,
		baseDelay: baseDelay,
		maxDelay:  maxDelay,
	}
}

// Do runs fn until it succeeds, fails permanently, exhausts the attempt
// budget, or the context is cancelled between attempts.
func (e *Executor) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt < e.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(e.backoff(attempt)):
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsTransient(err) {
			return err
		}
		zap.S().Named("retry").Warnf("%s failed (attempt %d/%d): %v", op, attempt+1, e.attempts, err)
	}

	// keep the transient classification so the job records the right kind
	return fmt.Errorf("%s: %d attempts exhausted: %w", op, e.attempts, lastErr)
}

// backoff computes base * 2^(attempt-1), capped.
func (e *Executor) backoff(attempt int) time.Duration {
	// 2^62 overflows time.Duration long before the cap matters
	if attempt > 32 {
		return e.maxDelay
	}
	delay := e.baseDelay * time.Duration(1<<uint(attempt-1))
	if delay < 0 || delay > e.maxDelay {
		return e.maxDelay
	}
	return delay
}
