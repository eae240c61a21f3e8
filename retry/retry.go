// Package retry provides retry logic with exponential backoff and jitter.
// Errors are retried by default; wrap an error with MarkPermanent to stop
// retrying immediately.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseWait   = 1 * time.Second
)

// Option configures a call to Do.
type Option func(*config)

type config struct {
	maxRetries int
	baseWait   time.Duration
}

// WithMaxRetries sets the maximum number of attempts.
func WithMaxRetries(maxRetries int) Option {
	return func(c *config) {
		c.maxRetries = maxRetries
	}
}

// WithBaseWait sets the base wait duration for the exponential backoff.
func WithBaseWait(baseWait time.Duration) Option {
	return func(c *config) {
		c.baseWait = baseWait
	}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string {
	return e.err.Error()
}

func (e *permanentError) Unwrap() error {
	return e.err
}

// MarkPermanent wraps an error so that Do will not retry it.
func MarkPermanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type recoverableError struct {
	err error
}

func (e *recoverableError) Error() string {
	return e.err.Error()
}

func (e *recoverableError) Unwrap() error {
	return e.err
}

// NewRecoverableError wraps an error to explicitly mark it as retryable.
func NewRecoverableError(err error) error {
	if err == nil {
		return nil
	}
	return &recoverableError{err: err}
}

// IsRecoverable reports whether the error was wrapped with NewRecoverableError.
func IsRecoverable(err error) bool {
	var recoverable *recoverableError
	return errors.As(err, &recoverable)
}

// Do executes the given function, retrying failures with exponential backoff
// until it succeeds, the attempts are exhausted, the error is marked
// permanent, or the context is canceled.
func Do(ctx context.Context, f func() error, opts ...Option) error {
	c := &config{
		maxRetries: DefaultMaxRetries,
		baseWait:   DefaultBaseWait,
	}
	for _, opt := range opts {
		opt(c)
	}

	var lastError error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(float64(c.baseWait) * math.Pow(2, float64(attempt-1)))
			jitter := time.Duration(rand.Float64() * float64(backoff) * 0.1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff + jitter):
			}
		}
		err := f()
		if err == nil {
			return nil
		}
		var permanent *permanentError
		if errors.As(err, &permanent) {
			return permanent.err
		}
		lastError = err
	}
	var recoverable *recoverableError
	if errors.As(lastError, &recoverable) {
		return recoverable.err
	}
	return lastError
}
