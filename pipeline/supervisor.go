package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Retryable marks err as retryable. Use with RetryPolicy.ShouldRetry so only
// these errors trigger another attempt (e.g. transient failures), not permanent ones.
type Retryable struct{ Err error }

func (e *Retryable) Error() string { return e.Err.Error() }
func (e *Retryable) Unwrap() error { return e.Err }
func RetryableErr(err error) error { return &Retryable{Err: err} }
func IsRetryable(err error) bool   { return errors.As(err, new(*Retryable)) }

// RetryPolicy configures Supervise. Attempt n (0-based) waits
// Initial * Multiplier^n before starting, capped at Cap.
type RetryPolicy struct {
	MaxAttempts int           // total attempts including the first; <= 1 means no retry
	Initial     time.Duration // default 1s
	Multiplier  float64       // default 2
	Cap         time.Duration // default backoff.DefaultMaxInterval
	// ShouldRetry decides whether a failed attempt is retried. Nil retries every
	// error. Context cancellation is never retried.
	ShouldRetry func(err error) bool
}

func (p RetryPolicy) backOff() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.Initial,
		RandomizationFactor: 0,
		Multiplier:          p.Multiplier,
		MaxInterval:         p.Cap,
	}
	if b.InitialInterval <= 0 {
		b.InitialInterval = time.Second
	}
	if b.Multiplier <= 1 {
		b.Multiplier = 2
	}
	if b.MaxInterval <= 0 {
		b.MaxInterval = backoff.DefaultMaxInterval
	}
	b.Reset()
	return b
}

// BuildFunc returns a fresh Pipeline (with fresh stage instances) for one attempt.
type BuildFunc func() (*Pipeline, error)

// Supervise runs the pipeline returned by build and, while the failure is
// retryable and attempts remain, builds and runs it again after a backoff.
// Each attempt runs against the same checkpoint namespace, so a resumable
// source picks up from the snapshot the failed attempt left behind. Returns the
// processed count of the last attempt.
func Supervise(ctx context.Context, build BuildFunc, reporter Reporter, policy RetryPolicy, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	attempt := 0
	operation := func() (int, error) {
		attempt++
		p, err := build()
		if err != nil {
			return 0, backoff.Permanent(fmt.Errorf("build pipeline: %w", err))
		}
		n, err := p.Run(ctx, reporter)
		if err == nil {
			return n, nil
		}
		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return n, backoff.Permanent(err)
		}
		if policy.ShouldRetry != nil && !policy.ShouldRetry(err) {
			return n, backoff.Permanent(err)
		}
		return n, err
	}
	notify := func(err error, next time.Duration) {
		logger.WarnContext(ctx, "pipeline attempt failed, retrying", "attempt", attempt, "max_attempts", maxAttempts, "retry_in", next, "error", err)
	}
	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy.backOff()),
		backoff.WithMaxTries(uint(maxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
}
