// Package retry runs remote operations with exponential backoff.
//
// [Run] is generic over the operation's result so call sites keep their concrete types:
//
//	tracks, err := retry.Run(ctx, r, func(ctx context.Context) ([]Track, error) {
//		return fetchPage(ctx, path)
//	})
//
// The retrier does not inspect the failure. Every error is retried until the policy is exhausted, then the last
// error is returned unchanged.
package retry

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/charmbracelet/log"
)

// Policy controls how many times and how far apart an operation is retried.
//
// MaxRetries counts attempts after the first, so an operation runs at most MaxRetries+1 times.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
}

// DefaultPolicy returns {3 retries, 1s base, 10s cap, x2}.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   10 * time.Second,
		Multiplier: 2,
	}
}

// Delay returns the wait after the zero-based attempt: min(BaseDelay * Multiplier^attempt, MaxDelay).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	d := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// Operation is a single remote call. It is invoked once per attempt.
type Operation[T any] func(ctx context.Context) (T, error)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Retrier carries a [Policy] plus the hooks used between attempts.
type Retrier struct {
	Policy Policy
	Logger *log.Logger
	Sleep  SleepFunc // defaults to a timer bound to ctx
}

// New returns a Retrier for p.
func New(p Policy, logger *log.Logger) *Retrier {
	return &Retrier{Policy: p, Logger: logger}
}

// Run invokes op until it succeeds or the retrier's policy is exhausted.
//
// When ctx is cancelled during a backoff wait the last failure is returned joined with the context error.
// A nil retrier uses [DefaultPolicy].
func Run[T any](ctx context.Context, r *Retrier, op Operation[T]) (T, error) {
	if r == nil {
		r = New(DefaultPolicy(), nil)
	}

	sleep := r.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	maxRetries := max(r.Policy.MaxRetries, 0)

	var zero T
	for attempt := 0; ; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}

		if attempt >= maxRetries {
			return zero, err
		}

		delay := r.Policy.Delay(attempt)
		if r.Logger != nil {
			r.Logger.Warn("retrying", "attempt", attempt+1, "max_attempts", maxRetries+1, "delay", delay, "error", err)
		}

		if serr := sleep(ctx, delay); serr != nil {
			return zero, errors.Join(err, serr)
		}
	}
}

// Sleep blocks for d, returning ctx.Err() early if ctx is done first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
