package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

// RetryPolicy bounds a Retry call.
type RetryPolicy struct {
	// Attempts is the maximum number of primary calls; values below
	// one are treated as one.
	Attempts int
	// BaseDelay is the first backoff interval. It doubles after every
	// failed attempt up to MaxDelay.
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// Fallback probes for an acceptable result after a failed attempt.
// Returning ok short-circuits the retry loop with the probed value.
type Fallback[T any] func(ctx context.Context, attemptErr error) (result T, ok bool, err error)

// ErrorPredicate reports whether err must not be retried.
type ErrorPredicate func(err error) bool

// Retry calls primary up to policy.Attempts times. Between attempts
// the fallbacks run in order and the first one reporting ok ends the
// loop successfully. An error matched by any of fatal is returned at
// once; fallback errors are logged and do not stop the loop.
func Retry[T any](ctx context.Context, policy RetryPolicy, primary func(context.Context) (T, error), fallbacks []Fallback[T], fatal ...ErrorPredicate) (T, error) {
	var zero T

	if policy.BaseDelay < 0 || policy.MaxDelay < 0 {
		return zero, &ErrInvalidInput{Field: "backoff", Message: "delays must not be negative"}
	}

	attempts := max(policy.Attempts, 1)
	b := newBackoff(policy.BaseDelay, policy.MaxDelay)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := primary(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if isFatal(err, fatal) {
			return zero, err
		}

		for _, probe := range fallbacks {
			probed, ok, perr := probe(ctx, err)
			if perr != nil {
				slog.Warn("retry fallback failed", "attempt", attempt, "error", perr)
				continue
			}
			if ok {
				return probed, nil
			}
		}

		if attempt == attempts {
			break
		}

		delay := b.Next()
		slog.Info("retrying after failure", "attempt", attempt, "delay", delay, "error", err)
		if !sleepCtx(ctx, delay) {
			return zero, &ErrCancelled{Cause: context.Cause(ctx)}
		}
	}

	return zero, fmt.Errorf("giving up after %d attempts: %w", attempts, lastErr)
}

func isFatal(err error, fatal []ErrorPredicate) bool {
	for _, p := range fatal {
		if p(err) {
			return true
		}
	}
	return false
}

// IsPermanent matches errors that retrying cannot fix: invalid input,
// caller cancellation and controller answers that will not change.
func IsPermanent(err error) bool {
	var invalid *ErrInvalidInput
	if errors.As(err, &invalid) {
		return true
	}

	var cancelled *ErrCancelled
	if errors.As(err, &cancelled) || errors.Is(err, context.Canceled) {
		return true
	}

	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		switch domainErr.Code {
		case ErrorCodeInvalidArgument, ErrorCodeNotFound, ErrorCodePermissionDenied, ErrorCodeUnauthenticated:
			return true
		}
	}
	return false
}

// sleepCtx blocks for d or until ctx is done.
// Returns true if the sleep completed (context still alive).
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// backoff implements simple exponential backoff capped at a maximum.
type backoff struct {
	base    time.Duration
	max     time.Duration
	current time.Duration
}

func newBackoff(base, max time.Duration) *backoff {
	if max < base {
		max = base
	}
	return &backoff{base: base, max: max, current: base}
}

// Next returns a delay drawn uniformly from [0, current) and doubles
// the interval for the next call.
func (b *backoff) Next() time.Duration {
	var jittered time.Duration
	if b.current > 0 {
		jittered = rand.N(b.current)
	}
	if b.current > b.max/2 {
		b.current = b.max
	} else {
		b.current *= 2
	}
	return jittered
}
