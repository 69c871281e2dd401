// Package retry provides exponential-backoff retry logic for collaborator
// calls that may fail transiently, such as acknowledgment delivery.
//
// Usage:
//
//	err := retry.Do(ctx, retry.Config{MaxAttempts: 3}, func(ctx context.Context, attempt int) error {
//	    return sink.MarkFunctionCallsAsConfirmed(ctx, threadID, responseID, results)
//	})
//
// Wrap an error with Permanent to stop retrying immediately.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Config controls the retry behaviour.
type Config struct {
	// MaxAttempts is the total number of attempts (including the first).
	// Zero or negative values are treated as 1.
	MaxAttempts int
	// InitialDelay is the wait before the second attempt; later waits double
	// up to MaxDelay.
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// ShouldRetry classifies errors as retryable. Nil retries everything
	// except errors wrapped with Permanent.
	ShouldRetry func(err error) bool
	// Label is included in debug logs to identify the operation.
	Label string
}

// DefaultConfig suits short request/response calls to the backend.
var DefaultConfig = Config{
	MaxAttempts:  3,
	InitialDelay: 200 * time.Millisecond,
	MaxDelay:     5 * time.Second,
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Do calls fn until it succeeds, returns a non-retryable error, the attempts
// are exhausted, or ctx is done. attempt starts at 1. The last error is
// returned, unwrapped from Permanent.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context, attempt int) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultConfig.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultConfig.MaxDelay
	}

	delay := cfg.InitialDelay
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Join(lastErr, err)
		}

		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return nil
		}
		if IsPermanent(lastErr) {
			return errors.Unwrap(lastErr)
		}
		if cfg.ShouldRetry != nil && !cfg.ShouldRetry(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		slog.Debug("retry: attempt failed",
			"op", cfg.Label, "attempt", attempt, "max", cfg.MaxAttempts,
			"err", lastErr, "delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(lastErr, ctx.Err())
		case <-timer.C:
		}

		delay *= 2
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return lastErr
}
