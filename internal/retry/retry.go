// Package retry re-runs failed operations with exponential backoff. The core
// never retries on its own; callers that want retries wrap their calls here.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/dshills/pagecontext-mcp/pkg/types"
)

// Default backoff settings
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 100 * time.Millisecond
	DefaultMaxDelay    = 5 * time.Second
	DefaultMultiplier  = 2.0
)

// Config configures exponential backoff retry behavior
type Config struct {
	MaxAttempts int           // Total attempts, including the first
	BaseDelay   time.Duration // Initial delay between attempts
	MaxDelay    time.Duration // Maximum delay between attempts
	Multiplier  float64       // Exponential backoff multiplier

	// ShouldRetry decides whether an error is worth another attempt.
	// Nil means Transient.
	ShouldRetry func(error) bool
}

// DefaultConfig returns the default backoff with the given attempt count
func DefaultConfig(attempts int) Config {
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	return Config{
		MaxAttempts: attempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		Multiplier:  DefaultMultiplier,
	}
}

// Transient reports whether err belongs to a category that may succeed on a
// later attempt: provider and storage failures, but never cancellation.
func Transient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, types.ErrEmbeddingProvider) ||
		errors.Is(err, types.ErrAnswerProvider) ||
		errors.Is(err, types.ErrStorage)
}

// Do runs fn until it succeeds, returns a non-retryable error, runs out of
// attempts or ctx ends. The last error is returned.
func Do[T any](ctx context.Context, cfg Config, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = Transient
	}
	attempts := max(cfg.MaxAttempts, 1)
	backoff := cfg.BaseDelay

	for attempt := 0; attempt < attempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}

		lastErr = err

		if ctx.Err() != nil || !shouldRetry(err) {
			return zero, err
		}

		if attempt < attempts-1 {
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, lastErr
			case <-timer.C:
			}

			backoff = time.Duration(float64(backoff) * cfg.Multiplier)
			if cfg.MaxDelay > 0 && backoff > cfg.MaxDelay {
				backoff = cfg.MaxDelay
			}
		}
	}

	return zero, lastErr
}
