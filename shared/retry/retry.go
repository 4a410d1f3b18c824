// Package retry wraps remote calls in an exponential backoff policy.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Config holds retry configuration.
type Config struct {
	// MaxAttempts is the total number of times the operation is tried.
	// Values below 1 are treated as 1.
	MaxAttempts int
	// InitialBackoff is the delay before the second attempt.
	InitialBackoff time.Duration
	// MaxBackoff caps the delay between attempts. Zero means no cap.
	MaxBackoff time.Duration
	// Multiplier grows the delay after every failed attempt.
	Multiplier float64
	// OnRetry, when set, is called before sleeping ahead of another attempt.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultConfig returns three attempts with a backoff of 1s, 2s.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     time.Minute,
		Multiplier:     2.0,
	}
}

// Classifier reports whether an error is worth another attempt.
type Classifier func(error) bool

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Do runs fn until it succeeds, returns an error the classifier rejects, or
// the attempts run out. A nil classifier retries every error.
func Do(ctx context.Context, cfg Config, retryable Classifier, fn func(context.Context) error) error {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	multiplier := cfg.Multiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}

	backoff := cfg.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if retryable != nil && !retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		wait := backoff
		if cfg.MaxBackoff > 0 && wait > cfg.MaxBackoff {
			wait = cfg.MaxBackoff
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, wait)
		}

		if err := Sleep(ctx, wait); err != nil {
			return err
		}
		backoff = time.Duration(float64(backoff) * multiplier)
	}

	return &ExhaustedError{Attempts: attempts, Err: lastErr}
}

// Sleep waits for d or until ctx is done, whichever comes first.
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
