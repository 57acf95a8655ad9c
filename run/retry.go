package run

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"time"

	"goa.design/grail/engine"
)

type (
	// RetryConfig configures retries around engine calls. Only transient
	// transport failures are retried; errors raised by the program itself
	// (runtime, limit, or type-check failures) never are.
	RetryConfig struct {
		// MaxAttempts is the maximum number of attempts including the
		// initial one. Zero or one means no retries.
		MaxAttempts int
		// InitialBackoff is the delay before the first retry.
		InitialBackoff time.Duration
		// MaxBackoff caps the delay between retries.
		MaxBackoff time.Duration
		// BackoffMultiplier grows the backoff after each retry; 2.0 gives
		// exponential backoff.
		BackoffMultiplier float64
		// Jitter adds up to the given fraction of randomness to each delay.
		Jitter float64
		// Retryable overrides the default transient-error detection.
		Retryable func(error) bool
	}

	// RetryExhaustedError is returned when every attempt failed.
	RetryExhaustedError struct {
		// Attempts is the number of attempts made.
		Attempts int
		// TotalDuration is the total time spent retrying.
		TotalDuration time.Duration
		// LastError is the error from the last attempt.
		LastError error
	}
)

// DefaultRetryConfig returns a sensible default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
	}
}

// Error implements the error interface.
func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts over %v: %v", e.Attempts, e.TotalDuration, e.LastError)
}

// Unwrap returns the last attempt's error.
func (e *RetryExhaustedError) Unwrap() error { return e.LastError }

// isTransient reports whether an engine call failure may succeed on retry.
// Program failures are deterministic and never retried.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var re *engine.RuntimeError
	var le *engine.LimitError
	var tce *engine.TypeCheckError
	if errors.As(err, &re) || errors.As(err, &le) || errors.As(err, &tce) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// doRetry executes fn with retry logic, retrying transient failures with
// exponential backoff.
func doRetry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	retryable := cfg.Retryable
	if retryable == nil {
		retryable = isTransient
	}

	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable(err) {
			return err
		}
		if attempt >= cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoffFor(cfg, attempt)):
		}
	}
	return &RetryExhaustedError{
		Attempts:      cfg.MaxAttempts,
		TotalDuration: time.Since(start),
		LastError:     lastErr,
	}
}

// backoffFor computes the delay before the given retry attempt.
func backoffFor(cfg RetryConfig, attempt int) time.Duration {
	backoff := float64(cfg.InitialBackoff) * math.Pow(cfg.BackoffMultiplier, float64(attempt-1))
	if backoff > float64(cfg.MaxBackoff) {
		backoff = float64(cfg.MaxBackoff)
	}
	if cfg.Jitter > 0 {
		backoff += backoff * cfg.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(backoff)
}
