// Package retry provides a single retry policy used for every call to an
// external collaborator (LLM service, embedding service, vector store).
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// Policy defines bounded exponential backoff behavior.
type Policy struct {
	MaxAttempts   int           `json:"max_attempts"`
	BaseDelay     time.Duration `json:"base_delay"`
	MaxDelay      time.Duration `json:"max_delay"`
	BackoffFactor float64       `json:"backoff_factor"`
	JitterEnabled bool          `json:"jitter_enabled"`

	// IsRetryable decides whether an error is worth another attempt.
	// Defaults to DefaultIsRetryable.
	IsRetryable func(error) bool `json:"-"`
}

// LLMPolicy returns the retry policy for LLM calls: the hosted model rate
// limits aggressively, so it gets more attempts than the vector store.
func LLMPolicy() Policy {
	return Policy{
		MaxAttempts:   5,
		BaseDelay:     time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
		JitterEnabled: true,
	}
}

// VectorStorePolicy returns the retry policy for vector store calls.
func VectorStorePolicy() Policy {
	return Policy{
		MaxAttempts:   3,
		BaseDelay:     500 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2.0,
		JitterEnabled: true,
	}
}

// Do runs fn until it succeeds, the error is not retryable, the attempt
// budget is exhausted, or ctx is cancelled.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.BackoffFactor <= 1 {
		p.BackoffFactor = 2.0
	}
	isRetryable := p.IsRetryable
	if isRetryable == nil {
		isRetryable = DefaultIsRetryable
	}

	var lastErr error
	delay := p.BaseDelay

	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.jittered(delay)):
			}
			delay = time.Duration(float64(delay) * p.BackoffFactor)
			if p.MaxDelay > 0 && delay > p.MaxDelay {
				delay = p.MaxDelay
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", p.MaxAttempts, lastErr)
}

// jittered applies up to +/-25% jitter to a delay.
func (p Policy) jittered(delay time.Duration) time.Duration {
	if !p.JitterEnabled || delay <= 0 {
		return delay
	}
	jitter := time.Duration(float64(delay) * 0.25 * (2.0*rand.Float64() - 1.0))
	return delay + jitter
}

// DefaultIsRetryable treats network-shaped failures as retryable and
// everything else as permanent. Context cancellation is never retried.
func DefaultIsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	type retryable interface{ IsRetryable() bool }
	var r retryable
	if errors.As(err, &r) {
		return r.IsRetryable()
	}

	errorStr := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"connection refused", "connection reset", "timeout", "temporary failure",
		"service unavailable", "internal server error", "bad gateway",
		"too many requests", "rate limit",
	}
	for _, pattern := range retryablePatterns {
		if strings.Contains(errorStr, pattern) {
			return true
		}
	}
	return false
}
