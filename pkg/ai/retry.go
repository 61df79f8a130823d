package ai

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// RetryPolicy defines retry behavior for transient provider failures.
// Backoff is exponential with full jitter, capped at MaxBackoff.
type RetryPolicy struct {
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	BackoffFactor  float64       `yaml:"backoff_factor"`
}

// DefaultRetryPolicy returns the default retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     3,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
	}
}

// CalculateBackoff calculates the backoff duration for a given retry attempt.
func (p RetryPolicy) CalculateBackoff(retryCount int) time.Duration {
	if retryCount <= 0 {
		return p.InitialBackoff
	}
	backoff := p.InitialBackoff
	for i := 0; i < retryCount; i++ {
		backoff = time.Duration(float64(backoff) * p.BackoffFactor)
		if backoff > p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	return backoff
}

// ShouldRetry determines if an error should trigger a retry.
func (p RetryPolicy) ShouldRetry(err error, retryCount int) bool {
	if retryCount >= p.MaxRetries {
		return false
	}
	var llmErr *LLMError
	if errors.As(err, &llmErr) {
		return llmErr.Transient()
	}
	return false
}

// Do runs fn, retrying transient failures per the policy. The last error is
// returned when retries are exhausted or the error is permanent.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !p.ShouldRetry(err, attempt) {
			return err
		}

		backoff := p.CalculateBackoff(attempt)
		// Full jitter keeps a burst of retries from synchronizing.
		sleep := time.Duration(rand.Int63n(int64(backoff) + 1))
		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
