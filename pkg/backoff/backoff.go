// Package backoff provides bounded exponential delay generation for retry
// pacing. An Exponential cursor hands out non-decreasing delays up to a
// ceiling; Do wraps the cursor into a complete retry loop for operations
// that can simply be re-invoked.
package backoff

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

var (
	// Thread-safe random source for jitter
	randMu     sync.Mutex
	randSource = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// Policy parameterizes an exponential backoff progression.
type Policy struct {
	// Initial is the first delay handed out.
	Initial time.Duration
	// Multiplier grows the delay after each step (typically 2.0).
	Multiplier float64
	// Max caps the delay; once reached every further delay equals Max.
	Max time.Duration
	// ResetOnSuccess controls whether the cursor rewinds to Initial after
	// the guarded operation succeeds. When false the cursor stays where the
	// last failure left it for the lifetime of the consumer.
	ResetOnSuccess bool
}

// DefaultPolicy returns the progression used by network egress components:
// 500ms doubling up to a 60s ceiling.
func DefaultPolicy() Policy {
	return Policy{
		Initial:        500 * time.Millisecond,
		Multiplier:     2.0,
		Max:            60 * time.Second,
		ResetOnSuccess: false,
	}
}

// Validate checks the policy for usable values.
func (p Policy) Validate() error {
	if p.Initial <= 0 {
		return errors.New("backoff: Initial must be positive")
	}
	if p.Multiplier < 1.0 {
		return errors.New("backoff: Multiplier must be >= 1.0")
	}
	if p.Max < p.Initial {
		return errors.New("backoff: Max must be >= Initial")
	}
	return nil
}

// Exponential is a stateful delay cursor. Each Next call returns the current
// delay and advances the cursor; the returned sequence is non-decreasing and
// never exceeds the policy ceiling. Not safe for concurrent use: it is meant
// to be owned by exactly one retry loop.
type Exponential struct {
	policy Policy
	next   time.Duration
}

// New creates an Exponential cursor positioned at the policy's initial delay.
func New(policy Policy) (*Exponential, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Exponential{policy: policy, next: policy.Initial}, nil
}

// Next returns the current delay and advances the cursor.
func (b *Exponential) Next() time.Duration {
	delay := b.next

	grown := float64(b.next) * b.policy.Multiplier
	if grown >= float64(b.policy.Max) || grown > float64(1<<62) {
		b.next = b.policy.Max
	} else {
		b.next = time.Duration(grown)
	}

	return delay
}

// Reset rewinds the cursor to the initial delay.
func (b *Exponential) Reset() {
	b.next = b.policy.Initial
}

// Settle tells the cursor the guarded operation succeeded. It rewinds only
// when the policy asks for reset-on-success.
func (b *Exponential) Settle() {
	if b.policy.ResetOnSuccess {
		b.Reset()
	}
}

// Policy returns the policy the cursor was built with.
func (b *Exponential) Policy() Policy {
	return b.policy
}

// NonRetryableError wraps errors that should not be retried by Do.
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string {
	return fmt.Sprintf("non-retryable: %v", e.Err)
}

func (e *NonRetryableError) Unwrap() error {
	return e.Err
}

// NonRetryable wraps an error to indicate it should not be retried
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetryableError{Err: err}
}

// IsNonRetryable checks if an error is marked as non-retryable
func IsNonRetryable(err error) bool {
	var nre *NonRetryableError
	return errors.As(err, &nre)
}

// RetryConfig configures the Do retry loop.
type RetryConfig struct {
	MaxAttempts int    // Total attempts including the first (<=0 means run once)
	Policy      Policy // Delay progression between attempts
	AddJitter   bool   // Add up to 25% randomness to each delay
}

// DefaultRetryConfig returns sensible defaults for startup-time operations
// such as socket binding or broker connection.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		Policy: Policy{
			Initial:    100 * time.Millisecond,
			Multiplier: 2.0,
			Max:        5 * time.Second,
		},
		AddJitter: true,
	}
}

// Do executes fn, retrying failures with exponentially spaced delays until
// fn succeeds, the attempt budget runs out, fn returns a NonRetryable error,
// or ctx is cancelled.
func Do(ctx context.Context, cfg RetryConfig, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Policy == (Policy{}) {
		cfg.Policy = DefaultRetryConfig().Policy
	}

	cursor, err := New(cfg.Policy)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if IsNonRetryable(err) {
			return err
		}

		if ctx.Err() != nil {
			return fmt.Errorf("retry cancelled before attempt %d: %w", attempt, ctx.Err())
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		delay := cursor.Next()
		if cfg.AddJitter && delay >= 4 {
			randMu.Lock()
			jitter := time.Duration(randSource.Int63n(int64(delay / 4)))
			randMu.Unlock()
			delay += jitter
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled during backoff for attempt %d: %w", attempt+1, ctx.Err())
		case <-timer.C:
		}
	}

	return fmt.Errorf("retry failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}
