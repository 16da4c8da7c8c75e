package backoff

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyValidate(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		wantErr bool
	}{
		{"defaults are valid", DefaultPolicy(), false},
		{"zero initial", Policy{Initial: 0, Multiplier: 2, Max: time.Second}, true},
		{"multiplier below one", Policy{Initial: time.Millisecond, Multiplier: 0.5, Max: time.Second}, true},
		{"max below initial", Policy{Initial: time.Second, Multiplier: 2, Max: time.Millisecond}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestExponentialProgression(t *testing.T) {
	cursor, err := New(Policy{Initial: 500 * time.Millisecond, Multiplier: 2.0, Max: 60 * time.Second})
	require.NoError(t, err)

	prev := time.Duration(0)
	for i := 0; i < 20; i++ {
		d := cursor.Next()
		assert.GreaterOrEqual(t, d, prev, "delay %d decreased", i)
		assert.LessOrEqual(t, d, 60*time.Second, "delay %d above ceiling", i)
		prev = d
	}

	// The cursor must saturate at the ceiling, not bounce back down.
	assert.Equal(t, 60*time.Second, cursor.Next())
	assert.Equal(t, 60*time.Second, cursor.Next())
}

func TestExponentialFirstDelayIsInitial(t *testing.T) {
	cursor, err := New(Policy{Initial: 250 * time.Millisecond, Multiplier: 4.0, Max: time.Minute})
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, cursor.Next())
	assert.Equal(t, time.Second, cursor.Next())
	assert.Equal(t, 4*time.Second, cursor.Next())
}

func TestSettleHonorsResetOnSuccess(t *testing.T) {
	policy := Policy{Initial: 10 * time.Millisecond, Multiplier: 2.0, Max: time.Second}

	// Default: cursor stays advanced after success.
	cursor, err := New(policy)
	require.NoError(t, err)
	cursor.Next()
	cursor.Next()
	cursor.Settle()
	assert.Equal(t, 40*time.Millisecond, cursor.Next())

	// Explicit reset-on-success rewinds.
	policy.ResetOnSuccess = true
	cursor, err = New(policy)
	require.NoError(t, err)
	cursor.Next()
	cursor.Next()
	cursor.Settle()
	assert.Equal(t, 10*time.Millisecond, cursor.Next())
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), DefaultRetryConfig(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts: 5,
		Policy:      Policy{Initial: time.Millisecond, Multiplier: 2.0, Max: 10 * time.Millisecond},
	}

	calls := 0
	err := Do(context.Background(), cfg, func() error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts: 3,
		Policy:      Policy{Initial: time.Millisecond, Multiplier: 2.0, Max: 5 * time.Millisecond},
	}

	boom := errors.New("boom")
	calls := 0
	err := Do(context.Background(), cfg, func() error {
		calls++
		return boom
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts: 5,
		Policy:      Policy{Initial: time.Millisecond, Multiplier: 2.0, Max: 5 * time.Millisecond},
	}

	calls := 0
	err := Do(context.Background(), cfg, func() error {
		calls++
		return NonRetryable(errors.New("bad config"))
	})
	require.Error(t, err)
	assert.True(t, IsNonRetryable(err))
	assert.Equal(t, 1, calls)
}

func TestDoRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	cfg := RetryConfig{
		MaxAttempts: 10,
		Policy:      Policy{Initial: time.Hour, Multiplier: 2.0, Max: 2 * time.Hour},
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := Do(ctx, cfg, func() error { return errors.New("keep trying") })
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}
