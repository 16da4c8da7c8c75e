package resolver

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubResolver answers lookups from a fixed result after an optional delay.
type stubResolver struct {
	addrs []net.IPAddr
	err   error
	delay time.Duration
	calls atomic.Int64
}

func (s *stubResolver) LookupIPAddr(ctx context.Context, _ string) ([]net.IPAddr, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.addrs, s.err
}

func waitReady(t *testing.T, l *Lookup) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !l.Ready() {
		if time.Now().After(deadline) {
			t.Fatal("lookup never became ready")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestLookupSuccess(t *testing.T) {
	stub := &stubResolver{addrs: []net.IPAddr{{IP: net.ParseIP("10.1.2.3")}}}

	l := Start(context.Background(), stub, "example.com")
	assert.Equal(t, "example.com", l.Host())

	waitReady(t, l)
	addrs, err := l.Result()
	require.NoError(t, err)
	require.Len(t, addrs, 1)
	assert.Equal(t, "10.1.2.3", addrs[0].IP.String())
	assert.Equal(t, int64(1), stub.calls.Load())
}

func TestLookupError(t *testing.T) {
	boom := errors.New("no such host")
	stub := &stubResolver{err: boom}

	l := Start(context.Background(), stub, "missing.invalid")
	waitReady(t, l)

	addrs, err := l.Result()
	assert.Empty(t, addrs)
	assert.ErrorIs(t, err, boom)
}

func TestReadyIsNonBlocking(t *testing.T) {
	stub := &stubResolver{
		addrs: []net.IPAddr{{IP: net.ParseIP("127.0.0.1")}},
		delay: 100 * time.Millisecond,
	}

	l := Start(context.Background(), stub, "slow.example.com")

	start := time.Now()
	ready := l.Ready()
	assert.Less(t, time.Since(start), 50*time.Millisecond, "Ready blocked")
	assert.False(t, ready)

	waitReady(t, l)
	addrs, err := l.Result()
	require.NoError(t, err)
	assert.Len(t, addrs, 1)
}

func TestCancelUnblocksLookup(t *testing.T) {
	stub := &stubResolver{delay: time.Hour}

	l := Start(context.Background(), stub, "stuck.example.com")
	l.Cancel()

	waitReady(t, l)
	_, err := l.Result()
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSystemResolverIsUsable(t *testing.T) {
	require.NotNil(t, System())
}
