// Package resolver defines the hostname resolution capability consumed by
// network egress components, plus a pollable handle for lookups that are
// still in flight. Components drive the handle with non-blocking Ready
// checks so a slow DNS server never stalls their scheduling loop.
package resolver

import (
	"context"
	"net"
	"time"
)

// DefaultTimeout bounds a single lookup attempt. Components retry failed
// lookups with their own backoff, so one attempt does not need to wait
// longer than this.
const DefaultTimeout = 30 * time.Second

// Resolver turns a hostname into an ordered list of IP addresses.
// *net.Resolver satisfies this interface; tests substitute stubs.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// System returns the process-wide resolver.
func System() Resolver {
	return net.DefaultResolver
}

// Lookup is an in-flight asynchronous hostname resolution. It owns one
// goroutine that performs the blocking lookup; the owner polls Ready until
// the goroutine finishes, then reads Result exactly once.
type Lookup struct {
	host   string
	done   chan struct{}
	cancel context.CancelFunc

	// written by the lookup goroutine before done is closed
	addrs []net.IPAddr
	err   error
}

// Start begins resolving host using r. The returned handle must be polled
// via Ready; abandoning it without Cancel leaks the lookup until the
// timeout fires.
func Start(ctx context.Context, r Resolver, host string) *Lookup {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)

	l := &Lookup{
		host:   host,
		done:   make(chan struct{}),
		cancel: cancel,
	}

	go func() {
		defer cancel()
		defer close(l.done)
		l.addrs, l.err = r.LookupIPAddr(ctx, host)
	}()

	return l
}

// Host returns the hostname being resolved.
func (l *Lookup) Host() string {
	return l.host
}

// Ready reports whether the lookup has completed, without blocking.
func (l *Lookup) Ready() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// Result returns the resolved addresses or the lookup error.
// Only valid after Ready has returned true.
func (l *Lookup) Result() ([]net.IPAddr, error) {
	return l.addrs, l.err
}

// Cancel abandons the lookup. The worker goroutine exits once the
// underlying resolver observes the cancelled context.
func (l *Lookup) Cancel() {
	l.cancel()
}
