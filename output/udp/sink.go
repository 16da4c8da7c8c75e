package udp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/c360/streamkit/errors"
	"github.com/c360/streamkit/pkg/backoff"
	"github.com/c360/streamkit/pkg/resolver"
)

// OfferResult reports the outcome of offering a datagram to the sink
type OfferResult int

// Offer outcomes. Deferred means the sink is resolving or backing off and
// the caller should retain the payload and offer it again later.
const (
	Accepted OfferResult = iota
	Deferred
	Fatal
)

// String returns the string representation of OfferResult
func (r OfferResult) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case Deferred:
		return "deferred"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// sinkState tracks the resolve-then-send state machine
type sinkState int

const (
	stateInitializing sinkState = iota
	stateResolving
	stateResolved
	stateBackoff
)

func (s sinkState) String() string {
	switch s {
	case stateInitializing:
		return "initializing"
	case stateResolving:
		return "resolving"
	case stateResolved:
		return "resolved"
	case stateBackoff:
		return "backoff"
	default:
		return "unknown"
	}
}

// Sink sends datagrams to a remote host:port, resolving the hostname
// asynchronously before the first send. DNS failures are never fatal: the
// sink backs off with a growing delay and retries resolution. Send failures
// are fatal and sticky, every Offer after one fails with the same error.
//
// Offer and Flush must be called from a single goroutine. The stats
// accessors are safe to call from anywhere.
type Sink struct {
	host     string
	port     int
	conn     *net.UDPConn
	resolver resolver.Resolver
	backoff  *backoff.Exponential
	logger   *slog.Logger
	metrics  *Metrics

	state   sinkState
	lookup  *resolver.Lookup
	remote  *net.UDPAddr
	retryAt time.Time
	fatal   error

	// Counters read by Health and DataFlow from other goroutines.
	resolves        atomic.Int64
	resolveFailures atomic.Int64
	sent            atomic.Int64
	sentBytes       atomic.Int64
	observedState   atomic.Int64
}

// SinkOption configures a Sink during construction
type SinkOption func(*Sink) error

// WithResolver sets the DNS resolver used by the sink
func WithResolver(r resolver.Resolver) SinkOption {
	return func(s *Sink) error {
		if r == nil {
			return fmt.Errorf("resolver cannot be nil")
		}
		s.resolver = r
		return nil
	}
}

// WithBackoffPolicy sets the policy for the DNS retry delay sequence
func WithBackoffPolicy(policy backoff.Policy) SinkOption {
	return func(s *Sink) error {
		exponential, err := backoff.New(policy)
		if err != nil {
			return err
		}
		s.backoff = exponential
		return nil
	}
}

// WithSinkLogger sets a structured logger for the sink
func WithSinkLogger(logger *slog.Logger) SinkOption {
	return func(s *Sink) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		s.logger = logger
		return nil
	}
}

// withMetrics attaches component metrics to the sink
func withMetrics(m *Metrics) SinkOption {
	return func(s *Sink) error {
		s.metrics = m
		return nil
	}
}

// NewSink binds a wildcard UDP socket and returns a sink targeting
// host:port. The hostname is not resolved here; resolution starts on the
// first Offer. A socket bind failure is fatal.
func NewSink(host string, port int, opts ...SinkOption) (*Sink, error) {
	if host == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingHost, "Sink", "NewSink", "host validation")
	}
	if port <= 0 || port > 65535 {
		return nil, errors.WrapInvalid(errors.ErrMissingPort, "Sink", "NewSink", "port validation")
	}

	defaultBackoff, err := backoff.New(backoff.DefaultPolicy())
	if err != nil {
		return nil, errors.Wrap(err, "Sink", "NewSink", "backoff setup")
	}

	s := &Sink{
		host:     host,
		port:     port,
		resolver: resolver.System(),
		backoff:  defaultBackoff,
		logger:   slog.Default().With("component", "udp-sink"),
		state:    stateInitializing,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, errors.WrapInvalid(err, "Sink", "NewSink", "apply option")
		}
	}

	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, errors.WrapFatal(err, "Sink", "NewSink", "socket bind")
	}
	s.conn = conn
	s.observedState.Store(int64(stateInitializing))

	return s, nil
}

// Healthcheck reports sink health. Datagram transports carry no delivery
// feedback, so a constructed sink is always considered healthy.
func (s *Sink) Healthcheck(_ context.Context) error {
	return nil
}

// Offer attempts to send one datagram. It never blocks: while the hostname
// is resolving or a resolution retry delay is pending it returns Deferred
// and the caller keeps the payload. Once resolved, the remote address is
// pinned for the life of the sink and payloads go out immediately. A send
// error marks the sink fatal; the same error is returned on every
// subsequent Offer.
func (s *Sink) Offer(ctx context.Context, payload []byte) (OfferResult, error) {
	if s.fatal != nil {
		return Fatal, s.fatal
	}

	for {
		switch s.state {
		case stateInitializing:
			s.logger.Debug("resolving DNS", "host", s.host)
			s.lookup = resolver.Start(ctx, s.resolver, s.host)
			s.setState(stateResolving)

		case stateResolving:
			if !s.lookup.Ready() {
				return Deferred, nil
			}
			addrs, err := s.lookup.Result()
			s.lookup = nil
			s.resolves.Add(1)

			switch {
			case err != nil:
				s.deferResolution("unable to resolve DNS", err)
			case len(addrs) == 0:
				s.deferResolution("DNS resolved no addresses", nil)
			default:
				s.remote = &net.UDPAddr{IP: addrs[0].IP, Zone: addrs[0].Zone, Port: s.port}
				s.backoff.Settle()
				s.logger.Debug("resolved address", "address", s.remote.String())
				s.setState(stateResolved)
			}

		case stateBackoff:
			if time.Now().Before(s.retryAt) {
				return Deferred, nil
			}
			s.setState(stateInitializing)

		case stateResolved:
			n, err := s.conn.WriteToUDP(payload, s.remote)
			if err != nil {
				s.fatal = errors.WrapFatal(err, "Sink", "Offer", "datagram send")
				s.logger.Error("send failed", "address", s.remote.String(), "error", err)
				if s.metrics != nil {
					s.metrics.sendErrors.Inc()
				}
				return Fatal, s.fatal
			}
			s.sent.Add(1)
			s.sentBytes.Add(int64(n))
			if s.metrics != nil {
				s.metrics.datagramsSent.Inc()
				s.metrics.bytesSent.Add(float64(n))
			}
			return Accepted, nil
		}
	}
}

// deferResolution logs a resolution failure and schedules the next attempt
func (s *Sink) deferResolution(message string, err error) {
	s.resolveFailures.Add(1)
	delay := s.backoff.Next()
	if err != nil {
		s.logger.Error(message, "host", s.host, "error", err, "retry_in", delay)
	} else {
		s.logger.Error(message, "host", s.host, "retry_in", delay)
	}
	if s.metrics != nil {
		s.metrics.resolveFailures.Inc()
	}
	s.retryAt = time.Now().Add(delay)
	s.setState(stateBackoff)
}

// Flush reports whether buffered data remains. Every accepted datagram is
// written to the socket immediately, so a flush is always complete.
func (s *Sink) Flush(_ context.Context) error {
	return nil
}

// Close cancels any in-flight resolution and closes the socket
func (s *Sink) Close() error {
	if s.lookup != nil {
		s.lookup.Cancel()
		s.lookup = nil
	}
	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		if err != nil {
			return errors.Wrap(err, "Sink", "Close", "socket close")
		}
	}
	return nil
}

// LocalAddr returns the bound local socket address
func (s *Sink) LocalAddr() net.Addr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// RemoteAddr returns the resolved remote address, or nil before resolution
func (s *Sink) RemoteAddr() *net.UDPAddr {
	return s.remote
}

func (s *Sink) setState(state sinkState) {
	s.state = state
	s.observedState.Store(int64(state))
}

// State returns the observed state name, safe for concurrent reads
func (s *Sink) State() string {
	return sinkState(s.observedState.Load()).String()
}

// DatagramsSent returns the number of datagrams written to the socket
func (s *Sink) DatagramsSent() int64 { return s.sent.Load() }

// BytesSent returns the number of payload bytes written to the socket
func (s *Sink) BytesSent() int64 { return s.sentBytes.Load() }

// Resolves returns the number of completed DNS lookups
func (s *Sink) Resolves() int64 { return s.resolves.Load() }

// ResolveFailures returns the number of failed or empty DNS lookups
func (s *Sink) ResolveFailures() int64 { return s.resolveFailures.Load() }
