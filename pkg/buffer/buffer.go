// Package buffer provides a generic, thread-safe circular buffer with
// configurable overflow policies. It decouples bursty producers (network
// reads, bus subscriptions) from consumers that drain at their own pace.
//
// Statistics are always collected; Prometheus export is optional via
// WithMetrics.
package buffer

import (
	"sync/atomic"

	"github.com/c360/streamkit/metric"
)

// Buffer is a generic FIFO buffer. All implementations are thread-safe.
type Buffer[T any] interface {
	// Write adds an item. Behavior when full depends on the overflow policy.
	Write(item T) error

	// Read retrieves and removes one item.
	// Returns the zero value and false when the buffer is empty.
	Read() (T, bool)

	// ReadBatch retrieves and removes up to max items.
	ReadBatch(max int) []T

	// Peek returns the next item without removing it.
	Peek() (T, bool)

	// Size returns the current number of buffered items.
	Size() int

	// Capacity returns the maximum number of items the buffer can hold.
	Capacity() int

	// Clear removes all items.
	Clear()

	// Stats returns buffer statistics.
	Stats() *Statistics

	// Close shuts the buffer down; further writes fail.
	Close() error
}

// OverflowPolicy defines behavior when a write hits a full buffer.
type OverflowPolicy int

const (
	// DropOldest evicts the oldest item to make room for the new one.
	DropOldest OverflowPolicy = iota
	// DropNewest discards the incoming item.
	DropNewest
	// Block makes Write wait until space is available.
	Block
)

// String returns a human-readable representation of the overflow policy.
func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "DropOldest"
	case DropNewest:
		return "DropNewest"
	case Block:
		return "Block"
	default:
		return "Unknown"
	}
}

// DropCallback is invoked with each item discarded by the overflow policy.
type DropCallback[T any] func(item T)

// Statistics tracks buffer activity with atomic counters.
type Statistics struct {
	writes    atomic.Int64
	reads     atomic.Int64
	drops     atomic.Int64
	overflows atomic.Int64
	size      atomic.Int64
}

// Writes returns the total number of successful writes.
func (s *Statistics) Writes() int64 { return s.writes.Load() }

// Reads returns the total number of items read out.
func (s *Statistics) Reads() int64 { return s.reads.Load() }

// Drops returns the total number of items discarded by overflow.
func (s *Statistics) Drops() int64 { return s.drops.Load() }

// Overflows returns the number of writes that hit a full buffer.
func (s *Statistics) Overflows() int64 { return s.overflows.Load() }

// CurrentSize returns the last recorded buffer size.
func (s *Statistics) CurrentSize() int64 { return s.size.Load() }

// Option configures buffer behavior using the functional options pattern.
type Option[T any] func(*options[T])

type options[T any] struct {
	overflowPolicy OverflowPolicy
	dropCallback   DropCallback[T]
	metricsReg     *metric.Registry
	metricsPrefix  string
}

// WithOverflowPolicy sets the overflow behavior. Defaults to DropOldest.
func WithOverflowPolicy[T any](policy OverflowPolicy) Option[T] {
	return func(o *options[T]) {
		o.overflowPolicy = policy
	}
}

// WithDropCallback registers a callback invoked for each dropped item.
func WithDropCallback[T any](callback DropCallback[T]) Option[T] {
	return func(o *options[T]) {
		o.dropCallback = callback
	}
}

// WithMetrics exposes buffer statistics as Prometheus metrics under the
// given component prefix. Ignored when registry is nil.
func WithMetrics[T any](registry *metric.Registry, prefix string) Option[T] {
	return func(o *options[T]) {
		if registry != nil && prefix != "" {
			o.metricsReg = registry
			o.metricsPrefix = prefix
		}
	}
}

func applyOptions[T any](opts ...Option[T]) *options[T] {
	o := &options[T]{overflowPolicy: DropOldest}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// NewCircular creates a circular buffer with the given capacity.
func NewCircular[T any](capacity int, opts ...Option[T]) (Buffer[T], error) {
	return newCircular(capacity, applyOptions(opts...))
}
