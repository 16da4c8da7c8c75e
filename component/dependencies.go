package component

import (
	"log/slog"

	"github.com/c360/streamkit/metric"
	"github.com/c360/streamkit/natsclient"
	"github.com/c360/streamkit/pkg/resolver"
)

// Dependencies provides all external runtime dependencies needed by
// components. Factories receive this structure instead of individual
// arguments so new dependencies can be added without touching every factory.
type Dependencies struct {
	NATSClient      *natsclient.Client // NATS client for messaging
	MetricsRegistry *metric.Registry   // Metrics registry for Prometheus (can be nil)
	Logger          *slog.Logger       // Structured logger (can be nil, defaults to slog.Default())
	Resolver        resolver.Resolver  // Hostname resolution (can be nil, defaults to the system resolver)
}

// GetLogger returns the configured logger or a default logger if none is provided
func (d *Dependencies) GetLogger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// GetLoggerWithComponent returns a logger configured with component context
func (d *Dependencies) GetLoggerWithComponent(componentName string) *slog.Logger {
	return d.GetLogger().With("component", componentName)
}

// GetResolver returns the configured resolver or the system resolver.
func (d *Dependencies) GetResolver() resolver.Resolver {
	if d.Resolver != nil {
		return d.Resolver
	}
	return resolver.System()
}
