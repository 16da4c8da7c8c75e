package udp

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/streamkit/metric"
)

// Metrics holds Prometheus metrics for the UDP output component
type Metrics struct {
	datagramsSent    prometheus.Counter
	bytesSent        prometheus.Counter
	sendErrors       prometheus.Counter
	resolveFailures  prometheus.Counter
	deferrals        prometheus.Counter
	datagramsDropped prometheus.Counter
	sendLatency      prometheus.Histogram
	lastActivity     prometheus.Gauge
}

// newMetrics creates and registers UDP output metrics. Returns nil when no
// registry is provided (nil input = nil feature pattern).
func newMetrics(registry *metric.Registry, instanceName string) *Metrics {
	if registry == nil {
		return nil
	}

	metrics := &Metrics{
		datagramsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "udp_output",
			Name:      "datagrams_sent_total",
			Help:      "Total UDP datagrams sent",
		}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "udp_output",
			Name:      "bytes_sent_total",
			Help:      "Total payload bytes sent over UDP",
		}),
		sendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "udp_output",
			Name:      "send_errors_total",
			Help:      "Socket write errors encountered",
		}),
		resolveFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "udp_output",
			Name:      "resolve_failures_total",
			Help:      "Failed or empty DNS resolutions of the destination host",
		}),
		deferrals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "udp_output",
			Name:      "deferrals_total",
			Help:      "Offers deferred while resolving or backing off",
		}),
		datagramsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "udp_output",
			Name:      "datagrams_dropped_total",
			Help:      "Datagrams dropped due to buffer overflow",
		}),
		sendLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metric.Namespace,
			Subsystem: "udp_output",
			Name:      "send_duration_seconds",
			Help:      "Time from dequeue to socket write",
			Buckets:   []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1, 5},
		}),
		lastActivity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "udp_output",
			Name:      "last_activity_timestamp",
			Help:      "Unix timestamp of the last sent datagram",
		}),
	}

	serviceName := fmt.Sprintf("udp_output_%s", instanceName)
	registry.RegisterCounter(serviceName, "datagrams_sent", metrics.datagramsSent)
	registry.RegisterCounter(serviceName, "bytes_sent", metrics.bytesSent)
	registry.RegisterCounter(serviceName, "send_errors", metrics.sendErrors)
	registry.RegisterCounter(serviceName, "resolve_failures", metrics.resolveFailures)
	registry.RegisterCounter(serviceName, "deferrals", metrics.deferrals)
	registry.RegisterCounter(serviceName, "datagrams_dropped", metrics.datagramsDropped)
	registry.RegisterHistogram(serviceName, "send_latency", metrics.sendLatency)
	registry.RegisterGauge(serviceName, "last_activity", metrics.lastActivity)

	return metrics
}
