// Package udp provides a UDP input component for receiving datagrams and
// publishing them to NATS.
package udp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/streamkit/component"
	"github.com/c360/streamkit/errors"
	"github.com/c360/streamkit/metric"
	"github.com/c360/streamkit/natsclient"
	"github.com/c360/streamkit/pkg/backoff"
	"github.com/c360/streamkit/pkg/buffer"
)

// Metrics holds Prometheus metrics for the UDP input component
type Metrics struct {
	packetsReceived prometheus.Counter
	bytesReceived   prometheus.Counter
	packetsDropped  prometheus.Counter
	socketErrors    prometheus.Counter
	publishLatency  prometheus.Histogram
	lastActivity    prometheus.Gauge
}

// newMetrics creates and registers UDP input metrics. Returns nil when no
// registry is provided (nil input = nil feature pattern).
func newMetrics(registry *metric.Registry, port int) *Metrics {
	if registry == nil {
		return nil
	}

	metrics := &Metrics{
		packetsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "udp_input",
			Name:      "packets_received_total",
			Help:      "Total UDP packets received",
		}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "udp_input",
			Name:      "bytes_received_total",
			Help:      "Total bytes received from UDP",
		}),
		packetsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "udp_input",
			Name:      "packets_dropped_total",
			Help:      "Packets dropped due to buffer overflow",
		}),
		socketErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "udp_input",
			Name:      "socket_errors_total",
			Help:      "Socket read errors encountered",
		}),
		publishLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metric.Namespace,
			Subsystem: "udp_input",
			Name:      "publish_duration_seconds",
			Help:      "Time to publish packets to NATS",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		}),
		lastActivity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "udp_input",
			Name:      "last_activity_timestamp",
			Help:      "Unix timestamp of last received packet",
		}),
	}

	serviceName := fmt.Sprintf("udp_input_%d", port)
	registry.RegisterCounter(serviceName, "packets_received", metrics.packetsReceived)
	registry.RegisterCounter(serviceName, "bytes_received", metrics.bytesReceived)
	registry.RegisterCounter(serviceName, "packets_dropped", metrics.packetsDropped)
	registry.RegisterCounter(serviceName, "socket_errors", metrics.socketErrors)
	registry.RegisterHistogram(serviceName, "publish_latency", metrics.publishLatency)
	registry.RegisterGauge(serviceName, "last_activity", metrics.lastActivity)

	return metrics
}

// udpInputSchema is generated once from InputConfig struct tags
var udpInputSchema = component.GenerateConfigSchema(reflect.TypeOf(InputConfig{}))

// InputConfig holds configuration for the UDP input component
type InputConfig struct {
	// BufferSize is the in-memory packet queue capacity.
	BufferSize int `json:"buffer_size,omitempty" schema:"type:int,description:In-memory packet buffer capacity,default:5000,min:1,max:1000000,category:advanced"`

	// Ports configures the listen socket and NATS output subject.
	Ports *component.PortConfig `json:"ports,omitempty" schema:"type:ports,description:Port configuration,category:basic"`
}

// DefaultConfig returns sensible defaults for UDP input
func DefaultConfig() InputConfig {
	return InputConfig{
		BufferSize: 5000,
		Ports: &component.PortConfig{
			Inputs: []component.PortDefinition{
				{
					Name:        "udp_socket",
					Type:        "network",
					Subject:     "udp://0.0.0.0:14550",
					Required:    true,
					Description: "UDP socket listening for incoming data",
				},
			},
			Outputs: []component.PortDefinition{
				{
					Name:        "nats_output",
					Type:        "nats",
					Subject:     "input.udp",
					Required:    true,
					Description: "NATS subject for publishing received UDP data",
				},
			},
		},
	}
}

// parseListenAddress extracts bind host and port from a udp://host:port URL
func parseListenAddress(subject string) (string, int, error) {
	hostPort := strings.TrimPrefix(subject, "udp://")
	host, portStr, err := net.SplitHostPort(hostPort)
	if err != nil {
		return "", 0, errors.WrapInvalid(
			fmt.Errorf("invalid UDP address format: %s", subject),
			"InputConfig", "parseListenAddress", "address parsing")
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, errors.WrapInvalid(
			fmt.Errorf("invalid port number: %s", portStr),
			"InputConfig", "parseListenAddress", "port parsing")
	}
	if err := component.ValidatePortNumber(port); err != nil {
		return "", 0, err
	}
	return host, port, nil
}

// Validate implements component.Validatable
func (c *InputConfig) Validate() error {
	if c.BufferSize < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("buffer_size %d cannot be negative", c.BufferSize),
			"InputConfig", "Validate", "buffer size validation")
	}
	if c.Ports == nil {
		return nil
	}
	for _, input := range c.Ports.Inputs {
		if input.Type == "network" && input.Subject != "" {
			if _, _, err := parseListenAddress(input.Subject); err != nil {
				return err
			}
		}
	}
	for _, output := range c.Ports.Outputs {
		if output.Type == "nats" && output.Subject == "" {
			return errors.WrapInvalid(errors.ErrInvalidConfig,
				"InputConfig", "Validate", "NATS output subject validation")
		}
	}
	return nil
}

// getConfiguredPorts extracts bind address, port, and output subject
func (c *InputConfig) getConfiguredPorts() (bind string, port int, subject string) {
	bind, port, subject = "0.0.0.0", 14550, "input.udp"

	if c.Ports == nil {
		return bind, port, subject
	}
	for _, input := range c.Ports.Inputs {
		if input.Type == "network" && input.Subject != "" {
			if host, parsedPort, err := parseListenAddress(input.Subject); err == nil {
				bind, port = host, parsedPort
			}
			break
		}
	}
	for _, output := range c.Ports.Outputs {
		if output.Type == "nats" && output.Subject != "" {
			subject = output.Subject
			break
		}
	}
	return bind, port, subject
}

// Input listens on a UDP socket and publishes received packets to NATS
type Input struct {
	name       string
	bind       string
	port       int
	subject    string
	natsClient *natsclient.Client
	logger     *slog.Logger

	buffer      buffer.Buffer[[]byte]
	retryConfig backoff.RetryConfig

	shutdown  chan struct{}
	done      chan struct{}
	running   atomic.Bool
	startTime time.Time
	mu        sync.RWMutex
	wg        sync.WaitGroup
	conn      *net.UDPConn

	messagesReceived atomic.Int64
	bytesReceived    atomic.Int64
	errorCount       atomic.Int64
	lastActivity     atomic.Value // stores time.Time

	metrics *Metrics
}

var _ component.Discoverable = (*Input)(nil)
var _ component.LifecycleComponent = (*Input)(nil)

// InputDeps holds runtime dependencies for the UDP input component
type InputDeps struct {
	Name            string
	Config          InputConfig
	NATSClient      *natsclient.Client
	MetricsRegistry *metric.Registry
	Logger          *slog.Logger
}

// NewInput creates a new UDP input component
func NewInput(deps InputDeps) (*Input, error) {
	bind, port, subject := deps.Config.getConfiguredPorts()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "udp-input", "port", port)
	}

	bufferSize := deps.Config.BufferSize
	if bufferSize <= 0 {
		bufferSize = 5000
	}
	bufferOpts := []buffer.Option[[]byte]{
		buffer.WithOverflowPolicy[[]byte](buffer.DropOldest),
	}
	if deps.MetricsRegistry != nil {
		bufferOpts = append(bufferOpts, buffer.WithMetrics[[]byte](deps.MetricsRegistry, "udp_input"))
	}
	packetBuffer, err := buffer.NewCircular(bufferSize, bufferOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "udp-input", "NewInput", "buffer creation")
	}

	u := &Input{
		name:        deps.Name,
		bind:        bind,
		port:        port,
		subject:     subject,
		natsClient:  deps.NATSClient,
		logger:      logger,
		buffer:      packetBuffer,
		retryConfig: backoff.DefaultRetryConfig(),
		startTime:   time.Now(),
		metrics:     newMetrics(deps.MetricsRegistry, port),
	}
	u.lastActivity.Store(time.Time{})
	return u, nil
}

// Meta returns the component metadata
func (u *Input) Meta() component.Metadata {
	name := u.name
	if name == "" {
		name = fmt.Sprintf("udp-input-%d", u.port)
	}
	return component.Metadata{
		Name:        name,
		Type:        "input",
		Description: fmt.Sprintf("UDP input listening on %s:%d publishing to %s", u.bind, u.port, u.subject),
		Version:     "1.0.0",
	}
}

// InputPorts returns the input ports for this component
func (u *Input) InputPorts() []component.Port {
	return []component.Port{
		{
			Name:        "udp_socket",
			Direction:   component.DirectionInput,
			Required:    true,
			Description: fmt.Sprintf("UDP socket listening on %s:%d", u.bind, u.port),
			Config: component.NetworkPort{
				Protocol: "udp",
				Host:     u.bind,
				Port:     u.port,
			},
		},
	}
}

// OutputPorts returns the output ports for this component
func (u *Input) OutputPorts() []component.Port {
	return []component.Port{
		{
			Name:        "nats_output",
			Direction:   component.DirectionOutput,
			Required:    true,
			Description: "NATS subject for publishing received UDP data",
			Config:      component.NATSPort{Subject: u.subject},
		},
	}
}

// ConfigSchema returns the configuration schema for this component
func (u *Input) ConfigSchema() component.ConfigSchema {
	return udpInputSchema
}

// Health returns the current health status of the component
func (u *Input) Health() component.HealthStatus {
	u.mu.RLock()
	connected := u.conn != nil
	u.mu.RUnlock()

	return component.HealthStatus{
		Healthy:    u.running.Load() && connected,
		LastCheck:  time.Now(),
		ErrorCount: int(u.errorCount.Load()),
		Uptime:     time.Since(u.startTime),
	}
}

// DataFlow returns the current data flow metrics
func (u *Input) DataFlow() component.FlowMetrics {
	messages := u.messagesReceived.Load()
	bytes := u.bytesReceived.Load()
	errorCount := u.errorCount.Load()
	lastActivity, _ := u.lastActivity.Load().(time.Time)

	var messagesPerSecond, bytesPerSecond, errorRate float64
	if uptime := time.Since(u.startTime).Seconds(); uptime > 0 {
		messagesPerSecond = float64(messages) / uptime
		bytesPerSecond = float64(bytes) / uptime
	}
	if messages > 0 {
		errorRate = float64(errorCount) / float64(messages)
	}

	return component.FlowMetrics{
		MessagesPerSecond: messagesPerSecond,
		BytesPerSecond:    bytesPerSecond,
		ErrorRate:         errorRate,
		LastActivity:      lastActivity,
	}
}

// Initialize validates the component before starting
func (u *Input) Initialize() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.subject == "" {
		return errors.WrapInvalid(fmt.Errorf("empty subject"),
			"udp-input", "Initialize", "subject validation")
	}
	if u.natsClient == nil {
		return errors.WrapInvalid(fmt.Errorf("nil NATS client"),
			"udp-input", "Initialize", "NATS client validation")
	}
	return nil
}

// Start binds the socket and begins reading packets. Binding retries with
// backoff to ride out a lingering socket from a previous instance.
func (u *Input) Start(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.running.Load() {
		return nil
	}

	u.shutdown = make(chan struct{})
	u.done = make(chan struct{})

	if err := backoff.Do(ctx, u.retryConfig, u.bindSocket); err != nil {
		u.cleanupUnlocked()
		return errors.WrapTransient(err, "udp-input", "Start", "socket binding")
	}

	u.running.Store(true)
	u.startTime = time.Now()

	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		defer close(u.done)
		u.readLoop(ctx)
	}()

	return nil
}

// bindSocket creates and binds the UDP listen socket
func (u *Input) bindSocket() error {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(u.bind, strconv.Itoa(u.port)))
	if err != nil {
		return fmt.Errorf("resolve UDP address %s:%d: %w", u.bind, u.port, err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("listen on UDP port %d: %w", u.port, err)
	}

	// Larger OS buffer prevents drops during bursts. Some systems cap it.
	const socketBufferSize = 2 * 1024 * 1024
	if err := conn.SetReadBuffer(socketBufferSize); err != nil {
		u.logger.Warn("could not set UDP read buffer size",
			"buffer_size", socketBufferSize, "port", u.port, "error", err)
	}

	u.conn = conn
	return nil
}

// Stop gracefully stops the listener within the given timeout
func (u *Input) Stop(timeout time.Duration) error {
	if !u.running.Load() {
		return nil
	}
	u.running.Store(false)

	u.mu.Lock()
	if u.shutdown != nil {
		select {
		case <-u.shutdown:
		default:
			close(u.shutdown)
		}
	}
	if u.conn != nil {
		_ = u.conn.Close()
	}
	u.mu.Unlock()

	select {
	case <-u.done:
	case <-time.After(timeout):
		return errors.WrapTransient(fmt.Errorf("stop timeout after %v", timeout),
			"udp-input", "Stop", "graceful shutdown")
	}

	u.cleanup()
	return nil
}

func (u *Input) cleanup() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.cleanupUnlocked()
}

func (u *Input) cleanupUnlocked() {
	if u.shutdown != nil {
		select {
		case <-u.shutdown:
		default:
			close(u.shutdown)
		}
		u.shutdown = nil
	}
	if u.conn != nil {
		_ = u.conn.Close()
		u.conn = nil
	}
	if u.buffer != nil {
		_ = u.buffer.Close()
	}
}

// readLoop reads packets from the socket and publishes them to NATS
func (u *Input) readLoop(ctx context.Context) {
	packet := make([]byte, 65536)

	for u.running.Load() {
		select {
		case <-ctx.Done():
			return
		case <-u.shutdown:
			return
		default:
		}

		u.mu.RLock()
		conn := u.conn
		u.mu.RUnlock()
		if conn == nil {
			return
		}

		// Short deadline so shutdown is noticed promptly.
		_ = conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))

		n, _, err := conn.ReadFromUDP(packet)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			select {
			case <-ctx.Done():
				return
			case <-u.shutdown:
				return
			default:
			}
			u.errorCount.Add(1)
			if u.metrics != nil {
				u.metrics.socketErrors.Inc()
			}
			continue
		}

		u.messagesReceived.Add(1)
		u.bytesReceived.Add(int64(n))
		now := time.Now()
		u.lastActivity.Store(now)
		if u.metrics != nil {
			u.metrics.packetsReceived.Inc()
			u.metrics.bytesReceived.Add(float64(n))
			u.metrics.lastActivity.Set(float64(now.Unix()))
		}

		data := make([]byte, n)
		copy(data, packet[:n])

		if err := u.buffer.Write(data); err != nil {
			if u.metrics != nil {
				u.metrics.packetsDropped.Inc()
			}
			continue
		}

		u.publishBuffered(ctx)
	}
}

// publishBuffered drains the packet buffer to NATS with retry
func (u *Input) publishBuffered(ctx context.Context) {
	const maxBatchSize = 100
	packets := u.buffer.ReadBatch(maxBatchSize)

	for _, data := range packets {
		if !u.running.Load() {
			return
		}

		start := time.Now()
		err := backoff.Do(ctx, u.retryConfig, func() error {
			return u.natsClient.Publish(ctx, u.subject, data)
		})
		if err != nil {
			u.errorCount.Add(1)
			continue
		}
		if u.metrics != nil {
			u.metrics.publishLatency.Observe(time.Since(start).Seconds())
		}
	}
}

// CreateInput creates a UDP input component from raw configuration
func CreateInput(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	cfg := DefaultConfig()

	if len(rawConfig) > 0 {
		var userConfig InputConfig
		if err := component.SafeUnmarshal(rawConfig, &userConfig); err != nil {
			return nil, errors.Wrap(err, "udp-input-factory", "create", "config parsing")
		}
		if userConfig.BufferSize > 0 {
			cfg.BufferSize = userConfig.BufferSize
		}
		if userConfig.Ports != nil {
			cfg.Ports = userConfig.Ports
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "udp-input-factory", "create", "config validation")
	}
	if deps.NATSClient == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("NATS client is required"),
			"udp-input-factory", "create", "NATS client validation")
	}

	return NewInput(InputDeps{
		Name:            "udp-input",
		Config:          cfg,
		NATSClient:      deps.NATSClient,
		MetricsRegistry: deps.MetricsRegistry,
		Logger:          deps.GetLoggerWithComponent("udp-input"),
	})
}

// Register registers the UDP input component with the given registry
func Register(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "udp-input",
		Factory:     CreateInput,
		Schema:      udpInputSchema,
		Type:        "input",
		Protocol:    "udp",
		Description: "UDP input component receiving datagrams and publishing to NATS",
		Version:     "1.0.0",
	})
}
