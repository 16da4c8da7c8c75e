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

	"golang.org/x/time/rate"

	"github.com/c360/streamkit/component"
	"github.com/c360/streamkit/errors"
	"github.com/c360/streamkit/metric"
	"github.com/c360/streamkit/natsclient"
	"github.com/c360/streamkit/pkg/backoff"
	"github.com/c360/streamkit/pkg/buffer"
	"github.com/c360/streamkit/pkg/resolver"
)

// offerPollInterval is how often a deferred payload is offered again while
// the sink resolves the destination or waits out a retry delay.
const offerPollInterval = 10 * time.Millisecond

// udpOutputSchema is generated once from OutputConfig struct tags
var udpOutputSchema = component.GenerateConfigSchema(reflect.TypeOf(OutputConfig{}))

// OutputConfig holds configuration for the UDP output component
type OutputConfig struct {
	// Address is the destination as host:port, optionally prefixed with a
	// URI scheme that is ignored (udp://host:port). The host may be a name;
	// it is resolved when the first datagram is offered.
	Address string `json:"address" schema:"type:string,description:Destination address (host:port or udp://host:port),category:basic,required"`

	// BackoffInitial is the first retry delay after a failed resolution.
	BackoffInitial string `json:"backoff_initial,omitempty" schema:"type:duration,description:First retry delay after a failed DNS resolution,default:500ms,category:advanced"`

	// BackoffMax caps the retry delay growth.
	BackoffMax string `json:"backoff_max,omitempty" schema:"type:duration,description:Maximum DNS retry delay,default:1m,category:advanced"`

	// ResetBackoffOnSuccess restarts the delay sequence after a successful
	// resolution. Off by default: a flapping DNS server keeps its long delay.
	ResetBackoffOnSuccess bool `json:"reset_backoff_on_success,omitempty" schema:"type:bool,description:Restart the retry delay sequence after a successful resolution,category:advanced"`

	// MaxSendRate limits outgoing datagrams per second. Zero disables.
	MaxSendRate float64 `json:"max_send_rate,omitempty" schema:"type:float,description:Maximum datagrams per second (0 disables limiting),category:advanced"`

	// BufferSize is the in-memory datagram queue capacity.
	BufferSize int `json:"buffer_size,omitempty" schema:"type:int,description:In-memory datagram buffer capacity,default:5000,min:1,max:1000000,category:advanced"`

	// Ports configures the NATS input subject.
	Ports *component.PortConfig `json:"ports,omitempty" schema:"type:ports,description:Port configuration,category:basic"`
}

// DefaultConfig returns sensible defaults for UDP output
func DefaultConfig() OutputConfig {
	return OutputConfig{
		BackoffInitial: "500ms",
		BackoffMax:     "1m",
		BufferSize:     5000,
		Ports: &component.PortConfig{
			Inputs: []component.PortDefinition{
				{
					Name:        "nats_input",
					Type:        "nats",
					Subject:     "output.udp",
					Required:    true,
					Description: "NATS subject consumed for outgoing datagrams",
				},
			},
		},
	}
}

// parseAddress splits a destination address into host and port. Any URI
// scheme and path are ignored; a missing host or port is a configuration
// error, not something to guess at runtime.
func parseAddress(address string) (string, int, error) {
	if address == "" {
		return "", 0, errors.WrapInvalid(errors.ErrMissingConfig,
			"OutputConfig", "parseAddress", "address validation")
	}

	hostPort := address
	if i := strings.Index(hostPort, "://"); i >= 0 {
		hostPort = hostPort[i+3:]
	}
	if i := strings.IndexByte(hostPort, '/'); i >= 0 {
		hostPort = hostPort[:i]
	}

	host, portStr, err := net.SplitHostPort(hostPort)
	if err != nil {
		return "", 0, errors.WrapInvalid(errors.ErrMissingPort,
			"OutputConfig", "parseAddress", fmt.Sprintf("address %q parsing", address))
	}
	if host == "" {
		return "", 0, errors.WrapInvalid(errors.ErrMissingHost,
			"OutputConfig", "parseAddress", fmt.Sprintf("address %q parsing", address))
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, errors.WrapInvalid(errors.ErrMissingPort,
			"OutputConfig", "parseAddress", fmt.Sprintf("port %q parsing", portStr))
	}

	return host, port, nil
}

// Validate implements component.Validatable
func (c *OutputConfig) Validate() error {
	if _, _, err := parseAddress(c.Address); err != nil {
		return err
	}

	if c.BackoffInitial != "" {
		if _, err := time.ParseDuration(c.BackoffInitial); err != nil {
			return errors.WrapInvalid(err, "OutputConfig", "Validate", "backoff_initial parsing")
		}
	}
	if c.BackoffMax != "" {
		if _, err := time.ParseDuration(c.BackoffMax); err != nil {
			return errors.WrapInvalid(err, "OutputConfig", "Validate", "backoff_max parsing")
		}
	}
	if c.MaxSendRate < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("max_send_rate %v cannot be negative", c.MaxSendRate),
			"OutputConfig", "Validate", "rate validation")
	}
	if c.BufferSize < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("buffer_size %d cannot be negative", c.BufferSize),
			"OutputConfig", "Validate", "buffer size validation")
	}

	if c.Ports != nil {
		for _, input := range c.Ports.Inputs {
			if input.Type == "nats" && input.Subject == "" {
				return errors.WrapInvalid(errors.ErrInvalidConfig,
					"OutputConfig", "Validate", "NATS input subject validation")
			}
		}
	}

	return nil
}

// backoffPolicy converts the parsed duration fields into a backoff policy
func (c *OutputConfig) backoffPolicy() backoff.Policy {
	policy := backoff.DefaultPolicy()
	if c.BackoffInitial != "" {
		if d, err := time.ParseDuration(c.BackoffInitial); err == nil {
			policy.Initial = d
		}
	}
	if c.BackoffMax != "" {
		if d, err := time.ParseDuration(c.BackoffMax); err == nil {
			policy.Max = d
		}
	}
	policy.ResetOnSuccess = c.ResetBackoffOnSuccess
	return policy
}

// subject returns the configured NATS input subject
func (c *OutputConfig) subject() string {
	if c.Ports != nil {
		for _, input := range c.Ports.Inputs {
			if input.Type == "nats" && input.Subject != "" {
				return input.Subject
			}
		}
	}
	return "output.udp"
}

// Output consumes payloads from a NATS subject and sends each one as a UDP
// datagram to the configured destination.
type Output struct {
	name       string
	cfg        OutputConfig
	host       string
	port       int
	subject    string
	natsClient *natsclient.Client
	resolver   resolver.Resolver
	logger     *slog.Logger

	buffer  buffer.Buffer[[]byte]
	sink    *Sink
	limiter *rate.Limiter

	shutdown  chan struct{}
	done      chan struct{}
	running   atomic.Bool
	startTime time.Time
	mu        sync.RWMutex
	wg        sync.WaitGroup

	messagesReceived atomic.Int64
	bytesReceived    atomic.Int64
	errorCount       atomic.Int64
	lastError        atomic.Value // stores string
	lastActivity     atomic.Value // stores time.Time

	metrics  *Metrics
	registry *metric.Registry
}

var _ component.Discoverable = (*Output)(nil)
var _ component.LifecycleComponent = (*Output)(nil)

// OutputDeps holds runtime dependencies for the UDP output component
type OutputDeps struct {
	Name            string
	Config          OutputConfig
	NATSClient      *natsclient.Client
	MetricsRegistry *metric.Registry
	Resolver        resolver.Resolver
	Logger          *slog.Logger
}

// NewOutput creates a new UDP output component. The destination address
// must already be valid; call Config.Validate first.
func NewOutput(deps OutputDeps) (*Output, error) {
	host, port, err := parseAddress(deps.Config.Address)
	if err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "udp-output", "address", deps.Config.Address)
	}

	bufferSize := deps.Config.BufferSize
	if bufferSize <= 0 {
		bufferSize = 5000
	}
	bufferOpts := []buffer.Option[[]byte]{
		buffer.WithOverflowPolicy[[]byte](buffer.DropOldest),
	}
	if deps.MetricsRegistry != nil {
		bufferOpts = append(bufferOpts, buffer.WithMetrics[[]byte](deps.MetricsRegistry, "udp_output"))
	}
	payloadBuffer, err := buffer.NewCircular(bufferSize, bufferOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "udp-output", "NewOutput", "buffer creation")
	}

	var limiter *rate.Limiter
	if deps.Config.MaxSendRate > 0 {
		burst := int(deps.Config.MaxSendRate)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(deps.Config.MaxSendRate), burst)
	}

	res := deps.Resolver
	if res == nil {
		res = resolver.System()
	}

	o := &Output{
		name:       deps.Name,
		cfg:        deps.Config,
		host:       host,
		port:       port,
		subject:    deps.Config.subject(),
		natsClient: deps.NATSClient,
		resolver:   res,
		logger:     logger,
		buffer:     payloadBuffer,
		limiter:    limiter,
		startTime:  time.Now(),
		metrics:    newMetrics(deps.MetricsRegistry, deps.Name),
		registry:   deps.MetricsRegistry,
	}
	o.lastActivity.Store(time.Time{})
	o.lastError.Store("")
	return o, nil
}

// Meta returns the component metadata
func (o *Output) Meta() component.Metadata {
	name := o.name
	if name == "" {
		name = fmt.Sprintf("udp-output-%s-%d", o.host, o.port)
	}
	return component.Metadata{
		Name:        name,
		Type:        "output",
		Description: fmt.Sprintf("UDP output sending datagrams from %s to %s:%d", o.subject, o.host, o.port),
		Version:     "1.0.0",
	}
}

// InputPorts returns the input ports for this component
func (o *Output) InputPorts() []component.Port {
	return []component.Port{
		{
			Name:        "nats_input",
			Direction:   component.DirectionInput,
			Required:    true,
			Description: "NATS subject consumed for outgoing datagrams",
			Config:      component.NATSPort{Subject: o.subject},
		},
	}
}

// OutputPorts returns the output ports for this component
func (o *Output) OutputPorts() []component.Port {
	return []component.Port{
		{
			Name:        "destination",
			Direction:   component.DirectionOutput,
			Required:    true,
			Description: fmt.Sprintf("UDP destination %s:%d", o.host, o.port),
			Config: component.NetworkEndpoint{
				Protocol: "udp",
				Host:     o.host,
				Port:     o.port,
			},
		},
	}
}

// ConfigSchema returns the configuration schema for this component
func (o *Output) ConfigSchema() component.ConfigSchema {
	return udpOutputSchema
}

// Health returns the current health status of the component
func (o *Output) Health() component.HealthStatus {
	running := o.running.Load()
	lastError, _ := o.lastError.Load().(string)

	return component.HealthStatus{
		Healthy:    running && lastError == "",
		LastCheck:  time.Now(),
		ErrorCount: int(o.errorCount.Load()),
		LastError:  lastError,
		Uptime:     time.Since(o.startTime),
	}
}

// DataFlow returns the current data flow metrics
func (o *Output) DataFlow() component.FlowMetrics {
	messages := o.messagesReceived.Load()
	bytes := o.bytesReceived.Load()
	errorCount := o.errorCount.Load()
	lastActivity, _ := o.lastActivity.Load().(time.Time)

	var messagesPerSecond, bytesPerSecond, errorRate float64
	if uptime := time.Since(o.startTime).Seconds(); uptime > 0 {
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

// Initialize binds the outgoing socket. A bind failure is fatal: the
// component cannot run without a socket, unlike DNS which retries forever.
func (o *Output) Initialize() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.sink != nil {
		return nil
	}
	if o.natsClient == nil {
		return errors.WrapInvalid(fmt.Errorf("nil NATS client"),
			"udp-output", "Initialize", "NATS client validation")
	}

	sink, err := NewSink(o.host, o.port,
		WithResolver(o.resolver),
		WithBackoffPolicy(o.cfg.backoffPolicy()),
		WithSinkLogger(o.logger),
		withMetrics(o.metrics),
	)
	if err != nil {
		return errors.Wrap(err, "udp-output", "Initialize", "sink creation")
	}
	o.sink = sink
	return nil
}

// Start subscribes to the NATS input subject and starts the send loop
func (o *Output) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running.Load() {
		return nil
	}
	if o.sink == nil {
		return errors.Wrap(errors.ErrNotStarted, "udp-output", "Start", "initialization check")
	}

	if err := o.sink.Healthcheck(ctx); err != nil {
		return errors.Wrap(err, "udp-output", "Start", "sink healthcheck")
	}

	if err := o.natsClient.Subscribe(ctx, o.subject, o.handleMessage); err != nil {
		return errors.WrapTransient(err, "udp-output", "Start", "NATS subscription")
	}

	o.shutdown = make(chan struct{})
	o.done = make(chan struct{})
	o.running.Store(true)
	o.startTime = time.Now()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer close(o.done)
		o.sendLoop(ctx)
	}()

	return nil
}

// handleMessage queues an incoming NATS payload for sending
func (o *Output) handleMessage(_ context.Context, data []byte) {
	if !o.running.Load() {
		return
	}

	payload := make([]byte, len(data))
	copy(payload, data)

	o.messagesReceived.Add(1)
	o.bytesReceived.Add(int64(len(data)))

	if err := o.buffer.Write(payload); err != nil {
		o.errorCount.Add(1)
		if o.metrics != nil {
			o.metrics.datagramsDropped.Inc()
		}
	}
}

// sendLoop drains the buffer through the sink. A deferred payload is held
// and offered again until accepted; a fatal sink error stops the loop.
func (o *Output) sendLoop(ctx context.Context) {
	var pending []byte

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.shutdown:
			return
		default:
		}

		if pending == nil {
			payload, ok := o.buffer.Read()
			if !ok {
				if !o.sleep(ctx, offerPollInterval) {
					return
				}
				continue
			}
			pending = payload

			if o.limiter != nil {
				if err := o.limiter.Wait(ctx); err != nil {
					return
				}
			}
		}

		start := time.Now()
		result, err := o.sink.Offer(ctx, pending)
		switch result {
		case Accepted:
			now := time.Now()
			o.lastActivity.Store(now)
			if o.metrics != nil {
				o.metrics.sendLatency.Observe(now.Sub(start).Seconds())
				o.metrics.lastActivity.Set(float64(now.Unix()))
			}
			pending = nil

		case Deferred:
			if o.metrics != nil {
				o.metrics.deferrals.Inc()
			}
			if !o.sleep(ctx, offerPollInterval) {
				return
			}

		case Fatal:
			o.errorCount.Add(1)
			o.lastError.Store(err.Error())
			o.logger.Error("stopping send loop", "error", err)
			return
		}
	}
}

// sleep waits for d unless the component shuts down first
func (o *Output) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-o.shutdown:
		return false
	case <-timer.C:
		return true
	}
}

// Stop gracefully stops the component within the given timeout
func (o *Output) Stop(timeout time.Duration) error {
	if !o.running.Load() {
		return nil
	}
	o.running.Store(false)

	o.mu.Lock()
	if o.shutdown != nil {
		select {
		case <-o.shutdown:
		default:
			close(o.shutdown)
		}
	}
	o.mu.Unlock()

	select {
	case <-o.done:
	case <-time.After(timeout):
		return errors.WrapTransient(fmt.Errorf("stop timeout after %v", timeout),
			"udp-output", "Stop", "graceful shutdown")
	}

	o.cleanup()
	return nil
}

func (o *Output) cleanup() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.sink != nil {
		_ = o.sink.Close()
		o.sink = nil
	}
	if o.buffer != nil {
		_ = o.buffer.Close()
	}
}

// CreateOutput creates a UDP output component from raw configuration
func CreateOutput(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	cfg := DefaultConfig()

	if len(rawConfig) > 0 {
		var userConfig OutputConfig
		if err := component.SafeUnmarshal(rawConfig, &userConfig); err != nil {
			return nil, errors.Wrap(err, "udp-output-factory", "create", "config parsing")
		}
		cfg.Address = userConfig.Address
		if userConfig.BackoffInitial != "" {
			cfg.BackoffInitial = userConfig.BackoffInitial
		}
		if userConfig.BackoffMax != "" {
			cfg.BackoffMax = userConfig.BackoffMax
		}
		cfg.ResetBackoffOnSuccess = userConfig.ResetBackoffOnSuccess
		cfg.MaxSendRate = userConfig.MaxSendRate
		if userConfig.BufferSize > 0 {
			cfg.BufferSize = userConfig.BufferSize
		}
		if userConfig.Ports != nil {
			cfg.Ports = userConfig.Ports
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "udp-output-factory", "create", "config validation")
	}
	if deps.NATSClient == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("NATS client is required"),
			"udp-output-factory", "create", "NATS client validation")
	}

	return NewOutput(OutputDeps{
		Name:            "udp-output",
		Config:          cfg,
		NATSClient:      deps.NATSClient,
		MetricsRegistry: deps.MetricsRegistry,
		Resolver:        deps.GetResolver(),
		Logger:          deps.GetLoggerWithComponent("udp-output"),
	})
}

// Register registers the UDP output component with the given registry
func Register(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "udp-output",
		Factory:     CreateOutput,
		Schema:      udpOutputSchema,
		Type:        "output",
		Protocol:    "udp",
		Description: "UDP output component sending datagrams to a remote destination",
		Version:     "1.0.0",
	})
}
