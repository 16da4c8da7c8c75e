package udp

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamkit/component"
	"github.com/c360/streamkit/errors"
	"github.com/c360/streamkit/natsclient"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		name     string
		address  string
		wantHost string
		wantPort int
		wantErr  error
	}{
		{name: "host and port", address: "collector.example.com:9000", wantHost: "collector.example.com", wantPort: 9000},
		{name: "udp scheme", address: "udp://collector.example.com:9000", wantHost: "collector.example.com", wantPort: 9000},
		{name: "foreign scheme ignored", address: "tcp://collector.example.com:9000", wantHost: "collector.example.com", wantPort: 9000},
		{name: "https scheme ignored", address: "https://collector.example.com:9000", wantHost: "collector.example.com", wantPort: 9000},
		{name: "ip destination", address: "10.0.0.5:514", wantHost: "10.0.0.5", wantPort: 514},
		{name: "ipv6 destination", address: "[::1]:9000", wantHost: "::1", wantPort: 9000},
		{name: "trailing path ignored", address: "udp://collector:9000/ignored", wantHost: "collector", wantPort: 9000},
		{name: "empty address", address: "", wantErr: errors.ErrMissingConfig},
		{name: "missing port", address: "collector.example.com", wantErr: errors.ErrMissingPort},
		{name: "missing host", address: ":9000", wantErr: errors.ErrMissingHost},
		{name: "port zero", address: "collector:0", wantErr: errors.ErrMissingPort},
		{name: "port out of range", address: "collector:99999", wantErr: errors.ErrMissingPort},
		{name: "non-numeric port", address: "collector:abc", wantErr: errors.ErrMissingPort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, port, err := parseAddress(tt.address)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, host)
			assert.Equal(t, tt.wantPort, port)
		})
	}
}

func TestOutputConfigValidate(t *testing.T) {
	valid := OutputConfig{Address: "collector:9000"}
	assert.NoError(t, valid.Validate())

	badBackoff := OutputConfig{Address: "collector:9000", BackoffInitial: "fast"}
	assert.Error(t, badBackoff.Validate())

	badMax := OutputConfig{Address: "collector:9000", BackoffMax: "-"}
	assert.Error(t, badMax.Validate())

	badRate := OutputConfig{Address: "collector:9000", MaxSendRate: -1}
	assert.Error(t, badRate.Validate())

	badBuffer := OutputConfig{Address: "collector:9000", BufferSize: -5}
	assert.Error(t, badBuffer.Validate())

	emptySubject := DefaultConfig()
	emptySubject.Address = "collector:9000"
	emptySubject.Ports.Inputs[0].Subject = ""
	assert.Error(t, emptySubject.Validate())
}

func TestBackoffPolicyFromConfig(t *testing.T) {
	cfg := OutputConfig{
		Address:               "collector:9000",
		BackoffInitial:        "250ms",
		BackoffMax:            "30s",
		ResetBackoffOnSuccess: true,
	}
	policy := cfg.backoffPolicy()
	assert.Equal(t, 250*time.Millisecond, policy.Initial)
	assert.Equal(t, 30*time.Second, policy.Max)
	assert.True(t, policy.ResetOnSuccess)

	defaults := OutputConfig{Address: "collector:9000"}
	policy = defaults.backoffPolicy()
	assert.Equal(t, 500*time.Millisecond, policy.Initial)
	assert.Equal(t, time.Minute, policy.Max)
	assert.False(t, policy.ResetOnSuccess)
}

func TestSubjectSelection(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "output.udp", cfg.subject())

	cfg.Ports.Inputs[0].Subject = "egress.custom"
	assert.Equal(t, "egress.custom", cfg.subject())

	noPorts := OutputConfig{Address: "collector:9000"}
	assert.Equal(t, "output.udp", noPorts.subject())
}

func newTestOutput(t *testing.T, cfg OutputConfig) *Output {
	t.Helper()
	client, err := natsclient.NewClient("nats://localhost:4222")
	require.NoError(t, err)

	out, err := NewOutput(OutputDeps{
		Name:       "udp-test",
		Config:     cfg,
		NATSClient: client,
		Resolver:   loopbackResolver(),
	})
	require.NoError(t, err)
	return out
}

func TestOutputMetaAndPorts(t *testing.T) {
	out := newTestOutput(t, OutputConfig{Address: "collector.example.com:9000"})

	meta := out.Meta()
	assert.Equal(t, "udp-test", meta.Name)
	assert.Equal(t, "output", meta.Type)

	inputs := out.InputPorts()
	require.Len(t, inputs, 1)
	assert.Equal(t, component.NATSPort{Subject: "output.udp"}, inputs[0].Config)

	outputs := out.OutputPorts()
	require.Len(t, outputs, 1)
	endpoint, ok := outputs[0].Config.(component.NetworkEndpoint)
	require.True(t, ok)
	assert.Equal(t, "collector.example.com", endpoint.Host)
	assert.Equal(t, 9000, endpoint.Port)
	assert.False(t, endpoint.IsExclusive())
}

func TestOutputConfigSchema(t *testing.T) {
	out := newTestOutput(t, OutputConfig{Address: "collector:9000"})
	schema := out.ConfigSchema()

	assert.Contains(t, schema.Properties, "address")
	assert.Contains(t, schema.Properties, "max_send_rate")
	assert.Contains(t, schema.Required, "address")
}

func TestOutputLifecycleGuards(t *testing.T) {
	out := newTestOutput(t, OutputConfig{Address: "collector:9000"})

	// Start before Initialize is rejected.
	err := out.Start(context.Background())
	assert.Error(t, err)

	require.NoError(t, out.Initialize())
	require.NoError(t, out.Initialize()) // idempotent

	// Stop before start is a no-op.
	assert.NoError(t, out.Stop(time.Second))
}

func TestOutputInitializeRequiresNATSClient(t *testing.T) {
	out, err := NewOutput(OutputDeps{
		Name:     "udp-test",
		Config:   OutputConfig{Address: "collector:9000"},
		Resolver: loopbackResolver(),
	})
	require.NoError(t, err)
	assert.Error(t, out.Initialize())
}

func TestOutputSendsBufferedPayloads(t *testing.T) {
	listener, port := newListener(t)

	out := newTestOutput(t, OutputConfig{
		Address:        fmt.Sprintf("collector.internal:%d", port),
		BackoffInitial: "1ms",
		BackoffMax:     "4ms",
	})
	require.NoError(t, out.Initialize())

	out.shutdown = make(chan struct{})
	out.done = make(chan struct{})
	out.running.Store(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out.handleMessage(ctx, []byte("one"))
	out.handleMessage(ctx, []byte("two"))

	go func() {
		defer close(out.done)
		out.sendLoop(ctx)
	}()
	defer close(out.shutdown)

	require.NoError(t, listener.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 64)

	n, _, err := listener.ReadFromUDP(buf)
	require.NoError(t, err)
	assert.Equal(t, "one", string(buf[:n]))

	n, _, err = listener.ReadFromUDP(buf)
	require.NoError(t, err)
	assert.Equal(t, "two", string(buf[:n]))

	assert.Equal(t, int64(2), out.messagesReceived.Load())
}

func TestOutputHealthReflectsFatalSend(t *testing.T) {
	_, port := newListener(t)

	out := newTestOutput(t, OutputConfig{Address: fmt.Sprintf("collector.internal:%d", port)})
	require.NoError(t, out.Initialize())

	out.shutdown = make(chan struct{})
	out.done = make(chan struct{})
	out.running.Store(true)
	defer close(out.shutdown)

	// Break the sink socket so the first send fails.
	require.NoError(t, out.sink.conn.Close())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out.handleMessage(ctx, []byte("doomed"))

	done := make(chan struct{})
	go func() {
		defer close(done)
		out.sendLoop(ctx)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("send loop did not stop on fatal error")
	}

	health := out.Health()
	assert.False(t, health.Healthy)
	assert.NotEmpty(t, health.LastError)
	assert.GreaterOrEqual(t, health.ErrorCount, 1)
}

func TestCreateOutputFactory(t *testing.T) {
	deps := component.Dependencies{}

	_, err := CreateOutput(json.RawMessage(`{"address":"collector:9000"}`), deps)
	assert.Error(t, err) // NATS client required

	client, err := natsclient.NewClient("nats://localhost:4222")
	require.NoError(t, err)
	deps.NATSClient = client

	_, err = CreateOutput(json.RawMessage(`{"address":""}`), deps)
	assert.Error(t, err)

	_, err = CreateOutput(json.RawMessage(`{"address":"nohost"}`), deps)
	assert.ErrorIs(t, err, errors.ErrMissingPort)

	instance, err := CreateOutput(json.RawMessage(`{"address":"collector:9000","max_send_rate":100}`), deps)
	require.NoError(t, err)
	assert.Equal(t, "udp-output", instance.Meta().Name)
}

func TestRegister(t *testing.T) {
	registry := component.NewRegistry()
	require.NoError(t, Register(registry))

	available := registry.ListAvailable()
	require.Contains(t, available, "udp-output")
	assert.Equal(t, "output", available["udp-output"].Type)
	assert.Equal(t, "udp", available["udp-output"].Protocol)
}
