package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamkit/component"
	"github.com/c360/streamkit/natsclient"
)

func TestConfigValidate(t *testing.T) {
	valid := DefaultConfig()
	assert.NoError(t, valid.Validate())

	missingDir := Config{Format: "jsonl"}
	assert.Error(t, missingDir.Validate())

	badFormat := Config{Directory: "/tmp/x", Format: "xml"}
	assert.Error(t, badFormat.Validate())

	negativeBuffer := Config{Directory: "/tmp/x", BufferSize: -1}
	assert.Error(t, negativeBuffer.Validate())

	emptySubject := DefaultConfig()
	emptySubject.Ports.Inputs[0].Subject = ""
	assert.Error(t, emptySubject.Validate())
}

func newTestOutput(t *testing.T, cfg Config) *Output {
	t.Helper()
	client, err := natsclient.NewClient("nats://localhost:4222")
	require.NoError(t, err)

	raw, err := json.Marshal(cfg)
	require.NoError(t, err)

	instance, err := NewOutput(raw, component.Dependencies{NATSClient: client})
	require.NoError(t, err)
	return instance.(*Output)
}

func TestNewOutputRequiresSubjects(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Ports = &component.PortConfig{}

	raw, err := json.Marshal(cfg)
	require.NoError(t, err)

	_, err = NewOutput(raw, component.Dependencies{})
	assert.Error(t, err)
}

func TestOutputPortsExposeFilePath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Directory = "/var/lib/streamkit"
	cfg.FilePrefix = "events"
	out := newTestOutput(t, cfg)

	ports := out.OutputPorts()
	require.Len(t, ports, 1)

	filePort, ok := ports[0].Config.(component.FilePort)
	require.True(t, ok)
	assert.Equal(t, "/var/lib/streamkit/events.jsonl", filePort.Path)
	assert.True(t, filePort.IsExclusive())
}

func TestInitializeCreatesDirectory(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Directory = filepath.Join(t.TempDir(), "nested", "out")
	out := newTestOutput(t, cfg)

	require.NoError(t, out.Initialize())
	info, err := os.Stat(cfg.Directory)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestFlushWritesMessages(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Directory = t.TempDir()
	cfg.BufferSize = 10
	out := newTestOutput(t, cfg)
	require.NoError(t, out.Initialize())

	file, err := os.OpenFile(out.path(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	out.file = file
	defer file.Close()

	ctx := context.Background()
	out.handleMessage(ctx, []byte(`{"seq":1}`))
	out.handleMessage(ctx, []byte(`{"seq":2}`))
	out.flush()

	content, err := os.ReadFile(out.path())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"seq":1}`, lines[0])
	assert.JSONEq(t, `{"seq":2}`, lines[1])
	assert.Equal(t, int64(2), out.messagesWritten.Load())
}

func TestHandleMessageFlushesWhenBufferFull(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Directory = t.TempDir()
	cfg.BufferSize = 2
	out := newTestOutput(t, cfg)
	require.NoError(t, out.Initialize())

	file, err := os.OpenFile(out.path(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	out.file = file
	defer file.Close()

	ctx := context.Background()
	out.handleMessage(ctx, []byte(`{"a":1}`))
	assert.Equal(t, int64(0), out.messagesWritten.Load())

	out.handleMessage(ctx, []byte(`{"a":2}`))
	assert.Equal(t, int64(2), out.messagesWritten.Load())
}

func TestRenderFormats(t *testing.T) {
	out := &Output{format: "jsonl"}
	assert.Equal(t, "{\"a\":1}\n", string(out.render([]byte(`{"a":1}`))))

	out.format = "raw"
	assert.Equal(t, "raw-bytes", string(out.render([]byte("raw-bytes"))))

	out.format = "json"
	rendered := string(out.render([]byte(`{"a":1}`)))
	assert.Contains(t, rendered, "\"a\": 1")
	assert.True(t, strings.HasSuffix(rendered, "\n"))

	// Invalid JSON falls back to a raw line.
	assert.Equal(t, "not-json\n", string(out.render([]byte("not-json"))))
}

func TestStopWithoutStartIsNoop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Directory = t.TempDir()
	out := newTestOutput(t, cfg)
	assert.NoError(t, out.Stop(time.Second))
}

func TestRegister(t *testing.T) {
	registry := component.NewRegistry()
	require.NoError(t, Register(registry))

	available := registry.ListAvailable()
	require.Contains(t, available, "file-output")
	assert.Equal(t, "file", available["file-output"].Protocol)
}
