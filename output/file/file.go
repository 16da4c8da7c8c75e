// Package file provides a file output component for writing messages to disk
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/streamkit/component"
	"github.com/c360/streamkit/errors"
	"github.com/c360/streamkit/natsclient"
)

// Config holds configuration for the file output component
type Config struct {
	Ports      *component.PortConfig `json:"ports,omitempty" schema:"type:ports,description:Port configuration,category:basic"`
	Directory  string                `json:"directory" schema:"type:string,description:Output directory,category:basic,required"`
	FilePrefix string                `json:"file_prefix,omitempty" schema:"type:string,description:Output file name prefix,category:basic"`
	Format     string                `json:"format,omitempty" schema:"type:enum,description:Output format,enum:json|jsonl|raw,category:basic"`
	Append     bool                  `json:"append,omitempty" schema:"type:bool,description:Append to an existing file instead of truncating,category:advanced"`
	BufferSize int                   `json:"buffer_size,omitempty" schema:"type:int,description:Messages buffered before a flush,default:100,min:1,max:100000,category:advanced"`
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Directory == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "directory is required")
	}

	switch c.Format {
	case "", "json", "jsonl", "raw":
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"format must be one of: json, jsonl, raw")
	}

	if c.BufferSize < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"buffer_size cannot be negative")
	}

	if c.Ports != nil {
		for _, input := range c.Ports.Inputs {
			if input.Type == "nats" && input.Subject == "" {
				return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
					"NATS input subject cannot be empty")
			}
		}
	}

	return nil
}

// DefaultConfig returns default configuration for file output
func DefaultConfig() Config {
	return Config{
		Ports: &component.PortConfig{
			Inputs: []component.PortDefinition{
				{
					Name:        "nats_input",
					Type:        "nats",
					Subject:     "output.>",
					Required:    true,
					Description: "NATS subjects to write to files",
				},
			},
		},
		Directory:  "/tmp/streamkit",
		FilePrefix: "output",
		Format:     "jsonl",
		Append:     true,
		BufferSize: 100,
	}
}

// fileSchema is generated once from Config struct tags
var fileSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Output writes NATS messages to a file on disk
type Output struct {
	name       string
	subjects   []string
	directory  string
	filePrefix string
	format     string
	append     bool
	bufferSize int
	natsClient *natsclient.Client
	logger     *slog.Logger

	file   *os.File
	fileMu sync.Mutex

	buffer   [][]byte
	bufferMu sync.Mutex

	shutdown  chan struct{}
	closeOnce sync.Once
	running   atomic.Bool
	startTime time.Time
	mu        sync.RWMutex
	wg        sync.WaitGroup

	messagesWritten atomic.Int64
	bytesWritten    atomic.Int64
	errorCount      atomic.Int64
	lastActivity    atomic.Value // stores time.Time
}

var _ component.Discoverable = (*Output)(nil)
var _ component.LifecycleComponent = (*Output)(nil)

// NewOutput creates a file output component from raw configuration
func NewOutput(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	cfg := DefaultConfig()

	if len(rawConfig) > 0 {
		var userConfig Config
		if err := component.SafeUnmarshal(rawConfig, &userConfig); err != nil {
			return nil, errors.WrapInvalid(err, "Output", "NewOutput", "config unmarshal")
		}
		if userConfig.Directory != "" {
			cfg.Directory = userConfig.Directory
		}
		if userConfig.FilePrefix != "" {
			cfg.FilePrefix = userConfig.FilePrefix
		}
		if userConfig.Format != "" {
			cfg.Format = userConfig.Format
		}
		cfg.Append = userConfig.Append
		if userConfig.BufferSize > 0 {
			cfg.BufferSize = userConfig.BufferSize
		}
		if userConfig.Ports != nil {
			cfg.Ports = userConfig.Ports
		}
	}

	var subjects []string
	for _, input := range cfg.Ports.Inputs {
		if input.Type == "nats" && input.Subject != "" {
			subjects = append(subjects, input.Subject)
		}
	}
	if len(subjects) == 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Output", "NewOutput", "no input subjects configured")
	}

	out := &Output{
		name:       "file-output",
		subjects:   subjects,
		directory:  cfg.Directory,
		filePrefix: cfg.FilePrefix,
		format:     cfg.Format,
		append:     cfg.Append,
		bufferSize: cfg.BufferSize,
		natsClient: deps.NATSClient,
		logger:     deps.GetLoggerWithComponent("file-output"),
		buffer:     make([][]byte, 0, cfg.BufferSize),
		shutdown:   make(chan struct{}),
	}
	out.lastActivity.Store(time.Time{})
	return out, nil
}

// path returns the output file path
func (f *Output) path() string {
	return filepath.Join(f.directory, fmt.Sprintf("%s.%s", f.filePrefix, f.format))
}

// Initialize creates the output directory
func (f *Output) Initialize() error {
	if err := os.MkdirAll(f.directory, 0o755); err != nil {
		return errors.WrapFatal(err, "Output", "Initialize", "create output directory")
	}
	return nil
}

// Start opens the output file and subscribes to the input subjects
func (f *Output) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.running.Load() {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Output", "Start", "running state check")
	}
	if f.natsClient == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "Output", "Start", "NATS client validation")
	}

	flags := os.O_CREATE | os.O_WRONLY
	if f.append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	file, err := os.OpenFile(f.path(), flags, 0o644) //nolint:gosec // path comes from validated config
	if err != nil {
		return errors.WrapFatal(err, "Output", "Start", "open output file")
	}
	f.fileMu.Lock()
	f.file = file
	f.fileMu.Unlock()

	for _, subject := range f.subjects {
		if err := f.natsClient.Subscribe(ctx, subject, f.handleMessage); err != nil {
			return errors.WrapTransient(err, "Output", "Start",
				fmt.Sprintf("subscribe to %s", subject))
		}
	}

	f.wg.Add(1)
	go f.flushLoop()

	f.running.Store(true)
	f.startTime = time.Now()

	f.logger.Info("file output started",
		"subjects", f.subjects, "path", f.path(), "format", f.format)
	return nil
}

// Stop flushes remaining messages and closes the file
func (f *Output) Stop(timeout time.Duration) error {
	if !f.running.Load() {
		return nil
	}

	f.closeOnce.Do(func() { close(f.shutdown) })

	waitCh := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
	case <-time.After(timeout):
		return errors.WrapTransient(fmt.Errorf("shutdown timeout after %v", timeout),
			"Output", "Stop", "graceful shutdown")
	}

	f.flush()

	f.fileMu.Lock()
	if f.file != nil {
		if err := f.file.Close(); err != nil {
			f.logger.Warn("failed to close output file", "error", err, "path", f.path())
		}
		f.file = nil
	}
	f.fileMu.Unlock()

	f.running.Store(false)
	return nil
}

// handleMessage buffers an incoming message and flushes when full
func (f *Output) handleMessage(_ context.Context, msgData []byte) {
	data := make([]byte, len(msgData))
	copy(data, msgData)

	f.bufferMu.Lock()
	f.buffer = append(f.buffer, data)
	shouldFlush := len(f.buffer) >= f.bufferSize
	f.bufferMu.Unlock()

	f.lastActivity.Store(time.Now())

	if shouldFlush {
		f.flush()
	}
}

// flushLoop flushes the buffer once a second
func (f *Output) flushLoop() {
	defer f.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-f.shutdown:
			return
		case <-ticker.C:
			f.flush()
		}
	}
}

// flush writes buffered messages to the file
func (f *Output) flush() {
	f.bufferMu.Lock()
	if len(f.buffer) == 0 {
		f.bufferMu.Unlock()
		return
	}
	messages := f.buffer
	f.buffer = make([][]byte, 0, f.bufferSize)
	f.bufferMu.Unlock()

	f.fileMu.Lock()
	defer f.fileMu.Unlock()

	if f.file == nil {
		f.errorCount.Add(int64(len(messages)))
		f.logger.Error("file handle is nil during flush", "messages_lost", len(messages))
		return
	}

	for _, msg := range messages {
		n, err := f.file.Write(f.render(msg))
		if err != nil {
			f.errorCount.Add(1)
			f.logger.Error("failed to write message to file", "error", err)
			continue
		}
		f.messagesWritten.Add(1)
		f.bytesWritten.Add(int64(n))
	}
}

// render formats a message for the configured output format
func (f *Output) render(msg []byte) []byte {
	switch f.format {
	case "json":
		var obj any
		if err := json.Unmarshal(msg, &obj); err == nil {
			if formatted, err := json.MarshalIndent(obj, "", "  "); err == nil {
				return append(formatted, '\n')
			}
		}
		return append(msg, '\n')
	case "raw":
		return msg
	default: // jsonl
		return append(msg, '\n')
	}
}

// Meta returns component metadata
func (f *Output) Meta() component.Metadata {
	return component.Metadata{
		Name:        f.name,
		Type:        "output",
		Description: "File output for writing messages to disk",
		Version:     "1.0.0",
	}
}

// InputPorts returns configured input port definitions
func (f *Output) InputPorts() []component.Port {
	ports := make([]component.Port, len(f.subjects))
	for i, subject := range f.subjects {
		ports[i] = component.Port{
			Name:      fmt.Sprintf("input_%d", i),
			Direction: component.DirectionInput,
			Required:  true,
			Config:    component.NATSPort{Subject: subject},
		}
	}
	return ports
}

// OutputPorts returns the file the component writes. The path is exclusive:
// two instances writing the same file would interleave corrupt output.
func (f *Output) OutputPorts() []component.Port {
	return []component.Port{
		{
			Name:        "file_output",
			Direction:   component.DirectionOutput,
			Required:    true,
			Description: "Output file path",
			Config:      component.FilePort{Path: f.path()},
		},
	}
}

// ConfigSchema returns the configuration schema
func (f *Output) ConfigSchema() component.ConfigSchema {
	return fileSchema
}

// Health returns the current health status
func (f *Output) Health() component.HealthStatus {
	f.fileMu.Lock()
	fileOpen := f.file != nil
	f.fileMu.Unlock()

	return component.HealthStatus{
		Healthy:    f.running.Load() && fileOpen,
		LastCheck:  time.Now(),
		ErrorCount: int(f.errorCount.Load()),
		Uptime:     time.Since(f.startTime),
	}
}

// DataFlow returns current data flow metrics
func (f *Output) DataFlow() component.FlowMetrics {
	written := f.messagesWritten.Load()
	bytes := f.bytesWritten.Load()
	errorCount := f.errorCount.Load()
	lastActivity, _ := f.lastActivity.Load().(time.Time)

	var messagesPerSecond, bytesPerSecond, errorRate float64
	if uptime := time.Since(f.startTime).Seconds(); uptime > 0 {
		messagesPerSecond = float64(written) / uptime
		bytesPerSecond = float64(bytes) / uptime
	}
	if written > 0 {
		errorRate = float64(errorCount) / float64(written)
	}

	return component.FlowMetrics{
		MessagesPerSecond: messagesPerSecond,
		BytesPerSecond:    bytesPerSecond,
		ErrorRate:         errorRate,
		LastActivity:      lastActivity,
	}
}

// Register registers the file output component with the given registry
func Register(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "file-output",
		Factory:     NewOutput,
		Schema:      fileSchema,
		Type:        "output",
		Protocol:    "file",
		Description: "File output for writing messages to disk in JSON, JSONL, or raw format",
		Version:     "1.0.0",
	})
}
