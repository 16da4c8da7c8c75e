// Package main implements the entry point for the StreamKit application.
// StreamKit is a stream processing toolkit that moves data between network
// protocols, files, and NATS subjects through composable components.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"sort"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/streamkit/component"
	"github.com/c360/streamkit/componentregistry"
	"github.com/c360/streamkit/config"
	"github.com/c360/streamkit/metric"
	"github.com/c360/streamkit/natsclient"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "streamkit"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}

	cfg, err := initializeConfiguration(cliCfg)
	if err != nil {
		return err
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	logger := setupLogger(
		firstNonEmpty(cliCfg.LogLevel, cfg.Logging.Level),
		firstNonEmpty(cliCfg.LogFormat, cfg.Logging.Format),
	)
	slog.SetDefault(logger)

	slog.Info("Starting StreamKit",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	ctx := context.Background()
	natsClient, metricsRegistry, err := setupInfrastructure(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := natsClient.Close(ctx); err != nil {
			slog.Warn("NATS close failed", "error", err)
		}
	}()

	metricsServer, err := startMetricsServer(cfg, metricsRegistry)
	if err != nil {
		return err
	}
	if metricsServer != nil {
		defer func() {
			if err := metricsServer.Stop(); err != nil {
				slog.Warn("metrics server stop failed", "error", err)
			}
		}()
	}

	registry := component.NewRegistry()
	if err := componentregistry.Register(registry); err != nil {
		return fmt.Errorf("register components: %w", err)
	}

	deps := component.Dependencies{
		NATSClient:      natsClient,
		MetricsRegistry: metricsRegistry,
		Logger:          logger,
	}

	components, err := createComponents(cfg, registry, deps)
	if err != nil {
		return err
	}
	if len(components) == 0 {
		return fmt.Errorf("no enabled components in configuration")
	}

	return runWithSignalHandling(ctx, components, cliCfg.ShutdownTimeout)
}

// initializeCLI parses flags and handles version/help early exits
func initializeCLI() (*CLIConfig, bool, error) {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, true, nil
	}

	if cliCfg.ShowHelp {
		printHelp()
		return nil, true, nil
	}

	return cliCfg, false, nil
}

// initializeConfiguration loads and validates configuration
func initializeConfiguration(cliCfg *CLIConfig) (*config.Config, error) {
	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setupInfrastructure creates the NATS client and metrics registry and
// waits for the NATS connection to be ready.
func setupInfrastructure(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
) (*natsclient.Client, *metric.Registry, error) {
	opts := []natsclient.ClientOption{
		natsclient.WithLogger(logger),
	}
	if cfg.NATS.ClientName != "" {
		opts = append(opts, natsclient.WithName(cfg.NATS.ClientName))
	}
	if cfg.NATS.MaxReconnects != 0 {
		opts = append(opts, natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects))
	}
	if cfg.NATS.ReconnectWait > 0 {
		opts = append(opts, natsclient.WithReconnectWait(cfg.NATS.ReconnectWait))
	}
	if cfg.NATS.Timeout > 0 {
		opts = append(opts, natsclient.WithTimeout(cfg.NATS.Timeout))
	}

	natsURL := cfg.NATS.URL
	if envURL := os.Getenv("STREAMKIT_NATS_URL"); envURL != "" {
		natsURL = envURL
	}

	natsClient, err := natsclient.NewClient(natsURL, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("create NATS client: %w", err)
	}

	slog.Info("Connecting to NATS", "url", natsURL)
	if err := natsClient.Connect(ctx); err != nil {
		return nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := natsClient.WaitForConnection(connCtx); err != nil {
		return nil, nil, fmt.Errorf("NATS connection timeout: %w", err)
	}

	return natsClient, metric.NewRegistry(), nil
}

// startMetricsServer starts the Prometheus exposition endpoint when enabled.
func startMetricsServer(cfg *config.Config, registry *metric.Registry) (*metric.Server, error) {
	if !cfg.Metrics.Enabled {
		slog.Info("Metrics server disabled")
		return nil, nil
	}

	server := metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry)
	if err := server.Start(); err != nil {
		return nil, fmt.Errorf("start metrics server: %w", err)
	}

	slog.Info("Metrics server started", "address", server.Address())
	return server, nil
}

// namedComponent pairs a component instance with its configured name for
// logging and ordered shutdown.
type namedComponent struct {
	name     string
	instance component.LifecycleComponent
}

// createComponents builds enabled component instances from configuration.
// Instances are created in sorted name order so startup is deterministic.
func createComponents(
	cfg *config.Config,
	registry *component.Registry,
	deps component.Dependencies,
) ([]namedComponent, error) {
	names := make([]string, 0, len(cfg.Components))
	for name := range cfg.Components {
		names = append(names, name)
	}
	sort.Strings(names)

	components := make([]namedComponent, 0, len(names))
	for _, name := range names {
		compCfg := cfg.Components[name]
		if !compCfg.Enabled {
			slog.Info("Component disabled in config", "name", name)
			continue
		}

		instance, err := registry.CreateComponent(name, compCfg.Name, compCfg.Config, deps)
		if err != nil {
			return nil, fmt.Errorf("create component %s: %w", name, err)
		}

		lifecycle, ok := instance.(component.LifecycleComponent)
		if !ok {
			return nil, fmt.Errorf("component %s does not support lifecycle management", name)
		}

		slog.Info("Created component", "name", name, "factory", compCfg.Name, "type", compCfg.Type)
		components = append(components, namedComponent{name: name, instance: lifecycle})
	}

	return components, nil
}

// runWithSignalHandling initializes and starts all components, then waits for
// a shutdown signal.
func runWithSignalHandling(
	ctx context.Context,
	components []namedComponent,
	shutdownTimeout time.Duration,
) error {
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	for _, c := range components {
		if err := c.instance.Initialize(); err != nil {
			return fmt.Errorf("initialize component %s: %w", c.name, err)
		}
	}

	g, gctx := errgroup.WithContext(signalCtx)
	for _, c := range components {
		c := c
		g.Go(func() error {
			if err := c.instance.Start(gctx); err != nil {
				return fmt.Errorf("start component %s: %w", c.name, err)
			}
			slog.Info("Component started", "name", c.name)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		stopComponents(components, shutdownTimeout)
		return err
	}
	slog.Info("StreamKit started", "components", len(components))

	<-signalCtx.Done()
	slog.Info("Received shutdown signal")

	stopComponents(components, shutdownTimeout)
	slog.Info("StreamKit shutdown complete")
	return nil
}

// stopComponents stops components in reverse startup order.
func stopComponents(components []namedComponent, timeout time.Duration) {
	for i := len(components) - 1; i >= 0; i-- {
		c := components[i]
		if err := c.instance.Stop(timeout); err != nil {
			slog.Error("Error stopping component", "name", c.name, "error", err)
			continue
		}
		slog.Info("Component stopped", "name", c.name)
	}
}

// printHelp prints help information
func printHelp() {
	printDetailedHelp()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
