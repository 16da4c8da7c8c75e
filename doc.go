// Package streamkit provides a component-based toolkit for moving stream
// data between network protocols, files, and NATS subjects.
//
// # Architecture
//
// StreamKit is built from small components connected over a NATS bus:
//
//	┌─────────────────────────────────────┐
//	│          cmd/streamkit              │  Config, lifecycle,
//	│  (load, create, start, stop)        │  signals, metrics
//	└─────────────────────────────────────┘
//	           ↓ orchestrates
//	┌─────────────────────────────────────┐
//	│         Components                  │  Inputs and Outputs
//	│      (input/*, output/*)            │
//	└─────────────────────────────────────┘
//	           ↓ communicate via
//	┌─────────────────────────────────────┐
//	│         NATS Messaging              │  Subjects, pub/sub
//	└─────────────────────────────────────┘
//
// Inputs bind to a network resource and publish received payloads to NATS
// subjects. Outputs subscribe to subjects and deliver payloads to an egress
// transport. Each egress transport owns its delivery semantics: the UDP
// output resolves its destination asynchronously with exponential backoff
// and treats send failures as fatal, while the file output buffers and
// flushes to disk.
//
// # Framework Packages
//
// Component System:
//   - component: Component lifecycle, registry, ports, config schemas
//   - componentregistry: Registration of built-in component factories
//
// Infrastructure:
//   - config: Configuration loading (JSON/YAML) and validation
//   - natsclient: NATS connection management with circuit breaking
//   - metric: Prometheus metrics registry and exposition server
//   - errors: Classified error handling (transient/invalid/fatal)
//
// Components:
//   - input/udp: UDP socket input
//   - output/udp: UDP datagram output with DNS resolution and backoff
//   - output/file: File output (json, jsonl, raw formats)
//
// Utilities:
//   - pkg/backoff: Exponential backoff policies and retry helper
//   - pkg/buffer: Bounded circular buffer with overflow policies
//   - pkg/resolver: Hostname resolution with asynchronous lookups
//
// # Usage
//
// Basic setup:
//
//	// Create NATS client
//	natsClient, _ := natsclient.NewClient("nats://localhost:4222")
//	natsClient.Connect(ctx)
//
//	// Create component registry with built-in components
//	registry := component.NewRegistry()
//	componentregistry.Register(registry)
//
//	// Create a component from configuration
//	deps := component.Dependencies{NATSClient: natsClient, Logger: logger}
//	instance, _ := registry.CreateComponent("udp-egress", "udp-output", rawConfig, deps)
//
//	// Drive its lifecycle
//	c := instance.(component.LifecycleComponent)
//	c.Initialize()
//	c.Start(ctx)
//	defer c.Stop(30 * time.Second)
//
// Custom components register their own factories against the same registry:
//
//	func RegisterTCPInput(registry *component.Registry) error {
//	    return registry.RegisterWithConfig(component.RegistrationConfig{
//	        Name:        "tcp-input",
//	        Factory:     CreateTCPInput,
//	        Schema:      tcpSchema,
//	        Type:        "input",
//	        Protocol:    "tcp",
//	        Description: "TCP socket input",
//	        Version:     "1.0.0",
//	    })
//	}
//
// # Design Principles
//
// Composition over configuration:
//   - Small, focused components
//   - Connect via NATS subjects
//   - Build pipelines from simple pieces
//
// Testability:
//   - Explicit dependencies (no globals)
//   - Capability boundaries for external facilities (resolver, clock-free
//     polling) so delivery semantics are testable without real DNS
//   - Loopback sockets for end-to-end component tests
//
// Performance:
//   - Bounded buffers with explicit overflow policies
//   - Optional rate limiting on egress
package streamkit
