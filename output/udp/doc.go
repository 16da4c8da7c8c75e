// Package udp provides a UDP output component for sending datagrams to a
// remote destination.
//
// # Overview
//
// The UDP output component consumes payloads from a NATS subject and sends
// each one as a single datagram to a configured host:port. The hostname is
// resolved asynchronously before the first send, with exponential backoff
// on resolution failure, so a slow or unavailable DNS server never blocks
// or kills the component. It implements the StreamKit component interfaces
// for lifecycle management and observability.
//
// # Quick Start
//
// Send datagrams consumed from "output.udp" to a collector:
//
//	config := udp.OutputConfig{
//	    Address:     "collector.example.com:9000",
//	    MaxSendRate: 1000,
//	    Ports: &component.PortConfig{
//	        Inputs: []component.PortDefinition{
//	            {Name: "nats_input", Type: "nats", Subject: "output.udp", Required: true},
//	        },
//	    },
//	}
//
//	rawConfig, _ := json.Marshal(config)
//	output, err := udp.CreateOutput(rawConfig, deps)
//
// # Resolution State Machine
//
// The underlying Sink moves through four states:
//
//  1. Initializing: a DNS lookup for the destination host is started
//  2. Resolving: the lookup is in flight; offers are deferred
//  3. Resolved: the first returned address is pinned and sends proceed
//  4. Backoff: the lookup failed; offers are deferred until the retry delay
//     elapses, then resolution starts again
//
// Resolution failures grow the retry delay exponentially (500ms doubling up
// to 1m by default) and never terminate the sink. By default the delay
// sequence is NOT restarted by a successful resolution; set
// reset_backoff_on_success to restore a short first delay after recovery.
//
// # Send Failures
//
// UDP carries no delivery feedback, so the only send errors are local
// socket failures. These are treated as fatal and sticky: the first failed
// write poisons the sink and every later offer returns the same error. The
// component records the error, reports unhealthy, and stops its send loop.
//
// # Offer Protocol
//
// Sink.Offer never blocks. It returns Accepted when the payload was
// written, Deferred while resolving or backing off (the caller retains the
// payload and offers the identical bytes again later), or Fatal. Flush is
// always a no-op because accepted datagrams hit the socket immediately.
//
// # Configuration
//
//   - Address: destination as host:port or a URI such as udp://host:port;
//     the scheme is ignored (required; a missing host or port is a
//     configuration error)
//   - BackoffInitial / BackoffMax: DNS retry delay bounds
//   - ResetBackoffOnSuccess: restart the delay sequence after recovery
//   - MaxSendRate: outgoing datagrams per second (0 disables limiting)
//   - BufferSize: in-memory queue capacity; overflow drops oldest
package udp
