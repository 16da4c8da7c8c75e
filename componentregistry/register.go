// Package componentregistry provides component registration for the StreamKit framework.
package componentregistry

import (
	"errors"

	"github.com/c360/streamkit/component"
	pkgerrors "github.com/c360/streamkit/errors"
	udpinput "github.com/c360/streamkit/input/udp"
	"github.com/c360/streamkit/output/file"
	udpoutput "github.com/c360/streamkit/output/udp"
)

// Register registers all StreamKit framework components with the provided registry:
//
//   - UDP input (network ingest)
//   - UDP output (datagram egress with DNS resolution and backoff)
//   - File output (file system)
//
// Domain-specific components live in separate modules and register themselves
// against the same registry.
func Register(registry *component.Registry) error {
	// CRITICAL: Nil registry is a programming error (fatal), not invalid input
	if registry == nil {
		return pkgerrors.WrapFatal(
			errors.New("registry cannot be nil"),
			"ComponentRegistry", "Register", "registry validation")
	}

	if err := udpinput.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", "UDP input component registration")
	}

	if err := udpoutput.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", "UDP output component registration")
	}

	if err := file.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", "file output component registration")
	}

	return nil
}
