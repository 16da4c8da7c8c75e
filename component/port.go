package component

import (
	"encoding/json"
	"fmt"

	"github.com/c360/streamkit/errors"
)

// Direction for data flow
type Direction string

// Direction constants for port data flow
const (
	DirectionInput  Direction = "input"
	DirectionOutput Direction = "output"
)

// Port describes any I/O interface a component exposes
type Port struct {
	Name        string    `json:"name"`
	Direction   Direction `json:"direction"`
	Required    bool      `json:"required"`
	Description string    `json:"description"`
	Config      Portable  `json:"config"`
}

// Portable describes the concrete resource behind a port
type Portable interface {
	ResourceID() string // Unique identifier for conflict detection
	IsExclusive() bool  // Whether multiple components can share the resource
	Type() string       // Port type identifier
}

// NetworkPort - TCP/UDP network bindings
type NetworkPort struct {
	Protocol string `json:"protocol"` // "tcp", "udp"
	Host     string `json:"host"`     // "0.0.0.0", "localhost"
	Port     int    `json:"port"`
}

// ResourceID returns unique identifier for network ports
func (n NetworkPort) ResourceID() string {
	return fmt.Sprintf("%s:%s:%d", n.Protocol, n.Host, n.Port)
}

// IsExclusive returns true as bound network ports are exclusive
func (n NetworkPort) IsExclusive() bool {
	return true
}

// Type returns the port type identifier
func (n NetworkPort) Type() string {
	return "network"
}

// NetworkEndpoint - remote network destinations (not bound locally)
type NetworkEndpoint struct {
	Protocol string `json:"protocol"` // "tcp", "udp"
	Host     string `json:"host"`     // hostname or IP of the remote peer
	Port     int    `json:"port"`
}

// ResourceID returns unique identifier for network endpoints
func (n NetworkEndpoint) ResourceID() string {
	return fmt.Sprintf("%s->%s:%d", n.Protocol, n.Host, n.Port)
}

// IsExclusive returns false: many components may target the same endpoint
func (n NetworkEndpoint) IsExclusive() bool {
	return false
}

// Type returns the port type identifier
func (n NetworkEndpoint) Type() string {
	return "endpoint"
}

// NATSPort - NATS subject subscriptions and publications
type NATSPort struct {
	Subject string `json:"subject"`
}

// ResourceID returns unique identifier for NATS ports
func (n NATSPort) ResourceID() string {
	return "nats:" + n.Subject
}

// IsExclusive returns false as NATS subjects are shared
func (n NATSPort) IsExclusive() bool {
	return false
}

// Type returns the port type identifier
func (n NATSPort) Type() string {
	return "nats"
}

// FilePort - file system paths
type FilePort struct {
	Path string `json:"path"`
}

// ResourceID returns unique identifier for file ports
func (f FilePort) ResourceID() string {
	return "file:" + f.Path
}

// IsExclusive returns true as file writers are exclusive
func (f FilePort) IsExclusive() bool {
	return true
}

// Type returns the port type identifier
func (f FilePort) Type() string {
	return "file"
}

// PortDefinition represents a port configuration from JSON
type PortDefinition struct {
	Name        string `json:"name"                  schema:"type:string,description:Port identifier"`
	Type        string `json:"type,omitempty"        schema:"type:string,description:Port type (nats network endpoint file)"`
	Subject     string `json:"subject,omitempty"     schema:"type:string,description:NATS subject pattern or network address"`
	Required    bool   `json:"required,omitempty"    schema:"type:bool,description:Whether port connection is required"`
	Description string `json:"description,omitempty" schema:"type:string,description:Human-readable port description"`
}

// PortConfig represents port configuration in component config
type PortConfig struct {
	Inputs  []PortDefinition `json:"inputs,omitempty"`
	Outputs []PortDefinition `json:"outputs,omitempty"`
}

// MarshalJSON provides custom JSON marshaling for Port, wrapping the
// Portable interface value with its type tag so it survives a round trip.
func (p Port) MarshalJSON() ([]byte, error) {
	type PortAlias Port // prevent infinite recursion

	wrapper := struct {
		PortAlias
		Config json.RawMessage `json:"config"`
	}{
		PortAlias: (PortAlias)(p),
	}

	if p.Config != nil {
		configWithType := struct {
			Type string `json:"type"`
			Data any    `json:"data"`
		}{
			Type: p.Config.Type(),
			Data: p.Config,
		}

		configBytes, err := json.Marshal(configWithType)
		if err != nil {
			return nil, errors.Wrap(err, "Port", "MarshalJSON", "config marshaling")
		}
		wrapper.Config = configBytes
	}

	return json.Marshal(wrapper)
}

// UnmarshalJSON reconstructs the Portable interface from its type tag
func (p *Port) UnmarshalJSON(data []byte) error {
	type PortAlias Port

	temp := struct {
		*PortAlias
		Config json.RawMessage `json:"config"`
	}{
		PortAlias: (*PortAlias)(p),
	}

	if err := json.Unmarshal(data, &temp); err != nil {
		return err
	}

	if len(temp.Config) == 0 {
		return nil
	}

	var wrapper struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(temp.Config, &wrapper); err != nil {
		return errors.Wrap(err, "Port", "UnmarshalJSON", "config wrapper unmarshaling")
	}

	switch wrapper.Type {
	case "network":
		var cfg NetworkPort
		if err := json.Unmarshal(wrapper.Data, &cfg); err != nil {
			return errors.Wrap(err, "Port", "UnmarshalJSON", "network config unmarshaling")
		}
		p.Config = cfg
	case "endpoint":
		var cfg NetworkEndpoint
		if err := json.Unmarshal(wrapper.Data, &cfg); err != nil {
			return errors.Wrap(err, "Port", "UnmarshalJSON", "endpoint config unmarshaling")
		}
		p.Config = cfg
	case "nats":
		var cfg NATSPort
		if err := json.Unmarshal(wrapper.Data, &cfg); err != nil {
			return errors.Wrap(err, "Port", "UnmarshalJSON", "nats config unmarshaling")
		}
		p.Config = cfg
	case "file":
		var cfg FilePort
		if err := json.Unmarshal(wrapper.Data, &cfg); err != nil {
			return errors.Wrap(err, "Port", "UnmarshalJSON", "file config unmarshaling")
		}
		p.Config = cfg
	default:
		return errors.WrapInvalid(
			fmt.Errorf("unknown port config type %q", wrapper.Type),
			"Port", "UnmarshalJSON", "config type dispatch")
	}

	return nil
}
