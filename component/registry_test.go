package component

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeComponent is a minimal Discoverable for registry tests.
type fakeComponent struct {
	name  string
	ports []Port
}

func (f *fakeComponent) Meta() Metadata {
	return Metadata{Name: f.name, Type: "output", Version: "0.1.0"}
}
func (f *fakeComponent) InputPorts() []Port  { return f.ports }
func (f *fakeComponent) OutputPorts() []Port { return nil }
func (f *fakeComponent) ConfigSchema() ConfigSchema {
	return ConfigSchema{Properties: map[string]PropertySchema{}}
}
func (f *fakeComponent) Health() HealthStatus {
	return HealthStatus{Healthy: true, LastCheck: time.Now()}
}
func (f *fakeComponent) DataFlow() FlowMetrics { return FlowMetrics{} }

func fakeFactory(name string) Factory {
	return func(_ json.RawMessage, _ Dependencies) (Discoverable, error) {
		return &fakeComponent{name: name}, nil
	}
}

func TestRegisterFactoryValidation(t *testing.T) {
	registry := NewRegistry()

	assert.Error(t, registry.RegisterFactory("", &Registration{Factory: fakeFactory("x"), Type: "output"}))
	assert.Error(t, registry.RegisterFactory("x", nil))
	assert.Error(t, registry.RegisterFactory("x", &Registration{Type: "output"}))
	assert.Error(t, registry.RegisterFactory("x", &Registration{Factory: fakeFactory("x")}))

	require.NoError(t, registry.RegisterWithConfig(RegistrationConfig{
		Name: "x", Factory: fakeFactory("x"), Type: "output", Protocol: "udp",
	}))
	// duplicate registration
	assert.Error(t, registry.RegisterWithConfig(RegistrationConfig{
		Name: "x", Factory: fakeFactory("x"), Type: "output",
	}))
}

func TestCreateComponentAndLookup(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.RegisterWithConfig(RegistrationConfig{
		Name: "udp", Factory: fakeFactory("udp-out"), Type: "output", Protocol: "udp",
	}))

	instance, err := registry.CreateComponent("udp-main", "udp", nil, Dependencies{})
	require.NoError(t, err)
	assert.Equal(t, "udp-out", instance.Meta().Name)

	got, err := registry.GetComponent("udp-main")
	require.NoError(t, err)
	assert.Same(t, instance, got)

	_, err = registry.GetComponent("missing")
	assert.Error(t, err)

	assert.Len(t, registry.ListComponents(), 1)
}

func TestCreateComponentGeneratesInstanceName(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.RegisterWithConfig(RegistrationConfig{
		Name: "udp", Factory: fakeFactory("udp-out"), Type: "output",
	}))

	_, err := registry.CreateComponent("", "udp", nil, Dependencies{})
	require.NoError(t, err)

	// The generated name is registered and derived from the factory name.
	instances := registry.ListComponents()
	require.Len(t, instances, 1)
	for name := range instances {
		assert.Contains(t, name, "udp-")
	}
}

func TestCreateComponentUnknownFactory(t *testing.T) {
	registry := NewRegistry()
	_, err := registry.CreateComponent("a", "ghost", nil, Dependencies{})
	assert.Error(t, err)
}

func TestCreateComponentRejectsBadConfig(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.RegisterWithConfig(RegistrationConfig{
		Name: "udp", Factory: fakeFactory("udp-out"), Type: "output",
	}))

	_, err := registry.CreateComponent("a", "udp", json.RawMessage(`{not json`), Dependencies{})
	assert.Error(t, err)
}

func TestResourceConflictDetection(t *testing.T) {
	registry := NewRegistry()

	bound := Port{
		Name:      "udp_socket",
		Direction: DirectionInput,
		Config:    NetworkPort{Protocol: "udp", Host: "0.0.0.0", Port: 14550},
	}

	first := &fakeComponent{name: "first", ports: []Port{bound}}
	second := &fakeComponent{name: "second", ports: []Port{bound}}

	require.NoError(t, registry.RegisterInstance("first", first))
	err := registry.RegisterInstance("second", second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already in use")

	// Releasing the first instance frees the resource.
	registry.UnregisterInstance("first")
	assert.NoError(t, registry.RegisterInstance("second", second))
}

func TestSharedResourcesDoNotConflict(t *testing.T) {
	registry := NewRegistry()

	subject := Port{
		Name:      "nats_input",
		Direction: DirectionInput,
		Config:    NATSPort{Subject: "egress.>"},
	}

	require.NoError(t, registry.RegisterInstance("a", &fakeComponent{name: "a", ports: []Port{subject}}))
	require.NoError(t, registry.RegisterInstance("b", &fakeComponent{name: "b", ports: []Port{subject}}))
}

func TestListAvailable(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.RegisterWithConfig(RegistrationConfig{
		Name: "udp", Factory: fakeFactory("u"), Type: "output", Protocol: "udp", Version: "1.0.0",
	}))
	require.NoError(t, registry.RegisterWithConfig(RegistrationConfig{
		Name: "file", Factory: fakeFactory("f"), Type: "output", Protocol: "file",
	}))

	available := registry.ListAvailable()
	require.Len(t, available, 2)
	assert.Equal(t, "udp", available["udp"].Protocol)
	assert.Equal(t, []string{"file", "udp"}, registry.ListFactoryNames())
}
