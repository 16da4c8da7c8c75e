package component

import (
	"encoding/json"
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/c360/streamkit/errors"
)

// Info holds metadata about an available component type
type Info struct {
	Type        string `json:"type"`        // "input" or "output"
	Protocol    string `json:"protocol"`    // Technical protocol (udp, file, etc.)
	Description string `json:"description"` // Human-readable description
	Version     string `json:"version"`     // Component version
}

// Factory creates a component instance from configuration. The factory
// receives raw JSON configuration and dependencies, parses its own config,
// and returns an initialized component. All I/O belongs in the component's
// Start method, not in the factory.
type Factory func(rawConfig json.RawMessage, deps Dependencies) (Discoverable, error)

// Registration holds factory and metadata for a component type
type Registration struct {
	Name        string       `json:"name"`
	Type        string       `json:"type"`
	Protocol    string       `json:"protocol"`
	Description string       `json:"description"`
	Version     string       `json:"version"`
	Schema      ConfigSchema `json:"schema"`
	Factory     Factory      `json:"-"`
}

// RegistrationConfig provides a clean API for component registration.
// It maps 1:1 to Registration struct fields.
type RegistrationConfig struct {
	Name        string
	Factory     Factory
	Schema      ConfigSchema
	Type        string // "input" or "output"
	Protocol    string
	Description string
	Version     string
}

// Registry manages component factories and instances. It provides
// thread-safe registration and lookup of factories (for creation) and
// instances (for discovery and management), and rejects instances whose
// exclusive resources collide.
type Registry struct {
	factories map[string]*Registration
	instances map[string]Discoverable
	resources map[string]string // resource ID -> owning instance name
	mu        sync.RWMutex
}

// NewRegistry creates a new empty component registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]*Registration),
		instances: make(map[string]Discoverable),
		resources: make(map[string]string),
	}
}

// RegisterWithConfig registers a component factory from a RegistrationConfig
func (r *Registry) RegisterWithConfig(config RegistrationConfig) error {
	return r.RegisterFactory(config.Name, &Registration{
		Name:        config.Name,
		Type:        config.Type,
		Protocol:    config.Protocol,
		Description: config.Description,
		Version:     config.Version,
		Schema:      config.Schema,
		Factory:     config.Factory,
	})
}

// RegisterFactory registers a component factory with the given name.
// Returns an error if a factory with the same name is already registered.
func (r *Registry) RegisterFactory(name string, registration *Registration) error {
	if name == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterFactory", "factory name validation")
	}
	if registration == nil || registration.Factory == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterFactory", "factory function validation")
	}
	if registration.Type == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterFactory", "component type validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("factory %q is already registered", name),
			"Registry", "RegisterFactory", "duplicate factory check")
	}

	r.factories[name] = registration
	return nil
}

// CreateComponent creates and registers a new component instance using the
// named factory. When instanceName is empty a unique name is generated from
// the factory name. The instance's exclusive resources (bound sockets, file
// paths) must not collide with resources held by existing instances.
func (r *Registry) CreateComponent(
	instanceName, factoryName string, rawConfig json.RawMessage, deps Dependencies,
) (Discoverable, error) {
	if instanceName == "" {
		instanceName = fmt.Sprintf("%s-%s", factoryName, uuid.NewString()[:8])
	}
	if err := ValidateComponentName(instanceName); err != nil {
		return nil, errors.Wrap(err, "Registry", "CreateComponent", "instance name validation")
	}
	if err := ValidateComponentName(factoryName); err != nil {
		return nil, errors.Wrap(err, "Registry", "CreateComponent", "factory name validation")
	}
	if err := ValidateFactoryConfig(rawConfig); err != nil {
		return nil, errors.Wrap(err, "Registry", "CreateComponent", "config validation")
	}

	r.mu.RLock()
	registration, exists := r.factories[factoryName]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.WrapInvalid(
			fmt.Errorf("unknown component factory %q", factoryName),
			"Registry", "CreateComponent", "factory lookup")
	}

	instance, err := registration.Factory(rawConfig, deps)
	if err != nil {
		return nil, errors.Wrap(err, "Registry", "CreateComponent",
			fmt.Sprintf("factory %q execution", factoryName))
	}

	if err := r.RegisterInstance(instanceName, instance); err != nil {
		return nil, err
	}

	return instance, nil
}

// RegisterInstance registers a created component instance by name
func (r *Registry) RegisterInstance(name string, instance Discoverable) error {
	if name == "" || instance == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterInstance", "instance validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.instances[name]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("instance %q is already registered", name),
			"Registry", "RegisterInstance", "duplicate instance check")
	}

	if err := r.checkResourceConflicts(name, instance); err != nil {
		return err
	}

	r.instances[name] = instance
	r.trackResources(name, instance)
	return nil
}

// UnregisterInstance removes a component instance and releases its resources
func (r *Registry) UnregisterInstance(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	instance, exists := r.instances[name]
	if !exists {
		return
	}

	for _, port := range exclusivePorts(instance) {
		if owner, ok := r.resources[port.Config.ResourceID()]; ok && owner == name {
			delete(r.resources, port.Config.ResourceID())
		}
	}
	delete(r.instances, name)
}

// GetComponent returns a registered instance by name
func (r *Registry) GetComponent(name string) (Discoverable, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	instance, exists := r.instances[name]
	if !exists {
		return nil, errors.WrapInvalid(
			fmt.Errorf("component instance %q not found", name),
			"Registry", "GetComponent", "instance lookup")
	}
	return instance, nil
}

// ListComponents returns a snapshot of all registered instances
func (r *Registry) ListComponents() map[string]Discoverable {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.instances)
}

// ListAvailable returns metadata for all registered factories
func (r *Registry) ListAvailable() map[string]Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	available := make(map[string]Info, len(r.factories))
	for name, reg := range r.factories {
		available[name] = Info{
			Type:        reg.Type,
			Protocol:    reg.Protocol,
			Description: reg.Description,
			Version:     reg.Version,
		}
	}
	return available
}

// ListFactoryNames returns registered factory names in sorted order
func (r *Registry) ListFactoryNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetComponentSchema returns the config schema for a registered factory
func (r *Registry) GetComponentSchema(name string) (ConfigSchema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, exists := r.factories[name]
	if !exists {
		return ConfigSchema{}, errors.WrapInvalid(
			fmt.Errorf("unknown component factory %q", name),
			"Registry", "GetComponentSchema", "factory lookup")
	}
	return reg.Schema, nil
}

// checkResourceConflicts rejects instances whose exclusive resources are
// already held. Caller must hold r.mu.
func (r *Registry) checkResourceConflicts(name string, instance Discoverable) error {
	for _, port := range exclusivePorts(instance) {
		id := port.Config.ResourceID()
		if owner, taken := r.resources[id]; taken {
			return errors.WrapInvalid(
				fmt.Errorf("resource %s already in use by instance %q", id, owner),
				"Registry", "RegisterInstance",
				fmt.Sprintf("resource conflict for instance %q", name))
		}
	}
	return nil
}

// trackResources records exclusive resource ownership. Caller must hold r.mu.
func (r *Registry) trackResources(name string, instance Discoverable) {
	for _, port := range exclusivePorts(instance) {
		r.resources[port.Config.ResourceID()] = name
	}
}

func exclusivePorts(instance Discoverable) []Port {
	var ports []Port
	for _, p := range append(instance.InputPorts(), instance.OutputPorts()...) {
		if p.Config != nil && p.Config.IsExclusive() {
			ports = append(ports, p)
		}
	}
	return ports
}
