package component

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"

	"github.com/c360/streamkit/errors"
)

// maxConfigSize caps raw component configuration to prevent resource
// exhaustion from oversized config blocks.
const maxConfigSize = 1 << 20 // 1MB

var componentNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]{0,63}$`)

// Validatable is implemented by configs that can self-validate after
// unmarshaling.
type Validatable interface {
	Validate() error
}

// SafeUnmarshal validates and parses raw component configuration into
// target. Empty config is valid: target keeps its defaults. When target
// implements Validatable its Validate method runs after unmarshaling.
func SafeUnmarshal(rawConfig json.RawMessage, target any) error {
	if err := ValidateFactoryConfig(rawConfig); err != nil {
		return errors.Wrap(err, "ConfigValidator", "SafeUnmarshal", "config validation")
	}

	if len(rawConfig) == 0 {
		return nil
	}

	targetType := reflect.TypeOf(target)
	if targetType == nil || targetType.Kind() != reflect.Ptr {
		return errors.WrapInvalid(
			fmt.Errorf("target must be a pointer, got %T", target),
			"ConfigValidator", "SafeUnmarshal", "target type check")
	}

	if err := json.Unmarshal(rawConfig, target); err != nil {
		return errors.WrapInvalid(err, "ConfigValidator", "SafeUnmarshal", "JSON unmarshaling")
	}

	if validatable, ok := target.(Validatable); ok {
		if err := validatable.Validate(); err != nil {
			return errors.Wrap(err, "ConfigValidator", "SafeUnmarshal", "struct validation")
		}
	}

	return nil
}

// ValidateFactoryConfig checks raw config size and syntactic validity
// before it reaches a factory.
func ValidateFactoryConfig(rawConfig json.RawMessage) error {
	if len(rawConfig) == 0 {
		return nil
	}
	if len(rawConfig) > maxConfigSize {
		return errors.WrapInvalid(
			fmt.Errorf("config size %d exceeds limit %d", len(rawConfig), maxConfigSize),
			"ConfigValidator", "ValidateFactoryConfig", "size check")
	}
	if !json.Valid(rawConfig) {
		return errors.WrapInvalid(
			fmt.Errorf("config is not valid JSON"),
			"ConfigValidator", "ValidateFactoryConfig", "syntax check")
	}
	return nil
}

// ValidateComponentName checks that a factory or instance name is safe to
// use as a map key, metric label, and log attribute.
func ValidateComponentName(name string) error {
	if name == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig,
			"ConfigValidator", "ValidateComponentName", "empty name check")
	}
	if !componentNamePattern.MatchString(name) {
		return errors.WrapInvalid(
			fmt.Errorf("invalid component name %q", name),
			"ConfigValidator", "ValidateComponentName", "name pattern check")
	}
	return nil
}

// ValidatePortNumber checks that port is within the valid range.
// Zero is allowed: the OS assigns an ephemeral port.
func ValidatePortNumber(port int) error {
	if port < 0 || port > 65535 {
		return errors.WrapInvalid(
			fmt.Errorf("port %d out of range", port),
			"ConfigValidator", "ValidatePortNumber", "range check")
	}
	return nil
}
