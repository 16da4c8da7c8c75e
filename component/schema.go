package component

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/c360/streamkit/errors"
)

// SchemaDirectives represents parsed schema tag directives.
//
// Tags use comma-separated directives with colon-separated key-value pairs:
//
//	type MyConfig struct {
//	    Name string `json:"name" schema:"type:string,description:Component name,category:basic"`
//	    Port int    `json:"port" schema:"type:int,description:Port,min:1,max:65535,default:8080"`
//	}
//
// Schema generation uses reflection but is designed for init-time execution:
// call GenerateConfigSchema once and cache the result in a package-level
// variable.
type SchemaDirectives struct {
	Type        string // required
	Description string
	Category    string // "basic" or "advanced"
	Default     any    // stored as string, converted during schema generation
	Required    bool
	Min         *int
	Max         *int
	Enum        []string
}

var validSchemaTypes = map[string]bool{
	"string":   true,
	"int":      true,
	"bool":     true,
	"float":    true,
	"enum":     true,
	"duration": true,
	"ports":    true,
}

// ParseSchemaTag parses a schema struct tag into directives.
func ParseSchemaTag(tag string) (SchemaDirectives, error) {
	directives := SchemaDirectives{}

	if tag == "" {
		return directives, errors.WrapInvalid(
			fmt.Errorf("empty schema tag"),
			"SchemaTag", "ParseSchemaTag", "tag validation")
	}

	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if !strings.Contains(part, ":") {
			if part != "required" {
				return directives, errors.WrapInvalid(
					fmt.Errorf("unknown boolean flag: %s", part),
					"SchemaTag", "ParseSchemaTag", "flag parsing")
			}
			directives.Required = true
			continue
		}

		if err := parseKeyValueDirective(part, &directives); err != nil {
			return directives, err
		}
	}

	if directives.Type == "" {
		return directives, errors.WrapInvalid(
			fmt.Errorf("type directive is required"),
			"SchemaTag", "ParseSchemaTag", "required field validation")
	}

	return directives, nil
}

func parseKeyValueDirective(part string, directives *SchemaDirectives) error {
	kv := strings.SplitN(part, ":", 2)
	key := strings.TrimSpace(kv[0])
	value := strings.TrimSpace(kv[1])

	if value == "" {
		return errors.WrapInvalid(
			fmt.Errorf("empty value for directive: %s", key),
			"SchemaTag", "parseKeyValueDirective", "value validation")
	}

	switch key {
	case "type":
		if !validSchemaTypes[value] {
			return errors.WrapInvalid(
				fmt.Errorf("invalid type: %s", value),
				"SchemaTag", "parseKeyValueDirective", "type validation")
		}
		directives.Type = value

	case "description":
		directives.Description = value

	case "category":
		if value != "basic" && value != "advanced" {
			return errors.WrapInvalid(
				fmt.Errorf("invalid category: %s (must be 'basic' or 'advanced')", value),
				"SchemaTag", "parseKeyValueDirective", "category validation")
		}
		directives.Category = value

	case "default":
		directives.Default = value

	case "min":
		n, err := strconv.Atoi(value)
		if err != nil {
			return errors.WrapInvalid(
				fmt.Errorf("invalid min value: %s", value),
				"SchemaTag", "parseKeyValueDirective", "min parsing")
		}
		directives.Min = &n

	case "max":
		n, err := strconv.Atoi(value)
		if err != nil {
			return errors.WrapInvalid(
				fmt.Errorf("invalid max value: %s", value),
				"SchemaTag", "parseKeyValueDirective", "max parsing")
		}
		directives.Max = &n

	case "enum":
		directives.Enum = strings.Split(value, "|")
		for i := range directives.Enum {
			directives.Enum[i] = strings.TrimSpace(directives.Enum[i])
		}

	default:
		return errors.WrapInvalid(
			fmt.Errorf("unknown directive: %s", key),
			"SchemaTag", "parseKeyValueDirective", "directive validation")
	}

	return nil
}

// GenerateConfigSchema builds a ConfigSchema from the schema struct tags of
// configType. Fields without a schema tag, or with an invalid one, are
// skipped (graceful degradation).
func GenerateConfigSchema(configType reflect.Type) ConfigSchema {
	schema := ConfigSchema{
		Properties: make(map[string]PropertySchema),
		Required:   []string{},
	}

	if configType.Kind() == reflect.Ptr {
		configType = configType.Elem()
	}
	if configType.Kind() != reflect.Struct {
		return schema
	}

	for i := 0; i < configType.NumField(); i++ {
		field := configType.Field(i)

		jsonTag := field.Tag.Get("json")
		if jsonTag == "" || jsonTag == "-" {
			continue
		}
		fieldName := strings.Split(jsonTag, ",")[0]
		if fieldName == "" {
			continue
		}

		schemaTag := field.Tag.Get("schema")
		if schemaTag == "" {
			continue
		}

		directives, err := ParseSchemaTag(schemaTag)
		if err != nil {
			continue
		}

		description := directives.Description
		if description == "" {
			description = fieldName
		}

		schema.Properties[fieldName] = PropertySchema{
			Type:        directives.Type,
			Description: description,
			Category:    directives.Category,
			Default:     convertDefault(directives.Default, directives.Type),
			Minimum:     directives.Min,
			Maximum:     directives.Max,
			Enum:        directives.Enum,
		}

		if directives.Required {
			schema.Required = append(schema.Required, fieldName)
		}
	}

	return schema
}

// convertDefault converts a default value string to the declared field type
func convertDefault(value any, fieldType string) any {
	if value == nil {
		return nil
	}

	str, ok := value.(string)
	if !ok {
		return value
	}

	switch fieldType {
	case "int":
		if n, err := strconv.Atoi(str); err == nil {
			return n
		}
	case "float":
		if f, err := strconv.ParseFloat(str, 64); err == nil {
			return f
		}
	case "bool":
		if b, err := strconv.ParseBool(str); err == nil {
			return b
		}
	}
	return str
}
