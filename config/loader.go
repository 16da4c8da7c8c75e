package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/c360/streamkit/errors"
)

// maxConfigFileSize caps configuration files at 10MB
const maxConfigFileSize = 10 << 20

// Load reads a configuration file, merges it over Default, and validates
// the result. The format is chosen by file extension: .yaml/.yml decode as
// YAML, everything else as JSON.
func Load(path string) (*Config, error) {
	data, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := unmarshalYAML(data, cfg); err != nil {
			return nil, errors.WrapInvalid(err, "Config", "Load", "YAML parsing")
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapInvalid(err, "Config", "Load", "JSON parsing")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "Config", "Load", "config validation")
	}
	return cfg, nil
}

func readConfigFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Config", "Load", "config file stat")
	}
	if info.Size() > maxConfigFileSize {
		return nil, errors.WrapInvalid(
			fmt.Errorf("config file %s is %d bytes, limit is %d", path, info.Size(), maxConfigFileSize),
			"Config", "Load", "config file size check")
	}

	data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return nil, errors.WrapInvalid(err, "Config", "Load", "config file read")
	}
	return data, nil
}

// unmarshalYAML decodes YAML by round-tripping through JSON so the json
// struct tags (and json.RawMessage component configs) apply to both formats.
func unmarshalYAML(data []byte, cfg *Config) error {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return err
	}

	normalized, err := normalizeYAML(raw)
	if err != nil {
		return err
	}

	jsonBytes, err := json.Marshal(normalized)
	if err != nil {
		return err
	}
	return json.Unmarshal(jsonBytes, cfg)
}

// normalizeYAML converts map[any]any keys (yaml.v3 emits them for non-string
// keys) into strings so the value marshals as JSON.
func normalizeYAML(value any) (any, error) {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, val := range v {
			normalized, err := normalizeYAML(val)
			if err != nil {
				return nil, err
			}
			out[key] = normalized
		}
		return out, nil
	case map[any]any:
		out := make(map[string]any, len(v))
		for key, val := range v {
			strKey, ok := key.(string)
			if !ok {
				return nil, fmt.Errorf("non-string key %v in config", key)
			}
			normalized, err := normalizeYAML(val)
			if err != nil {
				return nil, err
			}
			out[strKey] = normalized
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			normalized, err := normalizeYAML(item)
			if err != nil {
				return nil, err
			}
			out[i] = normalized
		}
		return out, nil
	default:
		return value, nil
	}
}
