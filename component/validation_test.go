package component

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamkit/errors"
)

type validatedConfig struct {
	Address string `json:"address"`
	Rate    int    `json:"rate"`
}

func (c *validatedConfig) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("address is required")
	}
	return nil
}

func TestSafeUnmarshal(t *testing.T) {
	t.Run("valid config runs Validate", func(t *testing.T) {
		var cfg validatedConfig
		err := SafeUnmarshal(json.RawMessage(`{"address":"example.com:9000","rate":5}`), &cfg)
		require.NoError(t, err)
		assert.Equal(t, "example.com:9000", cfg.Address)
		assert.Equal(t, 5, cfg.Rate)
	})

	t.Run("empty config keeps defaults", func(t *testing.T) {
		cfg := validatedConfig{Address: "default:1"}
		require.NoError(t, SafeUnmarshal(nil, &cfg))
		assert.Equal(t, "default:1", cfg.Address)
	})

	t.Run("Validate failure surfaces", func(t *testing.T) {
		var cfg validatedConfig
		err := SafeUnmarshal(json.RawMessage(`{"rate":5}`), &cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "address is required")
	})

	t.Run("malformed JSON rejected as invalid", func(t *testing.T) {
		var cfg validatedConfig
		err := SafeUnmarshal(json.RawMessage(`{"address":`), &cfg)
		require.Error(t, err)
		assert.True(t, errors.IsInvalid(err))
	})

	t.Run("non-pointer target rejected", func(t *testing.T) {
		var cfg validatedConfig
		assert.Error(t, SafeUnmarshal(json.RawMessage(`{}`), cfg))
	})
}

func TestValidateFactoryConfig(t *testing.T) {
	assert.NoError(t, ValidateFactoryConfig(nil))
	assert.NoError(t, ValidateFactoryConfig(json.RawMessage(`{"a":1}`)))
	assert.Error(t, ValidateFactoryConfig(json.RawMessage(`{broken`)))

	oversized := bytes.Repeat([]byte(" "), maxConfigSize+1)
	assert.Error(t, ValidateFactoryConfig(oversized))
}

func TestValidateComponentName(t *testing.T) {
	valid := []string{"udp", "udp-output", "udp_output_2", "A1"}
	for _, name := range valid {
		assert.NoError(t, ValidateComponentName(name), name)
	}

	invalid := []string{"", "1udp", "-udp", "udp output", "udp.output",
		"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"}
	for _, name := range invalid {
		assert.Error(t, ValidateComponentName(name), name)
	}
}

func TestValidatePortNumber(t *testing.T) {
	assert.NoError(t, ValidatePortNumber(0))
	assert.NoError(t, ValidatePortNumber(14550))
	assert.NoError(t, ValidatePortNumber(65535))
	assert.Error(t, ValidatePortNumber(-1))
	assert.Error(t, ValidatePortNumber(65536))
}

func TestPortJSONRoundTrip(t *testing.T) {
	ports := []Port{
		{
			Name:        "udp_socket",
			Direction:   DirectionInput,
			Required:    true,
			Description: "Bound UDP listen socket",
			Config:      NetworkPort{Protocol: "udp", Host: "0.0.0.0", Port: 14550},
		},
		{
			Name:      "destination",
			Direction: DirectionOutput,
			Config:    NetworkEndpoint{Protocol: "udp", Host: "collector.example.com", Port: 9000},
		},
		{
			Name:      "nats_input",
			Direction: DirectionInput,
			Config:    NATSPort{Subject: "egress.udp"},
		},
		{
			Name:      "output_file",
			Direction: DirectionOutput,
			Config:    FilePort{Path: "/var/log/out.ndjson"},
		},
	}

	for _, port := range ports {
		t.Run(port.Name, func(t *testing.T) {
			data, err := json.Marshal(port)
			require.NoError(t, err)

			var decoded Port
			require.NoError(t, json.Unmarshal(data, &decoded))
			assert.Equal(t, port, decoded)
		})
	}
}

func TestPortUnmarshalUnknownType(t *testing.T) {
	var port Port
	err := json.Unmarshal([]byte(`{"name":"x","direction":"input","config":{"type":"carrier-pigeon"}}`), &port)
	assert.Error(t, err)
}

func TestNetworkEndpointNotExclusive(t *testing.T) {
	endpoint := NetworkEndpoint{Protocol: "udp", Host: "h", Port: 1}
	assert.False(t, endpoint.IsExclusive())
	assert.Equal(t, "udp->h:1", endpoint.ResourceID())

	socket := NetworkPort{Protocol: "udp", Host: "0.0.0.0", Port: 1}
	assert.True(t, socket.IsExclusive())
}
