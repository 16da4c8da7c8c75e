package componentregistry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamkit/component"
)

func TestRegisterNilRegistry(t *testing.T) {
	err := Register(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registry cannot be nil")
}

func TestRegisterAllComponents(t *testing.T) {
	registry := component.NewRegistry()
	require.NoError(t, Register(registry))

	names := registry.ListFactoryNames()
	assert.Contains(t, names, "udp-input")
	assert.Contains(t, names, "udp-output")
	assert.Contains(t, names, "file-output")
}

func TestRegisterTwiceFails(t *testing.T) {
	registry := component.NewRegistry()
	require.NoError(t, Register(registry))
	assert.Error(t, Register(registry))
}
