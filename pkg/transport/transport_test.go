package transport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/BoltServer/pkg/models"
)

type namedTransport string

func (n namedTransport) Name() string { return string(n) }

func (n namedTransport) Connect(ctx context.Context, target models.Target) (Session, error) {
	return nil, nil
}

func TestRegistryLookup(t *testing.T) {
	r, err := NewRegistry(namedTransport("ssh"), namedTransport("winrm"))
	require.NoError(t, err)

	tr, ok := r.Get("ssh")
	assert.True(t, ok)
	assert.Equal(t, "ssh", tr.Name())

	_, ok = r.Get("telnet")
	assert.False(t, ok)

	assert.ElementsMatch(t, []string{"ssh", "winrm"}, r.Names())
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(namedTransport("ssh"), namedTransport("ssh"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestRegistryRejectsEmptyName(t *testing.T) {
	_, err := NewRegistry(namedTransport(""))
	require.Error(t, err)
}
