package docker_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aledsdavies/delegatefunc/delegate"
	"github.com/aledsdavies/delegatefunc/delegate/docker"
)

// TestNewDelegateRequiresStagingRootAndImage verifies both fields are
// validated at construction time.
func TestNewDelegateRequiresStagingRootAndImage(t *testing.T) {
	_, err := docker.NewDelegate(delegate.NewDirect(), "", "alpine")
	require.Error(t, err)

	_, err = docker.NewDelegate(delegate.NewDirect(), "/staging", "")
	require.Error(t, err)
}

// TestNewDelegateDefaultsRuntimeToDocker verifies the default container
// runtime is "docker" unless overridden.
func TestNewDelegateDefaultsRuntimeToDocker(t *testing.T) {
	d, err := docker.NewDelegate(delegate.NewDirect(), "/staging", "alpine")
	require.NoError(t, err)
	assert.Equal(t, "docker", d.Runtime)
}

// TestKindRoundTripsThroughRegistry verifies a docker delegate's
// configuration survives MarshalConfig/DecodeKind, including a
// non-default runtime and extra runtime args.
func TestKindRoundTripsThroughRegistry(t *testing.T) {
	d, err := docker.NewDelegate(delegate.NewDirect(), "/staging", "alpine:3.20")
	require.NoError(t, err)
	d.Runtime = "podman"
	d.RuntimeArgs = []string{"--network=none"}

	cfg, err := d.MarshalConfig()
	require.NoError(t, err)

	rebuilt, err := delegate.DecodeKind("docker", cfg, delegate.Base{Next: delegate.NewDirect()})
	require.NoError(t, err)

	rebuiltDocker, ok := rebuilt.(*docker.Delegate)
	require.True(t, ok)
	assert.Equal(t, "/staging", rebuiltDocker.StagingRoot)
	assert.Equal(t, "alpine:3.20", rebuiltDocker.Image)
	assert.Equal(t, "podman", rebuiltDocker.Runtime)
	assert.Equal(t, []string{"--network=none"}, rebuiltDocker.RuntimeArgs)
}
