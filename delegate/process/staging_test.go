package process_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aledsdavies/delegatefunc/delegate/process"
)

// TestNewStagingRootTempDirIsRemovedByCleanup verifies an unconfigured
// staging root is a fresh temp directory that cleanup actually removes.
func TestNewStagingRootTempDirIsRemovedByCleanup(t *testing.T) {
	root, cleanup, err := process.NewStagingRoot("")
	require.NoError(t, err)

	_, statErr := os.Stat(root)
	require.NoError(t, statErr)

	cleanup()

	_, statErr = os.Stat(root)
	assert.True(t, os.IsNotExist(statErr), "cleanup must remove the temp staging root")
}

// TestNewStagingRootConfiguredIsLeftInPlace verifies a configured staging
// root (required by Slurm and Docker, sharing a filesystem across hosts)
// survives its own cleanup call.
func TestNewStagingRootConfiguredIsLeftInPlace(t *testing.T) {
	configured := filepath.Join(t.TempDir(), "shared-staging")

	root, cleanup, err := process.NewStagingRoot(configured)
	require.NoError(t, err)
	assert.Equal(t, configured, root)

	cleanup()

	_, statErr := os.Stat(configured)
	assert.NoError(t, statErr, "cleanup must not remove a caller-configured staging root")
}

// TestNewStagingFilesAreDistinctPerCall verifies repeated calls against
// the same root never collide, since many invocations may stage
// concurrently under one shared root (the Slurm/Docker case).
func TestNewStagingFilesAreDistinctPerCall(t *testing.T) {
	root := t.TempDir()

	a := process.NewStagingFiles(root)
	b := process.NewStagingFiles(root)

	assert.NotEqual(t, a.Before, b.Before)
	assert.NotEqual(t, a.After, b.After)
}
