package slurm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aledsdavies/delegatefunc/delegate"
	"github.com/aledsdavies/delegatefunc/delegate/slurm"
)

// TestNewDelegateRequiresStagingRoot verifies construction fails fast
// without a shared-filesystem staging root, rather than failing much
// later at Invoke time.
func TestNewDelegateRequiresStagingRoot(t *testing.T) {
	_, err := slurm.NewDelegate(delegate.NewDirect(), "")
	require.Error(t, err)

	var constructionErr *delegate.ConstructionError
	require.ErrorAs(t, err, &constructionErr)
}

// TestKindRoundTripsThroughRegistry verifies a slurm delegate's
// configuration, including extra salloc flags, survives
// MarshalConfig/DecodeKind.
func TestKindRoundTripsThroughRegistry(t *testing.T) {
	d, err := slurm.NewDelegate(delegate.NewDirect(), "/shared/staging")
	require.NoError(t, err)
	d.SallocArgs = []string{"--partition=gpu"}

	cfg, err := d.MarshalConfig()
	require.NoError(t, err)

	rebuilt, err := delegate.DecodeKind("slurm", cfg, delegate.Base{Next: delegate.NewDirect()})
	require.NoError(t, err)

	rebuiltSlurm, ok := rebuilt.(*slurm.Delegate)
	require.True(t, ok)
	assert.Equal(t, "/shared/staging", rebuiltSlurm.StagingRoot)
	assert.Equal(t, []string{"--partition=gpu"}, rebuiltSlurm.SallocArgs)
}

// TestDecodeKindRejectsMissingStagingRoot verifies the declarative loader
// path enforces the same staging_root requirement as NewDelegate.
func TestDecodeKindRejectsMissingStagingRoot(t *testing.T) {
	_, err := delegate.DecodeKind("slurm", map[string]any{}, delegate.Base{Next: delegate.NewDirect()})
	require.Error(t, err)

	var constructionErr *delegate.ConstructionError
	require.ErrorAs(t, err, &constructionErr)
}
