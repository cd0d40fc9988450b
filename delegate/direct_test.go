package delegate_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aledsdavies/delegatefunc/delegate"
	"github.com/aledsdavies/delegatefunc/internal/reflectcall"
)

type counter struct {
	Value int
}

func (c *counter) Add(delta int) int {
	c.Value += delta
	return c.Value
}

func (c *counter) Explode() error {
	return assert.AnError
}

// TestDirectPassesReturnValueAndMutatesTarget verifies the terminal link's
// return value and target mutation both reach the caller's Record.
func TestDirectPassesReturnValueAndMutatesTarget(t *testing.T) {
	d := delegate.NewDirect()
	target := &counter{Value: 1}
	rec := &delegate.Record{Target: target, Method: "Add", Args: []any{4}}

	err := d.Invoke(context.Background(), rec)

	require.NoError(t, err)
	assert.Equal(t, 5, rec.Return)
	assert.Equal(t, 5, target.Value)
}

// TestDirectWrapsMethodErrorAsUserMethodError verifies that a failing
// target method surfaces as a *delegate.UserMethodError rather than a bare
// error, so it can be carried structurally across a process boundary.
func TestDirectWrapsMethodErrorAsUserMethodError(t *testing.T) {
	d := delegate.NewDirect()
	rec := &delegate.Record{Target: &counter{}, Method: "Explode"}

	err := d.Invoke(context.Background(), rec)

	require.Error(t, err)
	var userErr *delegate.UserMethodError
	require.ErrorAs(t, err, &userErr)
	assert.Equal(t, "error", userErr.TypeName)
}

// TestDirectSurfacesDispatchFailureDirectly verifies an unresolvable
// method call (unknown method name) surfaces as a
// *reflectcall.DispatchError, not a *delegate.UserMethodError, since no
// user code ever ran.
func TestDirectSurfacesDispatchFailureDirectly(t *testing.T) {
	d := delegate.NewDirect()
	rec := &delegate.Record{Target: &counter{}, Method: "NoSuchMethod"}

	err := d.Invoke(context.Background(), rec)

	require.Error(t, err)
	var userErr *delegate.UserMethodError
	assert.False(t, errors.As(err, &userErr))
	var dispatchErr *reflectcall.DispatchError
	require.ErrorAs(t, err, &dispatchErr)
}

// TestDirectKindRoundTrips verifies Direct's Codec implementation matches
// what delegate.RegisterKind("direct", ...) reconstructs.
func TestDirectKindRoundTrips(t *testing.T) {
	d := delegate.NewDirect()
	assert.Equal(t, "direct", d.Kind())

	cfg, err := d.MarshalConfig()
	require.NoError(t, err)
	assert.Nil(t, cfg)

	rebuilt, err := delegate.DecodeKind("direct", cfg, delegate.Base{})
	require.NoError(t, err)
	assert.IsType(t, &delegate.Direct{}, rebuilt)
}
