package wire_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aledsdavies/delegatefunc/delegate"
	"github.com/aledsdavies/delegatefunc/delegate/wire"
)

type account struct {
	Balance int
}

const accountTypeName = "delegatefunc.wiretest.account"

func (a *account) TypeName() string { return accountTypeName }

func (a *account) MarshalState() (map[string]any, error) {
	return map[string]any{"balance": int64(a.Balance)}, nil
}

func (a *account) UnmarshalState(state map[string]any) error {
	v, _ := state["balance"].(int64)
	a.Balance = int(v)
	return nil
}

func init() {
	delegate.RegisterTarget(accountTypeName, func() delegate.Serializable { return &account{} })
}

// TestBeforeImageRoundTrips verifies a chain and invocation record survive
// an encode/decode cycle through the versioned wire envelope.
func TestBeforeImageRoundTrips(t *testing.T) {
	chainHead := delegate.NewWorkingDir(delegate.NewDirect())
	rec := &delegate.Record{
		Target: &account{Balance: 10},
		Method: "Deposit",
		Args:   []any{int64(5)},
	}

	var buf bytes.Buffer
	require.NoError(t, wire.WriteBeforeImage(&buf, chainHead, rec))

	decodedChain, decodedRec, err := wire.ReadBeforeImage(&buf)
	require.NoError(t, err)

	wd, ok := decodedChain.(*delegate.WorkingDir)
	require.True(t, ok)
	assert.IsType(t, &delegate.Direct{}, wd.BaseFields().Next)

	assert.Equal(t, "Deposit", decodedRec.Method)
	decodedAccount, ok := decodedRec.Target.(*account)
	require.True(t, ok)
	assert.Equal(t, 10, decodedAccount.Balance)
}

// TestRejectsWrongFormatVersion verifies a decode attempt against an image
// stamped with an unrecognized format version fails cleanly instead of
// falling through into a confusing CBOR decode error.
func TestRejectsWrongFormatVersion(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, wire.WriteBeforeImage(&buf, delegate.NewDirect(), &delegate.Record{Target: &account{}}))

	corrupted := buf.Bytes()
	corrupted[0] = 0xFF

	_, _, err := wire.ReadBeforeImage(bytes.NewReader(corrupted))
	assert.Error(t, err)
}

// TestApplyAfterImagePropagatesMutationAndReturn verifies ApplyAfterImage
// replays the terminal target's mutated state and return value onto the
// caller's original Record, preserving the caller's target identity.
func TestApplyAfterImagePropagatesMutationAndReturn(t *testing.T) {
	mutated := &account{Balance: 15}
	afterRec := &delegate.Record{Target: mutated, Method: "Deposit", Return: int64(15)}

	var buf bytes.Buffer
	require.NoError(t, wire.WriteAfterImage(&buf, delegate.NewDirect(), afterRec))

	callerTarget := &account{Balance: 10}
	callerRec := &delegate.Record{Target: callerTarget, Method: "Deposit"}

	require.NoError(t, wire.ApplyAfterImage(&buf, callerRec))
	assert.Equal(t, 15, callerTarget.Balance)
	assert.Equal(t, int64(15), callerRec.Return)
}

// TestApplyAfterImageSurfacesUserMethodError verifies a user method
// failure carried structurally in the after-image (Error set, not a
// nonzero helper exit) reconstructs as a *delegate.UserMethodError.
func TestApplyAfterImageSurfacesUserMethodError(t *testing.T) {
	userErr := &delegate.UserMethodError{TypeName: "ValueError", Message: "insufficient funds"}

	var buf bytes.Buffer
	rec := &delegate.Record{Target: &account{}, Method: "Withdraw"}
	require.NoError(t, wire.WriteAfterImageWithError(&buf, delegate.NewDirect(), rec, userErr))

	err := wire.ApplyAfterImage(&buf, &delegate.Record{Target: &account{}, Method: "Withdraw"})
	require.Error(t, err)

	var got *delegate.UserMethodError
	require.ErrorAs(t, err, &got)
	assert.Equal(t, "ValueError", got.TypeName)
	assert.Equal(t, "insufficient funds", got.Message)
}
