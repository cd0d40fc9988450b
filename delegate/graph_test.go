package delegate_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aledsdavies/delegatefunc/delegate"
)

type widget struct {
	Label string
}

const widgetTypeName = "delegatefunc.test.widget"

func (w *widget) TypeName() string { return widgetTypeName }

func (w *widget) MarshalState() (map[string]any, error) {
	return map[string]any{"label": w.Label}, nil
}

func (w *widget) UnmarshalState(state map[string]any) error {
	w.Label, _ = state["label"].(string)
	return nil
}

func init() {
	delegate.RegisterTarget(widgetTypeName, func() delegate.Serializable { return &widget{} })
}

// TestEncodeDecodeValueRoundTripsNative verifies CBOR-native values pass
// through EncodeValue/DecodeValue untouched.
func TestEncodeDecodeValueRoundTripsNative(t *testing.T) {
	dto, err := delegate.EncodeValue(42)
	require.NoError(t, err)
	assert.Empty(t, dto.TypeName)
	assert.Equal(t, 42, dto.Native)

	v, err := delegate.DecodeValue(dto)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

// TestEncodeDecodeValueRoundTripsSerializable verifies a registered
// Serializable target survives an encode/decode cycle as a fresh instance.
func TestEncodeDecodeValueRoundTripsSerializable(t *testing.T) {
	dto, err := delegate.EncodeValue(&widget{Label: "gizmo"})
	require.NoError(t, err)
	assert.Equal(t, widgetTypeName, dto.TypeName)

	v, err := delegate.DecodeValue(dto)
	require.NoError(t, err)
	rebuilt, ok := v.(*widget)
	require.True(t, ok)
	assert.Equal(t, "gizmo", rebuilt.Label)
}

// TestApplyValueMutatesExistingTarget verifies ApplyValue replays state
// onto the caller's original object rather than allocating a new one,
// preserving pointer identity across a process boundary.
func TestApplyValueMutatesExistingTarget(t *testing.T) {
	original := &widget{Label: "before"}
	dto, err := delegate.EncodeValue(&widget{Label: "after"})
	require.NoError(t, err)

	require.NoError(t, delegate.ApplyValue(original, dto))
	assert.Equal(t, "after", original.Label, "ApplyValue must mutate the existing pointer in place")
}

// TestApplyValueRejectsTypeMismatch verifies ApplyValue refuses to apply
// state from one registered type onto an incompatible target.
func TestApplyValueRejectsTypeMismatch(t *testing.T) {
	dto, err := delegate.EncodeValue(&widget{Label: "x"})
	require.NoError(t, err)

	err = delegate.ApplyValue(&counter{}, dto)
	assert.Error(t, err)
}

// TestChainToDTOFromDTORoundTrips verifies a multi-link chain survives
// serialization to its LinkDTO wire form and back, preserving kind and
// nesting.
func TestChainToDTOFromDTORoundTrips(t *testing.T) {
	head := delegate.NewWorkingDir(delegate.NewDirect())

	dto, err := delegate.ToDTO(head)
	require.NoError(t, err)
	require.NotNil(t, dto)
	assert.Equal(t, "working_dir", dto.Kind)
	require.NotNil(t, dto.Next)
	assert.Equal(t, "direct", dto.Next.Kind)
	assert.Nil(t, dto.Next.Next)

	roundTripped, err := delegate.ToDTO(head)
	require.NoError(t, err)
	if diff := cmp.Diff(dto, roundTripped); diff != "" {
		t.Errorf("ToDTO is not deterministic across calls on the same chain (-first +second):\n%s", diff)
	}

	rebuilt, err := delegate.FromDTO(dto)
	require.NoError(t, err)

	rebuiltWd, ok := rebuilt.(*delegate.WorkingDir)
	require.True(t, ok)
	assert.IsType(t, &delegate.Direct{}, rebuiltWd.BaseFields().Next)
}
