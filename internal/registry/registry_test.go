package registry

import (
	"testing"

	"github.com/schollz/orchestron/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateBuiltinCatalog(t *testing.T) {
	require.NoError(t, Validate())
}

func TestLookupKnownAndUnknown(t *testing.T) {
	op, ok := Lookup("oscili")
	require.True(t, ok)
	assert.Equal(t, "generator", op.Category)

	_, ok = Lookup("does-not-exist")
	assert.False(t, ok)
}

func TestListIsSortedAndStable(t *testing.T) {
	a := List()
	b := List()
	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i].Name, b[i].Name)
		if i > 0 {
			assert.LessOrEqual(t, a[i-1].Name, a[i].Name)
		}
	}
}

func TestCategoriesNonEmpty(t *testing.T) {
	cats := Categories()
	assert.Contains(t, cats, "generator")
	assert.Contains(t, cats, "output")
}

func TestOsciliPortShape(t *testing.T) {
	op, _ := Lookup("oscili")
	freq, ok := op.InputPort("freq")
	require.True(t, ok)
	assert.Equal(t, types.RateControl, freq.Rate)
	assert.Contains(t, freq.AcceptedRates, types.RateAudio)

	out, ok := op.OutputPort("out")
	require.True(t, ok)
	assert.Equal(t, types.RateAudio, out.Rate)
}

func TestDetectsDuplicatePortID(t *testing.T) {
	bad := Opcode{
		Name: "bad",
		Inputs: []Port{
			{ID: "x", Rate: types.RateInit, Required: true},
			{ID: "x", Rate: types.RateInit, Required: true},
		},
		Template: "{x}",
	}
	catalog = append(catalog, bad)
	defer func() { catalog = catalog[:len(catalog)-1] }()
	assert.Error(t, Validate())
}
