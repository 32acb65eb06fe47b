package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aerojs/internal/value"
)

func TestPrototypeLookupOwnShadows(t *testing.T) {
	h := New()
	p := h.NewObject()
	require.NoError(t, h.SetProperty(p, "x", value.Int(1), true))

	o := h.NewObject()
	h.Object(o).SetPrototype(p)

	prop, _, ok := h.GetProperty(o, "x")
	require.True(t, ok)
	assert.Equal(t, int32(1), prop.Value.AsInt32())

	require.NoError(t, h.SetProperty(o, "x", value.Int(2), true))
	prop, _, ok = h.GetProperty(o, "x")
	require.True(t, ok)
	assert.Equal(t, int32(2), prop.Value.AsInt32(), "own shadows prototype")

	prop, _, ok = h.GetProperty(p, "x")
	require.True(t, ok)
	assert.Equal(t, int32(1), prop.Value.AsInt32(), "prototype unaffected")
}

func TestArrayModeMonotonic(t *testing.T) {
	h := New()
	a := h.NewArray()
	obj := h.Object(a)
	assert.Equal(t, Packed, obj.Mode())

	h.SetElement(a, 0, value.Int(1))
	h.SetElement(a, 1, value.Int(2))
	assert.Equal(t, Packed, obj.Mode())

	h.SetElement(a, 5, value.Int(3)) // gap -> holey
	assert.Equal(t, Holey, obj.Mode())

	// Never regress to packed even if the gap is later filled.
	h.SetElement(a, 2, value.Int(9))
	h.SetElement(a, 3, value.Int(9))
	h.SetElement(a, 4, value.Int(9))
	assert.Equal(t, Holey, obj.Mode())
}

func TestArrayDensityDemotesToSparse(t *testing.T) {
	h := New()
	a := h.NewArray()
	obj := h.Object(a)
	h.SetElement(a, 0, value.Int(1))
	h.SetElement(a, 1000, value.Int(2)) // density collapses well below 1/4
	assert.Equal(t, Sparse, obj.Mode())
}

func TestGCReachability(t *testing.T) {
	h := New()
	var keep value.Handle
	for i := 0; i < 10000; i++ {
		id := h.NewObject()
		if i == 42 {
			keep = id
			require.NoError(t, h.SetProperty(id, "tag", value.Str("kept"), true))
		}
	}
	stats := h.CollectGarbage([]value.Handle{keep})
	assert.Equal(t, 1, stats.ObjectsAlive)
	assert.NotNil(t, h.Object(keep))
	prop, _, ok := h.GetProperty(keep, "tag")
	require.True(t, ok)
	assert.Equal(t, "kept", prop.Value.AsString())
}

func TestShapeIdenticalForSameKeyHistory(t *testing.T) {
	h := New()
	a := h.NewObject()
	b := h.NewObject()
	require.NoError(t, h.SetProperty(a, "x", value.Int(1), true))
	require.NoError(t, h.SetProperty(a, "y", value.Int(2), true))
	require.NoError(t, h.SetProperty(b, "x", value.Int(9), true))
	require.NoError(t, h.SetProperty(b, "y", value.Int(9), true))
	assert.Equal(t, h.Object(a).ShapeID(), h.Object(b).ShapeID())

	c := h.NewObject()
	require.NoError(t, h.SetProperty(c, "y", value.Int(9), true))
	require.NoError(t, h.SetProperty(c, "x", value.Int(9), true))
	assert.NotEqual(t, h.Object(a).ShapeID(), h.Object(c).ShapeID(), "insertion order matters")
}
