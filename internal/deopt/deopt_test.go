package deopt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aerojs/internal/ir"
	"aerojs/internal/regalloc"
)

func TestRegisterAssignsSequentialIDs(t *testing.T) {
	r := NewRegistry()
	id0 := r.Register("f", 10, nil)
	id1 := r.Register("f", 20, nil)
	assert.Equal(t, 0, id0)
	assert.Equal(t, 1, id1)
}

func TestPointLookupRoundTrip(t *testing.T) {
	r := NewRegistry()
	v := &ir.Value{ID: 1}
	id := r.Register("f", 42, []*ir.Value{v})
	p, ok := r.Point(id)
	require.True(t, ok)
	assert.Equal(t, "f", p.FuncName)
	assert.Equal(t, 42, p.BytecodeOffset)
	assert.Same(t, v, p.Live[0])

	_, ok = r.Point(99)
	assert.False(t, ok)
}

func TestRecordDeoptPollutesAfterThreshold(t *testing.T) {
	r := NewRegistry()
	var polluted bool
	var count int
	for i := 0; i < pollutedThreshold; i++ {
		count, polluted = r.RecordDeopt("hot", TypeFeedback)
	}
	assert.Equal(t, pollutedThreshold, count)
	assert.True(t, polluted)
	assert.True(t, r.IsPolluted("hot"))
	assert.False(t, r.IsPolluted("cold"))
}

func TestOSRRegistrationIsPerFunction(t *testing.T) {
	r := NewRegistry()
	r.RegisterOSR("f", 5)
	r.RegisterOSR("g", 6)
	r.RegisterOSR("f", 9)

	points := r.OSRPointsFor("f")
	require.Len(t, points, 2)
	assert.Equal(t, 5, points[0].BytecodeOffset)
	assert.Equal(t, 9, points[1].BytecodeOffset)
	assert.Empty(t, r.OSRPointsFor("nonexistent"))
}

func TestReconstructReadsConstantsDirectlyFromIR(t *testing.T) {
	r := NewRegistry()
	constInst := &ir.ConstantInstruction{ID: 1, Value: 7.0}
	v := &ir.Value{ID: 1, DefInst: constInst}
	id := r.Register("f", 3, []*ir.Value{v})

	alloc := &regalloc.Allocation{Locations: map[*ir.Value]regalloc.Location{}}
	frame, err := r.Reconstruct(id, alloc, PhysicalState{})
	require.NoError(t, err)
	assert.Equal(t, 7.0, frame.Values[v])
}

func TestReconstructReadsRegisterAndStackLocations(t *testing.T) {
	r := NewRegistry()
	regVal := &ir.Value{ID: 1, DefInst: &ir.BinaryInstruction{ID: 1}}
	stackVal := &ir.Value{ID: 2, DefInst: &ir.BinaryInstruction{ID: 2}}
	id := r.Register("f", 3, []*ir.Value{regVal, stackVal})

	alloc := &regalloc.Allocation{Locations: map[*ir.Value]regalloc.Location{
		regVal:   {Kind: regalloc.InRegister, Reg: "R0"},
		stackVal: {Kind: regalloc.InStackSlot, Slot: 1},
	}}
	state := PhysicalState{
		Registers: map[string]interface{}{"R0": int32(42)},
		Stack:     []interface{}{nil, "spilled"},
	}

	frame, err := r.Reconstruct(id, alloc, state)
	require.NoError(t, err)
	assert.Equal(t, "f", frame.FuncName)
	assert.Equal(t, 3, frame.BytecodeOffset)
	assert.Equal(t, int32(42), frame.Values[regVal])
	assert.Equal(t, "spilled", frame.Values[stackVal])
}

func TestReconstructUnknownPointErrors(t *testing.T) {
	r := NewRegistry()
	_, err := r.Reconstruct(0, &regalloc.Allocation{}, PhysicalState{})
	assert.Error(t, err)
}

func TestReasonString(t *testing.T) {
	assert.Equal(t, "debugger_attached", DebuggerAttached.String())
	assert.Equal(t, "type_check_failed", TypeCheckFailed.String())
}
