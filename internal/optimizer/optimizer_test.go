package optimizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aerojs/internal/ir"
	"aerojs/internal/profiler"
)

func constVal(v interface{}, blk *ir.BasicBlock) *ir.Value {
	val := &ir.Value{Type: ir.AnyType{}}
	ci := &ir.ConstantInstruction{Result: val, Value: v}
	ci.SetBlock(blk)
	val.DefInst = ci
	blk.Instructions = append(blk.Instructions, ci)
	return val
}

func TestConstantFoldingAdd(t *testing.T) {
	blk := &ir.BasicBlock{Label: "entry"}
	l := constVal(float64(2), blk)
	r := constVal(float64(3), blk)
	result := &ir.Value{Type: ir.AnyType{}}
	bi := &ir.BinaryInstruction{Result: result, Op: "add", Left: l, Right: r}
	bi.SetBlock(blk)
	blk.Instructions = append(blk.Instructions, bi)
	blk.Terminator = &ir.ReturnTerminator{Value: result}
	fn := &ir.Function{Blocks: []*ir.BasicBlock{blk}}

	cf := &ConstantFolding{}
	changed := cf.Apply(fn)
	require.True(t, changed)
	last := blk.Instructions[len(blk.Instructions)-1]
	ci, ok := last.(*ir.ConstantInstruction)
	require.True(t, ok)
	assert.Equal(t, float64(5), ci.Value)
}

func TestDeadCodeEliminationRemovesUnusedPure(t *testing.T) {
	blk := &ir.BasicBlock{Label: "entry"}
	dead := constVal(float64(1), blk)
	_ = dead
	used := constVal(float64(2), blk)
	blk.Terminator = &ir.ReturnTerminator{Value: used}
	fn := &ir.Function{Blocks: []*ir.BasicBlock{blk}}

	dce := &DeadCodeElimination{}
	changed := dce.Apply(fn)
	require.True(t, changed)
	assert.Len(t, blk.Instructions, 1)
}

func TestDeadCodeEliminationKeepsHeapEffects(t *testing.T) {
	blk := &ir.BasicBlock{Label: "entry"}
	obj := constVal(float64(1), blk)
	setProp := &ir.SetPropInstruction{Object: obj, Key: "x", Value: obj}
	setProp.SetBlock(blk)
	blk.Instructions = append(blk.Instructions, setProp)
	blk.Terminator = &ir.ReturnTerminator{}
	fn := &ir.Function{Blocks: []*ir.BasicBlock{blk}}

	dce := &DeadCodeElimination{}
	dce.Apply(fn)
	assert.Contains(t, blk.Instructions, ir.Instruction(setProp))
}

func TestCommonSubexpressionEliminationDedupsIdenticalAdds(t *testing.T) {
	blk := &ir.BasicBlock{Label: "entry"}
	l := constVal(float64(1), blk)
	r := constVal(float64(2), blk)
	r1 := &ir.Value{Type: ir.AnyType{}}
	r2 := &ir.Value{Type: ir.AnyType{}}
	b1 := &ir.BinaryInstruction{Result: r1, Op: "add", Left: l, Right: r}
	b2 := &ir.BinaryInstruction{Result: r2, Op: "add", Left: l, Right: r}
	b1.SetBlock(blk)
	b2.SetBlock(blk)
	blk.Instructions = append(blk.Instructions, b1, b2)
	blk.Terminator = &ir.ReturnTerminator{Value: r2}
	fn := &ir.Function{Blocks: []*ir.BasicBlock{blk}}

	cse := &CommonSubexpressionElimination{}
	changed := cse.Apply(fn)
	require.True(t, changed)
	assert.Same(t, r1, blk.Terminator.(*ir.ReturnTerminator).Value)
}

func TestPeepholeAddZeroIdentity(t *testing.T) {
	blk := &ir.BasicBlock{Label: "entry"}
	x := constVal(float64(7), blk)
	zero := constVal(float64(0), blk)
	result := &ir.Value{Type: ir.AnyType{}}
	bi := &ir.BinaryInstruction{Result: result, Op: "add", Left: x, Right: zero}
	bi.SetBlock(blk)
	blk.Instructions = append(blk.Instructions, bi)
	blk.Terminator = &ir.ReturnTerminator{Value: result}
	fn := &ir.Function{Blocks: []*ir.BasicBlock{blk}}

	ph := &Peephole{}
	changed := ph.Apply(fn)
	require.True(t, changed)
	assert.Same(t, x, blk.Terminator.(*ir.ReturnTerminator).Value)
}

func TestPeepholeMulPowerOfTwoBecomesShift(t *testing.T) {
	blk := &ir.BasicBlock{Label: "entry"}
	x := constVal(float64(7), blk)
	eight := constVal(float64(8), blk)
	result := &ir.Value{Type: ir.AnyType{}}
	bi := &ir.BinaryInstruction{Result: result, Op: "mul", Left: x, Right: eight}
	bi.SetBlock(blk)
	blk.Instructions = append(blk.Instructions, bi)
	blk.Terminator = &ir.ReturnTerminator{Value: result}
	fn := &ir.Function{Blocks: []*ir.BasicBlock{blk}}

	ph := &Peephole{}
	changed := ph.Apply(fn)
	require.True(t, changed)
	assert.Equal(t, "shl", bi.Op)
}

// stubProfiler lets tests name a dominant type per bytecode position;
// positions absent from dominantKind default to TypeInt32 for callers
// that only care about the stable/unstable distinction.
type stubProfiler struct {
	stableIDs    map[int]bool
	dominantKind map[int]profiler.TypeKind
}

func (s *stubProfiler) IsTypeStable(fn string, pos int) bool { return s.stableIDs[pos] }

func (s *stubProfiler) DominantType(fn string, pos int) (profiler.TypeKind, bool) {
	if !s.stableIDs[pos] {
		return profiler.TypeUnknown, false
	}
	if s.dominantKind != nil {
		if k, ok := s.dominantKind[pos]; ok {
			return k, true
		}
	}
	return profiler.TypeInt32, true
}

type stubDeopts struct{ calls int }

func (s *stubDeopts) Register(funcName string, bytecodeOffset int, live []*ir.Value) int {
	s.calls++
	return s.calls
}

func TestTypeSpecializationInsertsGuardOnStableSite(t *testing.T) {
	blk := &ir.BasicBlock{Label: "entry"}
	l := constVal(float64(1), blk)
	r := constVal(float64(2), blk)
	result := &ir.Value{Type: ir.AnyType{}}
	bi := &ir.BinaryInstruction{ID: 42, Pos: 7, Result: result, Op: "add", Left: l, Right: r}
	bi.SetBlock(blk)
	blk.Instructions = append(blk.Instructions, bi)
	blk.Terminator = &ir.ReturnTerminator{Value: result}
	fn := &ir.Function{Blocks: []*ir.BasicBlock{blk}}

	deopts := &stubDeopts{}
	// Keyed by bytecode position (Pos), not the IR instruction id (ID):
	// that's what the interpreter's profiler samples are recorded under.
	ts := &TypeSpecialization{Profiler: &stubProfiler{stableIDs: map[int]bool{7: true}}, FuncName: "f", Deopts: deopts}
	changed := ts.Apply(fn)
	require.True(t, changed)
	assert.Equal(t, "int_add", bi.Op)
	assert.Equal(t, 1, deopts.calls)

	var guard *ir.TypeGuardInstruction
	for _, inst := range blk.Instructions {
		if g, ok := inst.(*ir.TypeGuardInstruction); ok {
			guard = g
		}
	}
	require.NotNil(t, guard)
	assert.Same(t, l, guard.Input)
	assert.Equal(t, ir.Int32Type{}, guard.Expected)
	assert.Same(t, guard.Result, bi.Left, "int_add must consume the guarded value, not the unguarded operand")
}

func TestTypeSpecializationLeavesNonInt32DominantSiteAlone(t *testing.T) {
	blk := &ir.BasicBlock{Label: "entry"}
	l := constVal(float64(1), blk)
	r := constVal(float64(2), blk)
	result := &ir.Value{Type: ir.AnyType{}}
	bi := &ir.BinaryInstruction{ID: 42, Pos: 7, Result: result, Op: "add", Left: l, Right: r}
	bi.SetBlock(blk)
	blk.Instructions = append(blk.Instructions, bi)
	blk.Terminator = &ir.ReturnTerminator{Value: result}
	fn := &ir.Function{Blocks: []*ir.BasicBlock{blk}}

	deopts := &stubDeopts{}
	ts := &TypeSpecialization{
		Profiler: &stubProfiler{
			stableIDs:    map[int]bool{7: true},
			dominantKind: map[int]profiler.TypeKind{7: profiler.TypeFloat64},
		},
		FuncName: "f",
		Deopts:   deopts,
	}
	changed := ts.Apply(fn)
	require.False(t, changed, "no typed opcode exists for a Float64-dominant add site, so it stays generic")
	assert.Equal(t, "add", bi.Op)
	assert.Equal(t, 0, deopts.calls)
	for _, inst := range blk.Instructions {
		_, isGuard := inst.(*ir.TypeGuardInstruction)
		assert.False(t, isGuard, "must not guard to Int32 when the dominant type is Float64")
	}
}
