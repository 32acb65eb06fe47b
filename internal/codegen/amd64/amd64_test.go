package amd64

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aerojs/internal/bytecode"
	"aerojs/internal/ir"
	"aerojs/internal/regalloc"
)

func TestCompileEmitsPrologueAndEpilogue(t *testing.T) {
	fn := ir.NewBuilder("f", &bytecode.Function{
		NumLocals: 1,
		Consts:    []bytecode.Const{{IsNum: true, Num: 1}, {IsNum: true, Num: 2}},
		Code: []bytecode.Instr{
			{Op: bytecode.OpLoadConst, Operand: 0},
			{Op: bytecode.OpLoadConst, Operand: 1},
			{Op: bytecode.OpAdd},
			{Op: bytecode.OpReturn},
		},
	}, nil).Build()

	regs, calleeSaved := Registers()
	alloc := regalloc.Allocate(fn, regs, calleeSaved)

	backend := NewBackend()
	buf, err := backend.Compile(fn, alloc)
	require.NoError(t, err)
	require.NotEmpty(t, buf.Code)
	assert.Equal(t, opPrologue, buf.Code[0])
	assert.Equal(t, opEpilogue, buf.Code[len(buf.Code)-2-len(alloc.CalleeSaved)])
}

func TestCompileReservesPatchSiteForPropertyAccess(t *testing.T) {
	fn := ir.NewBuilder("f", &bytecode.Function{
		NumLocals: 1,
		Consts:    []bytecode.Const{{IsStr: true, Str: "x"}},
		Code: []bytecode.Instr{
			{Op: bytecode.OpNewObject},
			{Op: bytecode.OpGetProp, Operand: 0},
			{Op: bytecode.OpReturn},
		},
	}, nil).Build()

	regs, calleeSaved := Registers()
	alloc := regalloc.Allocate(fn, regs, calleeSaved)
	buf, err := NewBackend().Compile(fn, alloc)
	require.NoError(t, err)
	require.Len(t, buf.PatchPoints, 1)
	assert.Equal(t, patchSlabLength, buf.PatchPoints[0].Length)
}

func TestCallingConventionNamesArgumentRegisters(t *testing.T) {
	cc := NewBackend().CallingConvention()
	assert.Equal(t, "RAX", cc.ReturnRegister)
	assert.NotEmpty(t, cc.ArgRegisters)
}
