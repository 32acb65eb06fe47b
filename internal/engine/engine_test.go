package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aerojs/internal/bytecode"
	execctx "aerojs/internal/context"
	"aerojs/internal/engineerr"
)

func newTestEngine(cfg execctx.Config) *Engine {
	return New(Config{Context: cfg, ChunkSize: 4096, HighWaterMark: 1 << 20}, nil)
}

// TestEvaluateArithmetic exercises spec §8 scenario 1: straight-line
// arithmetic through the interpreter tier.
func TestEvaluateArithmetic(t *testing.T) {
	e := newTestEngine(execctx.Config{})
	program := &bytecode.Program{
		Functions: []*bytecode.Function{{
			Name:      "main",
			NumLocals: 1,
			Consts: []bytecode.Const{
				{IsNum: true, Num: 2},
				{IsNum: true, Num: 3},
			},
			Code: []bytecode.Instr{
				{Op: bytecode.OpLoadConst, Operand: 0},
				{Op: bytecode.OpLoadConst, Operand: 1},
				{Op: bytecode.OpAdd},
				{Op: bytecode.OpReturn},
			},
		}},
	}
	result, err := e.Evaluate(context.Background(), program)
	require.Nil(t, err)
	assert.Equal(t, float64(5), result.ToNumber())
}

// TestEvaluateObjectPropertyRoundTrip exercises spec §8 scenario 3:
// prototype/property lookup through NewObject/SetProp/GetProp.
func TestEvaluateObjectPropertyRoundTrip(t *testing.T) {
	e := newTestEngine(execctx.Config{})
	program := &bytecode.Program{
		Functions: []*bytecode.Function{{
			Name:      "main",
			NumLocals: 1,
			Consts: []bytecode.Const{
				{IsStr: true, Str: "x"},
				{IsNum: true, Num: 42},
			},
			Code: []bytecode.Instr{
				{Op: bytecode.OpNewObject},
				{Op: bytecode.OpDup},
				{Op: bytecode.OpLoadConst, Operand: 1},
				{Op: bytecode.OpSetProp, Operand: 0},
				{Op: bytecode.OpGetProp, Operand: 0},
				{Op: bytecode.OpReturn},
			},
		}},
	}
	result, err := e.Evaluate(context.Background(), program)
	require.Nil(t, err)
	assert.Equal(t, float64(42), result.ToNumber())
}

// TestEvaluateFunctionCall exercises a nested OpNewFunction/OpCall round
// trip: main creates a closure over "double" and invokes it.
func TestEvaluateFunctionCall(t *testing.T) {
	double := &bytecode.Function{
		Name:       "double",
		ParamCount: 1,
		NumLocals:  1,
		Consts:     []bytecode.Const{{IsNum: true, Num: 2}},
		Code: []bytecode.Instr{
			{Op: bytecode.OpLoadVar, Operand: 0},
			{Op: bytecode.OpLoadConst, Operand: 0},
			{Op: bytecode.OpMul},
			{Op: bytecode.OpReturn},
		},
	}
	main := &bytecode.Function{
		Name:      "main",
		NumLocals: 1,
		Consts:    []bytecode.Const{{IsNum: true, Num: 21}},
		Code: []bytecode.Instr{
			{Op: bytecode.OpNewFunction, Operand: 1}, // indexes program.Functions[1] == double
			{Op: bytecode.OpLoadConst, Operand: 0},
			{Op: bytecode.OpCall, Operand: 1},
			{Op: bytecode.OpReturn},
		},
	}
	e := newTestEngine(execctx.Config{})
	program := &bytecode.Program{Functions: []*bytecode.Function{main, double}, Entry: 0}
	result, err := e.Evaluate(context.Background(), program)
	require.Nil(t, err)
	assert.Equal(t, float64(42), result.ToNumber())
}

// TestEvaluateExecutionLimitExceeded exercises spec §8 scenario 5: a tight
// loop trips the configured execution-limit counter.
func TestEvaluateExecutionLimitExceeded(t *testing.T) {
	e := newTestEngine(execctx.Config{ExecutionLimit: 5})
	program := &bytecode.Program{
		Functions: []*bytecode.Function{{
			Name:      "main",
			NumLocals: 1,
			Consts:    []bytecode.Const{{IsBool: true, Bool: true}},
			Code: []bytecode.Instr{
				{Op: bytecode.OpLoadConst, Operand: 0}, // 0
				{Op: bytecode.OpJumpIfFalse, Operand: 0}, // 1: never taken, loops forever
				{Op: bytecode.OpJump, Operand: 0},         // 2
			},
		}},
	}
	_, err := e.Evaluate(context.Background(), program)
	require.NotNil(t, err)
	assert.Equal(t, "ExecutionLimitExceeded", string(err.Kind))
}

// TestEvaluateTryCatchResumesAtHandler exercises spec §7's bytecode-level
// handler table: a thrown TypeError (calling a non-function) inside the
// guarded range resumes execution at the handler offset instead of
// propagating out of Evaluate.
func TestEvaluateTryCatchResumesAtHandler(t *testing.T) {
	e := newTestEngine(execctx.Config{})
	program := &bytecode.Program{
		Functions: []*bytecode.Function{{
			Name:      "main",
			NumLocals: 1,
			Consts:    []bytecode.Const{{IsNum: true, Num: 7}},
			Code: []bytecode.Instr{
				{Op: bytecode.OpLoadVar, Operand: 0}, // 0: pushes undefined
				{Op: bytecode.OpCall, Operand: 0},    // 1: throws TypeError, caught by the handler below
				{Op: bytecode.OpJump, Operand: 4},    // 2: skipped by the throw
				{Op: bytecode.OpNop},                 // 3: unreachable on the throw path
				{Op: bytecode.OpLoadConst, Operand: 0}, // 4: handler target
				{Op: bytecode.OpReturn},                // 5
			},
			Handlers: []bytecode.ExceptionHandler{{Start: 0, End: 2, Target: 4}},
		}},
	}
	result, err := e.Evaluate(context.Background(), program)
	require.Nil(t, err)
	assert.Equal(t, float64(7), result.ToNumber())
}

func TestCollectGarbageIncrementsCounter(t *testing.T) {
	e := newTestEngine(execctx.Config{})
	before := e.Stats().GCCount
	e.CollectGarbage()
	assert.Equal(t, before+1, e.Stats().GCCount)
}

func TestSetErrorHandlerInvokedOnFailure(t *testing.T) {
	e := newTestEngine(execctx.Config{})
	var handled *engineerr.EngineError
	e.SetErrorHandler(func(err *engineerr.EngineError) { handled = err })

	program := &bytecode.Program{
		Functions: []*bytecode.Function{{
			Name:      "main",
			NumLocals: 1,
			Code: []bytecode.Instr{
				{Op: bytecode.OpLoadVar, Operand: 0}, // undefined, not callable
				{Op: bytecode.OpCall, Operand: 0},
			},
		}},
	}
	_, err := e.Evaluate(context.Background(), program)
	require.NotNil(t, err)
	require.NotNil(t, handled)
	assert.Equal(t, "TypeError", string(err.Kind))
	assert.Same(t, err, handled)
}
