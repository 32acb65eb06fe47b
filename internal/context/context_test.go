package context

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aerojs/internal/engineerr"
	"aerojs/internal/heap"
	"aerojs/internal/value"
)

func TestVariableLookupWalksScopeChainThenGlobal(t *testing.T) {
	ctx := New(heap.New(), Config{})
	require.Nil(t, ctx.SetVariable("g", value.Int(1)))

	ctx.PushScope()
	ctx.DeclareVariable("x", value.Int(2), BindingLet)

	v, err := ctx.GetVariable("x")
	require.Nil(t, err)
	assert.Equal(t, int32(2), v.AsInt32())

	v, err = ctx.GetVariable("g")
	require.Nil(t, err)
	assert.Equal(t, int32(1), v.AsInt32())

	ctx.PopScope()
	_, err = ctx.GetVariable("x")
	require.NotNil(t, err, "binding does not outlive its scope")
	assert.Equal(t, engineerr.KindReference, err.Kind)
}

func TestGetVariableMissingIsReferenceError(t *testing.T) {
	ctx := New(heap.New(), Config{})
	_, err := ctx.GetVariable("nope")
	require.NotNil(t, err)
	assert.Equal(t, engineerr.KindReference, err.Kind)
	assert.Same(t, err, ctx.CurrentError())
}

func TestConstReassignmentIsTypeError(t *testing.T) {
	ctx := New(heap.New(), Config{})
	ctx.DeclareVariable("c", value.Int(1), BindingConst)
	err := ctx.SetVariable("c", value.Int(2))
	require.NotNil(t, err)
	assert.Equal(t, engineerr.KindType, err.Kind)
}

func TestSetPropertyStrictModeOnNonWritable(t *testing.T) {
	h := heap.New()
	ctx := New(h, Config{Strict: true})
	obj := h.NewObject()
	require.NoError(t, h.SetProperty(obj, "frozen", value.Int(1), true))
	o := h.Object(obj)
	p, _ := o.OwnProperty("frozen")
	p.Writable = false

	err := ctx.SetProperty(obj, "frozen", value.Int(2))
	require.NotNil(t, err)
	assert.Equal(t, engineerr.KindType, err.Kind)
}

func TestGetPropertyAbsentIsUndefinedNotError(t *testing.T) {
	h := heap.New()
	ctx := New(h, Config{})
	obj := h.NewObject()
	v, err := ctx.GetProperty(obj, "missing")
	require.Nil(t, err)
	assert.Equal(t, value.Undef(), v)
}

func TestAccessorPropertyInvokesGetterAndSetterWithReceiver(t *testing.T) {
	h := heap.New()
	ctx := New(h, Config{})
	obj := h.NewObject()

	var lastSetThis value.Value
	var lastSetArg value.Value
	err := ctx.DefineAccessor(obj, "mirrored",
		func(c *Context, this value.Value, args []value.Value) (value.Value, *engineerr.EngineError) {
			return c.GetProperty(this.Handle(), "backing")
		},
		func(c *Context, this value.Value, args []value.Value) (value.Value, *engineerr.EngineError) {
			lastSetThis = this
			lastSetArg = args[0]
			return value.Undef(), c.SetProperty(this.Handle(), "backing", args[0])
		},
		true,
	)
	require.NoError(t, err)

	require.Nil(t, ctx.SetProperty(obj, "mirrored", value.Int(7)))
	assert.Equal(t, value.Obj(obj), lastSetThis)
	assert.Equal(t, int32(7), lastSetArg.AsInt32())

	v, getErr := ctx.GetProperty(obj, "mirrored")
	require.Nil(t, getErr)
	assert.Equal(t, int32(7), v.AsInt32())
}

func TestSandboxRejectsOperations(t *testing.T) {
	ctx := New(heap.New(), Config{Sandboxed: true})
	err := ctx.CheckSandbox("eval")
	require.NotNil(t, err)
	assert.Equal(t, engineerr.KindSecurity, err.Kind)

	unsandboxed := New(heap.New(), Config{})
	assert.Nil(t, unsandboxed.CheckSandbox("eval"))
}

func TestExecutionLimitExceeded(t *testing.T) {
	ctx := New(heap.New(), Config{ExecutionLimit: 10000})
	var err *engineerr.EngineError
	for i := 0; i < 20 && err == nil; i++ {
		err = ctx.Tick(1000)
	}
	require.NotNil(t, err)
	assert.Equal(t, engineerr.KindExecutionLimit, err.Kind)
}

func TestGCCadenceDeterministicByTickCount(t *testing.T) {
	ctx := New(heap.New(), Config{GCFrequency: 3})
	assert.False(t, ctx.ShouldCollect())
	ctx.Tick(1)
	ctx.Tick(1)
	assert.False(t, ctx.ShouldCollect())
	ctx.Tick(1)
	assert.True(t, ctx.ShouldCollect())
	ctx.NoteGC()
	assert.False(t, ctx.ShouldCollect())
	assert.Equal(t, uint64(1), ctx.GCCount())
}
