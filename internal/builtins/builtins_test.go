package builtins

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	execctx "aerojs/internal/context"
	"aerojs/internal/heap"
	"aerojs/internal/value"
)

func newTestContext() *execctx.Context {
	return execctx.New(heap.New(), execctx.Config{})
}

func nativeAt(t *testing.T, ctx *execctx.Context, obj value.Handle, key string) execctx.NativeFunc {
	t.Helper()
	v, err := ctx.GetProperty(obj, key)
	require.Nil(t, err)
	require.Equal(t, value.Function, v.Kind())
	fn, ok := ctx.Native(v.Handle())
	require.True(t, ok)
	return fn
}

func TestRegisterInstallsPrintOnGlobal(t *testing.T) {
	ctx := newTestContext()
	var captured string
	Register(ctx, func(s string) { captured = s })

	print := nativeAt(t, ctx, ctx.Global, "print")
	_, err := print(ctx, value.Undef(), []value.Value{value.Str("hello"), value.Num(1)})
	require.Nil(t, err)
	assert.Equal(t, "hello 1\n", captured)
}

func TestMathStatics(t *testing.T) {
	ctx := newTestContext()
	Register(ctx, func(string) {})

	mathVal, err := ctx.GetProperty(ctx.Global, "Math")
	require.Nil(t, err)
	require.Equal(t, value.Object, mathVal.Kind())
	mathObj := mathVal.Handle()

	abs := nativeAt(t, ctx, mathObj, "abs")
	r, err := abs(ctx, value.Undef(), []value.Value{value.Num(-4)})
	require.Nil(t, err)
	assert.Equal(t, float64(4), r.ToNumber())

	max := nativeAt(t, ctx, mathObj, "max")
	r, err = max(ctx, value.Undef(), []value.Value{value.Num(1), value.Num(9), value.Num(3)})
	require.Nil(t, err)
	assert.Equal(t, float64(9), r.ToNumber())

	pow := nativeAt(t, ctx, mathObj, "pow")
	r, err = pow(ctx, value.Undef(), []value.Value{value.Num(2), value.Num(10)})
	require.Nil(t, err)
	assert.Equal(t, float64(1024), r.ToNumber())
}

func TestObjectKeys(t *testing.T) {
	ctx := newTestContext()
	Register(ctx, func(string) {})

	obj := ctx.Heap.NewObject()
	require.Nil(t, ctx.SetProperty(obj, "a", value.Num(1)))
	require.Nil(t, ctx.SetProperty(obj, "b", value.Num(2)))

	objectVal, err := ctx.GetProperty(ctx.Global, "Object")
	require.Nil(t, err)
	keys := nativeAt(t, ctx, objectVal.Handle(), "keys")

	r, err := keys(ctx, value.Undef(), []value.Value{value.Obj(obj)})
	require.Nil(t, err)
	require.Equal(t, value.Array, r.Kind())

	var got []string
	for i := uint32(0); i < 2; i++ {
		got = append(got, ctx.Heap.GetElement(r.Handle(), i).AsString())
	}
	assert.ElementsMatch(t, []string{"a", "b"}, got)
}

func TestObjectKeysOnNonObjectIsTypeError(t *testing.T) {
	ctx := newTestContext()
	Register(ctx, func(string) {})

	objectVal, err := ctx.GetProperty(ctx.Global, "Object")
	require.Nil(t, err)
	keys := nativeAt(t, ctx, objectVal.Handle(), "keys")

	_, err = keys(ctx, value.Undef(), []value.Value{value.Num(1)})
	require.NotNil(t, err)
	assert.Equal(t, "TypeError", string(err.Kind))
}
