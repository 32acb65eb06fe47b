// Package builtins registers a small demonstration set of native
// functions against a Context (spec §4.2a "builtins registration
// surface"): enough to exercise Context.DefineNative end to end, not a
// spec-complete standard library (explicit Non-goal).
//
// Grounded on original_source's builtins_manager.{h,cpp} module-table
// registration pattern: a flat list of (name, native function) pairs
// installed onto the global object at startup, rather than a class
// hierarchy of builtin objects.
package builtins

import (
	"fmt"
	"math"

	execctx "aerojs/internal/context"
	"aerojs/internal/engineerr"
	"aerojs/internal/value"
)

// Printer receives the formatted arguments of a print() call. Tests and
// embedders that don't want builtin output on stdout can swap this out.
type Printer func(string)

// Register installs the demonstration builtin set onto ctx's global
// object: print, and a handful of Math/Object statics.
func Register(ctx *execctx.Context, out Printer) {
	if out == nil {
		out = func(s string) { fmt.Println(s) }
	}

	ctx.DefineNative("print", func(ctx *execctx.Context, this value.Value, args []value.Value) (value.Value, *engineerr.EngineError) {
		parts := make([]interface{}, len(args))
		for i, a := range args {
			parts[i] = a.ToString()
		}
		out(fmt.Sprintln(parts...))
		return value.Undef(), nil
	})

	registerMath(ctx)
	registerObject(ctx)
}

// registerMath installs the Math.* statics used by spec §8's numeric
// scenarios: abs, floor, max, min, pow — a representative slice of
// ECMAScript's Math object, not the complete surface.
func registerMath(ctx *execctx.Context) {
	mathObj := ctx.Heap.NewObject()
	ctx.SetProperty(ctx.Global, "Math", value.Obj(mathObj))

	define := func(name string, fn execctx.NativeFunc) {
		ctx.SetProperty(mathObj, name, ctx.RegisterNative(fn))
	}

	define("abs", func(ctx *execctx.Context, this value.Value, args []value.Value) (value.Value, *engineerr.EngineError) {
		return value.Num(math.Abs(arg(args, 0).ToNumber())), nil
	})
	define("floor", func(ctx *execctx.Context, this value.Value, args []value.Value) (value.Value, *engineerr.EngineError) {
		return value.Num(math.Floor(arg(args, 0).ToNumber())), nil
	})
	define("max", func(ctx *execctx.Context, this value.Value, args []value.Value) (value.Value, *engineerr.EngineError) {
		m := math.Inf(-1)
		for _, a := range args {
			m = math.Max(m, a.ToNumber())
		}
		return value.Num(m), nil
	})
	define("min", func(ctx *execctx.Context, this value.Value, args []value.Value) (value.Value, *engineerr.EngineError) {
		m := math.Inf(1)
		for _, a := range args {
			m = math.Min(m, a.ToNumber())
		}
		return value.Num(m), nil
	})
	define("pow", func(ctx *execctx.Context, this value.Value, args []value.Value) (value.Value, *engineerr.EngineError) {
		return value.Num(math.Pow(arg(args, 0).ToNumber(), arg(args, 1).ToNumber())), nil
	})
}

// registerObject installs Object.keys, the one Object static spec §8's
// property-enumeration scenario needs.
func registerObject(ctx *execctx.Context) {
	objectObj := ctx.Heap.NewObject()
	ctx.SetProperty(ctx.Global, "Object", value.Obj(objectObj))

	keys := ctx.RegisterNative(func(ctx *execctx.Context, this value.Value, args []value.Value) (value.Value, *engineerr.EngineError) {
		target := arg(args, 0)
		if target.Kind() != value.Object && target.Kind() != value.Array {
			return value.Undef(), engineerr.TypeErr("Object.keys called on non-object")
		}
		obj := ctx.Heap.Object(target.Handle())
		if obj == nil {
			return value.Undef(), engineerr.TypeErr("Object.keys called on non-object")
		}
		arr := ctx.Heap.NewArray()
		for i, k := range obj.Keys() {
			ctx.Heap.SetElement(arr, uint32(i), value.Str(k))
		}
		return value.Arr(arr), nil
	})
	ctx.SetProperty(objectObj, "keys", keys)
}

func arg(args []value.Value, i int) value.Value {
	if i < len(args) {
		return args[i]
	}
	return value.Undef()
}
