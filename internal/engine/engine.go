// Package engine assembles the interpreter (tier 0), the profiler, the
// tiered dispatcher, the code cache, and the execution context behind the
// public surface spec §6 names: New/Evaluate/EvaluateAsync/
// SetErrorHandler/CollectGarbage/Stats. It is the concrete wiring point
// the rest of internal/* was built to be assembled from, mirroring
// original_source/src/core/engine.{h,cpp}'s role of owning every
// subsystem.
package engine

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"aerojs/internal/builtins"
	"aerojs/internal/bytecode"
	"aerojs/internal/codecache"
	"aerojs/internal/codegen"
	"aerojs/internal/codegen/amd64"
	execctx "aerojs/internal/context"
	"aerojs/internal/deopt"
	"aerojs/internal/dispatcher"
	"aerojs/internal/engineerr"
	"aerojs/internal/heap"
	"aerojs/internal/profiler"
	"aerojs/internal/value"
)

// Config bundles the knobs New needs: the context configuration (spec
// §2 "Context ... configuration") plus the code cache's sizing.
type Config struct {
	Context       execctx.Config
	ChunkSize     int
	HighWaterMark int
}

// ErrorHandler is invoked, if set, whenever Evaluate/EvaluateAsync returns
// a non-nil *engineerr.EngineError (spec §6 "set_error_handler").
type ErrorHandler func(*engineerr.EngineError)

// Stats summarizes engine state for observability (spec §6 "stats()").
type Stats struct {
	InstructionsExecuted uint64
	GCCount              uint64
	CodeCache            codecache.Stats
}

// EvalResult is what EvaluateAsync delivers on its result channel.
type EvalResult struct {
	Value value.Value
	Err   *engineerr.EngineError
}

// Engine ties every subsystem together behind one evaluation surface.
type Engine struct {
	ctx        *execctx.Context
	heap       *heap.Heap
	prof       *profiler.Profiler
	deopts     *deopt.Registry
	cache      *codecache.Cache
	backend    codegen.Backend
	dispatcher *dispatcher.Dispatcher
	logger     *zap.Logger
	program    *bytecode.Program

	mu           sync.Mutex
	errorHandler ErrorHandler
	// functionTemplates maps a heap-allocated function object's handle to
	// the bytecode body OpNewFunction materialized it from — the IR
	// builder already treats a nested function as an opaque
	// "<function#N>" constant (internal/ir/builder.go), so the
	// interpreter resolves the real body only at the point of a call.
	functionTemplates map[value.Handle]*bytecode.Function
}

// New constructs an Engine. logger may be nil, in which case a no-op
// logger is used (matching zap.NewNop's idiom for library code that
// shouldn't force configuration on its caller).
func New(cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := heap.New()
	prof := profiler.New()
	deopts := deopt.NewRegistry()
	cache := codecache.New(cfg.ChunkSize, cfg.HighWaterMark)
	backend := amd64.NewBackend()
	ctx := execctx.New(h, cfg.Context)
	builtins.Register(ctx, nil)
	return &Engine{
		ctx:               ctx,
		heap:              h,
		prof:              prof,
		deopts:            deopts,
		cache:             cache,
		backend:           backend,
		logger:            logger,
		functionTemplates: make(map[value.Handle]*bytecode.Function),
	}
}

// SetErrorHandler installs h, called from Evaluate/EvaluateAsync whenever
// evaluation ends in error (spec §6).
func (e *Engine) SetErrorHandler(h ErrorHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errorHandler = h
}

func (e *Engine) notifyError(err *engineerr.EngineError) {
	e.mu.Lock()
	h := e.errorHandler
	e.mu.Unlock()
	if h != nil && err != nil {
		h(err)
	}
}

// Evaluate runs program's entry function to completion (spec §6
// "evaluate(program) -> Result"), installing a fresh dispatcher over
// program's function table for this call so tier promotion is scoped to
// one evaluation the way spec §5 describes ("one execution thread runs
// JS; its state ... is not shared").
func (e *Engine) Evaluate(ctx context.Context, program *bytecode.Program) (value.Value, *engineerr.EngineError) {
	e.program = program
	e.dispatcher = dispatcher.New(program, e.prof, e.deopts, e.cache, e.backend, e.logger)
	entry := program.Functions[program.Entry]
	v, err := e.run(ctx, entry, nil)
	// Drain the dispatcher's worker pool before returning: spec §4.11's
	// background compiles are scoped to this evaluation (a fresh
	// Dispatcher is installed per Evaluate call above), so nothing should
	// still be compiling once the script that triggered it has finished.
	if shutdownErr := e.dispatcher.Shutdown(); shutdownErr != nil {
		e.logger.Warn("dispatcher shutdown error", zap.Error(shutdownErr))
	}
	if err != nil {
		e.notifyError(err)
	}
	return v, err
}

// EvaluateAsync runs Evaluate on a background goroutine and reports the
// result on the returned channel (spec §6 "evaluate_async"), cooperating
// with ctx cancellation via the same context.Context the interpreter's
// safepoints already check.
func (e *Engine) EvaluateAsync(ctx context.Context, program *bytecode.Program) <-chan EvalResult {
	out := make(chan EvalResult, 1)
	go func() {
		v, err := e.Evaluate(ctx, program)
		out <- EvalResult{Value: v, Err: err}
		close(out)
	}()
	return out
}

// CollectGarbage runs a synchronous mark-sweep pass over every handle
// reachable from the global object (spec §6 "collect_garbage()").
func (e *Engine) CollectGarbage() {
	e.heap.CollectGarbage([]value.Handle{e.ctx.Global})
	e.ctx.NoteGC()
}

// Stats reports execution counters and code cache occupancy (spec §6
// "stats()").
func (e *Engine) Stats() Stats {
	return Stats{
		InstructionsExecuted: e.ctx.InstructionsExecuted(),
		GCCount:              e.ctx.GCCount(),
		CodeCache:            e.cache.Stats(),
	}
}

// frame is one call's locals (indexed bytecode slots) and operand stack.
type frame struct {
	fn     *bytecode.Function
	locals []value.Value
	stack  []value.Value
}

func (f *frame) push(v value.Value) { f.stack = append(f.stack, v) }

func (f *frame) pop() value.Value {
	if len(f.stack) == 0 {
		return value.Undef()
	}
	v := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return v
}

func (f *frame) local(slot int) value.Value {
	if slot < 0 || slot >= len(f.locals) {
		return value.Undef()
	}
	return f.locals[slot]
}

func (f *frame) setLocal(slot int, v value.Value) {
	if slot >= 0 && slot < len(f.locals) {
		f.locals[slot] = v
	}
}

func constValue(c bytecode.Const) value.Value {
	switch {
	case c.IsNum:
		return value.Num(c.Num)
	case c.IsStr:
		return value.Str(c.Str)
	case c.IsBool:
		return value.Bool(c.Bool)
	case c.IsNull:
		return value.Nul()
	default:
		return value.Undef()
	}
}

// run interprets fn's bytecode to completion — the tier-0 execution
// loop every function body starts at (spec §2 "Data flow ... interpreter
// executes, profiler records"). args binds fn's parameter slots.
func (e *Engine) run(ctx context.Context, fn *bytecode.Function, args []value.Value) (value.Value, *engineerr.EngineError) {
	// spec §4.2 "call_function ... on entry, consults the dispatcher for a
	// compiled entry to use". There is no native machine-code invocation
	// path in this interpreter (internal/codegen produces a Buffer of
	// bytes, not something Go can call without an unsafe trampoline this
	// module doesn't build), so a hit only selects which tier's logic the
	// interpreter emulates for profiling/logging purposes; the bytecode
	// loop below still executes every instruction either way.
	if e.dispatcher != nil {
		if cf, ok := e.dispatcher.Lookup(fn.Name); ok {
			e.logger.Debug("call_function: using compiled entry",
				zap.String("function_id", fn.Name), zap.Stringer("tier", cf.Tier))
		}
	}

	tok := e.prof.RecordEntry(fn.Name)
	defer e.prof.RecordExit(fn.Name, tok, profiler.TypeUnknown)

	e.ctx.PushScope()
	defer e.ctx.PopScope()

	fr := &frame{fn: fn, locals: make([]value.Value, fn.NumLocals)}
	for i := 0; i < len(args) && i < len(fr.locals); i++ {
		fr.locals[i] = args[i]
	}

	dec := bytecode.NewDecoder(fn)
	for {
		pos := dec.Offset()
		instr, ok := dec.Next()
		if !ok {
			return value.Undef(), nil
		}

		if tickErr := e.ctx.Tick(1); tickErr != nil {
			return value.Undef(), tickErr
		}
		if e.dispatcher != nil {
			e.dispatcher.OnSafepoint(ctx, fn.Name)
		}
		if e.ctx.ShouldCollect() {
			e.CollectGarbage()
		}

		retVal, returned, jumpTo, stepErr := e.step(ctx, fr, instr, pos)
		if stepErr != nil {
			if target, ok := findHandler(fn, pos); ok {
				e.ctx.ClearError()
				dec.Reset(target)
				continue
			}
			return value.Undef(), stepErr
		}
		if returned {
			return retVal, nil
		}
		if jumpTo >= 0 {
			dec.Reset(jumpTo)
		}
	}
}

func findHandler(fn *bytecode.Function, pos int) (int, bool) {
	for _, h := range fn.Handlers {
		if pos >= h.Start && pos < h.End {
			return h.Target, true
		}
	}
	return -1, false
}

// step executes one instruction against fr, returning either a return
// value (returned=true), a jump target (jumpTo>=0, -1 otherwise meaning
// "fall through"), or an error to be matched against fn's handler table.
func (e *Engine) step(ctx context.Context, fr *frame, instr bytecode.Instr, pos int) (value.Value, bool, int, *engineerr.EngineError) {
	switch instr.Op {
	case bytecode.OpLoadConst:
		fr.push(constValue(fr.fn.Consts[instr.Operand]))

	case bytecode.OpLoadVar:
		fr.push(fr.local(instr.Operand))

	case bytecode.OpStoreVar:
		fr.setLocal(instr.Operand, fr.pop())

	case bytecode.OpLoadGlobal:
		name := fr.fn.Consts[instr.Operand].Str
		v, err := e.ctx.GetProperty(e.ctx.Global, name)
		if err != nil {
			return value.Undef(), false, -1, err
		}
		fr.push(v)

	case bytecode.OpStoreGlobal:
		name := fr.fn.Consts[instr.Operand].Str
		if err := e.ctx.SetProperty(e.ctx.Global, name, fr.pop()); err != nil {
			return value.Undef(), false, -1, err
		}

	case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod,
		bytecode.OpEq, bytecode.OpNe, bytecode.OpLt, bytecode.OpLe, bytecode.OpGt, bytecode.OpGe:
		r, l := fr.pop(), fr.pop()
		result, err := binaryOp(instr.Op, l, r)
		if err != nil {
			return value.Undef(), false, -1, err
		}
		e.prof.RecordType(fr.fn.Name, pos, typeKindOf(result))
		fr.push(result)

	case bytecode.OpJump:
		return value.Undef(), false, instr.Operand, nil

	case bytecode.OpJumpIfFalse:
		cond := fr.pop()
		taken := !cond.IsTruthy()
		e.prof.RecordBranch(fr.fn.Name, pos, taken)
		if taken {
			return value.Undef(), false, instr.Operand, nil
		}

	case bytecode.OpCall:
		argc := instr.Operand
		args := make([]value.Value, argc)
		for i := argc - 1; i >= 0; i-- {
			args[i] = fr.pop()
		}
		callee := fr.pop()
		if callee.Kind() != value.Function {
			return value.Undef(), false, -1, engineerr.TypeErr("value is not callable")
		}
		if native, ok := e.ctx.Native(callee.Handle()); ok {
			result, err := native(e.ctx, value.Undef(), args)
			if err != nil {
				return value.Undef(), false, -1, err
			}
			fr.push(result)
			break
		}
		e.mu.Lock()
		target, ok := e.functionTemplates[callee.Handle()]
		e.mu.Unlock()
		if !ok {
			return value.Undef(), false, -1, engineerr.TypeErr("function has no compiled body")
		}
		result, err := e.run(ctx, target, args)
		if err != nil {
			return value.Undef(), false, -1, err
		}
		fr.push(result)

	case bytecode.OpReturn:
		return fr.pop(), true, -1, nil

	case bytecode.OpGetProp:
		obj := fr.pop()
		key := fr.fn.Consts[instr.Operand].Str
		v, err := e.ctx.GetProperty(obj.Handle(), key)
		if err != nil {
			return value.Undef(), false, -1, err
		}
		fr.push(v)

	case bytecode.OpSetProp:
		v := fr.pop()
		obj := fr.pop()
		key := fr.fn.Consts[instr.Operand].Str
		if err := e.ctx.SetProperty(obj.Handle(), key, v); err != nil {
			return value.Undef(), false, -1, err
		}

	case bytecode.OpGetElem:
		idx, arr := fr.pop(), fr.pop()
		fr.push(e.heap.GetElement(arr.Handle(), uint32(idx.ToInt32())))

	case bytecode.OpSetElem:
		v, idx, arr := fr.pop(), fr.pop(), fr.pop()
		e.heap.SetElement(arr.Handle(), uint32(idx.ToInt32()), v)

	case bytecode.OpNewObject:
		fr.push(value.Obj(e.heap.NewObject()))

	case bytecode.OpNewArray:
		h := e.heap.NewArray()
		fr.push(value.Arr(h))

	case bytecode.OpDup:
		if len(fr.stack) > 0 {
			fr.push(fr.stack[len(fr.stack)-1])
		}

	case bytecode.OpPop:
		fr.pop()

	case bytecode.OpNop:
		// safepoint placeholder; threshold/GC checks already ran above.

	case bytecode.OpNewFunction:
		h := e.heap.NewObject()
		// The nested function template lives in the owning Program's
		// flat function table, not inline in the bytecode stream (see
		// internal/bytecode's OpNewFunction doc): operand indexes
		// e.program.Functions directly.
		if e.program != nil && instr.Operand >= 0 && instr.Operand < len(e.program.Functions) {
			e.RegisterFunction(h, e.program.Functions[instr.Operand])
		}
		fr.push(value.Fn(h))

	default:
		return value.Undef(), false, -1, engineerr.Internal("unhandled opcode %s", instr.Op)
	}
	return value.Undef(), false, -1, nil
}

// RegisterFunction associates a function object's handle with its
// bytecode template, used by the (out-of-scope) frontend/builtins layer
// when constructing closures ahead of interpretation — the interpreter
// itself only consults this table on OpCall.
func (e *Engine) RegisterFunction(h value.Handle, fn *bytecode.Function) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.functionTemplates[h] = fn
}

// Context exposes the engine's execution context, e.g. for
// internal/builtins to declare native globals before Evaluate runs.
func (e *Engine) Context() *execctx.Context { return e.ctx }

// Heap exposes the engine's object heap for the same reason.
func (e *Engine) Heap() *heap.Heap { return e.heap }

// TriggerDebuggerDeopt forces a DebuggerAttached deopt on funcName, the
// hook internal/devtools exposes over its introspection bridge (spec
// §4.10's deopt reasons include attaching a debugger). A no-op before
// the first Evaluate call, since the dispatcher isn't constructed until
// there's a program to dispatch against.
func (e *Engine) TriggerDebuggerDeopt(funcName string) {
	e.mu.Lock()
	d := e.dispatcher
	e.mu.Unlock()
	if d != nil {
		d.OnGuardFailure(funcName, deopt.DebuggerAttached)
	}
}

func typeKindOf(v value.Value) profiler.TypeKind {
	switch v.Kind() {
	case value.Integer:
		return profiler.TypeInt32
	case value.Number:
		return profiler.TypeFloat64
	case value.Boolean:
		return profiler.TypeBoolean
	case value.String:
		return profiler.TypeString
	case value.Object, value.Array, value.Function:
		return profiler.TypeObject
	default:
		return profiler.TypeUnknown
	}
}

// binaryOp implements the arithmetic/comparison opcodes directly over
// value.Value (spec §4.1's ECMAScript-matching semantics), the
// interpreter's own evaluation of the same operators the IR's
// BinaryInstruction models for the compiled tiers.
func binaryOp(op bytecode.Op, l, r value.Value) (value.Value, *engineerr.EngineError) {
	switch op {
	case bytecode.OpAdd:
		if l.Kind() == value.String || r.Kind() == value.String {
			return value.Str(l.ToString() + r.ToString()), nil
		}
		return value.Num(l.ToNumber() + r.ToNumber()), nil
	case bytecode.OpSub:
		return value.Num(l.ToNumber() - r.ToNumber()), nil
	case bytecode.OpMul:
		return value.Num(l.ToNumber() * r.ToNumber()), nil
	case bytecode.OpDiv:
		return value.Num(l.ToNumber() / r.ToNumber()), nil
	case bytecode.OpMod:
		lf, rf := l.ToNumber(), r.ToNumber()
		return value.Num(lf - rf*float64(int64(lf/rf))), nil
	case bytecode.OpEq:
		return value.Bool(l.LooseEquals(r)), nil
	case bytecode.OpNe:
		return value.Bool(!l.LooseEquals(r)), nil
	case bytecode.OpLt:
		less, ok := l.Compare(r)
		return value.Bool(ok && less), nil
	case bytecode.OpGt:
		less, ok := r.Compare(l)
		return value.Bool(ok && less), nil
	case bytecode.OpLe:
		less, ok := r.Compare(l)
		return value.Bool(ok && !less), nil
	case bytecode.OpGe:
		less, ok := l.Compare(r)
		return value.Bool(ok && !less), nil
	default:
		return value.Undef(), engineerr.Internal("not a binary opcode: %s", op)
	}
}
