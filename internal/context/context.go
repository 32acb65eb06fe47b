// Package context implements the execution context: lexical scopes, the
// global object, the current-error slot, execution counters, and the
// small set of configuration knobs the rest of the engine consults
// (spec §2 "Context", §4.2 "Context operations"). Grounded on
// internal/semantic/symbols.go's SymbolTable parent-chain shape,
// generalized from a compile-time symbol table to a runtime scope chain.
package context

import (
	"aerojs/internal/engineerr"
	"aerojs/internal/heap"
	"aerojs/internal/value"
)

// BindingKind distinguishes let/const/var mutability (spec §4.2
// "declare_variable distinguishes let/const/var binding kinds").
type BindingKind uint8

const (
	BindingVar BindingKind = iota
	BindingLet
	BindingConst
)

type binding struct {
	value    value.Value
	kind     BindingKind
	assigned bool
}

// scope is one keyed map in the lexical scope stack.
type scope struct {
	vars map[string]*binding
}

func newScope() *scope { return &scope{vars: make(map[string]*binding)} }

// Config carries the engine's configuration knobs (spec §2 "Context" /
// spec §6 "EngineConfig"): strict mode, sandboxing, the execution-limit
// instruction budget, debug mode, and the GC cadence resolved in
// SPEC_FULL §11 (deterministic tick counter, not wall clock).
type Config struct {
	Strict         bool
	Sandboxed      bool
	ExecutionLimit uint64 // 0 means unlimited
	DebugMode      bool
	GCFrequency    uint64 // collect every N safepoints reached; 0 disables
}

// Context is the per-evaluation execution state (spec §2 "Context").
// One Context belongs to exactly one execution thread; it is not shared
// across goroutines (spec §5 "One execution thread runs JS; its state
// ... is not shared").
type Context struct {
	Heap   *heap.Heap
	Global value.Handle

	scopes []*scope
	config Config

	currentError *engineerr.EngineError

	instructionsExecuted uint64
	gcCount              uint64
	safepointsSinceGC    uint64

	natives    map[value.Handle]NativeFunc
	nextNative value.Handle
}

// NativeFunc is the calling convention builtins register under (spec §6
// "Context API consumed by builtins"): a Go function invoked with the
// receiver and argument list exactly as a bytecode-level OpCall would
// supply them.
type NativeFunc func(ctx *Context, this value.Value, args []value.Value) (value.Value, *engineerr.EngineError)

// firstNativeHandle reserves the upper half of the Handle space for
// native function markers, so they never collide with heap.Heap's
// sequential object IDs (which start at 1 and grow from the bottom).
const firstNativeHandle value.Handle = 1 << 31

// RegisterNative mints a callable Function value for fn without
// installing it anywhere — for builtins nested under a namespace object
// (Math.abs, Object.keys) rather than the global object directly.
func (c *Context) RegisterNative(fn NativeFunc) value.Value {
	if c.natives == nil {
		c.natives = make(map[value.Handle]NativeFunc)
		c.nextNative = firstNativeHandle
	}
	c.nextNative++
	h := c.nextNative
	c.natives[h] = fn
	return value.Fn(h)
}

// DefineNative registers fn as a global native function callable from
// bytecode under name, and returns the Function value installed on the
// global object (spec §4.2a "builtins registration surface").
func (c *Context) DefineNative(name string, fn NativeFunc) value.Value {
	v := c.RegisterNative(fn)
	c.SetProperty(c.Global, name, v)
	return v
}

// Native looks up a registered native function by its Function value
// handle. The interpreter's OpCall path consults this before falling
// back to a bytecode function template.
func (c *Context) Native(h value.Handle) (NativeFunc, bool) {
	fn, ok := c.natives[h]
	return fn, ok
}

// New constructs a Context with a fresh global object and one base scope.
func New(h *heap.Heap, cfg Config) *Context {
	ctx := &Context{
		Heap:   h,
		Global: h.NewObject(),
		config: cfg,
	}
	ctx.PushScope()
	return ctx
}

// PushScope opens a new lexical scope on call/block entry (spec §2
// "push_scope on call/block entry").
func (c *Context) PushScope() { c.scopes = append(c.scopes, newScope()) }

// PopScope closes the innermost lexical scope on exit (spec §2
// "pop_scope on exit"). Popping the base scope is a programming error in
// the caller and is ignored rather than panicking, since a context must
// remain usable for the next evaluate() call (spec §8 scenario 6).
func (c *Context) PopScope() {
	if len(c.scopes) <= 1 {
		return
	}
	c.scopes = c.scopes[:len(c.scopes)-1]
}

// ScopeDepth reports the number of lexical scopes currently pushed.
func (c *Context) ScopeDepth() int { return len(c.scopes) }

// DeclareVariable introduces a new binding in the innermost scope with the
// given binding kind (spec §4.2 "declare_variable distinguishes let/const/
// var binding kinds with appropriate mutability"). The binding always goes
// into whichever scope is currently innermost; Context does no `var`
// hoisting of its own.
func (c *Context) DeclareVariable(name string, v value.Value, kind BindingKind) {
	s := c.scopes[len(c.scopes)-1]
	s.vars[name] = &binding{value: v, kind: kind, assigned: true}
}

// SetVariable assigns to an existing binding, walking outward from the
// innermost scope, and falls back to creating/overwriting a global-object
// property if no lexical binding exists — matching "set_variable(name,
// value) in innermost scope" together with get_variable's fallback to the
// global object (spec §4.2).
func (c *Context) SetVariable(name string, v value.Value) *engineerr.EngineError {
	for i := len(c.scopes) - 1; i >= 0; i-- {
		if b, ok := c.scopes[i].vars[name]; ok {
			if b.kind == BindingConst && b.assigned {
				return c.fail(engineerr.TypeErr("assignment to constant variable %q", name))
			}
			b.value = v
			b.assigned = true
			return nil
		}
	}
	return c.SetProperty(c.Global, name, v)
}

// GetVariable walks the scope chain from innermost outward and finally
// consults the global object (spec §2, §4.2). A missing binding is a
// ReferenceError.
func (c *Context) GetVariable(name string) (value.Value, *engineerr.EngineError) {
	for i := len(c.scopes) - 1; i >= 0; i-- {
		if b, ok := c.scopes[i].vars[name]; ok {
			return b.value, nil
		}
	}
	if _, _, ok := c.Heap.GetProperty(c.Global, name); ok {
		return c.GetProperty(c.Global, name)
	}
	return value.Undef(), c.fail(engineerr.Reference("%s is not defined", name))
}

// GetProperty walks the prototype chain (spec §4.2 "get_property").
// Absence is not a failure: it returns Undefined with no error, matching
// ECMAScript semantics and the Heap-level contract. When the resolved
// property is an accessor, its getter is invoked with `this` bound to obj,
// the original receiver, rather than whichever prototype-chain link the
// accessor was actually found on.
func (c *Context) GetProperty(obj value.Handle, key string) (value.Value, *engineerr.EngineError) {
	prop, _, ok := c.Heap.GetProperty(obj, key)
	if !ok {
		return value.Undef(), nil
	}
	if prop.Getter != nil {
		getter, ok := c.Native(*prop.Getter)
		if !ok {
			return value.Undef(), c.fail(engineerr.TypeErr("property %q has no callable getter", key))
		}
		v, err := getter(c, value.Obj(obj), nil)
		if err != nil {
			return value.Undef(), c.fail(err)
		}
		return v, nil
	}
	return prop.Value, nil
}

// SetProperty writes a property, respecting Writable (spec §4.2
// "set_property"). Failures are both returned and stashed in the
// current-error slot, per the context's single-slot failure convention.
// When obj has an own accessor at key, its setter is invoked with `this`
// bound to obj instead of writing the descriptor's Value directly.
func (c *Context) SetProperty(obj value.Handle, key string, v value.Value) *engineerr.EngineError {
	if o := c.Heap.Object(obj); o != nil {
		if prop, ok := o.OwnProperty(key); ok && prop.Setter != nil {
			setter, ok := c.Native(*prop.Setter)
			if !ok {
				return c.fail(engineerr.TypeErr("property %q has no callable setter", key))
			}
			if _, err := setter(c, value.Obj(obj), []value.Value{v}); err != nil {
				return c.fail(err)
			}
			return nil
		}
	}
	if err := c.Heap.SetProperty(obj, key, v, c.config.Strict); err != nil {
		if ee, ok := err.(*engineerr.EngineError); ok {
			return c.fail(ee)
		}
		return c.fail(engineerr.Internal("%v", err))
	}
	return nil
}

// DefineAccessor installs an accessor property on obj backed by native
// getter/setter functions (spec §4.2's accessor contract). Either half may
// be nil for a getter-only or setter-only accessor.
func (c *Context) DefineAccessor(obj value.Handle, key string, getter, setter NativeFunc, enumerable bool) error {
	var g, s *value.Handle
	if getter != nil {
		h := c.RegisterNative(getter).Handle()
		g = &h
	}
	if setter != nil {
		h := c.RegisterNative(setter).Handle()
		s = &h
	}
	return c.Heap.DefineAccessor(obj, key, g, s, enumerable, true)
}

// fail stashes err in the current-error slot and returns it, realizing
// "Operations that fail set it and return a sentinel Undefined; callers
// check and propagate" (spec §2 "Failure semantics").
func (c *Context) fail(err *engineerr.EngineError) *engineerr.EngineError {
	c.currentError = err
	return err
}

// CurrentError returns the context's current-error slot.
func (c *Context) CurrentError() *engineerr.EngineError { return c.currentError }

// ClearError resets the current-error slot, done once a caught exception
// has been handled by a try/catch frame (spec §7).
func (c *Context) ClearError() { c.currentError = nil }

// CheckSandbox rejects filesystem/eval-style operations when sandboxed
// mode is configured (spec §2 "Sandboxed mode rejects filesystem/eval
// operations with SecurityError").
func (c *Context) CheckSandbox(operation string) *engineerr.EngineError {
	if !c.config.Sandboxed {
		return nil
	}
	return c.fail(engineerr.Security("%s is not permitted in sandboxed mode", operation))
}

// Config returns the context's configuration.
func (c *Context) Config() Config { return c.config }

// Tick advances the instruction counter by n and raises
// ExecutionLimitExceeded once the configured limit has been crossed at the
// next safepoint (spec §2 "If the execution-limit counter is exceeded,
// the next safepoint raises ExecutionLimitExceeded, which is
// non-recoverable inside the offending call"). It also drives the
// deterministic GC cadence resolved in SPEC_FULL §11: GCFrequency counts
// safepoints, not wall-clock time.
func (c *Context) Tick(n uint64) *engineerr.EngineError {
	c.instructionsExecuted += n
	c.safepointsSinceGC++
	if c.config.ExecutionLimit != 0 && c.instructionsExecuted > c.config.ExecutionLimit {
		return c.fail(engineerr.ExecutionLimitExceeded(c.config.ExecutionLimit))
	}
	return nil
}

// ShouldCollect reports whether the configured GC cadence has elapsed
// since the last collection. It does not reset the cadence counter: the
// dispatcher/engine layer is responsible for actually invoking
// Heap.CollectGarbage and then calling NoteGC, which resets it.
func (c *Context) ShouldCollect() bool {
	if c.config.GCFrequency == 0 {
		return false
	}
	return c.safepointsSinceGC >= c.config.GCFrequency
}

// NoteGC records that a collection cycle ran, resetting the cadence
// counter and bumping the GC counter exposed via Stats.
func (c *Context) NoteGC() {
	c.safepointsSinceGC = 0
	c.gcCount++
}

// InstructionsExecuted reports the running instruction counter.
func (c *Context) InstructionsExecuted() uint64 { return c.instructionsExecuted }

// GCCount reports how many collection cycles this context has driven.
func (c *Context) GCCount() uint64 { return c.gcCount }
