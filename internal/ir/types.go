// Package ir implements AeroJS's SSA-form intermediate representation
// (spec §4.4 "bytecode -> IR"). Every value has exactly one definition,
// control joins are represented with Phi nodes, and basic blocks form a
// standard CFG with dominance information for the optimizer passes in
// internal/optimizer.
//
// This is a direct generalization of the teacher's EVM-oriented IR: the
// Program/Function/BasicBlock/Value/Instruction/Terminator shapes are
// kept, the EVM-specific instruction set (storage slots, LOG, ABI
// encoding, keccak event signatures) is replaced with the JS-engine
// instruction set from spec §4.4/§4.5 (property/element access, type
// guards, JS arithmetic with overflow promotion, calls, phi).
package ir

import "fmt"

// Program is the IR for one compilation unit: a script plus every
// function nested or hoisted out of it (spec §3 "Function").
type Program struct {
	Functions []*Function
	Entry     int // index into Functions of the top-level script function
}

// Function is one function's IR body (spec §4.4: "functions are compiled
// independently; a CompileJob targets exactly one Function").
type Function struct {
	Name       string
	ParamCount int
	NumLocals  int
	Entry      *BasicBlock
	Blocks     []*BasicBlock
	// BytecodeOffset of each block's first instruction, keyed by block
	// label, so deopt points and OSR entries can map back to bytecode
	// (spec §4.10 "Deoptimization").
	BlockBytecodeOffset map[string]int
	// ParamLocals holds the SSA value initially bound to each parameter
	// local slot (index 0..ParamCount-1), so the optimizer's inlining
	// pass can rename a callee's parameter uses to the caller's argument
	// values at a splice site.
	ParamLocals []*Value
}

// BasicBlock is a straight-line instruction sequence ending in exactly
// one Terminator.
type BasicBlock struct {
	Label        string
	Instructions []Instruction
	Terminator   Terminator
	Predecessors []*BasicBlock
	Successors   []*BasicBlock
	// Dominance, filled in by computeDominance during Builder.Build (used by
	// LICM and the register allocator's live-interval computation).
	IDom      *BasicBlock
	Dominates []*BasicBlock
}

// Value is an SSA value: exactly one definition, any number of uses.
type Value struct {
	ID      int
	Name    string // empty for anonymous temporaries
	Type    Type
	DefBlock *BasicBlock
	DefInst  Instruction
	Uses     []*Use
}

func (v *Value) String() string {
	if v.Name != "" {
		return v.Name
	}
	return fmt.Sprintf("%%%d", v.ID)
}

// Use records one use site of a Value, kept so optimizer passes (DCE,
// CSE) can query and rewrite use lists without a full scan.
type Use struct {
	Value *Value
	User  Instruction
	Block *BasicBlock
}

// Type is the IR's static type lattice (spec §3 "Type lattice"): the
// unknown/dynamic top, Any (boxed, unconstrained), the type-guarded
// specializations (Int32, Float64, Boolean, StringT, ObjectT) the
// optimizer installs after a TypeGuard, and Bottom for unreachable code.
type Type interface {
	String() string
	// Specialized reports whether this type is narrower than Any — i.e.
	// whether code guarded to this type can use an unboxed fast path.
	Specialized() bool
}

type AnyType struct{}
type Int32Type struct{}
type Float64Type struct{}
type BooleanType struct{}
type StringTypeT struct{}
type ObjectTypeT struct{}
type BottomType struct{}

func (AnyType) String() string      { return "any" }
func (Int32Type) String() string    { return "int32" }
func (Float64Type) String() string  { return "float64" }
func (BooleanType) String() string  { return "boolean" }
func (StringTypeT) String() string  { return "string" }
func (ObjectTypeT) String() string  { return "object" }
func (BottomType) String() string   { return "⊥" }

func (AnyType) Specialized() bool     { return false }
func (Int32Type) Specialized() bool   { return true }
func (Float64Type) Specialized() bool { return true }
func (BooleanType) Specialized() bool { return true }
func (StringTypeT) Specialized() bool { return true }
func (ObjectTypeT) Specialized() bool { return true }
func (BottomType) Specialized() bool  { return true }

// Instruction is any non-terminating IR operation.
type Instruction interface {
	GetID() int
	GetResult() *Value
	GetOperands() []*Value
	GetBlock() *BasicBlock
	SetBlock(*BasicBlock)
	IsTerminator() bool
	String() string
	GetEffects() []Effect
}

// Terminator ends a basic block and names its successors.
type Terminator interface {
	Instruction
	GetSuccessors() []*BasicBlock
}

// Effect describes an instruction's side effect, used by CSE/DCE/LICM to
// decide what may be reordered or eliminated (spec §4.5 passes).
type Effect interface{ EffectKind() string }

type PureEffect struct{}

func (PureEffect) EffectKind() string { return "pure" }

// HeapEffect marks an instruction that reads or writes heap-resident
// object/array state (property or element access) — not reorderable
// across another HeapEffect of the same kind without alias analysis the
// optimizer does not attempt, so CSE/LICM treat any two HeapEffects as
// conservatively conflicting.
type HeapEffect struct{ Write bool }

func (HeapEffect) EffectKind() string { return "heap" }

// CallEffect marks an instruction that may call into arbitrary user code
// (property getters, user functions) and therefore may itself observe or
// mutate anything — the most conservative effect kind.
type CallEffect struct{}

func (CallEffect) EffectKind() string { return "call" }

// --- Core SSA instructions ---

type PhiInstruction struct {
	ID     int
	Result *Value
	Block  *BasicBlock
	Inputs map[*BasicBlock]*Value
}

func (p *PhiInstruction) GetID() int        { return p.ID }
func (p *PhiInstruction) GetResult() *Value { return p.Result }
func (p *PhiInstruction) GetOperands() []*Value {
	ops := make([]*Value, 0, len(p.Inputs))
	for _, v := range p.Inputs {
		ops = append(ops, v)
	}
	return ops
}
func (p *PhiInstruction) GetBlock() *BasicBlock  { return p.Block }
func (p *PhiInstruction) SetBlock(b *BasicBlock) { p.Block = b }
func (p *PhiInstruction) IsTerminator() bool     { return false }
func (p *PhiInstruction) GetEffects() []Effect   { return []Effect{PureEffect{}} }
func (p *PhiInstruction) String() string {
	return fmt.Sprintf("%s = phi %v", p.Result, p.Inputs)
}

// ConstantInstruction materializes a literal (spec bytecode LoadConst).
type ConstantInstruction struct {
	ID     int
	Result *Value
	Block  *BasicBlock
	Value  interface{}
}

func (c *ConstantInstruction) GetID() int            { return c.ID }
func (c *ConstantInstruction) GetResult() *Value     { return c.Result }
func (c *ConstantInstruction) GetOperands() []*Value { return nil }
func (c *ConstantInstruction) GetBlock() *BasicBlock  { return c.Block }
func (c *ConstantInstruction) SetBlock(b *BasicBlock) { c.Block = b }
func (c *ConstantInstruction) IsTerminator() bool     { return false }
func (c *ConstantInstruction) GetEffects() []Effect   { return []Effect{PureEffect{}} }
func (c *ConstantInstruction) String() string {
	return fmt.Sprintf("%s = const %v", c.Result, c.Value)
}

// BinaryInstruction covers arithmetic/comparison ops. Op is one of:
// "int_add", "add" (JS '+' with string/number dispatch), "sub", "mul",
// "div", "mod", "eq", "ne", "lt", "le", "gt", "ge", "strict_eq",
// "strict_ne". IntAdd is its own op (not generic Add) because it carries
// the always-promote-to-double overflow policy (spec §9 Open Question,
// resolved in SPEC_FULL §9): on int32 overflow the result type degrades
// to Float64Type rather than wrapping.
type BinaryInstruction struct {
	ID     int
	Result *Value
	Block  *BasicBlock
	Op     string
	Left   *Value
	Right  *Value
	// Pos is the originating bytecode offset (spec §4.4 "metadata attached
	// at build time"), the key the profiler's type samples are recorded
	// under (engine.go's interpreter loop calls RecordType(fn, pos, ...)).
	// The optimizer's type-specialization pass queries the profiler by
	// this, not by ID — IR value/instruction ids and bytecode positions
	// are disjoint counters.
	Pos int
}

func (b *BinaryInstruction) GetID() int            { return b.ID }
func (b *BinaryInstruction) GetResult() *Value     { return b.Result }
func (b *BinaryInstruction) GetOperands() []*Value { return []*Value{b.Left, b.Right} }
func (b *BinaryInstruction) GetBlock() *BasicBlock  { return b.Block }
func (b *BinaryInstruction) SetBlock(bl *BasicBlock) { b.Block = bl }
func (b *BinaryInstruction) IsTerminator() bool      { return false }
func (b *BinaryInstruction) GetEffects() []Effect    { return []Effect{PureEffect{}} }
func (b *BinaryInstruction) String() string {
	return fmt.Sprintf("%s = %s %s, %s", b.Result, b.Op, b.Left, b.Right)
}

// TypeGuardInstruction asserts a value has a specialized type, installed
// by the optimizer's type-specialization pass when profiling shows ≥95%
// stability at a site (spec §4.7 "Inline caches" / §4.5 optimizer).
// Guard failure triggers a deopt back to the interpreter at this point.
type TypeGuardInstruction struct {
	ID       int
	Result   *Value
	Block    *BasicBlock
	Input    *Value
	Expected Type
	DeoptID  int // internal/deopt.DeoptPoint id to resume at on failure
}

func (t *TypeGuardInstruction) GetID() int            { return t.ID }
func (t *TypeGuardInstruction) GetResult() *Value     { return t.Result }
func (t *TypeGuardInstruction) GetOperands() []*Value { return []*Value{t.Input} }
func (t *TypeGuardInstruction) GetBlock() *BasicBlock  { return t.Block }
func (t *TypeGuardInstruction) SetBlock(b *BasicBlock) { t.Block = b }
func (t *TypeGuardInstruction) IsTerminator() bool     { return false }
func (t *TypeGuardInstruction) GetEffects() []Effect   { return []Effect{PureEffect{}} }
func (t *TypeGuardInstruction) String() string {
	return fmt.Sprintf("%s = guard %s as %s, deopt #%d", t.Result, t.Input, t.Expected, t.DeoptID)
}

// TypeofInstruction implements the `typeof` operator.
type TypeofInstruction struct {
	ID     int
	Result *Value
	Block  *BasicBlock
	Input  *Value
}

func (t *TypeofInstruction) GetID() int            { return t.ID }
func (t *TypeofInstruction) GetResult() *Value     { return t.Result }
func (t *TypeofInstruction) GetOperands() []*Value { return []*Value{t.Input} }
func (t *TypeofInstruction) GetBlock() *BasicBlock  { return t.Block }
func (t *TypeofInstruction) SetBlock(b *BasicBlock) { t.Block = b }
func (t *TypeofInstruction) IsTerminator() bool     { return false }
func (t *TypeofInstruction) GetEffects() []Effect   { return []Effect{PureEffect{}} }
func (t *TypeofInstruction) String() string         { return fmt.Sprintf("%s = typeof %s", t.Result, t.Input) }

// InstanceofInstruction implements `instanceof`, walking the candidate's
// prototype chain against Right's "prototype" property at runtime.
type InstanceofInstruction struct {
	ID     int
	Result *Value
	Block  *BasicBlock
	Left   *Value
	Right  *Value
}

func (i *InstanceofInstruction) GetID() int            { return i.ID }
func (i *InstanceofInstruction) GetResult() *Value     { return i.Result }
func (i *InstanceofInstruction) GetOperands() []*Value { return []*Value{i.Left, i.Right} }
func (i *InstanceofInstruction) GetBlock() *BasicBlock  { return i.Block }
func (i *InstanceofInstruction) SetBlock(b *BasicBlock) { i.Block = b }
func (i *InstanceofInstruction) IsTerminator() bool     { return false }
func (i *InstanceofInstruction) GetEffects() []Effect   { return []Effect{CallEffect{}} }
func (i *InstanceofInstruction) String() string {
	return fmt.Sprintf("%s = instanceof %s, %s", i.Result, i.Left, i.Right)
}

// GetPropInstruction / SetPropInstruction are the IR forms of Context's
// get_property/set_property (spec §4.2), keyed by an inline-cache site id
// so internal/inlinecache can attach polymorphic dispatch (spec §4.7).
type GetPropInstruction struct {
	ID     int
	Result *Value
	Block  *BasicBlock
	Object *Value
	Key    string
	SiteID int
}

func (g *GetPropInstruction) GetID() int            { return g.ID }
func (g *GetPropInstruction) GetResult() *Value     { return g.Result }
func (g *GetPropInstruction) GetOperands() []*Value { return []*Value{g.Object} }
func (g *GetPropInstruction) GetBlock() *BasicBlock  { return g.Block }
func (g *GetPropInstruction) SetBlock(b *BasicBlock) { g.Block = b }
func (g *GetPropInstruction) IsTerminator() bool     { return false }
func (g *GetPropInstruction) GetEffects() []Effect   { return []Effect{HeapEffect{}, CallEffect{}} }
func (g *GetPropInstruction) String() string {
	return fmt.Sprintf("%s = get_prop %s.%s [site #%d]", g.Result, g.Object, g.Key, g.SiteID)
}

type SetPropInstruction struct {
	ID     int
	Block  *BasicBlock
	Object *Value
	Key    string
	Value  *Value
	SiteID int
}

func (s *SetPropInstruction) GetID() int            { return s.ID }
func (s *SetPropInstruction) GetResult() *Value     { return nil }
func (s *SetPropInstruction) GetOperands() []*Value { return []*Value{s.Object, s.Value} }
func (s *SetPropInstruction) GetBlock() *BasicBlock  { return s.Block }
func (s *SetPropInstruction) SetBlock(b *BasicBlock) { s.Block = b }
func (s *SetPropInstruction) IsTerminator() bool     { return false }
func (s *SetPropInstruction) GetEffects() []Effect   { return []Effect{HeapEffect{Write: true}, CallEffect{}} }
func (s *SetPropInstruction) String() string {
	return fmt.Sprintf("set_prop %s.%s = %s [site #%d]", s.Object, s.Key, s.Value, s.SiteID)
}

// GetElemInstruction / SetElemInstruction are the array-indexing
// counterparts (spec §3 "Array").
type GetElemInstruction struct {
	ID     int
	Result *Value
	Block  *BasicBlock
	Array  *Value
	Index  *Value
}

func (g *GetElemInstruction) GetID() int            { return g.ID }
func (g *GetElemInstruction) GetResult() *Value     { return g.Result }
func (g *GetElemInstruction) GetOperands() []*Value { return []*Value{g.Array, g.Index} }
func (g *GetElemInstruction) GetBlock() *BasicBlock  { return g.Block }
func (g *GetElemInstruction) SetBlock(b *BasicBlock) { g.Block = b }
func (g *GetElemInstruction) IsTerminator() bool     { return false }
func (g *GetElemInstruction) GetEffects() []Effect   { return []Effect{HeapEffect{}} }
func (g *GetElemInstruction) String() string {
	return fmt.Sprintf("%s = get_elem %s[%s]", g.Result, g.Array, g.Index)
}

type SetElemInstruction struct {
	ID    int
	Block *BasicBlock
	Array *Value
	Index *Value
	Value *Value
}

func (s *SetElemInstruction) GetID() int            { return s.ID }
func (s *SetElemInstruction) GetResult() *Value     { return nil }
func (s *SetElemInstruction) GetOperands() []*Value { return []*Value{s.Array, s.Index, s.Value} }
func (s *SetElemInstruction) GetBlock() *BasicBlock  { return s.Block }
func (s *SetElemInstruction) SetBlock(b *BasicBlock) { s.Block = b }
func (s *SetElemInstruction) IsTerminator() bool     { return false }
func (s *SetElemInstruction) GetEffects() []Effect   { return []Effect{HeapEffect{Write: true}} }
func (s *SetElemInstruction) String() string {
	return fmt.Sprintf("set_elem %s[%s] = %s", s.Array, s.Index, s.Value)
}

// NewObjectInstruction / NewArrayInstruction allocate heap objects.
type NewObjectInstruction struct {
	ID     int
	Result *Value
	Block  *BasicBlock
}

func (n *NewObjectInstruction) GetID() int            { return n.ID }
func (n *NewObjectInstruction) GetResult() *Value     { return n.Result }
func (n *NewObjectInstruction) GetOperands() []*Value { return nil }
func (n *NewObjectInstruction) GetBlock() *BasicBlock  { return n.Block }
func (n *NewObjectInstruction) SetBlock(b *BasicBlock) { n.Block = b }
func (n *NewObjectInstruction) IsTerminator() bool     { return false }
func (n *NewObjectInstruction) GetEffects() []Effect   { return []Effect{HeapEffect{Write: true}} }
func (n *NewObjectInstruction) String() string         { return fmt.Sprintf("%s = new_object", n.Result) }

type NewArrayInstruction struct {
	ID       int
	Result   *Value
	Block    *BasicBlock
	InitSize int
}

func (n *NewArrayInstruction) GetID() int            { return n.ID }
func (n *NewArrayInstruction) GetResult() *Value     { return n.Result }
func (n *NewArrayInstruction) GetOperands() []*Value { return nil }
func (n *NewArrayInstruction) GetBlock() *BasicBlock  { return n.Block }
func (n *NewArrayInstruction) SetBlock(b *BasicBlock) { n.Block = b }
func (n *NewArrayInstruction) IsTerminator() bool     { return false }
func (n *NewArrayInstruction) GetEffects() []Effect   { return []Effect{HeapEffect{Write: true}} }
func (n *NewArrayInstruction) String() string {
	return fmt.Sprintf("%s = new_array(%d)", n.Result, n.InitSize)
}

// CallInstruction calls fn with args; may be inlined by the optimizer's
// inlining pass (budget 64 instructions, depth 3, spec §4.5).
type CallInstruction struct {
	ID     int
	Result *Value
	Block  *BasicBlock
	Callee *Value
	Args   []*Value
	SiteID int
}

func (c *CallInstruction) GetID() int            { return c.ID }
func (c *CallInstruction) GetResult() *Value     { return c.Result }
func (c *CallInstruction) GetOperands() []*Value { return append([]*Value{c.Callee}, c.Args...) }
func (c *CallInstruction) GetBlock() *BasicBlock  { return c.Block }
func (c *CallInstruction) SetBlock(b *BasicBlock) { c.Block = b }
func (c *CallInstruction) IsTerminator() bool     { return false }
func (c *CallInstruction) GetEffects() []Effect   { return []Effect{CallEffect{}} }
func (c *CallInstruction) String() string {
	return fmt.Sprintf("%s = call %s(%v) [site #%d]", c.Result, c.Callee, c.Args, c.SiteID)
}

// DeoptimizeInstruction is an explicit bailout to the interpreter,
// inserted by the optimizer wherever a TypeGuard or other speculative
// assumption could fail (spec §4.10 "Deoptimization").
type DeoptimizeInstruction struct {
	ID      int
	Block   *BasicBlock
	DeoptID int
	Reason  string
}

func (d *DeoptimizeInstruction) GetID() int            { return d.ID }
func (d *DeoptimizeInstruction) GetResult() *Value     { return nil }
func (d *DeoptimizeInstruction) GetOperands() []*Value { return nil }
func (d *DeoptimizeInstruction) GetBlock() *BasicBlock  { return d.Block }
func (d *DeoptimizeInstruction) SetBlock(b *BasicBlock) { d.Block = b }
func (d *DeoptimizeInstruction) IsTerminator() bool     { return false }
func (d *DeoptimizeInstruction) GetEffects() []Effect   { return []Effect{CallEffect{}} }
func (d *DeoptimizeInstruction) String() string {
	return fmt.Sprintf("deoptimize #%d (%s)", d.DeoptID, d.Reason)
}

// --- Terminators ---

type ReturnTerminator struct {
	ID    int
	Block *BasicBlock
	Value *Value
}

func (r *ReturnTerminator) GetID() int        { return r.ID }
func (r *ReturnTerminator) GetResult() *Value { return nil }
func (r *ReturnTerminator) GetOperands() []*Value {
	if r.Value != nil {
		return []*Value{r.Value}
	}
	return nil
}
func (r *ReturnTerminator) GetBlock() *BasicBlock        { return r.Block }
func (r *ReturnTerminator) SetBlock(b *BasicBlock)       { r.Block = b }
func (r *ReturnTerminator) IsTerminator() bool           { return true }
func (r *ReturnTerminator) GetEffects() []Effect         { return []Effect{PureEffect{}} }
func (r *ReturnTerminator) GetSuccessors() []*BasicBlock { return nil }
func (r *ReturnTerminator) String() string               { return fmt.Sprintf("return %v", r.Value) }

type BranchTerminator struct {
	ID         int
	Block      *BasicBlock
	Condition  *Value
	TrueBlock  *BasicBlock
	FalseBlock *BasicBlock
}

func (b *BranchTerminator) GetID() int            { return b.ID }
func (b *BranchTerminator) GetResult() *Value     { return nil }
func (b *BranchTerminator) GetOperands() []*Value { return []*Value{b.Condition} }
func (b *BranchTerminator) GetBlock() *BasicBlock  { return b.Block }
func (b *BranchTerminator) SetBlock(bl *BasicBlock) { b.Block = bl }
func (b *BranchTerminator) IsTerminator() bool      { return true }
func (b *BranchTerminator) GetEffects() []Effect    { return []Effect{PureEffect{}} }
func (b *BranchTerminator) GetSuccessors() []*BasicBlock {
	return []*BasicBlock{b.TrueBlock, b.FalseBlock}
}
func (b *BranchTerminator) String() string {
	return fmt.Sprintf("branch %s ? %s : %s", b.Condition, b.TrueBlock.Label, b.FalseBlock.Label)
}

type JumpTerminator struct {
	ID     int
	Block  *BasicBlock
	Target *BasicBlock
}

func (j *JumpTerminator) GetID() int                   { return j.ID }
func (j *JumpTerminator) GetResult() *Value            { return nil }
func (j *JumpTerminator) GetOperands() []*Value        { return nil }
func (j *JumpTerminator) GetBlock() *BasicBlock        { return j.Block }
func (j *JumpTerminator) SetBlock(b *BasicBlock)       { j.Block = b }
func (j *JumpTerminator) IsTerminator() bool           { return true }
func (j *JumpTerminator) GetEffects() []Effect         { return []Effect{PureEffect{}} }
func (j *JumpTerminator) GetSuccessors() []*BasicBlock { return []*BasicBlock{j.Target} }
func (j *JumpTerminator) String() string               { return fmt.Sprintf("jump %s", j.Target.Label) }
