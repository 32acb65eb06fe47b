package ir

import (
	"fmt"

	"aerojs/internal/bytecode"
	"aerojs/internal/profiler"
)

// Builder converts one bytecode.Function into SSA IR (spec §4.4: "Builds
// the CFG by scanning branch targets in a first pass, then emits
// instructions in a second pass"). It is a direct generalization of the
// teacher's AST-to-IR lowering in structure (table dispatch per
// instruction, one Builder per function) even though the source shape
// changed from a parsed AST to a decoded bytecode stream.
type Builder struct {
	fn       *bytecode.Function
	prof     *profiler.Profiler
	funcName string

	nextValueID int
	nextInstID  int
	nextSiteID  int

	blocksByOffset map[int]*BasicBlock
	leaders        []int // sorted bytecode offsets that start a block

	locals []*Value // current SSA value bound to each local slot; carried from block to block in offset order during emission (no Phi nodes are inserted at joins)

	globalObj *Value // lazily materialized placeholder for Context.Global, shared by every OpLoadGlobal/OpStoreGlobal in this function
}

// NewBuilder constructs a Builder for fn, optionally consulting prof for
// type-hint metadata (may be nil, e.g. for a first baseline compile with
// no profile yet).
func NewBuilder(funcName string, fn *bytecode.Function, prof *profiler.Profiler) *Builder {
	return &Builder{
		fn:             fn,
		prof:           prof,
		funcName:       funcName,
		blocksByOffset: make(map[int]*BasicBlock),
		locals:         make([]*Value, fn.NumLocals),
	}
}

// Build runs the two-pass construction and returns the function's IR.
func (b *Builder) Build() *Function {
	b.bindParams()
	b.findLeaders()
	blocks := b.createBlocks()
	b.emitInstructions(blocks)
	b.wireEdges(blocks)
	computeDominance(blocks)

	out := &Function{
		Name:                b.funcName,
		ParamCount:          b.fn.ParamCount,
		NumLocals:           b.fn.NumLocals,
		Blocks:              blocks,
		BlockBytecodeOffset: make(map[string]int, len(blocks)),
		ParamLocals:         append([]*Value(nil), b.locals[:min(b.fn.ParamCount, len(b.locals))]...),
	}
	if len(blocks) > 0 {
		out.Entry = blocks[0]
	}
	for off, blk := range b.blocksByOffset {
		out.BlockBytecodeOffset[blk.Label] = off
	}
	return out
}

// findLeaders is the first pass: scan every instruction, marking a new
// block leader at offset 0, at every jump target, and at the instruction
// following every branch/jump (spec §4.4 "scanning branch targets in a
// first pass").
func (b *Builder) findLeaders() {
	isLeader := map[int]bool{0: true}
	code := b.fn.Code
	for i, instr := range code {
		switch instr.Op {
		case bytecode.OpJump, bytecode.OpJumpIfFalse:
			isLeader[instr.Operand] = true
			if i+1 < len(code) {
				isLeader[i+1] = true
			}
		}
	}
	for _, h := range b.fn.Handlers {
		isLeader[h.Target] = true
	}
	b.leaders = b.leaders[:0]
	for off := range isLeader {
		b.leaders = append(b.leaders, off)
	}
	sortInts(b.leaders)
}

// bindParams gives each parameter local slot an initial SSA value before
// lowering begins, so Function.ParamLocals can expose them to the
// optimizer's inlining pass.
func (b *Builder) bindParams() {
	for i := 0; i < b.fn.ParamCount && i < len(b.locals); i++ {
		b.locals[i] = b.newValue(AnyType{})
	}
}

func sortInts(xs []int) {
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j-1] > xs[j]; j-- {
			xs[j-1], xs[j] = xs[j], xs[j-1]
		}
	}
}

// createBlocks allocates one BasicBlock per leader, in offset order.
func (b *Builder) createBlocks() []*BasicBlock {
	blocks := make([]*BasicBlock, 0, len(b.leaders))
	for _, off := range b.leaders {
		blk := &BasicBlock{Label: fmt.Sprintf("bb%d", off)}
		b.blocksByOffset[off] = blk
		blocks = append(blocks, blk)
	}
	return blocks
}

// blockEnd returns the bytecode offset one past the end of the block
// starting at `start` (the next leader strictly greater than start, or
// len(code)).
func (b *Builder) blockEnd(start int) int {
	end := len(b.fn.Code)
	for _, off := range b.leaders {
		if off > start && off < end {
			end = off
		}
	}
	return end
}

// emitInstructions is the second pass: lower each block's bytecode range
// by table dispatch (spec §4.4 "Per basic block: bind the block's label,
// then lower each IR instruction by table dispatch").
func (b *Builder) emitInstructions(blocks []*BasicBlock) {
	var stack []*Value // simulated operand stack, block-local
	for _, start := range b.leaders {
		blk := b.blocksByOffset[start]
		end := b.blockEnd(start)
		stack = stack[:0]
		for pc := start; pc < end; pc++ {
			instr := b.fn.Code[pc]
			b.lower(blk, instr, pc, &stack)
		}
		if blk.Terminator == nil {
			b.terminateFallthrough(blk, end)
		}
	}
}

func (b *Builder) newValue(t Type) *Value {
	v := &Value{ID: b.nextValueID, Type: t}
	b.nextValueID++
	return v
}

func (b *Builder) append(blk *BasicBlock, inst Instruction) {
	inst.SetBlock(blk)
	blk.Instructions = append(blk.Instructions, inst)
}

func (b *Builder) nextID() int {
	id := b.nextInstID
	b.nextInstID++
	return id
}

func (b *Builder) siteID() int {
	id := b.nextSiteID
	b.nextSiteID++
	return id
}

// lower table-dispatches one bytecode instruction onto blk, using stack
// as the (block-local) simulated evaluation stack the bytecode targets.
func (b *Builder) lower(blk *BasicBlock, instr bytecode.Instr, pc int, stack *[]*Value) {
	pop := func() *Value {
		n := len(*stack)
		if n == 0 {
			return b.newValue(AnyType{}) // malformed input stream; degrade gracefully
		}
		v := (*stack)[n-1]
		*stack = (*stack)[:n-1]
		return v
	}
	push := func(v *Value) { *stack = append(*stack, v) }

	switch instr.Op {
	case bytecode.OpLoadConst:
		r := b.newValue(b.hintType(pc))
		idx := instr.Operand
		var lit interface{}
		if idx >= 0 && idx < len(b.fn.Consts) {
			c := b.fn.Consts[idx]
			switch {
			case c.IsNum:
				lit = c.Num
			case c.IsStr:
				lit = c.Str
			case c.IsBool:
				lit = c.Bool
			case c.IsNull:
				lit = nil
			default:
				lit = "undefined"
			}
		}
		b.append(blk, &ConstantInstruction{ID: b.nextID(), Result: r, Value: lit})
		push(r)

	case bytecode.OpLoadVar:
		slot := instr.Operand
		if slot >= 0 && slot < len(b.locals) && b.locals[slot] != nil {
			push(b.locals[slot])
			return
		}
		r := b.newValue(b.hintType(pc))
		b.append(blk, &ConstantInstruction{ID: b.nextID(), Result: r, Value: "undefined"})
		if slot >= 0 && slot < len(b.locals) {
			b.locals[slot] = r
		}
		push(r)

	case bytecode.OpStoreVar:
		v := pop()
		slot := instr.Operand
		if slot >= 0 && slot < len(b.locals) {
			b.locals[slot] = v
		}

	case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod,
		bytecode.OpEq, bytecode.OpNe, bytecode.OpLt, bytecode.OpLe, bytecode.OpGt, bytecode.OpGe:
		right, left := pop(), pop()
		op := binOpName(instr.Op)
		// '+' is int_add only when the profile shows a stable int32 site;
		// otherwise it stays the generic, ECMAScript-dispatching "add"
		// (string concatenation vs numeric addition decided at runtime).
		if instr.Op == bytecode.OpAdd && b.intAddCandidate(pc) {
			op = "int_add"
		}
		r := b.newValue(b.hintType(pc))
		b.append(blk, &BinaryInstruction{ID: b.nextID(), Result: r, Op: op, Left: left, Right: right, Pos: pc})
		push(r)

	case bytecode.OpJump:
		b.makeJump(blk, instr.Operand)

	case bytecode.OpJumpIfFalse:
		cond := pop()
		b.makeBranch(blk, cond, pc+1, instr.Operand)

	case bytecode.OpCall:
		argc := instr.Operand
		args := make([]*Value, argc)
		for i := argc - 1; i >= 0; i-- {
			args[i] = pop()
		}
		callee := pop()
		r := b.newValue(AnyType{})
		b.append(blk, &CallInstruction{ID: b.nextID(), Result: r, Callee: callee, Args: args, SiteID: b.siteID()})
		push(r)

	case bytecode.OpReturn:
		var v *Value
		if len(*stack) > 0 {
			v = pop()
		}
		t := &ReturnTerminator{ID: b.nextID(), Value: v}
		blk.Terminator = t
		t.SetBlock(blk)

	case bytecode.OpGetProp:
		obj := pop()
		key := b.constName(instr.Operand)
		r := b.newValue(b.hintType(pc))
		b.append(blk, &GetPropInstruction{ID: b.nextID(), Result: r, Object: obj, Key: key, SiteID: b.siteID()})
		push(r)

	case bytecode.OpSetProp:
		v, obj := pop(), pop()
		key := b.constName(instr.Operand)
		b.append(blk, &SetPropInstruction{ID: b.nextID(), Object: obj, Key: key, Value: v, SiteID: b.siteID()})

	case bytecode.OpGetElem:
		idx, arr := pop(), pop()
		r := b.newValue(b.hintType(pc))
		b.append(blk, &GetElemInstruction{ID: b.nextID(), Result: r, Array: arr, Index: idx})
		push(r)

	case bytecode.OpSetElem:
		v, idx, arr := pop(), pop(), pop()
		b.append(blk, &SetElemInstruction{ID: b.nextID(), Array: arr, Index: idx, Value: v})

	case bytecode.OpNewObject:
		r := b.newValue(ObjectTypeT{})
		b.append(blk, &NewObjectInstruction{ID: b.nextID(), Result: r})
		push(r)

	case bytecode.OpNewArray:
		r := b.newValue(ObjectTypeT{})
		b.append(blk, &NewArrayInstruction{ID: b.nextID(), Result: r, InitSize: instr.Operand})
		push(r)

	case bytecode.OpDup:
		if len(*stack) > 0 {
			push((*stack)[len(*stack)-1])
		}
	case bytecode.OpPop:
		pop()
	case bytecode.OpNop:
		// safepoint placeholder, no IR emitted
	case bytecode.OpNewFunction:
		r := b.newValue(ObjectTypeT{})
		b.append(blk, &ConstantInstruction{ID: b.nextID(), Result: r, Value: fmt.Sprintf("<function#%d>", instr.Operand)})
		push(r)

	case bytecode.OpLoadGlobal:
		key := b.constName(instr.Operand)
		r := b.newValue(b.hintType(pc))
		b.append(blk, &GetPropInstruction{ID: b.nextID(), Result: r, Object: b.global(blk), Key: key, SiteID: b.siteID()})
		push(r)

	case bytecode.OpStoreGlobal:
		v := pop()
		key := b.constName(instr.Operand)
		b.append(blk, &SetPropInstruction{ID: b.nextID(), Object: b.global(blk), Key: key, Value: v, SiteID: b.siteID()})
	}
}

// global returns the placeholder IR value standing in for Context.Global,
// materializing it once per function — OpLoadGlobal/OpStoreGlobal have no
// bytecode-level push for "the global object" the way OpGetProp/OpSetProp
// expect an object already on the stack, so the builder synthesizes one.
func (b *Builder) global(blk *BasicBlock) *Value {
	if b.globalObj == nil {
		b.globalObj = b.newValue(ObjectTypeT{})
		b.append(blk, &ConstantInstruction{ID: b.nextID(), Result: b.globalObj, Value: "<global>"})
	}
	return b.globalObj
}

func (b *Builder) makeJump(blk *BasicBlock, target int) {
	t := &JumpTerminator{ID: b.nextID(), Target: b.blocksByOffset[target]}
	blk.Terminator = t
	t.SetBlock(blk)
}

func (b *Builder) makeBranch(blk *BasicBlock, cond *Value, fallthroughOff, target int) {
	t := &BranchTerminator{
		ID:         b.nextID(),
		Condition:  cond,
		FalseBlock: b.blocksByOffset[target],
		TrueBlock:  b.blocksByOffset[fallthroughOff],
	}
	blk.Terminator = t
	t.SetBlock(blk)
}

// terminateFallthrough handles a block that ran off its end without a
// bytecode-level Jump/Branch/Return: it falls through to the next block
// in offset order, or returns undefined if it was the last block.
func (b *Builder) terminateFallthrough(blk *BasicBlock, end int) {
	if next, ok := b.blocksByOffset[end]; ok {
		t := &JumpTerminator{ID: b.nextID(), Target: next}
		blk.Terminator = t
		t.SetBlock(blk)
		return
	}
	t := &ReturnTerminator{ID: b.nextID()}
	blk.Terminator = t
	t.SetBlock(blk)
}

// wireEdges fills in Predecessors/Successors from each block's terminator.
func (b *Builder) wireEdges(blocks []*BasicBlock) {
	for _, blk := range blocks {
		if blk.Terminator == nil {
			continue
		}
		for _, succ := range blk.Terminator.GetSuccessors() {
			if succ == nil {
				continue
			}
			blk.Successors = append(blk.Successors, succ)
			succ.Predecessors = append(succ.Predecessors, blk)
		}
	}
}

func (b *Builder) constName(idx int) string {
	if idx >= 0 && idx < len(b.fn.Consts) {
		return b.fn.Consts[idx].Str
	}
	return ""
}

// hintType attaches profiler type-hint metadata to the value produced at
// bytecode offset pc, per spec §4.4 "At each site with profile data,
// attaches type hints as metadata on the produced IR values (used later
// by the specializer)". Falls back to AnyType when no profile exists yet
// (first baseline compile) or the site is not type-stable.
func (b *Builder) hintType(pc int) Type {
	if b.prof == nil {
		return AnyType{}
	}
	kind, stable := b.prof.DominantType(b.funcName, pc)
	if !stable {
		return AnyType{}
	}
	switch kind {
	case profiler.TypeInt32:
		return Int32Type{}
	case profiler.TypeFloat64:
		return Float64Type{}
	case profiler.TypeBoolean:
		return BooleanType{}
	case profiler.TypeString:
		return StringTypeT{}
	case profiler.TypeObject:
		return ObjectTypeT{}
	default:
		return AnyType{}
	}
}

// intAddCandidate reports whether an Add bytecode site at pc should be
// lowered as the specialized int_add opcode rather than generic add,
// based on profiled type stability (spec §4.5 pass 7 "Type
// specialization" folded forward into the builder for the common,
// already-stable case; the optimizer's own pass 7 still runs to catch
// sites that become stable only after this compile).
func (b *Builder) intAddCandidate(pc int) bool {
	if b.prof == nil {
		return false
	}
	kind, stable := b.prof.DominantType(b.funcName, pc)
	return stable && kind == profiler.TypeInt32
}

func binOpName(op bytecode.Op) string {
	switch op {
	case bytecode.OpAdd:
		return "add"
	case bytecode.OpSub:
		return "sub"
	case bytecode.OpMul:
		return "mul"
	case bytecode.OpDiv:
		return "div"
	case bytecode.OpMod:
		return "mod"
	case bytecode.OpEq:
		return "eq"
	case bytecode.OpNe:
		return "ne"
	case bytecode.OpLt:
		return "lt"
	case bytecode.OpLe:
		return "le"
	case bytecode.OpGt:
		return "gt"
	case bytecode.OpGe:
		return "ge"
	default:
		return "unknown"
	}
}
