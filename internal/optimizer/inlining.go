package optimizer

import "aerojs/internal/ir"

// Inlining replaces monomorphic Call instructions with the callee's IR
// when the callee is below an instruction budget and the inlining depth
// is not exceeded (spec §4.5 pass 5, defaults: budget 64, depth 3).
// Recursive calls are never inlined.
type Inlining struct {
	Program  *ir.Program
	Budget   int
	MaxDepth int
}

func (in *Inlining) Name() string { return "inlining" }

func (in *Inlining) Apply(fn *ir.Function) bool {
	if in.Program == nil {
		return false
	}
	return in.inlineFunction(fn, fn, 0)
}

func (in *Inlining) inlineFunction(fn, root *ir.Function, depth int) bool {
	if depth >= in.MaxDepth {
		return false
	}
	changed := false
	for _, blk := range fn.Blocks {
		newInsts := make([]ir.Instruction, 0, len(blk.Instructions))
		for _, inst := range blk.Instructions {
			call, ok := inst.(*ir.CallInstruction)
			if !ok {
				newInsts = append(newInsts, inst)
				continue
			}
			callee := in.resolveCallee(call, root)
			if callee == nil || callee == root || instructionCount(callee) > in.Budget {
				newInsts = append(newInsts, inst)
				continue
			}
			inlined, ok := inlineCallSite(call, callee)
			if !ok {
				newInsts = append(newInsts, inst)
				continue
			}
			newInsts = append(newInsts, inlined...)
			changed = true
		}
		blk.Instructions = newInsts
	}
	return changed
}

// resolveCallee looks up a named callee by the constant name folded onto
// the Call's callee operand by an earlier ConstantInstruction (a
// monomorphic call site profiled to always resolve to the same function,
// spec §4.5 "monomorphic call sites"). Anything else (computed callees,
// polymorphic sites) is left uninlined.
func (in *Inlining) resolveCallee(call *ir.CallInstruction, root *ir.Function) *ir.Function {
	if call.Callee == nil {
		return nil
	}
	def, ok := call.Callee.DefInst.(*ir.ConstantInstruction)
	if !ok {
		return nil
	}
	name, ok := def.Value.(string)
	if !ok {
		return nil
	}
	for _, f := range in.Program.Functions {
		if f.Name == name {
			if f == root {
				return nil // recursive calls are never inlined
			}
			return f
		}
	}
	return nil
}

func instructionCount(fn *ir.Function) int {
	n := 0
	for _, blk := range fn.Blocks {
		n += len(blk.Instructions)
	}
	return n
}

// inlineCallSite splices a single-block callee's body in place of a Call,
// renaming every value it defines (spec §4.5 pass 5 "replace the Call
// with the callee's IR, renaming values") and rewriting the caller's
// argument values in place of the callee's parameter-bound locals.
// Multi-block callees are left uninlined (ok=false) rather than risking
// an unsound partial splice across control flow the caller's single
// instruction list cannot represent.
func inlineCallSite(call *ir.CallInstruction, callee *ir.Function) ([]ir.Instruction, bool) {
	if len(callee.Blocks) != 1 {
		return nil, false
	}
	body := callee.Blocks[0]
	ret, ok := body.Terminator.(*ir.ReturnTerminator)
	if !ok {
		return nil, false
	}

	rename := map[*ir.Value]*ir.Value{}
	for i, arg := range call.Args {
		if i < len(callee.ParamLocals) {
			rename[callee.ParamLocals[i]] = arg
		}
	}
	renameVal := func(v *ir.Value) *ir.Value {
		if v == nil {
			return nil
		}
		if nv, ok := rename[v]; ok {
			return nv
		}
		nv := &ir.Value{Name: v.Name, Type: v.Type}
		rename[v] = nv
		return nv
	}

	out := make([]ir.Instruction, 0, len(body.Instructions))
	for _, inst := range body.Instructions {
		clone := cloneWithRename(inst, renameVal)
		if clone != nil {
			out = append(out, clone)
		}
	}

	// The callee's return value becomes an alias for the call's result:
	// retarget every use of call.Result the caller already built onto the
	// renamed return value instead of emitting a fresh instruction, since
	// the caller's own DCE/CSE passes canonicalize on *ir.Value identity.
	if ret.Value != nil && call.Result != nil {
		mapped := renameVal(ret.Value)
		*call.Result = *mapped
	}
	return out, true
}

// cloneWithRename duplicates inst with fresh Value identities, using
// renameVal to both remap existing operands and mint new result values.
func cloneWithRename(inst ir.Instruction, renameVal func(*ir.Value) *ir.Value) ir.Instruction {
	switch i := inst.(type) {
	case *ir.ConstantInstruction:
		return &ir.ConstantInstruction{ID: i.ID, Result: renameVal(i.Result), Value: i.Value}
	case *ir.BinaryInstruction:
		return &ir.BinaryInstruction{ID: i.ID, Result: renameVal(i.Result), Op: i.Op, Left: renameVal(i.Left), Right: renameVal(i.Right), Pos: i.Pos}
	case *ir.GetPropInstruction:
		return &ir.GetPropInstruction{ID: i.ID, Result: renameVal(i.Result), Object: renameVal(i.Object), Key: i.Key, SiteID: i.SiteID}
	case *ir.SetPropInstruction:
		return &ir.SetPropInstruction{ID: i.ID, Object: renameVal(i.Object), Key: i.Key, Value: renameVal(i.Value), SiteID: i.SiteID}
	case *ir.GetElemInstruction:
		return &ir.GetElemInstruction{ID: i.ID, Result: renameVal(i.Result), Array: renameVal(i.Array), Index: renameVal(i.Index)}
	case *ir.SetElemInstruction:
		return &ir.SetElemInstruction{ID: i.ID, Array: renameVal(i.Array), Index: renameVal(i.Index), Value: renameVal(i.Value)}
	case *ir.NewObjectInstruction:
		return &ir.NewObjectInstruction{ID: i.ID, Result: renameVal(i.Result)}
	case *ir.NewArrayInstruction:
		return &ir.NewArrayInstruction{ID: i.ID, Result: renameVal(i.Result), InitSize: i.InitSize}
	case *ir.TypeofInstruction:
		return &ir.TypeofInstruction{ID: i.ID, Result: renameVal(i.Result), Input: renameVal(i.Input)}
	default:
		return nil // terminators and other non-value-producing forms don't appear in an inlinable single-block body
	}
}
