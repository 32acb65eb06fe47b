package optimizer

import (
	"fmt"

	"aerojs/internal/ir"
)

// CommonSubexpressionElimination hashes instructions by (opcode, operand
// ids), canonicalizing equivalent pure values within a block (spec §4.5
// pass 3: "works per-block (CSE) and across the dominator tree (GVN)").
// The cross-block GVN half walks dominator parents via BasicBlock.IDom,
// which internal/ir's builder populates for every function as soon as its
// CFG is wired; absent IDom info (a hand-built ir.Function in a test, say)
// this degrades gracefully to per-block CSE only.
type CommonSubexpressionElimination struct{}

func (c *CommonSubexpressionElimination) Name() string { return "cse" }

func (c *CommonSubexpressionElimination) Apply(fn *ir.Function) bool {
	changed := false
	tables := map[*ir.BasicBlock]map[string]*ir.Value{} // value numbers defined in each block
	for _, blk := range fn.Blocks {
		// Seed with the value numbers of every block on blk's dominator
		// chain (GVN); a block with no IDom starts empty.
		local := map[string]*ir.Value{}
		for d := blk.IDom; d != nil; d = d.IDom {
			for k, v := range tables[d] {
				local[k] = v
			}
		}
		tables[blk] = map[string]*ir.Value{}
		kept := make([]ir.Instruction, 0, len(blk.Instructions))
		for _, inst := range blk.Instructions {
			if !isPure(inst) || inst.GetResult() == nil {
				kept = append(kept, inst)
				continue
			}
			key := valueNumberKey(inst)
			if key == "" {
				kept = append(kept, inst)
				continue
			}
			if existing, ok := local[key]; ok {
				replaceUses(fn, inst.GetResult(), existing)
				changed = true
				continue
			}
			local[key] = inst.GetResult()
			tables[blk][key] = inst.GetResult()
			kept = append(kept, inst)
		}
		blk.Instructions = kept
	}
	return changed
}

func isPure(inst ir.Instruction) bool {
	for _, eff := range inst.GetEffects() {
		if eff.EffectKind() != "pure" {
			return false
		}
	}
	return true
}

func valueNumberKey(inst ir.Instruction) string {
	switch i := inst.(type) {
	case *ir.BinaryInstruction:
		return fmt.Sprintf("bin:%s:%d:%d", i.Op, i.Left.ID, i.Right.ID)
	case *ir.TypeofInstruction:
		return fmt.Sprintf("typeof:%d", i.Input.ID)
	case *ir.ConstantInstruction:
		return fmt.Sprintf("const:%v", i.Value)
	default:
		return ""
	}
}

// replaceUses rewrites every use of old across the function to point at
// repl, keeping SSA's single-definition invariant intact since old's
// defining instruction is being dropped by the caller.
func replaceUses(fn *ir.Function, old, repl *ir.Value) {
	for _, blk := range fn.Blocks {
		for _, inst := range blk.Instructions {
			replaceOperand(inst, old, repl)
		}
		if blk.Terminator != nil {
			replaceOperand(blk.Terminator, old, repl)
		}
	}
}

func replaceOperand(inst ir.Instruction, old, repl *ir.Value) {
	switch i := inst.(type) {
	case *ir.BinaryInstruction:
		if i.Left == old {
			i.Left = repl
		}
		if i.Right == old {
			i.Right = repl
		}
	case *ir.TypeofInstruction:
		if i.Input == old {
			i.Input = repl
		}
	case *ir.InstanceofInstruction:
		if i.Left == old {
			i.Left = repl
		}
		if i.Right == old {
			i.Right = repl
		}
	case *ir.GetPropInstruction:
		if i.Object == old {
			i.Object = repl
		}
	case *ir.SetPropInstruction:
		if i.Object == old {
			i.Object = repl
		}
		if i.Value == old {
			i.Value = repl
		}
	case *ir.GetElemInstruction:
		if i.Array == old {
			i.Array = repl
		}
		if i.Index == old {
			i.Index = repl
		}
	case *ir.SetElemInstruction:
		if i.Array == old {
			i.Array = repl
		}
		if i.Index == old {
			i.Index = repl
		}
		if i.Value == old {
			i.Value = repl
		}
	case *ir.CallInstruction:
		if i.Callee == old {
			i.Callee = repl
		}
		for j, a := range i.Args {
			if a == old {
				i.Args[j] = repl
			}
		}
	case *ir.TypeGuardInstruction:
		if i.Input == old {
			i.Input = repl
		}
	case *ir.ReturnTerminator:
		if i.Value == old {
			i.Value = repl
		}
	case *ir.BranchTerminator:
		if i.Condition == old {
			i.Condition = repl
		}
	case *ir.PhiInstruction:
		for k, v := range i.Inputs {
			if v == old {
				i.Inputs[k] = repl
			}
		}
	}
}
