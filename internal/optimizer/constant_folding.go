package optimizer

import "aerojs/internal/ir"

// ConstantFolding folds arithmetic, comparison, and string concat on
// constant operands, replacing uses with a single new ConstantInstruction
// (spec §4.5 pass 1).
type ConstantFolding struct{}

func (c *ConstantFolding) Name() string { return "constant_folding" }

func (c *ConstantFolding) Apply(fn *ir.Function) bool {
	changed := false
	for _, blk := range fn.Blocks {
		constants := map[*ir.Value]interface{}{}
		newInsts := make([]ir.Instruction, 0, len(blk.Instructions))
		for _, inst := range blk.Instructions {
			if ci, ok := inst.(*ir.ConstantInstruction); ok {
				constants[ci.Result] = ci.Value
				newInsts = append(newInsts, inst)
				continue
			}
			bi, ok := inst.(*ir.BinaryInstruction)
			if !ok {
				newInsts = append(newInsts, inst)
				continue
			}
			lv, lok := constants[bi.Left]
			rv, rok := constants[bi.Right]
			if !lok || !rok {
				newInsts = append(newInsts, inst)
				continue
			}
			folded, ok := fold(bi.Op, lv, rv)
			if !ok {
				newInsts = append(newInsts, inst)
				continue
			}
			replacement := &ir.ConstantInstruction{ID: bi.ID, Result: bi.Result, Value: folded}
			replacement.SetBlock(blk)
			constants[bi.Result] = folded
			newInsts = append(newInsts, replacement)
			changed = true
		}
		blk.Instructions = newInsts
	}
	return changed
}

func fold(op string, l, r interface{}) (interface{}, bool) {
	lf, lok := asFloat(l)
	rf, rok := asFloat(r)
	if op == "add" {
		if ls, ok := l.(string); ok {
			if rs, ok := r.(string); ok {
				return ls + rs, true
			}
		}
	}
	if !lok || !rok {
		return nil, false
	}
	switch op {
	case "add", "int_add":
		sum := lf + rf
		if op == "int_add" && (sum > 2147483647 || sum < -2147483648) {
			return sum, true // overflow promotes to double, never an error (SPEC_FULL §9)
		}
		return sum, true
	case "sub":
		return lf - rf, true
	case "mul":
		return lf * rf, true
	case "div":
		if rf == 0 {
			return nil, false // division by zero: leave to runtime semantics, don't fold
		}
		return lf / rf, true
	case "mod":
		if rf == 0 {
			return nil, false
		}
		return float64(int64(lf) % int64(rf)), true
	case "eq", "strict_eq":
		return lf == rf, true
	case "ne", "strict_ne":
		return lf != rf, true
	case "lt":
		return lf < rf, true
	case "le":
		return lf <= rf, true
	case "gt":
		return lf > rf, true
	case "ge":
		return lf >= rf, true
	}
	return nil, false
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
