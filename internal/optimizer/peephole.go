package optimizer

import "aerojs/internal/ir"

// Peephole applies local rewrite rules: x+0 -> x, x*1 -> x, x*2^n -> a
// left-shift encoded as a tagged BinaryInstruction ("shl") (spec §4.5
// pass 8). There is no zero-extend rule: the IR has no zero-extend
// instruction for one to remove. Identity rewrites replace the
// instruction's uses with the simplified operand rather than emitting a
// new instruction, so later DCE can drop whichever producer becomes dead.
type Peephole struct{}

func (p *Peephole) Name() string { return "peephole" }

func (p *Peephole) Apply(fn *ir.Function) bool {
	changed := false
	for _, blk := range fn.Blocks {
		for _, inst := range blk.Instructions {
			bi, ok := inst.(*ir.BinaryInstruction)
			if !ok {
				continue
			}
			if simplifyIdentity(fn, bi) {
				changed = true
			}
		}
	}
	return changed
}

func simplifyIdentity(fn *ir.Function, bi *ir.BinaryInstruction) bool {
	switch bi.Op {
	case "add", "int_add":
		if isConstZero(bi.Right) {
			replaceUses(fn, bi.Result, bi.Left)
			return true
		}
		if isConstZero(bi.Left) {
			replaceUses(fn, bi.Result, bi.Right)
			return true
		}
	case "mul":
		if isConstOne(bi.Right) {
			replaceUses(fn, bi.Result, bi.Left)
			return true
		}
		if isConstOne(bi.Left) {
			replaceUses(fn, bi.Result, bi.Right)
			return true
		}
		if n, ok := constPowerOfTwoExponent(bi.Right); ok {
			bi.Op = "shl"
			bi.Right = &ir.Value{Type: ir.Int32Type{}, DefInst: &ir.ConstantInstruction{Value: float64(n)}}
			return true
		}
	}
	return false
}

func isConstZero(v *ir.Value) bool {
	ci, ok := v.DefInst.(*ir.ConstantInstruction)
	if !ok {
		return false
	}
	n, ok := ci.Value.(float64)
	return ok && n == 0
}

func isConstOne(v *ir.Value) bool {
	ci, ok := v.DefInst.(*ir.ConstantInstruction)
	if !ok {
		return false
	}
	n, ok := ci.Value.(float64)
	return ok && n == 1
}

// constPowerOfTwoExponent reports n such that v is the constant 2^n, for
// n in [1,30] (beyond that a shift no longer models JS's int32 domain
// faithfully).
func constPowerOfTwoExponent(v *ir.Value) (int, bool) {
	ci, ok := v.DefInst.(*ir.ConstantInstruction)
	if !ok {
		return 0, false
	}
	f, ok := ci.Value.(float64)
	if !ok || f != float64(int64(f)) {
		return 0, false
	}
	n := int64(f)
	if n <= 1 {
		return 0, false
	}
	exp := 0
	for n > 1 {
		if n%2 != 0 {
			return 0, false
		}
		n /= 2
		exp++
	}
	if exp > 30 {
		return 0, false
	}
	return exp, true
}
