package optimizer

import "aerojs/internal/ir"

// DeadCodeElimination removes instructions whose results have no uses and
// which have no side effects (spec §4.5 pass 2). An instruction with a
// HeapEffect or CallEffect is kept regardless of use count, since removing
// it could be observable (a getter call, a heap write).
type DeadCodeElimination struct{}

func (d *DeadCodeElimination) Name() string { return "dce" }

func (d *DeadCodeElimination) Apply(fn *ir.Function) bool {
	changed := false
	// A value defined in one block may be used in another, so uses are
	// collected over the whole function before anything is removed.
	used := map[*ir.Value]bool{}
	for _, blk := range fn.Blocks {
		for v := range usedValues(blk) {
			used[v] = true
		}
	}
	for _, blk := range fn.Blocks {
		kept := make([]ir.Instruction, 0, len(blk.Instructions))
		for _, inst := range blk.Instructions {
			if shouldKeep(inst, used) {
				kept = append(kept, inst)
			} else {
				changed = true
			}
		}
		blk.Instructions = kept
	}
	return changed
}

func usedValues(blk *ir.BasicBlock) map[*ir.Value]bool {
	used := map[*ir.Value]bool{}
	for _, inst := range blk.Instructions {
		for _, op := range inst.GetOperands() {
			used[op] = true
		}
	}
	if blk.Terminator != nil {
		for _, op := range blk.Terminator.GetOperands() {
			used[op] = true
		}
	}
	// Values defined in this block may also be consumed by Phi nodes in
	// successor blocks; conservatively mark anything reaching a successor
	// phi as used.
	for _, succ := range blk.Successors {
		for _, inst := range succ.Instructions {
			phi, ok := inst.(*ir.PhiInstruction)
			if !ok {
				continue
			}
			for _, v := range phi.Inputs {
				used[v] = true
			}
		}
	}
	return used
}

func shouldKeep(inst ir.Instruction, used map[*ir.Value]bool) bool {
	for _, eff := range inst.GetEffects() {
		if eff.EffectKind() != "pure" {
			return true
		}
	}
	r := inst.GetResult()
	if r == nil {
		return true // no result to be dead: e.g. a pure instruction with no result is vacuous but harmless; keep conservatively
	}
	return used[r]
}
