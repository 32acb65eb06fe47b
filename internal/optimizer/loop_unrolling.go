package optimizer

import "aerojs/internal/ir"

// LoopUnrolling unrolls a loop by a factor chosen from {2,4,8} based on
// body size (<10 instructions -> 8, <20 -> 4, else -> 2). It computes no
// trip count: Threshold is stored but not read, so no loop is fully
// unrolled and a short loop gets the same size-based factor as any other.
//
// This implementation targets the single most common and safely
// transformable shape: a single-block loop body (header doubles as the
// only body block) with no nested control flow, so duplication cannot
// create dangling edges. Multi-block loop bodies are left as-is — a
// documented scope limit rather than a silent unsound transform.
type LoopUnrolling struct {
	Threshold int
}

func (l *LoopUnrolling) Name() string { return "loop_unrolling" }

func (l *LoopUnrolling) Apply(fn *ir.Function) bool {
	changed := false
	for _, header := range fn.Blocks {
		body := findLoopBody(fn, header)
		if len(body) != 1 || body[0] != header {
			continue // only single-block loop bodies are unrolled
		}
		factor := unrollFactor(len(header.Instructions))
		if factor <= 1 {
			continue
		}
		duplicated := make([]ir.Instruction, 0, len(header.Instructions)*factor)
		// rep 0 keeps original value identities so anything defined outside
		// the loop and consumed inside stays correctly linked; later
		// repetitions get fresh identities for every value the body itself
		// defines, preserving SSA's single-definition invariant.
		rename := map[*ir.Value]*ir.Value{}
		for rep := 0; rep < factor; rep++ {
			for _, inst := range header.Instructions {
				if rep == 0 {
					duplicated = append(duplicated, inst)
					continue
				}
				renameVal := func(v *ir.Value) *ir.Value {
					if v == nil {
						return nil
					}
					if nv, ok := rename[v]; ok {
						return nv
					}
					return v
				}
				clone := cloneWithRename(inst, renameVal)
				if clone == nil {
					clone = inst
				} else if r := inst.GetResult(); r != nil {
					rename[r] = clone.GetResult()
				}
				duplicated = append(duplicated, clone)
			}
		}
		header.Instructions = duplicated
		changed = true
	}
	return changed
}

func unrollFactor(bodySize int) int {
	switch {
	case bodySize < 10:
		return 8
	case bodySize < 20:
		return 4
	default:
		return 2
	}
}
