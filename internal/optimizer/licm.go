package optimizer

import "aerojs/internal/ir"

// LoopInvariantCodeMotion hoists instructions whose operands are all
// defined outside the loop and which have no side effects (spec §4.5
// pass 4). Loops are detected structurally as a back edge: a block B with
// a successor H such that H dominates B (H is the loop header).
type LoopInvariantCodeMotion struct{}

func (l *LoopInvariantCodeMotion) Name() string { return "licm" }

func (l *LoopInvariantCodeMotion) Apply(fn *ir.Function) bool {
	changed := false
	for _, header := range fn.Blocks {
		body := findLoopBody(fn, header)
		if body == nil {
			continue
		}
		preheader := findOrSynthesizePreheader(fn, header)
		if preheader == nil {
			continue
		}
		definedInLoop := map[*ir.Value]bool{}
		for _, blk := range body {
			for _, inst := range blk.Instructions {
				if r := inst.GetResult(); r != nil {
					definedInLoop[r] = true
				}
			}
		}
		for _, blk := range body {
			kept := make([]ir.Instruction, 0, len(blk.Instructions))
			for _, inst := range blk.Instructions {
				if isPure(inst) && allOperandsOutside(inst, definedInLoop) {
					preheader.Instructions = append(preheader.Instructions, inst)
					inst.SetBlock(preheader)
					changed = true
					continue
				}
				kept = append(kept, inst)
			}
			blk.Instructions = kept
		}
	}
	return changed
}

func allOperandsOutside(inst ir.Instruction, definedInLoop map[*ir.Value]bool) bool {
	for _, op := range inst.GetOperands() {
		if definedInLoop[op] {
			return false
		}
	}
	return true
}

// findLoopBody returns the set of blocks belonging to the natural loop
// whose header is `header` (a back edge B->header exists where header
// dominates B), or nil if header is not a loop header.
func findLoopBody(fn *ir.Function, header *ir.BasicBlock) []*ir.BasicBlock {
	var backEdgeSrc *ir.BasicBlock
	for _, pred := range header.Predecessors {
		if dominates(header, pred) {
			backEdgeSrc = pred
			break
		}
	}
	if backEdgeSrc == nil {
		return nil
	}
	body := map[*ir.BasicBlock]bool{header: true}
	stack := []*ir.BasicBlock{backEdgeSrc}
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if body[b] {
			continue
		}
		body[b] = true
		for _, p := range b.Predecessors {
			if !body[p] {
				stack = append(stack, p)
			}
		}
	}
	out := make([]*ir.BasicBlock, 0, len(body))
	for _, blk := range fn.Blocks {
		if body[blk] {
			out = append(out, blk)
		}
	}
	return out
}

func dominates(a, b *ir.BasicBlock) bool {
	for cur := b; cur != nil; cur = cur.IDom {
		if cur == a {
			return true
		}
	}
	return a == b
}

// findOrSynthesizePreheader locates a unique predecessor of header that
// is outside the loop, to serve as the hoist target. When no such single
// predecessor exists (multiple loop entries), LICM conservatively
// declines rather than synthesizing a new block — the spec's hoist
// precondition ("operands defined outside the loop") is only safe to
// apply via a dedicated entry edge.
func findOrSynthesizePreheader(fn *ir.Function, header *ir.BasicBlock) *ir.BasicBlock {
	var outside []*ir.BasicBlock
	for _, pred := range header.Predecessors {
		if !dominates(header, pred) {
			outside = append(outside, pred)
		}
	}
	if len(outside) != 1 {
		return nil
	}
	return outside[0]
}
