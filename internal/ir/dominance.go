package ir

// computeDominance fills in IDom/Dominates for every block reachable from
// blocks[0] (the function entry), using the Cooper-Harvey-Kennedy
// iterative dominance algorithm. The optimizer's LICM/CSE passes and
// internal/regalloc's loop-depth weighting all read IDom, so this must
// run once the CFG's Predecessors/Successors are fully wired.
func computeDominance(blocks []*BasicBlock) {
	if len(blocks) == 0 {
		return
	}
	entry := blocks[0]
	rpo := reversePostorder(entry)
	index := make(map[*BasicBlock]int, len(rpo))
	for i, b := range rpo {
		index[b] = i
	}
	idom := make(map[*BasicBlock]*BasicBlock, len(rpo))
	idom[entry] = entry

	changed := true
	for changed {
		changed = false
		for _, b := range rpo {
			if b == entry {
				continue
			}
			var newIdom *BasicBlock
			for _, p := range b.Predecessors {
				if _, reachable := index[p]; !reachable || idom[p] == nil {
					continue
				}
				if newIdom == nil {
					newIdom = p
					continue
				}
				newIdom = intersectDominators(p, newIdom, idom, index)
			}
			if newIdom != nil && idom[b] != newIdom {
				idom[b] = newIdom
				changed = true
			}
		}
	}

	for _, b := range blocks {
		b.Dominates = nil
	}
	entry.IDom = nil
	for _, b := range blocks {
		if b == entry {
			continue
		}
		b.IDom = idom[b]
	}
	for _, b := range blocks {
		if b.IDom != nil {
			b.IDom.Dominates = append(b.IDom.Dominates, b)
		}
	}
}

// intersectDominators finds the nearest common ancestor of a and b in the
// dominator tree being built, walking each finger up via idom until the
// RPO indices agree (standard CHK "intersect").
func intersectDominators(a, b *BasicBlock, idom map[*BasicBlock]*BasicBlock, index map[*BasicBlock]int) *BasicBlock {
	for a != b {
		for index[a] > index[b] {
			a = idom[a]
		}
		for index[b] > index[a] {
			b = idom[b]
		}
	}
	return a
}

// reversePostorder walks the CFG depth-first from entry and returns blocks
// in reverse-postorder, the numbering CHK dominance requires.
func reversePostorder(entry *BasicBlock) []*BasicBlock {
	visited := make(map[*BasicBlock]bool)
	var order []*BasicBlock
	var walk func(b *BasicBlock)
	walk = func(b *BasicBlock) {
		if visited[b] {
			return
		}
		visited[b] = true
		for _, s := range b.Successors {
			walk(s)
		}
		order = append(order, b)
	}
	walk(entry)
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order
}
