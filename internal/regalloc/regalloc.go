// Package regalloc implements linear-scan register allocation over IR
// functions after all optimizer passes have run (spec §4.6). It assigns
// every SSA value a physical location — a register name or a stack
// slot — sized for the code generator's frame layout, and reports the
// callee-saved registers actually used so the prologue only saves what
// it must.
package regalloc

import (
	"sort"

	"aerojs/internal/ir"
)

// LocationKind distinguishes where an allocated Value lives.
type LocationKind int

const (
	InRegister LocationKind = iota
	InStackSlot
)

// Location is the physical home assigned to one IR value.
type Location struct {
	Kind LocationKind
	Reg  string // valid when Kind == InRegister
	Slot int    // valid when Kind == InStackSlot, 0-based slot index
}

func (l Location) String() string {
	if l.Kind == InRegister {
		return l.Reg
	}
	return "spill"
}

// Interval is one value's live range, expressed in the linear
// instruction-position numbering computePositions assigns (spec §4.6
// step 1: "start = definition index, end = last-use index").
type Interval struct {
	Value *ir.Value
	Start int
	End   int
	// Freq weights the spill heuristic; values live across a deeper loop
	// nest are costlier to spill (spec §4.6 step 4c: "(end-start)*frequency").
	Freq float64
}

func (iv *Interval) score() float64 {
	return float64(iv.End-iv.Start) * iv.Freq
}

// Allocation is the register allocator's output (spec §4.6 "Outputs").
type Allocation struct {
	Locations      map[*ir.Value]Location
	SpillSlots     int
	CalleeSaved    []string
	intervalsByVal map[*ir.Value]*Interval
}

// Allocate runs linear-scan allocation for fn against the given target
// ISA's general-purpose register set. calleeSaved names the subset of
// registers the ISA's calling convention requires the callee to
// preserve — only the ones actually assigned end up in
// Allocation.CalleeSaved.
func Allocate(fn *ir.Function, registers []string, calleeSaved map[string]bool) *Allocation {
	intervals := ComputeIntervals(fn)
	alloc := &Allocation{
		Locations:      make(map[*ir.Value]Location, len(intervals)),
		intervalsByVal: make(map[*ir.Value]*Interval, len(intervals)),
	}
	for _, iv := range intervals {
		alloc.intervalsByVal[iv.Value] = iv
	}

	free := make([]string, len(registers))
	copy(free, registers)

	type assigned struct {
		iv  *Interval
		reg string
	}
	var active []assigned
	usedCalleeSaved := map[string]bool{}
	nextSlot := 0

	takeFree := func() (string, bool) {
		if len(free) == 0 {
			return "", false
		}
		r := free[0]
		free = free[1:]
		return r, true
	}
	releaseFree := func(r string) { free = append(free, r) }

	expireBefore := func(start int) {
		kept := active[:0]
		for _, a := range active {
			if a.iv.End < start {
				releaseFree(a.reg)
				continue
			}
			kept = append(kept, a)
		}
		active = kept
	}

	spillToStack := func(iv *Interval) {
		alloc.Locations[iv.Value] = Location{Kind: InStackSlot, Slot: nextSlot}
		nextSlot++
	}

	for _, iv := range intervals {
		expireBefore(iv.Start)

		if reg, ok := takeFree(); ok {
			alloc.Locations[iv.Value] = Location{Kind: InRegister, Reg: reg}
			if calleeSaved[reg] {
				usedCalleeSaved[reg] = true
			}
			active = append(active, assigned{iv: iv, reg: reg})
			continue
		}

		// No free register: find the active interval with the largest
		// spill score (spec §4.6 step 4c).
		worstIdx := -1
		var worstScore float64
		for i, a := range active {
			s := a.iv.score()
			if worstIdx == -1 || s > worstScore {
				worstIdx = i
				worstScore = s
			}
		}
		if worstIdx >= 0 && worstScore > iv.score() {
			victim := active[worstIdx]
			spillToStack(victim.iv)
			alloc.Locations[iv.Value] = Location{Kind: InRegister, Reg: victim.reg}
			active[worstIdx] = assigned{iv: iv, reg: victim.reg}
		} else {
			spillToStack(iv)
		}
	}

	alloc.SpillSlots = nextSlot
	for reg := range usedCalleeSaved {
		alloc.CalleeSaved = append(alloc.CalleeSaved, reg)
	}
	coalesce(fn, alloc)
	return alloc
}

// ComputeIntervals walks fn's blocks in reverse postorder (the order the
// IR builder's dominance pass already visits blocks in, via Successors),
// assigning every instruction a linear position, then derives each
// value's [start,end] from its defining position and its uses' positions
// (spec §4.6 step 1). Sorted by Start per step 2.
func ComputeIntervals(fn *ir.Function) []*Interval {
	order := linearOrder(fn)
	pos := make(map[ir.Instruction]int, len(order))
	blockStart := make(map[*ir.BasicBlock]int)
	blockEnd := make(map[*ir.BasicBlock]int)
	p := 0
	for _, blk := range order {
		blockStart[blk] = p
		for _, inst := range blk.Instructions {
			pos[inst] = p
			p++
		}
		if blk.Terminator != nil {
			pos[blk.Terminator] = p
			p++
		}
		blockEnd[blk] = p - 1
	}

	depth := loopDepths(fn)

	starts := map[*ir.Value]int{}
	ends := map[*ir.Value]int{}
	order2 := []*ir.Value{}
	noteDef := func(v *ir.Value, at int) {
		if v == nil {
			return
		}
		if _, ok := starts[v]; !ok {
			order2 = append(order2, v)
		}
		starts[v] = at
		if _, ok := ends[v]; !ok {
			ends[v] = at
		}
	}
	noteUse := func(v *ir.Value, at int) {
		if v == nil {
			return
		}
		if _, ok := starts[v]; !ok {
			// used before any recorded def (e.g. a parameter): treat
			// function entry as its start.
			starts[v] = 0
			order2 = append(order2, v)
		}
		if at > ends[v] {
			ends[v] = at
		}
	}

	// Parameters are live from function entry.
	for _, pv := range fn.ParamLocals {
		noteDef(pv, 0)
	}

	for _, blk := range order {
		for _, inst := range blk.Instructions {
			at := pos[inst]
			if r := inst.GetResult(); r != nil {
				noteDef(r, at)
			}
			for _, op := range inst.GetOperands() {
				noteUse(op, at)
			}
		}
		if blk.Terminator != nil {
			at := pos[blk.Terminator]
			for _, op := range blk.Terminator.GetOperands() {
				noteUse(op, at)
			}
		}
	}

	intervals := make([]*Interval, 0, len(order2))
	for _, v := range order2 {
		blk := v.DefBlock
		freq := 1.0
		if blk != nil {
			freq = depth[blk]
		}
		intervals = append(intervals, &Interval{Value: v, Start: starts[v], End: ends[v], Freq: freq})
	}
	sort.Slice(intervals, func(i, j int) bool { return intervals[i].Start < intervals[j].Start })
	return intervals
}

// linearOrder returns fn's blocks in reverse postorder from the entry
// block, the traversal a linear-scan allocator assumes approximates
// execution order closely enough for live-range purposes.
func linearOrder(fn *ir.Function) []*ir.BasicBlock {
	if fn.Entry == nil {
		return fn.Blocks
	}
	visited := map[*ir.BasicBlock]bool{}
	var order []*ir.BasicBlock
	var walk func(b *ir.BasicBlock)
	walk = func(b *ir.BasicBlock) {
		if visited[b] {
			return
		}
		visited[b] = true
		for _, s := range b.Successors {
			walk(s)
		}
		order = append(order, b)
	}
	walk(fn.Entry)
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	// Any block unreachable from Entry (shouldn't normally happen) still
	// needs a position so every instruction has one.
	for _, b := range fn.Blocks {
		if !visited[b] {
			order = append(order, b)
		}
	}
	return order
}

// loopDepths weights each block by 10^(loop nesting depth), the common
// linear-scan heuristic for approximating execution frequency without a
// real profile: a back edge into a header whose IDom chain contains it
// marks every block in that natural loop one level deeper.
func loopDepths(fn *ir.Function) map[*ir.BasicBlock]float64 {
	depth := make(map[*ir.BasicBlock]float64, len(fn.Blocks))
	for _, b := range fn.Blocks {
		depth[b] = 1
	}
	for _, header := range fn.Blocks {
		body := loopBody(fn, header)
		if body == nil {
			continue
		}
		for _, b := range body {
			depth[b] *= 10
		}
	}
	return depth
}

func loopBody(fn *ir.Function, header *ir.BasicBlock) []*ir.BasicBlock {
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

// coalesce merges move-related intervals that do not interfere (spec
// §4.6 "Post-pass: register coalescing"): for each Phi, if an input
// value's interval does not overlap the Phi result's interval, the input
// is rewritten to share the result's location, eliminating a move the
// code generator would otherwise need to emit at the predecessor's edge.
func coalesce(fn *ir.Function, alloc *Allocation) {
	for _, blk := range fn.Blocks {
		for _, inst := range blk.Instructions {
			phi, ok := inst.(*ir.PhiInstruction)
			if !ok || phi.Result == nil {
				continue
			}
			resultLoc, ok := alloc.Locations[phi.Result]
			if !ok {
				continue
			}
			resultIv := alloc.intervalsByVal[phi.Result]
			for _, input := range phi.Inputs {
				inputIv := alloc.intervalsByVal[input]
				if inputIv == nil || resultIv == nil {
					continue
				}
				if intervalsOverlap(resultIv, inputIv) {
					continue
				}
				alloc.Locations[input] = resultLoc
			}
		}
	}
}

func intervalsOverlap(a, b *Interval) bool {
	return a.Start <= b.End && b.Start <= a.End
}
