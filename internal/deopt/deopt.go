// Package deopt implements the deoptimizer (spec §4.10): the registry of
// DeoptPoints a TypeGuard can trap to, live-value reconstruction back
// into interpreter-shaped frames, and the per-function deopt counter
// that marks a function "polluted" once guard failures recur.
//
// Deopt is modeled as an explicit value, never a panic/recover unwind
// (DESIGN NOTES §9 "Exception-based deopt control flow" — the
// dispatcher is expected to switch tiers on a returned Trap, not on a
// runtime panic).
package deopt

import (
	"fmt"
	"sync"

	"aerojs/internal/ir"
	"aerojs/internal/regalloc"
)

// Reason names why a guard trapped (spec §4.10 "Reasons recorded").
type Reason int

const (
	TypeFeedback Reason = iota
	NumericOverflow
	BailoutRequested
	DebuggerAttached
	TypeCheckFailed
)

func (r Reason) String() string {
	switch r {
	case TypeFeedback:
		return "type_feedback"
	case NumericOverflow:
		return "numeric_overflow"
	case BailoutRequested:
		return "bailout_requested"
	case DebuggerAttached:
		return "debugger_attached"
	case TypeCheckFailed:
		return "type_check_failed"
	default:
		return "unknown"
	}
}

// pollutedThreshold is the per-function deopt count at which further
// optimizing compiles are inhibited until profile data stabilizes (spec
// §4.10 "reaching a threshold (default 5) marks the function as
// polluted").
const pollutedThreshold = 5

// Point is one TypeGuard's (or other speculative instruction's) deopt
// target: the bytecode resume location and the set of IR values whose
// runtime locations must be read to rebuild the interpreter's frame.
type Point struct {
	ID             int
	FuncName       string
	BytecodeOffset int
	Live           []*ir.Value
}

// OSRPoint marks a bytecode offset a long-running loop may transition
// into compiled code from mid-execution (spec §4.10 "On-stack
// replacement"). The inverse transition (compiled -> interpreter) goes
// through Point/Reconstruct above; OSR is the interpreter-to-compiled
// direction.
type OSRPoint struct {
	ID             int
	FuncName       string
	BytecodeOffset int
}

// Registry is the engine-wide table of deopt points, OSR entries, and
// per-function pollution counters. Implements optimizer.DeoptSink.
type Registry struct {
	mu          sync.Mutex
	points      []*Point
	osrPoints   []*OSRPoint
	deoptCounts map[string]int
}

func NewRegistry() *Registry {
	return &Registry{deoptCounts: make(map[string]int)}
}

// Register records a new deopt point and returns its id, the seam the
// optimizer's type-specialization pass calls through optimizer.DeoptSink.
func (r *Registry) Register(funcName string, bytecodeOffset int, live []*ir.Value) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := len(r.points)
	r.points = append(r.points, &Point{ID: id, FuncName: funcName, BytecodeOffset: bytecodeOffset, Live: live})
	return id
}

// Point looks up a previously registered deopt point by id.
func (r *Registry) Point(id int) (*Point, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id < 0 || id >= len(r.points) {
		return nil, false
	}
	return r.points[id], true
}

// RegisterOSR records a new OSR entry point and returns its id.
func (r *Registry) RegisterOSR(funcName string, bytecodeOffset int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := len(r.osrPoints)
	r.osrPoints = append(r.osrPoints, &OSRPoint{ID: id, FuncName: funcName, BytecodeOffset: bytecodeOffset})
	return id
}

// OSRPointsFor returns every registered OSR entry for funcName.
func (r *Registry) OSRPointsFor(funcName string) []*OSRPoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*OSRPoint
	for _, p := range r.osrPoints {
		if p.FuncName == funcName {
			out = append(out, p)
		}
	}
	return out
}

// RecordDeopt increments funcName's deopt counter (spec §4.10 "A
// per-function deopt counter is incremented") and reports whether the
// function has now crossed pollutedThreshold.
func (r *Registry) RecordDeopt(funcName string, reason Reason) (count int, polluted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deoptCounts[funcName]++
	count = r.deoptCounts[funcName]
	return count, count >= pollutedThreshold
}

// IsPolluted reports whether funcName has crossed the pollution
// threshold and should stay off the optimizing-compile queue until its
// profile stabilizes (internal/dispatcher consults this before
// enqueuing an optimizing compile job).
func (r *Registry) IsPolluted(funcName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deoptCounts[funcName] >= pollutedThreshold
}

// PhysicalState is a snapshot of the trapping compiled frame: the saved
// register file and the spill-slot stack, read at the moment a guard
// failed (spec §4.10 step 2: "fetches its physical location (register
// via saved context, or stack slot via frame pointer + offset, or a
// constant)").
type PhysicalState struct {
	Registers map[string]interface{}
	Stack     []interface{} // indexed by regalloc.Location.Slot
}

// Frame is the reconstructed interpreter state the dispatcher resumes
// execution from (spec §4.10 step 3: "Reconstructs interpreter frames:
// function id + bytecode offset identify the resume point; values
// populate the interpreter's local/stack slots").
type Frame struct {
	FuncName       string
	BytecodeOffset int
	Values         map[*ir.Value]interface{}
}

// Reconstruct rebuilds the interpreter-shaped Frame for the trap at
// pointID, reading each live value's physical location out of alloc and
// state (spec §4.10 steps 2-3). Values whose defining instruction is a
// constant are read directly off the IR rather than from the physical
// snapshot, since a constant never occupies a register or spill slot
// after constant folding.
func (r *Registry) Reconstruct(pointID int, alloc *regalloc.Allocation, state PhysicalState) (*Frame, error) {
	point, ok := r.Point(pointID)
	if !ok {
		return nil, fmt.Errorf("deopt: unknown point id %d", pointID)
	}
	frame := &Frame{
		FuncName:       point.FuncName,
		BytecodeOffset: point.BytecodeOffset,
		Values:         make(map[*ir.Value]interface{}, len(point.Live)),
	}
	for _, v := range point.Live {
		if ci, ok := v.DefInst.(*ir.ConstantInstruction); ok {
			frame.Values[v] = ci.Value
			continue
		}
		loc, ok := alloc.Locations[v]
		if !ok {
			continue
		}
		switch loc.Kind {
		case regalloc.InRegister:
			frame.Values[v] = state.Registers[loc.Reg]
		case regalloc.InStackSlot:
			if loc.Slot >= 0 && loc.Slot < len(state.Stack) {
				frame.Values[v] = state.Stack[loc.Slot]
			}
		}
	}
	return frame, nil
}
