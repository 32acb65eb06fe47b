// Package optimizer implements the optimizing tier's IR-to-IR passes
// (spec §4.5 "Optimizer"). The Pass/Pipeline shape is a direct
// generalization of the teacher's internal/ir OptimizationPass /
// OptimizationPipeline (originally gas-efficiency passes over an EVM IR);
// the passes themselves are new, targeting spec §4.5's eight named JS
// optimizations instead of storage/gas concerns.
package optimizer

import (
	"aerojs/internal/ir"
	"aerojs/internal/profiler"
)

// Pass is one idempotent, independently enable-able IR transformation.
type Pass interface {
	Name() string
	// Apply mutates fn in place and reports whether it changed anything.
	Apply(fn *ir.Function) bool
}

// Level gates which passes run, folding super_optimizing_jit.cpp's
// "extra aggressive tier" concept into a single optimizing tier whose
// depth scales with optimization_level (0-3) rather than adding a fourth
// compilation tier — see SPEC_FULL §11 / DESIGN.md.
type Level int

const (
	LevelNone Level = iota
	LevelBasic
	LevelDefault
	LevelAggressive
)

// passSet names which passes each Level enables, in spec §4.5 order.
var passSet = map[Level][]string{
	LevelNone:       {},
	LevelBasic:      {"constant_folding", "dce"},
	LevelDefault:    {"constant_folding", "dce", "cse", "licm", "inlining", "peephole"},
	LevelAggressive: {"constant_folding", "dce", "cse", "licm", "inlining", "loop_unrolling", "type_specialization", "peephole"},
}

// Pipeline runs a fixed, ordered set of passes to a fixpoint (or a bounded
// number of rounds, to guarantee termination even if two passes keep
// re-enabling each other, e.g. CSE exposing new DCE opportunities).
type Pipeline struct {
	passes []Pass
}

const maxFixpointRounds = 8

// NewPipeline builds the pass list enabled at level, in spec §4.5 order.
func NewPipeline(level Level, opts PipelineOptions) *Pipeline {
	enabled := map[string]bool{}
	for _, name := range passSet[level] {
		enabled[name] = true
	}
	var passes []Pass
	if enabled["constant_folding"] {
		passes = append(passes, &ConstantFolding{})
	}
	if enabled["dce"] {
		passes = append(passes, &DeadCodeElimination{})
	}
	if enabled["cse"] {
		passes = append(passes, &CommonSubexpressionElimination{})
	}
	if enabled["licm"] {
		passes = append(passes, &LoopInvariantCodeMotion{})
	}
	if enabled["inlining"] {
		passes = append(passes, &Inlining{Program: opts.Program, Budget: 64, MaxDepth: 3})
	}
	if enabled["loop_unrolling"] {
		passes = append(passes, &LoopUnrolling{Threshold: 8})
	}
	if enabled["type_specialization"] {
		passes = append(passes, &TypeSpecialization{Profiler: opts.Profiler, FuncName: opts.FuncName, Deopts: opts.Deopts})
	}
	if enabled["peephole"] {
		passes = append(passes, &Peephole{})
	}
	return &Pipeline{passes: passes}
}

// PipelineOptions carries the cross-cutting collaborators a handful of
// passes need: Inlining needs the whole Program to find callees by name,
// TypeSpecialization needs the profiler and a deopt-point sink.
type PipelineOptions struct {
	Program  *ir.Program
	Profiler TypeProfiler
	FuncName string
	Deopts   DeoptSink
}

// TypeProfiler is the subset of profiler.Profiler the type-specialization
// pass depends on (kept as a narrow interface rather than a direct
// *profiler.Profiler field, so a test double can stand in without
// constructing a real profiler). DominantType is what lets the pass pick
// the typed opcode/guard a site actually stabilized on, rather than
// assuming Int32 (spec §4.5 pass 7 "a dominant profiled type").
type TypeProfiler interface {
	IsTypeStable(fn string, pos int) bool
	DominantType(fn string, pos int) (profiler.TypeKind, bool)
}

// DeoptSink receives a new deopt point's live-value set and returns the
// DeoptID a TypeGuard should reference (internal/deopt.Registry
// implements this).
type DeoptSink interface {
	Register(funcName string, bytecodeOffset int, live []*ir.Value) int
}

// Run applies every enabled pass to every function, repeating until no
// pass reports a change or maxFixpointRounds is reached (spec §4.5 "All
// passes preserve SSA...").
func (p *Pipeline) Run(prog *ir.Program) {
	for _, fn := range prog.Functions {
		p.RunFunction(fn)
	}
}

// RunFunction applies the pipeline to a single function.
func (p *Pipeline) RunFunction(fn *ir.Function) {
	for round := 0; round < maxFixpointRounds; round++ {
		changed := false
		for _, pass := range p.passes {
			if pass.Apply(fn) {
				changed = true
			}
		}
		if !changed {
			return
		}
	}
}
