// Package profiler records the runtime feedback the optimizer and
// dispatcher consume: execution counts, per-call-site receiver shape
// frequencies, per-arithmetic-site operand type frequencies, and
// per-branch taken/not-taken counts (spec §4.3 "Profiler").
package profiler

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// TypeKind is the coarse runtime type bucket tracked per arithmetic site,
// matching the ir.Type specializations the optimizer can guard to.
type TypeKind uint8

const (
	TypeUnknown TypeKind = iota
	TypeInt32
	TypeFloat64
	TypeBoolean
	TypeString
	TypeObject
)

const (
	hotBaselineThreshold   = 1000
	hotOptimizingThreshold = 10000
	stabilityThreshold     = 0.95

	// siteCacheSize bounds the number of distinct (function, site) entries
	// tracked per category, following the teacher's/pack's idiom of
	// bounding unbounded-cardinality maps with an LRU rather than letting
	// a pathological program (many dynamically-named functions/sites)
	// grow profiler memory without limit.
	siteCacheSize = 4096
)

type typeCounts [6]uint64 // indexed by TypeKind

type shapeCounts struct {
	mu     sync.Mutex
	counts map[uint32]uint64
}

type branchCounts struct {
	taken    uint64
	notTaken uint64
}

// entryToken is returned by RecordEntry and passed back to RecordExit so
// exits can be matched to entries without a stack (a function may be
// re-entered recursively; each activation gets a distinct token).
type entryToken uint64

type funcStats struct {
	mu              sync.Mutex
	executionCount  uint64
	nextToken       entryToken
	activeTokens    map[entryToken]struct{}
}

// Profiler is safe for concurrent use: the interpreter thread records,
// while compiler-pool threads (internal/dispatcher) probe is_hot /
// is_type_stable concurrently.
type Profiler struct {
	mu        sync.Mutex
	functions map[string]*funcStats

	types   *lru.Cache[siteKey, *typeCountsBox]
	shapes  *lru.Cache[siteKey, *shapeCounts]
	branch  *lru.Cache[siteKey, *branchCountsBox]
}

type siteKey struct {
	fn  string
	pos int
}

type typeCountsBox struct {
	mu     sync.Mutex
	counts typeCounts
}

type branchCountsBox struct {
	mu     sync.Mutex
	counts branchCounts
}

// New constructs an empty Profiler.
func New() *Profiler {
	types, _ := lru.New[siteKey, *typeCountsBox](siteCacheSize)
	shapes, _ := lru.New[siteKey, *shapeCounts](siteCacheSize)
	branch, _ := lru.New[siteKey, *branchCountsBox](siteCacheSize)
	return &Profiler{
		functions: make(map[string]*funcStats),
		types:     types,
		shapes:    shapes,
		branch:    branch,
	}
}

func (p *Profiler) stats(fn string) *funcStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.functions[fn]
	if !ok {
		s = &funcStats{activeTokens: make(map[entryToken]struct{})}
		p.functions[fn] = s
	}
	return s
}

// RecordEntry bumps fn's execution count and returns a token identifying
// this activation, to be passed to RecordExit.
func (p *Profiler) RecordEntry(fn string) entryToken {
	s := p.stats(fn)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executionCount++
	tok := s.nextToken
	s.nextToken++
	s.activeTokens[tok] = struct{}{}
	return tok
}

// RecordExit closes out an activation. returnType is accepted for API
// completeness (spec: "record_exit(fn, token, return_type)") and is
// discarded: no return-type feedback is recorded, here or at the call
// site.
func (p *Profiler) RecordExit(fn string, tok entryToken, _ TypeKind) {
	s := p.stats(fn)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.activeTokens, tok)
}

// RecordType records one sample of the operand/value type observed at a
// given (function, bytecode-position) arithmetic or load site.
func (p *Profiler) RecordType(fn string, pos int, t TypeKind) {
	key := siteKey{fn, pos}
	box, ok := p.types.Get(key)
	if !ok {
		box = &typeCountsBox{}
		p.types.Add(key, box)
	}
	box.mu.Lock()
	box.counts[t]++
	box.mu.Unlock()
}

// RecordShape records one sample of the receiver shape observed at a
// given call/property site, feeding internal/inlinecache's polymorphism
// decisions.
func (p *Profiler) RecordShape(fn string, pos int, shapeID uint32) {
	key := siteKey{fn, pos}
	sc, ok := p.shapes.Get(key)
	if !ok {
		sc = &shapeCounts{counts: make(map[uint32]uint64)}
		p.shapes.Add(key, sc)
	}
	sc.mu.Lock()
	sc.counts[shapeID]++
	sc.mu.Unlock()
}

// RecordBranch records whether a conditional branch was taken.
func (p *Profiler) RecordBranch(fn string, pos int, taken bool) {
	key := siteKey{fn, pos}
	bc, ok := p.branch.Get(key)
	if !ok {
		bc = &branchCountsBox{}
		p.branch.Add(key, bc)
	}
	bc.mu.Lock()
	if taken {
		bc.counts.taken++
	} else {
		bc.counts.notTaken++
	}
	bc.mu.Unlock()
}

// ExecutionCount reports fn's monotonic execution counter.
func (p *Profiler) ExecutionCount(fn string) uint64 {
	s := p.stats(fn)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.executionCount
}

// IsHotBaseline reports execution_count >= 1000 (spec §4.3 baseline
// threshold).
func (p *Profiler) IsHotBaseline(fn string) bool {
	return p.ExecutionCount(fn) >= hotBaselineThreshold
}

// IsHotOptimizing reports execution_count >= 10000 (spec §4.3 optimizing
// threshold).
func (p *Profiler) IsHotOptimizing(fn string) bool {
	return p.ExecutionCount(fn) >= hotOptimizingThreshold
}

// DominantType returns the most-sampled type at (fn, pos) and whether it
// accounts for >= 95% of samples (spec §4.3 "is_type_stable"). Stability
// is recomputed here, at probe time, never cached eagerly, per spec
// §4.3 "Sample stability scores are recomputed at probe time, never
// eagerly."
func (p *Profiler) DominantType(fn string, pos int) (TypeKind, bool) {
	box, ok := p.types.Get(siteKey{fn, pos})
	if !ok {
		return TypeUnknown, false
	}
	box.mu.Lock()
	defer box.mu.Unlock()
	var total uint64
	best := TypeUnknown
	var bestCount uint64
	for k, c := range box.counts {
		total += c
		if c > bestCount {
			bestCount = c
			best = TypeKind(k)
		}
	}
	if total == 0 {
		return TypeUnknown, false
	}
	return best, float64(bestCount)/float64(total) >= stabilityThreshold
}

// IsTypeStable reports whether one type accounts for >= 95% of samples at
// (fn, pos) (spec §4.3).
func (p *Profiler) IsTypeStable(fn string, pos int) bool {
	_, stable := p.DominantType(fn, pos)
	return stable
}

// DominantShape returns the shape id sampled at a call/property site and
// true when it is the only shape seen there (monomorphic); with no
// samples or several shapes it returns 0, false. The optimizer's inlining
// pass does not consult it; that pass resolves callees by constant name.
func (p *Profiler) DominantShape(fn string, pos int) (shapeID uint32, monomorphic bool) {
	sc, ok := p.shapes.Get(siteKey{fn, pos})
	if !ok {
		return 0, false
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if len(sc.counts) != 1 {
		return 0, false
	}
	for k := range sc.counts {
		return k, true
	}
	return 0, false
}

// BranchBias returns the fraction of observed branch samples that were
// taken, and the total sample count.
func (p *Profiler) BranchBias(fn string, pos int) (bias float64, samples uint64) {
	bc, ok := p.branch.Get(siteKey{fn, pos})
	if !ok {
		return 0, 0
	}
	bc.mu.Lock()
	defer bc.mu.Unlock()
	samples = bc.counts.taken + bc.counts.notTaken
	if samples == 0 {
		return 0, 0
	}
	return float64(bc.counts.taken) / float64(samples), samples
}
