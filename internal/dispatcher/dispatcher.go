// Package dispatcher implements the tiered dispatcher (spec §4.11):
// promotion-rule evaluation at interpreter safepoints, a bounded pool of
// background compile workers, and generation-tagged cancellation so a
// stale compile result (the function was invalidated or demoted while
// its job was queued) is discarded rather than installed.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"aerojs/internal/bytecode"
	"aerojs/internal/codecache"
	"aerojs/internal/codegen"
	"aerojs/internal/codegen/amd64"
	"aerojs/internal/codegen/arm64"
	"aerojs/internal/deopt"
	"aerojs/internal/ir"
	"aerojs/internal/optimizer"
	"aerojs/internal/profiler"
	"aerojs/internal/regalloc"
)

// Tier is a function's current execution tier.
type Tier int

const (
	TierInterpreter Tier = iota
	TierBaseline
	TierOptimizing
)

func (t Tier) String() string {
	switch t {
	case TierInterpreter:
		return "interpreter"
	case TierBaseline:
		return "baseline"
	case TierOptimizing:
		return "optimizing"
	default:
		return "unknown"
	}
}

// Promotion thresholds (spec §4.11 "execution_count >= 1000 promotes
// interpreter -> baseline; >= 10000 with stable type feedback promotes
// baseline -> optimizing").
const (
	baselineThreshold   = 1000
	optimizingThreshold = 10000

	// maxInFlightCompiles bounds worker concurrency, not correctness.
	// There is no separate demotion constant here: deopt.Registry's
	// pollutedThreshold decides when repeated guard failures stop
	// re-promotion.
	maxInFlightCompiles = 4
)

// CompiledFunction is an installed tier's entry point.
type CompiledFunction struct {
	Tier  Tier
	Entry *codecache.CodeEntry
	Alloc *regalloc.Allocation
}

// Dispatcher owns tier-promotion decisions and the compile worker pool.
type Dispatcher struct {
	prof    *profiler.Profiler
	deopts  *deopt.Registry
	cache   *codecache.Cache
	backend codegen.Backend
	program *bytecode.Program
	byName  map[string]*bytecode.Function

	sem    *semaphore.Weighted
	group  errgroup.Group
	flock  singleflight.Group
	logger *zap.Logger

	mu         sync.Mutex
	compiled   map[string]*CompiledFunction
	generation map[string]uint64
}

// New builds a Dispatcher over program, using backend to lower optimizing
// and baseline tiers into cache. logger may be nil, in which case a no-op
// logger is used; SPEC_FULL §7/§10 commit the dispatcher to zap structured
// logs for JIT lifecycle events (enqueue/install/stale-drop/deopt) and
// non-fatal compile errors.
func New(program *bytecode.Program, prof *profiler.Profiler, deopts *deopt.Registry, cache *codecache.Cache, backend codegen.Backend, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	byName := make(map[string]*bytecode.Function, len(program.Functions))
	for _, fn := range program.Functions {
		byName[fn.Name] = fn
	}
	return &Dispatcher{
		prof:       prof,
		deopts:     deopts,
		cache:      cache,
		backend:    backend,
		program:    program,
		byName:     byName,
		sem:        semaphore.NewWeighted(maxInFlightCompiles),
		logger:     logger,
		compiled:   make(map[string]*CompiledFunction),
		generation: make(map[string]uint64),
	}
}

// Lookup returns the currently installed tier for funcName, if any — the
// interpreter's call path consults this before falling back to bytecode
// execution.
func (d *Dispatcher) Lookup(funcName string) (*CompiledFunction, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cf, ok := d.compiled[funcName]
	return cf, ok
}

// OnSafepoint is called by the interpreter between bytecode instructions
// (spec §4.11 "interpreter checks thresholds at safepoints between
// instructions"). It enqueues a background compile when funcName has
// crossed a promotion threshold and isn't already at or beyond the
// target tier.
func (d *Dispatcher) OnSafepoint(ctx context.Context, funcName string) {
	if d.deopts.IsPolluted(funcName) {
		return
	}
	current := d.currentTier(funcName)
	count := d.prof.ExecutionCount(funcName)

	switch {
	case current < TierOptimizing && count >= optimizingThreshold && d.prof.IsTypeStable(funcName, 0):
		d.enqueue(ctx, funcName, TierOptimizing)
	case current < TierBaseline && count >= baselineThreshold:
		d.enqueue(ctx, funcName, TierBaseline)
	}
}

func (d *Dispatcher) currentTier(funcName string) Tier {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cf, ok := d.compiled[funcName]; ok {
		return cf.Tier
	}
	return TierInterpreter
}

// OnGuardFailure records a deopt for funcName and bumps its generation,
// so any in-flight compile job for the tier that just trapped is
// discarded on completion rather than reinstalled (spec §4.11 "demote on
// repeated guard failures (>=5)").
func (d *Dispatcher) OnGuardFailure(funcName string, reason deopt.Reason) {
	_, polluted := d.deopts.RecordDeopt(funcName, reason)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.generation[funcName]++
	d.logger.Info("deopt",
		zap.String("function_id", funcName),
		zap.String("reason", reason.String()),
		zap.Bool("polluted", polluted))
	if polluted {
		delete(d.compiled, funcName)
	}
}

// Invalidate removes funcName's installed tier and its code cache entry,
// and bumps its generation to cancel any in-flight compile for it (spec
// §4.8 "invalidate(function_id)").
func (d *Dispatcher) Invalidate(funcName string) {
	d.mu.Lock()
	d.generation[funcName]++
	delete(d.compiled, funcName)
	d.mu.Unlock()
	d.cache.Invalidate(funcName)
}

// enqueue submits a background compile job for (funcName, tier),
// deduplicating concurrent requests for the same pair via singleflight
// and bounding total concurrency via the semaphore.
func (d *Dispatcher) enqueue(ctx context.Context, funcName string, tier Tier) {
	d.mu.Lock()
	gen := d.generation[funcName]
	d.mu.Unlock()

	d.logger.Info("compile enqueued", zap.String("function_id", funcName), zap.Stringer("tier", tier))

	key := fmt.Sprintf("%s:%d", funcName, tier)
	d.group.Go(func() error {
		if err := d.sem.Acquire(ctx, 1); err != nil {
			return nil
		}
		defer d.sem.Release(1)

		_, err, _ := d.flock.Do(key, func() (interface{}, error) {
			return nil, d.compile(funcName, tier, gen)
		})
		return err
	})
}

// compile runs the full pipeline for one function at one tier: IR
// construction, the optimizer pipeline gated by tier, linear-scan
// register allocation, and code generation into the cache (spec §2 "Data
// flow"). The result is installed only if gen still matches the
// function's current generation — otherwise a concurrent invalidate or
// guard failure made this compile stale.
func (d *Dispatcher) compile(funcName string, tier Tier, gen uint64) error {
	fn, ok := d.byName[funcName]
	if !ok {
		err := fmt.Errorf("dispatcher: unknown function %q", funcName)
		d.logger.Warn("compile failed", zap.String("function_id", funcName), zap.Stringer("tier", tier), zap.String("pass", "lookup"), zap.Error(err))
		return err
	}

	builder := ir.NewBuilder(funcName, fn, d.prof)
	irFn := builder.Build()

	level := optimizer.LevelBasic
	if tier == TierOptimizing {
		level = optimizer.LevelAggressive
	}
	pipeline := optimizer.NewPipeline(level, optimizer.PipelineOptions{
		Program:  &ir.Program{Functions: []*ir.Function{irFn}},
		Profiler: d.prof,
		FuncName: funcName,
		Deopts:   d.deopts,
	})
	pipeline.RunFunction(irFn)

	registers, calleeSaved := registersFor(d.backend)
	alloc := regalloc.Allocate(irFn, registers, calleeSaved)

	buf, err := d.backend.Compile(irFn, alloc)
	if err != nil {
		d.logger.Warn("compile failed", zap.String("function_id", funcName), zap.Stringer("tier", tier), zap.String("pass", "codegen"), zap.Error(err))
		return err
	}

	cacheBuf, err := d.cache.Allocate(len(buf.Code))
	if err != nil {
		d.logger.Warn("compile failed", zap.String("function_id", funcName), zap.Stringer("tier", tier), zap.String("pass", "codecache"), zap.Error(err))
		return err
	}
	copy(cacheBuf.Bytes(), buf.Code)
	entry := d.cache.Finalize(cacheBuf, funcName)
	d.backend.FlushICache(buf, 0, len(buf.Code))

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.generation[funcName] != gen {
		// Stale: something invalidated or demoted funcName while this
		// compile ran. Drop the result; the cache entry stays orphaned
		// until a future Evict reclaims it.
		d.logger.Info("compile discarded: stale generation", zap.String("function_id", funcName), zap.Stringer("tier", tier))
		return nil
	}
	d.compiled[funcName] = &CompiledFunction{Tier: tier, Entry: entry, Alloc: alloc}
	d.logger.Info("compile installed", zap.String("function_id", funcName), zap.Stringer("tier", tier))
	return nil
}

// registersFor asks backend for its Registers()-shaped capability. Every
// concrete backend in internal/codegen/* exposes a package-level
// Registers() ([]string, map[string]bool) function rather than a method
// on Backend (register sets are ISA properties, not per-instance state),
// so callers that only hold the codegen.Backend interface identify the
// ISA by Name() and dispatch accordingly.
func registersFor(backend codegen.Backend) ([]string, map[string]bool) {
	switch backend.Name() {
	case "arm64":
		return arm64.Registers()
	default:
		return amd64.Registers()
	}
}

// Shutdown waits for all in-flight compile jobs to finish.
func (d *Dispatcher) Shutdown() error {
	return d.group.Wait()
}
