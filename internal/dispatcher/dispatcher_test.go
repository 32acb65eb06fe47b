package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"aerojs/internal/bytecode"
	"aerojs/internal/codecache"
	"aerojs/internal/codegen/amd64"
	"aerojs/internal/deopt"
	"aerojs/internal/profiler"
)

func simpleProgram() *bytecode.Program {
	fn := &bytecode.Function{
		Name:      "add",
		NumLocals: 1,
		Consts: []bytecode.Const{
			{IsNum: true, Num: 2},
			{IsNum: true, Num: 3},
		},
		Code: []bytecode.Instr{
			{Op: bytecode.OpLoadConst, Operand: 0},
			{Op: bytecode.OpLoadConst, Operand: 1},
			{Op: bytecode.OpAdd},
			{Op: bytecode.OpStoreVar, Operand: 0},
			{Op: bytecode.OpLoadVar, Operand: 0},
			{Op: bytecode.OpReturn},
		},
	}
	return &bytecode.Program{Functions: []*bytecode.Function{fn}, Entry: 0}
}

func newTestDispatcher() (*Dispatcher, *profiler.Profiler, *deopt.Registry) {
	prof := profiler.New()
	deopts := deopt.NewRegistry()
	cache := codecache.New(4096, 1<<20)
	backend := amd64.NewBackend()
	return New(simpleProgram(), prof, deopts, cache, backend, zap.NewNop()), prof, deopts
}

func TestOnSafepointBelowThresholdDoesNotCompile(t *testing.T) {
	d, prof, _ := newTestDispatcher()
	prof.RecordEntry("add")
	d.OnSafepoint(context.Background(), "add")
	require.NoError(t, d.Shutdown())
	_, ok := d.Lookup("add")
	assert.False(t, ok)
}

func TestOnSafepointPromotesToBaselineOnceHot(t *testing.T) {
	d, prof, _ := newTestDispatcher()
	for i := 0; i < baselineThreshold; i++ {
		prof.RecordEntry("add")
	}
	d.OnSafepoint(context.Background(), "add")
	require.NoError(t, d.Shutdown())

	cf, ok := d.Lookup("add")
	require.True(t, ok)
	assert.Equal(t, TierBaseline, cf.Tier)
	assert.NotNil(t, cf.Entry)
	assert.NotNil(t, cf.Alloc)
}

func TestOnGuardFailurePollutesAndClearsInstalledTier(t *testing.T) {
	d, prof, deopts := newTestDispatcher()
	for i := 0; i < baselineThreshold; i++ {
		prof.RecordEntry("add")
	}
	d.OnSafepoint(context.Background(), "add")
	require.NoError(t, d.Shutdown())
	_, ok := d.Lookup("add")
	require.True(t, ok)

	for i := 0; i < 5; i++ {
		d.OnGuardFailure("add", deopt.TypeFeedback)
	}
	assert.True(t, deopts.IsPolluted("add"))
	_, ok = d.Lookup("add")
	assert.False(t, ok, "pollution clears the installed tier")

	// A polluted function no longer gets re-enqueued even if still hot.
	d.OnSafepoint(context.Background(), "add")
	require.NoError(t, d.Shutdown())
	_, ok = d.Lookup("add")
	assert.False(t, ok)
}

func TestInvalidateBumpsGenerationAndClearsCache(t *testing.T) {
	d, prof, _ := newTestDispatcher()
	for i := 0; i < baselineThreshold; i++ {
		prof.RecordEntry("add")
	}
	d.OnSafepoint(context.Background(), "add")
	require.NoError(t, d.Shutdown())
	require.NotNil(t, d)

	d.Invalidate("add")
	_, ok := d.Lookup("add")
	assert.False(t, ok)
}

func TestCompileLifecycleIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	prof := profiler.New()
	deopts := deopt.NewRegistry()
	cache := codecache.New(4096, 1<<20)
	backend := amd64.NewBackend()
	d := New(simpleProgram(), prof, deopts, cache, backend, logger)

	for i := 0; i < baselineThreshold; i++ {
		prof.RecordEntry("add")
	}
	d.OnSafepoint(context.Background(), "add")
	require.NoError(t, d.Shutdown())

	messages := make([]string, 0, logs.Len())
	for _, entry := range logs.All() {
		messages = append(messages, entry.Message)
	}
	assert.Contains(t, messages, "compile enqueued")
	assert.Contains(t, messages, "compile installed")

	d.OnGuardFailure("add", deopt.TypeFeedback)
	found := false
	for _, entry := range logs.All() {
		if entry.Message == "deopt" {
			found = true
		}
	}
	assert.True(t, found, "OnGuardFailure must log a deopt event")
}

func TestConcurrentSafepointsDedupeViaSingleflight(t *testing.T) {
	d, prof, _ := newTestDispatcher()
	for i := 0; i < baselineThreshold; i++ {
		prof.RecordEntry("add")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for i := 0; i < 8; i++ {
		d.OnSafepoint(ctx, "add")
	}
	require.NoError(t, d.Shutdown())
	cf, ok := d.Lookup("add")
	require.True(t, ok)
	assert.Equal(t, TierBaseline, cf.Tier)
}
