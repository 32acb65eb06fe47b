// Package amd64 implements codegen.Backend for the x86-64 ISA (spec
// §4.7). Encoding is schematic rather than a faithful x86-64 assembler —
// each emitted "instruction" is a tagged opcode byte followed by
// fixed-width operand fields — the same documented simplification
// internal/codecache makes for page protection: the structure a real
// JIT needs (prologue/epilogue shape, per-instruction table dispatch,
// patch-point slabs, W^X-respecting finalize) is implemented precisely;
// the underlying byte-for-byte machine encoding is a stand-in.
package amd64

import (
	"encoding/binary"
	"fmt"
	"math"

	"aerojs/internal/codegen"
	"aerojs/internal/ir"
	"aerojs/internal/regalloc"
)

// Opcode tags for the schematic instruction stream.
const (
	opPrologue byte = 0x01
	opEpilogue byte = 0x02
	opLoadImm  byte = 0x10
	opMove     byte = 0x11
	opBinary   byte = 0x12
	opGuard    byte = 0x13
	opReturn   byte = 0x20
	opJump     byte = 0x21
	opBranch   byte = 0x22
	opNewObj   byte = 0x23
	opNewArr   byte = 0x24
	opNop      byte = 0x90
)

// patchSlabLength is the size reserved at every inline-cache or call site
// for the IC machinery to later rewrite (spec §4.7 "Patch points").
const patchSlabLength = 16

// generalPurpose is amd64's usable general-purpose register set,
// excluding RSP/RBP (frame management) — the set internal/regalloc draws
// from.
var generalPurpose = []string{"RAX", "RBX", "RCX", "RDX", "RSI", "RDI", "R8", "R9", "R10", "R11", "R12", "R13", "R14", "R15"}

var calleeSaved = map[string]bool{"RBX": true, "R12": true, "R13": true, "R14": true, "R15": true}

// Registers returns amd64's general-purpose register set for
// internal/regalloc.Allocate, and its callee-saved subset.
func Registers() ([]string, map[string]bool) {
	return generalPurpose, calleeSaved
}

var regIndex = func() map[string]byte {
	m := make(map[string]byte, len(generalPurpose))
	for i, r := range generalPurpose {
		m[r] = byte(i)
	}
	return m
}()

// Backend implements codegen.Backend for amd64.
type Backend struct{}

func NewBackend() *Backend { return &Backend{} }

func (b *Backend) Name() string { return "amd64" }

func (b *Backend) CallingConvention() codegen.CallingConvention {
	return codegen.CallingConvention{
		ArgRegisters:   []string{"RDI", "RSI", "RDX", "RCX", "R8", "R9"},
		ReturnRegister: "RAX",
		CalleeSaved:    []string{"RBX", "R12", "R13", "R14", "R15"},
		CallerSaved:    []string{"RAX", "RCX", "RDX", "RSI", "RDI", "R8", "R9", "R10", "R11"},
	}
}

// Compile lowers fn's allocated IR into the schematic amd64 instruction
// stream, one block label's worth of instructions at a time (spec §4.7
// "Per basic block: bind the block's label, then lower each IR
// instruction by table dispatch").
func (b *Backend) Compile(fn *ir.Function, alloc *regalloc.Allocation) (*codegen.CodeBuffer, error) {
	e := &emitter{alloc: alloc, blockOffsets: make(map[string]int)}
	e.emitPrologue(fn, alloc)
	for _, blk := range fn.Blocks {
		e.blockOffsets[blk.Label] = len(e.buf)
		for _, inst := range blk.Instructions {
			e.lower(inst)
		}
		if blk.Terminator != nil {
			e.lowerTerminator(blk.Terminator)
		}
	}
	e.emitEpilogue(alloc)
	e.resolveBranches(fn)

	return &codegen.CodeBuffer{
		Code:        e.buf,
		EntryOffset: 0,
		PatchPoints: e.patches,
		SpillSlots:  alloc.SpillSlots,
		FrameSize:   codegen.FrameLayout(alloc.SpillSlots, fn.NumLocals, 0, 8),
		CalleeSaved: alloc.CalleeSaved,
	}, nil
}

// FlushICache simulates the instruction-cache flush spec §4.7 requires
// after every emit or patch ("the instruction cache is flushed for the
// affected range"). Go has no portable intrinsic for this outside
// golang.org/x/sys/unix's cache-flush syscalls, which nothing else in
// the retrieval pack imports for JIT purposes, so this is a no-op rather
// than a real cacheflush(2).
func (b *Backend) FlushICache(buf *codegen.CodeBuffer, rangeStart, rangeLen int) {}

type emitter struct {
	buf          []byte
	alloc        *regalloc.Allocation
	patches      []codegen.PatchPoint
	blockOffsets map[string]int
	branchFixups []branchFixup
}

type branchFixup struct {
	offset int // offset of the 4-byte target-index field to patch
	target *ir.BasicBlock
}

func (e *emitter) emitPrologue(fn *ir.Function, alloc *regalloc.Allocation) {
	e.buf = append(e.buf, opPrologue)
	frame := codegen.FrameLayout(alloc.SpillSlots, fn.NumLocals, 0, 8)
	e.buf = appendU32(e.buf, uint32(frame))
	e.buf = append(e.buf, byte(len(alloc.CalleeSaved)))
	for _, r := range alloc.CalleeSaved {
		e.buf = append(e.buf, regByte(r))
	}
}

func (e *emitter) emitEpilogue(alloc *regalloc.Allocation) {
	e.buf = append(e.buf, opEpilogue)
	e.buf = append(e.buf, byte(len(alloc.CalleeSaved)))
	for _, r := range alloc.CalleeSaved {
		e.buf = append(e.buf, regByte(r))
	}
}

func (e *emitter) loc(v *ir.Value) regalloc.Location {
	if v == nil {
		return regalloc.Location{}
	}
	return e.alloc.Locations[v]
}

// emitLocation appends a location's encoding: a kind byte, then either a
// register index or a 4-byte stack-slot index.
func (e *emitter) emitLocation(loc regalloc.Location) {
	e.buf = append(e.buf, byte(loc.Kind))
	if loc.Kind == regalloc.InRegister {
		e.buf = append(e.buf, regByte(loc.Reg))
	} else {
		e.buf = appendU32(e.buf, uint32(loc.Slot))
	}
}

func (e *emitter) lower(inst ir.Instruction) {
	switch i := inst.(type) {
	case *ir.ConstantInstruction:
		e.buf = append(e.buf, opLoadImm)
		e.emitLocation(e.loc(i.Result))
		e.buf = appendU64(e.buf, encodeConst(i.Value))

	case *ir.BinaryInstruction:
		e.buf = append(e.buf, opBinary)
		e.buf = append(e.buf, binaryOpTag(i.Op))
		e.emitLocation(e.loc(i.Result))
		e.emitLocation(e.loc(i.Left))
		e.emitLocation(e.loc(i.Right))

	case *ir.TypeGuardInstruction:
		e.buf = append(e.buf, opGuard)
		e.emitLocation(e.loc(i.Input))
		e.buf = appendU32(e.buf, uint32(i.DeoptID))

	case *ir.GetPropInstruction:
		e.emitPatchSite(fmt.Sprintf("get_prop#%d", i.SiteID))
		e.emitLocation(e.loc(i.Result))
		e.emitLocation(e.loc(i.Object))

	case *ir.SetPropInstruction:
		e.emitPatchSite(fmt.Sprintf("set_prop#%d", i.SiteID))
		e.emitLocation(e.loc(i.Object))
		e.emitLocation(e.loc(i.Value))

	case *ir.GetElemInstruction:
		e.emitLocation(e.loc(i.Result))
		e.emitLocation(e.loc(i.Array))
		e.emitLocation(e.loc(i.Index))

	case *ir.SetElemInstruction:
		e.emitLocation(e.loc(i.Array))
		e.emitLocation(e.loc(i.Index))
		e.emitLocation(e.loc(i.Value))

	case *ir.NewObjectInstruction:
		e.buf = append(e.buf, opNewObj)
		e.emitLocation(e.loc(i.Result))

	case *ir.NewArrayInstruction:
		e.buf = append(e.buf, opNewArr)
		e.emitLocation(e.loc(i.Result))
		e.buf = appendU32(e.buf, uint32(i.InitSize))

	case *ir.CallInstruction:
		e.emitPatchSite(fmt.Sprintf("call#%d", i.SiteID))
		e.emitLocation(e.loc(i.Result))

	case *ir.TypeofInstruction:
		e.buf = append(e.buf, opMove)
		e.emitLocation(e.loc(i.Result))
		e.emitLocation(e.loc(i.Input))

	default:
		e.buf = append(e.buf, opNop)
	}
}

// emitPatchSite reserves a nop-filled slab and records its table entry
// (spec §4.7 "every inline-cache site emits a small nop-filled slab plus
// a table entry {offset, length, name}").
func (e *emitter) emitPatchSite(name string) {
	offset := len(e.buf)
	for i := 0; i < patchSlabLength; i++ {
		e.buf = append(e.buf, opNop)
	}
	e.patches = append(e.patches, codegen.PatchPoint{Offset: offset, Length: patchSlabLength, Name: name})
}

func (e *emitter) lowerTerminator(term ir.Terminator) {
	switch t := term.(type) {
	case *ir.ReturnTerminator:
		e.buf = append(e.buf, opReturn)
		e.emitLocation(e.loc(t.Value))
	case *ir.JumpTerminator:
		e.buf = append(e.buf, opJump)
		e.branchFixups = append(e.branchFixups, branchFixup{offset: len(e.buf), target: t.Target})
		e.buf = appendU32(e.buf, 0)
	case *ir.BranchTerminator:
		e.buf = append(e.buf, opBranch)
		e.emitLocation(e.loc(t.Condition))
		e.branchFixups = append(e.branchFixups, branchFixup{offset: len(e.buf), target: t.TrueBlock})
		e.buf = appendU32(e.buf, 0)
		e.branchFixups = append(e.branchFixups, branchFixup{offset: len(e.buf), target: t.FalseBlock})
		e.buf = appendU32(e.buf, 0)
	default:
		e.buf = append(e.buf, opNop)
	}
}

// resolveBranches back-patches jump/branch targets once every block's
// offset is known, the link-time step a real assembler's two-pass
// emission also needs.
func (e *emitter) resolveBranches(fn *ir.Function) {
	for _, fx := range e.branchFixups {
		if fx.target == nil {
			continue
		}
		off, ok := e.blockOffsets[fx.target.Label]
		if !ok {
			continue
		}
		binary.LittleEndian.PutUint32(e.buf[fx.offset:fx.offset+4], uint32(off))
	}
}

func regByte(name string) byte {
	if b, ok := regIndex[name]; ok {
		return b
	}
	return 0xff
}

func binaryOpTag(op string) byte {
	switch op {
	case "add":
		return 0x01
	case "int_add":
		return 0x02
	case "sub":
		return 0x03
	case "mul":
		return 0x04
	case "div":
		return 0x05
	case "mod":
		return 0x06
	case "shl":
		return 0x07
	case "eq":
		return 0x10
	case "ne":
		return 0x11
	case "lt":
		return 0x12
	case "le":
		return 0x13
	case "gt":
		return 0x14
	case "ge":
		return 0x15
	case "strict_eq":
		return 0x16
	case "strict_ne":
		return 0x17
	default:
		return 0xff
	}
}

func encodeConst(v interface{}) uint64 {
	switch n := v.(type) {
	case float64:
		return math.Float64bits(n)
	case bool:
		if n {
			return 1
		}
		return 0
	case string:
		var h uint64 = 1469598103934665603
		for i := 0; i < len(n); i++ {
			h ^= uint64(n[i])
			h *= 1099511628211
		}
		return h
	default:
		return 0
	}
}

func appendU32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendU64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}
