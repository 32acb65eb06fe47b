// Package riscv64 names the RISC-V 64 target as an accommodated
// extension point without implementing it (spec.md names RISC-V
// adjacent to the two required targets but prescribes no RV64
// encoding details). Backend.Compile always fails with
// codegen.ErrUnsupportedTarget; the package gives the codegen.Backend
// interface a concrete (if inert) third implementation. internal/dispatcher's
// register-set selection has no riscv64 case and treats every backend
// other than arm64 as amd64.
package riscv64

import (
	"aerojs/internal/codegen"
	"aerojs/internal/ir"
	"aerojs/internal/regalloc"
)

// Backend is a named-but-unimplemented codegen.Backend for RISC-V 64.
type Backend struct{}

func NewBackend() *Backend { return &Backend{} }

func (b *Backend) Name() string { return "riscv64" }

func (b *Backend) CallingConvention() codegen.CallingConvention {
	// RV64 calling convention (a0-a7 argument registers, a0 return, s0-s11
	// callee-saved) is documented here even though Compile never reaches a
	// point where it matters, so the extension point is self-describing.
	return codegen.CallingConvention{
		ArgRegisters:   []string{"a0", "a1", "a2", "a3", "a4", "a5", "a6", "a7"},
		ReturnRegister: "a0",
		CalleeSaved:    []string{"s0", "s1", "s2", "s3", "s4", "s5", "s6", "s7", "s8", "s9", "s10", "s11"},
		CallerSaved:    []string{"t0", "t1", "t2", "t3", "t4", "t5", "t6", "a0", "a1", "a2", "a3", "a4", "a5", "a6", "a7"},
	}
}

func (b *Backend) Compile(fn *ir.Function, alloc *regalloc.Allocation) (*codegen.CodeBuffer, error) {
	return nil, codegen.ErrUnsupportedTarget
}

func (b *Backend) FlushICache(buf *codegen.CodeBuffer, rangeStart, rangeLen int) {}
