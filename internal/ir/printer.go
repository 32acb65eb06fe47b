package ir

import (
	"fmt"
	"strings"
)

// Printer renders a Program to a readable, debugger-friendly text form,
// used by the devtools bridge and by tests to assert on IR shape without
// walking structs by hand.
type Printer struct {
	indent int
	output strings.Builder
}

func NewPrinter() *Printer { return &Printer{} }

// Print returns the string representation of an IR program.
func Print(program *Program) string {
	p := NewPrinter()
	p.printProgram(program)
	return p.output.String()
}

// PrintFunction returns the string representation of a single function,
// for targeted printing (devtools single-function inspection).
func PrintFunction(fn *Function) string {
	p := NewPrinter()
	p.printFunction(fn)
	return p.output.String()
}

func (p *Printer) writeIndent() {
	for i := 0; i < p.indent; i++ {
		p.output.WriteString("  ")
	}
}

func (p *Printer) printf(format string, args ...interface{}) {
	p.writeIndent()
	p.output.WriteString(fmt.Sprintf(format, args...))
	p.output.WriteString("\n")
}

func (p *Printer) printProgram(prog *Program) {
	for i, fn := range prog.Functions {
		if i == prog.Entry {
			p.printf("function %s (entry) {", fn.Name)
		} else {
			p.printf("function %s {", fn.Name)
		}
		p.indent++
		p.printFunctionBody(fn)
		p.indent--
		p.printf("}")
	}
}

func (p *Printer) printFunction(fn *Function) {
	p.printf("function %s {", fn.Name)
	p.indent++
	p.printFunctionBody(fn)
	p.indent--
	p.printf("}")
}

func (p *Printer) printFunctionBody(fn *Function) {
	for _, blk := range fn.Blocks {
		p.printBlock(blk)
	}
}

func (p *Printer) printBlock(blk *BasicBlock) {
	preds := make([]string, 0, len(blk.Predecessors))
	for _, pr := range blk.Predecessors {
		preds = append(preds, pr.Label)
	}
	p.printf("%s: ; preds = %s", blk.Label, strings.Join(preds, ", "))
	p.indent++
	for _, inst := range blk.Instructions {
		p.printf("%s", inst.String())
	}
	if blk.Terminator != nil {
		p.printf("%s", blk.Terminator.String())
	}
	p.indent--
}
