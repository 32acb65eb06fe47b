// SPDX-License-Identifier: Apache-2.0
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/fatih/color"

	"aerojs/internal/engine"
	"aerojs/internal/engineerr"
	"aerojs/internal/frontend"
)

// Exit codes per spec.md §6: 0 success, 1 user-script error (parse or
// thrown runtime error), 2 engine-internal error.
const (
	exitOK             = 0
	exitUserScriptErr  = 1
	exitEngineInternal = 2
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: aerojs <file.aero>")
		os.Exit(exitUserScriptErr)
	}

	path := os.Args[1]
	source, err := os.ReadFile(path)
	if err != nil {
		color.Red("Failed to read file: %s", err)
		os.Exit(exitUserScriptErr)
	}

	prog, err := frontend.Compile(path, string(source))
	if err != nil {
		reportParseError(string(source), err)
		os.Exit(exitUserScriptErr)
	}

	eng := engine.New(engine.Config{ChunkSize: 4096, HighWaterMark: 1 << 24}, nil)
	result, evalErr := eng.Evaluate(context.Background(), prog)
	if evalErr != nil {
		color.Red("❌ %s", evalErr.Error())
		os.Exit(exitCodeFor(evalErr))
	}

	color.Green("✅ %s", path)
	fmt.Printf("→ %s\n", result.ToString())
}

// exitCodeFor maps an EngineError's level to the exit code spec.md §6
// distinguishes: a Fatal-level error is the executor's own invariant
// violation, everything else is the script's problem.
func exitCodeFor(e *engineerr.EngineError) int {
	if e.Level == engineerr.Fatal {
		return exitEngineInternal
	}
	return exitUserScriptErr
}

// reportParseError prints a friendly caret-style parse error message.
// frontend.Compile wraps the underlying participle.Error with %w, so the
// caret-position detail is recovered via errors.As rather than a direct
// type assertion.
func reportParseError(src string, err error) {
	var pe participle.Error
	if !errors.As(err, &pe) {
		color.Red("Unexpected error: %s", err)
		return
	}

	pos := pe.Position()
	lines := strings.Split(src, "\n")
	if pos.Line <= 0 || pos.Line > len(lines) {
		color.Red("Syntax error at unknown location: %s", err)
		return
	}

	line := lines[pos.Line-1]
	caret := strings.Repeat(" ", pos.Column-1) + "^"

	color.Red("❌ Syntax error in %s at line %d, column %d:", pos.Filename, pos.Line, pos.Column)
	fmt.Println(line)
	color.HiRed(caret)
	fmt.Printf("→ %s\n", pe.Message())
}
