// Package repl SPDX-License-Identifier: Apache-2.0
package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"aerojs/internal/engine"
	"aerojs/internal/frontend"
)

const PROMPT = ">> "

// Start reads one line at a time from in, compiles it through
// internal/frontend, and evaluates it against a single Engine shared
// across the whole session (Evaluate runs against one long-lived Context,
// not a fresh one per call), so a global assigned on one line is visible
// on the next. A `let` compiles to a local slot of that line's own main
// function, so it is not visible on later lines.
func Start(in io.Reader, out io.Writer) {
	scanner := bufio.NewScanner(in)
	eng := engine.New(engine.Config{ChunkSize: 4096, HighWaterMark: 1 << 24}, nil)

	for {
		fmt.Fprint(out, PROMPT)
		if !scanner.Scan() {
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		prog, err := frontend.Compile("<repl>", line)
		if err != nil {
			fmt.Fprintf(out, "parse error: %s\n", err)
			continue
		}

		result, evalErr := eng.Evaluate(context.Background(), prog)
		if evalErr != nil {
			fmt.Fprintf(out, "%s\n", evalErr.Error())
			continue
		}

		fmt.Fprintf(out, "%s\n", result.ToString())
	}
}
