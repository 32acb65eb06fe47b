// SPDX-License-Identifier: Apache-2.0
package main

import (
	"os"

	"aerojs/repl"
)

func main() {
	repl.Start(os.Stdin, os.Stdout)
}
