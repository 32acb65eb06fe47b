// Package frontend is a minimal participle-based toy front end: a small
// expression/statement language that compiles down to internal/bytecode
// (spec §1 "the engine core consumes already-produced bytecode" — this
// is the out-of-scope producer sketched in, not conforming to, that
// boundary). It exists to exercise Engine.Evaluate end to end from
// source text rather than hand-built bytecode.Program literals.
//
// Grounded on the teacher's grammar/lexer.go (stateful lexer.Rules) and
// grammar/shared.go (participle struct-tag grammar), shrunk from
// Kanso's contract language down to a JS-flavored expression language:
// let bindings, if/while, function calls, and the arithmetic/comparison
// operators spec §8's scenarios exercise.
package frontend

import (
	"github.com/alecthomas/participle/v2/lexer"
)

var toyLexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		{"Comment", `//[^\n]*`, nil},
		{"String", `"(\\.|[^"\\])*"`, nil},
		{"Number", `[0-9]+(\.[0-9]+)?`, nil},
		{"Ident", `[a-zA-Z_][a-zA-Z0-9_]*`, nil},
		{"Operator", `(==|!=|<=|>=|&&|\|\||[-+*/%<>=!])`, nil},
		{"Punct", `[(){},;.]`, nil},
		{"Whitespace", `[ \t\r\n]+`, nil},
	},
})
