package frontend

import (
	"fmt"

	"github.com/alecthomas/participle/v2"

	"aerojs/internal/bytecode"
)

var parser *participle.Parser[Program]

func init() {
	p, err := participle.Build[Program](
		participle.Lexer(toyLexer),
		participle.Elide("Whitespace", "Comment"),
		participle.UseLookahead(3),
	)
	if err != nil {
		panic(err)
	}
	parser = p
}

// Compile parses source as the toy language and lowers it into a
// bytecode.Program ready for Engine.Evaluate. Grounded on main.go's
// parser.Build + ParseString shape, re-pointed at this package's grammar
// and followed by a lowering pass the teacher's CLI never needed (Kanso
// stops at the AST; this module has somewhere to run the AST to).
func Compile(filename, source string) (*bytecode.Program, error) {
	prog, err := parser.ParseString(filename, source)
	if err != nil {
		return nil, fmt.Errorf("frontend: parse %s: %w", filename, err)
	}
	return compileProgram(prog), nil
}
