package frontend

// Program is the toy language's top-level unit: a flat sequence of
// statements compiled into a single "main" bytecode.Function (spec §8's
// scenarios are all single-function scripts; the toy grammar has no
// user-defined function syntax — see DESIGN.md).
type Program struct {
	Stmts []*Stmt `{ @@ }`
}

type Stmt struct {
	Let    *LetStmt    `  @@`
	If     *IfStmt     `| @@`
	While  *WhileStmt  `| @@`
	Return *ReturnStmt `| @@`
	Assign *AssignStmt `| @@`
	Expr   *ExprStmt   `| @@`
}

type LetStmt struct {
	Name  string `"let" @Ident "="`
	Value *Expr  `@@ ";"`
}

type AssignStmt struct {
	Name  string `@Ident "="`
	Value *Expr  `@@ ";"`
}

type ExprStmt struct {
	Value *Expr `@@ ";"`
}

type ReturnStmt struct {
	Value *Expr `"return" [ @@ ] ";"`
}

type IfStmt struct {
	Cond *Expr   `"if" "(" @@ ")"`
	Then *Block  `@@`
	Else *Block  `[ "else" @@ ]`
}

type WhileStmt struct {
	Cond *Expr  `"while" "(" @@ ")"`
	Body *Block `@@`
}

type Block struct {
	Stmts []*Stmt `"{" { @@ } "}"`
}

// Expr is a flat operator sequence (spec-unrelated toy-grammar idiom
// carried over from the teacher's grammar/shared.go BinaryExpr shape):
// precedence is resolved afterward by resolveBinary, not by nested
// grammar productions, so the grammar itself stays simple.
type Expr struct {
	Left *Unary   `@@`
	Ops  []*BinOp `{ @@ }`
}

type BinOp struct {
	Operator string `@("==" | "!=" | "<=" | ">=" | "&&" | "||" | "<" | ">" | "+" | "-" | "*" | "/" | "%")`
	Right    *Unary `@@`
}

type Unary struct {
	Operator string   `[ @("-" | "!") ]`
	Value    *Postfix `@@`
}

type Postfix struct {
	Primary *Primary     `@@`
	Suffix  []*PostfixOp `{ @@ }`
}

// PostfixOp is either a member access (".name") or a call ("(args)"),
// chainable so "Math.abs(-4)" parses as Ident(Math) -> .abs -> (args).
type PostfixOp struct {
	Member string    `  "." @Ident`
	Call   *CallArgs `| @@`
}

type CallArgs struct {
	Args []*Expr `"(" [ @@ { "," @@ } ] ")"`
}

type Primary struct {
	Number *string `  @Number`
	Str    *string `| @String`
	True   bool    `| @"true"`
	False  bool    `| @"false"`
	Null   bool    `| @"null"`
	Undef  bool    `| @"undefined"`
	Ident  *string `| @Ident`
	Paren  *Expr   `| "(" @@ ")"`
}
