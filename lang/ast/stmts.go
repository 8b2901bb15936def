package ast

// Block is a brace-delimited sequence of statements introducing a new lexical
// scope.
type Block struct {
	PosVal Position
	Stmts  []Stmt
}

func (n *Block) Kind() NodeKind { return KindBlock }
func (n *Block) Pos() Position  { return n.PosVal }
func (n *Block) stmtNode()      {}

// If is `if cond { then } else { else }`; Else is nil when there is no else
// clause.
type If struct {
	PosVal Position
	Cond   Expr
	Then   *Block
	Else   Stmt // *Block or *If (else-if chain), or nil
}

func (n *If) Kind() NodeKind { return KindIf }
func (n *If) Pos() Position  { return n.PosVal }
func (n *If) stmtNode()      {}

// For is the single C-style loop form: `for init; cond; post { body }`. Any
// of Init, Cond, Post may be nil.
type For struct {
	PosVal Position
	Init   Stmt
	Cond   Expr
	Post   Stmt
	Body   *Block
}

func (n *For) Kind() NodeKind { return KindFor }
func (n *For) Pos() Position  { return n.PosVal }
func (n *For) stmtNode()      {}

// Return is `return expr;` or a bare `return;` (Value nil) from a void
// function.
type Return struct {
	PosVal Position
	Value  Expr
}

func (n *Return) Kind() NodeKind { return KindReturn }
func (n *Return) Pos() Position  { return n.PosVal }
func (n *Return) stmtNode()      {}

// VarDecl is a local variable declaration, optionally with an initializer.
// The generator reserves a stack slot for Name in the enclosing function's
// frame the first time it walks the declaring block.
type VarDecl struct {
	PosVal Position
	Name   string
	Type   DataType
	Init   Expr // nil when uninitialized
}

func (n *VarDecl) Kind() NodeKind { return KindVarDecl }
func (n *VarDecl) Pos() Position  { return n.PosVal }
func (n *VarDecl) stmtNode()      {}

// ExprStmt is an expression evaluated for its side effect, its result
// discarded (a POP follows in the emitted code whenever the expression
// leaves a value on the stack).
type ExprStmt struct {
	PosVal Position
	X      Expr
}

func (n *ExprStmt) Kind() NodeKind { return KindExprStmt }
func (n *ExprStmt) Pos() Position  { return n.PosVal }
func (n *ExprStmt) stmtNode()      {}

// Yield is a bare `yield;` statement: suspends the current coroutine until
// the scheduler next resumes it.
type Yield struct {
	PosVal Position
}

func (n *Yield) Kind() NodeKind { return KindYield }
func (n *Yield) Pos() Position  { return n.PosVal }
func (n *Yield) stmtNode()      {}

// Function is a top-level function declaration. StructName is non-empty for
// a method (a function whose first parameter is an implicit receiver named
// "self"). Functions carry no coroutine marker: any function may be the
// target of `spawn` or called directly.
type Function struct {
	PosVal     Position
	Name       string
	StructName string
	Params     []Param
	ReturnType DataType
	Body       *Block
}

func (n *Function) Kind() NodeKind { return KindFunction }
func (n *Function) Pos() Position  { return n.PosVal }

// Chunk is the root of a translation unit: every struct, global variable and
// function declaration the generator will process. Struct layouts are
// resolved from Structs before any Functions are walked (spec §3); Globals
// are assigned persistent slots in the bottom-of-stack scope before any
// function body is generated, so every function sees the full global set.
type Chunk struct {
	PosVal    Position
	Structs   []*StructDecl
	Globals   []*VarDecl
	Functions []*Function
}

func (n *Chunk) Kind() NodeKind { return KindChunk }
func (n *Chunk) Pos() Position  { return n.PosVal }
