package ast

// BinaryOp enumerates the binary arithmetic and comparison operators. Order
// has no significance (unlike the teacher's token.Token, the generator does
// not rely on arithmetic distance between opcode and token constants; it maps
// operators to opcodes through lookup tables in lang/compiler/genexpr.go).
type BinaryOp int

const (
	Add BinaryOp = iota
	Sub
	Mul
	Div
	Eq
	Neq
	Lt
	Le
	Gt
	Ge
)

// UnaryOp enumerates the unary prefix operators.
type UnaryOp int

const (
	Neg UnaryOp = iota
	Not
)

// IntLit is an integer literal; Type picks the width opcode the generator
// emits (spec §4.E: "picked by declared type (default I32)").
type IntLit struct {
	PosVal Position
	Value  int64
	Type   *DataType
}

func (n *IntLit) Kind() NodeKind      { return KindIntLit }
func (n *IntLit) Pos() Position       { return n.PosVal }
func (n *IntLit) ExprType() *DataType { return n.Type }

// FloatLit is a floating-point literal; IsF32 selects PUSH_F32 vs PUSH_F64.
type FloatLit struct {
	PosVal Position
	Value  float64
	IsF32  bool
}

func (n *FloatLit) Kind() NodeKind { return KindFloatLit }
func (n *FloatLit) Pos() Position  { return n.PosVal }
func (n *FloatLit) ExprType() *DataType {
	if n.IsF32 {
		return &DataType{Kind: F32}
	}
	return &DataType{Kind: F64}
}

// StringLit is a string literal; interned into the program's string pool at
// generation time.
type StringLit struct {
	PosVal Position
	Value  string
}

func (n *StringLit) Kind() NodeKind      { return KindStringLit }
func (n *StringLit) Pos() Position       { return n.PosVal }
func (n *StringLit) ExprType() *DataType { return &DataType{Kind: String} }

// Variable is an identifier use. Decl points back at the declaration site (a
// *VarDecl), set by the external resolver; the generator never performs name
// lookup itself, only slot lookup through the scope stack keyed by Name.
type Variable struct {
	PosVal Position
	Name   string
	Decl   *VarDecl // nil for a reference to a function parameter
	Type   *DataType
}

func (n *Variable) Kind() NodeKind      { return KindVariable }
func (n *Variable) Pos() Position       { return n.PosVal }
func (n *Variable) ExprType() *DataType { return n.Type }

// Binary is a binary operator expression.
type Binary struct {
	PosVal      Position
	Op          BinaryOp
	Left, Right Expr
	Type        *DataType
}

func (n *Binary) Kind() NodeKind      { return KindBinary }
func (n *Binary) Pos() Position       { return n.PosVal }
func (n *Binary) ExprType() *DataType { return n.Type }

// Unary is a unary operator expression.
type Unary struct {
	PosVal Position
	Op     UnaryOp
	X      Expr
	Type   *DataType
}

func (n *Unary) Kind() NodeKind      { return KindUnary }
func (n *Unary) Pos() Position       { return n.PosVal }
func (n *Unary) ExprType() *DataType { return n.Type }

// Call is a function or method call. Object is non-nil for a method call
// (object.method(args...)), in which case the generator pushes &object (or
// object itself if it is already a pointer) as an implicit first argument.
// Name == "syscall" is the special intrinsic (spec §4.E) lowered to SYSCALL
// instead of CALL.
type Call struct {
	PosVal Position
	Object Expr // nil for a plain function call
	Name   string
	Args   []Expr
	Type   *DataType
}

func (n *Call) Kind() NodeKind      { return KindCall }
func (n *Call) Pos() Position       { return n.PosVal }
func (n *Call) ExprType() *DataType { return n.Type }

// Spawn is `spawn f(...)`: starts f as a new coroutine and yields its handle
// (an I32 id) as the expression result.
type Spawn struct {
	PosVal Position
	Call   *Call
}

func (n *Spawn) Kind() NodeKind      { return KindSpawn }
func (n *Spawn) Pos() Position       { return n.PosVal }
func (n *Spawn) ExprType() *DataType { return &DataType{Kind: I32} }

// Await is `await e`, where e evaluates to a coroutine handle.
type Await struct {
	PosVal Position
	X      Expr
	Type   *DataType
}

func (n *Await) Kind() NodeKind      { return KindAwait }
func (n *Await) Pos() Position       { return n.PosVal }
func (n *Await) ExprType() *DataType { return n.Type }

// Member is `object.name`, a struct field access (by value or through a
// pointer — Object's type disambiguates, per the l-value resolver rules in
// spec §4.D).
type Member struct {
	PosVal Position
	Object Expr
	Name   string
	Type   *DataType
}

func (n *Member) Kind() NodeKind      { return KindMember }
func (n *Member) Pos() Position       { return n.PosVal }
func (n *Member) ExprType() *DataType { return n.Type }

// Index is `object[index]`, an array/pointer/string element access.
type Index struct {
	PosVal      Position
	Object      Expr
	IndexExpr   Expr
	Type        *DataType
}

func (n *Index) Kind() NodeKind      { return KindIndex }
func (n *Index) Pos() Position       { return n.PosVal }
func (n *Index) ExprType() *DataType { return n.Type }

// Assign is `lvalue = value`.
type Assign struct {
	PosVal Position
	LValue Expr
	Value  Expr
}

func (n *Assign) Kind() NodeKind      { return KindAssign }
func (n *Assign) Pos() Position       { return n.PosVal }
func (n *Assign) ExprType() *DataType { return n.LValue.ExprType() }

// IncDec is `lvalue++` / `lvalue--`. Inc selects which.
type IncDec struct {
	PosVal Position
	LValue Expr
	Inc    bool
}

func (n *IncDec) Kind() NodeKind      { return KindIncDec }
func (n *IncDec) Pos() Position       { return n.PosVal }
func (n *IncDec) ExprType() *DataType { return n.LValue.ExprType() }

// Vararg is the `...args` expression used as the last argument of a variadic
// call; it sets the high bit of the enclosing CALL/SPAWN/SYSCALL's num_args.
type Vararg struct {
	PosVal Position
	X      Expr
}

func (n *Vararg) Kind() NodeKind      { return KindVararg }
func (n *Vararg) Pos() Position       { return n.PosVal }
func (n *Vararg) ExprType() *DataType { return n.X.ExprType() }

// Sizeof is `sizeof(type)`, resolved to a constant I32 byte size at generation
// time (spec §4.E: "Element-size uses the struct layout table; primitive
// elements occupy one slot (16 bytes)").
type Sizeof struct {
	PosVal Position
	Target DataType
}

func (n *Sizeof) Kind() NodeKind      { return KindSizeof }
func (n *Sizeof) Pos() Position       { return n.PosVal }
func (n *Sizeof) ExprType() *DataType { return &DataType{Kind: I32} }

// ArrayLit is an array-typed declaration's implicit allocation site; it does
// not carry element values (the source language initializes arrays
// element-by-element through Index assignment), only the slot count to
// reserve, mirroring the original's ARR_ALLOC emission from a
// VariableDeclaration of array type.
type ArrayLit struct {
	PosVal Position
	Type   *DataType
}

func (n *ArrayLit) Kind() NodeKind      { return KindArrayLit }
func (n *ArrayLit) Pos() Position       { return n.PosVal }
func (n *ArrayLit) ExprType() *DataType { return n.Type }
