package ast

// TypeKind is the primitive classification of a DataType, mirroring the
// value tags the VM operates on (lang/vm.Value) plus the compile-time-only
// aggregate kinds (Struct, Array, Ptr, Void) that are lowered away by the
// generator before anything reaches the VM.
type TypeKind int

const (
	I8 TypeKind = iota
	I16
	I32
	I64
	F32
	F64
	String
	Ptr
	Struct
	Array
	Void
)

// DataType is the static type of an expression or declaration.
type DataType struct {
	Kind       TypeKind
	StructName string    // valid when Kind == Struct or Kind == Ptr to a struct
	Inner      *DataType // element type for Ptr and Array
	ArrayLen   int       // valid when Kind == Array
}

// IsFloat reports whether the type is one of the floating-point kinds.
func (t *DataType) IsFloat() bool {
	return t != nil && (t.Kind == F32 || t.Kind == F64)
}

// IsStruct reports whether the type directly names a struct (not through a
// pointer or array).
func (t *DataType) IsStruct() bool { return t != nil && t.Kind == Struct }

// StructDecl declares the layout of a struct type. Layouts are computed once
// from the set of StructDecl nodes in a Chunk, before any function body is
// generated (spec §3: "Struct layouts are computed once... then immutable").
type StructDecl struct {
	NamePos Position
	Name    string
	Members []StructMember
}

// StructMember is one field of a struct declaration, in declaration order.
type StructMember struct {
	Name string
	Type DataType
}

func (s *StructDecl) Kind() NodeKind { return KindStructDecl }
func (s *StructDecl) Pos() Position  { return s.NamePos }

// Param is a function parameter: a name and a type, bound to consecutive
// slots starting at 0 in the callee's frame.
type Param struct {
	Name string
	Type DataType
}
