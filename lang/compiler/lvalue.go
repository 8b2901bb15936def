package compiler

import (
	"fmt"

	"github.com/dariomnz/etherc/lang/ast"
	"github.com/dariomnz/etherc/lang/ir"
)

// SlotBytes is the size in bytes of one Value slot, used to convert a struct
// layout's slot offsets into the byte offsets LOAD_PTR_OFFSET/
// STORE_PTR_OFFSET operate on. Per spec: "primitive elements occupy one slot
// (16 bytes)" — heap memory is addressed as an array of slots, the same unit
// the operand stack uses, not as packed host-native struct bytes.
const SlotBytes = 16

// lvalueKind distinguishes the two addressing modes an l-value resolves to.
type lvalueKind int

const (
	lvStack lvalueKind = iota
	lvHeap
)

// lvalue is the outcome of resolving an expression that denotes a storable
// location (spec §4.D). For lvStack, Slot/IsGlobal/Size address a frame or
// global slot directly. For lvHeap, the resolver has already emitted code
// that leaves a Ptr on the operand stack; Offset is the additional constant
// byte offset to add, and Size is the slot count of the value stored there.
type lvalue struct {
	kind     lvalueKind
	slot     int
	isGlobal bool
	offset   uint32
	size     int
	typ      *ast.DataType
}

// resolveLValue visits expr and produces an lvalue, emitting whatever code is
// necessary to materialize a heap base address along the way.
func (g *funcGen) resolveLValue(expr ast.Expr) (lvalue, error) {
	switch expr.Kind() {
	case ast.KindVariable:
		v := expr.(*ast.Variable)
		sym, ok := g.lookup(v.Name)
		if !ok {
			return lvalue{}, fmt.Errorf("%w: %s", ErrUndefinedVariable, v.Name)
		}
		return lvalue{kind: lvStack, slot: sym.Slot, isGlobal: sym.IsGlobal, size: sym.Size, typ: sym.Type}, nil

	case ast.KindMember:
		m := expr.(*ast.Member)
		return g.resolveMemberLValue(m)

	case ast.KindIndex:
		ix := expr.(*ast.Index)
		return g.resolveIndexLValue(ix)

	default:
		return lvalue{}, fmt.Errorf("%w: %T", ErrBadLValue, expr)
	}
}

func (g *funcGen) resolveMemberLValue(m *ast.Member) (lvalue, error) {
	objType := m.Object.ExprType()

	// Member on a pointer-typed struct: load the pointer value, switch to Heap.
	if objType != nil && objType.Kind == ast.Ptr {
		if err := g.genExpr(m.Object); err != nil {
			return lvalue{}, err
		}
		layout, err := g.structLayout(objType.Inner)
		if err != nil {
			return lvalue{}, err
		}
		off, size, ok := layout.MemberOffset(m.Name)
		if !ok {
			return lvalue{}, fmt.Errorf("%w: %s.%s", ErrUnknownStruct, layout.Name, m.Name)
		}
		return lvalue{kind: lvHeap, offset: uint32(off) * SlotBytes, size: size, typ: m.Type}, nil
	}

	// Member on a value-typed struct (a stack slot) or on an already-Heap
	// target (object is itself a Member/Index chain resolving to Heap):
	// resolve the object as an l-value and add the member offset.
	base, err := g.resolveLValue(m.Object)
	if err != nil {
		return lvalue{}, err
	}
	layout, err := g.structLayout(objType)
	if err != nil {
		return lvalue{}, err
	}
	off, size, ok := layout.MemberOffset(m.Name)
	if !ok {
		return lvalue{}, fmt.Errorf("%w: %s.%s", ErrUnknownStruct, layout.Name, m.Name)
	}
	switch base.kind {
	case lvStack:
		return lvalue{kind: lvStack, slot: base.slot + off, isGlobal: base.isGlobal, size: size, typ: m.Type}, nil
	default: // lvHeap
		return lvalue{kind: lvHeap, offset: base.offset + uint32(off)*SlotBytes, size: size, typ: m.Type}, nil
	}
}

func (g *funcGen) resolveIndexLValue(ix *ast.Index) (lvalue, error) {
	objType := ix.Object.ExprType()
	var elemType *ast.DataType
	if objType != nil {
		elemType = objType.Inner
	}
	elemSize := g.typeSlotSize(elemType)

	// Materialize the base address: for a Ptr or Array-handle variable this is
	// just its value (both are represented as an opaque Ptr on the VM side);
	// for an aggregate already resolved to Heap, it is the existing base.
	if err := g.genExpr(ix.Object); err != nil {
		return lvalue{}, err
	}
	if err := g.genExpr(ix.IndexExpr); err != nil {
		return lvalue{}, err
	}
	// index * (elemSize * SlotBytes) computed at runtime; the generator emits
	// the multiply/add itself rather than folding it into the static Offset,
	// since the index is not known at generation time.
	g.e.EmitPushI32(int32(elemSize * SlotBytes))
	g.e.Emit(ir.MUL)
	g.e.Emit(ir.ADD)
	return lvalue{kind: lvHeap, offset: 0, size: elemSize, typ: elemType}, nil
}

// typeSlotSize returns how many 16-byte slots a value of t occupies.
func (g *funcGen) typeSlotSize(t *ast.DataType) int {
	if t == nil {
		return 1
	}
	if t.Kind == ast.Struct {
		if layout, err := g.structLayout(t); err == nil {
			return layout.TotalSlots
		}
	}
	return 1
}
