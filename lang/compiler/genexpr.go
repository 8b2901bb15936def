package compiler

import (
	"fmt"

	"github.com/dariomnz/etherc/lang/ast"
	"github.com/dariomnz/etherc/lang/ir"
)

// genExprImpl is the exhaustive switch over ast.Expr kinds — the "enumerated
// sum type with an exhaustive match" the design notes call for, in place of a
// visitor's double dispatch.
func (fg *funcGen) genExprImpl(e ast.Expr) error {
	switch e.Kind() {
	case ast.KindIntLit:
		return fg.genIntLit(e.(*ast.IntLit))
	case ast.KindFloatLit:
		n := e.(*ast.FloatLit)
		if n.IsF32 {
			fg.e.EmitPushF32(float32(n.Value))
		} else {
			fg.e.EmitPushF64(n.Value)
		}
		return nil
	case ast.KindStringLit:
		fg.e.EmitPushStr(e.(*ast.StringLit).Value)
		return nil
	case ast.KindVariable:
		return fg.genVariable(e.(*ast.Variable))
	case ast.KindBinary:
		return fg.genBinary(e.(*ast.Binary))
	case ast.KindUnary:
		return fg.genUnary(e.(*ast.Unary))
	case ast.KindCall:
		return fg.genCall(e.(*ast.Call), false)
	case ast.KindSpawn:
		return fg.genSpawn(e.(*ast.Spawn))
	case ast.KindAwait:
		return fg.genAwait(e.(*ast.Await))
	case ast.KindMember:
		return fg.genMember(e.(*ast.Member))
	case ast.KindIndex:
		return fg.genIndex(e.(*ast.Index))
	case ast.KindAssign:
		return fg.genAssign(e.(*ast.Assign))
	case ast.KindIncDec:
		return fg.genIncDec(e.(*ast.IncDec))
	case ast.KindVararg:
		return fg.genExpr(e.(*ast.Vararg).X)
	case ast.KindSizeof:
		fg.e.EmitPushI32(int32(fg.typeSlotSize(&e.(*ast.Sizeof).Target) * SlotBytes))
		return nil
	case ast.KindArrayLit:
		n := e.(*ast.ArrayLit)
		fg.e.EmitArrAlloc(uint32(n.Type.ArrayLen))
		return nil
	default:
		return fmt.Errorf("compiler: unhandled expression kind %v", e.Kind())
	}
}

func (fg *funcGen) genIntLit(n *ast.IntLit) error {
	kind := ast.I32
	if n.Type != nil {
		kind = n.Type.Kind
	}
	switch kind {
	case ast.I8:
		fg.e.EmitPushI8(int8(n.Value))
	case ast.I16:
		fg.e.EmitPushI16(int16(n.Value))
	case ast.I64:
		fg.e.EmitPushI64(n.Value)
	default:
		fg.e.EmitPushI32(int32(n.Value))
	}
	return nil
}

func (fg *funcGen) genVariable(v *ast.Variable) error {
	sym, ok := fg.lookup(v.Name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUndefinedVariable, v.Name)
	}
	if sym.IsGlobal {
		fg.e.EmitLoadGlobal(uint16(sym.Slot), uint8(sym.Size))
	} else {
		fg.e.EmitLoadVar(uint16(sym.Slot), uint8(sym.Size))
	}
	return nil
}

var intBinaryOp = map[ast.BinaryOp]ir.Opcode{
	ast.Add: ir.ADD, ast.Sub: ir.SUB, ast.Mul: ir.MUL, ast.Div: ir.DIV,
	ast.Eq: ir.EQ, ast.Neq: ir.EQ /* negated below */, ast.Lt: ir.LT, ast.Le: ir.LE, ast.Gt: ir.GT, ast.Ge: ir.GE,
}

var floatBinaryOp = map[ast.BinaryOp]ir.Opcode{
	ast.Add: ir.ADD_F, ast.Sub: ir.SUB_F, ast.Mul: ir.MUL_F, ast.Div: ir.DIV_F,
	ast.Eq: ir.EQ_F, ast.Neq: ir.EQ_F, ast.Lt: ir.LT_F, ast.Le: ir.LE_F, ast.Gt: ir.GT_F, ast.Ge: ir.GE_F,
}

func (fg *funcGen) genBinary(n *ast.Binary) error {
	if err := fg.genExpr(n.Left); err != nil {
		return err
	}
	if err := fg.genExpr(n.Right); err != nil {
		return err
	}
	isFloat := n.Left.ExprType().IsFloat() || n.Right.ExprType().IsFloat()
	table := intBinaryOp
	if isFloat {
		table = floatBinaryOp
	}
	op, ok := table[n.Op]
	if !ok {
		return fmt.Errorf("%w: unsupported binary op %v", ErrTypeMismatch, n.Op)
	}
	fg.e.Emit(op)
	if n.Op == ast.Neq {
		// EQ leaves an I32 0/1; negate it with "1 - x" since there is no
		// dedicated NEQ opcode in the ISA (spec §6 lists EQ/LE/LT/GT/GE only).
		fg.e.EmitPushI32(1)
		fg.e.Emit(ir.SUB)
		fg.e.EmitPushI32(-1)
		fg.e.Emit(ir.MUL)
	}
	return nil
}

func (fg *funcGen) genUnary(n *ast.Unary) error {
	if err := fg.genExpr(n.X); err != nil {
		return err
	}
	switch n.Op {
	case ast.Neg:
		// No dedicated negation opcode (spec §6 lists none); synthesize -x as
		// x * -1, the same way Neq rides EQ/SUB/MUL rather than earning its own
		// opcode.
		if n.X.ExprType().IsFloat() {
			fg.e.EmitPushF64(-1)
			fg.e.Emit(ir.MUL_F)
		} else {
			fg.e.EmitPushI32(-1)
			fg.e.Emit(ir.MUL)
		}
	case ast.Not:
		// !x == (x == 0), reusing the comparison opcode rather than a
		// dedicated NOT (the ISA has none).
		fg.e.EmitPushI32(0)
		fg.e.Emit(ir.EQ)
	}
	return nil
}

// genArgs pushes every call argument in order, returning the total slot
// count (num_args, spec §4.E: "total slot count, not logical arg count") and
// whether the call is variadic (its last argument was a Vararg expression).
func (fg *funcGen) genArgs(args []ast.Expr) (int, bool, error) {
	total := 0
	variadic := false
	for i, a := range args {
		if err := fg.genExpr(a); err != nil {
			return 0, false, err
		}
		total += fg.typeSlotSize(a.ExprType())
		if _, ok := a.(*ast.Vararg); ok && i == len(args)-1 {
			variadic = true
		}
	}
	return total, variadic, nil
}

func (fg *funcGen) genCall(n *ast.Call, spawning bool) error {
	numArgs := 0
	variadic := false

	if n.Object != nil {
		// Method call: push &object (or object itself if already a Ptr) as the
		// implicit first argument.
		if err := fg.genReceiver(n.Object); err != nil {
			return err
		}
		numArgs++
	}
	argSlots, v, err := fg.genArgs(n.Args)
	if err != nil {
		return err
	}
	numArgs += argSlots
	variadic = v

	if n.Name == "syscall" {
		fg.e.EmitSyscall(numArgs, variadic)
		return nil
	}

	name := n.Name
	if n.Object != nil {
		name = fg.receiverStructName(n.Object) + "::" + n.Name
	}
	if spawning {
		fg.e.EmitSpawn(name, numArgs, variadic)
	} else {
		fg.e.EmitCall(name, numArgs, variadic)
	}
	return nil
}

// genReceiver evaluates a method call's object expression as the implicit
// first argument: if it is already a pointer, its value; otherwise its
// address (spec §4.E).
func (fg *funcGen) genReceiver(obj ast.Expr) error {
	if t := obj.ExprType(); t != nil && t.Kind == ast.Ptr {
		return fg.genExpr(obj)
	}
	lv, err := fg.resolveLValue(obj)
	if err != nil {
		return err
	}
	return fg.emitAddressOf(lv)
}

func (fg *funcGen) emitAddressOf(lv lvalue) error {
	switch lv.kind {
	case lvStack:
		if lv.isGlobal {
			fg.e.EmitLeaGlobal(uint16(lv.slot))
		} else {
			fg.e.EmitLeaStack(uint16(lv.slot))
		}
		return nil
	default: // lvHeap: the base address is already on the stack; add the offset.
		if lv.offset != 0 {
			fg.e.EmitPushI32(int32(lv.offset))
			fg.e.Emit(ir.ADD)
		}
		return nil
	}
}

func (fg *funcGen) receiverStructName(obj ast.Expr) string {
	t := obj.ExprType()
	if t == nil {
		return ""
	}
	if t.Kind == ast.Ptr && t.Inner != nil {
		return t.Inner.StructName
	}
	return t.StructName
}

func (fg *funcGen) genSpawn(n *ast.Spawn) error {
	if n.Call.Name == "syscall" {
		// A bare `spawn syscall(...)` is its own bytecode shape: the spawned
		// coroutine's entire body is the async call itself, finishing directly
		// on I/O completion rather than through a RET (original_source
		// ir_gen_visit.cpp SpawnExpression) — emitted as a raw SPAWN to the
		// sentinel target instead of a named-function SPAWN/SYSCALL.
		argSlots, variadic, err := fg.genArgs(n.Call.Args)
		if err != nil {
			return err
		}
		fg.e.EmitSpawnRaw(ir.SpawnSyscallTarget, argSlots, variadic)
		return nil
	}
	return fg.genCall(n.Call, true)
}

func (fg *funcGen) genAwait(n *ast.Await) error {
	if err := fg.genExpr(n.X); err != nil {
		return err
	}
	fg.e.Emit(ir.AWAIT)
	return nil
}

func (fg *funcGen) genMember(n *ast.Member) error {
	lv, err := fg.resolveLValue(n)
	if err != nil {
		return err
	}
	return fg.emitLoad(lv)
}

func (fg *funcGen) genIndex(n *ast.Index) error {
	// String byte-indexing special-cases STR_GET (spec §4.E).
	if t := n.Object.ExprType(); t != nil && t.Kind == ast.String {
		if err := fg.genExpr(n.Object); err != nil {
			return err
		}
		if err := fg.genExpr(n.IndexExpr); err != nil {
			return err
		}
		fg.e.Emit(ir.STR_GET)
		return nil
	}
	lv, err := fg.resolveLValue(n)
	if err != nil {
		return err
	}
	return fg.emitLoad(lv)
}

func (fg *funcGen) emitLoad(lv lvalue) error {
	switch lv.kind {
	case lvStack:
		if lv.isGlobal {
			fg.e.EmitLoadGlobal(uint16(lv.slot), uint8(lv.size))
		} else {
			fg.e.EmitLoadVar(uint16(lv.slot), uint8(lv.size))
		}
	default:
		fg.e.EmitLoadPtrOffset(lv.offset, uint8(lv.size))
	}
	return nil
}

func (fg *funcGen) emitStore(lv lvalue) error {
	switch lv.kind {
	case lvStack:
		if lv.isGlobal {
			fg.e.EmitStoreGlobal(uint16(lv.slot), uint8(lv.size))
		} else {
			fg.e.EmitStoreVar(uint16(lv.slot), uint8(lv.size))
		}
	default:
		fg.e.EmitStorePtrOffset(lv.offset, uint8(lv.size))
	}
	return nil
}

func (fg *funcGen) genAssign(n *ast.Assign) error {
	// String byte-indexing special-cases STR_SET.
	if ix, ok := n.LValue.(*ast.Index); ok {
		if t := ix.Object.ExprType(); t != nil && t.Kind == ast.String {
			if err := fg.genExpr(ix.Object); err != nil {
				return err
			}
			if err := fg.genExpr(ix.IndexExpr); err != nil {
				return err
			}
			if err := fg.genExpr(n.Value); err != nil {
				return err
			}
			fg.e.Emit(ir.STR_SET)
			return nil
		}
	}
	lv, err := fg.resolveLValue(n.LValue)
	if err != nil {
		return err
	}
	if err := fg.genExpr(n.Value); err != nil {
		return err
	}
	return fg.emitStore(lv)
}

func (fg *funcGen) genIncDec(n *ast.IncDec) error {
	lv, err := fg.resolveLValue(n.LValue)
	if err != nil {
		return err
	}
	if lv.kind != lvStack {
		// The ISA has no DUP/EXCH: a Heap l-value's address is consumed by
		// LOAD_PTR_OFFSET, and there is no way to preserve it for the matching
		// STORE_PTR_OFFSET without re-evaluating (and potentially
		// re-side-effecting) the address expression. Increment/decrement is
		// only supported on plain variables and value-typed struct members.
		return fmt.Errorf("%w: increment/decrement through a pointer is not supported", ErrBadLValue)
	}
	if err := fg.emitLoad(lv); err != nil {
		return err
	}
	fg.e.EmitPushI32(1)
	if n.Inc {
		fg.e.Emit(ir.ADD)
	} else {
		fg.e.Emit(ir.SUB)
	}
	return fg.emitStore(lv)
}
