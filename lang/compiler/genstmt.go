package compiler

import (
	"fmt"

	"github.com/dariomnz/etherc/lang/ast"
	"github.com/dariomnz/etherc/lang/ir"
)

func unhandledStmt(s ast.Stmt) error {
	return fmt.Errorf("compiler: unhandled statement kind %v", s.Kind())
}

// blockAlwaysReturns reports whether every control path through b ends in a
// Return statement, the static check genFunction uses to decide whether it
// must append the implicit `push 0; ret 1` (spec §4.E.3).
func blockAlwaysReturns(b *ast.Block) bool {
	if b == nil || len(b.Stmts) == 0 {
		return false
	}
	return stmtAlwaysReturns(b.Stmts[len(b.Stmts)-1])
}

func stmtAlwaysReturns(s ast.Stmt) bool {
	switch s.Kind() {
	case ast.KindReturn:
		return true
	case ast.KindBlock:
		return blockAlwaysReturns(s.(*ast.Block))
	case ast.KindIf:
		n := s.(*ast.If)
		if n.Else == nil {
			return false
		}
		return blockAlwaysReturns(n.Then) && stmtAlwaysReturns(n.Else)
	default:
		return false
	}
}

// genBlock generates every statement in b within a fresh lexical scope.
func (fg *funcGen) genBlock(b *ast.Block) error {
	fg.pushScope()
	defer fg.popScope()
	for _, s := range b.Stmts {
		if err := fg.genStmt(s); err != nil {
			return err
		}
	}
	return nil
}

func (fg *funcGen) genStmt(s ast.Stmt) error {
	switch s.Kind() {
	case ast.KindBlock:
		return fg.genBlock(s.(*ast.Block))
	case ast.KindIf:
		return fg.genIf(s.(*ast.If))
	case ast.KindFor:
		return fg.genFor(s.(*ast.For))
	case ast.KindReturn:
		return fg.genReturn(s.(*ast.Return))
	case ast.KindVarDecl:
		return fg.genVarDecl(s.(*ast.VarDecl))
	case ast.KindExprStmt:
		return fg.genExprStmt(s.(*ast.ExprStmt))
	case ast.KindYield:
		fg.e.Emit(ir.YIELD)
		return nil
	default:
		return unhandledStmt(s)
	}
}

func (fg *funcGen) genIf(n *ast.If) error {
	if err := fg.genExpr(n.Cond); err != nil {
		return err
	}
	elsePH := fg.e.EmitJump(ir.JZ)
	if err := fg.genBlock(n.Then); err != nil {
		return err
	}
	if n.Else == nil {
		fg.e.PatchJump(elsePH, fg.e.Pos())
		return nil
	}
	endPH := fg.e.EmitJump(ir.JMP)
	fg.e.PatchJump(elsePH, fg.e.Pos())
	if err := fg.genStmt(n.Else); err != nil {
		return err
	}
	fg.e.PatchJump(endPH, fg.e.Pos())
	return nil
}

func (fg *funcGen) genFor(n *ast.For) error {
	fg.pushScope()
	defer fg.popScope()

	if n.Init != nil {
		if err := fg.genStmt(n.Init); err != nil {
			return err
		}
	}
	top := fg.e.Pos()
	var exitPH *ir.Placeholder
	if n.Cond != nil {
		if err := fg.genExpr(n.Cond); err != nil {
			return err
		}
		ph := fg.e.EmitJump(ir.JZ)
		exitPH = &ph
	}
	if err := fg.genBlock(n.Body); err != nil {
		return err
	}
	if n.Post != nil {
		if err := fg.genStmt(n.Post); err != nil {
			return err
		}
	}
	fg.e.PatchJump(fg.e.EmitJump(ir.JMP), top)
	if exitPH != nil {
		fg.e.PatchJump(*exitPH, fg.e.Pos())
	}
	return nil
}

func (fg *funcGen) genReturn(n *ast.Return) error {
	if n.Value == nil {
		fg.e.EmitRet(0)
		return nil
	}
	if err := fg.genExpr(n.Value); err != nil {
		return err
	}
	fg.e.EmitRet(uint8(fg.g.slotSize(n.Value.ExprType())))
	return nil
}

func (fg *funcGen) genVarDecl(n *ast.VarDecl) error {
	sym := fg.declareLocal(n.Name, &n.Type)
	if n.Type.Kind == ast.Array {
		fg.e.EmitArrAlloc(uint32(n.Type.ArrayLen))
		fg.e.EmitStoreVar(uint16(sym.Slot), uint8(sym.Size))
		return nil
	}
	if n.Init == nil {
		return nil
	}
	if err := fg.genExpr(n.Init); err != nil {
		return err
	}
	fg.e.EmitStoreVar(uint16(sym.Slot), uint8(sym.Size))
	return nil
}

func (fg *funcGen) genExprStmt(n *ast.ExprStmt) error {
	if err := fg.genExpr(n.X); err != nil {
		return err
	}
	switch n.X.Kind() {
	case ast.KindAssign, ast.KindIncDec:
		// genAssign/genIncDec end in a store and leave nothing to discard.
		return nil
	}
	if n.X.ExprType() != nil && n.X.ExprType().Kind != ast.Void {
		fg.e.Emit(ir.POP)
	}
	return nil
}
