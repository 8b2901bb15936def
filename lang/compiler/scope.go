// Package compiler walks a typed lang/ast.Chunk and lowers it to a
// lang/ir.Program: bytecode, string pool, function table and struct layouts.
// It owns the l-value resolver and the scope/symbol-table bookkeeping; the
// byte-level encoding itself lives in lang/ir (Emitter).
package compiler

import (
	"github.com/dariomnz/etherc/lang/ast"
	"github.com/dolthub/swiss"
)

// Symbol is what a name in a Scope resolves to: a frame slot (or global
// slot), its size in slots, and whether it lives in the global scope.
type Symbol struct {
	Slot     int
	Size     int
	IsGlobal bool
	Type     *ast.DataType
}

// Scope is one lexical level of the symbol table: a name -> Symbol map. A
// swiss.Map is used because this table is built append-mostly (declarations
// are inserted once, looked up many times during the enclosing block's
// generation) and is exactly the shape dolthub/swiss targets.
type Scope struct {
	symbols *swiss.Map[string, Symbol]
	parent  *Scope
}

func newScope(parent *Scope) *Scope {
	return &Scope{symbols: swiss.NewMap[string, Symbol](8), parent: parent}
}

// lookup searches this scope and its ancestors, returning the nearest match.
func (s *Scope) lookup(name string) (Symbol, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if sym, ok := sc.symbols.Get(name); ok {
			return sym, true
		}
	}
	return Symbol{}, false
}

func (s *Scope) declare(name string, sym Symbol) {
	s.symbols.Put(name, sym)
}
