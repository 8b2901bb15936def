package compiler

import (
	"fmt"

	"github.com/dariomnz/etherc/lang/ast"
	"github.com/dariomnz/etherc/lang/ir"
)

const maxSlots = 65535

// Generate walks chunk and produces an immutable ir.Program. An AST that
// passed semantic analysis should always generate a valid, executable
// program; Generate does not re-check types, only structural invariants the
// front end is assumed to guarantee (unknown struct/variable names, call
// targets, slot overflow).
func Generate(chunk *ast.Chunk) (*ir.Program, error) {
	prog := ir.NewProgram()
	g := &generator{
		prog:   prog,
		e:      ir.NewEmitter(prog),
		global: newScope(nil),
	}

	if err := g.computeStructLayouts(chunk.Structs); err != nil {
		return nil, err
	}

	nextGlobalSlot := 0
	for _, vd := range chunk.Globals {
		size := g.slotSize(&vd.Type)
		g.global.declare(vd.Name, Symbol{Slot: nextGlobalSlot, Size: size, IsGlobal: true, Type: &vd.Type})
		nextGlobalSlot += size
	}

	for _, fn := range chunk.Functions {
		name := qualifiedName(fn)
		prog.Functions[name] = &ir.FuncInfo{Name: name, EntryAddr: g.e.Pos()}
		if err := g.genFunction(fn, chunk.Globals); err != nil {
			return nil, err
		}
	}

	if err := g.e.ResolveCalls(); err != nil {
		return nil, err
	}
	return prog, nil
}

func qualifiedName(fn *ast.Function) string {
	if fn.StructName != "" {
		return fn.StructName + "::" + fn.Name
	}
	return fn.Name
}

// generator holds the state shared across every function in a Chunk: the
// program being built, the emitter appending to it, and the global scope.
type generator struct {
	prog   *ir.Program
	e      *ir.Emitter
	global *Scope
}

// structLayout returns t's struct layout from the table computeStructLayouts
// filled in; it does not compute missing layouts, and an unknown name is
// ErrUnknownStruct. t must name a struct either directly or through Inner
// (Ptr/Array).
func (g *generator) structLayout(t *ast.DataType) (*ir.StructLayout, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil type", ErrUnknownStruct)
	}
	name := t.StructName
	if name == "" && t.Inner != nil {
		return g.structLayout(t.Inner)
	}
	if l, ok := g.prog.StructLayouts[name]; ok {
		return l, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownStruct, name)
}

// computeStructLayouts resolves every struct's member offsets once, in an
// order that tolerates forward references between struct declarations
// (struct A embedding struct B declared later in the Chunk): it repeatedly
// computes whichever remaining structs have every member type already
// resolvable, until none remain or a pass makes no progress (a cycle of
// by-value embedding, which is not representable in finite storage).
func (g *generator) computeStructLayouts(decls []*ast.StructDecl) error {
	pending := make(map[string]*ast.StructDecl, len(decls))
	for _, sd := range decls {
		pending[sd.Name] = sd
	}
	for len(pending) > 0 {
		progressed := false
		for name, sd := range pending {
			if !g.membersResolvable(sd) {
				continue
			}
			layout := &ir.StructLayout{Name: sd.Name}
			offset := 0
			for _, m := range sd.Members {
				size := g.slotSize(&m.Type)
				layout.Members = append(layout.Members, ir.Member{Name: m.Name, SlotOffset: offset, Size: size})
				offset += size
			}
			layout.TotalSlots = offset
			g.prog.StructLayouts[sd.Name] = layout
			delete(pending, name)
			progressed = true
		}
		if !progressed {
			var names []string
			for name := range pending {
				names = append(names, name)
			}
			return fmt.Errorf("%w: cyclic by-value struct embedding in %v", ErrUnknownStruct, names)
		}
	}
	return nil
}

func (g *generator) membersResolvable(sd *ast.StructDecl) bool {
	for _, m := range sd.Members {
		if m.Type.Kind == ast.Struct {
			if _, ok := g.prog.StructLayouts[m.Type.StructName]; !ok {
				return false
			}
		}
	}
	return true
}

// slotSize returns how many 16-byte Value slots a variable of type t
// occupies: 1 for every primitive, pointer and array handle, TotalSlots for a
// by-value struct.
func (g *generator) slotSize(t *ast.DataType) int {
	if t == nil || t.Kind != ast.Struct {
		return 1
	}
	if l, err := g.structLayout(t); err == nil {
		return l.TotalSlots
	}
	return 1
}

// funcGen is the per-function generation context: its own scope chain and
// slot counter. Globals live in generator.global and are visible from every
// funcGen via lookup's fallthrough.
type funcGen struct {
	g        *generator
	e        *ir.Emitter
	scope    *Scope
	nextSlot int
	fn       *ast.Function
}

func (g *generator) genFunction(fn *ast.Function, globals []*ast.VarDecl) error {
	fg := &funcGen{g: g, e: g.e, fn: fn}
	fg.scope = newScope(nil)

	if fn.StructName != "" {
		fg.declareParam("self", &ast.DataType{Kind: ast.Ptr, StructName: fn.StructName, Inner: &ast.DataType{Kind: ast.Struct, StructName: fn.StructName}})
	}
	for _, p := range fn.Params {
		fg.declareParam(p.Name, &p.Type)
	}

	numParams := fg.nextSlot

	// Global-initialization prelude: main runs first, so its body is prefixed
	// with STORE_GLOBAL for every global that has an initializer.
	if fn.Name == "main" && fn.StructName == "" {
		for _, vd := range globals {
			if vd.Init == nil {
				continue
			}
			if err := fg.genExpr(vd.Init); err != nil {
				return err
			}
			sym, _ := g.global.lookup(vd.Name)
			fg.e.EmitStoreGlobal(uint16(sym.Slot), uint8(sym.Size))
		}
	}

	if err := fg.genBlock(fn.Body); err != nil {
		return err
	}
	if !blockAlwaysReturns(fn.Body) {
		fg.e.EmitPushI32(0)
		fg.e.EmitRet(1)
	}

	if fg.nextSlot > maxSlots {
		return fmt.Errorf("%w: %s has %d slots", ErrOverlongSlot, qualifiedName(fn), fg.nextSlot)
	}

	name := qualifiedName(fn)
	fi := g.prog.Functions[name]
	fi.NumParams = numParams
	fi.NumSlots = fg.nextSlot
	return nil
}

func (fg *funcGen) declareParam(name string, t *ast.DataType) {
	size := fg.g.slotSize(t)
	fg.scope.declare(name, Symbol{Slot: fg.nextSlot, Size: size, Type: t})
	fg.nextSlot += size
}

func (fg *funcGen) declareLocal(name string, t *ast.DataType) Symbol {
	size := fg.g.slotSize(t)
	sym := Symbol{Slot: fg.nextSlot, Size: size, Type: t}
	fg.scope.declare(name, sym)
	fg.nextSlot += size
	return sym
}

func (fg *funcGen) lookup(name string) (Symbol, bool) {
	if sym, ok := fg.scope.lookup(name); ok {
		return sym, true
	}
	return fg.g.global.lookup(name)
}

func (fg *funcGen) pushScope()  { fg.scope = newScope(fg.scope) }
func (fg *funcGen) popScope()   { fg.scope = fg.scope.parent }

func (fg *funcGen) structLayout(t *ast.DataType) (*ir.StructLayout, error) { return fg.g.structLayout(t) }
func (fg *funcGen) genExpr(e ast.Expr) error                               { return fg.genExprImpl(e) }
