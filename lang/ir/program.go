// Package ir defines the bytecode program artifact — the bytecode buffer,
// string pool, function table and struct layouts the generator (lang/compiler)
// produces and the VM (lang/vm) consumes — plus the emitter that writes it and
// the assembler/disassembler that round-trip it to the `.eab` text format.
package ir

import "github.com/dolthub/swiss"

// FuncInfo describes one function's entry point and frame shape.
type FuncInfo struct {
	Name       string
	EntryAddr  uint32
	NumParams  int
	NumSlots   int
}

// Member is one field of a struct layout: its slot offset within the struct
// and its declared size in slots (1 for a primitive, >1 for a nested struct).
type Member struct {
	Name       string
	SlotOffset int
	Size       int
}

// StructLayout is the immutable, once-computed shape of a struct type.
type StructLayout struct {
	Name       string
	Members    []Member
	TotalSlots int
}

// MemberOffset returns the slot offset and size of the named member, or
// (0, 0, false) if no such member exists.
func (l *StructLayout) MemberOffset(name string) (offset, size int, ok bool) {
	for _, m := range l.Members {
		if m.Name == name {
			return m.SlotOffset, m.Size, true
		}
	}
	return 0, 0, false
}

// Program is the immutable artifact produced by generation: a self-contained
// unit the VM or the disassembler can run over without reference back to the
// AST that produced it.
type Program struct {
	Bytecode      []byte
	Strings       []string
	StringIndex   *swiss.Map[string, uint32]
	Functions     map[string]*FuncInfo
	StructLayouts map[string]*StructLayout
}

// NewProgram returns an empty Program ready for an Emitter to fill in.
func NewProgram() *Program {
	return &Program{
		StringIndex:   swiss.NewMap[string, uint32](16),
		Functions:     make(map[string]*FuncInfo),
		StructLayouts: make(map[string]*StructLayout),
	}
}

// InternString returns the pool id for s, interning it if this is the first
// occurrence. The string pool only grows during generation and is frozen
// once the Program is handed to the VM.
func (p *Program) InternString(s string) uint32 {
	if id, ok := p.StringIndex.Get(s); ok {
		return id
	}
	id := uint32(len(p.Strings))
	p.Strings = append(p.Strings, s)
	p.StringIndex.Put(s, id)
	return id
}

// String returns the pool entry for id. It panics on an out-of-range id: a
// valid Program never contains a PUSH_STR whose id exceeds the pool, per the
// invariant the generator is responsible for upholding.
func (p *Program) String(id uint32) string {
	return p.Strings[id]
}

// Func looks up a function by its fully-qualified name ("name" or
// "Struct::method").
func (p *Program) Func(name string) (*FuncInfo, bool) {
	f, ok := p.Functions[name]
	return f, ok
}

// OpcodeAt decodes the single opcode byte at addr. It does not validate that
// addr is an instruction boundary; a caller that needs that guarantee (the
// disassembler) walks the buffer linearly from a known-good start.
func (p *Program) OpcodeAt(addr uint32) Opcode {
	return Opcode(p.Bytecode[addr])
}
