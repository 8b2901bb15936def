package ir

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Placeholder is a position in the bytecode buffer whose 4-byte address
// operand was written as zero and must be patched once the jump target is
// known.
type Placeholder struct {
	pos uint32
}

type callPatch struct {
	pos  uint32
	name string
}

// Emitter appends instructions to a Program's bytecode buffer. Writes are
// append-only; the only mutation after the fact is patching a previously
// written 4-byte placeholder, never a resize or insert. Call patching is
// deferred: a CALL/SPAWN to a function not yet emitted records its patch site
// and is resolved once every function has been walked.
type Emitter struct {
	prog        *Program
	callPatches []callPatch
}

// NewEmitter returns an Emitter appending to prog's bytecode buffer.
func NewEmitter(prog *Program) *Emitter {
	return &Emitter{prog: prog}
}

func (e *Emitter) here() uint32 { return uint32(len(e.prog.Bytecode)) }

// Pos returns the current end-of-bytecode address, the target to patch a
// jump at the bottom of a loop or the landing site of an if/else branch.
func (e *Emitter) Pos() uint32 { return e.here() }

func (e *Emitter) writeByte(b byte) {
	e.prog.Bytecode = append(e.prog.Bytecode, b)
}

func (e *Emitter) writeU16(v uint16) {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	e.prog.Bytecode = append(e.prog.Bytecode, buf[:]...)
}

func (e *Emitter) writeU32(v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	e.prog.Bytecode = append(e.prog.Bytecode, buf[:]...)
}

func (e *Emitter) writeU64(v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	e.prog.Bytecode = append(e.prog.Bytecode, buf[:]...)
}

func (e *Emitter) op(op Opcode) { e.writeByte(byte(op)) }

// --- literal pushes ---

func (e *Emitter) EmitPushI8(v int8) {
	e.op(PUSH_I8)
	e.writeByte(byte(v))
}

func (e *Emitter) EmitPushI16(v int16) {
	e.op(PUSH_I16)
	e.writeU16(uint16(v))
}

func (e *Emitter) EmitPushI32(v int32) {
	e.op(PUSH_I32)
	e.writeU32(uint32(v))
}

func (e *Emitter) EmitPushI64(v int64) {
	e.op(PUSH_I64)
	e.writeU64(uint64(v))
}

func (e *Emitter) EmitPushF32(v float32) {
	e.op(PUSH_F32)
	e.writeU32(math.Float32bits(v))
}

func (e *Emitter) EmitPushF64(v float64) {
	e.op(PUSH_F64)
	e.writeU64(math.Float64bits(v))
}

// EmitPushStr interns s and emits PUSH_STR with its pool id.
func (e *Emitter) EmitPushStr(s string) {
	id := e.prog.InternString(s)
	e.op(PUSH_STR)
	e.writeU32(id)
}

// --- memory / variables ---

func (e *Emitter) EmitArrAlloc(slots uint32) {
	e.op(ARR_ALLOC)
	e.writeU32(slots)
}

func (e *Emitter) emitSlotOp(op Opcode, slot uint16, size uint8) {
	e.op(op)
	e.writeU16(slot)
	e.writeByte(size)
}

func (e *Emitter) EmitLoadVar(slot uint16, size uint8)     { e.emitSlotOp(LOAD_VAR, slot, size) }
func (e *Emitter) EmitStoreVar(slot uint16, size uint8)    { e.emitSlotOp(STORE_VAR, slot, size) }
func (e *Emitter) EmitLoadGlobal(slot uint16, size uint8)  { e.emitSlotOp(LOAD_GLOBAL, slot, size) }
func (e *Emitter) EmitStoreGlobal(slot uint16, size uint8) { e.emitSlotOp(STORE_GLOBAL, slot, size) }

func (e *Emitter) EmitLeaStack(slot uint16) {
	e.op(LEA_STACK)
	e.writeU16(slot)
}

func (e *Emitter) EmitLeaGlobal(slot uint16) {
	e.op(LEA_GLOBAL)
	e.writeU16(slot)
}

func (e *Emitter) emitPtrOp(op Opcode, offset uint32, size uint8) {
	e.op(op)
	e.writeU32(offset)
	e.writeByte(size)
}

func (e *Emitter) EmitLoadPtrOffset(offset uint32, size uint8) {
	e.emitPtrOp(LOAD_PTR_OFFSET, offset, size)
}

func (e *Emitter) EmitStorePtrOffset(offset uint32, size uint8) {
	e.emitPtrOp(STORE_PTR_OFFSET, offset, size)
}

// --- arithmetic / comparison / misc no-operand opcodes ---

func (e *Emitter) Emit(op Opcode) { e.op(op) }

// --- jumps ---

// EmitJump writes op (JMP or JZ) followed by a 4-byte zero placeholder and
// returns it for a later PatchJump call.
func (e *Emitter) EmitJump(op Opcode) Placeholder {
	e.op(op)
	pos := e.here()
	e.writeU32(0)
	return Placeholder{pos: pos}
}

// PatchJump overwrites the placeholder's operand with target.
func (e *Emitter) PatchJump(ph Placeholder, target uint32) {
	binary.LittleEndian.PutUint32(e.prog.Bytecode[ph.pos:ph.pos+4], target)
}

// --- calls ---

func packNumArgs(numArgs int, variadic bool) uint8 {
	n := uint8(numArgs)
	if variadic {
		n |= VarargsFlag
	}
	return n
}

// EmitCall emits a CALL to name. If name is already in the function table,
// its entry address is written directly; otherwise a zero placeholder is
// written and the call site is recorded for ResolveCalls to patch once every
// function has been generated.
func (e *Emitter) EmitCall(name string, numArgs int, variadic bool) {
	e.emitCallLike(CALL, name, numArgs, variadic)
}

// EmitSpawn emits a SPAWN to name, same patching rules as EmitCall.
func (e *Emitter) EmitSpawn(name string, numArgs int, variadic bool) {
	e.emitCallLike(SPAWN, name, numArgs, variadic)
}

// SpawnSyscallTarget is the sentinel SPAWN target meaning "this coroutine's
// entire body is one async syscall" (spec §9 supplemented feature, ported
// from original_source's SpawnExpression handling of a bare syscall call):
// the scheduler finishes the coroutine directly on I/O completion rather than
// through a RET.
const SpawnSyscallTarget uint32 = 0xFFFFFFFF

// EmitSpawnRaw emits a SPAWN to a fixed numeric target, bypassing function
// name resolution — used only for SpawnSyscallTarget.
func (e *Emitter) EmitSpawnRaw(addr uint32, numArgs int, variadic bool) {
	e.op(SPAWN)
	e.writeU32(addr)
	e.writeByte(packNumArgs(numArgs, variadic))
}

func (e *Emitter) emitCallLike(op Opcode, name string, numArgs int, variadic bool) {
	e.op(op)
	pos := e.here()
	if fi, ok := e.prog.Func(name); ok {
		e.writeU32(fi.EntryAddr)
	} else {
		e.writeU32(0)
		e.callPatches = append(e.callPatches, callPatch{pos: pos, name: name})
	}
	e.writeByte(packNumArgs(numArgs, variadic))
}

// EmitSyscall emits a SYSCALL intrinsic call.
func (e *Emitter) EmitSyscall(numArgs int, variadic bool) {
	e.op(SYSCALL)
	e.writeByte(packNumArgs(numArgs, variadic))
}

// EmitRet emits RET with the given return-value slot count.
func (e *Emitter) EmitRet(size uint8) {
	e.op(RET)
	e.writeByte(size)
}

// ResolveCalls patches every deferred call/spawn site against the now-complete
// function table. Must be called once, after every function has been walked.
func (e *Emitter) ResolveCalls() error {
	for _, cp := range e.callPatches {
		fi, ok := e.prog.Func(cp.name)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownFunction, cp.name)
		}
		binary.LittleEndian.PutUint32(e.prog.Bytecode[cp.pos:cp.pos+4], fi.EntryAddr)
	}
	e.callPatches = nil
	return nil
}
