package ir

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// This file implements the `.eab` (ether-assembly) textual format: a
// human-readable/writable stand-in for a compiled Program, used for testing
// the generator and the VM without a front end (there is no parser in this
// repo). The format looks like:
//
//	program:
//	strings:
//		"hello=%d\n"
//	structs:
//		struct Point
//			x 0 1
//			y 1 1
//			total 2
//	function: main 0 3
//		code:
//			push_i32 2
//			push_i32 3
//			add
//			ret 1
//
// Lines are split on whitespace and everything after a '#' is dropped, so a
// string-pool entry or push_str operand must be a single Go-quoted token
// with no spaces and no '#'.
//
// Jump and branch operands (jmp/jz) are written as an index into the
// function's own code: list, not a byte address — Asm translates indices to
// addresses while assembling, the same trick the teacher's assembler uses for
// its defer/catch block ranges. call/spawn operands name a function directly;
// Asm resolves them through the same deferred-patch path Emitter.EmitCall
// uses for a forward reference.

// Asm parses the ether-assembly text format into a Program.
func Asm(src []byte) (*Program, error) {
	p := NewProgram()
	e := NewEmitter(p)
	sc := &asmScanner{s: bufio.NewScanner(bytes.NewReader(src))}

	fields := sc.next()
	if len(fields) == 0 || fields[0] != "program:" {
		return nil, sc.errorf("expected 'program:' section")
	}

	fields = sc.next()
	fields = parseStrings(sc, fields, p)
	fields = parseStructs(sc, fields, p)

	for sc.err == nil && len(fields) > 0 && fields[0] == "function:" {
		fields = parseFunction(sc, fields, p, e)
	}
	if sc.err != nil {
		return nil, sc.err
	}
	if len(fields) > 0 {
		return nil, sc.errorf("unexpected section %q", fields[0])
	}
	if _, ok := p.Func("main"); !ok {
		return nil, sc.errorf("missing top-level function %q", "main")
	}
	if err := e.ResolveCalls(); err != nil {
		return nil, err
	}
	return p, nil
}

type asmScanner struct {
	s       *bufio.Scanner
	lineNum int
	err     error
}

func (sc *asmScanner) errorf(format string, args ...any) error {
	return fmt.Errorf("eab:%d: %s", sc.lineNum, fmt.Sprintf(format, args...))
}

// next returns the fields of the next non-blank, non-comment line, or nil at
// EOF.
func (sc *asmScanner) next() []string {
	for sc.s.Scan() {
		sc.lineNum++
		line := sc.s.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		return fields
	}
	return nil
}

func (sc *asmScanner) fail(err error) []string {
	if sc.err == nil {
		sc.err = err
	}
	return nil
}

func (sc *asmScanner) int64(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		sc.fail(sc.errorf("invalid integer %q", s))
	}
	return v
}

func (sc *asmScanner) uint32(s string) uint32 {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		sc.fail(sc.errorf("invalid unsigned integer %q", s))
	}
	return uint32(v)
}

func (sc *asmScanner) float64(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		sc.fail(sc.errorf("invalid float %q", s))
	}
	return v
}

func unquote(s string) (string, error) {
	return strconv.Unquote(s)
}

func parseStrings(sc *asmScanner, fields []string, p *Program) []string {
	if sc.err != nil || len(fields) == 0 || fields[0] != "strings:" {
		return fields
	}
	fields = sc.next()
	for len(fields) == 1 && strings.HasPrefix(fields[0], `"`) {
		s, err := unquote(fields[0])
		if err != nil {
			return sc.fail(sc.errorf("bad string literal: %v", err))
		}
		p.InternString(s)
		fields = sc.next()
	}
	return fields
}

func parseStructs(sc *asmScanner, fields []string, p *Program) []string {
	if sc.err != nil || len(fields) == 0 || fields[0] != "structs:" {
		return fields
	}
	fields = sc.next()
	for len(fields) >= 2 && fields[0] == "struct" {
		name := fields[1]
		layout := &StructLayout{Name: name}
		fields = sc.next()
		for len(fields) == 3 && fields[0] != "function:" {
			offset := int(sc.uint32(fields[1]))
			size := int(sc.uint32(fields[2]))
			layout.Members = append(layout.Members, Member{Name: fields[0], SlotOffset: offset, Size: size})
			layout.TotalSlots = offset + size
			fields = sc.next()
		}
		if len(fields) == 2 && fields[0] == "total" {
			layout.TotalSlots = int(sc.uint32(fields[1]))
			fields = sc.next()
		}
		p.StructLayouts[name] = layout
	}
	return fields
}

// instr is one parsed instruction line, still in source form: its opcode and
// its raw operand tokens.
type instr struct {
	op      Opcode
	tokens  []string
	lineNum int
}

func parseFunction(sc *asmScanner, fields []string, p *Program, e *Emitter) []string {
	if len(fields) < 3 {
		return sc.fail(sc.errorf("invalid function header: want 'function: NAME params slots'"))
	}
	name := fields[1]
	numParams, err := strconv.Atoi(fields[2])
	if err != nil {
		return sc.fail(sc.errorf("invalid params count: %v", err))
	}
	numSlots := numParams
	if len(fields) >= 4 {
		numSlots, err = strconv.Atoi(fields[3])
		if err != nil {
			return sc.fail(sc.errorf("invalid slots count: %v", err))
		}
	}

	fields = sc.next()
	if len(fields) == 0 || fields[0] != "code:" {
		return sc.fail(sc.errorf("function %q: expected 'code:' section", name))
	}

	entryAddr := uint32(len(p.Bytecode))
	p.Functions[name] = &FuncInfo{Name: name, EntryAddr: entryAddr, NumParams: numParams, NumSlots: numSlots}

	var instrs []instr
	addrs := []uint32{entryAddr}
	fields = sc.next()
	for len(fields) > 0 && fields[0] != "function:" {
		mnemonic := strings.ToLower(fields[0])
		op, ok := reverseLookupOpcode[mnemonic]
		if !ok {
			return sc.fail(sc.errorf("unknown opcode %q", fields[0]))
		}
		instrs = append(instrs, instr{op: op, tokens: fields[1:], lineNum: sc.lineNum})
		addrs = append(addrs, addrs[len(addrs)-1]+uint32(instrLen(op)))
		fields = sc.next()
	}

	if numSlots < numParams {
		return sc.fail(sc.errorf("function %q: num_slots < num_params", name))
	}
	for _, in := range instrs {
		emitInstr(sc, e, in, addrs)
		if sc.err != nil {
			return nil
		}
	}
	return fields
}

// emitInstr re-emits one parsed instruction through the Emitter, translating
// jump/branch operand indices (into this function's instruction list) to
// absolute bytecode addresses via addrs.
func emitInstr(sc *asmScanner, e *Emitter, in instr, addrs []uint32) {
	want := func(n int) bool {
		if len(in.tokens) != n {
			sc.fail(sc.errorf("%v: want %d operand(s), got %d", in.op, n, len(in.tokens)))
			return false
		}
		return true
	}

	switch in.op {
	case NOP, STR_GET, STR_SET,
		ADD, SUB, MUL, DIV, ADD_F, SUB_F, MUL_F, DIV_F,
		EQ, LE, LT, GT, GE, EQ_F, LE_F, LT_F, GT_F, GE_F,
		YIELD, AWAIT, PUSH_VARARGS, POP, HALT:
		if want(0) {
			e.Emit(in.op)
		}

	case PUSH_I8:
		if want(1) {
			e.EmitPushI8(int8(sc.int64(in.tokens[0])))
		}
	case PUSH_I16:
		if want(1) {
			e.EmitPushI16(int16(sc.int64(in.tokens[0])))
		}
	case PUSH_I32:
		if want(1) {
			e.EmitPushI32(int32(sc.int64(in.tokens[0])))
		}
	case PUSH_I64:
		if want(1) {
			e.EmitPushI64(sc.int64(in.tokens[0]))
		}
	case PUSH_F32:
		if want(1) {
			e.EmitPushF32(float32(sc.float64(in.tokens[0])))
		}
	case PUSH_F64:
		if want(1) {
			e.EmitPushF64(sc.float64(in.tokens[0]))
		}
	case PUSH_STR:
		if want(1) {
			s, err := unquote(in.tokens[0])
			if err != nil {
				sc.fail(sc.errorf("bad string literal: %v", err))
				return
			}
			e.EmitPushStr(s)
		}

	case ARR_ALLOC:
		if want(1) {
			e.EmitArrAlloc(sc.uint32(in.tokens[0]))
		}

	case LOAD_VAR:
		if want(2) {
			e.EmitLoadVar(uint16(sc.uint32(in.tokens[0])), uint8(sc.uint32(in.tokens[1])))
		}
	case STORE_VAR:
		if want(2) {
			e.EmitStoreVar(uint16(sc.uint32(in.tokens[0])), uint8(sc.uint32(in.tokens[1])))
		}
	case LOAD_GLOBAL:
		if want(2) {
			e.EmitLoadGlobal(uint16(sc.uint32(in.tokens[0])), uint8(sc.uint32(in.tokens[1])))
		}
	case STORE_GLOBAL:
		if want(2) {
			e.EmitStoreGlobal(uint16(sc.uint32(in.tokens[0])), uint8(sc.uint32(in.tokens[1])))
		}
	case LEA_STACK:
		if want(1) {
			e.EmitLeaStack(uint16(sc.uint32(in.tokens[0])))
		}
	case LEA_GLOBAL:
		if want(1) {
			e.EmitLeaGlobal(uint16(sc.uint32(in.tokens[0])))
		}
	case LOAD_PTR_OFFSET:
		if want(2) {
			e.EmitLoadPtrOffset(sc.uint32(in.tokens[0]), uint8(sc.uint32(in.tokens[1])))
		}
	case STORE_PTR_OFFSET:
		if want(2) {
			e.EmitStorePtrOffset(sc.uint32(in.tokens[0]), uint8(sc.uint32(in.tokens[1])))
		}

	case JMP, JZ:
		if want(1) {
			target := int(sc.int64(in.tokens[0]))
			if target < 0 || target >= len(addrs) {
				sc.fail(fmt.Errorf("eab:%d: %w: jump target index %d", sc.lineNum, ErrBadAddress, target))
				return
			}
			ph := e.EmitJump(in.op)
			e.PatchJump(ph, addrs[target])
		}

	case CALL, SPAWN:
		if len(in.tokens) < 1 {
			sc.fail(sc.errorf("%v: want at least a function name operand", in.op))
			return
		}
		name := in.tokens[0]
		variadic := false
		numArgs := 0
		rest := in.tokens[1:]
		if len(rest) > 0 && rest[len(rest)-1] == "variadic" {
			variadic = true
			rest = rest[:len(rest)-1]
		}
		if len(rest) == 1 {
			numArgs = int(sc.uint32(rest[0]))
		}
		switch {
		case in.op == CALL:
			e.EmitCall(name, numArgs, variadic)
		case name == "syscall":
			// `spawn syscall N` writes the SpawnSyscallTarget sentinel directly:
			// a coroutine whose whole body is one async syscall (spec §9).
			e.EmitSpawnRaw(SpawnSyscallTarget, numArgs, variadic)
		default:
			e.EmitSpawn(name, numArgs, variadic)
		}

	case SYSCALL:
		variadic := false
		tokens := in.tokens
		if len(tokens) > 0 && tokens[len(tokens)-1] == "variadic" {
			variadic = true
			tokens = tokens[:len(tokens)-1]
		}
		numArgs := 0
		if len(tokens) == 1 {
			numArgs = int(sc.uint32(tokens[0]))
		}
		e.EmitSyscall(numArgs, variadic)

	case RET:
		if want(1) {
			e.EmitRet(uint8(sc.uint32(in.tokens[0])))
		}

	default:
		sc.fail(sc.errorf("unhandled opcode %v in assembler", in.op))
	}
}

// Dasm renders p as the human-readable disassembly text: one function banner
// per function (sorted by entry address, stably), each followed by
// `addr: opcode operands`, resolving call/jump targets to the owning
// function's symbolic name when the address lands exactly on an entry point.
func Dasm(p *Program) string {
	var b strings.Builder
	fmt.Fprintf(&b, "struct_layouts:\n")
	for _, name := range sortedStructNames(p) {
		l := p.StructLayouts[name]
		fmt.Fprintf(&b, "  %s (slots: %d)\n", l.Name, l.TotalSlots)
		for _, m := range l.Members {
			fmt.Fprintf(&b, "    %s: offset %d, size %d\n", m.Name, m.SlotOffset, m.Size)
		}
	}

	funcsByAddr := sortedFuncsByAddr(p)
	addrToFunc := make(map[uint32]string, len(funcsByAddr))
	for _, f := range funcsByAddr {
		addrToFunc[f.EntryAddr] = f.Name
	}

	for _, f := range funcsByAddr {
		fmt.Fprintf(&b, "\nfunction: %s (params: %d, slots: %d) @%d\n", f.Name, f.NumParams, f.NumSlots, f.EntryAddr)
		end := uint32(len(p.Bytecode))
		for _, g := range funcsByAddr {
			if g.EntryAddr > f.EntryAddr {
				end = g.EntryAddr
				break
			}
		}
		dasmRange(&b, p, f.EntryAddr, end, addrToFunc)
	}
	return b.String()
}

func dasmRange(b *strings.Builder, p *Program, start, end uint32, addrToFunc map[uint32]string) {
	addr := start
	for addr < end {
		op := p.OpcodeAt(addr)
		fmt.Fprintf(b, "  %6d: %-16s", addr, op.String())
		operandAddr := addr + 1
		switch operandSchedules[op] {
		case opU8:
			fmt.Fprintf(b, "%d", p.Bytecode[operandAddr])
		case opU16:
			fmt.Fprintf(b, "%d", readU16(p.Bytecode, operandAddr))
		case opU32:
			v := readU32(p.Bytecode, operandAddr)
			if op == PUSH_STR {
				fmt.Fprintf(b, "%d %q", v, safeString(p, v))
			} else {
				fmt.Fprintf(b, "%d", v)
			}
			if isJumpOrCall(op) {
				if name, ok := addrToFunc[v]; ok {
					fmt.Fprintf(b, " (%s)", name)
				}
			}
		case opU64:
			fmt.Fprintf(b, "%d", readU64(p.Bytecode, operandAddr))
		case opU16U8:
			fmt.Fprintf(b, "%d %d", readU16(p.Bytecode, operandAddr), p.Bytecode[operandAddr+2])
		case opU32U8:
			v := readU32(p.Bytecode, operandAddr)
			na := p.Bytecode[operandAddr+4]
			if isJumpOrCall(op) {
				name := addrToFunc[v]
				variadic := ""
				if na&VarargsFlag != 0 {
					variadic = " variadic"
				}
				fmt.Fprintf(b, "%s(%d) args=%d%s", name, v, na&^VarargsFlag, variadic)
			} else {
				fmt.Fprintf(b, "%d %d", v, na)
			}
		}
		b.WriteByte('\n')
		addr += uint32(instrLen(op))
	}
}

func safeString(p *Program, id uint32) string {
	if int(id) >= len(p.Strings) {
		return "<bad string id>"
	}
	return p.Strings[id]
}

func readU16(b []byte, addr uint32) uint16 {
	return uint16(b[addr]) | uint16(b[addr+1])<<8
}

func readU32(b []byte, addr uint32) uint32 {
	return uint32(b[addr]) | uint32(b[addr+1])<<8 | uint32(b[addr+2])<<16 | uint32(b[addr+3])<<24
}

func readU64(b []byte, addr uint32) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[addr+uint32(i)]) << (8 * i)
	}
	return v
}
