package vm

// heap is the VM's malloc/free-backed address space (spec §1: "memory is
// either stack-slotted or explicitly malloc/free via syscalls" — this is the
// "explicitly malloc/free" half). It is a single growable Value slice shared
// by every coroutine; allocation is in whole slots (one slot = SlotBytes,
// the same unit the stack and struct layouts use), a simple bump allocator
// with a free list recycling whole allocations (no splitting/coalescing —
// adequate for a toy VM with no long-running fragmentation story).
type heap struct {
	slots []Value
	free  map[uint32][]uint32 // size-in-slots -> list of freed base indices
	sizes map[uint32]uint32   // base -> size-in-slots, for free(ptr) syscall lookups
}

func newHeap() *heap {
	return &heap{free: make(map[uint32][]uint32), sizes: make(map[uint32]uint32)}
}

// alloc reserves sizeSlots contiguous slots and returns their base index.
func (h *heap) alloc(sizeSlots uint32) uint32 {
	if sizeSlots == 0 {
		sizeSlots = 1
	}
	if freed := h.free[sizeSlots]; len(freed) > 0 {
		base := freed[len(freed)-1]
		h.free[sizeSlots] = freed[:len(freed)-1]
		h.sizes[base] = sizeSlots
		return base
	}
	base := uint32(len(h.slots))
	h.slots = append(h.slots, zeroSlots(int(sizeSlots))...)
	h.sizes[base] = sizeSlots
	return base
}

// release returns a prior allocation of sizeSlots starting at base back to the
// free list. Double-free and unknown-size free are not detected — out of
// scope for this VM's error model (a syscall-level misuse, not a fatal VM
// error, per spec §7's "recoverable" classification of syscall misbehavior).
func (h *heap) release(base, sizeSlots uint32) {
	h.free[sizeSlots] = append(h.free[sizeSlots], base)
}

// sizeOf returns the size in slots of the allocation at base, for a
// free(ptr) syscall that only has the address, not the size.
func (h *heap) sizeOf(base uint32) uint32 { return h.sizes[base] }

func (h *heap) at(index uint32) Value       { return h.slots[index] }
func (h *heap) set(index uint32, v Value)   { h.slots[index] = v }

// stringBuffers is the VM-owned table of mutable byte buffers every runtime
// String value is a reference into (see StringRef in value.go): the program's
// string pool (lang/ir.Program.Strings) is immutable, but STR_GET/STR_SET
// need byte-addressable, mutable storage, so every String value materialized
// at run time — whether from PUSH_STR or a syscall result — gets its own
// buffer here.
type stringBuffers struct {
	bufs [][]byte
}

func (t *stringBuffers) intern(s string) StringRef {
	buf := make([]byte, len(s))
	copy(buf, s)
	id := uint32(len(t.bufs))
	t.bufs = append(t.bufs, buf)
	return StringRef{BufID: id, Len: uint32(len(buf))}
}

func (t *stringBuffers) get(ref StringRef) []byte { return t.bufs[ref.BufID] }

func (t *stringBuffers) text(ref StringRef) string { return string(t.bufs[ref.BufID]) }
