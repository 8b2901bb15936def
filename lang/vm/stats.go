package vm

import (
	"fmt"
	"io"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/dariomnz/etherc/lang/ir"
)

// WriteStats prints the per-opcode dispatch table collected when
// CollectStats is set, most-dispatched opcode first (spec §4.G "Stats
// (optional)", supplemented per SPEC_FULL.md §10.1: sorted for stable,
// diffable output rather than Go's unordered map iteration).
func (vm *VM) WriteStats(w io.Writer) {
	opcodes := maps.Keys(vm.stats)
	slices.SortFunc(opcodes, func(a, b ir.Opcode) int {
		sa, sb := vm.stats[a], vm.stats[b]
		switch {
		case sa.Count > sb.Count:
			return -1
		case sa.Count < sb.Count:
			return 1
		default:
			return int(a) - int(b)
		}
	})
	for _, op := range opcodes {
		s := vm.stats[op]
		fmt.Fprintf(w, "%-16s count=%d total_ns=%d\n", op, s.Count, s.TotalNanos)
	}
}
