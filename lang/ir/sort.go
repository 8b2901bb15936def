package ir

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// sortedStructNames returns p's struct names in a stable, deterministic order
// for the disassembler's struct_layouts banner — map iteration order is not
// stable in Go, and a golden-file test needs a stable banner.
func sortedStructNames(p *Program) []string {
	names := maps.Keys(p.StructLayouts)
	slices.Sort(names)
	return names
}

// sortedFuncsByAddr returns p's functions ordered by entry address, the order
// the disassembler walks the bytecode in.
func sortedFuncsByAddr(p *Program) []*FuncInfo {
	fns := maps.Values(p.Functions)
	slices.SortFunc(fns, func(a, b *FuncInfo) int {
		switch {
		case a.EntryAddr < b.EntryAddr:
			return -1
		case a.EntryAddr > b.EntryAddr:
			return 1
		default:
			return 0
		}
	})
	return fns
}
