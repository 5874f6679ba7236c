package analysis

import "github.com/kotor-tools/ncsdecomp/internal/ncs"

// SetDeadCode computes reachability from entryOffset across
// unconditional jumps, conditional jumps (both arms), JSR fall-through,
// and RETN terminators, then marks every instruction in instrs that is
// not reachable as dead in store. Dead instructions are never removed —
// TransformDeadCode (in reconstruct) only skips them while advancing
// end-of-scope bookkeeping, per spec.md §4.3.
func SetDeadCode(store *Store, instrs []ncs.Instruction, entryOffset int) {
	byOffset := make(map[int]ncs.Instruction, len(instrs))
	order := make([]int, 0, len(instrs))
	for _, in := range instrs {
		byOffset[in.Offset] = in
		order = append(order, in.Offset)
	}

	reachable := make(map[int]bool, len(instrs))
	var walk func(off int)
	walk = func(off int) {
		for {
			in, ok := byOffset[off]
			if !ok || reachable[off] {
				return
			}
			reachable[off] = true

			switch {
			case in.Op == ncs.OpRetn:
				return
			case in.Op == ncs.OpJMP:
				if dest, ok := store.TryGetDestination(off); ok {
					off = dest
					continue
				}
				return
			case ncs.IsConditionalJump(in.Op):
				if dest, ok := store.TryGetDestination(off); ok {
					walk(dest)
				}
				off = next(order, off)
				continue
			default:
				off = next(order, off)
				continue
			}
		}
	}
	walk(entryOffset)

	for _, off := range order {
		if !reachable[off] {
			store.MarkDead(off)
		}
	}
}

// next returns the offset immediately following off in order (fall-
// through), or -1 if off is the last instruction.
func next(order []int, off int) int {
	for i, o := range order {
		if o == off && i+1 < len(order) {
			return order[i+1]
		}
	}
	return -1
}
