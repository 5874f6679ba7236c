package analysis

import "github.com/kotor-tools/ncsdecomp/internal/ncs"

// SetDestinations walks instrs once, resolving every jump's absolute
// target (offset + signed jump operand) and recording it in store. A
// jump that resolves past the logical end of the subroutine — i.e. past
// the last instruction in instrs — is clamped to the nearest valid
// instruction (the last one) and returned in the Flagged list, per
// spec.md §4.2, rather than causing the pass to abort.
func SetDestinations(store *Store, instrs []ncs.Instruction) (flagged []int) {
	if len(instrs) == 0 {
		return nil
	}
	last := instrs[len(instrs)-1].Offset
	validOffsets := make(map[int]bool, len(instrs))
	for _, in := range instrs {
		validOffsets[in.Offset] = true
		store.SetPos(in.Offset, in.Offset)
	}

	for _, in := range instrs {
		if !ncs.IsJump(in.Op) && in.Op != ncs.OpJSR {
			continue
		}
		target := in.Offset + int(in.JumpOffset)
		if !validOffsets[target] {
			target = clampTarget(target, last, validOffsets)
			flagged = append(flagged, in.Offset)
		}
		store.SetDestination(in.Offset, target)
	}
	return flagged
}

// clampTarget finds the nearest valid instruction offset to target,
// preferring the next instruction at or after target and falling back
// to the subroutine's last instruction when target overshoots entirely.
func clampTarget(target, last int, valid map[int]bool) int {
	if target > last {
		return last
	}
	for o := target; o <= last; o++ {
		if valid[o] {
			return o
		}
	}
	return last
}
