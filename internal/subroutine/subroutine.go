// Package subroutine partitions a flat instruction stream into
// subroutines at JSR targets and the #globals prologue, and carries the
// per-subroutine state (id, range, resolved prototype, initial stack
// layout) every later pass keys off of.
package subroutine

import (
	"sort"

	"github.com/kotor-tools/ncsdecomp/internal/analysis"
	"github.com/kotor-tools/ncsdecomp/internal/ncs"
	"github.com/kotor-tools/ncsdecomp/internal/types"
)

// ID is a stable handle for a subroutine, assigned by Split: the byte
// offset of the subroutine's first instruction.
type ID int

// State is the per-subroutine bookkeeping the spec's "SubroutineState"
// names: identity, range, resolved signature, and flags.
type State struct {
	ID    ID
	Start int
	End   int

	Instructions []ncs.Instruction

	Return     types.Type
	Params     []types.Type
	TotallyPrototyped bool
	IsMain     bool
	IsGlobals  bool

	// InitialStackDepth is the number of slots already on the stack
	// when this subroutine starts executing. Split does not compute it,
	// so it is zero for every subroutine, globals and main included.
	InitialStackDepth int
}

// Set is every subroutine discovered in one file, plus quick lookup by
// entry offset.
type Set struct {
	All       []*State
	byStart   map[int]*State
	Main      *State
	Globals   *State
}

// ByStart returns the subroutine whose entry is exactly offset.
func (s *Set) ByStart(offset int) (*State, bool) {
	st, ok := s.byStart[offset]
	return st, ok
}

// Split partitions instrs into subroutines. The globals subroutine is
// the prologue that runs before the first JSR to main and ends with
// SAVEBP (spec.md §4.4); main is whatever that JSR targets. Every other
// JSR target found anywhere in the stream becomes its own subroutine,
// spanning [target, matching RETN].
func Split(instrs []ncs.Instruction, store *analysis.Store) *Set {
	set := &Set{byStart: make(map[int]*State)}
	if len(instrs) == 0 {
		return set
	}

	jsrTargets := map[int]bool{}
	for _, in := range instrs {
		if in.Op == ncs.OpJSR {
			if dest, ok := store.TryGetDestination(in.Offset); ok {
				jsrTargets[dest] = true
			}
		}
	}

	byOffset := make(map[int]ncs.Instruction, len(instrs))
	for _, in := range instrs {
		byOffset[in.Offset] = in
	}

	starts := make([]int, 0, len(jsrTargets)+1)
	starts = append(starts, instrs[0].Offset)
	for t := range jsrTargets {
		if t != instrs[0].Offset {
			starts = append(starts, t)
		}
	}
	sort.Ints(starts)

	for i, start := range starts {
		end := instrs[len(instrs)-1].Offset
		if i+1 < len(starts) {
			end = prevOffset(instrs, starts[i+1])
		}
		sub := &State{ID: ID(start), Start: start, End: end, Instructions: sliceRange(instrs, start, end)}
		set.All = append(set.All, sub)
		set.byStart[start] = sub
	}

	if len(set.All) > 0 {
		first := set.All[0]
		if endsInSaveBP(first) {
			first.IsGlobals = true
			set.Globals = first
			if len(set.All) > 1 {
				set.All[1].IsMain = true
				set.Main = set.All[1]
			}
		} else {
			first.IsMain = true
			set.Main = first
		}
	}
	return set
}

// endsInSaveBP reports whether sub's last instruction other than a JSR is
// SAVEBP, the calling-convention marker spec.md §4.4 uses to recognize
// the globals prologue.
func endsInSaveBP(sub *State) bool {
	for i := len(sub.Instructions) - 1; i >= 0; i-- {
		op := sub.Instructions[i].Op
		if op == ncs.OpJSR {
			continue
		}
		return op == ncs.OpSaveBP
	}
	return false
}

func sliceRange(instrs []ncs.Instruction, start, end int) []ncs.Instruction {
	var out []ncs.Instruction
	for _, in := range instrs {
		if in.Offset >= start && in.Offset <= end {
			out = append(out, in)
		}
	}
	return out
}

func prevOffset(instrs []ncs.Instruction, before int) int {
	last := before
	for _, in := range instrs {
		if in.Offset < before {
			last = in.Offset
		} else {
			break
		}
	}
	return last
}
