// Package prototype implements the fixed-point solver that assigns a
// return type and ordered parameter types to every subroutine (spec.md
// §4.5). It runs before reconstruction: the reconstruction engine needs
// a subroutine's resolved prototype before it can emit a correctly typed
// FcnCallExp for a JSR to it, and mutually-recursive subroutines mean no
// single topological pass suffices — hence the fixed point.
package prototype

import (
	"fmt"

	"github.com/kotor-tools/ncsdecomp/internal/actions"
	"github.com/kotor-tools/ncsdecomp/internal/ncs"
	"github.com/kotor-tools/ncsdecomp/internal/subroutine"
	"github.com/kotor-tools/ncsdecomp/internal/types"
)

// MaxIterations bounds the fixed-point loop. The join lattice (types.Type)
// is finite and every transition is monotone (types.Join never produces
// a value "further" from Unresolved than either input), so convergence
// is guaranteed well under this bound on any real script; it exists only
// as a safety net against pathological or adversarial input, per the
// design note in spec.md §9.
const MaxIterations = 1000

// Warning is a non-fatal note recorded when a subroutine could not be
// fully prototyped within MaxIterations.
type Warning struct {
	Sub     subroutine.ID
	Message string
}

// Run seeds every subroutine's signature at Unresolved/void (globals has
// none; main defaults per convention) and iterates per-subroutine type
// propagation until no subroutine's guess changes, or MaxIterations is
// hit. It returns any subroutines that did not reach
// State.TotallyPrototyped, each defaulted to Int per spec.md §4.5.
func Run(set *subroutine.Set, at *actions.Table, strict bool) []Warning {
	seed(set)

	for iter := 0; iter < MaxIterations; iter++ {
		changed := false
		for _, sub := range set.All {
			if sub.IsGlobals {
				continue
			}
			if propagateOnce(sub, set, at) {
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	var warnings []Warning
	for _, sub := range set.All {
		if sub.IsGlobals {
			sub.TotallyPrototyped = true
			continue
		}
		if !isComplete(sub) {
			defaultUnresolved(sub)
			msg := fmt.Sprintf("subroutine at %06X did not converge to a full prototype; defaulted to int", sub.Start)
			if strict {
				msg = "strict signatures: " + msg
			}
			warnings = append(warnings, Warning{Sub: sub.ID, Message: msg})
		} else {
			sub.TotallyPrototyped = true
		}
	}
	return warnings
}

func seed(set *subroutine.Set) {
	for _, sub := range set.All {
		if sub.IsGlobals {
			continue
		}
		if sub.IsMain {
			// Conventional entry signatures: void main() or
			// int StartingConditional(...). Leave params
			// Unresolved; only the return narrows by convention,
			// and only when no evidence says otherwise.
			sub.Return = types.Void
			continue
		}
	}
}

// propagateOnce runs one symbolic pass over sub's instructions, folding
// discoveries from ACTION signatures (known exactly) and CPDOWNSP writes
// to parameter slots into sub's Params/Return. It reports whether any
// guess changed relative to entry.
func propagateOnce(sub *subroutine.State, set *subroutine.Set, at *actions.Table) bool {
	before := snapshot(sub)

	sim := &simStack{}
	depth := 0
	for _, in := range sub.Instructions {
		switch in.Op {
		case ncs.OpRSAdd:
			sim.push(qualifierType(in.Qualifier))
			depth++
		case ncs.OpConst:
			sim.push(qualifierType(in.Qualifier))
		case ncs.OpCPTopSP, ncs.OpCPTopBP:
			sim.push(types.Unresolved)
		case ncs.OpCPDownSP, ncs.OpCPDownBP:
			t := sim.top()
			paramIdx := paramIndexForOffset(sub, in.StackOffset, depth)
			if paramIdx >= 0 {
				growParams(sub, paramIdx+1)
				sub.Params[paramIdx] = types.Join(sub.Params[paramIdx], t)
			} else if isReturnSlot(sub, in.StackOffset, depth) {
				sub.Return = types.Join(sub.Return, t)
			}
		case ncs.OpAction:
			if a, ok := at.Lookup(int(in.ActionID)); ok {
				for range a.Params {
					sim.pop()
				}
				sim.push(a.Return)
			}
		case ncs.OpJSR:
			if callee, ok := lookupCallee(set, in, sub); ok {
				for range callee.Params {
					sim.pop()
				}
				sim.push(callee.Return)
			}
		case ncs.OpAdd, ncs.OpSub, ncs.OpMul, ncs.OpDiv, ncs.OpMod:
			b := sim.pop()
			a := sim.pop()
			sim.push(types.Join(a, b))
		case ncs.OpEq, ncs.OpNEq, ncs.OpLT, ncs.OpLE, ncs.OpGT, ncs.OpGE, ncs.OpLogAnd, ncs.OpLogOr:
			sim.pop()
			sim.pop()
			sim.push(types.Int)
		case ncs.OpNeg, ncs.OpNot, ncs.OpComp:
			sim.push(sim.pop())
		case ncs.OpRetn:
			// nothing further to learn at a return point itself
		}
	}

	return !equalSnapshot(before, snapshot(sub))
}

func lookupCallee(set *subroutine.Set, call ncs.Instruction, caller *subroutine.State) (*subroutine.State, bool) {
	return set.ByStart(call.Offset + int(call.JumpOffset))
}

// paramIndexForOffset and isReturnSlot translate a CPDOWNSP stack offset
// into "this writes parameter N" or "this writes the return slot",
// using the convention that parameters sit directly above the
// subroutine's preserved frame and the return slot sits directly below
// it. The exact offset arithmetic a real compiler emits is
// implementation-specific; this is a best-effort heuristic consistent
// with spec.md §4.6's CPDOWNSP row, which already treats this as a
// heuristic ("If the destination is above the preserved frame...").
func paramIndexForOffset(sub *subroutine.State, offset int32, depth int) int {
	if offset >= 0 {
		return -1
	}
	idx := -int(offset)/4 - 1
	if idx < 0 {
		return -1
	}
	return idx
}

func isReturnSlot(sub *subroutine.State, offset int32, depth int) bool {
	return offset > 0
}

func growParams(sub *subroutine.State, n int) {
	for len(sub.Params) < n {
		sub.Params = append(sub.Params, types.Unresolved)
	}
}

func qualifierType(q ncs.Qualifier) types.Type {
	switch q {
	case ncs.QualInt:
		return types.Int
	case ncs.QualFloat:
		return types.Float
	case ncs.QualString:
		return types.String
	case ncs.QualObject:
		return types.Object
	case ncs.QualVector:
		return types.Vector
	default:
		return types.Unresolved
	}
}

func isComplete(sub *subroutine.State) bool {
	if sub.Return == types.Unresolved {
		return false
	}
	for _, p := range sub.Params {
		if p == types.Unresolved {
			return false
		}
	}
	return true
}

func defaultUnresolved(sub *subroutine.State) {
	if sub.Return == types.Unresolved {
		sub.Return = types.Int
	}
	for i, p := range sub.Params {
		if p == types.Unresolved {
			sub.Params[i] = types.Int
		}
	}
}

type protoSnapshot struct {
	ret    types.Type
	params string
}

func snapshot(sub *subroutine.State) protoSnapshot {
	s := protoSnapshot{ret: sub.Return}
	for _, p := range sub.Params {
		s.params += p.String() + ","
	}
	return s
}

func equalSnapshot(a, b protoSnapshot) bool {
	return a.ret == b.ret && a.params == b.params
}

// simStack is the minimal symbolic type-stack propagateOnce needs: just
// enough to know what type flows into each CPDOWNSP/ACTION/JSR site.
type simStack struct {
	s []types.Type
}

func (s *simStack) push(t types.Type) { s.s = append(s.s, t) }

func (s *simStack) pop() types.Type {
	if len(s.s) == 0 {
		return types.Unresolved
	}
	t := s.s[len(s.s)-1]
	s.s = s.s[:len(s.s)-1]
	return t
}

func (s *simStack) top() types.Type {
	if len(s.s) == 0 {
		return types.Unresolved
	}
	return s.s[len(s.s)-1]
}
