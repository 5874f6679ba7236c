package reconstruct

import (
	"github.com/kotor-tools/ncsdecomp/internal/ncs"
	"github.com/kotor-tools/ncsdecomp/internal/tree"
	"github.com/kotor-tools/ncsdecomp/internal/types"
)

// CalleeInfo is the minimal view MainPass needs of a JSR target's
// resolved prototype, decoupling reconstruct from the subroutine
// package's full State.
type CalleeInfo struct {
	Name       string
	ParamCount int
	Return     types.Type
}

// CalleeLookup resolves a JSR's absolute destination to the callee's
// resolved signature.
type CalleeLookup func(destOffset int) (CalleeInfo, bool)

// MainPass replays every instruction of s.Sub in order, mutating s.Tree
// until the subroutine's simulated stack is exhausted and mode reaches
// Done (or the instruction list runs out, whichever first — running out
// before Done is recorded in s.Diagnostics, which the caller reports).
func MainPass(s *State, lookupCallee CalleeLookup) {
	instrs := s.Sub.Instructions
	for i := 0; i < len(instrs); i++ {
		in := instrs[i]
		if s.Store.IsDead(in.Offset) {
			s.checkEnd(in) // TransformDeadCode: skip, still advance end-of-scope bookkeeping
			continue
		}

		if origins := s.Store.Origins(in.Offset); len(origins) > 0 && s.mode != Done {
			s.handleOriginFound(in, origins, instrs, i)
		}

		s.dispatch(in, instrs, i, lookupCallee)

		if s.mode == Done {
			break
		}
	}
	s.checkEndOfSubroutine()
}

func (s *State) dispatch(in ncs.Instruction, instrs []ncs.Instruction, idx int, lookupCallee CalleeLookup) {
	switch in.Op {
	case ncs.OpConst:
		s.transformConst(in)
	case ncs.OpRSAdd:
		s.transformRSAdd(in)
	case ncs.OpCPTopSP, ncs.OpCPTopBP:
		s.transformCPTop(in)
	case ncs.OpCPDownSP, ncs.OpCPDownBP:
		s.transformCPDown(in)
	case ncs.OpAdd:
		s.transformBinary(in, tree.OpAdd, false)
	case ncs.OpSub:
		s.transformBinary(in, tree.OpSub, false)
	case ncs.OpMul:
		s.transformBinary(in, tree.OpMul, false)
	case ncs.OpDiv:
		s.transformBinary(in, tree.OpDiv, false)
	case ncs.OpMod:
		s.transformBinary(in, tree.OpMod, false)
	case ncs.OpBitAnd:
		s.transformBinary(in, tree.OpBitAnd, false)
	case ncs.OpBitOr:
		s.transformBinary(in, tree.OpBitOr, false)
	case ncs.OpBitXor:
		s.transformBinary(in, tree.OpBitXor, false)
	case ncs.OpShLeft:
		s.transformBinary(in, tree.OpShl, false)
	case ncs.OpShRight:
		s.transformBinary(in, tree.OpShr, false)
	case ncs.OpEq:
		s.transformBinary(in, tree.OpEq, true)
	case ncs.OpNEq:
		s.transformBinary(in, tree.OpNEq, true)
	case ncs.OpLT:
		s.transformBinary(in, tree.OpLT, true)
	case ncs.OpLE:
		s.transformBinary(in, tree.OpLE, true)
	case ncs.OpGT:
		s.transformBinary(in, tree.OpGT, true)
	case ncs.OpGE:
		s.transformBinary(in, tree.OpGE, true)
	case ncs.OpLogAnd:
		s.transformBinary(in, tree.OpLogAnd, true)
	case ncs.OpLogOr:
		s.transformBinary(in, tree.OpLogOr, true)
	case ncs.OpNeg:
		s.transformUnary(in, tree.UnNeg)
	case ncs.OpNot:
		s.transformUnary(in, tree.UnNot)
	case ncs.OpComp:
		s.transformUnary(in, tree.UnCmp)
	case ncs.OpIncISP:
		s.transformIncDec(in, "++")
	case ncs.OpDecISP:
		s.transformIncDec(in, "--")
	case ncs.OpDestruct:
		s.transformDestruct(in)
	case ncs.OpJSR:
		s.dispatchJSR(in, lookupCallee)
	case ncs.OpAction:
		s.transformAction(in)
	case ncs.OpJMP:
		s.transformJMPClassified(in, instrs, idx)
	case ncs.OpJZ, ncs.OpJNZ:
		s.transformConditionalJump(in, instrs, idx)
	case ncs.OpRetn:
		s.transformRetn(in)
	case ncs.OpMovSP:
		s.transformMovSP(in)
	case ncs.OpStoreState:
		s.transformStoreState(in)
	case ncs.OpSaveBP, ncs.OpRestoreBP:
		s.transformFrameMarker(in)
	default:
		s.checkStart(in)
		s.errorComment(in.Offset, "unrecognized opcode")
		s.checkEnd(in)
	}
}

func (s *State) dispatchJSR(in ncs.Instruction, lookupCallee CalleeLookup) {
	dest, ok := in.AbsoluteDestination()
	if !ok {
		s.checkStart(in)
		s.errorComment(in.Offset, "JSR with unresolved destination")
		s.checkEnd(in)
		return
	}
	info, found := lookupCallee(dest)
	if !found {
		s.transformJSR(in, "UnresolvedSub", 0, types.Void)
		return
	}
	s.transformJSR(in, info.Name, info.ParamCount, info.Return)
}

// handleOriginFound implements spec.md §4.6's loop discovery: when
// SetDestinations flagged a back-edge into in's offset, inspect the
// back-edge instruction itself. A conditional jump there (JZ/JNZ) is the
// classic do-loop tail test; an unconditional JMP back-edge is a while
// loop whose condition binds on the next JZ encountered.
func (s *State) handleOriginFound(in ncs.Instruction, origins []int, instrs []ncs.Instruction, idx int) {
	for _, origin := range origins {
		if origin <= in.Offset {
			continue // forward jump into this point, not a back-edge
		}
		backEdge := findAt(instrs, origin)
		if backEdge != nil && ncs.IsConditionalJump(backEdge.Op) {
			s.openDoLoop(in.Offset, origin)
		} else {
			s.openWhileLoop(in.Offset)
		}
		return
	}
}

func findAt(instrs []ncs.Instruction, offset int) *ncs.Instruction {
	for i, in := range instrs {
		if in.Offset == offset {
			return &instrs[i]
		}
	}
	return nil
}

func (s *State) openWhileLoop(offset int) {
	idx := s.enterScope(tree.KindWhileLoop, offset)
	// A fresh tree.Tree node defaults End to Start, which equals the very
	// offset the loop-opening instruction is about to run checkEnd at;
	// left alone that would self-close the scope before the loop's JZ
	// ever sets its real End. -1 can't collide with a real offset.
	s.Tree.Node(idx).End = -1
	s.scopes[len(s.scopes)-1].loopHead = offset
	s.mode = WhileCond
}

func (s *State) openDoLoop(offset, tailOffset int) {
	idx := s.enterScope(tree.KindDoLoop, offset)
	n := s.Tree.Node(idx)
	n.End = tailOffset
	s.scopes[len(s.scopes)-1].loopHead = offset
}

// transformConditionalJump implements the JZ/JNZ row of spec.md §4.6's
// transform table: bind to an open WhileLoop, promote to Switch, or
// open a plain If, depending on mode and on whether the condition looks
// like a switch discriminant comparison.
func (s *State) transformConditionalJump(in ncs.Instruction, instrs []ncs.Instruction, idx int) {
	s.checkStart(in)
	dest, hasDest := s.Store.TryGetDestination(in.Offset)
	cond := s.pop()

	switch {
	case s.mode == WhileCond:
		loop := s.topScope()
		if loop != nil && loop.kind == tree.KindWhileLoop {
			s.Tree.Append(loop.node, cond)
		}
		if hasDest && loop != nil {
			s.Tree.Node(loop.node).End = dest
		}
		s.mode = Normal

	case s.shouldPromoteToSwitch(cond):
		s.openSwitch(in, cond, dest)

	// TODO: a do-loop's tail test (the back-edge JZ/JNZ openDoLoop
	// classified) lands here too, since it isn't in WhileCond mode and
	// rarely looks like a switch discriminant — it opens a spurious
	// nested If instead of closing the DoLoop. Needs an explicit check
	// for "this JZ/JNZ's false-branch target equals an enclosing
	// DoLoop's loop head" before falling through to the If case.
	default:
		ifIdx := s.enterScope(tree.KindIf, in.Offset+in.Size)
		n := s.Tree.Node(ifIdx)
		n.Start = in.Offset + in.Size
		if hasDest {
			n.End = dest
		}
		s.Tree.Append(ifIdx, cond)
	}
	s.checkEnd(in)
}

// shouldPromoteToSwitch reports whether cond looks like an equality test
// against a constant on a variable already seen compared this way, or
// Cfg.PreferSwitches forces even a single-arm equality test to open a
// Switch (spec.md §4.6 "Switch construction").
func (s *State) shouldPromoteToSwitch(cond tree.Idx) bool {
	n := s.Tree.Node(cond)
	if n.Kind != tree.KindConditionalExp || n.BinOp != tree.OpEq {
		return false
	}
	children := s.Tree.Children(cond)
	if len(children) != 2 {
		return false
	}
	rhs := s.Tree.Node(children[1])
	if rhs.Kind != tree.KindConst {
		return false
	}
	if sc := s.findEnclosing(tree.KindSwitch); sc != nil {
		return true
	}
	return s.Cfg.PreferSwitches
}

func (s *State) openSwitch(in ncs.Instruction, cond tree.Idx, dest int) {
	var sw *openScope
	if enclosing := s.findEnclosing(tree.KindSwitch); enclosing != nil {
		sw = enclosing
	} else {
		children := s.Tree.Children(cond)
		lhs := s.Tree.Node(children[0]).Var
		swIdx := s.enterScope(tree.KindSwitch, in.Offset)
		s.Tree.Node(swIdx).Discriminant = lhs
		s.scopes[len(s.scopes)-1].switchOf = lhs
		sw = &s.scopes[len(s.scopes)-1]
	}

	children := s.Tree.Children(cond)
	rhsConst := s.Tree.Node(children[1]).ConstVal

	caseIdx := s.Tree.New(tree.KindSwitchCase, in.Offset+in.Size)
	cn := s.Tree.Node(caseIdx)
	cn.CaseConst = rhsConst
	if dest != 0 {
		cn.End = dest
	}
	s.Tree.Append(sw.node, caseIdx)
	s.current = caseIdx
	s.scopes = append(s.scopes, openScope{node: caseIdx, kind: tree.KindSwitchCase})
}

// transformJMPClassified implements the JMP row of spec.md §4.6:
// forward-past-scope-to-RETN/trailing-MOVSP -> ReturnStatement;
// forward past an enclosing loop's end -> BreakStatement; backward into
// an enclosing loop's body -> ContinueStatement; within a Switch -> case
// terminator; otherwise, if at the end of an open If, the skip-else
// jump is a no-op left for checkEnd to turn into a synthesized Else.
func (s *State) transformJMPClassified(in ncs.Instruction, instrs []ncs.Instruction, idx int) {
	s.checkStart(in)
	dest, hasDest := s.Store.TryGetDestination(in.Offset)

	switch {
	case hasDest && dest < in.Offset && s.findEnclosing(tree.KindWhileLoop, tree.KindDoLoop) != nil &&
		s.findEnclosing(tree.KindWhileLoop, tree.KindDoLoop).loopHead <= dest:
		stmt := s.Tree.New(tree.KindContinueStatement, in.Offset)
		s.Tree.Node(stmt).End = in.Offset + in.Size
		s.emit(stmt)

	case hasDest && s.findEnclosing(tree.KindWhileLoop, tree.KindDoLoop) != nil &&
		dest >= s.Tree.Node(s.findEnclosing(tree.KindWhileLoop, tree.KindDoLoop).node).End:
		stmt := s.Tree.New(tree.KindBreakStatement, in.Offset)
		s.Tree.Node(stmt).End = in.Offset + in.Size
		s.emit(stmt)

	case s.findEnclosing(tree.KindSwitch) != nil:
		s.closeSwitchCaseAndAdvance(in, dest)

	case hasDest && s.topScope() != nil && s.topScope().kind == tree.KindIf &&
		s.Tree.Node(s.topScope().node).End == in.Offset+in.Size && dest > in.Offset:
		// The classic skip-else jump: the If's End is still the JZ's
		// false-branch target (the else-body's first instruction), which
		// is exactly where this JMP falls through to once taken out of
		// the picture. Extend the If past the else-body instead of
		// closing it here; checkStart opens the Else once the
		// instruction stream reaches the old boundary.
		ifScope := s.topScope()
		ifScope.elseStart = in.Offset + in.Size
		s.Tree.Node(ifScope.node).End = dest

	default:
		// An early-return jump straight to the subroutine's final RETN,
		// or to the MOVSP that immediately precedes it.
		tgt := findAt(instrs, dest)
		trailingMovSP := tgt != nil && tgt.Op == ncs.OpMovSP && tgt.Offset+tgt.Size == s.Sub.End
		if hasDest && (dest == s.Sub.End || trailingMovSP) {
			stmt := s.Tree.New(tree.KindReturnStatement, in.Offset)
			s.Tree.Node(stmt).End = in.Offset + in.Size
			s.emit(stmt)
		}
	}
	s.checkEnd(in)
}

// closeSwitchCaseAndAdvance handles a case body's trailing skip-to-end
// jump. The case's own End was already fixed at openSwitch time (the
// next case's comparison, or this jump's destination when there is
// none); what this jump tells us is where the whole Switch ends, so the
// enclosing Switch's End is extended to dest. Instructions past the last
// explicit case's End and still inside the Switch's extended End are
// exactly the gap emit's lazy default-case synthesis recognizes.
func (s *State) closeSwitchCaseAndAdvance(in ncs.Instruction, dest int) {
	if sw := s.findEnclosing(tree.KindSwitch); sw != nil && dest != 0 {
		s.Tree.Node(sw.node).End = dest
	}
}

// checkEndOfSubroutine closes any scopes still open when the
// instruction stream is exhausted, a degraded-input recovery path for
// subroutines whose final RETN wasn't reached (truncated stream, or a
// MalformedControlFlow upstream).
func (s *State) checkEndOfSubroutine() {
	if s.mode != Done {
		s.diagnose("instruction stream ended before RETN; closing open scopes")
	}
	for len(s.scopes) > 0 {
		s.popScope()
	}
	s.mode = Done
}
