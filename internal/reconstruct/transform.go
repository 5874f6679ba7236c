package reconstruct

import (
	"fmt"

	"github.com/kotor-tools/ncsdecomp/internal/ncs"
	"github.com/kotor-tools/ncsdecomp/internal/tree"
	"github.com/kotor-tools/ncsdecomp/internal/types"
)

// checkStart asserts mode compatibility and, if the previous statement
// opened a Switch whose first case begins exactly at in.Offset, moves
// current into that case (spec.md §4.6). A SwitchCase whose End has
// already been reached is closed first, so a new comparison's openSwitch
// call (or, absent one, emit's implicit-default synthesis) finds current
// sitting directly in the enclosing Switch rather than in a stale case.
func (s *State) checkStart(in ncs.Instruction) {
	if sc := s.topScope(); sc != nil && sc.kind == tree.KindSwitchCase && s.Tree.Node(sc.node).End <= in.Offset {
		s.closeSwitchCase(in.Offset)
	}
	if sw := s.topScope(); sw != nil && sw.kind == tree.KindSwitch {
		for _, c := range s.Tree.Children(sw.node) {
			if s.Tree.Node(c).Start == in.Offset {
				s.current = c
				return
			}
		}
	}
	if ifScope := s.topScope(); ifScope != nil && ifScope.kind == tree.KindIf &&
		ifScope.elseStart != 0 && ifScope.elseStart == in.Offset {
		ifNode := ifScope.node
		elseEnd := s.Tree.Node(ifNode).End
		ifScope.elseStart = 0 // clear before any append may reallocate s.scopes
		elseIdx := s.Tree.New(tree.KindElse, in.Offset)
		s.Tree.Node(elseIdx).End = elseEnd
		s.Tree.Append(ifNode, elseIdx)
		s.scopes = append(s.scopes, openScope{node: elseIdx, kind: tree.KindElse})
		s.current = elseIdx
	}
}

// checkEnd closes every scope whose End equals in's offset, repeating
// until a scope is left open or none remain (spec.md §4.6). If current
// becomes None, the state transitions to Done.
func (s *State) checkEnd(in ncs.Instruction) {
	offset := in.Offset
	for {
		scope := s.topScope()
		if scope == nil {
			return
		}
		n := s.Tree.Node(scope.node)
		if n.End != offset {
			return
		}
		switch scope.kind {
		case tree.KindSwitchCase:
			s.closeSwitchCase(offset)
		case tree.KindIf:
			s.closeIf(offset)
		case tree.KindElse:
			s.popScope() // Else's matching If closes on the next loop iteration
		default:
			s.popScope()
		}
	}
}

func (s *State) popScope() {
	s.scopes = s.scopes[:len(s.scopes)-1]
	if len(s.scopes) == 0 {
		s.current = s.Tree.Root
		return
	}
	s.current = s.scopes[len(s.scopes)-1].node
}

func (s *State) closeSwitchCase(offset int) {
	s.popScope() // back into the Switch
	if parent := s.topScope(); parent != nil && parent.kind == tree.KindSwitch {
		s.current = parent.node
	}
}

// closeIf closes an If scope. Else synthesis itself happens earlier, in
// checkStart: transformJMPClassified detects the compiler's "skip-else"
// jump and extends the If's End past a new Else child, so by the time
// offset reaches here either the Else has already been opened and closed
// (KindElse case above) or there was no else branch at all.
func (s *State) closeIf(offset int) {
	s.popScope()
}

// transformConst handles CONST: push a Const expression onto the
// simulated stack; it joins the tree when a consumer pops it.
func (s *State) transformConst(in ncs.Instruction) {
	s.checkStart(in)
	c := &types.Const{Typ: qualifierType(in.Qualifier)}
	switch in.Qualifier {
	case ncs.QualInt, ncs.QualObject:
		c.Int = in.IntImm
	case ncs.QualFloat:
		c.Float = in.FloatImm
	case ncs.QualString:
		c.String = in.StringImm
	}
	idx := s.Tree.New(tree.KindConst, in.Offset)
	s.Tree.Node(idx).End = in.Offset + in.Size
	s.Tree.Node(idx).ConstVal = c
	s.push(idx)
	s.checkEnd(in)
}

// transformRSAdd handles RSADD: reserve a new unnamed stack slot,
// emitting a VarDecl into current if this variable has no declaration
// yet.
func (s *State) transformRSAdd(in ncs.Instruction) {
	s.checkStart(in)
	v := s.vars.New(qualifierType(in.Qualifier))
	s.vars.AutoName(v)

	decl := s.Tree.New(tree.KindVarDecl, in.Offset)
	s.Tree.Node(decl).End = in.Offset + in.Size
	s.Tree.Node(decl).Var = v
	s.emit(decl)
	s.vardecs[v.ID] = decl

	ref := s.Tree.New(tree.KindVarRef, in.Offset)
	s.Tree.Node(ref).Var = v
	s.push(ref)
	s.checkEnd(in)
}

// transformCPTop handles CPTOPSP/CPTOPBP: compute the referenced
// Variable and append a VarRef. The copy size is not used, so a struct
// copy of size>1 yields a VarRef to a single Variable, not to the
// owning VarStruct.
func (s *State) transformCPTop(in ncs.Instruction) {
	s.checkStart(in)
	v := s.resolveStackVar(in.StackOffset, in.StackSize)
	ref := s.Tree.New(tree.KindVarRef, in.Offset)
	n := s.Tree.Node(ref)
	n.End = in.Offset + in.Size
	n.Var = v
	s.push(ref)

	if s.mode == InPrefixStack {
		s.mode = Normal
	}
	s.checkEnd(in)
}

// transformCPDown handles CPDOWNSP/CPDOWNBP: if the destination sits
// above the preserved frame it is a return-value write (emit
// ReturnStatement); otherwise it's an assignment to a local/param/global
// (emit ModifyExp). A heuristic name is attempted from the RHS when the
// destination variable is still unnamed.
func (s *State) transformCPDown(in ncs.Instruction) {
	s.checkStart(in)
	rhs, _ := s.top()

	if in.StackOffset > 0 {
		stmt := s.Tree.New(tree.KindReturnStatement, in.Offset)
		s.Tree.Node(stmt).End = in.Offset + in.Size
		s.Tree.Append(stmt, rhs)
		s.emit(stmt)
		s.mode = InMod
		s.checkEnd(in)
		return
	}

	v := s.resolveStackVar(in.StackOffset, in.StackSize)
	s.heuristicName(v, rhs)

	lhs := s.Tree.New(tree.KindVarRef, in.Offset)
	s.Tree.Node(lhs).Var = v

	mod := s.Tree.New(tree.KindModifyExp, in.Offset)
	s.Tree.Node(mod).End = in.Offset + in.Size
	s.Tree.Append(mod, lhs)
	s.Tree.Append(mod, rhs)
	s.emit(mod)
	v.Assigned = true

	s.mode = InMod
	s.checkEnd(in)
}

// heuristicName names v from the shape of its RHS expression when v has
// no name yet — e.g. an action's conventional return-value name. This
// is the "content-addressed curiosity" the design note calls optional;
// the scope here is narrow (action-name-derived only) and always on,
// the broader body-fingerprint renamer from spec.md §9 is not
// implemented.
func (s *State) heuristicName(v *types.Variable, rhs tree.Idx) {
	if v.HasName() && !v.AutoNamed {
		return // already explicitly or heuristically named
	}
	n := s.Tree.Node(rhs)
	if n.Kind == tree.KindActionExp && n.CalleeName != "" {
		if hn, ok := heuristicActionNames[n.CalleeName]; ok && !s.varnames[hn] {
			v.Name = hn
			v.AutoNamed = false
			s.varnames[hn] = true
		}
	}
}

// heuristicActionNames maps well-known action names to the customary
// local-variable name a human decompiling by hand would choose, e.g.
// GetCount's result conventionally being called nCount.
var heuristicActionNames = map[string]string{
	"GetCount":       "nCount",
	"GetGold":        "nGold",
	"GetIsObjectValid": "bValid",
	"GetVector":      "vPosition",
}

// resolveStackVar finds (or synthesizes, on underflow) the Variable
// living at a given simulated-stack byte offset. size is not consulted:
// a multi-slot (struct-shaped) access resolves like a single-slot one,
// to the Variable at that depth, not to an owning VarStruct.
func (s *State) resolveStackVar(offset, size int32) *types.Variable {
	// The simulated stack in this package is expression-indexed, not
	// byte-indexed (see state.go's design note); a real byte-accurate
	// frame model is out of scope for this pass-level reconstruction,
	// so direct variable identity is approximated by depth order. This
	// mirrors the spec's own admission that the engine works from
	// "offsets, jump destinations, and instruction fingerprints" alone.
	if len(s.stack) == 0 {
		v := s.vars.New(types.Unresolved)
		s.vars.AutoName(v)
		return v
	}
	depth := int(-offset) / 4
	if depth < 0 || depth >= len(s.stack) {
		depth = 0
	}
	n := s.Tree.Node(s.stack[depth])
	if n.Var != nil {
		return n.Var
	}
	v := s.vars.New(types.Unresolved)
	s.vars.AutoName(v)
	n.Var = v
	return v
}

// transformBinary handles the arithmetic/comparison/logical binop
// families: pop two expressions, push a BinaryExp or ConditionalExp.
func (s *State) transformBinary(in ncs.Instruction, op tree.BinOp, conditional bool) {
	s.checkStart(in)
	rhs := s.pop()
	lhs := s.pop()
	kind := tree.KindBinaryExp
	if conditional {
		kind = tree.KindConditionalExp
	}
	idx := s.Tree.New(kind, in.Offset)
	n := s.Tree.Node(idx)
	n.End = in.Offset + in.Size
	n.BinOp = op
	s.Tree.Append(idx, lhs)
	s.Tree.Append(idx, rhs)
	s.push(idx)
	s.checkEnd(in)
}

// transformUnary handles NEG/NOT/COMP: pop one, push UnaryExp.
func (s *State) transformUnary(in ncs.Instruction, op tree.UnOp) {
	s.checkStart(in)
	operand := s.pop()
	idx := s.Tree.New(tree.KindUnaryExp, in.Offset)
	n := s.Tree.Node(idx)
	n.End = in.Offset + in.Size
	n.UnOp = op
	s.Tree.Append(idx, operand)
	s.push(idx)
	s.checkEnd(in)
}

// transformIncDec handles INCISP/DECISP: emit UnaryModExp; postfix when
// the current top already references the same variable, prefix
// (transitioning to InPrefixStack) otherwise.
func (s *State) transformIncDec(in ncs.Instruction, op tree.UnOp) {
	s.checkStart(in)
	top, ok := s.top()
	idx := s.Tree.New(tree.KindUnaryModExp, in.Offset)
	n := s.Tree.Node(idx)
	n.End = in.Offset + in.Size
	n.UnOp = op

	if ok && s.Tree.Node(top).Kind == tree.KindVarRef {
		n.Postfix = true
		operand := s.pop()
		s.Tree.Append(idx, operand)
		s.push(idx)
	} else {
		n.Postfix = false
		s.mode = InPrefixStack
		s.push(idx) // operand filled in by the following CPTOP that resolves it
	}
	s.checkEnd(in)
}

// transformDestruct handles DESTRUCT: collapse the multi-slot expression
// on top into a struct field selection.
func (s *State) transformDestruct(in ncs.Instruction) {
	s.checkStart(in)
	base := s.pop()
	fieldIdx := int(in.StackOffset) / 4

	sel := s.Tree.New(tree.KindVarRef, in.Offset)
	n := s.Tree.Node(sel)
	n.End = in.Offset + in.Size

	baseVar := s.Tree.Node(base).Var
	if baseVar != nil && baseVar.Struct != nil && fieldIdx < len(baseVar.Struct.Members) {
		n.Var = baseVar.Struct.Members[fieldIdx]
	} else if baseVar != nil {
		n.Var = baseVar
	}
	s.push(sel)
	s.checkEnd(in)
}

// transformJSR handles JSR: pop N arguments per the callee's resolved
// parameter count, push FcnCallExp.
func (s *State) transformJSR(in ncs.Instruction, calleeName string, paramCount int, ret types.Type) {
	s.checkStart(in)
	call := s.Tree.New(tree.KindFcnCallExp, in.Offset)
	n := s.Tree.Node(call)
	n.End = in.Offset + in.Size
	n.CalleeName = calleeName

	args := make([]tree.Idx, paramCount)
	for i := paramCount - 1; i >= 0; i-- {
		args[i] = s.pop()
	}
	for _, a := range args {
		s.Tree.Append(call, a)
	}
	if ret != types.Void {
		s.push(call)
	} else {
		stmt := s.Tree.New(tree.KindExpressionStatement, in.Offset)
		s.Tree.Node(stmt).End = n.End
		s.Tree.Append(stmt, call)
		s.emit(stmt)
	}

	if s.mode == InActionArg {
		s.mode = Normal
	}
	s.checkEnd(in)
}

// transformAction handles ACTION: symmetric with JSR but uses the
// action table for name/arity/return; missing metadata yields
// UnknownAction<id> and placeholder parameters.
func (s *State) transformAction(in ncs.Instruction) {
	s.checkStart(in)
	a, ok := s.Actions.Lookup(int(in.ActionID))

	name := fmt.Sprintf("UnknownAction%d", in.ActionID)
	ret := types.Void
	argc := int(in.ActionArg)
	if ok {
		name = a.Name
		ret = a.Return
		argc = len(a.Params)
	}

	call := s.Tree.New(tree.KindActionExp, in.Offset)
	n := s.Tree.Node(call)
	n.End = in.Offset + in.Size
	n.CalleeName = name
	n.ActionID = int(in.ActionID)

	args := make([]tree.Idx, argc)
	for i := argc - 1; i >= 0; i-- {
		args[i] = s.pop()
	}
	for _, arg := range args {
		s.Tree.Append(call, arg)
	}

	if ret != types.Void {
		s.push(call)
	} else {
		stmt := s.Tree.New(tree.KindExpressionStatement, in.Offset)
		s.Tree.Node(stmt).End = n.End
		s.Tree.Append(stmt, call)
		s.emit(stmt)
	}
	s.checkEnd(in)
}

// transformRetn handles RETN: closes the subroutine.
func (s *State) transformRetn(in ncs.Instruction) {
	s.checkStart(in)
	s.mode = Done
}

// transformMovSP handles MOVSP: if mode is InMod, wrap the prior
// expression into an ExpressionStatement (unless it's already a
// statement or return); otherwise check whether this pop closes a
// Switch's discriminant.
func (s *State) transformMovSP(in ncs.Instruction) {
	s.checkStart(in)
	if s.mode == InMod {
		if top, ok := s.top(); ok {
			k := s.Tree.Node(top).Kind
			if k != tree.KindExpressionStatement && k != tree.KindReturnStatement && k != tree.KindModifyExp {
				expr := s.pop()
				stmt := s.Tree.New(tree.KindExpressionStatement, in.Offset)
				s.Tree.Node(stmt).End = in.Offset + in.Size
				s.Tree.Append(stmt, expr)
				s.emit(stmt)
			}
		}
		s.mode = Normal
	}
	if sc := s.topScope(); sc != nil && sc.kind == tree.KindSwitch {
		s.popScope()
	}
	s.checkEnd(in)
}

// transformStoreState handles STORE_STATE: begins action-argument
// capture.
func (s *State) transformStoreState(in ncs.Instruction) {
	s.checkStart(in)
	s.mode = InActionArg
	s.checkEnd(in)
}

// transformFrameMarker handles SAVEBP/RESTOREBP: marks the globals
// boundary. Reconstruction does not otherwise act on it; FlattenSub
// (cleanup package) is what splices globals-prologue state into callers.
func (s *State) transformFrameMarker(in ncs.Instruction) {
	s.checkStart(in)
	s.checkEnd(in)
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
