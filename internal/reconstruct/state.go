// Package reconstruct is the stack-to-tree reconstruction engine: the
// statement-oriented visitor (SubScriptState in spec.md §4.6) that
// replays one subroutine's instructions against a symbolic operand/
// local stack while growing a tree.Tree of statements and expressions.
// This is the hardest and largest subsystem in the decompiler; every
// transform here is local-recovery-first per spec.md's failure policy —
// a broken invariant produces a placeholder or an ErrorComment, never a
// panic that would sink the rest of the subroutine.
package reconstruct

import (
	"fmt"

	"github.com/kotor-tools/ncsdecomp/internal/actions"
	"github.com/kotor-tools/ncsdecomp/internal/analysis"
	"github.com/kotor-tools/ncsdecomp/internal/subroutine"
	"github.com/kotor-tools/ncsdecomp/internal/tree"
	"github.com/kotor-tools/ncsdecomp/internal/types"
)

// Mode is the mini state machine spec.md §4.6 names: NORMAL, INMOD,
// INACTIONARG, WHILECOND, SWITCHCASES, INPREFIXSTACK, DONE.
type Mode int

const (
	Normal Mode = iota
	InMod
	InActionArg
	WhileCond
	SwitchCases
	InPrefixStack
	Done
)

// Config carries the process-wide decisions spec.md §9 insists aren't
// globals: whether switches are preferred over if/else-if chains, and
// the strict-signatures setting. Only PreferSwitches is read in this
// package; StrictSignatures is carried but not consulted here.
type Config struct {
	PreferSwitches   bool
	StrictSignatures bool
}

// openScope tracks one nested container the engine currently has open:
// its tree node, and — for loops/switches — the extra bookkeeping
// check_end needs to decide how to close it.
type openScope struct {
	node      tree.Idx
	kind      tree.Kind
	loopHead  int // WhileLoop/DoLoop: offset of the loop header, for continue targets
	switchOf  *types.Variable
	elseStart int // If: offset where a synthesized Else begins, 0 if none detected yet
}

// State is SubScriptState: the per-subroutine reconstruction context.
type State struct {
	Tree    *tree.Tree
	Store   *analysis.Store
	Actions *actions.Table
	Sub     *subroutine.State
	Cfg     Config

	mode Mode

	// stack is the simulated local/operand stack; slice index 0 is the
	// top (spec.md describes 1-based-from-top indexing for the source
	// engine's stack; this package uses 0-based indexing from the top).
	stack []tree.Idx

	current tree.Idx
	scopes  []openScope

	vars     *types.VarTable
	vardecs  map[types.VarID]tree.Idx
	varnames map[string]bool

	Diagnostics []string
}

// New creates a SubScriptState for sub, with its Sub root already
// attached with sub's resolved parameters.
func New(t *tree.Tree, store *analysis.Store, at *actions.Table, sub *subroutine.State, cfg Config) *State {
	s := &State{
		Tree:     t,
		Store:    store,
		Actions:  at,
		Sub:      sub,
		Cfg:      cfg,
		current:  t.Root,
		vars:     types.NewVarTable(),
		vardecs:  make(map[types.VarID]tree.Idx),
		varnames: make(map[string]bool),
	}
	root := t.Node(t.Root)
	root.Start = sub.Start
	root.End = sub.End
	root.Name = subroutineName(sub)

	for i, pt := range sub.Params {
		v := s.vars.New(pt)
		v.IsParam = true
		v.ParamIndex = i
		s.vars.AutoName(v)
		root.Params = append(root.Params, v)
	}
	return s
}

func subroutineName(sub *subroutine.State) string {
	if sub.IsMain {
		return "main"
	}
	return fmt.Sprintf("sub%06X", sub.Start)
}

// Mode exposes the current mini state machine value (Done once MainPass
// has finished the subroutine).
func (s *State) Mode() Mode { return s.mode }

// push places expr on top of the simulated stack.
func (s *State) push(expr tree.Idx) {
	s.stack = append([]tree.Idx{expr}, s.stack...)
}

// pop removes and returns the top of the simulated stack. On underflow
// it invents a placeholder VarRef expression rather than failing, per
// spec.md §4.6's failure policy, and records a diagnostic.
func (s *State) pop() tree.Idx {
	if len(s.stack) == 0 {
		s.diagnose("stack underflow: synthesized placeholder operand")
		return s.placeholder()
	}
	top := s.stack[0]
	s.stack = s.stack[1:]
	return top
}

// top peeks the simulated stack without popping.
func (s *State) top() (tree.Idx, bool) {
	if len(s.stack) == 0 {
		return tree.None, false
	}
	return s.stack[0], true
}

func (s *State) placeholder() tree.Idx {
	v := s.vars.New(types.Unresolved)
	n := s.Tree.Root // start offset unknown; caller overwrites if needed
	idx := s.Tree.New(tree.KindVarRef, s.Tree.Node(n).Start)
	s.Tree.Node(idx).Var = v
	s.Tree.Node(idx).Name = fmt.Sprintf("__unknown_param_%d", v.ID)
	v.Name = s.Tree.Node(idx).Name
	return idx
}

func (s *State) diagnose(msg string) {
	s.Diagnostics = append(s.Diagnostics, msg)
}

// errorComment appends an ErrorComment statement node to current,
// implementing the failure policy's "append a diagnostic node and
// continue" branch (spec.md §4.6, §8 negative scenarios).
func (s *State) errorComment(offset int, msg string) tree.Idx {
	idx := s.Tree.New(tree.KindErrorComment, offset)
	n := s.Tree.Node(idx)
	n.End = offset
	n.Message = fmt.Sprintf("ERROR: failed to decompile statement at %06X: %s", offset, msg)
	s.Tree.Append(s.current, idx)
	s.diagnose(n.Message)
	return idx
}

// emit appends node as a child of current. If current sits directly in
// an open Switch — no case ever claimed the instructions since the last
// case closed — that gap is the switch's implicit default arm: a case
// with a nil CaseConst is synthesized here, on first use, and node
// attaches to it instead of to the Switch itself.
func (s *State) emit(idx tree.Idx) {
	if sw := s.topScope(); sw != nil && sw.kind == tree.KindSwitch {
		def := s.Tree.New(tree.KindSwitchCase, s.Tree.Node(idx).Start)
		s.Tree.Node(def).End = s.Tree.Node(sw.node).End
		s.Tree.Append(sw.node, def)
		s.current = def
		s.scopes = append(s.scopes, openScope{node: def, kind: tree.KindSwitchCase})
	}
	s.Tree.Append(s.current, idx)
}

// enterScope opens a new container node as a child of current and makes
// it the new current.
func (s *State) enterScope(kind tree.Kind, offset int) tree.Idx {
	idx := s.Tree.New(kind, offset)
	s.Tree.Append(s.current, idx)
	s.scopes = append(s.scopes, openScope{node: idx, kind: kind})
	s.current = idx
	return idx
}

// topScope returns the innermost open scope, or nil if none.
func (s *State) topScope() *openScope {
	if len(s.scopes) == 0 {
		return nil
	}
	return &s.scopes[len(s.scopes)-1]
}

// findEnclosing returns the nearest open scope of kind, searching from
// innermost outward, used to resolve break/continue targets.
func (s *State) findEnclosing(kinds ...tree.Kind) *openScope {
	for i := len(s.scopes) - 1; i >= 0; i-- {
		for _, k := range kinds {
			if s.scopes[i].kind == k {
				return &s.scopes[i]
			}
		}
	}
	return nil
}
