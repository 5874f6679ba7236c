// Package cleanup runs the post-reconstruction simplification passes
// (spec.md §4.7): collapsing an initializing VarDecl+ModifyExp pair,
// negating an If whose then-branch came out empty, and flattening
// singleton CodeBlocks, plus splicing a shared globals prologue into
// every caller's frame.
package cleanup

import (
	"github.com/kotor-tools/ncsdecomp/internal/subroutine"
	"github.com/kotor-tools/ncsdecomp/internal/tree"
)

// CleanupPass walks root's subtree bottom-up: each node's children are
// cleaned first, then every simplification rule is applied once to the
// node itself. Rules are not re-run to a fixed point, so a rule enabled
// only by another rule's rewrite at the same node does not fire.
func CleanupPass(t *tree.Tree, root tree.Idx) {
	for _, c := range append([]tree.Idx(nil), t.Children(root)...) {
		CleanupPass(t, c)
	}
	collapseInitializedDecl(t, root)
	negateEmptyThenElse(t, root)
	flattenSingletonBlock(t, root)
}

// collapseInitializedDecl merges `VarDecl v; v = expr;` into a single
// initialized declaration when the ModifyExp immediately follows its
// matching VarDecl and assigns the same variable, and nothing else reads
// v in between (the common "declare a local and immediately set it from
// the recovered decompiler output" shape).
func collapseInitializedDecl(t *tree.Tree, parent tree.Idx) {
	children := t.Children(parent)
	for i := 0; i+1 < len(children); i++ {
		decl := t.Node(children[i])
		mod := t.Node(children[i+1])
		if decl.Kind != tree.KindVarDecl || mod.Kind != tree.KindModifyExp {
			continue
		}
		lhsChildren := t.Children(children[i+1])
		if len(lhsChildren) != 2 {
			continue
		}
		lhs := t.Node(lhsChildren[0])
		if lhs.Kind != tree.KindVarRef || lhs.Var != decl.Var {
			continue
		}
		decl.End = mod.End
		t.Detach(lhsChildren[1])
		t.Append(children[i], lhsChildren[1])
		t.Detach(children[i+1])
		children = t.Children(parent)
		i--
	}
}

// negateEmptyThenElse rewrites `if (cond) { } else { body }` into
// `if (!cond) { body }`, since the source compiler sometimes emits an
// empty then-branch purely to hold the condition's jump target.
func negateEmptyThenElse(t *tree.Tree, parent tree.Idx) {
	for _, c := range t.Children(parent) {
		n := t.Node(c)
		if n.Kind != tree.KindIf {
			continue
		}
		thenChildren := ownStatements(t, c)
		kids := t.Children(c)
		if len(kids) == 0 || len(thenChildren) != 0 {
			continue
		}
		var elseIdx tree.Idx
		for _, k := range kids {
			if t.Node(k).Kind == tree.KindElse {
				elseIdx = k
			}
		}
		if elseIdx == tree.None {
			continue
		}
		cond := kids[0]
		negated := t.New(tree.KindUnaryExp, t.Node(cond).Start)
		t.Node(negated).UnOp = "!"
		t.Node(negated).End = t.Node(cond).End
		t.Detach(cond)
		t.Append(negated, cond)
		t.Append(c, negated) // condition first, ahead of the moved body
		for _, body := range append([]tree.Idx(nil), t.Children(elseIdx)...) {
			t.Append(c, body)
		}
		t.Detach(elseIdx)
	}
}

// ownStatements returns c's children that are not the leading
// condition expression, i.e. the then-branch's body.
func ownStatements(t *tree.Tree, ifNode tree.Idx) []tree.Idx {
	kids := t.Children(ifNode)
	if len(kids) == 0 {
		return nil
	}
	var body []tree.Idx
	for _, k := range kids[1:] {
		if t.Node(k).Kind == tree.KindElse {
			continue
		}
		body = append(body, k)
	}
	return body
}

// flattenSingletonBlock replaces a CodeBlock child that holds exactly
// one statement with that statement directly, removing a level of
// indentation the printer would otherwise add for no reason.
func flattenSingletonBlock(t *tree.Tree, parent tree.Idx) {
	// Every child is re-appended in its original order, so the replacement
	// statement keeps the block's position among its siblings.
	for _, c := range append([]tree.Idx(nil), t.Children(parent)...) {
		if kids := t.Children(c); t.Node(c).Kind == tree.KindCodeBlock && len(kids) == 1 {
			only := kids[0]
			t.Detach(c)
			c = only
		}
		t.Append(parent, c)
	}
}

// StripErrorComments removes every ErrorComment and UnkLoopControl node
// under root: the two node kinds the reconstruction engine emits in
// place of a construct it couldn't resolve (spec.md §7's local-recovery
// policy). Neither kind prints as valid NSS on its own (ErrorComment is
// a comment-only placeholder; UnkLoopControl marks a break/continue the
// engine couldn't classify), so a compiler handed either verbatim will
// at best ignore it and at worst fail to parse — this is the repair
// pass internal/driver retries round-tripping with, on the theory that
// a dropped placeholder is more likely to recompile than a malformed
// one. It returns how many nodes it removed, so a caller can tell when
// a further pass has nothing left to do.
func StripErrorComments(t *tree.Tree, root tree.Idx) int {
	removed := 0
	for _, c := range append([]tree.Idx(nil), t.Children(root)...) {
		removed += StripErrorComments(t, c)
		switch t.Node(c).Kind {
		case tree.KindErrorComment, tree.KindUnkLoopControl:
			t.Detach(c)
			removed++
		}
	}
	return removed
}

// FlattenSub splices the shared globals subroutine's declarations into
// every other subroutine's frame: spec.md §4.4 treats globals as a
// prologue that runs once before main, so its VarDecls are hoisted to
// file scope rather than re-declared per caller.
func FlattenSub(set *subroutine.Set, trees map[subroutine.ID]*tree.Tree, fileScope *tree.Tree) {
	if set.Globals == nil {
		return
	}
	globalsTree, ok := trees[set.Globals.ID]
	if !ok {
		return
	}
	for _, c := range append([]tree.Idx(nil), globalsTree.Children(globalsTree.Root)...) {
		if globalsTree.Node(c).Kind != tree.KindVarDecl {
			continue
		}
		globalsTree.Detach(c)
		fileScope.Append(fileScope.Root, c)
	}
}

// DestroyParseTree is a deliberate no-op. The arena-indexed tree.Tree
// (spec.md §9's design note) has no parent-pointer ownership cycles to
// break: dropping the Tree value drops every Node with it. Kept as a
// named call site so callers migrating from the cycle-breaking source
// behavior have an obvious place to look and find nothing to do.
func DestroyParseTree(*tree.Tree) {}
