package printer

import (
	"strings"
	"testing"

	"github.com/kotor-tools/ncsdecomp/internal/tree"
	"github.com/kotor-tools/ncsdecomp/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestPrintEmptyMainFallback(t *testing.T) {
	out := Print(Program{})
	assert.Equal(t, "void main() {\n}\n", out)
}

func TestPrintActionCallVoidReturn(t *testing.T) {
	tr := tree.New()
	call := tr.New(tree.KindActionExp, 0)
	tr.Node(call).CalleeName = "PrintString"
	arg := tr.New(tree.KindConst, 0)
	tr.Node(arg).ConstVal = &types.Const{Typ: types.String, String: "Hello"}
	tr.Append(call, arg)
	stmt := tr.New(tree.KindExpressionStatement, 0)
	tr.Append(stmt, call)
	tr.Append(tr.Root, stmt)

	out := Print(Program{Subs: []Sub{{Tree: tr, IsMain: true, Return: types.Void}}})
	assert.Contains(t, out, `PrintString("Hello");`)
	assert.True(t, strings.HasPrefix(out, "void main() {\n"))
}

func TestPrintIfElse(t *testing.T) {
	tr := tree.New()
	v := &types.Variable{Name: "iN"}

	cond := tr.New(tree.KindConditionalExp, 0)
	tr.Node(cond).BinOp = tree.OpEq
	lhs := tr.New(tree.KindVarRef, 0)
	tr.Node(lhs).Var = v
	rhs := tr.New(tree.KindConst, 0)
	tr.Node(rhs).ConstVal = &types.Const{Typ: types.Int, Int: 5}
	tr.Append(cond, lhs)
	tr.Append(cond, rhs)

	ifNode := tr.New(tree.KindIf, 0)
	tr.Append(ifNode, cond)

	thenCall := tr.New(tree.KindActionExp, 0)
	tr.Node(thenCall).CalleeName = "PrintString"
	thenArg := tr.New(tree.KindConst, 0)
	tr.Node(thenArg).ConstVal = &types.Const{Typ: types.String, String: "a"}
	tr.Append(thenCall, thenArg)
	thenStmt := tr.New(tree.KindExpressionStatement, 0)
	tr.Append(thenStmt, thenCall)
	tr.Append(ifNode, thenStmt)

	elseNode := tr.New(tree.KindElse, 0)
	elseCall := tr.New(tree.KindActionExp, 0)
	tr.Node(elseCall).CalleeName = "PrintString"
	elseArg := tr.New(tree.KindConst, 0)
	tr.Node(elseArg).ConstVal = &types.Const{Typ: types.String, String: "b"}
	tr.Append(elseCall, elseArg)
	elseStmt := tr.New(tree.KindExpressionStatement, 0)
	tr.Append(elseStmt, elseCall)
	tr.Append(elseNode, elseStmt)
	tr.Append(ifNode, elseNode)

	tr.Append(tr.Root, ifNode)

	out := Print(Program{Subs: []Sub{{Tree: tr, IsMain: true, Return: types.Void}}})
	assert.Contains(t, out, "if (iN == 5) {")
	assert.Contains(t, out, `PrintString("a");`)
	assert.Contains(t, out, "} else {")
	assert.Contains(t, out, `PrintString("b");`)
}
