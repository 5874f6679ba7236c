// Package printer walks a reconstructed script tree (spec.md §4.8) and
// renders it as NSS source text: struct declarations, globals,
// prototypes for every non-main subroutine, then bodies with main last.
package printer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kotor-tools/ncsdecomp/internal/tree"
	"github.com/kotor-tools/ncsdecomp/internal/types"
)

const indentWidth = 4

// Sub is one subroutine's printable unit: its tree and resolved
// signature, keyed the way the driver already tracks subroutines.
type Sub struct {
	Tree    *tree.Tree
	Name    string
	Return  types.Type
	Params  []*types.Variable
	IsMain  bool
}

// Program is everything Print needs to render a complete file: the
// struct layouts discovered during reconstruction, file-scope globals,
// and every subroutine in discovery order (main is moved to the end
// regardless of its position in this slice).
type Program struct {
	Structs []*types.VarStruct
	Globals *tree.Tree
	Subs    []Sub
}

// Print renders prog as NSS source text. A Program with no subroutines
// at all still yields valid output via the PrinterEmpty fallback: a
// syntactically valid empty main.
func Print(prog Program) string {
	var b strings.Builder

	for _, st := range prog.Structs {
		printStruct(&b, st)
	}

	if prog.Globals != nil {
		for _, c := range prog.Globals.Children(prog.Globals.Root) {
			printStatement(&b, prog.Globals, c, 0)
		}
		if len(prog.Globals.Children(prog.Globals.Root)) > 0 {
			b.WriteByte('\n')
		}
	}

	ordered := orderSubsMainLast(prog.Subs)

	wroteProto := false
	for _, sub := range ordered {
		if !sub.IsMain {
			b.WriteString(prototype(sub))
			b.WriteString(";\n")
			wroteProto = true
		}
	}
	if wroteProto {
		b.WriteByte('\n')
	}

	if len(ordered) == 0 {
		b.WriteString("void main() {\n}\n")
		return b.String()
	}

	for i, sub := range ordered {
		b.WriteString(prototype(sub))
		b.WriteString(" {\n")
		if sub.Tree != nil {
			for _, c := range sub.Tree.Children(sub.Tree.Root) {
				printStatement(&b, sub.Tree, c, 1)
			}
		}
		b.WriteString("}\n")
		if i != len(ordered)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func orderSubsMainLast(subs []Sub) []Sub {
	out := make([]Sub, 0, len(subs))
	var main *Sub
	for i := range subs {
		if subs[i].IsMain {
			s := subs[i]
			main = &s
			continue
		}
		out = append(out, subs[i])
	}
	if main != nil {
		out = append(out, *main)
	}
	return out
}

func prototype(sub Sub) string {
	params := make([]string, len(sub.Params))
	for i, p := range sub.Params {
		params[i] = p.Typ.String() + " " + p.Name
	}
	name := sub.Name
	if sub.IsMain {
		name = "main"
	}
	return fmt.Sprintf("%s %s(%s)", sub.Return.String(), name, strings.Join(params, ", "))
}

func printStruct(b *strings.Builder, st *types.VarStruct) {
	fmt.Fprintf(b, "struct %s {\n", st.Name)
	for _, m := range st.Members {
		fmt.Fprintf(b, "%s%s %s;\n", indent(1), m.Typ.String(), m.Name)
	}
	b.WriteString("};\n\n")
}

func indent(level int) string { return strings.Repeat(" ", level*indentWidth) }

func printStatement(b *strings.Builder, t *tree.Tree, idx tree.Idx, level int) {
	n := t.Node(idx)
	pad := indent(level)
	switch n.Kind {
	case tree.KindVarDecl:
		b.WriteString(pad)
		b.WriteString(n.Var.Typ.String())
		b.WriteByte(' ')
		b.WriteString(n.Var.Name)
		if kids := t.Children(idx); len(kids) == 1 {
			b.WriteString(" = ")
			b.WriteString(printExpr(t, kids[0]))
		}
		b.WriteString(";\n")

	case tree.KindModifyExp:
		kids := t.Children(idx)
		b.WriteString(pad)
		if len(kids) == 2 {
			fmt.Fprintf(b, "%s = %s;\n", printExpr(t, kids[0]), printExpr(t, kids[1]))
		}

	case tree.KindExpressionStatement:
		kids := t.Children(idx)
		b.WriteString(pad)
		if len(kids) == 1 {
			b.WriteString(printExpr(t, kids[0]))
		}
		b.WriteString(";\n")

	case tree.KindReturnStatement:
		kids := t.Children(idx)
		b.WriteString(pad)
		if len(kids) == 1 {
			fmt.Fprintf(b, "return %s;\n", printExpr(t, kids[0]))
		} else {
			b.WriteString("return;\n")
		}

	case tree.KindBreakStatement:
		b.WriteString(pad + "break;\n")

	case tree.KindContinueStatement:
		b.WriteString(pad + "continue;\n")

	case tree.KindIf:
		printIf(b, t, idx, level)

	case tree.KindWhileLoop:
		kids := t.Children(idx)
		cond := "1"
		body := kids
		if len(kids) > 0 {
			cond = printExpr(t, kids[0])
			body = kids[1:]
		}
		fmt.Fprintf(b, "%swhile (%s) {\n", pad, cond)
		for _, c := range body {
			printStatement(b, t, c, level+1)
		}
		b.WriteString(pad + "}\n")

	case tree.KindDoLoop:
		kids := t.Children(idx)
		cond := "1"
		body := kids
		if len(kids) > 0 {
			cond = printExpr(t, kids[len(kids)-1])
			body = kids[:len(kids)-1]
		}
		fmt.Fprintf(b, "%sdo {\n", pad)
		for _, c := range body {
			printStatement(b, t, c, level+1)
		}
		fmt.Fprintf(b, "%s} while (%s);\n", pad, cond)

	case tree.KindSwitch:
		printSwitch(b, t, idx, level)

	case tree.KindCodeBlock:
		b.WriteString(pad + "{\n")
		for _, c := range t.Children(idx) {
			printStatement(b, t, c, level+1)
		}
		b.WriteString(pad + "}\n")

	case tree.KindErrorComment:
		fmt.Fprintf(b, "%s// %s\n", pad, n.Message)

	case tree.KindUnkLoopControl:
		b.WriteString(pad + "// unresolved loop control\n")

	default:
		fmt.Fprintf(b, "%s// unhandled node kind %d\n", pad, n.Kind)
	}
}

func printIf(b *strings.Builder, t *tree.Tree, idx tree.Idx, level int) {
	pad := indent(level)
	kids := t.Children(idx)
	if len(kids) == 0 {
		fmt.Fprintf(b, "%sif (1) {\n%s}\n", pad, pad)
		return
	}
	cond := printExpr(t, kids[0])
	var elseIdx tree.Idx
	var body []tree.Idx
	for _, k := range kids[1:] {
		if t.Node(k).Kind == tree.KindElse {
			elseIdx = k
			continue
		}
		body = append(body, k)
	}
	fmt.Fprintf(b, "%sif (%s) {\n", pad, cond)
	for _, c := range body {
		printStatement(b, t, c, level+1)
	}
	b.WriteString(pad + "}")
	if elseIdx != tree.None {
		elseBody := t.Children(elseIdx)
		if len(elseBody) == 1 && t.Node(elseBody[0]).Kind == tree.KindIf {
			b.WriteString(" else ")
			tmp := strings.Builder{}
			printIf(&tmp, t, elseBody[0], level)
			b.WriteString(strings.TrimPrefix(tmp.String(), pad))
			return
		}
		b.WriteString(" else {\n")
		for _, c := range elseBody {
			printStatement(b, t, c, level+1)
		}
		b.WriteString(pad + "}\n")
		return
	}
	b.WriteByte('\n')
}

func printSwitch(b *strings.Builder, t *tree.Tree, idx tree.Idx, level int) {
	n := t.Node(idx)
	pad := indent(level)
	disc := "<unresolved>"
	if n.Discriminant != nil {
		disc = n.Discriminant.Name
	}
	fmt.Fprintf(b, "%sswitch (%s) {\n", pad, disc)

	cases := append([]tree.Idx(nil), t.Children(idx)...)
	sort.SliceStable(cases, func(i, j int) bool {
		ci, cj := t.Node(cases[i]).CaseConst, t.Node(cases[j]).CaseConst
		if ci == nil {
			return false
		}
		if cj == nil {
			return true
		}
		return ci.Int < cj.Int
	})

	for _, c := range cases {
		cn := t.Node(c)
		label := pad + indent(1)
		if cn.CaseConst == nil {
			fmt.Fprintf(b, "%sdefault:\n", label)
		} else {
			fmt.Fprintf(b, "%scase %d:\n", label, cn.CaseConst.Int)
		}
		for _, stmt := range t.Children(c) {
			printStatement(b, t, stmt, level+2)
		}
	}
	b.WriteString(pad + "}\n")
}

// printExpr renders an expression, adding parentheses only where
// operator precedence requires it relative to the parent context.
func printExpr(t *tree.Tree, idx tree.Idx) string {
	n := t.Node(idx)
	switch n.Kind {
	case tree.KindConst:
		return printConst(n.ConstVal)
	case tree.KindVarRef:
		if n.Var != nil {
			return n.Var.Name
		}
		return "<unresolved>"
	case tree.KindBinaryExp, tree.KindConditionalExp:
		kids := t.Children(idx)
		if len(kids) != 2 {
			return "<malformed>"
		}
		lhs := maybeParen(t, kids[0], n)
		rhs := maybeParen(t, kids[1], n)
		return fmt.Sprintf("%s %s %s", lhs, n.BinOp, rhs)
	case tree.KindUnaryExp:
		kids := t.Children(idx)
		if len(kids) != 1 {
			return "<malformed>"
		}
		return string(n.UnOp) + maybeParen(t, kids[0], n)
	case tree.KindUnaryModExp:
		kids := t.Children(idx)
		op := string(n.UnOp) + string(n.UnOp)
		if len(kids) != 1 {
			return op
		}
		operand := printExpr(t, kids[0])
		if n.Postfix {
			return operand + op
		}
		return op + operand
	case tree.KindFcnCallExp, tree.KindActionExp:
		args := make([]string, 0, len(t.Children(idx)))
		for _, a := range t.Children(idx) {
			args = append(args, printExpr(t, a))
		}
		return fmt.Sprintf("%s(%s)", n.CalleeName, strings.Join(args, ", "))
	case tree.KindVectorConstExp:
		args := make([]string, 0, len(t.Children(idx)))
		for _, a := range t.Children(idx) {
			args = append(args, printExpr(t, a))
		}
		return fmt.Sprintf("[%s]", strings.Join(args, ", "))
	default:
		return "<unhandled-expr>"
	}
}

func maybeParen(t *tree.Tree, idx tree.Idx, parent *tree.Node) string {
	s := printExpr(t, idx)
	child := t.Node(idx)
	if needsParen(child, parent) {
		return "(" + s + ")"
	}
	return s
}

func needsParen(child, parent *tree.Node) bool {
	if child.Kind != tree.KindBinaryExp && child.Kind != tree.KindConditionalExp {
		return false
	}
	if parent.Kind == tree.KindUnaryExp {
		return true // unary operators bind tighter than every binary one
	}
	return precedence(child.BinOp) < precedence(parent.BinOp)
}

func precedence(op tree.BinOp) int {
	switch op {
	case tree.OpLogOr:
		return 1
	case tree.OpLogAnd:
		return 2
	case tree.OpBitOr:
		return 3
	case tree.OpBitXor:
		return 4
	case tree.OpBitAnd:
		return 5
	case tree.OpEq, tree.OpNEq:
		return 6
	case tree.OpLT, tree.OpLE, tree.OpGT, tree.OpGE:
		return 7
	case tree.OpShl, tree.OpShr:
		return 8
	case tree.OpAdd, tree.OpSub:
		return 9
	case tree.OpMul, tree.OpDiv, tree.OpMod:
		return 10
	default:
		return 0
	}
}

func printConst(c *types.Const) string {
	if c == nil {
		return "<unresolved>"
	}
	switch c.Typ {
	case types.Int, types.Object:
		return fmt.Sprintf("%d", c.Int)
	case types.Float:
		return fmt.Sprintf("%g", c.Float)
	case types.String:
		return fmt.Sprintf("%q", c.String)
	default:
		return "<unresolved>"
	}
}
