package types

import "strconv"

// VarID is a stable handle for a Variable, usable as a map key (tree
// nodes themselves hold the *Variable). It is assigned once, at
// creation, by the owning VarTable.
type VarID int

// Variable is a symbolic stack slot tracked across the lifetime of one
// subroutine's reconstruction. It starts life untyped and unnamed the
// moment something pushes onto the simulated stack, and accretes a
// concrete Type, a name, and possibly struct membership as the
// reconstruction and prototype passes learn more about it.
type Variable struct {
	ID         VarID
	Typ        Type
	Name       string
	AutoNamed  bool
	Assigned   bool
	IsParam    bool
	ParamIndex int

	// Struct is non-nil once this variable has been subsumed into a
	// VarStruct: a multi-slot aggregate it is one field of. A
	// subsumed variable is "demoted" — reconstruction stops treating
	// it as an independent declaration target and instead reads the
	// containing VarStruct's field list for layout.
	Struct      *VarStruct
	StructIndex int
}

// HasName reports whether a human-meaningful name has been assigned
// (heuristically or explicitly), as opposed to the zero value meaning
// "still needs auto-naming".
func (v *Variable) HasName() bool { return v.Name != "" }

// VarStruct is an ordered set of Variables forming one multi-slot
// aggregate (a struct-typed return value, parameter, or local). Members
// are ordered field-0-first, matching on-stack layout: field 0 sits
// deepest, matching how CPTOPSP/CPDOWNSP address sub-ranges of a struct
// by stack offset.
type VarStruct struct {
	Name    string
	Members []*Variable
}

// Width is the number of stack slots the struct occupies: the sum of
// each member's width (a struct can itself contain a Vector member).
func (s *VarStruct) Width() int {
	n := 0
	for _, m := range s.Members {
		n += Width(m.Typ)
	}
	return n
}

// VarTable interns Variables for one subroutine's reconstruction. It is
// intentionally not safe for concurrent use — the reconstruction engine
// is single-threaded per spec.md §5 — and owns the id-to-auto-name
// bookkeeping (varcounts/varnames in the spec's vocabulary).
type VarTable struct {
	vars     []*Variable
	counts   map[Type]int
	reserved map[string]bool
}

// NewVarTable creates an empty table.
func NewVarTable() *VarTable {
	return &VarTable{counts: make(map[Type]int), reserved: make(map[string]bool)}
}

// New creates and interns a fresh, unnamed Variable of typ.
func (t *VarTable) New(typ Type) *Variable {
	v := &Variable{ID: VarID(len(t.vars)), Typ: typ}
	t.vars = append(t.vars, v)
	return v
}

// All returns every interned variable, in creation order.
func (t *VarTable) All() []*Variable { return t.vars }

// ReserveName marks name as taken so AutoName never picks it. Nothing
// in this module calls it; reconstruct's action-derived names (e.g.
// "nCount") are tracked in its own name set, not reserved here.
func (t *VarTable) ReserveName(name string) { t.reserved[name] = true }

// AutoName assigns and returns a fresh per-type name (n1, f1, s1, ...)
// for v, skipping any name already reserved or already assigned to
// another variable in this table.
func (t *VarTable) AutoName(v *Variable) string {
	prefix := autoPrefix(v.Typ)
	for {
		t.counts[v.Typ]++
		name := prefix + strconv.Itoa(t.counts[v.Typ])
		if !t.reserved[name] {
			v.Name = name
			v.AutoNamed = true
			t.reserved[name] = true
			return name
		}
	}
}

func autoPrefix(t Type) string {
	switch t {
	case Int:
		return "n"
	case Float:
		return "f"
	case String:
		return "s"
	case Object:
		return "o"
	case Vector:
		return "v"
	case Struct:
		return "st"
	default:
		return "t"
	}
}

// Const is an immutable literal value. Unlike Variable, a Const never
// mutates after construction: it is created once by CONST and referenced
// thereafter.
type Const struct {
	Typ    Type
	Int    int32
	Float  float32
	String string
}
