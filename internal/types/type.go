// Package types models the value domain the decompiler reasons about:
// the scalar/aggregate Type lattice, symbolic stack Variables (and the
// VarStruct groups they can belong to), and immutable Consts. These are
// the nouns every later pass — prototype inference, reconstruction,
// printing — shares, so they live in one leaf package with no
// dependency on tree, analysis, or reconstruct.
package types

import "fmt"

// Type is the NWScript value-type lattice the prototype engine and the
// reconstruction engine both reason over. Unresolved is the bottom
// element of the fixed-point join (see Join); every other
// value is a concrete leaf.
type Type int

const (
	Unresolved Type = iota
	Void
	Int
	Float
	String
	Object
	Vector
	Location
	Effect
	Event
	Talent
	ItemProperty
	Action
	Struct
)

var names = map[Type]string{
	Unresolved:   "<unresolved>",
	Void:         "void",
	Int:          "int",
	Float:        "float",
	String:       "string",
	Object:       "object",
	Vector:       "vector",
	Location:     "location",
	Effect:       "effect",
	Event:        "event",
	Talent:       "talent",
	ItemProperty: "itemproperty",
	Action:       "action",
	Struct:       "struct",
}

func (t Type) String() string {
	if s, ok := names[t]; ok {
		return s
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// ParseType maps the action-table / NSS spelling of a type to its Type
// value. Reports ok=false for anything not in the spec's closed type
// vocabulary (§6).
func ParseType(s string) (Type, bool) {
	for t, n := range names {
		if n == s {
			return t, true
		}
	}
	return Unresolved, false
}

// Width reports how many stack slots a value of type t occupies. Every
// scalar is one slot; Vector is three (x, y, z); Struct width depends on
// its member list and is computed by the caller (VarStruct.Width),
// which is why Struct itself is not handled here.
func Width(t Type) int {
	if t == Vector {
		return 3
	}
	return 1
}

// Join computes the least upper bound of two types under the monotone
// lattice the prototype fixed-point solver relies on: Unresolved joins
// to anything, two equal concrete types join to themselves, and any
// other combination joins to Int (the dominant scalar default called
// out in spec.md §4.5) since it is the only way to guarantee
// termination on conflicting evidence.
func Join(a, b Type) Type {
	if a == Unresolved {
		return b
	}
	if b == Unresolved {
		return a
	}
	if a == b {
		return a
	}
	return Int
}
