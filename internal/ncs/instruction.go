package ncs

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Instruction is one decoded bytecode instruction: an opcode, a type
// qualifier, its absolute byte offset within the container, and whatever
// typed immediates its family carries. Instructions are immutable after
// decode; every pass that needs per-instruction mutable state (position
// confirmation, jump destination, liveness) keeps it in a side-table
// instead (see the analysis package), never here.
type Instruction struct {
	Op        Op
	Qualifier Qualifier
	Offset    int

	// Size is the total encoded length in bytes (opcode + qualifier +
	// immediates), used to compute the offset of the following
	// instruction and to validate jump targets land on a boundary.
	Size int

	IntImm    int32
	FloatImm  float32
	StringImm string

	// StackOffset/StackSize back CPTOPSP/CPDOWNSP/CPTOPBP/CPDOWNBP/
	// INCISP/DECISP/MOVSP/DESTRUCT/STORE_STATE immediates, in source
	// order (DESTRUCT carries two sizes and an offset; see Extra).
	StackOffset int32
	StackSize   int32
	Extra       int32

	ActionID  uint16
	ActionArg uint8

	// JumpOffset is the raw signed operand as encoded. The resolved
	// absolute target is not stored on the instruction: the
	// SetDestinations pass records it in analysis.Store, and
	// AbsoluteDestination computes it for callers without a Store.
	JumpOffset int32
}

// String renders an instruction the way a disassembly listing would:
// offset, mnemonic, qualifier suffix, immediates.
func (ins Instruction) String() string {
	def, err := Lookup(ins.Op)
	name := "UNKNOWN"
	if err == nil {
		name = def.Name
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%06X %s", ins.Offset, name)
	if ins.Qualifier != QualNone {
		fmt.Fprintf(&b, "%s", ins.Qualifier)
	}
	switch ins.Op {
	case OpConst:
		switch ins.Qualifier {
		case QualInt:
			fmt.Fprintf(&b, " %d", ins.IntImm)
		case QualFloat:
			fmt.Fprintf(&b, " %g", ins.FloatImm)
		case QualString:
			fmt.Fprintf(&b, " %q", ins.StringImm)
		case QualObject:
			fmt.Fprintf(&b, " %d", ins.IntImm)
		}
	case OpCPTopSP, OpCPDownSP, OpCPTopBP, OpCPDownBP:
		fmt.Fprintf(&b, " %d, %d", ins.StackOffset, ins.StackSize)
	case OpIncISP, OpDecISP:
		fmt.Fprintf(&b, " %d", ins.StackOffset)
	case OpMovSP, OpStoreState:
		fmt.Fprintf(&b, " %d", ins.StackSize)
	case OpDestruct:
		fmt.Fprintf(&b, " %d, %d, %d", ins.StackSize, ins.StackOffset, ins.Extra)
	case OpJSR, OpJMP, OpJZ, OpJNZ:
		fmt.Fprintf(&b, " %+d", ins.JumpOffset)
	case OpAction:
		fmt.Fprintf(&b, " %d, %d", ins.ActionID, ins.ActionArg)
	}
	return b.String()
}

// AbsoluteDestination computes the resolved absolute target of a jump
// instruction: its own offset plus the signed jump operand. This is the
// arithmetic SetDestinations performs; it is exposed here too since a few
// leaf consumers (tests, the disassembler) want it without constructing a
// full analysis.Store.
func (ins Instruction) AbsoluteDestination() (int, bool) {
	if !IsJump(ins.Op) && ins.Op != OpJSR {
		return 0, false
	}
	return ins.Offset + int(ins.JumpOffset), true
}

// ReadUint16 decodes the first two bytes of b as a big-endian uint16.
func ReadUint16(b []byte) uint16 { return binary.BigEndian.Uint16(b) }

// ReadUint32 decodes the first four bytes of b as a big-endian uint32.
func ReadUint32(b []byte) uint32 { return binary.BigEndian.Uint32(b) }

// ReadInt32 decodes the first four bytes of b as a big-endian signed
// int32, the width used for integer immediates and jump offsets.
func ReadInt32(b []byte) int32 { return int32(ReadUint32(b)) }

// ReadFloat32 decodes the first four bytes of b as a big-endian IEEE-754
// float32, the width used for float immediates.
func ReadFloat32(b []byte) float32 {
	return math.Float32frombits(ReadUint32(b))
}

// ReadLengthPrefixedString decodes a 2-byte big-endian length prefix
// followed by that many bytes of UTF-8 payload, returning the string and
// the total number of bytes consumed (2 + length).
func ReadLengthPrefixedString(b []byte) (string, int) {
	n := int(ReadUint16(b))
	return string(b[2 : 2+n]), 2 + n
}
