// Package ncsfile is the binary NCS container reader: the narrow
// external collaborator the decompiler core consumes but does not own.
// It yields an ordered []ncs.Instruction with stable byte offsets and
// nothing else — no control-flow knowledge, no type inference. Decoding
// the on-disk signature/version checksum beyond "is this an NCS file"
// is out of scope per spec.md's non-goals.
package ncsfile

import (
	"fmt"

	"github.com/edsrzf/mmap-go"

	"github.com/kotor-tools/ncsdecomp/internal/ncs"
)

// Signature is the 8-byte magic every NCS container starts with:
// "NCS " followed by a version tag. Only the "NCS " prefix is checked;
// the version tag is recorded in File.Version and not validated.
const Signature = "NCS "

// ErrBadSignature is returned as-is (not wrapped) when a container does
// not start with Signature, so callers can compare against it directly.
var ErrBadSignature = fmt.Errorf("ncsfile: invalid NCS signature")

// File is a decoded NCS container: its raw bytes (kept memory-mapped
// rather than copied, since scripts can run to hundreds of KB and a
// batch run may have thousands open at once) and the instructions
// decoded from its code section.
type File struct {
	Path         string
	data         mmap.MMap
	Version      string
	Instructions []ncs.Instruction
}

// Close unmaps the underlying file. Safe to call on a File that failed
// to fully decode.
func (f *File) Close() error {
	if f.data == nil {
		return nil
	}
	return f.data.Unmap()
}

// Open memory-maps path and decodes its instruction stream. A non-nil
// *File is always returned when the signature check passes, even if
// decode stops early on a malformed tail — callers that want a
// best-effort disassembly for a diagnostic stub should inspect
// Instructions rather than treating a non-nil error as fatal.
func Open(path string) (*File, error) {
	h, err := openHandle(path)
	if err != nil {
		return nil, fmt.Errorf("ncsfile: open %s: %w", path, err)
	}
	defer h.Close()

	data, err := mmap.Map(h, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("ncsfile: mmap %s: %w", path, err)
	}

	f := &File{Path: path, data: data}
	if len(data) < 13 || string(data[0:4]) != Signature {
		return f, ErrBadSignature
	}
	f.Version = string(data[4:8])

	// Byte 8 is the compiled-size field (uint32) the original compiler
	// writes and nobody downstream trusts; decoding walks the stream
	// until it runs out of bytes instead.
	instrs, decErr := Decode(data[13:], 13)
	f.Instructions = instrs
	return f, decErr
}

// Decode walks a raw instruction stream starting at baseOffset and
// returns every instruction it can parse. It never panics: a truncated
// or unrecognized opcode stops the walk and is reported, but whatever
// was already decoded is still returned so the caller can proceed in
// degraded mode.
func Decode(b []byte, baseOffset int) ([]ncs.Instruction, error) {
	var out []ncs.Instruction
	off := 0
	for off < len(b) {
		ins, size, err := decodeOne(b[off:], baseOffset+off)
		if err != nil {
			return out, fmt.Errorf("ncsfile: decode at %06X: %w", baseOffset+off, err)
		}
		out = append(out, ins)
		off += size
	}
	return out, nil
}

func decodeOne(b []byte, offset int) (ins ncs.Instruction, size int, err error) {
	if len(b) < 2 {
		return ncs.Instruction{}, 0, fmt.Errorf("truncated opcode header")
	}
	// A truncated immediate makes the fixed-width readers below index
	// past the end of b; report that as an error instead of panicking.
	defer func() {
		if r := recover(); r != nil {
			ins, size, err = ncs.Instruction{}, 0, fmt.Errorf("truncated immediates for opcode 0x%02X", b[0])
		}
	}()
	op := decodeOp(b[0])
	qual := ncs.Qualifier(b[1])
	ins = ncs.Instruction{Op: op, Qualifier: qual, Offset: offset}
	cursor := 2

	switch op {
	case ncs.OpConst:
		switch qual {
		case ncs.QualInt, ncs.QualObject:
			ins.IntImm = ncs.ReadInt32(b[cursor:])
			cursor += 4
		case ncs.QualFloat:
			ins.FloatImm = ncs.ReadFloat32(b[cursor:])
			cursor += 4
		case ncs.QualString:
			s, n := ncs.ReadLengthPrefixedString(b[cursor:])
			ins.StringImm = s
			cursor += n
		}
	case ncs.OpCPTopSP, ncs.OpCPDownSP, ncs.OpCPTopBP, ncs.OpCPDownBP:
		ins.StackOffset = ncs.ReadInt32(b[cursor:])
		cursor += 4
		ins.StackSize = ncs.ReadInt32(b[cursor:])
		cursor += 4
	case ncs.OpIncISP, ncs.OpDecISP:
		ins.StackOffset = ncs.ReadInt32(b[cursor:])
		cursor += 4
	case ncs.OpMovSP:
		ins.StackSize = ncs.ReadInt32(b[cursor:])
		cursor += 4
	case ncs.OpDestruct:
		ins.StackSize = ncs.ReadInt32(b[cursor:])
		cursor += 4
		ins.StackOffset = ncs.ReadInt32(b[cursor:])
		cursor += 4
		ins.Extra = ncs.ReadInt32(b[cursor:])
		cursor += 4
	case ncs.OpJSR, ncs.OpJMP, ncs.OpJZ, ncs.OpJNZ:
		ins.JumpOffset = ncs.ReadInt32(b[cursor:])
		cursor += 4
	case ncs.OpAction:
		ins.ActionID = ncs.ReadUint16(b[cursor:])
		cursor += 2
		ins.ActionArg = b[cursor]
		cursor++
	case ncs.OpStoreState:
		ins.StackSize = ncs.ReadInt32(b[cursor:])
		cursor += 4
		ins.Extra = ncs.ReadInt32(b[cursor:])
		cursor += 4
	}
	ins.Size = cursor
	return ins, cursor, nil
}

// byteToOp is the on-disk opcode byte table. Values not present decode
// to ncs.OpUnknown rather than erroring, so a single unrecognized op
// (e.g. from a future engine revision) doesn't sink the whole file.
var byteToOp = map[byte]ncs.Op{
	0x01: ncs.OpConst,
	0x02: ncs.OpRSAdd,
	0x03: ncs.OpCPTopSP,
	0x04: ncs.OpCPDownSP,
	0x05: ncs.OpCPTopBP,
	0x06: ncs.OpCPDownBP,
	0x10: ncs.OpAdd,
	0x11: ncs.OpSub,
	0x12: ncs.OpMul,
	0x13: ncs.OpDiv,
	0x14: ncs.OpMod,
	0x15: ncs.OpBitAnd,
	0x16: ncs.OpBitOr,
	0x17: ncs.OpBitXor,
	0x18: ncs.OpShLeft,
	0x19: ncs.OpShRight,
	0x20: ncs.OpEq,
	0x21: ncs.OpNEq,
	0x22: ncs.OpLT,
	0x23: ncs.OpLE,
	0x24: ncs.OpGT,
	0x25: ncs.OpGE,
	0x26: ncs.OpLogAnd,
	0x27: ncs.OpLogOr,
	0x30: ncs.OpNeg,
	0x31: ncs.OpNot,
	0x32: ncs.OpComp,
	0x40: ncs.OpIncISP,
	0x41: ncs.OpDecISP,
	0x42: ncs.OpDestruct,
	0x50: ncs.OpJSR,
	0x51: ncs.OpAction,
	0x52: ncs.OpJMP,
	0x53: ncs.OpJZ,
	0x54: ncs.OpJNZ,
	0x60: ncs.OpRetn,
	0x61: ncs.OpMovSP,
	0x62: ncs.OpStoreState,
	0x70: ncs.OpSaveBP,
	0x71: ncs.OpRestoreBP,
	0x7F: ncs.OpNop,
}

func decodeOp(b byte) ncs.Op {
	if op, ok := byteToOp[b]; ok {
		return op
	}
	return ncs.OpUnknown
}
