package ncsfile

import (
	"testing"

	"github.com/kotor-tools/ncsdecomp/internal/ncs"
)

func TestDecodeEmptyBody(t *testing.T) {
	// A single RETN: opcode 0x60, qualifier 0x00.
	b := []byte{0x60, 0x00}
	instrs, err := Decode(b, 13)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if len(instrs) != 1 {
		t.Fatalf("expected 1 instruction, got %d", len(instrs))
	}
	if instrs[0].Op != ncs.OpRetn {
		t.Errorf("expected OpRetn, got %v", instrs[0].Op)
	}
	if instrs[0].Offset != 13 {
		t.Errorf("expected offset 13, got %d", instrs[0].Offset)
	}
}

func TestDecodeConstStringAndAction(t *testing.T) {
	var b []byte
	// CONST_STRING "Hi"
	b = append(b, 0x01, byte(ncs.QualString))
	b = append(b, 0x00, 0x02, 'H', 'i')
	// ACTION id=5, args=1
	b = append(b, 0x51, 0x00, 0x00, 0x05, 0x01)
	// RETN
	b = append(b, 0x60, 0x00)

	instrs, err := Decode(b, 0)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if len(instrs) != 3 {
		t.Fatalf("expected 3 instructions, got %d", len(instrs))
	}
	if instrs[0].StringImm != "Hi" {
		t.Errorf("expected string immediate Hi, got %q", instrs[0].StringImm)
	}
	if instrs[1].ActionID != 5 || instrs[1].ActionArg != 1 {
		t.Errorf("unexpected action decode: %+v", instrs[1])
	}
	if instrs[2].Offset != instrs[1].Offset+instrs[1].Size {
		t.Errorf("offsets not monotonic: %+v", instrs)
	}
}

func TestDecodeTruncatedStops(t *testing.T) {
	b := []byte{0x03, byte(ncs.QualNone), 0x00, 0x00}
	instrs, err := Decode(b, 0)
	if err == nil {
		t.Fatal("expected error on truncated stream")
	}
	if len(instrs) != 0 {
		t.Errorf("expected no instructions decoded before failure, got %d", len(instrs))
	}
}
