package analysis

import (
	"testing"

	"github.com/kotor-tools/ncsdecomp/internal/ncs"
)

func instr(op ncs.Op, offset int, jump int32) ncs.Instruction {
	return ncs.Instruction{Op: op, Offset: offset, JumpOffset: jump, Size: 6}
}

func TestSetDestinationsResolvesAbsoluteTarget(t *testing.T) {
	instrs := []ncs.Instruction{
		instr(ncs.OpJMP, 0, 12),
		{Op: ncs.OpNop, Offset: 6, Size: 2},
		{Op: ncs.OpRetn, Offset: 12, Size: 2},
	}
	store := NewStore()
	flagged := SetDestinations(store, instrs)
	if len(flagged) != 0 {
		t.Fatalf("expected no flagged jumps, got %v", flagged)
	}
	dest, ok := store.TryGetDestination(0)
	if !ok || dest != 12 {
		t.Fatalf("expected destination 12, got %d ok=%v", dest, ok)
	}
	if !store.IsJumpTarget(12) {
		t.Error("expected offset 12 to be marked a jump target")
	}
}

func TestSetDestinationsClampsOutOfRangeJump(t *testing.T) {
	instrs := []ncs.Instruction{
		instr(ncs.OpJMP, 0, 9999),
		{Op: ncs.OpRetn, Offset: 6, Size: 2},
	}
	store := NewStore()
	flagged := SetDestinations(store, instrs)
	if len(flagged) != 1 {
		t.Fatalf("expected 1 flagged jump, got %d", len(flagged))
	}
	dest, ok := store.TryGetDestination(0)
	if !ok || dest != 6 {
		t.Fatalf("expected clamp to last instruction (6), got %d", dest)
	}
}

func TestSetDeadCodeMarksUnreachableAfterUnconditionalJump(t *testing.T) {
	instrs := []ncs.Instruction{
		instr(ncs.OpJMP, 0, 12),
		{Op: ncs.OpNop, Offset: 6, Size: 6},
		{Op: ncs.OpRetn, Offset: 12, Size: 2},
	}
	store := NewStore()
	SetDestinations(store, instrs)
	SetDeadCode(store, instrs, 0)

	if store.IsDead(0) || store.IsDead(12) {
		t.Error("entry and return should be live")
	}
	if !store.IsDead(6) {
		t.Error("instruction after unconditional jump should be dead")
	}
}

func TestSetDeadCodeKeepsBothArmsOfConditional(t *testing.T) {
	instrs := []ncs.Instruction{
		instr(ncs.OpJZ, 0, 12),
		{Op: ncs.OpNop, Offset: 6, Size: 6},
		{Op: ncs.OpRetn, Offset: 12, Size: 2},
	}
	store := NewStore()
	SetDestinations(store, instrs)
	SetDeadCode(store, instrs, 0)

	for _, off := range []int{0, 6, 12} {
		if store.IsDead(off) {
			t.Errorf("offset %d should be reachable via one of the conditional arms", off)
		}
	}
}
