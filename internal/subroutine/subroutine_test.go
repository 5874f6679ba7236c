package subroutine

import (
	"testing"

	"github.com/kotor-tools/ncsdecomp/internal/analysis"
	"github.com/kotor-tools/ncsdecomp/internal/ncs"
)

func TestSplitSingleMainNoGlobals(t *testing.T) {
	instrs := []ncs.Instruction{
		{Op: ncs.OpRetn, Offset: 0, Size: 2},
	}
	store := analysis.NewStore()
	analysis.SetDestinations(store, instrs)

	set := Split(instrs, store)
	if set.Main == nil || !set.Main.IsMain {
		t.Fatal("expected a main subroutine")
	}
	if set.Globals != nil {
		t.Error("expected no globals subroutine")
	}
}

func TestSplitGlobalsThenMain(t *testing.T) {
	instrs := []ncs.Instruction{
		{Op: ncs.OpSaveBP, Offset: 0, Size: 2},
		{Op: ncs.OpJSR, Offset: 2, JumpOffset: 6, Size: 6},
		{Op: ncs.OpRetn, Offset: 8, Size: 2}, // main, at offset 8
	}
	store := analysis.NewStore()
	analysis.SetDestinations(store, instrs)

	set := Split(instrs, store)
	if set.Globals == nil || !set.Globals.IsGlobals {
		t.Fatal("expected a globals subroutine")
	}
	if set.Main == nil || set.Main.Start != 8 {
		t.Fatalf("expected main to start at 8, got %+v", set.Main)
	}
}
