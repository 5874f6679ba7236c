package prototype

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kotor-tools/ncsdecomp/internal/actions"
	"github.com/kotor-tools/ncsdecomp/internal/analysis"
	"github.com/kotor-tools/ncsdecomp/internal/ncs"
	"github.com/kotor-tools/ncsdecomp/internal/subroutine"
	"github.com/kotor-tools/ncsdecomp/internal/types"
)

func TestRunVoidMainWithoutEvidenceConverges(t *testing.T) {
	at, err := actions.Load(strings.NewReader(""))
	require.NoError(t, err)

	instrs := []ncs.Instruction{
		{Op: ncs.OpRetn, Offset: 0, Size: 2},
	}
	store := analysis.NewStore()
	analysis.SetDestinations(store, instrs)
	set := subroutine.Split(instrs, store)

	warnings := Run(set, at, false)
	assert.Empty(t, warnings, "a void main with no signature evidence should converge immediately")
	assert.True(t, set.Main.TotallyPrototyped)
	assert.Equal(t, types.Void, set.Main.Return)
}

func TestRunDiscardedActionResultLeavesMainVoid(t *testing.T) {
	at, err := actions.Load(strings.NewReader("5 int GetCount(object oTarget)\n"))
	require.NoError(t, err)

	instrs := []ncs.Instruction{
		{Op: ncs.OpConst, Qualifier: ncs.QualObject, Offset: 0, Size: 6},
		{Op: ncs.OpAction, Offset: 6, ActionID: 5, ActionArg: 1, Size: 5},
		{Op: ncs.OpRetn, Offset: 11, Size: 2},
	}
	store := analysis.NewStore()
	analysis.SetDestinations(store, instrs)
	set := subroutine.Split(instrs, store)

	Run(set, at, false)
	assert.Equal(t, types.Void, set.Main.Return, "return value is discarded, never written to the return slot")
}
