package tui

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kotor-tools/ncsdecomp/internal/batch"
	"github.com/kotor-tools/ncsdecomp/internal/driver"
)

func TestUpdateProgressMsgTalliesSummaryAndLog(t *testing.T) {
	ch := make(chan batch.Progress)
	m := newModel(2, ch, true)

	updated, _ := m.Update(progressMsg(batch.Progress{
		Outcome: driver.Outcome{Path: "a.ncs", Code: driver.Success},
	}))
	mm := updated.(model)

	assert.Equal(t, 1, mm.done)
	assert.Equal(t, 1, mm.summary.Success)
	assert.Len(t, mm.log, 1)
	assert.Contains(t, mm.log[0], "a.ncs")
}

func TestUpdateDoneMsgMarksFinished(t *testing.T) {
	ch := make(chan batch.Progress)
	m := newModel(0, ch, true)

	updated, _ := m.Update(doneMsg{})
	mm := updated.(model)
	assert.True(t, mm.finished)
}

func TestViewShowsSummaryOnceFinished(t *testing.T) {
	ch := make(chan batch.Progress)
	m := newModel(1, ch, true)
	m.finished = true
	m.summary = batch.Summary{Total: 1, Success: 1}

	out := m.View()
	assert.Contains(t, out, "success=1")
}
