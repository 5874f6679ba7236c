package diagnostics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSinkLogfAndHasSeverity(t *testing.T) {
	s := NewSink()
	s.Logf("reconstruct", Warn, KindStackUnderflow, 0x10, "synthesized placeholder at %06X", 0x10)

	assert.Len(t, s.All(), 1)
	assert.True(t, s.HasSeverity(Warn))
	assert.False(t, s.HasSeverity(Error))
}

func TestRenderPlainTextIncludesOffset(t *testing.T) {
	records := []Diagnostic{
		{Stage: "printer", Severity: Error, Kind: KindPrinterEmpty, Offset: 0, Message: "tree produced no text"},
		{Stage: "reconstruct", Severity: Warn, Kind: KindStackUnderflow, Offset: 0x42, Message: "underflow"},
	}
	out := Render(records, false)
	assert.Contains(t, out, "[ERROR] printer: tree produced no text")
	assert.Contains(t, out, "(000042): underflow")
}
