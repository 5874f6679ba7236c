package driver

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kotor-tools/ncsdecomp/internal/actions"
	"github.com/kotor-tools/ncsdecomp/internal/config"
	"github.com/kotor-tools/ncsdecomp/internal/diagnostics"
)

// writeNCS assembles a minimal but valid NCS container: the 13-byte
// header ("NCS " + version + a 4-byte size field the decoder never
// trusts + one pad byte) followed by code bytes, then writes it to a
// temp file and returns its path.
func writeNCS(t *testing.T, code []byte) string {
	t.Helper()
	header := make([]byte, 13)
	copy(header[0:4], "NCS ")
	copy(header[4:8], "V1.0")
	data := append(header, code...)
	path := filepath.Join(t.TempDir(), "test.ncs")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func emptyActionTable(t *testing.T) *actions.Table {
	t.Helper()
	tbl, err := actions.Load(strings.NewReader(""))
	require.NoError(t, err)
	return tbl
}

func TestDecompileRetnOnlyProducesEmptyMain(t *testing.T) {
	path := writeNCS(t, []byte{0x60, 0x00}) // RETN, QualNone

	fd := New(config.Default(), emptyActionTable(t))
	out := fd.Decompile(context.Background(), path)

	assert.Equal(t, PartialCompile, out.Code)
	assert.Contains(t, out.Source, "void main()")
	assert.Contains(t, out.Source, "{")
}

func TestDecompileMissingActionsProducesFailureStub(t *testing.T) {
	path := writeNCS(t, []byte{0x60, 0x00})

	fd := New(config.Default(), nil)
	out := fd.Decompile(context.Background(), path)

	assert.Equal(t, Failure, out.Code)
	assert.Contains(t, out.Source, "// ACTIONS DATA LOADING FAILURE")
	assert.Contains(t, out.Source, "void main() {}")
	require.NotEmpty(t, out.Diagnostics)
	assert.Equal(t, diagnostics.KindActionsMissing, out.Diagnostics[0].Kind)
}

func TestDecompileBadSignatureProducesFailureStub(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.ncs")
	require.NoError(t, os.WriteFile(path, []byte("NOTANCSFILEATALL"), 0o644))

	fd := New(config.Default(), emptyActionTable(t))
	out := fd.Decompile(context.Background(), path)

	assert.Equal(t, Failure, out.Code)
	assert.Contains(t, out.Source, "Invalid NCS signature")
	assert.Contains(t, out.Source, "void main() {}")
}

// writeFakeCompiler writes an executable shell script that stands in
// for an external nwnnsscomp-compatible compiler: it refuses any source
// path that isn't a .nss file (so the test fails loudly if the driver
// ever hands it the original .ncs binary instead of the emitted NSS
// text) and otherwise "recompiles" by echoing back wantBytes verbatim,
// simulating a perfect round-trip.
func writeFakeCompiler(t *testing.T, wantBytes []byte) string {
	t.Helper()
	refPath := filepath.Join(t.TempDir(), "reference.bin")
	require.NoError(t, os.WriteFile(refPath, wantBytes, 0o644))

	script := "#!/bin/sh\n" +
		"case \"$1\" in\n" +
		"  *.nss) cat \"" + refPath + "\" ;;\n" +
		"  *) echo \"fake compiler: expected a .nss source path, got $1\" 1>&2; exit 1 ;;\n" +
		"esac\n"
	scriptPath := filepath.Join(t.TempDir(), "fake-compiler.sh")
	require.NoError(t, os.WriteFile(scriptPath, []byte(script), 0o755))
	return scriptPath
}

func TestRoundTripCompilesEmittedSourceNotOriginalBinary(t *testing.T) {
	ncsBytes := []byte{}
	header := make([]byte, 13)
	copy(header[0:4], "NCS ")
	copy(header[4:8], "V1.0")
	ncsBytes = append(header, 0x60, 0x00)

	path := filepath.Join(t.TempDir(), "roundtrip.ncs")
	require.NoError(t, os.WriteFile(path, ncsBytes, 0o644))

	cfg := config.Default()
	cfg.CompilerPath = writeFakeCompiler(t, ncsBytes)
	fd := New(cfg, emptyActionTable(t))

	out := fd.Decompile(context.Background(), path)

	assert.Equal(t, Success, out.Code)
}

func TestRepairPassWithNothingToStripKeepsPartialCompare(t *testing.T) {
	// A RETN-only script reconstructs without any ErrorComment/
	// UnkLoopControl node, so the repair pass has nothing to strip. This
	// asserts the pass is a correctly-wired no-op: with nothing to strip,
	// repair must not spuriously flip a non-Success code to Success.
	ncsBytes := []byte{}
	header := make([]byte, 13)
	copy(header[0:4], "NCS ")
	copy(header[4:8], "V1.0")
	ncsBytes = append(header, 0x60, 0x00)

	path := filepath.Join(t.TempDir(), "repair.ncs")
	require.NoError(t, os.WriteFile(path, ncsBytes, 0o644))

	cfg := config.Default()
	cfg.EnableRepairs = true
	cfg.MaxRepairPasses = 3
	cfg.CompilerPath = writeFakeCompiler(t, []byte("not the original bytes"))
	fd := New(cfg, emptyActionTable(t))

	out := fd.Decompile(context.Background(), path)

	assert.Equal(t, PartialCompare, out.Code)
}

func TestDecompileEmptyActionTableWarnsButProceeds(t *testing.T) {
	path := writeNCS(t, []byte{0x60, 0x00})

	fd := New(config.Default(), emptyActionTable(t))
	out := fd.Decompile(context.Background(), path)

	require.NotEqual(t, Failure, out.Code)
	found := false
	for _, d := range out.Diagnostics {
		if d.Kind == diagnostics.KindActionsMissing && strings.Contains(d.Message, "empty") {
			found = true
		}
	}
	assert.True(t, found, "expected an actions-table-empty diagnostic, got %+v", out.Diagnostics)
}
