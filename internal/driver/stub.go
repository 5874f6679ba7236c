package driver

import (
	"fmt"
	"os"
	"strings"

	"github.com/kotor-tools/ncsdecomp/internal/config"
	"github.com/kotor-tools/ncsdecomp/internal/ncs"
)

// buildStub renders the comment-only diagnostic stub spec.md §7
// requires whenever the pipeline cannot produce a usable tree: the raw
// header bytes read (if any), a signature check, an instruction-count
// estimate, the triggering error, the active configuration, and the
// searched action-table path — followed by a syntactically valid empty
// main so the stub itself still compiles.
func buildStub(path string, cfg config.Config, instrs []ncs.Instruction, cause error, actionsMissing bool) string {
	var b strings.Builder
	b.WriteString("// NCS DECOMPILATION FAILURE STUB\n")
	fmt.Fprintf(&b, "// file: %s\n", path)

	header, herr := os.ReadFile(path)
	if herr == nil && len(header) >= 8 {
		fmt.Fprintf(&b, "// header bytes: % X\n", header[:8])
		if string(header[0:4]) != "NCS " {
			b.WriteString("// Invalid NCS signature\n")
		} else {
			fmt.Fprintf(&b, "// NCS signature OK, version %q\n", string(header[4:8]))
		}
	} else {
		b.WriteString("// header bytes: <unreadable>\n")
	}

	fmt.Fprintf(&b, "// instruction count estimate: %d\n", len(instrs))

	if cause != nil {
		b.WriteString("// exception chain:\n")
		for _, line := range strings.Split(cause.Error(), ": ") {
			fmt.Fprintf(&b, "//   %s\n", line)
		}
	}

	fmt.Fprintf(&b, "// configuration: game=%s prefer_switches=%t strict_signatures=%t compiler=%q\n",
		cfg.Game, cfg.PreferSwitches, cfg.StrictSignatures, cfg.CompilerPath)

	searched := cfg.ActionsPath
	if searched == "" {
		searched = "<none configured>"
	}
	fmt.Fprintf(&b, "// searched action table paths: %s\n", searched)
	if actionsMissing {
		b.WriteString("// ACTIONS DATA LOADING FAILURE\n")
	}

	b.WriteString("\nvoid main() {}\n")
	return b.String()
}
