// Package driver is the top-level orchestrator: FileDecompiler.Decompile
// runs every pass in order for one .ncs file and always produces some
// output, per spec.md §6/§7's "the driver guarantees output" contract.
package driver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kotor-tools/ncsdecomp/internal/actions"
	"github.com/kotor-tools/ncsdecomp/internal/analysis"
	"github.com/kotor-tools/ncsdecomp/internal/cleanup"
	"github.com/kotor-tools/ncsdecomp/internal/config"
	"github.com/kotor-tools/ncsdecomp/internal/diagnostics"
	"github.com/kotor-tools/ncsdecomp/internal/ncs"
	"github.com/kotor-tools/ncsdecomp/internal/ncsfile"
	"github.com/kotor-tools/ncsdecomp/internal/printer"
	"github.com/kotor-tools/ncsdecomp/internal/prototype"
	"github.com/kotor-tools/ncsdecomp/internal/reconstruct"
	"github.com/kotor-tools/ncsdecomp/internal/roundtrip"
	"github.com/kotor-tools/ncsdecomp/internal/subroutine"
	"github.com/kotor-tools/ncsdecomp/internal/tree"
	"github.com/kotor-tools/ncsdecomp/internal/types"
)

// Code is the top-level return code spec.md §6 names.
type Code string

const (
	Success        Code = "SUCCESS"
	PartialCompare Code = "PARTIAL_COMPARE"
	PartialCompile Code = "PARTIAL_COMPILE"
	Failure        Code = "FAILURE"
)

// Outcome is everything a caller (CLI, batch, TUI) needs from one run:
// the return code, the emitted NSS text (always present), and the
// diagnostics collected along the way.
type Outcome struct {
	Path        string
	Code        Code
	Source      string
	Diagnostics []diagnostics.Diagnostic
}

// FileDecompiler owns one file's immutable collaborators — its
// configuration and action table — and produces a fresh Outcome per
// call to Decompile. Per spec.md §5, nothing here is shared mutable
// state between files: construct one FileDecompiler per file, or share
// one across files since Cfg/Actions are read-only after construction.
type FileDecompiler struct {
	Cfg     config.Config
	Actions *actions.Table
}

// New constructs a FileDecompiler; at is not validated here. At
// Decompile time a nil at yields the ActionsMissing failure stub, while
// an empty at only degrades output quality (an ActionsMissing warning
// and UnknownAction<id> call names).
func New(cfg config.Config, at *actions.Table) *FileDecompiler {
	return &FileDecompiler{Cfg: cfg, Actions: at}
}

// Decompile runs the full pipeline against path and returns an Outcome
// that always carries emittable NSS text, even on total failure.
func (fd *FileDecompiler) Decompile(ctx context.Context, path string) Outcome {
	sink := diagnostics.NewSink()

	if fd.Actions == nil {
		sink.Logf("actions", diagnostics.Error, diagnostics.KindActionsMissing, 0,
			"no action table loaded")
		return fd.failureStub(path, sink, nil, fmt.Errorf("actions: no table loaded"))
	}
	if fd.Actions.Len() == 0 {
		sink.Logf("actions", diagnostics.Warn, diagnostics.KindActionsMissing, 0,
			"action table loaded but empty; action calls will print as UnknownAction<id>")
	}

	f, openErr := ncsfile.Open(path)
	if f == nil {
		sink.Logf("ncsfile", diagnostics.Error, diagnostics.KindDecoderError, 0, "%v", openErr)
		return fd.failureStub(path, sink, nil, openErr)
	}
	defer f.Close()
	if openErr == ncsfile.ErrBadSignature {
		sink.Logf("ncsfile", diagnostics.Error, diagnostics.KindDecoderError, 0, "// Invalid NCS signature: %v", openErr)
		return fd.failureStub(path, sink, f.Instructions, openErr)
	}
	if openErr != nil {
		sink.Logf("ncsfile", diagnostics.Warn, diagnostics.KindDecoderError, 0, "decode stopped early: %v", openErr)
	}
	if len(f.Instructions) == 0 {
		sink.Logf("ncsfile", diagnostics.Error, diagnostics.KindDecoderError, 0, "no instructions decoded")
		return fd.failureStub(path, sink, nil, openErr)
	}

	store := analysis.NewStore()
	flagged := analysis.SetDestinations(store, f.Instructions)
	for _, off := range flagged {
		sink.Logf("analysis", diagnostics.Warn, diagnostics.KindMalformedControlFlow, off,
			"jump destination clamped to nearest valid instruction")
	}
	analysis.SetDeadCode(store, f.Instructions, f.Instructions[0].Offset)

	subs := subroutine.Split(f.Instructions, store)
	warnings := prototype.Run(subs, fd.Actions, fd.Cfg.StrictSignatures)
	for _, w := range warnings {
		sink.Logf("prototype", diagnostics.Warn, diagnostics.KindUnresolvedSignature, int(w.Sub), "%s", w.Message)
	}

	prog, trees := fd.reconstructProgram(subs, store, sink)

	src := printer.Print(prog)
	if src == "" {
		sink.Logf("printer", diagnostics.Error, diagnostics.KindPrinterEmpty, 0, "tree produced no text")
		return fd.failureStub(path, sink, f.Instructions, fmt.Errorf("empty printer output"))
	}

	code, src := fd.roundTripWithRepair(ctx, path, src, prog, trees, sink)
	return Outcome{Path: path, Code: code, Source: src, Diagnostics: sink.All()}
}

// reconstructProgram runs MainPass + CleanupPass over every non-globals
// subroutine and assembles the printable Program, splicing the globals
// subroutine's declarations to file scope via FlattenSub.
func (fd *FileDecompiler) reconstructProgram(subs *subroutine.Set, store *analysis.Store, sink *diagnostics.Sink) (printer.Program, map[subroutine.ID]*tree.Tree) {
	lookup := func(destOffset int) (reconstruct.CalleeInfo, bool) {
		st, ok := subs.ByStart(destOffset)
		if !ok {
			return reconstruct.CalleeInfo{}, false
		}
		return reconstruct.CalleeInfo{Name: subName(st), ParamCount: len(st.Params), Return: st.Return}, true
	}

	trees := make(map[subroutine.ID]*tree.Tree, len(subs.All))
	prog := printer.Program{}

	for _, sub := range subs.All {
		t := tree.New()
		trees[sub.ID] = t
		state := reconstruct.New(t, store, fd.Actions, sub, reconstruct.Config{
			PreferSwitches:   fd.Cfg.PreferSwitches,
			StrictSignatures: fd.Cfg.StrictSignatures,
		})
		reconstruct.MainPass(state, lookup)
		for _, msg := range state.Diagnostics {
			sink.Logf("reconstruct", diagnostics.Warn, diagnostics.KindStackUnderflow, sub.Start, "%s", msg)
		}
		cleanup.CleanupPass(t, t.Root)

		if sub.IsGlobals {
			continue
		}
		params := make([]*types.Variable, 0, len(sub.Params))
		for i, pt := range sub.Params {
			params = append(params, &types.Variable{Typ: pt, Name: fmt.Sprintf("p%d", i)})
		}
		prog.Subs = append(prog.Subs, printer.Sub{
			Tree:   t,
			Name:   subName(sub),
			Return: sub.Return,
			Params: params,
			IsMain: sub.IsMain,
		})
	}

	if subs.Globals != nil {
		fileScope := tree.New()
		cleanup.FlattenSub(subs, trees, fileScope)
		prog.Globals = fileScope
	}
	return prog, trees
}

func subName(sub *subroutine.State) string {
	if sub.IsMain {
		return "main"
	}
	return fmt.Sprintf("sub%06X", sub.Start)
}

// roundTripWithRepair round-trips src and, if that doesn't come back
// Success and repairs are enabled, retries up to Cfg.MaxRepairPasses
// times: each pass strips the unresolved placeholder nodes
// (ErrorComment/UnkLoopControl) out of every subroutine's tree via
// cleanup.StripErrorComments, reprints, and round-trips again. A pass
// that removes nothing stops the loop early — there's nothing left for
// a further pass to strip.
func (fd *FileDecompiler) roundTripWithRepair(ctx context.Context, path, src string, prog printer.Program, trees map[subroutine.ID]*tree.Tree, sink *diagnostics.Sink) (Code, string) {
	code := fd.roundTrip(ctx, path, src, sink)
	if code == Success || !fd.Cfg.EnableRepairs {
		return code, src
	}
	for pass := 1; pass <= fd.Cfg.MaxRepairPasses && code != Success; pass++ {
		removed := 0
		for _, t := range trees {
			removed += cleanup.StripErrorComments(t, t.Root)
		}
		if removed == 0 {
			break
		}
		src = printer.Print(prog)
		sink.Logf("repair", diagnostics.Info, diagnostics.KindMalformedControlFlow, 0,
			"repair pass %d: stripped %d unresolved placeholder(s), retrying round-trip", pass, removed)
		code = fd.roundTrip(ctx, path, src, sink)
	}
	return code, src
}

// roundTrip invokes the configured external compiler (if any) against a
// temp copy of src and compares its output to the original container.
// Absent a configured compiler, round-trip verification is simply
// unavailable, which spec.md §6 treats as PARTIAL_COMPILE: the source
// was emitted but its fidelity is unverified.
func (fd *FileDecompiler) roundTrip(ctx context.Context, path, src string, sink *diagnostics.Sink) Code {
	if fd.Cfg.CompilerPath == "" {
		return PartialCompile
	}
	ctxTimeout, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	srcPath, remove, err := writeTempSource(path, src)
	if err != nil {
		sink.Logf("roundtrip", diagnostics.Warn, diagnostics.KindMalformedControlFlow, 0, "writing temp source: %v", err)
		return PartialCompile
	}
	defer remove()

	recompiled, err := roundtrip.Compile(ctxTimeout, fd.Cfg.CompilerPath, srcPath)
	if err != nil {
		sink.Logf("roundtrip", diagnostics.Warn, diagnostics.KindMalformedControlFlow, 0, "recompile failed: %v", err)
		return PartialCompile
	}
	original, err := roundtrip.ReadAll(path)
	if err != nil {
		return PartialCompile
	}
	if roundtrip.CompareBytes(original, recompiled) {
		return Success
	}
	sink.Logf("roundtrip", diagnostics.Info, diagnostics.KindMalformedControlFlow, 0, "recompiled bytes differ from original")
	return PartialCompare
}

// writeTempSource writes src to a temp .nss file named after the
// original container (so a compiler that infers its output name from
// the input basename still produces something recognizable), returning
// its path and a func to remove it.
func writeTempSource(origPath, src string) (string, func(), error) {
	base := filepath.Base(origPath)
	base = base[:len(base)-len(filepath.Ext(base))]
	f, err := os.CreateTemp("", base+"-*.nss")
	if err != nil {
		return "", nil, err
	}
	defer f.Close()
	if _, err := f.WriteString(src); err != nil {
		os.Remove(f.Name())
		return "", nil, err
	}
	return f.Name(), func() { os.Remove(f.Name()) }, nil
}

// failureStub builds the comprehensive diagnostic stub spec.md §7
// requires when no usable tree could be produced: header bytes, a
// signature/version note, instruction count estimate, the triggering
// error, configuration, searched action-table paths, and a syntactically
// valid empty main so the stub is still compilable NSS.
func (fd *FileDecompiler) failureStub(path string, sink *diagnostics.Sink, instrs []ncs.Instruction, cause error) Outcome {
	return Outcome{
		Path:        path,
		Code:        Failure,
		Source:      buildStub(path, fd.Cfg, instrs, cause, fd.Actions == nil),
		Diagnostics: sink.All(),
	}
}
