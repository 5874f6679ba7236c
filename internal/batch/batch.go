// Package batch drives FileDecompiler across many .ncs files concurrently.
// Each file gets its own isolated pipeline state per spec.md §5 — nothing
// here is shared mutable state beyond the read-only Config/Actions every
// FileDecompiler already treats as immutable.
package batch

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/kotor-tools/ncsdecomp/internal/driver"
)

// Options controls how a Run fans out across the input paths.
type Options struct {
	// Concurrency caps how many files decompile at once. Zero or
	// negative means "no explicit cap" (errgroup.SetLimit(-1)).
	Concurrency int
}

// Progress is sent once per completed file, in completion order (not
// necessarily input order) — callers that need input order should index
// by Outcome.Path themselves.
type Progress struct {
	Index   int
	Total   int
	Outcome driver.Outcome
	Err     error
}

// Run decompiles every path in paths using fd, sending one Progress per
// completion on progressCh (if non-nil) and returning the full set of
// outcomes once everything finishes or ctx is canceled. progressCh, if
// given, is closed before Run returns.
//
// An individual file's failure, including a hard I/O error such as the
// path disappearing between listing and open, does not abort the batch:
// FileDecompiler turns it into a FAILURE Outcome rather than an error.
// Run never sets Progress.Err; the only error Run returns is ctx's, when
// it is canceled while a progress send is pending.
func Run(ctx context.Context, fd *driver.FileDecompiler, paths []string, opts Options, progressCh chan<- Progress) ([]driver.Outcome, error) {
	if progressCh != nil {
		defer close(progressCh)
	}

	outcomes := make([]driver.Outcome, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	if opts.Concurrency > 0 {
		g.SetLimit(opts.Concurrency)
	}

	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			out := fd.Decompile(gctx, p)
			outcomes[i] = out
			if progressCh != nil {
				select {
				case progressCh <- Progress{Index: i, Total: len(paths), Outcome: out}:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return outcomes, err
	}
	return outcomes, nil
}

// Summary tallies the Codes across a batch's outcomes, the shape the CLI
// and TUI both want for a final report line.
type Summary struct {
	Total          int
	Success        int
	PartialCompare int
	PartialCompile int
	Failure        int
}

// Summarize tallies outcomes by Code.
func Summarize(outcomes []driver.Outcome) Summary {
	s := Summary{Total: len(outcomes)}
	for _, o := range outcomes {
		switch o.Code {
		case driver.Success:
			s.Success++
		case driver.PartialCompare:
			s.PartialCompare++
		case driver.PartialCompile:
			s.PartialCompile++
		case driver.Failure:
			s.Failure++
		}
	}
	return s
}
