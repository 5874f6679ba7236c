// Command ncsdecomp decompiles compiled NWScript (.ncs) bytecode back to
// readable NSS source, either one file at a time or as a batch over a
// directory, with an optional round-trip check against an external
// compiler.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kotor-tools/ncsdecomp/internal/actions"
	"github.com/kotor-tools/ncsdecomp/internal/batch"
	"github.com/kotor-tools/ncsdecomp/internal/config"
	"github.com/kotor-tools/ncsdecomp/internal/diagnostics"
	"github.com/kotor-tools/ncsdecomp/internal/driver"
	"github.com/kotor-tools/ncsdecomp/internal/tui"
)

const version = "0.1.0"

// cliFlags backs every flag shared across subcommands; its fields are
// bound directly to pflag vars in newRootCmd and turned into a
// config.Config by resolveConfig.
type cliFlags struct {
	settingsPath     string
	actionsPath      string
	game             string
	outDir           string
	compilerPath     string
	preferSwitches   bool
	strictSignatures bool
	enableRepairs    bool
	maxRepairPasses  int
	debug            bool
	noColor          bool
	concurrency      int
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &cliFlags{}

	root := &cobra.Command{
		Use:   "ncsdecomp",
		Short: "Decompile compiled NWScript bytecode into NSS source",
		RunE: func(cmd *cobra.Command, args []string) error {
			if v, _ := cmd.Flags().GetBool("version"); v {
				fmt.Println("ncsdecomp " + version)
				return nil
			}
			return cmd.Help()
		},
	}
	root.Flags().BoolP("version", "v", false, "print the version and exit")
	root.PersistentFlags().StringVar(&flags.settingsPath, "config", "", "path to a TOML settings file")
	root.PersistentFlags().StringVarP(&flags.actionsPath, "actions", "a", "", "path to the action table description")
	root.PersistentFlags().StringVarP(&flags.game, "game", "g", string(config.GameK1), "game the action table targets (K1, K2, TSL)")
	root.PersistentFlags().StringVarP(&flags.outDir, "out", "o", "", "directory to write .nss output into (defaults to alongside the input)")
	root.PersistentFlags().StringVar(&flags.compilerPath, "compiler", "", "path to an external nwnnsscomp-compatible compiler for round-trip verification")
	root.PersistentFlags().BoolVar(&flags.preferSwitches, "prefer-switches", true, "promote chained equality comparisons to switch statements")
	root.PersistentFlags().BoolVar(&flags.strictSignatures, "strict-signatures", false, "tag unresolved-prototype warnings as strict-signature reports (unresolved slots still default to int)")
	root.PersistentFlags().BoolVar(&flags.enableRepairs, "repair", false, "run repair passes over output that fails to round-trip")
	root.PersistentFlags().IntVar(&flags.maxRepairPasses, "max-repair-passes", 3, "maximum repair passes when --repair is set")
	root.PersistentFlags().BoolVarP(&flags.debug, "debug", "d", false, "enable verbose diagnostic output")
	root.PersistentFlags().BoolVar(&flags.noColor, "no-color", false, "disable styled/colored output")
	root.PersistentFlags().IntVar(&flags.concurrency, "concurrency", 0, "max concurrent files in batch mode (0 = unlimited)")

	root.AddCommand(newDecompileCmd(flags))
	root.AddCommand(newBatchCmd(flags))
	root.AddCommand(newValidateCmd(flags))
	return root
}

func resolveConfig(flags *cliFlags) (config.Config, error) {
	cfg, err := config.Load(flags.settingsPath)
	if err != nil {
		return cfg, err
	}
	if flags.actionsPath != "" {
		cfg.ActionsPath = flags.actionsPath
	}
	if flags.game != "" {
		cfg.Game = config.Game(flags.game)
	}
	if flags.outDir != "" {
		cfg.OutDir = flags.outDir
	}
	if flags.compilerPath != "" {
		cfg.CompilerPath = flags.compilerPath
	}
	cfg.PreferSwitches = flags.preferSwitches
	cfg.StrictSignatures = flags.strictSignatures
	cfg.EnableRepairs = flags.enableRepairs
	cfg.MaxRepairPasses = flags.maxRepairPasses
	cfg.Debug = flags.debug

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// loadActions opens cfg.ActionsPath if set; a missing path yields a nil
// table, which FileDecompiler treats as a hard failure per its degrade
// policy — see driver.FileDecompiler.Decompile.
func loadActions(cfg config.Config) (*actions.Table, error) {
	if cfg.ActionsPath == "" {
		return nil, nil
	}
	f, err := os.Open(cfg.ActionsPath)
	if err != nil {
		return nil, fmt.Errorf("opening action table %s: %w", cfg.ActionsPath, err)
	}
	defer f.Close()
	tbl, err := actions.Load(f)
	if err != nil {
		return tbl, fmt.Errorf("loading action table %s: %w", cfg.ActionsPath, err)
	}
	return tbl, nil
}

func newDecompileCmd(flags *cliFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "decompile <file.ncs>",
		Short: "Decompile a single .ncs file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(flags)
			if err != nil {
				return err
			}
			at, err := loadActions(cfg)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
			}

			fd := driver.New(cfg, at)
			out := fd.Decompile(cmd.Context(), args[0])
			return writeOutcome(cfg, out, flags.debug, flags.noColor)
		},
	}
}

func newBatchCmd(flags *cliFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "batch <dir-or-pattern>",
		Short: "Decompile every .ncs file matching a directory or glob pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(flags)
			if err != nil {
				return err
			}
			at, err := loadActions(cfg)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
			}

			paths, err := resolvePaths(args[0])
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return fmt.Errorf("no .ncs files matched %s", args[0])
			}

			fd := driver.New(cfg, at)
			summary, err := tui.Run(cmd.Context(), fd, paths, batch.Options{Concurrency: flags.concurrency}, flags.noColor)
			if err != nil {
				return err
			}
			fmt.Printf("total=%d success=%d partial_compare=%d partial_compile=%d failure=%d\n",
				summary.Total, summary.Success, summary.PartialCompare, summary.PartialCompile, summary.Failure)
			return nil
		},
	}
}

func newValidateCmd(flags *cliFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the resolved configuration and action table without decompiling anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(flags)
			if err != nil {
				return err
			}
			at, err := loadActions(cfg)
			if err != nil {
				return err
			}
			n := 0
			if at != nil {
				n = at.Len()
			}
			fmt.Printf("config OK: game=%s compiler=%q actions=%d entries\n", cfg.Game, cfg.CompilerPath, n)
			return nil
		},
	}
}

// resolvePaths expands arg into a list of .ncs file paths: a directory
// is walked non-recursively for *.ncs, anything else is treated as a
// glob pattern (a bare file path matches itself).
func resolvePaths(arg string) ([]string, error) {
	info, err := os.Stat(arg)
	if err == nil && info.IsDir() {
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		var out []string
		for _, e := range entries {
			if e.IsDir() || filepath.Ext(e.Name()) != ".ncs" {
				continue
			}
			out = append(out, filepath.Join(arg, e.Name()))
		}
		return out, nil
	}
	return filepath.Glob(arg)
}

// writeOutcome writes the decompiled source to cfg.OutDir (or beside the
// input when unset) and reports diagnostics/return code to stderr.
func writeOutcome(cfg config.Config, out driver.Outcome, debug, noColor bool) error {
	dest := out.Path + ".nss"
	if cfg.OutDir != "" {
		dest = filepath.Join(cfg.OutDir, filepath.Base(out.Path)+".nss")
	}
	if err := os.WriteFile(dest, []byte(out.Source), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", dest, err)
	}

	fmt.Printf("%s -> %s [%s]\n", out.Path, dest, out.Code)
	if debug || out.Code == driver.Failure {
		fmt.Fprint(os.Stderr, diagnostics.Render(out.Diagnostics, !noColor))
	}
	if out.Code == driver.Failure {
		return fmt.Errorf("decompilation failed for %s", out.Path)
	}
	return nil
}
