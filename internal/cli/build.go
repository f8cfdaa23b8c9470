package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/0bArc/Vault/internal/loader"
	"github.com/0bArc/Vault/internal/logging"
	"github.com/0bArc/Vault/internal/store"
)

// SourceExt and ArchiveExt are the file extensions build maps between.
const (
	SourceExt  = ".vau"
	ArchiveExt = ".svau"
)

// BuildOptions holds flags for the build command.
type BuildOptions struct {
	*RootOptions
	OutDir               string
	Loads                []string
	Jobs                 int
	MaterializeOptionals bool
	StrictNames          bool
}

// BuildResult is the outcome for one source file.
type BuildResult struct {
	Input   string `json:"input" yaml:"input"`
	Output  string `json:"output" yaml:"output"`
	OK      bool   `json:"ok" yaml:"ok"`
	Vaults  int    `json:"vaults,omitempty" yaml:"vaults,omitempty"`
	BuildID string `json:"build_id,omitempty" yaml:"build_id,omitempty"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`

	err error
}

// BuildSummary is the structured result of build.
type BuildSummary struct {
	Results []BuildResult `json:"results" yaml:"results"`
	Failed  int           `json:"failed" yaml:"failed"`
}

// NewBuildCommand creates the build command.
func NewBuildCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BuildOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "build <src-dir|file.vau>...",
		Short: "Compile many Vault DSL programs concurrently",
		Long: `Compile every .vau file in the given directories (not recursive) or
files, writing <name>.svau next to each source or into --out-dir.

All sources share the --load dependencies, which are read once. A failing
source does not stop the others; the command fails if any source failed.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.OutDir, "out-dir", "o", "", "directory for compiled archives (default: next to each source)")
	cmd.Flags().StringArrayVar(&opts.Loads, "load", nil, "dependency archive (repeatable, later wins)")
	cmd.Flags().IntVarP(&opts.Jobs, "jobs", "j", runtime.NumCPU(), "maximum concurrent compiles")
	cmd.Flags().BoolVar(&opts.MaterializeOptionals, "materialize-optionals", false, "compile optional vaults no dependency provides")
	cmd.Flags().BoolVar(&opts.StrictNames, "strict-names", false, "reject vaults that shadow a dependency vault")

	return cmd
}

func runBuild(cmd *cobra.Command, opts *BuildOptions, args []string) error {
	f := opts.formatter(cmd)
	ctx := cmd.Context()

	if opts.Jobs < 1 {
		return f.FailWith(ErrCodeIO, ExitCommandError, fmt.Sprintf("--jobs must be at least 1, got %d", opts.Jobs), nil, nil)
	}
	inputs, err := collectSources(args)
	if err != nil {
		return f.FailWith(ErrCodeIO, ExitCommandError, "collect sources", err, nil)
	}
	if len(inputs) == 0 {
		return f.FailWith(ErrCodeIO, ExitCommandError, "no "+SourceExt+" files found", nil, nil)
	}
	if err := checkOutputs(inputs, opts.OutDir); err != nil {
		return f.FailWith(ErrCodeIO, ExitCommandError, "conflicting outputs", err, nil)
	}
	if opts.OutDir != "" {
		if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
			return f.FailWith(ErrCodeIO, ExitCommandError, "create output directory", err, nil)
		}
	}

	e, err := loadEnv(ctx, opts.RootOptions)
	if err != nil {
		return f.Fail("load settings", err, nil)
	}
	ledger, err := openLedger(ledgerPath(e.cfg, opts.RootOptions))
	if err != nil {
		return f.FailWith(ErrCodeIO, ExitCommandError, "open ledger", err, nil)
	}
	defer ledger.Close()

	f.VerboseLog("building %d source(s) with %d job(s)", len(inputs), opts.Jobs)
	results, err := buildAll(ctx, e, opts, inputs, ledger)
	if err != nil {
		return f.FailWith(ErrCodeIO, ExitCommandError, "build", err, nil)
	}

	summary := BuildSummary{Results: results}
	var firstErr error
	for _, r := range results {
		if !r.OK {
			summary.Failed++
			if firstErr == nil {
				firstErr = r.err
			}
		}
	}

	if err := f.Success(summary, func(w io.Writer) {
		for _, r := range summary.Results {
			if r.OK {
				f.Status(true, "%s -> %s (%d vault(s))", r.Input, r.Output, r.Vaults)
			} else {
				f.Status(false, "%s: %s", r.Input, r.Error)
			}
		}
	}); err != nil {
		return WrapExitError(ExitCommandError, "write summary", err)
	}

	if summary.Failed > 0 {
		_, exit := classify(firstErr)
		return WrapExitError(exit, fmt.Sprintf("%d of %d source(s) failed", summary.Failed, len(results)), firstErr)
	}
	return nil
}

// buildAll compiles inputs with at most opts.Jobs compiles in flight.
// Results keep the order of inputs. Per-source failures are recorded in
// the results; only cancellation is returned.
func buildAll(ctx context.Context, e *env, opts *BuildOptions, inputs []string, ledger *store.Store) ([]BuildResult, error) {
	logger := logging.FromContext(ctx)
	cache := loader.NewCache()
	results := make([]BuildResult, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Jobs)
	for i, input := range inputs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r := BuildResult{Input: input, Output: outputPath(input, opts.OutDir)}
			res, err := e.compileUnit(gctx, unit{
				Input:                input,
				Output:               r.Output,
				Loads:                opts.Loads,
				MaterializeOptionals: opts.MaterializeOptionals,
				StrictNames:          opts.StrictNames,
			}, cache, ledger)
			if err != nil {
				r.Error = err.Error()
				r.err = err
				logger.Debug("source failed", "input", input, "err", err)
			} else {
				r.OK = true
				r.Vaults = len(res.Archive.Entries)
				if res.Build != nil {
					r.BuildID = res.Build.ID
				}
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	hits, misses := cache.Stats()
	logger.Debug("dependency cache", "hits", hits, "misses", misses)
	return results, nil
}

// collectSources expands directories into their .vau files. Files are
// taken as given. The result is sorted within each directory.
func collectSources(args []string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	add := func(p string) {
		p = filepath.Clean(p)
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			add(arg)
			continue
		}
		matches, err := filepath.Glob(filepath.Join(arg, "*"+SourceExt))
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			add(m)
		}
	}
	return out, nil
}

// checkOutputs fails when two inputs map to the same archive path, which
// would have concurrent compiles replace each other's output.
func checkOutputs(inputs []string, outDir string) error {
	owners := make(map[string]string, len(inputs))
	for _, input := range inputs {
		out := outputPath(input, outDir)
		if prev, ok := owners[out]; ok {
			return fmt.Errorf("%s and %s both write %s", prev, input, out)
		}
		owners[out] = input
	}
	return nil
}

// outputPath maps dir/name.vau to outDir/name.svau, or dir/name.svau when
// outDir is empty.
func outputPath(input, outDir string) string {
	name := strings.TrimSuffix(filepath.Base(input), SourceExt) + ArchiveExt
	if outDir == "" {
		return filepath.Join(filepath.Dir(input), name)
	}
	return filepath.Join(outDir, name)
}
