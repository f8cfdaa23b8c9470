package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/0bArc/Vault/internal/compiler"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Loads                []string
	MaterializeOptionals bool
	StrictNames          bool
}

// CompileSummary is the structured result of a compile.
type CompileSummary struct {
	Input        string   `json:"input" yaml:"input"`
	Output       string   `json:"output" yaml:"output"`
	Vaults       []string `json:"vaults" yaml:"vaults"`
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Bytes        int      `json:"bytes" yaml:"bytes"`
	BuildID      string   `json:"build_id,omitempty" yaml:"build_id,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <in.vau> <out.svau>",
		Short: "Compile a Vault DSL program into a sealed archive",
		Long: `Compile a Vault DSL program into a sealed .svau archive.

Archives given with --load are verified and used as dependencies: a vault
with the same name as a dependency vault starts from its contents. When
several dependencies define a vault, the last --load wins.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd, opts, args[0], args[1])
		},
	}

	cmd.Flags().StringArrayVar(&opts.Loads, "load", nil, "dependency archive (repeatable, later wins)")
	cmd.Flags().BoolVar(&opts.MaterializeOptionals, "materialize-optionals", false, "compile optional vaults no dependency provides")
	cmd.Flags().BoolVar(&opts.StrictNames, "strict-names", false, "reject vaults that shadow a dependency vault")

	return cmd
}

func runCompile(cmd *cobra.Command, opts *CompileOptions, input, output string) error {
	f := opts.formatter(cmd)
	ctx := cmd.Context()

	e, err := loadEnv(ctx, opts.RootOptions)
	if err != nil {
		return f.Fail("load settings", err, nil)
	}
	ledger, err := openLedger(ledgerPath(e.cfg, opts.RootOptions))
	if err != nil {
		return f.FailWith(ErrCodeIO, ExitCommandError, "open ledger", err, nil)
	}
	defer ledger.Close()

	f.VerboseLog("compiling %s with %d dependency archive(s)", input, len(opts.Loads))
	res, err := e.compileUnit(ctx, unit{
		Input:                input,
		Output:               output,
		Loads:                opts.Loads,
		MaterializeOptionals: opts.MaterializeOptionals,
		StrictNames:          opts.StrictNames,
	}, nil, ledger)
	if err != nil {
		return f.Fail("compile "+input, err, semanticDetails(err))
	}

	summary := CompileSummary{
		Input:        input,
		Output:       output,
		Vaults:       make([]string, 0, len(res.Archive.Entries)),
		Dependencies: res.Archive.Dependencies,
		Bytes:        len(res.Encoded),
	}
	for _, entry := range res.Archive.Entries {
		summary.Vaults = append(summary.Vaults, entry.Name)
	}
	if res.Build != nil {
		summary.BuildID = res.Build.ID
	}

	return f.Success(summary, func(w io.Writer) {
		f.Status(true, "Compiled %d vault(s) to %s", len(summary.Vaults), output)
		if len(summary.Dependencies) > 0 {
			fmt.Fprintf(w, "  depends on %v\n", summary.Dependencies)
		}
		if summary.BuildID != "" {
			fmt.Fprintf(w, "  %s\n", MutedStyle.Render("build "+summary.BuildID))
		}
	})
}

// semanticDetails returns the semantic error list of err for structured
// output, or nil.
func semanticDetails(err error) any {
	var errs compiler.SemanticErrors
	if errors.As(err, &errs) {
		return []compiler.SemanticError(errs)
	}
	return nil
}
