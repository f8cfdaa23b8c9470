package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/0bArc/Vault/internal/compiler"
	"github.com/0bArc/Vault/internal/dsl"
	"github.com/0bArc/Vault/internal/loader"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Loads       []string
	StrictNames bool
}

// ValidationSummary is the structured result of a successful validate.
type ValidationSummary struct {
	Input  string   `json:"input" yaml:"input"`
	Vaults []string `json:"vaults" yaml:"vaults"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <in.vau>",
		Short: "Check a Vault DSL program without compiling it",
		Long: `Parse and validate a Vault DSL program and list every semantic error.

Keys are only needed when --load is given, to verify the dependency
archives.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringArrayVar(&opts.Loads, "load", nil, "dependency archive (repeatable, later wins)")
	cmd.Flags().BoolVar(&opts.StrictNames, "strict-names", false, "reject vaults that shadow a dependency vault")

	return cmd
}

func runValidate(cmd *cobra.Command, opts *ValidateOptions, input string) error {
	f := opts.formatter(cmd)
	ctx := cmd.Context()

	prog, err := dsl.ParseFile(input)
	if err != nil {
		return f.Fail("validate "+input, err, nil)
	}

	strict := opts.StrictNames
	var deps *loader.Set
	if len(opts.Loads) > 0 {
		e, err := loadEnv(ctx, opts.RootOptions)
		if err != nil {
			return f.Fail("load settings", err, nil)
		}
		strict = strict || e.cfg.StrictNames
		if deps, err = loader.Load(ctx, opts.Loads, e.kr); err != nil {
			return f.Fail("validate "+input, err, nil)
		}
	}

	if _, errs := compiler.Validate(prog, deps, compiler.ValidateOptions{StrictNames: strict}); len(errs) > 0 {
		if !f.Structured() {
			for _, e := range errs {
				fmt.Fprintf(f.Writer, "%s %s\n", ErrorStyle.Render("✗"), e.Error())
			}
		}
		return f.Fail("validate "+input, compiler.SemanticErrors(errs), errs)
	}

	summary := ValidationSummary{Input: input, Vaults: make([]string, 0, len(prog.Vaults))}
	for _, v := range prog.Vaults {
		summary.Vaults = append(summary.Vaults, v.Name)
	}
	return f.Success(summary, func(w io.Writer) {
		f.Status(true, "%s is valid (%d vault(s))", input, len(summary.Vaults))
		for _, name := range summary.Vaults {
			if deps.Has(name) {
				fmt.Fprintf(w, "  %s\n", MutedStyle.Render(name+" seeded from dependency"))
			}
		}
	})
}
