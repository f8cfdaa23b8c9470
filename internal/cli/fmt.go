package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/0bArc/Vault/internal/dsl"
)

// FmtOptions holds flags for the fmt command.
type FmtOptions struct {
	*RootOptions
	Write bool
	Check bool
}

// FmtSummary is the structured result of fmt.
type FmtSummary struct {
	Input     string `json:"input" yaml:"input"`
	Changed   bool   `json:"changed" yaml:"changed"`
	Written   bool   `json:"written" yaml:"written"`
	Formatted string `json:"formatted,omitempty" yaml:"formatted,omitempty"`
}

// NewFmtCommand creates the fmt command.
func NewFmtCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FmtOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "fmt <in.vau>",
		Short: "Print a Vault DSL program in canonical layout",
		Long: `Print a Vault DSL program in canonical layout, with two-space
indentation and a blank line between vaults.

With -w the file is rewritten in place. With --check nothing is printed
and the command fails when the file is not formatted.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFmt(cmd, opts, args[0])
		},
	}

	cmd.Flags().BoolVarP(&opts.Write, "write", "w", false, "write result to the source file")
	cmd.Flags().BoolVar(&opts.Check, "check", false, "fail if the file is not formatted")

	return cmd
}

func runFmt(cmd *cobra.Command, opts *FmtOptions, input string) error {
	f := opts.formatter(cmd)

	src, err := os.ReadFile(input)
	if err != nil {
		return f.FailWith(ErrCodeIO, ExitCommandError, "read source", err, nil)
	}
	prog, err := dsl.Parse(input, src)
	if err != nil {
		return f.Fail("fmt "+input, err, nil)
	}

	formatted := dsl.Render(prog)
	summary := FmtSummary{Input: input, Changed: !bytes.Equal(src, []byte(formatted))}

	switch {
	case opts.Check:
		if summary.Changed {
			return f.FailWith(ErrCodeUnformatted, ExitFailure, input+" is not formatted", nil, summary)
		}
		return f.Success(summary, func(io.Writer) {
			f.Status(true, "%s is formatted", input)
		})
	case opts.Write:
		if summary.Changed {
			info, err := os.Stat(input)
			if err != nil {
				return f.FailWith(ErrCodeIO, ExitCommandError, "stat source", err, nil)
			}
			if err := os.WriteFile(input, []byte(formatted), info.Mode().Perm()); err != nil {
				return f.FailWith(ErrCodeIO, ExitCommandError, "write source", err, nil)
			}
			summary.Written = true
		}
		return f.Success(summary, func(io.Writer) {
			if summary.Written {
				f.Status(true, "Formatted %s", input)
			} else {
				f.Status(true, "%s already formatted", input)
			}
		})
	default:
		summary.Formatted = formatted
		return f.Success(summary, func(w io.Writer) {
			fmt.Fprint(w, formatted)
		})
	}
}
