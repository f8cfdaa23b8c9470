package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/0bArc/Vault/internal/archive"
)

// DepsSummary is the structured result of deps.
type DepsSummary struct {
	Archive      string   `json:"archive" yaml:"archive"`
	Dependencies []string `json:"dependencies" yaml:"dependencies"`
}

// NewDepsCommand creates the deps command.
func NewDepsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "deps <archive.svau>",
		Short: "List the dependencies recorded in an archive",
		Long: `List the dependency names recorded in an archive header, one per line.

The header is read without keys; nothing is verified or decrypted. Use
inspect to check integrity.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			path := args[0]

			a, _, err := archive.ReadFile(path)
			if err != nil {
				return f.Fail("deps "+path, err, nil)
			}
			summary := DepsSummary{Archive: path, Dependencies: append([]string{}, a.Dependencies...)}
			return f.Success(summary, func(w io.Writer) {
				for _, d := range summary.Dependencies {
					fmt.Fprintln(w, d)
				}
			})
		},
	}
}
