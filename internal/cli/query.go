package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/0bArc/Vault/internal/inspect"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Raw     bool
	Lenient bool
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <archive.svau> <jq-expr>",
		Short: "Run a jq expression over an archive's decrypted view",
		Long: `Run a jq expression over the JSON report of an archive.

The archive is verified exactly as inspect does. Each output is printed as
compact JSON on its own line; --raw prints strings without quotes.

Example:
  vault query app.svau '.vaults[] | select(.name == "app") | .registries[].name'`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, opts, args[0], args[1])
		},
	}

	cmd.Flags().BoolVarP(&opts.Raw, "raw", "r", false, "print string outputs without quotes")
	cmd.Flags().BoolVar(&opts.Lenient, "lenient", false, "query archives with integrity failures")

	return cmd
}

func runQuery(cmd *cobra.Command, opts *QueryOptions, path, expr string) error {
	f := opts.formatter(cmd)

	report, err := inspectArchive(cmd, opts.RootOptions, path, inspect.Options{Lenient: opts.Lenient})
	if err != nil {
		return f.Fail("query "+path, err, nil)
	}

	results, err := inspect.Query(cmd.Context(), report, expr)
	if err != nil {
		return f.FailWith(ErrCodeInspect, ExitCommandError, "query "+path, err, nil)
	}

	lines := make([]string, 0, len(results))
	for _, v := range results {
		line, err := inspect.EncodeResult(v, opts.Raw)
		if err != nil {
			return f.FailWith(ErrCodeIO, ExitCommandError, "encode result", err, nil)
		}
		lines = append(lines, line)
	}
	return f.Success(results, func(w io.Writer) {
		for _, line := range lines {
			fmt.Fprintln(w, line)
		}
	})
}
