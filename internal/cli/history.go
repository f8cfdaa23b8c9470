package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/0bArc/Vault/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Limit  int
	Output string
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List builds recorded in the ledger",
		Long: `List builds recorded in the build ledger, newest first.

The ledger is set with --ledger or LEDGER in .vault/var.vc. It records
digests and per-vault counts only; no values are stored.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "maximum builds to list (0 for all)")
	cmd.Flags().StringVar(&opts.Output, "output", "", "only the latest build written to this archive path")

	return cmd
}

func runHistory(cmd *cobra.Command, opts *HistoryOptions) error {
	f := opts.formatter(cmd)
	ctx := cmd.Context()

	cfg, err := loadSettings(ctx, opts.RootOptions)
	if err != nil {
		return f.Fail("load settings", err, nil)
	}
	path := ledgerPath(cfg, opts.RootOptions)
	if path == "" {
		return f.FailWith(ErrCodeConfig, ExitCommandError, "no ledger configured (set --ledger or LEDGER)", nil, nil)
	}
	ledger, err := openLedger(path)
	if err != nil {
		return f.FailWith(ErrCodeIO, ExitCommandError, "open ledger", err, nil)
	}
	defer ledger.Close()

	var builds []store.Build
	if opts.Output != "" {
		b, err := ledger.LatestForOutput(ctx, opts.Output)
		if err != nil {
			return f.FailWith(ErrCodeIO, ExitCommandError, "history", err, nil)
		}
		builds = []store.Build{*b}
	} else if builds, err = ledger.ListBuilds(ctx, opts.Limit); err != nil {
		return f.FailWith(ErrCodeIO, ExitCommandError, "history", err, nil)
	}

	return f.Success(builds, func(w io.Writer) {
		if len(builds) == 0 {
			fmt.Fprintln(w, MutedStyle.Render("no builds recorded"))
			return
		}
		for _, b := range builds {
			writeBuild(w, b)
		}
	})
}

func writeBuild(w io.Writer, b store.Build) {
	fmt.Fprintf(w, "#%d %s  %s -> %s\n", b.Seq, b.CreatedAt.Local().Format(time.DateTime), b.SourcePath, b.OutputPath)
	fmt.Fprintf(w, "  %s\n", MutedStyle.Render("id "+b.ID+"  archive "+shortDigest(b.ArchiveDigest)))
	if len(b.Dependencies) > 0 {
		fmt.Fprintf(w, "  depends %s\n", strings.Join(b.Dependencies, " "))
	}
	for _, v := range b.Vaults {
		marker := "vault"
		if v.Optional {
			marker = "vault?"
		}
		secure := ""
		if v.Secure {
			secure = " secure"
		}
		fmt.Fprintf(w, "  %s %s%s: %d registries, %d keys\n", marker, v.Name, secure, v.Registries, v.Keys)
	}
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
