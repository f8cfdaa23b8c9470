// Package cli implements the vault command line.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/0bArc/Vault/internal/inspect"
	"github.com/0bArc/Vault/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "text" | "json" | "yaml"
	ConfigPath string // explicit var.vc; empty searches .vault/var.vc
	LedgerPath string // overrides LEDGER from config
}

// NewRootCommand creates the root command for the vault CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "vault",
		Short: "Vault DSL compiler and archive engine",
		Long: `Compile Vault DSL programs into sealed .svau archives and inspect them.

Keys come from .vault/var.vc (MASTER_KEY, TOKEN) or the VAULT_MASTER_KEY
and VAULT_TOKEN environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			format, err := inspect.ParseFormat(opts.Format)
			if err != nil {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid --format: %v", err))
			}
			opts.Format = string(format)
			logger := logging.New(cmd.ErrOrStderr(), opts.Verbose)
			cmd.SetContext(logging.WithLogger(cmd.Context(), logger))
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "settings file (default .vault/var.vc)")
	cmd.PersistentFlags().StringVar(&opts.LedgerPath, "ledger", "", "build ledger database (overrides LEDGER)")

	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewInspectCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewFmtCommand(opts))
	cmd.AddCommand(NewDepsCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewBuildCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))

	return cmd
}

// formatter builds the OutputFormatter for a command invocation.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	format := o.Format
	if format == "" {
		format = string(inspect.FormatText)
	}
	return &OutputFormatter{
		Format:    format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   o.Verbose,
	}
}
