package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/0bArc/Vault/internal/inspect"
)

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions
	HideMAC bool
	Lenient bool
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect <archive.svau>",
		Short: "Verify an archive and print its decrypted view",
		Long: `Verify an archive and print its decrypted view.

Secure vault MACs and the archive trailer are checked before anything is
decrypted. With --lenient, failures are marked in the report instead of
stopping the inspect; the command still exits non-zero.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, opts, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.HideMAC, "hide-mac", false, "omit MAC and trailer bytes")
	cmd.Flags().BoolVar(&opts.Lenient, "lenient", false, "report integrity failures instead of stopping")

	return cmd
}

func runInspect(cmd *cobra.Command, opts *InspectOptions, path string) error {
	f := opts.formatter(cmd)

	report, err := inspectArchive(cmd, opts.RootOptions, path, inspect.Options{
		HideMAC: opts.HideMAC,
		Lenient: opts.Lenient,
	})
	if err != nil {
		return f.Fail("inspect "+path, err, nil)
	}

	var renderErr error
	if err := f.Success(report, func(w io.Writer) {
		renderErr = inspect.WriteText(w, report)
	}); err != nil {
		return WrapExitError(ExitCommandError, "write report", err)
	}
	if renderErr != nil {
		return WrapExitError(ExitCommandError, "write report", renderErr)
	}
	if report.Failed() {
		return NewExitError(ExitFailure, "inspect "+path+": integrity check failed")
	}
	return nil
}

// inspectArchive loads the keyring and inspects path.
func inspectArchive(cmd *cobra.Command, opts *RootOptions, path string, iopts inspect.Options) (*inspect.Report, error) {
	e, err := loadEnv(cmd.Context(), opts)
	if err != nil {
		return nil, err
	}
	return inspect.Inspect(path, e.kr, iopts)
}
