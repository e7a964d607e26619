package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// Version is stamped at build time with -ldflags "-X".
var Version = "dev"

// NewRootCommand creates the root command for the flowstate CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:     "flowstate",
		Short:   "flowstate - cached data pipeline evaluation",
		Version: Version,
		Long: `Evaluate pipelines of modifiers over particle data with per-node caching.

Pipelines are defined in CUE. Each node caches its output together with the
animation interval the output is valid for, so repeated or overlapping
requests are answered without recomputation.`,
		// main reports the error and picks the exit code.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(
		NewCompileCommand(opts),
		NewValidateCommand(opts),
		NewEvalCommand(opts),
		NewTestCommand(opts),
		NewTraceCommand(opts),
	)
	return cmd
}

func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
