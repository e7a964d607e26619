package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/flowstate/internal/compiler"
	"github.com/roach88/flowstate/internal/modifiers"
)

// ValidationResult is the outcome of validating a pipelines directory.
type ValidationResult struct {
	Valid  bool                       `json:"valid"`
	Errors []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <pipelines-dir>",
		Short: "Validate pipeline definitions without evaluating them",
		Long: `Validate CUE pipeline definitions without evaluating them.

Performs syntax checking, schema validation and cross-pipeline checks:
unknown modifier types, dangling upstream references and pipelines that
feed each other.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := newOutputFormatter(opts, cmd)

	defs, loadErr := loadDefinitions(dir, false)
	if loadErr != nil {
		_ = formatter.Error(loadErr.Code, loadErr.Message, nil)
		return NewExitError(ExitCommandError, loadErr.Error())
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", len(defs.Files), dir)
	for _, spec := range defs.Pipelines {
		formatter.VerboseLog("Validating pipeline: %s", spec.Name)
	}

	errs := validateDefinitions(defs)
	if len(errs) == 0 {
		if formatter.JSON() {
			return formatter.Success(ValidationResult{Valid: true})
		}
		fmt.Fprintln(formatter.Writer, "✓ All pipelines valid")
		return nil
	}

	failed := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	if formatter.JSON() {
		if err := formatter.Failure(errs[0].Code, errs[0].Message, ValidationResult{Errors: errs}); err != nil {
			return err
		}
		return failed
	}

	fmt.Fprint(formatter.Writer, "✗ Validation failed\n\n")
	for _, e := range errs {
		if e.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", e.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", e.Code, e.Field, e.Message)
	}
	return failed
}

// validateDefinitions reports compile problems first, then checks the
// compiled pipelines as one set against the built-in modifiers.
func validateDefinitions(defs *Definitions) []compiler.ValidationError {
	errs := make([]compiler.ValidationError, 0, len(defs.Problems))
	for _, p := range defs.Problems {
		errs = append(errs, compiler.ValidationError{
			Field:   "load",
			Message: p.Message,
			Code:    p.Code,
			Line:    p.Line(),
		})
	}
	return append(errs, compiler.ValidateSet(defs.Pipelines, modifiers.DefaultRegistry().Names())...)
}

// ValidatePipelinesDir validates every pipeline under dir. The error is
// set only when dir cannot be loaded at all.
func ValidatePipelinesDir(dir string) ([]compiler.ValidationError, error) {
	defs, loadErr := loadDefinitions(dir, false)
	if loadErr != nil {
		return nil, loadErr
	}
	return validateDefinitions(defs), nil
}
