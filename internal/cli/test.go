package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/flowstate/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
	Base   string // base directory for relative pipelines paths
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Events int      `json:"events"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run scenario harness",
		Long: `Run scenario files against their pipeline definitions.

Each scenario evaluates pipelines step by step, checks expected outputs and
asserts on the recorded cache trace. When a golden file exists in
<scenarios-dir>/golden the trace must also match it byte for byte.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  flowstate test ./scenarios
  flowstate test ./scenarios --filter "frame_*"
  flowstate test ./scenarios --update
  flowstate test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().StringVar(&opts.Base, "base", "", "resolve relative pipelines paths against this directory instead of each scenario's directory")

	return cmd
}

func runTests(opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	for _, d := range [][2]string{{"scenarios", scenariosDir}, {"base", opts.Base}} {
		if d[1] == "" {
			continue
		}
		if _, err := os.Stat(d[1]); errors.Is(err, fs.ErrNotExist) {
			return NewExitError(ExitCommandError, fmt.Sprintf("%s directory not found: %s", d[0], d[1]))
		}
	}

	paths, err := harness.FindScenarios(scenariosDir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	formatter := newOutputFormatter(opts.RootOptions, cmd)
	if len(paths) == 0 && !formatter.JSON() {
		fmt.Fprintln(formatter.Writer, "No scenarios found.")
		return nil
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	result := TestResult{Scenarios: make([]ScenarioResult, 0, len(paths)), Total: len(paths)}
	for _, path := range paths {
		r := runScenario(ctx, path, opts, formatter)
		if r.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
		result.Scenarios = append(result.Scenarios, r)
	}
	return outputTestResult(formatter, result)
}

// runScenario runs one scenario file and checks its trace against the
// golden file next to it, or rewrites that file with --update.
func runScenario(ctx context.Context, path string, opts *TestOptions, formatter *OutputFormatter) ScenarioResult {
	out := harness.RunFile(ctx, path, opts.Base)
	r := ScenarioResult{Name: out.Name()}
	if out.Result != nil {
		r.Events = len(out.Result.Trace)
	}

	switch {
	case out.Err != nil:
		r.Errors = []string{out.Err.Error()}
	case opts.Update:
		if err := updateGolden(path, out); err != nil {
			r.Errors = []string{fmt.Sprintf("failed to update golden file: %v", err)}
			break
		}
		r.Pass = true
		formatter.Printf("✓ %s (golden updated)\n", r.Name)
		return r
	default:
		if err := compareGolden(path, out); err != nil {
			r.Errors = []string{err.Error()}
		} else if !out.Result.Pass {
			r.Errors = out.Result.Errors
		} else {
			r.Pass = true
		}
	}

	if r.Pass {
		formatter.Printf("✓ %s (%d events)\n", r.Name, r.Events)
		return r
	}
	formatter.Printf("✗ %s\n", r.Name)
	for _, e := range r.Errors {
		formatter.Printf("  %s\n", e)
	}
	return r
}

// goldenFilePath returns <dir>/golden/<name>.golden for <dir>/<name>.yaml.
func goldenFilePath(scenarioFile string) string {
	name := strings.TrimSuffix(filepath.Base(scenarioFile), filepath.Ext(scenarioFile))
	return filepath.Join(filepath.Dir(scenarioFile), "golden", name+".golden")
}

// compareGolden fails when a golden file exists and differs from the
// scenario's trace snapshot. Scenarios without one rely on assertions.
func compareGolden(path string, out harness.Outcome) error {
	golden, err := os.ReadFile(goldenFilePath(path))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("golden comparison failed: %w", err)
	}
	snapshot, err := harness.Snapshot(out.Scenario, out.Result)
	if err != nil {
		return fmt.Errorf("failed to snapshot trace: %w", err)
	}
	if !bytes.Equal(golden, snapshot) {
		return errors.New("trace does not match golden file (run with --update to regenerate)")
	}
	return nil
}

func updateGolden(path string, out harness.Outcome) error {
	snapshot, err := harness.Snapshot(out.Scenario, out.Result)
	if err != nil {
		return err
	}
	goldenPath := goldenFilePath(path)
	if err := os.MkdirAll(filepath.Dir(goldenPath), 0755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	return os.WriteFile(goldenPath, snapshot, 0644)
}

// outputTestResult writes the summary and turns failures into exit code 1.
func outputTestResult(formatter *OutputFormatter, result TestResult) error {
	if result.Failed == 0 {
		if formatter.JSON() {
			return formatter.Success(result)
		}
		fmt.Fprintf(formatter.Writer, "\nTest Summary: %d passed, 0 failed, %d total\n", result.Passed, result.Total)
		fmt.Fprintln(formatter.Writer, "✓ All scenarios passed")
		return nil
	}

	failed := NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	if formatter.JSON() {
		if err := formatter.Failure(ErrCodeTestFailed, failed.Message, result); err != nil {
			return err
		}
		return failed
	}
	fmt.Fprintf(formatter.Writer, "\nTest Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	return failed
}
