package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/flowstate/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompiledPipeline is a compiled definition plus its identity hash.
type CompiledPipeline struct {
	ir.PipelineSpec
	Hash string `json:"hash"`
}

// CompilationResult holds the compiled pipelines.
type CompilationResult struct {
	Pipelines []CompiledPipeline `json:"pipelines"`
}

// CompilationStats holds summary statistics.
type CompilationStats struct {
	PipelineCount  int
	ModifierCount  int
	BranchCount    int // pipelines reading from another pipeline
	AnimatedFrames int // frames across all multi-frame sources
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <pipelines-dir>",
		Short: "Compile CUE pipeline definitions to canonical IR",
		Long: `Compile CUE pipeline definitions to canonical IR format.

The compiler parses CUE files, decodes every pipeline under the "pipeline"
field and outputs the definitions with their identity hashes.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, dir string, cmd *cobra.Command) error {
	formatter := newOutputFormatter(opts.RootOptions, cmd)

	defs, loadErr := loadDefinitions(dir, false)
	if loadErr != nil {
		return outputCompileError(formatter, loadErr.Code, loadErr.Message, nil)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", len(defs.Files), dir)
	for _, spec := range defs.Pipelines {
		formatter.VerboseLog("Compiling pipeline: %s", spec.Name)
	}

	if len(defs.Problems) > 0 {
		return outputCompileErrors(formatter, defs.Problems)
	}

	result := &CompilationResult{Pipelines: make([]CompiledPipeline, 0, len(defs.Pipelines))}
	for _, spec := range defs.Pipelines {
		hash, err := ir.PipelineHash(spec)
		if err != nil {
			return outputCompileError(formatter, ErrCodeGeneric, fmt.Sprintf("hashing pipeline %s: %v", spec.Name, err), nil)
		}
		result.Pipelines = append(result.Pipelines, CompiledPipeline{PipelineSpec: spec, Hash: hash})
	}

	stats := calculateStats(result)

	if opts.Output != "" {
		if err := writeIRToFile(result, opts.Output); err != nil {
			return outputCompileError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
		}
	}

	return outputCompileSuccess(formatter, result, stats, opts.Output)
}

// calculateStats computes summary statistics from compilation result.
func calculateStats(result *CompilationResult) CompilationStats {
	stats := CompilationStats{PipelineCount: len(result.Pipelines)}

	for _, p := range result.Pipelines {
		stats.ModifierCount += len(p.Modifiers)
		stats.AnimatedFrames += len(p.Source.Frames)
		if p.Source.Pipeline != "" {
			stats.BranchCount++
		}
	}

	return stats
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, stats CompilationStats, outputFile string) error {
	if formatter.JSON() {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ Compiled %d pipeline(s), %d modifier(s)\n\n",
		stats.PipelineCount, stats.ModifierCount)

	fmt.Fprintln(formatter.Writer, "Pipelines:")
	for _, p := range result.Pipelines {
		source := "inline data"
		switch {
		case p.Source.Pipeline != "":
			source = "pipeline " + p.Source.Pipeline
		case len(p.Source.Frames) > 0:
			source = fmt.Sprintf("%d frame(s)", len(p.Source.Frames))
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s → %d modifier(s) [%s]\n",
			p.Name, source, len(p.Modifiers), shortHash(p.Hash))
	}
	fmt.Fprintln(formatter.Writer)

	if outputFile != "" {
		fmt.Fprintf(formatter.Writer, "Wrote canonical IR to %s\n", outputFile)
	}

	return nil
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

// outputCompileError reports a problem with the directory itself.
func outputCompileError(formatter *OutputFormatter, code, message string, details interface{}) error {
	_ = formatter.Error(code, message, details)
	return NewExitError(ExitCommandError, code+": "+message)
}

// outputCompileErrors reports every pipeline that failed to compile.
func outputCompileErrors(formatter *OutputFormatter, problems []*LoadError) error {
	failed := NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(problems)))

	if formatter.JSON() {
		cliErrors := make([]CLIError, len(problems))
		for i, p := range problems {
			cliErrors[i] = CLIError{Code: p.Code, Message: p.Message}
		}
		if err := formatter.Failure(problems[0].Code, problems[0].Message, cliErrors); err != nil {
			return err
		}
		return failed
	}

	fmt.Fprint(formatter.Writer, "✗ Compilation failed\n\n")
	for _, p := range problems {
		if p.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n", p.Pos.Filename(), p.Pos.Line(), p.Pos.Column())
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", p.Code, p.Message)
	}
	return failed
}

// writeIRToFile writes the compilation result to a file in canonical JSON format.
func writeIRToFile(result *CompilationResult, filename string) error {
	pipelines := make(ir.Array, len(result.Pipelines))
	for i, p := range result.Pipelines {
		desc := p.Describe()
		desc["hash"] = ir.String(p.Hash)
		pipelines[i] = desc
	}
	data, err := ir.MarshalCanonical(ir.Object{"pipelines": pipelines})
	if err != nil {
		return fmt.Errorf("marshaling IR: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	return nil
}
