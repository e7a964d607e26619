package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"cuelang.org/go/cue/token"

	"github.com/roach88/flowstate/internal/compiler"
	"github.com/roach88/flowstate/internal/ir"
)

// Error codes shared by every command. Problems in a definition use the
// compiler's E2xx codes instead.
const (
	ErrCodeGeneric     = "E001" // anything without a more specific code
	ErrCodeScanError   = "E002" // walking the pipelines directory failed
	ErrCodeNoFiles     = "E003" // directory holds no .cue files
	ErrCodeLoadFailed  = "E004" // CUE did not parse or unify
	ErrCodeNotFound    = "E005" // path missing or not a directory
	ErrCodeBuildFailed = "E006" // evaluation or journal setup failed
	ErrCodeWriteFailed = "E007" // output file not written
	ErrCodeNoPipelines = "E008" // no "pipeline" field
	ErrCodeTestFailed  = "E_TEST_FAILED"
)

// Definitions are the compiled contents of a pipelines directory.
type Definitions struct {
	Files     []string
	Pipelines []ir.PipelineSpec
	// Problems holds one entry per pipeline that did not compile. Those
	// pipelines are absent from Pipelines.
	Problems []*LoadError
}

// LoadError is a coded problem with an optional CUE position.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if !e.Pos.IsValid() {
		return e.Code + ": " + e.Message
	}
	return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
}

// Line is the 1-based source line, or 0 without a position.
func (e *LoadError) Line() int {
	if !e.Pos.IsValid() {
		return 0
	}
	return e.Pos.Line()
}

// loadDefinitions compiles every pipeline defined under dir. The error is
// set only when the directory as a whole is unusable. With failFast,
// compilation stops at the first bad pipeline.
func loadDefinitions(dir string, failFast bool) (*Definitions, *LoadError) {
	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, &LoadError{Code: ErrCodeNotFound, Message: "pipelines directory not found: " + dir}
	case err != nil:
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing pipelines directory: %v", err)}
	case !info.IsDir():
		return nil, &LoadError{Code: ErrCodeNotFound, Message: "not a directory: " + dir}
	}

	files, err := listCUEFiles(dir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(files) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: "no CUE files found in " + dir}
	}

	value, err := compiler.LoadDir(dir)
	if err != nil {
		return nil, asLoadError(err, ErrCodeLoadFailed)
	}

	specs, errs := compiler.CompilePipelines(value, failFast)
	defs := &Definitions{Files: files, Pipelines: specs}
	for _, err := range errs {
		defs.Problems = append(defs.Problems, asLoadError(err, ErrCodeGeneric))
	}
	return defs, nil
}

// listCUEFiles returns the .cue files under dir in lexical order.
func listCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".cue") {
			files = append(files, path)
		}
		return nil
	})
	slices.Sort(files)
	return files, err
}

// asLoadError keeps the position of a compiler error and derives its code
// from the offending field.
func asLoadError(err error, fallback string) *LoadError {
	var ce *compiler.CompileError
	if !errors.As(err, &ce) {
		return &LoadError{Code: fallback, Message: err.Error()}
	}
	return &LoadError{Code: fieldErrorCode(ce.Field, fallback), Message: ce.Message, Pos: ce.Pos}
}

// fieldErrorCode maps the field a compile error names to an error code.
func fieldErrorCode(field, fallback string) string {
	switch {
	case field == "source":
		return compiler.ErrSourceEmpty
	case field == compiler.PipelinesField:
		return ErrCodeNoPipelines
	case strings.HasPrefix(field, "modifiers[") && strings.HasSuffix(field, ".type"):
		return compiler.ErrModifierTypeEmpty
	}
	return fallback
}
