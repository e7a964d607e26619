package harness

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
)

// FindScenarios returns the YAML files under dir in lexical order. A
// non-empty filter is a glob matched against the file name without its
// extension.
func FindScenarios(dir, filter string) ([]string, error) {
	if filter != "" {
		if _, err := filepath.Match(filter, ""); err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
	}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			if ok, _ := filepath.Match(filter, strings.TrimSuffix(d.Name(), ext)); !ok {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	slices.Sort(files)
	return files, err
}

// Outcome is what running one scenario file produced. Scenario is nil
// when the file did not load and Result is nil when Err is set.
type Outcome struct {
	Path     string
	Scenario *Scenario
	Result   *Result
	Err      error
}

// Name is the scenario name, or the file name when it did not load.
func (o Outcome) Name() string {
	if o.Scenario != nil {
		return o.Scenario.Name
	}
	return filepath.Base(o.Path)
}

// Passed reports whether the scenario ran and every check held.
func (o Outcome) Passed() bool {
	return o.Err == nil && o.Result.Pass
}

// RunFile loads and runs one scenario file. A relative pipelines directory
// is resolved against basePath, or against the file's own directory when
// basePath is empty.
func RunFile(ctx context.Context, path, basePath string) Outcome {
	out := Outcome{Path: path}
	if basePath == "" {
		basePath = filepath.Dir(path)
	}

	scenario, err := LoadScenarioWithBasePath(path, basePath)
	if err != nil {
		out.Err = fmt.Errorf("failed to load scenario: %w", err)
		return out
	}
	out.Scenario = scenario

	result, err := RunContext(ctx, scenario)
	if err != nil {
		out.Err = fmt.Errorf("scenario execution failed: %w", err)
		return out
	}
	out.Result = result
	return out
}

// SuiteResult summarizes a run over several scenario files.
type SuiteResult struct {
	Total    int            `json:"total"`
	Passed   int            `json:"passed"`
	Failed   int            `json:"failed"`
	Failures []SuiteFailure `json:"failures,omitempty"`
}

// SuiteFailure names a scenario file that failed and why.
type SuiteFailure struct {
	ScenarioPath string `json:"scenario_path"`
	Error        string `json:"error"`
}

// RunSuite runs every scenario in paths with RunFile.
func RunSuite(ctx context.Context, paths []string, basePath string) *SuiteResult {
	result := &SuiteResult{Total: len(paths)}
	for _, path := range paths {
		out := RunFile(ctx, path, basePath)
		switch {
		case out.Err != nil:
			result.fail(path, out.Err.Error())
		case !out.Result.Pass:
			result.fail(path, fmt.Sprintf("scenario assertions failed: %v", out.Result.Errors))
		default:
			result.Passed++
		}
	}
	return result
}

func (r *SuiteResult) fail(path, msg string) {
	r.Failed++
	r.Failures = append(r.Failures, SuiteFailure{ScenarioPath: path, Error: msg})
}
