package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/flowstate/internal/data"
)

// DefaultRunID is the journal run id of scenarios that do not set one.
const DefaultRunID = "scenario-run"

// Scenario drives assembled pipelines through a sequence of steps and
// checks the outcome.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Pipelines is a directory of CUE pipeline definitions.
	// Relative paths are resolved against the scenario's base path.
	Pipelines string `yaml:"pipelines,omitempty"`

	// Definition is inline CUE, used when Pipelines is empty.
	Definition string `yaml:"definition,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the journal and the final state.
	Assertions []Assertion `yaml:"assertions,omitempty"`

	// RunID is the journal run id. Defaults to DefaultRunID.
	RunID string `yaml:"run_id,omitempty"`
}

// Step is one action of a scenario. Exactly one of Evaluate, Set, Update
// and Reload is set.
type Step struct {
	// Evaluate names the pipeline to evaluate at Time.
	Evaluate string `yaml:"evaluate,omitempty"`
	Time     int    `yaml:"time,omitempty"`

	// Preliminary evaluates without waiting, at Time.
	Preliminary bool `yaml:"preliminary,omitempty"`

	// BreakOnError passes upstream errors through unmodified.
	BreakOnError bool `yaml:"break_on_error,omitempty"`

	Set    *SetStep    `yaml:"set,omitempty"`
	Update *UpdateStep `yaml:"update,omitempty"`
	Reload *ReloadStep `yaml:"reload,omitempty"`

	// Expect checks the output of an evaluate step.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// SetStep changes a modifier parameter. Modifier is the index in the
// pipeline, counted from the source.
type SetStep struct {
	Pipeline string `yaml:"pipeline"`
	Modifier int    `yaml:"modifier"`
	Param    string `yaml:"param"`
	Value    any    `yaml:"value"`
}

// UpdateStep replaces the values of a source property.
type UpdateStep struct {
	Pipeline string    `yaml:"pipeline"`
	Property string    `yaml:"property"`
	Values   []float64 `yaml:"values"`
}

// ReloadStep marks one frame of a multi-frame source as changed.
type ReloadStep struct {
	Pipeline string `yaml:"pipeline"`
	Frame    int    `yaml:"frame"`
}

// ExpectClause specifies the expected output state. Only the fields that
// are set are checked.
type ExpectClause struct {
	// Status is the status type: success, warning, error or pending.
	Status string `yaml:"status,omitempty"`

	// StatusText must be contained in the status text.
	StatusText string `yaml:"status_text,omitempty"`

	// Values maps property names to their expected values.
	Values map[string][]float64 `yaml:"values,omitempty"`

	// Attributes maps attribute names to their expected values.
	Attributes map[string]float64 `yaml:"attributes,omitempty"`

	// Validity is the expected validity interval as formatted by the
	// journal, e.g. "[0, +inf]".
	Validity string `yaml:"validity,omitempty"`
}

// Assertion validates the trace or the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Node and Kind select events (trace_contains, trace_count).
	Node string `yaml:"node,omitempty"`
	Kind string `yaml:"kind,omitempty"`

	// Count is the expected number of events (trace_count).
	Count int `yaml:"count,omitempty"`

	// Events lists "node:kind" labels in expected order (trace_order).
	Events []string `yaml:"events,omitempty"`

	// Pipeline and Time select the output to check (final_state).
	Pipeline string `yaml:"pipeline,omitempty"`
	Time     int    `yaml:"time,omitempty"`

	// Expect is the expected output (final_state).
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file. A relative pipelines
// directory is resolved against the scenario file's directory.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the pipelines directory relative to basePath.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos)
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if dir := scenario.Pipelines; dir != "" && !filepath.IsAbs(dir) && basePath != "" {
		scenario.Pipelines = filepath.Join(basePath, dir)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	switch {
	case s.Pipelines == "" && strings.TrimSpace(s.Definition) == "":
		return fmt.Errorf("pipelines or definition is required")
	case s.Pipelines != "" && s.Definition != "":
		return fmt.Errorf("pipelines and definition are mutually exclusive")
	case s.Pipelines != "":
		if _, err := os.Stat(s.Pipelines); os.IsNotExist(err) {
			return fmt.Errorf("pipelines directory not found: %s", s.Pipelines)
		}
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, s *Step) error {
	actions := 0
	if s.Evaluate != "" {
		actions++
	}
	if s.Set != nil {
		actions++
		if s.Set.Pipeline == "" || s.Set.Param == "" {
			return fmt.Errorf("steps[%d].set: pipeline and param are required", index)
		}
		if s.Set.Value == nil {
			return fmt.Errorf("steps[%d].set: value is required", index)
		}
	}
	if s.Update != nil {
		actions++
		if s.Update.Pipeline == "" || s.Update.Property == "" {
			return fmt.Errorf("steps[%d].update: pipeline and property are required", index)
		}
	}
	if s.Reload != nil {
		actions++
		if s.Reload.Pipeline == "" {
			return fmt.Errorf("steps[%d].reload: pipeline is required", index)
		}
	}
	if actions != 1 {
		return fmt.Errorf("steps[%d]: exactly one of evaluate, set, update or reload is required", index)
	}
	if s.Expect != nil {
		if s.Evaluate == "" {
			return fmt.Errorf("steps[%d]: expect is only allowed on evaluate steps", index)
		}
		if err := validateExpect(s.Expect); err != nil {
			return fmt.Errorf("steps[%d].expect: %w", index, err)
		}
	}
	return nil
}

func validateExpect(e *ExpectClause) error {
	if e.Status != "" {
		if _, err := data.ParseStatusType(e.Status); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Node == "" && a.Kind == "" {
			return fmt.Errorf("assertions[%d]: node or kind is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for trace_order", index)
		}
		for _, label := range a.Events {
			if !strings.Contains(label, ":") {
				return fmt.Errorf("assertions[%d]: event %q must have the form node:kind", index, label)
			}
		}
	case AssertTraceCount:
		if a.Node == "" || a.Kind == "" {
			return fmt.Errorf("assertions[%d]: node and kind are required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Pipeline == "" {
			return fmt.Errorf("assertions[%d]: pipeline is required for final_state", index)
		}
		if a.Expect == nil {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
		if err := validateExpect(a.Expect); err != nil {
			return fmt.Errorf("assertions[%d].expect: %w", index, err)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
