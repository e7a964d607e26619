package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/flowstate/internal/ir"
)

// GoldenDir is the fixture directory used by RunWithGolden.
const GoldenDir = "testdata/golden"

// TraceSnapshot captures the complete trace for a scenario execution.
// All fields use canonical JSON serialization for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	RunID        string       `json:"run_id,omitempty"`
	Trace        []TraceEvent `json:"trace"`
	Evaluations  []Evaluation `json:"evaluations"`
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical
// JSON serialization. Empty optional fields are left out.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		eventMap := map[string]any{
			"seq":  event.Seq,
			"node": event.Node,
			"kind": event.Kind,
			"time": event.Time,
		}
		if event.Validity != "" {
			eventMap["validity"] = event.Validity
		}
		if event.Generation != 0 {
			eventMap["generation"] = event.Generation
		}
		if event.Status != "" {
			eventMap["status"] = event.Status
		}
		if event.Digest != "" {
			eventMap["digest"] = event.Digest
		}
		if event.Reason != "" {
			eventMap["reason"] = event.Reason
		}
		traceList[i] = eventMap
	}

	evalList := make([]any, len(s.Evaluations))
	for i, ev := range s.Evaluations {
		evalList[i] = map[string]any{
			"step":     ev.Step,
			"pipeline": ev.Pipeline,
			"time":     ev.Time,
			"status":   ev.Status,
			"digest":   ev.Digest,
		}
	}

	result := map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         traceList,
		"evaluations":   evalList,
	}
	if s.RunID != "" {
		result["run_id"] = s.RunID
	}
	return result
}

// Snapshot renders the trace and evaluations of a result as canonical JSON.
func Snapshot(scenario *Scenario, result *Result) ([]byte, error) {
	runID := scenario.RunID
	if runID == "" {
		runID = DefaultRunID
	}
	snapshot := TraceSnapshot{
		ScenarioName: scenario.Name,
		RunID:        runID,
		Trace:        result.Trace,
		Evaluations:  result.Evaluations,
	}
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares the trace against a golden
// file named after the scenario. The fixture directory defaults to
// GoldenDir.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...goldie.Option) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario, result, opts...); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an already computed result against its golden file.
func AssertGolden(t *testing.T, scenario *Scenario, result *Result, opts ...goldie.Option) error {
	t.Helper()

	traceJSON, err := Snapshot(scenario, result)
	if err != nil {
		return err
	}
	g := newGoldie(t, opts...)
	g.Assert(t, scenario.Name, traceJSON)
	return nil
}

// UpdateGolden writes the golden file for a result, replacing any existing one.
func UpdateGolden(t *testing.T, scenario *Scenario, result *Result, opts ...goldie.Option) error {
	t.Helper()

	traceJSON, err := Snapshot(scenario, result)
	if err != nil {
		return err
	}
	return newGoldie(t, opts...).Update(t, scenario.Name, traceJSON)
}

func newGoldie(t *testing.T, opts ...goldie.Option) *goldie.Goldie {
	base := []goldie.Option{
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	}
	return goldie.New(t, append(base, opts...)...)
}
