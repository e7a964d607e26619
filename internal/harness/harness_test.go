package harness

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scaledDefinition = `
pipeline: scaled: {
	source: objects: [
		{kind: "property", name: "Position", components: 3, values: [1, 1, 1, 2, 2, 2]},
		{kind: "cell", name: "SimulationCell", matrix: [5, 0, 0, 0, 5, 0, 0, 0, 5, 0, 0, 0]},
	]
	modifiers: [
		{type: "scale", params: factor: 2},
		{type: "compute_count"},
	]
}
pipeline: loose: {
	source: objects: [{kind: "property", name: "Position", components: 3, values: [1, 1, 1]}]
	modifiers: [{type: "scale", params: factor: 3}]
}
`

func inlineScenario(steps []Step, assertions ...Assertion) *Scenario {
	return &Scenario{
		Name:        "inline",
		Description: "inline definition",
		Definition:  scaledDefinition,
		Steps:       steps,
		Assertions:  assertions,
	}
}

func TestRun_EvaluateWithExpect(t *testing.T) {
	s := inlineScenario([]Step{{
		Evaluate: "scaled",
		Expect: &ExpectClause{
			Status:     "success",
			Values:     map[string][]float64{"Position": {2, 2, 2, 4, 4, 4}},
			Attributes: map[string]float64{"Position.count": 2},
		},
	}})

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Evaluations, 1)
	ev := result.Evaluations[0]
	assert.Equal(t, "scaled", ev.Pipeline)
	assert.Equal(t, "success", ev.Status)
	assert.NotEmpty(t, ev.Digest)

	require.NotEmpty(t, result.Trace)
	for i, event := range result.Trace {
		assert.Equal(t, int64(i+1), event.Seq, "trace is ordered by sequence")
	}
}

func TestRun_ExpectMismatchFailsScenario(t *testing.T) {
	s := inlineScenario([]Step{{
		Evaluate: "scaled",
		Expect: &ExpectClause{
			Status: "error",
			Values: map[string][]float64{"Position": {0, 0, 0, 0, 0, 0}},
		},
	}})

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "status: expected error")
	assert.Contains(t, result.Errors[1], "property Position")
}

func TestRun_SetParamRecomputes(t *testing.T) {
	s := inlineScenario(
		[]Step{
			{Evaluate: "loose"},
			{Set: &SetStep{Pipeline: "loose", Modifier: 0, Param: "factor", Value: 4}},
			{Evaluate: "loose", Expect: &ExpectClause{Values: map[string][]float64{"Position": {4, 4, 4}}}},
		},
		Assertion{Type: AssertTraceCount, Node: "Scale", Kind: "started", Count: 2},
	)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Evaluations, 2)
	assert.NotEqual(t, result.Evaluations[0].Digest, result.Evaluations[1].Digest)
}

func TestRun_UpdateSourceProperty(t *testing.T) {
	s := inlineScenario([]Step{
		{Update: &UpdateStep{Pipeline: "loose", Property: "Position", Values: []float64{2, 2, 2}}},
		{Evaluate: "loose", Expect: &ExpectClause{Values: map[string][]float64{"Position": {6, 6, 6}}}},
	})

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_PreliminaryEvaluation(t *testing.T) {
	s := inlineScenario([]Step{
		{Evaluate: "loose", Preliminary: true, Expect: &ExpectClause{Values: map[string][]float64{"Position": {3, 3, 3}}}},
	})

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_MissingCellReportsErrorStatus(t *testing.T) {
	s := &Scenario{
		Name:        "nocell",
		Description: "affine without a cell",
		Definition: `
pipeline: p: {
	source: objects: [{kind: "property", name: "Position", components: 3, values: [1, 1, 1]}]
	modifiers: [{type: "affine_transformation", params: matrix: [1, 0, 0, 0, 1, 0, 0, 0, 1, 0, 0, 0]}]
}
`,
		Steps: []Step{{
			Evaluate: "p",
			Expect:   &ExpectClause{Status: "error", StatusText: "SimulationCell"},
		}},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.True(t, strings.HasPrefix(result.Evaluations[0].Status, "error"))
}

func TestRun_StepErrors(t *testing.T) {
	tests := []struct {
		name    string
		step    Step
		wantErr string
	}{
		{"unknown pipeline", Step{Evaluate: "nope"}, `unknown pipeline "nope"`},
		{"modifier index out of range", Step{Set: &SetStep{Pipeline: "loose", Modifier: 5, Param: "factor", Value: 1}}, "has no modifier 5"},
		{"unknown parameter", Step{Set: &SetStep{Pipeline: "loose", Param: "nope", Value: 1}}, "nope"},
		{"reload static pipeline", Step{Reload: &ReloadStep{Pipeline: "loose"}}, "does not read from frames"},
		{"update unknown property", Step{Update: &UpdateStep{Pipeline: "loose", Property: "Color", Values: []float64{1}}}, "Color"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Run(inlineScenario([]Step{tt.step}))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "step 0")
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRun_InvalidDefinition(t *testing.T) {
	s := &Scenario{
		Name:        "broken",
		Description: "definition without a source",
		Definition:  `pipeline: p: modifiers: []`,
		Steps:       []Step{{Evaluate: "p"}},
	}

	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to compile pipelines")
}

func TestRun_DefaultRunID(t *testing.T) {
	result, err := Run(inlineScenario([]Step{{Evaluate: "loose"}}))
	require.NoError(t, err)
	require.NotEmpty(t, result.Trace)

	snap, err := Snapshot(inlineScenario(nil), result)
	require.NoError(t, err)
	assert.Contains(t, string(snap), DefaultRunID)
}
