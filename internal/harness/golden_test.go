package harness

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithGolden_UpdateThenAssert(t *testing.T) {
	dir := t.TempDir()
	scenario := loadDemo(t, "shared_upstream")

	first, err := Run(scenario)
	require.NoError(t, err)
	require.NoError(t, UpdateGolden(t, scenario, first, goldie.WithFixtureDir(dir)))

	golden := filepath.Join(dir, scenario.Name+".golden")
	require.FileExists(t, golden)

	// a second run must reproduce the recorded trace byte for byte
	second, err := RunWithGolden(t, scenario, goldie.WithFixtureDir(dir))
	require.NoError(t, err)
	assert.True(t, second.Pass, "errors: %v", second.Errors)
}

func TestAssertGolden_FromResult(t *testing.T) {
	dir := t.TempDir()
	scenario := inlineScenario([]Step{{Evaluate: "scaled"}, {Evaluate: "scaled"}})

	result, err := Run(scenario)
	require.NoError(t, err)
	require.NoError(t, UpdateGolden(t, scenario, result, goldie.WithFixtureDir(dir)))
	require.NoError(t, AssertGolden(t, scenario, result, goldie.WithFixtureDir(dir)))
}

func TestSnapshot_CanonicalJSON(t *testing.T) {
	scenario := &Scenario{Name: "snap", RunID: "run-x"}
	result := NewResult()
	result.Trace = []TraceEvent{
		{Seq: 1, Node: "Scale", Kind: "started", Time: 0, Validity: "[-inf, +inf]"},
		{Seq: 2, Node: "Scale", Kind: "committed", Time: 0, Validity: "[-inf, +inf]", Generation: 1, Status: "success", Digest: "abc"},
	}
	result.Evaluations = []Evaluation{{Step: 0, Pipeline: "p", Time: 0, Status: "success", Digest: "abc"}}

	snap1, err := Snapshot(scenario, result)
	require.NoError(t, err)
	snap2, err := Snapshot(scenario, result)
	require.NoError(t, err)
	assert.Equal(t, snap1, snap2)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(snap1, &decoded))
	assert.Equal(t, "snap", decoded["scenario_name"])
	assert.Equal(t, "run-x", decoded["run_id"])

	trace := decoded["trace"].([]any)
	require.Len(t, trace, 2)
	started := trace[0].(map[string]any)
	assert.NotContains(t, started, "digest", "empty fields are omitted")
	assert.NotContains(t, started, "generation")
	committed := trace[1].(map[string]any)
	assert.Equal(t, "abc", committed["digest"])
}

func TestSnapshot_DefaultRunID(t *testing.T) {
	snap, err := Snapshot(&Scenario{Name: "snap"}, NewResult())
	require.NoError(t, err)
	assert.Contains(t, string(snap), DefaultRunID)
}

func TestFindScenarios_Filter(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"alpha.yaml", "beta.yml", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("name: x\n"), 0644))
	}

	all, err := FindScenarios(dir, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	filtered, err := FindScenarios(dir, "al*")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "alpha.yaml")}, filtered)

	_, err = FindScenarios(dir, "[")
	assert.ErrorContains(t, err, "invalid filter pattern")
}

func TestRunSuite_ReportsFailures(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("name: bad\n"), 0644))

	res := RunSuite(t.Context(), []string{bad}, "")
	assert.Equal(t, 1, res.Total)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Failures, 1)
	assert.Contains(t, res.Failures[0].Error, "failed to load scenario")
}

func TestRunFile(t *testing.T) {
	ok := RunFile(t.Context(), filepath.Join(scenarioDir, "shared_upstream.yaml"), "")
	require.NoError(t, ok.Err)
	assert.Equal(t, "shared_upstream", ok.Name())
	assert.True(t, ok.Passed())
	assert.NotEmpty(t, ok.Result.Trace)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("name: bad\n"), 0644))
	failed := RunFile(t.Context(), bad, "")
	assert.ErrorContains(t, failed.Err, "failed to load scenario")
	assert.Nil(t, failed.Scenario)
	assert.Equal(t, "bad.yaml", failed.Name())
	assert.False(t, failed.Passed())
}
