package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flowstate/internal/data"
	"github.com/roach88/flowstate/internal/engine"
	"github.com/roach88/flowstate/internal/future"
)

// evalResponse mirrors EvalResult with a plain map for the state, which
// decodes from JSON where ir.Object does not.
type evalResponse struct {
	Status  string `json:"status"`
	TraceID string `json:"trace_id"`
	Data    struct {
		Pipeline string         `json:"pipeline"`
		Time     int            `json:"time"`
		Status   string         `json:"status"`
		Validity string         `json:"validity"`
		Digest   string         `json:"digest"`
		RunID    string         `json:"run_id"`
		State    map[string]any `json:"state"`
	} `json:"data"`
}

func runEvalJSON(t *testing.T, args ...string) (evalResponse, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewEvalCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)

	err := cmd.Execute()
	var resp evalResponse
	if buf.Len() > 0 {
		require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	}
	return resp, err
}

// positionValues returns the values of the first property in a described state.
func positionValues(t *testing.T, state map[string]any) []float64 {
	t.Helper()
	objects, ok := state["objects"].([]any)
	require.True(t, ok, "state has no objects")
	for _, o := range objects {
		obj := o.(map[string]any)
		if obj["name"] != "Position" {
			continue
		}
		raw := obj["values"].([]any)
		values := make([]float64, len(raw))
		for i, v := range raw {
			values[i] = v.(float64)
		}
		return values
	}
	t.Fatal("no Position property in state")
	return nil
}

func TestEvalScalesPositions(t *testing.T) {
	resp, err := runEvalJSON(t, pipelinesDir, "--pipeline", "atoms")
	require.NoError(t, err)

	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "atoms", resp.Data.Pipeline)
	assert.Equal(t, 0, resp.Data.Time)
	assert.Equal(t, "success", resp.Data.Status)
	assert.Len(t, resp.Data.Digest, 64)
	assert.Empty(t, resp.Data.RunID, "no journal requested")
	assert.Equal(t, []float64{2, 4, 6, 8, 10, 12}, positionValues(t, resp.Data.State))
}

func TestEvalBranchesShareUpstream(t *testing.T) {
	shifted, err := runEvalJSON(t, pipelinesDir, "--pipeline", "shifted")
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 5, 7, 9, 11, 13}, positionValues(t, shifted.Data.State))

	counted, err := runEvalJSON(t, pipelinesDir, "--pipeline", "counted")
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 4, 6, 8, 10, 12}, positionValues(t, counted.Data.State))
	assert.NotEqual(t, shifted.Data.Digest, counted.Data.Digest)
}

func TestEvalDeterministicDigest(t *testing.T) {
	first, err := runEvalJSON(t, pipelinesDir, "--pipeline", "atoms")
	require.NoError(t, err)
	second, err := runEvalJSON(t, pipelinesDir, "--pipeline", "atoms", "--workers", "4")
	require.NoError(t, err)

	assert.Equal(t, first.Data.Digest, second.Data.Digest)
}

func TestEvalFrame(t *testing.T) {
	resp, err := runEvalJSON(t, pipelinesDir, "--pipeline", "frames", "--frame", "2")
	require.NoError(t, err)

	// frame 2 at 100 ticks per frame
	assert.Equal(t, 200, resp.Data.Time)
	assert.Equal(t, []float64{6, 6, 6}, positionValues(t, resp.Data.State))
	assert.Equal(t, "[200, 200]", resp.Data.Validity)
}

func TestEvalErrorStatusExitsWithFailure(t *testing.T) {
	resp, err := runEvalJSON(t, pipelinesDir, "--pipeline", "bare")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	// the state is still reported
	assert.Equal(t, "bare", resp.Data.Pipeline)
	assert.Contains(t, resp.Data.Status, "error")
}

func TestEvalCommandErrors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantMsg string
	}{
		{
			name:    "unknown pipeline",
			args:    []string{pipelinesDir, "--pipeline", "nope"},
			wantMsg: `unknown pipeline "nope"`,
		},
		{
			name:    "missing directory",
			args:    []string{"/nonexistent/directory", "--pipeline", "atoms"},
			wantMsg: "failed to compile pipelines",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runEvalJSON(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestEvalInvalidPipelines(t *testing.T) {
	dir := writePipelines(t, `pipeline: p: source: pipeline: "missing"`)

	_, err := runEvalJSON(t, dir, "--pipeline", "p")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid pipelines")
}

func TestEvalRequiresPipelineFlag(t *testing.T) {
	cmd := NewEvalCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{pipelinesDir})

	assert.Error(t, cmd.Execute())
}

func TestEvalTextOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewEvalCommand(&RootOptions{Format: "text", Verbose: true})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{pipelinesDir, "--pipeline", "atoms"})

	require.NoError(t, cmd.Execute())
	output := buf.String()
	assert.Contains(t, output, "Pipeline: atoms")
	assert.Contains(t, output, "Status:   success")
	assert.Contains(t, output, "Digest:")
	assert.NotContains(t, output, "Run:")
	assert.Contains(t, output, `"name":"Position"`)
}

func TestEvalJournal(t *testing.T) {
	db := filepath.Join(t.TempDir(), "journal.db")
	buf := &bytes.Buffer{}
	cmd := NewEvalCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})

	opts := &EvalOptions{
		RootOptions:    &RootOptions{Format: "json"},
		Pipeline:       "atoms",
		Frame:          -1,
		Journal:        db,
		Workers:        1,
		Timeout:        10 * time.Second,
		RunIDGenerator: engine.NewFixedGenerator("run-1"),
	}
	require.NoError(t, runEval(opts, pipelinesDir, cmd))

	var resp evalResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "run-1", resp.TraceID)
	assert.Equal(t, "run-1", resp.Data.RunID)

	trace := &bytes.Buffer{}
	traceCmd := NewTraceCommand(&RootOptions{Format: "text"})
	traceCmd.SetOut(trace)
	traceCmd.SetArgs([]string{"--db", db, "--run", "run-1"})
	require.NoError(t, traceCmd.Execute())
	assert.Contains(t, trace.String(), "Trace for Run: run-1")
	assert.Contains(t, trace.String(), "Label: atoms")
	assert.Contains(t, trace.String(), "started     Scale")
}

func TestEvalJournalWithWorkers(t *testing.T) {
	db := filepath.Join(t.TempDir(), "journal.db")
	resp, err := runEvalJSON(t, pipelinesDir, "--pipeline", "shifted", "--journal", db, "--workers", "4")
	require.NoError(t, err)

	assert.Len(t, resp.Data.RunID, 36, "UUIDv7 run id")
	assert.Equal(t, resp.Data.RunID, resp.TraceID)
}

func TestAwaitState_CancelsAbandonedEvaluation(t *testing.T) {
	p := future.NewPromise[*data.FlowState]()
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()

	_, err := awaitState(ctx, p.Future())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, p.IsCanceled())
	assert.Error(t, p.Context().Err(), "kernels polling the promise context stop")
}

func TestAwaitState_KeepsFinishedResult(t *testing.T) {
	want := data.EmptyFlowState()
	p := future.NewPromise[*data.FlowState]()
	p.SetResult(want)

	got, err := awaitState(context.Background(), p.Future())
	require.NoError(t, err)
	assert.Same(t, want, got)
	assert.False(t, p.IsCanceled())
}
