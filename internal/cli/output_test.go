package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeResponse(t *testing.T, buf *bytes.Buffer) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	return resp
}

func TestOutputFormatter_SuccessWithTrace(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, f.SuccessWithTrace(map[string]string{"pipeline": "atoms"}, "run-1"))

	resp := decodeResponse(t, buf)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "run-1", resp.TraceID)
	assert.Nil(t, resp.Error)
	assert.Equal(t, map[string]any{"pipeline": "atoms"}, resp.Data)
}

func TestOutputFormatter_SuccessOmitsEmptyTrace(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, f.Success([]string{"atoms", "counted"}))
	assert.NotContains(t, buf.String(), "trace_id")
	assert.Contains(t, buf.String(), "\n  \"status\": \"ok\"", "responses are indented")
}

func TestOutputFormatter_Error(t *testing.T) {
	tests := []struct {
		name    string
		format  string
		verbose bool
		details any
		check   func(t *testing.T, out string)
	}{
		{
			name:   "json",
			format: "json",
			check: func(t *testing.T, out string) {
				var resp CLIResponse
				require.NoError(t, json.Unmarshal([]byte(out), &resp))
				assert.Equal(t, "error", resp.Status)
				require.NotNil(t, resp.Error)
				assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
				assert.Equal(t, "pipelines directory not found: ./missing", resp.Error.Message)
			},
		},
		{
			name:    "json with details",
			format:  "json",
			details: map[string]string{"dir": "./missing"},
			check: func(t *testing.T, out string) {
				var resp CLIResponse
				require.NoError(t, json.Unmarshal([]byte(out), &resp))
				assert.Equal(t, map[string]any{"dir": "./missing"}, resp.Error.Details)
			},
		},
		{
			name:    "text hides details",
			format:  "text",
			details: "stat failed",
			check: func(t *testing.T, out string) {
				assert.Equal(t, "Error [E005]: pipelines directory not found: ./missing\n", out)
			},
		},
		{
			name:    "text verbose shows details",
			format:  "text",
			verbose: true,
			details: "stat failed",
			check: func(t *testing.T, out string) {
				assert.Contains(t, out, "Details: stat failed")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			f := &OutputFormatter{Format: tt.format, Writer: buf, Verbose: tt.verbose}
			require.NoError(t, f.Error(ErrCodeNotFound, "pipelines directory not found: ./missing", tt.details))
			tt.check(t, buf.String())
		})
	}
}

func TestOutputFormatter_Failure(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: buf}

	result := TestResult{Scenarios: []ScenarioResult{{Name: "scale_cached"}}, Failed: 1, Total: 1}
	require.NoError(t, f.Failure(ErrCodeTestFailed, "1 scenario(s) failed", result))

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  *CLIError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, result, resp.Data)
	assert.Equal(t, ErrCodeTestFailed, resp.Error.Code)

	text := &bytes.Buffer{}
	tf := &OutputFormatter{Format: "text", Writer: text}
	require.NoError(t, tf.Failure(ErrCodeTestFailed, "ignored", result))
	assert.Empty(t, text.String())
}

func TestOutputFormatter_PrintfOnlyInText(t *testing.T) {
	text := &bytes.Buffer{}
	(&OutputFormatter{Format: "text", Writer: text}).Printf("Digest:   %s\n", "abc")
	assert.Equal(t, "Digest:   abc\n", text.String())

	js := &bytes.Buffer{}
	(&OutputFormatter{Format: "json", Writer: js}).Printf("Digest:   %s\n", "abc")
	assert.Empty(t, js.String())
}

func TestOutputFormatter_Diagnostics(t *testing.T) {
	out := &bytes.Buffer{}
	diag := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: out, ErrWriter: diag}

	f.VerboseLog("Compiling pipeline: %s", "atoms")
	f.Logger().Debug("cache hit", "node", "Scale")
	assert.Empty(t, diag.String(), "quiet unless verbose")

	f.Verbose = true
	f.VerboseLog("Compiling pipeline: %s", "atoms")
	f.Logger().Debug("cache hit", "node", "Scale")
	assert.Contains(t, diag.String(), "Compiling pipeline: atoms\n")
	assert.Contains(t, diag.String(), "msg=\"cache hit\" node=Scale")
	assert.Empty(t, out.String(), "diagnostics never reach the JSON writer")

	fallback := &bytes.Buffer{}
	(&OutputFormatter{Format: "text", Writer: fallback, Verbose: true}).VerboseLog("loaded")
	assert.Equal(t, "loaded\n", fallback.String())
}

func TestNewOutputFormatter(t *testing.T) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	f := newOutputFormatter(&RootOptions{Format: "json", Verbose: true}, cmd)
	assert.True(t, f.JSON())
	assert.True(t, f.Verbose)
	assert.Same(t, out, f.Writer)
	assert.Same(t, errOut, f.ErrWriter)
}

func TestExitErrors(t *testing.T) {
	plain := NewExitError(ExitCommandError, `unknown pipeline "nope"`)
	assert.Equal(t, `unknown pipeline "nope"`, plain.Error())
	assert.Equal(t, ExitCommandError, GetExitCode(plain))

	cause := errors.New("database is locked")
	wrapped := WrapExitError(ExitCommandError, "failed to write journal", cause)
	assert.Equal(t, "failed to write journal: database is locked", wrapped.Error())
	assert.ErrorIs(t, wrapped, cause)

	assert.Equal(t, ExitFailure, GetExitCode(fmt.Errorf("evaluating: %w", NewExitError(ExitFailure, "error status"))))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("not an exit error")))
}
