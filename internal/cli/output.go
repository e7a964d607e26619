package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Invalid pipelines, error status, failed scenarios
	ExitCommandError = 2 // Command error (invalid paths, unknown pipeline, journal not readable, etc.)
)

// ExitError carries the exit code a command should terminate with.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// CLIResponse is the JSON envelope of every command.
type CLIResponse struct {
	Status  string      `json:"status"`             // "ok" or "error"
	Data    interface{} `json:"data,omitempty"`     // success payload
	Error   *CLIError   `json:"error,omitempty"`    // error details
	TraceID string      `json:"trace_id,omitempty"` // journal run id, when one was recorded
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string      `json:"code"`              // "E001", "E211", "E_TEST_FAILED", etc.
	Message string      `json:"message"`           // human-readable message
	Details interface{} `json:"details,omitempty"` // additional context
}

// OutputFormatter writes command results as text or as a CLIResponse.
// Diagnostics go to ErrWriter so JSON on Writer stays parseable.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // defaults to Writer
	Verbose   bool
}

// newOutputFormatter binds a formatter to the command's writers.
func newOutputFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// JSON reports whether results are written as a CLIResponse.
func (f *OutputFormatter) JSON() bool { return f.Format == "json" }

// Respond writes resp as indented JSON.
func (f *OutputFormatter) Respond(resp CLIResponse) error {
	encoder := json.NewEncoder(f.Writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(resp)
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data interface{}) error {
	return f.SuccessWithTrace(data, "")
}

// SuccessWithTrace outputs a successful result tagged with a journal run id.
func (f *OutputFormatter) SuccessWithTrace(data interface{}, traceID string) error {
	if f.JSON() {
		return f.Respond(CLIResponse{Status: "ok", Data: data, TraceID: traceID})
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details interface{}) error {
	if f.JSON() {
		return f.Respond(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Failure writes a JSON error response that still carries the results,
// e.g. every validation error or every scenario outcome. Text output is
// left to the caller.
func (f *OutputFormatter) Failure(code, message string, data interface{}) error {
	if !f.JSON() {
		return nil
	}
	return f.Respond(CLIResponse{
		Status: "error",
		Data:   data,
		Error:  &CLIError{Code: code, Message: message},
	})
}

// Printf writes a line of text output. It is a no-op in JSON mode.
func (f *OutputFormatter) Printf(format string, args ...interface{}) {
	if f.JSON() {
		return
	}
	fmt.Fprintf(f.Writer, format, args...)
}

// VerboseLog outputs a message to the diagnostic writer in verbose mode.
func (f *OutputFormatter) VerboseLog(format string, args ...interface{}) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.errWriter(), format+"\n", args...)
}

// Logger returns a text logger on the diagnostic writer, at debug level in
// verbose mode.
func (f *OutputFormatter) Logger() *slog.Logger {
	level := slog.LevelInfo
	if f.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(f.errWriter(), &slog.HandlerOptions{Level: level}))
}

func (f *OutputFormatter) errWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
