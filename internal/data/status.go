package data

import (
	"fmt"
	"strings"
)

// StatusType classifies the outcome of an evaluation step.
type StatusType int

const (
	StatusSuccess StatusType = iota
	StatusPending
	StatusWarning
	StatusError
)

// String returns the lower-case name of the status type.
func (t StatusType) String() string {
	switch t {
	case StatusSuccess:
		return "success"
	case StatusPending:
		return "pending"
	case StatusWarning:
		return "warning"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", int(t))
	}
}

// ParseStatusType converts a status name back to its type.
func ParseStatusType(s string) (StatusType, error) {
	switch strings.ToLower(s) {
	case "success", "":
		return StatusSuccess, nil
	case "pending":
		return StatusPending, nil
	case "warning":
		return StatusWarning, nil
	case "error":
		return StatusError, nil
	default:
		return StatusSuccess, fmt.Errorf("unknown status type %q", s)
	}
}

// Status is the outcome of an evaluation step plus an optional message.
// The zero value is a successful status without message.
type Status struct {
	Type StatusType `json:"type"`
	Text string     `json:"text,omitempty"`
}

// Success returns a successful status with an optional message.
func Success(text string) Status { return Status{Type: StatusSuccess, Text: text} }

// Warning returns a warning status.
func Warning(text string) Status { return Status{Type: StatusWarning, Text: text} }

// Errorf returns an error status with a formatted message.
func Errorf(format string, args ...any) Status {
	return Status{Type: StatusError, Text: fmt.Sprintf(format, args...)}
}

// Pending returns the status of an evaluation in progress.
func Pending() Status { return Status{Type: StatusPending} }

// IsError reports whether the status is an error.
func (s Status) IsError() bool { return s.Type == StatusError }

// String formats the status for display.
func (s Status) String() string {
	if s.Text == "" {
		return s.Type.String()
	}
	return s.Type.String() + ": " + s.Text
}

// severity orders status types for merging: Error > Warning > Pending > Success.
func (t StatusType) severity() int {
	switch t {
	case StatusError:
		return 3
	case StatusWarning:
		return 2
	case StatusPending:
		return 1
	default:
		return 0
	}
}

// MergeStatus combines several statuses into one. The most severe type wins;
// distinct non-empty messages are concatenated, one per line, in order.
func MergeStatus(statuses ...Status) Status {
	var merged Status
	var texts []string
	seen := make(map[string]bool)
	for _, s := range statuses {
		if s.Type.severity() > merged.Type.severity() {
			merged.Type = s.Type
		}
		if s.Text != "" && !seen[s.Text] {
			seen[s.Text] = true
			texts = append(texts, s.Text)
		}
	}
	merged.Text = strings.Join(texts, "\n")
	return merged
}
