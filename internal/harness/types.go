package harness

import (
	"github.com/roach88/flowstate/internal/store"
)

// TraceEvent is one journaled cache event, reduced to the fields that are
// stable across runs.
type TraceEvent struct {
	Seq        int64  `json:"seq"`
	Node       string `json:"node"`
	Kind       string `json:"kind"`
	Time       int    `json:"time"`
	Validity   string `json:"validity,omitempty"`
	Generation int64  `json:"generation,omitempty"`
	Status     string `json:"status,omitempty"`
	Digest     string `json:"digest,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// Label returns "node:kind", the form used by trace_order.
func (e TraceEvent) Label() string { return e.Node + ":" + e.Kind }

func traceEventFrom(ev store.Event) TraceEvent {
	te := TraceEvent{
		Seq:        ev.Seq,
		Node:       ev.Node,
		Kind:       ev.Kind,
		Time:       int(ev.Time),
		Generation: ev.Generation,
		Digest:     ev.Digest,
		Reason:     ev.Reason,
	}
	if !ev.Validity.IsEmpty() {
		te.Validity = ev.Validity.String()
	}
	if ev.Digest != "" {
		te.Status = ev.Status.String()
	}
	return te
}

// Evaluation records the output of one evaluate step.
type Evaluation struct {
	Step     int    `json:"step"`
	Pipeline string `json:"pipeline"`
	Time     int    `json:"time"`
	Status   string `json:"status"`
	Digest   string `json:"digest"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace holds the journal in seq order.
	Trace []TraceEvent `json:"trace"`

	// Evaluations holds one entry per evaluate step.
	Evaluations []Evaluation `json:"evaluations"`

	// Errors contains failed expectations and assertions.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:        true,
		Trace:       []TraceEvent{},
		Evaluations: []Evaluation{},
		Errors:      []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
