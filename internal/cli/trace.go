package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/flowstate/internal/pipeline"
	"github.com/roach88/flowstate/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	RunID    string // optional - defaults to the latest run
	Node     string // optional - filter to one node
	Kind     string // optional - filter to one event kind
	List     bool   // list runs instead of showing events
}

// TraceEvent represents a single event in the trace timeline.
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

// TraceResult holds the complete trace output.
type TraceResult struct {
	Run      store.Run    `json:"run"`
	Timeline []TraceEvent `json:"timeline"`
	Stats    TraceStats   `json:"stats"`
}

// TraceStats holds summary statistics for the run.
type TraceStats struct {
	TotalEvents int            `json:"total_events"`
	ByKind      map[string]int `json:"by_kind"`
	Nodes       int            `json:"nodes"`
	HitRatio    float64        `json:"hit_ratio"` // hits / (hits + started)
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the cache journal of an evaluation run",
		Long: `Show the cache events recorded by "flowstate eval --journal".

The output includes:
- Timeline: cache events in the order they happened
- Stats: event counts per kind and the cache hit ratio

Examples:
  flowstate trace --db ./flowstate.db
  flowstate trace --db ./flowstate.db --list
  flowstate trace --db ./flowstate.db --run 0192... --node Scale
  flowstate trace --db ./flowstate.db --kind discarded --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id to show (default: latest run)")
	cmd.Flags().StringVar(&opts.Node, "node", "", "filter to a node title")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "filter to an event kind")
	cmd.Flags().BoolVar(&opts.List, "list", false, "list recorded runs")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if opts.Kind != "" && !pipeline.IsEventKind(opts.Kind) {
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown event kind %q", opts.Kind))
	}

	st, err := store.Open(opts.Database, store.ReadOnly())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if opts.List {
		runs, err := st.ReadRuns(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read runs", err)
		}
		return outputRuns(cmd, opts, runs)
	}

	run, err := selectRun(ctx, st, opts.RunID)
	if errors.Is(err, store.ErrRunNotFound) {
		if opts.RunID == "" {
			return NewExitError(ExitCommandError, "no runs recorded in journal")
		}
		return NewExitError(ExitCommandError, fmt.Sprintf("run not found: %s", opts.RunID))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	events, err := st.ReadEvents(ctx, run.ID, store.EventFilter{Node: opts.Node, Kind: opts.Kind})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}
	counts, err := st.CountByKind(ctx, run.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to count events", err)
	}

	result := TraceResult{
		Run:      run,
		Timeline: buildTimeline(events),
		Stats:    buildStats(events, counts),
	}

	formatter := newOutputFormatter(opts.RootOptions, cmd)
	if formatter.JSON() {
		return formatter.SuccessWithTrace(result, result.Run.ID)
	}
	return outputTraceText(cmd, result, opts.Verbose)
}

func selectRun(ctx context.Context, st *store.Store, id string) (store.Run, error) {
	if id == "" {
		return st.LatestRun(ctx)
	}
	return st.ReadRun(ctx, id)
}

// buildTimeline converts stored events to timeline entries.
// Returns an empty slice (not nil) so JSON output is always a list.
func buildTimeline(events []store.Event) []TraceEvent {
	timeline := make([]TraceEvent, 0, len(events))
	for _, ev := range events {
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
		if ev.Digest != "" || ev.Status.IsError() {
			te.Status = ev.Status.String()
		}
		timeline = append(timeline, te)
	}
	return timeline
}

// buildStats summarizes the whole run; counts are not affected by filters
// but the node count is taken from the shown events.
func buildStats(events []store.Event, counts map[string]int) TraceStats {
	stats := TraceStats{ByKind: counts}
	for _, n := range counts {
		stats.TotalEvents += n
	}
	nodes := make(map[string]bool)
	for _, ev := range events {
		nodes[ev.Node] = true
	}
	stats.Nodes = len(nodes)

	hits := counts[pipeline.EventHit]
	started := counts[pipeline.EventStarted]
	if hits+started > 0 {
		stats.HitRatio = float64(hits) / float64(hits+started)
	}
	return stats
}

// outputTraceText outputs the trace result as text.
func outputTraceText(cmd *cobra.Command, result TraceResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Trace for Run: %s\n", result.Run.ID)
	if result.Run.Label != "" {
		fmt.Fprintf(w, "Label: %s\n", result.Run.Label)
	}
	if verbose && result.Run.PipelineHash != "" {
		fmt.Fprintf(w, "Pipeline: %s\n", result.Run.PipelineHash)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no events)")
	} else {
		for _, event := range result.Timeline {
			formatTimelineEvent(w, event, verbose)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Events: %d\n", result.Stats.TotalEvents)
	kinds := make([]string, 0, len(result.Stats.ByKind))
	for k := range result.Stats.ByKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(w, "  %-12s %d\n", k+":", result.Stats.ByKind[k])
	}
	fmt.Fprintf(w, "  Hit Ratio:   %.2f\n", result.Stats.HitRatio)

	return nil
}

// formatTimelineEvent formats a single timeline event for text output.
func formatTimelineEvent(w io.Writer, event TraceEvent, verbose bool) {
	fmt.Fprintf(w, "  [%d] %-11s %s t=%d", event.Seq, event.Kind, event.Node, event.Time)
	if event.Validity != "" {
		fmt.Fprintf(w, " %s", event.Validity)
	}
	if event.Reason != "" {
		fmt.Fprintf(w, " (%s)", event.Reason)
	}
	fmt.Fprintln(w)
	if verbose && event.Status != "" {
		fmt.Fprintf(w, "       Status: %s\n", event.Status)
	}
	if verbose && event.Digest != "" {
		fmt.Fprintf(w, "       Digest: %s\n", truncateID(event.Digest))
	}
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}

// outputRuns lists the recorded runs.
func outputRuns(cmd *cobra.Command, opts *TraceOptions, runs []store.Run) error {
	formatter := newOutputFormatter(opts.RootOptions, cmd)
	if formatter.JSON() {
		return formatter.Success(runs)
	}

	w := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}
	for _, run := range runs {
		fmt.Fprintf(w, "%s  %-20s %d event(s)\n", run.ID, run.Label, run.Events)
	}
	return nil
}
