package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/flowstate/internal/anim"
	"github.com/roach88/flowstate/internal/assembly"
	"github.com/roach88/flowstate/internal/compiler"
	"github.com/roach88/flowstate/internal/data"
	"github.com/roach88/flowstate/internal/engine"
	"github.com/roach88/flowstate/internal/future"
	"github.com/roach88/flowstate/internal/ir"
	"github.com/roach88/flowstate/internal/modifiers"
	"github.com/roach88/flowstate/internal/pipeline"
	"github.com/roach88/flowstate/internal/store"
)

// EvalOptions holds flags for the eval command.
type EvalOptions struct {
	*RootOptions
	Pipeline string
	Time     int
	Frame    int
	Journal  string // optional SQLite journal path
	Workers  int
	Timeout  time.Duration

	// RunIDGenerator allows overriding the journal run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDGenerator engine.RunIDGenerator
}

// EvalResult is the output of one pipeline evaluation.
type EvalResult struct {
	Pipeline string    `json:"pipeline"`
	Time     int       `json:"time"`
	Status   string    `json:"status"`
	Validity string    `json:"validity"`
	Digest   string    `json:"digest"`
	RunID    string    `json:"run_id,omitempty"`
	State    ir.Object `json:"state"`
}

// NewEvalCommand creates the eval command.
func NewEvalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EvalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "eval <pipelines-dir>",
		Short: "Evaluate a pipeline at an animation time",
		Long: `Evaluate one pipeline of a pipelines directory at an animation time.

All pipelines in the directory are assembled on one dataset so branches
share their upstream caches. With --journal, every cache event is
recorded in a SQLite database for the trace command.

Examples:
  flowstate eval ./pipelines --pipeline atoms
  flowstate eval ./pipelines --pipeline frames --frame 2 --workers 4
  flowstate eval ./pipelines --pipeline atoms --journal ./flowstate.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Pipeline, "pipeline", "", "pipeline to evaluate (required)")
	_ = cmd.MarkFlagRequired("pipeline")
	cmd.Flags().IntVar(&opts.Time, "time", 0, "animation time in ticks")
	cmd.Flags().IntVar(&opts.Frame, "frame", -1, "animation frame, overrides --time")
	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to SQLite journal database")
	cmd.Flags().IntVar(&opts.Workers, "workers", 1, "worker goroutines for modifier computations")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "maximum evaluation time")

	return cmd
}

func runEval(opts *EvalOptions, dir string, cmd *cobra.Command) error {
	formatter := newOutputFormatter(opts.RootOptions, cmd)
	logger := formatter.Logger()

	defs, loadErr := loadDefinitions(dir, true)
	if loadErr != nil {
		return WrapExitError(ExitCommandError, "failed to compile pipelines", loadErr)
	}
	if len(defs.Problems) > 0 {
		return WrapExitError(ExitCommandError, "failed to compile pipelines", defs.Problems[0])
	}
	if errs := compiler.ValidateSet(defs.Pipelines, modifiers.DefaultRegistry().Names()); len(errs) > 0 {
		return WrapExitError(ExitCommandError, "invalid pipelines", errs[0])
	}
	logger.Info("pipelines compiled", "dir", dir, "pipelines", len(defs.Pipelines))

	// main cancels the command context on SIGINT and SIGTERM.
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	metrics, err := engine.NewMetrics(prometheus.NewRegistry())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create metrics", err)
	}
	dsOpts := []pipeline.Option{pipeline.WithLogger(logger), pipeline.WithMetrics(metrics)}

	var rec *store.Recorder
	if opts.Journal != "" {
		st, err := store.Open(opts.Journal)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing journal", "error", closeErr)
			}
		}()
		rec, err = newEvalRecorder(ctx, st, opts, defs.Pipelines, logger)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to start journal", err)
		}
		dsOpts = append(dsOpts, pipeline.WithJournal(rec))
	}

	stopExecutors := func() {}
	if opts.Workers > 1 {
		stop, execOpts, err := startExecutors(ctx, opts.Workers, metrics, logger)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to start workers", err)
		}
		stopExecutors = sync.OnceFunc(stop)
		defer stopExecutors()
		dsOpts = append(dsOpts, execOpts...)
	}

	ds := pipeline.NewDataset(dsOpts...)
	asm, err := assembly.Build(ds, defs.Pipelines, modifiers.DefaultRegistry())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to assemble pipelines", err)
	}
	p, ok := asm.Pipeline(opts.Pipeline)
	if !ok {
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown pipeline %q", opts.Pipeline))
	}

	t := anim.TimePoint(opts.Time)
	if opts.Frame >= 0 {
		t = ds.Animation().FrameToTime(opts.Frame)
	}
	ds.Animation().SetTime(t)

	logger.Debug("evaluating", "pipeline", opts.Pipeline, "time", t, "workers", opts.Workers)
	waitCtx, waitCancel := context.WithTimeout(ctx, opts.Timeout)
	defer waitCancel()
	st, err := awaitState(waitCtx, p.EvaluatePipeline(t))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return WrapExitError(ExitFailure, "evaluation timed out", err)
		}
		if errors.Is(err, context.Canceled) {
			logger.Info("evaluation interrupted", "pipeline", opts.Pipeline)
			return WrapExitError(ExitFailure, "evaluation interrupted", err)
		}
		return WrapExitError(ExitFailure, "evaluation failed", err)
	}

	result, err := buildEvalResult(opts.Pipeline, t, st)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to describe state", err)
	}
	if rec != nil {
		// drain late notifications before the journal is written
		stopExecutors()
		if err := rec.Flush(ctx); err != nil {
			return WrapExitError(ExitCommandError, "failed to write journal", err)
		}
		result.RunID = rec.RunID()
	}

	if err := outputEval(formatter, result); err != nil {
		return err
	}
	if st.Status().IsError() {
		return NewExitError(ExitFailure, fmt.Sprintf("pipeline %s: %s", opts.Pipeline, st.Status()))
	}
	return nil
}

// newEvalRecorder starts a journal run labelled with the pipeline name and
// tagged with the hash of its definition.
func newEvalRecorder(ctx context.Context, st *store.Store, opts *EvalOptions, specs []ir.PipelineSpec, logger *slog.Logger) (*store.Recorder, error) {
	gen := opts.RunIDGenerator
	if gen == nil {
		gen = engine.UUIDv7Generator{}
	}
	recOpts := []store.RecorderOption{
		store.WithRunIDGenerator(gen),
		store.WithRecorderLogger(logger),
		store.WithLabel(opts.Pipeline),
	}
	for _, spec := range specs {
		if spec.Name != opts.Pipeline {
			continue
		}
		hash, err := ir.PipelineHash(spec)
		if err != nil {
			return nil, err
		}
		recOpts = append(recOpts, store.WithPipelineHash(hash))
	}
	return st.NewRecorder(ctx, recOpts...)
}

// startExecutors runs a coordinator loop and a worker pool until the
// returned stop function is called.
func startExecutors(ctx context.Context, workers int, metrics *engine.Metrics, logger *slog.Logger) (func(), []pipeline.Option, error) {
	runCtx, cancel := context.WithCancel(ctx)

	coord := engine.NewCoordinator(engine.WithCoordinatorLogger(logger))
	done := make(chan error, 1)
	go func() { done <- coord.Run(runCtx) }()

	pool := engine.NewPool(workers, engine.WithPoolMetrics(metrics), engine.WithPoolLogger(logger))
	if err := pool.Start(runCtx); err != nil {
		cancel()
		<-done
		return nil, nil, err
	}

	stop := func() {
		if err := pool.Stop(5 * time.Second); err != nil {
			logger.Warn("worker pool did not drain", "error", err)
		}
		coord.Stop()
		cancel()
		<-done
	}
	opts := []pipeline.Option{
		pipeline.WithCoordinator(coord),
		pipeline.WithPool(pool, pool.Workers()),
	}
	return stop, opts, nil
}

func buildEvalResult(name string, t anim.TimePoint, st *data.FlowState) (*EvalResult, error) {
	digest, err := st.Digest()
	if err != nil {
		return nil, err
	}
	return &EvalResult{
		Pipeline: name,
		Time:     int(t),
		Status:   st.Status().String(),
		Validity: st.Validity().String(),
		Digest:   digest,
		State:    st.Describe(),
	}, nil
}

func outputEval(formatter *OutputFormatter, result *EvalResult) error {
	if formatter.JSON() {
		return formatter.SuccessWithTrace(result, result.RunID)
	}

	formatter.Printf("Pipeline: %s\n", result.Pipeline)
	formatter.Printf("Time:     %d\n", result.Time)
	formatter.Printf("Status:   %s\n", result.Status)
	formatter.Printf("Validity: %s\n", result.Validity)
	formatter.Printf("Digest:   %s\n", result.Digest)
	if result.RunID != "" {
		formatter.Printf("Run:      %s\n", result.RunID)
	}

	if formatter.Verbose {
		canonical, err := ir.MarshalCanonical(result.State)
		if err != nil {
			return err
		}
		formatter.Printf("\n%s\n", canonical)
	}
	return nil
}

// awaitState waits for f until ctx ends. An abandoned evaluation is
// cancelled so running kernels see it through their promise context.
func awaitState(ctx context.Context, f *future.Future[*data.FlowState]) (*data.FlowState, error) {
	st, err := f.Wait(ctx)
	if err != nil {
		f.Cancel()
	}
	return st, err
}
