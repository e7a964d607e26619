package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"cuelang.org/go/cue"

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

// StepTimeout bounds how long an evaluate step waits for its result.
const StepTimeout = 10 * time.Second

// Harness executes the steps of one scenario.
type Harness struct {
	asm    *assembly.Assembly
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Compile the pipeline definitions and assemble them on an inline dataset
// 2. Execute steps, checking expect clauses
// 3. Read the journal back as the trace
// 4. Evaluate assertions
//
// Failed expectations and assertions are reported in the result. An error
// is returned only when the scenario cannot be executed at all.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	specs, err := loadPipelines(scenario)
	if err != nil {
		return nil, err
	}

	st, err := store.OpenMemory()
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	runID := scenario.RunID
	if runID == "" {
		runID = DefaultRunID
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec, err := st.NewRecorder(ctx,
		store.WithRunIDGenerator(engine.NewFixedGenerator(runID)),
		store.WithRecorderClock(engine.NewClock()),
		store.WithRecorderLogger(logger),
		store.WithLabel(scenario.Name),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start journal: %w", err)
	}

	ds := pipeline.NewDataset(pipeline.WithJournal(rec), pipeline.WithLogger(logger))
	asm, err := assembly.Build(ds, specs, modifiers.DefaultRegistry())
	if err != nil {
		return nil, fmt.Errorf("failed to assemble pipelines: %w", err)
	}

	h := &Harness{asm: asm, logger: logger}
	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	if err := rec.Flush(ctx); err != nil {
		return nil, err
	}
	events, err := st.ReadEvents(ctx, runID, store.EventFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	for _, ev := range events {
		result.Trace = append(result.Trace, traceEventFrom(ev))
	}

	actx := &AssertionContext{Ctx: ctx, Assembly: asm}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// loadPipelines compiles the scenario's pipeline definitions.
func loadPipelines(scenario *Scenario) ([]ir.PipelineSpec, error) {
	var (
		v   cue.Value
		err error
	)
	if scenario.Pipelines != "" {
		v, err = compiler.LoadDir(scenario.Pipelines)
	} else {
		v, err = compiler.CompileString(scenario.Name+".cue", scenario.Definition)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pipelines: %w", err)
	}
	specs, errs := compiler.CompilePipelines(v, true)
	if len(errs) > 0 {
		return nil, fmt.Errorf("failed to compile pipelines: %w", errs[0])
	}
	return specs, nil
}

func (h *Harness) executeStep(ctx context.Context, i int, step Step, result *Result) error {
	switch {
	case step.Evaluate != "":
		return h.evaluate(ctx, i, step, result)
	case step.Set != nil:
		return h.set(step.Set)
	case step.Update != nil:
		return h.update(step.Update)
	case step.Reload != nil:
		return h.reload(step.Reload)
	}
	return fmt.Errorf("no action")
}

func (h *Harness) pipeline(name string) (*pipeline.Pipeline, error) {
	p, ok := h.asm.Pipeline(name)
	if !ok {
		return nil, fmt.Errorf("unknown pipeline %q", name)
	}
	return p, nil
}

func (h *Harness) evaluate(ctx context.Context, i int, step Step, result *Result) error {
	p, err := h.pipeline(step.Evaluate)
	if err != nil {
		return err
	}
	t := anim.TimePoint(step.Time)

	var st *data.FlowState
	if step.Preliminary {
		h.asm.Dataset().Animation().SetTime(t)
		st = p.EvaluatePipelinePreliminary()
	} else {
		req := pipeline.At(t)
		req.BreakOnError = step.BreakOnError
		st, err = wait(ctx, p.EvaluatePipelineRequest(req))
		if err != nil {
			result.AddError(fmt.Sprintf("steps[%d]: evaluate %s at %d: %v", i, step.Evaluate, step.Time, err))
			return nil
		}
	}

	digest, err := st.Digest()
	if err != nil {
		return fmt.Errorf("digest of %s: %w", step.Evaluate, err)
	}
	result.Evaluations = append(result.Evaluations, Evaluation{
		Step:     i,
		Pipeline: step.Evaluate,
		Time:     step.Time,
		Status:   st.Status().String(),
		Digest:   digest,
	})
	h.logger.Info("evaluate step completed", "step", i, "pipeline", step.Evaluate, "time", step.Time, "status", st.Status())

	if step.Expect != nil {
		for _, msg := range checkExpect(st, step.Expect) {
			result.AddError(fmt.Sprintf("steps[%d]: %s", i, msg))
		}
	}
	return nil
}

func (h *Harness) set(s *SetStep) error {
	p, err := h.pipeline(s.Pipeline)
	if err != nil {
		return err
	}
	apps := p.Modifiers()
	if s.Modifier < 0 || s.Modifier >= len(apps) {
		return fmt.Errorf("pipeline %q has no modifier %d", s.Pipeline, s.Modifier)
	}
	v, err := ir.ToValue(s.Value)
	if err != nil {
		return fmt.Errorf("set %s: %w", s.Param, err)
	}
	return modifiers.SetParam(apps[s.Modifier].Modifier(), s.Param, v)
}

func (h *Harness) update(u *UpdateStep) error {
	p, err := h.pipeline(u.Pipeline)
	if err != nil {
		return err
	}
	src, ok := pipeline.PipelineSource(p.Source()).(*pipeline.Source)
	if !ok {
		return fmt.Errorf("pipeline %q does not read from static data", u.Pipeline)
	}
	if _, err := data.ExpectProperty(src.Master(), u.Property); err != nil {
		return err
	}
	var setErr error
	src.Modify(func(master *data.FlowState) {
		prop, _ := data.ExpectProperty(master, u.Property)
		setErr = data.MakeMutable(master.Data(), prop).SetValues(u.Values)
	})
	return setErr
}

func (h *Harness) reload(r *ReloadStep) error {
	p, err := h.pipeline(r.Pipeline)
	if err != nil {
		return err
	}
	src, ok := pipeline.PipelineSource(p.Source()).(*pipeline.FrameSource)
	if !ok {
		return fmt.Errorf("pipeline %q does not read from frames", r.Pipeline)
	}
	if r.Frame < 0 || r.Frame >= src.NumberOfSourceFrames() {
		return fmt.Errorf("pipeline %q has no frame %d", r.Pipeline, r.Frame)
	}
	src.ReloadFrame(r.Frame)
	return nil
}

func wait(ctx context.Context, f *future.Future[*data.FlowState]) (*data.FlowState, error) {
	ctx, cancel := context.WithTimeout(ctx, StepTimeout)
	defer cancel()
	return f.Wait(ctx)
}
