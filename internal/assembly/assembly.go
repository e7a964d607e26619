package assembly

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/flowstate/internal/anim"
	"github.com/roach88/flowstate/internal/compiler"
	"github.com/roach88/flowstate/internal/data"
	"github.com/roach88/flowstate/internal/ir"
	"github.com/roach88/flowstate/internal/modifiers"
	"github.com/roach88/flowstate/internal/pipeline"
)

// Assembly is a set of pipelines built on one dataset.
type Assembly struct {
	ds        *pipeline.Dataset
	specs     map[string]ir.PipelineSpec
	pipelines map[string]*pipeline.Pipeline
	order     []string
}

// Build validates specs and creates their pipelines on ds. A nil registry
// means modifiers.DefaultRegistry.
func Build(ds *pipeline.Dataset, specs []ir.PipelineSpec, reg *modifiers.Registry) (*Assembly, error) {
	if reg == nil {
		reg = modifiers.DefaultRegistry()
	}
	if errs := compiler.ValidateSet(specs, reg.Names()); len(errs) > 0 {
		return nil, &BuildError{Problems: errs}
	}
	order, err := compiler.BuildOrder(specs)
	if err != nil {
		return nil, err
	}

	a := &Assembly{
		ds:        ds,
		specs:     make(map[string]ir.PipelineSpec, len(specs)),
		pipelines: make(map[string]*pipeline.Pipeline, len(specs)),
		order:     order,
	}
	for _, spec := range specs {
		a.specs[spec.Name] = spec
	}
	configureAnimation(ds.Animation(), specs)

	for _, name := range order {
		spec := a.specs[name]
		p, err := a.buildPipeline(spec, reg)
		if err != nil {
			return nil, fmt.Errorf("pipeline %s: %w", name, err)
		}
		a.pipelines[name] = p
		ds.Logger().Debug("pipeline assembled",
			"pipeline", name,
			"modifiers", len(spec.Modifiers),
			"upstream", spec.Source.Pipeline)
	}
	return a, nil
}

func (a *Assembly) buildPipeline(spec ir.PipelineSpec, reg *modifiers.Registry) (*pipeline.Pipeline, error) {
	src, err := a.buildSource(spec)
	if err != nil {
		return nil, err
	}
	p := pipeline.NewPipeline(a.ds, spec.Name, src)
	for i, ms := range spec.Modifiers {
		mod, err := reg.Build(ms)
		if err != nil {
			return nil, fmt.Errorf("modifiers[%d]: %w", i, err)
		}
		if _, err := p.InsertModifier(mod); err != nil {
			return nil, fmt.Errorf("modifiers[%d]: %w", i, err)
		}
	}
	return p, nil
}

func (a *Assembly) buildSource(spec ir.PipelineSpec) (pipeline.Node, error) {
	src := spec.Source
	switch {
	case src.Pipeline != "":
		up, ok := a.pipelines[src.Pipeline]
		if !ok {
			return nil, fmt.Errorf("upstream pipeline %q not built", src.Pipeline)
		}
		return up.Head(), nil

	case len(src.Frames) > 0:
		frames := slices.Clone(src.Frames)
		shared := src.Attributes
		return pipeline.NewFrameSource(a.ds, spec.Name+" frames", len(frames), func(ctx context.Context, frame int) (*data.FlowState, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			f := frames[frame]
			st, err := NewState(f.Objects, shared)
			if err != nil {
				return nil, err
			}
			st.UnionAttributes(f.Attributes)
			return st, nil
		}), nil

	default:
		objs := make([]data.Object, 0, len(src.Objects))
		for _, o := range src.Objects {
			obj, err := NewObject(o)
			if err != nil {
				return nil, err
			}
			objs = append(objs, obj)
		}
		s := pipeline.NewSource(a.ds, spec.Name+" source", objs...)
		if len(src.Attributes) > 0 {
			s.Modify(func(master *data.FlowState) { master.UnionAttributes(src.Attributes) })
		}
		return s, nil
	}
}

// configureAnimation sets the frame rate from the first definition that
// names one and the playback interval to cover every definition.
func configureAnimation(settings *anim.Settings, specs []ir.PipelineSpec) {
	first, last, set := 0, 0, false
	for _, spec := range specs {
		am := spec.Animation
		if am.TicksPerFrame > 0 && !set {
			settings.SetTicksPerFrame(anim.TimePoint(am.TicksPerFrame))
			set = true
		}
		first = min(first, am.StartFrame)
		last = max(last, am.EndFrame)
	}
	settings.SetInterval(anim.Span(settings.FrameToTime(first), settings.FrameToTime(last)))
}

// Dataset returns the dataset the pipelines live on.
func (a *Assembly) Dataset() *pipeline.Dataset { return a.ds }

// Names returns the pipeline names, upstream pipelines first.
func (a *Assembly) Names() []string { return slices.Clone(a.order) }

// Pipeline returns the named pipeline.
func (a *Assembly) Pipeline(name string) (*pipeline.Pipeline, bool) {
	p, ok := a.pipelines[name]
	return p, ok
}

// Spec returns the definition the named pipeline was built from.
func (a *Assembly) Spec(name string) (ir.PipelineSpec, bool) {
	s, ok := a.specs[name]
	return s, ok
}

// BuildError reports every validation problem found before building.
type BuildError struct {
	Problems []compiler.ValidationError
}

func (e *BuildError) Error() string {
	if len(e.Problems) == 1 {
		return "invalid pipeline definition: " + e.Problems[0].Error()
	}
	return fmt.Sprintf("invalid pipeline definitions: %s (and %d more)", e.Problems[0].Error(), len(e.Problems)-1)
}
