package assembly

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flowstate/internal/anim"
	"github.com/roach88/flowstate/internal/compiler"
	"github.com/roach88/flowstate/internal/data"
	"github.com/roach88/flowstate/internal/ir"
	"github.com/roach88/flowstate/internal/modifiers"
	"github.com/roach88/flowstate/internal/pipeline"
	"github.com/roach88/flowstate/internal/testutil"
)

func atoms() ir.PipelineSpec {
	return ir.PipelineSpec{
		Name: "atoms",
		Source: ir.SourceSpec{
			Objects: []ir.ObjectSpec{
				{Kind: ir.KindProperty, Name: data.PositionProperty, Components: 3, Values: []float64{1, 2, 3, 4, 5, 6}},
				{Kind: ir.KindCell, Matrix: []float64{10, 0, 0, 0, 10, 0, 0, 0, 10}, PBC: []bool{true, true, true}},
			},
			Attributes: map[string]float64{"Timestep": 7},
		},
		Modifiers: []ir.ModifierSpec{
			{Type: modifiers.TypeScale, Params: ir.Object{"factor": ir.Int(2)}},
		},
	}
}

func TestBuild_SinglePipeline(t *testing.T) {
	ds := pipeline.NewDataset()
	a, err := Build(ds, []ir.PipelineSpec{atoms()}, nil)
	require.NoError(t, err)

	p, ok := a.Pipeline("atoms")
	require.True(t, ok)
	require.Len(t, p.Modifiers(), 1)

	st := testutil.Await(t, p.EvaluatePipeline(0))
	assert.Equal(t, []float64{2, 4, 6, 8, 10, 12}, testutil.Values(t, st, data.PositionProperty))
	ts, ok := st.Attribute("Timestep")
	assert.True(t, ok)
	assert.Equal(t, 7.0, ts)
	_, ok = data.Get[*data.SimulationCell](st)
	assert.True(t, ok)
}

func TestBuild_BranchesShareUpstream(t *testing.T) {
	ds := pipeline.NewDataset()
	count := ir.PipelineSpec{
		Name:      "count",
		Source:    ir.SourceSpec{Pipeline: "atoms"},
		Modifiers: []ir.ModifierSpec{{Type: modifiers.TypeComputeCount}},
	}
	moved := ir.PipelineSpec{
		Name:   "moved",
		Source: ir.SourceSpec{Pipeline: "atoms"},
		Modifiers: []ir.ModifierSpec{{Type: modifiers.TypeAffineTransformation, Params: ir.Object{
			"matrix": ir.Floats([]float64{1, 0, 0, 0, 1, 0, 0, 0, 1, 1, 1, 1}),
		}}},
	}
	a, err := Build(ds, []ir.PipelineSpec{moved, count, atoms()}, nil)
	require.NoError(t, err)
	assert.Equal(t, "atoms", a.Names()[0])

	base, _ := a.Pipeline("atoms")
	scale := base.Modifiers()[0].Modifier().(*modifiers.Scale)

	cp, _ := a.Pipeline("count")
	st := testutil.Await(t, cp.EvaluatePipeline(0))
	n, _ := st.Attribute("Position.count")
	assert.Equal(t, 2.0, n)

	mp, _ := a.Pipeline("moved")
	st = testutil.Await(t, mp.EvaluatePipeline(0))
	assert.Equal(t, []float64{3, 5, 7, 9, 11, 13}, testutil.Values(t, st, data.PositionProperty))
	assert.Equal(t, int64(1), scale.Runs(), "both branches read one upstream evaluation")
}

func TestBuild_FrameSource(t *testing.T) {
	ds := pipeline.NewDataset()
	spec := ir.PipelineSpec{
		Name: "traj",
		Source: ir.SourceSpec{
			Attributes: map[string]float64{"Shared": 1},
			Frames: []ir.FrameSpec{
				{Objects: []ir.ObjectSpec{{Kind: ir.KindProperty, Name: data.PositionProperty, Values: []float64{0}}}},
				{Objects: []ir.ObjectSpec{{Kind: ir.KindProperty, Name: data.PositionProperty, Values: []float64{5}}}, Attributes: map[string]float64{"Timestep": 1}},
			},
		},
		Animation: ir.AnimationSpec{StartFrame: 0, EndFrame: 1, TicksPerFrame: 100},
	}
	a, err := Build(ds, []ir.PipelineSpec{spec}, nil)
	require.NoError(t, err)
	assert.Equal(t, anim.TimePoint(100), ds.Animation().TicksPerFrame())
	assert.Equal(t, anim.Span(0, 100), ds.Animation().Interval())

	p, _ := a.Pipeline("traj")
	st := testutil.Await(t, p.EvaluatePipeline(150))
	assert.Equal(t, []float64{5}, testutil.Values(t, st, data.PositionProperty))
	assert.Equal(t, map[string]float64{"Shared": 1, "Timestep": 1}, st.Attributes())
	assert.Equal(t, anim.Span(100, anim.PositiveInfinity), st.Validity())
}

func TestBuild_ValidationErrors(t *testing.T) {
	bad := atoms()
	bad.Modifiers = append(bad.Modifiers, ir.ModifierSpec{Type: "smooth"})
	_, err := Build(pipeline.NewDataset(), []ir.PipelineSpec{bad}, nil)

	var be *BuildError
	require.ErrorAs(t, err, &be)
	require.Len(t, be.Problems, 1)
	assert.Equal(t, compiler.ErrUnknownModifierType, be.Problems[0].Code)
	assert.Contains(t, err.Error(), "smooth")
}

func TestBuild_CycleRejected(t *testing.T) {
	specs := []ir.PipelineSpec{
		{Name: "a", Source: ir.SourceSpec{Pipeline: "b"}},
		{Name: "b", Source: ir.SourceSpec{Pipeline: "a"}},
	}
	_, err := Build(pipeline.NewDataset(), specs, nil)
	var be *BuildError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, compiler.ErrPipelineCycle, be.Problems[0].Code)
}

func TestBuild_CustomRegistry(t *testing.T) {
	reg := modifiers.NewRegistry()
	counting := testutil.NewCountingModifier(10)
	reg.MustRegister("counting", func(ir.Object) (pipeline.Modifier, error) { return counting, nil })

	spec := atoms()
	spec.Modifiers = []ir.ModifierSpec{{Type: "counting", Title: "x10"}}
	a, err := Build(pipeline.NewDataset(), []ir.PipelineSpec{spec}, reg)
	require.NoError(t, err)

	p, _ := a.Pipeline("atoms")
	st := testutil.Await(t, p.EvaluatePipeline(0))
	assert.Equal(t, []float64{10, 20, 30, 40, 50, 60}, testutil.Values(t, st, data.PositionProperty))
	assert.Equal(t, "x10", p.Modifiers()[0].Title())
}

func TestNewObject(t *testing.T) {
	obj, err := NewObject(ir.ObjectSpec{Kind: ir.KindProperty, Name: "Color", Components: 2, Values: []float64{1, 2, 3, 4}})
	require.NoError(t, err)
	p := obj.(*data.Property)
	assert.Equal(t, 2, p.Len())

	_, err = NewObject(ir.ObjectSpec{Kind: ir.KindProperty, Name: "Color", Components: 3, Values: []float64{1}})
	assert.Error(t, err)

	_, err = NewObject(ir.ObjectSpec{Kind: "mesh"})
	assert.Error(t, err)
}
