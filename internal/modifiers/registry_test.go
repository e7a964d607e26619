package modifiers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flowstate/internal/data"
	"github.com/roach88/flowstate/internal/ir"
	"github.com/roach88/flowstate/internal/pipeline"
)

func TestDefaultRegistry_Names(t *testing.T) {
	assert.Equal(t, []string{
		TypeAffineTransformation,
		TypeComputeCount,
		TypeScale,
		TypeTimeRamp,
	}, DefaultRegistry().Names())
}

func TestRegistry_Build(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		name  string
		spec  ir.ModifierSpec
		check func(t *testing.T, m pipeline.Modifier)
	}{
		{
			name: "scale with properties",
			spec: ir.ModifierSpec{Type: TypeScale, Params: ir.Object{
				"factor":     ir.Int(3),
				"properties": ir.Strings([]string{"Position", "Color"}),
			}},
			check: func(t *testing.T, m pipeline.Modifier) {
				s := m.(*Scale)
				assert.Equal(t, 3.0, s.Factor())
				assert.Len(t, s.Delegates(), 2)
			},
		},
		{
			name: "scale defaults",
			spec: ir.ModifierSpec{Type: TypeScale},
			check: func(t *testing.T, m pipeline.Modifier) {
				s := m.(*Scale)
				assert.Equal(t, 1.0, s.Factor())
				assert.Equal(t, data.PositionProperty, s.Delegates()[0].Title())
			},
		},
		{
			name: "affine transformation",
			spec: ir.ModifierSpec{Type: TypeAffineTransformation, Params: ir.Object{
				"matrix":         ir.Floats([]float64{1, 0, 0, 0, 1, 0, 0, 0, 1, 1, 2, 3}),
				"transform_cell": ir.Bool(false),
			}},
			check: func(t *testing.T, m pipeline.Modifier) {
				a := m.(*AffineTransformation)
				assert.Equal(t, translation(1, 2, 3), a.Matrix())
				assert.False(t, a.TransformCell())
			},
		},
		{
			name: "compute count",
			spec: ir.ModifierSpec{Type: TypeComputeCount, Params: ir.Object{"property": ir.String("Color")}},
			check: func(t *testing.T, m pipeline.Modifier) {
				assert.Equal(t, "Color", m.(*ComputeCount).Property())
			},
		},
		{
			name: "time ramp",
			spec: ir.ModifierSpec{Type: TypeTimeRamp, Params: ir.Object{"start": ir.Float(0.5), "rate": ir.Int(1)}},
			check: func(t *testing.T, m pipeline.Modifier) {
				assert.Equal(t, 1.5, m.(*TimeRamp).Factor(4800))
			},
		},
		{
			name: "title and disabled",
			spec: ir.ModifierSpec{Type: TypeComputeCount, Title: "count atoms", Disabled: true},
			check: func(t *testing.T, m pipeline.Modifier) {
				assert.Equal(t, "count atoms", m.Title())
				assert.False(t, m.Enabled())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := r.Build(tt.spec)
			require.NoError(t, err)
			tt.check(t, m)
		})
	}
}

func TestRegistry_BuildErrors(t *testing.T) {
	r := DefaultRegistry()

	_, err := r.Build(ir.ModifierSpec{Type: "smooth"})
	assert.True(t, errors.Is(err, ErrUnknownType))

	_, err = r.Build(ir.ModifierSpec{Type: TypeScale, Params: ir.Object{"factor": ir.String("big")}})
	assert.True(t, data.IsInvalidParameter(err))

	_, err = r.Build(ir.ModifierSpec{Type: TypeAffineTransformation, Params: ir.Object{"matrix": ir.Floats([]float64{1})}})
	assert.True(t, data.IsInvalidParameter(err))
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	f := func(ir.Object) (pipeline.Modifier, error) { return NewComputeCount("x"), nil }

	require.NoError(t, r.Register("count_x", f))
	assert.True(t, r.Has("count_x"))
	assert.Error(t, r.Register("count_x", f))
	assert.Error(t, r.Register("", f))
	assert.Panics(t, func() { r.MustRegister("count_x", f) })
}
