package modifiers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flowstate/internal/data"
	"github.com/roach88/flowstate/internal/pipeline"
	"github.com/roach88/flowstate/internal/testutil"
)

func build(t *testing.T, ds *pipeline.Dataset, src pipeline.Node, mods ...pipeline.Modifier) *pipeline.Pipeline {
	t.Helper()
	pl := pipeline.NewPipeline(ds, "test", src)
	for _, m := range mods {
		_, err := pl.InsertModifier(m)
		require.NoError(t, err)
	}
	return pl
}

func TestScale_ScalesPositions(t *testing.T) {
	ds := pipeline.NewDataset()
	pos := testutil.Positions(1, 2, 3)
	scale := NewScale(2)
	pl := build(t, ds, pipeline.NewSource(ds, "source", pos), scale)

	st := testutil.Await(t, pl.EvaluatePipeline(0))
	assert.Equal(t, []float64{2, 4, 6}, testutil.Values(t, st, data.PositionProperty))
	assert.Equal(t, []float64{1, 2, 3}, pos.Values(), "source data is shared, not modified")
	assert.Equal(t, data.StatusSuccess, st.Status().Type)
	assert.Equal(t, int64(1), scale.Runs())
}

func TestScale_SkipsMissingProperties(t *testing.T) {
	ds := pipeline.NewDataset()
	color := data.NewProperty(data.ColorProperty, 1, []float64{0.5})
	scale := NewScale(3, data.PositionProperty, "Velocity", data.ColorProperty)
	pl := build(t, ds, pipeline.NewSource(ds, "source", testutil.Positions(1, 1, 1), color), scale)

	st := testutil.Await(t, pl.EvaluatePipeline(0))
	assert.Equal(t, []float64{3, 3, 3}, testutil.Values(t, st, data.PositionProperty))
	assert.Equal(t, []float64{1.5}, testutil.Values(t, st, data.ColorProperty))
	assert.Equal(t, int64(2), scale.Runs())
}

func TestScale_NoApplicableProperty(t *testing.T) {
	ds := pipeline.NewDataset()
	scale := NewScale(2, "Velocity")
	pl := build(t, ds, pipeline.NewSource(ds, "source", testutil.Positions(1, 2, 3)), scale)

	st := testutil.Await(t, pl.EvaluatePipeline(0))
	assert.Equal(t, data.StatusError, st.Status().Type)
	assert.Contains(t, st.Status().Text, "expected kind of data")
	assert.Equal(t, []float64{1, 2, 3}, testutil.Values(t, st, data.PositionProperty))
}

func TestScale_SetFactorInvalidates(t *testing.T) {
	ds := pipeline.NewDataset()
	scale := NewScale(2)
	pl := build(t, ds, pipeline.NewSource(ds, "source", testutil.Positions(1, 2, 3)), scale)

	testutil.Await(t, pl.EvaluatePipeline(0))
	scale.SetFactor(2)
	testutil.Await(t, pl.EvaluatePipeline(0))
	assert.Equal(t, int64(1), scale.Runs(), "unchanged factor keeps the cache")

	scale.SetFactor(4)
	st := testutil.Await(t, pl.EvaluatePipeline(0))
	assert.Equal(t, []float64{4, 8, 12}, testutil.Values(t, st, data.PositionProperty))
	assert.Equal(t, int64(2), scale.Runs())
}

func TestScale_NonFiniteFactor(t *testing.T) {
	ds := pipeline.NewDataset()
	scale := NewScale(2)
	pl := build(t, ds, pipeline.NewSource(ds, "source", testutil.Positions(1, 2, 3)), scale)
	scale.SetFactor(posInf())

	st := testutil.Await(t, pl.EvaluatePipeline(0))
	assert.Equal(t, data.StatusError, st.Status().Type)
	assert.Contains(t, st.Status().Text, "factor must be finite")
}

func TestScale_OnWorkerPool(t *testing.T) {
	ds := testutil.AsyncDataset(t, 4)
	values := make([]float64, 3*10000)
	for i := range values {
		values[i] = float64(i)
	}
	scale := NewScale(0.5)
	pl := build(t, ds, pipeline.NewSource(ds, "source", testutil.Positions(values...)), scale)

	st := testutil.Await(t, pl.EvaluatePipeline(0))
	got := testutil.Values(t, st, data.PositionProperty)
	require.Len(t, got, len(values))
	for i, v := range got {
		if v != values[i]*0.5 {
			t.Fatalf("value %d: got %v, want %v", i, v, values[i]*0.5)
		}
	}
}
