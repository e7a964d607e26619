package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/flowstate/internal/pipeline"
)

func TestCountingModifier_CountsRuns(t *testing.T) {
	ds := pipeline.NewDataset()
	src := pipeline.NewSource(ds, "source", Positions(1, 2, 3))
	mod := NewCountingModifier(2)
	pl := pipeline.NewPipeline(ds, "p", src)
	_, err := pl.InsertModifier(mod)
	assert.NoError(t, err)

	st := Await(t, pl.EvaluatePipeline(0))
	assert.Equal(t, []float64{2, 4, 6}, Values(t, st, "Position"))
	Await(t, pl.EvaluatePipeline(0))
	assert.Equal(t, int64(1), mod.Runs(), "second request is a cache hit")
}

func TestCubicCell(t *testing.T) {
	c := CubicCell(2)
	assert.InDelta(t, 8.0, c.Volume(), 1e-12)
}
