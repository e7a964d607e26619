package modifiers

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flowstate/internal/anim"
	"github.com/roach88/flowstate/internal/data"
	"github.com/roach88/flowstate/internal/pipeline"
	"github.com/roach88/flowstate/internal/testutil"
)

func TestTimeRamp_FactorFollowsTime(t *testing.T) {
	ds := pipeline.NewDataset()
	ramp := NewTimeRamp(data.PositionProperty, 1, 2)
	pl := build(t, ds, pipeline.NewSource(ds, "source", testutil.Positions(1, 1, 1)), ramp)

	st := testutil.Await(t, pl.EvaluatePipeline(0))
	assert.Equal(t, []float64{1, 1, 1}, testutil.Values(t, st, data.PositionProperty))
	assert.Equal(t, anim.Instant(0), st.Validity())

	oneSecond := anim.TimeFromSeconds(1)
	st = testutil.Await(t, pl.EvaluatePipeline(oneSecond))
	assert.Equal(t, []float64{3, 3, 3}, testutil.Values(t, st, data.PositionProperty))
	assert.Equal(t, anim.Instant(oneSecond), st.Validity())
}

func TestTimeRamp_KeepInterval(t *testing.T) {
	ramp := NewTimeRamp(data.PositionProperty, 1, 0)
	assert.Equal(t, anim.Instant(50), ramp.KeepInterval(anim.Span(0, 10), anim.Instant(50)))
	assert.True(t, ramp.KeepInterval(anim.Span(0, 100), anim.Instant(50)).IsEmpty())
	assert.True(t, ramp.KeepInterval(anim.Infinite(), anim.Instant(50)).IsEmpty())
}

func TestTimeRamp_ReloadOfOtherFrameKeepsCache(t *testing.T) {
	ds := pipeline.NewDataset()
	var loads atomic.Int64
	src := pipeline.NewFrameSource(ds, "frames", 3, func(_ context.Context, frame int) (*data.FlowState, error) {
		loads.Add(1)
		v := float64(frame + 1)
		return data.NewFlowState(data.NewCollection(testutil.Positions(v, v, v)), anim.Infinite()), nil
	})
	ramp := NewTimeRamp(data.PositionProperty, 2, 0)
	pl := build(t, ds, src, ramp)
	app := pl.Modifiers()[0]
	frame2 := ds.Animation().FrameToTime(2)

	st := testutil.Await(t, pl.EvaluatePipeline(frame2))
	assert.Equal(t, []float64{6, 6, 6}, testutil.Values(t, st, data.PositionProperty))

	src.ReloadFrame(0)
	_, ok := app.Cache().Lookup(frame2)
	assert.True(t, ok, "frame 2 output survives a reload of frame 0")
	testutil.Await(t, pl.EvaluatePipeline(frame2))
	assert.Equal(t, int64(1), loads.Load())

	src.ReloadFrame(2)
	_, ok = app.Cache().Lookup(frame2)
	require.False(t, ok)
	testutil.Await(t, pl.EvaluatePipeline(frame2))
	assert.Equal(t, int64(2), loads.Load())
}
