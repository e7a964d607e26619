package testutil

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flowstate/internal/anim"
	"github.com/roach88/flowstate/internal/data"
	"github.com/roach88/flowstate/internal/engine"
	"github.com/roach88/flowstate/internal/future"
	"github.com/roach88/flowstate/internal/pipeline"
)

// AwaitTimeout bounds how long Await waits for a future.
const AwaitTimeout = 5 * time.Second

// Await waits for f and fails the test on error or timeout.
func Await[T any](t testing.TB, f *future.Future[T]) T {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), AwaitTimeout)
	defer cancel()
	v, err := f.Wait(ctx)
	require.NoError(t, err)
	return v
}

// AsyncDataset returns a dataset whose coordinator runs on its own
// goroutine and whose pool has workers workers. Both stop when the test ends.
func AsyncDataset(t testing.TB, workers int, opts ...pipeline.Option) *pipeline.Dataset {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	coord := engine.NewCoordinator()
	done := make(chan error, 1)
	go func() { done <- coord.Run(ctx) }()

	pool := engine.NewPool(workers)
	require.NoError(t, pool.Start(ctx))

	t.Cleanup(func() {
		assert.NoError(t, pool.Stop(AwaitTimeout))
		cancel()
		<-done
	})
	base := []pipeline.Option{pipeline.WithCoordinator(coord), pipeline.WithPool(pool, pool.Workers())}
	return pipeline.NewDataset(append(base, opts...)...)
}

// Positions returns a Position property with 3 components per particle.
func Positions(xyz ...float64) *data.Property {
	return data.NewProperty(data.PositionProperty, 3, xyz)
}

// CubicCell returns a cell of edge length a at the origin, periodic in all directions.
func CubicCell(a float64) *data.SimulationCell {
	return data.NewSimulationCell([3][4]float64{
		{a, 0, 0, 0},
		{0, a, 0, 0},
		{0, 0, a, 0},
	}, [3]bool{true, true, true})
}

// Values returns the values of the named property, failing the test when
// it is missing.
func Values(t testing.TB, st *data.FlowState, name string) []float64 {
	t.Helper()
	p, err := data.ExpectProperty(st, name)
	require.NoError(t, err)
	return p.Values()
}

// CountingModifier multiplies every Position value by a factor and counts
// how often it ran.
type CountingModifier struct {
	pipeline.ModifierBase
	factor float64
	runs   atomic.Int64
}

// NewCountingModifier creates a counting modifier.
func NewCountingModifier(factor float64) *CountingModifier {
	m := &CountingModifier{factor: factor}
	m.SetTitle("counting")
	return m
}

// Runs returns the number of evaluations performed.
func (m *CountingModifier) Runs() int64 { return m.runs.Load() }

func (m *CountingModifier) Evaluate(req pipeline.Request, app *pipeline.ModifierApplication, state *data.FlowState) *future.Future[*data.FlowState] {
	return pipeline.EvaluateSynchronously(m, req, app, state)
}

func (m *CountingModifier) EvaluateSynchronous(_ anim.TimePoint, _ *pipeline.ModifierApplication, state *data.FlowState) error {
	m.runs.Add(1)
	p, err := data.ExpectProperty(state, data.PositionProperty)
	if err != nil {
		return err
	}
	p = data.MakeMutable(state.Data(), p)
	p.Update(func(values []float64) {
		for i := range values {
			values[i] *= m.factor
		}
	})
	return nil
}
