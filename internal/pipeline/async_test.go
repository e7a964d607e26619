package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flowstate/internal/anim"
	"github.com/roach88/flowstate/internal/data"
	"github.com/roach88/flowstate/internal/engine"
	"github.com/roach88/flowstate/internal/future"
	"github.com/roach88/flowstate/internal/notify"
)

// asyncDataset runs commits on a coordinator goroutine and modifier work
// on a pool, the way the CLI does.
func asyncDataset(t *testing.T, opts ...Option) *Dataset {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	coord := engine.NewCoordinator()
	done := make(chan error, 1)
	go func() { done <- coord.Run(ctx) }()

	pool := engine.NewPool(4)
	require.NoError(t, pool.Start(ctx))

	t.Cleanup(func() {
		assert.NoError(t, pool.Stop(5*time.Second))
		cancel()
		<-done
	})
	return NewDataset(append([]Option{WithCoordinator(coord), WithPool(pool, pool.Workers())}, opts...)...)
}

func TestAsync_ConcurrentConsumersShareResult(t *testing.T) {
	ds := asyncDataset(t)
	values := make([]float64, 1000)
	for i := range values {
		values[i] = float64(i)
	}
	src := NewSource(ds, "source", positions(values...))
	mod := NewMultiDelegatingModifier("scale", &propertyDelegate{property: data.PositionProperty, factor: 2})
	pl := chain(t, ds, src, mod)

	const consumers = 8
	results := make([]*data.FlowState, consumers)
	var wg sync.WaitGroup
	for i := range consumers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = wait(t, pl.EvaluatePipeline(0))
		}()
	}
	wg.Wait()

	for _, st := range results[1:] {
		assert.Same(t, results[0], st)
	}
	got := valuesOf(t, results[0])
	assert.Equal(t, 1998.0, got[999])
	assert.Equal(t, 1, pl.Head().(*ModifierApplication).Cache().Stats().Misses)
}

func TestAsync_ChangeWhileEvaluating(t *testing.T) {
	ds := asyncDataset(t)
	p := positions(1, 2, 3)
	src := NewSource(ds, "source", p)
	gate := newGate(anim.Infinite())
	pl := chain(t, ds, src, gate, newScale(2))

	stale := pl.EvaluatePipeline(0)
	require.Eventually(t, func() bool { return gate.calls() == 1 }, time.Second, time.Millisecond)

	src.NotifyDependents(notify.Changed())
	fresh := pl.EvaluatePipeline(0)
	require.Eventually(t, func() bool { return gate.calls() == 2 }, time.Second, time.Millisecond)

	gate.release(t, 1)
	gate.release(t, 0)
	wait(t, stale)
	st := wait(t, fresh)

	assert.Equal(t, []float64{2, 4, 6}, valuesOf(t, st))
	cached := wait(t, pl.EvaluatePipeline(0))
	assert.Same(t, st, cached, "the newer result is the cached one")
}

func TestAsync_CancelledConsumerStopsWork(t *testing.T) {
	ds := asyncDataset(t)
	started := make(chan struct{})
	src := NewFrameSource(ds, "frames", 1, func(ctx context.Context, _ int) (*data.FlowState, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	f := src.Evaluate(At(0))
	<-started
	f.Cancel()

	require.Eventually(t, func() bool { return src.Cache().InFlight() == 0 }, time.Second, time.Millisecond)
	_, err := f.Result()
	assert.ErrorIs(t, err, future.ErrCanceled)
}
