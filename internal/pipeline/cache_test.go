package pipeline

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flowstate/internal/anim"
	"github.com/roach88/flowstate/internal/data"
	"github.com/roach88/flowstate/internal/engine"
	"github.com/roach88/flowstate/internal/future"
)

// manualCompute counts computations and lets the test resolve them.
type manualCompute struct {
	mu       sync.Mutex
	calls    atomic.Int32
	promises []*future.Promise[*data.FlowState]
}

func (m *manualCompute) fn(Request) *future.Future[*data.FlowState] {
	m.calls.Add(1)
	p := future.NewPromise[*data.FlowState]()
	m.mu.Lock()
	m.promises = append(m.promises, p)
	m.mu.Unlock()
	return p.Future()
}

func (m *manualCompute) resolve(t *testing.T, i int, st *data.FlowState) {
	t.Helper()
	m.mu.Lock()
	require.Less(t, i, len(m.promises))
	p := m.promises[i]
	m.mu.Unlock()
	p.SetResult(st)
}

func resolvedCompute(validity anim.Interval, calls *int) ComputeFunc {
	return func(Request) *future.Future[*data.FlowState] {
		*calls++
		return future.Resolved(data.NewFlowState(data.NewCollection(), validity))
	}
}

func TestCache_DeduplicatesConcurrentRequests(t *testing.T) {
	ds := NewDataset()
	c := NewCache(ds, "node")
	mc := &manualCompute{}

	const n = 16
	futures := make([]*future.Future[*data.FlowState], n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			futures[i] = c.Evaluate(At(0), mc.fn)
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), mc.calls.Load(), "exactly one computation")
	want := data.NewFlowState(data.NewCollection(positions(1)), anim.Infinite())
	mc.resolve(t, 0, want)

	for _, f := range futures {
		assert.Same(t, want, wait(t, f))
	}
	stats := c.Stats()
	assert.Equal(t, 1, stats.Misses)
	assert.Equal(t, n-1, stats.Shared)
}

func TestCache_DifferentTimesDoNotShare(t *testing.T) {
	c := NewCache(NewDataset(), "node")
	mc := &manualCompute{}

	c.Evaluate(At(0), mc.fn)
	c.Evaluate(At(1), mc.fn)
	c.Evaluate(Request{Time: 0, BreakOnError: true}, mc.fn)

	assert.Equal(t, int32(3), mc.calls.Load())
	assert.Equal(t, 3, c.InFlight())
}

func TestCache_HitReturnsSameState(t *testing.T) {
	c := NewCache(NewDataset(), "node")
	calls := 0
	compute := resolvedCompute(anim.Infinite(), &calls)

	first := wait(t, c.Evaluate(At(0), compute))
	second := wait(t, c.Evaluate(At(100), compute))

	assert.Same(t, first, second)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, c.Stats().Hits)
}

func TestCache_InvalidateKeepsOnlyKeepInterval(t *testing.T) {
	c := NewCache(NewDataset(), "node")
	calls := 0
	compute := resolvedCompute(anim.Span(0, 100), &calls)

	wait(t, c.Evaluate(At(10), compute))
	require.Equal(t, 1, calls)

	c.Invalidate(anim.Span(0, 20))
	assert.Equal(t, anim.Span(0, 20), c.Validity())

	wait(t, c.Evaluate(At(10), compute))
	assert.Equal(t, 1, calls, "time inside keep is still cached")

	wait(t, c.Evaluate(At(50), compute))
	assert.Equal(t, 2, calls, "time outside keep recomputes")
}

func TestCache_FullInvalidationClears(t *testing.T) {
	c := NewCache(NewDataset(), "node")
	calls := 0
	compute := resolvedCompute(anim.Infinite(), &calls)

	wait(t, c.Evaluate(At(0), compute))
	c.Invalidate(anim.Empty())
	assert.True(t, c.Validity().IsEmpty())

	wait(t, c.Evaluate(At(0), compute))
	assert.Equal(t, 2, calls)
	assert.NotNil(t, c.Preliminary(), "preliminary survives invalidation")
}

func TestCache_InvalidationDuringEvaluationClipsValidity(t *testing.T) {
	c := NewCache(NewDataset(), "node")
	mc := &manualCompute{}

	f := c.Evaluate(At(5), mc.fn)
	c.Invalidate(anim.Span(0, 10))

	computed := data.NewFlowState(data.NewCollection(), anim.Span(-100, 100))
	mc.resolve(t, 0, computed)

	assert.Same(t, computed, wait(t, f))
	assert.Equal(t, anim.Span(0, 10), c.Validity(), "never wider than keep")
}

func TestCache_RestrictionIntersectsComputedValidity(t *testing.T) {
	c := NewCache(NewDataset(), "node")
	mc := &manualCompute{}

	c.Evaluate(At(5), mc.fn)
	c.RestrictValidityOfNextInsertedState(anim.Span(0, 50))
	mc.resolve(t, 0, data.NewFlowState(data.NewCollection(), anim.Span(3, 8)))

	assert.Equal(t, anim.Span(3, 8), c.Validity())
}

func TestCache_RestrictionDoesNotOutliveEvaluation(t *testing.T) {
	c := NewCache(NewDataset(), "node")
	mc := &manualCompute{}

	c.Evaluate(At(5), mc.fn)
	c.RestrictValidityOfNextInsertedState(anim.Span(0, 10))
	mc.resolve(t, 0, data.NewFlowState(data.NewCollection(), anim.Infinite()))
	c.Invalidate(anim.Empty())

	c.Evaluate(At(5), mc.fn)
	mc.resolve(t, 1, data.NewFlowState(data.NewCollection(), anim.Infinite()))
	assert.True(t, c.Validity().IsInfinite())
}

func TestCache_InvalidationDropsEvaluationOutsideKeep(t *testing.T) {
	c := NewCache(NewDataset(), "node")
	mc := &manualCompute{}

	stale := c.Evaluate(At(50), mc.fn)
	c.Invalidate(anim.Span(0, 10))
	assert.Equal(t, 0, c.InFlight())

	fresh := c.Evaluate(At(50), mc.fn)
	require.Equal(t, int32(2), mc.calls.Load(), "dropped evaluation is not reused")

	newer := data.NewFlowState(data.NewCollection(), anim.Span(40, 60))
	mc.resolve(t, 1, newer)
	older := data.NewFlowState(data.NewCollection(), anim.Infinite())
	mc.resolve(t, 0, older)

	assert.Same(t, older, wait(t, stale), "waiters still get their result")
	assert.Same(t, newer, wait(t, fresh))
	assert.Equal(t, anim.Span(40, 60), c.Validity())
	assert.Equal(t, 1, c.Stats().Discarded)
}

func TestCache_OlderResultDoesNotOverwriteNewer(t *testing.T) {
	c := NewCache(NewDataset(), "node")
	mc := &manualCompute{}

	c.Evaluate(At(5), mc.fn)
	c.Evaluate(At(6), mc.fn)

	newer := data.NewFlowState(data.NewCollection(), anim.Span(0, 10))
	mc.resolve(t, 1, newer)
	mc.resolve(t, 0, data.NewFlowState(data.NewCollection(), anim.Infinite()))

	st, ok := c.Lookup(5)
	require.True(t, ok)
	assert.Same(t, newer, st)
	assert.Equal(t, anim.Span(0, 10), c.Validity())
}

func TestCache_OlderResultForUncoveredTimeCommits(t *testing.T) {
	c := NewCache(NewDataset(), "node")
	mc := &manualCompute{}

	c.Evaluate(At(5), mc.fn)
	c.Evaluate(At(50), mc.fn)

	mc.resolve(t, 1, data.NewFlowState(data.NewCollection(), anim.Span(40, 60)))
	mc.resolve(t, 0, data.NewFlowState(data.NewCollection(), anim.Span(0, 10)))

	assert.Equal(t, anim.Span(0, 10), c.Validity())
	assert.Equal(t, 2, c.Stats().Committed)
}

func TestCache_CancelledEvaluationIsNotStored(t *testing.T) {
	c := NewCache(NewDataset(), "node")
	mc := &manualCompute{}

	a := c.Evaluate(At(0), mc.fn)
	b := c.Evaluate(At(0), mc.fn)
	a.Cancel()
	assert.Equal(t, 1, c.InFlight(), "one holder is still interested")

	b.Cancel()
	assert.Equal(t, 0, c.InFlight())
	assert.True(t, mc.promises[0].IsCanceled(), "cancellation reaches the computation")

	mc.resolve(t, 0, data.NewFlowState(data.NewCollection(), anim.Infinite()))
	assert.True(t, c.Validity().IsEmpty())

	c.Evaluate(At(0), mc.fn)
	assert.Equal(t, int32(2), mc.calls.Load())
}

func TestCache_FailurePropagates(t *testing.T) {
	c := NewCache(NewDataset(), "node")
	boom := errors.New("boom")

	f := c.Evaluate(At(0), func(Request) *future.Future[*data.FlowState] {
		return future.Failed[*data.FlowState](boom)
	})
	_, err := f.Result()
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, c.Stats().Failed)
	assert.True(t, c.Validity().IsEmpty())
}

func TestCache_RevisionStampsDetectInPlaceMutation(t *testing.T) {
	c := NewCache(NewDataset(), "node")
	p := positions(1, 2, 3)
	calls := 0
	compute := func(Request) *future.Future[*data.FlowState] {
		calls++
		return future.Resolved(data.NewFlowState(data.NewCollection(p), anim.Infinite()))
	}

	wait(t, c.Evaluate(At(0), compute))
	wait(t, c.Evaluate(At(0), compute))
	require.Equal(t, 1, calls)

	before := p.Revision()
	require.NoError(t, p.SetValues([]float64{4, 5, 6}))
	assert.Equal(t, before+1, p.Revision())

	wait(t, c.Evaluate(At(0), compute))
	assert.Equal(t, 2, calls, "stale entry recomputed without notification")
	assert.Equal(t, 1, c.Stats().Stale)
}

func TestCache_FreshnessCondition(t *testing.T) {
	fresh := true
	c := NewCache(NewDataset(), "node", WithFreshness(func(anim.TimePoint) bool { return fresh }))
	calls := 0
	compute := resolvedCompute(anim.Infinite(), &calls)

	wait(t, c.Evaluate(At(0), compute))
	wait(t, c.Evaluate(At(0), compute))
	assert.Equal(t, 1, calls)

	fresh = false
	wait(t, c.Evaluate(At(0), compute))
	assert.Equal(t, 2, calls)
}

func TestCache_CommitsOnCoordinator(t *testing.T) {
	coord := engine.NewCoordinator()
	ds := NewDataset(WithCoordinator(coord))
	c := NewCache(ds, "node")
	calls := 0

	f := c.Evaluate(At(0), resolvedCompute(anim.Infinite(), &calls))
	assert.False(t, f.IsDone(), "result waits for the coordinator")
	assert.True(t, c.Validity().IsEmpty())

	assert.Equal(t, 1, coord.RunPending())
	assert.True(t, f.IsDone())
	assert.True(t, c.Validity().IsInfinite())
}

func TestCache_JournalAndMetrics(t *testing.T) {
	j := &recordingJournal{}
	reg := prometheus.NewRegistry()
	m, err := engine.NewMetrics(reg)
	require.NoError(t, err)
	ds := NewDataset(WithJournal(j), WithMetrics(m))
	c := NewCache(ds, "node")
	calls := 0
	compute := resolvedCompute(anim.Infinite(), &calls)

	wait(t, c.Evaluate(At(0), compute))
	wait(t, c.Evaluate(At(0), compute))
	c.Invalidate(anim.Empty())

	assert.Equal(t, []string{EventStarted, EventCommitted, EventHit, EventInvalidated}, j.kinds("node"))
	for _, ev := range j.events {
		if ev.Kind == EventCommitted {
			assert.NotEmpty(t, ev.Digest)
			assert.True(t, ev.Validity.IsInfinite())
		}
	}

	series, err := promtest.GatherAndCount(reg, "flowstate_cache_hits_total", "flowstate_results_committed_total")
	require.NoError(t, err)
	assert.Equal(t, 2, series)
}
