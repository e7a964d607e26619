package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/flowstate/internal/anim"
	"github.com/roach88/flowstate/internal/data"
	"github.com/roach88/flowstate/internal/future"
)

// scaleModifier multiplies every float property by factor.
type scaleModifier struct {
	ModifierBase
	factor float64
	runs   atomic.Int32
}

func newScale(factor float64) *scaleModifier {
	m := &scaleModifier{factor: factor}
	m.SetTitle("scale")
	return m
}

func (m *scaleModifier) EvaluateSynchronous(_ anim.TimePoint, _ *ModifierApplication, st *data.FlowState) error {
	m.runs.Add(1)
	for _, obj := range st.Objects() {
		p, ok := obj.(*data.Property)
		if !ok {
			continue
		}
		p = data.MakeMutable(st.Data(), p)
		p.Update(func(v []float64) {
			for i := range v {
				v[i] *= m.factor
			}
		})
	}
	return nil
}

func (m *scaleModifier) Evaluate(req Request, app *ModifierApplication, st *data.FlowState) *future.Future[*data.FlowState] {
	return EvaluateSynchronously(m, req, app, st)
}

// gateModifier hands each evaluation to the test, which resolves it.
type gateModifier struct {
	ModifierBase
	validity anim.Interval

	mu      sync.Mutex
	pending []*gateCall
}

type gateCall struct {
	time    anim.TimePoint
	state   *data.FlowState
	promise *future.Promise[*data.FlowState]
}

func newGate(validity anim.Interval) *gateModifier {
	m := &gateModifier{validity: validity}
	m.SetTitle("gate")
	return m
}

func (m *gateModifier) ValidityInterval(Request, *ModifierApplication) anim.Interval {
	return m.validity
}

func (m *gateModifier) Evaluate(req Request, _ *ModifierApplication, st *data.FlowState) *future.Future[*data.FlowState] {
	p := future.NewPromise[*data.FlowState]()
	m.mu.Lock()
	m.pending = append(m.pending, &gateCall{time: req.Time, state: st, promise: p})
	m.mu.Unlock()
	return p.Future()
}

func (m *gateModifier) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// release resolves the i-th evaluation with its input state.
func (m *gateModifier) release(t *testing.T, i int) *data.FlowState {
	t.Helper()
	m.mu.Lock()
	require.Less(t, i, len(m.pending))
	call := m.pending[i]
	m.mu.Unlock()
	call.promise.SetResult(call.state)
	return call.state
}

// cellModifier needs a simulation cell.
type cellModifier struct {
	ModifierBase
}

func newCellModifier() *cellModifier {
	m := &cellModifier{}
	m.SetTitle("needs cell")
	return m
}

func (m *cellModifier) EvaluateSynchronous(_ anim.TimePoint, _ *ModifierApplication, st *data.FlowState) error {
	_, err := data.Expect[*data.SimulationCell](st, data.CellIdentifier)
	return err
}

func (m *cellModifier) Evaluate(req Request, app *ModifierApplication, st *data.FlowState) *future.Future[*data.FlowState] {
	return EvaluateSynchronously(m, req, app, st)
}

// failingModifier fails with a programming error.
type failingModifier struct {
	ModifierBase
}

func (m *failingModifier) Evaluate(Request, *ModifierApplication, *data.FlowState) *future.Future[*data.FlowState] {
	return future.Failed[*data.FlowState](NewCycleError("failing", "failing"))
}

func positions(values ...float64) *data.Property {
	return data.NewProperty(data.PositionProperty, 1, values)
}

func valuesOf(t *testing.T, st *data.FlowState) []float64 {
	t.Helper()
	p, err := data.ExpectProperty(st, data.PositionProperty)
	require.NoError(t, err)
	return p.Values()
}

func wait(t *testing.T, f *future.Future[*data.FlowState]) *data.FlowState {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := f.Wait(ctx)
	require.NoError(t, err)
	return st
}

// chain builds source -> modifiers and returns the pipeline.
func chain(t *testing.T, ds *Dataset, src Node, mods ...Modifier) *Pipeline {
	t.Helper()
	p := NewPipeline(ds, "test", src)
	for _, m := range mods {
		_, err := p.InsertModifier(m)
		require.NoError(t, err)
	}
	return p
}

type recordingJournal struct {
	mu     sync.Mutex
	events []JournalEvent
}

func (j *recordingJournal) Record(ev JournalEvent) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, ev)
}

func (j *recordingJournal) kinds(node string) []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []string
	for _, ev := range j.events {
		if ev.Node == node {
			out = append(out, ev.Kind)
		}
	}
	return out
}
