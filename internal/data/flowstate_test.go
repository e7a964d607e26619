package data

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flowstate/internal/anim"
)

func TestCopyOnWriteAcrossFlowStates(t *testing.T) {
	p := NewProperty("Position", 1, []float64{1, 2, 3})
	first := NewFlowState(NewCollection(p), anim.Infinite())
	second := first.Fork()

	m := second.MakeMutable(p).(*Property)
	require.NoError(t, m.SetValues([]float64{9, 9, 9}))

	observed, ok := GetByID[*Property](first, "Position")
	require.True(t, ok)
	assert.Same(t, p, observed)
	assert.Equal(t, []float64{1, 2, 3}, observed.Values())
	assert.Equal(t, uint64(0), observed.Revision())

	mutated, _ := GetByID[*Property](second, "Position")
	assert.Equal(t, []float64{9, 9, 9}, mutated.Values())
}

func TestForkRecordsLineage(t *testing.T) {
	p := NewProperty("Position", 1, []float64{1})
	src := NewFlowState(NewCollection(p), anim.Infinite())

	out := src.Fork()
	out.RemoveObject(p)
	out.AddObject(NewProperty("Derived", 1, []float64{2}))

	stamps := out.Stamps()
	require.Len(t, stamps, 2, "lineage ref to the input plus own object")
	for _, s := range stamps {
		assert.False(t, s.Changed())
	}

	// Mutating the input in place is visible through the derived state's stamps.
	p.Touch()
	changed := 0
	for _, s := range out.Stamps() {
		if s.Changed() {
			changed++
		}
	}
	assert.Equal(t, 1, changed)
}

func TestEmptyFlowState(t *testing.T) {
	fs := EmptyFlowState()
	assert.True(t, fs.IsEmpty())
	assert.Nil(t, fs.Objects())
	assert.True(t, fs.Validity().IsInfinite())

	var nilState *FlowState
	assert.True(t, nilState.IsEmpty())

	fs.AddObject(NewProperty("x", 1, nil))
	assert.False(t, fs.IsEmpty())
}

func TestFlowStateBuilders(t *testing.T) {
	fs := NewFlowState(NewCollection(), anim.Span(0, 100))
	fs.IntersectValidity(anim.Span(50, 200))
	fs.UnionAttributes(map[string]float64{"a": 1})
	fs.SetAttribute("b", 2)
	fs.SetStatus(Warning("careful"))

	assert.Equal(t, anim.Span(50, 100), fs.Validity())
	assert.Equal(t, map[string]float64{"a": 1, "b": 2}, fs.Attributes())
	assert.Equal(t, StatusWarning, fs.Status().Type)

	fork := fs.Fork()
	fork.SetAttribute("a", 5)
	v, _ := fs.Attribute("a")
	assert.Equal(t, 1.0, v, "fork copies attributes")
}

func TestExpect(t *testing.T) {
	fs := NewFlowState(NewCollection(NewProperty("Position", 3, nil)), anim.Infinite())

	_, err := Expect[*SimulationCell](fs, "simulation cell")
	require.Error(t, err)
	assert.True(t, IsMissingInput(err))
	assert.Contains(t, err.Error(), "simulation cell")

	p, err := ExpectProperty(fs, "Position")
	require.NoError(t, err)
	assert.Equal(t, 3, p.Components())

	_, err = ExpectProperty(fs, "Color")
	assert.True(t, IsMissingInput(err))
}

func TestDigestIgnoresIdentity(t *testing.T) {
	a := NewFlowState(NewCollection(NewProperty("P", 1, []float64{1, 2})), anim.Infinite())
	b := NewFlowState(NewCollection(NewProperty("P", 1, []float64{1, 2})), anim.Instant(0))

	da, err := a.Digest()
	require.NoError(t, err)
	db, err := b.Digest()
	require.NoError(t, err)
	assert.Equal(t, da, db)

	b.SetStatus(Errorf("boom"))
	db2, _ := b.Digest()
	assert.NotEqual(t, da, db2)
}
