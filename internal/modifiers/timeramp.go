package modifiers

import (
	"sync"

	"github.com/roach88/flowstate/internal/anim"
	"github.com/roach88/flowstate/internal/data"
	"github.com/roach88/flowstate/internal/future"
	"github.com/roach88/flowstate/internal/pipeline"
)

// TimeRamp multiplies a property by start + rate*seconds, where seconds is
// the animation time of the request. Its output is only valid at that instant.
type TimeRamp struct {
	pipeline.ModifierBase

	mu       sync.RWMutex
	property string
	start    float64
	rate     float64
}

// NewTimeRamp creates a ramp over property.
func NewTimeRamp(property string, start, rate float64) *TimeRamp {
	r := &TimeRamp{property: property, start: start, rate: rate}
	r.SetTitle("Time ramp")
	return r
}

// Factor returns the factor applied at t.
func (r *TimeRamp) Factor(t anim.TimePoint) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.start + r.rate*anim.TimeToSeconds(t)
}

// SetRate changes the slope of the ramp.
func (r *TimeRamp) SetRate(rate float64) {
	r.mu.Lock()
	r.rate = rate
	r.mu.Unlock()
	r.NotifyChanged()
}

// ValidityInterval restricts the output to the requested instant.
func (r *TimeRamp) ValidityInterval(req pipeline.Request, _ *pipeline.ModifierApplication) anim.Interval {
	return anim.Instant(req.Time)
}

// KeepInterval keeps the cached output unless the upstream change covers it.
// Every output depends only on the input at its own time.
func (r *TimeRamp) KeepInterval(changed, cached anim.Interval) anim.Interval {
	return cached.Without(changed)
}

func (r *TimeRamp) Evaluate(req pipeline.Request, app *pipeline.ModifierApplication, state *data.FlowState) *future.Future[*data.FlowState] {
	return pipeline.EvaluateSynchronously(r, req, app, state)
}

func (r *TimeRamp) EvaluateSynchronous(t anim.TimePoint, _ *pipeline.ModifierApplication, state *data.FlowState) error {
	r.mu.RLock()
	name := r.property
	r.mu.RUnlock()

	p, err := data.ExpectProperty(state, name)
	if err != nil {
		return err
	}
	factor := r.Factor(t)
	p = data.MakeMutable(state.Data(), p)
	p.Update(func(values []float64) {
		for i := range values {
			values[i] *= factor
		}
	})
	return nil
}
