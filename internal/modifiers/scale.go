package modifiers

import (
	"context"
	"math"
	"sync"
	"sync/atomic"

	"github.com/roach88/flowstate/internal/data"
	"github.com/roach88/flowstate/internal/pipeline"
)

// pollEvery is how many values a kernel processes between cancellation checks.
const pollEvery = 4096

// Scale multiplies the values of one or more properties by a factor. Each
// property is handled by its own delegate, so properties missing from the
// input are skipped and the modifier only fails when none is present.
type Scale struct {
	*pipeline.MultiDelegatingModifier

	mu     sync.RWMutex
	factor float64
	runs   atomic.Int64
}

// NewScale creates a Scale over properties. Without properties it scales
// the particle positions.
func NewScale(factor float64, properties ...string) *Scale {
	if len(properties) == 0 {
		properties = []string{data.PositionProperty}
	}
	s := &Scale{factor: factor}
	delegates := make([]pipeline.Delegate, len(properties))
	for i, name := range properties {
		delegates[i] = &propertyScaler{scale: s, property: name}
	}
	s.MultiDelegatingModifier = pipeline.NewMultiDelegatingModifier("Scale", delegates...)
	return s
}

// Factor returns the current factor.
func (s *Scale) Factor() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.factor
}

// SetFactor changes the factor and invalidates every application.
func (s *Scale) SetFactor(f float64) {
	s.mu.Lock()
	changed := s.factor != f
	s.factor = f
	s.mu.Unlock()
	if changed {
		s.NotifyChanged()
	}
}

// Runs returns how many property kernels have completed.
func (s *Scale) Runs() int64 { return s.runs.Load() }

type propertyScaler struct {
	scale    *Scale
	property string
}

func (d *propertyScaler) Title() string { return d.property }

func (d *propertyScaler) IsApplicableTo(c *data.Collection) bool {
	if c == nil {
		return false
	}
	_, ok := c.Find(d.property).(*data.Property)
	return ok
}

func (d *propertyScaler) Apply(ctx context.Context, _ pipeline.Request, app *pipeline.ModifierApplication, st *data.FlowState) (data.Status, error) {
	p, err := data.ExpectProperty(st, d.property)
	if err != nil {
		return data.Status{}, err
	}
	factor := d.scale.Factor()
	if math.IsNaN(factor) || math.IsInf(factor, 0) {
		return data.Status{}, data.NewInvalidParameterError("factor", "factor must be finite, got %v", factor)
	}
	p = data.MakeMutable(st.Data(), p)
	p.Update(func(values []float64) {
		err = app.Dataset().ParallelFor(ctx, len(values), func(ctx context.Context, start, end int) error {
			for i := start; i < end; i++ {
				if (i-start)%pollEvery == pollEvery-1 && ctx.Err() != nil {
					return ctx.Err()
				}
				values[i] *= factor
			}
			return nil
		})
	})
	if err != nil {
		return data.Status{}, err
	}
	d.scale.runs.Add(1)
	return data.Status{}, nil
}
