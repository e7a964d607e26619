package modifiers

import (
	"github.com/roach88/flowstate/internal/anim"
	"github.com/roach88/flowstate/internal/data"
	"github.com/roach88/flowstate/internal/future"
	"github.com/roach88/flowstate/internal/pipeline"
)

// CountSuffix is appended to the property name to form the attribute name.
const CountSuffix = ".count"

// ComputeCount records the number of elements of a property as the
// attribute "<property>.count".
type ComputeCount struct {
	pipeline.ModifierBase
	property string
}

// NewComputeCount creates a modifier counting property.
func NewComputeCount(property string) *ComputeCount {
	c := &ComputeCount{property: property}
	c.SetTitle("Count " + property)
	return c
}

// Property returns the counted property name.
func (c *ComputeCount) Property() string { return c.property }

// Attribute returns the name of the attribute the count is stored in.
func (c *ComputeCount) Attribute() string { return c.property + CountSuffix }

func (c *ComputeCount) Evaluate(req pipeline.Request, app *pipeline.ModifierApplication, state *data.FlowState) *future.Future[*data.FlowState] {
	return pipeline.EvaluateSynchronously(c, req, app, state)
}

func (c *ComputeCount) EvaluateSynchronous(_ anim.TimePoint, _ *pipeline.ModifierApplication, state *data.FlowState) error {
	p, err := data.ExpectProperty(state, c.property)
	if err != nil {
		return err
	}
	state.UnionAttributes(map[string]float64{c.Attribute(): float64(p.Len())})
	return nil
}
