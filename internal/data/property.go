package data

import (
	"fmt"
	"slices"

	"github.com/roach88/flowstate/internal/ir"
)

// Standard property names.
const (
	PositionProperty = "Position"
	ColorProperty    = "Color"
)

// Property is a named array of float64 values with a fixed number of
// components per element.
type Property struct {
	ObjectBase
	components int
	values     []float64
}

// NewProperty creates a property. components <= 0 means 1.
func NewProperty(name string, components int, values []float64) *Property {
	if components <= 0 {
		components = 1
	}
	p := &Property{components: components, values: slices.Clone(values)}
	p.SetIdentifier(name)
	return p
}

// Name returns the property name.
func (p *Property) Name() string { return p.Identifier() }

// Components returns the number of components per element.
func (p *Property) Components() int { return p.components }

// Len returns the number of elements.
func (p *Property) Len() int { return len(p.values) / p.components }

// Values returns the raw values. The slice must not be modified; use
// SetValues or Update on a mutable property instead.
func (p *Property) Values() []float64 { return p.values }

// At returns component c of element i.
func (p *Property) At(i, c int) float64 { return p.values[i*p.components+c] }

// SetValues replaces the contents.
func (p *Property) SetValues(values []float64) error {
	if len(values)%p.components != 0 {
		return fmt.Errorf("property %s: %d values do not divide into %d components", p.Name(), len(values), p.components)
	}
	p.values = slices.Clone(values)
	p.Touch()
	return nil
}

// Update mutates the values in place through fn and counts as one mutation.
func (p *Property) Update(fn func(values []float64)) {
	fn(p.values)
	p.Touch()
}

// Clone returns a deep copy with the same name and revision.
func (p *Property) Clone() Object {
	c := &Property{components: p.components, values: slices.Clone(p.values)}
	c.InheritFrom(&p.ObjectBase)
	return c
}

// Describe returns the canonical description of the property.
func (p *Property) Describe() ir.Object {
	return ir.Object{
		"kind":       ir.String(ir.KindProperty),
		"name":       ir.String(p.Name()),
		"components": ir.Int(p.components),
		"values":     ir.Floats(p.values),
	}
}
