package assembly

import (
	"fmt"

	"github.com/roach88/flowstate/internal/anim"
	"github.com/roach88/flowstate/internal/data"
	"github.com/roach88/flowstate/internal/ir"
)

// NewObject creates a data object from its definition.
func NewObject(spec ir.ObjectSpec) (data.Object, error) {
	switch spec.Kind {
	case ir.KindProperty:
		p := data.NewProperty(spec.Name, spec.Components, nil)
		if err := p.SetValues(spec.Values); err != nil {
			return nil, err
		}
		return p, nil
	case ir.KindCell:
		var pbc [3]bool
		copy(pbc[:], spec.PBC)
		return data.NewSimulationCell(data.CellFromFlat(spec.Matrix), pbc), nil
	default:
		return nil, fmt.Errorf("object %q: unknown kind %q", spec.Name, spec.Kind)
	}
}

// NewState creates a flow state holding fresh objects built from specs.
func NewState(specs []ir.ObjectSpec, attrs map[string]float64) (*data.FlowState, error) {
	objs := make([]data.Object, 0, len(specs))
	for _, s := range specs {
		obj, err := NewObject(s)
		if err != nil {
			return nil, err
		}
		objs = append(objs, obj)
	}
	st := data.NewFlowState(data.NewCollection(objs...), anim.Infinite())
	st.UnionAttributes(attrs)
	return st, nil
}
