package modifiers

import (
	"fmt"

	"github.com/roach88/flowstate/internal/data"
	"github.com/roach88/flowstate/internal/ir"
	"github.com/roach88/flowstate/internal/pipeline"
)

// ParamSetter is implemented by modifiers whose parameters can be changed
// by name after construction.
type ParamSetter interface {
	SetParam(name string, v ir.Value) error
}

// SetParam changes one parameter of mod. "enabled" and "title" are
// understood for every modifier embedding pipeline.ModifierBase; other
// names are passed to the modifier's ParamSetter.
func SetParam(mod pipeline.Modifier, name string, v ir.Value) error {
	params := ir.Object{name: v}
	if t, ok := mod.(titled); ok {
		switch name {
		case "enabled":
			on, err := boolParam(params, name, true)
			if err != nil {
				return err
			}
			t.SetEnabled(on)
			return nil
		case "title":
			title, err := stringParam(params, name, "")
			if err != nil {
				return err
			}
			t.SetTitle(title)
			return nil
		}
	}
	setter, ok := mod.(ParamSetter)
	if !ok {
		return fmt.Errorf("modifier %q has no settable parameters", mod.Title())
	}
	return setter.SetParam(name, v)
}

// SetParam implements ParamSetter. Understands "factor".
func (s *Scale) SetParam(name string, v ir.Value) error {
	if name != "factor" {
		return data.NewInvalidParameterError(name, "unknown parameter")
	}
	f, err := floatParam(ir.Object{name: v}, name, 0)
	if err != nil {
		return err
	}
	s.SetFactor(f)
	return nil
}

// SetParam implements ParamSetter. Understands "matrix" and "transform_cell".
func (a *AffineTransformation) SetParam(name string, v ir.Value) error {
	params := ir.Object{name: v}
	switch name {
	case "matrix":
		flat, err := floatsParam(params, name)
		if err != nil {
			return err
		}
		m, err := MatrixFromFlat(flat)
		if err != nil {
			return err
		}
		a.SetMatrix(m)
	case "transform_cell":
		on, err := boolParam(params, name, true)
		if err != nil {
			return err
		}
		a.SetTransformCell(on)
	default:
		return data.NewInvalidParameterError(name, "unknown parameter")
	}
	return nil
}

// SetParam implements ParamSetter. Understands "rate".
func (r *TimeRamp) SetParam(name string, v ir.Value) error {
	if name != "rate" {
		return data.NewInvalidParameterError(name, "unknown parameter")
	}
	rate, err := floatParam(ir.Object{name: v}, name, 0)
	if err != nil {
		return err
	}
	r.SetRate(rate)
	return nil
}
