package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/flowstate/internal/ir"
)

// CompilePipeline parses a CUE value into a PipelineSpec.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the pipeline struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`pipeline: atoms: { source: {...}, modifiers: [...] }`)
//	spec, err := CompilePipeline(v.LookupPath(cue.ParsePath("pipeline.atoms")))
func CompilePipeline(v cue.Value) (*ir.PipelineSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.PipelineSpec{}

	// Pipeline name comes from the struct label
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		spec.Name = labels[len(labels)-1].String()
	}

	srcVal := v.LookupPath(cue.ParsePath("source"))
	if !srcVal.Exists() {
		return nil, &CompileError{
			Field:   "source",
			Message: "source is required",
			Pos:     v.Pos(),
		}
	}
	if err := srcVal.Decode(&spec.Source); err != nil {
		return nil, formatCUEError(err)
	}

	mods, err := parseModifiers(v)
	if err != nil {
		return nil, err
	}
	spec.Modifiers = mods

	if animVal := v.LookupPath(cue.ParsePath("animation")); animVal.Exists() {
		if err := animVal.Decode(&spec.Animation); err != nil {
			return nil, formatCUEError(err)
		}
	}

	return spec, nil
}

// parseModifiers parses the ordered modifier list. Missing list means no modifiers.
func parseModifiers(v cue.Value) ([]ir.ModifierSpec, error) {
	modsVal := v.LookupPath(cue.ParsePath("modifiers"))
	if !modsVal.Exists() {
		return nil, nil
	}
	iter, err := modsVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var mods []ir.ModifierSpec
	for i := 0; iter.Next(); i++ {
		mod, err := parseModifier(iter.Value(), i)
		if err != nil {
			return nil, err
		}
		mods = append(mods, mod)
	}
	return mods, nil
}

func parseModifier(v cue.Value, i int) (ir.ModifierSpec, error) {
	var mod ir.ModifierSpec

	typeVal := v.LookupPath(cue.ParsePath("type"))
	if !typeVal.Exists() {
		return mod, &CompileError{
			Field:   fmt.Sprintf("modifiers[%d].type", i),
			Message: "modifier type is required",
			Pos:     v.Pos(),
		}
	}
	typ, err := typeVal.String()
	if err != nil {
		return mod, formatCUEError(err)
	}
	mod.Type = typ

	if titleVal := v.LookupPath(cue.ParsePath("title")); titleVal.Exists() {
		if mod.Title, err = titleVal.String(); err != nil {
			return mod, formatCUEError(err)
		}
	}
	if disVal := v.LookupPath(cue.ParsePath("disabled")); disVal.Exists() {
		if mod.Disabled, err = disVal.Bool(); err != nil {
			return mod, formatCUEError(err)
		}
	}

	if paramsVal := v.LookupPath(cue.ParsePath("params")); paramsVal.Exists() {
		params, err := toIRValue(paramsVal)
		if err != nil {
			return mod, err
		}
		obj, ok := params.(ir.Object)
		if !ok {
			return mod, &CompileError{
				Field:   fmt.Sprintf("modifiers[%d].params", i),
				Message: "params must be a struct",
				Pos:     paramsVal.Pos(),
			}
		}
		mod.Params = obj
	}
	return mod, nil
}

// toIRValue converts a concrete CUE value to an IR value.
func toIRValue(v cue.Value) (ir.Value, error) {
	switch v.IncompleteKind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.String(s), nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Bool(b), nil
	case cue.IntKind:
		i, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Int(i), nil
	case cue.FloatKind, cue.NumberKind:
		f, err := v.Float64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Float(f), nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		arr := ir.Array{}
		for iter.Next() {
			elem, err := toIRValue(iter.Value())
			if err != nil {
				return nil, err
			}
			arr = append(arr, elem)
		}
		return arr, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		obj := ir.Object{}
		for iter.Next() {
			elem, err := toIRValue(iter.Value())
			if err != nil {
				return nil, err
			}
			obj[iter.Label()] = elem
		}
		return obj, nil
	default:
		return nil, &CompileError{
			Field:   "params",
			Message: fmt.Sprintf("unsupported value kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
