package compiler

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"

	"github.com/roach88/flowstate/internal/data"
	"github.com/roach88/flowstate/internal/ir"
)

// Validation error codes (E200-E299)
const (
	// Pipeline errors (E201-E209)
	ErrPipelineNameEmpty   = "E201" // name is required
	ErrSourceEmpty         = "E202" // source declares nothing
	ErrSourceAmbiguous     = "E203" // upstream pipeline combined with inline data
	ErrInvalidObjectKind   = "E204" // object kind is not property or cell
	ErrInvalidPropertyData = "E205" // values do not divide into components
	ErrInvalidCell         = "E206" // cell matrix or pbc malformed
	ErrDuplicateName       = "E207" // duplicate object or pipeline name
	ErrNonFiniteValue      = "E208" // NaN or infinity in data
	ErrInvalidAnimation    = "E209" // animation interval or frame rate invalid

	// Modifier errors (E210-E219)
	ErrModifierTypeEmpty   = "E210" // type is required
	ErrUnknownModifierType = "E211" // type not registered

	// Graph errors (E220-E229)
	ErrUnknownUpstream = "E220" // source.pipeline names no pipeline
	ErrPipelineCycle   = "E221" // pipelines feed each other
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate validates a compiled pipeline definition.
// Returns all errors found (does not fail-fast). When modifierTypes is
// non-nil, modifier types outside it are reported.
func Validate(spec *ir.PipelineSpec, modifierTypes []string) []ValidationError {
	var errs []ValidationError

	// E201: name is required
	if strings.TrimSpace(spec.Name) == "" {
		errs = append(errs, ValidationError{
			Field:   "name",
			Message: "pipeline name is required",
			Code:    ErrPipelineNameEmpty,
		})
	}

	errs = append(errs, validateSource(spec.Source)...)

	for i, mod := range spec.Modifiers {
		field := fmt.Sprintf("modifiers[%d].type", i)
		switch {
		case strings.TrimSpace(mod.Type) == "":
			// E210
			errs = append(errs, ValidationError{
				Field:   field,
				Message: "modifier type is required",
				Code:    ErrModifierTypeEmpty,
			})
		case modifierTypes != nil && !slices.Contains(modifierTypes, mod.Type):
			// E211
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("unknown modifier type %q, must be one of %s", mod.Type, strings.Join(modifierTypes, ", ")),
				Code:    ErrUnknownModifierType,
			})
		}
	}

	// E209: animation interval
	a := spec.Animation
	if a.EndFrame < a.StartFrame {
		errs = append(errs, ValidationError{
			Field:   "animation.end_frame",
			Message: fmt.Sprintf("end frame %d is before start frame %d", a.EndFrame, a.StartFrame),
			Code:    ErrInvalidAnimation,
		})
	}
	if a.TicksPerFrame < 0 {
		errs = append(errs, ValidationError{
			Field:   "animation.ticks_per_frame",
			Message: "ticks per frame must be positive",
			Code:    ErrInvalidAnimation,
		})
	}

	return errs
}

// validateSource checks that a source names exactly one kind of input.
func validateSource(src ir.SourceSpec) []ValidationError {
	var errs []ValidationError

	inline := len(src.Objects) > 0 || len(src.Frames) > 0
	switch {
	case src.Pipeline == "" && !inline:
		// E202
		errs = append(errs, ValidationError{
			Field:   "source",
			Message: "source needs objects, frames or an upstream pipeline",
			Code:    ErrSourceEmpty,
		})
	case src.Pipeline != "" && inline:
		// E203
		errs = append(errs, ValidationError{
			Field:   "source.pipeline",
			Message: "an upstream pipeline cannot be combined with objects or frames",
			Code:    ErrSourceAmbiguous,
		})
	case len(src.Objects) > 0 && len(src.Frames) > 0:
		// E203
		errs = append(errs, ValidationError{
			Field:   "source.frames",
			Message: "use either objects or frames, not both",
			Code:    ErrSourceAmbiguous,
		})
	}

	errs = append(errs, validateObjects("source.objects", src.Objects)...)
	errs = append(errs, validateAttributes("source.attributes", src.Attributes)...)
	for i, f := range src.Frames {
		errs = append(errs, validateObjects(fmt.Sprintf("source.frames[%d].objects", i), f.Objects)...)
		errs = append(errs, validateAttributes(fmt.Sprintf("source.frames[%d].attributes", i), f.Attributes)...)
	}
	return errs
}

func validateObjects(field string, objs []ir.ObjectSpec) []ValidationError {
	var errs []ValidationError
	names := make(map[string]bool)

	for i, obj := range objs {
		path := fmt.Sprintf("%s[%d]", field, i)
		name := obj.Name
		if obj.Kind == ir.KindCell && name == "" {
			name = data.CellIdentifier
		}

		// E207: object identifiers are unique within a collection
		if names[name] {
			errs = append(errs, ValidationError{
				Field:   path + ".name",
				Message: fmt.Sprintf("duplicate object name: %q", name),
				Code:    ErrDuplicateName,
			})
		}
		names[name] = true

		switch obj.Kind {
		case ir.KindProperty:
			if strings.TrimSpace(obj.Name) == "" {
				errs = append(errs, ValidationError{
					Field:   path + ".name",
					Message: "property name is required",
					Code:    ErrInvalidPropertyData,
				})
			}
			// E205
			comps := max(1, obj.Components)
			if len(obj.Values)%comps != 0 {
				errs = append(errs, ValidationError{
					Field:   path + ".values",
					Message: fmt.Sprintf("%d values do not divide into %d components", len(obj.Values), comps),
					Code:    ErrInvalidPropertyData,
				})
			}
			errs = append(errs, validateFinite(path+".values", obj.Values)...)
		case ir.KindCell:
			// E206
			if len(obj.Matrix) != 9 && len(obj.Matrix) != 12 {
				errs = append(errs, ValidationError{
					Field:   path + ".matrix",
					Message: fmt.Sprintf("cell matrix needs 9 or 12 values, got %d", len(obj.Matrix)),
					Code:    ErrInvalidCell,
				})
			}
			if len(obj.PBC) > 3 {
				errs = append(errs, ValidationError{
					Field:   path + ".pbc",
					Message: "at most 3 periodicity flags",
					Code:    ErrInvalidCell,
				})
			}
			errs = append(errs, validateFinite(path+".matrix", obj.Matrix)...)
		default:
			// E204
			errs = append(errs, ValidationError{
				Field:   path + ".kind",
				Message: fmt.Sprintf("invalid object kind %q, must be %q or %q", obj.Kind, ir.KindProperty, ir.KindCell),
				Code:    ErrInvalidObjectKind,
			})
		}
	}
	return errs
}

func validateAttributes(field string, attrs map[string]float64) []ValidationError {
	var errs []ValidationError
	for _, name := range slices.Sorted(maps.Keys(attrs)) {
		if v := attrs[name]; math.IsNaN(v) || math.IsInf(v, 0) {
			errs = append(errs, ValidationError{
				Field:   field + "." + name,
				Message: "attribute must be finite",
				Code:    ErrNonFiniteValue,
			})
		}
	}
	return errs
}

// validateFinite reports the first non-finite value only.
func validateFinite(field string, values []float64) []ValidationError {
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return []ValidationError{{
				Field:   fmt.Sprintf("%s[%d]", field, i),
				Message: "value must be finite",
				Code:    ErrNonFiniteValue,
			}}
		}
	}
	return nil
}

// ValidateSet validates pipelines that are assembled together: names are
// unique, every upstream reference resolves and no pipeline feeds itself.
func ValidateSet(specs []ir.PipelineSpec, modifierTypes []string) []ValidationError {
	var errs []ValidationError
	names := make(map[string]bool, len(specs))

	for i := range specs {
		spec := &specs[i]
		for _, e := range Validate(spec, modifierTypes) {
			e.Field = fmt.Sprintf("pipeline.%s.%s", spec.Name, e.Field)
			errs = append(errs, e)
		}
		// E207
		if names[spec.Name] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("pipeline.%s", spec.Name),
				Message: fmt.Sprintf("duplicate pipeline name: %q", spec.Name),
				Code:    ErrDuplicateName,
			})
		}
		names[spec.Name] = true
	}

	// E220: dangling upstream references
	for _, spec := range specs {
		if up := spec.Source.Pipeline; up != "" && !names[up] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("pipeline.%s.source.pipeline", spec.Name),
				Message: fmt.Sprintf("upstream pipeline %q is not defined", up),
				Code:    ErrUnknownUpstream,
			})
		}
	}

	// E221: cycles
	for _, c := range AnalyzeCycles(specs) {
		errs = append(errs, ValidationError{
			Field:   fmt.Sprintf("pipeline.%s.source.pipeline", c.Path[0]),
			Message: c.Message,
			Code:    ErrPipelineCycle,
		})
	}

	return errs
}
