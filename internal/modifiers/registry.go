package modifiers

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/flowstate/internal/data"
	"github.com/roach88/flowstate/internal/ir"
	"github.com/roach88/flowstate/internal/pipeline"
)

// Built-in modifier type names.
const (
	TypeScale                = "scale"
	TypeAffineTransformation = "affine_transformation"
	TypeComputeCount         = "compute_count"
	TypeTimeRamp             = "time_ramp"
)

// ErrUnknownType is returned by Build for unregistered modifier types.
var ErrUnknownType = errors.New("unknown modifier type")

// Factory builds a modifier from its parameters.
type Factory func(params ir.Object) (pipeline.Modifier, error)

// titled is implemented by every modifier embedding pipeline.ModifierBase.
type titled interface {
	SetTitle(string)
	SetEnabled(bool)
}

// Registry maps modifier type names to factories.
//
// Thread-safety: Registry is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// DefaultRegistry returns a registry with the built-in modifiers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(TypeScale, newScale)
	r.MustRegister(TypeAffineTransformation, newAffineTransformation)
	r.MustRegister(TypeComputeCount, newComputeCount)
	r.MustRegister(TypeTimeRamp, newTimeRamp)
	return r
}

// Register adds a factory. Registering a name twice is an error.
func (r *Registry) Register(name string, f Factory) error {
	if name == "" || f == nil {
		return fmt.Errorf("register modifier %q: name and factory are required", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("register modifier %q: already registered", name)
	}
	r.factories[name] = f
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(name string, f Factory) {
	if err := r.Register(name, f); err != nil {
		panic(err)
	}
}

// Names returns the registered type names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// Build creates the modifier described by spec and applies its title and
// enabled flag.
func (r *Registry) Build(spec ir.ModifierSpec) (pipeline.Modifier, error) {
	r.mu.RLock()
	f, ok := r.factories[spec.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownType, spec.Type)
	}
	mod, err := f(spec.Params)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", spec.Type, err)
	}
	if t, ok := mod.(titled); ok {
		if spec.Title != "" {
			t.SetTitle(spec.Title)
		}
		if spec.Disabled {
			t.SetEnabled(false)
		}
	}
	return mod, nil
}

func newScale(params ir.Object) (pipeline.Modifier, error) {
	factor, err := floatParam(params, "factor", 1)
	if err != nil {
		return nil, err
	}
	props, err := stringsParam(params, "properties", nil)
	if err != nil {
		return nil, err
	}
	return NewScale(factor, props...), nil
}

func newAffineTransformation(params ir.Object) (pipeline.Modifier, error) {
	flat, err := floatsParam(params, "matrix")
	if err != nil {
		return nil, err
	}
	m, err := MatrixFromFlat(flat)
	if err != nil {
		return nil, err
	}
	cell, err := boolParam(params, "transform_cell", true)
	if err != nil {
		return nil, err
	}
	a := NewAffineTransformation(m)
	a.transformCell = cell
	return a, nil
}

func newComputeCount(params ir.Object) (pipeline.Modifier, error) {
	name, err := stringParam(params, "property", data.PositionProperty)
	if err != nil {
		return nil, err
	}
	return NewComputeCount(name), nil
}

func newTimeRamp(params ir.Object) (pipeline.Modifier, error) {
	name, err := stringParam(params, "property", data.PositionProperty)
	if err != nil {
		return nil, err
	}
	start, err := floatParam(params, "start", 1)
	if err != nil {
		return nil, err
	}
	rate, err := floatParam(params, "rate", 0)
	if err != nil {
		return nil, err
	}
	return NewTimeRamp(name, start, rate), nil
}
