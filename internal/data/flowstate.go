package data

import (
	"maps"
	"slices"

	"github.com/roach88/flowstate/internal/anim"
	"github.com/roach88/flowstate/internal/ir"
)

// FlowState is the snapshot produced by one pipeline evaluation step:
// a collection of data objects, the interval over which it is valid,
// a status and scalar attributes.
//
// A FlowState is mutable while a modifier builds it and read-only once it is
// handed to a cache or consumer. Mutations go through MakeMutable so that
// objects shared with other states are never modified.
type FlowState struct {
	data       *Collection
	validity   anim.Interval
	status     Status
	attributes map[string]float64
	lineage    []WeakRef
}

// NewFlowState creates a state around data, valid over validity.
// A nil collection produces an empty state.
func NewFlowState(data *Collection, validity anim.Interval) *FlowState {
	return &FlowState{data: data, validity: validity, attributes: map[string]float64{}}
}

// EmptyFlowState returns a state without data, valid for all time.
func EmptyFlowState() *FlowState {
	return NewFlowState(nil, anim.Infinite())
}

// IsEmpty reports whether the state carries no data collection.
func (fs *FlowState) IsEmpty() bool { return fs == nil || fs.data == nil }

// Data returns the underlying collection; nil for an empty state.
func (fs *FlowState) Data() *Collection { return fs.data }

// Objects returns the data objects in order.
func (fs *FlowState) Objects() []Object {
	if fs.IsEmpty() {
		return nil
	}
	return fs.data.Objects()
}

// Find returns the object with the given identifier, or nil.
func (fs *FlowState) Find(id string) Object {
	if fs.IsEmpty() {
		return nil
	}
	return fs.data.Find(id)
}

// AddObject adds obj, creating the collection if needed.
func (fs *FlowState) AddObject(obj Object) {
	if fs.data == nil {
		fs.data = NewCollection()
	}
	fs.data.Add(obj)
}

// RemoveObject removes obj from the state.
func (fs *FlowState) RemoveObject(obj Object) bool {
	if fs.data == nil {
		return false
	}
	return fs.data.Remove(obj)
}

// MakeMutable applies copy-on-write to obj within this state's collection.
func (fs *FlowState) MakeMutable(obj Object) Object {
	if fs.data == nil {
		return nil
	}
	return fs.data.MakeMutable(obj)
}

// Validity returns the interval over which the state is correct.
func (fs *FlowState) Validity() anim.Interval { return fs.validity }

// SetValidity replaces the validity interval.
func (fs *FlowState) SetValidity(iv anim.Interval) { fs.validity = iv }

// IntersectValidity narrows the validity interval.
func (fs *FlowState) IntersectValidity(iv anim.Interval) {
	fs.validity = fs.validity.Intersect(iv)
}

// Status returns the state's status.
func (fs *FlowState) Status() Status { return fs.status }

// SetStatus replaces the state's status.
func (fs *FlowState) SetStatus(s Status) { fs.status = s }

// Attribute returns a scalar attribute.
func (fs *FlowState) Attribute(name string) (float64, bool) {
	v, ok := fs.attributes[name]
	return v, ok
}

// Attributes returns a copy of the scalar attributes.
func (fs *FlowState) Attributes() map[string]float64 { return maps.Clone(fs.attributes) }

// SetAttribute sets a single scalar attribute.
func (fs *FlowState) SetAttribute(name string, value float64) {
	fs.attributes[name] = value
}

// UnionAttributes merges attrs into the state, overwriting existing names.
func (fs *FlowState) UnionAttributes(attrs map[string]float64) {
	maps.Copy(fs.attributes, attrs)
}

// Fork returns a new state for the next modifier step. The fork shares
// every object with fs, copies attributes, validity and status, and records
// references to fs's objects so that later mutations of them are detected.
func (fs *FlowState) Fork() *FlowState {
	out := &FlowState{
		validity:   fs.validity,
		status:     fs.status,
		attributes: maps.Clone(fs.attributes),
		lineage:    slices.Clone(fs.lineage),
	}
	if out.attributes == nil {
		out.attributes = map[string]float64{}
	}
	if fs.data != nil {
		out.data = fs.data.Clone()
		for _, obj := range fs.data.Objects() {
			out.lineage = append(out.lineage, Ref(obj))
		}
	}
	return out
}

// Stamps returns weak-versioned references to every object the state holds
// or was derived from. The state is stale once any of them has changed.
func (fs *FlowState) Stamps() []WeakRef {
	stamps := slices.Clone(fs.lineage)
	for _, obj := range fs.Objects() {
		stamps = append(stamps, Ref(obj))
	}
	return stamps
}

// Describe returns the canonical description of the state's content.
// Validity and lineage are not part of it.
func (fs *FlowState) Describe() ir.Object {
	objs := ir.Array{}
	for _, obj := range fs.Objects() {
		objs = append(objs, obj.Describe())
	}
	attrs := make(ir.Object, len(fs.attributes))
	for k, v := range fs.attributes {
		attrs[k] = ir.Float(v)
	}
	desc := ir.Object{
		"objects":    objs,
		"attributes": attrs,
		"status":     ir.String(fs.status.Type.String()),
	}
	if fs.status.Text != "" {
		desc["status_text"] = ir.String(fs.status.Text)
	}
	return desc
}

// Digest returns the content digest of the state.
func (fs *FlowState) Digest() (string, error) {
	return ir.StateDigest(fs.Describe())
}

// Get returns the first object of type T.
func Get[T Object](fs *FlowState) (T, bool) {
	for _, obj := range fs.Objects() {
		if t, ok := obj.(T); ok {
			return t, true
		}
	}
	var zero T
	return zero, false
}

// GetByID returns the object of type T with the given identifier.
func GetByID[T Object](fs *FlowState, id string) (T, bool) {
	t, ok := fs.Find(id).(T)
	return t, ok
}

// Expect returns the first object of type T or a missing input error
// naming what was expected.
func Expect[T Object](fs *FlowState, what string) (T, error) {
	if t, ok := Get[T](fs); ok {
		return t, nil
	}
	var zero T
	return zero, NewMissingInputError(what)
}

// ExpectProperty returns the named property or a missing input error.
func ExpectProperty(fs *FlowState, name string) (*Property, error) {
	if p, ok := GetByID[*Property](fs, name); ok {
		return p, nil
	}
	return nil, NewMissingInputError("property " + name)
}
