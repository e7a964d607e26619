package data

import (
	"sync/atomic"
	"weak"

	"github.com/roach88/flowstate/internal/ir"
)

// Object is a versioned data object held by flow states.
//
// Every Object embeds ObjectBase, which carries the revision counter and the
// owner count used for copy-on-write. Implementations must call Touch exactly
// once per visible mutation.
type Object interface {
	Identifier() string
	Revision() uint64
	Clone() Object
	Describe() ir.Object
	objectBase() *ObjectBase
}

// ObjectBase carries identity, revision and ownership of a data object.
// Embed it by value; never copy an ObjectBase after first use.
type ObjectBase struct {
	id       string
	revision atomic.Uint64
	owners   atomic.Int32
}

// Identifier returns the object's name within a collection.
func (b *ObjectBase) Identifier() string { return b.id }

// SetIdentifier names the object. Call before the object is shared.
func (b *ObjectBase) SetIdentifier(id string) { b.id = id }

// Revision returns the current revision. It starts at 0.
func (b *ObjectBase) Revision() uint64 { return b.revision.Load() }

// Touch records one content mutation.
func (b *ObjectBase) Touch() { b.revision.Add(1) }

// Owners returns the number of collections currently holding the object.
func (b *ObjectBase) Owners() int { return int(b.owners.Load()) }

func (b *ObjectBase) objectBase() *ObjectBase { return b }

// InheritFrom copies identity and revision from the object being cloned.
// The clone starts without owners.
func (b *ObjectBase) InheritFrom(src *ObjectBase) {
	b.id = src.id
	b.revision.Store(src.revision.Load())
}

func acquire(obj Object) { obj.objectBase().owners.Add(1) }

func release(obj Object) { obj.objectBase().owners.Add(-1) }

// WeakRef remembers an object and the revision it had when the reference
// was taken. It never keeps the object alive.
type WeakRef struct {
	ptr      weak.Pointer[ObjectBase]
	revision uint64
}

// Ref takes a weak-versioned reference to obj at its current revision.
func Ref(obj Object) WeakRef {
	b := obj.objectBase()
	return WeakRef{ptr: weak.Make(b), revision: b.Revision()}
}

// Revision returns the remembered revision.
func (r WeakRef) Revision() uint64 { return r.revision }

// Expired reports whether the object has been garbage collected.
func (r WeakRef) Expired() bool { return r.ptr.Value() == nil }

// IsStale reports whether the remembered revision no longer matches the
// object, or the object is gone.
func (r WeakRef) IsStale() bool {
	b := r.ptr.Value()
	return b == nil || b.Revision() != r.revision
}

// Changed reports whether the object is still alive and has been mutated
// since the reference was taken. A collected object can no longer change.
func (r WeakRef) Changed() bool {
	b := r.ptr.Value()
	return b != nil && b.Revision() != r.revision
}

// Refers reports whether the reference points at obj.
func (r WeakRef) Refers(obj Object) bool {
	return r.ptr == weak.Make(obj.objectBase())
}
