package data

import (
	"runtime"
	"slices"
)

// Collection is an ordered set of data objects.
//
// A collection owns its objects: each object counts the collections holding
// it, and MakeMutable clones any object that has more than one owner. Owner
// counts are released when an object is removed or replaced, and when the
// collection itself is garbage collected.
type Collection struct {
	s *slots
}

type slots struct {
	objects []Object
}

// NewCollection creates a collection holding objs.
func NewCollection(objs ...Object) *Collection {
	c := &Collection{s: &slots{}}
	runtime.AddCleanup(c, releaseSlots, c.s)
	for _, obj := range objs {
		c.Add(obj)
	}
	return c
}

func releaseSlots(s *slots) {
	for _, obj := range s.objects {
		release(obj)
	}
}

// Len returns the number of objects.
func (c *Collection) Len() int { return len(c.s.objects) }

// Objects returns the objects in insertion order.
func (c *Collection) Objects() []Object { return slices.Clone(c.s.objects) }

// Add appends obj. Adding an object twice is a no-op.
func (c *Collection) Add(obj Object) {
	if c.Contains(obj) {
		return
	}
	acquire(obj)
	c.s.objects = append(c.s.objects, obj)
}

// Remove drops obj and reports whether it was present.
func (c *Collection) Remove(obj Object) bool {
	i := c.index(obj)
	if i < 0 {
		return false
	}
	c.s.objects = slices.Delete(c.s.objects, i, i+1)
	release(obj)
	return true
}

// Replace puts replacement in old's slot and reports whether old was present.
func (c *Collection) Replace(old, replacement Object) bool {
	i := c.index(old)
	if i < 0 {
		return false
	}
	if old == replacement {
		return true
	}
	acquire(replacement)
	c.s.objects[i] = replacement
	release(old)
	return true
}

// Contains reports whether obj (by identity) is in the collection.
func (c *Collection) Contains(obj Object) bool { return c.index(obj) >= 0 }

// Find returns the first object with the given identifier.
func (c *Collection) Find(id string) Object {
	for _, obj := range c.s.objects {
		if obj.Identifier() == id {
			return obj
		}
	}
	return nil
}

// Clone returns a shallow copy that shares every object.
func (c *Collection) Clone() *Collection {
	return NewCollection(c.s.objects...)
}

// MakeMutable returns an object that is safe to mutate through this
// collection. If the collection is the sole owner, obj itself is returned.
// Otherwise obj is cloned, the slot is re-pointed at the clone, and the
// clone is returned; other holders keep observing the original.
//
// It returns nil if obj is not part of the collection.
func (c *Collection) MakeMutable(obj Object) Object {
	i := c.index(obj)
	if i < 0 {
		return nil
	}
	if obj.objectBase().Owners() <= 1 {
		return obj
	}
	clone := obj.Clone()
	acquire(clone)
	c.s.objects[i] = clone
	release(obj)
	return clone
}

func (c *Collection) index(obj Object) int {
	for i, o := range c.s.objects {
		if o == obj {
			return i
		}
	}
	return -1
}

// MakeMutable is the typed form of Collection.MakeMutable.
func MakeMutable[T Object](c *Collection, obj T) T {
	m, _ := c.MakeMutable(obj).(T)
	return m
}
