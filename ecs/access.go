package ecs

import (
	"github.com/kelindar/bitmap"
)

// AccessSet is what a system declares it will touch. The scheduler uses it to decide which systems
// may run concurrently; two systems conflict when one writes an id the other reads or writes.
type AccessSet struct {
	Reads          bitmap.Bitmap
	Writes         bitmap.Bitmap
	ResourceReads  bitmap.Bitmap
	ResourceWrites bitmap.Bitmap
	// Exclusive systems never share a stage slot with any other system.
	Exclusive bool
}

// ReadComponent declares read access to component ids.
func (a *AccessSet) ReadComponent(ids ...DynamicId) *AccessSet {
	for _, id := range ids {
		a.Reads.Set(uint32(id))
	}
	return a
}

// WriteComponent declares write access to component ids.
func (a *AccessSet) WriteComponent(ids ...DynamicId) *AccessSet {
	for _, id := range ids {
		a.Writes.Set(uint32(id))
	}
	return a
}

// ReadResource declares read access to resource ids.
func (a *AccessSet) ReadResource(ids ...DynamicId) *AccessSet {
	for _, id := range ids {
		a.ResourceReads.Set(uint32(id))
	}
	return a
}

// WriteResource declares write access to resource ids.
func (a *AccessSet) WriteResource(ids ...DynamicId) *AccessSet {
	for _, id := range ids {
		a.ResourceWrites.Set(uint32(id))
	}
	return a
}

// Merge adds every declaration in other to a.
func (a *AccessSet) Merge(other AccessSet) {
	a.Reads.Or(other.Reads)
	a.Writes.Or(other.Writes)
	a.ResourceReads.Or(other.ResourceReads)
	a.ResourceWrites.Or(other.ResourceWrites)
	a.Exclusive = a.Exclusive || other.Exclusive
}

// Conflicts reports whether a and b cannot run at the same time.
func (a AccessSet) Conflicts(b AccessSet) bool {
	if a.Exclusive || b.Exclusive {
		return true
	}
	return intersects(a.Writes, b.Reads) || intersects(a.Writes, b.Writes) || intersects(b.Writes, a.Reads) ||
		intersects(a.ResourceWrites, b.ResourceReads) || intersects(a.ResourceWrites, b.ResourceWrites) ||
		intersects(b.ResourceWrites, a.ResourceReads)
}

// AllowsComponent reports whether access to id with the given intent was declared. Write access
// also covers reads.
func (a AccessSet) AllowsComponent(id DynamicId, access Access) bool {
	if a.Writes.Contains(uint32(id)) {
		return true
	}
	return access == Read && a.Reads.Contains(uint32(id))
}

// AllowsResource is AllowsComponent for resources.
func (a AccessSet) AllowsResource(id DynamicId, access Access) bool {
	if a.ResourceWrites.Contains(uint32(id)) {
		return true
	}
	return access == Read && a.ResourceReads.Contains(uint32(id))
}

func intersects(x, y bitmap.Bitmap) bool {
	if x.Count() == 0 || y.Count() == 0 {
		return false
	}
	intersect := x.Clone(nil)
	intersect.And(y)
	return intersect.Count() > 0
}
