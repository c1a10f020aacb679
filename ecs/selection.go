package ecs

import (
	"github.com/kelindar/bitmap"
	"github.com/rotisserie/eris"
)

// querySpec is the access and filter description shared by static and dynamic queries. An
// archetype matches when it stores every required id (the non-optional reads and writes plus the
// With filters) and none of the Without filters.
type querySpec struct {
	reads    []DynamicId
	writes   []DynamicId
	optional bitmap.Bitmap
	required bitmap.Bitmap
	excluded bitmap.Bitmap
}

func newQuerySpec(r *Registry, reads, writes, optional, with, without []DynamicId) (*querySpec, error) {
	s := &querySpec{}
	for _, id := range optional {
		s.optional.Set(uint32(id))
	}

	var readSet, writeSet bitmap.Bitmap
	for _, id := range writes {
		if writeSet.Contains(uint32(id)) {
			return nil, eris.Wrapf(ErrAccessOverlap, "component %s written twice", r.Name(id))
		}
		writeSet.Set(uint32(id))
		s.writes = append(s.writes, id)
	}
	for _, id := range reads {
		if writeSet.Contains(uint32(id)) {
			return nil, eris.Wrapf(ErrAccessOverlap, "component %s", r.Name(id))
		}
		if readSet.Contains(uint32(id)) {
			continue
		}
		readSet.Set(uint32(id))
		s.reads = append(s.reads, id)
	}

	for _, id := range append(append([]DynamicId{}, s.reads...), s.writes...) {
		if !s.optional.Contains(uint32(id)) {
			s.required.Set(uint32(id))
		}
	}
	for _, id := range with {
		s.required.Set(uint32(id))
	}
	for _, id := range without {
		s.excluded.Set(uint32(id))
	}
	return s, nil
}

func (s *querySpec) matches(a *Archetype) bool {
	return a.contains(s.required) && a.disjoint(s.excluded)
}

func (s *querySpec) access() AccessSet {
	var set AccessSet
	set.ReadComponent(s.reads...)
	set.WriteComponent(s.writes...)
	return set
}

// borrowRow takes a guard for every declared id the archetype stores.
func (s *querySpec) borrowRow(set *borrowSet, a *Archetype, e Entity) error {
	for _, id := range s.reads {
		if a.Has(id) {
			if err := set.acquire(e, id, Read); err != nil {
				return err
			}
		}
	}
	for _, id := range s.writes {
		if a.Has(id) {
			if err := set.acquire(e, id, Write); err != nil {
				return err
			}
		}
	}
	return nil
}

// archetypeCache remembers which archetypes matched. Archetypes are never removed, so only the
// ones created since the last refresh need to be checked.
type archetypeCache struct {
	matched []*Archetype
	seen    int
}

// selectRows visits every matching row in archetype creation order, then row order, acquiring the
// row's guards first. On a borrow conflict it releases everything acquired by set and returns the
// *BorrowError.
func (w *World) selectRows(spec *querySpec, cache *archetypeCache, set *borrowSet,
	visit func(a *Archetype, row int, e Entity),
) error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	for _, a := range w.archetypes[cache.seen:] {
		if spec.matches(a) {
			cache.matched = append(cache.matched, a)
		}
	}
	cache.seen = len(w.archetypes)

	for _, a := range cache.matched {
		for row, e := range a.rows() {
			if err := spec.borrowRow(set, a, e); err != nil {
				set.release()
				return err
			}
			visit(a, row, e)
		}
	}
	return nil
}

// missingError explains why e is absent from a query's results.
func (w *World) missingError(e Entity) error {
	if !w.Alive(e) {
		return eris.Wrapf(ErrEntityNotFound, "entity %s", e)
	}
	return eris.Wrapf(ErrComponentNotFound, "entity %s does not match query", e)
}
