package ecs

import (
	"iter"
	"slices"
	"strconv"
	"strings"

	"github.com/kamstrup/intmap"
	"github.com/kelindar/bitmap"
	"github.com/rotisserie/eris"
)

// Archetype holds every entity that has exactly one particular set of component ids. Each id has
// one column, and row i of every column belongs to the same entity.
type Archetype struct {
	id       uint32
	key      string
	mask     bitmap.Bitmap
	ids      []DynamicId
	columns  []column
	index    *intmap.Map[DynamicId, int]
	entities []Entity
	free     []int
	count    int
}

func newArchetype(id uint32, ids []DynamicId, registry *Registry) (*Archetype, error) {
	a := &Archetype{
		id:      id,
		key:     archetypeKey(ids),
		ids:     ids,
		columns: make([]column, len(ids)),
		index:   intmap.New[DynamicId, int](len(ids)),
	}
	for i, cid := range ids {
		col, err := registry.newColumn(cid)
		if err != nil {
			return nil, err
		}
		a.columns[i] = col
		a.index.Put(cid, i)
		a.mask.Set(uint32(cid))
	}
	return a, nil
}

// archetypeKey canonicalizes a sorted id set.
func archetypeKey(ids []DynamicId) string {
	var sb strings.Builder
	for i, id := range ids {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatUint(uint64(id), 10))
	}
	return sb.String()
}

// ID returns the archetype's creation index within its world.
func (a *Archetype) ID() uint32 { return a.id }

// Components returns the archetype's component ids in ascending order.
func (a *Archetype) Components() []DynamicId { return slices.Clone(a.ids) }

// Len returns the number of live entities.
func (a *Archetype) Len() int { return a.count }

// Has reports whether the archetype stores id.
func (a *Archetype) Has(id DynamicId) bool {
	return a.mask.Contains(uint32(id))
}

func (a *Archetype) column(id DynamicId) column {
	i, ok := a.index.Get(id)
	if !ok {
		return nil
	}
	return a.columns[i]
}

// contains reports whether every id in set is stored here.
func (a *Archetype) contains(set bitmap.Bitmap) bool {
	intersect := set.Clone(nil)
	intersect.And(a.mask)
	return intersect.Count() == set.Count()
}

// disjoint reports whether no id in set is stored here.
func (a *Archetype) disjoint(set bitmap.Bitmap) bool {
	intersect := set.Clone(nil)
	intersect.And(a.mask)
	return intersect.Count() == 0
}

// insert stores e in a free row. values must hold exactly one value per component id.
func (a *Archetype) insert(e Entity, values map[DynamicId]any) (int, error) {
	assertThat(len(values) == len(a.ids), "archetype %s got %d values", a.key, len(values))

	var row int
	if n := len(a.free); n > 0 {
		row = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		row = len(a.entities)
		a.entities = append(a.entities, NoEntity)
	}

	for i, cid := range a.ids {
		if err := a.columns[i].Set(row, values[cid]); err != nil {
			for _, col := range a.columns[:i] {
				col.Delete(row)
			}
			a.free = append(a.free, row)
			return -1, err
		}
	}

	a.entities[row] = e
	a.count++
	return row, nil
}

// values copies out every component value of row, keyed by id.
func (a *Archetype) values(row int) map[DynamicId]any {
	out := make(map[DynamicId]any, len(a.ids)+1)
	for i, cid := range a.ids {
		out[cid] = a.columns[i].Value(row)
	}
	return out
}

func (a *Archetype) remove(row int) {
	if row < 0 || row >= len(a.entities) || a.entities[row] == NoEntity {
		return
	}
	for _, col := range a.columns {
		col.Delete(row)
	}
	a.entities[row] = NoEntity
	a.free = append(a.free, row)
	a.count--
}

func (a *Archetype) entityAt(row int) Entity {
	if row < 0 || row >= len(a.entities) {
		return NoEntity
	}
	return a.entities[row]
}

// rows yields every occupied row in ascending order.
func (a *Archetype) rows() iter.Seq2[int, Entity] {
	return func(yield func(int, Entity) bool) {
		for row, e := range a.entities {
			if e == NoEntity {
				continue
			}
			if !yield(row, e) {
				return
			}
		}
	}
}

// compact closes holes left by removals. It returns the old row of each new row.
func (a *Archetype) compact() []int {
	order := make([]int, 0, a.count)
	for row := range a.rows() {
		order = append(order, row)
	}
	if len(order) == len(a.entities) {
		return order
	}

	for _, col := range a.columns {
		col.Reorder(order)
	}
	entities := make([]Entity, len(order))
	for to, from := range order {
		entities[to] = a.entities[from]
	}
	a.entities = entities
	a.free = a.free[:0]
	return order
}

// names returns the component names in id order.
func (a *Archetype) names(r *Registry) []string {
	out := make([]string, len(a.ids))
	for i, id := range a.ids {
		out[i] = r.Name(id)
	}
	return out
}

func sortedIDs(ids []DynamicId) ([]DynamicId, error) {
	out := slices.Clone(ids)
	slices.Sort(out)
	for i := 1; i < len(out); i++ {
		if out[i] == out[i-1] {
			return nil, eris.Wrapf(ErrDuplicateComponent, "component id %d", out[i])
		}
	}
	return out, nil
}
