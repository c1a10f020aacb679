package ecs

import (
	"iter"

	"github.com/rotisserie/eris"
)

// DynamicQueryBuilder assembles a query from component ids at runtime. It selects exactly the
// entities a static query with the same access and filters would, in the same order.
type DynamicQueryBuilder struct {
	world    *World
	reads    []DynamicId
	writes   []DynamicId
	optional []DynamicId
	with     []DynamicId
	without  []DynamicId
	allowed  *AccessSet
}

// QueryDynamic starts a dynamic query over w.
func (w *World) QueryDynamic() *DynamicQueryBuilder {
	return &DynamicQueryBuilder{world: w}
}

// Read requests read access to ids.
func (b *DynamicQueryBuilder) Read(ids ...DynamicId) *DynamicQueryBuilder {
	b.reads = append(b.reads, ids...)
	return b
}

// Write requests write access to ids.
func (b *DynamicQueryBuilder) Write(ids ...DynamicId) *DynamicQueryBuilder {
	b.writes = append(b.writes, ids...)
	return b
}

// ReadID is Read for a single id.
func (b *DynamicQueryBuilder) ReadID(id DynamicId) *DynamicQueryBuilder { return b.Read(id) }

// WriteID is Write for a single id.
func (b *DynamicQueryBuilder) WriteID(id DynamicId) *DynamicQueryBuilder { return b.Write(id) }

// Optional marks already requested ids as optional: rows lacking them still match.
func (b *DynamicQueryBuilder) Optional(ids ...DynamicId) *DynamicQueryBuilder {
	b.optional = append(b.optional, ids...)
	return b
}

// With requires ids to be present without accessing them.
func (b *DynamicQueryBuilder) With(ids ...DynamicId) *DynamicQueryBuilder {
	b.with = append(b.with, ids...)
	return b
}

// Without requires ids to be absent.
func (b *DynamicQueryBuilder) Without(ids ...DynamicId) *DynamicQueryBuilder {
	b.without = append(b.without, ids...)
	return b
}

func (b *DynamicQueryBuilder) checkAllowed() error {
	if b.allowed == nil {
		return nil
	}
	for _, id := range b.reads {
		if !b.allowed.AllowsComponent(id, Read) {
			return eris.Wrapf(ErrUndeclaredAccess, "read of %s", b.world.registry.Name(id))
		}
	}
	for _, id := range b.writes {
		if !b.allowed.AllowsComponent(id, Write) {
			return eris.Wrapf(ErrUndeclaredAccess, "write of %s", b.world.registry.Name(id))
		}
	}
	return nil
}

// Build validates the request, selects the matching entities and acquires their guards. A
// conflicting holder makes Build panic with a *BorrowError.
func (b *DynamicQueryBuilder) Build() (*DynamicQuery, error) {
	if err := b.checkAllowed(); err != nil {
		return nil, err
	}
	spec, err := newQuerySpec(b.world.registry, b.reads, b.writes, b.optional, b.with, b.without)
	if err != nil {
		return nil, err
	}
	q := &DynamicQuery{
		world:   b.world,
		spec:    spec,
		borrows: borrowSet{tracker: b.world.borrows},
	}
	q.Execute()
	return q, nil
}

// DynamicQuery is the result of DynamicQueryBuilder.Build.
type DynamicQuery struct {
	world    *World
	spec     *querySpec
	cache    archetypeCache
	borrows  borrowSet
	rows     []DynamicRow
	position map[Entity]int
	executed bool
}

// DynamicRow is one selected entity. Get only exposes the ids the query declared.
type DynamicRow struct {
	Entity    Entity
	archetype *Archetype
	row       int
	query     *DynamicQuery
}

// Execute re-selects rows, releasing previously held guards first.
func (q *DynamicQuery) Execute() {
	q.Release()
	err := q.world.selectRows(q.spec, &q.cache, &q.borrows, func(a *Archetype, row int, e Entity) {
		q.position[e] = len(q.rows)
		q.rows = append(q.rows, DynamicRow{Entity: e, archetype: a, row: row, query: q})
	})
	if err != nil {
		q.rows = q.rows[:0]
		clear(q.position)
		panic(err)
	}
	q.executed = true
}

// Release drops every guard held by the query.
func (q *DynamicQuery) Release() {
	q.borrows.release()
	q.rows = q.rows[:0]
	if q.position == nil {
		q.position = make(map[Entity]int)
	}
	clear(q.position)
	q.executed = false
}

// Access returns the components the query reads and writes.
func (q *DynamicQuery) Access() AccessSet { return q.spec.access() }

// Iter yields the selected rows.
func (q *DynamicQuery) Iter() iter.Seq[DynamicRow] {
	if !q.executed {
		panic("DynamicQuery used after Release()")
	}
	return func(yield func(DynamicRow) bool) {
		for _, r := range q.rows {
			if !yield(r) {
				return
			}
		}
	}
}

// Get returns the row of a single entity.
func (q *DynamicQuery) Get(e Entity) (DynamicRow, error) {
	if i, ok := q.position[e]; ok && q.executed {
		return q.rows[i], nil
	}
	return DynamicRow{}, q.world.missingError(e)
}

// Len returns the number of selected rows.
func (q *DynamicQuery) Len() int { return len(q.rows) }

// Entities returns the selected entities in iteration order.
func (q *DynamicQuery) Entities() []Entity {
	out := make([]Entity, len(q.rows))
	for i, r := range q.rows {
		out[i] = r.Entity
	}
	return out
}

func (q *DynamicQuery) declared(id DynamicId) (Access, bool) {
	for _, w := range q.spec.writes {
		if w == id {
			return Write, true
		}
	}
	for _, r := range q.spec.reads {
		if r == id {
			return Read, true
		}
	}
	return Read, false
}

// Get returns a pointer to the component id of the row: *T for compiled types and *any for
// script-declared ids. It reports false for ids the query did not declare or the row lacks.
// Values behind read-only ids must not be modified.
func (r DynamicRow) Get(id DynamicId) (any, bool) {
	if r.query == nil {
		return nil, false
	}
	if _, ok := r.query.declared(id); !ok {
		return nil, false
	}
	col := r.archetype.column(id)
	if col == nil {
		return nil, false
	}
	return col.Get(r.row), true
}

// Value returns a copy of the component id of the row.
func (r DynamicRow) Value(id DynamicId) (any, bool) {
	if r.query == nil {
		return nil, false
	}
	if _, ok := r.query.declared(id); !ok {
		return nil, false
	}
	col := r.archetype.column(id)
	if col == nil {
		return nil, false
	}
	return col.Value(r.row), true
}

// Set replaces the value of a write-declared component. value must have the column's type.
func (r DynamicRow) Set(id DynamicId, value any) error {
	if r.query == nil {
		return eris.Wrap(ErrComponentNotFound, "empty row")
	}
	if access, ok := r.query.declared(id); !ok || access != Write {
		return eris.Wrapf(ErrUndeclaredAccess, "write of %s", r.query.world.registry.Name(id))
	}
	col := r.archetype.column(id)
	if col == nil {
		return eris.Wrapf(ErrComponentNotFound, "entity %s has no %s", r.Entity, r.query.world.registry.Name(id))
	}
	return col.Set(r.row, value)
}

// Has reports whether the row's entity stores id.
func (r DynamicRow) Has(id DynamicId) bool {
	return r.archetype != nil && r.archetype.Has(id)
}

// Components returns every component id of the row's entity.
func (r DynamicRow) Components() []DynamicId {
	if r.archetype == nil {
		return nil
	}
	return r.archetype.Components()
}
