package ecs

import (
	"iter"
	"reflect"
	"slices"
	"strings"
	"sync"
	"unsafe"

	"github.com/rotisserie/eris"
)

// queryLayout describes a query struct: one pointer field per component. Fields are read by
// default; `ecs:"write"` requests write access and `ecs:"optional"` leaves the field nil for
// entities that lack the component. Tags combine with commas, e.g. `ecs:"write,optional"`.
type queryLayout struct {
	ids      []DynamicId
	types    []reflect.Type
	access   []Access
	optional []bool
	offsets  []uintptr
}

var layoutCache sync.Map // map[layoutKey]*queryLayout

type layoutKey struct {
	registry *Registry
	typ      reflect.Type
}

func layoutOf[T any](r *Registry) (*queryLayout, error) {
	structType := reflect.TypeFor[T]()
	key := layoutKey{registry: r, typ: structType}
	if cached, ok := layoutCache.Load(key); ok {
		return cached.(*queryLayout), nil
	}

	if structType.Kind() != reflect.Struct {
		return nil, eris.Errorf("query type %s must be a struct of component pointers", structType)
	}

	l := &queryLayout{}
	for i := 0; i < structType.NumField(); i++ {
		field := structType.Field(i)
		if field.Type.Kind() != reflect.Pointer {
			return nil, eris.Errorf("query field %s.%s must be a pointer", structType, field.Name)
		}

		access, optional := Read, false
		if tag := field.Tag.Get("ecs"); tag != "" {
			for _, opt := range strings.Split(tag, ",") {
				switch strings.TrimSpace(opt) {
				case "read":
					access = Read
				case "write":
					access = Write
				case "optional":
					optional = true
				default:
					return nil, eris.Errorf("invalid ecs tag value %q on %s.%s", opt, structType, field.Name)
				}
			}
		}

		componentType := field.Type.Elem()
		l.ids = append(l.ids, r.GetStatic(componentType))
		l.types = append(l.types, componentType)
		l.access = append(l.access, access)
		l.optional = append(l.optional, optional)
		l.offsets = append(l.offsets, field.Offset)
	}

	layoutCache.Store(key, l)
	return l, nil
}

func (l *queryLayout) spec(r *Registry, filters []Filter) (*querySpec, error) {
	var reads, writes, optional, with, without []DynamicId
	for i, id := range l.ids {
		if l.access[i] == Write {
			writes = append(writes, id)
		} else {
			reads = append(reads, id)
		}
		if l.optional[i] {
			optional = append(optional, id)
		}
	}
	for _, f := range filters {
		id, include := f.filter(r)
		if include {
			with = append(with, id)
		} else {
			without = append(without, id)
		}
	}
	return newQuerySpec(r, reads, writes, optional, with, without)
}

// columns resolves the column of each field in a, nil where the archetype lacks it.
func (l *queryLayout) columns(a *Archetype) []column {
	cols := make([]column, len(l.ids))
	for i, id := range l.ids {
		col := a.column(id)
		if col != nil {
			assertThat(col.Type() == l.types[i], "column %d holds %s, query expects %s", id, col.Type(), l.types[i])
		}
		cols[i] = col
	}
	return cols
}

func (l *queryLayout) populate(result unsafe.Pointer, cols []column, row int) {
	for i, col := range cols {
		field := unsafe.Add(result, l.offsets[i])
		if col == nil {
			*(*unsafe.Pointer)(field) = nil
			continue
		}
		*(*unsafe.Pointer)(field) = col.Pointer(row)
	}
}

// Query iterates entities through a struct of component pointers, for example
//
//	type movement struct {
//		Pos *Position `ecs:"write"`
//		Vel *Velocity
//	}
//
// Execute selects the matching entities and takes a guard on every component slot it exposes;
// the guards are held until Release. Pointers handed out by Iter are valid only until Release.
type Query[T any] struct {
	world    *World
	layout   *queryLayout
	spec     *querySpec
	cache    archetypeCache
	borrows  borrowSet
	entities []Entity
	results  []T
	position map[Entity]int
	executed bool
}

// NewQuery creates a query over w and executes it.
func NewQuery[T any](w *World, filters ...Filter) (*Query[T], error) {
	q := &Query[T]{}
	if err := q.Init(w, filters...); err != nil {
		return nil, err
	}
	q.Execute()
	return q, nil
}

// Init binds the query to a world without selecting anything. Called by the Scheduler during
// system registration.
func (q *Query[T]) Init(w *World, filters ...Filter) error {
	layout, err := layoutOf[T](w.registry)
	if err != nil {
		return err
	}
	spec, err := layout.spec(w.registry, filters)
	if err != nil {
		return eris.Wrapf(err, "invalid query %s", reflect.TypeFor[T]())
	}

	q.Release()
	q.world = w
	q.layout = layout
	q.spec = spec
	q.cache = archetypeCache{}
	q.borrows = borrowSet{tracker: w.borrows}
	return nil
}

func (q *Query[T]) bind(w *World) error {
	return q.Init(w)
}

// Execute selects the matching entities and acquires their guards, releasing any guards held from
// a previous Execute first. It panics with a *BorrowError if another holder conflicts.
func (q *Query[T]) Execute() {
	assertThat(q.world != nil, "query %s used before Init", reflect.TypeFor[T]())
	q.Release()

	var (
		result    T
		cols      []column
		last      *Archetype
		resultPtr = unsafe.Pointer(&result)
	)
	err := q.world.selectRows(q.spec, &q.cache, &q.borrows, func(a *Archetype, row int, e Entity) {
		if a != last {
			cols = q.layout.columns(a)
			last = a
		}
		q.layout.populate(resultPtr, cols, row)
		q.position[e] = len(q.entities)
		q.entities = append(q.entities, e)
		q.results = append(q.results, result)
	})
	if err != nil {
		q.entities = q.entities[:0]
		q.results = q.results[:0]
		clear(q.position)
		panic(err)
	}
	q.executed = true
}

// Release drops every guard and forgets the selected rows.
func (q *Query[T]) Release() {
	q.borrows.release()
	q.entities = q.entities[:0]
	q.results = q.results[:0]
	if q.position == nil {
		q.position = make(map[Entity]int)
	}
	clear(q.position)
	q.executed = false
}

// Access returns the components the query reads and writes.
func (q *Query[T]) Access() AccessSet {
	if q.spec == nil {
		return AccessSet{}
	}
	return q.spec.access()
}

func (q *Query[T]) mustBeExecuted() {
	if !q.executed {
		panic("Query used before Execute() or after Release()")
	}
}

// Iter yields every selected entity with its populated query struct.
func (q *Query[T]) Iter() iter.Seq2[Entity, T] {
	q.mustBeExecuted()
	return func(yield func(Entity, T) bool) {
		for i := range q.entities {
			if !yield(q.entities[i], q.results[i]) {
				return
			}
		}
	}
}

// Values yields the query structs without their entities.
func (q *Query[T]) Values() iter.Seq[T] {
	q.mustBeExecuted()
	return func(yield func(T) bool) {
		for _, r := range q.results {
			if !yield(r) {
				return
			}
		}
	}
}

// Get returns the query struct of a single entity. It fails with ErrEntityNotFound for stale
// handles and ErrComponentNotFound for live entities the query does not match.
func (q *Query[T]) Get(e Entity) (T, error) {
	q.mustBeExecuted()
	if i, ok := q.position[e]; ok {
		return q.results[i], nil
	}
	var zero T
	return zero, q.world.missingError(e)
}

// Len returns the number of selected entities.
func (q *Query[T]) Len() int {
	return len(q.entities)
}

// Entities returns the selected entities in iteration order.
func (q *Query[T]) Entities() []Entity {
	return slices.Clone(q.entities)
}

// FilteredQuery is a Query whose With and Without filters come from the type F: either a single
// filter such as With[Player] or a struct whose fields are filters.
type FilteredQuery[T any, F any] struct {
	Query[T]
}

// NewFilteredQuery creates a filtered query over w and executes it.
func NewFilteredQuery[T any, F any](w *World) (*FilteredQuery[T, F], error) {
	q := &FilteredQuery[T, F]{}
	if err := q.bind(w); err != nil {
		return nil, err
	}
	q.Execute()
	return q, nil
}

func (q *FilteredQuery[T, F]) bind(w *World) error {
	filters, err := filtersOf[F]()
	if err != nil {
		return err
	}
	return q.Init(w, filters...)
}

// Filter narrows a query by the presence or absence of a component that is not accessed.
type Filter interface {
	filter(r *Registry) (id DynamicId, include bool)
}

// With matches only entities that have a T.
type With[T any] struct{}

func (With[T]) filter(r *Registry) (DynamicId, bool) { return IDOf[T](r), true }

// Without matches only entities that lack a T.
type Without[T any] struct{}

func (Without[T]) filter(r *Registry) (DynamicId, bool) { return IDOf[T](r), false }

var filterType = reflect.TypeFor[Filter]()

func filtersOf[F any]() ([]Filter, error) {
	var zero F
	if f, ok := any(zero).(Filter); ok {
		return []Filter{f}, nil
	}

	t := reflect.TypeFor[F]()
	if t.Kind() != reflect.Struct {
		return nil, eris.Errorf("filter type %s must be With, Without or a struct of them", t)
	}
	filters := make([]Filter, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.Type.Implements(filterType) {
			return nil, eris.Errorf("filter field %s.%s is not a filter", t, field.Name)
		}
		filters = append(filters, reflect.Zero(field.Type).Interface().(Filter))
	}
	return filters, nil
}
