package ecs

import (
	"reflect"
	"slices"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// World owns every entity, archetype and resource, plus the borrow tracker and the scheduler that
// runs systems against it.
//
// Structural changes (spawn, despawn, add and remove component, compaction) are refused with
// ErrWorldLocked while any guard is outstanding. Systems queue them on their Commands buffer, which
// is applied once the stage's guards are released.
type World struct {
	mu         sync.RWMutex
	registry   *Registry
	borrows    *BorrowTracker
	entities   entityIndex
	archetypes []*Archetype
	byKey      map[string]*Archetype
	resources  map[DynamicId]*resourceEntry
	logger     zerolog.Logger
	scheduler  *Scheduler
}

// Dynamic carries a component value for an id that has no compiled Go type, typically one declared
// by a script. The value is stored as-is in a boxed column.
type Dynamic struct {
	ID    DynamicId
	Value any
}

// NewWorld creates an empty world.
func NewWorld(opts ...WorldOption) *World {
	cfg := newWorldConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.registry == nil {
		cfg.registry = NewRegistry()
	}

	w := &World{
		registry:  cfg.registry,
		byKey:     make(map[string]*Archetype),
		resources: make(map[DynamicId]*resourceEntry),
		logger:    cfg.logger,
	}
	w.borrows = NewBorrowTracker(w.registry.Name)
	w.scheduler = newScheduler(w, cfg)
	return w
}

// Registry returns the world's id registry.
func (w *World) Registry() *Registry { return w.registry }

// Borrows returns the world's borrow tracker.
func (w *World) Borrows() *BorrowTracker { return w.borrows }

// Scheduler returns the scheduler that runs the world's systems.
func (w *World) Scheduler() *Scheduler { return w.scheduler }

// Logger returns the world's logger.
func (w *World) Logger() *zerolog.Logger { return &w.logger }

// Len returns the number of live entities.
func (w *World) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.entities.live
}

// Alive reports whether e refers to a live entity.
func (w *World) Alive(e Entity) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.entities.alive(e)
}

// Archetypes returns the world's archetypes in creation order.
func (w *World) Archetypes() []*Archetype {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return slices.Clone(w.archetypes)
}

// lockStructure takes the write lock and refuses while guards are live. The caller must unlock.
func (w *World) lockStructure(op string) error {
	w.mu.Lock()
	if n := w.borrows.Outstanding(); n > 0 {
		w.mu.Unlock()
		return eris.Wrapf(ErrWorldLocked, "%s with %d borrows outstanding", op, n)
	}
	return nil
}

// componentValue resolves the id and storable value of a bundle element.
func (w *World) componentValue(c any) (DynamicId, any, error) {
	switch v := c.(type) {
	case nil:
		return InvalidId, nil, eris.Wrap(ErrInvalidComponent, "nil component")
	case Dynamic:
		if !w.registry.Known(v.ID) {
			return InvalidId, nil, eris.Wrapf(ErrComponentNotRegistered, "component id %d", v.ID)
		}
		return v.ID, v.Value, nil
	case *Dynamic:
		return w.componentValue(*v)
	}

	t := reflect.TypeOf(c)
	if t.Kind() == reflect.Pointer {
		if reflect.ValueOf(c).IsNil() {
			return InvalidId, nil, eris.Wrapf(ErrInvalidComponent, "nil %s", t)
		}
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Pointer, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return InvalidId, nil, eris.Wrapf(ErrInvalidComponent, "%s cannot be a component", t)
	}
	return w.registry.GetStatic(t), c, nil
}

func (w *World) bundle(components []any) ([]DynamicId, map[DynamicId]any, error) {
	ids := make([]DynamicId, 0, len(components))
	values := make(map[DynamicId]any, len(components))
	for _, c := range components {
		id, value, err := w.componentValue(c)
		if err != nil {
			return nil, nil, err
		}
		if _, dup := values[id]; dup {
			return nil, nil, eris.Wrapf(ErrDuplicateComponent, "component %s", w.registry.Name(id))
		}
		ids = append(ids, id)
		values[id] = value
	}
	sorted, err := sortedIDs(ids)
	if err != nil {
		return nil, nil, err
	}
	return sorted, values, nil
}

// archetypeFor returns the archetype for a sorted id set, creating it on first use. Called with
// the write lock held.
func (w *World) archetypeFor(ids []DynamicId) (*Archetype, error) {
	key := archetypeKey(ids)
	if a, ok := w.byKey[key]; ok {
		return a, nil
	}
	a, err := newArchetype(uint32(len(w.archetypes)), ids, w.registry)
	if err != nil {
		return nil, err
	}
	w.archetypes = append(w.archetypes, a)
	w.byKey[key] = a
	w.logger.Debug().
		Uint32("archetype", a.id).
		Strs("components", a.names(w.registry)).
		Msg("archetype created")
	return a, nil
}

// Spawn creates an entity holding the given components. Components may be values, pointers to
// values (stored by copy) or Dynamic values for script-declared ids.
func (w *World) Spawn(components ...any) (Entity, error) {
	if err := w.lockStructure("spawn"); err != nil {
		return NoEntity, err
	}
	defer w.mu.Unlock()

	ids, values, err := w.bundle(components)
	if err != nil {
		return NoEntity, eris.Wrap(err, "failed to spawn entity")
	}
	arch, err := w.archetypeFor(ids)
	if err != nil {
		return NoEntity, eris.Wrap(err, "failed to spawn entity")
	}

	e, err := w.entities.allocate()
	if err != nil {
		return NoEntity, err
	}
	row, err := arch.insert(e, values)
	if err != nil {
		w.entities.release(e)
		return NoEntity, eris.Wrap(err, "failed to spawn entity")
	}
	rec := &w.entities.records[e.Index()]
	rec.archetype = arch
	rec.row = row
	return e, nil
}

// Despawn removes e and all of its components. The slot is reused with a new generation.
func (w *World) Despawn(e Entity) error {
	if err := w.lockStructure("despawn"); err != nil {
		return err
	}
	defer w.mu.Unlock()

	rec, err := w.entities.lookup(e)
	if err != nil {
		return err
	}
	rec.archetype.remove(rec.row)
	w.entities.release(e)
	return nil
}

// AddComponent attaches a component to e, moving it to the archetype for its new component set.
// A component that is already present has its value replaced in place.
func (w *World) AddComponent(e Entity, component any) error {
	if err := w.lockStructure("add component"); err != nil {
		return err
	}
	defer w.mu.Unlock()

	rec, err := w.entities.lookup(e)
	if err != nil {
		return err
	}
	id, value, err := w.componentValue(component)
	if err != nil {
		return err
	}

	src := rec.archetype
	if col := src.column(id); col != nil {
		return col.Set(rec.row, value)
	}

	ids := append(slices.Clone(src.ids), id)
	slices.Sort(ids)
	values := src.values(rec.row)
	values[id] = value
	return w.move(e, rec, ids, values)
}

// RemoveComponent detaches component id from e. The entity stays alive even when its last
// component is removed.
func (w *World) RemoveComponent(e Entity, id DynamicId) error {
	if err := w.lockStructure("remove component"); err != nil {
		return err
	}
	defer w.mu.Unlock()

	rec, err := w.entities.lookup(e)
	if err != nil {
		return err
	}
	src := rec.archetype
	if !src.Has(id) {
		return eris.Wrapf(ErrComponentNotFound, "entity %s has no %s", e, w.registry.Name(id))
	}

	ids := slices.DeleteFunc(slices.Clone(src.ids), func(c DynamicId) bool { return c == id })
	values := src.values(rec.row)
	delete(values, id)
	return w.move(e, rec, ids, values)
}

// move relocates e into the archetype for ids. Called with the write lock held.
func (w *World) move(e Entity, rec *entityRecord, ids []DynamicId, values map[DynamicId]any) error {
	dst, err := w.archetypeFor(ids)
	if err != nil {
		return err
	}
	row, err := dst.insert(e, values)
	if err != nil {
		return err
	}
	rec.archetype.remove(rec.row)
	rec.archetype = dst
	rec.row = row
	return nil
}

// HasComponent reports whether e is alive and has component id.
func (w *World) HasComponent(e Entity, id DynamicId) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	rec, err := w.entities.lookup(e)
	return err == nil && rec.archetype.Has(id)
}

// Add attaches value to e. See World.AddComponent.
func Add[T any](w *World, e Entity, value T) error {
	RegisterComponent[T](w.registry)
	return w.AddComponent(e, value)
}

// Remove detaches the component of type T from e.
func Remove[T any](w *World, e Entity) error {
	return w.RemoveComponent(e, IDOf[T](w.registry))
}

// Has reports whether e is alive and has a component of type T.
func Has[T any](w *World, e Entity) bool {
	return w.HasComponent(e, IDOf[T](w.registry))
}

// Get returns a copy of e's component of type T. It takes a read borrow for the duration of the
// copy and panics if a writer holds the component.
func Get[T any](w *World, e Entity) (T, error) {
	var zero T
	id := IDOf[T](w.registry)

	w.mu.RLock()
	defer w.mu.RUnlock()
	rec, err := w.entities.lookup(e)
	if err != nil {
		return zero, err
	}
	col := rec.archetype.column(id)
	if col == nil {
		return zero, eris.Wrapf(ErrComponentNotFound, "entity %s has no %s", e, w.registry.Name(id))
	}

	w.borrows.Acquire(e, id, Read)
	defer w.borrows.Release(e, id, Read)
	return *(col.Get(rec.row).(*T)), nil
}

// Compact closes the row holes left by despawns and moves in every archetype.
func (w *World) Compact() error {
	if err := w.lockStructure("compact"); err != nil {
		return err
	}
	defer w.mu.Unlock()

	for _, arch := range w.archetypes {
		arch.compact()
		for row, e := range arch.rows() {
			w.entities.records[e.Index()].row = row
		}
	}
	return nil
}

// location returns the archetype and row of a live entity. Called with a lock held.
func (w *World) location(e Entity) (*Archetype, int, error) {
	rec, err := w.entities.lookup(e)
	if err != nil {
		return nil, -1, err
	}
	return rec.archetype, rec.row, nil
}
