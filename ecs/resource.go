package ecs

import (
	"reflect"
	"slices"

	"github.com/rotisserie/eris"
)

// resourceEntry holds one world-global value. value is a pointer: *T for compiled types and *any
// for script-declared ids.
type resourceEntry struct {
	id    DynamicId
	value any
}

// AddResource stores a world-global value of type T.
func AddResource[T any](w *World, value T) error {
	id := IDOf[T](w.registry)
	return w.insertResource(id, &value)
}

// AddDynamicResource stores a world-global value under id. Values for ids backed by a compiled
// type are stored as that type so typed accessors see them.
func (w *World) AddDynamicResource(id DynamicId, value any) error {
	if !w.registry.Known(id) {
		return eris.Wrapf(ErrComponentNotRegistered, "resource id %d", id)
	}
	if t, ok := w.registry.Type(id); ok {
		v := reflect.ValueOf(value)
		if !v.IsValid() || !v.Type().AssignableTo(t) {
			return eris.Wrapf(ErrInvalidComponent, "%T stored as resource %s", value, t)
		}
		ptr := reflect.New(t)
		ptr.Elem().Set(v)
		return w.insertResource(id, ptr.Interface())
	}
	boxed := value
	return w.insertResource(id, &boxed)
}

func (w *World) insertResource(id DynamicId, ptr any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.resources[id]; ok {
		return eris.Wrapf(ErrResourceExists, "resource %s", w.registry.Name(id))
	}
	w.resources[id] = &resourceEntry{id: id, value: ptr}
	return nil
}

// RemoveResource deletes the resource of type T.
func RemoveResource[T any](w *World) error {
	return w.RemoveDynamicResource(IDOf[T](w.registry))
}

// RemoveDynamicResource deletes the resource stored under id. It is refused while borrows are
// outstanding.
func (w *World) RemoveDynamicResource(id DynamicId) error {
	if err := w.lockStructure("remove resource"); err != nil {
		return err
	}
	defer w.mu.Unlock()
	if _, ok := w.resources[id]; !ok {
		return eris.Wrapf(ErrResourceNotFound, "resource %s", w.registry.Name(id))
	}
	delete(w.resources, id)
	return nil
}

// HasResource reports whether a resource of type T exists.
func HasResource[T any](w *World) bool {
	return w.HasDynamicResource(IDOf[T](w.registry))
}

// HasDynamicResource reports whether a resource is stored under id.
func (w *World) HasDynamicResource(id DynamicId) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.resources[id]
	return ok
}

// Resources lists the ids of every stored resource in ascending order.
func (w *World) Resources() []DynamicId {
	w.mu.RLock()
	defer w.mu.RUnlock()
	ids := make([]DynamicId, 0, len(w.resources))
	for id := range w.resources {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// borrowResource looks up id and borrows it into set under the same read lock, so the entry cannot
// be removed or replaced in between. A conflicting borrow panics with a *BorrowError.
func (w *World) borrowResource(id DynamicId, access Access, set *borrowSet) (any, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	entry, ok := w.resources[id]
	if !ok {
		return nil, eris.Wrapf(ErrResourceNotFound, "resource %s", w.registry.Name(id))
	}
	if err := set.acquireResource(id, access); err != nil {
		panic(err)
	}
	return entry.value, nil
}

// resourceGuard is the shared implementation of Res and ResMut.
type resourceGuard[T any] struct {
	world   *World
	id      DynamicId
	access  Access
	value   *T
	borrows borrowSet
}

func (g *resourceGuard[T]) init(w *World, access Access) {
	g.Release()
	g.world = w
	g.id = IDOf[T](w.registry)
	g.access = access
	g.borrows = borrowSet{tracker: w.borrows}
}

// Execute acquires the resource. It panics if the resource does not exist or a conflicting
// borrow is held.
func (g *resourceGuard[T]) Execute() {
	if err := g.acquire(); err != nil {
		panic(err)
	}
}

func (g *resourceGuard[T]) acquire() error {
	assertThat(g.world != nil, "resource %s used before Init", reflect.TypeFor[T]())
	g.Release()
	value, err := g.world.borrowResource(g.id, g.access, &g.borrows)
	if err != nil {
		return err
	}
	ptr, ok := value.(*T)
	if !ok {
		g.borrows.release()
		panic(eris.Wrapf(ErrInvalidComponent, "resource %s holds %T", g.world.registry.Name(g.id), value))
	}
	g.value = ptr
	return nil
}

// Release drops the borrow.
func (g *resourceGuard[T]) Release() {
	g.borrows.release()
	g.value = nil
}

// Get returns the borrowed value. It panics when the resource is not currently borrowed.
func (g *resourceGuard[T]) Get() *T {
	assertThat(g.value != nil, "resource %s accessed without a borrow", reflect.TypeFor[T]())
	return g.value
}

// Exists reports whether the resource is present in the world.
func (g *resourceGuard[T]) Exists() bool {
	return g.world != nil && g.world.HasDynamicResource(g.id)
}

// Access returns the resource access this guard takes.
func (g *resourceGuard[T]) Access() AccessSet {
	var set AccessSet
	if g.world == nil {
		return set
	}
	if g.access == Write {
		set.WriteResource(g.id)
	} else {
		set.ReadResource(g.id)
	}
	return set
}

// Res is shared read access to the resource of type T. As a system field it is borrowed for the
// duration of each run.
type Res[T any] struct {
	resourceGuard[T]
}

func (r *Res[T]) bind(w *World) error {
	r.init(w, Read)
	return nil
}

// ResMut is exclusive write access to the resource of type T.
type ResMut[T any] struct {
	resourceGuard[T]
}

func (r *ResMut[T]) bind(w *World) error {
	r.init(w, Write)
	return nil
}

// ReadResource borrows the resource of type T for reading until Release.
func ReadResource[T any](w *World) (*Res[T], error) {
	r := &Res[T]{}
	r.init(w, Read)
	if err := r.acquire(); err != nil {
		return nil, err
	}
	return r, nil
}

// WriteResource borrows the resource of type T for writing until Release.
func WriteResource[T any](w *World) (*ResMut[T], error) {
	r := &ResMut[T]{}
	r.init(w, Write)
	if err := r.acquire(); err != nil {
		return nil, err
	}
	return r, nil
}

// DynamicResource is a borrowed resource addressed by id.
type DynamicResource struct {
	ID      DynamicId
	Access  Access
	value   any
	borrows borrowSet
}

// Get returns a pointer to the value: *T for compiled types, *any for script-declared ids.
func (r *DynamicResource) Get() any { return r.value }

// Release drops the borrow.
func (r *DynamicResource) Release() {
	r.borrows.release()
	r.value = nil
}

// BorrowResource borrows the resource under id. It panics with a *BorrowError on conflict.
func (w *World) BorrowResource(id DynamicId, access Access) (*DynamicResource, error) {
	r := &DynamicResource{ID: id, Access: access, borrows: borrowSet{tracker: w.borrows}}
	value, err := w.borrowResource(id, access, &r.borrows)
	if err != nil {
		return nil, err
	}
	r.value = value
	return r, nil
}
