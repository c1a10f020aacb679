package ecs

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
)

// DynamicId is the runtime identity of a component or resource type. Ids are allocated by a
// Registry starting at 1 and are never reused or renumbered.
type DynamicId uint32

// InvalidId is never handed out by a Registry.
const InvalidId DynamicId = 0

type columnFactory func(id DynamicId) column

// Registry maps compiled Go types and script-declared names to DynamicIds. Each World owns a
// Registry, allowing independent worlds to coexist. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	nextID    DynamicId
	static    map[reflect.Type]DynamicId
	named     map[string]DynamicId
	names     map[DynamicId]string
	types     map[DynamicId]reflect.Type
	factories map[DynamicId]columnFactory
}

// ComponentInfo pairs an id with its registered name.
type ComponentInfo struct {
	ID   DynamicId
	Name string
}

// NewRegistry creates a registry with the builtin primitive types pre-registered, so that two
// fresh registries always agree on their ids.
func NewRegistry() *Registry {
	r := newEmptyRegistry()
	RegisterComponent[struct{}](r)
	RegisterComponent[bool](r)
	RegisterComponent[int](r)
	RegisterComponent[int8](r)
	RegisterComponent[int16](r)
	RegisterComponent[int32](r)
	RegisterComponent[int64](r)
	RegisterComponent[uint](r)
	RegisterComponent[uint8](r)
	RegisterComponent[uint16](r)
	RegisterComponent[uint32](r)
	RegisterComponent[uint64](r)
	RegisterComponent[float32](r)
	RegisterComponent[float64](r)
	RegisterComponent[string](r)
	return r
}

func newEmptyRegistry() *Registry {
	return &Registry{
		nextID:    1,
		static:    make(map[reflect.Type]DynamicId),
		named:     make(map[string]DynamicId),
		names:     make(map[DynamicId]string),
		types:     make(map[DynamicId]reflect.Type),
		factories: make(map[DynamicId]columnFactory),
	}
}

// RegisterComponent returns the id of T, minting it on first use, and installs a typed column
// factory for it. Types spawned without registration are stored in reflection-backed columns.
func RegisterComponent[T any](r *Registry) DynamicId {
	t := reflect.TypeFor[T]()
	id := r.GetStatic(t)

	r.mu.Lock()
	if _, ok := r.factories[id]; !ok {
		r.factories[id] = func(id DynamicId) column {
			return newBlockColumn[T](id)
		}
	}
	r.mu.Unlock()
	return id
}

// IDOf is RegisterComponent for call sites that only want the id.
func IDOf[T any](r *Registry) DynamicId {
	return RegisterComponent[T](r)
}

// GetStatic returns the id for a compiled type, minting one on first use. The type's short name is
// also bound in the named table unless the name is already taken.
func (r *Registry) GetStatic(t reflect.Type) DynamicId {
	r.mu.RLock()
	id, ok := r.static[t]
	r.mu.RUnlock()
	if ok {
		return id
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.static[t]; ok {
		return id
	}

	id = r.mint(typeName(t))
	r.static[t] = id
	r.types[id] = t
	return id
}

// GetNamed returns the id bound to name, minting a fresh one on first use. Ids minted here have no
// compiled type and are stored in boxed columns.
func (r *Registry) GetNamed(name string) DynamicId {
	r.mu.RLock()
	id, ok := r.named[name]
	r.mu.RUnlock()
	if ok {
		return id
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.named[name]; ok {
		return id
	}
	return r.mint(name)
}

// mint must be called with the write lock held.
func (r *Registry) mint(name string) DynamicId {
	id := r.nextID
	r.nextID++
	r.names[id] = name
	if _, taken := r.named[name]; !taken {
		r.named[name] = id
	}
	return id
}

// Lookup returns the id bound to name without minting.
func (r *Registry) Lookup(name string) (DynamicId, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.named[name]
	return id, ok
}

// LookupType returns the id of a compiled type without minting.
func (r *Registry) LookupType(t reflect.Type) (DynamicId, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.static[t]
	return id, ok
}

// Name returns the registered name of id.
func (r *Registry) Name(id DynamicId) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name, ok := r.names[id]; ok {
		return name
	}
	return fmt.Sprintf("#%d", id)
}

// Type returns the compiled type behind id, if any.
func (r *Registry) Type(id DynamicId) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[id]
	return t, ok
}

// Known reports whether id has been allocated by this registry.
func (r *Registry) Known(id DynamicId) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return id != InvalidId && id < r.nextID
}

// Len returns the number of ids allocated so far.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int(r.nextID - 1)
}

// Components lists every allocated id in ascending order.
func (r *Registry) Components() []ComponentInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]ComponentInfo, 0, len(r.names))
	for id, name := range r.names {
		infos = append(infos, ComponentInfo{ID: id, Name: name})
	}
	slices.SortFunc(infos, func(a, b ComponentInfo) int { return int(a.ID) - int(b.ID) })
	return infos
}

func (r *Registry) newColumn(id DynamicId) (column, error) {
	r.mu.RLock()
	factory, typed := r.factories[id]
	t, static := r.types[id]
	_, known := r.names[id]
	r.mu.RUnlock()

	switch {
	case typed:
		return factory(id), nil
	case static:
		return newReflectColumn(id, t), nil
	case known:
		return newBlockColumn[any](id), nil
	default:
		return nil, eris.Wrapf(ErrComponentNotRegistered, "component id %d", id)
	}
}

// Split returns an independent copy of the registry. Ids minted on the copy can be folded back with
// Merge, which lets a script compiler resolve names without holding the world's registry.
func (r *Registry) Split() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c := newEmptyRegistry()
	c.nextID = r.nextID
	for k, v := range r.static {
		c.static[k] = v
	}
	for k, v := range r.named {
		c.named[k] = v
	}
	for k, v := range r.names {
		c.names[k] = v
	}
	for k, v := range r.types {
		c.types[k] = v
	}
	for k, v := range r.factories {
		c.factories[k] = v
	}
	return c
}

// Merge folds the entries of other into r. Entries already present in r keep their ids. If any
// entry of other would rebind an existing name, type or id, nothing is merged and every conflict is
// reported.
func (r *Registry) Merge(other *Registry) error {
	if other == r {
		return nil
	}
	other.mu.RLock()
	defer other.mu.RUnlock()
	r.mu.Lock()
	defer r.mu.Unlock()

	if conflicts := r.mergeConflicts(other); len(conflicts) > 0 {
		slices.Sort(conflicts)
		return eris.Errorf("registry merge conflicts: %s", strings.Join(conflicts, "; "))
	}

	for id, name := range other.names {
		r.names[id] = name
		if t, ok := other.types[id]; ok {
			r.types[id] = t
		}
		if f, ok := other.factories[id]; ok {
			if _, exists := r.factories[id]; !exists {
				r.factories[id] = f
			}
		}
	}
	for t, id := range other.static {
		r.static[t] = id
	}
	for name, id := range other.named {
		r.named[name] = id
	}
	if other.nextID > r.nextID {
		r.nextID = other.nextID
	}
	return nil
}

func (r *Registry) mergeConflicts(other *Registry) []string {
	var conflicts []string
	for id, name := range other.names {
		if existing, ok := r.names[id]; ok && existing != name {
			conflicts = append(conflicts, fmt.Sprintf("id %d is %q here and %q in merged registry", id, existing, name))
		}
		if t, ok := other.types[id]; ok {
			if existing, ok := r.types[id]; ok && existing != t {
				conflicts = append(conflicts, fmt.Sprintf("id %d is type %s here and %s in merged registry", id, existing, t))
			}
		}
	}
	for t, id := range other.static {
		if existing, ok := r.static[t]; ok && existing != id {
			conflicts = append(conflicts, fmt.Sprintf("type %s is %d here and %d in merged registry", t, existing, id))
		}
	}
	for name, id := range other.named {
		if existing, ok := r.named[name]; ok && existing != id {
			conflicts = append(conflicts, fmt.Sprintf("name %q is %d here and %d in merged registry", name, existing, id))
		}
	}
	return conflicts
}

func typeName(t reflect.Type) string {
	if t.Name() != "" {
		return t.Name()
	}
	return t.String()
}
