package ecs

import (
	"errors"
	"sync"

	"github.com/rotisserie/eris"
)

// Commands buffers structural changes made while guards are held. The scheduler gives every system
// its own buffer and applies them in registration order once the stage's guards are released.
type Commands struct {
	mu       sync.Mutex
	spawns   []spawnCommand
	despawns []Entity
	adds     []addComponentCommand
	removes  []removeComponentCommand
	defers   []func(*World) error
}

// NewCommands creates an empty buffer.
func NewCommands() *Commands {
	return &Commands{}
}

type spawnCommand struct {
	components []any
	then       func(Entity)
}

type addComponentCommand struct {
	entity    Entity
	component any
}

type removeComponentCommand struct {
	entity Entity
	id     DynamicId
}

// Spawn queues an entity spawn with the given components.
func (c *Commands) Spawn(components ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.spawns = append(c.spawns, spawnCommand{components: components})
}

// SpawnThen queues a spawn and calls then with the new entity once it exists.
func (c *Commands) SpawnThen(then func(Entity), components ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.spawns = append(c.spawns, spawnCommand{components: components, then: then})
}

// Despawn queues an entity removal.
func (c *Commands) Despawn(e Entity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.despawns = append(c.despawns, e)
}

// AddComponent queues a component addition.
func (c *Commands) AddComponent(e Entity, component any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.adds = append(c.adds, addComponentCommand{entity: e, component: component})
}

// RemoveComponent queues a component removal.
func (c *Commands) RemoveComponent(e Entity, id DynamicId) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removes = append(c.removes, removeComponentCommand{entity: e, id: id})
}

// Defer queues a function that runs after every other queued change.
func (c *Commands) Defer(fn func(*World) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defers = append(c.defers, fn)
}

// Len returns the number of queued operations.
func (c *Commands) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.spawns) + len(c.despawns) + len(c.adds) + len(c.removes) + len(c.defers)
}

// Reset discards every queued operation.
func (c *Commands) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
}

func (c *Commands) reset() {
	c.spawns = c.spawns[:0]
	c.despawns = c.despawns[:0]
	c.adds = c.adds[:0]
	c.removes = c.removes[:0]
	c.defers = c.defers[:0]
}

// Flush applies the buffer to w and empties it. Despawns run first, then removals and additions
// for entities that survived, then spawns and finally deferred functions. Operations on entities
// that no longer exist are dropped; every other failure is reported in the returned error.
func (c *Commands) Flush(w *World) error {
	c.mu.Lock()
	pending := Commands{spawns: c.spawns, despawns: c.despawns, adds: c.adds, removes: c.removes, defers: c.defers}
	c.spawns, c.despawns, c.adds, c.removes, c.defers = nil, nil, nil, nil, nil
	c.mu.Unlock()

	return pending.apply(w)
}

func (c *Commands) apply(w *World) error {
	var errs []error
	despawned := make(map[Entity]bool, len(c.despawns))

	for _, e := range c.despawns {
		despawned[e] = true
		if err := w.Despawn(e); err != nil && !eris.Is(err, ErrEntityNotFound) {
			errs = append(errs, err)
		}
	}

	for _, cmd := range c.removes {
		if despawned[cmd.entity] {
			continue
		}
		if err := w.RemoveComponent(cmd.entity, cmd.id); err != nil && !eris.Is(err, ErrEntityNotFound) {
			errs = append(errs, err)
		}
	}

	for _, cmd := range c.adds {
		if despawned[cmd.entity] {
			continue
		}
		if err := w.AddComponent(cmd.entity, cmd.component); err != nil && !eris.Is(err, ErrEntityNotFound) {
			errs = append(errs, err)
		}
	}

	for _, cmd := range c.spawns {
		e, err := w.Spawn(cmd.components...)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if cmd.then != nil {
			cmd.then(e)
		}
	}

	for _, fn := range c.defers {
		if err := fn(w); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
