package script

import (
	"reflect"

	"github.com/expr-lang/expr"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/plus3/loom/ecs"
)

// Context is what a handler sees during one run of its system: the rows selected by the declared
// query, the declared resources and the system's command buffer.
type Context struct {
	frame     *ecs.UpdateFrame
	compiled  *compiledSystem
	registry  *ecs.Registry
	query     *ecs.DynamicQuery
	resources map[ecs.DynamicId]*ecs.DynamicResource
}

func (c *Context) borrow(id ecs.DynamicId, access ecs.Access) error {
	r, err := c.frame.BorrowResource(id, access)
	if err != nil {
		return err
	}
	c.resources[id] = r
	return nil
}

func (c *Context) release() {
	if c.query != nil {
		c.query.Release()
	}
	for _, r := range c.resources {
		r.Release()
	}
}

// DeltaTime is the tick's delta time in seconds.
func (c *Context) DeltaTime() float64 { return c.frame.DeltaTime }

// Frame returns the underlying update frame. Exclusive systems may change the world through it.
func (c *Context) Frame() *ecs.UpdateFrame { return c.frame }

// Logger returns a logger annotated with the system.
func (c *Context) Logger() zerolog.Logger { return c.frame.Logger() }

// ID resolves a component or resource name the system declared.
func (c *Context) ID(name string) (ecs.DynamicId, error) {
	if id, ok := c.compiled.ids[name]; ok {
		return id, nil
	}
	return ecs.InvalidId, eris.Wrapf(ecs.ErrUndeclaredAccess, "%s is not declared by system %s", name, c.compiled.decl.Name)
}

// Rows returns the selected rows that pass the system's where clause. The where expression sees
// every declared component by name plus the entity handle as "entity".
func (c *Context) Rows() ([]ecs.DynamicRow, error) {
	if c.query == nil {
		return nil, nil
	}
	var rows []ecs.DynamicRow
	for row := range c.query.Iter() {
		if c.compiled.where == nil {
			rows = append(rows, row)
			continue
		}
		output, err := expr.Run(c.compiled.where, c.env(row))
		if err != nil {
			return nil, eris.Wrapf(err, "failed to run where clause of system %s", c.compiled.decl.Name)
		}
		match, ok := output.(bool)
		if !ok {
			return nil, eris.Errorf("where clause of system %s is not boolean", c.compiled.decl.Name)
		}
		if match {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (c *Context) env(row ecs.DynamicRow) map[string]any {
	env := make(map[string]any, len(c.compiled.ids)+1)
	env["entity"] = uint64(row.Entity)
	for name, id := range c.compiled.ids {
		if v, ok := row.Value(id); ok {
			env[name] = v
		}
	}
	return env
}

// Get returns a copy of a declared component of row.
func (c *Context) Get(row ecs.DynamicRow, name string) (any, error) {
	id, err := c.ID(name)
	if err != nil {
		return nil, err
	}
	v, ok := row.Value(id)
	if !ok {
		return nil, eris.Wrapf(ecs.ErrComponentNotFound, "entity %s has no %s", row.Entity, name)
	}
	return v, nil
}

// Set replaces a write-declared component of row.
func (c *Context) Set(row ecs.DynamicRow, name string, value any) error {
	id, err := c.ID(name)
	if err != nil {
		return err
	}
	return row.Set(id, value)
}

// Resource returns a copy of a declared resource.
func (c *Context) Resource(name string) (any, error) {
	id, err := c.ID(name)
	if err != nil {
		return nil, err
	}
	r, ok := c.resources[id]
	if !ok {
		return nil, eris.Wrapf(ecs.ErrUndeclaredAccess, "resource %s", name)
	}
	return reflect.ValueOf(r.Get()).Elem().Interface(), nil
}

// SetResource replaces a write-declared resource.
func (c *Context) SetResource(name string, value any) error {
	id, err := c.ID(name)
	if err != nil {
		return err
	}
	r, ok := c.resources[id]
	if !ok || r.Access != ecs.Write {
		return eris.Wrapf(ecs.ErrUndeclaredAccess, "write of resource %s", name)
	}
	target := reflect.ValueOf(r.Get()).Elem()
	v := reflect.ValueOf(value)
	if !v.IsValid() {
		target.SetZero()
		return nil
	}
	if !v.Type().AssignableTo(target.Type()) {
		return eris.Wrapf(ecs.ErrInvalidComponent, "%T assigned to resource %s", value, name)
	}
	target.Set(v)
	return nil
}

// Spawn queues a spawn. Script components are passed as Component values.
func (c *Context) Spawn(components ...any) error {
	resolved, err := c.resolve(components)
	if err != nil {
		return err
	}
	c.frame.Commands.Spawn(resolved...)
	return nil
}

// Despawn queues the removal of e.
func (c *Context) Despawn(e ecs.Entity) {
	c.frame.Commands.Despawn(e)
}

// Insert queues attaching a component to e.
func (c *Context) Insert(e ecs.Entity, component Component) error {
	resolved, err := c.resolve([]any{component})
	if err != nil {
		return err
	}
	c.frame.Commands.AddComponent(e, resolved[0])
	return nil
}

// Remove queues detaching a named component from e.
func (c *Context) Remove(e ecs.Entity, name string) error {
	id, ok := c.registry.Lookup(name)
	if !ok {
		return eris.Wrapf(ecs.ErrComponentNotRegistered, "component %s", name)
	}
	c.frame.Commands.RemoveComponent(e, id)
	return nil
}

// Component is a script component value addressed by name.
type Component struct {
	Name  string
	Value any
}

func (c *Context) resolve(components []any) ([]any, error) {
	out := make([]any, len(components))
	for i, comp := range components {
		sc, ok := comp.(Component)
		if !ok {
			out[i] = comp
			continue
		}
		id, found := c.registry.Lookup(sc.Name)
		if !found {
			return nil, eris.Wrapf(ecs.ErrComponentNotRegistered, "component %s", sc.Name)
		}
		out[i] = ecs.Dynamic{ID: id, Value: sc.Value}
	}
	return out, nil
}
