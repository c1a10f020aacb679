package script

import (
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rotisserie/eris"

	"github.com/plus3/loom/ecs"
)

// Handler is a system's logic, supplied by the interpreter integration.
type Handler func(ctx *Context) error

// compiledSystem is a SystemDecl with every name resolved to an id.
type compiledSystem struct {
	decl          SystemDecl
	reads         []ecs.DynamicId
	writes        []ecs.DynamicId
	optional      []ecs.DynamicId
	with          []ecs.DynamicId
	without       []ecs.DynamicId
	resourceRead  []ecs.DynamicId
	resourceWrite []ecs.DynamicId
	ids           map[string]ecs.DynamicId
	where         *vm.Program
}

func (c *compiledSystem) queries() bool {
	return len(c.reads)+len(c.writes)+len(c.with) > 0
}

func compileSystem(decl SystemDecl, resolve func(string) (ecs.DynamicId, error)) (*compiledSystem, error) {
	c := &compiledSystem{decl: decl, ids: make(map[string]ecs.DynamicId)}

	lists := []struct {
		names []string
		out   *[]ecs.DynamicId
	}{
		{decl.Read, &c.reads},
		{decl.Write, &c.writes},
		{decl.Optional, &c.optional},
		{decl.With, &c.with},
		{decl.Without, &c.without},
		{decl.ResourceRead, &c.resourceRead},
		{decl.ResourceWrite, &c.resourceWrite},
	}
	for _, l := range lists {
		for _, name := range l.names {
			id, err := resolve(name)
			if err != nil {
				return nil, eris.Wrapf(err, "system %s", decl.Name)
			}
			*l.out = append(*l.out, id)
			c.ids[name] = id
		}
	}

	for _, name := range decl.Optional {
		if !contains(decl.Read, name) && !contains(decl.Write, name) {
			return nil, eris.Errorf("system %s: optional %s is neither read nor written", decl.Name, name)
		}
	}

	if decl.Where != "" {
		program, err := expr.Compile(decl.Where, expr.AsBool())
		if err != nil {
			return nil, eris.Wrapf(err, "system %s: failed to parse where clause", decl.Name)
		}
		c.where = program
	}
	return c, nil
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// System is a scheduler system backed by a script handler. Reload swaps its declaration and
// handler in place, so its registration and ids survive.
type System struct {
	mu       sync.RWMutex
	name     string
	compiled *compiledSystem
	handler  Handler
	registry *ecs.Registry
}

func newSystem(name string, compiled *compiledSystem, handler Handler, registry *ecs.Registry) *System {
	return &System{name: name, compiled: compiled, handler: handler, registry: registry}
}

// Name returns the qualified system name, script.system.
func (s *System) Name() string { return s.name }

// Stage returns the stage the system is registered to.
func (s *System) Stage() ecs.Stage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.compiled.decl.Stage
}

func (s *System) swap(compiled *compiledSystem, handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.compiled = compiled
	s.handler = handler
}

// Access returns the declared component and resource access.
func (s *System) Access() ecs.AccessSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var set ecs.AccessSet
	set.ReadComponent(s.compiled.reads...)
	set.WriteComponent(s.compiled.writes...)
	set.ReadResource(s.compiled.resourceRead...)
	set.WriteResource(s.compiled.resourceWrite...)
	set.Exclusive = s.compiled.decl.Exclusive
	return set
}

// Execute borrows the declared query and resources, then runs the handler.
func (s *System) Execute(frame *ecs.UpdateFrame) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.compiled

	ctx := &Context{
		frame:     frame,
		compiled:  c,
		registry:  s.registry,
		resources: make(map[ecs.DynamicId]*ecs.DynamicResource),
	}
	defer ctx.release()

	if c.queries() {
		q, err := frame.QueryDynamic().
			Read(c.reads...).
			Write(c.writes...).
			Optional(c.optional...).
			With(c.with...).
			Without(c.without...).
			Build()
		if err != nil {
			return err
		}
		ctx.query = q
	}

	for _, id := range c.resourceRead {
		if err := ctx.borrow(id, ecs.Read); err != nil {
			return err
		}
	}
	for _, id := range c.resourceWrite {
		if err := ctx.borrow(id, ecs.Write); err != nil {
			return err
		}
	}

	return s.handler(ctx)
}
