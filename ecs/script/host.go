package script

import (
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/plus3/loom/ecs"
)

// ErrScriptNotFound is returned for operations on scripts that were never loaded.
var ErrScriptNotFound = eris.New("script not loaded")

// Script is a manifest plus one handler per declared system.
type Script struct {
	Name     string
	Manifest string
	Handlers map[string]Handler
}

// Info describes a loaded script.
type Info struct {
	ID       uuid.UUID
	Name     string
	Revision int
	Systems  []string
}

type loadedScript struct {
	id       uuid.UUID
	revision int
	script   Script
	manifest *Manifest
	systems  map[string]*System
}

// Host loads scripts into a world and keeps their systems registered across reloads.
type Host struct {
	world   *ecs.World
	mu      sync.Mutex
	scripts map[string]*loadedScript
	logger  zerolog.Logger
}

// NewHost creates a host for w.
func NewHost(w *ecs.World) *Host {
	return &Host{
		world:   w,
		scripts: make(map[string]*loadedScript),
		logger:  w.Logger().With().Str("component", "script-host").Logger(),
	}
}

type compiledScript struct {
	manifest *Manifest
	systems  []*compiledSystem
}

// compile resolves the manifest against a split of the world registry and merges the result back.
// Names the manifest declares are minted if new; every other name must already be known.
func (h *Host) compile(s Script) (*compiledScript, error) {
	manifest, err := ParseManifest(s.Manifest)
	if err != nil {
		return nil, eris.Wrapf(err, "script %s", s.Name)
	}

	registry := h.world.Registry().Split()
	for _, name := range manifest.Components {
		registry.GetNamed(name)
	}
	for _, name := range manifest.Resources {
		registry.GetNamed(name)
	}
	resolve := func(name string) (ecs.DynamicId, error) {
		id, ok := registry.Lookup(name)
		if !ok {
			return ecs.InvalidId, eris.Wrapf(ecs.ErrComponentNotRegistered, "unknown component or resource %s", name)
		}
		return id, nil
	}

	out := &compiledScript{manifest: manifest}
	for _, decl := range manifest.Systems {
		if s.Handlers[decl.Name] == nil {
			return nil, eris.Errorf("script %s: no handler for system %s", s.Name, decl.Name)
		}
		c, err := compileSystem(decl, resolve)
		if err != nil {
			return nil, eris.Wrapf(err, "script %s", s.Name)
		}
		out.systems = append(out.systems, c)
	}

	if err := h.world.Registry().Merge(registry); err != nil {
		return nil, eris.Wrapf(err, "script %s", s.Name)
	}
	return out, nil
}

func qualifiedName(script, system string) string {
	return script + "." + system
}

func (h *Host) register(name string, c *compiledSystem, handler Handler) (*System, error) {
	// Exclusivity is read from System.Access on every run.
	sys := newSystem(name, c, handler, h.world.Registry())
	if err := h.world.AddSystem(c.decl.Stage, sys); err != nil {
		return nil, err
	}
	return sys, nil
}

// Load compiles a script and registers its systems.
func (h *Host) Load(s Script) (uuid.UUID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.scripts[s.Name]; ok {
		return uuid.Nil, eris.Errorf("script %s is already loaded", s.Name)
	}
	compiled, err := h.compile(s)
	if err != nil {
		return uuid.Nil, err
	}

	loaded := &loadedScript{
		id:       uuid.New(),
		revision: 1,
		script:   s,
		manifest: compiled.manifest,
		systems:  make(map[string]*System),
	}
	for _, c := range compiled.systems {
		sys, err := h.register(qualifiedName(s.Name, c.decl.Name), c, s.Handlers[c.decl.Name])
		if err != nil {
			h.unregisterAll(loaded)
			return uuid.Nil, eris.Wrapf(err, "script %s", s.Name)
		}
		loaded.systems[c.decl.Name] = sys
	}
	h.scripts[s.Name] = loaded

	h.logger.Info().
		Str("script", s.Name).
		Stringer("id", loaded.id).
		Int("systems", len(loaded.systems)).
		Msg("script loaded")
	return loaded.id, nil
}

// Reload replaces a loaded script's manifest and handlers. Systems that keep their name and stage
// are updated in place; others are registered or removed. Ids minted by earlier revisions stay
// valid, so existing entity data is untouched.
func (h *Host) Reload(s Script) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	loaded, ok := h.scripts[s.Name]
	if !ok {
		return eris.Wrapf(ErrScriptNotFound, "script %s", s.Name)
	}
	compiled, err := h.compile(s)
	if err != nil {
		return err
	}

	next := make(map[string]*System, len(compiled.systems))
	for _, c := range compiled.systems {
		handler := s.Handlers[c.decl.Name]
		if sys, ok := loaded.systems[c.decl.Name]; ok && sys.Stage() == c.decl.Stage {
			sys.swap(c, handler)
			next[c.decl.Name] = sys
			delete(loaded.systems, c.decl.Name)
			continue
		}
		sys, err := h.register(qualifiedName(s.Name, c.decl.Name), c, handler)
		if err != nil {
			return eris.Wrapf(err, "script %s", s.Name)
		}
		next[c.decl.Name] = sys
	}
	h.unregisterAll(loaded)

	loaded.systems = next
	loaded.script = s
	loaded.manifest = compiled.manifest
	loaded.revision++

	h.logger.Info().
		Str("script", s.Name).
		Stringer("id", loaded.id).
		Int("revision", loaded.revision).
		Msg("script reloaded")
	return nil
}

// Unload removes a script's systems. Components and resources it declared keep their ids.
func (h *Host) Unload(name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	loaded, ok := h.scripts[name]
	if !ok {
		return eris.Wrapf(ErrScriptNotFound, "script %s", name)
	}
	h.unregisterAll(loaded)
	delete(h.scripts, name)
	h.logger.Info().Str("script", name).Stringer("id", loaded.id).Msg("script unloaded")
	return nil
}

func (h *Host) unregisterAll(loaded *loadedScript) {
	for _, sys := range loaded.systems {
		h.world.Scheduler().Unregister(sys.Stage(), sys)
	}
}

// Scripts lists the loaded scripts by name.
func (h *Host) Scripts() []Info {
	h.mu.Lock()
	defer h.mu.Unlock()

	infos := make([]Info, 0, len(h.scripts))
	for name, loaded := range h.scripts {
		info := Info{ID: loaded.id, Name: name, Revision: loaded.revision}
		for sysName := range loaded.systems {
			info.Systems = append(info.Systems, sysName)
		}
		slices.Sort(info.Systems)
		infos = append(infos, info)
	}
	slices.SortFunc(infos, func(a, b Info) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return infos
}

// Source returns the manifest text of a loaded script.
func (h *Host) Source(name string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	loaded, ok := h.scripts[name]
	if !ok {
		return "", false
	}
	return loaded.script.Manifest, true
}
