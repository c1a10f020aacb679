package ecs

import (
	"github.com/rs/zerolog"
)

func componentArray(infos []ComponentInfo) *zerolog.Array {
	arr := zerolog.Arr()
	for _, info := range infos {
		arr = arr.Dict(zerolog.Dict().
			Uint32("component_id", uint32(info.ID)).
			Str("component_name", info.Name))
	}
	return arr
}

// LogComponents logs every id known to the world's registry.
func LogComponents(logger *zerolog.Logger, w *World, level zerolog.Level) {
	infos := w.registry.Components()
	logger.WithLevel(level).
		Int("total_components", len(infos)).
		Array("components", componentArray(infos)).
		Send()
}

// LogSystems logs the registered systems grouped by stage.
func LogSystems(logger *zerolog.Logger, w *World, level zerolog.Level) {
	stats := w.scheduler.GetStats()
	arr := zerolog.Arr()
	for _, sys := range stats.Systems {
		arr = arr.Dict(zerolog.Dict().Str("system", sys.Name).Stringer("stage", sys.Stage))
	}
	logger.WithLevel(level).
		Int("total_systems", stats.SystemCount).
		Array("systems", arr).
		Send()
}

// LogEntity logs the archetype and components of e.
func LogEntity(logger *zerolog.Logger, w *World, e Entity, level zerolog.Level) {
	infos, err := w.Components(e)
	if err != nil {
		logger.WithLevel(level).Err(err).Stringer("entity", e).Send()
		return
	}
	w.mu.RLock()
	a, _, _ := w.location(e)
	w.mu.RUnlock()

	event := logger.WithLevel(level).
		Stringer("entity", e).
		Array("components", componentArray(infos))
	if a != nil {
		event = event.Uint32("archetype_id", a.id)
	}
	event.Send()
}
