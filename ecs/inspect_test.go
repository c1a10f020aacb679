package ecs_test

import (
	"bytes"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plus3/loom/ecs"
)

func TestCollectStats(t *testing.T) {
	w := newTestWorld(t)
	w.Spawn(Position{}, Velocity{})
	w.Spawn(Position{}, Velocity{})
	gone, _ := w.Spawn(Health{})
	require.NoError(t, w.Despawn(gone))
	require.NoError(t, ecs.AddResource(w, GameTime{}))

	stats := w.CollectStats()
	assert.Equal(t, 1, stats.ArchetypeCount, "empty archetypes are skipped")
	assert.Equal(t, 2, stats.TotalEntityCount)
	assert.Equal(t, 1, stats.ResourceCount)
	assert.Equal(t, []string{"GameTime"}, stats.ResourceTypes)
	assert.Equal(t, w.Registry().Len(), stats.ComponentCount)
	require.Len(t, stats.ArchetypeBreakdown, 1)
	assert.ElementsMatch(t, []string{"Position", "Velocity"}, stats.ArchetypeBreakdown[0].ComponentTypes)
	assert.Equal(t, 2, stats.ArchetypeBreakdown[0].EntityCount)
}

func TestInspect(t *testing.T) {
	w := newTestWorld(t)
	mana := w.Registry().GetNamed("Mana")
	e, err := w.Spawn(Position{X: 1, Y: 2}, Name{Value: "hero"}, ecs.Dynamic{ID: mana, Value: 30})
	require.NoError(t, err)

	t.Run("snapshot", func(t *testing.T) {
		snap, err := w.Inspect(e)
		require.NoError(t, err)
		assert.Equal(t, e, snap.Entity)
		require.Len(t, snap.Components, 3)

		byName := map[string]ecs.ComponentSnapshot{}
		for _, c := range snap.Components {
			byName[c.Name] = c
		}
		assert.Equal(t, Position{X: 1, Y: 2}, byName["Position"].Value)
		require.Len(t, byName["Position"].Fields, 2)
		assert.Equal(t, "X", byName["Position"].Fields[0].Name)
		assert.Equal(t, "float32", byName["Position"].Fields[0].Type)
		assert.Equal(t, 30, byName["Mana"].Value)
		assert.Empty(t, byName["Mana"].Fields)
		assert.Equal(t, 0, w.Borrows().Outstanding())
	})

	t.Run("json", func(t *testing.T) {
		data, err := w.MarshalEntity(e)
		require.NoError(t, err)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, map[string]any{"X": 1.0, "Y": 2.0}, decoded["Position"])
		assert.Equal(t, map[string]any{"Value": "hero"}, decoded["Name"])
		assert.Equal(t, 30.0, decoded["Mana"])
	})

	t.Run("stale entity", func(t *testing.T) {
		dead, _ := w.Spawn(Position{})
		require.NoError(t, w.Despawn(dead))
		_, err := w.Inspect(dead)
		assert.True(t, eris.Is(err, ecs.ErrEntityNotFound))
		_, err = w.MarshalEntity(dead)
		assert.True(t, eris.Is(err, ecs.ErrEntityNotFound))
	})

	t.Run("inspecting a written component panics", func(t *testing.T) {
		q, err := ecs.NewQuery[struct {
			Pos *Position `ecs:"write"`
		}](w)
		require.NoError(t, err)
		defer q.Release()
		assert.Panics(t, func() { w.Inspect(e) })
	})
}

func TestLogHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	w := newTestWorld(t, ecs.WithLogger(logger))
	require.NoError(t, w.AddSystem(ecs.Update, &MovementSystem{}))
	e, _ := w.Spawn(Position{}, Velocity{})

	ecs.LogEntity(&logger, w, e, zerolog.InfoLevel)
	assert.Contains(t, buf.String(), `"component_name":"Position"`)
	assert.Contains(t, buf.String(), `"archetype_id"`)

	buf.Reset()
	ecs.LogSystems(&logger, w, zerolog.InfoLevel)
	assert.Contains(t, buf.String(), `"system":"MovementSystem"`)
	assert.Contains(t, buf.String(), `"stage":"update"`)

	buf.Reset()
	ecs.LogComponents(&logger, w, zerolog.InfoLevel)
	assert.Contains(t, buf.String(), `"component_name":"Velocity"`)
}
