package ecs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plus3/loom/ecs"
)

func TestCommands(t *testing.T) {
	t.Run("changes apply on flush", func(t *testing.T) {
		w := newTestWorld(t)
		keep, _ := w.Spawn(Position{X: 1})
		drop, _ := w.Spawn(Position{X: 2})

		cmds := ecs.NewCommands()
		var spawned ecs.Entity
		cmds.SpawnThen(func(e ecs.Entity) { spawned = e }, Position{X: 3}, Velocity{})
		cmds.Despawn(drop)
		cmds.AddComponent(keep, Health{Current: 10})
		assert.Equal(t, 3, cmds.Len())
		assert.Equal(t, 2, w.Len(), "nothing happens before flush")

		require.NoError(t, cmds.Flush(w))
		assert.Equal(t, 0, cmds.Len())
		assert.Equal(t, 2, w.Len())
		assert.False(t, w.Alive(drop))
		assert.True(t, ecs.Has[Health](w, keep))
		require.True(t, w.Alive(spawned))
		assert.True(t, ecs.Has[Velocity](w, spawned))
	})

	t.Run("operations on despawned entities are dropped", func(t *testing.T) {
		w := newTestWorld(t)
		e, _ := w.Spawn(Position{})

		cmds := ecs.NewCommands()
		cmds.AddComponent(e, Health{})
		cmds.RemoveComponent(e, ecs.IDOf[Position](w.Registry()))
		cmds.Despawn(e)
		cmds.Despawn(e)
		require.NoError(t, cmds.Flush(w))
		assert.Equal(t, 0, w.Len())
	})

	t.Run("failures are reported and the rest still applies", func(t *testing.T) {
		w := newTestWorld(t)
		e, _ := w.Spawn(Position{})

		cmds := ecs.NewCommands()
		cmds.RemoveComponent(e, ecs.IDOf[Velocity](w.Registry()))
		cmds.Spawn(Score(1))
		err := cmds.Flush(w)
		assert.ErrorIs(t, err, ecs.ErrComponentNotFound)
		assert.Equal(t, 2, w.Len())
	})

	t.Run("deferred functions run last", func(t *testing.T) {
		w := newTestWorld(t)
		cmds := ecs.NewCommands()
		cmds.Defer(func(w *ecs.World) error {
			assert.Equal(t, 1, w.Len())
			return ecs.AddResource(w, GameTime{Frame: 3})
		})
		cmds.Spawn(Position{})
		require.NoError(t, cmds.Flush(w))
		assert.True(t, ecs.HasResource[GameTime](w))
	})

	t.Run("reset discards", func(t *testing.T) {
		w := newTestWorld(t)
		cmds := ecs.NewCommands()
		cmds.Spawn(Position{})
		cmds.Reset()
		require.NoError(t, cmds.Flush(w))
		assert.Equal(t, 0, w.Len())
	})
}
