package ecs_test

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plus3/loom/ecs"
)

func TestRegistry(t *testing.T) {
	t.Run("builtin primitives are pre-registered", func(t *testing.T) {
		r := ecs.NewRegistry()
		for _, name := range []string{"bool", "int", "int64", "uint8", "float32", "float64", "string"} {
			id, ok := r.Lookup(name)
			assert.True(t, ok, name)
			assert.NotEqual(t, ecs.InvalidId, id, name)
		}
		id, ok := r.LookupType(reflect.TypeFor[float64]())
		require.True(t, ok)
		assert.Equal(t, "float64", r.Name(id))
	})

	t.Run("static ids are stable and named after the type", func(t *testing.T) {
		r := ecs.NewRegistry()
		first := ecs.RegisterComponent[Position](r)
		second := ecs.IDOf[Position](r)
		assert.Equal(t, first, second)
		assert.Equal(t, "Position", r.Name(first))

		byName, ok := r.Lookup("Position")
		require.True(t, ok)
		assert.Equal(t, first, byName)

		typ, ok := r.Type(first)
		require.True(t, ok)
		assert.Equal(t, reflect.TypeFor[Position](), typ)
	})

	t.Run("named ids have no type", func(t *testing.T) {
		r := ecs.NewRegistry()
		id := r.GetNamed("Mana")
		assert.Equal(t, id, r.GetNamed("Mana"))
		assert.NotEqual(t, ecs.IDOf[Position](r), id)

		_, ok := r.Type(id)
		assert.False(t, ok)
		assert.True(t, r.Known(id))
		assert.Equal(t, "Mana", r.Name(id))
	})

	t.Run("first binding of a name wins", func(t *testing.T) {
		r := ecs.NewRegistry()
		named := r.GetNamed("Position")
		static := ecs.IDOf[Position](r)
		assert.NotEqual(t, named, static)

		id, _ := r.Lookup("Position")
		assert.Equal(t, named, id)
	})

	t.Run("unknown ids", func(t *testing.T) {
		r := ecs.NewRegistry()
		_, ok := r.Lookup("Nope")
		assert.False(t, ok)
		assert.False(t, r.Known(ecs.DynamicId(9999)))
		assert.Equal(t, "#9999", r.Name(ecs.DynamicId(9999)))
	})

	t.Run("split and merge", func(t *testing.T) {
		r := ecs.NewRegistry()
		pos := ecs.IDOf[Position](r)
		before := r.Len()

		split := r.Split()
		mana := split.GetNamed("Mana")
		vel := ecs.IDOf[Velocity](split)

		_, ok := r.Lookup("Mana")
		assert.False(t, ok, "split must not leak into the parent")
		assert.Equal(t, before, r.Len())

		require.NoError(t, r.Merge(split))
		got, ok := r.Lookup("Mana")
		require.True(t, ok)
		assert.Equal(t, mana, got)
		assert.Equal(t, vel, ecs.IDOf[Velocity](r))
		assert.Equal(t, pos, ecs.IDOf[Position](r))

		fresh := r.GetNamed("Stamina")
		assert.Greater(t, fresh, mana)
	})

	t.Run("merge reports conflicting ids", func(t *testing.T) {
		r := ecs.NewRegistry()
		a := r.Split()
		b := r.Split()
		idA := a.GetNamed("Alpha")
		idB := b.GetNamed("Beta")
		require.Equal(t, idA, idB)

		require.NoError(t, r.Merge(a))
		err := r.Merge(b)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "conflicts")

		got, _ := r.Lookup("Alpha")
		assert.Equal(t, idA, got)
		_, ok := r.Lookup("Beta")
		assert.False(t, ok, "a conflicting name must not be bound")
	})

	t.Run("failed merge leaves the registry untouched", func(t *testing.T) {
		r := ecs.NewRegistry()
		split := r.Split()
		foo := split.GetNamed("Foo")
		bar := split.GetNamed("Bar")
		score := ecs.IDOf[Score](r)
		require.Equal(t, foo, score)
		before := r.Len()

		err := r.Merge(split)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `"Score" here and "Foo"`)

		_, ok := r.Lookup("Foo")
		assert.False(t, ok)
		_, ok = r.Lookup("Bar")
		assert.False(t, ok)
		assert.False(t, r.Known(bar))
		assert.Equal(t, "Score", r.Name(score))
		assert.Equal(t, before, r.Len())
	})

	t.Run("components are listed in id order", func(t *testing.T) {
		r := ecs.NewRegistry()
		ecs.IDOf[Position](r)
		r.GetNamed("Mana")
		infos := r.Components()
		require.Equal(t, r.Len(), len(infos))
		for i := 1; i < len(infos); i++ {
			assert.Less(t, infos[i-1].ID, infos[i].ID)
		}
		assert.Equal(t, "Mana", infos[len(infos)-1].Name)
	})
}
