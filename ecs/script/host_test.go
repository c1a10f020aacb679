package script_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plus3/loom/ecs"
	"github.com/plus3/loom/ecs/script"
)

type Position struct {
	X, Y float64
}

type Clock struct {
	Frame int
}

func newWorld(t *testing.T) *ecs.World {
	t.Helper()
	w := ecs.NewWorld()
	ecs.RegisterComponent[Position](w.Registry())
	require.NoError(t, ecs.AddResource(w, Clock{}))
	return w
}

const regenManifest = `
component Mana

system regen in update {
	write Mana
	read Position
	resource read Clock
	where "Mana < 100"
}
`

func regenHandler(step int) script.Handler {
	return func(ctx *script.Context) error {
		rows, err := ctx.Rows()
		if err != nil {
			return err
		}
		for _, row := range rows {
			v, err := ctx.Get(row, "Mana")
			if err != nil {
				return err
			}
			if err := ctx.Set(row, "Mana", v.(int)+step); err != nil {
				return err
			}
		}
		return nil
	}
}

func mana(t *testing.T, w *ecs.World, e ecs.Entity) int {
	t.Helper()
	id, ok := w.Registry().Lookup("Mana")
	require.True(t, ok)
	q, err := w.QueryDynamic().Read(id).Build()
	require.NoError(t, err)
	defer q.Release()
	row, err := q.Get(e)
	require.NoError(t, err)
	v, ok := row.Value(id)
	require.True(t, ok)
	return v.(int)
}

func TestHost(t *testing.T) {
	t.Run("load registers systems with declared access", func(t *testing.T) {
		w := newWorld(t)
		host := script.NewHost(w)

		id, err := host.Load(script.Script{
			Name:     "magic",
			Manifest: regenManifest,
			Handlers: map[string]script.Handler{"regen": regenHandler(10)},
		})
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, id)

		manaID, ok := w.Registry().Lookup("Mana")
		require.True(t, ok)

		low, err := w.Spawn(Position{}, ecs.Dynamic{ID: manaID, Value: 50})
		require.NoError(t, err)
		full, err := w.Spawn(Position{}, ecs.Dynamic{ID: manaID, Value: 100})
		require.NoError(t, err)
		noPos, err := w.Spawn(ecs.Dynamic{ID: manaID, Value: 10})
		require.NoError(t, err)

		require.NoError(t, w.Tick(0))
		assert.Equal(t, 60, mana(t, w, low))
		assert.Equal(t, 100, mana(t, w, full), "where clause filters rows")
		assert.Equal(t, 10, mana(t, w, noPos), "read components are required")

		stats := w.Scheduler().GetStats()
		require.Len(t, stats.Systems, 1)
		assert.Equal(t, "magic.regen", stats.Systems[0].Name)

		infos := host.Scripts()
		require.Len(t, infos, 1)
		assert.Equal(t, id, infos[0].ID)
		assert.Equal(t, 1, infos[0].Revision)
		assert.Equal(t, []string{"regen"}, infos[0].Systems)

		source, ok := host.Source("magic")
		require.True(t, ok)
		assert.Equal(t, regenManifest, source)
	})

	t.Run("reload keeps ids and swaps logic", func(t *testing.T) {
		w := newWorld(t)
		host := script.NewHost(w)
		s := script.Script{
			Name:     "magic",
			Manifest: regenManifest,
			Handlers: map[string]script.Handler{"regen": regenHandler(1)},
		}
		id, err := host.Load(s)
		require.NoError(t, err)
		manaID, _ := w.Registry().Lookup("Mana")
		e, _ := w.Spawn(Position{}, ecs.Dynamic{ID: manaID, Value: 0})

		require.NoError(t, w.Tick(0))
		assert.Equal(t, 1, mana(t, w, e))

		s.Handlers = map[string]script.Handler{"regen": regenHandler(5)}
		s.Manifest = regenManifest + `
component Shield
system decay in post_update {
	write Shield
}
`
		s.Handlers["decay"] = func(ctx *script.Context) error { return nil }
		require.NoError(t, host.Reload(s))

		again, _ := w.Registry().Lookup("Mana")
		assert.Equal(t, manaID, again)

		require.NoError(t, w.Tick(0))
		assert.Equal(t, 6, mana(t, w, e))

		infos := host.Scripts()
		require.Len(t, infos, 1)
		assert.Equal(t, id, infos[0].ID, "reload keeps the script id")
		assert.Equal(t, 2, infos[0].Revision)
		assert.Equal(t, []string{"decay", "regen"}, infos[0].Systems)
		assert.Len(t, w.Scheduler().GetStats().Systems, 2)

		s.Manifest = `
component Mana
component Shield
system decay in post_update {
	write Shield
}
`
		delete(s.Handlers, "regen")
		require.NoError(t, host.Reload(s))
		assert.Len(t, w.Scheduler().GetStats().Systems, 1)
	})

	t.Run("reload changes exclusivity", func(t *testing.T) {
		w := newWorld(t)
		host := script.NewHost(w)

		var exclusive []bool
		s := script.Script{
			Name:     "solo",
			Manifest: `system s in update exclusive { read Position }`,
			Handlers: map[string]script.Handler{"s": func(ctx *script.Context) error {
				exclusive = append(exclusive, ctx.Frame().Access().Exclusive)
				return nil
			}},
		}
		_, err := host.Load(s)
		require.NoError(t, err)
		require.NoError(t, w.Tick(0))

		s.Manifest = `system s in update { read Position }`
		require.NoError(t, host.Reload(s))
		require.NoError(t, w.Tick(0))

		s.Manifest = `system s in update exclusive { read Position }`
		require.NoError(t, host.Reload(s))
		require.NoError(t, w.Tick(0))

		assert.Equal(t, []bool{true, false, true}, exclusive)
		assert.Len(t, w.Scheduler().GetStats().Systems, 1)
	})

	t.Run("unload removes systems", func(t *testing.T) {
		w := newWorld(t)
		host := script.NewHost(w)
		_, err := host.Load(script.Script{
			Name:     "magic",
			Manifest: regenManifest,
			Handlers: map[string]script.Handler{"regen": regenHandler(1)},
		})
		require.NoError(t, err)
		require.NoError(t, host.Unload("magic"))
		assert.Empty(t, w.Scheduler().GetStats().Systems)
		assert.Empty(t, host.Scripts())

		_, ok := w.Registry().Lookup("Mana")
		assert.True(t, ok, "ids outlive the script")

		assert.True(t, eris.Is(host.Unload("magic"), script.ErrScriptNotFound))
		assert.True(t, eris.Is(host.Reload(script.Script{Name: "magic"}), script.ErrScriptNotFound))
	})

	t.Run("load errors", func(t *testing.T) {
		w := newWorld(t)
		host := script.NewHost(w)

		_, err := host.Load(script.Script{Name: "a", Manifest: regenManifest})
		assert.Error(t, err, "missing handler")

		_, err = host.Load(script.Script{
			Name:     "b",
			Manifest: `system s in update { read Unknown }`,
			Handlers: map[string]script.Handler{"s": regenHandler(1)},
		})
		assert.True(t, eris.Is(err, ecs.ErrComponentNotRegistered))

		_, err = host.Load(script.Script{
			Name:     "c",
			Manifest: `system s in update { read Position optional Clock }`,
			Handlers: map[string]script.Handler{"s": regenHandler(1)},
		})
		assert.Error(t, err)

		_, err = host.Load(script.Script{
			Name:     "d",
			Manifest: "component Mana\nsystem s in update { read Mana where \"Mana +\" }",
			Handlers: map[string]script.Handler{"s": regenHandler(1)},
		})
		assert.Error(t, err, "where clause must compile")

		ok := script.Script{
			Name:     "e",
			Manifest: regenManifest,
			Handlers: map[string]script.Handler{"regen": regenHandler(1)},
		}
		_, err = host.Load(ok)
		require.NoError(t, err)
		_, err = host.Load(ok)
		assert.Error(t, err, "already loaded")

		assert.Len(t, w.Scheduler().GetStats().Systems, 1)
	})

	t.Run("context resources and commands", func(t *testing.T) {
		w := newWorld(t)
		host := script.NewHost(w)

		var seen []int
		_, err := host.Load(script.Script{
			Name: "spawner",
			Manifest: `
component Mana
resource Weather
system spawn in update {
	resource write Clock
	resource read Weather
}
`,
			Handlers: map[string]script.Handler{
				"spawn": func(ctx *script.Context) error {
					c, err := ctx.Resource("Clock")
					if err != nil {
						return err
					}
					clock := c.(Clock)
					clock.Frame++
					seen = append(seen, clock.Frame)
					if err := ctx.SetResource("Clock", clock); err != nil {
						return err
					}
					if err := ctx.SetResource("Weather", "sun"); !eris.Is(err, ecs.ErrUndeclaredAccess) {
						return eris.New("weather must be read-only")
					}
					if _, err := ctx.Resource("Missing"); !eris.Is(err, ecs.ErrUndeclaredAccess) {
						return eris.New("undeclared resource must be rejected")
					}
					return ctx.Spawn(script.Component{Name: "Mana", Value: 1}, Position{X: 1})
				},
			},
		})
		require.NoError(t, err)
		weather, _ := w.Registry().Lookup("Weather")
		require.NoError(t, w.AddDynamicResource(weather, "rain"))

		require.NoError(t, w.Tick(0))
		require.NoError(t, w.Tick(0))
		assert.Equal(t, []int{1, 2}, seen)
		assert.Equal(t, 2, w.Len())
	})
}
