package main

import (
	"math"
	"math/rand"

	"github.com/plus3/loom/ecs"
	"github.com/plus3/loom/ecs/script"
)

type Position struct {
	X, Y float64
}

type Velocity struct {
	DX, DY float64
}

type Health struct {
	Current, Max int
}

type Decay struct {
	PerTick int
}

type Frozen struct{}

// Clock counts simulation time.
type Clock struct {
	Elapsed float64
	Ticks   int64
}

func registerComponents(r *ecs.Registry) {
	ecs.RegisterComponent[Position](r)
	ecs.RegisterComponent[Velocity](r)
	ecs.RegisterComponent[Health](r)
	ecs.RegisterComponent[Decay](r)
	ecs.RegisterComponent[Frozen](r)
}

func randomBundle(rng *rand.Rand) []any {
	components := []any{Position{X: rng.Float64() * 1000, Y: rng.Float64() * 1000}}
	if rng.Intn(4) != 0 {
		components = append(components, Velocity{DX: rng.NormFloat64(), DY: rng.NormFloat64()})
	}
	if rng.Intn(2) == 0 {
		components = append(components, Health{Current: 100, Max: 100}, Decay{PerTick: 1 + rng.Intn(5)})
	}
	if rng.Intn(10) == 0 {
		components = append(components, Frozen{})
	}
	return components
}

type ClockSystem struct {
	Clock ecs.ResMut[Clock]
}

func (s *ClockSystem) Execute(frame *ecs.UpdateFrame) error {
	clock := s.Clock.Get()
	clock.Elapsed += frame.DeltaTime
	clock.Ticks++
	return nil
}

type movement struct {
	Pos *Position `ecs:"write"`
	Vel *Velocity
}

type MovementSystem struct {
	Moving ecs.FilteredQuery[movement, ecs.Without[Frozen]]
}

func (s *MovementSystem) Execute(frame *ecs.UpdateFrame) error {
	for m := range s.Moving.Values() {
		m.Pos.X = math.Mod(m.Pos.X+m.Vel.DX*frame.DeltaTime*60, 1000)
		m.Pos.Y = math.Mod(m.Pos.Y+m.Vel.DY*frame.DeltaTime*60, 1000)
	}
	return nil
}

type decaying struct {
	Health *Health `ecs:"write"`
	Decay  *Decay
}

type DecaySystem struct {
	Decaying ecs.Query[decaying]
}

func (s *DecaySystem) Execute(frame *ecs.UpdateFrame) error {
	for e, d := range s.Decaying.Iter() {
		d.Health.Current -= d.Decay.PerTick
		if d.Health.Current <= 0 {
			frame.Commands.Despawn(e)
		}
	}
	return nil
}

// RespawnSystem keeps the population steady.
type RespawnSystem struct {
	Target int
	rng    *rand.Rand
}

func (s *RespawnSystem) Execute(frame *ecs.UpdateFrame) error {
	missing := s.Target - frame.World.Len()
	for i := 0; i < missing; i++ {
		frame.Commands.Spawn(randomBundle(s.rng)...)
	}
	return nil
}

const pulseManifest = `
system heal in update {
	write Health
	without Frozen
	resource read Clock
	where "Health.Current < Health.Max / 2"
}
`

// loadPulseScript registers a script system that heals damaged entities.
func loadPulseScript(host *script.Host) error {
	_, err := host.Load(script.Script{
		Name:     "pulse",
		Manifest: pulseManifest,
		Handlers: map[string]script.Handler{
			"heal": func(ctx *script.Context) error {
				rows, err := ctx.Rows()
				if err != nil {
					return err
				}
				for _, row := range rows {
					v, err := ctx.Get(row, "Health")
					if err != nil {
						return err
					}
					h := v.(Health)
					h.Current += 2
					if err := ctx.Set(row, "Health", h); err != nil {
						return err
					}
				}
				return nil
			},
		},
	})
	return err
}
