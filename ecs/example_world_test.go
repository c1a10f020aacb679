package ecs_test

import (
	"fmt"

	"github.com/plus3/loom/ecs"
)

// ExampleWorld shows the entity lifecycle. Despawned handles go stale: their slot is reused under a
// new generation and the old handle is rejected.
func ExampleWorld() {
	w := ecs.NewWorld()
	ecs.RegisterComponent[Position](w.Registry())
	ecs.RegisterComponent[Health](w.Registry())

	e, _ := w.Spawn(Position{X: 1, Y: 2})
	ecs.Add(w, e, Health{Current: 10, Max: 10})
	fmt.Println("has health:", ecs.Has[Health](w, e))

	w.Despawn(e)
	reused, _ := w.Spawn(Position{})
	fmt.Println("same slot:", reused.Index() == e.Index())
	fmt.Println("old handle alive:", w.Alive(e))

	_, err := ecs.Get[Position](w, e)
	fmt.Println(err != nil)

	// Output:
	// has health: true
	// same slot: true
	// old handle alive: false
	// true
}

// ExampleCommands defers structural changes until Flush.
func ExampleCommands() {
	w := ecs.NewWorld()
	ecs.RegisterComponent[Name](w.Registry())

	cmds := ecs.NewCommands()
	cmds.SpawnThen(func(e ecs.Entity) {
		fmt.Println("spawned", e)
	}, Name{Value: "hero"})
	fmt.Println("before flush:", w.Len())

	if err := cmds.Flush(w); err != nil {
		panic(err)
	}
	fmt.Println("after flush:", w.Len())

	// Output:
	// before flush: 0
	// spawned 0v1
	// after flush: 1
}

// ExampleAddResource stores a world-global value and borrows it.
func ExampleAddResource() {
	w := ecs.NewWorld()
	ecs.AddResource(w, GameTime{})

	clock, _ := ecs.WriteResource[GameTime](w)
	clock.Get().Frame = 42
	clock.Release()

	res, _ := ecs.ReadResource[GameTime](w)
	fmt.Println("frame:", res.Get().Frame)
	res.Release()

	// Output:
	// frame: 42
}
