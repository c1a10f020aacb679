package ecs_test

// Common test component types
type Position struct {
	X, Y float32
}

type Velocity struct {
	DX, DY float32
}

type Name struct {
	Value string
}

type Health struct {
	Current int
	Max     int
}

type PlayerController struct{}

type Frozen struct{}

// Custom primitive types for testing non-struct components
type Score int32
type Tag string

type CompA struct{ V int }
type CompB struct{ V int }
type CompC struct{ V int }

type GameTime struct {
	Elapsed float64
	Frame   int
}
