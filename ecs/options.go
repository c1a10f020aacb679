package ecs

import (
	"runtime"

	"github.com/rs/zerolog"
)

type worldConfig struct {
	registry     *Registry
	logger       zerolog.Logger
	parallel     bool
	workers      int
	stages       []Stage
	compactEvery int
}

func newWorldConfig() *worldConfig {
	return &worldConfig{
		logger:  zerolog.Nop(),
		workers: runtime.GOMAXPROCS(0),
		stages:  DefaultStages(),
	}
}

// WorldOption configures a World.
type WorldOption func(*worldConfig)

// WithRegistry makes the world use an existing registry, for example one shared with a script host.
func WithRegistry(r *Registry) WorldOption {
	return func(c *worldConfig) { c.registry = r }
}

// WithLogger sets the logger used by the world and its scheduler.
func WithLogger(logger zerolog.Logger) WorldOption {
	return func(c *worldConfig) { c.logger = logger }
}

// WithParallel lets the scheduler run non-conflicting systems of a stage concurrently.
func WithParallel(enabled bool) WorldOption {
	return func(c *worldConfig) { c.parallel = enabled }
}

// WithWorkers bounds the number of systems run concurrently in parallel mode.
func WithWorkers(n int) WorldOption {
	return func(c *worldConfig) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithStages replaces the stage order. Unknown stages are rejected at registration time.
func WithStages(stages ...Stage) WorldOption {
	return func(c *worldConfig) { c.stages = stages }
}

// WithCompactEvery compacts the world after every n ticks. Zero disables compaction.
func WithCompactEvery(n int) WorldOption {
	return func(c *worldConfig) { c.compactEvery = n }
}
