package ecs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plus3/loom/ecs"
)

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := ecs.LoadConfig()
		require.NoError(t, err)
		assert.False(t, cfg.Parallel)
		assert.Positive(t, cfg.Workers)
		assert.Equal(t, "info", cfg.LogLevel)
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("LOOM_PARALLEL", "true")
		t.Setenv("LOOM_WORKERS", "3")
		t.Setenv("LOOM_LOG_LEVEL", "debug")
		t.Setenv("LOOM_COMPACT_EVERY", "60")

		cfg, err := ecs.LoadConfig()
		require.NoError(t, err)
		assert.True(t, cfg.Parallel)
		assert.Equal(t, 3, cfg.Workers)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, 60, cfg.CompactEvery)

		w := ecs.NewWorld(cfg.Options()...)
		assert.NotNil(t, w.Scheduler())
	})

	t.Run("invalid values", func(t *testing.T) {
		t.Setenv("LOOM_LOG_LEVEL", "loud")
		_, err := ecs.LoadConfig()
		assert.Error(t, err)
	})

	t.Run("validate", func(t *testing.T) {
		cfg := ecs.DefaultConfig()
		require.NoError(t, cfg.Validate())
		cfg.Workers = -1
		assert.Error(t, cfg.Validate())
	})
}
