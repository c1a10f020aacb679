package ecs

import (
	"os"
	"runtime"

	"github.com/JeremyLoy/config"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// Config holds the environment-tunable settings of a World.
type Config struct {
	Parallel      bool   `config:"LOOM_PARALLEL"`
	Workers       int    `config:"LOOM_WORKERS"`
	LogLevel      string `config:"LOOM_LOG_LEVEL"`
	CompactEvery  int    `config:"LOOM_COMPACT_EVERY"`
	StatsdAddress string `config:"LOOM_STATSD_ADDRESS"`
}

// DefaultConfig returns the settings used when nothing is set in the environment.
func DefaultConfig() Config {
	return Config{
		Workers:  runtime.GOMAXPROCS(0),
		LogLevel: zerolog.InfoLevel.String(),
	}
}

// LoadConfig reads the LOOM_* environment variables over DefaultConfig.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	if err := config.FromEnv().To(&cfg); err != nil {
		return cfg, eris.Wrap(err, "failed to load config from environment")
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the settings for values a World cannot use.
func (c Config) Validate() error {
	if c.Workers < 0 {
		return eris.Errorf("LOOM_WORKERS must not be negative, got %d", c.Workers)
	}
	if c.CompactEvery < 0 {
		return eris.Errorf("LOOM_COMPACT_EVERY must not be negative, got %d", c.CompactEvery)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return eris.Wrapf(err, "invalid LOOM_LOG_LEVEL %q", c.LogLevel)
	}
	return nil
}

// Logger builds a console logger at the configured level.
func (c Config) Logger() zerolog.Logger {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
}

// Options converts the settings to world options.
func (c Config) Options() []WorldOption {
	return []WorldOption{
		WithParallel(c.Parallel),
		WithWorkers(c.Workers),
		WithCompactEvery(c.CompactEvery),
		WithLogger(c.Logger()),
	}
}
