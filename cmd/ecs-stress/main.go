package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"runtime"
	"time"

	"github.com/pkg/profile"
	"github.com/rs/zerolog/log"

	"github.com/plus3/loom/ecs"
	"github.com/plus3/loom/ecs/script"
	"github.com/plus3/loom/internal/statsd"
)

func main() {
	duration := flag.Duration("duration", 10*time.Second, "The total duration the test should run for.")
	entityCount := flag.Int("entities", 10000, "The number of entities kept alive.")
	parallel := flag.Bool("parallel", false, "Run non-conflicting systems concurrently (overrides LOOM_PARALLEL).")
	scripts := flag.Bool("scripts", true, "Load the script-backed heal system.")
	profileMode := flag.String("profile", "", "Write a cpu or mem profile to the working directory.")
	gcPauseMetrics := flag.Bool("gc-pause-metrics", false, "Enable detailed GC pause metrics in the report.")
	flag.Parse()

	cfg, err := ecs.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if *parallel {
		cfg.Parallel = true
	}
	log.Logger = cfg.Logger()

	if cfg.StatsdAddress != "" {
		if err := statsd.Init(cfg.StatsdAddress, []string{"app:ecs-stress"}); err != nil {
			log.Fatal().Err(err).Msg("failed to init statsd")
		}
	}

	switch *profileMode {
	case "":
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	case "mem":
		defer profile.Start(profile.MemProfileAllocs, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	default:
		log.Fatal().Str("profile", *profileMode).Msg("unknown profile mode")
	}

	log.Info().Bool("parallel", cfg.Parallel).Int("workers", cfg.Workers).Msg("starting ECS stress test")

	world := ecs.NewWorld(cfg.Options()...)
	registerComponents(world.Registry())
	if err := ecs.AddResource(world, Clock{}); err != nil {
		log.Fatal().Err(err).Msg("failed to add clock")
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	systems := []struct {
		stage  ecs.Stage
		system ecs.System
	}{
		{ecs.PreUpdate, &ClockSystem{}},
		{ecs.Update, &MovementSystem{}},
		{ecs.Update, &DecaySystem{}},
		{ecs.PostUpdate, &RespawnSystem{Target: *entityCount, rng: rng}},
	}
	for _, s := range systems {
		if err := world.AddSystem(s.stage, s.system); err != nil {
			log.Fatal().Err(err).Msg("failed to register system")
		}
	}

	host := script.NewHost(world)
	if *scripts {
		if err := loadPulseScript(host); err != nil {
			log.Fatal().Err(err).Msg("failed to load script")
		}
	}

	log.Info().Int("entities", *entityCount).Msg("populating world")
	for i := 0; i < *entityCount; i++ {
		if _, err := world.Spawn(randomBundle(rng)...); err != nil {
			log.Fatal().Err(err).Msg("failed to spawn entity")
		}
	}

	report := &Report{
		Duration:       *duration,
		Entities:       *entityCount,
		Parallel:       cfg.Parallel,
		Workers:        cfg.Workers,
		Scripts:        host.Scripts(),
		GCPauseMetrics: *gcPauseMetrics,
	}
	runtime.ReadMemStats(&report.MemStatsStart)

	log.Info().Stringer("duration", *duration).Msg("running simulation")
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	startTime := time.Now()
	lastFrameTime := time.Now()
	var failures int64

Loop:
	for {
		select {
		case <-ctx.Done():
			break Loop
		default:
			deltaTime := time.Since(lastFrameTime)
			lastFrameTime = time.Now()

			updateStart := time.Now()
			if err := world.Tick(deltaTime.Seconds()); err != nil {
				failures++
				log.Warn().Err(err).Msg("tick failed")
			}
			report.UpdateTime.Samples = append(report.UpdateTime.Samples, time.Since(updateStart))
			report.TotalUpdates++
		}
	}
	if err := world.Shutdown(); err != nil {
		log.Warn().Err(err).Msg("shutdown failed")
	}

	report.TotalTime = time.Since(startTime)
	report.FailedUpdates = failures
	report.UpdateTime.Finalize()
	report.Scheduler = world.Scheduler().GetStats()
	report.Storage = world.CollectStats()
	runtime.ReadMemStats(&report.MemStatsEnd)

	log.Info().Msg("simulation finished")

	fmt.Println("\n\n--- Stress Test Report ---")
	if err := report.Generate(os.Stdout); err != nil {
		log.Fatal().Err(err).Msg("failed to generate report")
	}
	fmt.Println("--- End of Report ---")
}
