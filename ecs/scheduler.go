package ecs

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sync"
	"time"

	"github.com/plus3/loom/internal/statsd"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// SchedulerStats provides statistics about scheduler execution.
type SchedulerStats struct {
	SystemCount     int
	TotalExecutions int64
	Ticks           int64
	Systems         []SystemStats
}

// SystemStats provides execution statistics for a single system.
type SystemStats struct {
	Name           string
	Stage          Stage
	ExecutionCount int64
	FailureCount   int64
	MinDuration    time.Duration
	MaxDuration    time.Duration
	AvgDuration    time.Duration
	LastDuration   time.Duration
	TotalDuration  time.Duration
}

type systemStatsInternal struct {
	mu             sync.Mutex
	executionCount int64
	failureCount   int64
	minDuration    time.Duration
	maxDuration    time.Duration
	totalDuration  time.Duration
	lastDuration   time.Duration
}

func (s *systemStatsInternal) record(d time.Duration, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executionCount++
	if failed {
		s.failureCount++
	}
	s.lastDuration = d
	s.totalDuration += d
	if s.executionCount == 1 || d < s.minDuration {
		s.minDuration = d
	}
	s.maxDuration = max(s.maxDuration, d)
}

type systemEntry struct {
	name     string
	stage    Stage
	system   System
	params   []SystemParam
	options  systemOptions
	commands *Commands
	stats    *systemStatsInternal
}

// access merges the field access, the registration access and whatever the system declares.
func (e *systemEntry) access() AccessSet {
	var set AccessSet
	for _, p := range e.params {
		set.Merge(p.Access())
	}
	set.Merge(e.options.access)
	if d, ok := e.system.(AccessDeclarer); ok {
		set.Merge(d.Access())
	}
	set.Exclusive = set.Exclusive || e.options.exclusive
	return set
}

// Scheduler runs systems stage by stage. Within a stage systems run in registration order; with
// parallel execution enabled, consecutive systems whose access sets do not conflict run
// concurrently. Exclusive systems always run alone.
type Scheduler struct {
	world        *World
	mu           sync.Mutex
	stages       []Stage
	systems      [stageCount][]*systemEntry
	parallel     bool
	workers      int
	compactEvery int
	ticks        int64
	started      bool
	stopped      bool
	logger       zerolog.Logger
}

func newScheduler(w *World, cfg *worldConfig) *Scheduler {
	return &Scheduler{
		world:        w,
		stages:       slices.Clone(cfg.stages),
		parallel:     cfg.parallel,
		workers:      cfg.workers,
		compactEvery: cfg.compactEvery,
		logger:       cfg.logger,
	}
}

// Stages returns the stage order.
func (s *Scheduler) Stages() []Stage {
	return slices.Clone(s.stages)
}

// Register adds a system to a stage and binds its Query, FilteredQuery, Res and ResMut fields.
func (s *Scheduler) Register(stage Stage, system System, opts ...SystemOption) error {
	if !slices.Contains(s.stages, stage) {
		return eris.Wrapf(ErrUnknownStage, "stage %s", stage)
	}

	var options systemOptions
	for _, opt := range opts {
		opt(&options)
	}

	params, err := s.bindParams(system)
	if err != nil {
		return eris.Wrapf(err, "failed to register system %s", systemName(system))
	}

	entry := &systemEntry{
		name:     options.name,
		stage:    stage,
		system:   system,
		params:   params,
		options:  options,
		commands: NewCommands(),
		stats:    &systemStatsInternal{},
	}
	if entry.name == "" {
		entry.name = systemName(system)
	}

	s.mu.Lock()
	s.systems[stage] = append(s.systems[stage], entry)
	s.mu.Unlock()

	s.logger.Debug().
		Str("system", entry.name).
		Stringer("stage", stage).
		Bool("exclusive", options.exclusive).
		Int("params", len(params)).
		Msg("system registered")
	return nil
}

// Unregister removes a system previously passed to Register.
func (s *Scheduler) Unregister(stage Stage, system System) bool {
	if stage >= stageCount {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, entry := range s.systems[stage] {
		if entry.system == system {
			s.systems[stage] = slices.Delete(s.systems[stage], i, i+1)
			return true
		}
	}
	return false
}

func (s *Scheduler) bindParams(system System) ([]SystemParam, error) {
	systemValue := reflect.ValueOf(system)
	if systemValue.Kind() == reflect.Pointer {
		systemValue = systemValue.Elem()
	}
	if systemValue.Kind() != reflect.Struct {
		return nil, nil
	}

	systemType := systemValue.Type()
	var params []SystemParam
	for i := 0; i < systemValue.NumField(); i++ {
		field := systemValue.Field(i)
		if !field.CanSet() || !field.CanAddr() {
			continue
		}
		param, ok := field.Addr().Interface().(SystemParam)
		if !ok {
			continue
		}
		if err := param.bind(s.world); err != nil {
			return nil, eris.Wrapf(err, "field %s", systemType.Field(i).Name)
		}
		params = append(params, param)
	}
	return params, nil
}

func systemName(system System) string {
	if n, ok := system.(Named); ok {
		return n.Name()
	}
	t := reflect.TypeOf(system)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() != "" {
		return t.Name()
	}
	return t.String()
}

func (s *Scheduler) snapshot(stage Stage) []*systemEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.systems[stage])
}

// RunStage runs every system of one stage. The first failing or panicking system aborts the
// stage; buffered commands of an aborted stage are discarded. Otherwise each system's commands are
// flushed in registration order after all guards have been released.
func (s *Scheduler) RunStage(stage Stage, dt float64) error {
	if !slices.Contains(s.stages, stage) {
		return eris.Wrapf(ErrUnknownStage, "stage %s", stage)
	}
	start := time.Now()
	defer statsd.EmitStageStat(start, stage.String())

	entries := s.snapshot(stage)
	for _, batch := range s.batches(entries) {
		if err := s.runBatch(stage, batch, dt); err != nil {
			for _, entry := range entries {
				entry.commands.Reset()
			}
			statsd.CountStageFailure(stage.String())
			s.logger.Error().Err(err).Stringer("stage", stage).Msg("stage aborted")
			return eris.Wrapf(err, "stage %s failed", stage)
		}
	}

	var errs []error
	for _, entry := range entries {
		if err := entry.commands.Flush(s.world); err != nil {
			errs = append(errs, eris.Wrapf(err, "commands of system %s", entry.name))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return eris.Wrapf(err, "stage %s failed to apply commands", stage)
	}

	s.logger.Trace().Stringer("stage", stage).Dur("took", time.Since(start)).Msg("stage finished")
	return nil
}

// batches groups consecutive non-conflicting systems. Without parallel execution every system is
// its own batch.
func (s *Scheduler) batches(entries []*systemEntry) [][]*systemEntry {
	if !s.parallel {
		out := make([][]*systemEntry, len(entries))
		for i, entry := range entries {
			out[i] = []*systemEntry{entry}
		}
		return out
	}

	var (
		out      [][]*systemEntry
		current  []*systemEntry
		accesses []AccessSet
	)
	flush := func() {
		if len(current) > 0 {
			out = append(out, current)
		}
		current, accesses = nil, nil
	}
	for _, entry := range entries {
		access := entry.access()
		if access.Exclusive {
			flush()
			out = append(out, []*systemEntry{entry})
			continue
		}
		for _, other := range accesses {
			if other.Conflicts(access) {
				flush()
				break
			}
		}
		current = append(current, entry)
		accesses = append(accesses, access)
	}
	flush()
	return out
}

func (s *Scheduler) runBatch(stage Stage, batch []*systemEntry, dt float64) error {
	if len(batch) == 1 {
		return s.runSystem(stage, batch[0], dt)
	}

	var g errgroup.Group
	g.SetLimit(s.workers)
	for _, entry := range batch {
		g.Go(func() error {
			return s.runSystem(stage, entry, dt)
		})
	}
	return g.Wait()
}

func (s *Scheduler) runSystem(stage Stage, entry *systemEntry, dt float64) (err error) {
	frame := &UpdateFrame{
		Stage:     stage,
		DeltaTime: dt,
		Commands:  entry.commands,
		World:     s.world,
		System:    entry.name,
		access:    entry.access(),
	}

	start := time.Now()
	defer func() {
		for _, p := range entry.params {
			p.Release()
		}
		if r := recover(); r != nil {
			err = eris.Wrapf(ErrSystemPanicked, "system %s: %v", entry.name, r)
			s.logger.Error().
				Str("system", entry.name).
				Stringer("stage", stage).
				Str("panic", fmt.Sprint(r)).
				Msg("system panicked")
		}
		duration := time.Since(start)
		entry.stats.record(duration, err != nil)
		statsd.EmitSystemStat(duration, stage.String(), entry.name)
	}()

	for _, p := range entry.params {
		p.Execute()
	}
	if err := entry.system.Execute(frame); err != nil {
		return eris.Wrapf(err, "system %s failed", entry.name)
	}
	return nil
}

// Once runs one tick: Startup the first time, then every per-tick stage in order. It stops at the
// first failing stage.
func (s *Scheduler) Once(dt float64) error {
	if !s.started {
		s.started = true
		if slices.Contains(s.stages, Startup) {
			if err := s.RunStage(Startup, dt); err != nil {
				return err
			}
		}
	}

	for _, stage := range s.stages {
		if !tickStage(stage) {
			continue
		}
		if err := s.RunStage(stage, dt); err != nil {
			return err
		}
	}

	s.ticks++
	if s.compactEvery > 0 && s.ticks%int64(s.compactEvery) == 0 {
		if err := s.world.Compact(); err != nil {
			return eris.Wrap(err, "failed to compact world")
		}
	}
	return nil
}

// Shutdown runs the Shutdown stage. Later calls do nothing.
func (s *Scheduler) Shutdown() error {
	if s.stopped || !slices.Contains(s.stages, Shutdown) {
		return nil
	}
	s.stopped = true
	return s.RunStage(Shutdown, 0)
}

// Run ticks at the given interval until the context is cancelled or a stage fails. Cancellation
// runs the Shutdown stage.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			return s.Shutdown()
		case now := <-ticker.C:
			dt := now.Sub(lastTime).Seconds()
			lastTime = now
			if err := s.Once(dt); err != nil {
				return err
			}
		}
	}
}

// GetStats returns statistics about system execution, in stage then registration order.
func (s *Scheduler) GetStats() *SchedulerStats {
	stats := &SchedulerStats{Ticks: s.ticks}

	for _, stage := range s.stages {
		for _, entry := range s.snapshot(stage) {
			internal := entry.stats
			internal.mu.Lock()
			avgDuration := time.Duration(0)
			if internal.executionCount > 0 {
				avgDuration = internal.totalDuration / time.Duration(internal.executionCount)
			}
			stats.Systems = append(stats.Systems, SystemStats{
				Name:           entry.name,
				Stage:          stage,
				ExecutionCount: internal.executionCount,
				FailureCount:   internal.failureCount,
				MinDuration:    internal.minDuration,
				MaxDuration:    internal.maxDuration,
				AvgDuration:    avgDuration,
				LastDuration:   internal.lastDuration,
				TotalDuration:  internal.totalDuration,
			})
			stats.TotalExecutions += internal.executionCount
			internal.mu.Unlock()
		}
	}
	stats.SystemCount = len(stats.Systems)
	return stats
}

// AddSystem registers a system on the world's scheduler.
func (w *World) AddSystem(stage Stage, system System, opts ...SystemOption) error {
	return w.scheduler.Register(stage, system, opts...)
}

// RunStage runs one stage of the world's scheduler.
func (w *World) RunStage(stage Stage, dt float64) error {
	return w.scheduler.RunStage(stage, dt)
}

// Tick runs one tick of the world's scheduler.
func (w *World) Tick(dt float64) error {
	return w.scheduler.Once(dt)
}

// Shutdown runs the Shutdown stage of the world's scheduler.
func (w *World) Shutdown() error {
	return w.scheduler.Shutdown()
}
