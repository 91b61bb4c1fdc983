package main

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Engine computes scenarios for one process, memoizing results by lever set.
// Engines are safe for concurrent use; computations run one at a time
// because the process holds mutable parameters.
type Engine struct {
	name    string
	catalog *Catalog
	process *Process
	cache   *ScenarioCache
	logger  *zerolog.Logger
	mu      sync.Mutex
}

// EngineOption customises an Engine
type EngineOption func(*Engine)

// WithCache makes the engine use an existing, possibly shared, cache
func WithCache(cache *ScenarioCache) EngineOption {
	return func(e *Engine) {
		e.cache = cache
	}
}

// WithCacheCapacity sizes the engine's private cache
func WithCacheCapacity(capacity int) EngineOption {
	return func(e *Engine) {
		e.cache = NewScenarioCache(capacity)
	}
}

// WithName labels the engine in logs and metrics
func WithName(name string) EngineOption {
	return func(e *Engine) {
		e.name = name
	}
}

// WithLogger replaces the engine logger
func WithLogger(logger zerolog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = &logger
	}
}

// NewEngine creates an engine over a lever catalog and a process
func NewEngine(catalog *Catalog, process *Process, opts ...EngineOption) *Engine {
	e := &Engine{
		name:    "default",
		catalog: catalog,
		process: process,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cache == nil {
		e.cache = NewScenarioCache(DefaultCacheCapacity)
	}
	if e.logger == nil {
		l := log.With().Str("component", "engine").Str("engine", e.name).Logger()
		e.logger = &l
	}
	return e
}

// NewEngineFromConfig builds the catalog and process from configuration
func NewEngineFromConfig(cfg *Config, sim Simulator, opts ...EngineOption) (*Engine, error) {
	catalog, err := cfg.Catalog()
	if err != nil {
		return nil, err
	}
	opts = append([]EngineOption{WithCacheCapacity(cfg.Cache.Capacity)}, opts...)
	return NewEngine(catalog, NewProcess(sim, cfg.Baseline), opts...), nil
}

// Name returns the engine label
func (e *Engine) Name() string {
	return e.name
}

// ProcessID returns the identity of the engine's process
func (e *Engine) ProcessID() uuid.UUID {
	return e.process.ID()
}

// Catalog returns the lever catalog
func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

// CacheStats returns the statistics of the engine's cache
func (e *Engine) CacheStats() CacheStats {
	return e.cache.Stats()
}

// Parameters returns the parameter set a computation of leverIDs would simulate
func (e *Engine) Parameters(leverIDs []string) (Parameters, error) {
	canonical, err := e.catalog.Canonical(leverIDs)
	if err != nil {
		return nil, err
	}
	params := e.process.Baseline()
	applyLevers(params, e.catalog.Levers(), toSet(canonical))
	return params, nil
}

// Compute returns the result bundle for a lever selection. An empty
// selection is the reference scenario. The returned bundle is a private copy.
func (e *Engine) Compute(leverIDs []string) (*ResultBundle, error) {
	canonical, err := e.catalog.Canonical(leverIDs)
	if err != nil {
		return nil, err
	}
	key := NewScenarioKey(e.process.ID(), canonical)

	e.mu.Lock()
	defer e.mu.Unlock()

	if bundle, ok := e.cache.Get(key); ok {
		scenarioCacheHits.WithLabelValues(e.name).Inc()
		e.logger.Debug().Strs("levers", canonical).Msg("scenario served from cache")
		return bundle, nil
	}
	scenarioCacheMisses.WithLabelValues(e.name).Inc()

	params := e.process.Baseline()
	applyLevers(params, e.catalog.Levers(), toSet(canonical))
	e.process.Reset()
	for name, v := range params {
		e.process.Set(name, v)
	}

	start := time.Now()
	bundle, err := e.process.Compute()
	elapsed := time.Since(start)
	scenarioComputeDuration.WithLabelValues(e.name).Observe(elapsed.Seconds())
	if err == nil && bundle == nil {
		err = fmt.Errorf("simulator returned no result")
	}
	if err != nil {
		scenarioSimulationFailures.WithLabelValues(e.name).Inc()
		e.logger.Error().Err(err).Strs("levers", canonical).Msg("simulation failed")
		return nil, &SimulationFailure{Levers: canonical, Err: err}
	}

	e.cache.Put(key, bundle)
	e.logger.Info().Strs("levers", canonical).Dur("elapsed", elapsed).Msg("scenario computed")
	return bundle.Clone(), nil
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
