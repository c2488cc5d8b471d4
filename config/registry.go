package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/dcshock/runpipe/pipeline"
)

// ErrUnknownStage is returned when a config references a stage name that is not registered.
var ErrUnknownStage = errors.New("stage not registered")

// StageFactory builds a new stage instance from its config args. It is called
// once per run so stages with private state are never shared between runs.
type StageFactory func(args Args) (pipeline.Stage, error)

// Registry maps stage names to factories. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]StageFactory
}

// NewRegistry returns an empty stage registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]StageFactory)}
}

// Register adds a factory under the given name. Overwrites any existing registration.
func (r *Registry) Register(name string, f StageFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.factories == nil {
		r.factories = make(map[string]StageFactory)
	}
	r.factories[name] = f
}

// RegisterStage registers a stage that takes no args. newStage is called for every run.
func (r *Registry) RegisterStage(name string, newStage func() pipeline.Stage) {
	r.Register(name, func(Args) (pipeline.Stage, error) { return newStage(), nil })
}

// Get returns the factory for name, or nil and false if not found.
func (r *Registry) Get(name string) (StageFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	return f, ok
}

// MustGet returns the factory for name, or panics if not found.
func (r *Registry) MustGet(name string) StageFactory {
	f, ok := r.Get(name)
	if !ok {
		panic(fmt.Sprintf("config: stage %q not registered", name))
	}
	return f
}

// Names returns all registered stage names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.factories))
}

// Build returns a new stage for ref. Stages without a name of their own are
// named after ref.Name so errors point at the config entry.
func (r *Registry) Build(ref StageRef) (pipeline.Stage, error) {
	f, ok := r.Get(ref.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStage, ref.Name)
	}
	stage, err := f(ref.Args)
	if err != nil {
		return nil, fmt.Errorf("stage %q: %w", ref.Name, err)
	}
	if _, named := stage.(pipeline.Namer); !named {
		stage = pipeline.Named(ref.Name, stage)
	}
	if ref.Timeout > 0 {
		stage = pipeline.WithTimeout(stage, ref.Timeout.Duration())
	}
	return stage, nil
}
