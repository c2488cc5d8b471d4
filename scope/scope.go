package scope

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/dcshock/runpipe/checkpoint"
	"github.com/dcshock/runpipe/pipeline"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrMissingPipeline is returned by Delete when the pipeline is not defined
	// and missingOK is false.
	ErrMissingPipeline = errors.New("pipeline not found in scope")
	// ErrDuplicatePipeline is returned by Add when the name is already taken.
	ErrDuplicatePipeline = errors.New("pipeline already defined in scope")
	// ErrInvalidDefinition is returned by Add for a definition without a name or stages.
	ErrInvalidDefinition = errors.New("invalid pipeline definition")
	// ErrNoStore is returned by RunRequest when the request carries no checkpoint store.
	ErrNoStore = errors.New("run request has no checkpoint store")
)

// StageFactory returns new stage instances for one run.
type StageFactory func() ([]pipeline.Stage, error)

// Definition describes how to build a pipeline.
type Definition struct {
	Name        string
	BatchSize   int
	Stages      StageFactory
	Annotations map[string]string
	// Retry is applied with pipeline.Supervise when MaxAttempts > 1.
	Retry pipeline.RetryPolicy
}

// ReporterFactory returns the reporter for one run of scope/pipeline. It is how
// metrics get their labels without a process-wide lookup.
type ReporterFactory func(scope, pipeline string) pipeline.Reporter

// RunRequest asks a scope to run one pipeline.
type RunRequest struct {
	Pipeline string
	// Store is the root checkpoint store. The run uses
	// Store.Namespaced(scope).Namespaced(pipeline).
	Store checkpoint.Store
	// Reporter is combined with the scope's reporter factory, if any.
	Reporter pipeline.Reporter
	// Config is merged over the scope config; request keys win.
	Config      map[string]any
	Annotations map[string]string
}

// Scope is a named, concurrency-safe collection of pipeline definitions.
type Scope struct {
	Name        string
	Config      map[string]any
	Annotations map[string]string
	Reporters   ReporterFactory
	Logger      *slog.Logger

	mu    sync.RWMutex
	defs  map[string]Definition
	locks map[string]*sync.Mutex
}

// Option configures a Scope.
type Option func(*Scope)

// WithConfig sets the config attached to every run request.
func WithConfig(c map[string]any) Option { return func(s *Scope) { s.Config = c } }

// WithAnnotations sets annotations merged into every run context.
func WithAnnotations(a map[string]string) Option { return func(s *Scope) { s.Annotations = a } }

// WithReporters sets the per-run reporter factory.
func WithReporters(f ReporterFactory) Option { return func(s *Scope) { s.Reporters = f } }

// WithLogger sets the logger passed to every pipeline.
func WithLogger(l *slog.Logger) Option { return func(s *Scope) { s.Logger = l } }

// New returns an empty scope.
func New(name string, opts ...Option) *Scope {
	s := &Scope{
		Name:  name,
		defs:  make(map[string]Definition),
		locks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scope) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.Logger
}

// Add registers def. Names are unique within a scope.
func (s *Scope) Add(def Definition) error {
	if def.Name == "" || def.Stages == nil {
		return fmt.Errorf("%w: name and stages are required", ErrInvalidDefinition)
	}
	if def.BatchSize <= 0 {
		return fmt.Errorf("%w: pipeline %q: %w", ErrInvalidDefinition, def.Name, pipeline.ErrInvalidBatchSize)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.defs[def.Name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicatePipeline, def.Name)
	}
	s.defs[def.Name] = def
	if _, ok := s.locks[def.Name]; !ok {
		s.locks[def.Name] = &sync.Mutex{}
	}
	return nil
}

// Get returns the definition for name.
func (s *Scope) Get(name string) (Definition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.defs[name]
	return def, ok
}

// Contains reports whether name is defined.
func (s *Scope) Contains(name string) bool {
	_, ok := s.Get(name)
	return ok
}

// Names returns the defined pipeline names, sorted.
func (s *Scope) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.defs))
}

// Len returns the number of definitions.
func (s *Scope) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.defs)
}

// Delete removes the definition for name. Removing a missing pipeline is an
// error unless missingOK is set.
func (s *Scope) Delete(name string, missingOK bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.defs[name]; !ok {
		if missingOK {
			return nil
		}
		return fmt.Errorf("%w: %q in scope %q", ErrMissingPipeline, name, s.Name)
	}
	// Keep the lock: a run of the deleted definition may still hold it.
	delete(s.defs, name)
	return nil
}

func (s *Scope) lookup(name string) (Definition, *sync.Mutex, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.defs[name]
	return def, s.locks[name], ok
}

// Build returns a fresh pipeline for def, bound to store (already namespaced
// to the pipeline) and to the scope's config and annotations.
func (s *Scope) Build(def Definition, store checkpoint.Store, config map[string]any, annotations map[string]string) (*pipeline.Pipeline, error) {
	stages, err := def.Stages()
	if err != nil {
		return nil, fmt.Errorf("stages for %q: %w", def.Name, err)
	}
	return pipeline.New(def.Name, stages, def.BatchSize, store,
		pipeline.WithScope(s.Name),
		pipeline.WithLogger(s.logger()),
		pipeline.WithConfig(merge(s.Config, config)),
		pipeline.WithAnnotations(merge(s.Annotations, def.Annotations, annotations)),
	)
}

// PipelineStore returns the checkpoint namespace runs of name use under root.
func (s *Scope) PipelineStore(root checkpoint.Store, name string) checkpoint.Store {
	return root.Namespaced(s.Name).Namespaced(name)
}

// RunRequest runs the requested pipeline. It returns 0 and a nil error if the
// scope has no such pipeline, and 1 if it was run, together with the run's
// error if it failed.
func (s *Scope) RunRequest(ctx context.Context, req RunRequest) (int, error) {
	log := s.logger().With("scope", s.Name, "pipeline", req.Pipeline)
	def, lock, ok := s.lookup(req.Pipeline)
	if !ok {
		log.DebugContext(ctx, "no such pipeline, skipping run request")
		return 0, nil
	}
	if req.Store == nil {
		return 0, ErrNoStore
	}

	lock.Lock()
	defer lock.Unlock()

	store := s.PipelineStore(req.Store, def.Name)
	build := func() (*pipeline.Pipeline, error) {
		return s.Build(def, store, req.Config, req.Annotations)
	}
	reporter := s.reporter(def.Name, req.Reporter)

	var (
		processed int
		err       error
	)
	if def.Retry.MaxAttempts > 1 {
		processed, err = pipeline.Supervise(ctx, build, reporter, def.Retry, log)
	} else {
		var p *pipeline.Pipeline
		if p, err = build(); err == nil {
			processed, err = p.Run(ctx, reporter)
		}
	}
	if err != nil {
		return 1, fmt.Errorf("run %s/%s: %w", s.Name, def.Name, err)
	}
	log.InfoContext(ctx, "run request completed", "processed", processed)
	return 1, nil
}

func (s *Scope) reporter(name string, extra pipeline.Reporter) pipeline.Reporter {
	var reporters []pipeline.Reporter
	if s.Reporters != nil {
		reporters = append(reporters, s.Reporters(s.Name, name))
	}
	if extra != nil {
		reporters = append(reporters, extra)
	}
	switch len(reporters) {
	case 0:
		return pipeline.NopReporter{}
	case 1:
		return reporters[0]
	}
	return pipeline.MultiReporter(reporters...)
}

// RunAll runs every pipeline in the scope with req as the template, at most
// limit at a time (limit <= 0 means no limit). It returns the number of
// pipelines run and the first error. A failing pipeline does not cancel the
// others.
func (s *Scope) RunAll(ctx context.Context, req RunRequest, limit int) (int, error) {
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	var executed atomic.Int64
	for _, name := range s.Names() {
		r := req
		r.Pipeline = name
		g.Go(func() error {
			n, err := s.RunRequest(ctx, r)
			executed.Add(int64(n))
			return err
		})
	}
	err := g.Wait()
	return int(executed.Load()), err
}

func merge[M ~map[K]V, K comparable, V any](layers ...M) M {
	out := make(M)
	for _, m := range layers {
		maps.Copy(out, m)
	}
	return out
}
