package config

import (
	"fmt"

	"github.com/dcshock/runpipe/pipeline"
	"github.com/dcshock/runpipe/scope"
)

// DefaultBatchSize is used for pipelines that do not set batch_size.
const DefaultBatchSize = 1000

// BuildStages returns new stage instances for cfg.
func BuildStages(reg *Registry, cfg *PipelineConfig) ([]pipeline.Stage, error) {
	stages := make([]pipeline.Stage, 0, len(cfg.Stages))
	for i, ref := range cfg.Stages {
		if ref.Name == "" {
			return nil, fmt.Errorf("stage %d: name required", i)
		}
		stage, err := reg.Build(ref)
		if err != nil {
			return nil, fmt.Errorf("stage %d: %w", i, err)
		}
		stages = append(stages, stage)
	}
	return stages, nil
}

// BuildDefinition turns cfg into a scope definition. Every stage is built once
// up front so unknown names and bad args are reported at load time; the
// definition's factory builds fresh instances for each run.
func BuildDefinition(reg *Registry, cfg PipelineConfig) (scope.Definition, error) {
	if len(cfg.Stages) == 0 {
		return scope.Definition{}, fmt.Errorf("pipeline %q: %w", cfg.Name, pipeline.ErrNoStages)
	}
	if _, err := BuildStages(reg, &cfg); err != nil {
		return scope.Definition{}, fmt.Errorf("pipeline %q: %w", cfg.Name, err)
	}
	batchSize := cfg.BatchSize
	if batchSize == 0 {
		batchSize = DefaultBatchSize
	}
	return scope.Definition{
		Name:        cfg.Name,
		BatchSize:   batchSize,
		Annotations: cfg.Annotations,
		Retry:       cfg.Retry.Policy(),
		Stages: func() ([]pipeline.Stage, error) {
			return BuildStages(reg, &cfg)
		},
	}, nil
}

// BuildScope builds a scope from cfg. opts are applied after the config's
// own annotations and config, so callers can add a logger or reporters.
func BuildScope(reg *Registry, cfg *ScopeConfig, opts ...scope.Option) (*scope.Scope, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: scope config is nil", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	all := append([]scope.Option{
		scope.WithAnnotations(cfg.Annotations),
		scope.WithConfig(cfg.Config),
	}, opts...)
	s := scope.New(cfg.Name, all...)
	for _, pc := range cfg.Pipelines {
		def, err := BuildDefinition(reg, pc)
		if err != nil {
			return nil, fmt.Errorf("scope %q: %w", cfg.Name, err)
		}
		if err := s.Add(def); err != nil {
			return nil, fmt.Errorf("scope %q: %w", cfg.Name, err)
		}
	}
	return s, nil
}

// BuildProject builds one scope per config and groups them.
func BuildProject(reg *Registry, cfgs []*ScopeConfig, opts ...scope.Option) (*scope.Project, error) {
	scopes := make([]*scope.Scope, 0, len(cfgs))
	for _, cfg := range cfgs {
		s, err := BuildScope(reg, cfg, opts...)
		if err != nil {
			return nil, err
		}
		scopes = append(scopes, s)
	}
	return scope.NewProject(scopes...)
}
