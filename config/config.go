package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dcshock/runpipe/pipeline"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when a scope file is structurally invalid.
var ErrInvalidConfig = errors.New("invalid pipeline config")

// ScopeConfig is the root structure of a scope file.
type ScopeConfig struct {
	Name        string            `yaml:"name"`
	Annotations map[string]string `yaml:"annotations,omitempty"`
	// Config is attached to every run request dispatched by the scope.
	Config    map[string]any   `yaml:"config,omitempty"`
	Pipelines []PipelineConfig `yaml:"pipelines"`
}

// PipelineConfig defines one pipeline of a scope.
type PipelineConfig struct {
	Name        string            `yaml:"name"`
	BatchSize   int               `yaml:"batch_size,omitempty"` // DefaultBatchSize if zero
	Annotations map[string]string `yaml:"annotations,omitempty"`
	Stages      []StageRef        `yaml:"stages"`
	Retry       *RetryConfig      `yaml:"retry,omitempty"`
}

// StageRef is a single stage entry: either a plain registered name or name + options.
// In YAML, a stage can be written as:
//   - identity
//   - name: range
//     args: {end: 1000, resumable: true}
//     timeout: 60s
type StageRef struct {
	Name string `yaml:"name"`

	// Args are passed to the registered StageFactory.
	Args Args `yaml:"args,omitempty"`

	// Timeout applied around the stage per input record (e.g. "60s").
	Timeout Duration `yaml:"timeout,omitempty"`
}

// UnmarshalYAML allows a stage to be a string (stage name only) or a struct.
func (s *StageRef) UnmarshalYAML(value *yaml.Node) error {
	var nameOnly string
	if err := value.Decode(&nameOnly); err == nil {
		s.Name = nameOnly
		return nil
	}
	type raw StageRef
	return value.Decode((*raw)(s))
}

// MarshalYAML writes a stage without options in the short string form.
func (s StageRef) MarshalYAML() (interface{}, error) {
	if len(s.Args) == 0 && s.Timeout == 0 {
		return s.Name, nil
	}
	type raw StageRef
	return raw(s), nil
}

// RetryConfig maps to pipeline.RetryPolicy.
type RetryConfig struct {
	MaxAttempts int      `yaml:"max_attempts"`
	Initial     Duration `yaml:"initial,omitempty"`
	Multiplier  float64  `yaml:"multiplier,omitempty"`
	Cap         Duration `yaml:"cap,omitempty"`
	// RetryableOnly retries only errors marked with pipeline.RetryableErr.
	RetryableOnly bool `yaml:"retryable_only,omitempty"`
}

// Policy returns the retry policy for Supervise.
func (r *RetryConfig) Policy() pipeline.RetryPolicy {
	if r == nil {
		return pipeline.RetryPolicy{}
	}
	policy := pipeline.RetryPolicy{
		MaxAttempts: r.MaxAttempts,
		Initial:     r.Initial.Duration(),
		Multiplier:  r.Multiplier,
		Cap:         r.Cap.Duration(),
	}
	if r.RetryableOnly {
		policy.ShouldRetry = pipeline.IsRetryable
	}
	return policy
}

// Duration is a time.Duration that unmarshals from YAML strings (e.g. "60s", "5m").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the standard time.Duration.
func (d Duration) Duration() time.Duration { return time.Duration(d) }

// Validate checks names and stage lists. It does not resolve stages.
func (c *ScopeConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: scope name required", ErrInvalidConfig)
	}
	seen := make(map[string]bool, len(c.Pipelines))
	for i, p := range c.Pipelines {
		if p.Name == "" {
			return fmt.Errorf("%w: scope %q pipeline %d: name required", ErrInvalidConfig, c.Name, i)
		}
		if seen[p.Name] {
			return fmt.Errorf("%w: scope %q: duplicate pipeline %q", ErrInvalidConfig, c.Name, p.Name)
		}
		seen[p.Name] = true
		if len(p.Stages) == 0 {
			return fmt.Errorf("%w: pipeline %q: %w", ErrInvalidConfig, p.Name, pipeline.ErrNoStages)
		}
		if p.BatchSize < 0 {
			return fmt.Errorf("%w: pipeline %q: %w", ErrInvalidConfig, p.Name, pipeline.ErrInvalidBatchSize)
		}
		for j, s := range p.Stages {
			if s.Name == "" {
				return fmt.Errorf("%w: pipeline %q stage %d: name required", ErrInvalidConfig, p.Name, j)
			}
		}
	}
	return nil
}

// Pipeline returns the named pipeline config.
func (c *ScopeConfig) Pipeline(name string) (*PipelineConfig, bool) {
	for i := range c.Pipelines {
		if c.Pipelines[i].Name == name {
			return &c.Pipelines[i], true
		}
	}
	return nil, false
}

// ParseScope parses and validates YAML bytes into a ScopeConfig.
// Example YAML:
//
//	name: ingest
//	config:
//	  region: eu
//	pipelines:
//	  - name: numbers
//	    batch_size: 500
//	    stages:
//	      - name: range
//	        args: {end: 10000, resumable: true}
//	      - log
//	    retry:
//	      max_attempts: 3
//	      initial: 1s
func ParseScope(data []byte) (*ScopeConfig, error) {
	var cfg ScopeConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse scope: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MarshalScope renders cfg as YAML that ParseScope reads back unchanged.
func MarshalScope(cfg *ScopeConfig) ([]byte, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: scope config is nil", ErrInvalidConfig)
	}
	return yaml.Marshal(cfg)
}

// LoadScopeFile reads and parses a scope file.
func LoadScopeFile(path string) (*ScopeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scope file: %w", err)
	}
	cfg, err := ParseScope(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// WriteScopeFile writes cfg to path.
func WriteScopeFile(path string, cfg *ScopeConfig) error {
	data, err := MarshalScope(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ParsePipelineConfig parses YAML bytes into a single PipelineConfig.
func ParsePipelineConfig(data []byte) (*PipelineConfig, error) {
	var cfg PipelineConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
