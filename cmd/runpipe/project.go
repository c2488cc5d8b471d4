package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dcshock/runpipe/config"
	"github.com/dcshock/runpipe/scope"
)

func loadScopeConfigs(paths []string) ([]*config.ScopeConfig, error) {
	if len(paths) == 0 {
		return nil, errors.New("no scope files given (use --config or RUNPIPE_CONFIG)")
	}
	cfgs := make([]*config.ScopeConfig, 0, len(paths))
	for _, p := range paths {
		cfg, err := config.LoadScopeFile(p)
		if err != nil {
			return nil, err
		}
		cfgs = append(cfgs, cfg)
	}
	return cfgs, nil
}

func loadProject(opts ...scope.Option) (*scope.Project, error) {
	cfgs, err := loadScopeConfigs(configPaths)
	if err != nil {
		return nil, err
	}
	reg := config.DefaultRegistry(logger)
	opts = append([]scope.Option{scope.WithLogger(logger)}, opts...)
	return config.BuildProject(reg, cfgs, opts...)
}

func lookupScope(project *scope.Project, name string) (*scope.Scope, error) {
	s, ok := project.Scope(name)
	if !ok {
		return nil, fmt.Errorf("unknown scope %q", name)
	}
	return s, nil
}

// parsePairs turns key=value flags into a map. Values stay strings.
func parsePairs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", p)
		}
		out[k] = v
	}
	return out, nil
}
