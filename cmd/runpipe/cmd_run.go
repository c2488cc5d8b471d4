package main

import (
	"errors"
	"fmt"

	"github.com/dcshock/runpipe/observer"
	"github.com/dcshock/runpipe/pipeline"
	"github.com/dcshock/runpipe/scope"
	"github.com/spf13/cobra"
)

// runReporter logs progress and, when a run history is available, records it.
func runReporter(history observer.RunStore) pipeline.Reporter {
	log := pipeline.NewLogReporter(logger, 0)
	if history == nil {
		return log
	}
	return pipeline.MultiReporter(log, observer.NewRunObserver(history))
}

func runRequest(b *backends) (scope.RunRequest, error) {
	cfg, err := parsePairs(runConfig)
	if err != nil {
		return scope.RunRequest{}, fmt.Errorf("--set: %w", err)
	}
	annotations, err := parsePairs(runAnnotations)
	if err != nil {
		return scope.RunRequest{}, fmt.Errorf("--annotate: %w", err)
	}
	req := scope.RunRequest{
		Store:       b.Store,
		Reporter:    runReporter(b.History),
		Annotations: annotations,
	}
	if cfg != nil {
		req.Config = make(map[string]any, len(cfg))
		for k, v := range cfg {
			req.Config[k] = v
		}
	}
	return req, nil
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	switch {
	case runAll && len(args) != 1:
		return errors.New("--all takes only a scope")
	case !runAll && len(args) != 2:
		return errors.New("expected SCOPE PIPELINE (or SCOPE --all)")
	}

	project, err := loadProject()
	if err != nil {
		return err
	}
	s, err := lookupScope(project, args[0])
	if err != nil {
		return err
	}
	b, err := openBackends(ctx, currentStoreSettings())
	if err != nil {
		return err
	}
	defer b.Close()

	req, err := runRequest(b)
	if err != nil {
		return err
	}
	if runAll {
		n, err := s.RunAll(ctx, req, runConcurrency)
		fmt.Fprintf(cmd.OutOrStdout(), "ran %d pipeline(s) in scope %s\n", n, s.Name)
		return err
	}

	req.Pipeline = args[1]
	n, err := s.RunRequest(ctx, req)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s/%s", scope.ErrMissingPipeline, s.Name, args[1])
	}
	fmt.Fprintf(cmd.OutOrStdout(), "pipeline %s/%s completed\n", s.Name, args[1])
	return nil
}

func runResume(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	project, err := loadProject()
	if err != nil {
		return err
	}
	b, err := openBackends(ctx, currentStoreSettings())
	if err != nil {
		return err
	}
	defer b.Close()
	if b.History == nil {
		return fmt.Errorf("resume needs run history; use --store %s", storePostgres)
	}

	req, err := runRequest(b)
	if err != nil {
		return err
	}
	n, err := observer.NewResumer(b.History, project).ResumeFailed(ctx, req)
	fmt.Fprintf(cmd.OutOrStdout(), "resumed %d pipeline(s)\n", n)
	return err
}
