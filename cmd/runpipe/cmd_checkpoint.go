package main

import (
	"encoding/json"
	"fmt"

	"github.com/dcshock/runpipe/checkpoint"
	"github.com/dcshock/runpipe/pipeline"
	"github.com/dcshock/runpipe/scope"
	"github.com/spf13/cobra"
)

// pipelineStore opens the backends and returns the namespace of scope/pipeline.
func pipelineStore(cmd *cobra.Command, scopeName, name string) (checkpoint.Store, *backends, error) {
	project, err := loadProject()
	if err != nil {
		return nil, nil, err
	}
	s, err := lookupScope(project, scopeName)
	if err != nil {
		return nil, nil, err
	}
	if !s.Contains(name) {
		return nil, nil, fmt.Errorf("%w: %s/%s", scope.ErrMissingPipeline, scopeName, name)
	}
	b, err := openBackends(cmd.Context(), currentStoreSettings())
	if err != nil {
		return nil, nil, err
	}
	return s.PipelineStore(b.Store, name), b, nil
}

func showCheckpoint(cmd *cobra.Command, args []string) error {
	store, b, err := pipelineStore(cmd, args[0], args[1])
	if err != nil {
		return err
	}
	defer b.Close()

	var snap pipeline.Snapshot
	err = store.Get(cmd.Context(), pipeline.CheckpointKey, &snap)
	if checkpoint.IsNotFound(err) {
		fmt.Fprintf(cmd.OutOrStdout(), "no checkpoint for %s/%s\n", args[0], args[1])
		return nil
	}
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

func clearCheckpoint(cmd *cobra.Command, args []string) error {
	store, b, err := pipelineStore(cmd, args[0], args[1])
	if err != nil {
		return err
	}
	defer b.Close()

	if err := store.Delete(cmd.Context(), pipeline.CheckpointKey); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "checkpoint for %s/%s cleared\n", args[0], args[1])
	return nil
}
