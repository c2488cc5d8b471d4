package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dcshock/runpipe/config"
	"github.com/spf13/cobra"
)

func listPipelines(cmd *cobra.Command, args []string) error {
	project, err := loadProject()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCOPE\tPIPELINE\tBATCH\tATTEMPTS")
	for _, s := range project.Scopes() {
		for _, name := range s.Names() {
			def, ok := s.Get(name)
			if !ok {
				continue
			}
			attempts := max(def.Retry.MaxAttempts, 1)
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", s.Name, def.Name, def.BatchSize, attempts)
		}
	}
	return w.Flush()
}

func validateConfigs(cmd *cobra.Command, args []string) error {
	cfgs, err := loadScopeConfigs(configPaths)
	if err != nil {
		return err
	}
	reg := config.DefaultRegistry(logger)
	for i, cfg := range cfgs {
		if _, err := config.BuildScope(reg, cfg); err != nil {
			return fmt.Errorf("%s: %w", configPaths[i], err)
		}
		data, err := config.MarshalScope(cfg)
		if err != nil {
			return err
		}
		if i > 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "---")
		}
		cmd.OutOrStdout().Write(data)
	}
	return nil
}
