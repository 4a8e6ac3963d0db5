/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/fulmenhq/reportdeploy/internal/ops"
	"github.com/fulmenhq/reportdeploy/pkg/buildinfo"
	"github.com/fulmenhq/reportdeploy/pkg/config"
	"github.com/spf13/cobra"
)

func newVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "version",
		Short:       "Show version information",
		Args:        cobra.NoArgs,
		RunE:        runVersion,
		Annotations: map[string]string{groupAnnotation: string(ops.GroupSupport)},
	}
	cmd.Flags().Bool("extended", false, "Show detailed build information")
	return cmd
}

func runVersion(cmd *cobra.Command, _ []string) error {
	extended, _ := cmd.Flags().GetBool("extended")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	out := cmd.OutOrStdout()
	info := buildinfo.Current()

	if jsonOutput {
		data, err := json.MarshalIndent(struct {
			buildinfo.Info
			ConfigSchema string `json:"configSchema"`
		}{info, config.SchemaVersion}, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to format JSON: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	fmt.Fprintf(out, "reportdeploy %s\n", info.Version)
	if !extended {
		return nil
	}
	if info.ModuleVersion != "" {
		fmt.Fprintf(out, "Module: %s\n", info.ModuleVersion)
	}
	if info.GitCommit != "" {
		fmt.Fprintf(out, "Commit: %s\n", info.GitCommit)
	}
	if info.BuildDate != "" {
		fmt.Fprintf(out, "Built: %s\n", info.BuildDate)
	}
	fmt.Fprintf(out, "Go: %s %s/%s\n", info.GoVersion, info.Platform, info.Arch)
	fmt.Fprintf(out, "Config schema: %s\n", config.SchemaVersion)
	return nil
}
