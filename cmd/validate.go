/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package cmd

import (
	"fmt"

	"github.com/fulmenhq/reportdeploy/internal/ops"
	"github.com/spf13/cobra"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config> <artifacts-dir>",
		Short: "Check config and artifacts without contacting the server",
		Long: `Load and validate the configuration, discover the artifacts and parse every
one of them. No remote call is made. Exits 2 on configuration problems and 3
when an artifact fails to parse.`,
		Args:        cobra.ExactArgs(2),
		RunE:        runValidate,
		Annotations: map[string]string{groupAnnotation: string(ops.GroupInspect)},
	}
	addDiscoveryFlags(cmd.Flags())
	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	cfg, err := loadConfig(args[0], flags)
	if err != nil {
		return err
	}
	inv, err := prepareArtifacts(cmd.Context(), args[1], flags)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config OK: %s -> %s\n", cfg.ServiceURL(), cfg.Root())
	for _, a := range inv.All() {
		fmt.Fprintf(out, "  %-10s %s\n", a.Kind, a.Path)
	}
	fmt.Fprintf(out, "%d connections, %d models, %d reports\n", len(inv.Connections), len(inv.Models), len(inv.Reports))
	return nil
}
