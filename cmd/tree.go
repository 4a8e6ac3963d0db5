/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package cmd

import (
	"fmt"
	"strings"

	"github.com/fulmenhq/reportdeploy/internal/ops"
	"github.com/fulmenhq/reportdeploy/pkg/ascii"
	"github.com/fulmenhq/reportdeploy/pkg/catalog"
	"github.com/fulmenhq/reportdeploy/pkg/config"
	"github.com/spf13/cobra"
)

func newTreeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tree <config> [path]",
		Short: "Print a catalog subtree",
		Long: `Print the catalog items below path, one per line, indented by depth.
Path defaults to the configured root folder.`,
		Args:        cobra.RangeArgs(1, 2),
		RunE:        runTree,
		Annotations: map[string]string{groupAnnotation: string(ops.GroupInspect)},
	}
	return cmd
}

func runTree(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(args[0])
	if err != nil {
		return err
	}
	root := cfg.Root()
	if len(args) == 2 {
		root = catalog.Normalize(args[1])
	}

	var rows [][]string
	err = catalog.Walk(cmd.Context(), newCatalog(cfg, false), root, func(item catalog.Item, depth int) error {
		rows = append(rows, []string{strings.Repeat("  ", depth) + "|-" + item.Name, string(item.TypeName)})
		return nil
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, root)
	for _, line := range ascii.Columns(rows) {
		fmt.Fprintln(out, line)
	}
	return nil
}
