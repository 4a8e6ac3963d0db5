/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fulmenhq/reportdeploy/internal/ops"
	"github.com/fulmenhq/reportdeploy/pkg/buildinfo"
	"github.com/fulmenhq/reportdeploy/pkg/exitcode"
	"github.com/fulmenhq/reportdeploy/pkg/logger"
	"github.com/spf13/cobra"
)

// newRootCommand creates a fresh root command instance.
// This factory pattern allows tests to create isolated command trees without shared state.
func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reportdeploy <config> <artifacts-dir>",
		Short: "Publish report artifacts to a report server catalog",
		Long: `Reportdeploy publishes shared connections (.rds), report models (.smdl + .dsv)
and reports (.rdl) from a directory into a report server catalog, then repoints
every published item's data-source bindings at the shared resources.

Examples:
   reportdeploy deploy.json ./artifacts             # Publish everything in ./artifacts
   reportdeploy deploy.yaml ./artifacts --dry-run   # Publish into an in-memory catalog
   reportdeploy validate deploy.json ./artifacts    # Check config and artifacts only
   reportdeploy tree deploy.json /Sales             # Print a catalog subtree`,
		Args:          cobra.ExactArgs(2),
		RunE:          runPublish,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			initializeLogger(cmd)
		},
	}

	// Add global flags
	cmd.PersistentFlags().String("log-level", "info", "Set log level (trace|debug|info|warn|error)")
	cmd.PersistentFlags().Bool("json", false, "Output logs in JSON format")
	cmd.PersistentFlags().Bool("no-color", false, "Disable colored output")

	addPublishFlags(cmd)

	cmd.Version = buildinfo.BinaryVersion
	cmd.SetVersionTemplate("reportdeploy {{.Version}}\n")

	// Grouped help by command group (Publish → Inspect → Support)
	cmd.SetHelpFunc(func(cmd *cobra.Command, _ []string) {
		if cmd.HasParent() {
			cmd.Println(cmd.Long)
			cmd.Println()
			cmd.Print(cmd.UsageString())
			return
		}
		reg := ops.GetRegistry()
		cmd.Println(cmd.Long)
		cmd.Println()
		for _, group := range ops.Groups() {
			commands := reg.GetCommandsByGroup(group)
			if len(commands) == 0 {
				continue
			}
			cmd.Printf("%s:\n", group.Title())
			for _, c := range commands {
				cmd.Printf("  %-12s %s\n", c.Name, c.Description)
			}
			cmd.Println()
		}
		cmd.Println("Flags:")
		cmd.Print(cmd.UsageString())
	})

	return cmd
}

// registerSubcommands adds all subcommands to the root command.
// This is called from init() for production and can be called explicitly in tests.
func registerSubcommands(cmd *cobra.Command) {
	cmd.AddCommand(newPublishCommand())
	cmd.AddCommand(newValidateCommand())
	cmd.AddCommand(newTreeCommand())
	cmd.AddCommand(newVersionCommand())
	cmd.AddCommand(newEnvinfoCommand())
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = newRootCommand()

// Execute runs the root command and exits with the code matching the error.
// SIGINT and SIGTERM cancel the run context; the run stops before its next
// remote call and exits with code 130.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		code := exitcode.FromError(err)
		logger.Error("Command execution failed",
			logger.Err(err),
			logger.Int("exit_code", code),
			logger.String("reason", exitcode.String(code)))
		os.Exit(code)
	}
}

func init() {
	registerSubcommands(rootCmd)
	registerGroups(ops.GetRegistry(), rootCmd)
}

// groupAnnotation names the help group a subcommand belongs to.
const groupAnnotation = "group"

// registerGroups records every subcommand of root in reg under the group
// named by its annotation.
func registerGroups(reg *ops.Registry, root *cobra.Command) {
	for _, c := range root.Commands() {
		group, ok := c.Annotations[groupAnnotation]
		if !ok {
			continue
		}
		if err := reg.Register(c.Name(), ops.CommandGroup(group), c, c.Short); err != nil {
			logger.Debug("Command already registered", logger.String("command", c.Name()))
		}
	}
}

// parseLevel maps a --log-level value onto a logger level, defaulting to info.
func parseLevel(s string) logger.Level {
	switch strings.ToLower(s) {
	case "trace":
		return logger.TraceLevel
	case "debug":
		return logger.DebugLevel
	case "info":
		return logger.InfoLevel
	case "warn":
		return logger.WarnLevel
	case "error":
		return logger.ErrorLevel
	default:
		return logger.InfoLevel
	}
}

// initializeLogger sets up the logger based on command flags
func initializeLogger(cmd *cobra.Command) {
	logLevelStr, _ := cmd.Flags().GetString("log-level")
	jsonLogs, _ := cmd.Flags().GetBool("json")
	noColor, _ := cmd.Flags().GetBool("no-color")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	config := logger.Config{
		Level:     parseLevel(logLevelStr),
		UseColor:  !noColor,
		JSON:      jsonLogs,
		Component: "reportdeploy",
		DryRun:    dryRun,
	}

	if err := logger.Initialize(config); err != nil {
		_, _ = os.Stderr.WriteString("Failed to initialize logger: " + err.Error() + "\n")
		os.Exit(exitcode.ConfigError)
	}
}
