/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/fulmenhq/reportdeploy/internal/artifacts"
	"github.com/fulmenhq/reportdeploy/internal/gitctx"
	"github.com/fulmenhq/reportdeploy/internal/metrics"
	"github.com/fulmenhq/reportdeploy/internal/ops"
	"github.com/fulmenhq/reportdeploy/internal/publish"
	"github.com/fulmenhq/reportdeploy/pkg/ascii"
	"github.com/fulmenhq/reportdeploy/pkg/buildinfo"
	"github.com/fulmenhq/reportdeploy/pkg/catalog"
	"github.com/fulmenhq/reportdeploy/pkg/catalog/memory"
	"github.com/fulmenhq/reportdeploy/pkg/catalog/soap"
	"github.com/fulmenhq/reportdeploy/pkg/config"
	"github.com/fulmenhq/reportdeploy/pkg/logger"
	"github.com/fulmenhq/reportdeploy/pkg/safeio"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// newPublishCommand returns the explicit form of the root action.
func newPublishCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "publish <config> <artifacts-dir>",
		Short:       "Publish connections, models and reports to the catalog",
		Long:        "Publish connections, models and reports from <artifacts-dir> to the catalog named in <config>.",
		Args:        cobra.ExactArgs(2),
		RunE:        runPublish,
		Annotations: map[string]string{groupAnnotation: string(ops.GroupPublish)},
	}
	addPublishFlags(cmd)
	return cmd
}

func addPublishFlags(cmd *cobra.Command) {
	addDiscoveryFlags(cmd.Flags())
	cmd.Flags().Bool("dry-run", false, "Publish into an in-memory catalog instead of the server")
	cmd.Flags().String("summary", "", "Write a run summary to FILE (.yaml/.yml for YAML, JSON otherwise)")
	cmd.Flags().String("metrics-file", "", "Write Prometheus metrics to FILE in textfile format")
	cmd.Flags().Int("retries", 0, "Retry transient transport failures up to N times (overrides config)")
}

func addDiscoveryFlags(fs *pflag.FlagSet) {
	fs.Bool("recursive", false, "Search subdirectories of the artifacts directory")
	fs.Bool("no-ignore", false, "Do not honor .gitignore and .publishignore")
	fs.Int("preflight-concurrency", 0, "Artifacts parsed in parallel during preflight (0 = number of CPUs)")
}

func runPublish(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	flags := cmd.Flags()

	cfg, err := loadConfig(args[0], flags)
	if err != nil {
		return err
	}
	inv, err := prepareArtifacts(ctx, args[1], flags)
	if err != nil {
		return err
	}

	dryRun, _ := flags.GetBool("dry-run")
	summaryPath, _ := flags.GetString("summary")
	metricsPath, _ := flags.GetString("metrics-file")

	rev, err := gitctx.Collect(inv.Dir)
	if err != nil {
		logger.Warn("Cannot read git state of artifacts", logger.String("dir", inv.Dir), logger.Err(err))
	}

	rec := metrics.NewPrometheusRecorder()
	svc := metrics.Instrument(newCatalog(cfg, dryRun), rec)

	orch := publish.New(svc, publish.Options{
		Layout: publish.Layout{
			Root:        cfg.Root(),
			Connections: cfg.ConnectionsRoot(),
			Models:      cfg.ModelsRoot(),
			Reports:     cfg.ReportsRoot(),
		},
		Connection: cfg.ConnectionDefinition(),
		Reporters:  []publish.Reporter{newConsoleReporter(cmd.OutOrStdout()), rec},
		DryRun:     dryRun,
		Revision:   rev,
	})
	summary, runErr := orch.Run(ctx, inv)
	printSummary(cmd.OutOrStdout(), summary)

	if summaryPath != "" {
		if err := writeSummary(summaryPath, summary); err != nil {
			logger.Error("Failed to write summary", logger.String("file", summaryPath), logger.Err(err))
		}
	}
	if metricsPath != "" {
		if err := rec.WriteTextfile(metricsPath); err != nil {
			logger.Error("Failed to write metrics", logger.String("file", metricsPath), logger.Err(err))
		}
	}
	return runErr
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig(path string, flags *pflag.FlagSet) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if flags.Changed("retries") {
		n, _ := flags.GetInt("retries")
		if n < 0 {
			return nil, &config.Error{File: path, Problems: []string{"--retries must not be negative"}}
		}
		cfg.Transport.Retry.MaxAttempts = n + 1
	}
	logger.Debug("Configuration loaded", logger.Any("config", cfg.Redacted()))
	return cfg, nil
}

// prepareArtifacts discovers and preflights the artifacts under dir.
func prepareArtifacts(ctx context.Context, dir string, flags *pflag.FlagSet) (*artifacts.Inventory, error) {
	recursive, _ := flags.GetBool("recursive")
	noIgnore, _ := flags.GetBool("no-ignore")
	concurrency, _ := flags.GetInt("preflight-concurrency")

	inv, err := artifacts.Discover(dir, artifacts.Options{Recursive: recursive, NoIgnore: noIgnore})
	if err != nil {
		return nil, err
	}
	if err := inv.Preflight(ctx, concurrency); err != nil {
		return nil, err
	}
	logger.Info("Artifacts ready",
		logger.String("dir", inv.Dir),
		logger.Int("connections", len(inv.Connections)),
		logger.Int("models", len(inv.Models)),
		logger.Int("reports", len(inv.Reports)))
	return inv, nil
}

// newCatalog is swapped out by tests.
var newCatalog = newService

// newService returns the catalog a run talks to.
func newService(cfg *config.Config, dryRun bool) catalog.Service {
	if dryRun {
		logger.Warn("Dry run: publishing into an in-memory catalog", logger.String("url", cfg.ServiceURL()))
		return memory.New()
	}
	return soap.New(soap.Options{
		Endpoint:  cfg.ServiceURL(),
		UserName:  cfg.UserName,
		Password:  cfg.Password,
		Timeout:   cfg.Transport.Timeout,
		RateLimit: cfg.Transport.RateLimit,
		RateBurst: cfg.Transport.RateBurst,
		Retry: soap.RetryPolicy{
			MaxAttempts:     cfg.Transport.Retry.MaxAttempts,
			InitialInterval: cfg.Transport.Retry.InitialInterval,
			MaxInterval:     cfg.Transport.Retry.MaxInterval,
		},
		UserAgent: "reportdeploy/" + buildinfo.BinaryVersion,
	})
}

// writeSummary writes s as YAML or JSON depending on the file extension.
func writeSummary(path string, s *publish.Summary) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(s)
	default:
		data, err = json.MarshalIndent(s, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return safeio.WriteFileAtomic(path, data)
}

// printSummary draws a box with the outcome of a run.
func printSummary(w io.Writer, s *publish.Summary) {
	status := s.Status
	if s.DryRun {
		status += " (dry run)"
	}
	lines := []string{
		"Run " + s.RunID,
		"Status:      " + status,
		fmt.Sprintf("Connections: %d", s.Count(artifacts.KindConnection)),
		fmt.Sprintf("Models:      %d", s.Count(artifacts.KindModel)),
		fmt.Sprintf("Reports:     %d", s.Count(artifacts.KindReport)),
		fmt.Sprintf("Warnings:    %d", s.Warnings()),
		"Duration:    " + s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond).String(),
	}
	if s.Revision != nil {
		rev := s.Revision.Short()
		if s.Revision.Dirty {
			rev += fmt.Sprintf(" (+%d modified)", len(s.Revision.ModifiedFiles))
		}
		lines = append(lines, "Revision:    "+rev)
	}
	if s.Error != "" {
		lines = append(lines, "Error:       "+ascii.TruncateForBox(s.Error, 72))
	}
	ascii.DrawBox(w, lines)
}

// consoleReporter prints one progress line per item.
type consoleReporter struct {
	out     io.Writer
	started time.Time
}

func newConsoleReporter(w io.Writer) *consoleReporter {
	return &consoleReporter{out: w}
}

func (r *consoleReporter) ItemStarted(_ artifacts.Kind, name, root string) {
	r.started = time.Now()
	fmt.Fprintf(r.out, "Publishing %q to %s...", name, root)
}

func (r *consoleReporter) ItemFinished(res *publish.Result) {
	suffix := ""
	if n := len(res.Warnings); n > 0 {
		suffix = fmt.Sprintf(" (%d warnings)", n)
	}
	fmt.Fprintf(r.out, " Done%s [%s]\n", suffix, time.Since(r.started).Round(time.Millisecond))
}

func (r *consoleReporter) ItemFailed(_ artifacts.Kind, _ string, _ error) {
	fmt.Fprintln(r.out, " Failed")
}
