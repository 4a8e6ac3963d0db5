/*
Copyright © 2025 3 Leaps <info@3leaps.com>
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/fulmenhq/reportdeploy/internal/ops"
	"github.com/fulmenhq/reportdeploy/pkg/buildinfo"
	"github.com/fulmenhq/reportdeploy/pkg/config"
	"github.com/fulmenhq/reportdeploy/pkg/ignore"
	"github.com/spf13/cobra"
)

// ANSI color codes
const (
	colorReset = "\033[0m"
	colorBlue  = "\033[34m"
	colorCyan  = "\033[36m"
	colorBold  = "\033[1m"
)

// colorize returns colored text if colors are enabled
func colorize(text, color string, useColor bool) string {
	if !useColor {
		return text
	}
	return color + text + colorReset
}

// getColorPreference checks if colors should be used
func getColorPreference(cmd *cobra.Command) bool {
	noColor, _ := cmd.Flags().GetBool("no-color")
	return !noColor
}

// EnvData represents the structured data for environment information.
type EnvData struct {
	System      SystemInfo        `json:"system"`
	Variables   map[string]string `json:"variables"`
	IgnoreFiles []string          `json:"ignoreFiles"`
}

// SystemInfo holds system-related information.
type SystemInfo struct {
	OS           string    `json:"os"`
	Architecture string    `json:"architecture"`
	GoVersion    string    `json:"goVersion"`
	NumCPU       int       `json:"numCPU"`
	Hostname     string    `json:"hostname"`
	WorkingDir   string    `json:"workingDir"`
	Timestamp    time.Time `json:"timestamp"`
	Version      string    `json:"version"`
}

func newEnvinfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "envinfo [artifacts-dir]",
		Short: "Show system information and active overrides",
		Long: `Display information about the system, the REPORTDEPLOY_* environment variables
that override configuration settings, and the ignore files found in the
artifacts directory (default: current directory). Secrets are redacted.`,
		Args:        cobra.MaximumNArgs(1),
		RunE:        runEnvinfo,
		Annotations: map[string]string{groupAnnotation: string(ops.GroupSupport)},
	}
}

func runEnvinfo(cmd *cobra.Command, args []string) error {
	jsonFormat, _ := cmd.Flags().GetBool("json")
	useColor := getColorPreference(cmd)

	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}
	envData := collectEnvironmentData(dir, os.Environ())
	out := cmd.OutOrStdout()

	if jsonFormat {
		jsonData, err := json.MarshalIndent(envData, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to format JSON output: %w", err)
		}
		_, err = fmt.Fprintln(out, string(jsonData))
		return err
	}

	separator := colorize(strings.Repeat("=", 50), colorCyan, useColor)
	row := func(key, value string) {
		fmt.Fprintf(out, "%s | %s\n", colorize(fmt.Sprintf("%-16s", key), colorCyan, useColor), value)
	}

	fmt.Fprintln(out, colorize("System Information", colorBold+colorBlue, useColor))
	fmt.Fprintln(out, separator)
	row("OS", envData.System.OS)
	row("Architecture", envData.System.Architecture)
	row("Go Version", envData.System.GoVersion)
	row("CPU Cores", fmt.Sprint(envData.System.NumCPU))
	row("Hostname", envData.System.Hostname)
	row("Working Dir", envData.System.WorkingDir)
	row("Timestamp", envData.System.Timestamp.Format(time.RFC3339))
	row("Version", envData.System.Version)

	fmt.Fprintln(out)
	fmt.Fprintln(out, colorize("Configuration Overrides", colorBold+colorBlue, useColor))
	fmt.Fprintln(out, separator)
	if len(envData.Variables) == 0 {
		fmt.Fprintf(out, "No %s_* variables set\n", config.EnvPrefix)
	}
	keys := make([]string, 0, len(envData.Variables))
	for k := range envData.Variables {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(out, "%s=%s\n", k, envData.Variables[k])
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, colorize("Ignore Files", colorBold+colorBlue, useColor))
	fmt.Fprintln(out, separator)
	if len(envData.IgnoreFiles) == 0 {
		fmt.Fprintln(out, "None")
	}
	for _, f := range envData.IgnoreFiles {
		fmt.Fprintln(out, f)
	}
	return nil
}

// collectEnvironmentData gathers system facts, configuration overrides from
// environ and the ignore files present in dir.
func collectEnvironmentData(dir string, environ []string) EnvData {
	hostname, _ := os.Hostname()
	wd, _ := os.Getwd()

	data := EnvData{
		System: SystemInfo{
			OS:           runtime.GOOS,
			Architecture: runtime.GOARCH,
			GoVersion:    runtime.Version(),
			NumCPU:       runtime.NumCPU(),
			Hostname:     hostname,
			WorkingDir:   wd,
			Timestamp:    time.Now().UTC(),
			Version:      buildinfo.BinaryVersion,
		},
		Variables:   map[string]string{},
		IgnoreFiles: []string{},
	}

	prefix := config.EnvPrefix + "_"
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, prefix) {
			continue
		}
		if strings.Contains(strings.ToUpper(key), "PASSWORD") || strings.Contains(strings.ToUpper(key), "CONNECTIONSTRING") {
			value = "****"
		}
		data.Variables[key] = value
	}

	for _, name := range []string{".gitignore", ignore.FileName} {
		if st, err := os.Stat(filepath.Join(dir, name)); err == nil && !st.IsDir() {
			data.IgnoreFiles = append(data.IgnoreFiles, name)
		}
	}
	return data
}
