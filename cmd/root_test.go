package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fulmenhq/reportdeploy/internal/ops"
	"github.com/fulmenhq/reportdeploy/internal/publish"
	"github.com/fulmenhq/reportdeploy/pkg/catalog"
	"github.com/fulmenhq/reportdeploy/pkg/catalog/memory"
	"github.com/fulmenhq/reportdeploy/pkg/config"
	"github.com/fulmenhq/reportdeploy/pkg/exitcode"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const (
	testConfig = `{
  "Url": "http://reports.example.test/ReportServer",
  "UserName": "deployer",
  "Password": "secret",
  "RootFolder": "/Root",
  "DataSource": { "ConnectionString": "Data Source=db" }
}`
	testModel  = `<SemanticModel ID="M1"><Entities/></SemanticModel>`
	testView   = `<DataSourceView ID="V1"><DataSources><DataSource ID="DB1"><Name>DB1</Name></DataSource></DataSources></DataSourceView>`
	testReport = `<Report><DataSources><DataSource Name="M1"><DataSourceReference>M1</DataSourceReference></DataSource></DataSources></Report>`
)

// executeCommand runs a fresh command tree with args and returns its output.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	registerSubcommands(root)
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	return filepath.Join(writeFiles(t, map[string]string{"deploy.json": content}), "deploy.json")
}

func testArtifacts(t *testing.T) string {
	return writeFiles(t, map[string]string{
		"DB1.rds": `<RptDataSource Name="DB1"/>`,
		"M1.smdl": testModel,
		"M1.dsv":  testView,
		"R1.rdl":  testReport,
	})
}

// useCatalog makes every command talk to c.
func useCatalog(t *testing.T, c catalog.Service) {
	t.Helper()
	prev := newCatalog
	newCatalog = func(*config.Config, bool) catalog.Service { return c }
	t.Cleanup(func() { newCatalog = prev })
}

func TestInitializeLogger(t *testing.T) {
	for _, level := range []string{"trace", "debug", "info", "warn", "error", "invalid"} {
		cmd := &cobra.Command{}
		cmd.Flags().String("log-level", level, "")
		cmd.Flags().Bool("json", level == "debug", "")
		cmd.Flags().Bool("no-color", true, "")

		// This should not panic
		initializeLogger(cmd)
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "trace", parseLevel("TRACE").String())
	assert.Equal(t, "warn", parseLevel("warn").String())
	assert.Equal(t, "info", parseLevel("bogus").String())
}

func TestRootVersionIsSet(t *testing.T) {
	if rootCmd.Version == "" {
		t.Error("rootCmd.Version should not be empty")
	}
}

func TestRegisterGroups(t *testing.T) {
	root := newRootCommand()
	registerSubcommands(root)
	reg := ops.NewRegistry()
	registerGroups(reg, root)

	names := func(g ops.CommandGroup) []string {
		var out []string
		for _, c := range reg.GetCommandsByGroup(g) {
			out = append(out, c.Name)
		}
		return out
	}
	assert.Equal(t, []string{"publish"}, names(ops.GroupPublish))
	assert.Equal(t, []string{"tree", "validate"}, names(ops.GroupInspect))
	assert.Equal(t, []string{"envinfo", "version"}, names(ops.GroupSupport))

	// Registering twice keeps the first registration.
	registerGroups(reg, root)
	assert.Len(t, reg.GetCommandsByGroup(ops.GroupInspect), 2)
}

func TestPublish_DryRun(t *testing.T) {
	cfg := writeTestConfig(t, testConfig)
	dir := testArtifacts(t)
	out := t.TempDir()
	summaryPath := filepath.Join(out, "summary.yaml")
	metricsPath := filepath.Join(out, "reportdeploy.prom")

	output, err := executeCommand(t, cfg, dir, "--dry-run", "--summary", summaryPath, "--metrics-file", metricsPath)
	require.NoError(t, err)

	assert.Contains(t, output, `Publishing "DB1" to /Root/Data Sources... Done`)
	assert.Contains(t, output, `Publishing "M1" to /Root/Models... Done`)
	assert.Contains(t, output, `Publishing "R1" to /Root/Reports... Done`)
	assert.Contains(t, output, "completed (dry run)")
	assert.Less(t, strings.Index(output, `"DB1"`), strings.Index(output, `"M1"`))
	assert.Less(t, strings.Index(output, `"M1"`), strings.Index(output, `"R1"`))

	data, err := os.ReadFile(summaryPath)
	require.NoError(t, err)
	var summary map[string]any
	require.NoError(t, yaml.Unmarshal(data, &summary))
	assert.Equal(t, publish.StatusCompleted, summary["status"])
	assert.Equal(t, true, summary["dry_run"])
	assert.Len(t, summary["items"], 3)

	metrics, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), `reportdeploy_items_total{kind="report",success="true"} 1`)
}

func TestPublish_Subcommand(t *testing.T) {
	c := memory.New()
	useCatalog(t, c)

	_, err := executeCommand(t, "publish", writeTestConfig(t, testConfig), testArtifacts(t))
	require.NoError(t, err)

	bindings, err := c.GetItemDataSources(context.Background(), "/Root/Reports/R1")
	require.NoError(t, err)
	require.Len(t, bindings, 1)
	assert.Equal(t, catalog.SharedReference("/Root/Models/M1"), bindings[0].Reference)
}

func TestPublish_JSONSummaryOnFailure(t *testing.T) {
	c := memory.New()
	boom := &catalog.TransportError{Operation: catalog.OpCreateCatalogItem, StatusCode: 503}
	c.FailOn(catalog.OpCreateCatalogItem, "/Root/Reports/R1", boom)
	useCatalog(t, c)
	summaryPath := filepath.Join(t.TempDir(), "summary.json")

	output, err := executeCommand(t, writeTestConfig(t, testConfig), testArtifacts(t), "--summary", summaryPath)
	require.Error(t, err)
	assert.Equal(t, exitcode.NetworkError, exitcode.FromError(err))
	assert.Contains(t, output, `Publishing "R1" to /Root/Reports... Failed`)

	data, err := os.ReadFile(summaryPath)
	require.NoError(t, err)
	var summary publish.Summary
	require.NoError(t, json.Unmarshal(data, &summary))
	assert.Equal(t, publish.StatusFailed, summary.Status)
	assert.Len(t, summary.Items, 2)
}

func TestPublish_ConfigErrorBeforeAnyCall(t *testing.T) {
	c := memory.New()
	useCatalog(t, c)

	_, err := executeCommand(t, writeTestConfig(t, `{"Url": "http://reports.example.test"}`), testArtifacts(t))
	require.Error(t, err)
	assert.Equal(t, exitcode.ConfigError, exitcode.FromError(err))
	assert.Empty(t, c.Calls())
}

func TestPublish_NegativeRetries(t *testing.T) {
	_, err := executeCommand(t, writeTestConfig(t, testConfig), testArtifacts(t), "--retries", "-1")
	require.Error(t, err)
	assert.Equal(t, exitcode.ConfigError, exitcode.FromError(err))
}

func TestPublish_PreflightFailure(t *testing.T) {
	c := memory.New()
	useCatalog(t, c)
	dir := writeFiles(t, map[string]string{"R1.rdl": "<Report>"})

	_, err := executeCommand(t, writeTestConfig(t, testConfig), dir)
	require.Error(t, err)
	assert.Equal(t, exitcode.ValidationError, exitcode.FromError(err))
	assert.Empty(t, c.Calls())
}

func TestPublish_WrongArgCount(t *testing.T) {
	_, err := executeCommand(t, "only-one-arg")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	c := memory.New()
	useCatalog(t, c)

	output, err := executeCommand(t, "validate", writeTestConfig(t, testConfig), testArtifacts(t))
	require.NoError(t, err)
	assert.Contains(t, output, "Config OK: http://reports.example.test/ReportServer/ReportService2010.asmx -> /Root")
	assert.Contains(t, output, "1 connections, 1 models, 1 reports")
	assert.Empty(t, c.Calls(), "validate never contacts the catalog")
}

func TestValidate_MissingView(t *testing.T) {
	dir := writeFiles(t, map[string]string{"M1.smdl": testModel})
	_, err := executeCommand(t, "validate", writeTestConfig(t, testConfig), dir)
	require.Error(t, err)
	assert.Equal(t, exitcode.ValidationError, exitcode.FromError(err))
}

func TestTree(t *testing.T) {
	ctx := context.Background()
	c := memory.New()
	_, err := c.CreateFolder(ctx, "Root", "/")
	require.NoError(t, err)
	_, err = c.CreateFolder(ctx, "Data Sources", "/Root")
	require.NoError(t, err)
	_, err = c.CreateDataSource(ctx, "DB1", "/Root/Data Sources", true, catalog.ConnectionDefinition{})
	require.NoError(t, err)
	_, err = c.CreateFolder(ctx, "Reports", "/Root")
	require.NoError(t, err)
	useCatalog(t, c)

	output, err := executeCommand(t, "tree", writeTestConfig(t, testConfig))
	require.NoError(t, err)
	assert.Equal(t, strings.Join([]string{
		"/Root",
		"|-Data Sources  Folder",
		"  |-DB1         DataSource",
		"|-Reports       Folder",
		"",
	}, "\n"), output)
}

func TestTree_ExplicitPath(t *testing.T) {
	ctx := context.Background()
	c := memory.New()
	_, err := c.CreateFolder(ctx, "Other", "/")
	require.NoError(t, err)
	_, err = c.CreateFolder(ctx, "Inner", "/Other")
	require.NoError(t, err)
	useCatalog(t, c)

	output, err := executeCommand(t, "tree", writeTestConfig(t, testConfig), "Other/")
	require.NoError(t, err)
	assert.Equal(t, "/Other\n|-Inner  Folder\n", output)
}

func TestTree_MissingRoot(t *testing.T) {
	useCatalog(t, memory.New())
	_, err := executeCommand(t, "tree", writeTestConfig(t, testConfig))
	require.Error(t, err)
	assert.True(t, catalog.IsFault(err))
}

func TestVersion(t *testing.T) {
	output, err := executeCommand(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "reportdeploy dev\n", output)

	output, err = executeCommand(t, "version", "--extended")
	require.NoError(t, err)
	assert.Contains(t, output, "Config schema: "+config.SchemaVersion)

	output, err = executeCommand(t, "version", "--json")
	require.NoError(t, err)
	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(output), &info))
	assert.Equal(t, "dev", info["version"])
	assert.Equal(t, config.SchemaVersion, info["configSchema"])
}
