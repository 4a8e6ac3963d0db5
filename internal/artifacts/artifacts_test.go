package artifacts

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fulmenhq/reportdeploy/pkg/exitcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	connectionXML = `<?xml version="1.0"?><RptDataSource Name="DB1"><ConnectionProperties><Extension>SQL</Extension></ConnectionProperties></RptDataSource>`
	modelXML      = `<?xml version="1.0"?><SemanticModel ID="M1"><Entities/></SemanticModel>`
	viewXML       = `<?xml version="1.0"?><DataSourceView ID="V1"><DataSources><DataSource ID="DB1"><Name>DB1</Name></DataSource></DataSources></DataSourceView>`
	reportXML     = `<?xml version="1.0"?><Report><DataSources><DataSource Name="M1"><DataSourceReference>M1</DataSourceReference></DataSource></DataSources></Report>`
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func names(list []Artifact) []string {
	out := make([]string, 0, len(list))
	for _, a := range list {
		out = append(out, a.Name)
	}
	return out
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"DB1.rds":         connectionXML,
		"DB2.RDS":         connectionXML,
		"M1.smdl":         modelXML,
		"M1.dsv":          viewXML,
		"R2.rdl":          reportXML,
		"R1.rdl":          reportXML,
		"notes.txt":       "ignored by extension",
		"nested/R3.rdl":   reportXML,
		"nested/DB3.rds":  connectionXML,
		"nested/skip.rdl": reportXML,
	})

	inv, err := Discover(dir, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"DB1", "DB2"}, names(inv.Connections))
	assert.Equal(t, []string{"M1"}, names(inv.Models))
	assert.Equal(t, []string{"R1", "R2"}, names(inv.Reports))
	assert.Equal(t, filepath.Join(dir, "M1.dsv"), inv.Models[0].ViewPath)
	assert.Equal(t, KindModel, inv.Models[0].Kind)
	assert.Equal(t, 5, inv.Len())

	all := inv.All()
	require.Len(t, all, 5)
	assert.Equal(t, KindConnection, all[0].Kind)
	assert.Equal(t, KindReport, all[4].Kind)
}

func TestDiscover_Recursive(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"R1.rdl":        reportXML,
		"nested/R3.rdl": reportXML,
	})

	inv, err := Discover(dir, Options{Recursive: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"R3", "R1"}, names(inv.Reports))
	assert.Equal(t, filepath.Join(dir, "nested", "R3.rdl"), inv.Reports[0].Path)
}

func TestDiscover_PublishIgnore(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		".publishignore": "*.draft.rdl\n",
		"R1.rdl":         reportXML,
		"R1.draft.rdl":   reportXML,
	})

	inv, err := Discover(dir, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"R1"}, names(inv.Reports))

	inv, err = Discover(dir, Options{NoIgnore: true})
	require.NoError(t, err)
	assert.Len(t, inv.Reports, 2)
}

func TestDiscover_IgnoredDirectoryHidesNegatedFiles(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		".gitignore":           "drafts/\n!drafts/keep.rdl\n",
		"R1.rdl":               reportXML,
		"drafts/keep.rdl":      reportXML,
		"drafts/old/R2.rdl":    reportXML,
		"published/sub/R3.rdl": reportXML,
	})

	inv, err := Discover(dir, Options{Recursive: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"R3", "R1"}, names(inv.Reports))

	inv, err = Discover(dir, Options{Recursive: true, NoIgnore: true})
	require.NoError(t, err)
	assert.Len(t, inv.Reports, 4)
}

func TestDiscover_Problems(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"M1.smdl":       modelXML,
		"R1.rdl":        reportXML,
		"nested/r1.rdl": reportXML,
	})

	_, err := Discover(dir, Options{Recursive: true})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Problems, 2)
	assert.Contains(t, verr.Problems[0].Message, "has no .dsv file")
	assert.Contains(t, verr.Problems[1].Message, "duplicate report name")
	assert.Equal(t, exitcode.ValidationError, exitcode.FromError(err))
}

func TestDiscover_NotADirectory(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "R1.rdl")
	writeFiles(t, dir, map[string]string{"R1.rdl": reportXML})

	_, err := Discover(file, Options{})
	assert.Equal(t, exitcode.FileSystemError, exitcode.FromError(err))

	_, err = Discover(filepath.Join(dir, "missing"), Options{})
	assert.Equal(t, exitcode.FileSystemError, exitcode.FromError(err))
}

func TestPreflight(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"DB1.rds": connectionXML,
		"M1.smdl": modelXML,
		"M1.dsv":  viewXML,
		"R1.rdl":  reportXML,
	})

	inv, err := Discover(dir, Options{})
	require.NoError(t, err)
	assert.NoError(t, inv.Preflight(context.Background(), 2))
}

func TestPreflight_CollectsAllProblems(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"DB1.rds": "<RptDataSource>",
		"M1.smdl": modelXML,
		"M1.dsv":  "not xml at all <",
		"R1.rdl":  reportXML,
		"R2.rdl":  `<Report><DataSources><DataSource/></DataSources></Report>`,
	})

	inv, err := Discover(dir, Options{})
	require.NoError(t, err)

	err = inv.Preflight(context.Background(), 0)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Problems, 3)
	assert.Equal(t, filepath.Join(dir, "DB1.rds"), verr.Problems[0].Path)
	assert.Contains(t, verr.Problems[1].Message, "data source view")
	assert.Equal(t, filepath.Join(dir, "R2.rdl"), verr.Problems[2].Path)
}

func TestPreflight_Canceled(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"R1.rdl": reportXML})
	inv, err := Discover(dir, Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, inv.Preflight(ctx, 1), context.Canceled)
}

func TestInventoryRead_Contained(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"R1.rdl": reportXML})
	inv := &Inventory{Dir: filepath.Join(dir)}

	data, err := inv.Read(filepath.Join(dir, "R1.rdl"))
	require.NoError(t, err)
	assert.Equal(t, reportXML, string(data))

	_, err = inv.Read(filepath.Join(dir, "..", "elsewhere.rdl"))
	assert.Error(t, err)
}
