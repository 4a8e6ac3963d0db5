package publish

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fulmenhq/reportdeploy/internal/artifacts"
	"github.com/fulmenhq/reportdeploy/internal/gitctx"
	"github.com/fulmenhq/reportdeploy/pkg/catalog"
	"github.com/fulmenhq/reportdeploy/pkg/catalog/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLayout = Layout{
	Root:        "/Root",
	Connections: "/Root/Data Sources",
	Models:      "/Root/Models",
	Reports:     "/Root/Reports",
}

func writeArtifacts(t *testing.T, files map[string]string) *artifacts.Inventory {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	inv, err := artifacts.Discover(dir, artifacts.Options{})
	require.NoError(t, err)
	return inv
}

// recordingReporter keeps the progress events it sees.
type recordingReporter struct {
	events []string
}

func (r *recordingReporter) ItemStarted(kind artifacts.Kind, name, root string) {
	r.events = append(r.events, "start "+string(kind)+" "+name)
}

func (r *recordingReporter) ItemFinished(res *Result) {
	r.events = append(r.events, "done "+string(res.Kind)+" "+res.Name)
}

func (r *recordingReporter) ItemFailed(kind artifacts.Kind, name string, err error) {
	r.events = append(r.events, "fail "+string(kind)+" "+name)
}

func TestOrchestrator_EndToEnd(t *testing.T) {
	ctx := context.Background()
	c := memory.New()
	inv := writeArtifacts(t, map[string]string{
		"DB1.rds": `<RptDataSource Name="DB1"/>`,
		"M1.smdl": modelXML,
		"M1.dsv":  viewXML,
		"R1.rdl":  reportXML,
	})
	rep := &recordingReporter{}

	s, err := New(c, Options{
		Layout:     testLayout,
		Connection: catalog.ConnectionDefinition{ConnectString: "Data Source=db"},
		Reporters:  []Reporter{rep},
	}).Run(ctx, inv)
	require.NoError(t, err)

	for _, folder := range []string{"/Root", "/Root/Data Sources", "/Root/Models", "/Root/Reports"} {
		item, ok := c.Lookup(folder)
		require.True(t, ok, folder)
		assert.Equal(t, catalog.TypeFolder, item.TypeName)
	}

	conn, ok := c.Lookup("/Root/Data Sources/DB1")
	require.True(t, ok)
	assert.Equal(t, catalog.TypeDataSource, conn.TypeName)

	modelBindings, err := c.GetItemDataSources(ctx, "/Root/Models/M1")
	require.NoError(t, err)
	require.Len(t, modelBindings, 1)
	assert.Equal(t, "DB1", modelBindings[0].Name)
	assert.Equal(t, catalog.SharedReference("/Root/Data Sources/DB1"), modelBindings[0].Reference)

	reportBindings, err := c.GetItemDataSources(ctx, "/Root/Reports/R1")
	require.NoError(t, err)
	require.Len(t, reportBindings, 1)
	assert.Equal(t, "M1", reportBindings[0].Name)
	assert.Equal(t, catalog.SharedReference("/Root/Models/M1"), reportBindings[0].Reference)

	assert.Equal(t, StatusCompleted, s.Status)
	assert.NotEmpty(t, s.RunID)
	require.Len(t, s.Items, 3)
	assert.Equal(t, 1, s.Count(artifacts.KindConnection))
	assert.Equal(t, 1, s.Count(artifacts.KindModel))
	assert.Equal(t, 1, s.Count(artifacts.KindReport))
	assert.Equal(t, []BindingChange{{Name: "M1", From: "<invalid>", To: "/Root/Models/M1"}}, s.Items[2].Rebound)

	assert.Equal(t, []string{
		"start connection DB1", "done connection DB1",
		"start model M1", "done model M1",
		"start report R1", "done report R1",
	}, rep.events)
}

func TestOrchestrator_StageOrder(t *testing.T) {
	c := memory.New()
	inv := writeArtifacts(t, map[string]string{
		"DB1.rds": `<RptDataSource/>`,
		"M1.smdl": modelXML,
		"M1.dsv":  viewXML,
		"R1.rdl":  reportXML,
	})

	_, err := New(c, Options{Layout: testLayout}).Run(context.Background(), inv)
	require.NoError(t, err)

	var order []string
	for _, call := range c.Calls() {
		switch call.Op {
		case catalog.OpCreateFolder, catalog.OpCreateDataSource, catalog.OpCreateCatalogItem, catalog.OpSetItemDataSources:
			order = append(order, call.Op+" "+call.Path)
		}
	}
	assert.Equal(t, []string{
		"CreateFolder /Root",
		"CreateFolder /Root/Data Sources",
		"CreateFolder /Root/Models",
		"CreateFolder /Root/Reports",
		"CreateDataSource /Root/Data Sources/DB1",
		"CreateCatalogItem /Root/Models/M1",
		"SetItemDataSources /Root/Models/M1",
		"CreateCatalogItem /Root/Reports/R1",
		"SetItemDataSources /Root/Reports/R1",
	}, order)
}

func TestOrchestrator_TransportFailureDuringModelsAbortsBeforeReports(t *testing.T) {
	ctx := context.Background()
	c := memory.New()
	inv := writeArtifacts(t, map[string]string{
		"DB1.rds": `<RptDataSource/>`,
		"M1.smdl": modelXML,
		"M1.dsv":  viewXML,
		"M2.smdl": modelXML,
		"M2.dsv":  viewXML,
		"R1.rdl":  reportXML,
	})
	transport := &catalog.TransportError{Operation: catalog.OpCreateCatalogItem, Wrapped: errors.New("connection reset")}
	c.FailOn(catalog.OpCreateCatalogItem, "/Root/Models/M2", transport)
	rep := &recordingReporter{}

	s, err := New(c, Options{Layout: testLayout, Reporters: []Reporter{rep}}).Run(ctx, inv)
	require.Error(t, err)
	assert.ErrorIs(t, err, transport)
	assert.True(t, catalog.IsTransportError(err))

	_, ok := c.Lookup("/Root/Data Sources/DB1")
	assert.True(t, ok, "connections stay published")
	_, ok = c.Lookup("/Root/Models/M1")
	assert.True(t, ok, "earlier models stay published")
	_, ok = c.Lookup("/Root/Reports/R1")
	assert.False(t, ok)

	for _, call := range c.Calls() {
		assert.NotEqual(t, "/Root/Reports/R1", call.Path, "no report call after the failure")
	}

	assert.Equal(t, StatusFailed, s.Status)
	assert.Contains(t, s.Error, "connection reset")
	assert.Len(t, s.Items, 2)
	assert.Equal(t, "fail model M2", rep.events[len(rep.events)-1])
}

func TestOrchestrator_RebindFailureRecordsPublishedItem(t *testing.T) {
	c := memory.New()
	inv := writeArtifacts(t, map[string]string{"R1.rdl": reportXML})
	boom := errors.New("boom")
	c.FailOn(catalog.OpSetItemDataSources, "", boom)

	s, err := New(c, Options{Layout: testLayout}).Run(context.Background(), inv)
	assert.ErrorIs(t, err, boom)
	require.Len(t, s.Items, 1)
	assert.Equal(t, "/Root/Reports/R1", s.Items[0].Path)
}

func TestOrchestrator_RerunReplaces(t *testing.T) {
	ctx := context.Background()
	c := memory.New()
	inv := writeArtifacts(t, map[string]string{
		"DB1.rds": `<RptDataSource/>`,
		"M1.smdl": modelXML,
		"M1.dsv":  viewXML,
		"R1.rdl":  reportXML,
	})
	o := New(c, Options{Layout: testLayout})

	_, err := o.Run(ctx, inv)
	require.NoError(t, err)
	folders := len(c.CallsFor(catalog.OpCreateFolder))

	s, err := o.Run(ctx, inv)
	require.NoError(t, err)
	assert.Len(t, c.CallsFor(catalog.OpCreateFolder), folders, "folders are not recreated")
	assert.Equal(t, []string{"/Root/Models/M1"}, c.CallsFor(catalog.OpDeleteItem))
	assert.True(t, s.Items[1].Replaced)
}

func TestOrchestrator_EmptyInventory(t *testing.T) {
	c := memory.New()
	inv := writeArtifacts(t, nil)

	s, err := New(c, Options{Layout: testLayout}).Run(context.Background(), inv)
	require.NoError(t, err)
	assert.Empty(t, s.Items)
	_, ok := c.Lookup("/Root/Reports")
	assert.True(t, ok, "category folders are ensured even with nothing to publish")
}

func TestOrchestrator_Canceled(t *testing.T) {
	c := memory.New()
	inv := writeArtifacts(t, map[string]string{"R1.rdl": reportXML})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s, err := New(c, Options{Layout: testLayout}).Run(ctx, inv)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatusFailed, s.Status)
	assert.Empty(t, c.Calls())
}

func TestOrchestrator_RecordsRevision(t *testing.T) {
	rev := &gitctx.Revision{GitSHA: "0123456789abcdef", Branch: "main"}
	s, err := New(memory.New(), Options{Layout: testLayout, Revision: rev}).Run(context.Background(), writeArtifacts(t, nil))
	require.NoError(t, err)
	assert.Same(t, rev, s.Revision)
}
